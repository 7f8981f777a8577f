package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ramparte/deployotron/internal/gitops"
	"github.com/ramparte/deployotron/internal/project"
)

var hookBaseURL string

var registerCmd = &cobra.Command{
	Use:   "register <project>",
	Short: "Register the push webhook on a project's GitHub repository",
	Long: `Create a push webhook on the project's repository pointing at this
server's intake route. Requires a GITHUB_TOKEN with admin access to the
repository. Existing hooks for the same URL are left untouched.`,
	Args: cobra.ExactArgs(1),
	RunE: runRegister,
}

func init() {
	registerCmd.Flags().StringVarP(&configFile, "config", "c", getEnvOrDefault("DEPLOYOTRON_CONFIG_FILE", "./projects.yaml"), "Path to projects.yaml configuration file")
	registerCmd.Flags().StringVar(&hookBaseURL, "url", getEnvOrDefault("DEPLOYOTRON_PUBLIC_URL", ""), "Public base URL of this server (e.g. https://deploy.example.com)")
}

func runRegister(cmd *cobra.Command, args []string) error {
	projectName := args[0]

	if hookBaseURL == "" {
		return fmt.Errorf("a public base URL is required (--url or DEPLOYOTRON_PUBLIC_URL)")
	}

	token := os.Getenv("GITHUB_TOKEN")
	if token == "" {
		return fmt.Errorf("GITHUB_TOKEN is required to manage webhooks")
	}

	_, projects, err := project.LoadConfig(configFile)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	proj, ok := projects[projectName]
	if !ok {
		return fmt.Errorf("project '%s' not found in %s", projectName, configFile)
	}
	if proj.Secret == "" {
		return fmt.Errorf("project '%s' has no webhook secret configured", projectName)
	}

	ctx := cmd.Context()
	client := gitops.NewGitHubClient(ctx, token)
	hookURL := fmt.Sprintf("%s/in/%s", hookBaseURL, projectName)

	if err := gitops.EnsurePushWebhook(ctx, client, proj.RepositoryURL, hookURL, proj.Secret); err != nil {
		return fmt.Errorf("failed to register webhook: %w", err)
	}

	fmt.Printf("Webhook registered for %s -> %s\n", projectName, hookURL)
	return nil
}
