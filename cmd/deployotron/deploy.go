package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/ramparte/deployotron/internal/backend"
	"github.com/ramparte/deployotron/internal/orchestrator"
	"github.com/ramparte/deployotron/internal/project"
	"github.com/ramparte/deployotron/internal/shadow"
	"github.com/ramparte/deployotron/internal/store"
)

var deployCmd = &cobra.Command{
	Use:   "deploy <project>",
	Short: "Run a single deployment from the command line",
	Long: `Deploy a configured project once and print progress to the console.

The command exits non-zero when the deployment fails.`,
	Args: cobra.ExactArgs(1),
	RunE: runDeploy,
}

func init() {
	deployCmd.Flags().StringVarP(&configFile, "config", "c", getEnvOrDefault("DEPLOYOTRON_CONFIG_FILE", "./projects.yaml"), "Path to projects.yaml configuration file")
	deployCmd.Flags().StringVar(&dbPath, "db", getEnvOrDefault("DEPLOYOTRON_DB_PATH", "./deployotron.db"), "Path to SQLite database")
}

func runDeploy(cmd *cobra.Command, args []string) error {
	projectName := args[0]

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelWarn,
	}))

	_, projects, err := project.LoadConfig(configFile)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	registry := project.NewRegistry(projects)

	st, err := store.New(dbPath, registry)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer st.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	backendCfg := backend.ConfigFromEnv()
	var state *shadow.State
	if backendCfg.ShadowMode {
		state = shadow.NewState()
	}
	repos, deploys, err := backend.New(ctx, backendCfg, state, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize backends: %w", err)
	}

	console := orchestrator.SinkFunc(func(event orchestrator.Event) {
		fmt.Printf("[%3d%%] %s: %s\n", event.Percent, event.Step, event.Message)
	})

	orch := orchestrator.New(repos, deploys, st, console, logger, orchestrator.Options{})

	deploymentID := uuid.NewString()
	record, err := orch.Deploy(ctx, projectName, deploymentID)
	if err != nil {
		return fmt.Errorf("deployment %s failed: %w", deploymentID, err)
	}

	fmt.Printf("Deployment %s succeeded (commit %s, image %s)\n",
		record.ID, record.CommitSHA, record.ImageTag)
	return nil
}
