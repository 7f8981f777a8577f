package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var version = "dev" // Will be set during build

var rootCmd = &cobra.Command{
	Use:   "deployotron",
	Short: "Clone-to-cloud deployment orchestration",
	Long: `Deployotron clones a repository, detects its framework, builds and
pushes a container image, rolls the service, and monitors the rollout.

With DEPLOYOTRON_SHADOW_MODE=1 the whole pipeline runs against in-memory
backends, so it can be exercised without git, Docker, or AWS.`,
	Version: version,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(deployCmd)
	rootCmd.AddCommand(registerCmd)
	rootCmd.AddCommand(versionCmd)
}
