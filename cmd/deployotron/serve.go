package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ramparte/deployotron/internal/backend"
	"github.com/ramparte/deployotron/internal/orchestrator"
	"github.com/ramparte/deployotron/internal/project"
	"github.com/ramparte/deployotron/internal/server"
	"github.com/ramparte/deployotron/internal/shadow"
	"github.com/ramparte/deployotron/internal/store"
)

var (
	configFile string
	logFile    string
	dbPath     string
	host       string
	port       int
	testMode   bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the deployment server",
	Long: `Start the HTTP server that receives GitHub push webhooks and manual
deployment triggers, and streams deployment progress to subscribers.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVarP(&configFile, "config", "c", getEnvOrDefault("DEPLOYOTRON_CONFIG_FILE", "./projects.yaml"), "Path to projects.yaml configuration file")
	serveCmd.Flags().StringVar(&logFile, "log", getEnvOrDefault("DEPLOYOTRON_LOG_FILE", "./deployotron.log"), "Path to log file")
	serveCmd.Flags().StringVar(&dbPath, "db", getEnvOrDefault("DEPLOYOTRON_DB_PATH", "./deployotron.db"), "Path to SQLite database")
	serveCmd.Flags().StringVar(&host, "host", getEnvOrDefault("DEPLOYOTRON_HOST", "127.0.0.1"), "Host to bind to")
	serveCmd.Flags().IntVarP(&port, "port", "p", getEnvOrDefaultInt("DEPLOYOTRON_PORT", 5000), "Port to listen on")
	serveCmd.Flags().BoolVar(&testMode, "test-mode", false, "Enable test mode (no rate limiting)")
}

func runServe(cmd *cobra.Command, args []string) error {
	logger, logFileHandle, err := setupLogging(logFile)
	if err != nil {
		return fmt.Errorf("failed to setup logging: %w", err)
	}
	defer logFileHandle.Close()

	logger.Info("Starting deployotron", "version", version)

	logger.Info("Loading configuration", "config", configFile)
	_, projects, err := project.LoadConfig(configFile)
	if err != nil {
		logger.Error("Failed to load configuration", "error", err)
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	logger.Info("Configuration validated successfully", "count", len(projects))

	if len(projects) == 0 {
		logger.Warn("No projects configured", "config", configFile)
		logger.Warn("The server will start but won't handle any deployments until projects are added")
	}

	registry := project.NewRegistry(projects)

	logger.Info("Opening deployment database", "db", dbPath)
	st, err := store.New(dbPath, registry)
	if err != nil {
		logger.Error("Failed to open database", "error", err)
		return fmt.Errorf("failed to open database: %w", err)
	}

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

	hub := server.NewHub(logger)
	publisher := orchestrator.NewPublisher(hub, logger)
	defer publisher.Close()

	orch := orchestrator.New(repos, deploys, st, publisher, logger, orchestrator.Options{})
	metrics := server.NewMetrics()
	metrics.RegisterDroppedEvents(publisher.Dropped)
	srv := server.NewServer(registry, st, orch, hub, metrics, logger, testMode)

	logger.Info("Starting HTTP server", "host", host, "port", port)
	if err := srv.Start(ctx, host, port); err != nil {
		logger.Error("Server failed", "error", err)
		return fmt.Errorf("server failed: %w", err)
	}

	return nil
}

// setupLogging configures slog for file logging. Returns both the logger
// and the file handle (caller must close the file).
func setupLogging(logPath string) (*slog.Logger, *os.File, error) {
	logDir := filepath.Dir(logPath)
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return nil, nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	file, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0640)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open log file: %w", err)
	}

	multiWriter := io.MultiWriter(os.Stdout, file)
	handler := slog.NewJSONHandler(multiWriter, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})

	return slog.New(handler), file, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvOrDefaultInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		var intVal int
		if _, err := fmt.Sscanf(value, "%d", &intVal); err == nil {
			return intVal
		}
	}
	return defaultValue
}
