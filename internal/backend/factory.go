// Package backend is the single seam where real and shadow backends are
// selected. Nothing else constructs backends, so the orchestrator runs
// identical code in both modes.
package backend

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/ramparte/deployotron/internal/cloud"
	"github.com/ramparte/deployotron/internal/gitops"
	"github.com/ramparte/deployotron/internal/ops"
	"github.com/ramparte/deployotron/internal/shadow"
)

// Environment switches consumed by ConfigFromEnv.
const (
	EnvShadowMode  = "DEPLOYOTRON_SHADOW_MODE"
	EnvFailureRate = "DEPLOYOTRON_SHADOW_FAILURE_RATE"
	EnvDelays      = "DEPLOYOTRON_SHADOW_DELAYS"
)

// Config selects which backends a process runs against.
type Config struct {
	// ShadowMode selects the in-memory backends instead of git/Docker/AWS.
	ShadowMode bool

	// FailureRate is the per-operation injected failure probability in
	// shadow mode, clamped to [0, 1].
	FailureRate float64

	// SimulateDelays adds small sleeps to shadow operations so runs feel
	// like real I/O.
	SimulateDelays bool
}

// ConfigFromEnv reads the shadow switches from the environment. Absent
// variables mean real backends and zero injected failures.
func ConfigFromEnv() Config {
	cfg := Config{SimulateDelays: true}

	cfg.ShadowMode = truthy(os.Getenv(EnvShadowMode))

	if raw := os.Getenv(EnvFailureRate); raw != "" {
		if rate, err := strconv.ParseFloat(raw, 64); err == nil {
			cfg.FailureRate = clamp(rate)
		}
	}

	if raw := os.Getenv(EnvDelays); raw != "" {
		cfg.SimulateDelays = truthy(raw)
	}

	return cfg
}

// New returns one implementation of each operation contract. In shadow
// mode both backends share the given ledger; in real mode the ledger is
// ignored and the AWS/Docker clients are initialized from the ambient
// environment.
func New(ctx context.Context, cfg Config, state *shadow.State, log *slog.Logger) (ops.RepositoryOperations, ops.DeploymentOperations, error) {
	if log == nil {
		log = slog.Default()
	}

	if cfg.ShadowMode {
		if state == nil {
			state = shadow.NewState()
		}
		log.Info("using shadow backends", "failure_rate", cfg.FailureRate, "delays", cfg.SimulateDelays)
		repo := shadow.NewRepoOps(state, cfg.FailureRate, cfg.SimulateDelays, log)
		deploy := shadow.NewDeployOps(state, cfg.FailureRate, cfg.SimulateDelays, log)
		return repo, deploy, nil
	}

	deploy, err := cloud.New(ctx, log)
	if err != nil {
		return nil, nil, fmt.Errorf("initialize cloud backend: %w", err)
	}
	return gitops.New(log), deploy, nil
}

func truthy(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}

func clamp(rate float64) float64 {
	if rate < 0 {
		return 0
	}
	if rate > 1 {
		return 1
	}
	return rate
}
