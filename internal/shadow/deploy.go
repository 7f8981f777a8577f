package shadow

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ramparte/deployotron/internal/ops"
)

const (
	mockRegion    = "us-east-1"
	mockAccountID = "123456789012"
)

// DeployOps is the shadow implementation of ops.DeploymentOperations. It
// records everything it "does" in the shared ledger and enforces the same
// ordering a real registry would: a tag must be built before it can be
// pushed.
type DeployOps struct {
	state  *State
	inject *injector
	log    *slog.Logger
}

// NewDeployOps builds a shadow deployment backend against a shared ledger.
func NewDeployOps(state *State, failureRate float64, simulateDelays bool, log *slog.Logger) *DeployOps {
	if log == nil {
		log = slog.Default()
	}
	return &DeployOps{
		state:  state,
		inject: newInjector(failureRate, simulateDelays),
		log:    log,
	}
}

// EnsureRegistry returns a stable mock URI for name. Calling it twice
// returns the same URI and records nothing new.
func (d *DeployOps) EnsureRegistry(ctx context.Context, name string) (string, error) {
	if d.inject.fault() {
		return "", &ops.RegistryError{Name: name, Err: ops.ErrTransient}
	}
	d.inject.pause()

	uri := fmt.Sprintf("%s.dkr.ecr.%s.amazonaws.com/%s", mockAccountID, mockRegion, name)
	return d.state.ensureRegistry(name, uri), nil
}

// Authenticate always succeeds unless a fault is injected.
func (d *DeployOps) Authenticate(ctx context.Context) error {
	if d.inject.fault() {
		return &ops.AuthError{Err: ops.ErrTransient}
	}
	d.inject.pause()
	return nil
}

// BuildImage records a build for the tag.
func (d *DeployOps) BuildImage(ctx context.Context, sourcePath, tag string, framework ops.Framework) error {
	if d.inject.fault() {
		return &ops.BuildError{Tag: tag, Output: "injected build failure", Err: ops.ErrTransient}
	}
	d.inject.pause()

	d.state.recordBuild(ImageBuild{
		Tag:        tag,
		SourcePath: sourcePath,
		Framework:  framework,
		BuiltAt:    time.Now().UTC(),
	})
	d.log.Debug("shadow image built", "tag", tag, "framework", framework)
	return nil
}

// PushImage marks a built tag as pushed. Pushing a tag with no recorded
// build is the ordering violation and gets its own error, distinct from
// injected transient faults.
func (d *DeployOps) PushImage(ctx context.Context, tag, destinationURI string) error {
	if d.inject.fault() {
		return &ops.PushError{Tag: tag, Err: ops.ErrTransient}
	}
	d.inject.pause()

	if !d.state.markPushed(tag, destinationURI) {
		return &ops.PushError{Tag: tag, Err: ops.ErrImageNotFound}
	}
	return nil
}

// RegisterRevision bumps the family's revision counter and returns the
// new revision identifier.
func (d *DeployOps) RegisterRevision(ctx context.Context, cfg ops.RevisionConfig) (string, error) {
	if d.inject.fault() {
		return "", &ops.RegistrationError{Family: cfg.Family, Err: ops.ErrTransient}
	}
	d.inject.pause()
	return d.state.nextRevision(cfg.Family), nil
}

// UpdateService points the service at a revision and resets its task
// counts: nothing running, everything pending.
func (d *DeployOps) UpdateService(ctx context.Context, cfg ops.RevisionConfig, revisionID string) error {
	if d.inject.fault() {
		return &ops.ServiceUpdateError{Cluster: cfg.Cluster, Service: cfg.Service, Err: ops.ErrTransient}
	}
	d.inject.pause()

	desired := cfg.DesiredCount
	if desired <= 0 {
		desired = 1
	}
	d.state.putService(cfg.Cluster, cfg.Service, revisionID, desired)
	return nil
}

// PollHealth samples the service and advances it one task per call, so a
// freshly updated service is observed pending before it is observed
// healthy.
func (d *DeployOps) PollHealth(ctx context.Context, cluster, service string) (ops.HealthStatus, error) {
	if d.inject.fault() {
		return ops.HealthStatus{}, fmt.Errorf("poll health %s/%s: %w", cluster, service, ops.ErrTransient)
	}
	d.inject.pause()

	rec, ok := d.state.sampleService(cluster, service)
	if !ok {
		return ops.HealthStatus{}, fmt.Errorf("service %s/%s not found", cluster, service)
	}
	return ops.HealthStatus{
		Healthy: rec.Running == rec.Desired && rec.Pending == 0,
		Running: rec.Running,
		Desired: rec.Desired,
		Pending: rec.Pending,
	}, nil
}

// FetchLogs returns up to limit lines for a stream, synthesizing a few
// boot lines the first time a stream is read.
func (d *DeployOps) FetchLogs(ctx context.Context, group, stream string, limit int) ([]string, error) {
	if d.inject.fault() {
		return nil, fmt.Errorf("fetch logs %s/%s: %w", group, stream, ops.ErrTransient)
	}
	d.inject.pause()

	lines := d.state.Logs(group, stream)
	if len(lines) == 0 {
		boot := []string{
			"Starting application...",
			"Listening on configured port",
			"Ready to accept connections",
		}
		d.state.appendLogs(group, stream, boot)
		lines = boot
	}

	if limit > 0 && len(lines) > limit {
		lines = lines[:limit]
	}
	return lines, nil
}
