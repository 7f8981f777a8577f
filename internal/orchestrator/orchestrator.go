// Package orchestrator runs the deployment pipeline: clone, detect,
// build, push, register, update, monitor. It drives the operation
// interfaces without knowing whether real or shadow backends sit behind
// them.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ramparte/deployotron/internal/ops"
	"github.com/ramparte/deployotron/internal/project"
	"github.com/ramparte/deployotron/internal/store"
)

// Store is the persistence surface the pipeline needs.
type Store interface {
	LoadProject(ctx context.Context, id string) (*project.Project, error)
	CreateDeployment(ctx context.Context, d *store.Deployment) error
	UpdateDeployment(ctx context.Context, d *store.Deployment) error
}

// Options tune the health monitoring loop.
type Options struct {
	// PollInterval is the pause between health samples.
	PollInterval time.Duration
	// PollTimeout bounds the whole monitoring phase.
	PollTimeout time.Duration
}

const (
	defaultPollInterval = 10 * time.Second
	defaultPollTimeout  = 5 * time.Minute

	logExcerptLines = 50
)

// Pipeline steps in execution order, with the progress range each one
// spans. A step's success event carries the end of its range; its failure
// event carries the start.
const (
	stepCreateRecord    = "create_record"
	stepCloneRepository = "clone_repository"
	stepDetectFramework = "detect_framework"
	stepReadCommitInfo  = "read_commit_info"
	stepBuildImage      = "build_image"
	stepAuthenticate    = "authenticate_registry"
	stepPushImage       = "push_image"
	stepRegisterRevision = "register_revision"
	stepUpdateService   = "update_service"
	stepMonitorHealth   = "monitor_health"
)

var stepStart = map[string]int{
	stepCreateRecord:     0,
	stepCloneRepository:  10,
	stepDetectFramework:  20,
	stepReadCommitInfo:   25,
	stepBuildImage:       30,
	stepAuthenticate:     50,
	stepPushImage:        55,
	stepRegisterRevision: 70,
	stepUpdateService:    80,
	stepMonitorHealth:    90,
}

var stepEnd = map[string]int{
	stepCreateRecord:     10,
	stepCloneRepository:  20,
	stepDetectFramework:  25,
	stepReadCommitInfo:   30,
	stepBuildImage:       50,
	stepAuthenticate:     55,
	stepPushImage:        70,
	stepRegisterRevision: 80,
	stepUpdateService:    90,
	stepMonitorHealth:    100,
}

// Orchestrator executes deployment runs.
type Orchestrator struct {
	repos   ops.RepositoryOperations
	deploys ops.DeploymentOperations
	store   Store
	sink    Sink
	log     *slog.Logger
	opts    Options
}

// New creates an orchestrator. A nil sink discards progress events.
func New(repos ops.RepositoryOperations, deploys ops.DeploymentOperations, st Store, sink Sink, log *slog.Logger, opts Options) *Orchestrator {
	if opts.PollInterval <= 0 {
		opts.PollInterval = defaultPollInterval
	}
	if opts.PollTimeout <= 0 {
		opts.PollTimeout = defaultPollTimeout
	}
	if sink == nil {
		sink = SinkFunc(func(Event) {})
	}
	return &Orchestrator{
		repos:   repos,
		deploys: deploys,
		store:   st,
		sink:    sink,
		log:     log,
		opts:    opts,
	}
}

// Deploy runs the full pipeline for a project. The returned record is
// always in a terminal state; err is non-nil exactly when the run failed.
func (o *Orchestrator) Deploy(ctx context.Context, projectID, deploymentID string) (*store.Deployment, error) {
	proj, err := o.store.LoadProject(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("load project: %w", err)
	}

	log := o.log.With("project", proj.Name, "deployment_id", deploymentID)
	log.Info("deployment started", "repository", proj.RepositoryURL, "branch", proj.Branch)

	// Persistence survives run cancellation: a cancelled deployment still
	// gets its terminal record written.
	persistCtx := context.WithoutCancel(ctx)

	record := &store.Deployment{
		ID:        deploymentID,
		ProjectID: proj.ID,
		Status:    store.StatusPending,
		StartedAt: time.Now().UTC(),
	}
	if err := o.store.CreateDeployment(persistCtx, record); err != nil {
		return nil, fmt.Errorf("create deployment record: %w", err)
	}

	record.Status = store.StatusInProgress
	if err := o.store.UpdateDeployment(persistCtx, record); err != nil {
		return nil, fmt.Errorf("mark deployment in progress: %w", err)
	}

	// persist writes the record through after every step; a reader polling
	// the record mid-run sees each field as soon as the pipeline binds it.
	persist := func() {
		if err := o.store.UpdateDeployment(persistCtx, record); err != nil {
			log.Error("failed to persist deployment record", "error", err)
		}
	}

	// emit never lets the run's progress go backward: a failure event after
	// interim monitoring progress reports the highest percent reached.
	lastPercent := 0
	emit := func(step string, percent int, message string) {
		if percent < lastPercent {
			percent = lastPercent
		}
		lastPercent = percent
		o.emit(proj, deploymentID, step, percent, message)
	}

	emit(stepCreateRecord, stepEnd[stepCreateRecord], "Deployment record created")

	var clonePath string
	fail := func(step string, cause error) (*store.Deployment, error) {
		log.Error("deployment failed", "step", step, "error", cause)

		record.Status = store.StatusFailed
		now := time.Now().UTC()
		record.CompletedAt = &now
		msg := cause.Error()
		record.ErrorMessage = &msg
		if err := o.store.UpdateDeployment(persistCtx, record); err != nil {
			log.Error("failed to persist failure", "error", err)
		}

		emit(step, stepStart[step], ops.UserMessage(cause))
		if clonePath != "" {
			o.repos.Cleanup(clonePath)
		}
		return record, cause
	}

	// Step 2: clone.
	if err := cancelled(ctx); err != nil {
		return fail(stepCloneRepository, err)
	}
	clonePath, err = o.repos.Clone(ctx, proj.RepositoryURL, proj.Branch)
	if err != nil {
		return fail(stepCloneRepository, err)
	}
	persist()
	emit(stepCloneRepository, stepEnd[stepCloneRepository], "Repository cloned")

	// Step 3: detect framework. Configured framework wins over detection.
	if err := cancelled(ctx); err != nil {
		return fail(stepDetectFramework, err)
	}
	framework := proj.Framework
	if framework == "" {
		framework = o.repos.DetectFramework(clonePath)
	}
	persist()
	emit(stepDetectFramework, stepEnd[stepDetectFramework],
		fmt.Sprintf("Detected framework: %s", framework))

	// Step 4: commit info.
	if err := cancelled(ctx); err != nil {
		return fail(stepReadCommitInfo, err)
	}
	sha, message, err := o.repos.CommitInfo(ctx, clonePath, "")
	if err != nil {
		return fail(stepReadCommitInfo, err)
	}
	record.CommitSHA = sha
	record.CommitMessage = &message
	shortSHA := sha
	if len(shortSHA) > 8 {
		shortSHA = shortSHA[:8]
	}
	persist()
	emit(stepReadCommitInfo, stepEnd[stepReadCommitInfo],
		fmt.Sprintf("Deploying commit %s", shortSHA))

	// Step 5: build.
	if err := cancelled(ctx); err != nil {
		return fail(stepBuildImage, err)
	}
	tag := fmt.Sprintf("%s:%s", proj.Name, shortSHA)
	record.ImageTag = tag
	if err := o.deploys.BuildImage(ctx, clonePath, tag, framework); err != nil {
		return fail(stepBuildImage, err)
	}
	persist()
	emit(stepBuildImage, stepEnd[stepBuildImage],
		fmt.Sprintf("Image %s built", tag))

	// Step 6: registry auth. The registry must exist before pushing, so it
	// is ensured here alongside authentication.
	if err := cancelled(ctx); err != nil {
		return fail(stepAuthenticate, err)
	}
	if err := o.deploys.Authenticate(ctx); err != nil {
		return fail(stepAuthenticate, err)
	}
	registryURI, err := o.deploys.EnsureRegistry(ctx, proj.Registry)
	if err != nil {
		return fail(stepAuthenticate, err)
	}
	persist()
	emit(stepAuthenticate, stepEnd[stepAuthenticate], "Registry authenticated")

	// Step 7: push.
	if err := cancelled(ctx); err != nil {
		return fail(stepPushImage, err)
	}
	if err := o.deploys.PushImage(ctx, tag, registryURI); err != nil {
		return fail(stepPushImage, err)
	}
	persist()
	emit(stepPushImage, stepEnd[stepPushImage],
		fmt.Sprintf("Image pushed to %s", registryURI))

	// Step 8: register revision.
	if err := cancelled(ctx); err != nil {
		return fail(stepRegisterRevision, err)
	}
	revisionCfg := ops.RevisionConfig{
		Project:      proj.Name,
		ImageURI:     fmt.Sprintf("%s:%s", registryURI, shortSHA),
		Cluster:      proj.Cluster,
		Service:      proj.Service,
		Family:       proj.Name + "-task",
		Container:    proj.Name + "-container",
		Port:         ops.DefaultPort(framework),
		CPU:          512,
		Memory:       1024,
		DesiredCount: 1,
		LogGroup:     "/ecs/" + proj.Name,
		LogStream:    "deploy",
	}
	revisionID, err := o.deploys.RegisterRevision(ctx, revisionCfg)
	if err != nil {
		return fail(stepRegisterRevision, err)
	}
	persist()
	emit(stepRegisterRevision, stepEnd[stepRegisterRevision],
		"Revision registered")

	// Step 9: update service.
	if err := cancelled(ctx); err != nil {
		return fail(stepUpdateService, err)
	}
	if err := o.deploys.UpdateService(ctx, revisionCfg, revisionID); err != nil {
		return fail(stepUpdateService, err)
	}
	persist()
	emit(stepUpdateService, stepEnd[stepUpdateService],
		fmt.Sprintf("Service %s/%s updated", proj.Cluster, proj.Service))

	// Step 10: monitor until healthy or the poll bound expires.
	if err := o.monitor(ctx, proj, emit); err != nil {
		return fail(stepMonitorHealth, err)
	}

	// Best effort: attach a log excerpt to the record. A log fetch failure
	// never fails a deployment that already converged.
	if lines, err := o.deploys.FetchLogs(ctx, revisionCfg.LogGroup, revisionCfg.LogStream, logExcerptLines); err != nil {
		log.Warn("could not fetch service logs", "error", err)
	} else if len(lines) > 0 {
		excerpt := strings.Join(lines, "\n")
		record.LogExcerpt = &excerpt
	}

	record.Status = store.StatusSuccess
	now := time.Now().UTC()
	record.CompletedAt = &now
	if err := o.store.UpdateDeployment(persistCtx, record); err != nil {
		log.Error("failed to persist success", "error", err)
	}

	emit(stepMonitorHealth, stepEnd[stepMonitorHealth], "Deployment complete")
	o.repos.Cleanup(clonePath)
	clonePath = ""

	log.Info("deployment succeeded", "commit", shortSHA, "image", tag)
	return record, nil
}

// monitor polls service health until it converges. Interim progress maps
// the running/desired ratio into the 90-99 band; 100 is reserved for the
// final success event.
func (o *Orchestrator) monitor(ctx context.Context, proj *project.Project, emit func(step string, percent int, message string)) error {
	deadline := time.Now().Add(o.opts.PollTimeout)
	ticker := time.NewTicker(o.opts.PollInterval)
	defer ticker.Stop()

	for {
		status, err := o.deploys.PollHealth(ctx, proj.Cluster, proj.Service)
		if err != nil {
			return err
		}

		if status.Healthy {
			return nil
		}

		percent := stepStart[stepMonitorHealth]
		if status.Desired > 0 {
			percent += 10 * status.Running / status.Desired
		}
		if percent > 99 {
			percent = 99
		}
		emit(stepMonitorHealth, percent,
			fmt.Sprintf("Waiting for service: %d/%d tasks running", status.Running, status.Desired))

		if time.Now().After(deadline) {
			return &ops.HealthTimeoutError{
				Cluster: proj.Cluster,
				Service: proj.Service,
				Waited:  o.opts.PollTimeout.String(),
			}
		}

		select {
		case <-ctx.Done():
			return ops.ErrCancelled
		case <-ticker.C:
		}
	}
}

func (o *Orchestrator) emit(proj *project.Project, deploymentID, step string, percent int, message string) {
	o.sink.Publish(Event{
		DeploymentID: deploymentID,
		Project:      proj.Name,
		Step:         step,
		Percent:      percent,
		Message:      message,
	})
}

func cancelled(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		if errors.Is(err, context.Canceled) {
			return ops.ErrCancelled
		}
		return err
	}
	return nil
}
