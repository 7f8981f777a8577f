// Package ops defines the operation contracts the deployment orchestrator
// runs against. Both the real backends (git CLI, Docker, AWS) and the
// in-memory shadow backends implement these interfaces, so the orchestrator
// never knows which one it holds.
package ops

import "context"

// RepositoryOperations covers everything the pipeline does with a source
// repository: fetching it, inspecting it, and throwing the checkout away.
type RepositoryOperations interface {
	// Clone fetches the given branch of a repository and returns the local
	// path of the checkout. Fails with *CloneError on unreachable or
	// invalid URLs and branches.
	Clone(ctx context.Context, url, branch string) (string, error)

	// DetectFramework inspects a checkout for framework marker files.
	// It never fails; FrameworkOther is returned when nothing matches.
	DetectFramework(path string) Framework

	// CommitInfo returns the commit sha and subject line for ref (HEAD when
	// ref is empty). Fails with ErrNotARepository when path has no VCS
	// metadata.
	CommitInfo(ctx context.Context, path, ref string) (sha, message string, err error)

	// Cleanup removes a checkout. Best effort: filesystem errors are
	// logged by the implementation, never returned.
	Cleanup(path string)
}

// DeploymentOperations covers the registry, build, and compute platform
// calls the pipeline makes after a checkout exists.
type DeploymentOperations interface {
	// EnsureRegistry creates the image registry if needed and returns its
	// URI. Idempotent: a second call with the same name returns the same
	// URI and creates nothing.
	EnsureRegistry(ctx context.Context, name string) (string, error)

	// Authenticate obtains push credentials for the registry.
	Authenticate(ctx context.Context) error

	// BuildImage builds a container image from sourcePath under the given
	// tag. Fails with *BuildError carrying the failing build output.
	BuildImage(ctx context.Context, sourcePath, tag string, framework Framework) error

	// PushImage pushes a previously built tag to destinationURI. Pushing a
	// tag that was never built is a caller bug; implementations surface it
	// as *PushError wrapping ErrImageNotFound.
	PushImage(ctx context.Context, tag, destinationURI string) error

	// RegisterRevision registers an immutable revision (task definition)
	// describing how to run the image, returning its identifier.
	RegisterRevision(ctx context.Context, cfg RevisionConfig) (string, error)

	// UpdateService points the running service at a registered revision.
	UpdateService(ctx context.Context, cfg RevisionConfig, revisionID string) error

	// PollHealth reports the current health of a service. Safe to call
	// repeatedly.
	PollHealth(ctx context.Context, cluster, service string) (HealthStatus, error)

	// FetchLogs returns up to limit recent log lines for a stream, oldest
	// first.
	FetchLogs(ctx context.Context, group, stream string, limit int) ([]string, error)
}

// HealthStatus is a point-in-time health sample for a service. A fresh
// value is produced on every poll.
type HealthStatus struct {
	Healthy bool
	Running int
	Desired int
	Pending int
}

// RevisionConfig describes how a service revision should run an image.
type RevisionConfig struct {
	Project      string
	ImageURI     string
	Cluster      string
	Service      string
	Family       string
	Container    string
	Port         int
	CPU          int
	Memory       int
	DesiredCount int
	LogGroup     string
	LogStream    string
}
