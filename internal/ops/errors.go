package ops

import (
	"errors"
	"fmt"
)

// Sentinel errors shared across backends.
var (
	// ErrNotARepository is returned by CommitInfo when the path carries no
	// VCS metadata.
	ErrNotARepository = errors.New("not a git repository")

	// ErrImageNotFound marks a push attempted before a build recorded the
	// tag. Always wrapped in *PushError so callers can distinguish the
	// ordering violation from transport failures.
	ErrImageNotFound = errors.New("image not found")

	// ErrTransient is the generic fault the shadow backends inject. Real
	// backends wrap their own causes instead.
	ErrTransient = errors.New("transient backend fault")

	// ErrCancelled is recorded when a run is cancelled between steps.
	ErrCancelled = errors.New("deployment cancelled")
)

// CloneError reports a failed repository clone.
type CloneError struct {
	URL    string
	Branch string
	Err    error
}

func (e *CloneError) Error() string {
	return fmt.Sprintf("clone %s@%s: %v", e.URL, e.Branch, e.Err)
}

func (e *CloneError) Unwrap() error { return e.Err }

// AuthError reports failed registry authentication.
type AuthError struct {
	Err error
}

func (e *AuthError) Error() string { return fmt.Sprintf("registry authentication: %v", e.Err) }
func (e *AuthError) Unwrap() error { return e.Err }

// BuildError reports a failed image build, carrying the output of the
// failing build step.
type BuildError struct {
	Tag    string
	Output string
	Err    error
}

func (e *BuildError) Error() string { return fmt.Sprintf("build image %s: %v", e.Tag, e.Err) }
func (e *BuildError) Unwrap() error { return e.Err }

// PushError reports a failed image push. When the tag was never built it
// wraps ErrImageNotFound.
type PushError struct {
	Tag string
	Err error
}

func (e *PushError) Error() string { return fmt.Sprintf("push image %s: %v", e.Tag, e.Err) }
func (e *PushError) Unwrap() error { return e.Err }

// RegistrationError reports a failed revision registration.
type RegistrationError struct {
	Family string
	Err    error
}

func (e *RegistrationError) Error() string {
	return fmt.Sprintf("register revision %s: %v", e.Family, e.Err)
}

func (e *RegistrationError) Unwrap() error { return e.Err }

// ServiceUpdateError reports a failed service update.
type ServiceUpdateError struct {
	Cluster string
	Service string
	Err     error
}

func (e *ServiceUpdateError) Error() string {
	return fmt.Sprintf("update service %s/%s: %v", e.Cluster, e.Service, e.Err)
}

func (e *ServiceUpdateError) Unwrap() error { return e.Err }

// HealthTimeoutError reports a service that never became healthy within
// the poll bound.
type HealthTimeoutError struct {
	Cluster string
	Service string
	Waited  string
}

func (e *HealthTimeoutError) Error() string {
	return fmt.Sprintf("service %s/%s not healthy after %s", e.Cluster, e.Service, e.Waited)
}

// RegistryError reports a failed registry lookup or creation.
type RegistryError struct {
	Name string
	Err  error
}

func (e *RegistryError) Error() string { return fmt.Sprintf("ensure registry %s: %v", e.Name, e.Err) }
func (e *RegistryError) Unwrap() error { return e.Err }

// UserMessage converts an operation error into the human-readable message
// shown in the final failure notification. Raw internal representations
// never reach users.
func UserMessage(err error) string {
	var (
		cloneErr    *CloneError
		authErr     *AuthError
		buildErr    *BuildError
		pushErr     *PushError
		registryErr *RegistryError
		regErr      *RegistrationError
		updateErr   *ServiceUpdateError
		healthErr   *HealthTimeoutError
	)

	switch {
	case errors.Is(err, ErrCancelled):
		return "Deployment was cancelled"
	case errors.As(err, &cloneErr):
		return fmt.Sprintf("Could not clone %s (branch %s)", cloneErr.URL, cloneErr.Branch)
	case errors.Is(err, ErrNotARepository):
		return "Checkout is not a valid repository"
	case errors.As(err, &buildErr):
		return fmt.Sprintf("Image build failed for %s", buildErr.Tag)
	case errors.As(err, &authErr):
		return "Could not authenticate to the container registry"
	case errors.As(err, &pushErr):
		if errors.Is(err, ErrImageNotFound) {
			return fmt.Sprintf("Image %s was never built", pushErr.Tag)
		}
		return fmt.Sprintf("Could not push image %s", pushErr.Tag)
	case errors.As(err, &registryErr):
		return fmt.Sprintf("Could not prepare registry %s", registryErr.Name)
	case errors.As(err, &regErr):
		return fmt.Sprintf("Could not register revision %s", regErr.Family)
	case errors.As(err, &updateErr):
		return fmt.Sprintf("Could not update service %s/%s", updateErr.Cluster, updateErr.Service)
	case errors.As(err, &healthErr):
		return fmt.Sprintf("Service %s/%s did not become healthy in time", healthErr.Cluster, healthErr.Service)
	case errors.Is(err, ErrTransient):
		return "A backend operation failed transiently"
	default:
		return "Deployment failed"
	}
}
