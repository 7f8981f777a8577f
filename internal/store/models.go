package store

import "time"

// Status is the lifecycle state of a deployment record. Statuses only
// advance forward; RolledBack is reachable only from a terminal state via
// an explicit rollback, never from the forward pipeline.
type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusSuccess    Status = "success"
	StatusFailed     Status = "failed"
	StatusRolledBack Status = "rolled_back"
)

// Terminal reports whether no further forward transition is possible.
func (s Status) Terminal() bool {
	switch s {
	case StatusSuccess, StatusFailed, StatusRolledBack:
		return true
	default:
		return false
	}
}

// Deployment is one deployment run's persisted record. It is owned by the
// run that created it: only that run's goroutine mutates it until a
// terminal status is reached.
type Deployment struct {
	ID            string     `json:"id"`
	ProjectID     string     `json:"project_id"`
	Status        Status     `json:"status"`
	CommitSHA     string     `json:"commit_sha,omitempty"`
	CommitMessage *string    `json:"commit_message,omitempty"`
	ImageTag      string     `json:"image_tag,omitempty"`
	StartedAt     time.Time  `json:"started_at"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
	ErrorMessage  *string    `json:"error_message,omitempty"`
	LogExcerpt    *string    `json:"log_excerpt,omitempty"`
}
