// Package gitops implements the repository operations contract against a
// real git installation. URLs and branch names are validated before any
// value reaches the git CLI.
package gitops

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ramparte/deployotron/internal/ops"
	"github.com/ramparte/deployotron/internal/security"
	"github.com/ramparte/deployotron/pkg/cmdutil"
)

// DefaultCloneTimeout bounds a single clone. Shallow clones of app repos
// finish well inside this.
const DefaultCloneTimeout = 120 * time.Second

// Ops is the real implementation of ops.RepositoryOperations.
type Ops struct {
	log          *slog.Logger
	cloneTimeout time.Duration
	// redact holds secrets that must never appear in logs or error
	// messages. git echoes remote URLs and credential helper output on
	// failure, so clone output is scrubbed before it leaves this package.
	redact []string
}

// New builds a git-backed repository backend.
func New(log *slog.Logger) *Ops {
	if log == nil {
		log = slog.Default()
	}
	o := &Ops{log: log, cloneTimeout: DefaultCloneTimeout}
	if token := os.Getenv("GITHUB_TOKEN"); token != "" {
		o.redact = append(o.redact, token)
	}
	return o
}

// sanitize scrubs known secrets from subprocess output.
func (o *Ops) sanitize(output []byte) string {
	return strings.TrimSpace(string(cmdutil.SanitizeOutput(output, o.redact)))
}

// Clone performs a shallow clone of url@branch into a fresh temp
// directory and returns its path.
func (o *Ops) Clone(ctx context.Context, url, branch string) (string, error) {
	if err := security.ValidateRepositoryURL(url); err != nil {
		return "", &ops.CloneError{URL: url, Branch: branch, Err: err}
	}
	if err := security.ValidateBranchName(branch); err != nil {
		return "", &ops.CloneError{URL: url, Branch: branch, Err: err}
	}

	dir, err := os.MkdirTemp("", "deployotron-checkout-*")
	if err != nil {
		return "", &ops.CloneError{URL: url, Branch: branch, Err: err}
	}

	argv := []string{"git", "clone", "--depth", "1", "--branch", branch, url, dir}
	o.log.Debug("running git", "command", cmdutil.FormatCommand(argv))
	result, err := cmdutil.Run(ctx, cmdutil.ExecOptions{
		Timeout: o.cloneTimeout,
		// Never let git prompt for credentials on a server.
		Env:            append(os.Environ(), "GIT_TERMINAL_PROMPT=0"),
		CombinedOutput: true,
	}, argv)
	if err != nil {
		os.RemoveAll(dir)
		output := ""
		if result != nil {
			output = o.sanitize(result.Output)
		}
		return "", &ops.CloneError{URL: url, Branch: branch, Err: fmt.Errorf("%w: %s", err, output)}
	}

	o.log.Info("repository cloned", "url", url, "branch", branch, "path", dir)
	return dir, nil
}

// DetectFramework runs the shared marker-file detector.
func (o *Ops) DetectFramework(path string) ops.Framework {
	return ops.DetectFrameworkAt(path)
}

// CommitInfo returns the sha and subject of ref (HEAD when empty).
func (o *Ops) CommitInfo(ctx context.Context, path, ref string) (string, string, error) {
	if info, err := os.Stat(filepath.Join(path, ".git")); err != nil || !info.IsDir() {
		return "", "", fmt.Errorf("%s: %w", path, ops.ErrNotARepository)
	}

	if ref == "" {
		ref = "HEAD"
	}

	revParse := []string{"git", "rev-parse", ref}
	o.log.Debug("running git", "command", cmdutil.FormatCommand(revParse))
	shaOut, err := cmdutil.RunWithTimeout(ctx, path, 10*time.Second, revParse)
	if err != nil {
		return "", "", fmt.Errorf("resolve %s: %w", ref, err)
	}
	sha := strings.TrimSpace(string(shaOut))

	gitLog := []string{"git", "log", "-1", "--format=%s", sha}
	o.log.Debug("running git", "command", cmdutil.FormatCommand(gitLog))
	msgOut, err := cmdutil.RunWithTimeout(ctx, path, 10*time.Second, gitLog)
	if err != nil {
		return "", "", fmt.Errorf("read commit message for %s: %w", sha, err)
	}

	return sha, strings.TrimSpace(string(msgOut)), nil
}

// Cleanup removes a checkout. Errors are logged, never returned: a failed
// cleanup must not turn a finished deployment into a failure.
func (o *Ops) Cleanup(path string) {
	if path == "" {
		return
	}
	if err := os.RemoveAll(path); err != nil {
		o.log.Warn("checkout cleanup failed", "path", path, "error", err)
	}
}
