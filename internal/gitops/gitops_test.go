package gitops

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ramparte/deployotron/internal/ops"
)

func requireGit(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not installed")
	}
}

// initRepo creates a local git repository with a single commit.
func initRepo(t *testing.T) string {
	t.Helper()
	requireGit(t)

	dir := t.TempDir()
	run := func(args ...string) {
		cmd := exec.Command("git", args...)
		cmd.Dir = dir
		cmd.Env = append(os.Environ(),
			"GIT_AUTHOR_NAME=test", "GIT_AUTHOR_EMAIL=test@example.com",
			"GIT_COMMITTER_NAME=test", "GIT_COMMITTER_EMAIL=test@example.com",
		)
		if out, err := cmd.CombinedOutput(); err != nil {
			t.Fatalf("git %v: %v\n%s", args, err, out)
		}
	}

	run("init")
	if err := os.WriteFile(filepath.Join(dir, "go.mod"), []byte("module example.com/app\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	run("add", ".")
	run("commit", "-m", "initial commit")
	return dir
}

func TestCloneRejectsUnsafeInput(t *testing.T) {
	o := New(nil)
	ctx := context.Background()

	testCases := []struct {
		name   string
		url    string
		branch string
	}{
		{"non-github url", "https://evil.example.com/acme/widget", "main"},
		{"ssh url", "git@github.com:acme/widget.git", "main"},
		{"dash branch", "https://github.com/acme/widget", "-upload-pack=/bin/sh"},
		{"empty branch", "https://github.com/acme/widget", ""},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := o.Clone(ctx, tc.url, tc.branch)
			var cloneErr *ops.CloneError
			if !errors.As(err, &cloneErr) {
				t.Errorf("expected *ops.CloneError, got %v", err)
			}
		})
	}
}

func TestSanitizeRedactsKnownSecrets(t *testing.T) {
	t.Setenv("GITHUB_TOKEN", "ghp_supersecret123")
	o := New(nil)

	out := o.sanitize([]byte("fatal: authentication failed for ghp_supersecret123@github.com\n"))
	if strings.Contains(out, "ghp_supersecret123") {
		t.Errorf("sanitized output still contains the token: %q", out)
	}
	if !strings.Contains(out, "***REDACTED***") {
		t.Errorf("sanitized output carries no redaction marker: %q", out)
	}
}

func TestSanitizeWithoutSecretsIsPassthrough(t *testing.T) {
	t.Setenv("GITHUB_TOKEN", "")
	o := New(nil)

	if got := o.sanitize([]byte("  fatal: repository not found\n")); got != "fatal: repository not found" {
		t.Errorf("sanitize = %q", got)
	}
}

func TestCommitInfo(t *testing.T) {
	repo := initRepo(t)
	o := New(nil)

	sha, message, err := o.CommitInfo(context.Background(), repo, "")
	if err != nil {
		t.Fatalf("CommitInfo error: %v", err)
	}
	if len(sha) != 40 {
		t.Errorf("sha = %q, expected 40 hex chars", sha)
	}
	if message != "initial commit" {
		t.Errorf("message = %q, expected %q", message, "initial commit")
	}
}

func TestCommitInfoNotARepository(t *testing.T) {
	o := New(nil)

	_, _, err := o.CommitInfo(context.Background(), t.TempDir(), "")
	if !errors.Is(err, ops.ErrNotARepository) {
		t.Errorf("expected ErrNotARepository, got %v", err)
	}
}

func TestDetectFrameworkUsesSharedDetector(t *testing.T) {
	repo := initRepo(t)
	o := New(nil)

	if got := o.DetectFramework(repo); got != ops.FrameworkGo {
		t.Errorf("DetectFramework = %q, expected %q", got, ops.FrameworkGo)
	}
}

func TestCleanupIsBestEffort(t *testing.T) {
	o := New(nil)

	dir := t.TempDir()
	o.Cleanup(dir)
	if _, err := os.Stat(dir); !os.IsNotExist(err) {
		t.Errorf("directory still exists after cleanup")
	}

	// Must not panic or error on garbage input.
	o.Cleanup("")
	o.Cleanup("/nonexistent/checkout")
}
