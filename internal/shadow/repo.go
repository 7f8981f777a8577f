package shadow

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/ramparte/deployotron/internal/ops"
)

const checkoutDirName = "deployotron-shadow"

// RepoOps is the shadow implementation of ops.RepositoryOperations. Clones
// are real directories under the system temp dir populated with marker
// files, so the shared framework detector runs against the same bytes the
// real backend would see.
type RepoOps struct {
	state  *State
	inject *injector
	log    *slog.Logger
}

// NewRepoOps builds a shadow repository backend against a shared ledger.
func NewRepoOps(state *State, failureRate float64, simulateDelays bool, log *slog.Logger) *RepoOps {
	if log == nil {
		log = slog.Default()
	}
	return &RepoOps{
		state:  state,
		inject: newInjector(failureRate, simulateDelays),
		log:    log,
	}
}

// Clone synthesizes a checkout for url@branch and returns its path.
func (r *RepoOps) Clone(ctx context.Context, url, branch string) (string, error) {
	if r.inject.fault() {
		return "", &ops.CloneError{URL: url, Branch: branch, Err: ops.ErrTransient}
	}
	r.inject.pause()

	if err := ctx.Err(); err != nil {
		return "", &ops.CloneError{URL: url, Branch: branch, Err: err}
	}
	if url == "" || branch == "" {
		return "", &ops.CloneError{URL: url, Branch: branch, Err: fmt.Errorf("url and branch are required")}
	}

	dir := filepath.Join(os.TempDir(), checkoutDirName, "repo-"+uuid.NewString())
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", &ops.CloneError{URL: url, Branch: branch, Err: err}
	}
	if err := writeMarkerFiles(dir, url); err != nil {
		os.RemoveAll(dir)
		return "", &ops.CloneError{URL: url, Branch: branch, Err: err}
	}

	r.state.recordClone(dir, url+"@"+branch)
	r.log.Debug("shadow clone created", "url", url, "branch", branch, "path", dir)
	return dir, nil
}

// DetectFramework runs the shared marker-file detector.
func (r *RepoOps) DetectFramework(path string) ops.Framework {
	return ops.DetectFrameworkAt(path)
}

// CommitInfo returns a deterministic commit sha derived from the cloned
// source, so repeated runs of the same project produce the same tag.
func (r *RepoOps) CommitInfo(ctx context.Context, path, ref string) (string, string, error) {
	if r.inject.fault() {
		return "", "", fmt.Errorf("read commit info: %w", ops.ErrTransient)
	}
	r.inject.pause()

	source, ok := r.state.cloneURL(path)
	if !ok {
		if _, err := os.Stat(path); err != nil {
			return "", "", fmt.Errorf("%s: %w", path, ops.ErrNotARepository)
		}
		source = path
	}

	if ref != "" {
		return ref, "pinned ref", nil
	}

	sum := sha256.Sum256([]byte(source))
	sha := hex.EncodeToString(sum[:])[:40]
	message := fmt.Sprintf("shadow commit for %s", source)
	return sha, message, nil
}

// Cleanup removes a synthesized checkout. Paths outside the shadow
// checkout root are refused so a bad caller cannot delete arbitrary dirs.
func (r *RepoOps) Cleanup(path string) {
	root := filepath.Join(os.TempDir(), checkoutDirName)
	if !strings.HasPrefix(path, root+string(os.PathSeparator)) {
		r.log.Warn("refusing to clean up path outside shadow root", "path", path)
		return
	}
	if err := os.RemoveAll(path); err != nil {
		r.log.Warn("shadow cleanup failed", "path", path, "error", err)
		return
	}
	r.state.removeClone(path)
}

// writeMarkerFiles populates a synthetic checkout with the marker files
// the URL's keywords suggest, defaulting to a plain Node project. The
// python bucket is checked before go because "django" contains "go".
func writeMarkerFiles(dir, url string) error {
	lower := strings.ToLower(url)

	write := func(name, contents string) error {
		return os.WriteFile(filepath.Join(dir, name), []byte(contents), 0o644)
	}

	if err := write("README.md", fmt.Sprintf("# shadow checkout\n\nsynthesized from %s\n", url)); err != nil {
		return err
	}

	switch {
	case strings.Contains(lower, "next"):
		return write("package.json", packageJSON(`"next": "14.2.0", "react": "18.3.0"`))
	case strings.Contains(lower, "react"):
		return write("package.json", packageJSON(`"react": "18.3.0"`))
	case strings.Contains(lower, "vue"):
		return write("package.json", packageJSON(`"vue": "3.4.0"`))
	case strings.Contains(lower, "angular"):
		return write("package.json", packageJSON(`"@angular/core": "17.3.0"`))
	case strings.Contains(lower, "python"), strings.Contains(lower, "django"), strings.Contains(lower, "flask"):
		return write("requirements.txt", "flask==3.0.0\ngunicorn==22.0.0\n")
	case strings.Contains(lower, "ruby"), strings.Contains(lower, "rails"):
		return write("Gemfile", "source \"https://rubygems.org\"\n\ngem \"rails\"\n")
	case strings.Contains(lower, "rust"), strings.Contains(lower, "cargo"):
		return write("Cargo.toml", "[package]\nname = \"shadow-app\"\nversion = \"0.1.0\"\n")
	case strings.Contains(lower, "golang"), strings.Contains(lower, "go"):
		return write("go.mod", "module example.com/shadow-app\n\ngo 1.24\n")
	default:
		return write("package.json", packageJSON(`"express": "4.19.0"`))
	}
}

func packageJSON(deps string) string {
	return fmt.Sprintf("{\n  \"name\": \"shadow-app\",\n  \"version\": \"1.0.0\",\n  \"dependencies\": { %s }\n}\n", deps)
}
