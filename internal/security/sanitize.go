// Package security validates every user-supplied value before it reaches a
// subprocess or a filesystem path. Deployments are triggered by webhooks,
// so repository URLs, branches, and project names are all untrusted input.
package security

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

var (
	// Safe patterns for validation
	repoURLPattern = regexp.MustCompile(`^https://github\.com/[a-zA-Z0-9_-]+/[a-zA-Z0-9_.-]+(?:\.git)?$`)
	branchPattern  = regexp.MustCompile(`^[a-zA-Z0-9/_.-]+$`)
	projectPattern = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)
)

// ValidateRepositoryURL ensures a URL is safe for git clone operations.
// Only HTTPS GitHub URLs are allowed to prevent command injection.
func ValidateRepositoryURL(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}

	if u.Scheme != "https" || u.Host != "github.com" {
		return fmt.Errorf("only GitHub HTTPS URLs allowed, got %s://%s", u.Scheme, u.Host)
	}

	if !repoURLPattern.MatchString(rawURL) {
		return fmt.Errorf("URL contains invalid characters or format")
	}

	return nil
}

// ValidateBranchName ensures a branch name is safe for git operations.
func ValidateBranchName(branch string) error {
	if branch == "" {
		return fmt.Errorf("branch name cannot be empty")
	}
	if strings.HasPrefix(branch, "-") {
		return fmt.Errorf("branch name cannot start with '-'")
	}
	if !branchPattern.MatchString(branch) {
		return fmt.Errorf("branch name contains invalid characters")
	}
	return nil
}

// ValidateProjectName ensures a project name is safe for use in paths,
// image tags, and URLs.
func ValidateProjectName(name string) error {
	if name == "" {
		return fmt.Errorf("project name cannot be empty")
	}
	if strings.HasPrefix(name, "-") || strings.HasPrefix(name, ".") {
		return fmt.Errorf("project name cannot start with '-' or '.'")
	}
	if !projectPattern.MatchString(name) {
		return fmt.Errorf("project name contains invalid characters (only a-z, A-Z, 0-9, _, - allowed)")
	}
	return nil
}

// RepositorySlug extracts the "owner/name" part of a validated GitHub URL.
func RepositorySlug(rawURL string) (owner, name string, err error) {
	if err := ValidateRepositoryURL(rawURL); err != nil {
		return "", "", err
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", "", fmt.Errorf("invalid URL: %w", err)
	}
	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	if len(parts) != 2 {
		return "", "", fmt.Errorf("URL path is not owner/name")
	}
	return parts[0], strings.TrimSuffix(parts[1], ".git"), nil
}
