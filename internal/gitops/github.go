package gitops

import (
	"context"
	"fmt"
	"net/http"

	"github.com/google/go-github/v57/github"
	"golang.org/x/oauth2"

	"github.com/ramparte/deployotron/internal/security"
)

// NewGitHubClient builds a GitHub API client, authenticated when a token
// is supplied.
func NewGitHubClient(ctx context.Context, token string) *github.Client {
	var hc *http.Client
	if token != "" {
		ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
		hc = oauth2.NewClient(ctx, ts)
	}
	return github.NewClient(hc)
}

// ResolveHead returns the head commit sha and message of a branch via the
// GitHub API, without cloning.
func ResolveHead(ctx context.Context, client *github.Client, repoURL, branch string) (sha, message string, err error) {
	owner, name, err := security.RepositorySlug(repoURL)
	if err != nil {
		return "", "", err
	}
	if err := security.ValidateBranchName(branch); err != nil {
		return "", "", err
	}

	b, _, err := client.Repositories.GetBranch(ctx, owner, name, branch, 1)
	if err != nil {
		return "", "", fmt.Errorf("get branch %s of %s/%s: %w", branch, owner, name, err)
	}

	commit := b.GetCommit()
	return commit.GetSHA(), commit.GetCommit().GetMessage(), nil
}

// EnsurePushWebhook creates a push webhook on the repository pointing at
// hookURL, unless one already exists for that URL.
func EnsurePushWebhook(ctx context.Context, client *github.Client, repoURL, hookURL, secret string) error {
	owner, name, err := security.RepositorySlug(repoURL)
	if err != nil {
		return err
	}

	hooks, _, err := client.Repositories.ListHooks(ctx, owner, name, nil)
	if err != nil {
		return fmt.Errorf("listing webhooks for %s/%s: %w", owner, name, err)
	}
	for _, hook := range hooks {
		if hook.Config != nil {
			if url, ok := hook.Config["url"].(string); ok && url == hookURL {
				return nil
			}
		}
	}

	active := true
	_, _, err = client.Repositories.CreateHook(ctx, owner, name, &github.Hook{
		Events: []string{"push"},
		Active: &active,
		Config: map[string]interface{}{
			"url":          hookURL,
			"content_type": "json",
			"secret":       secret,
			"insecure_ssl": "0",
		},
	})
	if err != nil {
		return fmt.Errorf("creating webhook for %s/%s: %w", owner, name, err)
	}
	return nil
}
