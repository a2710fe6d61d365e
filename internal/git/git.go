// Package git holds the small amount of git knowledge hatchpad needs:
// parsing repository URLs and resolving clone credentials per git provider.
// Cloning itself happens inside the sandbox vendor, not on this host.
package git

import (
	"fmt"
	"strings"
)

// ExtractOwnerRepo parses a git remote URL and returns owner/repo.
func ExtractOwnerRepo(remoteURL string) (owner, repo string, err error) {
	// Handle SSH: git@github.com:owner/repo.git
	if strings.HasPrefix(remoteURL, "git@") {
		parts := strings.SplitN(remoteURL, ":", 2)
		if len(parts) != 2 {
			return "", "", fmt.Errorf("cannot parse SSH remote: %s", remoteURL)
		}
		path := strings.TrimSuffix(parts[1], ".git")
		segments := strings.SplitN(path, "/", 2)
		if len(segments) != 2 {
			return "", "", fmt.Errorf("cannot parse owner/repo from: %s", remoteURL)
		}
		return segments[0], segments[1], nil
	}

	// Handle HTTPS: https://host/owner/repo.git
	trimmed := strings.TrimSuffix(remoteURL, ".git")
	if idx := strings.Index(trimmed, "://"); idx >= 0 {
		trimmed = trimmed[idx+3:]
	}
	segments := strings.SplitN(trimmed, "/", 3)
	if len(segments) != 3 || segments[1] == "" || segments[2] == "" {
		return "", "", fmt.Errorf("cannot parse owner/repo from: %s", remoteURL)
	}
	return segments[1], segments[2], nil
}

// CredentialResolver resolves a clone token for a repository's git provider.
// UserID is passed through so a future implementation can look up per-user
// installation tokens; the static resolver ignores it.
type CredentialResolver interface {
	Token(gitProvider, userID string) (string, error)
}

// StaticResolver serves tokens from configuration, keyed by git provider
// ("github", "gitlab", ...).
type StaticResolver struct {
	tokens map[string]string
}

// NewStaticResolver creates a resolver over a provider→token map.
func NewStaticResolver(tokens map[string]string) *StaticResolver {
	return &StaticResolver{tokens: tokens}
}

// Token returns the configured token for the provider, or "" without error
// when none is configured (public repositories clone fine without one).
func (r *StaticResolver) Token(gitProvider, userID string) (string, error) {
	return r.tokens[gitProvider], nil
}
