// Package sandbox maps logical work sessions onto concrete remote
// workspaces. It owns the session/repository → sandbox mapping; the
// provider package owns the workspaces themselves.
package sandbox

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/hatchpad/hatchpad/internal/git"
	"github.com/hatchpad/hatchpad/internal/models"
	"github.com/hatchpad/hatchpad/internal/provider"
	"github.com/hatchpad/hatchpad/internal/store"
)

// ErrSandboxExpired is the user-facing error for a workspace that an
// ephemeral provider can no longer bring back. The remedy is a new session,
// not a retry.
var ErrSandboxExpired = errors.New("sandbox has expired; start a new session to continue")

// Service implements get-or-create and keep-running semantics for sandboxes.
type Service struct {
	store store.Store
	reg   *provider.Registry
	creds git.CredentialResolver
	log   *zap.Logger
}

// NewService creates a sandbox service.
func NewService(s store.Store, reg *provider.Registry, creds git.CredentialResolver, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{store: s, reg: reg, creds: creds, log: log}
}

// EnsureSandbox resolves a sandbox for the session, in priority order:
//  1. the sandbox the session already references (no network calls),
//  2. any existing sandbox of the session's repository, linked in,
//  3. a freshly created remote workspace, persisted and linked.
//
// created is true only for case 3, so callers know a cold bootstrap just
// happened.
func (s *Service) EnsureSandbox(ctx context.Context, sessionID string) (sb *models.Sandbox, created bool, err error) {
	sess, err := s.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, false, err
	}

	// 1. Session already has a provisioned sandbox.
	if sess.SandboxID != "" {
		existing, err := s.store.GetSandbox(ctx, sess.SandboxID)
		if err == nil && existing.ProviderWorkspaceID != "" {
			return existing, false, nil
		}
		if err != nil && !store.IsNotFound(err) {
			return nil, false, err
		}
	}

	// 2. The repository already has a sandbox; repositories share one
	// sandbox across sessions.
	existing, err := s.store.GetSandboxByRepository(ctx, sess.RepositoryID)
	if err == nil {
		if lerr := s.store.LinkSessionSandbox(ctx, sess.ID, existing.ID); lerr != nil {
			return nil, false, lerr
		}
		return existing, false, nil
	}
	if !store.IsNotFound(err) {
		return nil, false, err
	}

	// 3. Cold path: create a remote workspace and persist the record.
	return s.createSandbox(ctx, sess)
}

func (s *Service) createSandbox(ctx context.Context, sess *models.Session) (*models.Sandbox, bool, error) {
	repo, err := s.store.GetRepository(ctx, sess.RepositoryID)
	if err != nil {
		return nil, false, err
	}

	p, err := s.reg.Default()
	if err != nil {
		return nil, false, err
	}

	var token string
	if sess.CreatedByID != "" && s.creds != nil {
		token, err = s.creds.Token(repo.GitProvider, sess.CreatedByID)
		if err != nil {
			return nil, false, fmt.Errorf("resolve git credential: %w", err)
		}
	}

	branch := sess.BranchName
	if branch == "" {
		branch = repo.DefaultBranch
	}

	ws, err := p.CreateWorkspace(ctx, provider.CreateOptions{
		RepoURL:  repo.URL,
		Branch:   branch,
		GitToken: token,
		Timeout:  10 * time.Minute,
	})
	if err != nil {
		return nil, false, err
	}

	sb := &models.Sandbox{
		RepositoryID:        repo.ID,
		ProviderWorkspaceID: ws.ID,
		ProviderType:        p.Type(),
		Status:              models.SandboxStatusRunning,
		PreviewURL:          ws.PreviewURL,
		LastActiveAt:        time.Now().UTC(),
	}
	if err := s.store.CreateSandbox(ctx, sb); err != nil {
		// Another ensure call won the race to create the repository's
		// sandbox; drop ours and use theirs.
		if existing, gerr := s.store.GetSandboxByRepository(ctx, repo.ID); gerr == nil {
			s.log.Info("concurrent sandbox create, discarding duplicate workspace",
				zap.String("repository", repo.ID),
				zap.String("workspace", ws.ID))
			if derr := p.DeleteWorkspace(ctx, ws.ID); derr != nil {
				s.log.Warn("delete duplicate workspace", zap.Error(derr))
			}
			if lerr := s.store.LinkSessionSandbox(ctx, sess.ID, existing.ID); lerr != nil {
				return nil, false, lerr
			}
			return existing, false, nil
		}
		return nil, false, err
	}

	if err := s.store.LinkSessionSandbox(ctx, sess.ID, sb.ID); err != nil {
		return nil, false, err
	}

	s.log.Info("sandbox created",
		zap.String("session", sess.ID),
		zap.String("sandbox", sb.ID),
		zap.String("provider", p.Type()),
		zap.String("workspace", ws.ID))
	return sb, true, nil
}

// EnsureRunning resumes the sandbox's workspace unconditionally. Probing
// status before resuming is unsafe for paused workspaces on some vendors,
// so resume is always called and "already running" counts as success. An
// ephemeral provider's ErrUnsupported becomes ErrSandboxExpired.
func (s *Service) EnsureRunning(ctx context.Context, sb *models.Sandbox) (*provider.Workspace, error) {
	p, err := s.reg.Get(sb.ProviderType)
	if err != nil {
		return nil, err
	}

	ws, err := p.ResumeWorkspace(ctx, sb.ProviderWorkspaceID)
	if err != nil {
		if errors.Is(err, provider.ErrUnsupported) || errors.Is(err, provider.ErrWorkspaceNotFound) {
			return nil, fmt.Errorf("workspace %s: %w", sb.ProviderWorkspaceID, ErrSandboxExpired)
		}
		return nil, err
	}

	sb.Status = models.SandboxStatusRunning
	sb.LastActiveAt = time.Now().UTC()
	if ws.PreviewURL != "" {
		sb.PreviewURL = ws.PreviewURL
	}
	if err := s.store.UpdateSandbox(ctx, sb); err != nil {
		return nil, err
	}
	return ws, nil
}

// StartDevServer starts the workspace's dev server and records the preview
// URL on the sandbox record. An empty command lets the provider walk its
// default candidates.
func (s *Service) StartDevServer(ctx context.Context, sb *models.Sandbox, command string, port int) (string, error) {
	p, err := s.reg.Get(sb.ProviderType)
	if err != nil {
		return "", err
	}
	url, err := p.StartDevServer(ctx, sb.ProviderWorkspaceID, provider.DevServerOptions{Command: command, Port: port})
	if err != nil {
		return "", err
	}

	sb.PreviewURL = url
	sb.Status = models.SandboxStatusRunning
	sb.LastActiveAt = time.Now().UTC()
	if err := s.store.UpdateSandbox(ctx, sb); err != nil {
		return "", err
	}
	s.log.Info("dev server started",
		zap.String("sandbox", sb.ID),
		zap.String("url", url))
	return url, nil
}

// Pause pauses the sandbox's workspace best-effort and records the status.
func (s *Service) Pause(ctx context.Context, sb *models.Sandbox) error {
	p, err := s.reg.Get(sb.ProviderType)
	if err != nil {
		return err
	}
	if err := p.PauseWorkspace(ctx, sb.ProviderWorkspaceID); err != nil {
		return err
	}
	sb.Status = models.SandboxStatusPaused
	return s.store.UpdateSandbox(ctx, sb)
}

// Delete removes the remote workspace and marks the record stopped. The
// sandbox record itself is never deleted implicitly.
func (s *Service) Delete(ctx context.Context, sb *models.Sandbox) error {
	p, err := s.reg.Get(sb.ProviderType)
	if err != nil {
		return err
	}
	if err := p.DeleteWorkspace(ctx, sb.ProviderWorkspaceID); err != nil {
		return err
	}
	sb.Status = models.SandboxStatusStopped
	return s.store.UpdateSandbox(ctx, sb)
}

// Provider returns the provider instance backing the sandbox.
func (s *Service) Provider(sb *models.Sandbox) (provider.Provider, error) {
	return s.reg.Get(sb.ProviderType)
}
