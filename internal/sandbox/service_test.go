package sandbox

import (
	"context"
	"fmt"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/hatchpad/hatchpad/internal/models"
	"github.com/hatchpad/hatchpad/internal/provider"
	"github.com/hatchpad/hatchpad/internal/store"
)

// fakeProvider is an in-memory Provider for service tests.
type fakeProvider struct {
	ptype       string
	createCalls atomic.Int32
	resumeCalls atomic.Int32
	resumeErr   error
	deleted     []string
}

func (f *fakeProvider) Name() string        { return "Fake" }
func (f *fakeProvider) Type() string        { return f.ptype }
func (f *fakeProvider) IsAvailable() bool   { return true }
func (f *fakeProvider) Capabilities() provider.Capabilities {
	return provider.Capabilities{}
}

func (f *fakeProvider) CreateWorkspace(ctx context.Context, opts provider.CreateOptions) (*provider.Workspace, error) {
	n := f.createCalls.Add(1)
	return &provider.Workspace{
		ID:           fmt.Sprintf("ws-%d", n),
		Status:       provider.WorkspaceStatusRunning,
		PreviewURL:   "https://preview.fake.dev",
		ProviderType: f.ptype,
	}, nil
}

func (f *fakeProvider) GetWorkspace(ctx context.Context, id string) (*provider.Workspace, error) {
	return &provider.Workspace{ID: id, Status: provider.WorkspaceStatusRunning, ProviderType: f.ptype}, nil
}

func (f *fakeProvider) ResumeWorkspace(ctx context.Context, id string) (*provider.Workspace, error) {
	f.resumeCalls.Add(1)
	if f.resumeErr != nil {
		return nil, f.resumeErr
	}
	return &provider.Workspace{ID: id, Status: provider.WorkspaceStatusRunning, ProviderType: f.ptype}, nil
}

func (f *fakeProvider) PauseWorkspace(ctx context.Context, id string) error { return nil }

func (f *fakeProvider) DeleteWorkspace(ctx context.Context, id string) error {
	f.deleted = append(f.deleted, id)
	return nil
}

func (f *fakeProvider) ExecuteCommand(ctx context.Context, id, cmd string, opts provider.ExecOptions) (*provider.ExecResult, error) {
	return &provider.ExecResult{}, nil
}

func (f *fakeProvider) RunCode(ctx context.Context, id, code string, opts provider.RunOptions) (<-chan provider.Event, error) {
	ch := make(chan provider.Event, 1)
	ch <- provider.Event{Type: provider.EventDone}
	close(ch)
	return ch, nil
}

func (f *fakeProvider) StartDevServer(ctx context.Context, id string, opts provider.DevServerOptions) (string, error) {
	return "https://preview.fake.dev", nil
}

func (f *fakeProvider) GetPreviewURL(ctx context.Context, id string, port int) (string, error) {
	return "https://preview.fake.dev", nil
}

func (f *fakeProvider) ReadFile(ctx context.Context, id, path string) ([]byte, error) { return nil, nil }
func (f *fakeProvider) WriteFile(ctx context.Context, id, path string, content []byte) error {
	return nil
}
func (f *fakeProvider) ListFiles(ctx context.Context, id, path string) ([]provider.FileInfo, error) {
	return nil, nil
}

func newTestService(t *testing.T, p provider.Provider) (*Service, *store.SQLiteStore) {
	t.Helper()
	s, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	require.NoError(t, s.Migrate(context.Background()))
	t.Cleanup(func() { s.Close() })

	reg := provider.NewRegistry()
	reg.Register(p, true)

	return NewService(s, reg, nil, nil), s
}

func seedSession(t *testing.T, s store.Store) *models.Session {
	t.Helper()
	ctx := context.Background()
	repo := &models.Repository{Name: "demo", URL: "https://github.com/acme/demo"}
	require.NoError(t, s.CreateRepository(ctx, repo))
	sess := &models.Session{RepositoryID: repo.ID, Name: "add dark mode"}
	require.NoError(t, s.CreateSession(ctx, sess))
	return sess
}

func TestEnsureSandbox_CreatesOnColdPath(t *testing.T) {
	fake := &fakeProvider{ptype: "fake"}
	svc, s := newTestService(t, fake)
	ctx := context.Background()
	sess := seedSession(t, s)

	sb, created, err := svc.EnsureSandbox(ctx, sess.ID)
	require.NoError(t, err)
	assert.True(t, created, "cold path must flag created")
	assert.Equal(t, "ws-1", sb.ProviderWorkspaceID)
	assert.Equal(t, int32(1), fake.createCalls.Load())

	got, err := s.GetSession(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, sb.ID, got.SandboxID)
}

func TestEnsureSandbox_ReturnsLinkedSandboxWithoutNetwork(t *testing.T) {
	fake := &fakeProvider{ptype: "fake"}
	svc, s := newTestService(t, fake)
	ctx := context.Background()
	sess := seedSession(t, s)

	first, created, err := svc.EnsureSandbox(ctx, sess.ID)
	require.NoError(t, err)
	require.True(t, created)

	second, created, err := svc.EnsureSandbox(ctx, sess.ID)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, int32(1), fake.createCalls.Load(), "no second workspace creation")
}

func TestEnsureSandbox_ReusesRepositorySandboxAcrossSessions(t *testing.T) {
	fake := &fakeProvider{ptype: "fake"}
	svc, s := newTestService(t, fake)
	ctx := context.Background()
	sess := seedSession(t, s)

	first, _, err := svc.EnsureSandbox(ctx, sess.ID)
	require.NoError(t, err)

	other := &models.Session{RepositoryID: sess.RepositoryID, Name: "fix header"}
	require.NoError(t, s.CreateSession(ctx, other))

	sb, created, err := svc.EnsureSandbox(ctx, other.ID)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, sb.ID, "repository sandbox is shared across sessions")

	got, err := s.GetSession(ctx, other.ID)
	require.NoError(t, err)
	assert.Equal(t, first.ID, got.SandboxID)
}

func TestEnsureSandbox_ConcurrentCallsConverge(t *testing.T) {
	fake := &fakeProvider{ptype: "fake"}
	svc, s := newTestService(t, fake)
	ctx := context.Background()
	sess := seedSession(t, s)

	ids := make([]string, 2)
	var g errgroup.Group
	for i := 0; i < 2; i++ {
		i := i
		g.Go(func() error {
			sb, _, err := svc.EnsureSandbox(ctx, sess.ID)
			if err != nil {
				return err
			}
			ids[i] = sb.ID
			return nil
		})
	}
	require.NoError(t, g.Wait())
	assert.Equal(t, ids[0], ids[1], "both calls must resolve to the same sandbox")

	sb, err := s.GetSandboxByRepository(ctx, sess.RepositoryID)
	require.NoError(t, err)
	assert.Equal(t, ids[0], sb.ID)
}

func TestEnsureRunning_AlwaysResumes(t *testing.T) {
	fake := &fakeProvider{ptype: "fake"}
	svc, s := newTestService(t, fake)
	ctx := context.Background()
	sess := seedSession(t, s)

	sb, _, err := svc.EnsureSandbox(ctx, sess.ID)
	require.NoError(t, err)

	_, err = svc.EnsureRunning(ctx, sb)
	require.NoError(t, err)
	assert.Equal(t, int32(1), fake.resumeCalls.Load(), "resume is called without status probing")

	got, err := s.GetSandbox(ctx, sb.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SandboxStatusRunning, got.Status)
}

func TestStartDevServer_PersistsPreviewURL(t *testing.T) {
	fake := &fakeProvider{ptype: "fake"}
	svc, s := newTestService(t, fake)
	ctx := context.Background()
	sess := seedSession(t, s)

	sb, _, err := svc.EnsureSandbox(ctx, sess.ID)
	require.NoError(t, err)

	url, err := svc.StartDevServer(ctx, sb, "", 0)
	require.NoError(t, err)
	assert.Equal(t, "https://preview.fake.dev", url)

	got, err := s.GetSandbox(ctx, sb.ID)
	require.NoError(t, err)
	assert.Equal(t, url, got.PreviewURL)
	assert.Equal(t, models.SandboxStatusRunning, got.Status)
}

func TestEnsureRunning_EphemeralBecomesSandboxExpired(t *testing.T) {
	fake := &fakeProvider{ptype: "fake", resumeErr: fmt.Errorf("resume: %w", provider.ErrUnsupported)}
	svc, s := newTestService(t, fake)
	ctx := context.Background()
	sess := seedSession(t, s)

	sb, _, err := svc.EnsureSandbox(ctx, sess.ID)
	require.NoError(t, err)

	_, err = svc.EnsureRunning(ctx, sb)
	assert.ErrorIs(t, err, ErrSandboxExpired)
}
