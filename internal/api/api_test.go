package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/hatchpad/hatchpad/internal/backend"
	"github.com/hatchpad/hatchpad/internal/models"
	"github.com/hatchpad/hatchpad/internal/orchestrator"
	"github.com/hatchpad/hatchpad/internal/provider"
	"github.com/hatchpad/hatchpad/internal/sandbox"
	"github.com/hatchpad/hatchpad/internal/store"
)

// scriptedBackend replays one canned script per Stream call.
type scriptedBackend struct {
	scripts [][]backend.Event
}

func (b *scriptedBackend) Stream(_ context.Context, _ backend.Request) (<-chan backend.Event, error) {
	if len(b.scripts) == 0 {
		return nil, fmt.Errorf("no script queued")
	}
	script := b.scripts[0]
	b.scripts = b.scripts[1:]

	ch := make(chan backend.Event, len(script)+1)
	for _, ev := range script {
		ch <- ev
	}
	ch <- backend.Event{Type: backend.EventDone}
	close(ch)
	return ch, nil
}

type stubProvider struct{}

func (stubProvider) Name() string                            { return "stub" }
func (stubProvider) Type() string                            { return "stub" }
func (stubProvider) IsAvailable() bool                       { return true }
func (stubProvider) Capabilities() provider.Capabilities     { return provider.Capabilities{} }
func (stubProvider) PauseWorkspace(context.Context, string) error  { return nil }
func (stubProvider) DeleteWorkspace(context.Context, string) error { return nil }

func (stubProvider) CreateWorkspace(context.Context, provider.CreateOptions) (*provider.Workspace, error) {
	return &provider.Workspace{ID: "ws-1", Status: provider.WorkspaceStatusRunning, ProviderType: "stub"}, nil
}

func (stubProvider) GetWorkspace(_ context.Context, id string) (*provider.Workspace, error) {
	return &provider.Workspace{ID: id, Status: provider.WorkspaceStatusRunning, ProviderType: "stub"}, nil
}

func (stubProvider) ResumeWorkspace(_ context.Context, id string) (*provider.Workspace, error) {
	return &provider.Workspace{ID: id, Status: provider.WorkspaceStatusRunning, ProviderType: "stub"}, nil
}

func (stubProvider) ExecuteCommand(context.Context, string, string, provider.ExecOptions) (*provider.ExecResult, error) {
	return &provider.ExecResult{}, nil
}

func (stubProvider) RunCode(context.Context, string, string, provider.RunOptions) (<-chan provider.Event, error) {
	ch := make(chan provider.Event, 1)
	ch <- provider.Event{Type: provider.EventDone}
	close(ch)
	return ch, nil
}

func (stubProvider) StartDevServer(context.Context, string, provider.DevServerOptions) (string, error) {
	return "https://3000-ws-1.stub.dev", nil
}
func (stubProvider) GetPreviewURL(context.Context, string, int) (string, error) { return "", nil }
func (stubProvider) ReadFile(context.Context, string, string) ([]byte, error)   { return nil, nil }
func (stubProvider) WriteFile(context.Context, string, string, []byte) error    { return nil }
func (stubProvider) ListFiles(context.Context, string, string) ([]provider.FileInfo, error) {
	return nil, nil
}

func setupTestServer(t *testing.T, b backend.Backend) (*Server, store.Store) {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")

	s, err := store.NewSQLiteStore(dbPath)
	require.NoError(t, err)
	require.NoError(t, s.Migrate(context.Background()))
	t.Cleanup(func() { s.Close() })

	reg := provider.NewRegistry()
	reg.Register(stubProvider{}, true)
	svc := sandbox.NewService(s, reg, nil, zap.NewNop())
	orch := orchestrator.New(s, svc, b, nil, zap.NewNop())

	return NewServer(s, orch, svc, reg, zap.NewNop()), s
}

func seedRepository(t *testing.T, s store.Store) *models.Repository {
	t.Helper()
	repo := &models.Repository{
		Name:          "webapp",
		URL:           "https://github.com/acme/webapp",
		DefaultBranch: "main",
		GitProvider:   "github",
	}
	require.NoError(t, s.CreateRepository(context.Background(), repo))
	return repo
}

func TestListRepositories_Empty(t *testing.T) {
	srv, _ := setupTestServer(t, &scriptedBackend{})
	router := srv.Router()

	req := httptest.NewRequest("GET", "/api/v1/repositories", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "[]\n", w.Body.String(), "empty list is [], not null")
}

func TestRepositoryAndSessionCreate(t *testing.T) {
	srv, _ := setupTestServer(t, &scriptedBackend{})
	router := srv.Router()

	body := `{"Name":"webapp","URL":"https://github.com/acme/webapp","GitProvider":"github"}`
	req := httptest.NewRequest("POST", "/api/v1/repositories", bytes.NewBufferString(body))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusCreated, w.Code)

	var repo models.Repository
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &repo))
	assert.NotEmpty(t, repo.ID)
	assert.Equal(t, "main", repo.DefaultBranch, "default branch defaults to main")

	body = fmt.Sprintf(`{"repository_id":%q,"name":"dark mode"}`, repo.ID)
	req = httptest.NewRequest("POST", "/api/v1/sessions", bytes.NewBufferString(body))
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusCreated, w.Code)

	var sess models.Session
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &sess))
	assert.Equal(t, models.SessionStatusIdle, sess.Status)
}

func TestCreateSession_UnknownRepository(t *testing.T) {
	srv, _ := setupTestServer(t, &scriptedBackend{})
	router := srv.Router()

	req := httptest.NewRequest("POST", "/api/v1/sessions",
		bytes.NewBufferString(`{"repository_id":"nope"}`))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestPlanSession_SSE(t *testing.T) {
	planJSON := `{"type": "plan", "summary": "Add dark mode", "changes": []}`
	b := &scriptedBackend{scripts: [][]backend.Event{{
		{Type: backend.EventStdout, Content: planJSON},
		{Type: backend.EventResult, Content: planJSON},
	}}}
	srv, s := setupTestServer(t, b)
	router := srv.Router()

	repo := seedRepository(t, s)
	sess := &models.Session{RepositoryID: repo.ID, Status: models.SessionStatusIdle}
	require.NoError(t, s.CreateSession(context.Background(), sess))

	req := httptest.NewRequest("POST", "/api/v1/sessions/"+sess.ID+"/plan",
		bytes.NewBufferString(`{"request":"add dark mode"}`))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/event-stream", w.Header().Get("Content-Type"))

	// Every SSE line carries one JSON event; the stream ends with done.
	var types []string
	for _, line := range strings.Split(w.Body.String(), "\n") {
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var ev orchestrator.StreamEvent
		require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &ev))
		types = append(types, string(ev.Type))
	}
	require.NotEmpty(t, types)
	assert.Equal(t, "phase_change", types[0])
	assert.Equal(t, "done", types[len(types)-1])

	stored, err := s.GetSession(context.Background(), sess.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SessionStatusPlanReview, stored.Status)
}

func TestApproveWithoutPendingPlan(t *testing.T) {
	srv, s := setupTestServer(t, &scriptedBackend{})
	router := srv.Router()

	repo := seedRepository(t, s)
	sess := &models.Session{RepositoryID: repo.ID, Status: models.SessionStatusIdle}
	require.NoError(t, s.CreateSession(context.Background(), sess))

	req := httptest.NewRequest("POST", "/api/v1/sessions/"+sess.ID+"/approve", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestStartDevServer_ReturnsAndPersistsPreviewURL(t *testing.T) {
	srv, s := setupTestServer(t, &scriptedBackend{})
	router := srv.Router()

	repo := seedRepository(t, s)
	sess := &models.Session{RepositoryID: repo.ID, Status: models.SessionStatusReady}
	require.NoError(t, s.CreateSession(context.Background(), sess))
	sb := &models.Sandbox{
		RepositoryID:        repo.ID,
		ProviderWorkspaceID: "ws-1",
		ProviderType:        "stub",
		Status:              models.SandboxStatusRunning,
	}
	require.NoError(t, s.CreateSandbox(context.Background(), sb))
	require.NoError(t, s.LinkSessionSandbox(context.Background(), sess.ID, sb.ID))

	req := httptest.NewRequest("POST", "/api/v1/sessions/"+sess.ID+"/sandbox/dev-server", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var out map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	assert.Equal(t, "https://3000-ws-1.stub.dev", out["preview_url"])

	got, err := s.GetSandbox(context.Background(), sb.ID)
	require.NoError(t, err)
	assert.Equal(t, "https://3000-ws-1.stub.dev", got.PreviewURL)
}

func TestListProviders(t *testing.T) {
	srv, _ := setupTestServer(t, &scriptedBackend{})
	router := srv.Router()

	req := httptest.NewRequest("GET", "/api/v1/providers", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var infos []provider.Info
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &infos))
	require.Len(t, infos, 1)
	assert.Equal(t, "stub", infos[0].Type)
	assert.True(t, infos[0].Default)
}
