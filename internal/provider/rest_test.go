package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeVendor simulates the vendor HTTP API for provider tests.
type fakeVendor struct {
	mux *http.ServeMux

	deleteCalls   atomic.Int32
	contextCalls  atomic.Int32
	bootstrapFail bool
	runLines      []string
	resumeStatus  int
	resumeBody    string
}

func newFakeVendor() *fakeVendor {
	v := &fakeVendor{mux: http.NewServeMux(), resumeStatus: http.StatusOK}

	v.mux.HandleFunc("POST /v1/workspaces", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"id": "ws-1", "status": "running"})
	})
	v.mux.HandleFunc("GET /v1/workspaces/{id}", func(w http.ResponseWriter, r *http.Request) {
		if r.PathValue("id") != "ws-1" {
			http.NotFound(w, r)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"id": "ws-1", "status": "running", "preview_url": "https://3000-ws-1.vendor.dev"})
	})
	v.mux.HandleFunc("DELETE /v1/workspaces/{id}", func(w http.ResponseWriter, r *http.Request) {
		v.deleteCalls.Add(1)
		if r.PathValue("id") != "ws-1" {
			http.NotFound(w, r)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})
	v.mux.HandleFunc("POST /v1/workspaces/{id}/resume", func(w http.ResponseWriter, r *http.Request) {
		if v.resumeStatus != http.StatusOK {
			w.WriteHeader(v.resumeStatus)
			fmt.Fprint(w, v.resumeBody)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"id": r.PathValue("id"), "status": "running"})
	})
	v.mux.HandleFunc("POST /v1/workspaces/{id}/exec", func(w http.ResponseWriter, r *http.Request) {
		code := 0
		stderr := ""
		if v.bootstrapFail {
			code = 1
			stderr = "npm install blew up"
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"stdout": "", "stderr": stderr, "exit_code": code})
	})
	v.mux.HandleFunc("POST /v1/workspaces/{id}/contexts", func(w http.ResponseWriter, r *http.Request) {
		n := v.contextCalls.Add(1)
		_ = json.NewEncoder(w).Encode(map[string]any{"id": fmt.Sprintf("ctx-%d", n)})
	})
	v.mux.HandleFunc("POST /v1/workspaces/{id}/run", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/x-ndjson")
		for _, line := range v.runLines {
			fmt.Fprintln(w, line)
		}
	})

	return v
}

func newTestHomestead(t *testing.T, v *fakeVendor) (*Homestead, *MemoryHandleCache) {
	t.Helper()
	srv := httptest.NewServer(v.mux)
	t.Cleanup(srv.Close)
	handles := NewMemoryHandleCache()
	return NewHomestead(srv.URL, "test-key", handles, nil), handles
}

func TestCreateWorkspace_BootstrapFailureTearsDown(t *testing.T) {
	v := newFakeVendor()
	v.bootstrapFail = true
	p, _ := newTestHomestead(t, v)

	_, err := p.CreateWorkspace(context.Background(), CreateOptions{RepoURL: "https://github.com/acme/demo"})
	require.Error(t, err)

	var perr *ProvisioningError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "bootstrap", perr.Stage)
	assert.Equal(t, int32(1), v.deleteCalls.Load(), "partial workspace must be torn down before the error propagates")
}

func TestDeleteWorkspace_UnknownIDIsNotAnError(t *testing.T) {
	v := newFakeVendor()
	p, _ := newTestHomestead(t, v)

	assert.NoError(t, p.DeleteWorkspace(context.Background(), "never-existed"))
}

func TestGetWorkspace_NotFoundSentinel(t *testing.T) {
	v := newFakeVendor()
	p, _ := newTestHomestead(t, v)

	_, err := p.GetWorkspace(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrWorkspaceNotFound)
}

func TestResumeWorkspace_AlreadyRunningIsSuccess(t *testing.T) {
	v := newFakeVendor()
	v.resumeStatus = http.StatusConflict
	v.resumeBody = `{"error":"workspace is already running"}`
	p, _ := newTestHomestead(t, v)

	ws, err := p.ResumeWorkspace(context.Background(), "ws-1")
	require.NoError(t, err)
	assert.Equal(t, WorkspaceStatusRunning, ws.Status)
}

func TestRunCode_AlwaysEndsWithDone(t *testing.T) {
	v := newFakeVendor()
	v.runLines = []string{
		`{"type":"stdout","content":"hello"}`,
		`{"type":"result","content":"ok"}`,
		`{"type":"done","content":""}`,
	}
	p, _ := newTestHomestead(t, v)

	var stdout []string
	ch, err := p.RunCode(context.Background(), "ws-1", "print('hello')", RunOptions{
		OnStdout: func(s string) { stdout = append(stdout, s) },
	})
	require.NoError(t, err)

	var types []EventType
	for ev := range ch {
		types = append(types, ev.Type)
	}
	assert.Equal(t, []EventType{EventStdout, EventResult, EventDone}, types)
	assert.Equal(t, []string{"hello"}, stdout)
}

func TestRunCode_SynthesizesDoneWhenStreamTruncated(t *testing.T) {
	v := newFakeVendor()
	v.runLines = []string{`{"type":"stdout","content":"partial"}`} // vendor died mid-stream
	p, _ := newTestHomestead(t, v)

	ch, err := p.RunCode(context.Background(), "ws-1", "x", RunOptions{})
	require.NoError(t, err)

	var types []EventType
	for ev := range ch {
		types = append(types, ev.Type)
	}
	require.NotEmpty(t, types)
	assert.Equal(t, EventDone, types[len(types)-1], "stream must terminate with done")
}

func TestRunCode_ErrorPrecedesDone(t *testing.T) {
	v := newFakeVendor()
	v.runLines = []string{
		`{"type":"error","content":"interpreter crashed"}`,
		`{"type":"done","content":""}`,
	}
	p, _ := newTestHomestead(t, v)

	ch, err := p.RunCode(context.Background(), "ws-1", "x", RunOptions{})
	require.NoError(t, err)

	var types []EventType
	for ev := range ch {
		types = append(types, ev.Type)
	}
	require.Len(t, types, 2)
	assert.Equal(t, EventError, types[0])
	assert.Equal(t, EventDone, types[1])
}

func TestRunCode_ReacquiresContextAfterCacheLoss(t *testing.T) {
	v := newFakeVendor()
	v.runLines = []string{`{"type":"done","content":""}`}
	p, handles := newTestHomestead(t, v)
	ctx := context.Background()

	ch, err := p.RunCode(ctx, "ws-1", "x", RunOptions{})
	require.NoError(t, err)
	for range ch {
	}
	assert.Equal(t, int32(1), v.contextCalls.Load())

	// Simulate a process restart losing the in-memory handle registry.
	handles.Delete("ws-1")

	ch, err = p.RunCode(ctx, "ws-1", "x", RunOptions{})
	require.NoError(t, err)
	for range ch {
	}
	assert.Equal(t, int32(2), v.contextCalls.Load(), "a fresh context must be created transparently")
}

func TestMayfly_ResumeUnsupportedPauseNoop(t *testing.T) {
	p := NewMayfly("https://api.mayfly.dev", "key", nil, nil)

	_, err := p.ResumeWorkspace(context.Background(), "ws-1")
	assert.ErrorIs(t, err, ErrUnsupported)

	// Pause never reaches the network: it is a warning no-op.
	assert.NoError(t, p.PauseWorkspace(context.Background(), "ws-1"))
}

func TestStartDevServer_TriesCandidatesInOrder(t *testing.T) {
	var attempts []string
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/workspaces/{id}/dev-server", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Command string `json:"command"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		attempts = append(attempts, req.Command)
		if !strings.HasPrefix(req.Command, "yarn") {
			http.Error(w, "command failed", http.StatusUnprocessableEntity)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"url": "https://3000-ws-1.vendor.dev"})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	p := NewHomestead(srv.URL, "key", nil, nil)
	url, err := p.StartDevServer(context.Background(), "ws-1", DevServerOptions{})
	require.NoError(t, err)
	assert.Equal(t, "https://3000-ws-1.vendor.dev", url)
	assert.Equal(t, []string{"npm run dev", "npm start", "yarn dev"}, attempts)
}

func TestStartDevServer_AllCandidatesExhausted(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/workspaces/{id}/dev-server", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "no", http.StatusUnprocessableEntity)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	p := NewHomestead(srv.URL, "key", nil, nil)
	_, err := p.StartDevServer(context.Background(), "ws-1", DevServerOptions{})
	assert.ErrorIs(t, err, ErrNoDevServer)
}
