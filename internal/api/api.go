// Package api exposes hatchpad over HTTP for the web UI. Streaming phases
// (plan, build, message) are served as SSE; everything else is plain JSON.
package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/hatchpad/hatchpad/internal/models"
	"github.com/hatchpad/hatchpad/internal/orchestrator"
	"github.com/hatchpad/hatchpad/internal/provider"
	"github.com/hatchpad/hatchpad/internal/sandbox"
	"github.com/hatchpad/hatchpad/internal/store"
)

// Server provides the REST + SSE API handlers.
type Server struct {
	store     store.Store
	orch      *orchestrator.Orchestrator
	sandboxes *sandbox.Service
	registry  *provider.Registry
	log       *zap.Logger
}

// NewServer creates a new API server.
func NewServer(s store.Store, orch *orchestrator.Orchestrator, sandboxes *sandbox.Service, reg *provider.Registry, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	return &Server{store: s, orch: orch, sandboxes: sandboxes, registry: reg, log: log}
}

// Router returns an http.Handler for the API routes.
func (s *Server) Router() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/v1/repositories", s.listRepositories)
	mux.HandleFunc("POST /api/v1/repositories", s.createRepository)
	mux.HandleFunc("GET /api/v1/repositories/{id}", s.getRepository)

	mux.HandleFunc("GET /api/v1/sessions", s.listSessions)
	mux.HandleFunc("POST /api/v1/sessions", s.createSession)
	mux.HandleFunc("GET /api/v1/sessions/{id}", s.getSession)
	mux.HandleFunc("GET /api/v1/sessions/{id}/messages", s.listMessages)

	mux.HandleFunc("POST /api/v1/sessions/{id}/plan", s.planSession)
	mux.HandleFunc("POST /api/v1/sessions/{id}/approve", s.approvePlan)
	mux.HandleFunc("POST /api/v1/sessions/{id}/reject", s.rejectPlan)
	mux.HandleFunc("POST /api/v1/sessions/{id}/build", s.buildSession)
	mux.HandleFunc("POST /api/v1/sessions/{id}/message", s.messageSession)

	mux.HandleFunc("GET /api/v1/sessions/{id}/checkpoints", s.listCheckpoints)
	mux.HandleFunc("POST /api/v1/sessions/{id}/checkpoints", s.createCheckpoint)
	mux.HandleFunc("POST /api/v1/checkpoints/{id}/restore", s.restoreCheckpoint)

	mux.HandleFunc("POST /api/v1/sessions/{id}/sandbox/pause", s.pauseSandbox)
	mux.HandleFunc("POST /api/v1/sessions/{id}/sandbox/dev-server", s.startDevServer)
	mux.HandleFunc("DELETE /api/v1/sessions/{id}/sandbox", s.deleteSandbox)

	mux.HandleFunc("GET /api/v1/providers", s.listProviders)

	return corsMiddleware(mux)
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeStoreError maps store/orchestrator errors onto HTTP statuses.
func writeStoreError(w http.ResponseWriter, err error) {
	switch {
	case store.IsNotFound(err):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, store.ErrPendingApprovalExists),
		errors.Is(err, orchestrator.ErrPlanPending):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, sandbox.ErrSandboxExpired):
		writeError(w, http.StatusGone, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

// streamSSE drains the orchestrator channel into an SSE response, one JSON
// event per data line. The client disconnecting cancels r.Context(), which
// terminates the underlying phase.
func (s *Server) streamSSE(w http.ResponseWriter, r *http.Request, events <-chan orchestrator.StreamEvent) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	enc := json.NewEncoder(w)
	for ev := range events {
		if _, err := w.Write([]byte("data: ")); err != nil {
			return
		}
		if err := enc.Encode(ev); err != nil {
			return
		}
		if _, err := w.Write([]byte("\n")); err != nil {
			return
		}
		flusher.Flush()
	}
}

// --- Repositories ---

func (s *Server) listRepositories(w http.ResponseWriter, r *http.Request) {
	repos, err := s.store.ListRepositories(r.Context())
	if err != nil {
		writeStoreError(w, err)
		return
	}
	if repos == nil {
		repos = []*models.Repository{}
	}
	writeJSON(w, http.StatusOK, repos)
}

func (s *Server) createRepository(w http.ResponseWriter, r *http.Request) {
	var repo models.Repository
	if err := json.NewDecoder(r.Body).Decode(&repo); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if repo.URL == "" {
		writeError(w, http.StatusBadRequest, "url is required")
		return
	}
	if repo.DefaultBranch == "" {
		repo.DefaultBranch = "main"
	}
	if err := s.store.CreateRepository(r.Context(), &repo); err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, repo)
}

func (s *Server) getRepository(w http.ResponseWriter, r *http.Request) {
	repo, err := s.store.GetRepository(r.Context(), r.PathValue("id"))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, repo)
}

// --- Sessions ---

func (s *Server) listSessions(w http.ResponseWriter, r *http.Request) {
	filter := store.SessionListFilter{
		RepositoryID: r.URL.Query().Get("repository_id"),
		Status:       models.SessionStatus(r.URL.Query().Get("status")),
	}
	sessions, err := s.store.ListSessions(r.Context(), filter)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	if sessions == nil {
		sessions = []*models.Session{}
	}
	writeJSON(w, http.StatusOK, sessions)
}

func (s *Server) createSession(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RepositoryID string `json:"repository_id"`
		Name         string `json:"name"`
		BranchName   string `json:"branch_name"`
		CreatedByID  string `json:"created_by_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.RepositoryID == "" {
		writeError(w, http.StatusBadRequest, "repository_id is required")
		return
	}
	if _, err := s.store.GetRepository(r.Context(), req.RepositoryID); err != nil {
		writeStoreError(w, err)
		return
	}

	sess := &models.Session{
		RepositoryID: req.RepositoryID,
		Name:         req.Name,
		BranchName:   req.BranchName,
		CreatedByID:  req.CreatedByID,
		Status:       models.SessionStatusIdle,
	}
	if err := s.store.CreateSession(r.Context(), sess); err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, sess)
}

func (s *Server) getSession(w http.ResponseWriter, r *http.Request) {
	sess, err := s.store.GetSession(r.Context(), r.PathValue("id"))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func (s *Server) listMessages(w http.ResponseWriter, r *http.Request) {
	msgs, err := s.store.ListMessages(r.Context(), r.PathValue("id"), 0)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	if msgs == nil {
		msgs = []*models.Message{}
	}
	writeJSON(w, http.StatusOK, msgs)
}

// --- Plan / Review / Build ---

func (s *Server) planSession(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Request string `json:"request"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.Request == "" {
		writeError(w, http.StatusBadRequest, "request is required")
		return
	}

	events, err := s.orch.GeneratePlan(r.Context(), r.PathValue("id"), req.Request)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	s.streamSSE(w, r, events)
}

func (s *Server) approvePlan(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("id")

	var req struct {
		ReviewerID string `json:"reviewer_id"`
		Comment    string `json:"comment"`
	}
	if r.Body != nil && r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON")
			return
		}
	}

	approval, err := s.store.GetPendingApproval(r.Context(), sessionID)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	resolved, err := s.orch.ApprovePlan(r.Context(), approval.ID, req.ReviewerID, req.Comment)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resolved)
}

func (s *Server) rejectPlan(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("id")

	var req struct {
		ReviewerID string `json:"reviewer_id"`
		Comment    string `json:"comment"`
	}
	if r.Body != nil && r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON")
			return
		}
	}

	approval, err := s.store.GetPendingApproval(r.Context(), sessionID)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	resolved, err := s.orch.RejectPlan(r.Context(), approval.ID, req.ReviewerID, req.Comment)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resolved)
}

func (s *Server) buildSession(w http.ResponseWriter, r *http.Request) {
	events, err := s.orch.ExecutePlan(r.Context(), r.PathValue("id"))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	s.streamSSE(w, r, events)
}

func (s *Server) messageSession(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Content string `json:"content"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.Content == "" {
		writeError(w, http.StatusBadRequest, "content is required")
		return
	}

	events, err := s.orch.HandleMessage(r.Context(), r.PathValue("id"), req.Content)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	s.streamSSE(w, r, events)
}

// --- Checkpoints ---

func (s *Server) listCheckpoints(w http.ResponseWriter, r *http.Request) {
	cps, err := s.store.ListCheckpoints(r.Context(), r.PathValue("id"))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	if cps == nil {
		cps = []*models.Checkpoint{}
	}
	writeJSON(w, http.StatusOK, cps)
}

func (s *Server) createCheckpoint(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Label string `json:"label"`
	}
	if r.Body != nil && r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON")
			return
		}
	}
	if req.Label == "" {
		req.Label = "manual checkpoint"
	}

	cp, err := s.orch.CreateCheckpoint(r.Context(), r.PathValue("id"), req.Label)
	if err != nil {
		if errors.Is(err, provider.ErrUnsupported) {
			writeError(w, http.StatusUnprocessableEntity, err.Error())
			return
		}
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, cp)
}

func (s *Server) restoreCheckpoint(w http.ResponseWriter, r *http.Request) {
	if err := s.orch.RestoreCheckpoint(r.Context(), r.PathValue("id")); err != nil {
		if errors.Is(err, provider.ErrUnsupported) {
			writeError(w, http.StatusUnprocessableEntity, err.Error())
			return
		}
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "restored"})
}

// --- Sandbox ---

func (s *Server) sessionSandbox(w http.ResponseWriter, r *http.Request) (*models.Sandbox, bool) {
	sess, err := s.store.GetSession(r.Context(), r.PathValue("id"))
	if err != nil {
		writeStoreError(w, err)
		return nil, false
	}
	if sess.SandboxID == "" {
		writeError(w, http.StatusNotFound, "session has no sandbox")
		return nil, false
	}
	sb, err := s.store.GetSandbox(r.Context(), sess.SandboxID)
	if err != nil {
		writeStoreError(w, err)
		return nil, false
	}
	return sb, true
}

func (s *Server) pauseSandbox(w http.ResponseWriter, r *http.Request) {
	sb, ok := s.sessionSandbox(w, r)
	if !ok {
		return
	}
	if err := s.sandboxes.Pause(r.Context(), sb); err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sb)
}

func (s *Server) startDevServer(w http.ResponseWriter, r *http.Request) {
	sb, ok := s.sessionSandbox(w, r)
	if !ok {
		return
	}

	var req struct {
		Command string `json:"command"`
		Port    int    `json:"port"`
	}
	if r.Body != nil && r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON")
			return
		}
	}

	url, err := s.sandboxes.StartDevServer(r.Context(), sb, req.Command, req.Port)
	if err != nil {
		if errors.Is(err, provider.ErrNoDevServer) {
			writeError(w, http.StatusUnprocessableEntity, err.Error())
			return
		}
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"preview_url": url})
}

func (s *Server) deleteSandbox(w http.ResponseWriter, r *http.Request) {
	sb, ok := s.sessionSandbox(w, r)
	if !ok {
		return
	}
	if err := s.sandboxes.Delete(r.Context(), sb); err != nil {
		writeStoreError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- Providers ---

func (s *Server) listProviders(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.registry.List())
}
