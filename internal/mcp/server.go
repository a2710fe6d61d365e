// Package mcp exposes hatchpad sessions, approvals and checkpoints as MCP
// tools over stdio, so agent hosts can review and steer builds.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/hatchpad/hatchpad/internal/models"
	"github.com/hatchpad/hatchpad/internal/orchestrator"
	"github.com/hatchpad/hatchpad/internal/store"
)

// Server wraps the hatchpad data layer and exposes it as MCP tools.
type Server struct {
	store store.Store
	orch  *orchestrator.Orchestrator
}

// NewServer creates the MCP server wrapper.
func NewServer(s store.Store, orch *orchestrator.Orchestrator) *Server {
	return &Server{store: s, orch: orch}
}

// MCPServer returns a configured mcp-go server with all tools registered.
func (s *Server) MCPServer() *server.MCPServer {
	srv := server.NewMCPServer("hatchpad", "1.0.0", server.WithToolCapabilities(true))

	srv.AddTool(s.listSessionsTool())
	srv.AddTool(s.sessionStatusTool())
	srv.AddTool(s.approvePlanTool())
	srv.AddTool(s.rejectPlanTool())
	srv.AddTool(s.listCheckpointsTool())
	srv.AddTool(s.restoreCheckpointTool())

	return srv
}

// ServeStdio starts the stdio transport, blocking until ctx is cancelled.
func (s *Server) ServeStdio(ctx context.Context) error {
	srv := s.MCPServer()
	stdioServer := server.NewStdioServer(srv)
	return stdioServer.Listen(ctx, os.Stdin, os.Stdout)
}

// ---------------------------------------------------------------------------
// Tool definitions and handlers
// ---------------------------------------------------------------------------

// hatchpad_list_sessions
func (s *Server) listSessionsTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("hatchpad_list_sessions",
		mcp.WithDescription("List feature-building sessions. Returns a JSON array with id, name, status, and repository id."),
		mcp.WithString("repository_id", mcp.Description("Filter by repository id")),
		mcp.WithString("status", mcp.Description("Filter by session status (idle, planning, plan_review, building, ready, error)")),
	)
	return tool, s.handleListSessions
}

func (s *Server) handleListSessions(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	filter := store.SessionListFilter{
		RepositoryID: request.GetString("repository_id", ""),
		Status:       models.SessionStatus(request.GetString("status", "")),
		Limit:        50,
	}
	sessions, err := s.store.ListSessions(ctx, filter)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to list sessions: %v", err)), nil
	}

	type sessionOut struct {
		ID           string `json:"id"`
		Name         string `json:"name"`
		Status       string `json:"status"`
		RepositoryID string `json:"repository_id"`
		CreatedAt    string `json:"created_at"`
	}

	out := make([]sessionOut, len(sessions))
	for i, sess := range sessions {
		out[i] = sessionOut{
			ID:           sess.ID,
			Name:         sess.Name,
			Status:       string(sess.Status),
			RepositoryID: sess.RepositoryID,
			CreatedAt:    sess.CreatedAt.Format(time.RFC3339),
		}
	}

	data, err := json.Marshal(out)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal sessions: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

// hatchpad_session_status
func (s *Server) sessionStatusTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("hatchpad_session_status",
		mcp.WithDescription("Get a session's current phase, sandbox, pending approval and latest plan summary."),
		mcp.WithString("session_id", mcp.Required(), mcp.Description("Session id")),
	)
	return tool, s.handleSessionStatus
}

func (s *Server) handleSessionStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sessionID, err := request.RequireString("session_id")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: session_id"), nil
	}

	sess, err := s.store.GetSession(ctx, sessionID)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("session not found: %s", sessionID)), nil
	}

	out := map[string]any{
		"id":            sess.ID,
		"name":          sess.Name,
		"status":        string(sess.Status),
		"repository_id": sess.RepositoryID,
	}

	if sess.SandboxID != "" {
		if sb, err := s.store.GetSandbox(ctx, sess.SandboxID); err == nil {
			out["sandbox"] = map[string]any{
				"id":          sb.ID,
				"provider":    sb.ProviderType,
				"status":      string(sb.Status),
				"preview_url": sb.PreviewURL,
			}
		}
	}

	if approval, err := s.store.GetPendingApproval(ctx, sessionID); err == nil {
		out["pending_approval_id"] = approval.ID
	}

	// Latest plan summary, best-effort.
	if msgs, err := s.store.ListMessages(ctx, sessionID, 0); err == nil {
		for i := len(msgs) - 1; i >= 0; i-- {
			if msgs[i].Type != models.MessageTypePlan {
				continue
			}
			var plan models.Plan
			if json.Unmarshal([]byte(msgs[i].Content), &plan) == nil {
				out["plan_summary"] = plan.Summary
			}
			break
		}
	}

	data, err := json.Marshal(out)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal status: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

// hatchpad_approve_plan
func (s *Server) approvePlanTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("hatchpad_approve_plan",
		mcp.WithDescription("Approve the pending plan for a session. The session moves to building; run the build separately."),
		mcp.WithString("session_id", mcp.Required(), mcp.Description("Session id")),
		mcp.WithString("comment", mcp.Description("Optional review comment")),
	)
	return tool, s.handleApprovePlan
}

func (s *Server) handleApprovePlan(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return s.resolvePlan(ctx, request, models.ApprovalStatusApproved)
}

// hatchpad_reject_plan
func (s *Server) rejectPlanTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("hatchpad_reject_plan",
		mcp.WithDescription("Reject the pending plan for a session. The session returns to idle."),
		mcp.WithString("session_id", mcp.Required(), mcp.Description("Session id")),
		mcp.WithString("comment", mcp.Description("Optional review comment")),
	)
	return tool, s.handleRejectPlan
}

func (s *Server) handleRejectPlan(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return s.resolvePlan(ctx, request, models.ApprovalStatusRejected)
}

func (s *Server) resolvePlan(ctx context.Context, request mcp.CallToolRequest, status models.ApprovalStatus) (*mcp.CallToolResult, error) {
	sessionID, err := request.RequireString("session_id")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: session_id"), nil
	}
	comment := request.GetString("comment", "")

	approval, err := s.store.GetPendingApproval(ctx, sessionID)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("no pending approval for session %s", sessionID)), nil
	}

	var resolved *models.Approval
	if status == models.ApprovalStatusApproved {
		resolved, err = s.orch.ApprovePlan(ctx, approval.ID, "mcp", comment)
	} else {
		resolved, err = s.orch.RejectPlan(ctx, approval.ID, "mcp", comment)
	}
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to resolve approval: %v", err)), nil
	}

	data, _ := json.Marshal(map[string]string{
		"approval_id": resolved.ID,
		"status":      string(resolved.Status),
	})
	return mcp.NewToolResultText(string(data)), nil
}

// hatchpad_list_checkpoints
func (s *Server) listCheckpointsTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("hatchpad_list_checkpoints",
		mcp.WithDescription("List checkpoints for a session, newest first."),
		mcp.WithString("session_id", mcp.Required(), mcp.Description("Session id")),
	)
	return tool, s.handleListCheckpoints
}

func (s *Server) handleListCheckpoints(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sessionID, err := request.RequireString("session_id")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: session_id"), nil
	}

	cps, err := s.store.ListCheckpoints(ctx, sessionID)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to list checkpoints: %v", err)), nil
	}

	type checkpointOut struct {
		ID        string `json:"id"`
		Label     string `json:"label"`
		Type      string `json:"type"`
		CreatedAt string `json:"created_at"`
	}

	out := make([]checkpointOut, len(cps))
	for i, cp := range cps {
		out[i] = checkpointOut{
			ID:        cp.ID,
			Label:     cp.Label,
			Type:      string(cp.Type),
			CreatedAt: cp.CreatedAt.Format(time.RFC3339),
		}
	}

	data, err := json.Marshal(out)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal checkpoints: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

// hatchpad_restore_checkpoint
func (s *Server) restoreCheckpointTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("hatchpad_restore_checkpoint",
		mcp.WithDescription("Restore a sandbox to a checkpoint. The session status and review history are left unchanged."),
		mcp.WithString("checkpoint_id", mcp.Required(), mcp.Description("Checkpoint id")),
	)
	return tool, s.handleRestoreCheckpoint
}

func (s *Server) handleRestoreCheckpoint(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	checkpointID, err := request.RequireString("checkpoint_id")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: checkpoint_id"), nil
	}

	if err := s.orch.RestoreCheckpoint(ctx, checkpointID); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to restore checkpoint: %v", err)), nil
	}

	data, _ := json.Marshal(map[string]string{
		"checkpoint_id": checkpointID,
		"status":        "restored",
	})
	return mcp.NewToolResultText(string(data)), nil
}
