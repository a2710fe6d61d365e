package mcp

import (
	"context"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	mcpgo "github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/hatchpad/hatchpad/internal/models"
	"github.com/hatchpad/hatchpad/internal/orchestrator"
	"github.com/hatchpad/hatchpad/internal/provider"
	"github.com/hatchpad/hatchpad/internal/sandbox"
	"github.com/hatchpad/hatchpad/internal/store"
)

func newTestServer(t *testing.T) (*Server, store.Store) {
	t.Helper()
	st, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	require.NoError(t, st.Migrate(context.Background()))
	t.Cleanup(func() { st.Close() })

	reg := provider.NewRegistry()
	svc := sandbox.NewService(st, reg, nil, zap.NewNop())
	orch := orchestrator.New(st, svc, nil, nil, zap.NewNop())

	return NewServer(st, orch), st
}

func seedSession(t *testing.T, st store.Store, status models.SessionStatus) *models.Session {
	t.Helper()
	ctx := context.Background()
	repo := &models.Repository{Name: "webapp", URL: "https://github.com/acme/webapp", GitProvider: "github"}
	require.NoError(t, st.CreateRepository(ctx, repo))
	sess := &models.Session{RepositoryID: repo.ID, Name: "dark mode", Status: status}
	require.NoError(t, st.CreateSession(ctx, sess))
	return sess
}

// callToolReq builds a mcpgo.CallToolRequest with the given name and arguments.
func callToolReq(name string, args map[string]any) mcpgo.CallToolRequest {
	return mcpgo.CallToolRequest{
		Params: mcpgo.CallToolParams{
			Name:      name,
			Arguments: args,
		},
	}
}

// resultText extracts the concatenated text from a CallToolResult.
func resultText(t *testing.T, result *mcpgo.CallToolResult) string {
	t.Helper()
	var b strings.Builder
	for _, c := range result.Content {
		if tc, ok := c.(mcpgo.TextContent); ok {
			b.WriteString(tc.Text)
		}
	}
	return b.String()
}

func TestListSessions(t *testing.T) {
	srv, st := newTestServer(t)
	sess := seedSession(t, st, models.SessionStatusIdle)

	result, err := srv.handleListSessions(context.Background(),
		callToolReq("hatchpad_list_sessions", map[string]any{}))
	require.NoError(t, err)

	var out []map[string]any
	require.NoError(t, json.Unmarshal([]byte(resultText(t, result)), &out))
	require.Len(t, out, 1)
	assert.Equal(t, sess.ID, out[0]["id"])
	assert.Equal(t, "idle", out[0]["status"])
}

func TestSessionStatus_IncludesPendingApproval(t *testing.T) {
	srv, st := newTestServer(t)
	ctx := context.Background()
	sess := seedSession(t, st, models.SessionStatusPlanReview)

	msg := &models.Message{
		SessionID: sess.ID,
		Role:      models.MessageRoleAssistant,
		Type:      models.MessageTypePlan,
		Content:   `{"summary":"Add dark mode","changes":[]}`,
	}
	require.NoError(t, st.CreateMessage(ctx, msg))
	approval := &models.Approval{SessionID: sess.ID, MessageID: msg.ID}
	require.NoError(t, st.CreateApproval(ctx, approval))

	result, err := srv.handleSessionStatus(ctx,
		callToolReq("hatchpad_session_status", map[string]any{"session_id": sess.ID}))
	require.NoError(t, err)

	var out map[string]any
	require.NoError(t, json.Unmarshal([]byte(resultText(t, result)), &out))
	assert.Equal(t, "plan_review", out["status"])
	assert.Equal(t, approval.ID, out["pending_approval_id"])
	assert.Equal(t, "Add dark mode", out["plan_summary"])
}

func TestApprovePlan_MovesSessionToBuilding(t *testing.T) {
	srv, st := newTestServer(t)
	ctx := context.Background()
	sess := seedSession(t, st, models.SessionStatusPlanReview)

	msg := &models.Message{
		SessionID: sess.ID,
		Role:      models.MessageRoleAssistant,
		Type:      models.MessageTypePlan,
		Content:   `{"summary":"Add dark mode","changes":[]}`,
	}
	require.NoError(t, st.CreateMessage(ctx, msg))
	require.NoError(t, st.CreateApproval(ctx, &models.Approval{SessionID: sess.ID, MessageID: msg.ID}))

	result, err := srv.handleApprovePlan(ctx,
		callToolReq("hatchpad_approve_plan", map[string]any{"session_id": sess.ID}))
	require.NoError(t, err)
	assert.Contains(t, resultText(t, result), "approved")

	stored, err := st.GetSession(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SessionStatusBuilding, stored.Status)
}

func TestApprovePlan_NoPending(t *testing.T) {
	srv, st := newTestServer(t)
	sess := seedSession(t, st, models.SessionStatusIdle)

	result, err := srv.handleApprovePlan(context.Background(),
		callToolReq("hatchpad_approve_plan", map[string]any{"session_id": sess.ID}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, resultText(t, result), "no pending approval")
}
