// Package orchestrator drives the plan → review → build → ready state
// machine for a session. It prompts the agent backend, translates the raw
// agent stream into typed client events, persists plans, approvals and
// checkpoints, and drives the session's sandbox through the build.
package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/hatchpad/hatchpad/internal/backend"
	"github.com/hatchpad/hatchpad/internal/models"
	"github.com/hatchpad/hatchpad/internal/provider"
	"github.com/hatchpad/hatchpad/internal/sandbox"
	"github.com/hatchpad/hatchpad/internal/skills"
	"github.com/hatchpad/hatchpad/internal/store"
)

// ErrPlanPending is returned when a new plan is requested while an earlier
// one still awaits review.
var ErrPlanPending = errors.New("a plan is already awaiting review for this session")

// agentRuntime selects the sandbox's agent interpreter for RunCode, as
// opposed to a plain language runtime.
const agentRuntime = "agent"

// Orchestrator owns Session.status transitions during an active run. One
// orchestration runs per session; independent sessions run concurrently
// with no ordering between their streams.
type Orchestrator struct {
	store     store.Store
	sandboxes *sandbox.Service
	agent     backend.Backend
	skills    []skills.Skill
	log       *zap.Logger
}

// New creates an orchestrator.
func New(s store.Store, sandboxes *sandbox.Service, agent backend.Backend, sk []skills.Skill, log *zap.Logger) *Orchestrator {
	if log == nil {
		log = zap.NewNop()
	}
	return &Orchestrator{store: s, sandboxes: sandboxes, agent: agent, skills: sk, log: log}
}

// emitter wraps the outbound channel so phase goroutines stop cleanly when
// the consumer is gone.
type emitter struct {
	ch  chan StreamEvent
	ctx context.Context
}

func (e *emitter) send(ev StreamEvent) bool {
	select {
	case e.ch <- ev:
		return true
	case <-e.ctx.Done():
		return false
	}
}

// fail surfaces a terminal failure on the stream: an error event followed
// by done. It never panics past the phase goroutine.
func (e *emitter) fail(msg string) {
	if e.send(event(EventError, msg)) {
		e.send(event(EventDone, ""))
	}
}

// failSession marks the session failed even when the caller's context is
// already cancelled, so an aborted stream never leaves the session stuck in
// planning or building.
func (o *Orchestrator) failSession(ctx context.Context, sessionID string) {
	bg := context.WithoutCancel(ctx)
	if err := o.store.UpdateSessionStatus(bg, sessionID, models.SessionStatusError); err != nil {
		o.log.Error("mark session failed", zap.String("session", sessionID), zap.Error(err))
	}
}

// GeneratePlan transitions the session to planning and streams the agent's
// plan back. On success the parsed plan is persisted with exactly one
// pending approval and the session moves to plan_review; any mid-stream
// failure moves it to error and the partial stream is discarded.
func (o *Orchestrator) GeneratePlan(ctx context.Context, sessionID, request string) (<-chan StreamEvent, error) {
	sess, err := o.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if _, err := o.store.GetPendingApproval(ctx, sessionID); err == nil {
		return nil, ErrPlanPending
	} else if !store.IsNotFound(err) {
		return nil, err
	}
	repo, err := o.store.GetRepository(ctx, sess.RepositoryID)
	if err != nil {
		return nil, err
	}

	if err := o.store.UpdateSessionStatus(ctx, sessionID, models.SessionStatusPlanning); err != nil {
		return nil, err
	}
	if err := o.store.CreateMessage(ctx, &models.Message{
		SessionID: sessionID,
		Role:      models.MessageRoleUser,
		Content:   request,
	}); err != nil {
		return nil, err
	}

	ch := make(chan StreamEvent, 64)
	go o.runPlanning(ctx, &emitter{ch: ch, ctx: ctx}, sess, repo.Name, request)
	return ch, nil
}

func (o *Orchestrator) runPlanning(ctx context.Context, em *emitter, sess *models.Session, repoName, request string) {
	defer close(em.ch)

	if !em.send(phaseEvent(string(models.SessionStatusPlanning))) {
		o.failSession(ctx, sess.ID)
		return
	}

	matched := skills.Match(o.skills, request)
	if len(matched) > 0 {
		names := make([]string, len(matched))
		for i, sk := range matched {
			names[i] = sk.Name
		}
		o.log.Debug("skills matched", zap.String("session", sess.ID), zap.Strings("skills", names))
	}

	system, user := buildPlanPrompt(repoName, request, matched)
	events, err := o.agent.Stream(ctx, backend.Request{System: system, Prompt: user})
	if err != nil {
		o.failSession(ctx, sess.ID)
		em.fail(fmt.Sprintf("agent backend unavailable: %v", err))
		return
	}

	var acc strings.Builder
	var result string
	var streamErr error
	for ev := range events {
		switch ev.Type {
		case backend.EventStdout:
			acc.WriteString(ev.Content)
			// Two heuristics, in order: an explicit plan type on the
			// event, then the plan marker in the accumulated text.
			isPlan := false
			if t, ok := ev.Metadata["type"].(string); ok && t == "plan" {
				isPlan = true
			} else if looksLikePlan(acc.String()) {
				isPlan = true
			}
			if isPlan {
				if !em.send(event(EventPlan, ev.Content)) {
					o.failSession(ctx, sess.ID)
					return
				}
			} else if !em.send(event(EventMessage, ev.Content)) {
				o.failSession(ctx, sess.ID)
				return
			}
		case backend.EventStderr:
			if !em.send(event(EventThinking, ev.Content)) {
				o.failSession(ctx, sess.ID)
				return
			}
		case backend.EventResult:
			result = ev.Content
		case backend.EventError:
			streamErr = errors.New(ev.Content)
		}
	}

	if ctx.Err() != nil {
		o.failSession(ctx, sess.ID)
		return
	}
	if streamErr != nil {
		o.failSession(ctx, sess.ID)
		em.fail(fmt.Sprintf("planning failed: %v", streamErr))
		return
	}

	if result == "" {
		result = acc.String()
	}
	plan, err := ParsePlan(result)
	if err != nil {
		o.failSession(ctx, sess.ID)
		em.fail(err.Error())
		return
	}

	planJSON, err := json.Marshal(plan)
	if err != nil {
		o.failSession(ctx, sess.ID)
		em.fail(fmt.Sprintf("encode plan: %v", err))
		return
	}

	msg := &models.Message{
		SessionID: sess.ID,
		Role:      models.MessageRoleAssistant,
		Type:      models.MessageTypePlan,
		Content:   string(planJSON),
		Metadata:  map[string]any{"summary": plan.Summary},
	}
	if err := o.store.CreateMessage(ctx, msg); err != nil {
		o.failSession(ctx, sess.ID)
		em.fail(fmt.Sprintf("persist plan: %v", err))
		return
	}

	approval := &models.Approval{SessionID: sess.ID, MessageID: msg.ID}
	if err := o.store.CreateApproval(ctx, approval); err != nil {
		o.failSession(ctx, sess.ID)
		em.fail(fmt.Sprintf("create approval: %v", err))
		return
	}

	if err := o.store.UpdateSessionStatus(ctx, sess.ID, models.SessionStatusPlanReview); err != nil {
		o.failSession(ctx, sess.ID)
		em.fail(fmt.Sprintf("update session: %v", err))
		return
	}

	planEv := event(EventPlan, string(planJSON))
	planEv.Metadata = map[string]any{"approval_id": approval.ID, "message_id": msg.ID}
	if !em.send(planEv) {
		return
	}
	if !em.send(phaseEvent(string(models.SessionStatusPlanReview))) {
		return
	}
	em.send(event(EventDone, ""))
}

// ApprovePlan flips the approval and moves the session to building in one
// transaction; there is no window where the approval is approved but the
// session still reads plan_review. The caller then runs ExecutePlan.
func (o *Orchestrator) ApprovePlan(ctx context.Context, approvalID, reviewerID, comment string) (*models.Approval, error) {
	return o.store.ResolveApproval(ctx, approvalID, models.ApprovalStatusApproved, reviewerID, comment, models.SessionStatusBuilding)
}

// RejectPlan flips the approval and returns the session to idle (not
// planning): a rejected plan ends the cycle until the user asks again.
func (o *Orchestrator) RejectPlan(ctx context.Context, approvalID, reviewerID, comment string) (*models.Approval, error) {
	return o.store.ResolveApproval(ctx, approvalID, models.ApprovalStatusRejected, reviewerID, comment, models.SessionStatusIdle)
}

// latestPlan loads the most recent persisted plan for the session.
func (o *Orchestrator) latestPlan(ctx context.Context, sessionID string) (*models.Plan, error) {
	msgs, err := o.store.ListMessages(ctx, sessionID, 0)
	if err != nil {
		return nil, err
	}
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Type != models.MessageTypePlan {
			continue
		}
		var plan models.Plan
		if err := json.Unmarshal([]byte(msgs[i].Content), &plan); err != nil {
			return nil, fmt.Errorf("decode stored plan: %w", err)
		}
		return &plan, nil
	}
	return nil, fmt.Errorf("session %s has no plan to execute", sessionID)
}

// ExecutePlan runs the approved plan inside the session's sandbox and
// streams build progress. The session must already be in building (set
// atomically by ApprovePlan).
func (o *Orchestrator) ExecutePlan(ctx context.Context, sessionID string) (<-chan StreamEvent, error) {
	sess, err := o.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if sess.Status != models.SessionStatusBuilding {
		return nil, fmt.Errorf("session %s is %s, expected building", sessionID, sess.Status)
	}

	plan, err := o.latestPlan(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	ch := make(chan StreamEvent, 64)
	go o.runBuild(ctx, &emitter{ch: ch, ctx: ctx}, sess, plan)
	return ch, nil
}

func (o *Orchestrator) runBuild(ctx context.Context, em *emitter, sess *models.Session, plan *models.Plan) {
	defer close(em.ch)

	if !em.send(phaseEvent(string(models.SessionStatusBuilding))) {
		o.failSession(ctx, sess.ID)
		return
	}

	sb, created, err := o.sandboxes.EnsureSandbox(ctx, sess.ID)
	if err != nil {
		o.failSession(ctx, sess.ID)
		em.fail(fmt.Sprintf("prepare sandbox: %v", err))
		return
	}
	if !created {
		if _, err := o.sandboxes.EnsureRunning(ctx, sb); err != nil {
			o.failSession(ctx, sess.ID)
			em.fail(err.Error())
			return
		}
	}
	if sb.PreviewURL != "" {
		if !em.send(event(EventPreviewURL, sb.PreviewURL)) {
			o.failSession(ctx, sess.ID)
			return
		}
	}

	p, err := o.sandboxes.Provider(sb)
	if err != nil {
		o.failSession(ctx, sess.ID)
		em.fail(fmt.Sprintf("prepare sandbox: %v", err))
		return
	}

	// The build runs inside the workspace: the execute prompt is injected
	// into the sandbox's agent runtime, so every file it writes lands on
	// the workspace filesystem the checkpoint snapshots.
	system, user := buildExecutePrompt(plan)
	events, err := p.RunCode(ctx, sb.ProviderWorkspaceID, system+"\n\n"+user, provider.RunOptions{Language: agentRuntime})
	if err != nil {
		o.failSession(ctx, sess.ID)
		em.fail(fmt.Sprintf("start build in sandbox: %v", err))
		return
	}

	var files []string
	var pending string // partial last line of agent output
	var streamErr error

	handleLine := func(line string) bool {
		line = strings.TrimSpace(line)
		if line == "" {
			return true
		}
		if path, desc, ok := parseFileLine(line); ok {
			files = append(files, path)
			ev := event(EventFileChange, desc)
			ev.Metadata = map[string]any{"file_path": path}
			return em.send(ev)
		}
		return em.send(event(EventProgress, line))
	}

	for ev := range events {
		switch ev.Type {
		case provider.EventStdout:
			if tool := ev.Metadata["tool"]; tool != "" {
				// Tool invocations pass through unchanged.
				toolEv := event(EventToolUse, ev.Content)
				toolEv.Metadata = map[string]any{"tool": tool}
				if !em.send(toolEv) {
					o.failSession(ctx, sess.ID)
					return
				}
				continue
			}
			if path := ev.Metadata["file_path"]; path != "" {
				files = append(files, path)
				fcEv := event(EventFileChange, ev.Content)
				fcEv.Metadata = map[string]any{"file_path": path}
				if !em.send(fcEv) {
					o.failSession(ctx, sess.ID)
					return
				}
				continue
			}
			pending += ev.Content
			for {
				idx := strings.IndexByte(pending, '\n')
				if idx < 0 {
					break
				}
				line := pending[:idx]
				pending = pending[idx+1:]
				if !handleLine(line) {
					o.failSession(ctx, sess.ID)
					return
				}
			}
		case provider.EventStderr:
			if !em.send(event(EventThinking, ev.Content)) {
				o.failSession(ctx, sess.ID)
				return
			}
		case provider.EventError:
			streamErr = errors.New(ev.Content)
		}
	}

	if ctx.Err() != nil {
		o.failSession(ctx, sess.ID)
		return
	}
	if streamErr != nil {
		o.failSession(ctx, sess.ID)
		em.fail(fmt.Sprintf("build failed: %v", streamErr))
		return
	}
	if !handleLine(pending) {
		o.failSession(ctx, sess.ID)
		return
	}

	// No preview yet: try the dev server so the ready session has a URL.
	// Failure here is non-fatal, some repositories have nothing to serve.
	if sb.PreviewURL == "" {
		if url, derr := o.sandboxes.StartDevServer(ctx, sb, "", 0); derr != nil {
			o.log.Warn("dev server not started", zap.String("session", sess.ID), zap.Error(derr))
		} else if !em.send(event(EventPreviewURL, url)) {
			o.failSession(ctx, sess.ID)
			return
		}
	}

	// Checkpoint is best-effort: a failure here is logged and swallowed,
	// never failing a build that already succeeded.
	if cp := o.autoCheckpoint(ctx, sess, sb, plan); cp != nil {
		cpEv := event(EventCheckpoint, cp.Label)
		cpEv.Metadata = map[string]any{"checkpoint_id": cp.ID}
		if !em.send(cpEv) {
			o.failSession(ctx, sess.ID)
			return
		}
	}

	if err := o.store.CreateMessage(ctx, &models.Message{
		SessionID: sess.ID,
		Role:      models.MessageRoleAssistant,
		Content:   fmt.Sprintf("Build complete: %d file(s) changed.", len(files)),
		Metadata:  map[string]any{"files_changed": files},
	}); err != nil {
		o.log.Warn("persist completion message", zap.String("session", sess.ID), zap.Error(err))
	}

	if err := o.store.UpdateSessionStatus(ctx, sess.ID, models.SessionStatusReady); err != nil {
		o.failSession(ctx, sess.ID)
		em.fail(fmt.Sprintf("update session: %v", err))
		return
	}

	if !em.send(phaseEvent(string(models.SessionStatusReady))) {
		return
	}
	em.send(event(EventDone, ""))
}

// parseFileLine matches the "FILE: <path> - <description>" lines the build
// prompt asks the agent to emit.
func parseFileLine(line string) (path, desc string, ok bool) {
	rest, found := strings.CutPrefix(line, "FILE: ")
	if !found {
		return "", "", false
	}
	path, desc, _ = strings.Cut(rest, " - ")
	path = strings.TrimSpace(path)
	if path == "" {
		return "", "", false
	}
	if desc == "" {
		desc = path
	}
	return path, strings.TrimSpace(desc), true
}

func (o *Orchestrator) autoCheckpoint(ctx context.Context, sess *models.Session, sb *models.Sandbox, plan *models.Plan) *models.Checkpoint {
	p, err := o.sandboxes.Provider(sb)
	if err != nil {
		o.log.Warn("checkpoint skipped", zap.String("session", sess.ID), zap.Error(err))
		return nil
	}
	ckpt, ok := p.(provider.Checkpointer)
	if !ok {
		o.log.Info("provider does not support checkpoints, skipping",
			zap.String("session", sess.ID),
			zap.String("provider", p.Type()))
		return nil
	}

	label := truncateLabel(plan.Summary, 64)
	providerID, err := ckpt.CreateCheckpoint(ctx, sb.ProviderWorkspaceID, label)
	if err != nil {
		o.log.Warn("checkpoint failed", zap.String("session", sess.ID), zap.Error(err))
		return nil
	}

	cp := &models.Checkpoint{
		SessionID:            sess.ID,
		SandboxID:            sb.ID,
		Label:                label,
		Type:                 models.CheckpointTypeAuto,
		ProviderCheckpointID: providerID,
	}
	if err := o.store.CreateCheckpoint(ctx, cp); err != nil {
		o.log.Warn("persist checkpoint", zap.String("session", sess.ID), zap.Error(err))
		return nil
	}
	return cp
}

// CreateCheckpoint takes a manual snapshot of the session's sandbox.
func (o *Orchestrator) CreateCheckpoint(ctx context.Context, sessionID, label string) (*models.Checkpoint, error) {
	sess, err := o.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if sess.SandboxID == "" {
		return nil, fmt.Errorf("session %s has no sandbox to checkpoint", sessionID)
	}
	sb, err := o.store.GetSandbox(ctx, sess.SandboxID)
	if err != nil {
		return nil, err
	}
	p, err := o.sandboxes.Provider(sb)
	if err != nil {
		return nil, err
	}
	ckpt, ok := p.(provider.Checkpointer)
	if !ok {
		return nil, fmt.Errorf("provider %s: %w", p.Type(), provider.ErrUnsupported)
	}

	providerID, err := ckpt.CreateCheckpoint(ctx, sb.ProviderWorkspaceID, label)
	if err != nil {
		return nil, err
	}
	cp := &models.Checkpoint{
		SessionID:            sessionID,
		SandboxID:            sb.ID,
		Label:                label,
		Type:                 models.CheckpointTypeManual,
		ProviderCheckpointID: providerID,
	}
	if err := o.store.CreateCheckpoint(ctx, cp); err != nil {
		return nil, err
	}
	return cp, nil
}

// RestoreCheckpoint rolls the sandbox back to a snapshot. By policy the
// session and approval records are left untouched: a restore changes the
// sandbox filesystem, not the review history. Callers who want a fresh
// cycle start a new plan afterwards.
func (o *Orchestrator) RestoreCheckpoint(ctx context.Context, checkpointID string) error {
	cp, err := o.store.GetCheckpoint(ctx, checkpointID)
	if err != nil {
		return err
	}
	sb, err := o.store.GetSandbox(ctx, cp.SandboxID)
	if err != nil {
		return err
	}
	p, err := o.sandboxes.Provider(sb)
	if err != nil {
		return err
	}
	ckpt, ok := p.(provider.Checkpointer)
	if !ok {
		return fmt.Errorf("provider %s: %w", p.Type(), provider.ErrUnsupported)
	}
	if _, err := o.sandboxes.EnsureRunning(ctx, sb); err != nil {
		return err
	}
	return ckpt.RestoreCheckpoint(ctx, sb.ProviderWorkspaceID, cp.ProviderCheckpointID)
}

// HandleMessage relays a follow-up prompt to the agent outside the
// plan/build gates. It never alters the session status.
func (o *Orchestrator) HandleMessage(ctx context.Context, sessionID, text string) (<-chan StreamEvent, error) {
	if _, err := o.store.GetSession(ctx, sessionID); err != nil {
		return nil, err
	}
	if err := o.store.CreateMessage(ctx, &models.Message{
		SessionID: sessionID,
		Role:      models.MessageRoleUser,
		Content:   text,
	}); err != nil {
		return nil, err
	}

	events, err := o.agent.Stream(ctx, backend.Request{Prompt: text})
	if err != nil {
		return nil, err
	}

	ch := make(chan StreamEvent, 64)
	go func() {
		defer close(ch)
		em := &emitter{ch: ch, ctx: ctx}

		var acc strings.Builder
		for ev := range events {
			switch ev.Type {
			case backend.EventStdout:
				acc.WriteString(ev.Content)
				if !em.send(event(EventMessage, ev.Content)) {
					return
				}
			case backend.EventStderr:
				if !em.send(event(EventThinking, ev.Content)) {
					return
				}
			case backend.EventError:
				em.fail(ev.Content)
				return
			}
		}

		if acc.Len() > 0 {
			if err := o.store.CreateMessage(context.WithoutCancel(ctx), &models.Message{
				SessionID: sessionID,
				Role:      models.MessageRoleAssistant,
				Content:   acc.String(),
			}); err != nil {
				o.log.Warn("persist reply", zap.String("session", sessionID), zap.Error(err))
			}
		}
		em.send(event(EventDone, ""))
	}()
	return ch, nil
}
