package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/hatchpad/hatchpad/internal/models"
	"github.com/hatchpad/hatchpad/internal/orchestrator"
	"github.com/hatchpad/hatchpad/internal/output"
	"github.com/hatchpad/hatchpad/internal/store"
)

var (
	sessionRepoURL    string
	sessionBranch     string
	sessionStatusFlag string
	sessionComment    string
)

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Manage feature-building sessions",
}

var sessionListCmd = &cobra.Command{
	Use:   "list",
	Short: "List sessions",
	RunE: func(cmd *cobra.Command, args []string) error {
		return sessionListRun()
	},
}

var sessionShowCmd = &cobra.Command{
	Use:   "show <session-id>",
	Short: "Show a session's status, messages and checkpoints",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return sessionShowRun(args[0])
	},
}

var sessionNewCmd = &cobra.Command{
	Use:   "new <name>",
	Short: "Create a session against a repository",
	Long: `Create a session against a repository. The repository is looked up by
--repo URL and registered on first use.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return sessionNewRun(args[0])
	},
}

var sessionPlanCmd = &cobra.Command{
	Use:   "plan <session-id> <request...>",
	Short: "Ask the agent to plan a feature, streaming progress",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return sessionPlanRun(cmd.Context(), args[0], strings.Join(args[1:], " "))
	},
}

var sessionApproveCmd = &cobra.Command{
	Use:   "approve <session-id>",
	Short: "Approve the pending plan and run the build",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return sessionApproveRun(cmd.Context(), args[0])
	},
}

var sessionRejectCmd = &cobra.Command{
	Use:   "reject <session-id>",
	Short: "Reject the pending plan",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return sessionRejectRun(cmd.Context(), args[0])
	},
}

func init() {
	sessionListCmd.Flags().StringVar(&sessionStatusFlag, "status", "", "Filter by status")
	sessionNewCmd.Flags().StringVar(&sessionRepoURL, "repo", "", "Repository URL (required)")
	sessionNewCmd.Flags().StringVar(&sessionBranch, "branch", "", "Branch to build on (default: repository default)")
	_ = sessionNewCmd.MarkFlagRequired("repo")
	sessionApproveCmd.Flags().StringVar(&sessionComment, "comment", "", "Review comment")
	sessionRejectCmd.Flags().StringVar(&sessionComment, "comment", "", "Review comment")

	sessionCmd.AddCommand(sessionListCmd)
	sessionCmd.AddCommand(sessionShowCmd)
	sessionCmd.AddCommand(sessionNewCmd)
	sessionCmd.AddCommand(sessionPlanCmd)
	sessionCmd.AddCommand(sessionApproveCmd)
	sessionCmd.AddCommand(sessionRejectCmd)
	rootCmd.AddCommand(sessionCmd)
}

func sessionListRun() error {
	s, err := getStore()
	if err != nil {
		return err
	}
	ctx := context.Background()

	sessions, err := s.ListSessions(ctx, store.SessionListFilter{
		Status: models.SessionStatus(sessionStatusFlag),
	})
	if err != nil {
		return err
	}
	if len(sessions) == 0 {
		ui.Info("No sessions. Use 'hatchpad session new <name> --repo <url>' to start one.")
		return nil
	}

	table := ui.Table([]string{"ID", "Name", "Status", "Repository", "Created"})
	nameCache := make(map[string]string)
	for _, sess := range sessions {
		repoName, ok := nameCache[sess.RepositoryID]
		if !ok {
			if repo, err := s.GetRepository(ctx, sess.RepositoryID); err == nil {
				repoName = repo.Name
			}
			nameCache[sess.RepositoryID] = repoName
		}
		_ = table.Append([]string{
			shortID(sess.ID),
			sess.Name,
			output.PhaseColor(string(sess.Status)),
			repoName,
			sess.CreatedAt.Format("2006-01-02 15:04"),
		})
	}
	return table.Render()
}

func sessionShowRun(id string) error {
	s, err := getStore()
	if err != nil {
		return err
	}
	ctx := context.Background()

	sess, err := s.GetSession(ctx, id)
	if err != nil {
		return err
	}

	ui.Info("Session %s (%s)", sess.Name, output.PhaseColor(string(sess.Status)))
	if repo, err := s.GetRepository(ctx, sess.RepositoryID); err == nil {
		fmt.Fprintf(ui.Out, "  repository: %s (%s)\n", repo.Name, repo.URL)
	}
	if sess.SandboxID != "" {
		if sb, err := s.GetSandbox(ctx, sess.SandboxID); err == nil {
			fmt.Fprintf(ui.Out, "  sandbox:    %s on %s (%s)\n", shortID(sb.ID), sb.ProviderType, sb.Status)
			if sb.PreviewURL != "" {
				fmt.Fprintf(ui.Out, "  preview:    %s\n", output.Cyan(sb.PreviewURL))
			}
		}
	}
	if approval, err := s.GetPendingApproval(ctx, sess.ID); err == nil {
		ui.Warning("Plan awaiting review (approval %s)", shortID(approval.ID))
	}

	msgs, err := s.ListMessages(ctx, sess.ID, 10)
	if err == nil && len(msgs) > 0 {
		fmt.Fprintln(ui.Out)
		for _, m := range msgs {
			content := m.Content
			if m.Type == models.MessageTypePlan {
				var plan models.Plan
				if json.Unmarshal([]byte(m.Content), &plan) == nil {
					content = "plan: " + plan.Summary
				}
			}
			if len(content) > 100 {
				content = content[:100] + "..."
			}
			fmt.Fprintf(ui.Out, "  [%s] %s\n", m.Role, content)
		}
	}

	cps, err := s.ListCheckpoints(ctx, sess.ID)
	if err == nil && len(cps) > 0 {
		fmt.Fprintln(ui.Out)
		ui.Info("Checkpoints:")
		for _, cp := range cps {
			fmt.Fprintf(ui.Out, "  %s  %-6s  %s\n", shortID(cp.ID), cp.Type, cp.Label)
		}
	}
	return nil
}

func sessionNewRun(name string) error {
	s, err := getStore()
	if err != nil {
		return err
	}
	ctx := context.Background()

	repo, err := s.GetRepositoryByURL(ctx, sessionRepoURL)
	if store.IsNotFound(err) {
		repo = &models.Repository{
			Name:          repoNameFromURL(sessionRepoURL),
			URL:           sessionRepoURL,
			DefaultBranch: "main",
			GitProvider:   "github",
		}
		if err := s.CreateRepository(ctx, repo); err != nil {
			return fmt.Errorf("register repository: %w", err)
		}
		ui.Info("Registered repository %s", repo.Name)
	} else if err != nil {
		return err
	}

	sess := &models.Session{
		RepositoryID: repo.ID,
		Name:         name,
		BranchName:   sessionBranch,
		Status:       models.SessionStatusIdle,
	}
	if err := s.CreateSession(ctx, sess); err != nil {
		return err
	}
	ui.Success("Session created: %s", sess.ID)
	ui.Info("Next: hatchpad session plan %s \"describe the feature\"", shortID(sess.ID))
	return nil
}

func sessionPlanRun(ctx context.Context, id, request string) error {
	s, err := getStore()
	if err != nil {
		return err
	}
	orch, _, _, err := buildOrchestrator(s)
	if err != nil {
		return err
	}

	events, err := orch.GeneratePlan(ctx, id, request)
	if err != nil {
		return err
	}
	if err := renderStream(events); err != nil {
		return err
	}
	ui.Info("Review with 'hatchpad session approve %s' or 'reject'", shortID(id))
	return nil
}

func sessionApproveRun(ctx context.Context, id string) error {
	s, err := getStore()
	if err != nil {
		return err
	}
	orch, _, _, err := buildOrchestrator(s)
	if err != nil {
		return err
	}

	approval, err := s.GetPendingApproval(ctx, id)
	if err != nil {
		return fmt.Errorf("no pending plan for session %s", id)
	}
	if _, err := orch.ApprovePlan(ctx, approval.ID, "cli", sessionComment); err != nil {
		return err
	}
	ui.Success("Plan approved, building")

	events, err := orch.ExecutePlan(ctx, id)
	if err != nil {
		return err
	}
	return renderStream(events)
}

func sessionRejectRun(ctx context.Context, id string) error {
	s, err := getStore()
	if err != nil {
		return err
	}
	orch, _, _, err := buildOrchestrator(s)
	if err != nil {
		return err
	}

	approval, err := s.GetPendingApproval(ctx, id)
	if err != nil {
		return fmt.Errorf("no pending plan for session %s", id)
	}
	if _, err := orch.RejectPlan(ctx, approval.ID, "cli", sessionComment); err != nil {
		return err
	}
	ui.Success("Plan rejected, session returned to idle")
	return nil
}

// renderStream prints orchestrator events as they arrive. Returns an error
// when the stream carried one, so the command exits non-zero.
func renderStream(events <-chan orchestrator.StreamEvent) error {
	var streamErr error
	for ev := range events {
		switch ev.Type {
		case orchestrator.EventPhaseChange:
			ui.Info("Phase: %s", output.PhaseColor(ev.Phase))
		case orchestrator.EventThinking:
			ui.VerboseLog("%s", strings.TrimSpace(ev.Content))
		case orchestrator.EventPlan, orchestrator.EventMessage, orchestrator.EventProgress:
			if text := strings.TrimSpace(ev.Content); text != "" {
				fmt.Fprintln(ui.Out, text)
			}
		case orchestrator.EventFileChange:
			if path, ok := ev.Metadata["file_path"].(string); ok {
				ui.Success("%s  %s", output.Cyan(path), ev.Content)
			}
		case orchestrator.EventCheckpoint:
			ui.Info("Checkpoint saved: %s", ev.Content)
		case orchestrator.EventPreviewURL:
			ui.Info("Preview: %s", output.Cyan(ev.Content))
		case orchestrator.EventError:
			streamErr = fmt.Errorf("%s", ev.Content)
		}
	}
	return streamErr
}

func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}

func repoNameFromURL(url string) string {
	trimmed := strings.TrimSuffix(url, ".git")
	if i := strings.LastIndex(trimmed, "/"); i >= 0 {
		return trimmed[i+1:]
	}
	return trimmed
}
