package cmd

import (
	"context"

	"github.com/spf13/cobra"
)

var checkpointLabel string

var checkpointCmd = &cobra.Command{
	Use:   "checkpoint",
	Short: "Manage sandbox checkpoints",
}

var checkpointListCmd = &cobra.Command{
	Use:   "list <session-id>",
	Short: "List checkpoints for a session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := getStore()
		if err != nil {
			return err
		}
		cps, err := s.ListCheckpoints(context.Background(), args[0])
		if err != nil {
			return err
		}
		if len(cps) == 0 {
			ui.Info("No checkpoints for session %s", args[0])
			return nil
		}

		table := ui.Table([]string{"ID", "Type", "Label", "Created"})
		for _, cp := range cps {
			_ = table.Append([]string{
				shortID(cp.ID),
				string(cp.Type),
				cp.Label,
				cp.CreatedAt.Format("2006-01-02 15:04"),
			})
		}
		return table.Render()
	},
}

var checkpointCreateCmd = &cobra.Command{
	Use:   "create <session-id>",
	Short: "Take a manual checkpoint of the session's sandbox",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := getStore()
		if err != nil {
			return err
		}
		orch, _, _, err := buildOrchestrator(s)
		if err != nil {
			return err
		}
		label := checkpointLabel
		if label == "" {
			label = "manual checkpoint"
		}
		cp, err := orch.CreateCheckpoint(cmd.Context(), args[0], label)
		if err != nil {
			return err
		}
		ui.Success("Checkpoint created: %s", cp.ID)
		return nil
	},
}

var checkpointRestoreCmd = &cobra.Command{
	Use:   "restore <checkpoint-id>",
	Short: "Restore a sandbox to a checkpoint",
	Long: `Restore a sandbox to a checkpoint. Only the sandbox contents roll
back; the session's status and review history stay as they are.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := getStore()
		if err != nil {
			return err
		}
		orch, _, _, err := buildOrchestrator(s)
		if err != nil {
			return err
		}
		if err := orch.RestoreCheckpoint(cmd.Context(), args[0]); err != nil {
			return err
		}
		ui.Success("Checkpoint restored")
		return nil
	},
}

func init() {
	checkpointCreateCmd.Flags().StringVar(&checkpointLabel, "label", "", "Checkpoint label")
	checkpointCmd.AddCommand(checkpointListCmd)
	checkpointCmd.AddCommand(checkpointCreateCmd)
	checkpointCmd.AddCommand(checkpointRestoreCmd)
	rootCmd.AddCommand(checkpointCmd)
}
