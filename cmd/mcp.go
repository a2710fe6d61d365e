package cmd

import (
	"github.com/spf13/cobra"

	"github.com/hatchpad/hatchpad/internal/mcp"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start MCP stdio server for agent host integration",
	Long: `Start an MCP (Model Context Protocol) server on stdio.

This lets agent hosts inspect sessions, review plans and restore
checkpoints. Configure with:

  {
    "mcpServers": {
      "hatchpad": { "command": "hatchpad", "args": ["mcp"] }
    }
  }

Available tools: hatchpad_list_sessions, hatchpad_session_status,
hatchpad_approve_plan, hatchpad_reject_plan, hatchpad_list_checkpoints,
hatchpad_restore_checkpoint`,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := getStore()
		if err != nil {
			return err
		}
		orch, _, _, err := buildOrchestrator(s)
		if err != nil {
			return err
		}
		return mcp.NewServer(s, orch).ServeStdio(cmd.Context())
	},
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}
