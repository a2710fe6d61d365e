package cmd

import (
	"fmt"
	"net/http"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/hatchpad/hatchpad/internal/api"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the hatchpad API server",
	Long: `Start the HTTP API server the web UI talks to.

Plan, build and message endpoints stream progress as server-sent events.
By default it listens on port 8080. Use --port to change it.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := getStore()
		if err != nil {
			return err
		}
		orch, sandboxes, reg, err := buildOrchestrator(s)
		if err != nil {
			return err
		}

		srv := api.NewServer(s, orch, sandboxes, reg, logger)
		addr := fmt.Sprintf(":%d", viper.GetInt("port"))
		logger.Info("api server listening", zap.String("addr", addr))
		ui.Info("Serving API at http://localhost%s", addr)
		return http.ListenAndServe(addr, srv.Router())
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().IntP("port", "p", 8080, "port to listen on")
	_ = viper.BindPFlag("port", serveCmd.Flags().Lookup("port"))
}
