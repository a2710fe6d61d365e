package cmd

import (
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/hatchpad/hatchpad/internal/output"
)

var providerCmd = &cobra.Command{
	Use:   "provider",
	Short: "Inspect sandbox providers",
}

var providerListCmd = &cobra.Command{
	Use:   "list",
	Short: "List configured providers and their capabilities",
	RunE: func(cmd *cobra.Command, args []string) error {
		reg := buildRegistry()

		table := ui.Table([]string{"Provider", "Enabled", "Available", "Default", "Capabilities"})
		for _, info := range reg.List() {
			var caps []string
			if info.Capabilities.PauseResume {
				caps = append(caps, "pause/resume")
			}
			if info.Capabilities.Checkpoints {
				caps = append(caps, "checkpoints")
			}
			if info.Capabilities.GPU {
				caps = append(caps, "gpu")
			}
			name := info.Type
			if info.Default {
				name = output.Green(name)
			}
			_ = table.Append([]string{
				name,
				yesNo(info.Enabled),
				yesNo(info.Available),
				yesNo(info.Default),
				strings.Join(caps, ", "),
			})
		}
		return table.Render()
	},
}

var providerDefaultCmd = &cobra.Command{
	Use:   "default <type>",
	Short: "Set the default provider for new sandboxes",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		reg := buildRegistry()
		if err := reg.SetDefault(args[0]); err != nil {
			return err
		}
		viper.Set("providers.default", args[0])
		if err := viper.WriteConfig(); err != nil {
			ui.Warning("Could not persist to config file: %v", err)
			ui.Info("Add 'providers.default: %s' to your config manually", args[0])
			return nil
		}
		ui.Success("Default provider set to %s", args[0])
		return nil
	},
}

func init() {
	providerCmd.AddCommand(providerListCmd)
	providerCmd.AddCommand(providerDefaultCmd)
	rootCmd.AddCommand(providerCmd)
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
