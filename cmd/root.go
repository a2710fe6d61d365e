package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/hatchpad/hatchpad/internal/backend"
	"github.com/hatchpad/hatchpad/internal/git"
	"github.com/hatchpad/hatchpad/internal/logging"
	"github.com/hatchpad/hatchpad/internal/orchestrator"
	"github.com/hatchpad/hatchpad/internal/output"
	"github.com/hatchpad/hatchpad/internal/provider"
	"github.com/hatchpad/hatchpad/internal/sandbox"
	"github.com/hatchpad/hatchpad/internal/skills"
	"github.com/hatchpad/hatchpad/internal/store"
)

// Package-level shared dependencies, initialized in cobra.OnInitialize.
var (
	ui        *output.UI
	dataStore store.Store
	logger    *zap.Logger

	verbose bool

	buildVersion = "dev"
	buildCommit  = "none"
	buildDate    = "unknown"
)

var rootCmd = &cobra.Command{
	Use:   "hatchpad",
	Short: "Describe features, review plans, build in remote sandboxes",
	Long: `hatchpad lets a user describe a feature in plain language, has an AI
agent plan it, and builds the approved plan inside a disposable remote
sandbox while streaming progress back for review.`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	DisableAutoGenTag: true,
}

// Execute is the main entry point called from main.go.
func Execute(version, commit, date string) {
	buildVersion = version
	buildCommit = commit
	buildDate = date

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig, initDeps)

	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output")
	rootCmd.PersistentFlags().String("config", "", "Config file (default ~/.config/hatchpad/config.yaml)")
}

func initConfig() {
	// If --config is explicitly set, use that file
	if cfgFile, _ := rootCmd.PersistentFlags().GetString("config"); cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: cannot find home directory: %v\n", err)
			os.Exit(1)
		}

		configDir := filepath.Join(home, ".config", "hatchpad")
		viper.AddConfigPath(configDir)
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
	}

	viper.SetEnvPrefix("HATCHPAD")
	viper.AutomaticEnv()

	home, _ := os.UserHomeDir()
	defaultConfigDir := filepath.Join(home, ".config", "hatchpad")

	viper.SetDefault("db_path", filepath.Join(defaultConfigDir, "hatchpad.db"))
	viper.SetDefault("port", 8080)
	viper.SetDefault("skills_dir", filepath.Join(defaultConfigDir, "skills"))
	viper.SetDefault("anthropic.api_key", "")
	viper.SetDefault("anthropic.model", "claude-sonnet-4-20250514")
	viper.SetDefault("github.token", "")
	viper.SetDefault("providers.default", "")
	for _, p := range []string{provider.TypeHomestead, provider.TypeMayfly, provider.TypeBolt} {
		viper.SetDefault("providers."+p+".enabled", true)
		viper.SetDefault("providers."+p+".api_key", "")
		viper.SetDefault("providers."+p+".api_url", "")
	}

	// Read config file if it exists (optional)
	_ = viper.ReadInConfig()
}

func initDeps() {
	ui = output.New()
	ui.Verbose = verbose

	var err error
	logger, err = logging.New(verbose)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// getStore returns the shared store, initializing it on first call.
// Lazy so config/version commands run without a db.
func getStore() (store.Store, error) {
	if dataStore != nil {
		return dataStore, nil
	}

	dbPath := viper.GetString("db_path")
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}
	s, err := store.NewSQLiteStore(dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := s.Migrate(rootCmd.Context()); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}

	dataStore = s
	return dataStore, nil
}

// buildRegistry constructs the provider registry from viper config.
func buildRegistry() *provider.Registry {
	reg := provider.NewRegistry()
	handles := provider.NewMemoryHandleCache()

	type factory func(baseURL, apiKey string, handles provider.HandleCache, log *zap.Logger) provider.Provider
	vendors := []struct {
		ptype string
		make  factory
	}{
		{provider.TypeHomestead, func(u, k string, h provider.HandleCache, l *zap.Logger) provider.Provider {
			return provider.NewHomestead(u, k, h, l)
		}},
		{provider.TypeMayfly, func(u, k string, h provider.HandleCache, l *zap.Logger) provider.Provider {
			return provider.NewMayfly(u, k, h, l)
		}},
		{provider.TypeBolt, func(u, k string, h provider.HandleCache, l *zap.Logger) provider.Provider {
			return provider.NewBolt(u, k, h, l)
		}},
	}

	for _, v := range vendors {
		apiURL := viper.GetString("providers." + v.ptype + ".api_url")
		apiKey := viper.GetString("providers." + v.ptype + ".api_key")
		enabled := viper.GetBool("providers." + v.ptype + ".enabled")
		reg.Register(v.make(apiURL, apiKey, handles, logger), enabled)
	}

	if def := viper.GetString("providers.default"); def != "" {
		if err := reg.SetDefault(def); err != nil {
			logger.Warn("configured default provider unusable", zap.String("provider", def), zap.Error(err))
		}
	}
	return reg
}

// buildOrchestrator wires the full service graph behind the CLI and servers.
func buildOrchestrator(s store.Store) (*orchestrator.Orchestrator, *sandbox.Service, *provider.Registry, error) {
	reg := buildRegistry()

	creds := git.NewStaticResolver(map[string]string{
		"github": viper.GetString("github.token"),
	})
	sandboxes := sandbox.NewService(s, reg, creds, logger)

	apiKey := viper.GetString("anthropic.api_key")
	if apiKey == "" {
		apiKey = os.Getenv("ANTHROPIC_API_KEY")
	}
	if apiKey == "" {
		return nil, nil, nil, fmt.Errorf("no Anthropic API key configured (set anthropic.api_key or ANTHROPIC_API_KEY)")
	}
	agent := backend.NewAnthropicBackend(apiKey, viper.GetString("anthropic.model"), logger)

	sk, err := skills.Load(viper.GetString("skills_dir"))
	if err != nil {
		return nil, nil, nil, fmt.Errorf("load skills: %w", err)
	}

	orch := orchestrator.New(s, sandboxes, agent, sk, logger)
	return orch, sandboxes, reg, nil
}
