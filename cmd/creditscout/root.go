package main

import (
	"log/slog"

	"github.com/spf13/cobra"

	"creditscout/internal/config"
	"creditscout/internal/logger"
)

var (
	cfgPath string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "creditscout",
	Short: "Automated credit research pipeline",
	Long: `creditscout searches configured research topics on a schedule, matches
the results against a locally trained reference corpus, selects the most
relevant documents with an LLM and emails the report. It also maintains the
reference corpus incrementally and tracks API token spend against hard
per-provider budgets.`,
	SilenceUsage:  true,
	SilenceErrors: false,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if verbose {
			logger.SetLevel(slog.LevelDebug)
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "", "path to YAML config file (default ./config.yaml, then ~/.config/creditscout/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
}

func loadConfig() (*config.AppConfig, error) {
	if cfgPath != "" {
		return config.Load(cfgPath)
	}
	cfg, path, err := config.LoadDefault()
	if err != nil {
		return nil, err
	}
	logger.Debug("using config", "path", path)
	return cfg, nil
}
