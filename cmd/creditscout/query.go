package main

import (
	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"creditscout/internal/logger"
	"creditscout/internal/tui"
)

var queryCmd = &cobra.Command{
	Use:   "query",
	Short: "Interactively search the trained reference corpus",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		svc, err := buildService(cfg, nil, nil)
		if err != nil {
			return err
		}
		docs, err := loadCorpus(cfg)
		if err != nil {
			return err
		}
		summary, err := svc.IndexDocuments(docs)
		if err != nil {
			return err
		}
		logger.Info("corpus indexed", "documents", len(docs))

		m := tui.New(svc, summary)
		_, err = tea.NewProgram(m).Run()
		return err
	},
}

func init() {
	rootCmd.AddCommand(queryCmd)
}
