package main

import (
	"context"
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"creditscout/internal/budget"
	"creditscout/internal/email"
	"creditscout/internal/history"
	"creditscout/internal/llm"
	"creditscout/internal/logger"
	"creditscout/internal/pipeline"
	"creditscout/internal/search"
)

var (
	runDryRun      bool
	runResultsPath string
	runReportPath  string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the full research workflow: search, filter, email",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		started := time.Now()

		monitor := buildMonitor(cfg)
		if err := monitor.Start(); err != nil {
			return err
		}
		defer func() { _ = monitor.Stop() }()

		llmClient, err := llm.NewClient(llm.Config{
			Provider:    cfg.LLM.Provider,
			BaseURL:     cfg.LLM.BaseURL,
			APIKeyEnv:   cfg.LLM.APIKeyEnv,
			Model:       cfg.LLM.Model,
			MaxTokens:   cfg.LLM.MaxTokens,
			Temperature: cfg.LLM.Temperature,
			Timeout:     time.Duration(cfg.LLM.TimeoutSecs) * time.Second,
			Reporter:    monitor,
		})
		if err != nil {
			return err
		}

		searcher, err := search.NewClient(search.Config{
			BaseURL:   cfg.Search.BaseURL,
			APIKeyEnv: cfg.Search.APIKeyEnv,
			Model:     cfg.Search.Model,
			MaxTokens: cfg.Search.MaxTokens,
			Timeout:   time.Duration(cfg.Search.TimeoutSecs) * time.Second,
			Reporter:  monitor,
		})
		if err != nil {
			return err
		}

		var mailer pipeline.Mailer
		if runDryRun {
			mailer = stdoutMailer{}
		} else {
			sender, err := email.NewSender(email.Config{
				Server:  cfg.Email.SMTPServer,
				Port:    cfg.Email.SMTPPort,
				UserEnv: cfg.Email.UserEnv,
				PassEnv: cfg.Email.PassEnv,
				To:      cfg.Email.To,
			})
			if err != nil {
				return err
			}
			mailer = sender
		}

		// Train the reference index used for candidate scoring.
		svc, err := buildService(cfg, monitor, llmClient)
		if err != nil {
			return err
		}
		docs, err := loadCorpus(cfg)
		if err != nil {
			return err
		}
		if _, err := svc.IndexDocuments(docs); err != nil {
			return fmt.Errorf("index reference corpus: %w", err)
		}
		logger.Info("reference corpus indexed", "documents", len(docs))

		p := pipeline.New(pipeline.Config{
			Topics:         cfg.Search.Topics,
			TimeFilter:     cfg.Search.TimeFilter,
			TopK:           cfg.Filter.TopK,
			SelectionCount: cfg.Filter.SelectionCount,
			PreviewChars:   cfg.Filter.PreviewChars,
			ResultsPath:    runResultsPath,
			ReportPath:     runReportPath,
		}, searcher, svc, llmClient, mailer, monitor)

		rep, runErr := p.Run(cmd.Context())
		archiveRun(cmd.Context(), cfg.History.Path, cfg.Email.To, started, rep, monitor)
		if runErr != nil {
			return runErr
		}

		color.Green("Workflow complete: %d/%d topics succeeded, %d selected, avg similarity %.3f",
			rep.SearchStats.SuccessfulSearches, rep.SearchStats.TotalSearches,
			len(rep.Selected), rep.AverageScore)
		return nil
	},
}

// archiveRun records usage and the run summary; archival failures are logged
// and never fail the run.
func archiveRun(ctx context.Context, dbPath, emailedTo string, started time.Time, rep pipeline.Report, monitor *budget.Monitor) {
	store, err := history.Open(dbPath)
	if err != nil {
		logger.Warn("history archive unavailable", "path", dbPath, "error", err)
		return
	}
	defer store.Close()

	if err := store.RecordUsage(ctx, monitor.Entries()); err != nil {
		logger.Warn("failed to archive usage", "error", err)
	}
	if _, err := store.RecordRun(ctx, history.RunSummary{
		StartedAt:   started,
		Topics:      rep.SearchStats.TotalSearches,
		Successes:   rep.SearchStats.SuccessfulSearches,
		Failures:    rep.SearchStats.FailedSearches,
		Selected:    len(rep.Selected),
		EmailedTo:   emailedTo,
		DurationSec: time.Since(started).Seconds(),
	}); err != nil {
		logger.Warn("failed to archive run summary", "error", err)
	}
}

func init() {
	runCmd.Flags().BoolVar(&runDryRun, "dry-run", false, "print the report instead of emailing it")
	runCmd.Flags().StringVar(&runResultsPath, "results", "data/search_results.json", "where to save raw search results")
	runCmd.Flags().StringVar(&runReportPath, "report", "data/workflow_report.json", "where to save the workflow report")
	rootCmd.AddCommand(runCmd)
}

type stdoutMailer struct{}

func (stdoutMailer) Send(subject, body string) error {
	fmt.Printf("Subject: %s\n\n%s\n", subject, body)
	return nil
}
