package main

import (
	"fmt"
	"sort"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"creditscout/internal/budget"
	"creditscout/internal/config"
	"creditscout/internal/history"
)

var (
	usageSince string
	usageRuns  int
)

var usageCmd = &cobra.Command{
	Use:   "usage",
	Short: "Show archived API token usage and recent runs",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		store, err := history.Open(cfg.History.Path)
		if err != nil {
			return err
		}
		defer store.Close()

		var totals map[string]budget.Totals
		if usageSince != "" {
			d, err := time.ParseDuration(usageSince)
			if err != nil {
				return fmt.Errorf("invalid --since duration: %w", err)
			}
			totals, err = store.TotalsSince(cmd.Context(), time.Now().Add(-d))
			if err != nil {
				return err
			}
		} else {
			totals, err = store.Totals(cmd.Context())
			if err != nil {
				return err
			}
		}

		if len(totals) == 0 {
			fmt.Println("No usage recorded yet.")
		} else {
			color.Cyan("Token usage by provider:")
			providers := make([]string, 0, len(totals))
			for p := range totals {
				providers = append(providers, p)
			}
			sort.Strings(providers)
			for _, p := range providers {
				t := totals[p]
				fmt.Printf("  %-12s %10d tokens  $%.4f\n", p, t.Tokens, t.CostUSD)
			}
			limitWarnings(cfg, totals)
		}

		runs, err := store.RecentRuns(cmd.Context(), usageRuns)
		if err != nil {
			return err
		}
		if len(runs) > 0 {
			color.Cyan("\nRecent runs:")
			for _, r := range runs {
				fmt.Printf("  %s  topics=%d ok=%d failed=%d selected=%d  %.1fs\n",
					r.StartedAt.Local().Format("2006-01-02 15:04"),
					r.Topics, r.Successes, r.Failures, r.Selected, r.DurationSec)
			}
		}
		return nil
	},
}

func limitWarnings(cfg *config.AppConfig, totals map[string]budget.Totals) {
	for provider, limit := range cfg.Budget.Limits {
		t, ok := totals[provider]
		if !ok {
			continue
		}
		if limit.Tokens > 0 && t.Tokens >= limit.Tokens {
			color.Red("  %s has reached its token limit (%d >= %d)", provider, t.Tokens, limit.Tokens)
		}
		if limit.CostUSD > 0 && t.CostUSD >= limit.CostUSD {
			color.Red("  %s has reached its cost limit ($%.4f >= $%.4f)", provider, t.CostUSD, limit.CostUSD)
		}
	}
}

func init() {
	usageCmd.Flags().StringVar(&usageSince, "since", "", "only count usage newer than this duration (e.g. 24h, 168h)")
	usageCmd.Flags().IntVar(&usageRuns, "runs", 10, "number of recent runs to list")
	rootCmd.AddCommand(usageCmd)
}
