package main

import (
	"fmt"
	"sort"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"creditscout/internal/pipeline"
	"creditscout/internal/search"
)

var (
	reportFile        string
	reportResultsFile string
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Show the last saved workflow report and search results",
	RunE: func(cmd *cobra.Command, args []string) error {
		rep, err := pipeline.LoadReport(reportFile)
		if err != nil {
			return fmt.Errorf("no saved report at %s, run 'creditscout run' first: %w", reportFile, err)
		}

		color.Cyan("Workflow report, started %s", rep.StartedAt.Local().Format("2006-01-02 15:04"))
		fmt.Printf("  searches:   %d ok, %d failed\n",
			rep.SearchStats.SuccessfulSearches, rep.SearchStats.FailedSearches)
		fmt.Printf("  candidates: %d, selected %d, avg similarity %.3f\n",
			rep.Candidates, len(rep.Selected), rep.AverageScore)
		fmt.Printf("  email sent: %v\n", rep.EmailSent)
		if rep.Error != "" {
			color.Red("  error: %s", rep.Error)
		}
		for _, c := range rep.Selected {
			fmt.Printf("  - [%.3f] %s\n", c.Similarity, c.Topic)
		}
		if len(rep.Usage) > 0 {
			color.Cyan("\nUsage for this run:")
			providers := make([]string, 0, len(rep.Usage))
			for p := range rep.Usage {
				providers = append(providers, p)
			}
			sort.Strings(providers)
			for _, p := range providers {
				t := rep.Usage[p]
				fmt.Printf("  %-12s %10d tokens  $%.4f\n", p, t.Tokens, t.CostUSD)
			}
		}

		articles, err := search.LoadArticles(reportResultsFile)
		if err != nil {
			return err
		}
		if len(articles) > 0 {
			st := search.Stats(articles)
			color.Cyan("\nSaved search results:")
			fmt.Printf("  %d searches, %d ok, %d failed, %d chars of content\n",
				st.TotalSearches, st.SuccessfulSearches, st.FailedSearches, st.TotalContentLength)
			for _, a := range articles {
				status := "ok"
				if !a.Success {
					status = "failed"
				}
				fmt.Printf("  - %-6s %s\n", status, a.Topic)
			}
		}
		return nil
	},
}

func init() {
	reportCmd.Flags().StringVar(&reportFile, "report", "data/workflow_report.json", "saved workflow report to show")
	reportCmd.Flags().StringVar(&reportResultsFile, "results", "data/search_results.json", "saved search results to summarize")
	rootCmd.AddCommand(reportCmd)
}
