package email

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"creditscout/internal/budget"
)

// SelectedDocument is one article chosen for the report.
type SelectedDocument struct {
	Topic      string
	Similarity float64
	Content    string
}

// ReportStats summarizes the selection phase for the report header.
type ReportStats struct {
	TotalCandidates   int
	FinalSelection    int
	AverageSimilarity float64
}

// FormatReport renders the plain-text report body. previewChars bounds how
// much of each document's content is included.
func FormatReport(docs []SelectedDocument, stats ReportStats, usage map[string]budget.Totals, previewChars int) string {
	if previewChars <= 0 {
		previewChars = 300
	}
	var b strings.Builder
	rule := strings.Repeat("=", 50)

	b.WriteString("Credit Research Selection Report\n")
	b.WriteString(rule + "\n\n")
	fmt.Fprintf(&b, "Generated: %s\n", time.Now().Format("2006-01-02 15:04:05"))
	b.WriteString("Statistics:\n")
	fmt.Fprintf(&b, "  - Candidate documents: %d\n", stats.TotalCandidates)
	fmt.Fprintf(&b, "  - Final selection:      %d\n", stats.FinalSelection)
	fmt.Fprintf(&b, "  - Average similarity:   %.3f\n", stats.AverageSimilarity)

	if len(docs) == 0 {
		b.WriteString("\nNo relevant documents were found this run.\n")
	} else {
		b.WriteString("\nSelected documents:\n")
		for i, doc := range docs {
			fmt.Fprintf(&b, "\nDocument %d: %s\n", i+1, doc.Topic)
			fmt.Fprintf(&b, "Similarity: %.3f\n", doc.Similarity)
			fmt.Fprintf(&b, "Preview: %s\n", preview(doc.Content, previewChars))
		}
	}

	if len(usage) > 0 {
		b.WriteString("\nAPI usage this run:\n")
		providers := make([]string, 0, len(usage))
		for p := range usage {
			providers = append(providers, p)
		}
		sort.Strings(providers)
		for _, p := range providers {
			t := usage[p]
			fmt.Fprintf(&b, "  - %s: %d tokens, $%.4f\n", p, t.Tokens, t.CostUSD)
		}
	}

	b.WriteString("\n" + rule + "\n")
	b.WriteString("This message was generated automatically by the credit research pipeline.\n")
	return b.String()
}

func preview(content string, n int) string {
	r := []rune(strings.TrimSpace(content))
	if len(r) <= n {
		return string(r)
	}
	return string(r[:n]) + "..."
}
