// Package pipeline orchestrates the scheduled research workflow: search the
// configured topics, match results against the trained vector index, pick
// the best documents with an LLM and email the report.
package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"creditscout/internal/budget"
	"creditscout/internal/domain"
	"creditscout/internal/email"
	"creditscout/internal/logger"
	"creditscout/internal/search"
)

// Searcher runs recency-filtered topic searches.
type Searcher interface {
	SearchTopics(ctx context.Context, topics []string, timeFilter string) ([]domain.Article, error)
}

// Matcher scores free text against the trained reference index.
type Matcher interface {
	Query(query string, topK int) ([]domain.SearchResult, error)
}

// Selector is the chat model used for final document selection.
type Selector interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// Mailer delivers the final report.
type Mailer interface {
	Send(subject, body string) error
}

// UsageSource exposes the run's accumulated API usage.
type UsageSource interface {
	TotalsByProvider() map[string]budget.Totals
}

// Candidate is one article that survived the vector similarity stage.
type Candidate struct {
	Index      int     `json:"index"`
	Topic      string  `json:"topic"`
	Content    string  `json:"content"`
	Similarity float64 `json:"similarity"`
}

// Config tunes the filter and email stages.
type Config struct {
	Topics         []string
	TimeFilter     string
	TopK           int
	SelectionCount int
	PreviewChars   int
	Subject        string
	ResultsPath    string
	ReportPath     string
}

// Report is the persisted outcome of one workflow run.
type Report struct {
	StartedAt    time.Time                `json:"started_at"`
	FinishedAt   time.Time                `json:"finished_at"`
	SearchStats  search.Statistics        `json:"search_stats"`
	Candidates   int                      `json:"candidates"`
	Selected     []Candidate              `json:"selected"`
	AverageScore float64                  `json:"average_similarity"`
	EmailSent    bool                     `json:"email_sent"`
	Usage        map[string]budget.Totals `json:"usage_by_provider,omitempty"`
	Error        string                   `json:"error,omitempty"`
}

// Pipeline runs the search, filter and email phases in order.
type Pipeline struct {
	cfg      Config
	searcher Searcher
	matcher  Matcher
	selector Selector
	mailer   Mailer
	usage    UsageSource
	now      func() time.Time
}

func New(cfg Config, searcher Searcher, matcher Matcher, selector Selector, mailer Mailer, usage UsageSource) *Pipeline {
	if cfg.TimeFilter == "" {
		cfg.TimeFilter = "week"
	}
	if cfg.TopK <= 0 {
		cfg.TopK = 5
	}
	if cfg.SelectionCount <= 0 {
		cfg.SelectionCount = 2
	}
	if cfg.PreviewChars <= 0 {
		cfg.PreviewChars = 1000
	}
	if cfg.Subject == "" {
		cfg.Subject = "Credit Research Selection Report"
	}
	return &Pipeline{
		cfg:      cfg,
		searcher: searcher,
		matcher:  matcher,
		selector: selector,
		mailer:   mailer,
		usage:    usage,
		now:      time.Now,
	}
}

// Run executes the full workflow. A failed search or empty selection aborts
// the run with an error recorded in the report; a failed email send does
// too, since an unsent report defeats the point of the run.
func (p *Pipeline) Run(ctx context.Context) (Report, error) {
	rep := Report{StartedAt: p.now()}

	articles, err := p.searcher.SearchTopics(ctx, p.cfg.Topics, p.cfg.TimeFilter)
	if err != nil {
		return p.fail(rep, fmt.Errorf("search phase: %w", err))
	}
	rep.SearchStats = search.Stats(articles)
	if rep.SearchStats.SuccessfulSearches == 0 {
		return p.fail(rep, fmt.Errorf("search phase: no topic succeeded"))
	}
	if p.cfg.ResultsPath != "" {
		if err := search.SaveArticles(p.cfg.ResultsPath, articles); err != nil {
			logger.Warn("failed to save search results", "path", p.cfg.ResultsPath, "error", err)
		}
	}

	candidates, err := p.filterByVector(articles)
	if err != nil {
		return p.fail(rep, fmt.Errorf("filter phase: %w", err))
	}
	rep.Candidates = len(candidates)
	if len(candidates) == 0 {
		return p.fail(rep, fmt.Errorf("filter phase: no valid candidates"))
	}

	selected := p.filterByLLM(ctx, candidates)
	rep.Selected = selected
	rep.AverageScore = averageSimilarity(selected)

	body := email.FormatReport(toReportDocs(selected), email.ReportStats{
		TotalCandidates:   len(candidates),
		FinalSelection:    len(selected),
		AverageSimilarity: rep.AverageScore,
	}, p.usageTotals(), p.cfg.PreviewChars)

	if err := p.mailer.Send(p.cfg.Subject, body); err != nil {
		return p.fail(rep, fmt.Errorf("email phase: %w", err))
	}
	rep.EmailSent = true
	rep.Usage = p.usageTotals()
	rep.FinishedAt = p.now()

	if p.cfg.ReportPath != "" {
		if err := saveReport(p.cfg.ReportPath, rep); err != nil {
			logger.Warn("failed to save workflow report", "path", p.cfg.ReportPath, "error", err)
		}
	}
	return rep, nil
}

// filterByVector scores every successful article against the trained index
// and keeps the topK highest-scoring ones.
func (p *Pipeline) filterByVector(articles []domain.Article) ([]Candidate, error) {
	var candidates []Candidate
	for i, a := range articles {
		if !a.Success || strings.TrimSpace(a.Content) == "" {
			continue
		}
		results, err := p.matcher.Query(a.Content, 1)
		if err != nil {
			logger.Warn("similarity query failed", "topic", a.Topic, "error", err)
			continue
		}
		score := 0.0
		if len(results) > 0 {
			score = results[0].Score
		}
		candidates = append(candidates, Candidate{
			Index:      i,
			Topic:      a.Topic,
			Content:    a.Content,
			Similarity: score,
		})
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].Similarity > candidates[j].Similarity })
	if len(candidates) > p.cfg.TopK {
		candidates = candidates[:p.cfg.TopK]
	}
	logger.Info("vector filter complete", "candidates", len(candidates))
	return candidates, nil
}

// filterByLLM asks the chat model to pick the final documents. On any
// failure it falls back to similarity order.
func (p *Pipeline) filterByLLM(ctx context.Context, candidates []Candidate) []Candidate {
	prompt := p.selectionPrompt(candidates)
	answer, err := p.selector.Complete(ctx, prompt)
	if err != nil {
		logger.Warn("llm selection failed, falling back to similarity order", "error", err)
		return topBySimilarity(candidates, p.cfg.SelectionCount)
	}
	var parsed struct {
		SelectedIndices []int  `json:"selected_indices"`
		Reason          string `json:"reason"`
	}
	if err := json.Unmarshal([]byte(extractJSON(answer)), &parsed); err != nil || len(parsed.SelectedIndices) == 0 {
		logger.Warn("llm selection unparseable, falling back to similarity order")
		return topBySimilarity(candidates, p.cfg.SelectionCount)
	}
	byIndex := make(map[int]Candidate, len(candidates))
	for _, c := range candidates {
		byIndex[c.Index] = c
	}
	var selected []Candidate
	for _, idx := range parsed.SelectedIndices {
		if c, ok := byIndex[idx]; ok {
			selected = append(selected, c)
		}
		if len(selected) == p.cfg.SelectionCount {
			break
		}
	}
	if len(selected) == 0 {
		return topBySimilarity(candidates, p.cfg.SelectionCount)
	}
	logger.Info("llm selection complete", "selected", len(selected), "reason", parsed.Reason)
	return selected
}

func (p *Pipeline) selectionPrompt(candidates []Candidate) string {
	previews := make([]Candidate, len(candidates))
	for i, c := range candidates {
		c.Content = preview(c.Content, p.cfg.PreviewChars)
		previews[i] = c
	}
	data, _ := json.MarshalIndent(previews, "", "  ")
	return fmt.Sprintf(`Select the %d most relevant and valuable documents from the following %d candidates about credit ratings and credit bureau research.

Selection criteria:
1. Strong relevance to credit ratings, credit reporting systems and financial regulation
2. Timely information with practical reference value
3. Authoritative sources and substantive content

Candidate documents:
%s

Answer with JSON containing the chosen index values and a short reason:
{"selected_indices": [0, 1], "reason": "..."}`,
		p.cfg.SelectionCount, len(candidates), string(data))
}

func (p *Pipeline) usageTotals() map[string]budget.Totals {
	if p.usage == nil {
		return nil
	}
	return p.usage.TotalsByProvider()
}

func (p *Pipeline) fail(rep Report, err error) (Report, error) {
	rep.Error = err.Error()
	rep.FinishedAt = p.now()
	rep.Usage = p.usageTotals()
	if p.cfg.ReportPath != "" {
		if serr := saveReport(p.cfg.ReportPath, rep); serr != nil {
			logger.Warn("failed to save workflow report", "path", p.cfg.ReportPath, "error", serr)
		}
	}
	return rep, err
}

func topBySimilarity(candidates []Candidate, n int) []Candidate {
	sorted := make([]Candidate, len(candidates))
	copy(sorted, candidates)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Similarity > sorted[j].Similarity })
	if n > len(sorted) {
		n = len(sorted)
	}
	return sorted[:n]
}

func averageSimilarity(selected []Candidate) float64 {
	if len(selected) == 0 {
		return 0
	}
	sum := 0.0
	for _, c := range selected {
		sum += c.Similarity
	}
	return sum / float64(len(selected))
}

func toReportDocs(selected []Candidate) []email.SelectedDocument {
	docs := make([]email.SelectedDocument, len(selected))
	for i, c := range selected {
		docs[i] = email.SelectedDocument{Topic: c.Topic, Similarity: c.Similarity, Content: c.Content}
	}
	return docs
}

// extractJSON strips markdown code fences that chat models like to wrap
// around JSON answers.
func extractJSON(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		if i := strings.LastIndex(s, "```"); i >= 0 {
			s = s[:i]
		}
		return strings.TrimSpace(s)
	}
	if start := strings.Index(s, "{"); start >= 0 {
		if end := strings.LastIndex(s, "}"); end > start {
			return s[start : end+1]
		}
	}
	return s
}

func preview(content string, n int) string {
	r := []rune(strings.TrimSpace(content))
	if len(r) <= n {
		return string(r)
	}
	return string(r[:n]) + "..."
}
