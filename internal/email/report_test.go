package email

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"creditscout/internal/budget"
)

func TestFormatReport_IncludesDocsStatsAndUsage(t *testing.T) {
	docs := []SelectedDocument{
		{Topic: "credit rating regulation", Similarity: 0.912, Content: "Regulators tightened oversight."},
		{Topic: "consumer credit bureaus", Similarity: 0.844, Content: "Bureau data sharing expanded."},
	}
	stats := ReportStats{TotalCandidates: 14, FinalSelection: 2, AverageSimilarity: 0.878}
	usage := map[string]budget.Totals{
		"perplexity": {Tokens: 52000, CostUSD: 0.41},
		"qwen":       {Tokens: 8000, CostUSD: 0.01},
	}

	out := FormatReport(docs, stats, usage, 1000)

	assert.Contains(t, out, "Document 1: credit rating regulation")
	assert.Contains(t, out, "Similarity: 0.912")
	assert.Contains(t, out, "Candidate documents: 14")
	assert.Contains(t, out, "perplexity: 52000 tokens, $0.4100")
	assert.Contains(t, out, "qwen: 8000 tokens")
	// providers sorted deterministically
	assert.Less(t, strings.Index(out, "perplexity"), strings.Index(out, "qwen"))
}

func TestFormatReport_TruncatesPreview(t *testing.T) {
	long := strings.Repeat("x", 500)
	out := FormatReport([]SelectedDocument{{Topic: "t", Content: long}}, ReportStats{}, nil, 100)
	assert.Contains(t, out, strings.Repeat("x", 100)+"...")
	assert.NotContains(t, out, strings.Repeat("x", 101))
}

func TestFormatReport_EmptySelection(t *testing.T) {
	out := FormatReport(nil, ReportStats{TotalCandidates: 5}, nil, 0)
	assert.Contains(t, out, "No relevant documents were found")
}

func TestNewSender_ValidatesCredentials(t *testing.T) {
	t.Setenv("TEST_MAIL_USER", "")
	t.Setenv("TEST_MAIL_PASS", "")
	_, err := NewSender(Config{UserEnv: "TEST_MAIL_USER", PassEnv: "TEST_MAIL_PASS", To: "x@example.com"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "TEST_MAIL_USER")

	t.Setenv("TEST_MAIL_USER", "u@example.com")
	t.Setenv("TEST_MAIL_PASS", "secret")
	s, err := NewSender(Config{UserEnv: "TEST_MAIL_USER", PassEnv: "TEST_MAIL_PASS", To: "x@example.com"})
	require.NoError(t, err)
	assert.Equal(t, "smtp.qq.com", s.server)
	assert.Equal(t, 465, s.port)
}

func TestBuildMessage_Headers(t *testing.T) {
	msg := buildMessage("from@example.com", "to@example.com", "weekly report", "body text")
	assert.True(t, strings.HasPrefix(msg, "From: from@example.com\r\n"))
	assert.Contains(t, msg, "Subject: weekly report\r\n")
	assert.True(t, strings.HasSuffix(msg, "\r\n\r\nbody text"))
}
