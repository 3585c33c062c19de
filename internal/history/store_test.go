package history

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"creditscout/internal/budget"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestOpen_CreatesParentDirectories(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "deeper", "history.db")
	s, err := Open(path)
	require.NoError(t, err)
	defer s.Close()
	assert.Equal(t, path, s.Path())
}

func TestRecordUsage_AndTotals(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	now := time.Now()
	entries := []budget.Entry{
		{Timestamp: now, Provider: "perplexity", Model: "sonar", InputTokens: 100, OutputTokens: 400, CostUSD: 0.01},
		{Timestamp: now, Provider: "perplexity", Model: "sonar", InputTokens: 200, OutputTokens: 300, CostUSD: 0.02},
		{Timestamp: now, Provider: "qwen", Model: "qwen-plus", InputTokens: 50, OutputTokens: 50, CostUSD: 0.001},
	}
	require.NoError(t, s.RecordUsage(ctx, entries))

	totals, err := s.Totals(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1000, totals["perplexity"].Tokens)
	assert.InDelta(t, 0.03, totals["perplexity"].CostUSD, 1e-9)
	assert.Equal(t, 100, totals["qwen"].Tokens)
}

func TestRecordUsage_EmptyIsNoop(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.RecordUsage(context.Background(), nil))

	totals, err := s.Totals(context.Background())
	require.NoError(t, err)
	assert.Empty(t, totals)
}

func TestTotalsSince_FiltersByTime(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	old := time.Now().Add(-48 * time.Hour)
	recent := time.Now()
	require.NoError(t, s.RecordUsage(ctx, []budget.Entry{
		{Timestamp: old, Provider: "perplexity", Model: "sonar", InputTokens: 1000},
		{Timestamp: recent, Provider: "perplexity", Model: "sonar", InputTokens: 10},
	}))

	totals, err := s.TotalsSince(ctx, time.Now().Add(-time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 10, totals["perplexity"].Tokens)
}

func TestRecordRun_AndRecentRuns(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	base := time.Now().Add(-time.Hour)
	for i := 0; i < 3; i++ {
		_, err := s.RecordRun(ctx, RunSummary{
			StartedAt: base.Add(time.Duration(i) * time.Minute),
			Topics:    14,
			Successes: 12 + i,
			Failures:  2 - i%2,
			Selected:  2,
			EmailedTo: "analyst@example.com",
		})
		require.NoError(t, err)
	}

	runs, err := s.RecentRuns(ctx, 2)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	// newest first
	assert.Equal(t, 14, runs[0].Successes)
	assert.Equal(t, 13, runs[1].Successes)
	assert.True(t, runs[0].StartedAt.After(runs[1].StartedAt))
}
