package search

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"creditscout/internal/domain"
)

type usageRecorder struct {
	mu    sync.Mutex
	calls []struct {
		provider string
		model    string
		in, out  int
	}
}

func (r *usageRecorder) LogUsage(provider, model string, in, out int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, struct {
		provider string
		model    string
		in, out  int
	}{provider, model, in, out})
	return nil
}

func newTestClient(t *testing.T, url string, rep domain.UsageReporter) *Client {
	t.Helper()
	t.Setenv("TEST_SEARCH_KEY", "test-key")
	c, err := NewClient(Config{
		BaseURL:   url,
		APIKeyEnv: "TEST_SEARCH_KEY",
		Model:     "sonar",
		Timeout:   5 * time.Second,
		Reporter:  rep,
	})
	require.NoError(t, err)
	return c
}

func TestNewClient_RequiresAPIKey(t *testing.T) {
	t.Setenv("TEST_SEARCH_KEY", "")
	_, err := NewClient(Config{APIKeyEnv: "TEST_SEARCH_KEY"})
	assert.Error(t, err)
}

func TestSearchTopic_Success(t *testing.T) {
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{"content": "rating agency news"}},
			},
			"usage": map[string]any{"prompt_tokens": 120, "completion_tokens": 340},
		})
	}))
	defer srv.Close()

	rec := &usageRecorder{}
	c := newTestClient(t, srv.URL, rec)

	art := c.SearchTopic(context.Background(), "credit rating regulation", "week")
	require.True(t, art.Success)
	assert.Equal(t, "rating agency news", art.Content)
	assert.Equal(t, 120, art.InputTokens)
	assert.Equal(t, 340, art.OutputTokens)
	assert.Equal(t, "week", gotBody["search_recency_filter"])
	assert.Equal(t, "sonar", gotBody["model"])

	require.Len(t, rec.calls, 1)
	assert.Equal(t, "perplexity", rec.calls[0].provider)
	assert.Equal(t, 120, rec.calls[0].in)
	assert.Equal(t, 340, rec.calls[0].out)
}

func TestSearchTopic_FailureIsCapturedNotReturned(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad request", http.StatusBadRequest)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, nil)
	art := c.SearchTopic(context.Background(), "broken topic", "week")
	assert.False(t, art.Success)
	assert.NotEmpty(t, art.Error)
	assert.Empty(t, art.Content)
}

func TestSearchTopic_RetriesOn429(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.Header().Set("Retry-After", "0")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{"content": "ok after retry"}},
			},
		})
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, nil)
	art := c.SearchTopic(context.Background(), "retry topic", "month")
	require.True(t, art.Success)
	assert.Equal(t, "ok after retry", art.Content)
	assert.Equal(t, 2, calls)
}

func TestSearchTopics_IsolatesPerTopicFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Messages []struct {
				Content string `json:"content"`
			} `json:"messages"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		if len(body.Messages) > 1 && body.Messages[1].Content ==
			"Find recent research and analysis about bad. Include policy documents, research papers, and analytical reports from financial institutions, central banks, and regulatory bodies." {
			http.Error(w, "nope", http.StatusBadRequest)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{"content": "fine"}},
			},
		})
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, nil)
	articles, err := c.SearchTopics(context.Background(), []string{"good", "bad", "also good"}, "week")
	require.NoError(t, err)
	require.Len(t, articles, 3)
	assert.True(t, articles[0].Success)
	assert.False(t, articles[1].Success)
	assert.True(t, articles[2].Success)

	st := Stats(articles)
	assert.Equal(t, 3, st.TotalSearches)
	assert.Equal(t, 2, st.SuccessfulSearches)
	assert.Equal(t, 1, st.FailedSearches)
	assert.Equal(t, len("fine")*2, st.TotalContentLength)
}

func TestSaveLoadArticles(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "results.json")
	in := []domain.Article{
		{Topic: "a", Content: "x", Success: true, Timestamp: time.Now().UTC().Truncate(time.Second)},
		{Topic: "b", Error: "failed", Success: false},
	}
	require.NoError(t, SaveArticles(path, in))

	out, err := LoadArticles(path)
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, "a", out[0].Topic)
	assert.False(t, out[1].Success)

	missing, err := LoadArticles(filepath.Join(t.TempDir(), "missing.json"))
	require.NoError(t, err)
	assert.Nil(t, missing)
}
