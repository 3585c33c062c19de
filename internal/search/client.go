package search

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"time"

	"creditscout/internal/domain"
	"creditscout/internal/logger"
)

const systemPrompt = `You are a professional financial research assistant specializing in credit research and risk management.
Your expertise covers:
- Chinese financial regulations and policies
- Credit scoring and risk assessment technologies
- Financial technology innovations
- Data privacy and security in finance
- International best practices in credit industry

Provide accurate, up-to-date information with authoritative sources and detailed analysis.`

// Client talks to a Perplexity-compatible chat-completions endpoint that
// supports recency-filtered web search.
type Client struct {
	provider   string
	baseURL    string
	apiKey     string
	model      string
	maxTokens  int
	client     *http.Client
	maxRetries int
	reporter   domain.UsageReporter
	now        func() time.Time
}

// Config configures the search client.
type Config struct {
	BaseURL   string
	APIKeyEnv string
	Model     string
	MaxTokens int
	Timeout   time.Duration
	Reporter  domain.UsageReporter
}

// Statistics aggregates the outcome of one search run.
type Statistics struct {
	TotalSearches      int `json:"total_searches"`
	SuccessfulSearches int `json:"successful_searches"`
	FailedSearches     int `json:"failed_searches"`
	TotalContentLength int `json:"total_content_length"`
}

// NewClient creates a search client. The API key is read from the named
// environment variable.
func NewClient(cfg Config) (*Client, error) {
	key := os.Getenv(cfg.APIKeyEnv)
	if key == "" {
		return nil, fmt.Errorf("missing API key in env %s", cfg.APIKeyEnv)
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.perplexity.ai"
	}
	if cfg.Model == "" {
		cfg.Model = "sonar"
	}
	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = 4000
	}
	t := cfg.Timeout
	if t == 0 {
		t = 120 * time.Second
	}
	return &Client{
		provider:   "perplexity",
		baseURL:    cfg.BaseURL,
		apiKey:     key,
		model:      cfg.Model,
		maxTokens:  cfg.MaxTokens,
		client:     &http.Client{Timeout: t},
		maxRetries: 3,
		reporter:   cfg.Reporter,
		now:        time.Now,
	}, nil
}

// SearchTopic runs one recency-filtered search and returns the article.
// Failures are captured inside the article rather than returned, so one bad
// topic never sinks a run.
func (c *Client) SearchTopic(ctx context.Context, topic, timeFilter string) domain.Article {
	art := domain.Article{
		Topic:      topic,
		TimeFilter: timeFilter,
		Model:      c.model,
		Timestamp:  c.now(),
	}
	content, in, out, err := c.complete(ctx, topic, timeFilter)
	art.InputTokens = in
	art.OutputTokens = out
	if c.reporter != nil && (in > 0 || out > 0) {
		_ = c.reporter.LogUsage(c.provider, c.model, in, out)
	}
	if err != nil {
		art.Error = err.Error()
		return art
	}
	art.Content = content
	art.Success = true
	return art
}

// SearchTopics runs every topic in order and reports progress.
func (c *Client) SearchTopics(ctx context.Context, topics []string, timeFilter string) ([]domain.Article, error) {
	logger.Info("starting search", "topics", len(topics), "time_filter", timeFilter)
	articles := make([]domain.Article, 0, len(topics))
	for i, topic := range topics {
		if err := ctx.Err(); err != nil {
			return articles, err
		}
		logger.Info("searching topic", "n", i+1, "of", len(topics), "topic", topic)
		art := c.SearchTopic(ctx, topic, timeFilter)
		if art.Success {
			logger.Info("topic ok", "topic", topic, "chars", len(art.Content))
		} else {
			logger.Warn("topic failed", "topic", topic, "error", art.Error)
		}
		articles = append(articles, art)
	}
	return articles, nil
}

// Stats summarizes a slice of articles.
func Stats(articles []domain.Article) Statistics {
	st := Statistics{TotalSearches: len(articles)}
	for _, a := range articles {
		if a.Success {
			st.SuccessfulSearches++
			st.TotalContentLength += len(a.Content)
		} else {
			st.FailedSearches++
		}
	}
	return st
}

func (c *Client) complete(ctx context.Context, topic, timeFilter string) (content string, inTokens, outTokens int, err error) {
	prompt := fmt.Sprintf("Find recent research and analysis about %s. Include policy documents, research papers, and analytical reports from financial institutions, central banks, and regulatory bodies.", topic)
	body := map[string]any{
		"model": c.model,
		"messages": []map[string]string{
			{"role": "system", "content": systemPrompt},
			{"role": "user", "content": prompt},
		},
		"search_recency_filter": timeFilter,
		"return_citations":      true,
		"return_images":         false,
		"temperature":           0.2,
		"top_p":                 0.9,
		"max_tokens":            c.maxTokens,
	}
	data, _ := json.Marshal(body)
	url := fmt.Sprintf("%s/chat/completions", c.baseURL)

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		req, rerr := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
		if rerr != nil {
			return "", 0, 0, rerr
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+c.apiKey)

		resp, derr := c.client.Do(req)
		if derr != nil {
			if attempt < c.maxRetries && ctx.Err() == nil {
				time.Sleep(retryDelay(attempt))
				continue
			}
			return "", 0, 0, derr
		}

		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			delay := retryDelay(attempt)
			if ra := resp.Header.Get("Retry-After"); ra != "" {
				if secs, aerr := strconv.Atoi(ra); aerr == nil {
					delay = time.Duration(secs) * time.Second
				}
			}
			_ = resp.Body.Close()
			if attempt < c.maxRetries {
				time.Sleep(delay)
				continue
			}
			return "", 0, 0, fmt.Errorf("search request failed: %s", resp.Status)
		}

		var out struct {
			Choices []struct {
				Message struct {
					Content string `json:"content"`
				} `json:"message"`
			} `json:"choices"`
			Usage struct {
				PromptTokens     int `json:"prompt_tokens"`
				CompletionTokens int `json:"completion_tokens"`
			} `json:"usage"`
		}
		decErr := json.NewDecoder(resp.Body).Decode(&out)
		_ = resp.Body.Close()
		if resp.StatusCode >= 300 {
			return "", 0, 0, fmt.Errorf("search request failed: %s", resp.Status)
		}
		if decErr != nil {
			return "", 0, 0, decErr
		}
		if len(out.Choices) == 0 {
			return "", out.Usage.PromptTokens, out.Usage.CompletionTokens, errors.New("no choices returned")
		}
		return out.Choices[0].Message.Content, out.Usage.PromptTokens, out.Usage.CompletionTokens, nil
	}
	return "", 0, 0, errors.New("no response")
}

func retryDelay(attempt int) time.Duration {
	d := 500 * time.Millisecond << attempt
	if d > 10*time.Second {
		d = 10 * time.Second
	}
	return d
}
