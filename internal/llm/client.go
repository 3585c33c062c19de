package llm

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
)

// Client is an OpenAI-compatible chat-completions client used for document
// selection and LLM-assisted chunking.
type Client struct {
	provider    string
	baseURL     string
	apiKey      string
	model       string
	maxTokens   int
	temperature float64
	client      *http.Client
	maxRetries  int
	reporter    domain.UsageReporter
}

// Config configures the chat client.
type Config struct {
	Provider    string
	BaseURL     string
	APIKeyEnv   string
	Model       string
	MaxTokens   int
	Temperature float64
	Timeout     time.Duration
	Reporter    domain.UsageReporter
}

// NewClient creates a chat client. The API key is read from the named
// environment variable.
func NewClient(cfg Config) (*Client, error) {
	key := os.Getenv(cfg.APIKeyEnv)
	if key == "" {
		return nil, fmt.Errorf("missing API key in env %s", cfg.APIKeyEnv)
	}
	if cfg.Provider == "" {
		cfg.Provider = "qwen"
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://dashscope.aliyuncs.com/compatible-mode/v1"
	}
	if cfg.Model == "" {
		cfg.Model = "qwen-plus"
	}
	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = 2000
	}
	t := cfg.Timeout
	if t == 0 {
		t = 60 * time.Second
	}
	return &Client{
		provider:    cfg.Provider,
		baseURL:     cfg.BaseURL,
		apiKey:      key,
		model:       cfg.Model,
		maxTokens:   cfg.MaxTokens,
		temperature: cfg.Temperature,
		client:      &http.Client{Timeout: t},
		maxRetries:  3,
		reporter:    cfg.Reporter,
	}, nil
}

// Provider returns the provider identifier used for usage accounting.
func (c *Client) Provider() string { return c.provider }

// Model returns the configured model name.
func (c *Client) Model() string { return c.model }

// Complete sends a single-turn prompt and returns the model's answer text.
func (c *Client) Complete(ctx context.Context, prompt string) (string, error) {
	body := map[string]any{
		"model": c.model,
		"messages": []map[string]string{
			{"role": "user", "content": prompt},
		},
		"max_tokens":  c.maxTokens,
		"temperature": c.temperature,
	}
	data, _ := json.Marshal(body)
	url := fmt.Sprintf("%s/chat/completions", c.baseURL)

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
		if err != nil {
			return "", err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+c.apiKey)

		resp, err := c.client.Do(req)
		if err != nil {
			if attempt < c.maxRetries && ctx.Err() == nil {
				time.Sleep(retryDelay(attempt))
				continue
			}
			return "", err
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
			return "", fmt.Errorf("chat request failed: %s", resp.Status)
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
			return "", fmt.Errorf("chat request failed: %s", resp.Status)
		}
		if decErr != nil {
			return "", decErr
		}
		if c.reporter != nil && (out.Usage.PromptTokens > 0 || out.Usage.CompletionTokens > 0) {
			_ = c.reporter.LogUsage(c.provider, c.model, out.Usage.PromptTokens, out.Usage.CompletionTokens)
		}
		if len(out.Choices) == 0 {
			return "", errors.New("no choices returned")
		}
		return out.Choices[0].Message.Content, nil
	}
	return "", errors.New("no response")
}

func retryDelay(attempt int) time.Duration {
	d := 500 * time.Millisecond << attempt
	if d > 10*time.Second {
		d = 10 * time.Second
	}
	return d
}
