package config

import (
	"errors"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// SearchConfig configures the hosted search provider and research topics.
type SearchConfig struct {
	BaseURL     string   `yaml:"base_url"`
	APIKeyEnv   string   `yaml:"api_key_env"`
	Model       string   `yaml:"model"`
	Topics      []string `yaml:"topics"`
	TimeFilter  string   `yaml:"time_filter"`
	MaxTokens   int      `yaml:"max_tokens"`
	TimeoutSecs int      `yaml:"timeout_secs"`
}

// LLMConfig configures the chat-completion provider used for document
// selection and LLM-assisted chunking.
type LLMConfig struct {
	Provider    string  `yaml:"provider"`
	BaseURL     string  `yaml:"base_url"`
	APIKeyEnv   string  `yaml:"api_key_env"`
	Model       string  `yaml:"model"`
	MaxTokens   int     `yaml:"max_tokens"`
	Temperature float64 `yaml:"temperature"`
	TimeoutSecs int     `yaml:"timeout_secs"`
}

// OpenAIEmbedderConfig holds configuration for the OpenAI-compatible embedder.
type OpenAIEmbedderConfig struct {
	Provider    string `yaml:"provider"`
	BaseURL     string `yaml:"base_url"`
	APIKeyEnv   string `yaml:"api_key_env"`
	Model       string `yaml:"model"`
	TimeoutSecs int    `yaml:"timeout_secs"`
	BatchSize   int    `yaml:"batch_size"`
}

// EmbedderConfig selects and configures the text embedder implementation.
type EmbedderConfig struct {
	Type   string                `yaml:"type"`
	OpenAI *OpenAIEmbedderConfig `yaml:"openai,omitempty"`
}

// ChunkerConfig configures how documents are split into chunks.
type ChunkerConfig struct {
	Type              string `yaml:"type"`
	SentencesPerChunk int    `yaml:"sentences_per_chunk"`
	OverlapSentences  int    `yaml:"overlap_sentences"`
	MaxChunkChars     int    `yaml:"max_chunk_chars"`
}

// VectorStoreConfig selects and configures the vector store implementation.
type VectorStoreConfig struct {
	Type   string        `yaml:"type"`
	Qdrant *QdrantConfig `yaml:"qdrant,omitempty"`
}

// QdrantConfig contains connection details for a Qdrant vector store.
type QdrantConfig struct {
	URL         string `yaml:"url"`
	APIKey      string `yaml:"api_key"`
	Collection  string `yaml:"collection"`
	Distance    string `yaml:"distance"`
	TimeoutSecs int    `yaml:"timeout_secs"`
}

// SummarizerConfig selects and configures the summarizer.
type SummarizerConfig struct {
	Type         string `yaml:"type"`
	MaxSentences int    `yaml:"max_sentences"`
}

// EmailConfig configures the SMTP report sender. Credentials are read from
// the named environment variables, never stored in the file.
type EmailConfig struct {
	SMTPServer string `yaml:"smtp_server"`
	SMTPPort   int    `yaml:"smtp_port"`
	UserEnv    string `yaml:"user_env"`
	PassEnv    string `yaml:"pass_env"`
	To         string `yaml:"to"`
}

// LimitConfig is a per-provider usage ceiling. Zero means no ceiling for
// that dimension.
type LimitConfig struct {
	Tokens  int     `yaml:"tokens"`
	CostUSD float64 `yaml:"cost_usd"`
}

// RateConfig is the USD price per 1M tokens for one model.
type RateConfig struct {
	Input  float64 `yaml:"input"`
	Output float64 `yaml:"output"`
}

// BudgetConfig configures the token budget monitor.
type BudgetConfig struct {
	CheckIntervalSecs int                              `yaml:"check_interval_secs"`
	WarnFraction      float64                          `yaml:"warn_fraction"`
	ExportPath        string                           `yaml:"export_path"`
	Limits            map[string]LimitConfig           `yaml:"limits"`
	Rates             map[string]map[string]RateConfig `yaml:"rates"`
}

// IngestConfig configures the incremental document ingestion tool.
type IngestConfig struct {
	Dir        string   `yaml:"dir"`
	Extensions []string `yaml:"extensions"`
	StateFile  string   `yaml:"state_file"`
}

// FilterConfig controls the document selection phase of the pipeline.
type FilterConfig struct {
	TopK           int `yaml:"top_k"`
	SelectionCount int `yaml:"selection_count"`
	PreviewChars   int `yaml:"preview_chars"`
}

// HistoryConfig points at the local sqlite usage archive.
type HistoryConfig struct {
	Path string `yaml:"path"`
}

// AppConfig is the root application configuration structure.
type AppConfig struct {
	Search      SearchConfig      `yaml:"search"`
	LLM         LLMConfig         `yaml:"llm"`
	Embedder    EmbedderConfig    `yaml:"embedder"`
	Chunker     ChunkerConfig     `yaml:"chunker"`
	VectorStore VectorStoreConfig `yaml:"vector_store"`
	Summarizer  SummarizerConfig  `yaml:"summarizer"`
	Email       EmailConfig       `yaml:"email"`
	Budget      BudgetConfig      `yaml:"budget"`
	Ingest      IngestConfig      `yaml:"ingest"`
	Filter      FilterConfig      `yaml:"filter"`
	History     HistoryConfig     `yaml:"history"`
}

// Load reads a config from a specified path. If the file does not exist, returns defaults.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return defaultConfig(), nil
		}
		return nil, err
	}
	var cfg AppConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	applyConfigDefaults(&cfg)
	return &cfg, nil
}

// LoadDefault tries ./config.yaml first, then ~/.config/creditscout/config.yaml.
// If neither exists, it writes defaults to ~/.config/creditscout/config.yaml and returns them.
func LoadDefault() (*AppConfig, string, error) {
	cwdPath := "config.yaml"
	if _, err := os.Stat(cwdPath); err == nil {
		cfg, err := Load(cwdPath)
		return cfg, cwdPath, err
	}
	userPath, err := defaultUserConfigPath()
	if err != nil {
		return nil, "", err
	}
	if _, err := os.Stat(userPath); err == nil {
		cfg, err := Load(userPath)
		return cfg, userPath, err
	}
	cfg := defaultConfig()
	if err := Save(userPath, cfg); err != nil {
		return nil, "", err
	}
	return cfg, userPath, nil
}

// Save writes the config to the given path, creating directories as needed.
func Save(path string, cfg *AppConfig) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func defaultUserConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "creditscout", "config.yaml"), nil
}

func defaultTopics() []string {
	return []string{
		"World Bank credit rating research",
		"CFTC credit rating research",
		"Bank of England credit rating research",
		"European Central Bank credit rating research",
		"Reserve Bank of India credit rating research",
		"S&P Global Ratings credit research",
		"social credit system development",
		"credit rating theory research",
		"rural credit system development",
		"credit reporting and commercial banks",
		"credit reporting and small business lending",
		"credit reporting regulation",
		"credit guarantees",
		"credit rating case studies",
	}
}

// DefaultRates mirrors the published per-1M-token prices for the providers
// the pipeline talks to. Overridable per deployment via the budget section.
func defaultRates() map[string]map[string]RateConfig {
	return map[string]map[string]RateConfig{
		"perplexity": {
			"sonar-pro": {Input: 3.0, Output: 15.0},
			"sonar":     {Input: 1.0, Output: 1.0},
		},
		"qwen": {
			"qwen-plus":  {Input: 0.4, Output: 1.2},
			"qwen-turbo": {Input: 0.05, Output: 0.2},
			"qwen-max":   {Input: 1.6, Output: 6.4},
		},
	}
}

func defaultConfig() *AppConfig {
	return &AppConfig{
		Search: SearchConfig{
			BaseURL:     "https://api.perplexity.ai",
			APIKeyEnv:   "PERPLEXITY_API_KEY",
			Model:       "sonar",
			Topics:      defaultTopics(),
			TimeFilter:  "week",
			MaxTokens:   4000,
			TimeoutSecs: 60,
		},
		LLM: LLMConfig{
			Provider:    "qwen",
			BaseURL:     "https://dashscope.aliyuncs.com/compatible-mode/v1",
			APIKeyEnv:   "QWEN_API_KEY",
			Model:       "qwen-turbo",
			MaxTokens:   2000,
			Temperature: 0.1,
			TimeoutSecs: 60,
		},
		Embedder:    EmbedderConfig{Type: "tfidf"},
		Chunker:     ChunkerConfig{Type: "sentence", SentencesPerChunk: 5, OverlapSentences: 1, MaxChunkChars: 800},
		VectorStore: VectorStoreConfig{Type: "memory"},
		Summarizer:  SummarizerConfig{Type: "frequency", MaxSentences: 5},
		Email: EmailConfig{
			SMTPServer: "smtp.qq.com",
			SMTPPort:   465,
			UserEnv:    "EMAIL_USER",
			PassEnv:    "EMAIL_PASS",
		},
		Budget: BudgetConfig{
			CheckIntervalSecs: 60,
			WarnFraction:      0.9,
			ExportPath:        "data/usage_log.json",
			Limits: map[string]LimitConfig{
				"perplexity": {Tokens: 55000, CostUSD: 0.5},
				"qwen":       {Tokens: 600000, CostUSD: 0.5},
			},
			Rates: defaultRates(),
		},
		Ingest: IngestConfig{
			Dir:        "traindb",
			Extensions: []string{".txt", ".md"},
			StateFile:  "ingest_state.json",
		},
		Filter:  FilterConfig{TopK: 5, SelectionCount: 2, PreviewChars: 1000},
		History: HistoryConfig{Path: "data/history.db"},
	}
}

func applyConfigDefaults(cfg *AppConfig) {
	def := defaultConfig()
	if cfg.Search.BaseURL == "" {
		cfg.Search.BaseURL = def.Search.BaseURL
	}
	if cfg.Search.APIKeyEnv == "" {
		cfg.Search.APIKeyEnv = def.Search.APIKeyEnv
	}
	if cfg.Search.Model == "" {
		cfg.Search.Model = def.Search.Model
	}
	if len(cfg.Search.Topics) == 0 {
		cfg.Search.Topics = def.Search.Topics
	}
	if cfg.Search.TimeFilter == "" {
		cfg.Search.TimeFilter = def.Search.TimeFilter
	}
	if cfg.Search.MaxTokens == 0 {
		cfg.Search.MaxTokens = def.Search.MaxTokens
	}
	if cfg.Search.TimeoutSecs == 0 {
		cfg.Search.TimeoutSecs = def.Search.TimeoutSecs
	}
	if cfg.LLM.Provider == "" {
		cfg.LLM.Provider = def.LLM.Provider
	}
	if cfg.LLM.BaseURL == "" {
		cfg.LLM.BaseURL = def.LLM.BaseURL
	}
	if cfg.LLM.APIKeyEnv == "" {
		cfg.LLM.APIKeyEnv = def.LLM.APIKeyEnv
	}
	if cfg.LLM.Model == "" {
		cfg.LLM.Model = def.LLM.Model
	}
	if cfg.LLM.MaxTokens == 0 {
		cfg.LLM.MaxTokens = def.LLM.MaxTokens
	}
	if cfg.LLM.TimeoutSecs == 0 {
		cfg.LLM.TimeoutSecs = def.LLM.TimeoutSecs
	}
	if cfg.Chunker.SentencesPerChunk == 0 {
		cfg.Chunker.SentencesPerChunk = def.Chunker.SentencesPerChunk
	}
	if cfg.Chunker.MaxChunkChars == 0 {
		cfg.Chunker.MaxChunkChars = def.Chunker.MaxChunkChars
	}
	if cfg.Summarizer.MaxSentences == 0 {
		cfg.Summarizer.MaxSentences = def.Summarizer.MaxSentences
	}
	if cfg.Embedder.Type == "openai" && cfg.Embedder.OpenAI != nil {
		if cfg.Embedder.OpenAI.Provider == "" {
			cfg.Embedder.OpenAI.Provider = "qwen"
		}
		if cfg.Embedder.OpenAI.BaseURL == "" {
			cfg.Embedder.OpenAI.BaseURL = "https://api.openai.com/v1"
		}
		if cfg.Embedder.OpenAI.APIKeyEnv == "" {
			cfg.Embedder.OpenAI.APIKeyEnv = "OPENAI_API_KEY"
		}
		if cfg.Embedder.OpenAI.Model == "" {
			cfg.Embedder.OpenAI.Model = "text-embedding-3-small"
		}
		if cfg.Embedder.OpenAI.TimeoutSecs == 0 {
			cfg.Embedder.OpenAI.TimeoutSecs = 30
		}
		if cfg.Embedder.OpenAI.BatchSize == 0 {
			cfg.Embedder.OpenAI.BatchSize = 32
		}
	}
	if cfg.Email.SMTPServer == "" {
		cfg.Email.SMTPServer = def.Email.SMTPServer
	}
	if cfg.Email.SMTPPort == 0 {
		cfg.Email.SMTPPort = def.Email.SMTPPort
	}
	if cfg.Email.UserEnv == "" {
		cfg.Email.UserEnv = def.Email.UserEnv
	}
	if cfg.Email.PassEnv == "" {
		cfg.Email.PassEnv = def.Email.PassEnv
	}
	if cfg.Budget.CheckIntervalSecs == 0 {
		cfg.Budget.CheckIntervalSecs = def.Budget.CheckIntervalSecs
	}
	if cfg.Budget.WarnFraction == 0 {
		cfg.Budget.WarnFraction = def.Budget.WarnFraction
	}
	if cfg.Budget.ExportPath == "" {
		cfg.Budget.ExportPath = def.Budget.ExportPath
	}
	if len(cfg.Budget.Rates) == 0 {
		cfg.Budget.Rates = def.Budget.Rates
	}
	if cfg.Ingest.Dir == "" {
		cfg.Ingest.Dir = def.Ingest.Dir
	}
	if len(cfg.Ingest.Extensions) == 0 {
		cfg.Ingest.Extensions = def.Ingest.Extensions
	}
	if cfg.Ingest.StateFile == "" {
		cfg.Ingest.StateFile = def.Ingest.StateFile
	}
	if cfg.Filter.TopK == 0 {
		cfg.Filter.TopK = def.Filter.TopK
	}
	if cfg.Filter.SelectionCount == 0 {
		cfg.Filter.SelectionCount = def.Filter.SelectionCount
	}
	if cfg.Filter.PreviewChars == 0 {
		cfg.Filter.PreviewChars = def.Filter.PreviewChars
	}
	if cfg.History.Path == "" {
		cfg.History.Path = def.History.Path
	}
}
