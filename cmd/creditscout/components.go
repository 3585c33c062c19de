package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"creditscout/internal/budget"
	"creditscout/internal/chunker"
	"creditscout/internal/config"
	"creditscout/internal/domain"
	"creditscout/internal/embedding"
	"creditscout/internal/embedding/openai"
	"creditscout/internal/embedding/tfidf"
	"creditscout/internal/service"
	"creditscout/internal/summarizer"
	"creditscout/internal/vectorstore"
	"creditscout/internal/vectorstore/memory"
	"creditscout/internal/vectorstore/qdrant"
)

func buildMonitor(cfg *config.AppConfig) *budget.Monitor {
	rates := make(budget.RateTable, len(cfg.Budget.Rates))
	for provider, models := range cfg.Budget.Rates {
		rates[provider] = make(map[string]budget.Rate, len(models))
		for model, r := range models {
			rates[provider][model] = budget.Rate{Input: r.Input, Output: r.Output}
		}
	}
	limits := make(map[string]budget.Limit, len(cfg.Budget.Limits))
	for provider, l := range cfg.Budget.Limits {
		limits[provider] = budget.Limit{Tokens: l.Tokens, CostUSD: l.CostUSD}
	}
	return budget.NewMonitor(budget.Config{
		Interval:     time.Duration(cfg.Budget.CheckIntervalSecs) * time.Second,
		WarnFraction: cfg.Budget.WarnFraction,
		Rates:        rates,
		Limits:       limits,
		ExportPath:   cfg.Budget.ExportPath,
	})
}

func buildEmbedder(cfg *config.AppConfig, reporter domain.UsageReporter) (embedding.Embedder, error) {
	switch cfg.Embedder.Type {
	case "tfidf", "":
		return tfidf.NewEmbedder(), nil
	case "openai":
		if cfg.Embedder.OpenAI == nil {
			return nil, fmt.Errorf("openai embedder config missing")
		}
		return openai.NewClient(openai.Config{
			Provider:  cfg.Embedder.OpenAI.Provider,
			BaseURL:   cfg.Embedder.OpenAI.BaseURL,
			APIKeyEnv: cfg.Embedder.OpenAI.APIKeyEnv,
			Model:     cfg.Embedder.OpenAI.Model,
			Timeout:   time.Duration(cfg.Embedder.OpenAI.TimeoutSecs) * time.Second,
			Reporter:  reporter,
		})
	default:
		return nil, fmt.Errorf("unknown embedder: %s", cfg.Embedder.Type)
	}
}

func buildChunker(cfg *config.AppConfig, completer chunker.Completer) (domain.Chunker, error) {
	switch cfg.Chunker.Type {
	case "sentence", "":
		return chunker.NewSentenceChunker(cfg.Chunker.SentencesPerChunk, cfg.Chunker.OverlapSentences), nil
	case "fixed":
		return chunker.NewFixedChunker(cfg.Chunker.MaxChunkChars), nil
	case "llm":
		if completer == nil {
			return nil, fmt.Errorf("llm chunker requires a configured llm client")
		}
		return chunker.NewLLMChunker(completer, cfg.Chunker.MaxChunkChars), nil
	default:
		return nil, fmt.Errorf("unknown chunker: %s", cfg.Chunker.Type)
	}
}

func buildStore(cfg *config.AppConfig) (vectorstore.Storage, error) {
	switch cfg.VectorStore.Type {
	case "memory", "":
		return memory.NewStorage(), nil
	case "qdrant":
		if cfg.VectorStore.Qdrant == nil {
			return nil, fmt.Errorf("qdrant config missing")
		}
		return qdrant.NewStorage(qdrant.Config{
			URL:        cfg.VectorStore.Qdrant.URL,
			APIKey:     cfg.VectorStore.Qdrant.APIKey,
			Collection: cfg.VectorStore.Qdrant.Collection,
			Timeout:    time.Duration(cfg.VectorStore.Qdrant.TimeoutSecs) * time.Second,
		}), nil
	default:
		return nil, fmt.Errorf("unknown vector store: %s", cfg.VectorStore.Type)
	}
}

func buildSummarizer(cfg *config.AppConfig) (domain.Summarizer, error) {
	switch cfg.Summarizer.Type {
	case "frequency", "":
		return summarizer.NewFrequencySummarizer(), nil
	default:
		return nil, fmt.Errorf("unknown summarizer: %s", cfg.Summarizer.Type)
	}
}

func buildService(cfg *config.AppConfig, reporter domain.UsageReporter, completer chunker.Completer) (*service.Service, error) {
	emb, err := buildEmbedder(cfg, reporter)
	if err != nil {
		return nil, err
	}
	ch, err := buildChunker(cfg, completer)
	if err != nil {
		return nil, err
	}
	st, err := buildStore(cfg)
	if err != nil {
		return nil, err
	}
	sum, err := buildSummarizer(cfg)
	if err != nil {
		return nil, err
	}
	return service.NewService(ch, emb, st, sum, cfg.Summarizer.MaxSentences), nil
}

// loadCorpus reads the reference documents from the training directory.
func loadCorpus(cfg *config.AppConfig) ([]domain.Document, error) {
	entries, err := os.ReadDir(cfg.Ingest.Dir)
	if err != nil {
		return nil, fmt.Errorf("read corpus dir %s: %w", cfg.Ingest.Dir, err)
	}
	exts := make(map[string]struct{}, len(cfg.Ingest.Extensions))
	for _, e := range cfg.Ingest.Extensions {
		exts[strings.ToLower(e)] = struct{}{}
	}
	var docs []domain.Document
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if _, ok := exts[strings.ToLower(filepath.Ext(e.Name()))]; !ok {
			continue
		}
		path := filepath.Join(cfg.Ingest.Dir, e.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		docs = append(docs, domain.Document{
			ID:      strings.TrimSuffix(e.Name(), filepath.Ext(e.Name())),
			Path:    path,
			Content: string(data),
		})
	}
	if len(docs) == 0 {
		return nil, fmt.Errorf("no training documents in %s, run 'creditscout train' first", cfg.Ingest.Dir)
	}
	return docs, nil
}
