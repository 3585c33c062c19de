package main

import (
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"creditscout/internal/embedding"
	"creditscout/internal/ingest"
	"creditscout/internal/llm"
	"creditscout/internal/logger"
)

var (
	trainWatch bool
	trainForce bool
)

var trainCmd = &cobra.Command{
	Use:   "train",
	Short: "Incrementally ingest new or changed documents from the training directory",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		monitor := buildMonitor(cfg)
		if err := monitor.Start(); err != nil {
			return err
		}
		defer func() { _ = monitor.Stop() }()

		var llmClient *llm.Client
		if cfg.Chunker.Type == "llm" {
			llmClient, err = llm.NewClient(llm.Config{
				Provider:    cfg.LLM.Provider,
				BaseURL:     cfg.LLM.BaseURL,
				APIKeyEnv:   cfg.LLM.APIKeyEnv,
				Model:       cfg.LLM.Model,
				MaxTokens:   cfg.LLM.MaxTokens,
				Temperature: cfg.LLM.Temperature,
				Timeout:     time.Duration(cfg.LLM.TimeoutSecs) * time.Second,
				Reporter:    monitor,
			})
			if err != nil {
				return err
			}
		}
		ch, err := buildChunker(cfg, llmClient)
		if err != nil {
			return err
		}
		emb, err := buildEmbedder(cfg, monitor)
		if err != nil {
			return err
		}

		tracker := ingest.NewTracker(cfg.Ingest.Dir, cfg.Ingest.StateFile, cfg.Ingest.Extensions, ch)
		// Persisting trained vectors is only coherent when the store outlives
		// the process and the embedder does not refit per batch. The default
		// tfidf embedder is corpus-fit, so run and query rebuild their index
		// in process instead.
		if cfg.VectorStore.Type == "qdrant" && cfg.Embedder.Type == "openai" {
			st, err := buildStore(cfg)
			if err != nil {
				return err
			}
			tracker.WithStore(st)
			logger.Info("trained vectors will be upserted", "store", cfg.VectorStore.Type)
		}
		if trainForce {
			if err := os.Remove(tracker.StatePath()); err != nil && !os.IsNotExist(err) {
				return err
			}
			logger.Info("ingestion state cleared, reprocessing everything")
		}

		embedFn := batchEmbed(emb)
		res, err := tracker.Run(embedFn)
		if err != nil {
			return err
		}
		color.Green("Ingestion complete: %d processed, %d skipped, %d failed (%d chunks, %d tokens)",
			res.Processed, res.Skipped, res.Failed,
			res.Session.ChunksCreated, res.Session.TokensUsed)

		if !trainWatch {
			return nil
		}

		watcher := ingest.NewWatcher(tracker, embedFn)
		if err := watcher.Start(); err != nil {
			return err
		}
		defer watcher.Stop()
		logger.Info("watching for changes", "dir", cfg.Ingest.Dir)

		sig := make(chan os.Signal, 1)
		signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
		select {
		case <-sig:
		case <-cmd.Context().Done():
		}
		return nil
	},
}

// batchEmbed adapts an Embedder to the one-shot batch signature the tracker
// expects. Corpus-dependent embedders are prepared on each batch.
func batchEmbed(emb embedding.Embedder) ingest.EmbedFunc {
	return func(texts []string) ([][]float64, error) {
		if err := emb.Prepare(texts); err != nil {
			return nil, err
		}
		vectors := make([][]float64, len(texts))
		for i, t := range texts {
			v, err := emb.Embed(t)
			if err != nil {
				return nil, err
			}
			vectors[i] = v
		}
		return vectors, nil
	}
}

func init() {
	trainCmd.Flags().BoolVarP(&trainWatch, "watch", "w", false, "keep running and ingest files as they change")
	trainCmd.Flags().BoolVarP(&trainForce, "force", "f", false, "clear ingestion state and reprocess every file")
	rootCmd.AddCommand(trainCmd)
}
