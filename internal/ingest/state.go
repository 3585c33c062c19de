package ingest

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"creditscout/internal/logger"
)

// Status records the outcome of the last processing attempt for a file.
type Status string

const (
	StatusProcessed Status = "processed"
	StatusSkipped   Status = "skipped"
	StatusFailed    Status = "failed"
)

// FileRecord is one entry per source document ever processed.
type FileRecord struct {
	Path            string    `json:"path"`
	ContentHash     string    `json:"content_hash"`
	ProcessedAt     time.Time `json:"processed_at"`
	ChunkCount      int       `json:"chunk_count"`
	TokensProcessed int       `json:"tokens_processed"`
	Status          Status    `json:"status"`
}

// SessionSummary describes one ingestion run. Sessions are append-only and
// keep chronological commit order.
type SessionSummary struct {
	SessionID      string    `json:"session_id"`
	StartTime      time.Time `json:"start_time"`
	FilesProcessed int       `json:"files_processed"`
	ChunksCreated  int       `json:"chunks_created"`
	TokensUsed     int       `json:"tokens_used"`
}

// State is the durable record of everything the tracker has processed for one
// target directory. Single writer, single process.
type State struct {
	Files         map[string]FileRecord `json:"files"`
	Sessions      []SessionSummary      `json:"sessions"`
	TotalAPICalls int                   `json:"total_api_calls"`
}

// NewState returns an empty state.
func NewState() *State {
	return &State{Files: make(map[string]FileRecord)}
}

// LoadState reads the persisted state from path. A missing or corrupt file is
// treated as empty state: content hashes make re-processing idempotent, so
// recovery by re-running is always safe.
func LoadState(path string) *State {
	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Warn("could not read ingestion state, starting fresh", "path", path, "error", err)
		}
		return NewState()
	}
	var st State
	if err := json.Unmarshal(data, &st); err != nil {
		logger.Warn("corrupt ingestion state, starting fresh", "path", path, "error", err)
		return NewState()
	}
	if st.Files == nil {
		st.Files = make(map[string]FileRecord)
	}
	return &st
}

// Save persists the state atomically: write to a temp file in the same
// directory, then rename over the target. A crash mid-write leaves the
// previously committed state intact.
func (s *State) Save(path string) error {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal ingestion state: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write ingestion state: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("commit ingestion state: %w", err)
	}
	return nil
}

// processedHashes returns the set of content hashes that have at least one
// successfully processed record, under any path. Dedup is by content, not by
// name.
func (s *State) processedHashes() map[string]struct{} {
	hashes := make(map[string]struct{}, len(s.Files))
	for _, rec := range s.Files {
		if rec.Status == StatusProcessed {
			hashes[rec.ContentHash] = struct{}{}
		}
	}
	return hashes
}
