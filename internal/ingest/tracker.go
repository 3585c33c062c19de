// Package ingest decides, per candidate file, whether to (re)process it and
// records the outcome, so a subsequent run over an unchanged directory makes
// zero embedding calls.
package ingest

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"creditscout/internal/domain"
	"creditscout/internal/logger"
)

// EmbedFunc turns a batch of chunk texts into vectors. Any error is treated
// as a per-file failure by the tracker.
type EmbedFunc func(texts []string) ([][]float64, error)

// Candidate is a scanned file with its content digest.
type Candidate struct {
	Path        string
	ContentHash string
}

// Result summarizes one tracker run.
type Result struct {
	Session   SessionSummary
	Records   []FileRecord
	Processed int
	Skipped   int
	Failed    int
}

// Tracker drives incremental ingestion for one directory.
type Tracker struct {
	dir        string
	statePath  string
	exts       map[string]struct{}
	chunker    domain.Chunker
	store      domain.VectorStore
	storeReady bool
}

// NewTracker creates a tracker for dir. stateFile is relative to dir.
func NewTracker(dir, stateFile string, extensions []string, chunker domain.Chunker) *Tracker {
	exts := make(map[string]struct{}, len(extensions))
	for _, e := range extensions {
		exts[strings.ToLower(e)] = struct{}{}
	}
	if len(exts) == 0 {
		exts[".txt"] = struct{}{}
		exts[".md"] = struct{}{}
	}
	return &Tracker{
		dir:       dir,
		statePath: filepath.Join(dir, stateFile),
		exts:      exts,
		chunker:   chunker,
	}
}

// WithStore makes the tracker upsert every processed file's chunk vectors
// into store. The store is initialized lazily with the dimension of the
// first embedded batch. Only useful with an embedder whose vectors are
// comparable across batches and a store that outlives the process.
func (t *Tracker) WithStore(store domain.VectorStore) *Tracker {
	t.store = store
	return t
}

// StatePath returns the location of the persisted ingestion state.
func (t *Tracker) StatePath() string { return t.statePath }

// LoadState reads the tracker's persisted state, empty on first run.
func (t *Tracker) LoadState() *State { return LoadState(t.statePath) }

// Scan lists candidate files with a digest of their raw bytes. Deterministic
// for identical bytes regardless of path or mtime; no side effects.
func (t *Tracker) Scan() ([]Candidate, error) {
	entries, err := os.ReadDir(t.dir)
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", t.dir, err)
	}
	var candidates []Candidate
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if _, ok := t.exts[strings.ToLower(filepath.Ext(entry.Name()))]; !ok {
			continue
		}
		path := filepath.Join(t.dir, entry.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
		candidates = append(candidates, Candidate{Path: path, ContentHash: hashBytes(data)})
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].Path < candidates[j].Path })
	return candidates, nil
}

// Plan partitions candidates against the recorded state. A candidate is
// skipped iff its content hash was successfully processed before, under the
// same path or any other path. A matching hash with a failed record is
// retried.
func (t *Tracker) Plan(candidates []Candidate, st *State) (toProcess, toSkip []Candidate) {
	done := st.processedHashes()
	for _, c := range candidates {
		if _, ok := done[c.ContentHash]; ok {
			toSkip = append(toSkip, c)
			continue
		}
		toProcess = append(toProcess, c)
	}
	return toProcess, toSkip
}

// Process reads one file, chunks it and embeds the chunks. Failures are
// isolated: the error is logged and recorded, never propagated, so a single
// bad file cannot abort the batch.
func (t *Tracker) Process(c Candidate, embed EmbedFunc) FileRecord {
	rec := FileRecord{Path: c.Path, ContentHash: c.ContentHash, ProcessedAt: time.Now()}
	data, err := os.ReadFile(c.Path)
	if err != nil {
		logger.Error("failed to read file", "path", c.Path, "error", err)
		rec.Status = StatusFailed
		return rec
	}
	doc := domain.Document{ID: hashBytes(data), Path: c.Path, Content: string(data)}
	chunks, err := t.chunker.Chunk(doc)
	if err != nil {
		logger.Error("failed to chunk file", "path", c.Path, "error", err)
		rec.Status = StatusFailed
		return rec
	}
	if len(chunks) == 0 {
		logger.Warn("file produced no chunks", "path", c.Path)
		rec.Status = StatusSkipped
		return rec
	}
	texts := make([]string, len(chunks))
	tokens := 0
	for i, ch := range chunks {
		texts[i] = ch.Text
		tokens += len(strings.Fields(ch.Text))
	}
	vectors, err := embed(texts)
	if err != nil {
		logger.Error("embedding failed", "path", c.Path, "chunks", len(chunks), "error", err)
		rec.Status = StatusFailed
		return rec
	}
	if t.store != nil {
		if err := t.upsert(chunks, vectors); err != nil {
			logger.Error("vector store upsert failed", "path", c.Path, "error", err)
			rec.Status = StatusFailed
			return rec
		}
	}
	rec.Status = StatusProcessed
	rec.ChunkCount = len(chunks)
	rec.TokensProcessed = tokens
	return rec
}

// ProcessAll runs Process over every candidate sequentially. It always
// completes and returns a per-file outcome list in candidate order.
func (t *Tracker) ProcessAll(candidates []Candidate, embed EmbedFunc) []FileRecord {
	records := make([]FileRecord, 0, len(candidates))
	for i, c := range candidates {
		logger.Info("processing file", "path", c.Path, "n", i+1, "of", len(candidates))
		records = append(records, t.Process(c, embed))
	}
	return records
}

// Commit merges records into the state, appends the session summary, bumps
// the API call counter and persists atomically. A commit I/O error is
// returned to the caller: silently losing the state would reintroduce the
// duplicate-spend risk the tracker exists to prevent.
func (t *Tracker) Commit(st *State, records []FileRecord, session SessionSummary) error {
	for _, rec := range records {
		if rec.Status == StatusFailed {
			// A failed attempt must not advance the hash recorded for a
			// previously processed version of this file.
			if prev, ok := st.Files[rec.Path]; ok && prev.Status == StatusProcessed {
				prev.Status = StatusFailed
				st.Files[rec.Path] = prev
				continue
			}
			rec.ContentHash = ""
		}
		st.Files[rec.Path] = rec
	}
	for _, rec := range records {
		if rec.Status == StatusProcessed || rec.Status == StatusFailed {
			st.TotalAPICalls++
		}
	}
	st.Sessions = append(st.Sessions, session)
	return st.Save(t.statePath)
}

// Run performs a full scan/plan/process/commit cycle and returns the summary.
func (t *Tracker) Run(embed EmbedFunc) (Result, error) {
	start := time.Now()
	st := t.LoadState()
	candidates, err := t.Scan()
	if err != nil {
		return Result{}, err
	}
	toProcess, toSkip := t.Plan(candidates, st)
	records := t.ProcessAll(toProcess, embed)

	res := Result{Records: records, Skipped: len(toSkip)}
	session := SessionSummary{
		SessionID: uuid.NewString(),
		StartTime: start,
	}
	for _, rec := range records {
		switch rec.Status {
		case StatusProcessed:
			res.Processed++
			session.FilesProcessed++
			session.ChunksCreated += rec.ChunkCount
			session.TokensUsed += rec.TokensProcessed
		case StatusSkipped:
			res.Skipped++
		case StatusFailed:
			res.Failed++
		}
	}
	res.Session = session
	if err := t.Commit(st, records, session); err != nil {
		return res, err
	}
	logger.Info("ingestion run committed",
		"session", session.SessionID,
		"processed", res.Processed, "skipped", res.Skipped, "failed", res.Failed)
	return res, nil
}

func (t *Tracker) upsert(chunks []domain.Chunk, vectors [][]float64) error {
	if !t.storeReady {
		if err := t.store.Init(len(vectors[0])); err != nil {
			return err
		}
		t.storeReady = true
	}
	return t.store.Upsert(chunks, vectors)
}

func hashBytes(data []byte) string {
	h := sha1.Sum(data)
	return hex.EncodeToString(h[:])
}
