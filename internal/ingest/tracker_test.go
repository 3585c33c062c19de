package ingest

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"creditscout/internal/chunker"
	"creditscout/internal/domain"
)

// captureStore records every upsert so tests can assert what training
// persisted.
type captureStore struct {
	dim     int
	inits   int
	chunks  []domain.Chunk
	vectors [][]float64
	fail    bool
}

func (s *captureStore) Init(dimension int) error {
	s.inits++
	s.dim = dimension
	return nil
}

func (s *captureStore) Upsert(chunks []domain.Chunk, vectors [][]float64) error {
	if s.fail {
		return errors.New("store unavailable")
	}
	s.chunks = append(s.chunks, chunks...)
	s.vectors = append(s.vectors, vectors...)
	return nil
}

func (s *captureStore) Search([]float64, int) ([]domain.SearchResult, error) { return nil, nil }

func (s *captureStore) Clear() error { return nil }

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func newTestTracker(dir string) *Tracker {
	return NewTracker(dir, "ingest_state.json", []string{".txt", ".md"}, chunker.NewFixedChunker(50))
}

func okEmbed(texts []string) ([][]float64, error) {
	vectors := make([][]float64, len(texts))
	for i := range texts {
		vectors[i] = []float64{1, 0, 0}
	}
	return vectors, nil
}

func TestScan_FiltersAndHashes(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.txt", "hello world")
	writeFile(t, dir, "b.md", "hello world")
	writeFile(t, dir, "c.pdf", "binary stuff")
	writeFile(t, dir, "ingest_state.json", "{}")

	tr := newTestTracker(dir)
	candidates, err := tr.Scan()
	require.NoError(t, err)
	require.Len(t, candidates, 2)
	// Sorted by path, identical content gives identical hashes.
	assert.Equal(t, filepath.Join(dir, "a.txt"), candidates[0].Path)
	assert.Equal(t, filepath.Join(dir, "b.md"), candidates[1].Path)
	assert.Equal(t, candidates[0].ContentHash, candidates[1].ContentHash)
}

func TestScan_DeterministicAcrossMtime(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "a.txt", "same bytes")
	tr := newTestTracker(dir)

	first, err := tr.Scan()
	require.NoError(t, err)
	// Touch the file without changing content.
	later := time.Now().Add(time.Hour)
	require.NoError(t, os.Chtimes(path, later, later))
	second, err := tr.Scan()
	require.NoError(t, err)
	assert.Equal(t, first[0].ContentHash, second[0].ContentHash)
}

func TestPlan_ContentAddressedDedup(t *testing.T) {
	tr := newTestTracker(t.TempDir())
	st := NewState()
	st.Files["old/path.txt"] = FileRecord{
		Path: "old/path.txt", ContentHash: "abc", Status: StatusProcessed,
	}
	st.Files["bad.txt"] = FileRecord{
		Path: "bad.txt", ContentHash: "def", Status: StatusFailed,
	}

	candidates := []Candidate{
		{Path: "renamed.txt", ContentHash: "abc"}, // same content, new name
		{Path: "bad.txt", ContentHash: "def"},     // failed before
		{Path: "new.txt", ContentHash: "xyz"},
	}
	toProcess, toSkip := tr.Plan(candidates, st)
	require.Len(t, toSkip, 1)
	assert.Equal(t, "renamed.txt", toSkip[0].Path)
	require.Len(t, toProcess, 2)
	assert.Equal(t, "bad.txt", toProcess[0].Path)
	assert.Equal(t, "new.txt", toProcess[1].Path)
}

func TestProcessAll_PartialFailureIsolation(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "1.txt", "first file contents here")
	writeFile(t, dir, "2.txt", "second file contents here")
	writeFile(t, dir, "3.txt", "third file contents here")
	tr := newTestTracker(dir)

	candidates, err := tr.Scan()
	require.NoError(t, err)
	require.Len(t, candidates, 3)

	call := 0
	embed := func(texts []string) ([][]float64, error) {
		call++
		if call == 2 {
			return nil, errors.New("provider error")
		}
		return okEmbed(texts)
	}
	records := tr.ProcessAll(candidates, embed)
	require.Len(t, records, 3)
	assert.Equal(t, StatusProcessed, records[0].Status)
	assert.Equal(t, StatusFailed, records[1].Status)
	assert.Equal(t, StatusProcessed, records[2].Status)
	assert.Positive(t, records[0].ChunkCount)
	assert.Positive(t, records[0].TokensProcessed)
}

func TestRun_IdempotentSecondRun(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.txt", "some research document text")
	writeFile(t, dir, "b.txt", "another research document text")
	tr := newTestTracker(dir)

	calls := 0
	embed := func(texts []string) ([][]float64, error) {
		calls++
		return okEmbed(texts)
	}

	first, err := tr.Run(embed)
	require.NoError(t, err)
	assert.Equal(t, 2, first.Processed)
	assert.Equal(t, 2, calls)

	second, err := tr.Run(embed)
	require.NoError(t, err)
	assert.Equal(t, 0, second.Processed)
	assert.Equal(t, 2, second.Skipped)
	assert.Equal(t, 2, calls, "unchanged directory must trigger zero embedding calls")

	st := tr.LoadState()
	require.Len(t, st.Sessions, 2)
	assert.Equal(t, 0, st.Sessions[1].FilesProcessed)
	assert.Equal(t, 2, st.TotalAPICalls)
}

func TestRun_IdenticalContentDifferentNames(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.txt", "hello world")
	writeFile(t, dir, "b.txt", "hello world")
	tr := newTestTracker(dir)

	st := tr.LoadState()
	candidates, err := tr.Scan()
	require.NoError(t, err)
	require.Len(t, candidates, 2)
	assert.Equal(t, candidates[0].ContentHash, candidates[1].ContentHash)

	// Both unseen on the first run: both are processed.
	toProcess, toSkip := tr.Plan(candidates, st)
	assert.Len(t, toProcess, 2)
	assert.Empty(t, toSkip)

	_, err = tr.Run(okEmbed)
	require.NoError(t, err)

	// After commit, both paths resolve to an already-processed hash.
	st = tr.LoadState()
	candidates, err = tr.Scan()
	require.NoError(t, err)
	toProcess, toSkip = tr.Plan(candidates, st)
	assert.Empty(t, toProcess)
	assert.Len(t, toSkip, 2)
}

func TestRun_RenamedFileNotReprocessed(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "original.txt", "stable content")
	tr := newTestTracker(dir)

	calls := 0
	embed := func(texts []string) ([][]float64, error) {
		calls++
		return okEmbed(texts)
	}
	_, err := tr.Run(embed)
	require.NoError(t, err)
	require.Equal(t, 1, calls)

	require.NoError(t, os.Rename(path, filepath.Join(dir, "renamed.txt")))
	res, err := tr.Run(embed)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Processed)
	assert.Equal(t, 1, res.Skipped)
	assert.Equal(t, 1, calls)
}

func TestRun_ChangedFileReprocessed(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.txt", "version one")
	tr := newTestTracker(dir)

	_, err := tr.Run(okEmbed)
	require.NoError(t, err)

	writeFile(t, dir, "a.txt", "version two with different bytes")
	res, err := tr.Run(okEmbed)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Processed)
}

func TestCommit_FailedDoesNotAdvanceHash(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "a.txt", "good version")
	tr := newTestTracker(dir)

	_, err := tr.Run(okEmbed)
	require.NoError(t, err)
	st := tr.LoadState()
	goodHash := st.Files[path].ContentHash
	require.NotEmpty(t, goodHash)

	writeFile(t, dir, "a.txt", "new version that fails to embed")
	failing := func(texts []string) ([][]float64, error) { return nil, errors.New("boom") }
	res, err := tr.Run(failing)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Failed)

	st = tr.LoadState()
	rec := st.Files[path]
	assert.Equal(t, StatusFailed, rec.Status)
	assert.Equal(t, goodHash, rec.ContentHash, "failed attempt must not advance content_hash")

	// The retry happens on the next run with the same content.
	res, err = tr.Run(okEmbed)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Processed)
}

func TestRun_UpsertsProcessedChunksIntoStore(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.txt", "first research document text")
	writeFile(t, dir, "b.txt", "second research document text")
	store := &captureStore{}
	tr := newTestTracker(dir).WithStore(store)

	res, err := tr.Run(okEmbed)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Processed)
	assert.Equal(t, 1, store.inits, "store is initialized once per tracker")
	assert.Equal(t, 3, store.dim)
	require.NotEmpty(t, store.chunks)
	assert.Len(t, store.vectors, len(store.chunks))

	// A fully skipped second run adds nothing to the store.
	before := len(store.chunks)
	second, err := tr.Run(okEmbed)
	require.NoError(t, err)
	assert.Equal(t, 0, second.Processed)
	assert.Len(t, store.chunks, before)
}

func TestRun_StoreFailureMarksFileFailed(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "a.txt", "document text")
	store := &captureStore{fail: true}
	tr := newTestTracker(dir).WithStore(store)

	res, err := tr.Run(okEmbed)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Failed)
	st := tr.LoadState()
	assert.Equal(t, StatusFailed, st.Files[path].Status)
	assert.Empty(t, st.Files[path].ContentHash)

	// Once the store recovers the same content is retried and persisted.
	store.fail = false
	res, err = tr.Run(okEmbed)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Processed)
	assert.NotEmpty(t, store.chunks)
}
