package ingest

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWatcher_DebouncesEventBursts(t *testing.T) {
	dir := t.TempDir()
	tr := newTestTracker(dir)
	w := NewWatcher(tr, okEmbed)
	w.debounce = 200 * time.Millisecond
	require.NoError(t, w.Start())
	defer w.Stop()

	// A burst of writes inside one debounce window.
	writeFile(t, dir, "a.txt", "first document")
	time.Sleep(20 * time.Millisecond)
	writeFile(t, dir, "b.txt", "second document")
	time.Sleep(20 * time.Millisecond)
	writeFile(t, dir, "c.txt", "third document")

	require.Eventually(t, func() bool {
		st := LoadState(tr.StatePath())
		return len(st.Sessions) > 0 && st.Sessions[0].FilesProcessed == 3
	}, 5*time.Second, 25*time.Millisecond, "burst must coalesce into one run over all three files")

	// Leave room for a stray timer fire to trigger a spurious extra run.
	time.Sleep(500 * time.Millisecond)
	st := LoadState(tr.StatePath())
	assert.Len(t, st.Sessions, 1, "one debounced run per burst")
}
