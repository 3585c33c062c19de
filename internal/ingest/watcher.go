package ingest

import (
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"creditscout/internal/logger"
)

// Watcher re-runs the tracker whenever source files in the watched directory
// are created or modified. Events are debounced so a burst of writes (editor
// save, bulk copy) triggers a single run.
type Watcher struct {
	tracker  *Tracker
	embed    EmbedFunc
	debounce time.Duration
	stop     chan struct{}
	done     chan struct{}
}

// NewWatcher wraps a tracker for watch mode.
func NewWatcher(tracker *Tracker, embed EmbedFunc) *Watcher {
	return &Watcher{
		tracker:  tracker,
		embed:    embed,
		debounce: 2 * time.Second,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start watches until Stop is called. Each debounced change batch triggers a
// full scan/plan/process/commit cycle; the tracker's dedup keeps repeated
// runs cheap.
func (w *Watcher) Start() error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := fsw.Add(w.tracker.dir); err != nil {
		_ = fsw.Close()
		return err
	}
	go func() {
		defer close(w.done)
		defer fsw.Close()
		var timer *time.Timer
		var fire <-chan time.Time
		for {
			select {
			case <-w.stop:
				return
			case event, ok := <-fsw.Events:
				if !ok {
					return
				}
				if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) && !event.Has(fsnotify.Rename) {
					continue
				}
				if !w.tracker.supported(event.Name) {
					continue
				}
				if timer == nil {
					timer = time.NewTimer(w.debounce)
					fire = timer.C
				} else {
					// An expired timer leaves its tick buffered; drain it so
					// Reset opens a fresh debounce window instead of firing
					// immediately.
					if !timer.Stop() {
						<-fire
					}
					timer.Reset(w.debounce)
				}
			case err, ok := <-fsw.Errors:
				if !ok {
					return
				}
				logger.Warn("watcher error", "error", err)
			case <-fire:
				timer = nil
				fire = nil
				if _, err := w.tracker.Run(w.embed); err != nil {
					logger.Error("watch-triggered ingestion run failed", "error", err)
				}
			}
		}
	}()
	logger.Info("watching for document changes", "dir", w.tracker.dir)
	return nil
}

// Stop cancels the watch loop and waits for it to exit.
func (w *Watcher) Stop() {
	close(w.stop)
	<-w.done
}

func (t *Tracker) supported(path string) bool {
	if strings.HasSuffix(path, ".tmp") {
		return false
	}
	_, ok := t.exts[strings.ToLower(filepath.Ext(path))]
	return ok
}
