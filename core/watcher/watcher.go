// Package watcher observes the managed library tree for external changes
// and feeds new files through the same hash-then-dedup path as the import
// pipeline, so a file dropped in via the file manager ends up cataloged
// exactly once.
package watcher

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"sonexa/core/library"
	"sonexa/core/notify"
	"sonexa/logger"
	"sonexa/model"
)

// debounceInterval is the quiet period a file must hold before it counts as
// fully written. Partially-written files keep resetting their timer.
const debounceInterval = 2 * time.Second

// Watcher wraps fsnotify with per-file write-stability debouncing.
type Watcher struct {
	lib      *library.Service
	notifier notify.Notifier

	mu      sync.Mutex
	fsw     *fsnotify.Watcher
	stop    chan struct{}
	done    chan struct{}
	running bool

	debounceMu     sync.Mutex
	debounceTimers map[string]*time.Timer
}

// New creates a watcher over the library tree managed by lib.
func New(lib *library.Service, notifier notify.Notifier) *Watcher {
	if notifier == nil {
		notifier = notify.LogNotifier{}
	}
	return &Watcher{
		lib:            lib,
		notifier:       notifier,
		debounceTimers: make(map[string]*time.Timer),
	}
}

// Start begins watching the library root and all subdirectories. Calling
// Start on a running watcher is a no-op. Files already in the tree are
// ignored; only changes after this point are processed.
func (w *Watcher) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.running {
		logger.Debug("watcher already running")
		return nil
	}

	root, err := w.lib.EnsureTree()
	if err != nil {
		return err
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}

	// Watch the root and every existing subdirectory; new subdirectories
	// get added as their create events arrive.
	err = filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() && !isHidden(path) {
			return fsw.Add(path)
		}
		return nil
	})
	if err != nil {
		fsw.Close()
		return err
	}

	stop := make(chan struct{})
	done := make(chan struct{})
	w.fsw = fsw
	w.stop = stop
	w.done = done
	w.running = true

	// The loop and its debounce timers only touch this run's channels and
	// watcher handle, never the struct fields, so a Restart cannot race them.
	go w.loop(fsw, stop, done)

	logger.Info("watcher started", logger.String("root", root))
	return nil
}

// Stop halts the watcher and cancels pending debounce timers. Safe to call
// repeatedly and on a watcher that never started.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	close(w.stop)
	w.fsw.Close()
	done := w.done
	w.mu.Unlock()

	<-done

	w.debounceMu.Lock()
	for path, timer := range w.debounceTimers {
		timer.Stop()
		delete(w.debounceTimers, path)
	}
	w.debounceMu.Unlock()

	logger.Info("watcher stopped")
}

// Restart stops and starts the watcher, picking up a changed library path.
func (w *Watcher) Restart() error {
	w.Stop()
	return w.Start()
}

// Running reports whether the watcher is active.
func (w *Watcher) Running() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

func (w *Watcher) loop(fsw *fsnotify.Watcher, stop, done chan struct{}) {
	defer close(done)

	for {
		select {
		case event, ok := <-fsw.Events:
			if !ok {
				return
			}
			w.handleEvent(fsw, stop, event)
		case err, ok := <-fsw.Errors:
			if !ok {
				return
			}
			logger.Error("watcher error", logger.ErrorField(err))
		case <-stop:
			return
		}
	}
}

func (w *Watcher) handleEvent(fsw *fsnotify.Watcher, stop chan struct{}, event fsnotify.Event) {
	path := event.Name
	if isHidden(path) {
		return
	}

	switch {
	case event.Op&(fsnotify.Create|fsnotify.Write) != 0:
		if info, err := os.Stat(path); err == nil && info.IsDir() {
			if event.Op&fsnotify.Create != 0 {
				if err := fsw.Add(path); err != nil {
					logger.Warn("failed to watch new directory", logger.String("path", path), logger.ErrorField(err))
				}
			}
			return
		}
		if !library.IsAudioFile(path) {
			return
		}
		w.debounce(stop, path)

	case event.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
		w.cancelDebounce(path)
		if !library.IsAudioFile(path) {
			return
		}
		logger.Info("file removed from library tree", logger.String("path", path))
		// Removal only notifies; the catalog row stays until the user
		// decides.
		w.notifier.Emit(model.EventLibraryUpdated, model.LibraryUpdate{Type: "remove", Path: path})
	}
}

// debounce (re)arms the per-file quiet timer. The file is only ingested
// once no event has touched it for the whole interval.
func (w *Watcher) debounce(stop chan struct{}, path string) {
	w.debounceMu.Lock()
	defer w.debounceMu.Unlock()

	if timer, ok := w.debounceTimers[path]; ok {
		timer.Reset(debounceInterval)
		return
	}
	w.debounceTimers[path] = time.AfterFunc(debounceInterval, func() {
		w.debounceMu.Lock()
		delete(w.debounceTimers, path)
		w.debounceMu.Unlock()

		select {
		case <-stop:
			return
		default:
		}
		w.ingest(path)
	})
}

func (w *Watcher) cancelDebounce(path string) {
	w.debounceMu.Lock()
	defer w.debounceMu.Unlock()
	if timer, ok := w.debounceTimers[path]; ok {
		timer.Stop()
		delete(w.debounceTimers, path)
	}
}

// ingest runs the watcher side of the dedup path: skip files the import
// pipeline just placed, hash, drop duplicates, insert without copying.
func (w *Watcher) ingest(path string) {
	if w.lib.IsRecentImport(path) {
		logger.Debug("skipping import pipeline copy", logger.String("path", path))
		return
	}
	if _, err := os.Stat(path); err != nil {
		return
	}

	entry, err := w.lib.IngestExisting(context.Background(), path)
	if err != nil {
		if library.IsDuplicateErr(err) {
			logger.Debug("watched file already cataloged", logger.String("path", path))
			return
		}
		logger.Error("failed to ingest watched file", logger.String("path", path), logger.ErrorField(err))
		return
	}

	logger.Info("watched file added to catalog",
		logger.String("id", entry.ID),
		logger.String("path", path),
	)
	w.notifier.Emit(model.EventLibraryUpdated, model.LibraryUpdate{Type: "add", Entry: entry})
}

func isHidden(path string) bool {
	return strings.HasPrefix(filepath.Base(path), ".")
}
