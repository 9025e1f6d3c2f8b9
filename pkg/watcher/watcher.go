// Package watcher keeps the store in sync with the live JSONL directories.
// Native FS notifications are debounced and routed per file suffix; a 1s
// polling tick provides a fallback for missed notifications. All ingestion
// runs on a single control goroutine against the one writer handle.
package watcher

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/ConfabulousDev/recall/pkg/indexer"
	"github.com/ConfabulousDev/recall/pkg/logger"
	"github.com/ConfabulousDev/recall/pkg/store"
)

const (
	// debounceWindow coalesces bursts of FS events for the same paths.
	debounceWindow = 100 * time.Millisecond

	// defaultPollInterval is the synthetic "check everything" cadence used as
	// a fallback against missed notifications.
	defaultPollInterval = 1 * time.Second
)

// Watcher is the long-lived indexing daemon.
type Watcher struct {
	db           *store.DB
	projectsDir  string
	hooksDir     string
	pollInterval time.Duration

	stopCh   chan struct{}
	stopOnce sync.Once
}

// New creates a watcher over the given source directories writing to db.
func New(db *store.DB, projectsDir, hooksDir string) *Watcher {
	return &Watcher{
		db:           db,
		projectsDir:  projectsDir,
		hooksDir:     hooksDir,
		pollInterval: defaultPollInterval,
		stopCh:       make(chan struct{}),
	}
}

// SetPollInterval overrides the polling fallback cadence (used by tests).
func (w *Watcher) SetPollInterval(d time.Duration) {
	w.pollInterval = d
}

// Stop signals the watcher to shut down. Safe to call multiple times.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.stopCh)
	})
}

// Run starts the watcher and blocks until stopped by Stop, context
// cancellation, or SIGINT/SIGTERM.
func (w *Watcher) Run(ctx context.Context) error {
	logger.SetComponent("watcher")
	logger.Info("Watching %s and %s", w.projectsDir, w.hooksDir)

	// Ensure directories exist so watches can be registered
	os.MkdirAll(w.projectsDir, 0755)
	os.MkdirAll(w.hooksDir, 0755)

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create fs watcher: %w", err)
	}
	defer fsw.Close()

	for _, root := range []string{w.projectsDir, w.hooksDir} {
		if err := watchRecursive(fsw, root); err != nil {
			return err
		}
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	defer signal.Stop(sigCh)

	// Debouncer: raw events and poll ticks in, coalesced batches out
	batches := make(chan []string)
	done := make(chan struct{})
	defer close(done)
	go w.debounce(fsw, batches, done)

	for {
		select {
		case <-ctx.Done():
			logger.Info("Watcher stopping: context cancelled")
			return nil
		case <-w.stopCh:
			logger.Info("Watcher stopping: stop requested")
			return nil
		case sig := <-sigCh:
			logger.Info("Watcher stopping: signal %v", sig)
			return nil
		case err := <-fsw.Errors:
			logger.Warn("Watch error: %v", err)
		case paths := <-batches:
			w.processBatch(fsw, paths)
		}
	}
}

// debounce coalesces FS events within debounceWindow and emits periodic
// synthetic directory events so nothing is missed if notifications drop.
func (w *Watcher) debounce(fsw *fsnotify.Watcher, batches chan<- []string, done <-chan struct{}) {
	pending := make(map[string]struct{})
	var flushC <-chan time.Time

	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	flush := func() []string {
		paths := make([]string, 0, len(pending))
		for p := range pending {
			paths = append(paths, p)
		}
		pending = make(map[string]struct{})
		flushC = nil
		return paths
	}

	for {
		select {
		case <-done:
			return
		case ev, ok := <-fsw.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 {
				continue
			}
			pending[ev.Name] = struct{}{}
			if flushC == nil {
				flushC = time.After(debounceWindow)
			}
		case <-ticker.C:
			// Synthetic check-everything events
			pending[w.projectsDir] = struct{}{}
			pending[w.hooksDir] = struct{}{}
			if flushC == nil {
				flushC = time.After(debounceWindow)
			}
		case <-flushC:
			select {
			case batches <- flush():
			case <-done:
				return
			}
		}
	}
}

// processBatch routes each delivered path: hook files and transcript files
// get delta ingest, directories get a cursor-based scan. Correlation runs
// once per batch if any hook events were written.
func (w *Watcher) processBatch(fsw *fsnotify.Watcher, paths []string) {
	indexedHooks := false

	for _, path := range paths {
		name := filepath.Base(path)
		switch {
		case strings.HasSuffix(name, ".hooks.jsonl"):
			if w.handleHookFile(path) {
				indexedHooks = true
			}
		case strings.HasSuffix(name, ".jsonl"):
			w.handleTranscriptFile(path)
		default:
			if info, err := os.Stat(path); err == nil && info.IsDir() {
				// Newly created project directories need their own watch
				watchRecursive(fsw, path)
				if w.pollDirectory(path) {
					indexedHooks = true
				}
			}
		}
	}

	if indexedHooks {
		result, err := indexer.CorrelateLinesToTurns(w.db.Conn())
		if err != nil {
			logger.Error("Correlation error: %v", err)
		} else if result.Updated > 0 {
			logger.Info("Correlated %d lines across %d sessions", result.Updated, result.Sessions)
		}
	}
}

func (w *Watcher) handleTranscriptFile(path string) {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return
	}

	adapter := indexer.TranscriptAdapter{ProjectsDir: w.projectsDir}
	offset, _ := adapter.GetCursor(w.db.Conn(), path)
	if offset >= info.Size() {
		return
	}

	startLine := startLineFor(w.db, "SELECT line_count FROM sessions WHERE file_path = ?", path)
	result, err := indexer.IndexTranscriptFile(w.db.Conn(), path, offset, startLine)
	if err != nil {
		logger.Error("Error indexing %s: %v", path, err)
		return
	}
	if result.LinesIndexed > 0 {
		logger.Info("Indexed %d new transcript lines from %s", result.LinesIndexed, path)
	}
}

func (w *Watcher) handleHookFile(path string) bool {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return false
	}

	adapter := indexer.HookAdapter{HooksDir: w.hooksDir}
	offset, _ := adapter.GetCursor(w.db.Conn(), path)
	if offset >= info.Size() {
		return false
	}

	startLine := startLineFor(w.db, "SELECT event_count FROM hook_files WHERE file_path = ?", path)
	result, err := indexer.IndexHookFile(w.db.Conn(), path, offset, startLine)
	if err != nil {
		logger.Error("Error indexing hook file %s: %v", path, err)
		return false
	}
	if result.EventsIndexed > 0 {
		logger.Info("Indexed %d new hook events from %s", result.EventsIndexed, path)
	}
	return result.EventsIndexed > 0
}

// pollDirectory scans all files of the projects or hooks root that contains
// dir (the whole root, not only dir) and delta-ingests any file whose size
// exceeds its stored cursor. Reports whether hook events were written.
func (w *Watcher) pollDirectory(dir string) bool {
	indexedHooks := false

	if strings.HasPrefix(dir, w.projectsDir) {
		for _, file := range indexer.FindTranscriptFiles(w.projectsDir) {
			w.handleTranscriptFile(file)
		}
	}

	if strings.HasPrefix(dir, w.hooksDir) {
		for _, file := range indexer.FindHookFiles(w.hooksDir) {
			if w.handleHookFile(file) {
				indexedHooks = true
			}
		}
	}

	return indexedHooks
}

// startLineFor reads a stored line counter and returns the next 1-based line
// number (1 when the file is untracked).
func startLineFor(db *store.DB, query, path string) int64 {
	var count int64
	if err := db.Conn().QueryRow(query, path).Scan(&count); err != nil {
		return 1
	}
	return count + 1
}

// watchRecursive registers dir and all its subdirectories with the watcher.
func watchRecursive(fsw *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if err := fsw.Add(path); err != nil {
				logger.Warn("Failed to watch %s: %v", path, err)
			}
		}
		return nil
	})
}
