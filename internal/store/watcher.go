package store

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"recletter/internal/errors"
	"recletter/internal/types"

	"github.com/fsnotify/fsnotify"
)

// ContextWatcher watches a context file and hands every successfully parsed
// revision to a callback
type ContextWatcher struct {
	mu sync.Mutex

	file        string
	lastModTime time.Time

	fsWatcher     *fsnotify.Watcher
	debounceDelay time.Duration
	debounceTimer *time.Timer

	stopChan   chan struct{}
	reloadChan chan struct{}

	onChange func(types.ProgramContext)
	logger   *errors.Logger

	running bool
}

// NewContextWatcher creates a watcher for file. A zero debounceDelay means one second.
func NewContextWatcher(file string, debounceDelay time.Duration, onChange func(types.ProgramContext), logger *errors.Logger) *ContextWatcher {
	if debounceDelay == 0 {
		debounceDelay = time.Second
	}
	return &ContextWatcher{
		file:          file,
		debounceDelay: debounceDelay,
		stopChan:      make(chan struct{}),
		reloadChan:    make(chan struct{}, 1),
		onChange:      onChange,
		logger:        logger,
	}
}

// Start begins watching the file
func (w *ContextWatcher) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.running {
		return fmt.Errorf("context watcher is already running")
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	// Watch the directory so editors that replace the file by rename are seen
	dir := filepath.Dir(w.file)
	if err := watcher.Add(dir); err != nil {
		_ = watcher.Close()
		return fmt.Errorf("failed to watch directory %s: %w", dir, err)
	}
	w.fsWatcher = watcher

	if stat, err := os.Stat(w.file); err == nil {
		w.lastModTime = stat.ModTime()
	}

	w.running = true
	go w.watchLoop()

	w.logger.Info("Context file watcher started", "file", w.file, "debounce_delay", w.debounceDelay)
	return nil
}

// Stop stops the watcher; calling it on a stopped watcher is a no-op
func (w *ContextWatcher) Stop() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.running {
		return nil
	}

	close(w.stopChan)
	if w.debounceTimer != nil {
		w.debounceTimer.Stop()
	}
	w.running = false

	if err := w.fsWatcher.Close(); err != nil {
		w.logger.LogError(err, "Failed to close file system watcher")
		return err
	}
	w.logger.Info("Context file watcher stopped", "file", w.file)
	return nil
}

// IsRunning returns whether the watcher is currently running
func (w *ContextWatcher) IsRunning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

func (w *ContextWatcher) watchLoop() {
	for {
		select {
		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return
			}
			if w.shouldProcessEvent(event) {
				w.scheduleReload()
			}

		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return
			}
			w.logger.LogError(err, "File watcher error")

		case <-w.reloadChan:
			if w.hasFileChanged() {
				w.reload()
			}

		case <-w.stopChan:
			return
		}
	}
}

func (w *ContextWatcher) shouldProcessEvent(event fsnotify.Event) bool {
	if filepath.Clean(event.Name) != filepath.Clean(w.file) {
		return false
	}
	return event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0
}

func (w *ContextWatcher) hasFileChanged() bool {
	stat, err := os.Stat(w.file)
	if err != nil {
		return false
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if stat.ModTime().After(w.lastModTime) {
		w.lastModTime = stat.ModTime()
		return true
	}
	return false
}

func (w *ContextWatcher) reload() {
	ctx, err := LoadContextFile(w.file)
	if err != nil {
		// Keep the previous context; a half-saved file will trigger another event
		w.logger.LogError(err, "Ignoring unreadable context file", "file", w.file)
		return
	}
	w.logger.Info("Context file changed, applying", "file", w.file, "applicant", ctx.ApplicantName)
	w.onChange(ctx)
}

func (w *ContextWatcher) scheduleReload() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.debounceTimer != nil {
		w.debounceTimer.Stop()
	}
	w.debounceTimer = time.AfterFunc(w.debounceDelay, func() {
		select {
		case w.reloadChan <- struct{}{}:
		default:
		}
	})
}
