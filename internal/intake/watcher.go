package intake

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"resumereview/internal/errors"
)

// DropEventKind identifies what happened in the drop folder
type DropEventKind int

const (
	// DropEnter fires when the first file of a batch appears
	DropEnter DropEventKind = iota
	// DropLeave fires when every pending file vanished before the batch settled
	DropLeave
	// DropFiles carries a settled batch
	DropFiles
)

func (k DropEventKind) String() string {
	switch k {
	case DropEnter:
		return "enter"
	case DropLeave:
		return "leave"
	case DropFiles:
		return "drop"
	default:
		return "unknown"
	}
}

// DropEvent is emitted by DropWatcher for the session loop to apply
type DropEvent struct {
	Kind  DropEventKind
	Files []File
}

// Apply performs the matching intake gesture
func (e DropEvent) Apply(in *Intake) {
	switch e.Kind {
	case DropEnter:
		in.DragEnter()
	case DropLeave:
		in.DragLeave()
	case DropFiles:
		in.Drop(e.Files...)
	}
}

// DropWatcher turns files appearing in a folder into drag-and-drop gestures.
// Creates are collected until the folder stays quiet for the debounce delay
// and are then delivered as one batch.
type DropWatcher struct {
	mu sync.Mutex

	dir           string
	debounceDelay time.Duration
	debounceTimer *time.Timer

	fsWatcher *fsnotify.Watcher
	pending   []string // owned by watchLoop

	events    chan DropEvent
	flushChan chan struct{}
	stopChan  chan struct{}
	done      chan struct{}

	logger   *errors.Logger
	running  bool
	stopping bool
}

// NewDropWatcher creates a watcher for dir
func NewDropWatcher(dir string, debounceDelay time.Duration, logger *errors.Logger) (*DropWatcher, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, errors.NewValidationError(errors.ErrCodeFileNotFound,
			fmt.Sprintf("Drop folder not found: %s", dir), err)
	}
	if !info.IsDir() {
		return nil, errors.NewValidationError(errors.ErrCodeInvalidRequest,
			fmt.Sprintf("Drop folder is not a directory: %s", dir), nil)
	}
	if debounceDelay <= 0 {
		debounceDelay = 500 * time.Millisecond
	}
	if logger == nil {
		logger = errors.NewNopLogger()
	}

	dw := &DropWatcher{
		dir:           dir,
		debounceDelay: debounceDelay,
		logger:        logger,
	}
	dw.resetChannels()
	return dw, nil
}

// resetChannels prepares a fresh event stream for the next run
func (dw *DropWatcher) resetChannels() {
	dw.events = make(chan DropEvent, 16)
	dw.flushChan = make(chan struct{}, 1)
	dw.stopChan = make(chan struct{})
	dw.done = make(chan struct{})
	dw.pending = nil
}

// Events returns the gesture stream of the current run. Stop closes it and
// a later Start opens a new one, so call Events after each Start.
func (dw *DropWatcher) Events() <-chan DropEvent {
	dw.mu.Lock()
	defer dw.mu.Unlock()
	return dw.events
}

// Dir returns the watched folder
func (dw *DropWatcher) Dir() string {
	return dw.dir
}

// Start begins watching the drop folder
func (dw *DropWatcher) Start() error {
	dw.mu.Lock()
	defer dw.mu.Unlock()

	if dw.running || dw.stopping {
		return fmt.Errorf("drop watcher is already running")
	}
	select {
	case <-dw.done:
		// a previous run has finished
		dw.resetChannels()
	default:
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	if err := watcher.Add(dw.dir); err != nil {
		if closeErr := watcher.Close(); closeErr != nil {
			dw.logger.LogError(closeErr, "Failed to close file watcher during cleanup")
		}
		return fmt.Errorf("failed to watch directory %s: %w", dw.dir, err)
	}
	dw.fsWatcher = watcher

	dw.running = true
	go dw.watchLoop()

	dw.logger.Info("Drop folder watcher started",
		"directory", dw.dir,
		"debounce_delay", dw.debounceDelay)
	return nil
}

// Stop stops the watcher and closes the event stream. The watcher can be
// started again afterwards.
func (dw *DropWatcher) Stop() error {
	dw.mu.Lock()
	if !dw.running || dw.stopping {
		dw.mu.Unlock()
		return nil
	}
	dw.stopping = true
	close(dw.stopChan)
	if dw.debounceTimer != nil {
		dw.debounceTimer.Stop()
		dw.debounceTimer = nil
	}
	fsWatcher, done := dw.fsWatcher, dw.done
	dw.mu.Unlock()

	err := fsWatcher.Close()
	<-done

	dw.mu.Lock()
	dw.running = false
	dw.stopping = false
	dw.mu.Unlock()

	if err != nil {
		dw.logger.LogError(err, "Failed to close file system watcher")
		return err
	}

	dw.logger.Info("Drop folder watcher stopped")
	return nil
}

// IsRunning returns whether the watcher is currently running
func (dw *DropWatcher) IsRunning() bool {
	dw.mu.Lock()
	defer dw.mu.Unlock()
	return dw.running
}

func (dw *DropWatcher) watchLoop() {
	defer close(dw.done)
	defer close(dw.events)

	for {
		select {
		case event, ok := <-dw.fsWatcher.Events:
			if !ok {
				return
			}
			dw.handleEvent(event)

		case err, ok := <-dw.fsWatcher.Errors:
			if !ok {
				return
			}
			dw.logger.LogError(err, "Drop folder watcher error")

		case <-dw.flushChan:
			dw.flush()

		case <-dw.stopChan:
			return
		}
	}
}

func (dw *DropWatcher) handleEvent(event fsnotify.Event) {
	name := filepath.Clean(event.Name)
	if isIgnoredName(name) {
		return
	}

	switch {
	case event.Has(fsnotify.Create):
		info, err := os.Stat(name)
		if err != nil || !info.Mode().IsRegular() {
			return
		}
		if slices.Contains(dw.pending, name) {
			dw.scheduleFlush()
			return
		}
		dw.pending = append(dw.pending, name)
		if len(dw.pending) == 1 {
			dw.emit(DropEvent{Kind: DropEnter})
		}
		dw.scheduleFlush()

	case event.Has(fsnotify.Write):
		// Still being copied in; wait for it to settle.
		if slices.Contains(dw.pending, name) {
			dw.scheduleFlush()
		}

	case event.Has(fsnotify.Remove), event.Has(fsnotify.Rename):
		idx := slices.Index(dw.pending, name)
		if idx < 0 {
			return
		}
		dw.pending = slices.Delete(dw.pending, idx, idx+1)
		if len(dw.pending) == 0 {
			dw.cancelFlush()
			dw.emit(DropEvent{Kind: DropLeave})
		}
	}
}

// flush delivers the pending batch
func (dw *DropWatcher) flush() {
	if len(dw.pending) == 0 {
		return
	}
	paths := dw.pending
	dw.pending = nil

	files := make([]File, 0, len(paths))
	for _, path := range paths {
		file, err := Open(path)
		if err != nil {
			dw.logger.Warn("Skipping dropped file", "file", path, "error", err)
			continue
		}
		files = append(files, file)
	}

	dw.logger.Info("Files dropped",
		"directory", dw.dir,
		"count", len(files))
	dw.emit(DropEvent{Kind: DropFiles, Files: files})
}

func (dw *DropWatcher) emit(ev DropEvent) {
	select {
	case dw.events <- ev:
	case <-dw.stopChan:
	}
}

// scheduleFlush resets the debounce timer
func (dw *DropWatcher) scheduleFlush() {
	dw.mu.Lock()
	defer dw.mu.Unlock()

	if dw.debounceTimer != nil {
		dw.debounceTimer.Stop()
	}
	flushChan := dw.flushChan
	dw.debounceTimer = time.AfterFunc(dw.debounceDelay, func() {
		select {
		case flushChan <- struct{}{}:
		default:
			// flush already queued
		}
	})
}

func (dw *DropWatcher) cancelFlush() {
	dw.mu.Lock()
	defer dw.mu.Unlock()
	if dw.debounceTimer != nil {
		dw.debounceTimer.Stop()
		dw.debounceTimer = nil
	}
}

// isIgnoredName skips hidden files and common partial-download names
func isIgnoredName(path string) bool {
	base := filepath.Base(path)
	if strings.HasPrefix(base, ".") || strings.HasPrefix(base, "~$") {
		return true
	}
	switch strings.ToLower(filepath.Ext(base)) {
	case ".part", ".crdownload", ".tmp", ".swp":
		return true
	}
	return false
}
