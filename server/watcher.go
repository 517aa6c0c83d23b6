package server

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// debounce is how long rapid events for one file are coalesced
const debounce = 100 * time.Millisecond

// Watcher monitors template and static directories for changes and
// drives live reload.
type Watcher struct {
	watcher    *fsnotify.Watcher
	dirs       []string
	configPath string
	ext        string
	logger     *slog.Logger

	onTemplate func(path string, removed bool)

	mu         sync.Mutex
	lastChange map[string]time.Time
	changeSeq  uint64 // Incremented on each file change for live reload
}

// NewWatcher creates a file watcher. ext selects which files count as
// templates.
func NewWatcher(dirs []string, configPath, ext string, logger *slog.Logger) (*Watcher, error) {
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &Watcher{
		watcher:    fsWatcher,
		dirs:       dirs,
		configPath: configPath,
		ext:        strings.ToLower(ext),
		logger:     logger.With("component", "watch"),
		lastChange: make(map[string]time.Time),
	}, nil
}

// OnTemplate registers fn to run when a template is written, created or
// removed. Must be called before Start.
func (w *Watcher) OnTemplate(fn func(path string, removed bool)) {
	w.onTemplate = fn
}

// Start begins watching for file changes
func (w *Watcher) Start(ctx context.Context) error {
	if w.configPath != "" {
		configDir := filepath.Dir(w.configPath)
		if err := w.watcher.Add(configDir); err != nil {
			w.logger.Error("failed to watch config dir", "dir", configDir, "error", err)
		} else {
			w.logger.Info("watching config", "path", w.configPath)
		}
	}

	for _, dir := range w.dirs {
		if err := w.watchDirRecursive(dir); err != nil {
			w.logger.Error("failed to watch dir", "dir", dir, "error", err)
		} else {
			w.logger.Info("watching", "dir", dir)
		}
	}

	go w.eventLoop(ctx)

	return nil
}

// watchDirRecursive adds a directory and its subdirectories to the watch list
func (w *Watcher) watchDirRecursive(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == root {
				return err
			}
			return nil
		}
		if d.IsDir() {
			if strings.HasPrefix(d.Name(), ".") && path != root {
				return filepath.SkipDir
			}
			return w.watcher.Add(path)
		}
		return nil
	})
}

// eventLoop processes file system events
func (w *Watcher) eventLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error("watcher error", "error", err)
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	removed := event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename)
	if !removed && !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
		return
	}

	// New directories are watched as they appear
	if event.Has(fsnotify.Create) {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if err := w.watchDirRecursive(event.Name); err != nil {
				w.logger.Error("failed to watch dir", "dir", event.Name, "error", err)
			}
			return
		}
	}

	// Debounce rapid changes to the same file
	w.mu.Lock()
	if !removed && time.Since(w.lastChange[event.Name]) < debounce {
		w.mu.Unlock()
		return
	}
	w.lastChange[event.Name] = time.Now()
	w.changeSeq++
	w.mu.Unlock()

	w.handleFileChange(event.Name, removed)
}

// handleFileChange processes a file change event
func (w *Watcher) handleFileChange(path string, removed bool) {
	if w.configPath != "" && filepath.Base(path) == filepath.Base(w.configPath) {
		w.logger.Info("config changed (restart to apply)", "path", path)
		return
	}

	ext := strings.ToLower(filepath.Ext(path))
	switch {
	case ext == w.ext:
		if removed {
			w.logger.Info("template removed", "path", path)
		} else {
			w.logger.Info("template changed", "path", path)
		}
		if w.onTemplate != nil {
			w.onTemplate(path, removed)
		}

	case ext == ".css" || ext == ".js" || ext == ".html" || ext == ".htm":
		w.logger.Info("static file changed", "path", path)
	}
}

// GetChangeSeq returns the current change sequence number for live reload
func (w *Watcher) GetChangeSeq() uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.changeSeq
}

// TriggerReload increments the change sequence to trigger browser reload
func (w *Watcher) TriggerReload() {
	w.mu.Lock()
	w.changeSeq++
	w.mu.Unlock()
}

// Close stops the watcher
func (w *Watcher) Close() error {
	return w.watcher.Close()
}
