package build

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/fsnotify/fsnotify"
)

// defaultDebounce applies when the configured debounce is zero.
const defaultDebounce = 50 * time.Millisecond

// Result describes the outcome of one pass in watch mode.
type Result struct {
	Artifacts int   // Artifacts generated
	Written   int   // Files actually changed on disk
	Err       error // Build or write failure, nil on success
}

// Watcher rebuilds device files whenever they change on disk.
type Watcher struct {
	builder  *Builder
	patterns []string
	debounce time.Duration
	logger   Logger

	// OnBuild, if set, is called after every pass.
	OnBuild func(Result)

	pendingMu sync.Mutex
	pending   map[string]fsnotify.Op
}

// NewWatcher creates a watcher that runs builder over patterns.
func NewWatcher(builder *Builder, patterns []string, debounce time.Duration) *Watcher {
	if debounce <= 0 {
		debounce = defaultDebounce
	}
	return &Watcher{
		builder:  builder,
		patterns: patterns,
		debounce: debounce,
		logger:   builder.logger,
		pending:  make(map[string]fsnotify.Op),
	}
}

// Run performs an initial pass and then rebuilds on change until ctx is
// cancelled. Failed passes are logged and reported through OnBuild; they
// never stop the watcher.
func (w *Watcher) Run(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating file watcher: %w", err)
	}
	defer fsw.Close()

	dirs := w.watchDirs()
	if len(dirs) == 0 {
		return fmt.Errorf("%w: nothing to watch", ErrNoFiles)
	}
	for _, dir := range dirs {
		if err := fsw.Add(dir); err != nil {
			return fmt.Errorf("watching %s: %w", dir, err)
		}
		w.logger.Debug("watching directory", "path", dir)
	}

	w.logger.Info("watcher started", "dirs", len(dirs), "debounce", w.debounce)
	w.rebuild(ctx)

	ticker := time.NewTicker(w.debounce)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("watcher stopped")
			return nil

		case event, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			w.handleEvent(fsw, event)

		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("watcher error", "error", err)

		case <-ticker.C:
			if w.takePending() {
				w.rebuild(ctx)
			}
		}
	}
}

// watchDirs returns the directories that can contain matching files: the
// static base of each pattern and every directory below it for ** patterns.
func (w *Watcher) watchDirs() []string {
	seen := make(map[string]struct{})
	var dirs []string
	add := func(dir string) {
		dir = filepath.Clean(dir)
		if _, ok := seen[dir]; ok {
			return
		}
		if info, err := os.Stat(dir); err != nil || !info.IsDir() {
			return
		}
		seen[dir] = struct{}{}
		dirs = append(dirs, dir)
	}

	for _, pattern := range w.patterns {
		base, rest := doublestar.SplitPattern(filepath.ToSlash(pattern))
		base = filepath.FromSlash(base)
		add(base)
		if !strings.Contains(rest, "**") {
			continue
		}
		_ = filepath.WalkDir(base, func(path string, d os.DirEntry, err error) error {
			if err != nil {
				return nil
			}
			if d.IsDir() {
				if path != base && strings.HasPrefix(d.Name(), ".") {
					return filepath.SkipDir
				}
				add(path)
			}
			return nil
		})
	}
	return dirs
}

func (w *Watcher) handleEvent(fsw *fsnotify.Watcher, event fsnotify.Event) {
	if event.Has(fsnotify.Create) {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if err := fsw.Add(event.Name); err != nil {
				w.logger.Warn("failed to watch new directory", "path", event.Name, "error", err)
			}
			return
		}
	}
	if event.Has(fsnotify.Chmod) && !event.Has(fsnotify.Write) {
		return
	}
	if !w.matches(event.Name) {
		return
	}

	w.pendingMu.Lock()
	w.pending[event.Name] |= event.Op
	w.pendingMu.Unlock()

	w.logger.Debug("change detected", "path", event.Name, "op", event.Op.String())
}

func (w *Watcher) matches(path string) bool {
	for _, pattern := range w.patterns {
		if ok, _ := doublestar.PathMatch(filepath.Clean(pattern), filepath.Clean(path)); ok {
			return true
		}
	}
	return false
}

// takePending reports whether changes accumulated since the last tick and
// clears them.
func (w *Watcher) takePending() bool {
	w.pendingMu.Lock()
	defer w.pendingMu.Unlock()
	if len(w.pending) == 0 {
		return false
	}
	w.pending = make(map[string]fsnotify.Op)
	return true
}

func (w *Watcher) rebuild(ctx context.Context) {
	var res Result
	artifacts, err := w.builder.Build(ctx, w.patterns)
	if err != nil {
		res.Err = err
	} else {
		res.Artifacts = len(artifacts)
		res.Written, res.Err = w.builder.Write(artifacts)
	}

	if res.Err != nil {
		w.logger.Error("build failed", "error", res.Err)
	} else {
		w.logger.Info("rebuilt", "artifacts", res.Artifacts, "written", res.Written)
	}

	if w.OnBuild != nil {
		w.OnBuild(res)
	}
}
