package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// DefaultWatchDelay is how long the watcher waits for writes to settle.
const DefaultWatchDelay = 500 * time.Millisecond

// Inputs returns the files the recipe reads: weather, grid files, the grid
// script and the scene.
func (f *RecipeFile) Inputs() []string {
	var files []string
	add := func(p string) {
		if p != "" {
			files = append(files, p)
		}
	}
	add(f.Sky.Weather)
	add(f.GridScript)
	for _, g := range f.Grids {
		add(g.File)
	}
	for _, p := range f.Scene.Files() {
		add(p)
	}
	return files
}

// ReloadFunc receives each freshly loaded recipe.
type ReloadFunc func(ctx context.Context, f *RecipeFile) error

// Watcher reloads a recipe when the recipe or any file it reads changes.
type Watcher struct {
	loader *Loader
	path   string
	delay  time.Duration
	logger zerolog.Logger

	watcher *fsnotify.Watcher
	dirs    map[string]bool
	files   map[string]bool
	cueDir  string
}

// NewWatcher creates a watcher for the recipe at path.
func NewWatcher(loader *Loader, path string, logger zerolog.Logger) *Watcher {
	return &Watcher{
		loader: loader,
		path:   path,
		delay:  DefaultWatchDelay,
		logger: logger.With().Str("component", "recipe-watcher").Logger(),
	}
}

// WithDelay sets the debounce delay.
func (w *Watcher) WithDelay(d time.Duration) *Watcher {
	w.delay = d
	return w
}

// Watch loads the recipe, passes it to fn and repeats after every change
// until ctx is done. The first load must succeed; later load or fn errors
// are logged and watching goes on.
func (w *Watcher) Watch(ctx context.Context, fn ReloadFunc) error {
	f, err := w.loader.Load(ctx, w.path)
	if err != nil {
		return err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	w.watcher = watcher
	w.dirs = make(map[string]bool)
	defer func() {
		_ = watcher.Close()
	}()

	w.track(f)
	if err := fn(ctx, f); err != nil {
		w.logger.Error().Err(err).Msg("Recipe handler failed")
	}

	timer := time.NewTimer(w.delay)
	if !timer.Stop() {
		<-timer.C
	}
	pending := false

	for {
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) == 0 || !w.relevant(event.Name) {
				continue
			}
			w.logger.Debug().
				Str("file", event.Name).
				Str("op", event.Op.String()).
				Msg("Recipe input changed")
			if pending && !timer.Stop() {
				<-timer.C
			}
			timer.Reset(w.delay)
			pending = true

		case <-timer.C:
			pending = false
			w.reload(ctx, fn)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Error().Err(err).Msg("Watcher error")
		}
	}
}

func (w *Watcher) reload(ctx context.Context, fn ReloadFunc) {
	w.logger.Info().Str("recipe", w.path).Msg("Reloading recipe")
	f, err := w.loader.Load(ctx, w.path)
	if err != nil {
		w.logger.Error().Err(err).Msg("Failed to reload recipe")
		return
	}
	w.track(f)
	if err := fn(ctx, f); err != nil {
		w.logger.Error().Err(err).Msg("Recipe handler failed")
	}
}

// track watches the folders of the recipe and its inputs. Folders are
// watched rather than files so editors that replace files are noticed.
func (w *Watcher) track(f *RecipeFile) {
	files := map[string]bool{}
	recipePath, _ := filepath.Abs(w.path)
	if info, err := os.Stat(recipePath); err == nil && info.IsDir() {
		w.cueDir = recipePath
		w.add(recipePath)
	} else {
		files[recipePath] = true
	}
	for _, p := range f.Inputs() {
		files[filepath.Clean(p)] = true
	}
	w.files = files

	dirs := make([]string, 0, len(files))
	for p := range files {
		dirs = append(dirs, filepath.Dir(p))
	}
	sort.Strings(dirs)
	for _, d := range dirs {
		w.add(d)
	}
}

func (w *Watcher) add(dir string) {
	if w.dirs[dir] {
		return
	}
	if err := w.watcher.Add(dir); err != nil {
		w.logger.Warn().Err(err).Str("path", dir).Msg("Failed to watch folder")
		return
	}
	w.dirs[dir] = true
}

// relevant reports whether name is a recipe input or, for a CUE package
// folder, a .cue file inside it.
func (w *Watcher) relevant(name string) bool {
	name = filepath.Clean(name)
	if w.files[name] {
		return true
	}
	return w.cueDir != "" && filepath.Dir(name) == w.cueDir && strings.EqualFold(filepath.Ext(name), ".cue")
}
