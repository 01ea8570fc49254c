// Package watch rebuilds assets when files under the project root change.
package watch

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/assetpipe/internal/assets"
	"github.com/wolfeidau/assetpipe/internal/telemetry"
)

// Builder is the subset of assets.Pipeline the watcher drives
type Builder interface {
	Build(ctx context.Context) (*assets.BuildResult, error)
}

type Config struct {
	// Directory watched recursively
	Root string
	// Absolute directories never watched, typically the output directory
	Ignore []string
	// Quiet period after the last change before rebuilding
	Debounce time.Duration
	// Retries for rebuilds failing on a missing file, editors often save by rename
	MaxTries        uint
	InitialInterval time.Duration
	// Called after every rebuild attempt sequence
	OnBuild func(*assets.BuildResult, error)
}

type Watcher struct {
	builder Builder
	cfg     Config
	watcher *fsnotify.Watcher
}

func New(builder Builder, cfg Config) *Watcher {
	if cfg.Debounce <= 0 {
		cfg.Debounce = 100 * time.Millisecond
	}
	if cfg.MaxTries == 0 {
		cfg.MaxTries = 3
	}
	if cfg.InitialInterval <= 0 {
		cfg.InitialInterval = 50 * time.Millisecond
	}
	return &Watcher{builder: builder, cfg: cfg}
}

// Run builds once, then rebuilds on every debounced change until ctx is done
func (w *Watcher) Run(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()
	w.watcher = watcher

	if err := w.watchRecursive(w.cfg.Root); err != nil {
		return err
	}

	log.Info().Str("root", w.cfg.Root).Dur("debounce", w.cfg.Debounce).Msg("Watching for changes")
	w.rebuild(ctx)

	timer := time.NewTimer(w.cfg.Debounce)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !w.relevant(event) {
				continue
			}
			log.Debug().Str("path", event.Name).Str("op", event.Op.String()).Msg("fsnotify event")

			if event.Has(fsnotify.Create) {
				_ = w.watchRecursive(event.Name)
			}
			timer.Reset(w.cfg.Debounce)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Error().Err(err).Msg("watcher error")

		case <-timer.C:
			telemetry.GetMetrics().RebuildsTotal.Add(ctx, 1)
			w.rebuild(ctx)
		}
	}
}

// rebuild retries resolution failures with backoff, anything else waits for the next change
func (w *Watcher) rebuild(ctx context.Context) {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = w.cfg.InitialInterval

	attempt := 0
	result, err := backoff.Retry(ctx, func() (*assets.BuildResult, error) {
		attempt++
		if attempt > 1 {
			telemetry.GetMetrics().RebuildRetriesTotal.Add(ctx, 1)
		}

		res, err := w.builder.Build(ctx)
		if err != nil && !errors.Is(err, assets.ErrResolution) {
			return nil, backoff.Permanent(err)
		}
		return res, err
	}, backoff.WithBackOff(policy), backoff.WithMaxTries(w.cfg.MaxTries))

	if err != nil {
		log.Error().Err(err).Int("attempts", attempt).Msg("Rebuild failed, waiting for changes")
	}

	if w.cfg.OnBuild != nil {
		w.cfg.OnBuild(result, err)
	}
}

func (w *Watcher) relevant(event fsnotify.Event) bool {
	if event.Op == fsnotify.Chmod {
		return false
	}
	if w.ignored(event.Name) {
		return false
	}
	base := filepath.Base(event.Name)
	// editor swap and backup files
	return !strings.HasPrefix(base, ".") && !strings.HasSuffix(base, "~")
}

func (w *Watcher) ignored(path string) bool {
	for _, dir := range w.cfg.Ignore {
		rel, err := filepath.Rel(dir, path)
		if err == nil && (rel == "." || !strings.HasPrefix(rel, "..")) {
			return true
		}
	}
	return false
}

func (w *Watcher) watchRecursive(dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			// the directory may be gone again by the time we get here
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		name := d.Name()
		if path != dir && (name == "node_modules" || strings.HasPrefix(name, ".")) {
			return filepath.SkipDir
		}
		if w.ignored(path) {
			return filepath.SkipDir
		}
		if err := w.watcher.Add(path); err != nil {
			log.Warn().Err(err).Str("path", path).Msg("failed to watch directory")
		}
		return nil
	})
}
