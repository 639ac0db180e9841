package config

import (
	"context"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// reloadDebounce collapses the burst of events an editor save produces.
const reloadDebounce = 200 * time.Millisecond

// WatchOverrides calls apply with freshly loaded overrides every time the
// YAML file at path changes, until ctx ends. The parent directory is watched
// so replace-by-rename saves are seen too. A file that fails to parse is
// logged and skipped; the previous overrides stay in effect.
func WatchOverrides(ctx context.Context, path string, apply func(map[string]any)) error {
	if path == "" {
		return errors.New("watch: no widget config path")
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return errors.Wrap(err, "watch: resolve path")
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return errors.Wrap(err, "watch: create watcher")
	}
	defer watcher.Close()

	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		return errors.Wrapf(err, "watch: add %s", filepath.Dir(abs))
	}

	logger := log.With().Str("component", "config.watch").Str("path", abs).Logger()
	logger.Info().Msg("watching widget config")

	timer := time.NewTimer(reloadDebounce)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != abs || ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			timer.Reset(reloadDebounce)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn().Err(err).Msg("watcher error")
		case <-timer.C:
			overrides, err := LoadOverrides(abs)
			if err != nil {
				logger.Warn().Err(err).Msg("reload skipped")
				continue
			}
			logger.Info().Int("keys", len(overrides)).Msg("widget config reloaded")
			apply(overrides)
		}
	}
}
