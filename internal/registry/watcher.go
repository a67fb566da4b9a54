package registry

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"github.com/fyrsmithlabs/discoveryd/internal/config"
	"go.uber.org/zap"
)

// Watch reloads the registry whenever the config file changes on disk.
//
// A reload that fails to parse or validate keeps the previous snapshot and is
// logged at error level; the watch loop keeps running. Watch blocks until the
// context is cancelled.
func (r *Registry) Watch(ctx context.Context, configPath string) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating config watcher: %w", err)
	}
	defer watcher.Close()

	// Watch the directory, not the file: editors and config management tools
	// replace files via rename, which drops a file-level watch.
	dir := filepath.Dir(configPath)
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("watching %s: %w", dir, err)
	}

	target := filepath.Clean(configPath)
	r.logger.Info("watching config file", zap.String("path", target))

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}

			cfg, err := config.Load(target)
			if err != nil {
				r.logger.Error("config reload failed, keeping previous snapshot",
					zap.String("path", target),
					zap.Error(err))
				continue
			}
			if err := r.Reload(cfg); err != nil {
				r.logger.Error("registry reload failed, keeping previous snapshot",
					zap.Error(err))
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			r.logger.Warn("config watcher error", zap.Error(err))
		}
	}
}
