package config

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/fsnotify/fsnotify"
)

// reloadDelay is how long the file must stay quiet after a write before it is
// read again. Editors and os.WriteFile truncate before writing, so the first
// event usually sees an empty or partial file.
const reloadDelay = 100 * time.Millisecond

// Watch reloads the config file at path each time it is written and hands the
// result to onChange. A reload that fails is logged and the previous config
// stays in effect. Watch runs until ctx is cancelled.
func Watch(ctx context.Context, path string, logger *slog.Logger, onChange func(*Config)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer func() {
		if closeErr := watcher.Close(); closeErr != nil {
			logger.Warn("Failed to close config watcher", "error", closeErr)
		}
	}()

	if err := watcher.Add(path); err != nil {
		return fmt.Errorf("watch %s: %w", path, err)
	}
	logger.Info("Watching config file for changes", "path", path)

	debounce := time.NewTimer(reloadDelay)
	debounce.Stop()
	defer debounce.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			// Atomic saves replace the file, which shows up as Create.
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			if event.Has(fsnotify.Create) {
				if err := watcher.Add(path); err != nil {
					logger.Warn("Failed to re-add config file to watcher", "path", path, "error", err)
				}
			}
			debounce.Reset(reloadDelay)

		case <-debounce.C:
			info, err := os.Stat(path)
			if err != nil {
				logger.Error("Config reload failed, keeping previous config", "path", path, "error", err)
				continue
			}
			if info.Size() == 0 {
				logger.Debug("Config file empty, waiting for the write to finish", "path", path)
				continue
			}

			cfg, err := Load(path)
			if err != nil {
				logger.Error("Config reload failed, keeping previous config", "path", path, "error", err)
				continue
			}
			logger.Info("Config reloaded", "path", path, "log_level", cfg.LogLevel)
			onChange(cfg)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Error("Config watcher error", "error", err)
		}
	}
}
