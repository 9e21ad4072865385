package main

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

const configDebounce = 500 * time.Millisecond

// ConfigWatcher reports changes to the config file. The parent directory is
// watched because atomic writes replace the file rather than modify it.
type ConfigWatcher struct {
	watcher  *fsnotify.Watcher
	filePath string
	logger   *slog.Logger
	debounce time.Duration
	once     sync.Once
}

func newConfigWatcher(targetFile string, logger *slog.Logger) (*ConfigWatcher, error) {
	filePath, err := filepath.Abs(filepath.Clean(targetFile))
	if err != nil {
		return nil, fmt.Errorf("failed to resolve config path %s: %w", targetFile, err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}
	if err = watcher.Add(filepath.Dir(filePath)); err != nil {
		_ = watcher.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", filepath.Dir(filePath), err)
	}

	return &ConfigWatcher{
		watcher:  watcher,
		filePath: filePath,
		logger:   logger,
		debounce: configDebounce,
	}, nil
}

// Start calls onChange once per burst of changes to the config file until ctx
// is done or the watcher is closed.
func (w *ConfigWatcher) Start(ctx context.Context, onChange func()) {
	go func() {
		var timer *time.Timer
		defer func() {
			if timer != nil {
				timer.Stop()
			}
		}()

		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-w.watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != w.filePath || !configEventChanges(event) {
					continue
				}
				w.logger.Debug("Config file event", "op", event.Op.String())
				if timer != nil {
					timer.Stop()
				}
				timer = time.AfterFunc(w.debounce, onChange)
			case err, ok := <-w.watcher.Errors:
				if !ok {
					return
				}
				w.logger.Warn("Config watcher error", "error", err)
			}
		}
	}()
}

// Close stops the watcher. It is safe to call more than once.
func (w *ConfigWatcher) Close() error {
	var err error
	w.once.Do(func() { err = w.watcher.Close() })
	return err
}

func configEventChanges(event fsnotify.Event) bool {
	return event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0
}
