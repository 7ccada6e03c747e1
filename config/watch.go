package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"github.com/joho/godotenv"

	"artistsfirst/logger"
)

// Watch watches the given .env file and invokes onReload with a freshly
// loaded Config whenever the file is written. Only pricing and policy
// values are expected to change at runtime; connection settings require a
// restart. The returned stop function closes the watcher.
func Watch(envPath string, onReload func(*Config)) (func() error, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create config watcher: %w", err)
	}

	// Watch the directory, not the file: editors replace .env by rename,
	// which drops a watch placed on the file itself.
	dir := filepath.Dir(envPath)
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", dir, err)
	}

	go func() {
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != filepath.Clean(envPath) {
					continue
				}
				if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				// Read+Setenv instead of Load: Load refuses to replace
				// variables that are already set in the environment.
				env, err := godotenv.Read(envPath)
				if err != nil {
					logger.Warn("Failed to re-read env file", logger.String("path", envPath), logger.ErrorField(err))
					continue
				}
				for k, v := range env {
					if err := os.Setenv(k, v); err != nil {
						logger.Warn("Failed to apply env var", logger.String("key", k), logger.ErrorField(err))
					}
				}
				logger.Info("Configuration reloaded", logger.String("path", envPath))
				onReload(Load())
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logger.Warn("Config watcher error", logger.ErrorField(err))
			}
		}
	}()

	return watcher.Close, nil
}
