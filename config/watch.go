package config

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
)

// Watch calls onChange with the reloaded config every time the file at path
// is written. Invalid files are logged and skipped. It blocks until ctx is
// done.
//
// The parent directory is watched so that editors replacing the file are
// picked up too.
func Watch(ctx context.Context, path string, logger logrus.FieldLogger, onChange func(*Config)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create fsnotify watcher: %w", err)
	}
	defer watcher.Close()

	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	err = watcher.Add(filepath.Dir(abs))
	if err != nil {
		return fmt.Errorf("watch %s: %w", filepath.Dir(abs), err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != abs {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			logger.Debugf("fsnotify event=%s file=%s", event.Op, event.Name)
			cfg, err := Load(path)
			if err != nil {
				logger.WithError(err).Warn("reload config")
				continue
			}
			onChange(cfg)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.WithError(err).Error("fsnotify")
		}
	}
}
