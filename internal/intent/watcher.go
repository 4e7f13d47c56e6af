package intent

import (
	"context"
	"log/slog"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"github.com/pkg/errors"
)

// Watch reloads the classifier's rules whenever the YAML file at path is
// written. It blocks until ctx is canceled. The parent directory is watched
// rather than the file itself so editors that replace-on-save keep working.
func Watch(ctx context.Context, c *Classifier, path string) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return errors.Wrap(err, "create rules watcher")
	}
	defer watcher.Close()

	dir := filepath.Dir(path)
	if err := watcher.Add(dir); err != nil {
		return errors.Wrapf(err, "watch rules dir %s", dir)
	}
	target := filepath.Clean(path)
	slog.Info("watching intent rules", "path", target)

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
			rules, err := LoadRules(target)
			if err != nil {
				slog.Warn("intent rules reload failed, keeping previous tables", "error", err)
				continue
			}
			c.SetRules(rules)
			slog.Info("intent rules reloaded", "path", target)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			slog.Warn("intent rules watcher error", "error", err)
		}
	}
}
