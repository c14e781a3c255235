package status_publisher

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// Watch calls fn with the current record and then with every new record
// published at path until ctx is done. The directory is watched because
// atomic replacement swaps the file's inode.
func Watch(ctx context.Context, path string, fn func(*Record)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(filepath.Dir(path)); err != nil {
		return fmt.Errorf("failed to watch %s: %w", filepath.Dir(path), err)
	}

	var last *Record
	emit := func() {
		rec, err := ReadStatus(path)
		if err != nil {
			logger.WithError(err).Debug("Skipping unreadable status")
			return
		}
		if rec == nil || (last != nil && rec.Timestamp.Equal(last.Timestamp) && rec.Phase == last.Phase) {
			return
		}
		last = rec
		fn(rec)
	}
	emit()

	base := filepath.Base(path)
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Base(event.Name) != base {
				continue
			}
			if event.Has(fsnotify.Create) || event.Has(fsnotify.Write) || event.Has(fsnotify.Rename) {
				emit()
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.WithError(err).Warn("Status watcher error")
		}
	}
}
