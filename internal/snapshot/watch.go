package snapshot

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// ChangeFunc is called when a snapshot changed on disk behind the store's back.
type ChangeFunc func(room string, day int)

const settleDelay = 200 * time.Millisecond

// Watch reports snapshot files written by someone other than store until
// ctx is cancelled. Bursts of events for the same file are reported once,
// after they settle.
func Watch(ctx context.Context, store *FS, logger *slog.Logger, cb ChangeFunc) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	if err := addDirsRecursive(w, store.Root()); err != nil {
		return err
	}
	logger.Info("snapshot watcher: started", slog.String("root", store.Root()))

	dirty := make(map[string]struct{})
	var settle *time.Timer
	var settleCh <-chan time.Time

	schedule := func(key string) {
		dirty[key] = struct{}{}
		if settle == nil {
			settle = time.NewTimer(settleDelay)
			settleCh = settle.C
		} else {
			settle.Reset(settleDelay)
		}
	}

	for {
		select {
		case <-ctx.Done():
			if settle != nil {
				settle.Stop()
			}
			logger.Info("snapshot watcher: stopped")
			return nil

		case <-settleCh:
			for key := range dirty {
				delete(dirty, key)
				data, readErr := store.read(key)
				if readErr != nil || store.IsOwnWrite(key, data) {
					continue
				}
				room, day, _ := ParseKey(key)
				logger.Debug("snapshot watcher: external change", slog.String("key", key))
				if cb != nil {
					cb(room, day)
				}
			}

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if ev.Op&fsnotify.Create != 0 {
				if info, statErr := os.Stat(ev.Name); statErr == nil && info.IsDir() {
					if addErr := addDirsRecursive(w, ev.Name); addErr != nil {
						logger.Warn("snapshot watcher: add dir failed",
							slog.String("path", ev.Name),
							slog.String("error", addErr.Error()))
					}
					continue
				}
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 {
				continue
			}
			rel, relErr := filepath.Rel(store.Root(), ev.Name)
			if relErr != nil {
				continue
			}
			if _, _, ok := ParseKey(rel); ok {
				schedule(rel)
			}

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Error("snapshot watcher: error", slog.String("error", watchErr.Error()))
		}
	}
}

func addDirsRecursive(w *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return w.Add(path)
		}
		return nil
	})
}
