package store

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
)

// fileWatcher marks the store dirty when the backing file changes, saving
// the per-connection stat in poll mode. It watches the parent directory:
// editors and the rename-based writer replace the file rather than write
// into it, and a watch on the old inode would go quiet.
type fileWatcher struct {
	fsw   *fsnotify.Watcher
	dirty atomic.Bool
}

// Watch switches the store from stat polling to fsnotify events. Call it
// once, after OpenFile and before the store is handed to the server.
func (s *FileStore) Watch() error {
	if s.watch != nil {
		return nil
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	if err := fsw.Add(filepath.Dir(s.path)); err != nil {
		_ = fsw.Close()
		return fmt.Errorf("watch %s: %w", filepath.Dir(s.path), err)
	}

	w := &fileWatcher{fsw: fsw}
	s.watch = w
	go w.run(filepath.Base(s.path), s.log)

	return nil
}

func (w *fileWatcher) run(name string, log *slog.Logger) {
	for {
		select {
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if filepath.Base(ev.Name) != name {
				continue
			}
			if ev.Op.Has(fsnotify.Write) || ev.Op.Has(fsnotify.Create) ||
				ev.Op.Has(fsnotify.Rename) || ev.Op.Has(fsnotify.Remove) {
				w.dirty.Store(true)
			}
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			log.Warn("store watcher error", "error", err)
		}
	}
}

func (w *fileWatcher) close() error {
	return w.fsw.Close()
}
