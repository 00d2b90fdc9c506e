// Package watch reloads content when files under a directory change.
package watch

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	appLog "folio/internal/log"
)

// DefaultDebounce coalesces bursts of editor writes into one reload.
const DefaultDebounce = 500 * time.Millisecond

// Reloader is implemented by content.Store.
type Reloader interface {
	Reload() error
}

// Watcher calls Reload after changes under Dir settle.
type Watcher struct {
	Dir      string
	Target   Reloader
	Debounce time.Duration
}

// Run watches Dir recursively until ctx is done. Newly created
// directories are added as they appear.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer fw.Close()

	if err := addRecursive(fw, w.Dir); err != nil {
		return err
	}

	debounce := w.Debounce
	if debounce <= 0 {
		debounce = DefaultDebounce
	}

	// Reload runs on this goroutine, never concurrently with itself.
	timer := time.NewTimer(debounce)
	timer.Stop()

	appLog.Info("content watcher started", "dir", w.Dir, "debounce", debounce)
	for {
		select {
		case <-ctx.Done():
			timer.Stop()
			appLog.Info("content watcher stopped", "dir", w.Dir)
			return nil

		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if !relevant(ev) {
				continue
			}
			appLog.Debug("content change detected", "path", ev.Name, "op", ev.Op.String())

			if ev.Has(fsnotify.Create) && isDir(ev.Name) {
				if err := addRecursive(fw, ev.Name); err != nil {
					appLog.Warn("failed to watch new directory", "path", ev.Name, "err", err)
				}
			}
			timer.Reset(debounce)

		case <-timer.C:
			if err := w.Target.Reload(); err != nil {
				appLog.Error("content reload failed", err, "dir", w.Dir)
			}

		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			appLog.Error("content watcher error", err, "dir", w.Dir)
		}
	}
}

func relevant(ev fsnotify.Event) bool {
	if strings.HasPrefix(filepath.Base(ev.Name), ".") {
		return false
	}
	return ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) ||
		ev.Has(fsnotify.Remove) || ev.Has(fsnotify.Rename)
}

func addRecursive(fw *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && strings.HasPrefix(d.Name(), ".") {
			return filepath.SkipDir
		}
		return fw.Add(path)
	})
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
