package store

import (
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	appLog "openair/internal/log"
)

// Watcher reports when a package file is written or replaced. It watches
// the parent directory so atomic renames over the file are seen too.
type Watcher struct {
	Path    string
	Changes <-chan string

	changes chan string
	done    chan struct{}
	watcher *fsnotify.Watcher
	stop    sync.Once
	started bool
}

// NewWatcher creates a watcher for path. Call Start to begin watching.
func NewWatcher(path string) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	ch := make(chan string, 4)
	return &Watcher{
		Path:    filepath.Clean(path),
		Changes: ch,
		changes: ch,
		done:    make(chan struct{}),
		watcher: fw,
	}, nil
}

// Start begins watching.
func (w *Watcher) Start() error {
	if err := w.watcher.Add(filepath.Dir(w.Path)); err != nil {
		return err
	}
	w.started = true
	go w.loop()
	return nil
}

// Stop closes the watcher and the Changes channel. It is safe to call
// after a failed Start or without Start.
func (w *Watcher) Stop() {
	w.stop.Do(func() {
		w.watcher.Close()
		if w.started {
			<-w.done
		}
		close(w.changes)
	})
}

func (w *Watcher) loop() {
	defer close(w.done)

	// Writers often produce several events per save; coalesce them.
	const debounce = 200 * time.Millisecond
	var pending time.Time
	ticker := time.NewTicker(debounce / 2)
	defer ticker.Stop()

	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.Path {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename) {
				pending = time.Now()
			}

		case now := <-ticker.C:
			if !pending.IsZero() && now.Sub(pending) >= debounce {
				pending = time.Time{}
				select {
				case w.changes <- w.Path:
				default:
					// a change is already queued
				}
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			appLog.Warn("store: watch error", "path", w.Path, "err", err)
		}
	}
}
