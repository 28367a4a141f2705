package loader

import (
	"context"
	"fmt"
	"log"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

/*
 * Form document hot reload.
 *
 * Watches the document's parent directory rather than the file itself:
 * editors that write via rename (vim, atomic-save tooling) replace the
 * inode, and a watch on the old inode goes silent. Write bursts are
 * debounced so one save produces one reload.
 *
 * A document that fails to load keeps the previous definition active;
 * the error is logged and the watcher keeps running.
 */

// ReloadFunc receives each successfully reloaded document.
type ReloadFunc func(doc *Document)

// Watcher reloads a form document when its file changes.
type Watcher struct {
	path     string
	debounce time.Duration
	onReload ReloadFunc

	fsw    *fsnotify.Watcher
	cancel context.CancelFunc
	done   chan struct{}
}

// Watch starts watching path, invoking onReload after each debounced
// change. Stop with Close.
func Watch(path string, debounce time.Duration, onReload ReloadFunc) (*Watcher, error) {
	if onReload == nil {
		return nil, fmt.Errorf("onReload must not be nil")
	}
	if debounce <= 0 {
		debounce = 250 * time.Millisecond
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve document path: %w", err)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}
	if err := fsw.Add(filepath.Dir(abs)); err != nil {
		fsw.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", filepath.Dir(abs), err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	w := &Watcher{
		path:     abs,
		debounce: debounce,
		onReload: onReload,
		fsw:      fsw,
		cancel:   cancel,
		done:     make(chan struct{}),
	}
	go w.run(ctx)
	return w, nil
}

// Close stops the watcher and waits for its loop to exit.
func (w *Watcher) Close() error {
	w.cancel()
	err := w.fsw.Close()
	<-w.done
	return err
}

func (w *Watcher) run(ctx context.Context) {
	defer close(w.done)

	var timer *time.Timer
	var fire <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			// Restart the debounce window on every event in the burst.
			if timer == nil {
				timer = time.NewTimer(w.debounce)
				fire = timer.C
			} else {
				if !timer.Stop() {
					<-fire
				}
				timer.Reset(w.debounce)
			}

		case <-fire:
			timer = nil
			fire = nil
			doc, err := Load(w.path)
			if err != nil {
				log.Printf("loader: reload of %s failed, keeping previous document: %v", w.path, err)
				continue
			}
			w.onReload(doc)

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			log.Printf("loader: watch error: %v", err)
		}
	}
}
