package replicator

import (
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// wakeWatcher nudges the scan loop when a matching file appears or changes in
// the output directory. It only shortens the wait; polling still finds
// everything on its own.
type wakeWatcher struct {
	pattern  string
	debounce time.Duration
	wake     chan<- struct{}
	log      *slog.Logger

	mu       sync.Mutex
	timer    *time.Timer
	fsw      *fsnotify.Watcher
	stopCh   chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

func startWatcher(dir, pattern string, debounce time.Duration, wake chan<- struct{}, log *slog.Logger) (*wakeWatcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fsw.Add(dir); err != nil {
		_ = fsw.Close()
		return nil, err
	}
	w := &wakeWatcher{
		pattern:  pattern,
		debounce: debounce,
		wake:     wake,
		log:      log,
		fsw:      fsw,
		stopCh:   make(chan struct{}),
		done:     make(chan struct{}),
	}
	go w.loop(fsw)
	return w, nil
}

func (w *wakeWatcher) loop(fsw *fsnotify.Watcher) {
	defer close(w.done)
	for {
		select {
		case <-w.stopCh:
			return
		case ev, ok := <-fsw.Events:
			if !ok {
				return
			}
			w.handle(ev)
		case err, ok := <-fsw.Errors:
			if !ok {
				return
			}
			w.log.Warn("output watcher error", "err", err)
		}
	}
}

func (w *wakeWatcher) handle(ev fsnotify.Event) {
	if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 {
		return
	}
	if ok, _ := filepath.Match(w.pattern, filepath.Base(ev.Name)); !ok {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, func() {
		select {
		case <-w.stopCh:
		case w.wake <- struct{}{}:
		default:
		}
	})
}

func (w *wakeWatcher) close() {
	w.stopOnce.Do(func() {
		close(w.stopCh)
		w.mu.Lock()
		if w.timer != nil {
			w.timer.Stop()
			w.timer = nil
		}
		w.mu.Unlock()
		_ = w.fsw.Close()
		<-w.done
	})
}
