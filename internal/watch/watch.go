// Package watch refreshes domain indexes when their source document
// directories change on disk.
package watch

import (
	"context"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/nkosler/opsdesk/internal/index"
)

// Refresher rebuilds one domain's index.
type Refresher interface {
	Refresh(ctx context.Context, domain index.Domain) error
}

// Watcher observes the domain document directories and triggers a refresh
// after a quiet period. Bursts of events (editor saves, bulk copies) collapse
// into a single rebuild per domain.
type Watcher struct {
	refresher Refresher
	dirs      map[index.Domain]string
	debounce  time.Duration
	logger    *slog.Logger

	mu      sync.Mutex
	pending map[index.Domain]*time.Timer
}

func New(refresher Refresher, dirs map[index.Domain]string, debounce time.Duration) *Watcher {
	if debounce <= 0 {
		debounce = 2 * time.Second
	}
	return &Watcher{
		refresher: refresher,
		dirs:      dirs,
		debounce:  debounce,
		logger:    slog.Default(),
		pending:   make(map[index.Domain]*time.Timer),
	}
}

// Run watches until the context is cancelled. Missing directories are
// skipped with a warning; they can be created later and picked up on the
// next restart.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer fw.Close()

	watching := 0
	for domain, dir := range w.dirs {
		if err := fw.Add(dir); err != nil {
			w.logger.Warn("cannot watch document directory", "domain", domain, "dir", dir, "error", err)
			continue
		}
		watching++
		w.logger.Info("watching document directory", "domain", domain, "dir", dir)
	}
	if watching == 0 {
		w.logger.Warn("no document directories available to watch")
	}

	for {
		select {
		case <-ctx.Done():
			w.cancelPending()
			return ctx.Err()
		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			w.handleEvent(ev)
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.Error("watcher error", "error", err)
		}
	}
}

func (w *Watcher) handleEvent(ev fsnotify.Event) {
	if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
		return
	}
	if strings.HasPrefix(filepath.Base(ev.Name), ".") {
		return
	}
	domain, ok := w.domainFor(ev.Name)
	if !ok {
		return
	}
	w.logger.Debug("document change detected", "domain", domain, "file", ev.Name, "op", ev.Op.String())
	w.schedule(domain)
}

func (w *Watcher) domainFor(path string) (index.Domain, bool) {
	dir := filepath.Clean(filepath.Dir(path))
	for domain, root := range w.dirs {
		if dir == filepath.Clean(root) {
			return domain, true
		}
	}
	return "", false
}

// schedule arms (or re-arms) the domain's debounce timer.
func (w *Watcher) schedule(domain index.Domain) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if t, ok := w.pending[domain]; ok {
		t.Reset(w.debounce)
		return
	}
	w.pending[domain] = time.AfterFunc(w.debounce, func() {
		w.mu.Lock()
		delete(w.pending, domain)
		w.mu.Unlock()

		w.logger.Info("refreshing index after document changes", "domain", domain)
		if err := w.refresher.Refresh(context.Background(), domain); err != nil {
			w.logger.Error("watch-triggered refresh failed", "domain", domain, "error", err)
		}
	})
}

func (w *Watcher) cancelPending() {
	w.mu.Lock()
	defer w.mu.Unlock()
	for domain, t := range w.pending {
		t.Stop()
		delete(w.pending, domain)
	}
}
