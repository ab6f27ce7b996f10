package watch

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/nkosler/opsdesk/internal/index"
)

type countingRefresher struct {
	mu    sync.Mutex
	calls map[index.Domain]int
	done  chan struct{}
}

func newCountingRefresher() *countingRefresher {
	return &countingRefresher{calls: make(map[index.Domain]int), done: make(chan struct{}, 16)}
}

func (r *countingRefresher) Refresh(_ context.Context, domain index.Domain) error {
	r.mu.Lock()
	r.calls[domain]++
	r.mu.Unlock()
	r.done <- struct{}{}
	return nil
}

func (r *countingRefresher) count(domain index.Domain) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls[domain]
}

func testDirs(itDir, finDir string) map[index.Domain]string {
	return map[index.Domain]string{
		index.DomainIT:      itDir,
		index.DomainFinance: finDir,
	}
}

func TestDebounce_CollapsesBursts(t *testing.T) {
	refresher := newCountingRefresher()
	w := New(refresher, testDirs("/docs/it", "/docs/finance"), 40*time.Millisecond)

	for i := 0; i < 5; i++ {
		w.handleEvent(fsnotify.Event{Name: "/docs/it/guide.md", Op: fsnotify.Write})
		time.Sleep(5 * time.Millisecond)
	}

	select {
	case <-refresher.done:
	case <-time.After(2 * time.Second):
		t.Fatal("refresh never fired")
	}
	// Quiet period after the flush; no further refresh should arrive.
	time.Sleep(100 * time.Millisecond)

	if got := refresher.count(index.DomainIT); got != 1 {
		t.Errorf("refresh count = %d, want 1 for a burst", got)
	}
}

func TestDebounce_PerDomainTimers(t *testing.T) {
	refresher := newCountingRefresher()
	w := New(refresher, testDirs("/docs/it", "/docs/finance"), 20*time.Millisecond)

	w.handleEvent(fsnotify.Event{Name: "/docs/it/a.md", Op: fsnotify.Create})
	w.handleEvent(fsnotify.Event{Name: "/docs/finance/b.pdf", Op: fsnotify.Create})

	for i := 0; i < 2; i++ {
		select {
		case <-refresher.done:
		case <-time.After(2 * time.Second):
			t.Fatal("refresh never fired")
		}
	}

	if refresher.count(index.DomainIT) != 1 || refresher.count(index.DomainFinance) != 1 {
		t.Errorf("counts = %v, want one per domain", refresher.calls)
	}
}

func TestHandleEvent_Filters(t *testing.T) {
	refresher := newCountingRefresher()
	w := New(refresher, testDirs("/docs/it", "/docs/finance"), 10*time.Millisecond)

	// Chmod, hidden files, and paths outside the watched dirs are ignored.
	w.handleEvent(fsnotify.Event{Name: "/docs/it/guide.md", Op: fsnotify.Chmod})
	w.handleEvent(fsnotify.Event{Name: "/docs/it/.swapfile", Op: fsnotify.Write})
	w.handleEvent(fsnotify.Event{Name: "/tmp/unrelated.md", Op: fsnotify.Write})

	time.Sleep(60 * time.Millisecond)
	if len(refresher.calls) != 0 {
		t.Errorf("refreshes fired for ignored events: %v", refresher.calls)
	}
}

func TestDomainFor(t *testing.T) {
	w := New(newCountingRefresher(), testDirs("/docs/it", "/docs/finance"), time.Second)

	if d, ok := w.domainFor(filepath.Join("/docs/it", "notes.txt")); !ok || d != index.DomainIT {
		t.Errorf("domainFor it file = %s, %t", d, ok)
	}
	if d, ok := w.domainFor(filepath.Join("/docs/finance", "policy.pdf")); !ok || d != index.DomainFinance {
		t.Errorf("domainFor finance file = %s, %t", d, ok)
	}
	if _, ok := w.domainFor("/somewhere/else.md"); ok {
		t.Error("unrelated path mapped to a domain")
	}
}
