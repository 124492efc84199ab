// Package testutil provides shared test helpers: temporary stores and
// indexes, fakes for the external collaborators and a manual clock.
package testutil

import (
	"context"
	"path/filepath"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/starford/kbsync/internal/apperr"
	"github.com/starford/kbsync/internal/index"
	"github.com/starford/kbsync/internal/storage"
)

// TestDB creates a temporary SQLite index that is closed on cleanup.
func TestDB(t *testing.T, opts ...index.LocalOption) *index.Local {
	t.Helper()
	db, err := index.OpenLocal(filepath.Join(t.TempDir(), "index.db"), opts...)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// TestStore creates a temporary FS object store.
func TestStore(t *testing.T, opts ...storage.FSOption) (string, *storage.FS) {
	t.Helper()
	dir := t.TempDir()
	store, err := storage.NewFS(dir, opts...)
	if err != nil {
		t.Fatal(err)
	}
	return dir, store
}

// FakeIndex is an in-memory index.Synchronizer. Setting AddErr or RemoveErr
// makes the corresponding calls fail with a sync error carrying that message.
type FakeIndex struct {
	mu        sync.Mutex
	docs      map[string]index.Document
	AddErr    string
	RemoveErr string
	Calls     []string
}

// NewFakeIndex returns an empty FakeIndex.
func NewFakeIndex() *FakeIndex {
	return &FakeIndex{docs: make(map[string]index.Document)}
}

func (f *FakeIndex) Add(_ context.Context, d index.Document) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Calls = append(f.Calls, "add "+d.Path)
	if f.AddErr != "" {
		return apperr.New(apperr.KindSync, "index add", d.Path, f.AddErr)
	}
	f.docs[d.Path] = d
	return nil
}

func (f *FakeIndex) Remove(_ context.Context, path string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Calls = append(f.Calls, "remove "+path)
	if f.RemoveErr != "" {
		return apperr.New(apperr.KindSync, "index remove", path, f.RemoveErr)
	}
	delete(f.docs, path)
	return nil
}

func (f *FakeIndex) Reset(_ context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Calls = append(f.Calls, "reset")
	f.docs = make(map[string]index.Document)
	return nil
}

// Paths returns the indexed paths in sorted order.
func (f *FakeIndex) Paths() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.docs))
	for p := range f.docs {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// Doc returns the indexed document for path.
func (f *FakeIndex) Doc(path string) (index.Document, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.docs[path]
	return d, ok
}

// CallLog returns a copy of the recorded calls.
func (f *FakeIndex) CallLog() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.Calls...)
}

// FakeTrigger records trigger calls. Err fails every call; OnTrigger runs
// after a successful call, e.g. to drop the converted file into a store.
type FakeTrigger struct {
	mu        sync.Mutex
	Sources   []string
	Err       error
	OnTrigger func(sourcePath string)
}

func (f *FakeTrigger) Trigger(_ context.Context, sourcePath string) error {
	f.mu.Lock()
	f.Sources = append(f.Sources, sourcePath)
	err, hook := f.Err, f.OnTrigger
	f.mu.Unlock()
	if err != nil {
		return err
	}
	if hook != nil {
		hook(sourcePath)
	}
	return nil
}

// Calls returns the recorded source paths.
func (f *FakeTrigger) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.Sources...)
}

// ManualClock only moves when Advance is called.
type ManualClock struct {
	mu      sync.Mutex
	now     time.Time
	waiters []waiter
	changed chan struct{}
}

type waiter struct {
	at time.Time
	ch chan time.Time
}

// NewManualClock returns a clock reading start.
func NewManualClock(start time.Time) *ManualClock {
	return &ManualClock{now: start, changed: make(chan struct{})}
}

func (c *ManualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *ManualClock) After(d time.Duration) <-chan time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	ch := make(chan time.Time, 1)
	if d <= 0 {
		ch <- c.now
		return ch
	}
	c.waiters = append(c.waiters, waiter{at: c.now.Add(d), ch: ch})
	c.notify()
	return ch
}

// Advance moves the clock forward and fires every timer that became due.
func (c *ManualClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
	kept := c.waiters[:0]
	for _, w := range c.waiters {
		if !w.at.After(c.now) {
			w.ch <- c.now
			continue
		}
		kept = append(kept, w)
	}
	c.waiters = kept
	c.notify()
}

// BlockUntil waits until at least n timers are pending or timeout passes.
// It reports whether the condition was met.
func (c *ManualClock) BlockUntil(n int, timeout time.Duration) bool {
	deadline := time.After(timeout)
	for {
		c.mu.Lock()
		pending, changed := len(c.waiters), c.changed
		c.mu.Unlock()
		if pending >= n {
			return true
		}
		select {
		case <-changed:
		case <-deadline:
			return false
		}
	}
}

// notify wakes BlockUntil callers. Caller holds mu.
func (c *ManualClock) notify() {
	close(c.changed)
	c.changed = make(chan struct{})
}
