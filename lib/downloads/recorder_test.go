// Copyright 2026 The AgentHub Authors
// SPDX-License-Identifier: Apache-2.0

package downloads

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/agenthub-foundation/agenthub/lib/clock"
	"github.com/agenthub-foundation/agenthub/lib/metastore"
	"github.com/agenthub-foundation/agenthub/lib/registry"
)

var testEpoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// fakeStore implements the one Store method the recorder uses and
// panics on everything else via the embedded nil interface.
type fakeStore struct {
	metastore.Store

	mu        sync.Mutex
	events    []registry.DownloadEvent
	seen      map[string]bool
	failFirst int
	calls     int
}

func newFakeStore() *fakeStore {
	return &fakeStore{seen: make(map[string]bool)}
}

func (s *fakeStore) RecordDownloadEvent(ctx context.Context, event *registry.DownloadEvent) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.calls <= s.failFirst {
		return false, &registry.TransientStorageError{Op: "record download", Err: context.DeadlineExceeded}
	}
	key := fmt.Sprintf("%s|%s|%s|%d", event.Package, event.Version, event.Fingerprint, event.Bucket)
	if s.seen[key] {
		return false, nil
	}
	s.seen[key] = true
	s.events = append(s.events, *event)
	return true, nil
}

func (s *fakeStore) recorded() []registry.DownloadEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]registry.DownloadEvent, len(s.events))
	copy(out, s.events)
	return out
}

func newTestRecorder(t *testing.T, store metastore.Store, onCounted func(string)) *Recorder {
	t.Helper()
	r, err := NewRecorder(Config{
		Store:      store,
		Clock:      clock.Fake(testEpoch),
		RetryDelay: time.Nanosecond,
		OnCounted:  onCounted,
	})
	if err != nil {
		t.Fatalf("NewRecorder: %v", err)
	}
	return r
}

func TestRecordWritesEvent(t *testing.T) {
	store := newFakeStore()

	counted := make(chan string, 1)
	r := newTestRecorder(t, store, func(pkg string) { counted <- pkg })

	r.Record("web-scraper", "0.5.0", "client-a")

	select {
	case pkg := <-counted:
		if pkg != "web-scraper" {
			t.Errorf("counted package = %q", pkg)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("event never recorded")
	}
	r.Close()

	events := store.recorded()
	if len(events) != 1 {
		t.Fatalf("%d events recorded, want 1", len(events))
	}
	event := events[0]
	if event.Bucket != registry.BucketFor(testEpoch, time.Hour) {
		t.Errorf("Bucket = %d, want hour bucket of test epoch", event.Bucket)
	}
	if event.Fingerprint != "client-a" {
		t.Errorf("Fingerprint = %q", event.Fingerprint)
	}
}

func TestDuplicateEventNotCounted(t *testing.T) {
	store := newFakeStore()

	var mu sync.Mutex
	var countedPackages []string
	r := newTestRecorder(t, store, func(pkg string) {
		mu.Lock()
		countedPackages = append(countedPackages, pkg)
		mu.Unlock()
	})

	// Same client, same package and version, same bucket (the fake
	// clock never advances): one counted download.
	r.Record("web-scraper", "0.5.0", "client-a")
	r.Record("web-scraper", "0.5.0", "client-a")
	r.Record("web-scraper", "0.5.0", "client-a")
	r.Close()

	if len(store.recorded()) != 1 {
		t.Errorf("%d events stored, want 1", len(store.recorded()))
	}
	mu.Lock()
	defer mu.Unlock()
	if len(countedPackages) != 1 {
		t.Errorf("OnCounted fired %d times, want 1", len(countedPackages))
	}
}

func TestTransientFailureRetried(t *testing.T) {
	store := newFakeStore()
	store.failFirst = 2

	r := newTestRecorder(t, store, nil)
	r.Record("web-scraper", "0.5.0", "client-a")
	r.Close()

	if len(store.recorded()) != 1 {
		t.Fatalf("event lost despite retries: %d stored", len(store.recorded()))
	}
	if store.calls != 3 {
		t.Errorf("store called %d times, want 3 (two failures, one success)", store.calls)
	}
}

func TestEventDroppedAfterRetryBudget(t *testing.T) {
	store := newFakeStore()
	store.failFirst = 100

	r, err := NewRecorder(Config{
		Store:         store,
		Clock:         clock.Fake(testEpoch),
		RetryAttempts: 2,
		RetryDelay:    time.Nanosecond,
	})
	if err != nil {
		t.Fatal(err)
	}
	r.Record("web-scraper", "0.5.0", "client-a")
	r.Close()

	if len(store.recorded()) != 0 {
		t.Error("event recorded despite permanent failure")
	}
	// Initial attempt plus two retries.
	if store.calls != 3 {
		t.Errorf("store called %d times, want 3", store.calls)
	}
}

func TestRecordAfterCloseIsNoop(t *testing.T) {
	store := newFakeStore()
	r := newTestRecorder(t, store, nil)
	r.Close()

	// Must not panic or block.
	r.Record("web-scraper", "0.5.0", "client-a")

	if len(store.recorded()) != 0 {
		t.Error("event recorded after Close")
	}
}
