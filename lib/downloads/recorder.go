// Copyright 2026 The AgentHub Authors
// SPDX-License-Identifier: Apache-2.0

package downloads

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/agenthub-foundation/agenthub/lib/clock"
	"github.com/agenthub-foundation/agenthub/lib/metastore"
	"github.com/agenthub-foundation/agenthub/lib/registry"
)

// Config holds the parameters for creating a Recorder.
type Config struct {
	// Store receives the deduplicated events. Required.
	Store metastore.Store

	// Clock provides event timestamps. Required.
	Clock clock.Clock

	// Logger receives drop warnings. If nil, a no-op logger is used.
	Logger *slog.Logger

	// BucketWidth is the dedup window: at most one counted download
	// per client per bucket. Defaults to one hour.
	BucketWidth time.Duration

	// QueueSize bounds the in-flight event queue. When the queue is
	// full, new events are dropped rather than blocking the download
	// response. Defaults to 256.
	QueueSize int

	// RetryAttempts is how many times a transient insert failure is
	// retried before the event is dropped. Defaults to 3.
	RetryAttempts int

	// RetryDelay is the pause between retry attempts. Defaults to
	// 100ms; tests pass a nanosecond to retry immediately.
	RetryDelay time.Duration

	// OnCounted, if set, is called after each event that was actually
	// counted (not a dedup hit), with the package name. The ranking
	// engine hooks its recompute notifications here. Called from the
	// worker goroutine; must not block.
	OnCounted func(pkg string)
}

// Recorder queues download events and writes them out of band.
type Recorder struct {
	store         metastore.Store
	clock         clock.Clock
	logger        *slog.Logger
	bucketWidth   time.Duration
	retryAttempts int
	retryDelay    time.Duration
	onCounted     func(string)

	queue chan registry.DownloadEvent
	done  chan struct{}

	mu     sync.Mutex
	closed bool
}

// NewRecorder creates a Recorder and starts its worker goroutine.
// Call Close to flush and stop.
func NewRecorder(cfg Config) (*Recorder, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("downloads: Store is required")
	}
	if cfg.Clock == nil {
		return nil, fmt.Errorf("downloads: Clock is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	bucketWidth := cfg.BucketWidth
	if bucketWidth <= 0 {
		bucketWidth = time.Hour
	}
	queueSize := cfg.QueueSize
	if queueSize <= 0 {
		queueSize = 256
	}
	retryAttempts := cfg.RetryAttempts
	if retryAttempts <= 0 {
		retryAttempts = 3
	}
	retryDelay := cfg.RetryDelay
	if retryDelay <= 0 {
		retryDelay = 100 * time.Millisecond
	}

	r := &Recorder{
		store:         cfg.Store,
		clock:         cfg.Clock,
		logger:        logger,
		bucketWidth:   bucketWidth,
		retryAttempts: retryAttempts,
		retryDelay:    retryDelay,
		onCounted:     cfg.OnCounted,
		queue:         make(chan registry.DownloadEvent, queueSize),
		done:          make(chan struct{}),
	}
	go r.run()
	return r, nil
}

// Record enqueues a download observation. Never blocks: when the
// queue is full the event is dropped with a warning, because
// accounting failure degrades statistics, never the download itself.
func (r *Recorder) Record(pkg, version, fingerprint string) {
	now := r.clock.Now()
	event := registry.DownloadEvent{
		Package:     pkg,
		Version:     version,
		Fingerprint: fingerprint,
		Bucket:      registry.BucketFor(now, r.bucketWidth),
		CreatedAt:   now,
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	select {
	case r.queue <- event:
	default:
		r.logger.Warn("download event dropped, queue full",
			"package", pkg, "version", version)
	}
}

// Close stops accepting events, drains the queue, and waits for the
// worker to finish.
func (r *Recorder) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		<-r.done
		return
	}
	r.closed = true
	close(r.queue)
	r.mu.Unlock()
	<-r.done
}

func (r *Recorder) run() {
	defer close(r.done)
	for event := range r.queue {
		r.write(event)
	}
}

// write inserts one event, retrying transient storage failures a
// bounded number of times before giving up.
func (r *Recorder) write(event registry.DownloadEvent) {
	var counted bool
	operation := func() error {
		var err error
		counted, err = r.store.RecordDownloadEvent(context.Background(), &event)
		if err == nil {
			return nil
		}
		var transient *registry.TransientStorageError
		if errors.As(err, &transient) {
			return err
		}
		return backoff.Permanent(err)
	}

	policy := backoff.WithMaxRetries(
		backoff.NewConstantBackOff(r.retryDelay),
		uint64(r.retryAttempts),
	)
	if err := backoff.Retry(operation, policy); err != nil {
		r.logger.Warn("download event dropped after retries",
			"package", event.Package,
			"version", event.Version,
			"error", err,
		)
		return
	}

	if counted && r.onCounted != nil {
		r.onCounted(event.Package)
	}
}
