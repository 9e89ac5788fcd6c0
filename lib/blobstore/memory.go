// Copyright 2026 The AgentHub Authors
// SPDX-License-Identifier: Apache-2.0

package blobstore

import (
	"context"
	"sync"

	"github.com/agenthub-foundation/agenthub/lib/registry"
)

// Memory is an in-memory Store for tests. Safe for concurrent use.
type Memory struct {
	mu    sync.RWMutex
	blobs map[Hash][]byte
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{blobs: make(map[Hash][]byte)}
}

func (s *Memory) Put(ctx context.Context, hash Hash, data []byte) error {
	if got := HashBlob(data); got != hash {
		return &registry.IntegrityError{WantHash: hash.String(), GotHash: got.String()}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.blobs[hash]; ok {
		return nil
	}
	stored := make([]byte, len(data))
	copy(stored, data)
	s.blobs[hash] = stored
	return nil
}

func (s *Memory) Get(ctx context.Context, hash Hash) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.blobs[hash]
	if !ok {
		return nil, &registry.NotFoundError{Kind: "blob", Key: hash.String()}
	}
	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}

func (s *Memory) Exists(ctx context.Context, hash Hash) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.blobs[hash]
	return ok, nil
}

func (s *Memory) Delete(ctx context.Context, hash Hash) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.blobs, hash)
	return nil
}

func (s *Memory) List(ctx context.Context) ([]Hash, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	hashes := make([]Hash, 0, len(s.blobs))
	for hash := range s.blobs {
		hashes = append(hashes, hash)
	}
	return hashes, nil
}

// Corrupt replaces the stored bytes for hash without updating the
// address, simulating at-rest corruption for integrity tests.
func (s *Memory) Corrupt(hash Hash, data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blobs[hash] = data
}

// Flaky wraps a Store and fails the first FailPuts calls to Put with
// a transient error, then delegates. It exercises the publish
// coordinator's retry path.
type Flaky struct {
	Inner Store

	mu       sync.Mutex
	failPuts int
	putCalls int
}

// NewFlaky wraps inner so the first failPuts Put calls fail.
func NewFlaky(inner Store, failPuts int) *Flaky {
	return &Flaky{Inner: inner, failPuts: failPuts}
}

// PutCalls returns how many times Put has been invoked.
func (s *Flaky) PutCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.putCalls
}

func (s *Flaky) Put(ctx context.Context, hash Hash, data []byte) error {
	s.mu.Lock()
	s.putCalls++
	fail := s.putCalls <= s.failPuts
	s.mu.Unlock()
	if fail {
		return &registry.TransientStorageError{Op: "blob put", Err: context.DeadlineExceeded}
	}
	return s.Inner.Put(ctx, hash, data)
}

func (s *Flaky) Get(ctx context.Context, hash Hash) ([]byte, error) {
	return s.Inner.Get(ctx, hash)
}

func (s *Flaky) Exists(ctx context.Context, hash Hash) (bool, error) {
	return s.Inner.Exists(ctx, hash)
}

func (s *Flaky) Delete(ctx context.Context, hash Hash) error {
	return s.Inner.Delete(ctx, hash)
}

func (s *Flaky) List(ctx context.Context) ([]Hash, error) {
	return s.Inner.List(ctx)
}
