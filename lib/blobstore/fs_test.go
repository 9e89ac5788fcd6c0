// Copyright 2026 The AgentHub Authors
// SPDX-License-Identifier: Apache-2.0

package blobstore

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/zeebo/blake3"

	"github.com/agenthub-foundation/agenthub/lib/registry"
)

func newTestFS(t *testing.T) *FS {
	t.Helper()
	store, err := NewFS(t.TempDir())
	if err != nil {
		t.Fatalf("NewFS: %v", err)
	}
	return store
}

func TestPutGetRoundtrip(t *testing.T) {
	store := newTestFS(t)
	ctx := context.Background()

	data := bytes.Repeat([]byte("manifest content that compresses well. "), 100)
	hash := HashBlob(data)

	if err := store.Put(ctx, hash, data); err != nil {
		t.Fatalf("Put: %v", err)
	}

	got, err := store.Get(ctx, hash)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Errorf("roundtrip mismatch: got %d bytes, want %d", len(got), len(data))
	}
}

func TestPutIsIdempotent(t *testing.T) {
	store := newTestFS(t)
	ctx := context.Background()

	data := []byte("same bytes twice")
	hash := HashBlob(data)

	if err := store.Put(ctx, hash, data); err != nil {
		t.Fatalf("first Put: %v", err)
	}
	if err := store.Put(ctx, hash, data); err != nil {
		t.Fatalf("second Put: %v", err)
	}

	got, err := store.Get(ctx, hash)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Error("content changed after duplicate Put")
	}
}

func TestPutRejectsWrongAddress(t *testing.T) {
	store := newTestFS(t)
	ctx := context.Background()

	wrong := HashBlob([]byte("other content"))
	err := store.Put(ctx, wrong, []byte("actual content"))

	var integrityErr *registry.IntegrityError
	if !errors.As(err, &integrityErr) {
		t.Fatalf("Put with wrong address returned %T, want *registry.IntegrityError: %v", err, err)
	}

	// Nothing may reach disk on a rejected write.
	exists, err := store.Exists(ctx, wrong)
	if err != nil {
		t.Fatal(err)
	}
	if exists {
		t.Error("rejected blob present on disk")
	}
}

func TestGetMissingBlob(t *testing.T) {
	store := newTestFS(t)

	_, err := store.Get(context.Background(), HashBlob([]byte("never stored")))
	var notFound *registry.NotFoundError
	if !errors.As(err, &notFound) {
		t.Fatalf("Get of missing blob returned %T, want *registry.NotFoundError: %v", err, err)
	}
}

func TestDeleteAndList(t *testing.T) {
	store := newTestFS(t)
	ctx := context.Background()

	first := []byte("blob one")
	second := []byte("blob two")
	firstHash, secondHash := HashBlob(first), HashBlob(second)

	if err := store.Put(ctx, firstHash, first); err != nil {
		t.Fatal(err)
	}
	if err := store.Put(ctx, secondHash, second); err != nil {
		t.Fatal(err)
	}

	hashes, err := store.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(hashes) != 2 {
		t.Fatalf("List returned %d blobs, want 2", len(hashes))
	}

	if err := store.Delete(ctx, firstHash); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	// Deleting again is a no-op.
	if err := store.Delete(ctx, firstHash); err != nil {
		t.Fatalf("repeated Delete: %v", err)
	}

	hashes, err = store.List(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(hashes) != 1 || hashes[0] != secondHash {
		t.Errorf("List after delete = %v, want [%s]", hashes, secondHash)
	}
}

func TestFanOutLayout(t *testing.T) {
	root := t.TempDir()
	store, err := NewFS(root)
	if err != nil {
		t.Fatal(err)
	}

	data := []byte("layout probe")
	hash := HashBlob(data)
	if err := store.Put(context.Background(), hash, data); err != nil {
		t.Fatal(err)
	}

	hexHash := hash.String()
	want := filepath.Join(root, "blobs", hexHash[:2], hexHash+".blob")
	if _, err := os.Stat(want); err != nil {
		t.Errorf("blob not at fan-out path %s: %v", want, err)
	}

	// No temp files may remain after a successful write.
	entries, err := os.ReadDir(filepath.Join(root, "tmp"))
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Errorf("tmp directory not empty after Put: %d entries", len(entries))
	}
}

func TestIncompressibleContentStoredVerbatim(t *testing.T) {
	store := newTestFS(t)
	ctx := context.Background()

	// High-entropy bytes defeat both zstd and lz4; the store must
	// fall back to CompressionNone and still round-trip.
	data := make([]byte, 4096)
	seed := uint64(0x9e3779b97f4a7c15)
	for i := range data {
		seed = seed*6364136223846793005 + 1442695040888963407
		data[i] = byte(seed >> 56)
	}
	hash := HashBlob(data)

	if err := store.Put(ctx, hash, data); err != nil {
		t.Fatal(err)
	}
	got, err := store.Get(ctx, hash)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, data) {
		t.Error("incompressible content did not round-trip")
	}
}

func TestHashString(t *testing.T) {
	hash := HashBlob([]byte("x"))
	text := hash.String()
	if len(text) != 64 || strings.ToLower(text) != text {
		t.Errorf("hash string %q is not 64 lowercase hex chars", text)
	}

	parsed, err := ParseHash(text)
	if err != nil {
		t.Fatalf("ParseHash: %v", err)
	}
	if parsed != hash {
		t.Error("ParseHash did not invert String")
	}

	if _, err := ParseHash("zz"); err == nil {
		t.Error("ParseHash accepted invalid hex")
	}
	if _, err := ParseHash("abcd"); err == nil {
		t.Error("ParseHash accepted short input")
	}
}

func TestDomainSeparation(t *testing.T) {
	// The blob-domain hash must differ from unkeyed BLAKE3 of the
	// same input, otherwise addresses collide with other hash domains.
	data := []byte("domain separation probe")
	if HashBlob(data) == Hash(blake3.Sum256(data)) {
		t.Error("keyed hash equals unkeyed hash; domain key not applied")
	}
}

func TestFlakyStoreFailsThenRecovers(t *testing.T) {
	inner := NewMemory()
	flaky := NewFlaky(inner, 2)
	ctx := context.Background()

	data := []byte("retryable content")
	hash := HashBlob(data)

	for attempt := 0; attempt < 2; attempt++ {
		err := flaky.Put(ctx, hash, data)
		var transient *registry.TransientStorageError
		if !errors.As(err, &transient) {
			t.Fatalf("attempt %d returned %T, want *registry.TransientStorageError", attempt, err)
		}
	}
	if err := flaky.Put(ctx, hash, data); err != nil {
		t.Fatalf("third Put: %v", err)
	}
	if flaky.PutCalls() != 3 {
		t.Errorf("PutCalls = %d, want 3", flaky.PutCalls())
	}
}
