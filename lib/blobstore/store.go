// Copyright 2026 The AgentHub Authors
// SPDX-License-Identifier: Apache-2.0

package blobstore

import "context"

// Store is the content store consumed by the publish and download
// paths. Implementations are safe for concurrent use; Put is
// idempotent by address so concurrent writers of identical content
// never conflict.
type Store interface {
	// Put stores data under the given address. It verifies that data
	// hashes to hash and returns a *registry.IntegrityError on
	// mismatch. Storing bytes that already exist is a no-op.
	Put(ctx context.Context, hash Hash, data []byte) error

	// Get returns the blob's uncompressed bytes. A missing blob is a
	// *registry.NotFoundError.
	Get(ctx context.Context, hash Hash) ([]byte, error)

	// Exists reports whether a blob is present without reading it.
	Exists(ctx context.Context, hash Hash) (bool, error)

	// Delete removes a blob. Only the orphan sweep calls this;
	// referenced blobs must never be deleted. Deleting a missing
	// blob is a no-op.
	Delete(ctx context.Context, hash Hash) error

	// List returns the addresses of every stored blob, in no
	// particular order. Used by the orphan sweep to find candidates.
	List(ctx context.Context) ([]Hash, error)
}
