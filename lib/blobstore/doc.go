// Copyright 2026 The AgentHub Authors
// SPDX-License-Identifier: Apache-2.0

// Package blobstore stores package artifact payloads addressed by
// content hash.
//
// A blob's address is the BLAKE3 keyed hash of its uncompressed bytes
// (key domain "agenthub.blob"). Writes are idempotent: storing the same
// bytes twice is a no-op, and two publishers racing to store identical
// content cannot conflict. The registry's publish protocol relies on
// this — artifact upload happens before metadata commit precisely
// because a failed publish leaves at worst an unreferenced blob, which
// the orphan sweep reclaims.
//
// [FS] is the production implementation: blobs live under a root
// directory fanned out by hash prefix, written via temp file + rename
// so a crash never leaves a partial blob at its final path. Content is
// compressed at rest with zstd or LZ4 selected by probing, with a
// per-blob tag byte recording the algorithm. [Memory] backs tests, and
// [Flaky] wraps any store with injected transient failures for
// exercising retry paths.
package blobstore
