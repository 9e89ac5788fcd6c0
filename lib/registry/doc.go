// Copyright 2026 The AgentHub Authors
// SPDX-License-Identifier: Apache-2.0

// Package registry defines the domain model for the AgentHub package
// registry: packages, package versions, download events, and ranking
// aggregates, together with the error taxonomy shared by every layer
// above the storage gateways.
//
// The types here are plain records with no behavior beyond
// validation and formatting. Storage lives in lib/metastore and
// lib/blobstore; orchestration lives in lib/publish. Keeping the
// domain package dependency-free lets every other package import it
// without cycles.
//
// # Error taxonomy
//
// Failures are classified into typed errors so callers can decide on
// retry behavior without string matching:
//
//   - ValidationError: the client sent a malformed manifest or
//     version string. Never retried automatically.
//   - ConflictError: duplicate version or lost compare-and-swap
//     race. The caller may retry with a new version or re-read.
//   - PublishInProgressError: another publish of the same version is
//     running (or recently abandoned). Safe to retry shortly.
//   - TransientStorageError: an external store timed out or was
//     unavailable. Safe to retry with backoff.
//   - IntegrityError: a committed artifact no longer matches its
//     recorded content hash. Surfaced to the owner, never retried.
//   - NotFoundError: the requested package or version does not exist.
//
// Use errors.As to classify; all constructors return pointer types.
package registry
