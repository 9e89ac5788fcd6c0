// Copyright 2026 The AgentHub Authors
// SPDX-License-Identifier: Apache-2.0

// Package publish implements the publish protocol: validate the
// manifest, claim the (package, version) slot, upload the artifact
// blob, commit the version record, and advance the latest pointer.
//
// The protocol order is a deliberate atomicity discipline across two
// stores. The blob upload is idempotent by content address and runs
// before the metadata commit, so a crash or abort between the two
// leaves at worst an orphan blob, never a visible version without
// its artifact. Orphans are reclaimed by a periodic sweep after a
// grace period.
//
// Serialization points are narrow: the uniqueness constraint on
// (package, version) at claim time, and the compare-and-swap on the
// latest pointer. Concurrent publishes of different versions of the
// same package proceed independently.
//
// Failure exits map to the registry error taxonomy: schema failures
// reject with *registry.ValidationError before any external state is
// touched, a committed duplicate rejects with *registry.ConflictError,
// a fresh pending row from another publisher rejects with
// *registry.PublishInProgressError, and storage failures abort with
// *registry.TransientStorageError after the pending claim is released.
package publish
