// Copyright 2026 The AgentHub Authors
// SPDX-License-Identifier: Apache-2.0

// Package metastore is the registry's durable metadata store: packages,
// versions, and download events.
//
// The [Store] interface is the narrow gateway the publish coordinator,
// download accounting, and ranking engine consume. [SQLite] is the
// production implementation, built on lib/sqlitepool with WAL pragmas
// and IMMEDIATE transactions for every write.
//
// Two operations are the registry's serialization points and carry
// atomicity guarantees the rest of the system is built on:
//
//   - [Store.InsertVersionIfAbsent]: the UNIQUE(package, version)
//     constraint decides races between concurrent publishers of the
//     same version. Exactly one caller inserts; everyone else sees the
//     existing row.
//   - [Store.CASUpdateLatest]: a conditional single-row update of the
//     latest pointer. The publish coordinator loops on it so
//     out-of-order completion of two publishes never regresses latest.
//
// Everything else is immutable once written (versions, download
// events) or re-derivable (download aggregates).
package metastore
