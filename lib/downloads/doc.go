// Copyright 2026 The AgentHub Authors
// SPDX-License-Identifier: Apache-2.0

// Package downloads records deduplicated download events.
//
// Accounting must never block or fail an artifact transfer: [Recorder.Record]
// enqueues the event on a bounded channel and returns immediately. A
// background worker drains the queue, inserting each event with the
// (package, version, fingerprint, bucket) identity so repeated downloads
// by one client within a bucket collapse to a single counted event.
// Transient insert failures are retried a fixed number of times, then
// the event is dropped with a warning — degraded statistics, never a
// degraded download.
package downloads
