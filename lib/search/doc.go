// Copyright 2026 The AgentHub Authors
// SPDX-License-Identifier: Apache-2.0

// Package search provides relevance-ranked full-text search over the
// package catalog. Each package is indexed as a weighted composite of
// its name (3x), description (2x), and keywords (2x), scored with
// BM25 (Okapi variant).
//
// The index is a snapshot of catalog metadata, rebuilt on demand from
// the metadata store. Publishes invalidate the snapshot; the next
// query rebuilds it before scoring. Rebuilds are cheap (the catalog
// is small) so there is no incremental update path.
package search
