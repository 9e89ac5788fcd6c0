// Copyright 2026 The AgentHub Authors
// SPDX-License-Identifier: Apache-2.0

// Package ranking derives the registry's sorted discovery views.
//
// Three views exist per package type: Popular (all-time deduplicated
// downloads, descending), Recent (latest activity, descending), and
// Trending (velocity score rewarding acceleration over volume). The
// trending score for a package is
//
//	(recentWindow - previousWindow) / max(previousWindow, 1)
//
// with ties broken by the absolute recent-window count.
//
// Aggregates are never accumulated incrementally without bound: the
// engine recomputes them by replaying bucketed download counts from the
// metadata store, so duplicate or delayed notifications cannot corrupt
// the numbers, only delay their freshness. Publish and download paths
// call [Engine.Notify]; notifications coalesce into a single dirty flag
// consumed by [Engine.Run], which also recomputes on a periodic tick as
// a backstop.
//
// Assembled view listings are cached with per-view TTLs and flushed on
// every recompute, so a cache entry is never staler than both its TTL
// and the recompute cadence.
package ranking
