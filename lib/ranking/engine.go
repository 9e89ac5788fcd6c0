// Copyright 2026 The AgentHub Authors
// SPDX-License-Identifier: Apache-2.0

package ranking

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/agenthub-foundation/agenthub/lib/clock"
	"github.com/agenthub-foundation/agenthub/lib/metastore"
	"github.com/agenthub-foundation/agenthub/lib/registry"
)

// View names a ranking order.
type View string

const (
	ViewPopular  View = "popular"
	ViewRecent   View = "recent"
	ViewTrending View = "trending"
)

// ParseView parses a view name.
func ParseView(s string) (View, error) {
	switch View(s) {
	case ViewPopular, ViewRecent, ViewTrending:
		return View(s), nil
	default:
		return "", &registry.ValidationError{Violations: []registry.Violation{{
			Field:  "view",
			Reason: fmt.Sprintf("unknown view %q (valid: popular, recent, trending)", s),
		}}}
	}
}

// Entry is one row of an assembled view listing.
type Entry struct {
	Package        *registry.Package
	TotalDownloads int64
	RecentWindow   int64
	TrendingScore  float64
	LatestActivity time.Time
}

// Config holds the parameters for creating a ranking engine.
type Config struct {
	// Store supplies packages and replayed download aggregates.
	// Required.
	Store metastore.Store

	// Clock drives window math and the recompute ticker. Required.
	Clock clock.Clock

	// Logger receives recompute reports. If nil, a no-op logger is
	// used.
	Logger *slog.Logger

	// WindowWidth is the bucket width for trending windows. Defaults
	// to one hour. Must match the accounting layer's bucket width or
	// window counts will straddle bucket boundaries.
	WindowWidth time.Duration

	// WindowCount is the number of buckets per trending window.
	// Defaults to 24 (one day of hourly buckets).
	WindowCount int

	// RecomputeInterval is the backstop recompute cadence of the Run
	// loop. Defaults to 5 minutes.
	RecomputeInterval time.Duration

	// PopularTTL, RecentTTL, and TrendingTTL bound staleness of cached
	// view listings. Defaults: popular 1h, recent 5m, trending 30m.
	PopularTTL  time.Duration
	RecentTTL   time.Duration
	TrendingTTL time.Duration
}

// Engine computes and serves the ranking views.
type Engine struct {
	store             metastore.Store
	clock             clock.Clock
	logger            *slog.Logger
	windowWidth       time.Duration
	windowCount       int
	recomputeInterval time.Duration
	viewTTL           map[View]time.Duration

	cache *gocache.Cache
	dirty chan struct{}

	mu         sync.RWMutex
	aggregates map[string]*registry.Aggregate
}

// NewEngine creates a ranking engine. Call Recompute once before
// serving views, then run the update loop with Run.
func NewEngine(cfg Config) (*Engine, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("ranking: Store is required")
	}
	if cfg.Clock == nil {
		return nil, fmt.Errorf("ranking: Clock is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	windowWidth := cfg.WindowWidth
	if windowWidth <= 0 {
		windowWidth = time.Hour
	}
	windowCount := cfg.WindowCount
	if windowCount <= 0 {
		windowCount = 24
	}
	recomputeInterval := cfg.RecomputeInterval
	if recomputeInterval <= 0 {
		recomputeInterval = 5 * time.Minute
	}

	popularTTL := cfg.PopularTTL
	if popularTTL <= 0 {
		popularTTL = time.Hour
	}
	recentTTL := cfg.RecentTTL
	if recentTTL <= 0 {
		recentTTL = 5 * time.Minute
	}
	trendingTTL := cfg.TrendingTTL
	if trendingTTL <= 0 {
		trendingTTL = 30 * time.Minute
	}

	return &Engine{
		store:             cfg.Store,
		clock:             cfg.Clock,
		logger:            logger,
		windowWidth:       windowWidth,
		windowCount:       windowCount,
		recomputeInterval: recomputeInterval,
		viewTTL: map[View]time.Duration{
			ViewPopular:  popularTTL,
			ViewRecent:   recentTTL,
			ViewTrending: trendingTTL,
		},
		cache:      gocache.New(gocache.NoExpiration, 10*time.Minute),
		dirty:      make(chan struct{}, 1),
		aggregates: make(map[string]*registry.Aggregate),
	}, nil
}

// Notify marks the aggregates dirty. Called by the publish and
// download paths; never blocks, repeated calls coalesce. A lost
// notification delays freshness until the periodic recompute — it
// never corrupts the views, which are rebuilt from raw events.
func (e *Engine) Notify(pkg string) {
	select {
	case e.dirty <- struct{}{}:
	default:
	}
}

// Run consumes notifications and periodically recomputes until ctx is
// cancelled. Recompute failures are logged and retried on the next
// trigger; the previous snapshot keeps serving.
func (e *Engine) Run(ctx context.Context) {
	ticker := e.clock.NewTicker(e.recomputeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-e.dirty:
		case <-ticker.C:
		}
		if err := e.Recompute(ctx); err != nil {
			if ctx.Err() != nil {
				return
			}
			e.logger.Warn("ranking recompute failed", "error", err)
		}
	}
}

// Recompute replays bucketed download counts into a fresh aggregate
// snapshot and flushes the view cache. Idempotent: recomputing twice
// in a row yields the same snapshot because the source events are
// deduplicated at the accounting layer.
func (e *Engine) Recompute(ctx context.Context) error {
	now := e.clock.Now()
	widthSeconds := int64(e.windowWidth / time.Second)
	currentBucket := registry.BucketFor(now, e.windowWidth)

	// The recent window is the WindowCount buckets ending with the
	// current one; the previous window is the WindowCount buckets
	// before that.
	recentStart := currentBucket - int64(e.windowCount-1)*widthSeconds
	previousStart := recentStart - int64(e.windowCount)*widthSeconds

	aggregates, err := e.store.DownloadAggregates(ctx, previousStart, recentStart)
	if err != nil {
		return fmt.Errorf("ranking: replaying download aggregates: %w", err)
	}

	snapshot := make(map[string]*registry.Aggregate, len(aggregates))
	for _, a := range aggregates {
		a.TrendingScore = trendingScore(a.RecentWindow, a.PreviousWindow)
		snapshot[a.Package] = a
	}

	e.mu.Lock()
	e.aggregates = snapshot
	e.mu.Unlock()
	e.cache.Flush()

	e.logger.Debug("ranking recomputed",
		"packages", len(snapshot),
		"recent_start", recentStart,
		"previous_start", previousStart,
	)
	return nil
}

// trendingScore is the velocity score: recent-window growth
// normalized by the previous window, with the denominator floored at
// 1 to guard against division by zero.
func trendingScore(recent, previous int64) float64 {
	denominator := previous
	if denominator < 1 {
		denominator = 1
	}
	return float64(recent-previous) / float64(denominator)
}

// List returns the view's entries, optionally filtered by package
// type, truncated to limit (0 means no limit). Results are cached per
// (view, filter, limit) with the view's TTL.
func (e *Engine) List(ctx context.Context, view View, filter *registry.PackageType, limit int) ([]Entry, error) {
	key := cacheKey(view, filter, limit)
	if cached, ok := e.cache.Get(key); ok {
		return cached.([]Entry), nil
	}

	packages, err := e.store.ListPackages(ctx, filter, 0)
	if err != nil {
		return nil, fmt.Errorf("ranking: listing packages: %w", err)
	}

	e.mu.RLock()
	entries := make([]Entry, 0, len(packages))
	for _, pkg := range packages {
		entry := Entry{Package: pkg, LatestActivity: pkg.UpdatedAt}
		if a, ok := e.aggregates[pkg.Name]; ok {
			entry.TotalDownloads = a.TotalDownloads
			entry.RecentWindow = a.RecentWindow
			entry.TrendingScore = a.TrendingScore
			if a.LatestActivity.After(entry.LatestActivity) {
				entry.LatestActivity = a.LatestActivity
			}
		}
		entries = append(entries, entry)
	}
	e.mu.RUnlock()

	sortEntries(view, entries)
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}

	e.cache.Set(key, entries, e.viewTTL[view])
	return entries, nil
}

func sortEntries(view View, entries []Entry) {
	switch view {
	case ViewPopular:
		sort.SliceStable(entries, func(i, j int) bool {
			if entries[i].TotalDownloads != entries[j].TotalDownloads {
				return entries[i].TotalDownloads > entries[j].TotalDownloads
			}
			return entries[i].Package.Name < entries[j].Package.Name
		})
	case ViewRecent:
		sort.SliceStable(entries, func(i, j int) bool {
			if !entries[i].LatestActivity.Equal(entries[j].LatestActivity) {
				return entries[i].LatestActivity.After(entries[j].LatestActivity)
			}
			return entries[i].Package.Name < entries[j].Package.Name
		})
	case ViewTrending:
		sort.SliceStable(entries, func(i, j int) bool {
			if entries[i].TrendingScore != entries[j].TrendingScore {
				return entries[i].TrendingScore > entries[j].TrendingScore
			}
			// Ties broken by absolute recent-window volume, then name.
			if entries[i].RecentWindow != entries[j].RecentWindow {
				return entries[i].RecentWindow > entries[j].RecentWindow
			}
			return entries[i].Package.Name < entries[j].Package.Name
		})
	}
}

func cacheKey(view View, filter *registry.PackageType, limit int) string {
	filterName := ""
	if filter != nil {
		filterName = string(*filter)
	}
	return fmt.Sprintf("%s|%s|%d", view, filterName, limit)
}
