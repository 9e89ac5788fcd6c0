// Copyright 2026 The AgentHub Authors
// SPDX-License-Identifier: Apache-2.0

package metastore

import (
	"context"
	"time"

	"github.com/agenthub-foundation/agenthub/lib/registry"
)

// InsertResult reports the outcome of InsertVersionIfAbsent.
type InsertResult struct {
	// Inserted is true when this call created the row.
	Inserted bool

	// Existing is the row that blocked the insert; nil when Inserted.
	Existing *registry.Version
}

// Store is the metadata store gateway. All methods are safe for
// concurrent use. Writes are atomic per call: a method either applies
// fully or not at all.
type Store interface {
	// CreatePackageIfAbsent inserts the package record if no package
	// with that name exists. Returns the stored record (the existing
	// one on conflict) and whether this call created it. The declared
	// type of an existing package is never changed.
	CreatePackageIfAbsent(ctx context.Context, pkg *registry.Package) (*registry.Package, bool, error)

	// GetPackage returns the package record, or a NotFoundError.
	GetPackage(ctx context.Context, name string) (*registry.Package, error)

	// ListPackages returns package records, optionally filtered by
	// type. A nil filter returns all packages. Ordered by name.
	ListPackages(ctx context.Context, filter *registry.PackageType, limit int) ([]*registry.Package, error)

	// UpdatePackageMetadata refreshes the description and keywords
	// shown in listings and feeds to the search index, and bumps the
	// package's updated-at timestamp.
	UpdatePackageMetadata(ctx context.Context, name, description string, keywords []string, now time.Time) error

	// InsertVersionIfAbsent inserts the version row if no row for
	// (Package, Version) exists. The UNIQUE constraint is the
	// serialization point: under concurrent publishes of the same
	// version exactly one caller observes Inserted.
	InsertVersionIfAbsent(ctx context.Context, v *registry.Version) (InsertResult, error)

	// ReclaimPendingVersion atomically takes over a pending row
	// created before staleBefore, replacing its content hash, size,
	// manifest, publisher, and creation time with the replacement's.
	// Returns false when the row is no longer pending or not stale,
	// in which case the caller lost the reclaim race.
	ReclaimPendingVersion(ctx context.Context, replacement *registry.Version, staleBefore time.Time) (bool, error)

	// CommitVersion flips a pending row to committed and bumps the
	// package's updated-at timestamp. claimedAt must equal the row's
	// creation time, which names the claim: a publisher whose claim
	// was reclaimed gets a ConflictError instead of committing the
	// reclaimer's in-flight content. Fails if the row is not pending.
	CommitVersion(ctx context.Context, pkg, version string, claimedAt, now time.Time) error

	// DeletePendingVersion removes an abandoned pending row. Committed
	// and broken rows are never deleted through this path.
	DeletePendingVersion(ctx context.Context, pkg, version string) error

	// MarkVersionBroken records a failed integrity verification. The
	// transition is one-way; the row is kept for the owner to inspect.
	MarkVersionBroken(ctx context.Context, pkg, version string) error

	// GetVersion returns one version row, or a NotFoundError.
	GetVersion(ctx context.Context, pkg, version string) (*registry.Version, error)

	// ListVersions returns the package's committed versions ordered by
	// creation time descending. Pre-releases are excluded unless
	// includePrereleases; broken versions are always excluded.
	ListVersions(ctx context.Context, pkg string, includePrereleases bool) ([]*registry.Version, error)

	// CASUpdateLatest sets the package's latest pointer to next only
	// if it currently equals expected. Returns whether the swap
	// applied. An empty expected matches a package with no latest.
	CASUpdateLatest(ctx context.Context, name, expected, next string) (bool, error)

	// StalePendingVersions returns pending rows created before the
	// cutoff, for the staleness sweep.
	StalePendingVersions(ctx context.Context, cutoff time.Time) ([]*registry.Version, error)

	// ReferencedHashes returns every content hash referenced by any
	// version row, regardless of status. The orphan sweep deletes
	// blobs absent from this set.
	ReferencedHashes(ctx context.Context) (map[string]struct{}, error)

	// RecordDownloadEvent inserts the event unless an event with the
	// same (package, version, fingerprint, bucket) identity exists.
	// Returns whether the event was counted.
	RecordDownloadEvent(ctx context.Context, event *registry.DownloadEvent) (bool, error)

	// DownloadAggregates replays download events into per-package
	// aggregates: all-time totals plus counts for the buckets starting
	// at recentStart (recent window) and previousStart (the preceding
	// window, ending where the recent window starts). Packages with a
	// row but no events appear with zero counts.
	DownloadAggregates(ctx context.Context, previousStart, recentStart int64) ([]*registry.Aggregate, error)

	// Close releases the store's resources.
	Close() error
}
