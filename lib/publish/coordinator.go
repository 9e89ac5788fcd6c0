// Copyright 2026 The AgentHub Authors
// SPDX-License-Identifier: Apache-2.0

package publish

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/agenthub-foundation/agenthub/lib/blobstore"
	"github.com/agenthub-foundation/agenthub/lib/clock"
	"github.com/agenthub-foundation/agenthub/lib/manifest"
	"github.com/agenthub-foundation/agenthub/lib/metastore"
	"github.com/agenthub-foundation/agenthub/lib/principal"
	"github.com/agenthub-foundation/agenthub/lib/registry"
	"github.com/agenthub-foundation/agenthub/lib/semver"
)

// State is the furthest stage a publish attempt reached on its
// success path.
type State int

const (
	StateReceived State = iota
	StateValidated
	StateBlobStored
	StateMetadataCommitted
	StateIndexed
)

var stateNames = map[State]string{
	StateReceived:          "received",
	StateValidated:         "validated",
	StateBlobStored:        "blob-stored",
	StateMetadataCommitted: "metadata-committed",
	StateIndexed:           "indexed",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Failure exit names for log output.
const (
	outcomeRejectedValidation = "rejected-validation"
	outcomeRejectedDuplicate  = "rejected-duplicate"
	outcomeRejectedPermission = "rejected-permission"
	outcomeAbortedStorage     = "aborted-storage"
)

// casMaxAttempts bounds the latest-pointer compare-and-swap loop.
// Each lost round re-reads the current pointer, so contention only
// persists while other publishes of the same package are landing.
const casMaxAttempts = 10

// Request is one publish attempt: who, what kind, the raw manifest
// document, and the artifact payload.
type Request struct {
	Principal *principal.Principal
	Type      registry.PackageType
	Manifest  []byte
	Artifact  []byte
}

// Result reports a completed publish.
type Result struct {
	State   State
	Package string
	Version string

	// Latest is the package's latest pointer after this publish. It
	// is not necessarily the published version: publishing an older
	// or pre-release version leaves a higher stable pointer in place.
	Latest string
}

// Config configures a Coordinator.
type Config struct {
	Meta  metastore.Store
	Blobs blobstore.Store

	// Clock drives staleness decisions and sweep scheduling.
	// Defaults to the real clock.
	Clock clock.Clock

	// Logger receives protocol and sweep diagnostics. Defaults to a
	// discard logger.
	Logger *slog.Logger

	// PendingStaleness is how old a pending version row must be
	// before another publisher may reclaim it. Defaults to 10
	// minutes.
	PendingStaleness time.Duration

	// StorageTimeout bounds each external-store round-trip.
	// Defaults to 30 seconds.
	StorageTimeout time.Duration

	// RetryAttempts and RetryInitialDelay shape the exponential
	// backoff applied to transient blob-store failures. Defaults: 3
	// retries starting at 100ms.
	RetryAttempts     int
	RetryInitialDelay time.Duration

	// OrphanGrace is how long a blob must remain unreferenced before
	// the sweep deletes it. Defaults to 24 hours.
	OrphanGrace time.Duration

	// SweepInterval is the period of the background sweep loop.
	// Defaults to 5 minutes.
	SweepInterval time.Duration

	// OnPublished, when set, is called after each successful commit
	// with the package name. Used to kick the ranking engine and
	// search index. Must not block.
	OnPublished func(pkg string)
}

// Coordinator runs the publish protocol and the background sweeps.
// Safe for concurrent use.
type Coordinator struct {
	meta   metastore.Store
	blobs  blobstore.Store
	clk    clock.Clock
	logger *slog.Logger

	pendingStaleness time.Duration
	storageTimeout   time.Duration
	retryAttempts    int
	retryDelay       time.Duration
	orphanGrace      time.Duration
	sweepInterval    time.Duration
	onPublished      func(pkg string)

	sweeper orphanTracker
}

// NewCoordinator validates the configuration and returns a ready
// Coordinator.
func NewCoordinator(cfg Config) (*Coordinator, error) {
	if cfg.Meta == nil {
		return nil, fmt.Errorf("publish: Meta store is required")
	}
	if cfg.Blobs == nil {
		return nil, fmt.Errorf("publish: Blobs store is required")
	}
	clk := cfg.Clock
	if clk == nil {
		clk = clock.Real()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	staleness := cfg.PendingStaleness
	if staleness <= 0 {
		staleness = 10 * time.Minute
	}
	timeout := cfg.StorageTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	attempts := cfg.RetryAttempts
	if attempts <= 0 {
		attempts = 3
	}
	delay := cfg.RetryInitialDelay
	if delay <= 0 {
		delay = 100 * time.Millisecond
	}
	grace := cfg.OrphanGrace
	if grace <= 0 {
		grace = 24 * time.Hour
	}
	interval := cfg.SweepInterval
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &Coordinator{
		meta:             cfg.Meta,
		blobs:            cfg.Blobs,
		clk:              clk,
		logger:           logger,
		pendingStaleness: staleness,
		storageTimeout:   timeout,
		retryAttempts:    attempts,
		retryDelay:       delay,
		orphanGrace:      grace,
		sweepInterval:    interval,
		onPublished:      cfg.OnPublished,
		sweeper:          orphanTracker{firstSeen: make(map[blobstore.Hash]time.Time)},
	}, nil
}

// Publish runs the protocol end to end. On success the returned
// Result reports StateIndexed and the package's latest pointer. On
// failure the version slot is released (pending row deleted) unless
// the commit already happened, in which case the publish is
// irrevocable and the error concerns only the latest pointer.
func (c *Coordinator) Publish(ctx context.Context, req Request) (*Result, error) {
	if req.Principal == nil {
		req.Principal = principal.Anonymous()
	}

	// Step 1: validate. No external state touched, so rejection is
	// free.
	m, err := manifest.Parse(req.Manifest)
	if err != nil {
		c.reject(outcomeRejectedValidation, "", "", err)
		return nil, err
	}
	if err := manifest.Validate(m, req.Type); err != nil {
		c.reject(outcomeRejectedValidation, m.Name, m.Version, err)
		return nil, err
	}
	if len(req.Artifact) == 0 {
		err := &registry.ValidationError{Violations: []registry.Violation{
			{Field: "artifact", Reason: "artifact payload is empty"},
		}}
		c.reject(outcomeRejectedValidation, m.Name, m.Version, err)
		return nil, err
	}

	// Authorization: a grant must cover the name, and an existing
	// package must belong to this principal.
	if !req.Principal.CanPublish(m.Name) {
		err := &registry.PermissionError{
			Principal: req.Principal.ID(),
			Package:   m.Name,
			Reason:    "no publish grant covers this package",
		}
		c.reject(outcomeRejectedPermission, m.Name, m.Version, err)
		return nil, err
	}
	existing, err := c.meta.GetPackage(ctx, m.Name)
	switch {
	case err == nil:
		if existing.Type != req.Type {
			err := &registry.ConflictError{
				Package: m.Name,
				Version: m.Version,
				Reason:  fmt.Sprintf("package type is %s, immutable after first publish", existing.Type),
			}
			c.reject(outcomeRejectedDuplicate, m.Name, m.Version, err)
			return nil, err
		}
		if existing.Owner != req.Principal.ID() {
			err := &registry.PermissionError{
				Principal: req.Principal.ID(),
				Package:   m.Name,
				Reason:    fmt.Sprintf("package is owned by %s", existing.Owner),
			}
			c.reject(outcomeRejectedPermission, m.Name, m.Version, err)
			return nil, err
		}
	case isNotFound(err):
		// First publish of this name.
	default:
		return nil, fmt.Errorf("look up package %s: %w", m.Name, err)
	}

	c.checkDependencies(ctx, m)

	version := buildVersionRecord(m, req, c.clk.Now())

	// Step 2: claim the (package, version) slot. The uniqueness
	// constraint is the serialization point for concurrent
	// publishers of the same version.
	if err := c.claim(ctx, version); err != nil {
		return nil, err
	}

	// Step 3: upload the artifact before any metadata commit. The
	// write is idempotent by content address; failure here releases
	// the claim and leaves the system as it was.
	if err := c.uploadBlob(ctx, version.ContentHash, req.Artifact); err != nil {
		c.release(ctx, version)
		c.reject(outcomeAbortedStorage, m.Name, m.Version, err)
		return nil, err
	}

	// Steps 4-5: commit the version and advance the latest pointer.
	latest, err := c.commit(ctx, m, version, req.Principal)
	if err != nil {
		return nil, err
	}

	// Step 6: discoverability updates are off the commit path. A
	// delayed notification affects ranking freshness, not
	// correctness.
	if c.onPublished != nil {
		c.onPublished(m.Name)
	}

	c.logger.Info("published",
		"package", m.Name,
		"version", m.Version,
		"publisher", req.Principal.ID(),
		"latest", latest,
		"size", version.Size)

	return &Result{
		State:   StateIndexed,
		Package: m.Name,
		Version: m.Version,
		Latest:  latest,
	}, nil
}

// claim inserts the pending version row, reclaiming an abandoned
// pending row from an earlier attempt when it has gone stale.
func (c *Coordinator) claim(ctx context.Context, version *registry.Version) error {
	ctx, cancel := context.WithTimeout(ctx, c.storageTimeout)
	defer cancel()

	result, err := c.meta.InsertVersionIfAbsent(ctx, version)
	if err != nil {
		return fmt.Errorf("claim %s@%s: %w", version.Package, version.Version, err)
	}
	if result.Inserted {
		return nil
	}

	prior := result.Existing
	switch prior.Status {
	case registry.StatusCommitted, registry.StatusBroken:
		err := &registry.ConflictError{
			Package: version.Package,
			Version: version.Version,
			Reason:  fmt.Sprintf("version already exists with status %s; versions are write-once", prior.Status),
		}
		c.reject(outcomeRejectedDuplicate, version.Package, version.Version, err)
		return err
	case registry.StatusPending:
		now := c.clk.Now()
		age := now.Sub(prior.CreatedAt)
		if age < c.pendingStaleness {
			return &registry.PublishInProgressError{
				Package: version.Package,
				Version: version.Version,
				Age:     age,
			}
		}
		reclaimed, err := c.meta.ReclaimPendingVersion(ctx, version, now.Add(-c.pendingStaleness))
		if err != nil {
			return fmt.Errorf("reclaim stale pending %s@%s: %w", version.Package, version.Version, err)
		}
		if !reclaimed {
			// Another publisher reclaimed first; its fresh row now
			// holds the slot.
			return &registry.PublishInProgressError{
				Package: version.Package,
				Version: version.Version,
			}
		}
		c.logger.Info("reclaimed stale pending version",
			"package", version.Package,
			"version", version.Version,
			"age", age)
		return nil
	default:
		return fmt.Errorf("claim %s@%s: unexpected status %q", version.Package, version.Version, prior.Status)
	}
}

// uploadBlob writes the artifact with bounded per-attempt timeouts,
// retrying transient failures with exponential backoff.
func (c *Coordinator) uploadBlob(ctx context.Context, contentHash string, artifact []byte) error {
	hash, err := blobstore.ParseHash(contentHash)
	if err != nil {
		return fmt.Errorf("parse content hash: %w", err)
	}

	attempt := func() error {
		putCtx, cancel := context.WithTimeout(ctx, c.storageTimeout)
		defer cancel()
		err := c.blobs.Put(putCtx, hash, artifact)
		if err == nil {
			return nil
		}
		var transient *registry.TransientStorageError
		if errors.As(err, &transient) {
			return err
		}
		return backoff.Permanent(err)
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = c.retryDelay
	return backoff.Retry(attempt, backoff.WithContext(
		backoff.WithMaxRetries(policy, uint64(c.retryAttempts)), ctx))
}

// release deletes the pending claim after an aborted attempt. Best
// effort: a leftover row is reclaimed by the staleness sweep.
func (c *Coordinator) release(ctx context.Context, version *registry.Version) {
	if err := c.meta.DeletePendingVersion(ctx, version.Package, version.Version); err != nil {
		c.logger.Warn("failed to release pending claim, staleness sweep will reclaim it",
			"package", version.Package,
			"version", version.Version,
			"error", err)
	}
}

// commit flips the pending row to committed, records package
// metadata, and advances the latest pointer. Returns the latest
// pointer after the update.
func (c *Coordinator) commit(ctx context.Context, m *manifest.Manifest, version *registry.Version, p *principal.Principal) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.storageTimeout)
	defer cancel()

	now := c.clk.Now()

	pkg, created, err := c.meta.CreatePackageIfAbsent(ctx, &registry.Package{
		Name:      m.Name,
		Type:      m.Type(),
		Owner:     p.ID(),
		CreatedAt: now,
		UpdatedAt: now,
	})
	if err != nil {
		c.release(ctx, version)
		return "", fmt.Errorf("create package %s: %w", m.Name, err)
	}
	if !created && pkg.Owner != p.ID() {
		// Lost a first-publish race to a different principal.
		c.release(ctx, version)
		err := &registry.PermissionError{
			Principal: p.ID(),
			Package:   m.Name,
			Reason:    fmt.Sprintf("package is owned by %s", pkg.Owner),
		}
		c.reject(outcomeRejectedPermission, m.Name, m.Version, err)
		return "", err
	}

	if err := c.meta.CommitVersion(ctx, version.Package, version.Version, version.CreatedAt, now); err != nil {
		var conflict *registry.ConflictError
		if errors.As(err, &conflict) {
			// The claim was reclaimed out from under us.
			c.reject(outcomeRejectedDuplicate, m.Name, m.Version, err)
			return "", err
		}
		return "", fmt.Errorf("commit %s@%s: %w", version.Package, version.Version, err)
	}

	if err := c.meta.UpdatePackageMetadata(ctx, m.Name, m.Description, m.Keywords, now); err != nil {
		c.logger.Warn("failed to refresh package metadata",
			"package", m.Name, "error", err)
	}

	return c.advanceLatest(ctx, m.Name, version.Version)
}

// advanceLatest runs the compare-and-swap loop on the latest
// pointer. Out-of-order completion of concurrent publishes never
// regresses the pointer: each round re-reads, compares with the
// version model, and applies a conditional update.
func (c *Coordinator) advanceLatest(ctx context.Context, name, published string) (string, error) {
	next, err := semver.Parse(published)
	if err != nil {
		return "", fmt.Errorf("parse committed version %q: %w", published, err)
	}

	for attempt := 0; attempt < casMaxAttempts; attempt++ {
		pkg, err := c.meta.GetPackage(ctx, name)
		if err != nil {
			return "", fmt.Errorf("read latest pointer for %s: %w", name, err)
		}

		var current *semver.Version
		if pkg.Latest != "" {
			current, err = semver.Parse(pkg.Latest)
			if err != nil {
				return "", fmt.Errorf("parse current latest %q: %w", pkg.Latest, err)
			}
		}
		if !supersedes(next, current) {
			return pkg.Latest, nil
		}

		applied, err := c.meta.CASUpdateLatest(ctx, name, pkg.Latest, published)
		if err != nil {
			return "", fmt.Errorf("update latest pointer for %s: %w", name, err)
		}
		if applied {
			return published, nil
		}
		// Lost the race; re-read and re-compare.
	}
	return "", &registry.ConflictError{
		Package: name,
		Version: published,
		Reason:  "latest pointer contention exceeded retry budget",
	}
}

// supersedes reports whether next should replace current as the
// latest pointer. Stable versions always outrank pre-releases: a
// pre-release may hold the pointer only while no stable version has
// been committed.
func supersedes(next, current *semver.Version) bool {
	if current == nil {
		return true
	}
	if next.IsPrerelease() {
		return current.IsPrerelease() && next.GreaterThan(current)
	}
	if current.IsPrerelease() {
		return true
	}
	return next.GreaterThan(current)
}

// checkDependencies logs a warning for each declared dependency that
// does not resolve to a known package. Advisory only: the dependency
// may be published later.
func (c *Coordinator) checkDependencies(ctx context.Context, m *manifest.Manifest) {
	names := make([]string, 0, len(m.Dependencies))
	for name := range m.Dependencies {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if _, err := c.meta.GetPackage(ctx, name); isNotFound(err) {
			c.logger.Warn("declared dependency is not yet published",
				"package", m.Name,
				"dependency", name,
				"constraint", m.Dependencies[name])
		}
	}
}

func (c *Coordinator) reject(outcome, pkg, version string, err error) {
	c.logger.Info("publish rejected",
		"outcome", outcome,
		"package", pkg,
		"version", version,
		"error", err)
}

// buildVersionRecord assembles the pending version row from the
// validated manifest and request payload.
func buildVersionRecord(m *manifest.Manifest, req Request, now time.Time) *registry.Version {
	deps := make([]registry.Dependency, 0, len(m.Dependencies))
	for name, constraint := range m.Dependencies {
		deps = append(deps, registry.Dependency{Name: name, Constraint: constraint})
	}
	sort.Slice(deps, func(i, j int) bool { return deps[i].Name < deps[j].Name })

	parsed := semver.MustParse(m.Version) // validated upstream

	return &registry.Version{
		Package:      m.Name,
		Version:      m.Version,
		Status:       registry.StatusPending,
		Manifest:     req.Manifest,
		Description:  m.Description,
		ContentHash:  blobstore.HashBlob(req.Artifact).String(),
		Size:         int64(len(req.Artifact)),
		Prerelease:   parsed.IsPrerelease(),
		Dependencies: deps,
		CreatedAt:    now,
		Publisher:    req.Principal.ID(),
	}
}

func isNotFound(err error) bool {
	var notFound *registry.NotFoundError
	return errors.As(err, &notFound)
}
