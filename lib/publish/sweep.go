// Copyright 2026 The AgentHub Authors
// SPDX-License-Identifier: Apache-2.0

package publish

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/agenthub-foundation/agenthub/lib/blobstore"
	"github.com/agenthub-foundation/agenthub/lib/registry"
	"github.com/agenthub-foundation/agenthub/lib/semver"
)

// orphanTracker remembers when each unreferenced blob was first
// observed by the sweep. A blob is deleted only after staying
// unreferenced for the full grace period, so a publish that has
// uploaded its blob but not yet committed is never raced.
type orphanTracker struct {
	mu        sync.Mutex
	firstSeen map[blobstore.Hash]time.Time
}

// Run executes the background sweeps on a fixed interval until the
// context is cancelled: stale pending claims are deleted and orphan
// blobs past the grace period are reclaimed.
func (c *Coordinator) Run(ctx context.Context) {
	ticker := c.clk.NewTicker(c.sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.SweepStalePending(ctx); err != nil && ctx.Err() == nil {
				c.logger.Warn("stale pending sweep failed", "error", err)
			}
			if err := c.SweepOrphans(ctx); err != nil && ctx.Err() == nil {
				c.logger.Warn("orphan sweep failed", "error", err)
			}
		}
	}
}

// SweepStalePending deletes pending version rows older than the
// staleness threshold. These are abandoned claims: their publisher
// crashed or gave up between claim and commit.
func (c *Coordinator) SweepStalePending(ctx context.Context) error {
	cutoff := c.clk.Now().Add(-c.pendingStaleness)
	stale, err := c.meta.StalePendingVersions(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("scan stale pending versions: %w", err)
	}
	for _, v := range stale {
		if err := c.meta.DeletePendingVersion(ctx, v.Package, v.Version); err != nil {
			c.logger.Warn("failed to delete stale pending version",
				"package", v.Package, "version", v.Version, "error", err)
			continue
		}
		c.logger.Info("deleted stale pending version",
			"package", v.Package, "version", v.Version,
			"age", c.clk.Now().Sub(v.CreatedAt))
	}
	return nil
}

// SweepOrphans deletes blobs that no version row references. Content
// addressing makes orphans harmless, so deletion waits out a grace
// period: a blob must be observed unreferenced on sweeps spanning
// the full grace window before it is reclaimed.
func (c *Coordinator) SweepOrphans(ctx context.Context) error {
	referenced, err := c.meta.ReferencedHashes(ctx)
	if err != nil {
		return fmt.Errorf("scan referenced hashes: %w", err)
	}
	stored, err := c.blobs.List(ctx)
	if err != nil {
		return fmt.Errorf("list stored blobs: %w", err)
	}

	now := c.clk.Now()
	c.sweeper.mu.Lock()
	var expired []blobstore.Hash
	live := make(map[blobstore.Hash]bool, len(stored))
	for _, hash := range stored {
		live[hash] = true
		if _, ok := referenced[hash.String()]; ok {
			delete(c.sweeper.firstSeen, hash)
			continue
		}
		seen, ok := c.sweeper.firstSeen[hash]
		if !ok {
			c.sweeper.firstSeen[hash] = now
			continue
		}
		if now.Sub(seen) >= c.orphanGrace {
			expired = append(expired, hash)
		}
	}
	// Forget blobs that disappeared between sweeps.
	for hash := range c.sweeper.firstSeen {
		if !live[hash] {
			delete(c.sweeper.firstSeen, hash)
		}
	}
	c.sweeper.mu.Unlock()

	for _, hash := range expired {
		if err := c.blobs.Delete(ctx, hash); err != nil {
			c.logger.Warn("failed to delete orphan blob",
				"hash", hash, "error", err)
			continue
		}
		c.sweeper.mu.Lock()
		delete(c.sweeper.firstSeen, hash)
		c.sweeper.mu.Unlock()
		c.logger.Info("deleted orphan blob", "hash", hash)
	}
	return nil
}

// Verify re-hashes the stored artifact of a committed version
// against its recorded content hash. On mismatch, or when the blob
// is missing outright, the version is marked broken, the latest
// pointer is repaired if it pointed here, and an IntegrityError is
// returned. Broken versions are never deleted.
func (c *Coordinator) Verify(ctx context.Context, pkg, version string) error {
	v, err := c.meta.GetVersion(ctx, pkg, version)
	if err != nil {
		return fmt.Errorf("look up %s@%s: %w", pkg, version, err)
	}
	if v.Status != registry.StatusCommitted {
		return fmt.Errorf("verify %s@%s: status is %s, only committed versions are verified",
			pkg, version, v.Status)
	}

	hash, err := blobstore.ParseHash(v.ContentHash)
	if err != nil {
		return fmt.Errorf("parse recorded hash for %s@%s: %w", pkg, version, err)
	}

	integrity := &registry.IntegrityError{
		Package:  pkg,
		Version:  version,
		WantHash: v.ContentHash,
	}
	data, err := c.blobs.Get(ctx, hash)
	switch {
	case isNotFound(err):
		integrity.GotHash = "(blob missing)"
	case err != nil:
		return fmt.Errorf("fetch artifact for %s@%s: %w", pkg, version, err)
	default:
		got := blobstore.HashBlob(data)
		if got == hash {
			return nil
		}
		integrity.GotHash = got.String()
	}

	if err := c.meta.MarkVersionBroken(ctx, pkg, version); err != nil {
		return fmt.Errorf("mark %s@%s broken: %w", pkg, version, err)
	}
	c.logger.Error("artifact integrity failure, version marked broken",
		"package", pkg,
		"version", version,
		"want", integrity.WantHash,
		"got", integrity.GotHash)

	if err := c.repairLatest(ctx, pkg, version); err != nil {
		c.logger.Warn("failed to repair latest pointer after integrity failure",
			"package", pkg, "error", err)
	}
	return integrity
}

// repairLatest moves the latest pointer off a broken version, onto
// the highest remaining committed version. Pre-releases are eligible
// only when no stable version remains.
func (c *Coordinator) repairLatest(ctx context.Context, pkg, broken string) error {
	current, err := c.meta.GetPackage(ctx, pkg)
	if err != nil {
		return err
	}
	if current.Latest != broken {
		return nil
	}

	versions, err := c.meta.ListVersions(ctx, pkg, true)
	if err != nil {
		return err
	}
	var best *semver.Version
	for _, v := range versions {
		if v.Version == broken {
			continue
		}
		parsed, err := semver.Parse(v.Version)
		if err != nil {
			continue
		}
		if supersedes(parsed, best) {
			best = parsed
		}
	}
	next := ""
	if best != nil {
		next = best.String()
	}
	applied, err := c.meta.CASUpdateLatest(ctx, pkg, broken, next)
	if err != nil {
		return err
	}
	if applied {
		c.logger.Info("repaired latest pointer",
			"package", pkg, "from", broken, "to", next)
	}
	return nil
}
