// Copyright 2026 The AgentHub Authors
// SPDX-License-Identifier: Apache-2.0

package registry

import (
	"fmt"
	"regexp"
	"time"
)

// PackageType classifies what a package contains. The type is fixed
// on first publish and immutable afterwards: a name that entered the
// registry as a tool can never become an agent.
type PackageType string

// The five package kinds.
const (
	TypeAgent   PackageType = "agent"
	TypeTool    PackageType = "tool"
	TypeChain   PackageType = "chain"
	TypePrompt  PackageType = "prompt"
	TypeDataset PackageType = "dataset"
)

// PackageTypes lists all valid package types in declaration order.
// Used for validation messages and iteration.
var PackageTypes = []PackageType{TypeAgent, TypeTool, TypeChain, TypePrompt, TypeDataset}

// ParsePackageType parses a package type string. Returns a
// ValidationError for unknown types.
func ParsePackageType(s string) (PackageType, error) {
	for _, t := range PackageTypes {
		if string(t) == s {
			return t, nil
		}
	}
	return "", &ValidationError{Violations: []Violation{{
		Field:  "type",
		Reason: fmt.Sprintf("unknown package type %q (valid: agent, tool, chain, prompt, dataset)", s),
	}}}
}

// namePattern matches valid package names: lowercase alphanumerics
// and hyphens, starting and ending with an alphanumeric.
var namePattern = regexp.MustCompile(`^[a-z0-9]([a-z0-9-]*[a-z0-9])?$`)

// MaxNameLength is the maximum package name length in bytes.
const MaxNameLength = 64

// ValidateName checks that name is a well-formed package name.
func ValidateName(name string) error {
	if name == "" {
		return &ValidationError{Violations: []Violation{{Field: "name", Reason: "package name is empty"}}}
	}
	if len(name) > MaxNameLength {
		return &ValidationError{Violations: []Violation{{
			Field:  "name",
			Reason: fmt.Sprintf("package name is %d bytes, maximum is %d", len(name), MaxNameLength),
		}}}
	}
	if !namePattern.MatchString(name) {
		return &ValidationError{Violations: []Violation{{
			Field:  "name",
			Reason: "package name must be lowercase alphanumerics and hyphens, starting and ending with an alphanumeric",
		}}}
	}
	return nil
}

// VersionStatus is the lifecycle state of a package version.
type VersionStatus string

const (
	// StatusPending marks a version row created at the start of a
	// publish attempt, before the metadata commit. Pending rows older
	// than the staleness threshold are reclaimed by later publishes.
	StatusPending VersionStatus = "pending"

	// StatusCommitted marks a fully published, immutable version.
	StatusCommitted VersionStatus = "committed"

	// StatusBroken marks a committed version whose artifact failed
	// content-hash verification. Terminal: a broken version is never
	// repaired in place, never deleted silently, and is excluded from
	// the latest pointer and default listings.
	StatusBroken VersionStatus = "broken"
)

// Package is the registry's record for a unique package name.
type Package struct {
	// Name is the unique identity (lowercase, [a-z0-9-], <= 64 bytes).
	Name string

	// Type is fixed on first publish.
	Type PackageType

	// Owner is the principal ID that first published the package.
	Owner string

	// Description and Keywords come from the most recently committed
	// version's manifest and feed search indexing.
	Description string
	Keywords    []string

	// Latest is the highest committed, non-broken version by semantic
	// ordering, or "" when no such version exists. Maintained by a
	// compare-and-swap loop, never an unconditional overwrite.
	Latest string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Dependency is a single declared dependency of a chain component:
// a package name plus a version-constraint expression. Both parts
// are syntactically validated at publish time; existence of the
// referenced package is an advisory check only.
type Dependency struct {
	Name       string
	Constraint string
}

// Version is the registry's record for one (package, version) pair.
// Immutable once committed, except for the one-way transition of
// Status to StatusBroken.
type Version struct {
	Package string
	Version string
	Status  VersionStatus

	// Manifest holds the canonical manifest document bytes exactly
	// as validated at publish time.
	Manifest []byte

	// Description is extracted from the manifest for listings.
	Description string

	// ContentHash is the hex-encoded content hash of the artifact
	// blob; Size is the uncompressed artifact size in bytes.
	ContentHash string
	Size        int64

	// Prerelease records whether the version carries a pre-release
	// tag. Pre-releases are excluded from default version listings
	// and only hold the latest pointer when no stable version exists.
	Prerelease bool

	// Dependencies lists declared (name, constraint) pairs. Only
	// chain components carry dependencies today.
	Dependencies []Dependency

	CreatedAt time.Time

	// Publisher is the principal ID that published this version.
	Publisher string
}

// DownloadEvent is one deduplicated download observation. Identity
// is (Package, Version, Fingerprint, Bucket): repeated downloads by
// the same client within one bucket collapse into a single event.
// Events are append-only and never mutated; every ranking aggregate
// can be rebuilt by replaying them.
type DownloadEvent struct {
	Package     string
	Version     string
	Fingerprint string

	// Bucket is the event's time bucket: the Unix timestamp of the
	// bucket's start, quantized to the configured bucket width.
	Bucket int64

	CreatedAt time.Time
}

// BucketFor quantizes t to the start of its bucket of the given
// width. Width must be positive.
func BucketFor(t time.Time, width time.Duration) int64 {
	seconds := int64(width / time.Second)
	if seconds <= 0 {
		seconds = 1
	}
	return (t.Unix() / seconds) * seconds
}

// Aggregate is the derived per-package ranking state. It is a cache
// over DownloadEvent history, not a source of truth: the ranking
// engine rebuilds it by replay over a trailing retention window.
type Aggregate struct {
	Package string

	// TotalDownloads counts all deduplicated downloads, all time.
	TotalDownloads int64

	// RecentWindow and PreviousWindow are deduplicated download
	// counts in the most recent N buckets and the preceding N
	// buckets respectively.
	RecentWindow   int64
	PreviousWindow int64

	// TrendingScore = (RecentWindow - PreviousWindow) / max(PreviousWindow, 1).
	// Rewards acceleration over raw volume.
	TrendingScore float64

	// LatestActivity is the later of package creation and the most
	// recent committed version's timestamp. Drives the Recent view.
	LatestActivity time.Time
}
