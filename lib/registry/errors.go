// Copyright 2026 The AgentHub Authors
// SPDX-License-Identifier: Apache-2.0

package registry

import (
	"fmt"
	"strings"
	"time"
)

// Violation is a single schema problem found while validating a
// manifest: which field and why.
type Violation struct {
	Field  string
	Reason string
}

func (v Violation) String() string {
	if v.Field == "" {
		return v.Reason
	}
	return v.Field + ": " + v.Reason
}

// ValidationError reports malformed client input: a bad manifest,
// package name, version string, or constraint expression. The
// validator accumulates every violation it finds rather than
// stopping at the first, so the client can fix them all in one pass.
// Never retried automatically.
type ValidationError struct {
	Violations []Violation
}

func (e *ValidationError) Error() string {
	if len(e.Violations) == 0 {
		return "validation failed"
	}
	parts := make([]string, len(e.Violations))
	for i, v := range e.Violations {
		parts[i] = v.String()
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// ConflictError reports a write-once or compare-and-swap conflict:
// the version already exists committed, or a concurrent publisher
// won the race. The data is intact; the caller may re-read and
// decide.
type ConflictError struct {
	Package string
	Version string
	Reason  string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("conflict on %s@%s: %s", e.Package, e.Version, e.Reason)
}

// PublishInProgressError reports that another publish attempt for
// the same (package, version) holds a pending row younger than the
// staleness threshold. Transient from the caller's perspective: the
// earlier attempt will either complete or be reclaimed.
type PublishInProgressError struct {
	Package string
	Version string
	Age     time.Duration
}

func (e *PublishInProgressError) Error() string {
	return fmt.Sprintf("publish of %s@%s already in progress (pending for %s)",
		e.Package, e.Version, e.Age.Round(time.Second))
}

// TransientStorageError wraps a timeout or unavailability of an
// external store. Every protocol step before the metadata commit is
// side-effect-free or idempotent, so retrying with backoff is safe.
type TransientStorageError struct {
	Op  string // the failed operation, e.g. "blob put", "metadata commit"
	Err error
}

func (e *TransientStorageError) Error() string {
	return fmt.Sprintf("transient storage failure during %s: %v", e.Op, e.Err)
}

func (e *TransientStorageError) Unwrap() error { return e.Err }

// IntegrityError reports that a committed version's artifact no
// longer hashes to its recorded content hash. The version is marked
// broken, surfaced to the owner, and never auto-deleted.
type IntegrityError struct {
	Package  string
	Version  string
	WantHash string
	GotHash  string
}

func (e *IntegrityError) Error() string {
	if e.Package == "" {
		return fmt.Sprintf("integrity failure: artifact hashes to %s, recorded %s",
			e.GotHash, e.WantHash)
	}
	return fmt.Sprintf("integrity failure on %s@%s: artifact hashes to %s, recorded %s",
		e.Package, e.Version, e.GotHash, e.WantHash)
}

// PermissionError reports a publish attempt the principal is not
// allowed to make: no grant covers the package name, or the package
// is owned by someone else. Never retried automatically.
type PermissionError struct {
	Principal string
	Package   string
	Reason    string
}

func (e *PermissionError) Error() string {
	return fmt.Sprintf("%s may not publish %s: %s", e.Principal, e.Package, e.Reason)
}

// NotFoundError reports a missing package, version, or artifact.
type NotFoundError struct {
	Kind string // "package", "version", "blob"
	Key  string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Kind, e.Key)
}
