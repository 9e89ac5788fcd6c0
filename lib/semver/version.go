// Copyright 2026 The AgentHub Authors
// SPDX-License-Identifier: Apache-2.0

package semver

import (
	"fmt"

	masterminds "github.com/Masterminds/semver/v3"

	"github.com/agenthub-foundation/agenthub/lib/registry"
)

// Version is a parsed, immutable semantic version.
type Version struct {
	inner *masterminds.Version
	text  string
}

// Parse parses a strict three-part semantic version (for example
// "1.4.0" or "2.0.0-rc.1+build.5"). Partial versions ("1.2") and a
// leading "v" are rejected: the registry stores exactly what clients
// publish, and loose forms would make (name, version) identity
// ambiguous. Returns a registry.ValidationError on malformed input.
func Parse(text string) (*Version, error) {
	inner, err := masterminds.StrictNewVersion(text)
	if err != nil {
		return nil, &registry.ValidationError{Violations: []registry.Violation{{
			Field:  "version",
			Reason: fmt.Sprintf("invalid semantic version %q: %v", text, err),
		}}}
	}
	return &Version{inner: inner, text: text}, nil
}

// MustParse parses a version known to be valid. Panics on malformed
// input; for tests and constants only.
func MustParse(text string) *Version {
	v, err := Parse(text)
	if err != nil {
		panic(err)
	}
	return v
}

// String returns the version exactly as it was parsed.
func (v *Version) String() string { return v.text }

// Major, Minor, and Patch return the numeric version components.
func (v *Version) Major() uint64 { return v.inner.Major() }
func (v *Version) Minor() uint64 { return v.inner.Minor() }
func (v *Version) Patch() uint64 { return v.inner.Patch() }

// Prerelease returns the pre-release tag ("rc.1") or "" for a stable
// version.
func (v *Version) Prerelease() string { return v.inner.Prerelease() }

// IsPrerelease reports whether the version carries a pre-release tag.
func (v *Version) IsPrerelease() bool { return v.inner.Prerelease() != "" }

// Compare returns -1, 0, or +1 as v sorts before, equal to, or after
// other under semantic-version precedence. Build metadata is ignored.
func (v *Version) Compare(other *Version) int { return v.inner.Compare(other.inner) }

// LessThan reports whether v sorts strictly before other.
func (v *Version) LessThan(other *Version) bool { return v.Compare(other) < 0 }

// GreaterThan reports whether v sorts strictly after other.
func (v *Version) GreaterThan(other *Version) bool { return v.Compare(other) > 0 }

// Compare orders two version strings without exposing the parsed
// form. Returns an error if either string is malformed.
func Compare(a, b string) (int, error) {
	va, err := Parse(a)
	if err != nil {
		return 0, err
	}
	vb, err := Parse(b)
	if err != nil {
		return 0, err
	}
	return va.Compare(vb), nil
}

// Max returns the greater of two parsed versions.
func Max(a, b *Version) *Version {
	if a.Compare(b) >= 0 {
		return a
	}
	return b
}
