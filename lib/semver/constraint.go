// Copyright 2026 The AgentHub Authors
// SPDX-License-Identifier: Apache-2.0

package semver

import (
	"fmt"
	"strings"

	masterminds "github.com/Masterminds/semver/v3"

	"github.com/agenthub-foundation/agenthub/lib/registry"
)

// Constraint is a parsed version-constraint expression. Supported
// forms:
//
//	=1.2.3  or  1.2.3      exact match
//	^1.2.3                 compatible within the leading non-zero component
//	~1.2.3                 compatible within the same minor
//	>=1.2.0 <2.0.0         explicit range (space- or comma-separated)
//	1.2.0 - 1.4.5          hyphen range (inclusive)
//
// A Constraint is immutable and safe for concurrent use.
type Constraint struct {
	inner *masterminds.Constraints
	text  string
}

// ParseConstraint parses a constraint expression. Malformed
// expressions yield a descriptive registry.ValidationError — a parse
// failure is never reported as "does not match".
func ParseConstraint(text string) (*Constraint, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil, &registry.ValidationError{Violations: []registry.Violation{{
			Field:  "constraint",
			Reason: "constraint expression is empty",
		}}}
	}
	inner, err := masterminds.NewConstraint(trimmed)
	if err != nil {
		return nil, &registry.ValidationError{Violations: []registry.Violation{{
			Field:  "constraint",
			Reason: fmt.Sprintf("invalid constraint %q: %v", trimmed, err),
		}}}
	}
	return &Constraint{inner: inner, text: trimmed}, nil
}

// String returns the constraint exactly as it was parsed.
func (c *Constraint) String() string { return c.text }

// Check reports whether v satisfies the constraint. Pre-release
// versions satisfy a constraint only when the constraint itself
// names a pre-release (standard semver matching rules).
func (c *Constraint) Check(v *Version) bool {
	return c.inner.Check(v.inner)
}

// Satisfies parses both arguments and reports whether the version
// satisfies the constraint. Returns an error (never a silent false)
// if either argument is malformed.
func Satisfies(version, constraint string) (bool, error) {
	v, err := Parse(version)
	if err != nil {
		return false, err
	}
	c, err := ParseConstraint(constraint)
	if err != nil {
		return false, err
	}
	return c.Check(v), nil
}

// MaxSatisfying returns the highest version in candidates that
// satisfies the constraint, or nil if none do.
func MaxSatisfying(candidates []*Version, c *Constraint) *Version {
	var best *Version
	for _, candidate := range candidates {
		if !c.Check(candidate) {
			continue
		}
		if best == nil || candidate.GreaterThan(best) {
			best = candidate
		}
	}
	return best
}
