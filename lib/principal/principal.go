// Copyright 2026 The AgentHub Authors
// SPDX-License-Identifier: Apache-2.0

package principal

import (
	"fmt"
	"path"
)

// Principal is an authenticated caller. The zero value is unusable;
// construct with New or Anonymous.
type Principal struct {
	id     string
	grants []string
}

// New constructs a principal with the given identity and publish grants.
// Each grant is a glob pattern over package names ("*" and "?" wildcards,
// path.Match syntax). The ID must be non-empty.
func New(id string, grants ...string) (*Principal, error) {
	if id == "" {
		return nil, fmt.Errorf("principal: empty id")
	}
	return &Principal{id: id, grants: grants}, nil
}

// Anonymous returns the principal used for unauthenticated read-only
// callers. It carries no publish grants.
func Anonymous() *Principal {
	return &Principal{id: "anonymous"}
}

// ID returns the principal's opaque identity string.
func (p *Principal) ID() string {
	return p.id
}

// CanPublish reports whether any of the principal's grants matches the
// package name.
func (p *Principal) CanPublish(packageName string) bool {
	for _, grant := range p.grants {
		if MatchPattern(grant, packageName) {
			return true
		}
	}
	return false
}

// MatchPattern checks whether a package name matches a glob pattern:
//
//   - Exact match: "web-scraper" matches only "web-scraper"
//   - Prefix wildcard: "acme-*" matches "acme-tools" and "acme-x"
//   - Universal: "*" matches any name
//   - Character wildcard: "?" matches a single character
//
// Returns false for malformed patterns (unmatched brackets, etc.) rather
// than propagating errors — a malformed pattern should never grant access.
func MatchPattern(pattern, name string) bool {
	matched, err := path.Match(pattern, name)
	if err != nil {
		return false
	}
	return matched
}

// MatchAnyPattern reports whether the name matches any of the patterns.
func MatchAnyPattern(patterns []string, name string) bool {
	for _, pattern := range patterns {
		if MatchPattern(pattern, name) {
			return true
		}
	}
	return false
}
