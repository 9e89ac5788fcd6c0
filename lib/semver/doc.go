// Copyright 2026 The AgentHub Authors
// SPDX-License-Identifier: Apache-2.0

// Package semver parses, orders, and constraint-matches semantic
// versions for the registry.
//
// It is a thin layer over github.com/Masterminds/semver/v3 that
// pins down the registry's rules: strict three-part versions (no "v"
// prefix, no partial versions), typed ValidationErrors instead of
// library errors, and a Constraint type whose parse failures are
// always descriptive errors, never a silent non-match.
//
// Ordering follows standard semantic-version precedence:
// major.minor.patch compared numerically, then pre-release
// identifiers field by field (numeric fields numerically,
// alphanumeric fields lexically); a version with a pre-release tag
// sorts before the same version without one. Build metadata is
// ignored for ordering.
package semver
