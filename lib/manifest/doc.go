// Copyright 2026 The AgentHub Authors
// SPDX-License-Identifier: Apache-2.0

// Package manifest parses and validates package manifests.
//
// A manifest is a YAML document (JSON is accepted, being a YAML subset)
// carrying common metadata (name, version, description, author) plus exactly
// one type-specific section matching the package's declared kind: agent,
// tool, chain, prompt, or dataset. Parsing applies schema defaults to the
// decoded document; validation is pure and accumulates every violation
// found rather than stopping at the first, so a publisher sees the full
// list of problems in one round trip.
package manifest
