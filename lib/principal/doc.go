// Copyright 2026 The AgentHub Authors
// SPDX-License-Identifier: Apache-2.0

// Package principal models the authenticated caller of the registry.
//
// The registry never authenticates credentials itself: identity issuance
// is an external concern, and the core receives an already-authenticated
// principal carrying an opaque ID and publish grants. The service front
// end constructs principals from its authorization configuration; tests
// construct them directly.
//
// # Publish Grants
//
// A grant is a glob pattern over package names: "web-scraper" grants one
// package, "acme-*" grants a name prefix, "*" grants everything.
// [Principal.CanPublish] reports whether any grant matches. Malformed
// patterns deny by default rather than propagating errors — a pattern
// that cannot be parsed should never widen access.
package principal
