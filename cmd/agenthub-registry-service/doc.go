// Copyright 2026 The AgentHub Authors
// SPDX-License-Identifier: Apache-2.0

// agenthub-registry-service is the package registry daemon. It owns
// the SQLite metadata store and the content-addressed blob store, and
// serves the registry protocol over a Unix socket: length-prefixed
// CBOR request/response frames (see lib/wire).
//
// Supported actions:
//
//   - publish: run the publish protocol for one (manifest, artifact)
//   - download: resolve a version selector and return artifact bytes
//   - get / get-version: package and version metadata
//   - versions: committed versions of a package, newest first
//   - list: ranked catalog views (popular, recent, trending)
//   - search: free-text relevance query over package metadata
//   - suggest: package name completion for a prefix
//   - status: unauthenticated liveness probe
//
// Configuration comes from an agenthub.yaml file, located via the
// --config flag or the AGENTHUB_CONFIG environment variable; without
// either the built-in development defaults apply. Publisher identity
// is established by the transport (socket peer); the config's
// publishers map scopes which package names each identity may
// publish.
package main
