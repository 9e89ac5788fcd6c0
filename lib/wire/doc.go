// Copyright 2026 The AgentHub Authors
// SPDX-License-Identifier: Apache-2.0

// Package wire defines the registry's client protocol: length-prefixed
// CBOR messages over a Unix socket. Every message is a 4-byte
// big-endian length followed by that many bytes of CBOR. The first
// message on a connection carries an "action" field that routes the
// request; the response is a single message, either the action's
// result or an ErrorResponse.
//
// Artifact payloads travel embedded in the publish and download
// messages, so the frame cap is sized for artifacts rather than
// metadata.
package wire
