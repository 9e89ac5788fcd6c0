// Copyright 2026 The AgentHub Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec provides the registry's standard CBOR encoding
// configuration.
//
// The registry service speaks CBOR on its Unix socket; manifests arrive
// as YAML and are stored verbatim, but every protocol envelope, request,
// and response is CBOR. This package holds the shared encoding and
// decoding modes so every package encodes identically without duplicating
// configuration. The encoder uses Core Deterministic Encoding (RFC 8949
// §4.2): sorted map keys, smallest integer encoding, no indefinite-length
// items. Same logical data always produces identical bytes.
//
// For buffer-oriented operations:
//
//	data, err := codec.Marshal(value)
//	err = codec.Unmarshal(data, &value)
//
// For stream-oriented operations (sockets):
//
//	encoder := codec.NewEncoder(conn)
//	decoder := codec.NewDecoder(conn)
package codec
