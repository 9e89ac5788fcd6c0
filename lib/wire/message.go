// Copyright 2026 The AgentHub Authors
// SPDX-License-Identifier: Apache-2.0

package wire

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/agenthub-foundation/agenthub/lib/codec"
)

// MaxMessageSize caps a single frame. Artifact bytes ride inside the
// publish and download messages, so the cap is the effective maximum
// artifact size.
const MaxMessageSize = 64 * 1024 * 1024

// WriteMessage encodes v as CBOR and writes it with a 4-byte
// big-endian length prefix.
func WriteMessage(w io.Writer, v any) error {
	data, err := codec.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding message: %w", err)
	}
	if len(data) > MaxMessageSize {
		return fmt.Errorf("message size %d exceeds maximum %d", len(data), MaxMessageSize)
	}
	var lengthPrefix [4]byte
	binary.BigEndian.PutUint32(lengthPrefix[:], uint32(len(data)))
	if _, err := w.Write(lengthPrefix[:]); err != nil {
		return fmt.Errorf("writing message length: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("writing message body: %w", err)
	}
	return nil
}

// ReadMessage reads one length-prefixed CBOR message and decodes it
// into v. Rejects frames larger than MaxMessageSize.
func ReadMessage(r io.Reader, v any) error {
	raw, err := ReadRawMessage(r)
	if err != nil {
		return err
	}
	if err := codec.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("decoding message: %w", err)
	}
	return nil
}

// ReadRawMessage reads one length-prefixed frame and returns the CBOR
// bytes undecoded, for handlers that route on a field before decoding
// the full request.
func ReadRawMessage(r io.Reader) ([]byte, error) {
	var lengthPrefix [4]byte
	if _, err := io.ReadFull(r, lengthPrefix[:]); err != nil {
		return nil, fmt.Errorf("reading message length: %w", err)
	}
	length := binary.BigEndian.Uint32(lengthPrefix[:])
	if length > MaxMessageSize {
		return nil, fmt.Errorf("message size %d exceeds maximum %d", length, MaxMessageSize)
	}
	data := make([]byte, length)
	if _, err := io.ReadFull(r, data); err != nil {
		return nil, fmt.Errorf("reading message body: %w", err)
	}
	return data, nil
}
