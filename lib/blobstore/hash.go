// Copyright 2026 The AgentHub Authors
// SPDX-License-Identifier: Apache-2.0

package blobstore

import (
	"encoding/hex"
	"fmt"

	"github.com/zeebo/blake3"
)

// Hash is a 32-byte BLAKE3 digest. Every blob address is this size.
type Hash [32]byte

// blobDomainKey is the 32-byte key for BLAKE3 keyed hashing. Domain
// separation ensures the same input bytes produce different hashes in
// different contexts, preventing cross-domain collisions. The value is
// a fixed constant — changing it invalidates every existing blob
// address. The bytes are the ASCII encoding of the domain name,
// zero-padded to 32 bytes, so the key is inspectable in hex dumps
// without sacrificing any cryptographic property.
var blobDomainKey = [32]byte{
	'a', 'g', 'e', 'n', 't', 'h', 'u', 'b', '.', 'b', 'l', 'o', 'b',
	0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
}

// HashBlob computes the blob-domain BLAKE3 keyed hash of the given
// data. Hashes are always computed on uncompressed bytes so addresses
// are stable across compression algorithm changes.
func HashBlob(data []byte) Hash {
	// NewKeyed requires exactly 32 bytes, which the fixed-size key
	// guarantees, so this cannot fail.
	hasher, err := blake3.NewKeyed(blobDomainKey[:])
	if err != nil {
		panic("blobstore: BLAKE3 keyed hash initialization failed: " + err.Error())
	}
	hasher.Write(data)
	var hash Hash
	copy(hash[:], hasher.Sum(nil))
	return hash
}

// String returns the hex-encoded form of the hash. This is the
// canonical format used in metadata, logs, and the wire protocol.
func (h Hash) String() string {
	return hex.EncodeToString(h[:])
}

// ParseHash parses a 64-character hex string into a Hash.
func ParseHash(hexString string) (Hash, error) {
	var hash Hash
	decoded, err := hex.DecodeString(hexString)
	if err != nil {
		return hash, fmt.Errorf("parsing blob hash: %w", err)
	}
	if len(decoded) != 32 {
		return hash, fmt.Errorf("blob hash is %d bytes, want 32", len(decoded))
	}
	copy(hash[:], decoded)
	return hash, nil
}
