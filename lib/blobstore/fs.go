// Copyright 2026 The AgentHub Authors
// SPDX-License-Identifier: Apache-2.0

package blobstore

import (
	"context"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/agenthub-foundation/agenthub/lib/registry"
)

// Directory names within the store root.
const (
	blobDir = "blobs"
	tmpDir  = "tmp"
)

// headerSize is the per-blob on-disk header: 1-byte compression tag
// followed by the uncompressed size as a big-endian uint64.
const headerSize = 1 + 8

// FS is a content-addressed blob store on the local filesystem.
//
// Layout: <root>/blobs/<first two hex chars>/<full hex hash>.blob.
// The two-character fan-out keeps directory sizes manageable at
// millions of blobs. Writes go to <root>/tmp and are renamed into
// place, so a final path either holds a complete blob or nothing.
type FS struct {
	root string
}

// NewFS creates a filesystem store rooted at the given directory,
// creating the directory structure if needed.
func NewFS(root string) (*FS, error) {
	for _, dir := range []string{
		root,
		filepath.Join(root, blobDir),
		filepath.Join(root, tmpDir),
	} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating store directory %s: %w", dir, err)
		}
	}
	return &FS{root: root}, nil
}

// Put stores data under hash. The data is verified against the
// address before anything touches disk; a mismatch is an
// IntegrityError and nothing is written.
func (s *FS) Put(ctx context.Context, hash Hash, data []byte) error {
	if err := ctx.Err(); err != nil {
		return &registry.TransientStorageError{Op: "blob put", Err: err}
	}
	if got := HashBlob(data); got != hash {
		return &registry.IntegrityError{WantHash: hash.String(), GotHash: got.String()}
	}

	finalPath := s.blobPath(hash)
	if _, err := os.Stat(finalPath); err == nil {
		// Content-addressed: identical bytes are already present.
		return nil
	}

	compressed, tag := compressAuto(data)

	tmpFile, err := os.CreateTemp(filepath.Join(s.root, tmpDir), "blob-*.tmp")
	if err != nil {
		return &registry.TransientStorageError{Op: "blob put", Err: err}
	}
	tmpPath := tmpFile.Name()
	// Remove the temp file on any failure path; succeeds paths rename
	// it away first, making this a no-op.
	defer os.Remove(tmpPath)

	var header [headerSize]byte
	header[0] = byte(tag)
	binary.BigEndian.PutUint64(header[1:], uint64(len(data)))

	if _, err := tmpFile.Write(header[:]); err != nil {
		tmpFile.Close()
		return &registry.TransientStorageError{Op: "blob put", Err: err}
	}
	if _, err := tmpFile.Write(compressed); err != nil {
		tmpFile.Close()
		return &registry.TransientStorageError{Op: "blob put", Err: err}
	}
	if err := tmpFile.Close(); err != nil {
		return &registry.TransientStorageError{Op: "blob put", Err: err}
	}

	if err := os.MkdirAll(filepath.Dir(finalPath), 0o755); err != nil {
		return &registry.TransientStorageError{Op: "blob put", Err: err}
	}
	if err := os.Rename(tmpPath, finalPath); err != nil {
		return &registry.TransientStorageError{Op: "blob put", Err: err}
	}
	return nil
}

// Get reads, decompresses, and returns the blob's bytes.
func (s *FS) Get(ctx context.Context, hash Hash) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, &registry.TransientStorageError{Op: "blob get", Err: err}
	}

	raw, err := os.ReadFile(s.blobPath(hash))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &registry.NotFoundError{Kind: "blob", Key: hash.String()}
		}
		return nil, &registry.TransientStorageError{Op: "blob get", Err: err}
	}
	if len(raw) < headerSize {
		return nil, fmt.Errorf("blob %s: truncated header (%d bytes)", hash, len(raw))
	}

	tag := CompressionTag(raw[0])
	uncompressedSize := binary.BigEndian.Uint64(raw[1:headerSize])

	data, err := decompress(raw[headerSize:], tag, int(uncompressedSize))
	if err != nil {
		return nil, fmt.Errorf("blob %s: %w", hash, err)
	}
	return data, nil
}

// Exists reports whether the blob is present on disk.
func (s *FS) Exists(ctx context.Context, hash Hash) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, &registry.TransientStorageError{Op: "blob exists", Err: err}
	}
	_, err := os.Stat(s.blobPath(hash))
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, &registry.TransientStorageError{Op: "blob exists", Err: err}
}

// Delete removes the blob. Missing blobs are a no-op so the orphan
// sweep can race with itself harmlessly.
func (s *FS) Delete(ctx context.Context, hash Hash) error {
	if err := ctx.Err(); err != nil {
		return &registry.TransientStorageError{Op: "blob delete", Err: err}
	}
	err := os.Remove(s.blobPath(hash))
	if err != nil && !os.IsNotExist(err) {
		return &registry.TransientStorageError{Op: "blob delete", Err: err}
	}
	return nil
}

// List walks the fan-out directories and returns every blob address.
func (s *FS) List(ctx context.Context) ([]Hash, error) {
	var hashes []Hash
	blobRoot := filepath.Join(s.root, blobDir)

	fanouts, err := os.ReadDir(blobRoot)
	if err != nil {
		return nil, &registry.TransientStorageError{Op: "blob list", Err: err}
	}
	for _, fanout := range fanouts {
		if !fanout.IsDir() {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, &registry.TransientStorageError{Op: "blob list", Err: err}
		}
		entries, err := os.ReadDir(filepath.Join(blobRoot, fanout.Name()))
		if err != nil {
			return nil, &registry.TransientStorageError{Op: "blob list", Err: err}
		}
		for _, entry := range entries {
			name := strings.TrimSuffix(entry.Name(), ".blob")
			if len(name) != 2*len(Hash{}) {
				continue
			}
			hash, err := ParseHash(name)
			if err != nil {
				continue
			}
			hashes = append(hashes, hash)
		}
	}
	return hashes, nil
}

func (s *FS) blobPath(hash Hash) string {
	hexHash := hex.EncodeToString(hash[:])
	return filepath.Join(s.root, blobDir, hexHash[:2], hexHash+".blob")
}
