// Package blob implements the Blob Archiver (spec.md §4.E): a small Store
// interface mirroring every raw provider payload to a deterministic,
// batch-scoped path. No object-storage SDK exists anywhere in the retrieval
// pack this module was built from, so the local-filesystem implementation
// here stands in for a GCS bucket, rooted at a configured directory.
package blob

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/adflow/pipeline/internal/config"
)

// Store mirrors a batch's raw payload under a deterministic key. Put
// failures must never abort the batch that produced the payload — callers
// log and alarm rather than propagate.
type Store interface {
	Put(ctx context.Context, key string, payload []byte) error
}

// FSStore roots every key under a single directory standing in for a bucket
// (BlobConfig.BucketDir, the spec.md §6 GCS_BUCKET_NAME stand-in).
type FSStore struct {
	root string
}

// NewFSStore builds an FSStore rooted at cfg.BucketDir, creating it if
// necessary.
func NewFSStore(cfg config.BlobConfig) (*FSStore, error) {
	if err := os.MkdirAll(cfg.BucketDir, 0o750); err != nil {
		return nil, fmt.Errorf("create blob root %s: %w", cfg.BucketDir, err)
	}
	return &FSStore{root: cfg.BucketDir}, nil
}

// Put writes payload to {root}/{key}, overwriting any existing content at
// that path (spec.md §4.E: "overwrite is permitted, re-runs replace"). The
// write is staged to a temp file in the same directory and renamed into
// place, so a reader never observes a partially written object.
func (s *FSStore) Put(_ context.Context, key string, payload []byte) error {
	target := filepath.Join(s.root, filepath.FromSlash(key))
	dir := filepath.Dir(target)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("create blob directory %s: %w", dir, err)
	}

	tmp := target + ".tmp"
	if err := os.WriteFile(tmp, payload, 0o640); err != nil {
		return fmt.Errorf("stage blob %s: %w", key, err)
	}
	if err := os.Rename(tmp, target); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("commit blob %s: %w", key, err)
	}
	return nil
}
