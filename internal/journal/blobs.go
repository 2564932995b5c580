package journal

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"audioclean/internal/fileutil"
)

// BlobStore keeps prior file contents keyed by their content hash.
type BlobStore struct {
	dir string
}

// NewBlobStore returns a store rooted at dir.
func NewBlobStore(dir string) *BlobStore {
	return &BlobStore{dir: dir}
}

// Dir returns the blob directory.
func (b *BlobStore) Dir() string { return b.dir }

func (b *BlobStore) path(hash string) string {
	if len(hash) < 2 {
		return filepath.Join(b.dir, hash)
	}
	return filepath.Join(b.dir, hash[:2], hash)
}

// Put stores data and returns its hash. Storing identical bytes twice is a
// no-op.
func (b *BlobStore) Put(data []byte) (string, error) {
	hash := fileutil.HashBytes(data)
	target := b.path(hash)
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return "", fmt.Errorf("create blob directory: %w", err)
	}
	err := fileutil.WriteFileNoOverwrite(target, data, 0o644)
	if err != nil && !errors.Is(err, fileutil.ErrDestinationExists) {
		return "", fmt.Errorf("write blob %s: %w", hash, err)
	}
	return hash, nil
}

// Get returns the bytes stored under hash, verifying their integrity.
func (b *BlobStore) Get(hash string) ([]byte, error) {
	data, err := os.ReadFile(b.path(hash))
	if err != nil {
		return nil, fmt.Errorf("read blob %s: %w", hash, err)
	}
	if got := fileutil.HashBytes(data); got != hash {
		return nil, fmt.Errorf("blob %s is corrupt (hash %s)", hash, got)
	}
	return data, nil
}
