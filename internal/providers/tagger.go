package providers

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"audioclean/internal/fileutil"
	"audioclean/internal/media"
	"audioclean/internal/media/tags"
)

// FileTagger writes ID3v2 (MP3) and Vorbis comment (FLAC) tags. Writes go to
// a temporary sibling that replaces the original with one rename.
type FileTagger struct{}

// WriteTags implements Tagger.
func (FileTagger) WriteTags(ctx context.Context, path string, t tags.Tags) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !tags.Writable(media.ContainerFor(path)) {
		return nil, fmt.Errorf("write tags %s: %w", path, tags.ErrUnsupported)
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}
	prior, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("capture prior bytes: %w", err)
	}

	dir, base := filepath.Split(path)
	tmp, err := os.CreateTemp(dir, "."+base+".audioclean-tag-*"+filepath.Ext(path))
	if err != nil {
		return nil, fmt.Errorf("create tag scratch file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := tmp.Write(prior); err != nil {
		_ = tmp.Close()
		return nil, fmt.Errorf("stage tag write: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return nil, fmt.Errorf("stage tag write: %w", err)
	}
	if err := tags.Write(tmpName, t); err != nil {
		return nil, err
	}
	if err := os.Chmod(tmpName, info.Mode().Perm()); err != nil {
		return nil, fmt.Errorf("preserve mode: %w", err)
	}
	if err := fileutil.Rename(tmpName, path); err != nil {
		return nil, fmt.Errorf("replace %s: %w", path, err)
	}
	return prior, nil
}
