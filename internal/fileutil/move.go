package fileutil

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// renameFunc is swapped in tests to simulate EXDEV.
var renameFunc = os.Rename

// ErrDestinationExists reports a move or write whose destination is occupied.
var ErrDestinationExists = errors.New("destination already exists")

// CrossDeviceError reports a rename that failed because source and
// destination live on different file systems.
type CrossDeviceError struct {
	Src string
	Dst string
	Err error
}

func (e *CrossDeviceError) Error() string {
	return fmt.Sprintf("cross-device rename %q -> %q: %v", e.Src, e.Dst, e.Err)
}

func (e *CrossDeviceError) Unwrap() error { return e.Err }

// IsCrossDevice reports whether err is a CrossDeviceError.
func IsCrossDevice(err error) bool {
	var e *CrossDeviceError
	return errors.As(err, &e)
}

// Rename wraps os.Rename and marks EXDEV failures as CrossDeviceError.
func Rename(src, dst string) error {
	if err := renameFunc(src, dst); err != nil {
		if isEXDEV(err) {
			return &CrossDeviceError{Src: src, Dst: dst, Err: err}
		}
		return err
	}
	return nil
}

// MoveResult describes how a Move was carried out.
type MoveResult struct {
	// Copied is true when the move crossed file systems and fell back to a
	// verified copy followed by removal of the source.
	Copied bool
}

// Move relocates src to dst, creating parent directories as needed. dst must
// not exist. Cross-device moves are performed as a verified copy into a
// temporary sibling of dst, an atomic rename into place, then removal of src.
func Move(src, dst string) (MoveResult, error) {
	if _, err := os.Lstat(dst); err == nil {
		return MoveResult{}, fmt.Errorf("move %q: %w: %s", src, ErrDestinationExists, dst)
	} else if !errors.Is(err, os.ErrNotExist) {
		return MoveResult{}, fmt.Errorf("stat destination: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return MoveResult{}, fmt.Errorf("create destination directory: %w", err)
	}

	err := Rename(src, dst)
	if err == nil {
		syncDirBestEffort(filepath.Dir(dst))
		return MoveResult{}, nil
	}
	if !IsCrossDevice(err) {
		return MoveResult{}, err
	}

	tmp := filepath.Join(filepath.Dir(dst), "."+filepath.Base(dst)+".audioclean-tmp")
	_ = os.Remove(tmp)
	if err := CopyFileVerified(src, tmp); err != nil {
		return MoveResult{Copied: true}, fmt.Errorf("cross-device copy: %w", err)
	}
	if err := Rename(tmp, dst); err != nil {
		_ = os.Remove(tmp)
		return MoveResult{Copied: true}, fmt.Errorf("cross-device finalize: %w", err)
	}
	syncDirBestEffort(filepath.Dir(dst))
	if err := os.Remove(src); err != nil {
		return MoveResult{Copied: true}, fmt.Errorf("remove source after cross-device copy: %w", err)
	}
	return MoveResult{Copied: true}, nil
}

// PruneEmptyDirs removes dir and its empty parents up to, but excluding, stop.
func PruneEmptyDirs(dir, stop string) {
	stop = filepath.Clean(stop)
	for dir = filepath.Clean(dir); dir != stop && Within(stop, dir); dir = filepath.Dir(dir) {
		if err := os.Remove(dir); err != nil {
			return
		}
	}
}

// Within reports whether path is root or lies beneath it.
func Within(root, path string) bool {
	rel, err := filepath.Rel(filepath.Clean(root), filepath.Clean(path))
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
