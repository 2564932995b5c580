package fileutil

import (
	"errors"
	"os"
	"path/filepath"
	"syscall"
	"testing"
)

func TestHashFileMatchesHashBytes(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a.flac")
	content := []byte("fLaC audio bytes")
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatal(err)
	}
	sum, n, err := HashFile(path)
	if err != nil {
		t.Fatalf("HashFile: %v", err)
	}
	if n != int64(len(content)) {
		t.Fatalf("bytes read = %d, want %d", n, len(content))
	}
	if sum != HashBytes(content) {
		t.Fatalf("digest mismatch: %s vs %s", sum, HashBytes(content))
	}
	if len(sum) != 64 {
		t.Fatalf("expected 256-bit hex digest, got %q", sum)
	}
}

func TestCopyFileVerifiedRefusesExistingDestination(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src.mp3")
	dst := filepath.Join(dir, "dst.mp3")
	if err := os.WriteFile(src, []byte("data"), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := CopyFileVerified(src, dst); err != nil {
		t.Fatalf("CopyFileVerified: %v", err)
	}
	info, err := os.Stat(dst)
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Fatalf("mode not preserved: %v", info.Mode())
	}
	if err := CopyFileVerified(src, dst); err == nil {
		t.Fatal("expected second copy onto existing destination to fail")
	}
}

func TestMoveSameDevice(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "a.flac")
	dst := filepath.Join(dir, "nested", "deeper", "b.flac")
	if err := os.WriteFile(src, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	res, err := Move(src, dst)
	if err != nil {
		t.Fatalf("Move: %v", err)
	}
	if res.Copied {
		t.Fatal("expected plain rename")
	}
	if _, err := os.Stat(src); !os.IsNotExist(err) {
		t.Fatalf("source should be gone, stat err=%v", err)
	}
	if _, err := os.Stat(dst); err != nil {
		t.Fatalf("destination missing: %v", err)
	}
}

func TestMoveRefusesOverwrite(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "a.flac")
	dst := filepath.Join(dir, "b.flac")
	for _, p := range []string{src, dst} {
		if err := os.WriteFile(p, []byte(p), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	_, err := Move(src, dst)
	if !errors.Is(err, ErrDestinationExists) {
		t.Fatalf("expected ErrDestinationExists, got %v", err)
	}
	got, _ := os.ReadFile(dst)
	if string(got) != dst {
		t.Fatal("destination was modified")
	}
}

func TestMoveCrossDeviceFallsBackToCopy(t *testing.T) {
	old := renameFunc
	calls := 0
	renameFunc = func(oldpath, newpath string) error {
		calls++
		if calls == 1 {
			return &os.LinkError{Op: "rename", Old: oldpath, New: newpath, Err: syscall.EXDEV}
		}
		return os.Rename(oldpath, newpath)
	}
	defer func() { renameFunc = old }()

	dir := t.TempDir()
	src := filepath.Join(dir, "a.flac")
	dst := filepath.Join(dir, "q", "a.flac")
	if err := os.WriteFile(src, []byte("payload"), 0o644); err != nil {
		t.Fatal(err)
	}
	res, err := Move(src, dst)
	if err != nil {
		t.Fatalf("Move: %v", err)
	}
	if !res.Copied {
		t.Fatal("expected copy fallback")
	}
	got, err := os.ReadFile(dst)
	if err != nil || string(got) != "payload" {
		t.Fatalf("unexpected destination content %q err=%v", got, err)
	}
	if _, err := os.Stat(src); !os.IsNotExist(err) {
		t.Fatalf("source should be removed, stat err=%v", err)
	}
	entries, _ := os.ReadDir(filepath.Dir(dst))
	if len(entries) != 1 {
		t.Fatalf("temporary file left behind: %v", entries)
	}
}

func TestRenameMarksCrossDevice(t *testing.T) {
	old := renameFunc
	renameFunc = func(oldpath, newpath string) error {
		return &os.LinkError{Op: "rename", Old: oldpath, New: newpath, Err: syscall.EXDEV}
	}
	defer func() { renameFunc = old }()

	if err := Rename("/a", "/b"); !IsCrossDevice(err) {
		t.Fatalf("expected CrossDeviceError, got %T %v", err, err)
	}
}

func TestWriteFileNoOverwrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "album", "cover.jpg")
	if err := WriteFileNoOverwrite(path, []byte("one"), 0o644); err != nil {
		t.Fatalf("first write: %v", err)
	}
	if err := WriteFileNoOverwrite(path, []byte("two"), 0o644); !errors.Is(err, ErrDestinationExists) {
		t.Fatalf("expected ErrDestinationExists, got %v", err)
	}
	if err := WriteFileAtomic(path, []byte("three"), 0o644); err != nil {
		t.Fatalf("replace write: %v", err)
	}
	got, _ := os.ReadFile(path)
	if string(got) != "three" {
		t.Fatalf("unexpected content %q", got)
	}
}

func TestPruneEmptyDirs(t *testing.T) {
	root := t.TempDir()
	deep := filepath.Join(root, "a", "b", "c")
	if err := os.MkdirAll(deep, 0o755); err != nil {
		t.Fatal(err)
	}
	keep := filepath.Join(root, "a", "keep.txt")
	if err := os.WriteFile(keep, nil, 0o644); err != nil {
		t.Fatal(err)
	}
	PruneEmptyDirs(deep, root)
	if _, err := os.Stat(filepath.Join(root, "a", "b")); !os.IsNotExist(err) {
		t.Fatalf("expected empty dirs pruned, stat err=%v", err)
	}
	if _, err := os.Stat(filepath.Join(root, "a")); err != nil {
		t.Fatalf("non-empty parent should remain: %v", err)
	}
	if !Within(root, deep) || Within(deep, root) {
		t.Fatal("Within reported wrong containment")
	}
}
