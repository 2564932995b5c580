package scanner_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"audioclean/internal/identitycache"
	"audioclean/internal/media/fingerprint"
	"audioclean/internal/media/tags"
	"audioclean/internal/scanner"
	"audioclean/internal/services"
	"audioclean/internal/testsupport"
)

type countingFingerprinter struct {
	calls atomic.Int32
	fail  map[string]bool
}

func (f *countingFingerprinter) Fingerprint(_ context.Context, path string) (fingerprint.Result, error) {
	f.calls.Add(1)
	if f.fail[filepath.Base(path)] {
		return fingerprint.Result{}, errors.New("decode failed")
	}
	return fingerprint.Result{Duration: 60, Fingerprint: []uint32{uint32(len(path)), 7, 9}}, nil
}

func newScanner(t *testing.T, opts ...scanner.Option) (*scanner.Scanner, *identitycache.Store) {
	t.Helper()
	cache := testsupport.MustOpenCache(t, filepath.Join(t.TempDir(), "cache.db"))
	return scanner.New(cache, opts...), cache
}

func TestScanIdenticalFilesAreHashedOnce(t *testing.T) {
	lib := t.TempDir()
	content := testsupport.MinimalFLAC(1)
	for _, rel := range []string{"a.flac", "b.flac", "sub/c.flac", "notes.txt"} {
		testsupport.WriteBytes(t, filepath.Join(lib, rel), content)
	}

	s, _ := newScanner(t, scanner.WithWorkers(3))
	report, err := s.Scan(context.Background(), []string{lib})
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if len(report.Records) != 3 {
		t.Fatalf("expected 3 audio records, got %d", len(report.Records))
	}
	counts := report.Counts(lib)
	if counts.New != 3 || counts.Unchanged != 0 || counts.Errors != 0 {
		t.Fatalf("unexpected counts %+v", counts)
	}
	hash := report.Records[0].ContentHash
	for _, rec := range report.Records {
		if rec.ContentHash != hash {
			t.Fatalf("identical content should hash equal: %+v", rec)
		}
	}
	if report.Records[0].Path != filepath.Join(lib, "a.flac") {
		t.Fatalf("records should be sorted by path, got %s", report.Records[0].Path)
	}
	if report.Outcome != services.OutcomeSucceeded {
		t.Fatalf("outcome = %s", report.Outcome)
	}
}

func TestRescanUnchangedFileSkipsHashing(t *testing.T) {
	lib := t.TempDir()
	path := filepath.Join(lib, "song.mp3")
	testsupport.WriteBytes(t, path, testsupport.FakeMP3(3))

	fp := &countingFingerprinter{}
	s, _ := newScanner(t, scanner.WithFingerprinter(fp))

	first, err := s.Scan(context.Background(), []string{lib})
	if err != nil {
		t.Fatalf("first Scan: %v", err)
	}
	if first.FilesHashed != 1 || first.BytesHashed == 0 || first.Fingerprinted != 1 {
		t.Fatalf("first scan should hash and fingerprint: %+v", first)
	}

	second, err := s.Scan(context.Background(), []string{lib})
	if err != nil {
		t.Fatalf("second Scan: %v", err)
	}
	if second.FilesHashed != 0 || second.BytesHashed != 0 {
		t.Fatalf("unchanged file was re-read: hashed=%d bytes=%d", second.FilesHashed, second.BytesHashed)
	}
	if fp.calls.Load() != 1 {
		t.Fatalf("fingerprinter called %d times, want 1", fp.calls.Load())
	}
	if c := second.Counts(lib); c.Unchanged != 1 || c.New != 0 {
		t.Fatalf("unexpected counts %+v", c)
	}
	if len(second.Records[0].Fingerprint) == 0 {
		t.Fatal("cached fingerprint should be reused")
	}
}

func TestRescanDetectsChangeAndRemoval(t *testing.T) {
	lib := t.TempDir()
	keep := filepath.Join(lib, "keep.flac")
	gone := filepath.Join(lib, "gone.flac")
	testsupport.WriteBytes(t, keep, testsupport.MinimalFLAC(1))
	testsupport.WriteBytes(t, gone, testsupport.MinimalFLAC(2))

	s, cache := newScanner(t)
	if _, err := s.Scan(context.Background(), []string{lib}); err != nil {
		t.Fatalf("Scan: %v", err)
	}

	testsupport.WriteBytes(t, keep, testsupport.MinimalFLAC(9))
	testsupport.SetModTime(t, keep, time.Now().Add(time.Hour))
	if err := os.Remove(gone); err != nil {
		t.Fatalf("remove: %v", err)
	}

	report, err := s.Scan(context.Background(), []string{lib})
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	c := report.Counts(lib)
	if c.Changed != 1 || c.Removed != 1 {
		t.Fatalf("unexpected counts %+v", c)
	}
	if len(report.Removed) != 1 || report.Removed[0] != gone {
		t.Fatalf("unexpected removed list %v", report.Removed)
	}
	if _, found, _ := cache.Get(context.Background(), gone); found {
		t.Fatal("removed file should be dropped from the cache")
	}
}

func TestUnreadableFileIsReportedNotFatal(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("root can read any file")
	}
	lib := t.TempDir()
	ok := filepath.Join(lib, "ok.flac")
	locked := filepath.Join(lib, "locked.flac")
	testsupport.WriteBytes(t, ok, testsupport.MinimalFLAC(1))
	testsupport.WriteBytes(t, locked, testsupport.MinimalFLAC(2))
	if err := os.Chmod(locked, 0); err != nil {
		t.Fatalf("chmod: %v", err)
	}
	t.Cleanup(func() { _ = os.Chmod(locked, 0o644) })

	s, _ := newScanner(t)
	report, err := s.Scan(context.Background(), []string{lib})
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if len(report.Records) != 1 || report.Records[0].Path != ok {
		t.Fatalf("expected only the readable file, got %+v", report.Records)
	}
	if len(report.Errors) != 1 || report.Errors[0].Path != locked || report.Errors[0].Op != "hash" {
		t.Fatalf("unexpected errors %+v", report.Errors)
	}
	if report.Outcome != services.OutcomePartial {
		t.Fatalf("outcome = %s, want partial", report.Outcome)
	}
}

func TestFingerprintFailureKeepsRecord(t *testing.T) {
	lib := t.TempDir()
	testsupport.WriteBytes(t, filepath.Join(lib, "bad.mp3"), testsupport.FakeMP3(1))
	fp := &countingFingerprinter{fail: map[string]bool{"bad.mp3": true}}
	s, _ := newScanner(t, scanner.WithFingerprinter(fp))

	report, err := s.Scan(context.Background(), []string{lib})
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if len(report.Records) != 1 || report.Records[0].HasFingerprint() {
		t.Fatalf("expected record without fingerprint, got %+v", report.Records)
	}
	if report.FingerprintFailures != 1 || len(report.Errors) != 0 {
		t.Fatalf("unexpected report %+v", report)
	}
}

func TestScanCapturesTagsAndSkipsExcludedDirs(t *testing.T) {
	lib := t.TempDir()
	song := filepath.Join(lib, "song.mp3")
	testsupport.WriteBytes(t, song, testsupport.FakeMP3(1))
	if err := tags.Write(song, tags.Tags{Title: "Song", Artist: "Artist"}); err != nil {
		t.Fatalf("tags.Write: %v", err)
	}
	quarantine := filepath.Join(lib, ".quarantine")
	testsupport.WriteBytes(t, filepath.Join(quarantine, "old.mp3"), testsupport.FakeMP3(2))

	s, _ := newScanner(t, scanner.WithExcludeDirs(quarantine))
	report, err := s.Scan(context.Background(), []string{lib})
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if len(report.Records) != 1 {
		t.Fatalf("excluded dir should be skipped, got %d records", len(report.Records))
	}
	if got := report.Records[0].Tags; got.Title != "Song" || got.Artist != "Artist" {
		t.Fatalf("tags not captured: %+v", got)
	}
}

func TestScanRejectsMissingRoot(t *testing.T) {
	s, _ := newScanner(t)
	_, err := s.Scan(context.Background(), []string{filepath.Join(t.TempDir(), "missing")})
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if _, err := s.Scan(context.Background(), nil); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error for no roots, got %v", err)
	}
}

func TestScanHonorsCancellation(t *testing.T) {
	lib := t.TempDir()
	for i := 0; i < 5; i++ {
		testsupport.WriteBytes(t, filepath.Join(lib, string(rune('a'+i))+".flac"), testsupport.MinimalFLAC(byte(i)))
	}
	s, _ := newScanner(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := s.Scan(ctx, []string{lib}); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestProgressCallback(t *testing.T) {
	lib := t.TempDir()
	testsupport.WriteBytes(t, filepath.Join(lib, "a.flac"), testsupport.MinimalFLAC(1))
	testsupport.WriteBytes(t, filepath.Join(lib, "b.flac"), testsupport.MinimalFLAC(2))

	var last scanner.Progress
	s, _ := newScanner(t, scanner.WithProgress(func(p scanner.Progress) { last = p }), scanner.WithWorkers(1))
	if _, err := s.Scan(context.Background(), []string{lib}); err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if last.Done != 2 || last.Total != 2 {
		t.Fatalf("unexpected final progress %+v", last)
	}
}
