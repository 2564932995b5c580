package scanner

import (
	"context"
	"log/slog"
	"runtime"
	"time"

	"audioclean/internal/media/fingerprint"
	"audioclean/internal/media/tags"
)

// Fingerprinter computes an acoustic fingerprint for one file.
type Fingerprinter interface {
	Fingerprint(ctx context.Context, path string) (fingerprint.Result, error)
}

// TagReader returns the embedded tags of a file.
type TagReader func(path string) (tags.Tags, error)

// Progress reports how many candidate files have been processed.
type Progress struct {
	Done  int
	Total int
	Path  string
}

// Option configures a Scanner.
type Option func(*Scanner)

// WithWorkers bounds the hashing pool. Values < 1 use runtime.NumCPU().
func WithWorkers(n int) Option {
	return func(s *Scanner) {
		if n < 1 {
			n = runtime.NumCPU()
		}
		s.workers = n
	}
}

// WithExtensions restricts scanning to the given extensions.
func WithExtensions(exts []string) Option {
	return func(s *Scanner) { s.extensions = exts }
}

// WithFingerprinter enables fingerprinting of audio containers.
func WithFingerprinter(f Fingerprinter) Option {
	return func(s *Scanner) { s.fingerprinter = f }
}

// WithTagReader replaces the embedded tag reader.
func WithTagReader(r TagReader) Option {
	return func(s *Scanner) { s.readTags = r }
}

// WithExcludeDirs skips directories (and everything below) during the walk.
func WithExcludeDirs(dirs ...string) Option {
	return func(s *Scanner) { s.exclude = append(s.exclude, dirs...) }
}

// WithFollowSymlinks includes regular files reached through symlinks.
func WithFollowSymlinks(follow bool) Option {
	return func(s *Scanner) { s.followSymlinks = follow }
}

// WithLogger sets the scanner logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Scanner) { s.logger = logger }
}

// WithProgress registers a callback invoked after each processed file.
func WithProgress(fn func(Progress)) Option {
	return func(s *Scanner) { s.progress = fn }
}

// WithBatchSize sets how many records the writer buffers per cache write.
func WithBatchSize(n int) Option {
	return func(s *Scanner) {
		if n > 0 {
			s.batchSize = n
		}
	}
}

// WithClock overrides the scan timestamp source.
func WithClock(now func() time.Time) Option {
	return func(s *Scanner) {
		if now != nil {
			s.now = now
		}
	}
}
