package scanner

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"
	"time"

	"audioclean/internal/fileutil"
	"audioclean/internal/identitycache"
	"audioclean/internal/logging"
	"audioclean/internal/media"
	"audioclean/internal/media/tags"
	"audioclean/internal/services"
)

// walkDir is swapped in tests to simulate unreadable directories.
var walkDir = filepath.WalkDir

// Cache is the subset of the identity cache the scanner needs.
type Cache interface {
	Snapshot(ctx context.Context, root string) ([]identitycache.FileRecord, error)
	PutBatch(ctx context.Context, records []identitycache.FileRecord) error
	RemoveBatch(ctx context.Context, paths []string) error
}

// Scanner refreshes the identity cache from the file system.
type Scanner struct {
	cache          Cache
	workers        int
	extensions     []string
	fingerprinter  Fingerprinter
	readTags       TagReader
	exclude        []string
	followSymlinks bool
	logger         *slog.Logger
	progress       func(Progress)
	batchSize      int
	now            func() time.Time
}

// New builds a scanner writing to cache.
func New(cache Cache, opts ...Option) *Scanner {
	s := &Scanner{
		cache:      cache,
		workers:    runtime.NumCPU(),
		extensions: []string{"mp3", "flac", "m4a", "aac", "ogg", "opus", "wav"},
		readTags:   tags.Read,
		batchSize:  256,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = logging.NewComponentLogger(s.logger, "scanner")
	return s
}

type job struct {
	root   string
	path   string
	cached *identitycache.FileRecord
}

type result struct {
	job    job
	status FileStatus
	record identitycache.FileRecord
	err    *IdentityError
	hashed int64
	fp     fpOutcome
}

type fpOutcome int

const (
	fpSkipped fpOutcome = iota
	fpDone
	fpFailed
)

// Scan walks roots and returns the refreshed records. Roots must be existing
// directories. Per-file read failures are reported, not returned.
func (s *Scanner) Scan(ctx context.Context, roots []string) (*Report, error) {
	started := s.now()
	ctx = services.WithStage(ctx, "scan")
	logger := logging.WithContext(ctx, s.logger)

	roots, err := s.normalizeRoots(roots)
	if err != nil {
		return nil, err
	}

	report := &Report{StartedAt: started}
	var jobs []job
	leftovers := make(map[string]map[string]identitycache.FileRecord, len(roots))
	for _, root := range roots {
		snapshot, err := s.cache.Snapshot(ctx, root)
		if err != nil {
			logging.WarnWithContext(logger, "identity cache snapshot failed; treating root as uncached", "cache_snapshot_failed",
				logging.String(logging.FieldRoot, root),
				logging.Error(err),
				logging.String(logging.FieldImpact, "every file under the root is rehashed"),
			)
			snapshot = nil
		}
		known := make(map[string]identitycache.FileRecord, len(snapshot))
		for _, rec := range snapshot {
			known[rec.Path] = rec
		}

		counts := RootCounts{Root: root}
		found, walkErrs, err := s.walk(ctx, root)
		if err != nil {
			return nil, err
		}
		for _, ie := range walkErrs {
			counts.Errors++
			report.Errors = append(report.Errors, ie)
			// Records under an unreadable directory are kept until a walk
			// can see it again.
			for path := range known {
				if fileutil.Within(ie.Path, path) {
					delete(known, path)
				}
			}
		}
		for _, path := range found {
			j := job{root: root, path: path}
			if rec, ok := known[path]; ok {
				j.cached = &rec
				delete(known, path)
			}
			jobs = append(jobs, j)
		}
		leftovers[root] = known
		report.Roots = append(report.Roots, counts)
	}

	logger.Info("scan started",
		logging.Int("roots", len(roots)),
		logging.Int("candidates", len(jobs)),
		logging.Int("workers", s.workers),
		logging.Bool("fingerprint", s.fingerprinter != nil),
	)

	records, err := s.process(ctx, logger, jobs, report)
	if err != nil {
		return nil, err
	}

	var removed []string
	for _, root := range roots {
		counts := report.Counts(root)
		for path := range leftovers[root] {
			removed = append(removed, path)
			counts.Removed++
		}
	}
	sort.Strings(removed)
	if err := s.cache.RemoveBatch(ctx, removed); err != nil {
		report.CacheWriteFailures++
		logging.WarnWithContext(logger, "failed to drop removed files from cache", "cache_write_failed",
			logging.Int("paths", len(removed)),
			logging.Error(err),
			logging.String(logging.FieldImpact, "stale records remain until the next scan"),
		)
	}
	report.Removed = removed

	sort.Slice(records, func(i, j int) bool { return records[i].Path < records[j].Path })
	sort.Slice(report.Errors, func(i, j int) bool { return report.Errors[i].Path < report.Errors[j].Path })
	report.Records = records
	report.Outcome = services.OutcomeFor(len(records), len(report.Errors))
	report.Duration = s.now().Sub(started)

	totals := report.Totals()
	logger.Info("scan completed",
		logging.Int("files", totals.Files),
		logging.Int("new", totals.New),
		logging.Int("changed", totals.Changed),
		logging.Int("unchanged", totals.Unchanged),
		logging.Int("removed", totals.Removed),
		logging.Int("errors", totals.Errors),
		logging.Int64("bytes_hashed", report.BytesHashed),
		logging.Int("fingerprinted", report.Fingerprinted),
		logging.String("outcome", string(report.Outcome)),
		logging.Duration("duration", report.Duration),
	)
	return report, nil
}

func (s *Scanner) normalizeRoots(roots []string) ([]string, error) {
	if len(roots) == 0 {
		return nil, services.Wrap(services.ErrValidation, "scan", "roots", "no library roots configured", nil)
	}
	cleaned := make([]string, 0, len(roots))
	seen := make(map[string]struct{}, len(roots))
	for _, root := range roots {
		abs, err := filepath.Abs(strings.TrimSpace(root))
		if err != nil {
			return nil, fmt.Errorf("resolve root %q: %w", root, err)
		}
		info, err := os.Stat(abs)
		if err != nil {
			return nil, services.Wrap(services.ErrValidation, "scan", "roots", fmt.Sprintf("root %s", abs), err)
		}
		if !info.IsDir() {
			return nil, services.Wrap(services.ErrValidation, "scan", "roots", fmt.Sprintf("root %s is not a directory", abs), nil)
		}
		if _, dup := seen[abs]; dup {
			continue
		}
		seen[abs] = struct{}{}
		cleaned = append(cleaned, abs)
	}
	sort.Strings(cleaned)

	// Nested roots would be walked twice.
	out := cleaned[:0]
	for _, root := range cleaned {
		nested := false
		for _, parent := range out {
			if fileutil.Within(parent, root) {
				nested = true
				s.logger.Info("skipping nested library root",
					logging.String(logging.FieldRoot, root),
					logging.String("parent", parent),
				)
				break
			}
		}
		if !nested {
			out = append(out, root)
		}
	}
	return out, nil
}

func (s *Scanner) walk(ctx context.Context, root string) ([]string, []*IdentityError, error) {
	exts := media.NewExtensionSet(s.extensions)
	var (
		found []string
		errs  []*IdentityError
	)
	err := walkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if walkErr != nil {
			errs = append(errs, &IdentityError{Path: path, Root: root, Op: "walk", Err: walkErr})
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			if path != root && s.excluded(path) {
				return fs.SkipDir
			}
			return nil
		}
		if !exts.Match(path) {
			return nil
		}
		if d.Type()&fs.ModeSymlink != 0 {
			if !s.followSymlinks {
				return nil
			}
			info, err := os.Stat(path)
			if err != nil || !info.Mode().IsRegular() {
				return nil
			}
		} else if !d.Type().IsRegular() {
			return nil
		}
		found = append(found, path)
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return found, errs, nil
}

func (s *Scanner) excluded(dir string) bool {
	for _, ex := range s.exclude {
		if ex != "" && fileutil.Within(ex, dir) {
			return true
		}
	}
	return false
}

func (s *Scanner) process(ctx context.Context, logger *slog.Logger, jobs []job, report *Report) ([]identitycache.FileRecord, error) {
	workers := s.workers
	if workers < 1 {
		workers = 1
	}

	jobCh := make(chan job)
	results := make(chan result, workers)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range jobCh {
				results <- s.processOne(ctx, logger, j)
			}
		}()
	}

	go func() {
		defer func() {
			close(jobCh)
			wg.Wait()
			close(results)
		}()
		for _, j := range jobs {
			select {
			case jobCh <- j:
			case <-ctx.Done():
				return
			}
		}
	}()

	sampler := logging.NewProgressSampler(10)
	records := make([]identitycache.FileRecord, 0, len(jobs))
	pending := make([]identitycache.FileRecord, 0, s.batchSize)
	flush := func() {
		if len(pending) == 0 {
			return
		}
		if err := s.cache.PutBatch(context.WithoutCancel(ctx), pending); err != nil {
			report.CacheWriteFailures += len(pending)
			logging.WarnWithContext(logger, "identity cache write failed", "cache_write_failed",
				logging.Int("records", len(pending)),
				logging.Error(err),
				logging.String(logging.FieldImpact, "affected files are rehashed on the next scan"),
			)
		}
		pending = pending[:0]
	}

	done := 0
	for res := range results {
		done++
		counts := report.Counts(res.job.root)
		counts.Files++
		switch res.status {
		case StatusError:
			counts.Errors++
			report.Errors = append(report.Errors, res.err)
			logging.WarnWithContext(logger, "file unreadable; excluded from this run", "identity_error",
				logging.String(logging.FieldPath, res.job.path),
				logging.String("op", res.err.Op),
				logging.Error(res.err.Err),
				logging.String(logging.FieldErrorHint, "check file permissions and disk health"),
				logging.String(logging.FieldImpact, "file skipped for duplicate detection and planning"),
			)
		default:
			counts.Bytes += res.record.Size
			report.BytesScanned += res.record.Size
			records = append(records, res.record)
			switch res.status {
			case StatusNew:
				counts.New++
			case StatusChanged:
				counts.Changed++
			case StatusUnchanged:
				counts.Unchanged++
			}
			if res.status != StatusUnchanged {
				pending = append(pending, res.record)
				if len(pending) >= s.batchSize {
					flush()
				}
			}
		}
		if res.status == StatusNew || res.status == StatusChanged {
			report.FilesHashed++
			report.BytesHashed += res.hashed
		}
		switch res.fp {
		case fpDone:
			report.Fingerprinted++
		case fpFailed:
			report.FingerprintFailures++
		}

		if s.progress != nil {
			s.progress(Progress{Done: done, Total: len(jobs), Path: res.job.path})
		}
		if len(jobs) > 0 {
			percent := float64(done) * 100 / float64(len(jobs))
			if sampler.ShouldLog(percent, "scan") {
				logger.Info("scan progress",
					logging.Float64(logging.FieldProgressPercent, percent),
					logging.Int("done", done),
					logging.Int("total", len(jobs)),
				)
			}
		}
	}
	flush()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return records, nil
}

func (s *Scanner) processOne(ctx context.Context, logger *slog.Logger, j job) result {
	res := result{job: j}
	fail := func(op string, err error) result {
		res.status = StatusError
		res.err = &IdentityError{Path: j.path, Root: j.root, Op: op, Err: err}
		return res
	}

	info, err := os.Stat(j.path)
	if err != nil {
		return fail("stat", err)
	}
	size, modTime := info.Size(), info.ModTime()

	if j.cached != nil && j.cached.Matches(size, modTime) {
		res.status = StatusUnchanged
		res.record = *j.cached
		res.record.Root = j.root
		return res
	}

	hash, n, err := fileutil.HashFile(j.path)
	if err != nil {
		return fail("hash", err)
	}
	res.hashed = n

	container := media.ContainerFor(j.path)
	rec := identitycache.FileRecord{
		Path:        j.path,
		Root:        j.root,
		Size:        size,
		ModTime:     modTime,
		ContentHash: hash,
		Container:   container,
		ScannedAt:   s.now().UTC(),
	}

	if s.fingerprinter != nil && container.Audio() {
		fp, err := s.fingerprinter.Fingerprint(ctx, j.path)
		if err != nil {
			res.fp = fpFailed
			if ctx.Err() == nil {
				logging.WarnWithContext(logger, "fingerprint failed; near-duplicate detection skips file", "fingerprint_failed",
					logging.String(logging.FieldPath, j.path),
					logging.Error(err),
					logging.String(logging.FieldErrorHint, "verify fpcalc can decode the file"),
					logging.String(logging.FieldImpact, "file only matched by exact hash"),
				)
			}
		} else {
			res.fp = fpDone
			rec.Fingerprint = fp.Fingerprint
			rec.Duration = fp.Duration
		}
	}

	if s.readTags != nil {
		t, err := s.readTags(j.path)
		switch {
		case err == nil:
			rec.Tags = t
		case errors.Is(err, tags.ErrUnsupported):
		default:
			logger.Debug("embedded tags unreadable",
				logging.String(logging.FieldPath, j.path),
				logging.Error(err),
			)
		}
	}

	res.record = rec
	if j.cached == nil {
		res.status = StatusNew
	} else {
		res.status = StatusChanged
	}
	return res
}
