package identitycache

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"audioclean/internal/logging"
	"audioclean/internal/media"
	"audioclean/internal/media/fingerprint"
	"audioclean/internal/media/tags"
	"audioclean/internal/sqliteutil"
)

//go:embed schema.sql
var schemaSQL string

// schemaVersion is the current schema version. A database with any other
// version is discarded on open.
const schemaVersion = 2

var (
	// ErrSchemaMismatch indicates the database was written by an incompatible version.
	ErrSchemaMismatch = errors.New("identity cache schema version mismatch")
	// ErrCacheCorrupt marks a database that could not be read and was reset.
	ErrCacheCorrupt = errors.New("identity cache corrupt")
)

// Store is the SQLite-backed identity cache.
type Store struct {
	db        *sql.DB
	path      string
	logger    *slog.Logger
	recovered string

	writeMu sync.Mutex
}

// Open connects to the cache at path, creating it when missing. A corrupt or
// version-mismatched database is moved aside and replaced by an empty one.
func Open(path string, logger *slog.Logger) (*Store, error) {
	logger = logging.NewComponentLogger(logger, "identitycache")
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create cache directory: %w", err)
	}

	store, err := openDB(path, logger)
	if err == nil {
		return store, nil
	}

	aside, moveErr := moveAside(path)
	if moveErr != nil {
		return nil, fmt.Errorf("%w: %v (move aside failed: %v)", ErrCacheCorrupt, err, moveErr)
	}
	logging.WarnWithContext(logger, "identity cache unreadable; starting empty", "cache_reset",
		logging.String(logging.FieldPath, path),
		logging.String("moved_to", aside),
		logging.Error(fmt.Errorf("%w: %w", ErrCacheCorrupt, err)),
		logging.String(logging.FieldErrorHint, "the next scan rehashes every file"),
		logging.String(logging.FieldImpact, "full rescan required"),
	)

	store, err = openDB(path, logger)
	if err != nil {
		return nil, err
	}
	store.recovered = aside
	return store, nil
}

func openDB(path string, logger *slog.Logger) (*Store, error) {
	db, err := sqliteutil.Open(path, 4, "PRAGMA synchronous = NORMAL")
	if err != nil {
		return nil, err
	}

	store := &Store{db: db, path: path, logger: logger}
	if err := store.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

func moveAside(path string) (string, error) {
	aside := fmt.Sprintf("%s.corrupt-%s", path, time.Now().UTC().Format("20060102T150405"))
	if err := os.Rename(path, aside); err != nil && !errors.Is(err, os.ErrNotExist) {
		return "", err
	}
	for _, suffix := range []string{"-wal", "-shm"} {
		_ = os.Remove(path + suffix)
	}
	return aside, nil
}

func (s *Store) initSchema(ctx context.Context) error {
	var tableExists int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(1) FROM sqlite_master WHERE type='table' AND name='schema_version'",
	).Scan(&tableExists)
	if err != nil {
		return fmt.Errorf("check schema_version table: %w", err)
	}
	if tableExists == 0 {
		return s.createSchema(ctx)
	}

	var version int
	if err := s.db.QueryRowContext(ctx, "SELECT version FROM schema_version LIMIT 1").Scan(&version); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	if version != schemaVersion {
		return fmt.Errorf("%w: database has version %d, expected %d", ErrSchemaMismatch, version, schemaVersion)
	}
	return nil
}

func (s *Store) createSchema(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "INSERT INTO schema_version (version) VALUES (?)", schemaVersion); err != nil {
		return fmt.Errorf("record schema version: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema: %w", err)
	}
	return nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Path returns the database location.
func (s *Store) Path() string { return s.path }

// Recovered returns the moved-aside database path when Open reset the store.
func (s *Store) Recovered() string { return s.recovered }

const recordColumns = "path, root, size, mtime_ns, content_hash, fingerprint, duration, container, tags_json, scanned_at"

const upsertSQL = `INSERT INTO files (` + recordColumns + `)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(path) DO UPDATE SET
    root = excluded.root,
    size = excluded.size,
    mtime_ns = excluded.mtime_ns,
    content_hash = excluded.content_hash,
    fingerprint = excluded.fingerprint,
    duration = excluded.duration,
    container = excluded.container,
    tags_json = excluded.tags_json,
    scanned_at = excluded.scanned_at`

// Get returns the cached record for path. found is false on a miss.
func (s *Store) Get(ctx context.Context, path string) (FileRecord, bool, error) {
	ctx = sqliteutil.EnsureContext(ctx)
	row := s.db.QueryRowContext(ctx, "SELECT "+recordColumns+" FROM files WHERE path = ?", path)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return FileRecord{}, false, nil
	}
	if err != nil {
		return FileRecord{}, false, fmt.Errorf("get %q: %w", path, err)
	}
	return rec, true, nil
}

// Put inserts or replaces one record.
func (s *Store) Put(ctx context.Context, rec FileRecord) error {
	return s.PutBatch(ctx, []FileRecord{rec})
}

// PutBatch inserts or replaces records in a single transaction.
func (s *Store) PutBatch(ctx context.Context, records []FileRecord) error {
	if len(records) == 0 {
		return nil
	}
	ctx = sqliteutil.EnsureContext(ctx)
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	return sqliteutil.RetryOnBusy(ctx, func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin put tx: %w", err)
		}
		defer func() { _ = tx.Rollback() }()

		stmt, err := tx.PrepareContext(ctx, upsertSQL)
		if err != nil {
			return fmt.Errorf("prepare upsert: %w", err)
		}
		defer stmt.Close()

		for _, rec := range records {
			args, err := recordArgs(rec)
			if err != nil {
				return err
			}
			if _, err := stmt.ExecContext(ctx, args...); err != nil {
				return fmt.Errorf("put %q: %w", rec.Path, err)
			}
		}
		return tx.Commit()
	})
}

// Remove deletes the record for path. Missing records are ignored.
func (s *Store) Remove(ctx context.Context, path string) error {
	return s.exec(ctx, "DELETE FROM files WHERE path = ?", path)
}

// RemoveBatch deletes the records for paths in one transaction.
func (s *Store) RemoveBatch(ctx context.Context, paths []string) error {
	if len(paths) == 0 {
		return nil
	}
	ctx = sqliteutil.EnsureContext(ctx)
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	return sqliteutil.RetryOnBusy(ctx, func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin remove tx: %w", err)
		}
		defer func() { _ = tx.Rollback() }()
		for _, path := range paths {
			if _, err := tx.ExecContext(ctx, "DELETE FROM files WHERE path = ?", path); err != nil {
				return fmt.Errorf("remove %q: %w", path, err)
			}
		}
		return tx.Commit()
	})
}

// Rename moves a record to a new path key, keeping its hash and fingerprint.
// A stale record already stored under to is replaced.
func (s *Store) Rename(ctx context.Context, from, to string) error {
	if from == to {
		return nil
	}
	ctx = sqliteutil.EnsureContext(ctx)
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	return sqliteutil.RetryOnBusy(ctx, func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin rename tx: %w", err)
		}
		defer func() { _ = tx.Rollback() }()
		if _, err := tx.ExecContext(ctx, "DELETE FROM files WHERE path = ?", to); err != nil {
			return fmt.Errorf("clear rename target: %w", err)
		}
		if _, err := tx.ExecContext(ctx, "UPDATE files SET path = ? WHERE path = ?", to, from); err != nil {
			return fmt.Errorf("rename %q: %w", from, err)
		}
		if _, err := tx.ExecContext(ctx, "UPDATE OR REPLACE group_overrides SET path = ? WHERE path = ?", to, from); err != nil {
			return fmt.Errorf("rename overrides of %q: %w", from, err)
		}
		return tx.Commit()
	})
}

// Snapshot returns every record stored under root, including records whose
// files no longer exist on disk, ordered by path.
func (s *Store) Snapshot(ctx context.Context, root string) ([]FileRecord, error) {
	lo, hi := rootRange(root)
	return s.query(ctx, "SELECT "+recordColumns+" FROM files WHERE path >= ? AND path < ? ORDER BY path", lo, hi)
}

// All returns every record ordered by path.
func (s *Store) All(ctx context.Context) ([]FileRecord, error) {
	return s.query(ctx, "SELECT "+recordColumns+" FROM files ORDER BY path")
}

// Stats summarizes the cache contents.
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	ctx = sqliteutil.EnsureContext(ctx)
	stats := Stats{Path: s.path, Recovered: s.recovered}
	var total sql.NullInt64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(1),
        COALESCE(SUM(CASE WHEN fingerprint IS NOT NULL AND length(fingerprint) > 0 THEN 1 ELSE 0 END), 0),
        COUNT(DISTINCT root),
        SUM(size)
        FROM files`).Scan(&stats.Records, &stats.Fingerprinted, &stats.Roots, &total)
	if err != nil {
		return Stats{}, fmt.Errorf("cache stats: %w", err)
	}
	stats.TotalBytes = total.Int64
	return stats, nil
}

// Clear removes every file record. Group overrides are kept.
func (s *Store) Clear(ctx context.Context) error {
	return s.exec(ctx, "DELETE FROM files")
}

func (s *Store) exec(ctx context.Context, query string, args ...any) error {
	ctx = sqliteutil.EnsureContext(ctx)
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return sqliteutil.RetryOnBusy(ctx, func() error {
		_, err := s.db.ExecContext(ctx, query, args...)
		return err
	})
}

func (s *Store) query(ctx context.Context, query string, args ...any) ([]FileRecord, error) {
	ctx = sqliteutil.EnsureContext(ctx)
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query records: %w", err)
	}
	defer rows.Close()

	var records []FileRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

func recordArgs(rec FileRecord) ([]any, error) {
	var tagsJSON any
	if !rec.Tags.IsZero() {
		data, err := json.Marshal(rec.Tags)
		if err != nil {
			return nil, fmt.Errorf("encode tags for %q: %w", rec.Path, err)
		}
		tagsJSON = string(data)
	}
	scanned := rec.ScannedAt
	if scanned.IsZero() {
		scanned = time.Now()
	}
	return []any{
		rec.Path,
		rec.Root,
		rec.Size,
		rec.ModTime.UnixNano(),
		rec.ContentHash,
		fingerprint.Encode(rec.Fingerprint),
		rec.Duration,
		string(rec.Container),
		tagsJSON,
		scanned.UTC().Format(time.RFC3339Nano),
	}, nil
}

func scanRecord(scanner interface{ Scan(dest ...any) error }) (FileRecord, error) {
	var (
		rec       FileRecord
		mtimeNS   int64
		fp        []byte
		container string
		tagsJSON  sql.NullString
		scanned   string
	)
	if err := scanner.Scan(
		&rec.Path,
		&rec.Root,
		&rec.Size,
		&mtimeNS,
		&rec.ContentHash,
		&fp,
		&rec.Duration,
		&container,
		&tagsJSON,
		&scanned,
	); err != nil {
		return FileRecord{}, err
	}
	rec.ModTime = time.Unix(0, mtimeNS)
	rec.Container = media.Container(container)
	decoded, err := fingerprint.Decode(fp)
	if err != nil {
		return FileRecord{}, err
	}
	rec.Fingerprint = decoded
	if tagsJSON.Valid && tagsJSON.String != "" {
		var t tags.Tags
		if err := json.Unmarshal([]byte(tagsJSON.String), &t); err != nil {
			return FileRecord{}, fmt.Errorf("decode tags for %q: %w", rec.Path, err)
		}
		rec.Tags = t
	}
	if ts, err := time.Parse(time.RFC3339Nano, scanned); err == nil {
		rec.ScannedAt = ts
	}
	return rec, nil
}
