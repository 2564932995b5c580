package journal

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

	"github.com/google/uuid"

	"audioclean/internal/logging"
	"audioclean/internal/planner"
	"audioclean/internal/services"
	"audioclean/internal/sqliteutil"
)

//go:embed schema.sql
var schemaSQL string

const schemaVersion = 1

// ErrSchemaMismatch indicates the journal was written by an incompatible version.
var ErrSchemaMismatch = errors.New("journal schema version mismatch")

// Store is the SQLite-backed apply journal.
type Store struct {
	db     *sql.DB
	path   string
	blobs  *BlobStore
	logger *slog.Logger
	now    func() time.Time

	writeMu sync.Mutex
}

// Open connects to the journal at path, creating it when missing. Blobs are
// kept in a "blobs" directory beside the database.
func Open(path string, logger *slog.Logger) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create journal directory: %w", err)
	}
	db, err := sqliteutil.Open(path, 1, "PRAGMA synchronous = FULL", "PRAGMA foreign_keys = ON")
	if err != nil {
		return nil, err
	}
	s := &Store{
		db:     db,
		path:   path,
		blobs:  NewBlobStore(filepath.Join(filepath.Dir(path), "blobs")),
		logger: logging.NewComponentLogger(logger, "journal"),
		now:    time.Now,
	}
	if err := s.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
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

	var version int
	if err := s.db.QueryRowContext(ctx, "SELECT version FROM schema_version LIMIT 1").Scan(&version); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	if version != schemaVersion {
		return fmt.Errorf("%w: database has version %d, expected %d", ErrSchemaMismatch, version, schemaVersion)
	}
	return nil
}

// Close closes the database.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Path returns the database location.
func (s *Store) Path() string { return s.path }

// Blobs returns the prior-content blob store.
func (s *Store) Blobs() *BlobStore { return s.blobs }

func (s *Store) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	ctx = sqliteutil.EnsureContext(ctx)
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	var res sql.Result
	err := sqliteutil.RetryOnBusy(ctx, func() error {
		var execErr error
		res, execErr = s.db.ExecContext(ctx, query, args...)
		return execErr
	})
	return res, err
}

// BeginSession opens a new session for planID.
func (s *Store) BeginSession(ctx context.Context, planID string) (Session, error) {
	session := Session{
		ID:        uuid.NewString(),
		PlanID:    planID,
		Status:    StatusOpen,
		StartedAt: s.now().UTC(),
	}
	_, err := s.exec(ctx,
		"INSERT INTO sessions (id, plan_id, status, started_at) VALUES (?, ?, ?, ?)",
		session.ID, session.PlanID, string(session.Status), formatTime(session.StartedAt),
	)
	if err != nil {
		return Session{}, fmt.Errorf("begin session: %w", err)
	}
	s.logger.Info("journal session started",
		logging.String(logging.FieldSessionID, session.ID),
		logging.String("plan_id", planID),
	)
	return session, nil
}

// Append records an action as pending. It must be called, and return, before
// the action touches the file system.
func (s *Store) Append(ctx context.Context, sessionID string, seq int, action planner.Action, before Before, undoable bool) (Entry, error) {
	entry := Entry{
		SessionID:  sessionID,
		Seq:        seq,
		Action:     action,
		Before:     before,
		ExecutedAt: s.now().UTC(),
		Outcome:    OutcomePending,
		Undoable:   undoable,
	}
	actionJSON, err := json.Marshal(action)
	if err != nil {
		return Entry{}, fmt.Errorf("encode action: %w", err)
	}
	beforeJSON, err := json.Marshal(before)
	if err != nil {
		return Entry{}, fmt.Errorf("encode before state: %w", err)
	}
	_, err = s.exec(ctx,
		`INSERT INTO entries (session_id, seq, action_json, before_json, executed_at, outcome, undoable)
VALUES (?, ?, ?, ?, ?, ?, ?)`,
		sessionID, seq, string(actionJSON), string(beforeJSON), formatTime(entry.ExecutedAt), string(OutcomePending), boolInt(undoable),
	)
	if err != nil {
		return Entry{}, fmt.Errorf("append entry %d: %w", seq, err)
	}
	return entry, nil
}

// Complete records the outcome of a pending entry.
func (s *Store) Complete(ctx context.Context, sessionID string, seq int, outcome Outcome, after After, errMsg string) error {
	afterJSON, err := json.Marshal(after)
	if err != nil {
		return fmt.Errorf("encode after state: %w", err)
	}
	res, err := s.exec(ctx,
		"UPDATE entries SET outcome = ?, after_json = ?, error = ? WHERE session_id = ? AND seq = ?",
		string(outcome), string(afterJSON), nullString(errMsg), sessionID, seq,
	)
	if err != nil {
		return fmt.Errorf("complete entry %d: %w", seq, err)
	}
	return expectRow(res, sessionID, seq)
}

// MarkUndone flags an entry as reversed.
func (s *Store) MarkUndone(ctx context.Context, sessionID string, seq int) error {
	res, err := s.exec(ctx, "UPDATE entries SET undone = 1 WHERE session_id = ? AND seq = ?", sessionID, seq)
	if err != nil {
		return fmt.Errorf("mark entry %d undone: %w", seq, err)
	}
	return expectRow(res, sessionID, seq)
}

// CloseSession sets the final status of a session.
func (s *Store) CloseSession(ctx context.Context, sessionID string, status Status) error {
	res, err := s.exec(ctx,
		"UPDATE sessions SET status = ?, closed_at = ? WHERE id = ?",
		string(status), formatTime(s.now().UTC()), sessionID,
	)
	if err != nil {
		return fmt.Errorf("close session: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return services.Wrap(services.ErrNotFound, "journal", "close session", sessionID, nil)
	}
	s.logger.Info("journal session closed",
		logging.String(logging.FieldSessionID, sessionID),
		logging.String("status", string(status)),
	)
	return nil
}

const sessionQuery = `SELECT s.id, s.plan_id, s.status, s.started_at, s.closed_at,
    COUNT(e.seq),
    COALESCE(SUM(CASE WHEN e.outcome = 'applied' THEN 1 ELSE 0 END), 0),
    COALESCE(SUM(CASE WHEN e.outcome = 'failed' THEN 1 ELSE 0 END), 0),
    COALESCE(SUM(e.undone), 0),
    COALESCE(SUM(CASE WHEN e.outcome = 'pending' AND e.undone = 0 THEN 1 ELSE 0 END), 0),
    COALESCE(SUM(CASE WHEN e.outcome IN ('applied', 'pending') AND e.undone = 0 THEN 1 ELSE 0 END), 0)
FROM sessions s
LEFT JOIN entries e ON e.session_id = s.id`

// Sessions lists all sessions, newest first.
func (s *Store) Sessions(ctx context.Context) ([]Session, error) {
	ctx = sqliteutil.EnsureContext(ctx)
	rows, err := s.db.QueryContext(ctx, sessionQuery+" GROUP BY s.ordinal ORDER BY s.ordinal DESC")
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()
	var out []Session
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, session)
	}
	return out, rows.Err()
}

// Last returns the most recently started session.
func (s *Store) Last(ctx context.Context) (Session, error) {
	ctx = sqliteutil.EnsureContext(ctx)
	row := s.db.QueryRowContext(ctx, sessionQuery+" WHERE s.ordinal = (SELECT MAX(ordinal) FROM sessions) GROUP BY s.ordinal")
	session, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Session{}, services.Wrap(services.ErrNotFound, "journal", "last session", "journal has no sessions", nil)
	}
	return session, err
}

// Session returns the session with id.
func (s *Store) Session(ctx context.Context, id string) (Session, error) {
	ctx = sqliteutil.EnsureContext(ctx)
	row := s.db.QueryRowContext(ctx, sessionQuery+" WHERE s.id = ? GROUP BY s.ordinal", id)
	session, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Session{}, services.Wrap(services.ErrNotFound, "journal", "session", id, nil)
	}
	return session, err
}

// Entries returns every entry of a session in sequence order.
func (s *Store) Entries(ctx context.Context, sessionID string) ([]Entry, error) {
	ctx = sqliteutil.EnsureContext(ctx)
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+entryColumns+" FROM entries WHERE session_id = ? ORDER BY seq ASC", sessionID)
	if err != nil {
		return nil, fmt.Errorf("list entries: %w", err)
	}
	defer rows.Close()
	return scanEntries(rows)
}

const entryColumns = "session_id, seq, action_json, before_json, after_json, executed_at, outcome, error, undoable, undone"

type scanner interface {
	Scan(dest ...any) error
}

func scanSession(row scanner) (Session, error) {
	var (
		session   Session
		status    string
		started   string
		closed    sql.NullString
		undoneSum int
	)
	if err := row.Scan(&session.ID, &session.PlanID, &status, &started, &closed,
		&session.Entries, &session.Applied, &session.Failed, &undoneSum,
		&session.Pending, &session.Outstanding); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Session{}, err
		}
		return Session{}, fmt.Errorf("scan session: %w", err)
	}
	session.Status = Status(status)
	session.StartedAt = parseTime(started)
	if closed.Valid {
		session.ClosedAt = parseTime(closed.String)
	}
	session.Undone = undoneSum
	return session, nil
}

func scanEntries(rows *sql.Rows) ([]Entry, error) {
	var out []Entry
	for rows.Next() {
		var (
			entry      Entry
			actionJSON string
			beforeJSON string
			afterJSON  sql.NullString
			executed   string
			outcome    string
			errMsg     sql.NullString
			undoable   int
			undone     int
		)
		if err := rows.Scan(&entry.SessionID, &entry.Seq, &actionJSON, &beforeJSON, &afterJSON,
			&executed, &outcome, &errMsg, &undoable, &undone); err != nil {
			return nil, fmt.Errorf("scan entry: %w", err)
		}
		if err := json.Unmarshal([]byte(actionJSON), &entry.Action); err != nil {
			return nil, fmt.Errorf("decode entry %d action: %w", entry.Seq, err)
		}
		if err := json.Unmarshal([]byte(beforeJSON), &entry.Before); err != nil {
			return nil, fmt.Errorf("decode entry %d before state: %w", entry.Seq, err)
		}
		if afterJSON.Valid && afterJSON.String != "" {
			if err := json.Unmarshal([]byte(afterJSON.String), &entry.After); err != nil {
				return nil, fmt.Errorf("decode entry %d after state: %w", entry.Seq, err)
			}
		}
		entry.ExecutedAt = parseTime(executed)
		entry.Outcome = Outcome(outcome)
		entry.Error = errMsg.String
		entry.Undoable = undoable != 0
		entry.Undone = undone != 0
		out = append(out, entry)
	}
	return out, rows.Err()
}

func expectRow(res sql.Result, sessionID string, seq int) error {
	if n, _ := res.RowsAffected(); n == 0 {
		return services.Wrap(services.ErrNotFound, "journal", "entry", fmt.Sprintf("%s/%d", sessionID, seq), nil)
	}
	return nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(value string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}
	}
	return t
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
