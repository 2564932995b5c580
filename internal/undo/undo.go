package undo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"audioclean/internal/fileutil"
	"audioclean/internal/journal"
	"audioclean/internal/logging"
	"audioclean/internal/planner"
	"audioclean/internal/services"
)

// Journal is the subset of the journal store undo needs.
type Journal interface {
	Last(ctx context.Context) (journal.Session, error)
	Session(ctx context.Context, id string) (journal.Session, error)
	ReverseReader(sessionID string, pageSize int) *journal.ReverseReader
	MarkUndone(ctx context.Context, sessionID string, seq int) error
	CloseSession(ctx context.Context, sessionID string, status journal.Status) error
	Blobs() *journal.BlobStore
}

// PathUpdater keeps the identity cache keyed by current paths.
type PathUpdater interface {
	Rename(ctx context.Context, from, to string) error
}

// Inconsistency is an entry that could not be reversed.
type Inconsistency struct {
	Seq    int          `json:"seq"`
	Kind   planner.Kind `json:"kind"`
	Path   string       `json:"path"`
	Reason string       `json:"reason"`
}

func (i Inconsistency) Error() string {
	return fmt.Sprintf("entry %d (%s %s): %s", i.Seq, i.Kind, i.Path, i.Reason)
}

// Result summarizes an undo run.
type Result struct {
	SessionID       string           `json:"session_id"`
	Outcome         services.Outcome `json:"outcome"`
	Reversed        []int            `json:"reversed"`
	Inconsistencies []Inconsistency  `json:"inconsistencies,omitempty"`
	NothingToUndo   bool             `json:"nothing_to_undo,omitempty"`
	Duration        time.Duration    `json:"duration"`
}

// Undoer replays journal sessions backwards.
type Undoer struct {
	journal  Journal
	logger   *slog.Logger
	paths    PathUpdater
	pageSize int
	roots    []string
}

// Option configures an Undoer.
type Option func(*Undoer)

// WithLogger sets the undo logger.
func WithLogger(logger *slog.Logger) Option {
	return func(u *Undoer) { u.logger = logger }
}

// WithPathUpdater sets the cache updated after files are moved back.
func WithPathUpdater(p PathUpdater) Option {
	return func(u *Undoer) { u.paths = p }
}

// WithPageSize sets how many journal entries are loaded per page.
func WithPageSize(n int) Option {
	return func(u *Undoer) { u.pageSize = n }
}

// WithPruneRoots lists directories below which emptied folders are removed
// after files are moved back out of them.
func WithPruneRoots(roots ...string) Option {
	return func(u *Undoer) { u.roots = append(u.roots, roots...) }
}

// New constructs an Undoer.
func New(j Journal, opts ...Option) *Undoer {
	u := &Undoer{journal: j, pageSize: 64}
	for _, opt := range opts {
		opt(u)
	}
	u.logger = logging.NewComponentLogger(u.logger, "undo")
	return u
}

// Undo reverses the session named by target, or the most recent session
// when target is empty or "last".
func (u *Undoer) Undo(ctx context.Context, target string) (*Result, error) {
	ctx = services.WithStage(ctx, "undo")
	start := time.Now()

	session, err := u.resolve(ctx, target)
	if err != nil {
		return nil, err
	}
	ctx = services.WithSessionID(ctx, session.ID)
	logger := logging.WithContext(ctx, u.logger)
	result := &Result{SessionID: session.ID, Reversed: []int{}}

	if !session.Reversible() || session.Status == journal.StatusUndone {
		result.NothingToUndo = true
		result.Outcome = services.OutcomeSucceeded
		logger.Info("nothing to undo", logging.String("status", string(session.Status)))
		return result, nil
	}

	logger.Info("undo started",
		logging.String(logging.FieldEventType, "undo_start"),
		logging.Int("applied", session.Applied),
		logging.Int("pending", session.Pending),
		logging.Int("already_undone", session.Undone),
	)

	irreversible := 0

	reader := u.journal.ReverseReader(session.ID, u.pageSize)
	for {
		if err := ctx.Err(); err != nil {
			result.Outcome = services.OutcomeFor(len(result.Reversed), 1)
			result.Duration = time.Since(start)
			return result, err
		}
		entry, ok, err := reader.Next(ctx)
		if err != nil {
			return result, fmt.Errorf("read journal: %w", err)
		}
		if !ok {
			break
		}
		if entry.Undone {
			continue
		}
		var reason string
		switch {
		case entry.Outcome == journal.OutcomePending:
			reason = u.settle(ctx, entry)
		case entry.Outcome != journal.OutcomeApplied:
			continue
		case !entry.Undoable:
			reason = reasonDeleted
		default:
			reason = u.reverse(ctx, entry)
		}
		if reason != "" {
			if reason == reasonDeleted {
				irreversible++
			}
			u.inconsistent(logger, result, entry, reason)
			continue
		}
		if err := u.journal.MarkUndone(context.WithoutCancel(ctx), entry.SessionID, entry.Seq); err != nil {
			return result, fmt.Errorf("mark entry %d undone: %w", entry.Seq, err)
		}
		result.Reversed = append(result.Reversed, entry.Seq)
		logger.Debug("entry reversed",
			logging.Int("seq", entry.Seq),
			logging.String(logging.FieldActionKind, string(entry.Action.Kind)),
			logging.String(logging.FieldPath, entry.Before.Path),
		)
	}

	// Only deletions left unreversed: another attempt cannot change anything.
	if len(result.Inconsistencies) == irreversible {
		if err := u.journal.CloseSession(context.WithoutCancel(ctx), session.ID, journal.StatusUndone); err != nil {
			return result, err
		}
	}
	result.Outcome = services.OutcomeFor(len(result.Reversed), len(result.Inconsistencies))
	result.Duration = time.Since(start)
	logger.Info("undo finished",
		logging.String(logging.FieldEventType, "undo_complete"),
		logging.String("outcome", string(result.Outcome)),
		logging.Int("reversed", len(result.Reversed)),
		logging.Int("inconsistencies", len(result.Inconsistencies)),
	)
	return result, nil
}

func (u *Undoer) resolve(ctx context.Context, target string) (journal.Session, error) {
	target = strings.TrimSpace(target)
	if target == "" || strings.EqualFold(target, "last") {
		return u.journal.Last(ctx)
	}
	return u.journal.Session(ctx, target)
}

func (u *Undoer) inconsistent(logger *slog.Logger, result *Result, entry journal.Entry, reason string) {
	inc := Inconsistency{Seq: entry.Seq, Kind: entry.Action.Kind, Path: entry.After.Path, Reason: reason}
	if inc.Path == "" {
		inc.Path = entry.Before.Path
	}
	result.Inconsistencies = append(result.Inconsistencies, inc)
	logging.WarnWithContext(logger, "journal entry not reversed", "undo_inconsistency",
		logging.Int("seq", entry.Seq),
		logging.String(logging.FieldActionKind, string(entry.Action.Kind)),
		logging.String(logging.FieldPath, inc.Path),
		logging.String("reason", reason),
		logging.String(logging.FieldImpact, "this change stays in place"),
	)
}

// reverse undoes one entry and returns a non-empty reason when the file
// system no longer matches the journal.
func (u *Undoer) reverse(ctx context.Context, entry journal.Entry) string {
	if reason := verifyAfter(entry.After); reason != "" {
		return reason
	}
	switch entry.Action.Kind {
	case planner.KindRename, planner.KindMove, planner.KindQuarantine:
		if _, err := os.Lstat(entry.Before.Path); err == nil {
			return fmt.Sprintf("original path %s is occupied", entry.Before.Path)
		}
		if _, err := fileutil.Move(entry.After.Path, entry.Before.Path); err != nil {
			return fmt.Sprintf("move back failed: %v", err)
		}
		if u.paths != nil {
			if err := u.paths.Rename(ctx, entry.After.Path, entry.Before.Path); err != nil {
				logging.WarnWithContext(u.logger, "identity cache path update failed", "cache_update_failed",
					logging.String(logging.FieldPath, entry.After.Path),
					logging.Error(err),
					logging.String(logging.FieldImpact, "next scan rehashes the restored file"),
				)
			}
		}
		u.prune(filepath.Dir(entry.After.Path))

	case planner.KindTagWrite:
		if reason := u.restoreBlob(entry); reason != "" {
			return reason
		}

	case planner.KindArtWrite:
		if entry.Before.Existed {
			return u.restoreBlob(entry)
		}
		if err := os.Remove(entry.After.Path); err != nil {
			return fmt.Sprintf("remove sidecar failed: %v", err)
		}

	default:
		return fmt.Sprintf("unsupported action kind %q", entry.Action.Kind)
	}
	return ""
}

// settle resolves an entry whose mutation may or may not have happened
// before the process stopped. The file system decides which side of the
// mutation the file is on.
func (u *Undoer) settle(ctx context.Context, entry journal.Entry) string {
	before := entry.Before
	switch entry.Action.Kind {
	case planner.KindRename, planner.KindMove, planner.KindQuarantine:
		dst := entry.Action.Destination
		if matchesHash(before.Path, before.Hash) {
			// A cross-device copy can land before its source is removed.
			// The copy is left for the user since it may predate the run.
			if dst != "" && matchesHash(dst, before.Hash) {
				return fmt.Sprintf("an identical copy remains at %s", dst)
			}
			return ""
		}
		if _, err := os.Lstat(before.Path); err == nil {
			return fmt.Sprintf("%s was modified after apply", before.Path)
		}
		if dst == "" || !matchesHash(dst, before.Hash) {
			return "file is at neither its original nor its planned path"
		}
		return u.reverse(ctx, journal.Entry{
			SessionID: entry.SessionID,
			Seq:       entry.Seq,
			Action:    entry.Action,
			Before:    before,
			After:     journal.After{Path: dst, Hash: before.Hash},
		})

	case planner.KindDelete:
		if matchesHash(before.Path, before.Hash) {
			return ""
		}
		return reasonDeleted

	case planner.KindTagWrite:
		if matchesHash(before.Path, before.Hash) {
			return ""
		}
		return u.restoreBlob(entry)

	case planner.KindArtWrite:
		if before.Existed {
			if matchesHash(before.Path, before.Hash) {
				return ""
			}
			return u.restoreBlob(entry)
		}
		if err := os.Remove(before.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Sprintf("remove sidecar failed: %v", err)
		}
		return ""
	}
	return fmt.Sprintf("unsupported action kind %q", entry.Action.Kind)
}

const reasonDeleted = "deleted files cannot be restored"

func matchesHash(path, hash string) bool {
	if hash == "" {
		return false
	}
	got, _, err := fileutil.HashFile(path)
	return err == nil && got == hash
}

func verifyAfter(after journal.After) string {
	if after.Path == "" {
		return "journal has no resulting path"
	}
	hash, _, err := fileutil.HashFile(after.Path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Sprintf("%s no longer exists", after.Path)
		}
		return fmt.Sprintf("cannot read %s: %v", after.Path, err)
	}
	if after.Hash != "" && hash != after.Hash {
		return fmt.Sprintf("%s was modified after apply", after.Path)
	}
	return ""
}

func (u *Undoer) restoreBlob(entry journal.Entry) string {
	if entry.Before.Blob == "" {
		return "journal has no prior content"
	}
	data, err := u.journal.Blobs().Get(entry.Before.Blob)
	if err != nil {
		return fmt.Sprintf("prior content unavailable: %v", err)
	}
	mode := entry.Before.Mode
	if mode == 0 {
		mode = 0o644
		if info, err := os.Stat(entry.Before.Path); err == nil {
			mode = info.Mode().Perm()
		}
	}
	if err := fileutil.WriteFileAtomic(entry.Before.Path, data, mode); err != nil {
		return fmt.Sprintf("restore failed: %v", err)
	}
	return ""
}

func (u *Undoer) prune(dir string) {
	for _, root := range u.roots {
		if fileutil.Within(root, dir) {
			fileutil.PruneEmptyDirs(dir, root)
			return
		}
	}
}
