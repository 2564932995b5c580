package applier

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"audioclean/internal/fileutil"
	"audioclean/internal/identitycache"
	"audioclean/internal/journal"
	"audioclean/internal/logging"
	"audioclean/internal/media"
	"audioclean/internal/planner"
	"audioclean/internal/providers"
	"audioclean/internal/services"
)

// moveFile is swapped in tests to simulate moves that fail partway.
var moveFile = fileutil.Move

// Journal is the subset of the journal store the applier writes to.
type Journal interface {
	BeginSession(ctx context.Context, planID string) (journal.Session, error)
	Append(ctx context.Context, sessionID string, seq int, action planner.Action, before journal.Before, undoable bool) (journal.Entry, error)
	Complete(ctx context.Context, sessionID string, seq int, outcome journal.Outcome, after journal.After, errMsg string) error
	CloseSession(ctx context.Context, sessionID string, status journal.Status) error
	Blobs() *journal.BlobStore
}

// PathUpdater keeps the identity cache keyed by current paths.
type PathUpdater interface {
	Rename(ctx context.Context, from, to string) error
	Remove(ctx context.Context, path string) error
}

// Applier executes plans.
type Applier struct {
	journal    Journal
	logger     *slog.Logger
	tagger     providers.Tagger
	art        providers.ArtProvider
	paths      PathUpdater
	workers    int
	quarantine bool
}

// Option configures an Applier.
type Option func(*Applier)

// WithLogger sets the applier logger.
func WithLogger(logger *slog.Logger) Option {
	return func(a *Applier) { a.logger = logger }
}

// WithTagger sets the tag writer used for tag_write actions.
func WithTagger(t providers.Tagger) Option {
	return func(a *Applier) { a.tagger = t }
}

// WithArtProvider sets the source of art bytes for art_write actions.
func WithArtProvider(p providers.ArtProvider) Option {
	return func(a *Applier) { a.art = p }
}

// WithPathUpdater sets the cache updated after relocations and deletes.
func WithPathUpdater(u PathUpdater) Option {
	return func(a *Applier) { a.paths = u }
}

// WithParallel enables parallel execution of disjoint actions. workers below
// 2 keeps execution sequential.
func WithParallel(workers int) Option {
	return func(a *Applier) { a.workers = workers }
}

// WithQuarantineEnabled tells the applier whether quarantine is configured.
// Delete actions are refused while it is.
func WithQuarantineEnabled(enabled bool) Option {
	return func(a *Applier) { a.quarantine = enabled }
}

// New constructs an Applier writing to j.
func New(j Journal, opts ...Option) *Applier {
	a := &Applier{
		journal:    j,
		tagger:     providers.FileTagger{},
		art:        providers.EmbeddedArtProvider{},
		workers:    1,
		quarantine: true,
	}
	for _, opt := range opts {
		opt(a)
	}
	a.logger = logging.NewComponentLogger(a.logger, "applier")
	return a
}

// Apply runs plan in the given mode. When execution stops early the returned
// error is an *ApplyFailure and the result lists the completed ordinals.
func (a *Applier) Apply(ctx context.Context, plan *planner.Plan, mode Mode) (*Result, error) {
	if plan == nil {
		return nil, services.Wrap(services.ErrValidation, "apply", "plan", "plan is required", nil)
	}
	ctx = services.WithStage(ctx, "apply")
	start := time.Now()
	result := &Result{PlanID: plan.ID, Mode: mode.String(), Completed: []int{}}

	if mode == ModeDryRun {
		for _, action := range plan.Actions {
			result.Actions = append(result.Actions, newActionResult(action, StatusPlanned))
		}
		result.Outcome = services.OutcomeSucceeded
		result.Duration = time.Since(start)
		return result, nil
	}
	if a.journal == nil {
		return nil, services.Wrap(services.ErrConfiguration, "apply", "journal", "journal is required to execute a plan", nil)
	}
	if plan.Empty() {
		result.Outcome = services.OutcomeSucceeded
		return result, nil
	}

	session, err := a.journal.BeginSession(ctx, plan.ID)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "apply", "begin session", "", err)
	}
	result.SessionID = session.ID
	ctx = services.WithSessionID(ctx, session.ID)
	logger := logging.WithContext(ctx, a.logger)
	logger.Info("apply started",
		logging.String(logging.FieldEventType, "apply_start"),
		logging.String("plan_id", plan.ID),
		logging.Int("actions", len(plan.Actions)),
		logging.Int("workers", a.workers),
	)

	runErr := a.execute(ctx, logger, session.ID, plan, result)
	result.Duration = time.Since(start)

	status := journal.StatusCompleted
	failed := 0
	switch {
	case result.Cancelled:
		status = journal.StatusCancelled
	case runErr != nil:
		status = journal.StatusFailed
		failed = 1
	}
	if err := a.journal.CloseSession(context.WithoutCancel(ctx), session.ID, status); err != nil {
		logging.WarnWithContext(logger, "failed to close journal session", "journal_close_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "session stays open in journal listings"),
		)
	}
	if result.Cancelled {
		failed = 1
	}
	result.Outcome = services.OutcomeFor(len(result.Completed), failed)

	logger.Info("apply finished",
		logging.String(logging.FieldEventType, "apply_complete"),
		logging.String("outcome", string(result.Outcome)),
		logging.Int("completed", len(result.Completed)),
		logging.Bool("cancelled", result.Cancelled),
		logging.Duration("duration", result.Duration),
	)
	if runErr != nil {
		return result, runErr
	}
	return result, nil
}

// step carries one action through preparation, execution and completion.
type step struct {
	action   planner.Action
	before   journal.Before
	undoable bool
	artData  []byte
	after    journal.After
	err      error
}

func (a *Applier) execute(ctx context.Context, logger *slog.Logger, sessionID string, plan *planner.Plan, result *Result) error {
	for _, batch := range a.batches(plan.Actions) {
		if err := ctx.Err(); err != nil {
			result.Cancelled = true
			logging.WarnWithContext(logger, "apply cancelled between actions", "apply_cancelled",
				logging.Int("completed", len(result.Completed)),
				logging.String(logging.FieldImpact, "remaining actions were not run"),
				logging.String(logging.FieldErrorHint, "undo the session or re-plan and apply again"),
			)
			return err
		}

		var (
			steps   []*step
			prepErr error
			prepAt  planner.Action
		)
		for _, action := range batch {
			st, err := a.prepare(ctx, action)
			if err != nil {
				prepErr, prepAt = err, action
				break
			}
			steps = append(steps, st)
		}

		for _, st := range steps {
			if _, err := a.journal.Append(ctx, sessionID, st.action.Ordinal, st.action, st.before, st.undoable); err != nil {
				return a.fail(logger, result, st.action, "journal write failed", err)
			}
		}
		a.run(ctx, plan.Roots, steps)

		var failed *step
		for _, st := range steps {
			outcome, msg := journal.OutcomeApplied, ""
			if st.err != nil {
				outcome, msg = journal.OutcomeFailed, st.err.Error()
			}
			if err := a.journal.Complete(context.WithoutCancel(ctx), sessionID, st.action.Ordinal, outcome, st.after, msg); err != nil && st.err == nil {
				st.err = fmt.Errorf("journal completion: %w", err)
			}
			if st.err != nil {
				ar := newActionResult(st.action, StatusFailed)
				ar.Error = st.err.Error()
				result.Actions = append(result.Actions, ar)
				if failed == nil {
					failed = st
				}
				continue
			}
			ar := newActionResult(st.action, StatusApplied)
			ar.Copied = st.after.Copied
			result.Actions = append(result.Actions, ar)
			result.Completed = append(result.Completed, st.action.Ordinal)
			logger.Debug("action applied",
				logging.Int(logging.FieldOrdinal, st.action.Ordinal),
				logging.String(logging.FieldActionKind, string(st.action.Kind)),
				logging.String(logging.FieldPath, st.action.Source),
				logging.String("destination", st.action.Destination),
			)
		}
		// Steps of a parallel batch that succeeded after the first failure
		// still count as completed.
		if failed != nil {
			return a.fail(logger, result, failed.action, "action failed", failed.err)
		}
		if prepErr != nil {
			reason := "precondition failed"
			var stale *StaleSourceError
			if errors.As(prepErr, &stale) {
				reason = "source changed since planning"
			}
			ar := newActionResult(prepAt, StatusFailed)
			ar.Error = prepErr.Error()
			result.Actions = append(result.Actions, ar)
			return a.fail(logger, result, prepAt, reason, prepErr)
		}
	}
	return nil
}

func (a *Applier) fail(logger *slog.Logger, result *Result, action planner.Action, reason string, err error) error {
	failure := &ApplyFailure{
		Ordinal:   action.Ordinal,
		Action:    action,
		Reason:    reason,
		Completed: append([]int(nil), result.Completed...),
		Err:       err,
	}
	result.Failure = failure
	logging.ErrorWithContext(logger, "apply stopped", "apply_failed",
		logging.Int(logging.FieldOrdinal, action.Ordinal),
		logging.String(logging.FieldActionKind, string(action.Kind)),
		logging.String(logging.FieldPath, action.Source),
		logging.String("reason", reason),
		logging.Error(err),
		logging.String(logging.FieldImpact, "later actions were not run"),
		logging.String(logging.FieldErrorHint, "inspect with 'audioclean journal show' and undo or re-plan"),
	)
	return failure
}

// run performs the mutations of a prepared batch, concurrently when the
// batch holds more than one step. Directories emptied by the batch are
// pruned once every step has finished.
func (a *Applier) run(ctx context.Context, roots []string, steps []*step) {
	if len(steps) == 1 {
		a.mutate(ctx, steps[0])
	} else {
		sem := make(chan struct{}, max(a.workers, 1))
		var wg sync.WaitGroup
		for _, st := range steps {
			wg.Add(1)
			sem <- struct{}{}
			go func() {
				defer wg.Done()
				defer func() { <-sem }()
				a.mutate(ctx, st)
			}()
		}
		wg.Wait()
	}
	for _, st := range steps {
		if st.err == nil && (st.action.Relocates() || st.action.Kind == planner.KindDelete) {
			pruneSource(roots, st.action.Source)
		}
	}
}

// prepare validates an action against the file system and captures the
// state needed to reverse it.
func (a *Applier) prepare(ctx context.Context, action planner.Action) (*step, error) {
	st := &step{action: action, undoable: true}
	switch action.Kind {
	case planner.KindRename, planner.KindMove, planner.KindQuarantine:
		if action.Destination == "" {
			return nil, services.Wrap(services.ErrValidation, "apply", "prepare", fmt.Sprintf("action #%d has no destination", action.Ordinal), nil)
		}
		size, hash, err := a.checkSource(action)
		if err != nil {
			return nil, err
		}
		st.before = journal.Before{Path: action.Source, Existed: true, Size: size, Hash: hash}

	case planner.KindDelete:
		if a.quarantine {
			return nil, services.Wrap(services.ErrValidation, "apply", "prepare",
				"delete actions are refused while quarantine is enabled", nil)
		}
		size, hash, err := a.checkSource(action)
		if err != nil {
			return nil, err
		}
		st.before = journal.Before{Path: action.Source, Existed: true, Size: size, Hash: hash}
		st.undoable = false

	case planner.KindTagWrite:
		if action.Tags == nil {
			return nil, services.Wrap(services.ErrValidation, "apply", "prepare", fmt.Sprintf("action #%d has no tags", action.Ordinal), nil)
		}
		data, err := os.ReadFile(action.Source)
		if err != nil {
			return nil, staleOrError(action, err)
		}
		hash := fileutil.HashBytes(data)
		if err := compareSnapshot(action, int64(len(data)), hash); err != nil {
			return nil, err
		}
		info, err := os.Stat(action.Source)
		if err != nil {
			return nil, staleOrError(action, err)
		}
		blob, err := a.journal.Blobs().Put(data)
		if err != nil {
			return nil, err
		}
		st.before = journal.Before{Path: action.Source, Existed: true, Size: int64(len(data)), Hash: hash, Blob: blob, Mode: info.Mode().Perm()}

	case planner.KindArtWrite:
		if action.Art == nil || action.Destination == "" {
			return nil, services.Wrap(services.ErrValidation, "apply", "prepare", fmt.Sprintf("action #%d has no art reference", action.Ordinal), nil)
		}
		art, err := a.art.FetchArt(ctx, identitycache.FileRecord{Path: action.Source, Container: media.ContainerFor(action.Source)})
		if err != nil {
			return nil, err
		}
		if art == nil || art.Hash() != action.Art.Hash {
			return nil, &StaleSourceError{Ordinal: action.Ordinal, Path: action.Source, Detail: "album art differs from the planned image"}
		}
		st.artData = art.Data
		st.before = journal.Before{Path: action.Destination}
		if prior, err := os.ReadFile(action.Destination); err == nil {
			blob, err := a.journal.Blobs().Put(prior)
			if err != nil {
				return nil, err
			}
			st.before = journal.Before{Path: action.Destination, Existed: true, Size: int64(len(prior)), Hash: blob, Blob: blob}
			if info, err := os.Stat(action.Destination); err == nil {
				st.before.Mode = info.Mode().Perm()
			}
		} else if !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("read existing sidecar: %w", err)
		}

	default:
		return nil, services.Wrap(services.ErrValidation, "apply", "prepare", fmt.Sprintf("unknown action kind %q", action.Kind), nil)
	}
	return st, nil
}

func (a *Applier) checkSource(action planner.Action) (int64, string, error) {
	hash, size, err := fileutil.HashFile(action.Source)
	if err != nil {
		return 0, "", staleOrError(action, err)
	}
	if err := compareSnapshot(action, size, hash); err != nil {
		return 0, "", err
	}
	return size, hash, nil
}

func compareSnapshot(action planner.Action, size int64, hash string) error {
	if action.Snapshot == nil {
		return nil
	}
	if action.Snapshot.Size != size || action.Snapshot.Hash != hash {
		return &StaleSourceError{
			Ordinal:  action.Ordinal,
			Path:     action.Source,
			Expected: *action.Snapshot,
			Actual:   planner.Snapshot{Size: size, Hash: hash},
		}
	}
	return nil
}

func staleOrError(action planner.Action, err error) error {
	if errors.Is(err, os.ErrNotExist) {
		return &StaleSourceError{Ordinal: action.Ordinal, Path: action.Source, Missing: true}
	}
	return fmt.Errorf("read source %s: %w", action.Source, err)
}

// mutate performs one prepared action and records its after-state.
func (a *Applier) mutate(ctx context.Context, st *step) {
	action := st.action
	switch action.Kind {
	case planner.KindRename, planner.KindMove, planner.KindQuarantine:
		res, err := moveFile(action.Source, action.Destination)
		if err != nil {
			st.err = err
			st.after = landedCopy(action.Destination, st.before.Hash, res, err)
			return
		}
		st.after = journal.After{Path: action.Destination, Hash: st.before.Hash, Copied: res.Copied}
		a.updatePath(ctx, action.Source, action.Destination)

	case planner.KindDelete:
		if err := os.Remove(action.Source); err != nil {
			st.err = fmt.Errorf("delete %s: %w", action.Source, err)
			return
		}
		a.updatePath(ctx, action.Source, "")

	case planner.KindTagWrite:
		if _, err := a.tagger.WriteTags(ctx, action.Source, *action.Tags); err != nil {
			st.err = err
			return
		}
		hash, _, err := fileutil.HashFile(action.Source)
		if err != nil {
			st.err = fmt.Errorf("hash after tag write: %w", err)
			return
		}
		st.after = journal.After{Path: action.Source, Hash: hash}

	case planner.KindArtWrite:
		if err := os.MkdirAll(filepath.Dir(action.Destination), 0o755); err != nil {
			st.err = fmt.Errorf("create sidecar directory: %w", err)
			return
		}
		if err := fileutil.WriteFileAtomic(action.Destination, st.artData, 0o644); err != nil {
			st.err = err
			return
		}
		st.after = journal.After{Path: action.Destination, Hash: fileutil.HashBytes(st.artData)}
	}
}

// landedCopy returns the after-state of a move that failed once the
// destination already held the source bytes, such as a cross-device copy
// whose source removal failed. It is empty when nothing reached dst.
func landedCopy(dst, hash string, res fileutil.MoveResult, err error) journal.After {
	if errors.Is(err, fileutil.ErrDestinationExists) {
		return journal.After{}
	}
	got, _, herr := fileutil.HashFile(dst)
	if herr != nil || got != hash {
		return journal.After{}
	}
	return journal.After{Path: dst, Hash: got, Copied: res.Copied}
}

func (a *Applier) updatePath(ctx context.Context, from, to string) {
	if a.paths == nil {
		return
	}
	var err error
	if to == "" {
		err = a.paths.Remove(ctx, from)
	} else {
		err = a.paths.Rename(ctx, from, to)
	}
	if err != nil {
		logging.WarnWithContext(a.logger, "identity cache path update failed", "cache_update_failed",
			logging.String(logging.FieldPath, from),
			logging.Error(err),
			logging.String(logging.FieldImpact, "next scan rehashes the moved file"),
		)
	}
}

// pruneSource removes directories emptied by a relocation, stopping at the
// library root that contained the source.
func pruneSource(roots []string, source string) {
	for _, root := range roots {
		if fileutil.Within(root, source) {
			fileutil.PruneEmptyDirs(filepath.Dir(source), root)
			return
		}
	}
}

func newActionResult(action planner.Action, status Status) ActionResult {
	return ActionResult{
		Ordinal:     action.Ordinal,
		Kind:        action.Kind,
		Source:      action.Source,
		Destination: action.Destination,
		Description: action.Describe(),
		Status:      status,
	}
}
