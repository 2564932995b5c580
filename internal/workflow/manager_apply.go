package workflow

import (
	"context"
	"fmt"

	"audioclean/internal/applier"
	"audioclean/internal/identitycache"
	"audioclean/internal/journal"
	"audioclean/internal/logging"
	"audioclean/internal/planner"
	"audioclean/internal/services"
	"audioclean/internal/undo"
)

// ApplyOptions customizes plan execution.
type ApplyOptions struct {
	DryRun bool
	// Parallel overrides apply.parallel from the configuration when set.
	Parallel *bool
}

// Apply executes plan against the library under the run lock.
func (m *Manager) Apply(ctx context.Context, plan *planner.Plan, opts ApplyOptions) (*applier.Result, error) {
	if plan == nil {
		return nil, services.Wrap(services.ErrValidation, "apply", "plan", "plan is required", nil)
	}
	mode := applier.ModeExecute
	if opts.DryRun {
		mode = applier.ModeDryRun
	}
	var result *applier.Result
	err := m.withLock(ctx, "apply", func(ctx context.Context) error {
		m.warnIfDrifted(ctx, plan)
		a := applier.New(m.journal,
			applier.WithLogger(m.logger),
			applier.WithPathUpdater(m.cache),
			applier.WithQuarantineEnabled(m.cfg.Apply.QuarantineEnabled),
			applier.WithParallel(m.applyWorkers(opts.Parallel)),
		)
		var err error
		result, err = a.Apply(ctx, plan, mode)
		return err
	})
	return result, err
}

// ApplyFile loads a plan artifact and applies it.
func (m *Manager) ApplyFile(ctx context.Context, path string, opts ApplyOptions) (*applier.Result, error) {
	plan, err := planner.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return m.Apply(ctx, plan, opts)
}

func (m *Manager) applyWorkers(override *bool) int {
	parallel := m.cfg.Apply.Parallel
	if override != nil {
		parallel = *override
	}
	if !parallel {
		return 1
	}
	return max(m.cfg.Apply.ParallelWorkers, 2)
}

// warnIfDrifted compares the cached library with the one the plan was built
// from. Per-action snapshots still guard every mutation.
func (m *Manager) warnIfDrifted(ctx context.Context, plan *planner.Plan) {
	if plan.LibraryFingerprint == "" {
		return
	}
	var records []identitycache.FileRecord
	for _, root := range plan.Roots {
		snap, err := m.cache.Snapshot(ctx, root)
		if err != nil {
			m.logger.Debug("library drift check skipped", logging.Error(err))
			return
		}
		records = append(records, snap...)
	}
	if current := planner.LibraryFingerprint(records); current != plan.LibraryFingerprint {
		logging.WarnWithContext(m.logger, "library changed since planning", "plan_drift",
			logging.String("plan_id", plan.ID),
			logging.String(logging.FieldImpact, "actions whose sources changed will stop the run"),
			logging.String(logging.FieldErrorHint, "rerun plan to pick up the current library state"),
		)
	}
}

// Undo reverses a journal session. An empty target or "last" selects the
// most recent session.
func (m *Manager) Undo(ctx context.Context, target string) (*undo.Result, error) {
	var result *undo.Result
	err := m.withLock(ctx, "undo", func(ctx context.Context) error {
		prune := append([]string(nil), m.cfg.Paths.LibraryRoots...)
		if m.cfg.Paths.QuarantineDir != "" {
			prune = append(prune, m.cfg.Paths.QuarantineDir)
		}
		if m.cfg.Planner.DupeDir != "" {
			prune = append(prune, m.cfg.Planner.DupeDir)
		}
		u := undo.New(m.journal,
			undo.WithLogger(m.logger),
			undo.WithPathUpdater(m.cache),
			undo.WithPruneRoots(prune...),
		)
		var err error
		result, err = u.Undo(ctx, target)
		return err
	})
	return result, err
}

// Sessions lists journal sessions, newest first.
func (m *Manager) Sessions(ctx context.Context) ([]journal.Session, error) {
	return m.journal.Sessions(ctx)
}

// Session returns one session with its entries.
func (m *Manager) Session(ctx context.Context, id string) (journal.Session, []journal.Entry, error) {
	session, err := m.journal.Session(ctx, id)
	if err != nil {
		return journal.Session{}, nil, err
	}
	entries, err := m.journal.Entries(ctx, session.ID)
	if err != nil {
		return journal.Session{}, nil, fmt.Errorf("load entries: %w", err)
	}
	return session, entries, nil
}

// CacheStats summarizes the identity cache.
func (m *Manager) CacheStats(ctx context.Context) (identitycache.Stats, error) {
	return m.cache.Stats(ctx)
}

// ClearCache drops every cached identity. The next scan rehashes everything.
func (m *Manager) ClearCache(ctx context.Context) error {
	return m.withLock(ctx, "cache_clear", func(ctx context.Context) error {
		return m.cache.Clear(ctx)
	})
}
