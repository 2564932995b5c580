package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/gofrs/flock"

	"audioclean/internal/config"
	"audioclean/internal/identitycache"
	"audioclean/internal/journal"
	"audioclean/internal/logging"
	"audioclean/internal/services"
)

// Manager coordinates audioclean operations for one configuration.
type Manager struct {
	cfg     *config.Config
	logger  *slog.Logger
	cache   *identitycache.Store
	journal *journal.Store
	lock    *flock.Flock
}

// Open prepares state directories, prunes old run logs and opens the
// identity cache and journal.
func Open(cfg *config.Config, logger *slog.Logger) (*Manager, error) {
	if cfg == nil {
		return nil, services.Wrap(services.ErrConfiguration, "workflow", "open", "configuration is required", nil)
	}
	logger = logging.NewComponentLogger(logger, "workflow")
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "workflow", "open", "prepare state directories", err)
	}
	if removed := logging.CleanupOldLogs(logger, cfg.Paths.LogDir, logging.RunLogPattern, cfg.Logging.RetentionDays); removed > 0 {
		logger.Debug("old run logs pruned", logging.Int("removed", removed))
	}

	cache, err := identitycache.Open(cfg.CachePath(), logger)
	if err != nil {
		return nil, fmt.Errorf("open identity cache: %w", err)
	}
	j, err := journal.Open(cfg.JournalPath(), logger)
	if err != nil {
		_ = cache.Close()
		return nil, fmt.Errorf("open journal: %w", err)
	}
	return &Manager{
		cfg:     cfg,
		logger:  logger,
		cache:   cache,
		journal: j,
		lock:    flock.New(cfg.LockPath()),
	}, nil
}

// Close releases the stores.
func (m *Manager) Close() error {
	if m == nil {
		return nil
	}
	return errors.Join(m.cache.Close(), m.journal.Close())
}

// Config returns the manager configuration.
func (m *Manager) Config() *config.Config { return m.cfg }

// Cache exposes the identity cache.
func (m *Manager) Cache() *identitycache.Store { return m.cache }

// Journal exposes the journal store.
func (m *Manager) Journal() *journal.Store { return m.journal }

// withLock runs fn while holding the exclusive run lock.
func (m *Manager) withLock(ctx context.Context, op string, fn func(context.Context) error) error {
	ok, err := m.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire run lock: %w", err)
	}
	if !ok {
		return services.Wrap(services.ErrConflict, "workflow", op,
			fmt.Sprintf("another audioclean process holds %s", m.lock.Path()), nil)
	}
	defer func() {
		if err := m.lock.Unlock(); err != nil {
			m.logger.Warn("failed to release run lock",
				logging.String(logging.FieldEventType, "lock_release_failed"),
				logging.Error(err),
				logging.String(logging.FieldImpact, "the lock file is released when the process exits"),
			)
		}
	}()

	start := time.Now()
	ctx = services.WithStage(ctx, op)
	err = fn(ctx)
	logging.WithContext(ctx, m.logger).Debug("operation finished",
		logging.String("operation", op),
		logging.Duration("duration", time.Since(start)),
		logging.Bool("ok", err == nil),
	)
	return err
}
