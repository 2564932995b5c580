package workflow

import (
	"context"

	"audioclean/internal/logging"
	"audioclean/internal/preflight"
)

// Preflight runs environment checks and logs each outcome.
func (m *Manager) Preflight(ctx context.Context) []preflight.Result {
	results := preflight.RunAll(ctx, m.cfg)
	for _, r := range results {
		switch {
		case !r.Passed:
			logging.WarnWithContext(m.logger, "preflight check failed", "preflight_failed",
				logging.String("check", r.Name),
				logging.String("detail", r.Detail),
				logging.String(logging.FieldImpact, "operations depending on this check may fail"),
			)
		case r.Warning:
			logging.WarnWithContext(m.logger, "preflight check warning", "preflight_warning",
				logging.String("check", r.Name),
				logging.String("detail", r.Detail),
			)
		default:
			m.logger.Debug("preflight check passed",
				logging.String("check", r.Name),
				logging.String("detail", r.Detail),
			)
		}
	}
	return results
}
