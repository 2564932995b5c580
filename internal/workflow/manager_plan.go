package workflow

import (
	"context"
	"strings"

	"audioclean/internal/logging"
	"audioclean/internal/planner"
	"audioclean/internal/providers"
	"audioclean/internal/scanner"
	"audioclean/internal/services"
)

// PlanOptions customizes plan construction.
type PlanOptions struct {
	ScanOptions
	// OverridesPath points at a YAML file of per-path tag overrides.
	OverridesPath string
}

// PlanRun is a freshly built plan with the scan it was computed from.
type PlanRun struct {
	Scan *scanner.Report
	Plan *planner.Plan
}

// Plan rescans the library, groups duplicates and builds a plan. The library
// is not modified.
func (m *Manager) Plan(ctx context.Context, opts PlanOptions) (*PlanRun, error) {
	var out *PlanRun
	err := m.withLock(ctx, "plan", func(ctx context.Context) error {
		resolver, err := m.resolver(opts.OverridesPath)
		if err != nil {
			return err
		}
		rep, err := m.scan(ctx, opts.ScanOptions)
		if err != nil {
			return err
		}
		groups, err := m.detect(rep.Records)
		if err != nil {
			return err
		}

		overrides, err := m.cache.AllGroupOverrides(ctx)
		if err != nil {
			return services.Wrap(services.ErrTransient, "plan", "group overrides", "", err)
		}

		in := planner.Input{
			Records:        rep.Records,
			Groups:         groups,
			Roots:          scannedRoots(rep),
			Settings:       planner.SettingsFromConfig(m.cfg),
			Resolver:       resolver,
			GroupOverrides: overrides,
		}
		if m.cfg.Art.Enabled {
			in.Art = providers.EmbeddedArtProvider{}
		}
		plan, err := planner.New(planner.WithLogger(m.logger)).Build(ctx, in)
		if err != nil {
			return err
		}
		m.logger.Info("plan built",
			logging.String("plan_id", plan.ID),
			logging.Int("actions", plan.Summary.Actions),
			logging.Int("duplicate_groups", plan.Summary.DuplicateGroups),
			logging.Int("needs_review", plan.Summary.NeedsReview),
			logging.Int("conflicts", plan.Summary.Conflicts),
		)
		out = &PlanRun{Scan: rep, Plan: plan}
		return nil
	})
	return out, err
}

// resolver chains overrides ahead of embedded tags. Offline mode only
// silences the embedded resolver; explicit overrides are always honoured.
func (m *Manager) resolver(overridesPath string) (providers.Resolver, error) {
	chain := providers.Chain{}
	if path := strings.TrimSpace(overridesPath); path != "" {
		overrides, err := providers.LoadOverrides(path)
		if err != nil {
			return nil, err
		}
		chain = append(chain, overrides)
	}
	chain = append(chain, providers.WithBudget(providers.EmbeddedResolver{}, providers.Budget{
		Offline: m.cfg.Planner.Offline,
	}))
	return chain, nil
}
