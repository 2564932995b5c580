package workflow

import (
	"context"
	"fmt"
	"strings"

	"audioclean/internal/duplicates"
	"audioclean/internal/identitycache"
	"audioclean/internal/logging"
	"audioclean/internal/planner"
	"audioclean/internal/services"
)

// GroupView is a duplicate group with the resolved decision for each member.
type GroupView struct {
	// Index is the 1-based position of the group in ID order.
	Index   int                       `json:"index"`
	Group   duplicates.Group          `json:"group"`
	Actions []duplicates.MemberAction `json:"actions"`
}

// Groups detects duplicate groups among the cached records, without
// rescanning, and resolves stored overrides against them.
func (m *Manager) Groups(ctx context.Context) ([]GroupView, error) {
	records, err := m.cache.All(ctx)
	if err != nil {
		return nil, fmt.Errorf("load cached records: %w", err)
	}
	groups, err := m.detect(records)
	if err != nil {
		return nil, err
	}
	overrides, err := m.cache.AllGroupOverrides(ctx)
	if err != nil {
		return nil, fmt.Errorf("load group overrides: %w", err)
	}
	fallback := planner.FallbackDecision(planner.SettingsFromConfig(m.cfg))
	views := make([]GroupView, 0, len(groups))
	for i, g := range groups {
		views = append(views, GroupView{
			Index:   i + 1,
			Group:   g,
			Actions: duplicates.ResolveGroupActions(g, overrides.For(g.ID), fallback),
		})
	}
	return views, nil
}

// Group returns one group by position, ID or ID prefix.
func (m *Manager) Group(ctx context.Context, ref string) (GroupView, error) {
	views, err := m.Groups(ctx)
	if err != nil {
		return GroupView{}, err
	}
	return findView(views, ref)
}

// OverrideRequest sets or clears the decision for group members whose name
// or path matches Pattern.
type OverrideRequest struct {
	Group    string
	Pattern  string
	Decision string
	Template string
	// Clear removes stored decisions instead of setting Decision.
	Clear bool
}

// SetGroupOverride stores the requested decision and returns the group as
// the next plan will see it together with the matched paths.
func (m *Manager) SetGroupOverride(ctx context.Context, req OverrideRequest) (GroupView, []string, error) {
	var (
		view    GroupView
		matched []string
	)
	err := m.withLock(ctx, "group override", func(ctx context.Context) error {
		var decision duplicates.Decision
		if !req.Clear {
			var err error
			if decision, err = duplicates.ParseDecision(req.Decision); err != nil {
				return err
			}
			if decision == duplicates.DecisionRename {
				if _, err := planner.ParseTemplate(req.Template); err != nil {
					return services.Wrap(services.ErrValidation, "group", "template", "rename needs a valid --template", err)
				}
			}
		}
		current, err := m.Group(ctx, req.Group)
		if err != nil {
			return err
		}
		members, err := duplicates.MatchMembers(current.Group, req.Pattern)
		if err != nil {
			return err
		}
		if len(members) == 0 {
			return services.Wrap(services.ErrNotFound, "group", "pattern",
				fmt.Sprintf("no member of group %d matches %q", current.Index, req.Pattern), nil)
		}
		for _, member := range members {
			if req.Clear {
				err = m.cache.DeleteGroupOverride(ctx, current.Group.ID, member.Path)
			} else {
				err = m.cache.UpsertGroupOverride(ctx, identitycache.GroupOverride{
					GroupID:  current.Group.ID,
					Path:     member.Path,
					Decision: string(decision),
					Template: strings.TrimSpace(req.Template),
				})
			}
			if err != nil {
				return fmt.Errorf("store override for %s: %w", member.Path, err)
			}
			matched = append(matched, member.Path)
		}
		logging.WithContext(ctx, m.logger).Info("group override stored",
			logging.String("group_id", current.Group.ID),
			logging.String("decision", string(decision)),
			logging.Bool("cleared", req.Clear),
			logging.Int("members", len(matched)),
		)
		view, err = m.Group(ctx, current.Group.ID)
		return err
	})
	return view, matched, err
}

func findView(views []GroupView, ref string) (GroupView, error) {
	groups := make([]duplicates.Group, len(views))
	for i, v := range views {
		groups[i] = v.Group
	}
	g, err := duplicates.Find(groups, ref)
	if err != nil {
		return GroupView{}, err
	}
	for _, v := range views {
		if v.Group.ID == g.ID {
			return v, nil
		}
	}
	return GroupView{}, services.Wrap(services.ErrNotFound, "group", "lookup", ref, nil)
}
