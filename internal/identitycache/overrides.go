package identitycache

import (
	"context"
	"fmt"
	"time"

	"audioclean/internal/sqliteutil"
)

// GroupOverride is a user decision for one member of a duplicate group. It
// replaces the decision the dedupe strategy would make for Path.
type GroupOverride struct {
	GroupID  string `json:"group_id"`
	Path     string `json:"path"`
	Decision string `json:"decision"`
	// Template is the rename layout for rename decisions.
	Template  string    `json:"template,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

// GroupOverrides maps group ID to the overrides of its members keyed by path.
type GroupOverrides map[string]map[string]GroupOverride

// For returns the overrides recorded for groupID, keyed by path.
func (o GroupOverrides) For(groupID string) map[string]GroupOverride {
	return o[groupID]
}

const overrideColumns = "group_id, path, decision, template, updated_at"

// UpsertGroupOverride records or replaces the decision for one group member.
func (s *Store) UpsertGroupOverride(ctx context.Context, o GroupOverride) error {
	if o.GroupID == "" || o.Path == "" || o.Decision == "" {
		return fmt.Errorf("group override requires group, path and decision")
	}
	updated := o.UpdatedAt
	if updated.IsZero() {
		updated = time.Now()
	}
	return s.exec(ctx, `INSERT INTO group_overrides (`+overrideColumns+`)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT(group_id, path) DO UPDATE SET
    decision = excluded.decision,
    template = excluded.template,
    updated_at = excluded.updated_at`,
		o.GroupID, o.Path, o.Decision, o.Template, updated.UTC().Format(time.RFC3339Nano))
}

// DeleteGroupOverride drops the decision for one group member. Missing rows
// are ignored.
func (s *Store) DeleteGroupOverride(ctx context.Context, groupID, path string) error {
	return s.exec(ctx, "DELETE FROM group_overrides WHERE group_id = ? AND path = ?", groupID, path)
}

// GroupOverridesFor returns the overrides of one group keyed by member path.
func (s *Store) GroupOverridesFor(ctx context.Context, groupID string) (map[string]GroupOverride, error) {
	all, err := s.queryOverrides(ctx, "SELECT "+overrideColumns+" FROM group_overrides WHERE group_id = ? ORDER BY path", groupID)
	if err != nil {
		return nil, err
	}
	return all.For(groupID), nil
}

// AllGroupOverrides returns every stored override.
func (s *Store) AllGroupOverrides(ctx context.Context) (GroupOverrides, error) {
	return s.queryOverrides(ctx, "SELECT "+overrideColumns+" FROM group_overrides ORDER BY group_id, path")
}

func (s *Store) queryOverrides(ctx context.Context, query string, args ...any) (GroupOverrides, error) {
	ctx = sqliteutil.EnsureContext(ctx)
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query group overrides: %w", err)
	}
	defer rows.Close()

	out := GroupOverrides{}
	for rows.Next() {
		var (
			o       GroupOverride
			updated string
		)
		if err := rows.Scan(&o.GroupID, &o.Path, &o.Decision, &o.Template, &updated); err != nil {
			return nil, fmt.Errorf("scan group override: %w", err)
		}
		if ts, err := time.Parse(time.RFC3339Nano, updated); err == nil {
			o.UpdatedAt = ts
		}
		if out[o.GroupID] == nil {
			out[o.GroupID] = map[string]GroupOverride{}
		}
		out[o.GroupID][o.Path] = o
	}
	return out, rows.Err()
}
