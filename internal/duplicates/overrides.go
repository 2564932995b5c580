package duplicates

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"audioclean/internal/identitycache"
	"audioclean/internal/services"
)

// Decision is what happens to one group member.
type Decision string

const (
	DecisionKeep       Decision = "keep"
	DecisionSkip       Decision = "skip"
	DecisionDelete     Decision = "delete"
	DecisionMove       Decision = "move"
	DecisionQuarantine Decision = "quarantine"
	DecisionRename     Decision = "rename"
	DecisionReview     Decision = "mark-review"
)

// ParseDecision validates a decision name. "review" is accepted for
// mark-review.
func ParseDecision(value string) (Decision, error) {
	switch d := Decision(strings.ToLower(strings.TrimSpace(value))); d {
	case DecisionKeep, DecisionSkip, DecisionDelete, DecisionMove, DecisionQuarantine, DecisionRename, DecisionReview:
		return d, nil
	case "review":
		return DecisionReview, nil
	default:
		return "", services.Wrap(services.ErrValidation, "duplicates", "decision", fmt.Sprintf("unknown decision %q", value), nil)
	}
}

// Removes reports whether the decision takes the file out of the library.
func (d Decision) Removes() bool {
	switch d {
	case DecisionDelete, DecisionMove, DecisionQuarantine:
		return true
	}
	return false
}

// Confidence is the certainty reported for a decision in exports.
func (d Decision) Confidence() float64 {
	switch d {
	case DecisionKeep:
		return 1
	case DecisionDelete, DecisionMove, DecisionQuarantine:
		return 0.99
	case DecisionRename:
		return 0.8
	case DecisionReview:
		return 0.5
	default:
		return 0
	}
}

// MemberAction is the resolved decision for one group member.
type MemberAction struct {
	Record   identitycache.FileRecord `json:"record"`
	Decision Decision                 `json:"decision"`
	Template string                   `json:"template,omitempty"`
	// Override is true when a stored user decision replaced the default.
	Override bool `json:"override"`
}

// ResolveGroupActions decides the fate of every member of g. The canonical
// member is kept and the others get fallback, unless overrides name a
// decision for their path. When the overrides would remove every member the
// canonical one is kept regardless.
func ResolveGroupActions(g Group, overrides map[string]identitycache.GroupOverride, fallback Decision) []MemberAction {
	out := make([]MemberAction, 0, len(g.Members))
	survivors := 0
	for _, m := range g.Members {
		action := MemberAction{Record: m, Decision: fallback}
		if m.Path == g.Canonical.Path {
			action.Decision = DecisionKeep
		}
		if o, ok := overrides[m.Path]; ok {
			if d, err := ParseDecision(o.Decision); err == nil {
				action.Decision = d
				action.Template = o.Template
				action.Override = true
			}
		}
		if !action.Decision.Removes() {
			survivors++
		}
		out = append(out, action)
	}
	if survivors == 0 {
		for i := range out {
			if out[i].Record.Path == g.Canonical.Path {
				out[i].Decision = DecisionKeep
				out[i].Template = ""
			}
		}
	}
	return out
}

// Find returns the group named by ref: a 1-based position in groups, a full
// group ID, or an unambiguous ID prefix. Numbers are always positions.
func Find(groups []Group, ref string) (Group, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return Group{}, services.Wrap(services.ErrValidation, "duplicates", "group", "group reference is required", nil)
	}
	if n, err := strconv.Atoi(ref); err == nil && n >= 1 && n <= len(groups) {
		return groups[n-1], nil
	}
	var matches []Group
	for _, g := range groups {
		if g.ID == ref {
			return g, nil
		}
		if strings.HasPrefix(g.ID, ref) {
			matches = append(matches, g)
		}
	}
	switch len(matches) {
	case 1:
		return matches[0], nil
	case 0:
		return Group{}, services.Wrap(services.ErrNotFound, "duplicates", "group", fmt.Sprintf("no duplicate group %s", ref), nil)
	default:
		return Group{}, services.Wrap(services.ErrValidation, "duplicates", "group", fmt.Sprintf("group prefix %s matches %d groups", ref, len(matches)), nil)
	}
}

// MatchMembers returns the members of g whose base name or full path matches
// the glob pattern.
func MatchMembers(g Group, pattern string) ([]identitycache.FileRecord, error) {
	if _, err := filepath.Match(pattern, ""); err != nil {
		return nil, services.Wrap(services.ErrValidation, "duplicates", "pattern", fmt.Sprintf("invalid pattern %q", pattern), err)
	}
	var out []identitycache.FileRecord
	for _, m := range g.Members {
		base, _ := filepath.Match(pattern, filepath.Base(m.Path))
		full, _ := filepath.Match(pattern, m.Path)
		if base || full || pattern == m.Path {
			out = append(out, m)
		}
	}
	return out, nil
}
