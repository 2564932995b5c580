package duplicates_test

import (
	"errors"
	"testing"

	"audioclean/internal/duplicates"
	"audioclean/internal/identitycache"
	"audioclean/internal/services"
)

func exactGroup(t *testing.T, paths ...string) duplicates.Group {
	t.Helper()
	var records []identitycache.FileRecord
	for _, p := range paths {
		records = append(records, rec(p, "h1", 100))
	}
	groups := duplicates.Detect(records, duplicates.Options{Policy: duplicates.KeepPathPriority})
	if len(groups) != 1 {
		t.Fatalf("expected one group, got %d", len(groups))
	}
	return groups[0]
}

func TestResolveGroupActionsDefaultsAndOverrides(t *testing.T) {
	g := exactGroup(t, "/lib/a.flac", "/lib/b.flac", "/lib/c.flac")
	overrides := map[string]identitycache.GroupOverride{
		"/lib/c.flac": {GroupID: g.ID, Path: "/lib/c.flac", Decision: "MARK-REVIEW"},
		"/lib/x.flac": {GroupID: g.ID, Path: "/lib/x.flac", Decision: "delete"},
	}
	actions := duplicates.ResolveGroupActions(g, overrides, duplicates.DecisionQuarantine)
	want := []struct {
		path     string
		decision duplicates.Decision
		override bool
	}{
		{"/lib/a.flac", duplicates.DecisionKeep, false},
		{"/lib/b.flac", duplicates.DecisionQuarantine, false},
		{"/lib/c.flac", duplicates.DecisionReview, true},
	}
	if len(actions) != len(want) {
		t.Fatalf("expected %d actions, got %+v", len(want), actions)
	}
	for i, w := range want {
		a := actions[i]
		if a.Record.Path != w.path || a.Decision != w.decision || a.Override != w.override {
			t.Fatalf("action %d = %+v, want %+v", i, a, w)
		}
	}
}

func TestResolveGroupActionsKeepsCanonicalWhenAllWouldGo(t *testing.T) {
	g := exactGroup(t, "/lib/a.flac", "/lib/b.flac")
	overrides := map[string]identitycache.GroupOverride{
		"/lib/a.flac": {Decision: "delete"},
	}
	actions := duplicates.ResolveGroupActions(g, overrides, duplicates.DecisionDelete)
	if actions[0].Decision != duplicates.DecisionKeep || actions[1].Decision != duplicates.DecisionDelete {
		t.Fatalf("canonical should be kept: %+v", actions)
	}
}

func TestParseDecision(t *testing.T) {
	if d, err := duplicates.ParseDecision(" Review "); err != nil || d != duplicates.DecisionReview {
		t.Fatalf("ParseDecision(review) = %q, %v", d, err)
	}
	if _, err := duplicates.ParseDecision("burn"); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if duplicates.DecisionKeep.Confidence() != 1 || duplicates.DecisionSkip.Confidence() != 0 {
		t.Fatal("unexpected decision confidence")
	}
}

func TestFindAndMatchMembers(t *testing.T) {
	groups := duplicates.Detect([]identitycache.FileRecord{
		rec("/lib/a.flac", "aaa111", 1),
		rec("/lib/b.mp3", "aaa111", 1),
		rec("/lib/c.flac", "aab222", 1),
		rec("/lib/d.flac", "aab222", 1),
	}, duplicates.Options{})

	if g, err := duplicates.Find(groups, "2"); err != nil || g.ID != "aab222" {
		t.Fatalf("Find by position = %+v, %v", g, err)
	}
	if g, err := duplicates.Find(groups, "aaa"); err != nil || g.ID != "aaa111" {
		t.Fatalf("Find by prefix = %+v, %v", g, err)
	}
	if _, err := duplicates.Find(groups, "aa"); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("ambiguous prefix should fail validation, got %v", err)
	}
	if _, err := duplicates.Find(groups, "zzz"); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("unknown group should be not found, got %v", err)
	}

	matched, err := duplicates.MatchMembers(groups[0], "*.mp3")
	if err != nil || len(matched) != 1 || matched[0].Path != "/lib/b.mp3" {
		t.Fatalf("MatchMembers = %+v, %v", matched, err)
	}
	if _, err := duplicates.MatchMembers(groups[0], "[bad"); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected invalid pattern error, got %v", err)
	}
}
