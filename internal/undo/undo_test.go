package undo_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"audioclean/internal/applier"
	"audioclean/internal/fileutil"
	"audioclean/internal/identitycache"
	"audioclean/internal/journal"
	"audioclean/internal/media/tags"
	"audioclean/internal/planner"
	"audioclean/internal/providers"
	"audioclean/internal/services"
	"audioclean/internal/testsupport"
	"audioclean/internal/undo"
)

type env struct {
	root    string
	journal *journal.Store
}

func newEnv(t *testing.T) env {
	t.Helper()
	base := t.TempDir()
	root := filepath.Join(base, "lib")
	if err := os.MkdirAll(root, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	return env{root: root, journal: testsupport.MustOpenJournal(t, filepath.Join(base, "journal", "journal.db"))}
}

func snapshot(t *testing.T, path string) *planner.Snapshot {
	t.Helper()
	hash, size, err := fileutil.HashFile(path)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	return &planner.Snapshot{Size: size, Hash: hash}
}

func apply(t *testing.T, e env, actions []planner.Action, opts ...applier.Option) (*applier.Result, error) {
	t.Helper()
	plan := &planner.Plan{Version: planner.ArtifactVersion, ID: "p", Roots: []string{e.root}, Actions: actions}
	return applier.New(e.journal, opts...).Apply(context.Background(), plan, applier.ModeExecute)
}

func TestUndoReversesOnlyAppliedEntries(t *testing.T) {
	e := newEnv(t)
	one := filepath.Join(e.root, "in", "one.mp3")
	two := filepath.Join(e.root, "in", "two.mp3")
	testsupport.WriteFile(t, one, 16, '1')
	testsupport.WriteFile(t, two, 16, '2')
	movedOne := filepath.Join(e.root, "out", "one.mp3")
	blocked := filepath.Join(e.root, "out", "two.mp3")

	actions := []planner.Action{
		{Ordinal: 1, Kind: planner.KindMove, Source: one, Destination: movedOne, Snapshot: snapshot(t, one)},
		{Ordinal: 2, Kind: planner.KindMove, Source: two, Destination: blocked, Snapshot: snapshot(t, two)},
	}
	testsupport.WriteFile(t, blocked, 3, 'x')
	res, err := apply(t, e, actions)
	if err == nil {
		t.Fatal("expected second action to fail")
	}

	entries, _ := e.journal.Entries(context.Background(), res.SessionID)
	if len(entries) != 2 || entries[0].Outcome != journal.OutcomeApplied || entries[1].Outcome != journal.OutcomeFailed {
		t.Fatalf("unexpected journal: %+v", entries)
	}

	result, err := undo.New(e.journal, undo.WithPruneRoots(e.root)).Undo(context.Background(), "last")
	if err != nil {
		t.Fatalf("Undo: %v", err)
	}
	if len(result.Reversed) != 1 || result.Reversed[0] != 1 || len(result.Inconsistencies) != 0 {
		t.Fatalf("unexpected undo result: %+v", result)
	}
	testsupport.AssertContent(t, one, filled(16, '1'))
	testsupport.AssertContent(t, two, filled(16, '2'))
	testsupport.AssertMissing(t, movedOne)
	testsupport.AssertContent(t, blocked, filled(3, 'x'))

	session, _ := e.journal.Session(context.Background(), res.SessionID)
	if session.Status != journal.StatusUndone {
		t.Fatalf("session status = %s", session.Status)
	}

	again, err := undo.New(e.journal).Undo(context.Background(), res.SessionID)
	if err != nil {
		t.Fatalf("second Undo: %v", err)
	}
	if !again.NothingToUndo {
		t.Fatalf("expected nothing to undo, got %+v", again)
	}
}

func filled(n int, b byte) []byte {
	out := make([]byte, n)
	for i := range out {
		out[i] = b
	}
	return out
}

type stubArt struct{ art *providers.Art }

func (s stubArt) FetchArt(context.Context, identitycache.FileRecord) (*providers.Art, error) {
	return s.art, nil
}

func TestRoundTripPerKind(t *testing.T) {
	e := newEnv(t)
	quarantine := filepath.Join(filepath.Dir(e.root), "quarantine")

	renamed := filepath.Join(e.root, "Album", "a.mp3")
	moved := filepath.Join(e.root, "loose", "b.mp3")
	dupe := filepath.Join(e.root, "c.mp3")
	tagged := filepath.Join(e.root, "Album", "d.mp3")
	withArt := filepath.Join(e.root, "Other", "e.mp3")
	testsupport.WriteFile(t, renamed, 8, 'a')
	testsupport.WriteFile(t, moved, 8, 'b')
	testsupport.WriteFile(t, dupe, 8, 'c')
	original := testsupport.FakeMP3('d')
	testsupport.WriteBytes(t, tagged, original)
	testsupport.WriteFile(t, withArt, 8, 'e')

	priorCover := []byte("old cover")
	existingCover := filepath.Join(e.root, "Album", "cover.jpg")
	testsupport.WriteBytes(t, existingCover, priorCover)
	newCover := filepath.Join(e.root, "Other", "cover.jpg")
	art := &providers.Art{Data: []byte("new cover"), Format: "jpeg", Width: 600, Height: 600}
	artRef := &planner.ArtRef{Hash: art.Hash(), Width: 600, Height: 600}
	newTags := tags.Tags{Title: "New", Artist: "Someone", Track: 9}

	actions := []planner.Action{
		{Ordinal: 1, Kind: planner.KindQuarantine, Source: dupe, Destination: filepath.Join(quarantine, "c.mp3"), Snapshot: snapshot(t, dupe)},
		{Ordinal: 2, Kind: planner.KindRename, Source: renamed, Destination: filepath.Join(e.root, "Album", "01 a.mp3"), Snapshot: snapshot(t, renamed)},
		{Ordinal: 3, Kind: planner.KindMove, Source: moved, Destination: filepath.Join(e.root, "Album", "02 b.mp3"), Snapshot: snapshot(t, moved)},
		{Ordinal: 4, Kind: planner.KindTagWrite, Source: tagged, Tags: &newTags, Snapshot: snapshot(t, tagged)},
		{Ordinal: 5, Kind: planner.KindArtWrite, Source: withArt, Destination: existingCover, Art: artRef},
		{Ordinal: 6, Kind: planner.KindArtWrite, Source: withArt, Destination: newCover, Art: artRef},
	}
	if _, err := apply(t, e, actions, applier.WithArtProvider(stubArt{art})); err != nil {
		t.Fatalf("apply: %v", err)
	}
	testsupport.AssertContent(t, existingCover, art.Data)
	testsupport.AssertMissing(t, moved)

	result, err := undo.New(e.journal, undo.WithPruneRoots(e.root, quarantine), undo.WithPageSize(2)).Undo(context.Background(), "")
	if err != nil {
		t.Fatalf("Undo: %v", err)
	}
	if result.Outcome != services.OutcomeSucceeded || len(result.Reversed) != 6 {
		t.Fatalf("unexpected undo result: %+v", result)
	}
	want := []int{6, 5, 4, 3, 2, 1}
	for i := range want {
		if result.Reversed[i] != want[i] {
			t.Fatalf("reversed out of order: %v", result.Reversed)
		}
	}

	testsupport.AssertContent(t, dupe, filled(8, 'c'))
	testsupport.AssertContent(t, renamed, filled(8, 'a'))
	testsupport.AssertContent(t, moved, filled(8, 'b'))
	testsupport.AssertContent(t, tagged, original)
	testsupport.AssertContent(t, existingCover, priorCover)
	testsupport.AssertMissing(t, newCover)
	testsupport.AssertMissing(t, filepath.Join(quarantine, "c.mp3"))
}

func TestModifiedFileIsInconsistentAndReplayContinues(t *testing.T) {
	e := newEnv(t)
	a := filepath.Join(e.root, "a.mp3")
	b := filepath.Join(e.root, "b.mp3")
	testsupport.WriteFile(t, a, 8, 'a')
	testsupport.WriteFile(t, b, 8, 'b')
	movedA := filepath.Join(e.root, "x", "a.mp3")
	movedB := filepath.Join(e.root, "x", "b.mp3")
	res, err := apply(t, e, []planner.Action{
		{Ordinal: 1, Kind: planner.KindMove, Source: a, Destination: movedA, Snapshot: snapshot(t, a)},
		{Ordinal: 2, Kind: planner.KindMove, Source: b, Destination: movedB, Snapshot: snapshot(t, b)},
	})
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	testsupport.WriteFile(t, movedB, 8, 'z')

	result, err := undo.New(e.journal).Undo(context.Background(), res.SessionID)
	if err != nil {
		t.Fatalf("Undo: %v", err)
	}
	if len(result.Inconsistencies) != 1 || result.Inconsistencies[0].Seq != 2 {
		t.Fatalf("expected one inconsistency for entry 2, got %+v", result.Inconsistencies)
	}
	if len(result.Reversed) != 1 || result.Reversed[0] != 1 || result.Outcome != services.OutcomePartial {
		t.Fatalf("unexpected result: %+v", result)
	}
	testsupport.AssertContent(t, a, filled(8, 'a'))
	testsupport.AssertContent(t, movedB, filled(8, 'z'))

	session, _ := e.journal.Session(context.Background(), res.SessionID)
	if session.Status == journal.StatusUndone {
		t.Fatal("session with inconsistencies must stay open for another attempt")
	}
}

func TestDeleteIsReportedNotRestored(t *testing.T) {
	e := newEnv(t)
	src := filepath.Join(e.root, "dupe.mp3")
	testsupport.WriteFile(t, src, 8, 'd')
	res, err := apply(t, e, []planner.Action{
		{Ordinal: 1, Kind: planner.KindDelete, Source: src, Snapshot: snapshot(t, src)},
	}, applier.WithQuarantineEnabled(false))
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	result, err := undo.New(e.journal).Undo(context.Background(), res.SessionID)
	if err != nil {
		t.Fatalf("Undo: %v", err)
	}
	if len(result.Inconsistencies) != 1 || result.Outcome != services.OutcomeFailed {
		t.Fatalf("unexpected result: %+v", result)
	}
	testsupport.AssertMissing(t, src)

	again, err := undo.New(e.journal).Undo(context.Background(), res.SessionID)
	if err != nil {
		t.Fatalf("second Undo: %v", err)
	}
	if !again.NothingToUndo || len(again.Inconsistencies) != 0 {
		t.Fatalf("deletions should be reported once, got %+v", again)
	}
}

func TestPendingEntriesAreSettledFromDisk(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	moved := filepath.Join(e.root, "a.mp3")
	untouched := filepath.Join(e.root, "b.mp3")
	testsupport.WriteFile(t, moved, 8, 'a')
	testsupport.WriteFile(t, untouched, 8, 'b')
	movedTo := filepath.Join(e.root, "x", "a.mp3")

	session, err := e.journal.BeginSession(ctx, "p")
	if err != nil {
		t.Fatalf("BeginSession: %v", err)
	}
	for i, path := range []string{moved, untouched} {
		snap := snapshot(t, path)
		action := planner.Action{Ordinal: i + 1, Kind: planner.KindMove, Source: path,
			Destination: filepath.Join(e.root, "x", filepath.Base(path)), Snapshot: snap}
		before := journal.Before{Path: path, Existed: true, Size: snap.Size, Hash: snap.Hash}
		if _, err := e.journal.Append(ctx, session.ID, i+1, action, before, true); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}
	// The process stops after the first move but before either outcome is
	// recorded.
	if _, err := fileutil.Move(moved, movedTo); err != nil {
		t.Fatalf("Move: %v", err)
	}

	got, _ := e.journal.Session(ctx, session.ID)
	if got.Pending != 2 || !got.Reversible() {
		t.Fatalf("pending entries should make the session reversible: %+v", got)
	}

	result, err := undo.New(e.journal, undo.WithPruneRoots(e.root)).Undo(ctx, "last")
	if err != nil {
		t.Fatalf("Undo: %v", err)
	}
	if len(result.Inconsistencies) != 0 || len(result.Reversed) != 2 || result.Reversed[0] != 2 || result.Reversed[1] != 1 {
		t.Fatalf("unexpected undo result: %+v", result)
	}
	testsupport.AssertContent(t, moved, filled(8, 'a'))
	testsupport.AssertContent(t, untouched, filled(8, 'b'))
	testsupport.AssertMissing(t, movedTo)

	got, _ = e.journal.Session(ctx, session.ID)
	if got.Status != journal.StatusUndone || got.Reversible() {
		t.Fatalf("unexpected session after undo: %+v", got)
	}
}

func TestPendingMoveWithMissingFileIsInconsistent(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	src := filepath.Join(e.root, "a.mp3")
	testsupport.WriteFile(t, src, 8, 'a')
	snap := snapshot(t, src)

	session, err := e.journal.BeginSession(ctx, "p")
	if err != nil {
		t.Fatalf("BeginSession: %v", err)
	}
	action := planner.Action{Ordinal: 1, Kind: planner.KindMove, Source: src,
		Destination: filepath.Join(e.root, "x", "a.mp3"), Snapshot: snap}
	if _, err := e.journal.Append(ctx, session.ID, 1, action,
		journal.Before{Path: src, Existed: true, Size: snap.Size, Hash: snap.Hash}, true); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := os.Remove(src); err != nil {
		t.Fatalf("remove: %v", err)
	}

	result, err := undo.New(e.journal).Undo(ctx, session.ID)
	if err != nil {
		t.Fatalf("Undo: %v", err)
	}
	if len(result.Inconsistencies) != 1 || result.Inconsistencies[0].Path != src || result.Outcome != services.OutcomeFailed {
		t.Fatalf("unexpected result: %+v", result)
	}
	got, _ := e.journal.Session(ctx, session.ID)
	if got.Status == journal.StatusUndone {
		t.Fatal("unresolved pending entry must keep the session open")
	}
}

func TestTagRestoreKeepsFileMode(t *testing.T) {
	e := newEnv(t)
	path := filepath.Join(e.root, "private.mp3")
	original := testsupport.FakeMP3('p')
	testsupport.WriteBytes(t, path, original)
	if err := os.Chmod(path, 0o600); err != nil {
		t.Fatalf("chmod: %v", err)
	}
	newTags := tags.Tags{Title: "Changed", Artist: "Someone"}
	if _, err := apply(t, e, []planner.Action{
		{Ordinal: 1, Kind: planner.KindTagWrite, Source: path, Tags: &newTags, Snapshot: snapshot(t, path)},
	}); err != nil {
		t.Fatalf("apply: %v", err)
	}

	if _, err := undo.New(e.journal).Undo(context.Background(), "last"); err != nil {
		t.Fatalf("Undo: %v", err)
	}
	testsupport.AssertContent(t, path, original)
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Fatalf("mode = %v, want 0600", info.Mode().Perm())
	}
}

func TestUndoUnknownSession(t *testing.T) {
	e := newEnv(t)
	if _, err := undo.New(e.journal).Undo(context.Background(), "missing"); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if _, err := undo.New(e.journal).Undo(context.Background(), "last"); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not found on empty journal, got %v", err)
	}
}
