package identitycache_test

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"audioclean/internal/identitycache"
	"audioclean/internal/media"
	"audioclean/internal/media/tags"
)

func openStore(t *testing.T, path string) *identitycache.Store {
	t.Helper()
	store, err := identitycache.Open(path, nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func sampleRecord(path string) identitycache.FileRecord {
	return identitycache.FileRecord{
		Path:        path,
		Root:        "/lib",
		Size:        1234,
		ModTime:     time.Unix(1700000000, 123456789),
		ContentHash: "abc",
		Fingerprint: []uint32{1, 2, 0xffffffff},
		Duration:    201.5,
		Container:   media.ContainerFLAC,
		Tags:        tags.Tags{Title: "T", Artist: "A", Track: 2},
		ScannedAt:   time.Unix(1700000100, 0).UTC(),
	}
}

func TestPutGetRoundTrip(t *testing.T) {
	store := openStore(t, filepath.Join(t.TempDir(), "cache.db"))
	ctx := context.Background()

	rec := sampleRecord("/lib/a.flac")
	if err := store.Put(ctx, rec); err != nil {
		t.Fatalf("Put: %v", err)
	}
	got, found, err := store.Get(ctx, rec.Path)
	if err != nil || !found {
		t.Fatalf("Get found=%v err=%v", found, err)
	}
	if !got.Matches(rec.Size, rec.ModTime) {
		t.Fatalf("size/mtime mismatch: %+v", got)
	}
	if got.ContentHash != "abc" || got.Container != media.ContainerFLAC || got.Tags != rec.Tags {
		t.Fatalf("unexpected record %+v", got)
	}
	if len(got.Fingerprint) != 3 || got.Fingerprint[2] != 0xffffffff {
		t.Fatalf("fingerprint lost: %v", got.Fingerprint)
	}

	if _, found, err := store.Get(ctx, "/lib/missing.flac"); err != nil || found {
		t.Fatalf("expected miss, found=%v err=%v", found, err)
	}
}

func TestSnapshotScopesToRoot(t *testing.T) {
	store := openStore(t, filepath.Join(t.TempDir(), "cache.db"))
	ctx := context.Background()

	records := []identitycache.FileRecord{
		sampleRecord("/lib/sub/c.flac"),
		sampleRecord("/lib/a.flac"),
		sampleRecord("/library/x.flac"),
		sampleRecord("/other/y.flac"),
	}
	if err := store.PutBatch(ctx, records); err != nil {
		t.Fatalf("PutBatch: %v", err)
	}

	snap, err := store.Snapshot(ctx, "/lib")
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if len(snap) != 2 || snap[0].Path != "/lib/a.flac" || snap[1].Path != "/lib/sub/c.flac" {
		t.Fatalf("unexpected snapshot %+v", snap)
	}

	all, err := store.All(ctx)
	if err != nil || len(all) != 4 {
		t.Fatalf("All len=%d err=%v", len(all), err)
	}
}

func TestRenameKeepsIdentity(t *testing.T) {
	store := openStore(t, filepath.Join(t.TempDir(), "cache.db"))
	ctx := context.Background()

	if err := store.Put(ctx, sampleRecord("/lib/a.flac")); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := store.Rename(ctx, "/lib/a.flac", "/lib/Artist/a.flac"); err != nil {
		t.Fatalf("Rename: %v", err)
	}
	if _, found, _ := store.Get(ctx, "/lib/a.flac"); found {
		t.Fatal("old key should be gone")
	}
	got, found, err := store.Get(ctx, "/lib/Artist/a.flac")
	if err != nil || !found || got.ContentHash != "abc" {
		t.Fatalf("renamed record found=%v err=%v rec=%+v", found, err, got)
	}
}

func TestRemoveStatsAndClear(t *testing.T) {
	store := openStore(t, filepath.Join(t.TempDir(), "cache.db"))
	ctx := context.Background()

	a := sampleRecord("/lib/a.flac")
	b := sampleRecord("/other/b.flac")
	b.Root = "/other"
	b.Fingerprint = nil
	if err := store.PutBatch(ctx, []identitycache.FileRecord{a, b}); err != nil {
		t.Fatalf("PutBatch: %v", err)
	}
	stats, err := store.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.Records != 2 || stats.Fingerprinted != 1 || stats.Roots != 2 || stats.TotalBytes != 2468 {
		t.Fatalf("unexpected stats %+v", stats)
	}

	if err := store.Remove(ctx, a.Path); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if err := store.Clear(ctx); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	stats, err = store.Stats(ctx)
	if err != nil || stats.Records != 0 || stats.TotalBytes != 0 {
		t.Fatalf("expected empty cache, got %+v err=%v", stats, err)
	}
}

func TestPersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.db")
	store, err := identitycache.Open(path, nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := store.Put(context.Background(), sampleRecord("/lib/a.flac")); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	reopened := openStore(t, path)
	if _, found, err := reopened.Get(context.Background(), "/lib/a.flac"); err != nil || !found {
		t.Fatalf("record lost across reopen found=%v err=%v", found, err)
	}
}

func TestCorruptDatabaseIsTreatedAsEmpty(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cache.db")
	garbage := make([]byte, 8192)
	for i := range garbage {
		garbage[i] = byte(i * 7)
	}
	if err := os.WriteFile(path, garbage, 0o644); err != nil {
		t.Fatalf("write garbage: %v", err)
	}

	store := openStore(t, path)
	if store.Recovered() == "" {
		t.Fatal("expected the corrupt database to be moved aside")
	}
	if _, err := os.Stat(store.Recovered()); err != nil {
		t.Fatalf("moved-aside file missing: %v", err)
	}
	all, err := store.All(context.Background())
	if err != nil || len(all) != 0 {
		t.Fatalf("expected empty store, got %d records err=%v", len(all), err)
	}
}

func TestSchemaMismatchResetsStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.db")
	store := openStore(t, path)
	if err := store.Put(context.Background(), sampleRecord("/lib/a.flac")); err != nil {
		t.Fatalf("Put: %v", err)
	}
	_ = store.Close()

	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("sql.Open: %v", err)
	}
	if _, err := db.Exec("UPDATE schema_version SET version = 99"); err != nil {
		t.Fatalf("bump version: %v", err)
	}
	_ = db.Close()

	reopened := openStore(t, path)
	if reopened.Recovered() == "" {
		t.Fatal("expected reset on schema mismatch")
	}
	if _, found, _ := reopened.Get(context.Background(), "/lib/a.flac"); found {
		t.Fatal("records should not survive a schema reset")
	}
}

func TestGroupOverridesUpsertAndFollowRenames(t *testing.T) {
	store := openStore(t, filepath.Join(t.TempDir(), "cache.db"))
	ctx := context.Background()

	if err := store.UpsertGroupOverride(ctx, identitycache.GroupOverride{GroupID: "g1", Path: "/lib/a.flac", Decision: "keep"}); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if err := store.UpsertGroupOverride(ctx, identitycache.GroupOverride{GroupID: "g1", Path: "/lib/a.flac", Decision: "rename", Template: "{title}"}); err != nil {
		t.Fatalf("Upsert replace: %v", err)
	}
	if err := store.UpsertGroupOverride(ctx, identitycache.GroupOverride{GroupID: "g2", Path: "/lib/b.flac", Decision: "skip"}); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if err := store.UpsertGroupOverride(ctx, identitycache.GroupOverride{GroupID: "g2", Path: "/lib/b.flac"}); err == nil {
		t.Fatal("expected an override without decision to be rejected")
	}

	g1, err := store.GroupOverridesFor(ctx, "g1")
	if err != nil {
		t.Fatalf("GroupOverridesFor: %v", err)
	}
	got, ok := g1["/lib/a.flac"]
	if len(g1) != 1 || !ok || got.Decision != "rename" || got.Template != "{title}" || got.UpdatedAt.IsZero() {
		t.Fatalf("unexpected overrides for g1: %+v", g1)
	}

	if err := store.Put(ctx, sampleRecord("/lib/b.flac")); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := store.Rename(ctx, "/lib/b.flac", "/lib/moved/b.flac"); err != nil {
		t.Fatalf("Rename: %v", err)
	}
	if err := store.Clear(ctx); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	all, err := store.AllGroupOverrides(ctx)
	if err != nil {
		t.Fatalf("AllGroupOverrides: %v", err)
	}
	if _, ok := all.For("g2")["/lib/moved/b.flac"]; !ok || len(all) != 2 {
		t.Fatalf("override should follow the rename and survive Clear: %+v", all)
	}

	if err := store.DeleteGroupOverride(ctx, "g1", "/lib/a.flac"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if g1, _ := store.GroupOverridesFor(ctx, "g1"); len(g1) != 0 {
		t.Fatalf("expected g1 overrides removed, got %+v", g1)
	}
}
