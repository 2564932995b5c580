package duplicates_test

import (
	"testing"
	"time"

	"audioclean/internal/duplicates"
	"audioclean/internal/identitycache"
	"audioclean/internal/media"
)

func rec(path, hash string, size int64) identitycache.FileRecord {
	return identitycache.FileRecord{
		Path:        path,
		Size:        size,
		ContentHash: hash,
		Container:   media.ContainerFor(path),
		ModTime:     time.Unix(1700000000, 0),
	}
}

func TestExactGroupPathPriority(t *testing.T) {
	records := []identitycache.FileRecord{
		rec("/lib/sub/c.flac", "h1", 100),
		rec("/lib/b.flac", "h1", 100),
		rec("/lib/a.flac", "h1", 100),
		rec("/lib/solo.flac", "h2", 100),
	}
	groups := duplicates.Detect(records, duplicates.Options{
		Policy:         duplicates.KeepPathPriority,
		PreferredRoots: []string{"/lib"},
	})
	if len(groups) != 1 {
		t.Fatalf("expected 1 group, got %d", len(groups))
	}
	g := groups[0]
	if g.Reason != duplicates.ReasonHashExact || g.ID != "h1" || len(g.Members) != 3 {
		t.Fatalf("unexpected group %+v", g)
	}
	if g.Canonical.Path != "/lib/a.flac" {
		t.Fatalf("canonical = %s, want /lib/a.flac", g.Canonical.Path)
	}
	redundant := g.Redundant()
	if len(redundant) != 2 || redundant[0].Path != "/lib/b.flac" || redundant[1].Path != "/lib/sub/c.flac" {
		t.Fatalf("unexpected redundant members %+v", redundant)
	}
	if g.ReclaimableBytes() != 200 {
		t.Fatalf("reclaimable = %d", g.ReclaimableBytes())
	}
}

func TestKeepPolicies(t *testing.T) {
	older := rec("/music/a.mp3", "h", 5_000_000)
	older.Duration = 200
	newer := rec("/music/b.mp3", "h", 5_000_000)
	newer.ModTime = older.ModTime.Add(time.Hour)
	newer.Duration = 200
	lossless := rec("/archive/c.flac", "h", 30_000_000)
	lossless.Duration = 200

	tests := []struct {
		name      string
		policy    duplicates.KeepPolicy
		preferred []string
		want      string
	}{
		{"best quality prefers lossless", duplicates.KeepBestQuality, nil, "/archive/c.flac"},
		{"newest", duplicates.KeepNewest, nil, "/music/b.mp3"},
		{"path priority", duplicates.KeepPathPriority, []string{"/music"}, "/music/a.mp3"},
		{"path priority without match falls back to path order", duplicates.KeepPathPriority, []string{"/elsewhere"}, "/archive/c.flac"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			groups := duplicates.Detect([]identitycache.FileRecord{older, newer, lossless}, duplicates.Options{
				Policy:         tt.policy,
				PreferredRoots: tt.preferred,
			})
			if len(groups) != 1 || groups[0].Canonical.Path != tt.want {
				t.Fatalf("canonical = %+v, want %s", groups, tt.want)
			}
		})
	}
}

func TestErrorRecordsExcluded(t *testing.T) {
	bad := rec("/lib/b.flac", "h", 1)
	bad.Error = "permission denied"
	groups := duplicates.Detect([]identitycache.FileRecord{rec("/lib/a.flac", "h", 1), bad}, duplicates.Options{})
	if len(groups) != 0 {
		t.Fatalf("error records must not be grouped: %+v", groups)
	}
}

func equalOrFar(a, b []uint32) float64 {
	if len(a) > 0 && len(b) > 0 && a[0] == b[0] {
		return 1
	}
	return 0
}

func TestFingerprintClosureIsTransitive(t *testing.T) {
	// a~b and b~c, but a and c do not match directly.
	sim := func(a, b []uint32) float64 {
		pair := [2]uint32{min(a[0], b[0]), max(a[0], b[0])}
		switch pair {
		case [2]uint32{1, 2}, [2]uint32{2, 3}:
			return 0.95
		}
		return 0.1
	}
	a := rec("/lib/a.mp3", "ha", 1)
	a.Fingerprint = []uint32{1}
	b := rec("/lib/b.mp3", "hb", 1)
	b.Fingerprint = []uint32{2}
	c := rec("/lib/c.mp3", "hc", 1)
	c.Fingerprint = []uint32{3}
	d := rec("/lib/d.mp3", "hd", 1)
	d.Fingerprint = []uint32{9}

	groups := duplicates.Detect([]identitycache.FileRecord{c, d, a, b}, duplicates.Options{
		Fingerprints: true,
		Threshold:    0.9,
		Similarity:   sim,
	})
	if len(groups) != 1 {
		t.Fatalf("expected one cluster, got %+v", groups)
	}
	g := groups[0]
	if g.Reason != duplicates.ReasonFingerprintMatch || len(g.Members) != 3 || g.ID != "ha" {
		t.Fatalf("unexpected group %+v", g)
	}
}

func TestFingerprintGroupingOnlyAmongSingletons(t *testing.T) {
	a := rec("/lib/a.mp3", "h1", 1)
	a.Fingerprint = []uint32{1}
	b := rec("/lib/b.mp3", "h1", 1)
	b.Fingerprint = []uint32{1}
	c := rec("/lib/c.flac", "h2", 1)
	c.Fingerprint = []uint32{1}

	groups := duplicates.Detect([]identitycache.FileRecord{a, b, c}, duplicates.Options{
		Fingerprints: true,
		Similarity:   equalOrFar,
	})
	if len(groups) != 1 || groups[0].Reason != duplicates.ReasonHashExact {
		t.Fatalf("expected only the exact group, got %+v", groups)
	}

	disabled := duplicates.Detect([]identitycache.FileRecord{a, c}, duplicates.Options{Similarity: equalOrFar})
	if len(disabled) != 0 {
		t.Fatalf("fingerprint grouping should be off by default, got %+v", disabled)
	}
}

func TestDurationMismatchSkipsComparison(t *testing.T) {
	a := rec("/lib/a.mp3", "h1", 1)
	a.Fingerprint, a.Duration = []uint32{1}, 100
	b := rec("/lib/b.mp3", "h2", 1)
	b.Fingerprint, b.Duration = []uint32{1}, 300
	groups := duplicates.Detect([]identitycache.FileRecord{a, b}, duplicates.Options{
		Fingerprints: true,
		Similarity:   equalOrFar,
	})
	if len(groups) != 0 {
		t.Fatalf("tracks of very different length should not match: %+v", groups)
	}
}

func TestDetectIsOrderIndependent(t *testing.T) {
	records := []identitycache.FileRecord{
		rec("/lib/z.flac", "h2", 10),
		rec("/lib/a.flac", "h1", 10),
		rec("/lib/y.flac", "h2", 10),
		rec("/lib/b.flac", "h1", 10),
	}
	reversed := make([]identitycache.FileRecord, len(records))
	for i, r := range records {
		reversed[len(records)-1-i] = r
	}
	g1 := duplicates.Detect(records, duplicates.Options{})
	g2 := duplicates.Detect(reversed, duplicates.Options{})
	if len(g1) != 2 || len(g2) != 2 {
		t.Fatalf("expected two groups, got %d and %d", len(g1), len(g2))
	}
	for i := range g1 {
		if g1[i].ID != g2[i].ID || g1[i].Canonical.Path != g2[i].Canonical.Path {
			t.Fatalf("group %d differs: %+v vs %+v", i, g1[i], g2[i])
		}
	}
}

func TestParseKeepPolicy(t *testing.T) {
	if p, err := duplicates.ParseKeepPolicy(" Newest "); err != nil || p != duplicates.KeepNewest {
		t.Fatalf("ParseKeepPolicy = %q, %v", p, err)
	}
	if p, _ := duplicates.ParseKeepPolicy(""); p != duplicates.KeepBestQuality {
		t.Fatalf("empty policy should default to best_quality, got %q", p)
	}
	if _, err := duplicates.ParseKeepPolicy("largest"); err == nil {
		t.Fatal("expected error for unknown policy")
	}
}
