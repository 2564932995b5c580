package duplicates

import (
	"math"
	"sort"

	"audioclean/internal/identitycache"
	"audioclean/internal/media/fingerprint"
)

// Reason explains why members were grouped.
type Reason string

const (
	ReasonHashExact        Reason = "hash_exact"
	ReasonFingerprintMatch Reason = "fingerprint_match"
)

// DefaultThreshold is the minimum fingerprint similarity for a match.
const DefaultThreshold = 0.90

// maxDurationDelta skips fingerprint comparison between tracks whose known
// durations differ by more than this many seconds.
const maxDurationDelta = 10.0

// Group is one set of duplicates. Members are ordered by path.
type Group struct {
	ID        string                     `json:"id"`
	Reason    Reason                     `json:"reason"`
	Members   []identitycache.FileRecord `json:"members"`
	Canonical identitycache.FileRecord   `json:"canonical"`
}

// Redundant returns every member except the canonical one.
func (g Group) Redundant() []identitycache.FileRecord {
	out := make([]identitycache.FileRecord, 0, len(g.Members)-1)
	for _, m := range g.Members {
		if m.Path != g.Canonical.Path {
			out = append(out, m)
		}
	}
	return out
}

// TotalBytes sums member sizes.
func (g Group) TotalBytes() int64 {
	var total int64
	for _, m := range g.Members {
		total += m.Size
	}
	return total
}

// ReclaimableBytes sums the sizes of non-canonical members.
func (g Group) ReclaimableBytes() int64 {
	return g.TotalBytes() - g.Canonical.Size
}

// Options configures detection.
type Options struct {
	Policy         KeepPolicy
	PreferredRoots []string
	// Fingerprints enables near-duplicate grouping.
	Fingerprints bool
	Threshold    float64
	Similarity   fingerprint.SimilarityFunc
}

// Detect groups records into duplicate sets. Records carrying an identity
// error or lacking a content hash are ignored. Groups are ordered by ID.
func Detect(records []identitycache.FileRecord, opts Options) []Group {
	if opts.Policy == "" {
		opts.Policy = KeepBestQuality
	}
	if opts.Threshold <= 0 {
		opts.Threshold = DefaultThreshold
	}
	if opts.Similarity == nil {
		opts.Similarity = fingerprint.BitErrorSimilarity
	}

	usable := make([]identitycache.FileRecord, 0, len(records))
	for _, rec := range records {
		if rec.Usable() {
			usable = append(usable, rec)
		}
	}
	sort.Slice(usable, func(i, j int) bool { return usable[i].Path < usable[j].Path })

	byHash := make(map[string][]identitycache.FileRecord)
	for _, rec := range usable {
		byHash[rec.ContentHash] = append(byHash[rec.ContentHash], rec)
	}

	var groups []Group
	var singletons []identitycache.FileRecord
	for hash, members := range byHash {
		if len(members) > 1 {
			groups = append(groups, newGroup(hash, ReasonHashExact, members, opts))
			continue
		}
		if opts.Fingerprints && members[0].HasFingerprint() {
			singletons = append(singletons, members[0])
		}
	}
	if len(singletons) > 1 {
		groups = append(groups, clusterFingerprints(singletons, opts)...)
	}

	sort.Slice(groups, func(i, j int) bool { return groups[i].ID < groups[j].ID })
	return groups
}

func clusterFingerprints(records []identitycache.FileRecord, opts Options) []Group {
	sort.Slice(records, func(i, j int) bool { return records[i].Path < records[j].Path })
	uf := newUnionFind(len(records))
	for i := 0; i < len(records); i++ {
		for j := i + 1; j < len(records); j++ {
			if !comparableDurations(records[i].Duration, records[j].Duration) {
				continue
			}
			if uf.find(i) == uf.find(j) {
				continue
			}
			if opts.Similarity(records[i].Fingerprint, records[j].Fingerprint) >= opts.Threshold {
				uf.union(i, j)
			}
		}
	}

	clusters := make(map[int][]identitycache.FileRecord)
	for i, rec := range records {
		root := uf.find(i)
		clusters[root] = append(clusters[root], rec)
	}
	var groups []Group
	for _, members := range clusters {
		if len(members) < 2 {
			continue
		}
		id := members[0].ContentHash
		for _, m := range members[1:] {
			if m.ContentHash < id {
				id = m.ContentHash
			}
		}
		groups = append(groups, newGroup(id, ReasonFingerprintMatch, members, opts))
	}
	return groups
}

func comparableDurations(a, b float64) bool {
	if a <= 0 || b <= 0 {
		return true
	}
	return math.Abs(a-b) <= maxDurationDelta
}

func newGroup(id string, reason Reason, members []identitycache.FileRecord, opts Options) Group {
	sorted := append([]identitycache.FileRecord(nil), members...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Path < sorted[j].Path })

	canonical := sorted[0]
	for _, m := range sorted[1:] {
		if Compare(opts.Policy, opts.PreferredRoots, m, canonical) < 0 {
			canonical = m
		}
	}
	return Group{ID: id, Reason: reason, Members: sorted, Canonical: canonical}
}

type unionFind struct {
	parent []int
	rank   []int
}

func newUnionFind(n int) *unionFind {
	uf := &unionFind{parent: make([]int, n), rank: make([]int, n)}
	for i := range uf.parent {
		uf.parent[i] = i
	}
	return uf
}

func (u *unionFind) find(x int) int {
	for u.parent[x] != x {
		u.parent[x] = u.parent[u.parent[x]]
		x = u.parent[x]
	}
	return x
}

func (u *unionFind) union(a, b int) {
	ra, rb := u.find(a), u.find(b)
	if ra == rb {
		return
	}
	switch {
	case u.rank[ra] < u.rank[rb]:
		u.parent[ra] = rb
	case u.rank[ra] > u.rank[rb]:
		u.parent[rb] = ra
	default:
		u.parent[rb] = ra
		u.rank[ra]++
	}
}
