// Package report aggregates scan and duplicate detection results into the
// analysis shown by the analyze command.
package report

import (
	"fmt"
	"sort"

	"github.com/dustin/go-humanize"

	"audioclean/internal/duplicates"
	"audioclean/internal/fileutil"
	"audioclean/internal/identitycache"
)

// RootSummary is the per-root file census.
type RootSummary struct {
	Root   string `json:"root"`
	Files  int    `json:"files"`
	Bytes  int64  `json:"bytes"`
	Errors int    `json:"errors"`
}

// GroupSummary describes one duplicate group.
type GroupSummary struct {
	ID               string            `json:"id"`
	Reason           duplicates.Reason `json:"reason"`
	Size             int               `json:"size"`
	Canonical        string            `json:"canonical"`
	Redundant        []string          `json:"redundant"`
	ReclaimableBytes int64             `json:"reclaimable_bytes"`
}

// GroupStats describes the shape of the duplicate groups.
type GroupStats struct {
	Groups       int     `json:"groups"`
	AvgGroupSize float64 `json:"avg_group_size"`
	MaxGroupSize int     `json:"max_group_size"`
}

// FileError is an identity error carried into the analysis.
type FileError struct {
	Path  string `json:"path"`
	Error string `json:"error"`
}

// Analysis is the full analyze report.
type Analysis struct {
	Roots            []RootSummary  `json:"roots"`
	Files            int            `json:"files"`
	BytesScanned     int64          `json:"bytes_scanned"`
	Groups           []GroupSummary `json:"groups"`
	Stats            GroupStats     `json:"group_stats"`
	DuplicateFiles   int            `json:"duplicate_files"`
	ReclaimableBytes int64          `json:"reclaimable_bytes"`
	Errors           []FileError    `json:"errors"`
}

// ComputeGroupStats returns the group count and the mean and largest group
// sizes. Empty input yields zeros.
func ComputeGroupStats(groups []duplicates.Group) GroupStats {
	stats := GroupStats{Groups: len(groups)}
	if len(groups) == 0 {
		return stats
	}
	total := 0
	for _, g := range groups {
		total += len(g.Members)
		stats.MaxGroupSize = max(stats.MaxGroupSize, len(g.Members))
	}
	stats.AvgGroupSize = float64(total) / float64(len(groups))
	return stats
}

// Analyze builds the report. Records carrying an identity error are listed
// under Errors and excluded from the byte totals.
func Analyze(roots []string, records []identitycache.FileRecord, groups []duplicates.Group) Analysis {
	a := Analysis{Groups: []GroupSummary{}, Errors: []FileError{}}
	byRoot := make(map[string]*RootSummary, len(roots))
	for _, root := range roots {
		a.Roots = append(a.Roots, RootSummary{Root: root})
	}
	for i := range a.Roots {
		byRoot[a.Roots[i].Root] = &a.Roots[i]
	}

	for _, rec := range records {
		summary := byRoot[rec.Root]
		if summary == nil {
			summary = rootOf(a.Roots, rec.Path)
		}
		if rec.Error != "" {
			a.Errors = append(a.Errors, FileError{Path: rec.Path, Error: rec.Error})
			if summary != nil {
				summary.Errors++
			}
			continue
		}
		a.Files++
		a.BytesScanned += rec.Size
		if summary != nil {
			summary.Files++
			summary.Bytes += rec.Size
		}
	}
	sort.Slice(a.Errors, func(i, j int) bool { return a.Errors[i].Path < a.Errors[j].Path })

	for _, g := range groups {
		redundant := g.Redundant()
		gs := GroupSummary{
			ID:               g.ID,
			Reason:           g.Reason,
			Size:             len(g.Members),
			Canonical:        g.Canonical.Path,
			Redundant:        make([]string, 0, len(redundant)),
			ReclaimableBytes: g.ReclaimableBytes(),
		}
		for _, m := range redundant {
			gs.Redundant = append(gs.Redundant, m.Path)
		}
		a.Groups = append(a.Groups, gs)
		a.DuplicateFiles += len(redundant)
		a.ReclaimableBytes += gs.ReclaimableBytes
	}
	a.Stats = ComputeGroupStats(groups)
	return a
}

func rootOf(roots []RootSummary, path string) *RootSummary {
	var best *RootSummary
	for i := range roots {
		if fileutil.Within(roots[i].Root, path) && (best == nil || len(roots[i].Root) > len(best.Root)) {
			best = &roots[i]
		}
	}
	return best
}

// Headline is a one-line human summary.
func (a Analysis) Headline() string {
	return fmt.Sprintf("%d files (%s) in %d root(s); %d duplicate group(s), %s reclaimable",
		a.Files, humanize.IBytes(uint64(max(a.BytesScanned, 0))), len(a.Roots),
		a.Stats.Groups, humanize.IBytes(uint64(max(a.ReclaimableBytes, 0))))
}

// Bytes formats a byte count for display.
func Bytes(n int64) string {
	if n < 0 {
		n = 0
	}
	return humanize.IBytes(uint64(n))
}
