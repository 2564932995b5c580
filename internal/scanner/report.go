package scanner

import (
	"time"

	"audioclean/internal/identitycache"
	"audioclean/internal/services"
)

// FileStatus classifies a scanned file against the cache.
type FileStatus string

const (
	StatusNew       FileStatus = "new"
	StatusUnchanged FileStatus = "unchanged"
	StatusChanged   FileStatus = "changed"
	StatusError     FileStatus = "error"
)

// RootCounts aggregates per-root scan results.
type RootCounts struct {
	Root      string `json:"root"`
	Files     int    `json:"files"`
	New       int    `json:"new"`
	Unchanged int    `json:"unchanged"`
	Changed   int    `json:"changed"`
	Removed   int    `json:"removed"`
	Errors    int    `json:"errors"`
	Bytes     int64  `json:"bytes"`
}

// Report is the result of one scan.
type Report struct {
	Roots   []RootCounts               `json:"roots"`
	Records []identitycache.FileRecord `json:"-"`
	Errors  []*IdentityError           `json:"errors"`
	Removed []string                   `json:"removed"`

	BytesScanned        int64 `json:"bytes_scanned"`
	BytesHashed         int64 `json:"bytes_hashed"`
	FilesHashed         int   `json:"files_hashed"`
	Fingerprinted       int   `json:"fingerprinted"`
	FingerprintFailures int   `json:"fingerprint_failures"`
	CacheWriteFailures  int   `json:"cache_write_failures"`

	Outcome   services.Outcome `json:"outcome"`
	StartedAt time.Time        `json:"started_at"`
	Duration  time.Duration    `json:"duration"`
}

// Counts returns the counts for root, or nil when root was not scanned.
func (r *Report) Counts(root string) *RootCounts {
	for i := range r.Roots {
		if r.Roots[i].Root == root {
			return &r.Roots[i]
		}
	}
	return nil
}

// Totals sums counts across every root.
func (r *Report) Totals() RootCounts {
	var total RootCounts
	for _, c := range r.Roots {
		total.Files += c.Files
		total.New += c.New
		total.Unchanged += c.Unchanged
		total.Changed += c.Changed
		total.Removed += c.Removed
		total.Errors += c.Errors
		total.Bytes += c.Bytes
	}
	return total
}
