package identitycache

import (
	"time"

	"audioclean/internal/media"
	"audioclean/internal/media/tags"
)

// FileRecord is the cached identity of one library file. Path is the
// identity key.
type FileRecord struct {
	Path        string          `json:"path"`
	Root        string          `json:"root"`
	Size        int64           `json:"size"`
	ModTime     time.Time       `json:"mod_time"`
	ContentHash string          `json:"content_hash"`
	Fingerprint []uint32        `json:"-"`
	Duration    float64         `json:"duration,omitempty"`
	Container   media.Container `json:"container"`
	Tags        tags.Tags       `json:"tags"`
	ScannedAt   time.Time       `json:"scanned_at"`
	// Error marks a file that could not be read during the current scan. It
	// is never persisted.
	Error string `json:"error,omitempty"`
}

// Usable reports whether the record can take part in detection and planning.
func (r FileRecord) Usable() bool {
	return r.Error == "" && r.ContentHash != ""
}

// HasFingerprint reports whether an acoustic fingerprint is available.
func (r FileRecord) HasFingerprint() bool {
	return len(r.Fingerprint) > 0
}

// Quality returns the ranking proxy used by the best_quality keep policy.
func (r FileRecord) Quality() media.Quality {
	return media.QualityOf(r.Container, r.Size, r.Duration)
}

// Matches reports whether the cached record describes a file with the given
// size and modification time.
func (r FileRecord) Matches(size int64, modTime time.Time) bool {
	return r.Size == size && r.ModTime.Equal(modTime)
}

// Stats summarizes the cache contents.
type Stats struct {
	Path          string `json:"path"`
	Records       int    `json:"records"`
	Fingerprinted int    `json:"fingerprinted"`
	Roots         int    `json:"roots"`
	TotalBytes    int64  `json:"total_bytes"`
	// Recovered is the moved-aside database path when the store was reset on open.
	Recovered string `json:"recovered,omitempty"`
}
