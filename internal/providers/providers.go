package providers

import (
	"context"

	"audioclean/internal/fileutil"
	"audioclean/internal/identitycache"
	"audioclean/internal/media/tags"
)

// Provenance identifiers recorded on plan actions.
const (
	ProvenanceEmbeddedTags = "embedded_tags"
	ProvenanceOverride     = "override"
	ProvenanceEmbeddedArt  = "embedded_art"
)

// Candidate is one proposed metadata match.
type Candidate struct {
	Tags       tags.Tags `json:"tags"`
	Confidence float64   `json:"confidence"`
	Provenance string    `json:"provenance"`
}

// Resolver proposes metadata for a file. An offline resolver returns no
// candidates and no error.
type Resolver interface {
	Resolve(ctx context.Context, rec identitycache.FileRecord) ([]Candidate, error)
}

// Tagger writes tags to a file and returns the file's prior bytes so the
// write can be reversed.
type Tagger interface {
	WriteTags(ctx context.Context, path string, t tags.Tags) (prior []byte, err error)
}

// Art is a candidate album art image.
type Art struct {
	Data       []byte
	MIME       string
	Format     string
	Width      int
	Height     int
	Provenance string
}

// Hash returns the content hash of the image bytes.
func (a *Art) Hash() string {
	return fileutil.HashBytes(a.Data)
}

// ArtProvider returns album art for a file, or nil when none is available.
type ArtProvider interface {
	FetchArt(ctx context.Context, rec identitycache.FileRecord) (*Art, error)
}

// Best returns the highest-confidence candidate. Ties go to the
// lexicographically smaller provenance. ok is false for an empty slice.
func Best(candidates []Candidate) (best Candidate, ok bool) {
	for i, c := range candidates {
		if i == 0 || c.Confidence > best.Confidence ||
			(c.Confidence == best.Confidence && c.Provenance < best.Provenance) {
			best = c
		}
	}
	return best, len(candidates) > 0
}
