package planner

import (
	"fmt"
	"strings"

	"audioclean/internal/media/tags"
)

// ArtifactVersion is the plan document format version.
const ArtifactVersion = 1

// Kind is the mutation an action performs.
type Kind string

const (
	KindRename     Kind = "rename"
	KindMove       Kind = "move"
	KindQuarantine Kind = "quarantine"
	KindDelete     Kind = "delete"
	KindTagWrite   Kind = "tag_write"
	KindArtWrite   Kind = "art_write"
)

// Purpose explains which planning step produced an action.
type Purpose string

const (
	PurposeDedupe   Purpose = "dedupe"
	PurposeLayout   Purpose = "layout"
	PurposeMetadata Purpose = "metadata"
	PurposeArt      Purpose = "art"
)

// ProvenanceGroupOverride marks dedupe actions decided by a stored group
// override rather than the dedupe strategy.
const ProvenanceGroupOverride = "group_override"

// Snapshot is the plan-time identity of an action's source file.
type Snapshot struct {
	Size int64  `json:"size" yaml:"size"`
	Hash string `json:"hash" yaml:"hash"`
}

// ArtRef identifies the image an art_write installs. The bytes are fetched
// again at apply time and checked against Hash.
type ArtRef struct {
	Hash       string `json:"hash" yaml:"hash"`
	MIME       string `json:"mime" yaml:"mime"`
	Width      int    `json:"width" yaml:"width"`
	Height     int    `json:"height" yaml:"height"`
	Size       int    `json:"size" yaml:"size"`
	Provenance string `json:"provenance" yaml:"provenance"`
}

// Action is one proposed mutation.
type Action struct {
	Ordinal       int        `json:"ordinal" yaml:"ordinal"`
	Kind          Kind       `json:"kind" yaml:"kind"`
	Purpose       Purpose    `json:"purpose" yaml:"purpose"`
	Source        string     `json:"source" yaml:"source"`
	Destination   string     `json:"destination,omitempty" yaml:"destination,omitempty"`
	Tags          *tags.Tags `json:"tags,omitempty" yaml:"tags,omitempty"`
	Art           *ArtRef    `json:"art,omitempty" yaml:"art,omitempty"`
	Justification string     `json:"justification" yaml:"justification"`
	Confidence    float64    `json:"confidence,omitempty" yaml:"confidence,omitempty"`
	Provenance    string     `json:"provenance,omitempty" yaml:"provenance,omitempty"`
	Snapshot      *Snapshot  `json:"snapshot,omitempty" yaml:"snapshot,omitempty"`
	GroupID       string     `json:"group_id,omitempty" yaml:"group_id,omitempty"`
}

// Relocates reports whether the action moves its source to Destination.
func (a Action) Relocates() bool {
	switch a.Kind {
	case KindRename, KindMove, KindQuarantine:
		return true
	}
	return false
}

// Describe renders a one-line human summary.
func (a Action) Describe() string {
	switch {
	case a.Kind == KindTagWrite:
		return fmt.Sprintf("#%d %s %s", a.Ordinal, a.Kind, a.Source)
	case a.Destination != "":
		return fmt.Sprintf("#%d %s %s -> %s", a.Ordinal, a.Kind, a.Source, a.Destination)
	default:
		return fmt.Sprintf("#%d %s %s", a.Ordinal, a.Kind, a.Source)
	}
}

func priority(a Action) int {
	switch {
	case a.Purpose == PurposeDedupe:
		return 0
	case a.Kind == KindRename || a.Kind == KindMove:
		return 1
	case a.Kind == KindTagWrite:
		return 2
	default:
		return 3
	}
}

func lessAction(a, b Action) bool {
	if pa, pb := priority(a), priority(b); pa != pb {
		return pa < pb
	}
	if c := strings.Compare(a.Source, b.Source); c != 0 {
		return c < 0
	}
	return a.Destination < b.Destination
}

// Settings is the configuration snapshot a plan was computed with.
type Settings struct {
	DedupeStrategy       string   `json:"dedupe_strategy" yaml:"dedupe_strategy"`
	KeepPolicy           string   `json:"keep_policy" yaml:"keep_policy"`
	PreferredRoots       []string `json:"preferred_roots,omitempty" yaml:"preferred_roots,omitempty"`
	FingerprintEnabled   bool     `json:"fingerprint_enabled" yaml:"fingerprint_enabled"`
	FingerprintThreshold float64  `json:"fingerprint_threshold" yaml:"fingerprint_threshold"`
	QuarantineEnabled    bool     `json:"quarantine_enabled" yaml:"quarantine_enabled"`
	QuarantineDir        string   `json:"quarantine_dir,omitempty" yaml:"quarantine_dir,omitempty"`
	DupeDir              string   `json:"dupe_dir,omitempty" yaml:"dupe_dir,omitempty"`
	LayoutEnabled        bool     `json:"layout_enabled" yaml:"layout_enabled"`
	LayoutTemplate       string   `json:"layout_template" yaml:"layout_template"`
	NormalizeUnicode     bool     `json:"normalize_unicode" yaml:"normalize_unicode"`
	ConfidenceThreshold  float64  `json:"confidence_threshold" yaml:"confidence_threshold"`
	ConflictMode         string   `json:"conflict_mode" yaml:"conflict_mode"`
	ArtEnabled           bool     `json:"art_enabled" yaml:"art_enabled"`
	ArtMinDimension      int      `json:"art_min_dimension" yaml:"art_min_dimension"`
	ArtFileName          string   `json:"art_file_name" yaml:"art_file_name"`
}

// Summary aggregates plan statistics.
type Summary struct {
	Actions          int          `json:"actions" yaml:"actions"`
	ByKind           map[Kind]int `json:"by_kind" yaml:"by_kind"`
	DuplicateGroups  int          `json:"duplicate_groups" yaml:"duplicate_groups"`
	ReclaimableBytes int64        `json:"reclaimable_bytes" yaml:"reclaimable_bytes"`
	NeedsReview      int          `json:"needs_review" yaml:"needs_review"`
	Conflicts        int          `json:"conflicts" yaml:"conflicts"`
	ArtRejected      int          `json:"art_rejected" yaml:"art_rejected"`
	TagUnsupported   int          `json:"tag_unsupported" yaml:"tag_unsupported"`
	ResolverErrors   int          `json:"resolver_errors" yaml:"resolver_errors"`
}

// Plan is the serializable plan artifact.
type Plan struct {
	Version            int            `json:"version" yaml:"version"`
	ID                 string         `json:"id" yaml:"id"`
	LibraryFingerprint string         `json:"library_fingerprint" yaml:"library_fingerprint"`
	Roots              []string       `json:"roots" yaml:"roots"`
	Settings           Settings       `json:"settings" yaml:"settings"`
	Actions            []Action       `json:"actions" yaml:"actions"`
	Conflicts          []PlanConflict `json:"conflicts,omitempty" yaml:"conflicts,omitempty"`
	Summary            Summary        `json:"summary" yaml:"summary"`
}

// Empty reports whether the plan proposes no actions.
func (p *Plan) Empty() bool {
	return p == nil || len(p.Actions) == 0
}
