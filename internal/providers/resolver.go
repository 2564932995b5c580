package providers

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"audioclean/internal/identitycache"
	"audioclean/internal/media/tags"
	"audioclean/internal/services"
)

// TagConfidence scores how complete a tag set is for layout purposes.
func TagConfidence(t tags.Tags) float64 {
	required := []bool{t.Title != "", t.Artist != "", t.Album != "", t.Track > 0}
	all, some := true, false
	for _, present := range required {
		all = all && present
		some = some || present
	}
	score := 0.1
	switch {
	case all:
		score = 0.6
	case some:
		score = 0.3
	}
	if t.Year != "" {
		score += 0.2
	}
	if t.AlbumArtist != "" {
		score += 0.2
	}
	return min(score, 0.95)
}

// EmbeddedResolver proposes the file's own embedded tags, scored by
// TagConfidence.
type EmbeddedResolver struct{}

// Resolve implements Resolver.
func (EmbeddedResolver) Resolve(_ context.Context, rec identitycache.FileRecord) ([]Candidate, error) {
	if rec.Tags.IsZero() {
		return nil, nil
	}
	return []Candidate{{
		Tags:       rec.Tags,
		Confidence: TagConfidence(rec.Tags),
		Provenance: ProvenanceEmbeddedTags,
	}}, nil
}

// Override pins tags for one file, matched by path or content hash.
type Override struct {
	Path       string    `yaml:"path,omitempty"`
	Hash       string    `yaml:"hash,omitempty"`
	Tags       tags.Tags `yaml:"tags"`
	Confidence float64   `yaml:"confidence,omitempty"`
}

type overrideFile struct {
	Overrides []Override `yaml:"overrides"`
}

// OverrideResolver returns user-supplied tags from a YAML file.
type OverrideResolver struct {
	byPath map[string]Override
	byHash map[string]Override
}

// LoadOverrides reads a YAML document of the form
//
//	overrides:
//	  - path: /music/track.flac
//	    tags: {title: Song, artist: Band}
//	    confidence: 1.0
func LoadOverrides(path string) (*OverrideResolver, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read overrides: %w", err)
	}
	var doc overrideFile
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, services.Wrap(services.ErrValidation, "plan", "overrides", path, err)
	}
	return NewOverrideResolver(doc.Overrides)
}

// NewOverrideResolver indexes overrides. Entries need a path or a hash.
func NewOverrideResolver(overrides []Override) (*OverrideResolver, error) {
	r := &OverrideResolver{byPath: map[string]Override{}, byHash: map[string]Override{}}
	for i, o := range overrides {
		if o.Confidence == 0 {
			o.Confidence = 1
		}
		if o.Confidence < 0 || o.Confidence > 1 {
			return nil, services.Wrap(services.ErrValidation, "plan", "overrides",
				fmt.Sprintf("entry %d: confidence must be within [0,1]", i), nil)
		}
		switch {
		case strings.TrimSpace(o.Path) != "":
			r.byPath[filepath.Clean(o.Path)] = o
		case strings.TrimSpace(o.Hash) != "":
			r.byHash[strings.ToLower(strings.TrimSpace(o.Hash))] = o
		default:
			return nil, services.Wrap(services.ErrValidation, "plan", "overrides",
				fmt.Sprintf("entry %d: path or hash required", i), nil)
		}
	}
	return r, nil
}

// Resolve implements Resolver.
func (r *OverrideResolver) Resolve(_ context.Context, rec identitycache.FileRecord) ([]Candidate, error) {
	o, ok := r.byPath[rec.Path]
	if !ok {
		o, ok = r.byHash[rec.ContentHash]
	}
	if !ok {
		return nil, nil
	}
	return []Candidate{{
		Tags:       rec.Tags.Overlay(o.Tags),
		Confidence: o.Confidence,
		Provenance: ProvenanceOverride,
	}}, nil
}

// Chain queries resolvers in order and concatenates their candidates.
type Chain []Resolver

// Resolve implements Resolver. Candidates from successful resolvers are
// returned alongside the joined errors of failing ones.
func (c Chain) Resolve(ctx context.Context, rec identitycache.FileRecord) ([]Candidate, error) {
	var (
		out  []Candidate
		errs []error
	)
	for _, r := range c {
		candidates, err := r.Resolve(ctx, rec)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		out = append(out, candidates...)
	}
	return out, errors.Join(errs...)
}

// Budget bounds a resolver call.
type Budget struct {
	Timeout time.Duration
	Retries int
	Backoff time.Duration
	Offline bool
}

type budgeted struct {
	inner  Resolver
	budget Budget
}

// WithBudget wraps r with a per-call timeout and retries for transient
// failures. Offline budgets short-circuit to no candidates.
func WithBudget(r Resolver, b Budget) Resolver {
	return &budgeted{inner: r, budget: b}
}

func (b *budgeted) Resolve(ctx context.Context, rec identitycache.FileRecord) ([]Candidate, error) {
	if b.budget.Offline {
		return nil, nil
	}
	delay := b.budget.Backoff
	var lastErr error
	for attempt := 0; attempt <= b.budget.Retries; attempt++ {
		callCtx, cancel := ctx, context.CancelFunc(func() {})
		if b.budget.Timeout > 0 {
			callCtx, cancel = context.WithTimeout(ctx, b.budget.Timeout)
		}
		candidates, err := b.inner.Resolve(callCtx, rec)
		cancel()
		if err == nil {
			return candidates, nil
		}
		lastErr = err
		if !errors.Is(err, services.ErrTransient) && !errors.Is(err, context.DeadlineExceeded) {
			break
		}
		if attempt < b.budget.Retries && delay > 0 {
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
			delay *= 2
		}
	}
	return nil, lastErr
}
