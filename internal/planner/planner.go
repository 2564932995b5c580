package planner

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"
	"strings"

	"audioclean/internal/config"
	"audioclean/internal/duplicates"
	"audioclean/internal/fileutil"
	"audioclean/internal/identitycache"
	"audioclean/internal/logging"
	"audioclean/internal/media/tags"
	"audioclean/internal/providers"
	"audioclean/internal/services"
)

// Input is everything a plan is computed from.
type Input struct {
	Records  []identitycache.FileRecord
	Groups   []duplicates.Group
	Roots    []string
	Settings Settings
	// Resolver proposes tag values; nil disables tag writes.
	Resolver providers.Resolver
	// Art proposes album art; nil disables art writes.
	Art providers.ArtProvider
	// GroupOverrides are stored user decisions for duplicate group members.
	GroupOverrides identitycache.GroupOverrides
}

// Planner builds plans.
type Planner struct {
	logger *slog.Logger
	exists func(string) bool
}

// Option configures a Planner.
type Option func(*Planner)

// WithLogger sets the planner logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Planner) { p.logger = logger }
}

// WithExists replaces the on-disk existence check used for collision
// detection.
func WithExists(fn func(string) bool) Option {
	return func(p *Planner) {
		if fn != nil {
			p.exists = fn
		}
	}
}

// New constructs a Planner.
func New(opts ...Option) *Planner {
	p := &Planner{exists: pathExists}
	for _, opt := range opts {
		opt(p)
	}
	p.logger = logging.NewComponentLogger(p.logger, "planner")
	return p
}

// fileState tracks one kept file through planning.
type fileState struct {
	rec       identitycache.FileRecord
	root      string
	finalPath string
	effective tags.Tags
	proposal  *providers.Candidate
	// pinned files were renamed by a group override and skip layout.
	pinned bool
}

// Build computes the plan for in.
func (p *Planner) Build(ctx context.Context, in Input) (*Plan, error) {
	ctx = services.WithStage(ctx, "plan")
	logger := logging.WithContext(ctx, p.logger)

	settings := in.Settings
	if settings.ConflictMode == "" {
		settings.ConflictMode = config.ConflictSuffix
	}
	if err := settings.validate(); err != nil {
		return nil, err
	}
	var tmpl *Template
	if settings.LayoutEnabled {
		var err error
		if tmpl, err = ParseTemplate(settings.LayoutTemplate); err != nil {
			return nil, services.Wrap(services.ErrConfiguration, "plan", "layout template", "", err)
		}
	}

	roots := cleanRoots(in.Roots)
	records := usableRecords(in.Records)
	groups := append([]duplicates.Group(nil), in.Groups...)
	sort.Slice(groups, func(i, j int) bool { return groups[i].ID < groups[j].ID })

	summary := Summary{ByKind: map[Kind]int{}, DuplicateGroups: len(groups)}
	res := newReservations(p.exists)

	// Step 1: dedupe.
	victims := make(map[string]bool)
	renames := make(map[string]bool)
	var dedupeClaims []claim
	var deletes []Action
	fallback := FallbackDecision(settings)
	for _, g := range groups {
		for _, ma := range duplicates.ResolveGroupActions(g, in.GroupOverrides.For(g.ID), fallback) {
			m := ma.Record
			if victims[m.Path] || renames[m.Path] {
				continue
			}
			a := Action{
				Purpose:       PurposeDedupe,
				Source:        m.Path,
				Justification: dedupeJustification(g),
				Snapshot:      snapshotOf(m),
				GroupID:       g.ID,
			}
			if g.Reason == duplicates.ReasonHashExact {
				a.Confidence = 1
			}
			if ma.Override {
				a.Provenance = ProvenanceGroupOverride
				a.Justification += fmt.Sprintf(" (%s by group override)", ma.Decision)
			}
			decision, reason := effectiveDecision(ma, settings)
			if reason != "" {
				summary.NeedsReview++
				logger.Debug("duplicate needs review",
					append(logging.Args(logging.DecisionAttrs("dedupe", "review", reason)...),
						logging.String(logging.FieldPath, m.Path),
						logging.String("group_id", g.ID))...,
				)
				continue
			}
			switch decision {
			case duplicates.DecisionQuarantine:
				a.Kind = KindQuarantine
				dedupeClaims = append(dedupeClaims, claim{action: &a, desired: mirrorUnder(settings.QuarantineDir, m.Path)})
			case duplicates.DecisionMove:
				a.Kind = KindMove
				dedupeClaims = append(dedupeClaims, claim{action: &a, desired: mirrorUnder(settings.DupeDir, m.Path)})
			case duplicates.DecisionDelete:
				a.Kind = KindDelete
				deletes = append(deletes, a)
			case duplicates.DecisionRename:
				target, err := renameTarget(ma, settings)
				if err != nil {
					summary.NeedsReview++
					logging.WarnWithContext(logger, "group override rename template invalid", "override_invalid",
						logging.String(logging.FieldPath, m.Path),
						logging.String("template", ma.Template),
						logging.Error(err),
						logging.String(logging.FieldImpact, "file stays in place"),
						logging.String(logging.FieldErrorHint, "set the override again with a valid --template"),
					)
					continue
				}
				if target == m.Path {
					continue
				}
				renames[m.Path] = true
				a.Kind = KindRename
				a.Confidence = decision.Confidence()
				a.Justification = fmt.Sprintf("rename by group override template %q", ma.Template)
				dedupeClaims = append(dedupeClaims, claim{action: &a, desired: target})
				continue
			default:
				continue
			}
			victims[m.Path] = true
			summary.ReclaimableBytes += m.Size
		}
	}

	var kept []*fileState
	for _, rec := range records {
		if victims[rec.Path] {
			res.free(rec.Path)
			continue
		}
		st := &fileState{rec: rec, root: rootFor(roots, rec), finalPath: rec.Path, effective: rec.Tags}
		if renames[rec.Path] {
			res.free(rec.Path)
			st.pinned = true
		} else {
			res.reserve(rec.Path, rec.Path)
		}
		kept = append(kept, st)
	}

	// Step 2: metadata proposals and layout targets.
	threshold := settings.ConfidenceThreshold
	var layoutClaims []claim
	for _, st := range kept {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if in.Resolver != nil {
			candidates, err := in.Resolver.Resolve(ctx, st.rec)
			if err != nil {
				summary.ResolverErrors++
				logging.WarnWithContext(logger, "metadata resolution failed", "resolver_failed",
					logging.String(logging.FieldPath, st.rec.Path),
					logging.Error(err),
					logging.String(logging.FieldImpact, "no tag write planned for this file"),
				)
			}
			if best, ok := providers.Best(candidates); ok && best.Confidence >= threshold {
				proposed := st.rec.Tags.Overlay(best.Tags)
				if proposed != st.rec.Tags {
					st.effective = proposed
					st.proposal = &best
				}
			}
		}

		if tmpl == nil || st.root == "" || st.pinned {
			continue
		}
		target := filepath.Join(st.root, tmpl.Render(st.effective, settings.NormalizeUnicode)) +
			strings.ToLower(filepath.Ext(st.rec.Path))
		if target == st.rec.Path {
			continue
		}
		confidence := providers.TagConfidence(st.effective)
		if confidence < threshold {
			summary.NeedsReview++
			logger.Debug("layout skipped; tags incomplete",
				append(logging.Args(logging.DecisionAttrs("layout", "review", "confidence below threshold")...),
					logging.String(logging.FieldPath, st.rec.Path),
					logging.Float64("confidence", confidence))...,
			)
			continue
		}
		a := Action{
			Kind:          KindMove,
			Purpose:       PurposeLayout,
			Source:        st.rec.Path,
			Justification: fmt.Sprintf("layout %q (tag confidence %.2f)", settings.LayoutTemplate, confidence),
			Confidence:    confidence,
			Provenance:    providers.ProvenanceEmbeddedTags,
			Snapshot:      snapshotOf(st.rec),
		}
		if st.proposal != nil {
			a.Provenance = st.proposal.Provenance
		}
		layoutClaims = append(layoutClaims, claim{action: &a, desired: target})
	}

	// Step 3: collisions. Dedupe claims resolve first since they run first.
	dedupeActions, dedupeConflicts := resolveClaims(dedupeClaims, res, settings.ConflictMode)
	layoutActions, layoutConflicts := resolveClaims(layoutClaims, res, settings.ConflictMode)
	conflicts := append(dedupeConflicts, layoutConflicts...)
	for _, c := range conflicts {
		logging.WarnWithContext(logger, "destination collision; actions omitted", "plan_conflict",
			logging.String("destination", c.Destination),
			logging.Int("sources", len(c.Sources)),
			logging.String("reason", c.Reason),
			logging.String(logging.FieldImpact, "affected files stay in place"),
			logging.String(logging.FieldErrorHint, "fix the conflicting tags or use conflict_mode = \"suffix\""),
		)
	}
	byPath := make(map[string]*fileState, len(kept))
	for _, st := range kept {
		byPath[st.rec.Path] = st
	}
	for i := range layoutActions {
		a := &layoutActions[i]
		if filepath.Dir(a.Source) == filepath.Dir(a.Destination) {
			a.Kind = KindRename
		}
		byPath[a.Source].finalPath = a.Destination
	}
	for i := range dedupeActions {
		a := &dedupeActions[i]
		if a.Kind != KindRename {
			continue
		}
		if filepath.Dir(a.Source) != filepath.Dir(a.Destination) {
			a.Kind = KindMove
		}
		if st := byPath[a.Source]; st != nil {
			st.finalPath = a.Destination
		}
	}

	actions := make([]Action, 0, len(dedupeActions)+len(deletes)+len(layoutActions))
	actions = append(actions, dedupeActions...)
	actions = append(actions, deletes...)
	actions = append(actions, layoutActions...)

	// Step 4: tag writes on the file's final path.
	for _, st := range kept {
		if st.proposal == nil {
			continue
		}
		if !tags.Writable(st.rec.Container) {
			summary.TagUnsupported++
			continue
		}
		proposed := st.effective
		actions = append(actions, Action{
			Kind:          KindTagWrite,
			Purpose:       PurposeMetadata,
			Source:        st.finalPath,
			Tags:          &proposed,
			Justification: fmt.Sprintf("resolved tags differ from embedded tags (%s)", st.proposal.Provenance),
			Confidence:    st.proposal.Confidence,
			Provenance:    st.proposal.Provenance,
			Snapshot:      snapshotOf(st.rec),
		})
	}

	// Step 5: album art sidecars, one per destination directory.
	if settings.ArtEnabled && in.Art != nil && settings.ArtFileName != "" {
		artActions, rejected, err := p.planArt(ctx, logger, in.Art, kept, settings, res)
		if err != nil {
			return nil, err
		}
		summary.ArtRejected = rejected
		actions = append(actions, artActions...)
	}

	sort.SliceStable(actions, func(i, j int) bool { return lessAction(actions[i], actions[j]) })
	for i := range actions {
		actions[i].Ordinal = i + 1
		summary.ByKind[actions[i].Kind]++
	}
	summary.Actions = len(actions)
	summary.Conflicts = len(conflicts)

	plan := &Plan{
		Version:            ArtifactVersion,
		LibraryFingerprint: LibraryFingerprint(records),
		Roots:              roots,
		Settings:           settings,
		Actions:            actions,
		Conflicts:          conflicts,
		Summary:            summary,
	}
	plan.ID = planID(plan)

	logger.Info("plan built",
		logging.String("plan_id", plan.ID),
		logging.Int("actions", summary.Actions),
		logging.Int("duplicate_groups", summary.DuplicateGroups),
		logging.Int("needs_review", summary.NeedsReview),
		logging.Int("conflicts", summary.Conflicts),
		logging.Int64("reclaimable_bytes", summary.ReclaimableBytes),
	)
	return plan, nil
}

func (p *Planner) planArt(ctx context.Context, logger *slog.Logger, provider providers.ArtProvider, kept []*fileState, settings Settings, res *reservations) ([]Action, int, error) {
	ordered := append([]*fileState(nil), kept...)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].finalPath < ordered[j].finalPath })

	ext := strings.ToLower(filepath.Ext(settings.ArtFileName))
	done := make(map[string]bool)
	rejected := 0
	var actions []Action
	for _, st := range ordered {
		if err := ctx.Err(); err != nil {
			return nil, 0, err
		}
		sidecar := filepath.Join(filepath.Dir(st.finalPath), settings.ArtFileName)
		if done[sidecar] {
			continue
		}
		if res.occupied(sidecar, sidecar) {
			done[sidecar] = true
			continue
		}
		art, err := provider.FetchArt(ctx, st.rec)
		if err != nil {
			logger.Debug("album art lookup failed",
				logging.String(logging.FieldPath, st.rec.Path),
				logging.Error(err),
			)
			continue
		}
		if art == nil {
			continue
		}
		if min(art.Width, art.Height) < settings.ArtMinDimension || !providers.ExtensionMatches(art.Format, ext) {
			rejected++
			logger.Debug("album art rejected",
				append(logging.Args(logging.DecisionAttrs("art", "rejected", "below minimum dimension or wrong format")...),
					logging.String(logging.FieldPath, st.rec.Path),
					logging.Int("width", art.Width),
					logging.Int("height", art.Height),
					logging.String("format", art.Format))...,
			)
			continue
		}
		done[sidecar] = true
		res.reserve(sidecar, sidecar)
		actions = append(actions, Action{
			Kind:          KindArtWrite,
			Purpose:       PurposeArt,
			Source:        st.finalPath,
			Destination:   sidecar,
			Art:           &ArtRef{Hash: art.Hash(), MIME: art.MIME, Width: art.Width, Height: art.Height, Size: len(art.Data), Provenance: art.Provenance},
			Justification: fmt.Sprintf("%dx%d %s art for %s", art.Width, art.Height, art.Format, filepath.Base(filepath.Dir(sidecar))),
			Confidence:    1,
			Provenance:    art.Provenance,
		})
	}
	return actions, rejected, nil
}

// FallbackDecision is the decision for non-canonical members that carry no
// override.
func FallbackDecision(settings Settings) duplicates.Decision {
	switch strings.ToLower(settings.DedupeStrategy) {
	case config.DedupeQuarantine:
		return duplicates.DecisionQuarantine
	case config.DedupeMove:
		return duplicates.DecisionMove
	case config.DedupeDelete:
		return duplicates.DecisionDelete
	default:
		return duplicates.DecisionSkip
	}
}

// effectiveDecision maps a resolved member decision onto what the settings
// allow. A non-empty reason means the member is left for manual review.
func effectiveDecision(ma duplicates.MemberAction, settings Settings) (duplicates.Decision, string) {
	quarantine := settings.QuarantineEnabled && settings.QuarantineDir != ""
	switch ma.Decision {
	case duplicates.DecisionReview:
		return ma.Decision, "review requested by group override"
	case duplicates.DecisionQuarantine:
		if !quarantine {
			return ma.Decision, "quarantine requested but no quarantine directory is enabled"
		}
	case duplicates.DecisionMove:
		if settings.DupeDir == "" {
			return ma.Decision, "move requested but dupe_dir is not set"
		}
	case duplicates.DecisionDelete:
		// Deletes are refused while quarantine is on; the file is
		// quarantined instead.
		if settings.QuarantineEnabled {
			if !quarantine {
				return ma.Decision, "delete requested while quarantine is enabled without a directory"
			}
			return duplicates.DecisionQuarantine, ""
		}
	case duplicates.DecisionRename:
		if strings.TrimSpace(ma.Template) == "" {
			return ma.Decision, "rename requested but no template was given"
		}
	}
	return ma.Decision, ""
}

// renameTarget renders a rename override template next to the file.
func renameTarget(ma duplicates.MemberAction, settings Settings) (string, error) {
	tmpl, err := ParseTemplate(ma.Template)
	if err != nil {
		return "", err
	}
	path := ma.Record.Path
	return filepath.Join(filepath.Dir(path), tmpl.Render(ma.Record.Tags, settings.NormalizeUnicode)) +
		strings.ToLower(filepath.Ext(path)), nil
}

func dedupeJustification(g duplicates.Group) string {
	switch g.Reason {
	case duplicates.ReasonFingerprintMatch:
		return fmt.Sprintf("acoustic duplicate of %s", g.Canonical.Path)
	default:
		return fmt.Sprintf("exact duplicate of %s", g.Canonical.Path)
	}
}

func snapshotOf(rec identitycache.FileRecord) *Snapshot {
	return &Snapshot{Size: rec.Size, Hash: rec.ContentHash}
}

// mirrorUnder maps an absolute path into base, keeping its full directory
// structure so files from different roots never share a destination.
func mirrorUnder(base, path string) string {
	return filepath.Join(base, strings.TrimPrefix(filepath.Clean(path), string(filepath.Separator)))
}

func cleanRoots(roots []string) []string {
	out := make([]string, 0, len(roots))
	seen := make(map[string]bool, len(roots))
	for _, r := range roots {
		r = filepath.Clean(r)
		if !seen[r] {
			seen[r] = true
			out = append(out, r)
		}
	}
	sort.Strings(out)
	return out
}

func usableRecords(records []identitycache.FileRecord) []identitycache.FileRecord {
	out := make([]identitycache.FileRecord, 0, len(records))
	for _, rec := range records {
		if rec.Usable() {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}

// rootFor returns the most specific configured root containing rec.
func rootFor(roots []string, rec identitycache.FileRecord) string {
	best := ""
	for _, root := range roots {
		if fileutil.Within(root, rec.Path) && len(root) > len(best) {
			best = root
		}
	}
	return best
}
