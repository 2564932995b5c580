package planner

import (
	"fmt"
	"strings"

	"audioclean/internal/config"
	"audioclean/internal/services"
)

// SettingsFromConfig snapshots the planning-relevant configuration.
func SettingsFromConfig(cfg *config.Config) Settings {
	return Settings{
		DedupeStrategy:       cfg.Planner.DedupeStrategy,
		KeepPolicy:           cfg.Duplicates.KeepPolicy,
		PreferredRoots:       append([]string(nil), cfg.Duplicates.PreferredRoots...),
		FingerprintEnabled:   cfg.Duplicates.FingerprintEnabled,
		FingerprintThreshold: cfg.Duplicates.FingerprintThreshold,
		QuarantineEnabled:    cfg.Apply.QuarantineEnabled,
		QuarantineDir:        cfg.Paths.QuarantineDir,
		DupeDir:              cfg.Planner.DupeDir,
		LayoutEnabled:        cfg.Planner.LayoutEnabled,
		LayoutTemplate:       cfg.Planner.LayoutTemplate,
		NormalizeUnicode:     cfg.Planner.NormalizeUnicode,
		ConfidenceThreshold:  cfg.Planner.ConfidenceThreshold,
		ConflictMode:         cfg.Planner.ConflictMode,
		ArtEnabled:           cfg.Art.Enabled,
		ArtMinDimension:      cfg.Art.MinDimension,
		ArtFileName:          cfg.Art.FileName,
	}
}

func (s Settings) validate() error {
	fail := func(msg string) error {
		return services.Wrap(services.ErrConfiguration, "plan", "settings", msg, nil)
	}
	switch strings.ToLower(s.DedupeStrategy) {
	case config.DedupeOff:
	case config.DedupeQuarantine:
		if !s.QuarantineEnabled || s.QuarantineDir == "" {
			return fail("quarantine strategy requires an enabled quarantine directory")
		}
	case config.DedupeMove:
		if s.DupeDir == "" {
			return fail("move strategy requires dupe_dir")
		}
	case config.DedupeDelete:
		if s.QuarantineEnabled {
			return fail("delete strategy is only allowed when quarantine is disabled")
		}
	default:
		return fail(fmt.Sprintf("unknown dedupe strategy %q", s.DedupeStrategy))
	}
	switch s.ConflictMode {
	case config.ConflictSuffix, config.ConflictOmit, "":
	default:
		return fail(fmt.Sprintf("unknown conflict mode %q", s.ConflictMode))
	}
	if s.ConfidenceThreshold < 0 || s.ConfidenceThreshold > 1 {
		return fail("confidence_threshold must be within [0,1]")
	}
	return nil
}
