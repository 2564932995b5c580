package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateScan(); err != nil {
		return err
	}
	if err := c.validateDuplicates(); err != nil {
		return err
	}
	if err := c.validatePlanner(); err != nil {
		return err
	}
	if err := c.validateApply(); err != nil {
		return err
	}
	if err := c.validateArt(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validatePaths() error {
	if strings.TrimSpace(c.Paths.StateDir) == "" {
		return errors.New("paths.state_dir must be set")
	}
	for _, root := range c.Paths.LibraryRoots {
		if !filepath.IsAbs(root) {
			return fmt.Errorf("paths.library_roots entry %q must be absolute", root)
		}
	}
	return nil
}

func (c *Config) validateScan() error {
	if c.Scan.Workers < 0 {
		return errors.New("scan.workers must be >= 0")
	}
	if c.Scan.Fingerprint && strings.TrimSpace(c.Scan.FpcalcBinary) == "" {
		return errors.New("scan.fpcalc_binary must be set when scan.fingerprint is true")
	}
	return nil
}

func (c *Config) validateDuplicates() error {
	switch c.Duplicates.KeepPolicy {
	case KeepBestQuality, KeepNewest, KeepPathPriority:
	default:
		return fmt.Errorf("duplicates.keep_policy %q must be one of %s, %s, %s",
			c.Duplicates.KeepPolicy, KeepBestQuality, KeepNewest, KeepPathPriority)
	}
	if c.Duplicates.KeepPolicy == KeepPathPriority && len(c.Duplicates.PreferredRoots) == 0 {
		return errors.New("duplicates.preferred_roots must include at least one prefix when duplicates.keep_policy is path_priority")
	}
	if err := ensureUnitInterval("duplicates.fingerprint_threshold", c.Duplicates.FingerprintThreshold); err != nil {
		return err
	}
	return nil
}

func (c *Config) validatePlanner() error {
	switch c.Planner.DedupeStrategy {
	case DedupeQuarantine, DedupeOff:
	case DedupeMove:
		if strings.TrimSpace(c.Planner.DupeDir) == "" {
			return errors.New("planner.dupe_dir must be set when planner.dedupe_strategy is move")
		}
	case DedupeDelete:
		if c.Apply.QuarantineEnabled {
			return errors.New("planner.dedupe_strategy delete requires apply.quarantine_enabled = false")
		}
	default:
		return fmt.Errorf("planner.dedupe_strategy %q must be one of quarantine, move, delete, off", c.Planner.DedupeStrategy)
	}
	if c.Planner.DedupeStrategy == DedupeQuarantine && !c.Apply.QuarantineEnabled {
		return errors.New("planner.dedupe_strategy quarantine requires apply.quarantine_enabled = true")
	}
	switch c.Planner.ConflictMode {
	case ConflictSuffix, ConflictOmit:
	default:
		return fmt.Errorf("planner.conflict_mode %q must be suffix or omit", c.Planner.ConflictMode)
	}
	if err := ensureUnitInterval("planner.confidence_threshold", c.Planner.ConfidenceThreshold); err != nil {
		return err
	}
	if c.Planner.LayoutEnabled && !strings.Contains(c.Planner.LayoutTemplate, "{") {
		return errors.New("planner.layout_template must reference at least one tag field")
	}
	return nil
}

func (c *Config) validateApply() error {
	if c.Apply.QuarantineEnabled && strings.TrimSpace(c.Paths.QuarantineDir) == "" {
		return errors.New("paths.quarantine_dir must be set when apply.quarantine_enabled is true")
	}
	if c.Apply.ParallelWorkers <= 0 {
		return errors.New("apply.parallel_workers must be positive")
	}
	return nil
}

func (c *Config) validateArt() error {
	if c.Art.Enabled && strings.ContainsAny(c.Art.FileName, `/\`) {
		return errors.New("art.file_name must be a plain file name")
	}
	return nil
}

func ensureUnitInterval(key string, value float64) error {
	if value < 0 || value > 1 {
		return fmt.Errorf("%s must be between 0 and 1", key)
	}
	return nil
}
