package config

import (
	"fmt"
	"path/filepath"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeScan()
	if err := c.normalizeDuplicates(); err != nil {
		return err
	}
	if err := c.normalizePlanner(); err != nil {
		return err
	}
	c.normalizeApply()
	c.normalizeArt()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.StateDir) == "" {
		c.Paths.StateDir = defaultStateDir
	}
	if c.Paths.StateDir, err = expandPath(c.Paths.StateDir); err != nil {
		return fmt.Errorf("paths.state_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.QuarantineDir) == "" {
		c.Paths.QuarantineDir = filepath.Join(c.Paths.StateDir, defaultQuarantineSubdir)
	}
	if c.Paths.QuarantineDir, err = expandPath(c.Paths.QuarantineDir); err != nil {
		return fmt.Errorf("paths.quarantine_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = filepath.Join(c.Paths.StateDir, defaultLogSubdir)
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	if c.Paths.LibraryRoots, err = expandPaths(c.Paths.LibraryRoots); err != nil {
		return fmt.Errorf("paths.library_roots: %w", err)
	}
	return nil
}

func (c *Config) normalizeScan() {
	if c.Scan.Workers < 0 {
		c.Scan.Workers = 0
	}
	exts := make([]string, 0, len(c.Scan.Extensions))
	seen := make(map[string]struct{}, len(c.Scan.Extensions))
	for _, ext := range c.Scan.Extensions {
		normalized := strings.ToLower(strings.TrimPrefix(strings.TrimSpace(ext), "."))
		if normalized == "" {
			continue
		}
		if _, exists := seen[normalized]; exists {
			continue
		}
		seen[normalized] = struct{}{}
		exts = append(exts, normalized)
	}
	if len(exts) == 0 {
		exts = DefaultExtensions()
	}
	c.Scan.Extensions = exts
	c.Scan.FpcalcBinary = strings.TrimSpace(c.Scan.FpcalcBinary)
	if c.Scan.FpcalcBinary == "" {
		c.Scan.FpcalcBinary = defaultFpcalcBinary
	}
}

func (c *Config) normalizeDuplicates() error {
	c.Duplicates.KeepPolicy = strings.ToLower(strings.TrimSpace(c.Duplicates.KeepPolicy))
	if c.Duplicates.KeepPolicy == "" {
		c.Duplicates.KeepPolicy = defaultKeepPolicy
	}
	var err error
	if c.Duplicates.PreferredRoots, err = expandPaths(c.Duplicates.PreferredRoots); err != nil {
		return fmt.Errorf("duplicates.preferred_roots: %w", err)
	}
	return nil
}

func (c *Config) normalizePlanner() error {
	c.Planner.DedupeStrategy = strings.ToLower(strings.TrimSpace(c.Planner.DedupeStrategy))
	if c.Planner.DedupeStrategy == "" {
		c.Planner.DedupeStrategy = defaultDedupeStrategy
	}
	c.Planner.ConflictMode = strings.ToLower(strings.TrimSpace(c.Planner.ConflictMode))
	if c.Planner.ConflictMode == "" {
		c.Planner.ConflictMode = defaultConflictMode
	}
	c.Planner.LayoutTemplate = strings.TrimSpace(c.Planner.LayoutTemplate)
	if c.Planner.LayoutTemplate == "" {
		c.Planner.LayoutTemplate = defaultLayoutTemplate
	}
	var err error
	if c.Planner.DupeDir, err = expandPath(strings.TrimSpace(c.Planner.DupeDir)); err != nil {
		return fmt.Errorf("planner.dupe_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeApply() {
	if c.Apply.ParallelWorkers <= 0 {
		c.Apply.ParallelWorkers = defaultParallelWorkers
	}
}

func (c *Config) normalizeArt() {
	c.Art.FileName = strings.TrimSpace(c.Art.FileName)
	if c.Art.FileName == "" {
		c.Art.FileName = defaultArtFileName
	}
	if c.Art.MinDimension < 0 {
		c.Art.MinDimension = 0
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "console":
		c.Logging.Format = "console"
	case "json":
	default:
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	if c.Logging.RetentionDays < 0 {
		c.Logging.RetentionDays = 0
	}
}

func expandPaths(values []string) ([]string, error) {
	if len(values) == 0 {
		return nil, nil
	}
	out := make([]string, 0, len(values))
	seen := make(map[string]struct{}, len(values))
	for _, value := range values {
		value = strings.TrimSpace(value)
		if value == "" {
			continue
		}
		expanded, err := expandPath(value)
		if err != nil {
			return nil, err
		}
		if _, exists := seen[expanded]; exists {
			continue
		}
		seen[expanded] = struct{}{}
		out = append(out, expanded)
	}
	return out, nil
}
