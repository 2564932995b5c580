package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains library roots and state directory configuration.
type Paths struct {
	LibraryRoots  []string `toml:"library_roots" yaml:"library_roots" json:"library_roots"`
	StateDir      string   `toml:"state_dir" yaml:"state_dir" json:"state_dir"`
	QuarantineDir string   `toml:"quarantine_dir" yaml:"quarantine_dir" json:"quarantine_dir"`
	LogDir        string   `toml:"log_dir" yaml:"log_dir" json:"log_dir"`
}

// Scan contains scanner configuration.
type Scan struct {
	Workers        int      `toml:"workers" yaml:"workers" json:"workers"`
	Extensions     []string `toml:"extensions" yaml:"extensions" json:"extensions"`
	Fingerprint    bool     `toml:"fingerprint" yaml:"fingerprint" json:"fingerprint"`
	FpcalcBinary   string   `toml:"fpcalc_binary" yaml:"fpcalc_binary" json:"fpcalc_binary"`
	FollowSymlinks bool     `toml:"follow_symlinks" yaml:"follow_symlinks" json:"follow_symlinks"`
}

// Duplicates contains duplicate detection configuration.
type Duplicates struct {
	// KeepPolicy selects the canonical member of each group:
	// best_quality, newest, or path_priority.
	KeepPolicy     string   `toml:"keep_policy" yaml:"keep_policy" json:"keep_policy"`
	PreferredRoots []string `toml:"preferred_roots" yaml:"preferred_roots" json:"preferred_roots"`
	// FingerprintThreshold is the minimum similarity (0-1) for two fingerprints
	// to be considered the same recording. Default: 0.90
	FingerprintThreshold float64 `toml:"fingerprint_threshold" yaml:"fingerprint_threshold" json:"fingerprint_threshold"`
	FingerprintEnabled   bool    `toml:"fingerprint_enabled" yaml:"fingerprint_enabled" json:"fingerprint_enabled"`
}

// Planner contains plan construction configuration.
type Planner struct {
	// DedupeStrategy controls what happens to non-canonical duplicates:
	// quarantine, move, delete, or off.
	DedupeStrategy      string  `toml:"dedupe_strategy" yaml:"dedupe_strategy" json:"dedupe_strategy"`
	DupeDir             string  `toml:"dupe_dir" yaml:"dupe_dir" json:"dupe_dir"`
	LayoutTemplate      string  `toml:"layout_template" yaml:"layout_template" json:"layout_template"`
	LayoutEnabled       bool    `toml:"layout_enabled" yaml:"layout_enabled" json:"layout_enabled"`
	NormalizeUnicode    bool    `toml:"normalize_unicode" yaml:"normalize_unicode" json:"normalize_unicode"`
	ConfidenceThreshold float64 `toml:"confidence_threshold" yaml:"confidence_threshold" json:"confidence_threshold"`
	// ConflictMode decides how destination collisions are resolved: suffix or omit.
	ConflictMode string `toml:"conflict_mode" yaml:"conflict_mode" json:"conflict_mode"`
	Offline      bool   `toml:"offline" yaml:"offline" json:"offline"`
}

// Apply contains applier configuration.
type Apply struct {
	QuarantineEnabled bool `toml:"quarantine_enabled" yaml:"quarantine_enabled" json:"quarantine_enabled"`
	Parallel          bool `toml:"parallel" yaml:"parallel" json:"parallel"`
	ParallelWorkers   int  `toml:"parallel_workers" yaml:"parallel_workers" json:"parallel_workers"`
}

// Art contains album art sidecar configuration.
type Art struct {
	Enabled      bool   `toml:"enabled" yaml:"enabled" json:"enabled"`
	MinDimension int    `toml:"min_dimension" yaml:"min_dimension" json:"min_dimension"`
	FileName     string `toml:"file_name" yaml:"file_name" json:"file_name"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format" yaml:"format" json:"format"`
	Level  string `toml:"level" yaml:"level" json:"level"`
	// RetentionDays prunes audioclean-*.log run logs older than this. 0 disables pruning.
	RetentionDays int `toml:"retention_days" yaml:"retention_days" json:"retention_days"`
}

// Config encapsulates all configuration values for audioclean.
//
// Configuration sections by subsystem:
//   - Paths: library roots, state, quarantine and log directories
//   - Scan: worker pool size, recognized extensions, fingerprinting
//   - Duplicates: keep policy and near-duplicate threshold
//   - Planner: dedupe strategy, layout template, confidence gating
//   - Apply: quarantine and parallel execution
//   - Art: album art sidecar validation
//   - Logging: log format and level
type Config struct {
	Paths      Paths      `toml:"paths" yaml:"paths" json:"paths"`
	Scan       Scan       `toml:"scan" yaml:"scan" json:"scan"`
	Duplicates Duplicates `toml:"duplicates" yaml:"duplicates" json:"duplicates"`
	Planner    Planner    `toml:"planner" yaml:"planner" json:"planner"`
	Apply      Apply      `toml:"apply" yaml:"apply" json:"apply"`
	Art        Art        `toml:"art" yaml:"art" json:"art"`
	Logging    Logging    `toml:"logging" yaml:"logging" json:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/audioclean/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&cfg); err != nil {
			var strict *toml.StrictMissingError
			if errors.As(err, &strict) {
				return nil, "", false, fmt.Errorf("parse config: %s", strict.String())
			}
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("audioclean.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates the state, log and journal directories. Unset
// directories are skipped. The quarantine directory is created only when
// quarantine is enabled.
func (c *Config) EnsureDirectories() error {
	dirs := []string{c.Paths.LogDir}
	if strings.TrimSpace(c.Paths.StateDir) != "" {
		dirs = append(dirs, c.Paths.StateDir, c.JournalDir())
	}
	for _, dir := range dirs {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	if c.Apply.QuarantineEnabled && strings.TrimSpace(c.Paths.QuarantineDir) != "" {
		if err := os.MkdirAll(c.Paths.QuarantineDir, 0o755); err != nil {
			return fmt.Errorf("create quarantine directory %q: %w", c.Paths.QuarantineDir, err)
		}
	}
	return nil
}

// CachePath returns the identity cache database location.
func (c *Config) CachePath() string {
	return filepath.Join(c.Paths.StateDir, "cache.db")
}

// JournalDir returns the directory holding the journal database and blobs.
func (c *Config) JournalDir() string {
	return filepath.Join(c.Paths.StateDir, "journal")
}

// JournalPath returns the journal database location.
func (c *Config) JournalPath() string {
	return filepath.Join(c.JournalDir(), "journal.db")
}

// LockPath returns the run lock file location.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.StateDir, "audioclean.lock")
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
