package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pelletier/go-toml/v2"

	"audioclean/internal/config"
)

func TestLoadDefaultConfigExpandsPaths(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)
	t.Chdir(t.TempDir())

	cfg, resolved, exists, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if resolved == "" {
		t.Fatal("expected resolved path")
	}
	if exists {
		t.Fatal("expected config file to be absent in temp HOME")
	}

	wantState := filepath.Join(tempHome, ".local", "share", "audioclean")
	if cfg.Paths.StateDir != wantState {
		t.Fatalf("unexpected state dir: got %q want %q", cfg.Paths.StateDir, wantState)
	}
	if cfg.Paths.QuarantineDir != filepath.Join(wantState, "quarantine") {
		t.Fatalf("unexpected quarantine dir: %q", cfg.Paths.QuarantineDir)
	}
	if cfg.Paths.LogDir != filepath.Join(wantState, "logs") {
		t.Fatalf("unexpected log dir: %q", cfg.Paths.LogDir)
	}
	if cfg.CachePath() != filepath.Join(wantState, "cache.db") {
		t.Fatalf("unexpected cache path: %q", cfg.CachePath())
	}
	if cfg.JournalPath() != filepath.Join(wantState, "journal", "journal.db") {
		t.Fatalf("unexpected journal path: %q", cfg.JournalPath())
	}
	if cfg.Duplicates.KeepPolicy != config.KeepBestQuality {
		t.Fatalf("unexpected keep policy: %q", cfg.Duplicates.KeepPolicy)
	}
	if cfg.Planner.DedupeStrategy != config.DedupeQuarantine {
		t.Fatalf("unexpected dedupe strategy: %q", cfg.Planner.DedupeStrategy)
	}
	if cfg.Planner.ConfidenceThreshold != 0.85 {
		t.Fatalf("unexpected confidence threshold: %v", cfg.Planner.ConfidenceThreshold)
	}
	if cfg.Duplicates.FingerprintThreshold != 0.90 {
		t.Fatalf("unexpected fingerprint threshold: %v", cfg.Duplicates.FingerprintThreshold)
	}
	if len(cfg.Scan.Extensions) != len(config.DefaultExtensions()) {
		t.Fatalf("unexpected extensions: %v", cfg.Scan.Extensions)
	}

	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories failed: %v", err)
	}
	for _, dir := range []string{cfg.Paths.StateDir, cfg.Paths.LogDir, cfg.JournalDir(), cfg.Paths.QuarantineDir} {
		info, err := os.Stat(dir)
		if err != nil {
			t.Fatalf("expected directory %q to exist: %v", dir, err)
		}
		if !info.IsDir() {
			t.Fatalf("expected %q to be directory", dir)
		}
	}
}

func TestLoadCustomPath(t *testing.T) {
	tempDir := t.TempDir()
	configPath := filepath.Join(tempDir, "audioclean.toml")

	type payload struct {
		Paths struct {
			LibraryRoots []string `toml:"library_roots"`
			StateDir     string   `toml:"state_dir"`
		} `toml:"paths"`
		Scan struct {
			Extensions []string `toml:"extensions"`
		} `toml:"scan"`
		Duplicates struct {
			KeepPolicy     string   `toml:"keep_policy"`
			PreferredRoots []string `toml:"preferred_roots"`
		} `toml:"duplicates"`
		Planner struct {
			ConflictMode string `toml:"conflict_mode"`
		} `toml:"planner"`
	}
	custom := payload{}
	custom.Paths.LibraryRoots = []string{filepath.Join(tempDir, "music"), filepath.Join(tempDir, "music")}
	custom.Paths.StateDir = filepath.Join(tempDir, "state")
	custom.Scan.Extensions = []string{".FLAC", "mp3", "flac"}
	custom.Duplicates.KeepPolicy = " Path_Priority "
	custom.Duplicates.PreferredRoots = []string{filepath.Join(tempDir, "music")}
	custom.Planner.ConflictMode = "OMIT"
	data, err := toml.Marshal(custom)
	if err != nil {
		t.Fatalf("marshal custom config: %v", err)
	}
	if err := os.WriteFile(configPath, data, 0o644); err != nil {
		t.Fatalf("write custom config: %v", err)
	}

	cfg, resolved, exists, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists {
		t.Fatal("expected exists to be true")
	}
	if resolved != configPath {
		t.Fatalf("unexpected resolved path: got %q want %q", resolved, configPath)
	}
	if len(cfg.Paths.LibraryRoots) != 1 {
		t.Fatalf("expected deduplicated library roots, got %v", cfg.Paths.LibraryRoots)
	}
	if got := strings.Join(cfg.Scan.Extensions, ","); got != "flac,mp3" {
		t.Fatalf("unexpected normalized extensions: %q", got)
	}
	if cfg.Duplicates.KeepPolicy != config.KeepPathPriority {
		t.Fatalf("expected path_priority, got %q", cfg.Duplicates.KeepPolicy)
	}
	if cfg.Planner.ConflictMode != config.ConflictOmit {
		t.Fatalf("expected omit conflict mode, got %q", cfg.Planner.ConflictMode)
	}
	if cfg.Paths.QuarantineDir != filepath.Join(tempDir, "state", "quarantine") {
		t.Fatalf("quarantine dir should follow state dir, got %q", cfg.Paths.QuarantineDir)
	}
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "audioclean.toml")
	if err := os.WriteFile(configPath, []byte("[scan]\nbogus = 1\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, _, _, err := config.Load(configPath); err == nil {
		t.Fatal("expected unknown key to be rejected")
	}
}

func TestEnvVarOverridesConfigFile(t *testing.T) {
	tempDir := t.TempDir()
	configPath := filepath.Join(tempDir, "audioclean.toml")
	contents := "[logging]\nlevel = \"warn\"\n\n[scan]\nworkers = 2\n"
	if err := os.WriteFile(configPath, []byte(contents), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	stateDir := filepath.Join(tempDir, "env-state")
	t.Setenv("AUDIOCLEAN_LOG_LEVEL", "DEBUG")
	t.Setenv("AUDIOCLEAN_WORKERS", "7")
	t.Setenv("AUDIOCLEAN_STATE_DIR", stateDir)
	t.Setenv("AUDIOCLEAN_OFFLINE", "true")

	cfg, _, _, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("expected log level from env, got %q", cfg.Logging.Level)
	}
	if cfg.Scan.Workers != 7 {
		t.Errorf("expected workers from env, got %d", cfg.Scan.Workers)
	}
	if cfg.Paths.StateDir != stateDir {
		t.Errorf("expected state dir from env, got %q", cfg.Paths.StateDir)
	}
	if !cfg.Planner.Offline {
		t.Error("expected offline from env")
	}
}

func TestCreateSample(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sample.toml")
	if err := config.CreateSample(path); err != nil {
		t.Fatalf("CreateSample failed: %v", err)
	}

	contents, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read sample: %v", err)
	}
	if !strings.Contains(string(contents), "dedupe_strategy") {
		t.Fatalf("sample config missing planner settings: %s", contents)
	}

	var cfg config.Config
	if err := toml.Unmarshal(contents, &cfg); err != nil {
		t.Fatalf("unmarshal sample: %v", err)
	}
	if !strings.Contains(cfg.Paths.StateDir, "audioclean") {
		t.Fatalf("expected state dir to contain audioclean, got %q", cfg.Paths.StateDir)
	}
	if cfg.Planner.LayoutTemplate != config.Default().Planner.LayoutTemplate {
		t.Fatalf("sample layout template drifted from default: %q", cfg.Planner.LayoutTemplate)
	}
}

func validConfig(t *testing.T) config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Paths.StateDir = t.TempDir()
	cfg.Paths.QuarantineDir = filepath.Join(cfg.Paths.StateDir, "quarantine")
	return cfg
}

func TestValidateDetectsInvalidValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.Config)
	}{
		{"unknown keep policy", func(c *config.Config) { c.Duplicates.KeepPolicy = "largest" }},
		{"path priority without roots", func(c *config.Config) { c.Duplicates.KeepPolicy = config.KeepPathPriority }},
		{"threshold above one", func(c *config.Config) { c.Duplicates.FingerprintThreshold = 1.5 }},
		{"negative confidence", func(c *config.Config) { c.Planner.ConfidenceThreshold = -0.1 }},
		{"unknown strategy", func(c *config.Config) { c.Planner.DedupeStrategy = "shred" }},
		{"delete with quarantine", func(c *config.Config) { c.Planner.DedupeStrategy = config.DedupeDelete }},
		{"move without dupe dir", func(c *config.Config) { c.Planner.DedupeStrategy = config.DedupeMove }},
		{"unknown conflict mode", func(c *config.Config) { c.Planner.ConflictMode = "overwrite" }},
		{"quarantine without dir", func(c *config.Config) { c.Paths.QuarantineDir = "" }},
		{"zero parallel workers", func(c *config.Config) { c.Apply.ParallelWorkers = 0 }},
		{"negative workers", func(c *config.Config) { c.Scan.Workers = -1 }},
		{"art file name with slash", func(c *config.Config) { c.Art.FileName = "art/cover.jpg" }},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := validConfig(t)
			tc.mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatalf("expected validation error for %s", tc.name)
			}
		})
	}
}

func TestValidateAcceptsDeleteWithoutQuarantine(t *testing.T) {
	cfg := validConfig(t)
	cfg.Planner.DedupeStrategy = config.DedupeDelete
	cfg.Apply.QuarantineEnabled = false
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected delete strategy to validate when quarantine disabled: %v", err)
	}
}

func TestEnsureDirectoriesSkipsUnsetLogDir(t *testing.T) {
	state := t.TempDir()
	cfg := config.Default()
	cfg.Paths.StateDir = state
	cfg.Paths.QuarantineDir = filepath.Join(state, "quarantine")
	cfg.Paths.LogDir = ""

	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}
	for _, dir := range []string{cfg.JournalDir(), cfg.Paths.QuarantineDir} {
		if info, err := os.Stat(dir); err != nil || !info.IsDir() {
			t.Fatalf("expected directory %s: %v", dir, err)
		}
	}
}
