package testsupport

import (
	"os"
	"path/filepath"
	"testing"

	"audioclean/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config rooted in a per-test temp directory with one
// library root at <base>/library. Fingerprinting and art are disabled so
// tests do not depend on fpcalc or image fixtures unless they opt in.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.LibraryRoots = []string{filepath.Join(base, "library")}
	cfgVal.Paths.StateDir = filepath.Join(base, "state")
	cfgVal.Paths.QuarantineDir = filepath.Join(base, "quarantine")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Scan.Fingerprint = false
	cfgVal.Scan.Workers = 2
	cfgVal.Duplicates.FingerprintEnabled = false
	cfgVal.Art.Enabled = false

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	for _, root := range builder.cfg.Paths.LibraryRoots {
		if err := os.MkdirAll(root, 0o755); err != nil {
			t.Fatalf("mkdir library root: %v", err)
		}
	}
	return builder.cfg
}

// WithRoots replaces the library roots with the named subdirectories of the
// test base directory.
func WithRoots(names ...string) ConfigOption {
	return func(b *configBuilder) {
		roots := make([]string, 0, len(names))
		for _, name := range names {
			roots = append(roots, filepath.Join(b.baseDir, name))
		}
		b.cfg.Paths.LibraryRoots = roots
	}
}

// WithStrategy sets the dedupe strategy.
func WithStrategy(strategy string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Planner.DedupeStrategy = strategy
		switch strategy {
		case config.DedupeDelete:
			b.cfg.Apply.QuarantineEnabled = false
		case config.DedupeMove:
			b.cfg.Planner.DupeDir = filepath.Join(b.baseDir, "dupes")
		}
	}
}

// WithLayout enables or disables the layout step.
func WithLayout(enabled bool) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Planner.LayoutEnabled = enabled
	}
}

// WithStubbedBinaries writes stub executables for the provided names and
// prepends them to PATH. If names is empty, fpcalc is stubbed.
func WithStubbedBinaries(names ...string) ConfigOption {
	return func(b *configBuilder) {
		if len(names) == 0 {
			names = []string{"fpcalc"}
		}
		binDir := filepath.Join(b.baseDir, "bin")
		if err := os.MkdirAll(binDir, 0o755); err != nil {
			b.t.Fatalf("mkdir bin dir: %v", err)
		}
		script := []byte("#!/bin/sh\nexit 0\n")
		for _, name := range names {
			target := filepath.Join(binDir, name)
			if err := os.WriteFile(target, script, 0o755); err != nil {
				b.t.Fatalf("write stub %s: %v", name, err)
			}
		}
		b.cfg.Scan.FpcalcBinary = filepath.Join(binDir, "fpcalc")

		oldPath := os.Getenv("PATH")
		if err := os.Setenv("PATH", binDir+string(os.PathListSeparator)+oldPath); err != nil {
			b.t.Fatalf("set PATH: %v", err)
		}
		b.t.Cleanup(func() {
			_ = os.Setenv("PATH", oldPath)
		})
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.StateDir)
}

// LibraryRoot returns the first library root.
func LibraryRoot(cfg *config.Config) string {
	return cfg.Paths.LibraryRoots[0]
}
