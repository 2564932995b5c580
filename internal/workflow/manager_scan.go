package workflow

import (
	"context"
	"log/slog"

	"audioclean/internal/deps"
	"audioclean/internal/duplicates"
	"audioclean/internal/identitycache"
	"audioclean/internal/logging"
	"audioclean/internal/media/fingerprint"
	"audioclean/internal/report"
	"audioclean/internal/scanner"
	"audioclean/internal/services"
)

// ScanOptions customizes a scan.
type ScanOptions struct {
	// Roots overrides the configured library roots.
	Roots    []string
	Progress func(scanner.Progress)
}

// Scan refreshes the identity cache for the library roots.
func (m *Manager) Scan(ctx context.Context, opts ScanOptions) (*scanner.Report, error) {
	var rep *scanner.Report
	err := m.withLock(ctx, "scan", func(ctx context.Context) error {
		var err error
		rep, err = m.scan(ctx, opts)
		return err
	})
	return rep, err
}

func (m *Manager) scan(ctx context.Context, opts ScanOptions) (*scanner.Report, error) {
	roots := opts.Roots
	if len(roots) == 0 {
		roots = m.cfg.Paths.LibraryRoots
	}
	if len(roots) == 0 {
		return nil, services.Wrap(services.ErrConfiguration, "scan", "roots",
			"no library roots configured; set paths.library_roots or pass roots", nil)
	}
	s := scanner.New(m.cache, m.scannerOptions(opts)...)
	return s.Scan(ctx, roots)
}

func (m *Manager) scannerOptions(opts ScanOptions) []scanner.Option {
	options := []scanner.Option{
		scanner.WithLogger(m.logger),
		scanner.WithExtensions(m.cfg.Scan.Extensions),
		scanner.WithFollowSymlinks(m.cfg.Scan.FollowSymlinks),
		scanner.WithExcludeDirs(m.excludedDirs()...),
	}
	if m.cfg.Scan.Workers > 0 {
		options = append(options, scanner.WithWorkers(m.cfg.Scan.Workers))
	}
	if opts.Progress != nil {
		options = append(options, scanner.WithProgress(opts.Progress))
	}
	if fp := m.fingerprinter(m.logger); fp != nil {
		options = append(options, scanner.WithFingerprinter(fp))
	}
	return options
}

// excludedDirs keeps quarantined and moved duplicates out of the scan when
// they live under a library root.
func (m *Manager) excludedDirs() []string {
	var dirs []string
	if m.cfg.Paths.QuarantineDir != "" {
		dirs = append(dirs, m.cfg.Paths.QuarantineDir)
	}
	if m.cfg.Planner.DupeDir != "" {
		dirs = append(dirs, m.cfg.Planner.DupeDir)
	}
	return append(dirs, m.cfg.Paths.StateDir)
}

func (m *Manager) fingerprinter(logger *slog.Logger) scanner.Fingerprinter {
	if !m.cfg.Scan.Fingerprint {
		return nil
	}
	status := deps.CheckBinaries([]deps.Requirement{deps.FpcalcRequirement(m.cfg.Scan.FpcalcBinary)})[0]
	if !status.Available {
		logging.WarnWithContext(logger, "fpcalc unavailable; fingerprints skipped", "fingerprint_disabled",
			logging.String("binary", m.cfg.Scan.FpcalcBinary),
			logging.String("detail", status.Detail),
			logging.String(logging.FieldImpact, "only byte-identical duplicates are detected"),
			logging.String(logging.FieldErrorHint, "install chromaprint or set scan.fpcalc_binary"),
		)
		return nil
	}
	return fingerprint.NewFpcalc(status.Command)
}

// detect groups duplicates among records.
func (m *Manager) detect(records []identitycache.FileRecord) ([]duplicates.Group, error) {
	policy, err := duplicates.ParseKeepPolicy(m.cfg.Duplicates.KeepPolicy)
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "analyze", "keep policy", "", err)
	}
	return duplicates.Detect(records, duplicates.Options{
		Policy:         policy,
		PreferredRoots: m.cfg.Duplicates.PreferredRoots,
		Fingerprints:   m.cfg.Duplicates.FingerprintEnabled,
		Threshold:      m.cfg.Duplicates.FingerprintThreshold,
	}), nil
}

// Analysis bundles the scan behind an analyze report.
type Analysis struct {
	Scan   *scanner.Report
	Report report.Analysis
}

// Analyze rescans and reports duplicates without planning changes.
func (m *Manager) Analyze(ctx context.Context, opts ScanOptions) (*Analysis, error) {
	var out *Analysis
	err := m.withLock(ctx, "analyze", func(ctx context.Context) error {
		rep, err := m.scan(ctx, opts)
		if err != nil {
			return err
		}
		groups, err := m.detect(rep.Records)
		if err != nil {
			return err
		}
		out = &Analysis{Scan: rep, Report: report.Analyze(scannedRoots(rep), rep.Records, groups)}
		return nil
	})
	return out, err
}

func scannedRoots(rep *scanner.Report) []string {
	roots := make([]string, 0, len(rep.Roots))
	for _, rc := range rep.Roots {
		roots = append(roots, rc.Root)
	}
	return roots
}
