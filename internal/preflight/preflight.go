package preflight

import (
	"context"
	"fmt"

	"audioclean/internal/config"
	"audioclean/internal/deps"
)

// minStateFreeBytes is the free space below which the state directory check
// fails. Journal blobs hold full copies of retagged files.
const minStateFreeBytes = 512 << 20

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	// Warning marks a passed check whose detail deserves attention.
	Warning bool
	Detail  string
}

// RunAll executes all applicable preflight checks for the given config.
// Checks are only run when the corresponding feature is enabled.
func RunAll(ctx context.Context, cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}

	var results []Result

	results = append(results, CheckDirectoryAccess("State directory", cfg.Paths.StateDir))
	results = append(results, CheckFreeSpace("State free space", cfg.Paths.StateDir, minStateFreeBytes))

	for _, root := range cfg.Paths.LibraryRoots {
		results = append(results, CheckDirectoryAccess(fmt.Sprintf("Library root %s", root), root))
	}

	if cfg.Apply.QuarantineEnabled {
		results = append(results, CheckDirectoryAccess("Quarantine directory", cfg.Paths.QuarantineDir))
		for _, root := range cfg.Paths.LibraryRoots {
			results = append(results, CheckSameFilesystem(
				fmt.Sprintf("Quarantine device for %s", root), root, cfg.Paths.QuarantineDir))
		}
	}

	if cfg.Scan.Fingerprint {
		results = append(results, CheckFpcalc(ctx, cfg.Scan.FpcalcBinary))
	}

	return results
}

// Failed returns the results that did not pass.
func Failed(results []Result) []Result {
	var failed []Result
	for _, r := range results {
		if !r.Passed {
			failed = append(failed, r)
		}
	}
	return failed
}

// CheckFpcalc reports whether the chromaprint binary is available. A missing
// binary is a warning: scans still hash files, near-duplicates go undetected.
func CheckFpcalc(_ context.Context, command string) Result {
	status := deps.CheckBinaries([]deps.Requirement{deps.FpcalcRequirement(command)})[0]
	if !status.Available {
		return Result{Name: status.Name, Passed: true, Warning: true,
			Detail: status.Detail + " (near-duplicate detection disabled)"}
	}
	detail := status.Command
	if status.Version != "" {
		detail = status.Version
	}
	return Result{Name: status.Name, Passed: true, Detail: detail}
}
