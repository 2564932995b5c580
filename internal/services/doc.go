// Package services defines shared utilities consumed by the scan, plan, apply
// and undo workflows.
//
// Key responsibilities:
//   - Context helpers that stamp journal session IDs, stage names, and
//     correlation identifiers for logging.
//   - Structured error markers plus the Wrap helper that keep failure
//     classification uniform across packages.
//   - The Outcome type every partially-failing command reports instead of a
//     bare success flag.
package services
