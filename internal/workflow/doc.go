// Package workflow wires configuration, stores and components into the
// operations the CLI exposes: scan, analyze, plan, apply and undo.
//
// The Manager owns the identity cache and journal for one process. Mutating
// operations (scan, apply, undo) take an exclusive run lock on the state
// directory so two audioclean processes never interleave file system
// changes. Analyze and plan rescan first; unchanged files are served from
// the cache, so this is cheap on a warm library.
//
// Add a new operation by composing the existing components here rather than
// reaching for the stores from the CLI directly.
package workflow
