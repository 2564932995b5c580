// Package undo reverses applied journal sessions.
//
// Entries are replayed in strict reverse sequence order through the
// journal's paged reverse reader. Before reversing an entry the current file
// is checked against the journaled after-state; entries whose files were
// changed or removed since are reported as inconsistencies and skipped while
// the replay continues.
package undo
