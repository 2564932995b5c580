// Package preflight provides readiness checks for the directories and
// external binaries audioclean depends on.
//
// The CLI "audioclean doctor" command runs RunAll and renders the results.
// The workflow calls RunAll before apply and refuses to start when a
// required check fails. Warnings (for example a quarantine directory on a
// different file system than a library root, which turns quarantine moves
// into copies) are reported but never block.
package preflight
