// Package main hosts the audioclean CLI entrypoint and command graph.
//
// Commands load configuration lazily, open a workflow manager for the
// duration of one invocation and render results as tables, or as JSON with
// --json. Library mutations only happen through apply and undo; scan,
// analyze and plan never touch audio files.
package main
