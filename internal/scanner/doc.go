// Package scanner walks library roots and refreshes the identity cache.
//
// Files whose size and modification time match their cached record are
// reused without being read. New or changed files are hashed, fingerprinted
// when they are recognized audio, and have their embedded tags captured.
// Hashing runs on a bounded worker pool while a single goroutine owns every
// cache write.
package scanner
