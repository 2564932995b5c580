// Package identitycache persists the last-known identity of every tracked
// library file in SQLite: size, modification time, content hash, optional
// acoustic fingerprint and the embedded tags used for layout.
//
// The store is a performance cache, not a source of truth. A database that
// cannot be opened or carries an unexpected schema version is moved aside and
// replaced with an empty one, which forces a full rescan. Callers own the
// lifecycle: Open once per run, Close when done.
package identitycache
