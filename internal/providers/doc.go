// Package providers defines the collaborator interfaces the planner and
// applier call through (metadata resolution, tag writing, album art) and
// ships local implementations that work without network access: embedded
// tag resolution, YAML tag overrides, an ID3v2/FLAC tagger and an embedded
// art extractor.
package providers
