package testsupport

import (
	"testing"

	"audioclean/internal/identitycache"
	"audioclean/internal/journal"
)

// MustOpenCache opens an identity cache for tests and registers cleanup.
func MustOpenCache(t testing.TB, path string) *identitycache.Store {
	t.Helper()

	store, err := identitycache.Open(path, nil)
	if err != nil {
		t.Fatalf("identitycache.Open: %v", err)
	}
	t.Cleanup(func() {
		_ = store.Close()
	})
	return store
}

// MustOpenJournal opens a journal for tests and registers cleanup.
func MustOpenJournal(t testing.TB, path string) *journal.Store {
	t.Helper()

	store, err := journal.Open(path, nil)
	if err != nil {
		t.Fatalf("journal.Open: %v", err)
	}
	t.Cleanup(func() {
		_ = store.Close()
	})
	return store
}
