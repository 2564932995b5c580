package journal

import (
	"context"
	"fmt"
	"math"

	"audioclean/internal/sqliteutil"
)

// ReverseReader walks a session's entries from the highest sequence number
// down, loading one page at a time.
type ReverseReader struct {
	store     *Store
	sessionID string
	pageSize  int
	next      int
	page      []Entry
	done      bool
}

// ReverseReader returns a reader positioned after the session's last entry.
// pageSize below 1 defaults to 64.
func (s *Store) ReverseReader(sessionID string, pageSize int) *ReverseReader {
	if pageSize < 1 {
		pageSize = 64
	}
	return &ReverseReader{store: s, sessionID: sessionID, pageSize: pageSize, next: math.MaxInt32}
}

// Seek restarts iteration so the next entry returned is the one with the
// highest sequence number not above seq.
func (r *ReverseReader) Seek(seq int) {
	r.next = seq + 1
	r.page = nil
	r.done = false
}

// Next returns the next entry in reverse order. ok is false when the
// session is exhausted.
func (r *ReverseReader) Next(ctx context.Context) (entry Entry, ok bool, err error) {
	if len(r.page) == 0 {
		if r.done {
			return Entry{}, false, nil
		}
		if err := r.load(ctx); err != nil {
			return Entry{}, false, err
		}
		if len(r.page) == 0 {
			r.done = true
			return Entry{}, false, nil
		}
	}
	entry = r.page[0]
	r.page = r.page[1:]
	r.next = entry.Seq
	return entry, true, nil
}

func (r *ReverseReader) load(ctx context.Context) error {
	ctx = sqliteutil.EnsureContext(ctx)
	rows, err := r.store.db.QueryContext(ctx,
		"SELECT "+entryColumns+" FROM entries WHERE session_id = ? AND seq < ? ORDER BY seq DESC LIMIT ?",
		r.sessionID, r.next, r.pageSize)
	if err != nil {
		return fmt.Errorf("read journal page: %w", err)
	}
	defer rows.Close()
	page, err := scanEntries(rows)
	if err != nil {
		return err
	}
	r.page = page
	if len(page) < r.pageSize {
		r.done = true
	}
	return nil
}
