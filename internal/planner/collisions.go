package planner

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"audioclean/internal/config"
	"audioclean/internal/textutil"
)

// reservations tracks which destination paths are spoken for. Keys are case
// and normalization folded so the plan is safe on case-insensitive volumes.
type reservations struct {
	owners map[string]string
	freed  map[string]bool
	exists func(string) bool
}

func newReservations(exists func(string) bool) *reservations {
	return &reservations{
		owners: make(map[string]string),
		freed:  make(map[string]bool),
		exists: exists,
	}
}

func (r *reservations) reserve(path, owner string) {
	r.owners[textutil.FoldKey(path)] = owner
}

// free marks a path that an earlier action vacates.
func (r *reservations) free(path string) {
	r.freed[textutil.FoldKey(path)] = true
}

func (r *reservations) occupied(path, self string) bool {
	key := textutil.FoldKey(path)
	if owner, ok := r.owners[key]; ok {
		return owner != self
	}
	if r.freed[key] {
		return false
	}
	return r.exists(path)
}

type claim struct {
	action  *Action
	desired string
}

// resolveClaims assigns destinations to relocating actions in order. In
// suffix mode a colliding destination gets " (2)", " (3)"... appended; in
// omit mode every colliding claim is dropped and reported. Returned actions
// keep the input order.
func resolveClaims(claims []claim, r *reservations, mode string) ([]Action, []PlanConflict) {
	var (
		kept      []Action
		conflicts []PlanConflict
	)
	if mode == config.ConflictOmit {
		counts := make(map[string][]string)
		for _, c := range claims {
			key := textutil.FoldKey(c.desired)
			counts[key] = append(counts[key], c.action.Source)
		}
		reported := make(map[string]bool)
		for _, c := range claims {
			key := textutil.FoldKey(c.desired)
			if sources := counts[key]; len(sources) > 1 {
				if !reported[key] {
					reported[key] = true
					sorted := append([]string(nil), sources...)
					sort.Strings(sorted)
					conflicts = append(conflicts, PlanConflict{Destination: c.desired, Sources: sorted, Reason: conflictShared})
				}
				continue
			}
			if r.occupied(c.desired, c.action.Source) {
				conflicts = append(conflicts, PlanConflict{Destination: c.desired, Sources: []string{c.action.Source}, Reason: conflictOccupied})
				continue
			}
			r.reserve(c.desired, c.action.Source)
			c.action.Destination = c.desired
			kept = append(kept, *c.action)
		}
		return kept, conflicts
	}

	for _, c := range claims {
		dest := c.desired
		for n := 2; r.occupied(dest, c.action.Source); n++ {
			dest = withSuffix(c.desired, n)
		}
		r.reserve(dest, c.action.Source)
		if dest == c.action.Source {
			continue
		}
		c.action.Destination = dest
		kept = append(kept, *c.action)
	}
	return kept, conflicts
}

func withSuffix(path string, n int) string {
	ext := filepath.Ext(path)
	return fmt.Sprintf("%s (%d)%s", strings.TrimSuffix(path, ext), n, ext)
}

func pathExists(path string) bool {
	_, err := os.Lstat(path)
	return err == nil
}
