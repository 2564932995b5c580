package applier

import (
	"path/filepath"

	"audioclean/internal/planner"
	"audioclean/internal/textutil"
)

// batches splits actions into runs that may execute together. Sequential
// mode yields one action per batch. Parallel mode groups consecutive actions
// whose touched paths, including parent directories, never overlap, so no
// two actions in a batch can observe each other.
func (a *Applier) batches(actions []planner.Action) [][]planner.Action {
	var out [][]planner.Action
	if a.workers < 2 {
		for _, action := range actions {
			out = append(out, []planner.Action{action})
		}
		return out
	}

	var (
		current []planner.Action
		claimed = map[string]bool{}
	)
	for _, action := range actions {
		keys := touchedKeys(action)
		overlap := false
		for _, k := range keys {
			if claimed[k] {
				overlap = true
				break
			}
		}
		if overlap {
			out = append(out, current)
			current = nil
			claimed = map[string]bool{}
		}
		current = append(current, action)
		for _, k := range keys {
			claimed[k] = true
		}
	}
	if len(current) > 0 {
		out = append(out, current)
	}
	return out
}

func touchedKeys(action planner.Action) []string {
	var keys []string
	for _, p := range []string{action.Source, action.Destination} {
		if p == "" {
			continue
		}
		keys = append(keys, textutil.FoldKey(p), textutil.FoldKey(filepath.Dir(p)))
	}
	return keys
}
