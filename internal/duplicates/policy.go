package duplicates

import (
	"fmt"
	"strings"

	"audioclean/internal/fileutil"
	"audioclean/internal/identitycache"
)

// KeepPolicy selects the canonical member of a group.
type KeepPolicy string

const (
	KeepBestQuality  KeepPolicy = "best_quality"
	KeepNewest       KeepPolicy = "newest"
	KeepPathPriority KeepPolicy = "path_priority"
)

// ParseKeepPolicy validates a configured policy name.
func ParseKeepPolicy(value string) (KeepPolicy, error) {
	switch p := KeepPolicy(strings.ToLower(strings.TrimSpace(value))); p {
	case KeepBestQuality, KeepNewest, KeepPathPriority:
		return p, nil
	case "":
		return KeepBestQuality, nil
	default:
		return "", fmt.Errorf("unknown keep policy %q", value)
	}
}

// Compare orders a before b (negative) when a is the better keep candidate
// under policy. Ties fall back to lexicographic path order, so the result is
// zero only for identical paths.
func Compare(policy KeepPolicy, preferredRoots []string, a, b identitycache.FileRecord) int {
	var c int
	switch policy {
	case KeepNewest:
		c = b.ModTime.Compare(a.ModTime)
	case KeepPathPriority:
		c = rootRank(preferredRoots, a.Path) - rootRank(preferredRoots, b.Path)
	default:
		c = a.Quality().Compare(b.Quality())
	}
	if c != 0 {
		return c
	}
	return strings.Compare(a.Path, b.Path)
}

func rootRank(preferred []string, path string) int {
	for i, root := range preferred {
		if fileutil.Within(root, path) {
			return i
		}
	}
	return len(preferred)
}
