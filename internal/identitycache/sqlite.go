package identitycache

import "strings"

// rootRange returns the half-open key range [lo, hi) covering every path
// strictly below root.
func rootRange(root string) (string, string) {
	root = strings.TrimRight(root, "/")
	return root + "/", root + "0"
}
