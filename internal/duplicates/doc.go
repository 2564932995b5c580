// Package duplicates partitions file records into duplicate groups and picks
// the canonical member of each group.
//
// Files sharing a content hash form hash_exact groups. Remaining singletons
// with fingerprints are clustered with a pluggable similarity function; the
// clustering is the transitive closure of the pairwise matches, so groups
// never overlap. Detection is a single-threaded pure function of its input.
package duplicates
