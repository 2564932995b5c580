// Package media recognizes audio containers by extension and derives the
// quality proxies the duplicate detector ranks members by. Subpackages
// compute acoustic fingerprints (fingerprint) and read or write embedded
// tags (tags).
package media
