package textutil

import (
	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// NFC returns value in Unicode normalization form C, so decomposed tags from
// some taggers render the same path as precomposed ones.
func NFC(value string) string {
	return norm.NFC.String(value)
}

// FoldKey returns a case-folded NFC key for comparing paths the way a
// case-insensitive, normalization-insensitive file system would.
func FoldKey(value string) string {
	return cases.Fold().String(norm.NFC.String(value))
}
