// Package fingerprint computes Chromaprint acoustic fingerprints through the
// fpcalc binary and compares them. Fingerprints are derived from decoded
// audio only, so two encodings of the same recording with different tags or
// containers compare as similar while their content hashes differ.
package fingerprint
