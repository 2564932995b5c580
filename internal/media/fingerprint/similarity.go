package fingerprint

import (
	"encoding/binary"
	"errors"
	"math/bits"
)

// SimilarityFunc scores two fingerprints in [0, 1]. Implementations must be
// symmetric.
type SimilarityFunc func(a, b []uint32) float64

const (
	// maxAlignOffset bounds the frame shift tried when aligning fingerprints,
	// tolerating leading silence differences between encodings.
	maxAlignOffset = 20
	// minOverlap is the fewest aligned frames a comparison must cover.
	minOverlap = 16
)

// BitErrorSimilarity is the default SimilarityFunc: the best fraction of
// matching bits over aligned frames, tried at small offsets in both
// directions. Fingerprints too short to overlap score 0.
func BitErrorSimilarity(a, b []uint32) float64 {
	best := 0.0
	for offset := -maxAlignOffset; offset <= maxAlignOffset; offset++ {
		if s := alignedSimilarity(a, b, offset); s > best {
			best = s
		}
	}
	return best
}

func alignedSimilarity(a, b []uint32, offset int) float64 {
	ai, bi := 0, 0
	if offset > 0 {
		ai = offset
	} else {
		bi = -offset
	}
	n := min(len(a)-ai, len(b)-bi)
	if n < minOverlap {
		return 0
	}
	errorsCount := 0
	for i := 0; i < n; i++ {
		errorsCount += bits.OnesCount32(a[ai+i] ^ b[bi+i])
	}
	return 1 - float64(errorsCount)/float64(32*n)
}

// Encode packs a raw fingerprint into little-endian bytes for storage.
func Encode(fp []uint32) []byte {
	if len(fp) == 0 {
		return nil
	}
	out := make([]byte, 4*len(fp))
	for i, v := range fp {
		binary.LittleEndian.PutUint32(out[4*i:], v)
	}
	return out
}

// Decode reverses Encode.
func Decode(data []byte) ([]uint32, error) {
	if len(data) == 0 {
		return nil, nil
	}
	if len(data)%4 != 0 {
		return nil, errors.New("fingerprint: truncated data")
	}
	out := make([]uint32, len(data)/4)
	for i := range out {
		out[i] = binary.LittleEndian.Uint32(data[4*i:])
	}
	return out, nil
}
