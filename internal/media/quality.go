package media

import "math"

// Quality is the proxy used to rank duplicate members: lossless containers
// first, then higher estimated bitrate, then larger files.
type Quality struct {
	Lossless    bool
	BitrateKbps int
	Size        int64
}

// EstimateBitrateKbps derives an average bitrate from size and duration.
// Returns 0 when duration is unknown.
func EstimateBitrateKbps(size int64, durationSeconds float64) int {
	if durationSeconds <= 0 || size <= 0 || math.IsNaN(durationSeconds) {
		return 0
	}
	return int(math.Round(float64(size) * 8 / durationSeconds / 1000))
}

// QualityOf builds the ranking proxy for a file.
func QualityOf(c Container, size int64, durationSeconds float64) Quality {
	return Quality{
		Lossless:    c.Lossless(),
		BitrateKbps: EstimateBitrateKbps(size, durationSeconds),
		Size:        size,
	}
}

// Compare returns a negative number when q ranks better than other, positive
// when worse, and zero when equal.
func (q Quality) Compare(other Quality) int {
	if q.Lossless != other.Lossless {
		if q.Lossless {
			return -1
		}
		return 1
	}
	if q.BitrateKbps != other.BitrateKbps {
		if q.BitrateKbps > other.BitrateKbps {
			return -1
		}
		return 1
	}
	switch {
	case q.Size > other.Size:
		return -1
	case q.Size < other.Size:
		return 1
	}
	return 0
}
