package tags

import (
	"errors"
	"strconv"
	"strings"

	"audioclean/internal/media"
)

// ErrUnsupported is returned for containers without a tag implementation.
var ErrUnsupported = errors.New("tags: unsupported container")

// Tags is the subset of embedded metadata used to render layout paths.
type Tags struct {
	Title       string `json:"title,omitempty" yaml:"title,omitempty"`
	Artist      string `json:"artist,omitempty" yaml:"artist,omitempty"`
	Album       string `json:"album,omitempty" yaml:"album,omitempty"`
	AlbumArtist string `json:"album_artist,omitempty" yaml:"album_artist,omitempty"`
	Year        string `json:"year,omitempty" yaml:"year,omitempty"`
	Track       int    `json:"track,omitempty" yaml:"track,omitempty"`
	Disc        int    `json:"disc,omitempty" yaml:"disc,omitempty"`
}

// IsZero reports whether no field is set.
func (t Tags) IsZero() bool {
	return t == Tags{}
}

// Overlay returns t with every non-empty field of other applied on top.
func (t Tags) Overlay(other Tags) Tags {
	if other.Title != "" {
		t.Title = other.Title
	}
	if other.Artist != "" {
		t.Artist = other.Artist
	}
	if other.Album != "" {
		t.Album = other.Album
	}
	if other.AlbumArtist != "" {
		t.AlbumArtist = other.AlbumArtist
	}
	if other.Year != "" {
		t.Year = other.Year
	}
	if other.Track > 0 {
		t.Track = other.Track
	}
	if other.Disc > 0 {
		t.Disc = other.Disc
	}
	return t
}

// Writable reports whether Write supports the container.
func Writable(c media.Container) bool {
	return c == media.ContainerMP3 || c == media.ContainerFLAC
}

// Read returns the embedded tags of the file at path.
func Read(path string) (Tags, error) {
	switch media.ContainerFor(path) {
	case media.ContainerMP3:
		return readID3(path)
	case media.ContainerFLAC:
		return readFLAC(path)
	default:
		return Tags{}, ErrUnsupported
	}
}

// Write sets every non-empty field of t on the file at path in place.
// Fields left empty keep their current values.
func Write(path string, t Tags) error {
	switch media.ContainerFor(path) {
	case media.ContainerMP3:
		return writeID3(path, t)
	case media.ContainerFLAC:
		return writeFLAC(path, t)
	default:
		return ErrUnsupported
	}
}

// ParseNumber reads track and disc values such as "3" or "3/12".
func ParseNumber(value string) int {
	value = strings.TrimSpace(value)
	if idx := strings.IndexByte(value, '/'); idx >= 0 {
		value = value[:idx]
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil || n < 0 {
		return 0
	}
	return n
}

// NormalizeYear reduces date values like "2001-05-03" to the leading year.
func NormalizeYear(value string) string {
	value = strings.TrimSpace(value)
	if len(value) >= 4 {
		if _, err := strconv.Atoi(value[:4]); err == nil {
			return value[:4]
		}
	}
	return value
}
