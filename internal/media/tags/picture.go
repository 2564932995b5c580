package tags

import "audioclean/internal/media"

// Picture is an embedded cover image. Width and Height are zero when the
// container does not record them.
type Picture struct {
	Data   []byte
	MIME   string
	Width  int
	Height int
}

// EmbeddedPicture returns the front cover embedded in the file, falling back
// to the first picture present. ok is false when the file carries none.
func EmbeddedPicture(path string) (pic Picture, ok bool, err error) {
	switch media.ContainerFor(path) {
	case media.ContainerMP3:
		return id3Picture(path)
	case media.ContainerFLAC:
		return flacPicture(path)
	default:
		return Picture{}, false, nil
	}
}
