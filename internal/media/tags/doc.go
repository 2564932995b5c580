// Package tags reads and writes the embedded metadata audioclean uses for
// library layout: ID3v2 frames for MP3 and Vorbis comments for FLAC. Other
// containers report ErrUnsupported and are treated as untagged.
package tags
