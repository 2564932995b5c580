package tags

import (
	"encoding/binary"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/go-flac/flacvorbis"
	"github.com/go-flac/go-flac"
)

const (
	vorbisAlbumArtist = "ALBUMARTIST"
	vorbisDisc        = "DISCNUMBER"
	frontCoverType    = 3
)

func readFLAC(path string) (Tags, error) {
	f, err := flac.ParseFile(path)
	if err != nil {
		return Tags{}, fmt.Errorf("parse flac: %w", err)
	}
	cmts, _, err := vorbisBlock(f)
	if err != nil || cmts == nil {
		return Tags{}, err
	}

	first := func(key string) string {
		values, err := cmts.Get(key)
		if err != nil || len(values) == 0 {
			return ""
		}
		return strings.TrimSpace(values[0])
	}
	albumArtist := first(vorbisAlbumArtist)
	if albumArtist == "" {
		albumArtist = first("ALBUM ARTIST")
	}
	return Tags{
		Title:       first(flacvorbis.FIELD_TITLE),
		Artist:      first(flacvorbis.FIELD_ARTIST),
		Album:       first(flacvorbis.FIELD_ALBUM),
		AlbumArtist: albumArtist,
		Year:        NormalizeYear(first(flacvorbis.FIELD_DATE)),
		Track:       ParseNumber(first(flacvorbis.FIELD_TRACKNUMBER)),
		Disc:        ParseNumber(first(vorbisDisc)),
	}, nil
}

func writeFLAC(path string, t Tags) error {
	f, err := flac.ParseFile(path)
	if err != nil {
		return fmt.Errorf("parse flac: %w", err)
	}
	cmts, idx, err := vorbisBlock(f)
	if err != nil {
		return err
	}
	if cmts == nil {
		cmts = flacvorbis.New()
	}

	updates := map[string]string{}
	if t.Title != "" {
		updates[flacvorbis.FIELD_TITLE] = t.Title
	}
	if t.Artist != "" {
		updates[flacvorbis.FIELD_ARTIST] = t.Artist
	}
	if t.Album != "" {
		updates[flacvorbis.FIELD_ALBUM] = t.Album
	}
	if t.AlbumArtist != "" {
		updates[vorbisAlbumArtist] = t.AlbumArtist
	}
	if t.Year != "" {
		updates[flacvorbis.FIELD_DATE] = t.Year
	}
	if t.Track > 0 {
		updates[flacvorbis.FIELD_TRACKNUMBER] = strconv.Itoa(t.Track)
	}
	if t.Disc > 0 {
		updates[vorbisDisc] = strconv.Itoa(t.Disc)
	}

	// Add appends, so replaced keys are dropped first.
	kept := cmts.Comments[:0]
	for _, cmt := range cmts.Comments {
		key, _, _ := strings.Cut(cmt, "=")
		if _, replaced := updates[strings.ToUpper(key)]; replaced {
			continue
		}
		kept = append(kept, cmt)
	}
	cmts.Comments = kept
	for _, key := range []string{
		flacvorbis.FIELD_TITLE, flacvorbis.FIELD_ARTIST, flacvorbis.FIELD_ALBUM,
		vorbisAlbumArtist, flacvorbis.FIELD_DATE, flacvorbis.FIELD_TRACKNUMBER, vorbisDisc,
	} {
		if value, ok := updates[key]; ok {
			if err := cmts.Add(key, value); err != nil {
				return fmt.Errorf("set %s: %w", key, err)
			}
		}
	}

	block := cmts.Marshal()
	if idx >= 0 {
		f.Meta[idx] = &block
	} else {
		f.Meta = append(f.Meta, &block)
	}
	if err := f.Save(path); err != nil {
		return fmt.Errorf("save flac: %w", err)
	}
	return nil
}

func vorbisBlock(f *flac.File) (*flacvorbis.MetaDataBlockVorbisComment, int, error) {
	for idx, meta := range f.Meta {
		if meta.Type != flac.VorbisComment {
			continue
		}
		cmts, err := flacvorbis.ParseFromMetaDataBlock(*meta)
		if err != nil {
			return nil, -1, fmt.Errorf("parse vorbis comment: %w", err)
		}
		return cmts, idx, nil
	}
	return nil, -1, nil
}

func flacPicture(path string) (Picture, bool, error) {
	f, err := flac.ParseFile(path)
	if err != nil {
		return Picture{}, false, fmt.Errorf("parse flac: %w", err)
	}
	var chosen *Picture
	chosenType := uint32(0)
	for _, meta := range f.Meta {
		if meta.Type != flac.Picture {
			continue
		}
		picType, pic, err := decodePictureBlock(meta.Data)
		if err != nil || len(pic.Data) == 0 {
			continue
		}
		if chosen == nil || (picType == frontCoverType && chosenType != frontCoverType) {
			chosen = &pic
			chosenType = picType
		}
	}
	if chosen == nil {
		return Picture{}, false, nil
	}
	return *chosen, true, nil
}

var errShortPicture = errors.New("flac picture block truncated")

// decodePictureBlock parses a METADATA_BLOCK_PICTURE body.
func decodePictureBlock(data []byte) (uint32, Picture, error) {
	r := pictureReader{data: data}
	picType := r.uint32()
	mime := string(r.bytes(int(r.uint32())))
	r.bytes(int(r.uint32())) // description
	width := r.uint32()
	height := r.uint32()
	r.uint32() // depth
	r.uint32() // colors
	body := r.bytes(int(r.uint32()))
	if r.err != nil {
		return 0, Picture{}, r.err
	}
	return picType, Picture{Data: body, MIME: mime, Width: int(width), Height: int(height)}, nil
}

type pictureReader struct {
	data []byte
	err  error
}

func (r *pictureReader) uint32() uint32 {
	b := r.bytes(4)
	if len(b) < 4 {
		return 0
	}
	return binary.BigEndian.Uint32(b)
}

func (r *pictureReader) bytes(n int) []byte {
	if r.err != nil {
		return nil
	}
	if n < 0 || n > len(r.data) {
		r.err = errShortPicture
		return nil
	}
	out := r.data[:n]
	r.data = r.data[n:]
	return out
}
