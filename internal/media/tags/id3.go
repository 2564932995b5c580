package tags

import (
	"fmt"
	"strconv"

	"github.com/bogem/id3v2"
)

const (
	id3AlbumArtist  = "Band/Orchestra/Accompaniment"
	id3Track        = "Track number/Position in set"
	id3Disc         = "Part of a set"
	id3PictureFrame = "Attached picture"
)

func readID3(path string) (Tags, error) {
	tag, err := id3v2.Open(path, id3v2.Options{Parse: true})
	if err != nil {
		return Tags{}, fmt.Errorf("open mp3 tags: %w", err)
	}
	defer tag.Close()

	year := tag.Year()
	if year == "" {
		year = tag.GetTextFrame("TDRC").Text
	}
	return Tags{
		Title:       tag.Title(),
		Artist:      tag.Artist(),
		Album:       tag.Album(),
		AlbumArtist: tag.GetTextFrame(tag.CommonID(id3AlbumArtist)).Text,
		Year:        NormalizeYear(year),
		Track:       ParseNumber(tag.GetTextFrame(tag.CommonID(id3Track)).Text),
		Disc:        ParseNumber(tag.GetTextFrame(tag.CommonID(id3Disc)).Text),
	}, nil
}

func writeID3(path string, t Tags) error {
	tag, err := id3v2.Open(path, id3v2.Options{Parse: true})
	if err != nil {
		return fmt.Errorf("open mp3 tags: %w", err)
	}
	defer tag.Close()

	tag.SetDefaultEncoding(id3v2.EncodingUTF8)
	if t.Title != "" {
		tag.SetTitle(t.Title)
	}
	if t.Artist != "" {
		tag.SetArtist(t.Artist)
	}
	if t.Album != "" {
		tag.SetAlbum(t.Album)
	}
	if t.Year != "" {
		tag.SetYear(t.Year)
	}
	if t.AlbumArtist != "" {
		tag.AddTextFrame(tag.CommonID(id3AlbumArtist), tag.DefaultEncoding(), t.AlbumArtist)
	}
	if t.Track > 0 {
		tag.AddTextFrame(tag.CommonID(id3Track), tag.DefaultEncoding(), strconv.Itoa(t.Track))
	}
	if t.Disc > 0 {
		tag.AddTextFrame(tag.CommonID(id3Disc), tag.DefaultEncoding(), strconv.Itoa(t.Disc))
	}

	if err := tag.Save(); err != nil {
		return fmt.Errorf("save mp3 tags: %w", err)
	}
	return nil
}

func id3Picture(path string) (Picture, bool, error) {
	tag, err := id3v2.Open(path, id3v2.Options{Parse: true})
	if err != nil {
		return Picture{}, false, fmt.Errorf("open mp3 tags: %w", err)
	}
	defer tag.Close()

	var chosen *id3v2.PictureFrame
	for _, frame := range tag.GetFrames(tag.CommonID(id3PictureFrame)) {
		pic, ok := frame.(id3v2.PictureFrame)
		if !ok || len(pic.Picture) == 0 {
			continue
		}
		if chosen == nil || (pic.PictureType == id3v2.PTFrontCover && chosen.PictureType != id3v2.PTFrontCover) {
			chosen = &pic
		}
	}
	if chosen == nil {
		return Picture{}, false, nil
	}
	return Picture{Data: chosen.Picture, MIME: chosen.MimeType}, true, nil
}
