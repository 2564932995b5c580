package providers

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"

	"audioclean/internal/identitycache"
	"audioclean/internal/media/tags"
)

// EmbeddedArtProvider extracts the cover image embedded in the audio file.
type EmbeddedArtProvider struct{}

// FetchArt implements ArtProvider. Images that fail to decode are ignored.
func (EmbeddedArtProvider) FetchArt(ctx context.Context, rec identitycache.FileRecord) (*Art, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	pic, ok, err := tags.EmbeddedPicture(rec.Path)
	if err != nil {
		return nil, fmt.Errorf("read embedded art: %w", err)
	}
	if !ok {
		return nil, nil
	}
	cfg, format, err := image.DecodeConfig(bytes.NewReader(pic.Data))
	if err != nil {
		return nil, nil
	}
	mime := pic.MIME
	if mime == "" {
		mime = "image/" + format
	}
	return &Art{
		Data:       pic.Data,
		MIME:       mime,
		Format:     format,
		Width:      cfg.Width,
		Height:     cfg.Height,
		Provenance: ProvenanceEmbeddedArt,
	}, nil
}

// ExtensionMatches reports whether an image format suits a sidecar file
// extension such as ".jpg".
func ExtensionMatches(format, ext string) bool {
	switch format {
	case "jpeg":
		return ext == ".jpg" || ext == ".jpeg"
	case "png":
		return ext == ".png"
	}
	return false
}
