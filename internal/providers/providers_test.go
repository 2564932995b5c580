package providers_test

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/bogem/id3v2"

	"audioclean/internal/identitycache"
	"audioclean/internal/media/tags"
	"audioclean/internal/providers"
	"audioclean/internal/services"
	"audioclean/internal/testsupport"
)

func TestTagConfidence(t *testing.T) {
	tests := []struct {
		name string
		tags tags.Tags
		want float64
	}{
		{"empty", tags.Tags{}, 0.1},
		{"partial", tags.Tags{Title: "x"}, 0.3},
		{"core", tags.Tags{Title: "x", Artist: "a", Album: "b", Track: 1}, 0.6},
		{"core plus year", tags.Tags{Title: "x", Artist: "a", Album: "b", Track: 1, Year: "2000"}, 0.8},
		{"complete is capped", tags.Tags{Title: "x", Artist: "a", Album: "b", Track: 1, Year: "2000", AlbumArtist: "a"}, 0.95},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := providers.TagConfidence(tt.tags)
			if got < tt.want-1e-9 || got > tt.want+1e-9 {
				t.Fatalf("TagConfidence = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestEmbeddedResolver(t *testing.T) {
	rec := identitycache.FileRecord{Path: "/lib/a.mp3", Tags: tags.Tags{Title: "x"}}
	got, err := providers.EmbeddedResolver{}.Resolve(context.Background(), rec)
	if err != nil || len(got) != 1 || got[0].Provenance != providers.ProvenanceEmbeddedTags {
		t.Fatalf("unexpected candidates %+v err=%v", got, err)
	}
	none, err := providers.EmbeddedResolver{}.Resolve(context.Background(), identitycache.FileRecord{Path: "/lib/b.mp3"})
	if err != nil || len(none) != 0 {
		t.Fatalf("untagged file should yield nothing, got %+v", none)
	}
}

func TestLoadOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "overrides.yaml")
	doc := `overrides:
  - path: /lib/a.mp3
    tags:
      title: Fixed
      album_artist: Band
  - hash: ABC123
    tags:
      album: By Hash
    confidence: 0.7
`
	testsupport.WriteBytes(t, path, []byte(doc))
	r, err := providers.LoadOverrides(path)
	if err != nil {
		t.Fatalf("LoadOverrides: %v", err)
	}

	byPath, _ := r.Resolve(context.Background(), identitycache.FileRecord{Path: "/lib/a.mp3", Tags: tags.Tags{Title: "Old", Artist: "A"}})
	if len(byPath) != 1 || byPath[0].Confidence != 1 || byPath[0].Tags.Title != "Fixed" || byPath[0].Tags.Artist != "A" {
		t.Fatalf("unexpected path override %+v", byPath)
	}
	byHash, _ := r.Resolve(context.Background(), identitycache.FileRecord{Path: "/lib/z.mp3", ContentHash: "abc123"})
	if len(byHash) != 1 || byHash[0].Tags.Album != "By Hash" || byHash[0].Confidence != 0.7 {
		t.Fatalf("unexpected hash override %+v", byHash)
	}

	testsupport.WriteBytes(t, path, []byte("overrides:\n  - tags: {title: x}\n"))
	if _, err := providers.LoadOverrides(path); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestBest(t *testing.T) {
	best, ok := providers.Best([]providers.Candidate{
		{Confidence: 0.5, Provenance: "b"},
		{Confidence: 0.9, Provenance: "z"},
		{Confidence: 0.9, Provenance: "a"},
	})
	if !ok || best.Provenance != "a" {
		t.Fatalf("unexpected best %+v", best)
	}
	if _, ok := providers.Best(nil); ok {
		t.Fatal("empty candidates should report !ok")
	}
}

type flakyResolver struct {
	calls int
	fails int
	err   error
}

func (f *flakyResolver) Resolve(context.Context, identitycache.FileRecord) ([]providers.Candidate, error) {
	f.calls++
	if f.calls <= f.fails {
		return nil, f.err
	}
	return []providers.Candidate{{Confidence: 1, Provenance: "remote"}}, nil
}

func TestWithBudgetRetriesTransient(t *testing.T) {
	inner := &flakyResolver{fails: 2, err: services.Wrap(services.ErrTransient, "plan", "resolve", "rate limited", nil)}
	r := providers.WithBudget(inner, providers.Budget{Retries: 2, Backoff: time.Millisecond, Timeout: time.Second})
	got, err := r.Resolve(context.Background(), identitycache.FileRecord{})
	if err != nil || len(got) != 1 || inner.calls != 3 {
		t.Fatalf("expected success after retries, calls=%d err=%v", inner.calls, err)
	}

	permanent := &flakyResolver{fails: 5, err: errors.New("bad request")}
	r = providers.WithBudget(permanent, providers.Budget{Retries: 3})
	if _, err := r.Resolve(context.Background(), identitycache.FileRecord{}); err == nil || permanent.calls != 1 {
		t.Fatalf("permanent errors must not be retried, calls=%d err=%v", permanent.calls, err)
	}
}

func TestWithBudgetOffline(t *testing.T) {
	inner := &flakyResolver{}
	got, err := providers.WithBudget(inner, providers.Budget{Offline: true}).Resolve(context.Background(), identitycache.FileRecord{})
	if err != nil || got != nil || inner.calls != 0 {
		t.Fatalf("offline must return nothing without calling through: %+v %v", got, err)
	}
}

func TestChainJoinsErrors(t *testing.T) {
	chain := providers.Chain{
		&flakyResolver{fails: 1, err: errors.New("down")},
		providers.EmbeddedResolver{},
	}
	got, err := chain.Resolve(context.Background(), identitycache.FileRecord{Tags: tags.Tags{Title: "t"}})
	if err == nil || len(got) != 1 {
		t.Fatalf("expected one candidate and an error, got %+v %v", got, err)
	}
}

func TestFileTaggerReturnsPriorBytes(t *testing.T) {
	path := filepath.Join(t.TempDir(), "song.mp3")
	original := testsupport.FakeMP3(7)
	testsupport.WriteBytes(t, path, original)

	prior, err := providers.FileTagger{}.WriteTags(context.Background(), path, tags.Tags{Title: "New"})
	if err != nil {
		t.Fatalf("WriteTags: %v", err)
	}
	if !bytes.Equal(prior, original) {
		t.Fatal("prior bytes should equal the original file")
	}
	got, err := tags.Read(path)
	if err != nil || got.Title != "New" {
		t.Fatalf("tag not written: %+v %v", got, err)
	}
	entries, _ := os.ReadDir(filepath.Dir(path))
	if len(entries) != 1 {
		t.Fatalf("scratch file left behind: %v", entries)
	}
}

func TestFileTaggerRejectsUnsupported(t *testing.T) {
	path := filepath.Join(t.TempDir(), "song.ogg")
	testsupport.WriteFile(t, path, 16, 1)
	if _, err := (providers.FileTagger{}).WriteTags(context.Background(), path, tags.Tags{Title: "x"}); !errors.Is(err, tags.ErrUnsupported) {
		t.Fatalf("expected ErrUnsupported, got %v", err)
	}
}

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	img.Set(0, 0, color.RGBA{R: 255, A: 255})
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("png.Encode: %v", err)
	}
	return buf.Bytes()
}

func TestEmbeddedArtProvider(t *testing.T) {
	path := filepath.Join(t.TempDir(), "song.mp3")
	testsupport.WriteBytes(t, path, testsupport.FakeMP3(1))
	img := pngBytes(t, 40, 30)

	tag, err := id3v2.Open(path, id3v2.Options{Parse: true})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	tag.AddAttachedPicture(id3v2.PictureFrame{
		Encoding:    id3v2.EncodingUTF8,
		MimeType:    "image/png",
		PictureType: id3v2.PTFrontCover,
		Picture:     img,
	})
	if err := tag.Save(); err != nil {
		t.Fatalf("save: %v", err)
	}
	tag.Close()

	art, err := providers.EmbeddedArtProvider{}.FetchArt(context.Background(), identitycache.FileRecord{Path: path})
	if err != nil || art == nil {
		t.Fatalf("FetchArt art=%v err=%v", art, err)
	}
	if art.Width != 40 || art.Height != 30 || art.Format != "png" || art.Provenance != providers.ProvenanceEmbeddedArt {
		t.Fatalf("unexpected art %+v", art)
	}
	if art.Hash() == "" {
		t.Fatal("art hash should be set")
	}
	if !providers.ExtensionMatches("png", ".png") || providers.ExtensionMatches("png", ".jpg") {
		t.Fatal("ExtensionMatches mismatch")
	}
}
