package planner

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"unicode/utf8"

	"audioclean/internal/media/tags"
	"audioclean/internal/textutil"
)

// maxComponentBytes keeps rendered names below common file system limits
// with room for a collision suffix and extension.
const maxComponentBytes = 200

var templateFields = map[string]bool{
	"album_artist": true,
	"artist":       true,
	"album":        true,
	"year":         true,
	"disc":         true,
	"track":        true,
	"title":        true,
}

type piece struct {
	literal string
	field   string
	width   int
	zero    bool
}

// Template is a parsed layout template such as
// "{album_artist}/{album} ({year})/{disc}-{track:02} {title}".
type Template struct {
	raw        string
	components [][]piece
}

// ParseTemplate validates and compiles a layout template.
func ParseTemplate(raw string) (*Template, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, fmt.Errorf("layout template is empty")
	}
	t := &Template{raw: raw}
	for _, component := range strings.Split(strings.Trim(raw, "/"), "/") {
		pieces, err := parseComponent(component)
		if err != nil {
			return nil, fmt.Errorf("layout template %q: %w", raw, err)
		}
		t.components = append(t.components, pieces)
	}
	return t, nil
}

func parseComponent(component string) ([]piece, error) {
	var pieces []piece
	for component != "" {
		open := strings.IndexByte(component, '{')
		if open < 0 {
			pieces = append(pieces, piece{literal: component})
			break
		}
		if open > 0 {
			pieces = append(pieces, piece{literal: component[:open]})
		}
		end := strings.IndexByte(component[open:], '}')
		if end < 0 {
			return nil, fmt.Errorf("unterminated placeholder")
		}
		inner := component[open+1 : open+end]
		p, err := parsePlaceholder(inner)
		if err != nil {
			return nil, err
		}
		pieces = append(pieces, p)
		component = component[open+end+1:]
	}
	return pieces, nil
}

func parsePlaceholder(raw string) (piece, error) {
	name, format, _ := strings.Cut(raw, ":")
	name = strings.TrimSpace(name)
	if !templateFields[name] {
		return piece{}, fmt.Errorf("unknown placeholder {%s}", name)
	}
	p := piece{field: name}
	if format != "" {
		p.zero = strings.HasPrefix(format, "0")
		width, err := strconv.Atoi(format)
		if err != nil || width < 0 || width > 10 {
			return piece{}, fmt.Errorf("invalid format %q for {%s}", format, name)
		}
		p.width = width
	}
	return p, nil
}

// String returns the template source.
func (t *Template) String() string { return t.raw }

// Render returns the relative layout path for t without an extension.
func (t *Template) Render(tg tags.Tags, normalize bool) string {
	values := layoutValues(tg)
	parts := make([]string, 0, len(t.components))
	for _, pieces := range t.components {
		var b strings.Builder
		for _, p := range pieces {
			if p.field == "" {
				b.WriteString(p.literal)
				continue
			}
			b.WriteString(formatValue(values[p.field], p))
		}
		component := b.String()
		if normalize {
			component = textutil.NFC(component)
		}
		parts = append(parts, truncate(textutil.SanitizeComponent(component, "_")))
	}
	return filepath.Join(parts...)
}

func layoutValues(tg tags.Tags) map[string]any {
	albumArtist := firstNonEmpty(tg.AlbumArtist, tg.Artist, "Unknown Artist")
	disc := tg.Disc
	if disc <= 0 {
		disc = 1
	}
	return map[string]any{
		"album_artist": clean(albumArtist),
		"artist":       clean(firstNonEmpty(tg.Artist, tg.AlbumArtist, "Unknown Artist")),
		"album":        clean(firstNonEmpty(tg.Album, "Unknown Album")),
		"year":         clean(firstNonEmpty(tg.Year, "0000")),
		"disc":         disc,
		"track":        tg.Track,
		"title":        clean(normalizeTitle(firstNonEmpty(tg.Title, "Unknown Title"))),
	}
}

func formatValue(v any, p piece) string {
	switch val := v.(type) {
	case int:
		if p.zero {
			return fmt.Sprintf("%0*d", p.width, val)
		}
		return fmt.Sprintf("%*d", p.width, val)
	case string:
		return fmt.Sprintf("%-*s", p.width, val)
	}
	return fmt.Sprint(v)
}

// clean keeps tag values from introducing directory separators.
func clean(value string) string {
	return textutil.SanitizeComponent(value, "_")
}

func normalizeTitle(title string) string {
	return strings.TrimSpace(strings.ReplaceAll(title, "Feat.", "feat."))
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

func truncate(component string) string {
	if len(component) <= maxComponentBytes {
		return component
	}
	cut := maxComponentBytes
	for cut > 0 && !utf8.RuneStart(component[cut]) {
		cut--
	}
	return strings.TrimRight(component[:cut], ". ")
}
