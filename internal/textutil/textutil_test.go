package textutil_test

import (
	"testing"

	"audioclean/internal/textutil"
)

func TestSanitizeComponent(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"AC/DC", "AC_DC"},
		{`What? "Why" <Now>*`, "What_ _Why_ _Now__"},
		{"  Lots   of\tspace  ", "Lots of space"},
		{"Trailing dots...", "Trailing dots"},
		{"ctrl\x00char", "ctrlchar"},
		{"..", "Unknown"},
		{"   ", "Unknown"},
		{"Björk", "Björk"},
	}
	for _, tt := range tests {
		if got := textutil.SanitizeComponent(tt.in, "Unknown"); got != tt.want {
			t.Fatalf("SanitizeComponent(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestNFCComposes(t *testing.T) {
	decomposed := "Bjo\u0308rk"
	if got := textutil.NFC(decomposed); got != "Bj\u00f6rk" {
		t.Fatalf("NFC(%q) = %q", decomposed, got)
	}
}

func TestFoldKeyMatchesCaseAndNormalizationVariants(t *testing.T) {
	a := textutil.FoldKey("/lib/Bjo\u0308rk/Song.flac")
	b := textutil.FoldKey("/lib/BJÖRK/song.FLAC")
	if a != b {
		t.Fatalf("expected fold keys to match: %q vs %q", a, b)
	}
	if textutil.FoldKey("a.flac") == textutil.FoldKey("b.flac") {
		t.Fatal("distinct names should not fold together")
	}
}

func TestCollapseSpaces(t *testing.T) {
	if got := textutil.CollapseSpaces("  a \n b  "); got != "a b" {
		t.Fatalf("CollapseSpaces = %q", got)
	}
}
