package htmlstrip

import (
	"strings"
	"testing"
)

func TestStrip(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "inline markup removed",
			in:   `Hello <b>world</b>, this is <i>fine</i>.`,
			want: "Hello world, this is fine.",
		},
		{
			name: "blocks become newlines",
			in:   `<p>First paragraph.</p><p>Second paragraph.</p>`,
			want: "First paragraph.\nSecond paragraph.",
		},
		{
			name: "br becomes newline",
			in:   `line one<br>line two`,
			want: "line one\nline two",
		},
		{
			name: "script and style dropped",
			in:   `<style>.x{color:red}</style><script>alert(1)</script>visible`,
			want: "visible",
		},
		{
			name: "whitespace runs collapse",
			in:   "a \n\t  b",
			want: "a b",
		},
		{
			name: "inline tags alone add no whitespace",
			in:   `un<b>break</b>able`,
			want: "unbreakable",
		},
		{
			name: "punctuation stays attached across inline tags",
			in:   `See <a href="#">the docs</a>, then <em>reply</em>.`,
			want: "See the docs, then reply.",
		},
		{
			name: "whitespace crossing an inline tag survives",
			in:   `one <b> two</b> three`,
			want: "one two three",
		},
		{
			name: "empty input",
			in:   "",
			want: "",
		},
		{
			name: "plain text passes through",
			in:   "no markup at all",
			want: "no markup at all",
		},
		{
			name: "unclosed tags tolerated",
			in:   `<div><p>broken`,
			want: "broken",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Strip(tt.in)
			if got != tt.want {
				t.Errorf("Strip(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestPreview_SingleLine(t *testing.T) {
	got := Preview("<p>one</p><p>two</p>")
	if got != "one two" {
		t.Errorf("Preview = %q, want %q", got, "one two")
	}
}

func TestPreview_TruncatesAt255Bytes(t *testing.T) {
	long := strings.Repeat("word ", 100)
	got := Preview("<p>" + long + "</p>")

	if len(got) > 255 {
		t.Errorf("preview length = %d, want <= 255", len(got))
	}
	if !strings.HasSuffix(got, "...") {
		t.Errorf("preview %q should end with ellipsis", got)
	}
}

func TestTruncatePreview_RespectsRuneBoundaries(t *testing.T) {
	// 130 two-byte runes: 260 bytes, forcing truncation inside the run.
	long := strings.Repeat("é", 130)
	got := TruncatePreview(long)

	if len(got) > 255 {
		t.Errorf("length = %d, want <= 255", len(got))
	}
	trimmed := strings.TrimSuffix(got, "...")
	for _, r := range trimmed {
		if r != 'é' {
			t.Fatalf("truncation split a rune: found %q", r)
		}
	}
}

func TestTruncatePreview_ShortStringUnchanged(t *testing.T) {
	if got := TruncatePreview("short"); got != "short" {
		t.Errorf("got %q, want unchanged", got)
	}
}
