// Package htmlstrip converts HTML email bodies to plain text.
package htmlstrip

import (
	"strings"
	"unicode/utf8"

	"golang.org/x/net/html"
)

// maxPreviewBytes bounds preview snippets per RFC 8621.
const maxPreviewBytes = 255

// skipElements are elements whose text content is discarded.
var skipElements = map[string]bool{
	"script":   true,
	"style":    true,
	"noscript": true,
	"head":     true,
}

// breakElements start on their own line in the text rendering.
var breakElements = map[string]bool{
	"p": true, "div": true, "h1": true, "h2": true, "h3": true,
	"h4": true, "h5": true, "h6": true, "li": true, "blockquote": true,
	"pre": true, "table": true, "tr": true, "section": true,
	"article": true, "header": true, "footer": true,
}

// Strip renders HTML as plain text. Block boundaries become newlines,
// inline whitespace runs collapse to one space, and the text content of
// script/style subtrees is dropped. Malformed HTML never errors; the
// tokenizer consumes whatever it is given.
func Strip(s string) string {
	tokenizer := html.NewTokenizer(strings.NewReader(s))

	var b strings.Builder
	skipDepth := 0
	pendingBreak := false
	pendingSpace := false

	// Whitespace joins words only when the source actually had some;
	// text split by inline tags alone stays joined. Byte-wise is safe:
	// UTF-8 continuation bytes never match the ASCII space set.
	writeText := func(text string) {
		for i := 0; i < len(text); i++ {
			c := text[i]
			if c == ' ' || c == '\t' || c == '\n' || c == '\r' || c == '\f' {
				if b.Len() > 0 {
					pendingSpace = true
				}
				continue
			}
			if pendingBreak && b.Len() > 0 {
				b.WriteByte('\n')
			} else if pendingSpace && b.Len() > 0 {
				b.WriteByte(' ')
			}
			pendingBreak = false
			pendingSpace = false
			b.WriteByte(c)
		}
	}

	for {
		switch tokenizer.Next() {
		case html.ErrorToken:
			return b.String()

		case html.StartTagToken:
			tn, _ := tokenizer.TagName()
			tag := string(tn)
			if skipElements[tag] {
				skipDepth++
				continue
			}
			if tag == "br" || breakElements[tag] {
				pendingBreak = true
			}

		case html.EndTagToken:
			tn, _ := tokenizer.TagName()
			tag := string(tn)
			if skipElements[tag] && skipDepth > 0 {
				skipDepth--
				continue
			}
			if breakElements[tag] {
				pendingBreak = true
			}

		case html.SelfClosingTagToken:
			tn, _ := tokenizer.TagName()
			if string(tn) == "br" {
				pendingBreak = true
			}

		case html.TextToken:
			if skipDepth > 0 {
				continue
			}
			writeText(string(tokenizer.Text()))
		}
	}
}

// Preview renders HTML as a single-line snippet of at most 255 bytes,
// truncated at a rune boundary with a trailing ellipsis.
func Preview(s string) string {
	text := strings.Join(strings.Fields(Strip(s)), " ")
	return TruncatePreview(text)
}

// TruncatePreview bounds a snippet to 255 bytes without splitting a
// UTF-8 rune.
func TruncatePreview(s string) string {
	if len(s) <= maxPreviewBytes {
		return s
	}

	const ellipsis = "..."
	target := maxPreviewBytes - len(ellipsis)

	n := 0
	for n < len(s) {
		_, size := utf8.DecodeRuneInString(s[n:])
		if n+size > target {
			break
		}
		n += size
	}
	return s[:n] + ellipsis
}
