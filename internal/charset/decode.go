// Package charset decodes text content downloaded from the blob
// endpoint, where servers hand back attachment bytes in their original
// encoding.
package charset

import (
	"mime"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/ianaindex"
	"golang.org/x/text/transform"
)

// DecodeMIME decodes raw bytes using the charset parameter of a MIME
// type such as "text/plain; charset=iso-8859-1". Decoding is total:
// an unknown or missing charset falls back to UTF-8 validation and
// then Latin-1, and the second return reports whether a fallback was
// needed.
func DecodeMIME(data []byte, mimeType string) (string, bool) {
	cs := ""
	if _, params, err := mime.ParseMediaType(mimeType); err == nil {
		cs = params["charset"]
	}
	return Decode(data, cs)
}

// Decode decodes raw bytes from the named charset to UTF-8.
func Decode(data []byte, cs string) (string, bool) {
	cs = strings.ToLower(strings.TrimSpace(cs))

	switch cs {
	case "", "utf-8", "utf8", "ascii", "us-ascii":
		return decodeUTF8(data)
	case "latin1", "latin-1", "iso-8859-1":
		return decodeLatin1(data), false
	}

	enc, err := ianaindex.IANA.Encoding(cs)
	if err != nil || enc == nil {
		// Unknown charset: best effort.
		s, _ := decodeUTF8(data)
		return s, true
	}
	return decodeWith(enc, data)
}

func decodeWith(enc encoding.Encoding, data []byte) (string, bool) {
	decoded, _, err := transform.Bytes(enc.NewDecoder(), data)
	if err != nil {
		s, _ := decodeUTF8(data)
		return s, true
	}
	return string(decoded), false
}

// decodeUTF8 validates the bytes as UTF-8 and falls back to Latin-1
// when they are not, so every byte sequence yields usable text.
func decodeUTF8(data []byte) (string, bool) {
	if utf8.Valid(data) {
		return string(data), false
	}
	return decodeLatin1(data), true
}

func decodeLatin1(data []byte) string {
	decoded, _, err := transform.Bytes(charmap.ISO8859_1.NewDecoder(), data)
	if err != nil {
		// Latin-1 decoding cannot fail on arbitrary bytes; keep the
		// input if it somehow does.
		return string(data)
	}
	return string(decoded)
}
