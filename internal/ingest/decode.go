package ingest

import (
	"bytes"
	"strings"
	"unicode/utf8"

	"github.com/gogs/chardet"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/encoding/ianaindex"
	"golang.org/x/text/encoding/unicode"
)

const (
	EncodingUTF8        = "utf-8"
	EncodingUTF16LE     = "utf-16le"
	EncodingUTF16BE     = "utf-16be"
	EncodingWindows1252 = "windows-1252"
	EncodingLatin1      = "iso-8859-1"

	minDetectConfidence = 50
)

var (
	bomUTF8    = []byte{0xEF, 0xBB, 0xBF}
	bomUTF16LE = []byte{0xFF, 0xFE}
	bomUTF16BE = []byte{0xFE, 0xFF}
)

// Decode converts raw export bytes to text. It tries the declared encoding,
// then Unicode (BOM or valid UTF-8), then a detected charset, then
// Windows-1252, and finally ISO-8859-1, which accepts any byte sequence.
// The second result names the encoding that was used.
func Decode(raw []byte, declared string) (string, string) {
	if name := strings.ToLower(strings.TrimSpace(declared)); name != "" {
		if text, ok := decodeNamed(raw, name); ok {
			return text, name
		}
	}

	switch {
	case bytes.HasPrefix(raw, bomUTF8):
		if utf8.Valid(raw[3:]) {
			return string(raw[3:]), EncodingUTF8
		}
	case bytes.HasPrefix(raw, bomUTF16LE):
		if text, ok := decodeWith(unicode.UTF16(unicode.LittleEndian, unicode.ExpectBOM), raw); ok {
			return text, EncodingUTF16LE
		}
	case bytes.HasPrefix(raw, bomUTF16BE):
		if text, ok := decodeWith(unicode.UTF16(unicode.BigEndian, unicode.ExpectBOM), raw); ok {
			return text, EncodingUTF16BE
		}
	}
	if utf8.Valid(raw) {
		return string(raw), EncodingUTF8
	}

	if guess, err := chardet.NewTextDetector().DetectBest(raw); err == nil && guess.Confidence >= minDetectConfidence {
		name := strings.ToLower(guess.Charset)
		if name != EncodingUTF8 {
			if text, ok := decodeNamed(raw, name); ok {
				return text, name
			}
		}
	}

	if text, ok := decodeWith(charmap.Windows1252, raw); ok {
		return text, EncodingWindows1252
	}
	if text, ok := decodeWith(charmap.ISO8859_1, raw); ok {
		return text, EncodingLatin1
	}
	runes := make([]rune, len(raw))
	for i, b := range raw {
		runes[i] = rune(b)
	}
	return string(runes), EncodingLatin1
}

func decodeNamed(raw []byte, name string) (string, bool) {
	switch name {
	case EncodingUTF8, "utf8":
		b := bytes.TrimPrefix(raw, bomUTF8)
		if !utf8.Valid(b) {
			return "", false
		}
		return string(b), true
	case EncodingUTF16LE, EncodingUTF16BE, "utf-16", "utf16":
		order := unicode.LittleEndian
		if name == EncodingUTF16BE {
			order = unicode.BigEndian
		}
		return decodeWith(unicode.UTF16(order, unicode.UseBOM), raw)
	}
	enc, err := ianaindex.IANA.Encoding(name)
	if err != nil || enc == nil {
		enc, err = htmlindex.Get(name)
		if err != nil {
			return "", false
		}
	}
	return decodeWith(enc, raw)
}

func decodeWith(enc encoding.Encoding, raw []byte) (string, bool) {
	out, err := enc.NewDecoder().Bytes(raw)
	if err != nil || !utf8.Valid(out) {
		return "", false
	}
	// Decoders substitute U+FFFD for sequences they cannot map.
	if bytes.ContainsRune(out, utf8.RuneError) && !bytes.ContainsRune(raw, utf8.RuneError) {
		return "", false
	}
	return strings.TrimPrefix(string(out), "\ufeff"), true
}
