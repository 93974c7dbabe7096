package fetch

import (
	"runtime"
	"strings"
	"unicode/utf8"

	"github.com/cockroachdb/errors"
	"golang.org/x/text/encoding/unicode"
)

// TextEncoding selects the unit text buffers are sized in. Drivers hand text
// over as UTF-8 in either case, so it never changes how bytes are decoded.
type TextEncoding uint8

const (
	// EncodingAuto is EncodingWide on Windows and EncodingNarrow elsewhere.
	EncodingAuto TextEncoding = iota
	// EncodingNarrow sizes text in UTF-8 bytes, up to 4 per character.
	EncodingNarrow
	// EncodingWide sizes text in UTF-16 code units of 2 bytes.
	EncodingWide
)

// TextEncodingFromByte converts the numeric encoding used by the C surface.
func TextEncodingFromByte(v uint8) (TextEncoding, error) {
	if v > uint8(EncodingWide) {
		return 0, errors.Mark(errors.Newf("text encoding must be 0, 1 or 2, got %d", v), ErrInvalidPolicy)
	}
	return TextEncoding(v), nil
}

// ParseTextEncoding accepts "auto", "narrow"/"utf8" and "wide"/"utf16".
func ParseTextEncoding(s string) (TextEncoding, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "auto":
		return EncodingAuto, nil
	case "narrow", "utf8", "utf-8":
		return EncodingNarrow, nil
	case "wide", "utf16", "utf-16":
		return EncodingWide, nil
	default:
		return 0, errors.Mark(errors.Newf("unknown text encoding %q", s), ErrInvalidPolicy)
	}
}

func (e TextEncoding) String() string {
	switch e {
	case EncodingAuto:
		return "auto"
	case EncodingNarrow:
		return "narrow"
	case EncodingWide:
		return "wide"
	default:
		return "unknown"
	}
}

// Resolve replaces EncodingAuto with the platform choice.
func (e TextEncoding) Resolve() TextEncoding {
	if e != EncodingAuto {
		return e
	}
	if runtime.GOOS == "windows" {
		return EncodingWide
	}
	return EncodingNarrow
}

// bytesPerChar is the worst case size of one character in the encoding.
func (e TextEncoding) bytesPerChar() int {
	if e.Resolve() == EncodingWide {
		return 2
	}
	return 4
}

// decodeText returns driver text as a string. Invalid UTF-8 sequences, e.g.
// from a binary collation, become U+FFFD since Arrow strings must be UTF-8.
func decodeText(b []byte) string {
	if utf8.Valid(b) {
		return string(b)
	}
	out, err := unicode.UTF8.NewDecoder().Bytes(b)
	if err != nil {
		return strings.ToValidUTF8(string(b), "\uFFFD")
	}
	return string(out)
}
