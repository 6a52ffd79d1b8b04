package classify

import (
	"strings"
	"unicode"
)

// pictographic approximates the Unicode Extended_Pictographic property, which
// the regexp package does not expose.
var pictographic = &unicode.RangeTable{
	R16: []unicode.Range16{
		{Lo: 0x00a9, Hi: 0x00a9, Stride: 1},
		{Lo: 0x00ae, Hi: 0x00ae, Stride: 1},
		{Lo: 0x203c, Hi: 0x203c, Stride: 1},
		{Lo: 0x2049, Hi: 0x2049, Stride: 1},
		{Lo: 0x2122, Hi: 0x2122, Stride: 1},
		{Lo: 0x2139, Hi: 0x2139, Stride: 1},
		{Lo: 0x2194, Hi: 0x21aa, Stride: 1},
		{Lo: 0x231a, Hi: 0x23ff, Stride: 1},
		{Lo: 0x24c2, Hi: 0x24c2, Stride: 1},
		{Lo: 0x25aa, Hi: 0x25fe, Stride: 1},
		{Lo: 0x2600, Hi: 0x27bf, Stride: 1},
		{Lo: 0x2934, Hi: 0x2935, Stride: 1},
		{Lo: 0x2b05, Hi: 0x2b55, Stride: 1},
		{Lo: 0x3030, Hi: 0x3030, Stride: 1},
		{Lo: 0x303d, Hi: 0x303d, Stride: 1},
		{Lo: 0x3297, Hi: 0x3297, Stride: 1},
		{Lo: 0x3299, Hi: 0x3299, Stride: 1},
	},
	R32: []unicode.Range32{
		{Lo: 0x1f000, Hi: 0x1faff, Stride: 1},
		{Lo: 0x1fc00, Hi: 0x1fffd, Stride: 1},
	},
}

// isDecoration covers the joiners, selectors and modifiers that glue emoji
// sequences together.
func isDecoration(r rune) bool {
	switch {
	case r == 0x200d: // zero width joiner
		return true
	case r >= 0xfe00 && r <= 0xfe0f: // variation selectors
		return true
	case r == 0x20e3: // combining keycap
		return true
	case r >= 0xe0020 && r <= 0xe007f: // tag sequences
		return true
	}
	return false
}

// IsPictographic reports whether r is an emoji-like pictograph.
func IsPictographic(r rune) bool { return unicode.Is(pictographic, r) }

// IsEmojiOnly reports whether text, once trimmed, is made only of emoji,
// optionally decorated with whitespace, punctuation or symbols. Any letter or
// digit makes it a regular message.
func IsEmojiOnly(text string) bool {
	t := strings.TrimSpace(text)
	if t == "" {
		return false
	}
	seen := false
	for _, r := range t {
		switch {
		case IsPictographic(r):
			seen = true
		case isDecoration(r), unicode.IsSpace(r), unicode.IsPunct(r), unicode.IsSymbol(r):
		default:
			return false
		}
	}
	return seen
}
