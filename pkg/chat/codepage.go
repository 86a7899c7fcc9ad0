package chat

import (
	"strings"

	"golang.org/x/text/encoding/charmap"
)

// controlGlyphs maps the pictures CP437 draws for control bytes. 0x0A is
// left out: on the wire it would be indistinguishable from a line break.
var controlGlyphs = map[rune]byte{
	'☺': 0x01, '☻': 0x02, '♥': 0x03, '♦': 0x04, '♣': 0x05, '♠': 0x06, '•': 0x07,
	'◘': 0x08, '○': 0x09, '♂': 0x0b, '♀': 0x0c, '♪': 0x0d, '♫': 0x0e, '☼': 0x0f,
	'►': 0x10, '◄': 0x11, '↕': 0x12, '‼': 0x13, '¶': 0x14, '§': 0x15, '▬': 0x16,
	'↨': 0x17, '↑': 0x18, '↓': 0x19, '→': 0x1a, '←': 0x1b, '∟': 0x1c, '↔': 0x1d,
	'▲': 0x1e, '▼': 0x1f, '⌂': 0x7f,
}

var glyphRunes = func() [256]rune {
	var t [256]rune
	for r, b := range controlGlyphs {
		t[b] = r
	}
	return t
}()

// fallback folds CP437 bytes to printable ASCII for clients that cannot draw
// the full code page. Zero entries become '?'.
var fallback = func() [256]byte {
	var t [256]byte
	for b, r := range map[byte]byte{
		0x80: 'C', 0x81: 'u', 0x82: 'e', 0x83: 'a', 0x84: 'a', 0x85: 'a', 0x86: 'a', 0x87: 'c',
		0x88: 'e', 0x89: 'e', 0x8a: 'e', 0x8b: 'i', 0x8c: 'i', 0x8d: 'i', 0x8e: 'A', 0x8f: 'A',
		0x90: 'E', 0x93: 'o', 0x94: 'o', 0x95: 'o', 0x96: 'u', 0x97: 'u', 0x98: 'y', 0x99: 'O',
		0x9a: 'U', 0x9b: 'c', 0x9d: 'Y', 0x9f: 'f', 0xa0: 'a', 0xa1: 'i', 0xa2: 'o', 0xa3: 'u',
		0xa4: 'n', 0xa5: 'N', 0xa6: 'a', 0xa7: 'o', 0xad: '!', 0xae: '<', 0xaf: '>',
		0xb3: '|', 0xba: '|', 0xc4: '-', 0xcd: '=', 0xe1: 'B', 0xf9: '.', 0xfa: '.',
	} {
		t[b] = r
	}
	// Remaining box-drawing pieces become corners.
	for b := 0xb4; b <= 0xda; b++ {
		if t[b] == 0 {
			t[b] = '+'
		}
	}
	return t
}()

// EncodeRune maps r to its code-page byte. Printable ASCII maps to itself;
// ok is false for runes the code page cannot represent.
func EncodeRune(r rune) (byte, bool) {
	switch {
	case r >= 0x20 && r < 0x7f:
		return byte(r), true
	case r < 0x80:
		return 0, false
	}
	if b, ok := controlGlyphs[r]; ok {
		return b, true
	}
	b, ok := charmap.CodePage437.EncodeRune(r)
	if !ok || b < 0x80 {
		return 0, false
	}
	return b, true
}

// Encode transcodes s to code-page bytes. Newlines are kept. When fullCP437
// is false the result is printable ASCII only: extended characters are
// folded to a lookalike where one exists. Anything else becomes '?'.
func Encode(s string, fullCP437 bool) []byte {
	out := make([]byte, 0, len(s))
	for _, r := range s {
		if r == '\n' {
			out = append(out, '\n')
			continue
		}
		b, ok := EncodeRune(r)
		switch {
		case !ok:
			b = '?'
		case b >= 0x20 && b < 0x7f:
		case fullCP437:
		case fallback[b] != 0:
			b = fallback[b]
		default:
			b = '?'
		}
		out = append(out, b)
	}
	return out
}

// Decode converts code-page bytes back to a Go string.
func Decode(b []byte) string {
	var sb strings.Builder
	sb.Grow(len(b))
	for _, c := range b {
		if r := glyphRunes[c]; r != 0 {
			sb.WriteRune(r)
			continue
		}
		sb.WriteRune(charmap.CodePage437.DecodeByte(c))
	}
	return sb.String()
}
