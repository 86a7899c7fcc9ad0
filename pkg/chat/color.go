// Package chat turns outgoing chat text into Classic Message packets: color
// escapes, code-page transcoding and line wrapping to the 64-byte payload.
package chat

import (
	"fmt"
	"strings"
)

// Color codes understood by Classic clients, as written after '&'.
const (
	Black  byte = '0'
	Navy   byte = '1'
	Green  byte = '2'
	Teal   byte = '3'
	Maroon byte = '4'
	Purple byte = '5'
	Olive  byte = '6'
	Silver byte = '7'
	Gray   byte = '8'
	Blue   byte = '9'
	Lime   byte = 'a'
	Aqua   byte = 'b'
	Red    byte = 'c'
	Pink   byte = 'd'
	Yellow byte = 'e'
	White  byte = 'f'
)

// NoColor marks text that has not been given a color. Clients draw it in
// their default color, which is White.
const NoColor byte = 0

var colorNames = map[string]byte{
	"black":  Black,
	"navy":   Navy,
	"green":  Green,
	"teal":   Teal,
	"maroon": Maroon,
	"purple": Purple,
	"olive":  Olive,
	"silver": Silver,
	"gray":   Gray,
	"blue":   Blue,
	"lime":   Lime,
	"aqua":   Aqua,
	"red":    Red,
	"pink":   Pink,
	"yellow": Yellow,
	"white":  White,
}

// IsColorCode reports whether ch is one of 0-9, a-f or A-F.
func IsColorCode(ch byte) bool {
	return (ch >= '0' && ch <= '9') || (ch >= 'a' && ch <= 'f') || (ch >= 'A' && ch <= 'F')
}

// ParseColor accepts a color name ("red"), a bare code ("c") or an escape
// ("&c") and returns the lower-case color code.
func ParseColor(s string) (byte, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	if c, ok := colorNames[s]; ok {
		return c, true
	}
	s = strings.TrimPrefix(s, "&")
	if len(s) == 1 && IsColorCode(s[0]) {
		return s[0], true
	}
	return 0, false
}

// Aliases assigns colors to the semantic color tokens.
type Aliases struct {
	Sys          byte // &s
	Say          byte // &y
	PM           byte // &p
	Announcement byte // &r
	Help         byte // &h
	Warning      byte // &w
	Me           byte // &m
	IRC          byte // &i
	Global       byte // &g
}

// DefaultAliases returns the stock semantic colors.
func DefaultAliases() Aliases {
	return Aliases{
		Sys:          Yellow,
		Say:          Lime,
		PM:           Aqua,
		Announcement: Green,
		Help:         Lime,
		Warning:      Red,
		Me:           Purple,
		IRC:          Purple,
		Global:       Silver,
	}
}

// Palette resolves the character after '&' to a color code. It is built
// once and never changes, so one Palette is shared by every connection.
type Palette struct {
	table [256]byte
}

// NewPalette builds a palette from the hex color codes plus the given aliases.
func NewPalette(a Aliases) (*Palette, error) {
	p := &Palette{}
	for ch := '0'; ch <= '9'; ch++ {
		p.table[ch] = byte(ch)
	}
	for ch := 'a'; ch <= 'f'; ch++ {
		p.table[ch] = byte(ch)
		p.table[ch-'a'+'A'] = byte(ch)
	}
	for _, al := range []struct {
		token byte
		color byte
	}{
		{'s', a.Sys}, {'y', a.Say}, {'p', a.PM}, {'r', a.Announcement}, {'h', a.Help},
		{'w', a.Warning}, {'m', a.Me}, {'i', a.IRC}, {'g', a.Global},
	} {
		c, ok := ParseColor(string(al.color))
		if !ok {
			return nil, fmt.Errorf("chat: alias &%c maps to invalid color %q", al.token, al.color)
		}
		p.table[al.token] = c
		p.table[al.token-'a'+'A'] = c
	}
	return p, nil
}

var defaultPalette = mustPalette(DefaultAliases())

func mustPalette(a Aliases) *Palette {
	p, err := NewPalette(a)
	if err != nil {
		panic(err)
	}
	return p
}

// DefaultPalette returns the palette built from DefaultAliases.
func DefaultPalette() *Palette {
	return defaultPalette
}

// Lookup resolves a color token. ok is false for characters that are not
// color codes or aliases.
func (p *Palette) Lookup(token byte) (color byte, ok bool) {
	c := p.table[token]
	return c, c != 0
}

// Escape renders the color escape for color; NoColor renders as White.
func Escape(color byte) string {
	if color == NoColor {
		color = White
	}
	return string([]byte{'&', color})
}

// StripColors removes color escapes from s, turning "&&" back into "&".
// Unrecognized escapes are dropped along with the character after '&'.
func StripColors(s string) string {
	if strings.IndexByte(s, '&') < 0 {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		if s[i] != '&' {
			b.WriteByte(s[i])
			continue
		}
		if i+1 < len(s) && s[i+1] == '&' {
			b.WriteByte('&')
		}
		i++
	}
	return b.String()
}
