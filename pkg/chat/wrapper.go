package chat

import (
	"fmt"
	"iter"
	"strings"

	"github.com/apotter96/GemsCraft-Classic-sub000/pkg/protocol"
)

const (
	// LineSize is the payload size of a Message packet.
	LineSize = 64
	// MaxPrefixSize is the longest line prefix accepted.
	MaxPrefixSize = 32
	// DefaultPrefix marks continuation lines of wrapped chat.
	DefaultPrefix = "> "

	payloadStart = 2
	packetSize   = payloadStart + LineSize
)

// Options controls how a message is wrapped for one destination.
type Options struct {
	// Prefix is prepended to every line after the first.
	Prefix string
	// Type is the requested message type. It falls back to chat when
	// MessageTypes is false or the message does not fit on one line.
	Type protocol.MessageType
	// MessageTypes reports whether the destination may receive types other
	// than chat.
	MessageTypes bool
	// FullCP437 reports whether the destination draws the whole code page.
	FullCP437 bool
	// Palette resolves color tokens; nil means DefaultPalette.
	Palette *Palette
}

// LineWrapper splits one message into Message packets. Each call to Next
// continues where the previous one stopped. A LineWrapper is not safe for
// concurrent use.
type LineWrapper struct {
	input       []byte
	prefix      []byte
	prefixColor byte
	msgType     protocol.MessageType
	palette     *Palette

	inputIndex   int
	output       [packetSize]byte
	outputIndex  int
	contentStart int // first payload byte after the prefix

	color          byte // color for the next emitted character
	lastColor      byte // color most recently emitted on this line
	spaceCount     int  // spaces read but not yet written
	wordLength     int  // characters written since the last wrap point
	hadSpace       bool // a wrap checkpoint exists on this line
	expectingColor bool // previous input byte was an unpaired '&'

	wrapIndex       int
	wrapOutputIndex int
	wrapColor       byte
}

// NewLineWrapper prepares message for wrapping. It panics if opts.Prefix
// encodes to more than MaxPrefixSize bytes.
func NewLineWrapper(message string, opts Options) *LineWrapper {
	pal := opts.Palette
	if pal == nil {
		pal = DefaultPalette()
	}
	w := &LineWrapper{
		input:   Encode(message, opts.FullCP437),
		palette: pal,
		msgType: opts.Type,
	}
	if !opts.MessageTypes || len(w.input) >= LineSize {
		w.msgType = protocol.MessageChat
	}
	if opts.Prefix != "" {
		prefix := Encode(opts.Prefix, opts.FullCP437)
		if len(prefix) > MaxPrefixSize {
			panic(fmt.Sprintf("chat: line prefix %q is %d bytes, max %d", opts.Prefix, len(prefix), MaxPrefixSize))
		}
		w.prefix, w.prefixColor = renderPrefix(prefix, pal)
	}
	return w
}

// renderPrefix resolves the prefix's color escapes once. It returns the
// payload bytes and the color in effect at their end.
func renderPrefix(in []byte, pal *Palette) ([]byte, byte) {
	out := make([]byte, 0, len(in))
	color, last := NoColor, NoColor
	emit := func(b ...byte) {
		if color != last {
			out = append(out, '&', colorByte(color))
			last = color
		}
		out = append(out, b...)
	}
	for i := 0; i < len(in); i++ {
		switch ch := in[i]; {
		case ch == '\n':
		case ch == ' ':
			out = append(out, ' ')
		case ch != '&':
			emit(ch)
		case i+1 >= len(in):
		default:
			i++
			if in[i] == '&' {
				emit('&', '&')
			} else if c, ok := pal.Lookup(in[i]); ok {
				color = c
			}
		}
	}
	if len(out) > MaxPrefixSize {
		panic(fmt.Sprintf("chat: rendered line prefix %q needs wrapping", out))
	}
	return out, last
}

func colorByte(c byte) byte {
	if c == NoColor {
		return White
	}
	return c
}

// Next returns the next packet, or false once the whole message is sent.
func (w *LineWrapper) Next() (protocol.Packet, bool) {
	if w.inputIndex >= len(w.input) {
		return protocol.Packet{}, false
	}
	w.startLine()
	for w.inputIndex < len(w.input) {
		if w.processChar(w.input[w.inputIndex]) {
			break
		}
		w.inputIndex++
	}
	return w.finishLine(), true
}

func (w *LineWrapper) startLine() {
	w.outputIndex = payloadStart
	w.lastColor = NoColor
	w.spaceCount = 0
	w.wordLength = 0
	w.hadSpace = false
	w.expectingColor = false
	w.wrapIndex = 0
	w.wrapOutputIndex = 0
	w.wrapColor = NoColor

	if w.inputIndex > 0 && len(w.prefix) > 0 {
		w.outputIndex += copy(w.output[payloadStart:], w.prefix)
		w.lastColor = w.prefixColor
	}
	w.contentStart = w.outputIndex
}

// processChar consumes one input byte. It returns true when the line is
// finished; inputIndex then points at the first byte of the next line.
func (w *LineWrapper) processChar(ch byte) bool {
	switch {
	case ch == '\n':
		w.expectingColor = false
		w.inputIndex++
		return true

	case w.expectingColor:
		w.expectingColor = false
		if ch != '&' {
			if c, ok := w.palette.Lookup(ch); ok {
				w.color = c
			}
			return false
		}
		if w.append('&') {
			return false
		}
		if !w.hadSpace {
			// Re-read the whole "&&" pair on the next line.
			w.inputIndex--
		}
		return w.wrap()

	case ch == '&':
		w.expectingColor = true
		return false

	case ch == ' ':
		if w.spaceCount == 0 && w.outputIndex > w.contentStart {
			w.checkpoint(w.inputIndex)
		}
		w.spaceCount++
		w.wordLength = 0
		return false
	}

	hyphen := ch == '-' && w.wordLength >= 3
	if !w.append(ch) {
		return w.wrap()
	}
	if hyphen {
		w.checkpoint(w.inputIndex + 1)
		w.wordLength = 0
	}
	return false
}

func (w *LineWrapper) checkpoint(inputIndex int) {
	w.wrapIndex = inputIndex
	w.wrapOutputIndex = w.outputIndex
	w.wrapColor = w.color
	w.hadSpace = true
}

// wrap ends the line. With a checkpoint the output is cut back to it;
// without one the line is hard-wrapped at the current byte.
func (w *LineWrapper) wrap() bool {
	if w.hadSpace {
		w.inputIndex = w.wrapIndex
		w.outputIndex = w.wrapOutputIndex
		w.color = w.wrapColor
	}
	return true
}

// append writes ch along with any pending color escape and spaces. It
// returns false, writing nothing, if they do not all fit.
func (w *LineWrapper) append(ch byte) bool {
	spaces := w.spaceCount
	if w.outputIndex == w.contentStart {
		spaces = 0
	}
	size := spaces + 1
	if ch == '&' {
		size++
	}
	prependColor := w.color != w.lastColor
	if prependColor {
		size += 2
	}
	if w.outputIndex+size > packetSize {
		return false
	}

	if prependColor {
		w.output[w.outputIndex] = '&'
		w.output[w.outputIndex+1] = colorByte(w.color)
		w.outputIndex += 2
		w.lastColor = w.color
	}
	for ; spaces > 0; spaces-- {
		w.output[w.outputIndex] = ' '
		w.outputIndex++
	}
	w.spaceCount = 0
	if ch == '&' {
		w.output[w.outputIndex] = '&'
		w.outputIndex++
	}
	w.output[w.outputIndex] = ch
	w.outputIndex++
	w.wordLength++
	return true
}

func (w *LineWrapper) finishLine() protocol.Packet {
	for i := w.outputIndex; i < packetSize; i++ {
		w.output[i] = ' '
	}
	w.output[0] = byte(protocol.OpMessage)
	w.output[1] = byte(w.msgType)
	data := make([]byte, packetSize)
	copy(data, w.output[:])
	return protocol.NewPacket(data)
}

// Wrap returns the packets for message as a sequence. The prefix is checked
// immediately, not on first iteration.
func Wrap(message string, opts Options) iter.Seq[protocol.Packet] {
	w := NewLineWrapper(message, opts)
	return func(yield func(protocol.Packet) bool) {
		for {
			p, ok := w.Next()
			if !ok || !yield(p) {
				return
			}
		}
	}
}

// Payload returns the text of a Message packet without its space padding.
func Payload(p protocol.Packet) string {
	b := p.Bytes()
	if len(b) < packetSize {
		return ""
	}
	return strings.TrimRight(string(b[payloadStart:packetSize]), " ")
}

// Lines wraps message and decodes each payload back to a Go string.
func Lines(message string, opts Options) []string {
	var lines []string
	for p := range Wrap(message, opts) {
		lines = append(lines, Decode([]byte(Payload(p))))
	}
	return lines
}
