package protocol

import (
	"errors"
	"fmt"
	"io"
)

var (
	ErrUnknownOpCode    = errors.New("protocol: unknown opcode")
	ErrShortPacket      = errors.New("protocol: short packet")
	ErrUnexpectedOpCode = errors.New("protocol: unexpected opcode")
)

// Packet is one encoded wire message. A Packet owns its buffer: nothing
// writes to it after construction, so it can be queued and shared freely.
type Packet struct {
	data []byte
}

// NewPacket wraps data as a packet. The caller gives up ownership of data.
func NewPacket(data []byte) Packet {
	return Packet{data: data}
}

// OpCode returns the packet's opcode.
func (p Packet) OpCode() OpCode {
	if len(p.data) == 0 {
		return 0
	}
	return OpCode(p.data[0])
}

// Bytes returns the encoded packet. Callers must not modify it.
func (p Packet) Bytes() []byte {
	return p.data
}

// Len returns the encoded size including the opcode byte.
func (p Packet) Len() int {
	return len(p.data)
}

// IsZero reports whether p holds no data.
func (p Packet) IsZero() bool {
	return len(p.data) == 0
}

// ReadPacket reads one client packet, using the opcode to determine its size.
func ReadPacket(r io.Reader) (Packet, error) {
	var op [1]byte
	if _, err := io.ReadFull(r, op[:]); err != nil {
		return Packet{}, err
	}
	size, ok := clientPacketSizes[OpCode(op[0])]
	if !ok {
		return Packet{}, fmt.Errorf("%w: 0x%02x", ErrUnknownOpCode, op[0])
	}
	buf := make([]byte, size)
	buf[0] = op[0]
	if _, err := io.ReadFull(r, buf[1:]); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
			return Packet{}, fmt.Errorf("%w: %s", ErrShortPacket, OpCode(op[0]))
		}
		return Packet{}, err
	}
	return Packet{data: buf}, nil
}

// WritePacket writes p to w in full.
func WritePacket(w io.Writer, p Packet) error {
	if p.IsZero() {
		return nil
	}
	_, err := w.Write(p.data)
	return err
}

// expect checks that p carries the wanted opcode and size.
func expect(p Packet, op OpCode, size int) error {
	if p.OpCode() != op {
		return fmt.Errorf("%w: got %s, want %s", ErrUnexpectedOpCode, p.OpCode(), op)
	}
	if p.Len() != size {
		return fmt.Errorf("%w: %s is %d bytes, want %d", ErrShortPacket, op, p.Len(), size)
	}
	return nil
}
