package cpe

import (
	"errors"
	"fmt"
	"io"

	"github.com/rs/zerolog/log"

	"github.com/apotter96/GemsCraft-Classic-sub000/pkg/protocol"
)

// ErrUnexpectedPacket is returned when the client sends a packet that does
// not belong at the current step of the negotiation.
var ErrUnexpectedPacket = errors.New("cpe: unexpected packet")

// State is a step of the negotiation.
type State int

const (
	StateStart State = iota
	StateSentServerExtInfo
	StateAwaitingClientExtInfo
	StateReadingEntries
	StateCustomBlockLevel
	StateDone
	StateFailed
)

var stateNames = [...]string{
	StateStart:                 "start",
	StateSentServerExtInfo:     "sent server ExtInfo",
	StateAwaitingClientExtInfo: "awaiting client ExtInfo",
	StateReadingEntries:        "reading client ExtEntry",
	StateCustomBlockLevel:      "custom block level exchange",
	StateDone:                  "done",
	StateFailed:                "failed",
}

func (s State) String() string {
	if s >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Offer is what the server announces.
type Offer struct {
	AppName string
	// Extensions defaults to ServerExtensions.
	Extensions []Extension
	// CustomBlockLevel defaults to MaxCustomBlockLevel.
	CustomBlockLevel byte
}

// negotiation walks the state machine for one connection.
type negotiation struct {
	rw        io.ReadWriter
	offer     Offer
	caps      *Capabilities
	state     State
	remaining int
}

// Negotiate runs the extension handshake on rw and returns the agreed
// capabilities. Client entries that do not exactly match an offered name and
// version are ignored. Any out-of-order packet fails the negotiation with an
// error wrapping ErrUnexpectedPacket. Negotiate never closes rw; deadlines are
// the caller's concern.
func Negotiate(rw io.ReadWriter, offer Offer) (*Capabilities, error) {
	if offer.Extensions == nil {
		offer.Extensions = ServerExtensions
	}
	if offer.CustomBlockLevel == 0 {
		offer.CustomBlockLevel = MaxCustomBlockLevel
	}
	n := &negotiation{rw: rw, offer: offer, caps: NewCapabilities()}
	for n.state != StateDone {
		if err := n.step(); err != nil {
			failed := n.state
			n.state = StateFailed
			return nil, fmt.Errorf("cpe: %s: %w", failed, err)
		}
	}
	log.Debug().
		Str("client", n.caps.AppName).
		Int("declared", n.caps.ExtensionCount).
		Int("matched", len(n.caps.Extensions)).
		Uint8("custom_block_level", n.caps.CustomBlockLevel).
		Msg("cpe negotiation complete")
	return n.caps, nil
}

func (n *negotiation) step() error {
	switch n.state {
	case StateStart:
		if err := protocol.WritePacket(n.rw, protocol.NewExtInfo(n.offer.AppName, len(n.offer.Extensions))); err != nil {
			return err
		}
		n.state = StateSentServerExtInfo

	case StateSentServerExtInfo:
		for _, e := range n.offer.Extensions {
			if err := protocol.WritePacket(n.rw, protocol.NewExtEntry(e.Name, e.Version)); err != nil {
				return err
			}
		}
		n.state = StateAwaitingClientExtInfo

	case StateAwaitingClientExtInfo:
		p, err := n.read(protocol.OpExtInfo)
		if err != nil {
			return err
		}
		info, err := protocol.ParseExtInfo(p)
		if err != nil {
			return err
		}
		n.caps.AppName = info.AppName
		n.caps.ExtensionCount = info.Count
		n.remaining = info.Count
		n.state = StateReadingEntries

	case StateReadingEntries:
		if n.remaining == 0 {
			n.state = StateDone
			if n.caps.CustomBlocks {
				n.state = StateCustomBlockLevel
			}
			return nil
		}
		p, err := n.read(protocol.OpExtEntry)
		if err != nil {
			return err
		}
		entry, err := protocol.ParseExtEntry(p)
		if err != nil {
			return err
		}
		n.remaining--
		n.match(Extension{Name: entry.Name, Version: entry.Version})

	case StateCustomBlockLevel:
		if err := protocol.WritePacket(n.rw, protocol.NewCustomBlockSupportLevel(n.offer.CustomBlockLevel)); err != nil {
			return err
		}
		p, err := n.read(protocol.OpCustomBlockSupportLevel)
		if err != nil {
			return err
		}
		level, err := protocol.ParseCustomBlockSupportLevel(p)
		if err != nil {
			return err
		}
		n.caps.CustomBlockLevel = min(level, n.offer.CustomBlockLevel)
		n.state = StateDone
	}
	return nil
}

func (n *negotiation) match(e Extension) {
	for _, offered := range n.offer.Extensions {
		if offered == e {
			n.caps.enable(e)
			return
		}
	}
	log.Debug().Str("client", n.caps.AppName).Str("extension", e.Name).Int32("version", e.Version).
		Msg("cpe: ignoring unsupported extension")
}

// read reads the next client packet and checks that it is a want.
func (n *negotiation) read(want protocol.OpCode) (protocol.Packet, error) {
	p, err := protocol.ReadPacket(n.rw)
	if err != nil {
		if errors.Is(err, protocol.ErrUnknownOpCode) {
			return protocol.Packet{}, fmt.Errorf("%w: %w", ErrUnexpectedPacket, err)
		}
		return protocol.Packet{}, err
	}
	if p.OpCode() != want {
		return protocol.Packet{}, fmt.Errorf("%w: got %s, want %s", ErrUnexpectedPacket, p.OpCode(), want)
	}
	return p, nil
}
