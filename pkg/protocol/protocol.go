// Package protocol implements the Minecraft Classic wire format and the
// Classic Protocol Extension (CPE) packets the server speaks. Every packet is
// an opcode byte followed by a fixed-size body; strings are 64 bytes of
// code-page text padded with spaces.
package protocol

import "fmt"

// Version is the Classic protocol version the server speaks.
const Version byte = 0x07

// CPEMagic is the value of the handshake's unused byte sent by clients that
// support protocol extensions.
const CPEMagic byte = 0x42

// StringSize is the length of every fixed string field.
const StringSize = 64

// OpCode identifies a packet type.
type OpCode byte

const (
	OpHandshake               OpCode = 0x00
	OpPing                    OpCode = 0x01
	OpMapBegin                OpCode = 0x02
	OpMapChunk                OpCode = 0x03
	OpMapEnd                  OpCode = 0x04
	OpSetBlockClient          OpCode = 0x05
	OpSetBlockServer          OpCode = 0x06
	OpAddEntity               OpCode = 0x07
	OpTeleport                OpCode = 0x08
	OpMoveRotate              OpCode = 0x09
	OpMove                    OpCode = 0x0a
	OpRotate                  OpCode = 0x0b
	OpRemoveEntity            OpCode = 0x0c
	OpMessage                 OpCode = 0x0d
	OpKick                    OpCode = 0x0e
	OpSetPermission           OpCode = 0x0f
	OpExtInfo                 OpCode = 0x10
	OpExtEntry                OpCode = 0x11
	OpSetClickDistance        OpCode = 0x12
	OpCustomBlockSupportLevel OpCode = 0x13
	OpPlayerClick             OpCode = 0x22
	OpTwoWayPing              OpCode = 0x2b
)

// Packet sizes including the opcode byte.
const (
	HandshakeSize               = 131
	PingSize                    = 1
	SetBlockClientSize          = 9
	TeleportSize                = 10
	MessageSize                 = 66
	KickSize                    = 65
	ExtInfoSize                 = 67
	ExtEntrySize                = 69
	CustomBlockSupportLevelSize = 2
	PlayerClickSize             = 15
	TwoWayPingSize              = 4
)

// clientPacketSizes frames the packets a client may send.
var clientPacketSizes = map[OpCode]int{
	OpHandshake:               HandshakeSize,
	OpPing:                    PingSize,
	OpSetBlockClient:          SetBlockClientSize,
	OpTeleport:                TeleportSize,
	OpMessage:                 MessageSize,
	OpExtInfo:                 ExtInfoSize,
	OpExtEntry:                ExtEntrySize,
	OpCustomBlockSupportLevel: CustomBlockSupportLevelSize,
	OpPlayerClick:             PlayerClickSize,
	OpTwoWayPing:              TwoWayPingSize,
}

// ClientPacketSize returns the full size of a client packet with the given
// opcode, or false if clients never send it.
func ClientPacketSize(op OpCode) (int, bool) {
	n, ok := clientPacketSizes[op]
	return n, ok
}

var opNames = map[OpCode]string{
	OpHandshake:               "Handshake",
	OpPing:                    "Ping",
	OpMapBegin:                "MapBegin",
	OpMapChunk:                "MapChunk",
	OpMapEnd:                  "MapEnd",
	OpSetBlockClient:          "SetBlockClient",
	OpSetBlockServer:          "SetBlockServer",
	OpAddEntity:               "AddEntity",
	OpTeleport:                "Teleport",
	OpMoveRotate:              "MoveRotate",
	OpMove:                    "Move",
	OpRotate:                  "Rotate",
	OpRemoveEntity:            "RemoveEntity",
	OpMessage:                 "Message",
	OpKick:                    "Kick",
	OpSetPermission:           "SetPermission",
	OpExtInfo:                 "ExtInfo",
	OpExtEntry:                "ExtEntry",
	OpSetClickDistance:        "SetClickDistance",
	OpCustomBlockSupportLevel: "CustomBlockSupportLevel",
	OpPlayerClick:             "PlayerClick",
	OpTwoWayPing:              "TwoWayPing",
}

// String returns the packet name, used in logs and metric labels.
func (op OpCode) String() string {
	if name, ok := opNames[op]; ok {
		return name
	}
	return fmt.Sprintf("OpCode(0x%02x)", byte(op))
}

// MessageType selects where a Message packet is displayed. Anything other
// than MessageChat requires the MessageTypes extension.
type MessageType byte

const (
	MessageChat              MessageType = 0
	MessageStatus1           MessageType = 1
	MessageStatus2           MessageType = 2
	MessageStatus3           MessageType = 3
	MessageBottomRight1      MessageType = 11
	MessageBottomRight2      MessageType = 12
	MessageBottomRight3      MessageType = 13
	MessageAnnouncement      MessageType = 100
	MessageBigAnnouncement   MessageType = 101
	MessageSmallAnnouncement MessageType = 102
)
