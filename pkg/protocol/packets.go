package protocol

import "encoding/binary"

// User types sent in the identification packet.
const (
	UserTypeNormal   byte = 0x00
	UserTypeOperator byte = 0x64
)

// Handshake is the first packet a client sends.
type Handshake struct {
	ProtocolVersion byte
	Name            string
	VerificationKey string
	Magic           byte
}

// SupportsCPE reports whether the client asked for extension negotiation.
func (h Handshake) SupportsCPE() bool {
	return h.Magic == CPEMagic
}

// ParseHandshake decodes a client handshake packet.
func ParseHandshake(p Packet) (Handshake, error) {
	if err := expect(p, OpHandshake, HandshakeSize); err != nil {
		return Handshake{}, err
	}
	b := p.data
	return Handshake{
		ProtocolVersion: b[1],
		Name:            GetString(b[2:66]),
		VerificationKey: GetString(b[66:130]),
		Magic:           b[130],
	}, nil
}

// Identification builds the server's answer to a handshake.
func Identification(name, motd string, operator bool) Packet {
	b := make([]byte, HandshakeSize)
	b[0] = byte(OpHandshake)
	b[1] = Version
	PutString(b[2:66], name)
	PutString(b[66:130], motd)
	if operator {
		b[130] = UserTypeOperator
	} else {
		b[130] = UserTypeNormal
	}
	return Packet{data: b}
}

// Ping builds a keep-alive packet.
func Ping() Packet {
	return Packet{data: []byte{byte(OpPing)}}
}

// Kick builds a disconnect packet carrying reason.
func Kick(reason string) Packet {
	b := make([]byte, KickSize)
	b[0] = byte(OpKick)
	PutString(b[1:], reason)
	return Packet{data: b}
}

// ChatMessage is a chat line sent by a client. With LongerMessages the
// PlayerID byte flags that more parts follow.
type ChatMessage struct {
	PlayerID byte
	Text     string
}

// Message builds a one-line chat packet. id is the message type on packets
// sent by the server and the player id on packets sent by a client. Text
// beyond StringSize bytes is cut off.
func Message(id byte, text string) Packet {
	b := make([]byte, MessageSize)
	b[0] = byte(OpMessage)
	b[1] = id
	PutString(b[2:], text)
	return Packet{data: b}
}

// ParseMessage decodes a client chat packet.
func ParseMessage(p Packet) (ChatMessage, error) {
	if err := expect(p, OpMessage, MessageSize); err != nil {
		return ChatMessage{}, err
	}
	return ChatMessage{
		PlayerID: p.data[1],
		Text:     GetString(p.data[2:]),
	}, nil
}

// ExtInfo announces how many ExtEntry packets follow.
type ExtInfo struct {
	AppName string
	Count   int
}

// NewExtInfo builds an ExtInfo packet.
func NewExtInfo(appName string, count int) Packet {
	b := make([]byte, ExtInfoSize)
	b[0] = byte(OpExtInfo)
	PutString(b[1:65], appName)
	binary.BigEndian.PutUint16(b[65:67], uint16(count))
	return Packet{data: b}
}

// ParseExtInfo decodes an ExtInfo packet.
func ParseExtInfo(p Packet) (ExtInfo, error) {
	if err := expect(p, OpExtInfo, ExtInfoSize); err != nil {
		return ExtInfo{}, err
	}
	return ExtInfo{
		AppName: GetString(p.data[1:65]),
		Count:   int(binary.BigEndian.Uint16(p.data[65:67])),
	}, nil
}

// ExtEntry names one supported extension and its version.
type ExtEntry struct {
	Name    string
	Version int32
}

// NewExtEntry builds an ExtEntry packet.
func NewExtEntry(name string, version int32) Packet {
	b := make([]byte, ExtEntrySize)
	b[0] = byte(OpExtEntry)
	PutString(b[1:65], name)
	binary.BigEndian.PutUint32(b[65:69], uint32(version))
	return Packet{data: b}
}

// ParseExtEntry decodes an ExtEntry packet.
func ParseExtEntry(p Packet) (ExtEntry, error) {
	if err := expect(p, OpExtEntry, ExtEntrySize); err != nil {
		return ExtEntry{}, err
	}
	return ExtEntry{
		Name:    GetString(p.data[1:65]),
		Version: int32(binary.BigEndian.Uint32(p.data[65:69])),
	}, nil
}

// NewCustomBlockSupportLevel builds a CustomBlockSupportLevel packet.
func NewCustomBlockSupportLevel(level byte) Packet {
	return Packet{data: []byte{byte(OpCustomBlockSupportLevel), level}}
}

// ParseCustomBlockSupportLevel decodes a CustomBlockSupportLevel packet.
func ParseCustomBlockSupportLevel(p Packet) (byte, error) {
	if err := expect(p, OpCustomBlockSupportLevel, CustomBlockSupportLevelSize); err != nil {
		return 0, err
	}
	return p.data[1], nil
}
