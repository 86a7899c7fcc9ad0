package server

import (
	"fmt"
	"io"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/apotter96/GemsCraft-Classic-sub000/pkg/chat"
	"github.com/apotter96/GemsCraft-Classic-sub000/pkg/cpe"
	"github.com/apotter96/GemsCraft-Classic-sub000/pkg/events"
	"github.com/apotter96/GemsCraft-Classic-sub000/pkg/protocol"
)

// TransportType identifies the kind of transport a Session uses.
type TransportType int

const (
	TransportTCP       TransportType = iota // Raw Classic TCP
	TransportWebSocket                      // Binary frames from a web client
)

func (t TransportType) String() string {
	if t == TransportWebSocket {
		return "ws"
	}
	return "tcp"
}

// ConnState tracks the state of a connection.
type ConnState int

const (
	ConnHandshake   ConnState = iota // Awaiting the client handshake
	ConnNegotiating                  // Extension negotiation in progress
	ConnPlaying                      // Identified and receiving chat
)

const writeTimeout = 5 * time.Second

// Session represents a single client connection.
// It implements events.Subscriber so it can receive events from the bus.
type Session struct {
	ID         int
	Conn       net.Conn
	Addr       string
	Transport  TransportType
	ConnTime   time.Time
	LastActive time.Time
	BytesSent  int // Total bytes sent to this connection
	BytesRecv  int // Total bytes received from this connection

	palette      *chat.Palette
	messageTypes bool // server allows placements other than chat
	metrics      *Metrics

	// info guards the fields other goroutines read through the
	// ConnManager. It is separate from mu so readers never wait on a write.
	info  sync.RWMutex
	name  string
	state ConnState
	caps  *cpe.Capabilities // negotiated extensions (empty for vanilla clients)

	mu     sync.Mutex
	closed bool
}

// NewSession wraps a net.Conn into a Session.
func NewSession(id int, conn net.Conn, transport TransportType) *Session {
	now := time.Now()
	addr := ""
	if ra := conn.RemoteAddr(); ra != nil {
		addr = ra.String()
	}
	return &Session{
		ID:         id,
		Conn:       conn,
		Addr:       addr,
		Transport:  transport,
		ConnTime:   now,
		LastActive: now,
		palette:    chat.DefaultPalette(),
		state:      ConnHandshake,
		caps:       cpe.NewCapabilities(),
	}
}

// Name returns the player name, or "" before login.
func (s *Session) Name() string {
	s.info.RLock()
	defer s.info.RUnlock()
	return s.name
}

// State returns the connection state.
func (s *Session) State() ConnState {
	s.info.RLock()
	defer s.info.RUnlock()
	return s.state
}

// SetState moves the connection to st.
func (s *Session) SetState(st ConnState) {
	s.info.Lock()
	s.state = st
	s.info.Unlock()
}

// Caps returns the negotiated capabilities. The returned value is never
// modified; SetCaps replaces it.
func (s *Session) Caps() *cpe.Capabilities {
	s.info.RLock()
	defer s.info.RUnlock()
	return s.caps
}

// SetCaps records the result of extension negotiation.
func (s *Session) SetCaps(c *cpe.Capabilities) {
	s.info.Lock()
	s.caps = c
	s.info.Unlock()
}

// login marks the session as playing under name.
func (s *Session) login(name string) {
	s.info.Lock()
	s.name = name
	s.state = ConnPlaying
	s.info.Unlock()
}

// Read reads raw bytes from the client, counting them.
func (s *Session) Read(b []byte) (int, error) {
	n, err := s.Conn.Read(b)
	s.mu.Lock()
	s.BytesRecv += n
	s.mu.Unlock()
	s.metrics.bytesReceived(n)
	return n, err
}

// Write writes one encoded packet to the client. It lets the negotiator and
// protocol.WritePacket use the session directly.
func (s *Session) Write(b []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writeLocked(b)
}

func (s *Session) writeLocked(b []byte) (int, error) {
	if s.closed {
		return 0, net.ErrClosed
	}
	s.Conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	n, err := s.Conn.Write(b)
	s.BytesSent += n
	if len(b) > 0 {
		s.metrics.packetSent(protocol.OpCode(b[0]), n)
	}
	return n, err
}

// Send writes one packet to the client connection.
func (s *Session) Send(p protocol.Packet) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sendLocked(p)
}

func (s *Session) sendLocked(p protocol.Packet) error {
	_, err := s.writeLocked(p.Bytes())
	return err
}

// Traffic returns the byte counters.
func (s *Session) Traffic() (sent, recv int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.BytesSent, s.BytesRecv
}

// touch records client activity.
func (s *Session) touch() {
	s.mu.Lock()
	s.LastActive = time.Now()
	s.mu.Unlock()
}

// Idle returns the time since the client last sent a packet.
func (s *Session) Idle() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return time.Since(s.LastActive)
}

// wrapOptions returns the wrapper settings for this client.
func (s *Session) wrapOptions(prefix string, msgType protocol.MessageType) chat.Options {
	caps := s.Caps()
	return chat.Options{
		Prefix:       prefix,
		Type:         msgType,
		MessageTypes: s.messageTypes && caps.MessageTypes,
		FullCP437:    caps.FullCP437,
		Palette:      s.palette,
	}
}

// SendMessage wraps text into Message packets and writes them in order.
// Chat lines continue with the default prefix; other placements have none.
func (s *Session) SendMessage(msgType protocol.MessageType, text string) error {
	prefix := ""
	if msgType == protocol.MessageChat {
		prefix = chat.DefaultPrefix
	}
	return s.SendPrefixed(prefix, msgType, text)
}

// SendPrefixed is SendMessage with an explicit continuation prefix. All of
// the message's packets are written before any other packet.
func (s *Session) SendPrefixed(prefix string, msgType protocol.MessageType, text string) error {
	packets := chat.Wrap(text, s.wrapOptions(prefix, msgType))

	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for p := range packets {
		if err := s.sendLocked(p); err != nil {
			return err
		}
		n++
	}
	s.metrics.messageWrapped(n)
	return nil
}

// Kick sends a disconnect packet and closes the connection.
func (s *Session) Kick(reason string) {
	s.Send(protocol.Kick(reason))
	s.Close()
}

// Close shuts down the connection.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		s.Conn.Close()
	}
}

// IsClosed returns whether the connection has been closed.
func (s *Session) IsClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Receive implements events.Subscriber.
func (s *Session) Receive(ev events.Event) {
	if ev.Text == "" {
		return
	}
	msgType := protocol.MessageChat
	placed := s.messageTypes && s.Caps().MessageTypes
	switch ev.Type {
	case events.EvStatus:
		// Status lines only make sense on clients that can place them.
		if !placed {
			return
		}
		msgType = ev.MsgType
	case events.EvAnnouncement:
		msgType = protocol.MessageAnnouncement
		if !placed {
			msgType = protocol.MessageChat
		}
	}
	s.SendMessage(msgType, ev.Text)
}

// Closed implements events.Subscriber.
func (s *Session) Closed() bool {
	return s.IsClosed()
}

// Compile-time checks.
var (
	_ events.Subscriber = (*Session)(nil)
	_ io.ReadWriter     = (*Session)(nil)
)

// ConnManager tracks all active connections.
type ConnManager struct {
	mu       sync.RWMutex
	sessions map[int]*Session
	nextID   int
	byName   map[string]*Session // lower-case player name -> session
	EventBus *events.Bus         // Event bus for pub/sub (nil = disabled)
}

// NewConnManager creates a new connection manager.
func NewConnManager() *ConnManager {
	return &ConnManager{
		sessions: make(map[int]*Session),
		byName:   make(map[string]*Session),
		nextID:   1,
	}
}

// Add registers a new session.
func (cm *ConnManager) Add(s *Session) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.sessions[s.ID] = s
}

// Remove unregisters a session and unsubscribes it from the event bus.
func (cm *ConnManager) Remove(s *Session) {
	name := s.Name()
	if cm.EventBus != nil && name != "" {
		cm.EventBus.Unsubscribe(name, s)
	}

	cm.mu.Lock()
	defer cm.mu.Unlock()
	delete(cm.sessions, s.ID)
	if name != "" {
		key := strings.ToLower(name)
		if cm.byName[key] == s {
			delete(cm.byName, key)
		}
	}
}

// Login associates a session with a player name and subscribes it to the
// event bus. If the name was already in use the older session is returned so
// the caller can kick it.
func (cm *ConnManager) Login(s *Session, name string) *Session {
	cm.mu.Lock()
	key := strings.ToLower(name)
	prev := cm.byName[key]
	s.login(name)
	cm.byName[key] = s
	cm.mu.Unlock()

	if cm.EventBus != nil {
		if prev != nil {
			cm.EventBus.Unsubscribe(prev.Name(), prev)
		}
		cm.EventBus.Subscribe(name, s)
	}
	return prev
}

// NextID returns the next session ID.
func (cm *ConnManager) NextID() int {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	id := cm.nextID
	cm.nextID++
	return id
}

// Get returns the session logged in as name.
func (cm *ConnManager) Get(name string) (*Session, bool) {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	s, ok := cm.byName[strings.ToLower(name)]
	return s, ok
}

// Players returns the names of all logged-in players.
func (cm *ConnManager) Players() []string {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	names := make([]string, 0, len(cm.byName))
	for _, s := range cm.byName {
		names = append(names, s.Name())
	}
	return names
}

// AllSessions returns a snapshot of all active sessions.
func (cm *ConnManager) AllSessions() []*Session {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	out := make([]*Session, 0, len(cm.sessions))
	for _, s := range cm.sessions {
		out = append(out, s)
	}
	return out
}

// Count returns the number of active connections.
func (cm *ConnManager) Count() int {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return len(cm.sessions)
}

// CountByTransport returns the number of logged-in players per transport.
func (cm *ConnManager) CountByTransport() map[TransportType]int {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	out := map[TransportType]int{TransportTCP: 0, TransportWebSocket: 0}
	for _, s := range cm.byName {
		out[s.Transport]++
	}
	return out
}

// FormatConnTime formats a duration as connection time.
func FormatConnTime(d time.Duration) string {
	secs := int(d.Seconds())
	hours := secs / 3600
	mins := (secs % 3600) / 60
	return fmt.Sprintf("%02d:%02d", hours, mins)
}
