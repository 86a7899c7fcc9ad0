package server

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/apotter96/GemsCraft-Classic-sub000/pkg/archive"
	"github.com/apotter96/GemsCraft-Classic-sub000/pkg/chat"
	"github.com/apotter96/GemsCraft-Classic-sub000/pkg/clientstore"
	"github.com/apotter96/GemsCraft-Classic-sub000/pkg/cpe"
	"github.com/apotter96/GemsCraft-Classic-sub000/pkg/events"
	"github.com/apotter96/GemsCraft-Classic-sub000/pkg/protocol"
)

// maxChatLength caps a chat line assembled from LongerMessages parts.
const maxChatLength = 1024

// Server is the Classic TCP server plus its optional HTTP side server.
type Server struct {
	Conf     *ServerConf
	Conns    *ConnManager
	Bus      *events.Bus
	Texts    *TextFiles
	Store    *clientstore.Store // nil when client_db is empty
	Metrics  *Metrics
	Commands map[string]*Command

	palette   *chat.Palette
	startTime time.Time

	mu        sync.Mutex
	listener  net.Listener
	webServer *WebServer
}

// NewServer creates a server from conf. Nothing is opened until Start.
func NewServer(conf *ServerConf) (*Server, error) {
	if conf == nil {
		conf = DefaultServerConf()
	}
	pal, err := conf.Palette()
	if err != nil {
		return nil, err
	}
	bus := events.NewBus()
	conns := NewConnManager()
	conns.EventBus = bus
	now := time.Now()
	return &Server{
		Conf:      conf,
		Conns:     conns,
		Bus:       bus,
		Texts:     LoadTextFiles(conf.TextDir),
		Metrics:   NewMetrics(conns, now),
		Commands:  InitCommands(),
		palette:   pal,
		startTime: now,
	}, nil
}

// Start opens the client store, listens for connections and blocks until
// ctx is cancelled or a listener fails.
func (s *Server) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if s.Store == nil && s.Conf.ClientDB != "" {
		store, err := clientstore.Open(s.Conf.ClientDB)
		if err != nil {
			return err
		}
		s.Store = store
		defer store.Close()
	}

	if err := s.Texts.Watch(ctx, nil); err != nil {
		log.Warn().Err(err).Str("dir", s.Conf.TextDir).Msg("could not watch text directory")
	}

	var tlsConf *tls.Config
	if s.Conf.WebEnabled && s.Conf.WebTLS.Enabled {
		res, err := SetupTLS(s.Conf.WebTLS)
		if err != nil {
			return err
		}
		tlsConf = res.Config
	}

	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", s.Conf.Port))
	if err != nil {
		return fmt.Errorf("listener: %w", err)
	}
	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()
	log.Info().Int("port", s.Conf.Port).Str("name", s.Conf.ServerName).Msg("listening")

	var wg sync.WaitGroup
	errCh := make(chan error, 2)

	wg.Add(1)
	go func() {
		defer wg.Done()
		s.acceptLoop(ln)
	}()

	if s.Conf.ArchiveInterval > 0 && s.Conf.ArchiveDir != "" {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.archiveLoop(ctx, time.Duration(s.Conf.ArchiveInterval)*time.Minute)
		}()
	}

	if s.Conf.WebEnabled {
		web := NewWebServer(s, WebConfig{
			Host:        s.Conf.WebHost,
			Port:        s.Conf.WebPort,
			CORSOrigins: s.Conf.WebCORSOrigins,
			RateLimit:   s.Conf.WebRateLimit,
			TLS:         tlsConf,
		})
		s.mu.Lock()
		s.webServer = web
		s.mu.Unlock()
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := web.Start(); err != nil {
				errCh <- fmt.Errorf("web server: %w", err)
			}
		}()
	}

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-errCh:
	}
	cancel()
	s.Stop()
	wg.Wait()
	return runErr
}

// Addr returns the address of the TCP listener, or nil before Start.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// acceptLoop accepts connections on the given listener until it is closed.
func (s *Server) acceptLoop(ln net.Listener) {
	for {
		conn, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			log.Error().Err(err).Msg("accept error")
			continue
		}
		go s.ServeConn(conn, TransportTCP)
	}
}

// Stop closes the listeners and kicks every connected player.
func (s *Server) Stop() {
	s.mu.Lock()
	ln, web := s.listener, s.webServer
	s.listener, s.webServer = nil, nil
	s.mu.Unlock()

	if ln != nil {
		ln.Close()
	}
	if web != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		web.Stop(ctx)
	}
	for _, sess := range s.Conns.AllSessions() {
		sess.Kick("Server shutting down")
	}
}

// Archive writes a backup of the client database, text files and config
// file to the archive directory and returns its path.
func (s *Server) Archive() (string, error) {
	params := archive.Params{
		TextDir:    s.Conf.TextDir,
		ConfPath:   s.Conf.Path(),
		ArchiveDir: s.Conf.ArchiveDir,
		Server:     VersionString(),
		ServerName: s.Conf.ServerName,
	}
	if s.Store != nil {
		params.SnapshotFunc = s.Store.Backup
		if recs, err := s.Store.List(); err == nil {
			params.Clients = len(recs)
		}
	}
	path, err := archive.CreateArchive(params)
	if err != nil {
		return "", err
	}
	log.Info().Str("path", path).Int("clients", params.Clients).Msg("archive written")
	return path, nil
}

// archiveLoop writes an archive every interval until ctx is cancelled.
func (s *Server) archiveLoop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.Archive(); err != nil {
				log.Error().Err(err).Msg("periodic archive failed")
			}
		}
	}
}

// Announce shows text to every player, as an announcement where supported.
func (s *Server) Announce(text string) {
	s.Bus.Broadcast(events.Event{Type: events.EvAnnouncement, Text: text})
}

// ServeConn runs one client connection from handshake to disconnect. It is
// used for raw TCP connections and for WebSocket connections alike.
func (s *Server) ServeConn(conn net.Conn, transport TransportType) {
	sess := NewSession(s.Conns.NextID(), conn, transport)
	sess.palette = s.palette
	sess.messageTypes = s.Conf.MessageTypes
	sess.metrics = s.Metrics
	s.Conns.Add(sess)
	s.Metrics.connected(transport)

	logger := log.With().
		Int("session", sess.ID).
		Str("addr", sess.Addr).
		Str("transport", transport.String()).
		Logger()
	logger.Info().Msg("new connection")

	defer func() {
		s.Conns.Remove(sess)
		sess.Close()
		if sess.State() == ConnPlaying {
			if cur, ok := s.Conns.Get(sess.Name()); !ok || cur == sess {
				s.Bus.Broadcast(events.Event{
					Type:   events.EvDisconnect,
					Source: sess.Name(),
					Text:   fmt.Sprintf("&s%s left the server.", sess.Name()),
				})
			}
		}
		sent, recv := sess.Traffic()
		logger.Info().
			Str("player", sess.Name()).
			Int("bytes_sent", sent).
			Int("bytes_recv", recv).
			Msg("connection closed")
	}()

	if err := s.handshake(sess, logger); err != nil {
		logger.Info().Err(err).Msg("handshake failed")
		return
	}
	s.readLoop(sess, logger)
}

// handshake reads the client identification, negotiates extensions and logs
// the player in.
func (s *Server) handshake(sess *Session, logger zerolog.Logger) error {
	if d := s.Conf.HandshakeDeadline(); d > 0 {
		sess.Conn.SetReadDeadline(time.Now().Add(d))
	}
	p, err := protocol.ReadPacket(sess)
	if err != nil {
		return err
	}
	hs, err := protocol.ParseHandshake(p)
	if err != nil {
		sess.Kick("Unexpected packet")
		return err
	}
	if hs.ProtocolVersion != protocol.Version {
		sess.Kick(fmt.Sprintf("Unsupported protocol version %d", hs.ProtocolVersion))
		return fmt.Errorf("protocol version %d", hs.ProtocolVersion)
	}
	if !ValidName(hs.Name) {
		sess.Kick("Invalid player name")
		return fmt.Errorf("invalid name %q", hs.Name)
	}
	if _, loggedIn := s.Conns.Get(hs.Name); !loggedIn && len(s.Conns.Players()) >= s.Conf.MaxPlayers {
		reason := s.Texts.GetFull()
		if reason == "" {
			reason = "Server is full"
		}
		sess.Kick(reason)
		return errors.New("server full")
	}

	if hs.SupportsCPE() {
		sess.SetState(ConnNegotiating)
		if d := s.Conf.NegotiateDeadline(); d > 0 {
			sess.Conn.SetReadDeadline(time.Now().Add(d))
		}
		caps, err := cpe.Negotiate(sess, cpe.Offer{AppName: VersionString()})
		if err != nil {
			s.Metrics.negotiated("failed")
			if errors.Is(err, cpe.ErrUnexpectedPacket) {
				sess.Kick("Extension negotiation failed")
			}
			return err
		}
		sess.SetCaps(caps)
		s.Metrics.negotiated("ok")
		logger.Info().
			Str("player", hs.Name).
			Str("app", caps.AppName).
			Strs("extensions", caps.Names()).
			Msg("extensions negotiated")
	} else {
		s.Metrics.negotiated("vanilla")
	}
	sess.Conn.SetReadDeadline(time.Time{})

	s.recordClient(sess, hs, logger)

	if err := sess.Send(protocol.Identification(s.Conf.ServerName, s.Conf.Motd, false)); err != nil {
		return err
	}
	if prev := s.Conns.Login(sess, hs.Name); prev != nil {
		prev.Kick("Logged in from another location")
	}
	logger.Info().Str("player", sess.Name()).Msg("player logged in")

	if motd := s.Texts.GetMotd(); motd != "" {
		sess.SendMessage(protocol.MessageChat, motd)
	}
	s.Bus.EmitToPlayer(sess.Name(), events.Event{
		Type:    events.EvStatus,
		MsgType: protocol.MessageStatus1,
		Text:    "&s" + s.Conf.ServerName,
	})
	s.Bus.BroadcastExcept(sess.Name(), events.Event{
		Type:   events.EvConnect,
		Source: sess.Name(),
		Text:   fmt.Sprintf("&s%s joined the server.", sess.Name()),
	})
	return nil
}

// recordClient stores which client the player connected with. Failures are
// logged; they never stop the login.
func (s *Server) recordClient(sess *Session, hs protocol.Handshake, logger zerolog.Logger) {
	if s.Store == nil {
		return
	}
	host := sess.Addr
	if h, _, err := net.SplitHostPort(sess.Addr); err == nil {
		host = h
	}
	_, err := s.Store.Touch(clientstore.Record{
		Player:     hs.Name,
		AppName:    sess.Caps().AppName,
		CPE:        hs.SupportsCPE(),
		Extensions: sess.Caps().Extensions,
		Address:    host,
		Transport:  sess.Transport.String(),
	})
	if err != nil {
		logger.Warn().Err(err).Msg("could not record client")
	}
}

// readLoop frames client packets until the connection ends.
func (s *Server) readLoop(sess *Session, logger zerolog.Logger) {
	var pending strings.Builder
	for {
		p, err := protocol.ReadPacket(sess)
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) && !sess.IsClosed() {
				logger.Debug().Err(err).Msg("read error")
				if errors.Is(err, protocol.ErrUnknownOpCode) {
					sess.Kick("Unknown packet")
				}
			}
			return
		}
		sess.touch()

		switch p.OpCode() {
		case protocol.OpMessage:
			msg, err := protocol.ParseMessage(p)
			if err != nil {
				continue
			}
			// With LongerMessages a non-zero id means more parts follow.
			// Parts keep their padding so words split across them survive.
			if sess.Caps().LongerMessages && msg.PlayerID != 0 {
				if pending.Len()+protocol.StringSize > maxChatLength {
					pending.Reset()
					sess.SendMessage(protocol.MessageChat, "&wMessage too long, discarded.")
					continue
				}
				pending.WriteString(chat.Decode(p.Bytes()[2:]))
				continue
			}
			pending.WriteString(chat.Decode([]byte(msg.Text)))
			line := pending.String()
			pending.Reset()
			DispatchCommand(s, sess, line)
		case protocol.OpTwoWayPing:
			if sess.Caps().TwoWayPing {
				sess.Send(p)
			}
		default:
			// Block, position and click packets have no handler here.
		}

		if sess.IsClosed() {
			return
		}
	}
}

// ValidName reports whether name is an acceptable Classic player name:
// 1 to 16 letters, digits, underscores or dots.
func ValidName(name string) bool {
	if name == "" || len(name) > 16 {
		return false
	}
	for i := 0; i < len(name); i++ {
		c := name[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '_', c == '.':
		default:
			return false
		}
	}
	return true
}
