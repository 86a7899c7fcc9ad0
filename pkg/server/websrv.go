package server

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/apotter96/GemsCraft-Classic-sub000/pkg/clientstore"
)

// WebConfig holds configuration for the web server.
type WebConfig struct {
	Port        int
	Host        string
	CORSOrigins []string
	RateLimit   int         // API requests per minute per IP (0 = off)
	TLS         *tls.Config // serve https and wss when set
}

// WebServer provides the HTTP side server: health, metrics, the client API
// and the WebSocket transport used by browser clients.
type WebServer struct {
	server    *Server
	httpSrv   *http.Server
	router    chi.Router
	rl        *rateLimiter
	upgrader  websocket.Upgrader
	startTime time.Time
	done      chan struct{}
}

// NewWebServer creates a web server bound to srv.
func NewWebServer(srv *Server, cfg WebConfig) *WebServer {
	ws := &WebServer{
		server:    srv,
		startTime: time.Now(),
		done:      make(chan struct{}),
		upgrader: websocket.Upgrader{
			// The ClassiCube web client asks for this subprotocol.
			Subprotocols: []string{"ClassiCube"},
			CheckOrigin: func(r *http.Request) bool {
				if len(cfg.CORSOrigins) == 0 {
					return true
				}
				origin := r.Header.Get("Origin")
				for _, o := range cfg.CORSOrigins {
					if strings.EqualFold(o, origin) {
						return true
					}
				}
				return false
			},
		},
	}
	if cfg.RateLimit > 0 {
		ws.rl = newRateLimiter(cfg.RateLimit)
	}

	ws.registerRoutes(cfg)
	ws.httpSrv = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:           ws.router,
		ReadHeaderTimeout: 10 * time.Second,
		TLSConfig:         cfg.TLS,
	}
	return ws
}

// registerRoutes sets up all HTTP routes.
func (ws *WebServer) registerRoutes(cfg WebConfig) {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Recoverer, requestLogger)
	r.Use(corsMiddleware(cfg.CORSOrigins))

	r.Get("/health", ws.handleHealth)
	r.Method(http.MethodGet, "/metrics", ws.server.Metrics.Handler())
	r.Get("/ws", ws.handleWebSocket)

	r.Route("/api", func(r chi.Router) {
		if ws.rl != nil {
			r.Use(ws.rl.middleware)
		}
		r.Get("/sessions", ws.handleSessions)
		r.Get("/clients", ws.handleClients)
		r.Get("/clients/{player}", ws.handleClient)
	})

	ws.router = r
}

// Handler returns the router, for tests and embedding.
func (ws *WebServer) Handler() http.Handler {
	return ws.router
}

// Start serves HTTP until Stop is called.
func (ws *WebServer) Start() error {
	if ws.rl != nil {
		go func() {
			ticker := time.NewTicker(5 * time.Minute)
			defer ticker.Stop()
			for {
				select {
				case <-ticker.C:
					ws.rl.cleanup()
				case <-ws.done:
					return
				}
			}
		}()
	}

	var err error
	if ws.httpSrv.TLSConfig != nil {
		log.Info().Str("addr", ws.httpSrv.Addr).Msg("web server listening (TLS)")
		err = ws.httpSrv.ListenAndServeTLS("", "")
	} else {
		log.Info().Str("addr", ws.httpSrv.Addr).Msg("web server listening")
		err = ws.httpSrv.ListenAndServe()
	}
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Stop gracefully shuts down the web server.
func (ws *WebServer) Stop(ctx context.Context) error {
	select {
	case <-ws.done:
	default:
		close(ws.done)
	}
	return ws.httpSrv.Shutdown(ctx)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func (ws *WebServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":         "ok",
		"version":        Version,
		"players":        len(ws.server.Conns.Players()),
		"uptime_seconds": int(time.Since(ws.startTime).Seconds()),
	})
}

// sessionInfo is one entry of the /api/sessions listing.
type sessionInfo struct {
	ID         int      `json:"id"`
	Player     string   `json:"player"`
	Transport  string   `json:"transport"`
	App        string   `json:"app,omitempty"`
	Extensions []string `json:"extensions"`
	Connected  string   `json:"connected"`
	IdleSecs   int      `json:"idle_seconds"`
}

func (ws *WebServer) handleSessions(w http.ResponseWriter, r *http.Request) {
	out := []sessionInfo{}
	for _, s := range ws.server.Conns.AllSessions() {
		if s.State() != ConnPlaying {
			continue
		}
		out = append(out, sessionInfo{
			ID:         s.ID,
			Player:     s.Name(),
			Transport:  s.Transport.String(),
			App:        s.Caps().AppName,
			Extensions: s.Caps().Names(),
			Connected:  FormatConnTime(time.Since(s.ConnTime)),
			IdleSecs:   int(s.Idle().Seconds()),
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (ws *WebServer) handleClients(w http.ResponseWriter, r *http.Request) {
	store := ws.server.Store
	if store == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "client store disabled"})
		return
	}
	recs, err := store.List()
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	apps, err := store.AppCounts()
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"clients": recs,
		"apps":    apps,
	})
}

func (ws *WebServer) handleClient(w http.ResponseWriter, r *http.Request) {
	store := ws.server.Store
	if store == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "client store disabled"})
		return
	}
	rec, err := store.Get(chi.URLParam(r, "player"))
	switch {
	case errors.Is(err, clientstore.ErrNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
	case err != nil:
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
	default:
		writeJSON(w, http.StatusOK, rec)
	}
}

// --- WebSocket Transport ---

// handleWebSocket upgrades the request and runs the Classic protocol over
// binary frames, through the same path as TCP connections.
func (ws *WebServer) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := ws.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("websocket upgrade error")
		return
	}
	ws.server.ServeConn(newWSNetConn(conn, r.RemoteAddr), TransportWebSocket)
}

// wsAddr is the client address of a WebSocket connection, taken from the
// request after proxy headers were applied.
type wsAddr string

func (a wsAddr) Network() string { return "ws" }
func (a wsAddr) String() string  { return string(a) }

// wsNetConn presents a WebSocket as a byte stream. Incoming binary frames
// are read back to back; each Write is sent as one binary frame.
type wsNetConn struct {
	conn   *websocket.Conn
	addr   net.Addr
	reader io.Reader
	mu     sync.Mutex // guards writes
}

func newWSNetConn(conn *websocket.Conn, remoteAddr string) *wsNetConn {
	return &wsNetConn{conn: conn, addr: wsAddr(remoteAddr)}
}

func (c *wsNetConn) Read(b []byte) (int, error) {
	for {
		if c.reader == nil {
			typ, r, err := c.conn.NextReader()
			if err != nil {
				var ce *websocket.CloseError
				if errors.As(err, &ce) {
					return 0, io.EOF
				}
				return 0, err
			}
			if typ != websocket.BinaryMessage {
				continue
			}
			c.reader = r
		}
		n, err := c.reader.Read(b)
		if errors.Is(err, io.EOF) {
			c.reader = nil
			if n == 0 {
				continue
			}
			err = nil
		}
		return n, err
	}
}

func (c *wsNetConn) Write(b []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.conn.WriteMessage(websocket.BinaryMessage, b); err != nil {
		return 0, err
	}
	return len(b), nil
}

func (c *wsNetConn) Close() error                       { return c.conn.Close() }
func (c *wsNetConn) LocalAddr() net.Addr                { return c.conn.LocalAddr() }
func (c *wsNetConn) RemoteAddr() net.Addr               { return c.addr }
func (c *wsNetConn) SetReadDeadline(t time.Time) error  { return c.conn.SetReadDeadline(t) }
func (c *wsNetConn) SetWriteDeadline(t time.Time) error { return c.conn.SetWriteDeadline(t) }

func (c *wsNetConn) SetDeadline(t time.Time) error {
	if err := c.conn.SetReadDeadline(t); err != nil {
		return err
	}
	return c.conn.SetWriteDeadline(t)
}

var _ net.Conn = (*wsNetConn)(nil)
