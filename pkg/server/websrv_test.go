package server

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/apotter96/GemsCraft-Classic-sub000/pkg/clientstore"
	"github.com/apotter96/GemsCraft-Classic-sub000/pkg/protocol"
)

func newTestWeb(t *testing.T, cfg WebConfig) (*Server, *httptest.Server) {
	t.Helper()
	srv := newTestServer(t)
	store, err := clientstore.Open(filepath.Join(t.TempDir(), "clients.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })
	srv.Store = store

	ts := httptest.NewServer(NewWebServer(srv, cfg).Handler())
	t.Cleanup(ts.Close)
	return srv, ts
}

func getJSON(t *testing.T, url string, v any) *http.Response {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if v != nil && resp.StatusCode == http.StatusOK {
		if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
			t.Fatalf("decoding %s: %v", url, err)
		}
	}
	return resp
}

func TestWebHealth(t *testing.T) {
	_, ts := newTestWeb(t, WebConfig{})
	var body map[string]any
	resp := getJSON(t, ts.URL+"/health", &body)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if body["status"] != "ok" || body["version"] != Version {
		t.Errorf("health = %v", body)
	}
}

func TestWebClients(t *testing.T) {
	srv, ts := newTestWeb(t, WebConfig{})
	srv.Store.Touch(clientstore.Record{Player: "Alice", AppName: "ClassiCube 1.3.6", CPE: true})
	srv.Store.Touch(clientstore.Record{Player: "Bob"})

	var body struct {
		Clients []clientstore.Record `json:"clients"`
		Apps    map[string]int       `json:"apps"`
	}
	getJSON(t, ts.URL+"/api/clients", &body)
	if len(body.Clients) != 2 || body.Clients[0].Player != "Alice" {
		t.Errorf("clients = %+v", body.Clients)
	}
	if body.Apps["(vanilla)"] != 1 || body.Apps["ClassiCube 1.3.6"] != 1 {
		t.Errorf("apps = %v", body.Apps)
	}

	var rec clientstore.Record
	if resp := getJSON(t, ts.URL+"/api/clients/alice", &rec); resp.StatusCode != http.StatusOK || rec.AppName != "ClassiCube 1.3.6" {
		t.Errorf("GET /api/clients/alice = %d %+v", resp.StatusCode, rec)
	}
	if resp := getJSON(t, ts.URL+"/api/clients/nobody", nil); resp.StatusCode != http.StatusNotFound {
		t.Errorf("GET /api/clients/nobody = %d, want 404", resp.StatusCode)
	}
}

func TestWebRateLimit(t *testing.T) {
	_, ts := newTestWeb(t, WebConfig{RateLimit: 2})
	var last int
	for range 3 {
		last = getJSON(t, ts.URL+"/api/sessions", nil).StatusCode
	}
	if last != http.StatusTooManyRequests {
		t.Errorf("third request status = %d, want 429", last)
	}
	// Health checks are not rate limited.
	if code := getJSON(t, ts.URL+"/health", nil).StatusCode; code != http.StatusOK {
		t.Errorf("/health status = %d", code)
	}
}

func TestWebCORS(t *testing.T) {
	_, ts := newTestWeb(t, WebConfig{CORSOrigins: []string{"https://play.example.com"}})
	for _, tt := range []struct {
		origin string
		want   string
	}{
		{"https://play.example.com", "https://play.example.com"},
		{"https://evil.example.com", ""},
	} {
		req, _ := http.NewRequest(http.MethodOptions, ts.URL+"/api/sessions", nil)
		req.Header.Set("Origin", tt.origin)
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatal(err)
		}
		resp.Body.Close()
		if got := resp.Header.Get("Access-Control-Allow-Origin"); got != tt.want {
			t.Errorf("origin %s: allow = %q, want %q", tt.origin, got, tt.want)
		}
	}
}

func TestWebMetrics(t *testing.T) {
	_, ts := newTestWeb(t, WebConfig{})
	resp, err := http.Get(ts.URL + "/metrics")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(body), "gemscraft_uptime_seconds") {
		t.Error("metrics output missing gemscraft_uptime_seconds")
	}
}

func TestWebSocketTransport(t *testing.T) {
	srv, ts := newTestWeb(t, WebConfig{})
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"

	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	hs := handshakePacket(protocol.Version, "WebUser", false)
	if err := conn.WriteMessage(websocket.BinaryMessage, hs.Bytes()); err != nil {
		t.Fatal(err)
	}
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	typ, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if typ != websocket.BinaryMessage || len(data) != protocol.HandshakeSize || data[0] != byte(protocol.OpHandshake) {
		t.Fatalf("got frame type %d len %d", typ, len(data))
	}
	waitFor(t, func() bool { _, ok := srv.Conns.Get("WebUser"); return ok })

	sess, _ := srv.Conns.Get("WebUser")
	if sess.Transport != TransportWebSocket {
		t.Errorf("transport = %v, want ws", sess.Transport)
	}

	// A chat packet split across two frames still frames correctly.
	msg := protocol.Message(0xff, "from the browser").Bytes()
	conn.WriteMessage(websocket.BinaryMessage, msg[:10])
	conn.WriteMessage(websocket.BinaryMessage, msg[10:])
	_, data, err = conn.ReadMessage()
	if err != nil {
		t.Fatal(err)
	}
	if got := protocol.GetString(data[2:]); got != "&aWebUser:&f from the browser" {
		t.Errorf("chat = %q", got)
	}

	var sessions []sessionInfo
	getJSON(t, ts.URL+"/api/sessions", &sessions)
	if len(sessions) != 1 || sessions[0].Player != "WebUser" || sessions[0].Transport != "ws" {
		t.Errorf("sessions = %+v", sessions)
	}
}
