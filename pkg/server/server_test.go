package server

import (
	"context"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/apotter96/GemsCraft-Classic-sub000/pkg/archive"
	"github.com/apotter96/GemsCraft-Classic-sub000/pkg/chat"
	"github.com/apotter96/GemsCraft-Classic-sub000/pkg/clientstore"
	"github.com/apotter96/GemsCraft-Classic-sub000/pkg/cpe"
	"github.com/apotter96/GemsCraft-Classic-sub000/pkg/protocol"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	conf := DefaultServerConf()
	conf.TextDir = t.TempDir()
	conf.ClientDB = ""
	srv, err := NewServer(conf)
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	return srv
}

// handshakePacket builds a client identification packet.
func handshakePacket(version byte, name string, cpeFlag bool) protocol.Packet {
	b := make([]byte, protocol.HandshakeSize)
	b[0] = byte(protocol.OpHandshake)
	b[1] = version
	protocol.PutString(b[2:66], name)
	protocol.PutString(b[66:130], "-")
	if cpeFlag {
		b[130] = protocol.CPEMagic
	}
	return protocol.NewPacket(b)
}

// connect runs ServeConn on one end of a pipe and returns the client end.
// The returned channel closes when ServeConn returns.
func connect(t *testing.T, srv *Server) (net.Conn, <-chan struct{}) {
	t.Helper()
	server, client := net.Pipe()
	done := make(chan struct{})
	go func() {
		defer close(done)
		srv.ServeConn(server, TransportTCP)
	}()
	t.Cleanup(func() {
		client.Close()
		<-done
	})
	return client, done
}

// login performs a vanilla handshake and reads the identification reply.
func login(t *testing.T, srv *Server, name string) net.Conn {
	t.Helper()
	client, _ := connect(t, srv)
	if err := protocol.WritePacket(client, handshakePacket(protocol.Version, name, false)); err != nil {
		t.Fatal(err)
	}
	p := readServerPacket(t, client)
	if p.OpCode() != protocol.OpHandshake {
		t.Fatalf("reply opcode = %s, want Handshake", p.OpCode())
	}
	waitFor(t, func() bool { _, ok := srv.Conns.Get(name); return ok })
	return client
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met before deadline")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

// readChat reads Message packets until their joined text contains want.
// Continuation prefixes and color escapes are removed.
func readChat(t *testing.T, conn net.Conn, want string) string {
	t.Helper()
	var parts []string
	for range 16 {
		p := readServerPacket(t, conn)
		if p.OpCode() != protocol.OpMessage {
			t.Fatalf("got %s while waiting for %q", p.OpCode(), want)
		}
		line := chat.StripColors(chat.Payload(p))
		parts = append(parts, strings.TrimPrefix(line, "> "))
		joined := strings.Join(strings.Fields(strings.Join(parts, " ")), " ")
		if strings.Contains(joined, want) {
			return joined
		}
	}
	t.Fatalf("never received %q; got %q", want, parts)
	return ""
}

func TestServeConnVanillaChat(t *testing.T) {
	srv := newTestServer(t)
	client := login(t, srv, "Alice")

	if err := protocol.WritePacket(client, protocol.Message(0xff, "hello there")); err != nil {
		t.Fatal(err)
	}
	p := readServerPacket(t, client)
	if got := chat.Payload(p); got != "&aAlice:&f hello there" {
		t.Errorf("relayed chat = %q", got)
	}

	sess, _ := srv.Conns.Get("alice")
	if caps := sess.Caps(); caps.AppName != "" || len(caps.Extensions) != 0 {
		t.Errorf("vanilla client has capabilities %+v", caps)
	}
}

func TestServeConnRejects(t *testing.T) {
	tests := []struct {
		name   string
		packet protocol.Packet
		reason string
	}{
		{"old protocol", handshakePacket(0x06, "Alice", false), "Unsupported protocol version 6"},
		{"bad name", handshakePacket(protocol.Version, "no spaces!", false), "Invalid player name"},
		{"not a handshake", protocol.Message(0xff, "hi"), "Unexpected packet"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newTestServer(t)
			client, done := connect(t, srv)
			go protocol.WritePacket(client, tt.packet)

			p := readServerPacket(t, client)
			if p.OpCode() != protocol.OpKick {
				t.Fatalf("opcode = %s, want Kick", p.OpCode())
			}
			if got := protocol.GetString(p.Bytes()[1:]); got != tt.reason {
				t.Errorf("kick reason = %q, want %q", got, tt.reason)
			}
			<-done
		})
	}
}

func TestServeConnServerFull(t *testing.T) {
	srv := newTestServer(t)
	srv.Conf.MaxPlayers = 1
	os.WriteFile(filepath.Join(srv.Conf.TextDir, "full.txt"), []byte("Come back later\n"), 0644)
	srv.Texts.Reload()

	login(t, srv, "Alice")
	client, _ := connect(t, srv)
	go protocol.WritePacket(client, handshakePacket(protocol.Version, "Bob", false))
	p := readServerPacket(t, client)
	if p.OpCode() != protocol.OpKick || protocol.GetString(p.Bytes()[1:]) != "Come back later" {
		t.Errorf("got %s %q, want full kick", p.OpCode(), protocol.GetString(p.Bytes()[1:]))
	}
}

func TestServeConnDuplicateLoginKicksOld(t *testing.T) {
	srv := newTestServer(t)
	first := login(t, srv, "Alice")
	old, _ := srv.Conns.Get("Alice")

	second, _ := connect(t, srv)
	go protocol.WritePacket(second, handshakePacket(protocol.Version, "alice", false))

	// The new session is identified before the old one is kicked.
	if p := readServerPacket(t, second); p.OpCode() != protocol.OpHandshake {
		t.Fatalf("new session got %s, want Handshake", p.OpCode())
	}
	if p := readServerPacket(t, first); p.OpCode() != protocol.OpKick {
		t.Fatalf("old session got %s, want Kick", p.OpCode())
	}
	waitFor(t, func() bool { s, ok := srv.Conns.Get("Alice"); return ok && s != old })
}

func TestServeConnCPE(t *testing.T) {
	srv := newTestServer(t)
	store, err := clientstore.Open(filepath.Join(t.TempDir(), "clients.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()
	srv.Store = store

	client, _ := connect(t, srv)
	go protocol.WritePacket(client, handshakePacket(protocol.Version, "Carol", true))

	info, err := protocol.ParseExtInfo(readServerPacket(t, client))
	if err != nil {
		t.Fatal(err)
	}
	if info.AppName != VersionString() {
		t.Errorf("server app name = %q", info.AppName)
	}
	for range info.Count {
		if _, err := protocol.ParseExtEntry(readServerPacket(t, client)); err != nil {
			t.Fatal(err)
		}
	}
	go func() {
		protocol.WritePacket(client, protocol.NewExtInfo("TestClient 1.0", 3))
		protocol.WritePacket(client, protocol.NewExtEntry(cpe.MessageTypes, 1))
		protocol.WritePacket(client, protocol.NewExtEntry(cpe.LongerMessages, 1))
		protocol.WritePacket(client, protocol.NewExtEntry(cpe.TwoWayPing, 1))
	}()

	if p := readServerPacket(t, client); p.OpCode() != protocol.OpHandshake {
		t.Fatalf("got %s, want Handshake", p.OpCode())
	}
	status := readServerPacket(t, client)
	if status.Bytes()[1] != byte(protocol.MessageStatus1) || chat.Payload(status) != "&eGemsCraft" {
		t.Errorf("status line = type %d %q", status.Bytes()[1], chat.Payload(status))
	}

	rec, err := store.Get("carol")
	if err != nil {
		t.Fatalf("store.Get: %v", err)
	}
	if rec.AppName != "TestClient 1.0" || !rec.CPE || len(rec.Extensions) != 3 {
		t.Errorf("record = %+v", rec)
	}

	// A two-part chat line: the first part is a full 64-byte payload.
	first := "The quick brown fox jumps over the lazy dog and keeps on running"
	if len(first) != protocol.StringSize {
		t.Fatalf("first part is %d bytes", len(first))
	}
	go func() {
		protocol.WritePacket(client, protocol.Message(1, first))
		protocol.WritePacket(client, protocol.Message(0, " far away"))
	}()
	got := readChat(t, client, "far away")
	if !strings.Contains(got, "Carol: The quick brown fox") || !strings.Contains(got, "running far away") {
		t.Errorf("long chat = %q", got)
	}

	ping := protocol.NewPacket([]byte{byte(protocol.OpTwoWayPing), 0, 0x12, 0x34})
	go protocol.WritePacket(client, ping)
	if p := readServerPacket(t, client); string(p.Bytes()) != string(ping.Bytes()) {
		t.Errorf("ping echo = % x", p.Bytes())
	}
}

func TestServeConnJoinAndLeave(t *testing.T) {
	srv := newTestServer(t)
	alice := login(t, srv, "Alice")

	bob, bobDone := connect(t, srv)
	go protocol.WritePacket(bob, handshakePacket(protocol.Version, "Bob", false))
	readServerPacket(t, bob)
	readChat(t, alice, "Bob joined the server.")

	bob.Close()
	readChat(t, alice, "Bob left the server.")
	<-bobDone
}

func TestServerStartStop(t *testing.T) {
	conf := DefaultServerConf()
	conf.Port = 0
	conf.TextDir = t.TempDir()
	conf.ClientDB = filepath.Join(t.TempDir(), "clients.db")
	srv, err := NewServer(conf)
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start(ctx) }()
	waitFor(t, func() bool { return srv.Addr() != nil })

	conn, err := net.Dial("tcp", srv.Addr().String())
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()
	if err := protocol.WritePacket(conn, handshakePacket(protocol.Version, "Dave", false)); err != nil {
		t.Fatal(err)
	}
	if p := readServerPacket(t, conn); p.OpCode() != protocol.OpHandshake {
		t.Fatalf("got %s, want Handshake", p.OpCode())
	}
	waitFor(t, func() bool { _, ok := srv.Conns.Get("Dave"); return ok })

	cancel()
	if p := readServerPacket(t, conn); p.OpCode() != protocol.OpKick {
		t.Errorf("got %s on shutdown, want Kick", p.OpCode())
	}
	select {
	case err := <-errCh:
		if err != nil {
			t.Errorf("Start returned %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Start did not return after cancel")
	}
}

func TestValidName(t *testing.T) {
	tests := []struct {
		name string
		want bool
	}{
		{"Alice", true},
		{"bob_the.builder", true},
		{"x", true},
		{"", false},
		{"has space", false},
		{"seventeen_chars_x", false},
		{"émile", false},
	}
	for _, tt := range tests {
		if got := ValidName(tt.name); got != tt.want {
			t.Errorf("ValidName(%q) = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestServerArchive(t *testing.T) {
	srv := newTestServer(t)
	dir := t.TempDir()
	srv.Conf.ArchiveDir = filepath.Join(dir, "archives")
	os.WriteFile(filepath.Join(srv.Conf.TextDir, "rules.txt"), []byte("&eBe nice"), 0644)

	store, err := clientstore.Open(filepath.Join(dir, "clients.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()
	srv.Store = store
	if _, err := store.Touch(clientstore.Record{Player: "Alice", AppName: "ClassiCube"}); err != nil {
		t.Fatal(err)
	}

	path, err := srv.Archive()
	if err != nil {
		t.Fatalf("Archive: %v", err)
	}
	m, err := archive.ReadManifest(path)
	if err != nil {
		t.Fatalf("ReadManifest: %v", err)
	}
	if m.Clients != 1 || m.ServerName != srv.Conf.ServerName {
		t.Errorf("manifest = %+v", m)
	}
	if _, ok := m.Files["data/clients.db"]; !ok {
		t.Error("archive has no client database")
	}
	if _, ok := m.Files["text/rules.txt"]; !ok {
		t.Error("archive has no rules.txt")
	}
	if bad, err := archive.Verify(path); err != nil || len(bad) != 0 {
		t.Errorf("Verify = %v, %v", bad, err)
	}
}
