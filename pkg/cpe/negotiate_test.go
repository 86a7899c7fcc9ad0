package cpe

import (
	"errors"
	"net"
	"testing"

	"github.com/apotter96/GemsCraft-Classic-sub000/pkg/protocol"
)

// fakeClient plays the client half of the handshake on conn. It reads the
// server's offer, answers with entries and, when blockLevel is non-zero,
// answers the custom block level exchange.
func fakeClient(t *testing.T, conn net.Conn, entries []Extension, blockLevel byte) <-chan []Extension {
	t.Helper()
	offered := make(chan []Extension, 1)
	go func() {
		defer close(offered)
		p, err := protocol.ReadPacket(conn)
		if err != nil {
			t.Errorf("client: reading ExtInfo: %v", err)
			return
		}
		info, err := protocol.ParseExtInfo(p)
		if err != nil {
			t.Errorf("client: %v", err)
			return
		}
		var got []Extension
		for range info.Count {
			p, err := protocol.ReadPacket(conn)
			if err != nil {
				t.Errorf("client: reading ExtEntry: %v", err)
				return
			}
			e, err := protocol.ParseExtEntry(p)
			if err != nil {
				t.Errorf("client: %v", err)
				return
			}
			got = append(got, Extension{e.Name, e.Version})
		}

		protocol.WritePacket(conn, protocol.NewExtInfo("TestClient", len(entries)))
		for _, e := range entries {
			protocol.WritePacket(conn, protocol.NewExtEntry(e.Name, e.Version))
		}
		if blockLevel != 0 {
			p, err := protocol.ReadPacket(conn)
			if err != nil {
				t.Errorf("client: reading CustomBlockSupportLevel: %v", err)
				return
			}
			if _, err := protocol.ParseCustomBlockSupportLevel(p); err != nil {
				t.Errorf("client: %v", err)
				return
			}
			protocol.WritePacket(conn, protocol.NewCustomBlockSupportLevel(blockLevel))
		}
		offered <- got
	}()
	return offered
}

func TestNegotiateIgnoresUnknownExtensions(t *testing.T) {
	server, client := net.Pipe()
	defer server.Close()
	defer client.Close()

	offered := fakeClient(t, client, []Extension{{"ClickDistance", 1}, {"BogusExt", 1}}, 0)
	caps, err := Negotiate(server, Offer{AppName: "GemsCraft"})
	if err != nil {
		t.Fatalf("Negotiate: %v", err)
	}
	if !caps.ClickDistance {
		t.Error("ClickDistance not set")
	}
	if caps.Supports("BogusExt") {
		t.Error("BogusExt recorded as supported")
	}
	if len(caps.Extensions) != 1 {
		t.Errorf("matched %v, want only ClickDistance", caps.Names())
	}
	if caps.AppName != "TestClient" || caps.ExtensionCount != 2 {
		t.Errorf("client info = %q/%d", caps.AppName, caps.ExtensionCount)
	}
	if caps.UsesCustomBlocks() {
		t.Error("UsesCustomBlocks without CustomBlocks")
	}
	if got := <-offered; len(got) != len(ServerExtensions) {
		t.Errorf("client saw %d entries, want %d", len(got), len(ServerExtensions))
	}
}

func TestNegotiateVersionMustMatch(t *testing.T) {
	server, client := net.Pipe()
	defer server.Close()
	defer client.Close()

	fakeClient(t, client, []Extension{{"FullCP437", 2}, {"MessageTypes", 1}}, 0)
	caps, err := Negotiate(server, Offer{AppName: "GemsCraft"})
	if err != nil {
		t.Fatalf("Negotiate: %v", err)
	}
	if caps.FullCP437 {
		t.Error("FullCP437 matched with the wrong version")
	}
	if !caps.MessageTypes {
		t.Error("MessageTypes not set")
	}
}

func TestNegotiateCustomBlocks(t *testing.T) {
	tests := []struct {
		name        string
		clientLevel byte
		serverLevel byte
		want        byte
	}{
		{"equal", 1, 1, 1},
		{"client higher", 5, 1, 1},
		{"client lower", 1, 3, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server, client := net.Pipe()
			defer server.Close()
			defer client.Close()

			fakeClient(t, client, []Extension{{"CustomBlocks", 1}}, tt.clientLevel)
			caps, err := Negotiate(server, Offer{AppName: "GemsCraft", CustomBlockLevel: tt.serverLevel})
			if err != nil {
				t.Fatalf("Negotiate: %v", err)
			}
			if caps.CustomBlockLevel != tt.want {
				t.Errorf("CustomBlockLevel = %d, want %d", caps.CustomBlockLevel, tt.want)
			}
			if !caps.UsesCustomBlocks() {
				t.Error("UsesCustomBlocks = false")
			}
		})
	}
}

func TestNegotiateUnexpectedPacket(t *testing.T) {
	server, client := net.Pipe()
	defer server.Close()
	defer client.Close()

	offer := Offer{AppName: "GemsCraft", Extensions: []Extension{{ClickDistance, 1}}}
	go func() {
		// Drain the offer, then answer with a chat line instead of ExtInfo.
		for range 2 {
			if _, err := protocol.ReadPacket(client); err != nil {
				return
			}
		}
		protocol.WritePacket(client, protocol.Message(0xff, "hello"))
	}()

	caps, err := Negotiate(server, offer)
	if !errors.Is(err, ErrUnexpectedPacket) {
		t.Fatalf("Negotiate error = %v, want ErrUnexpectedPacket", err)
	}
	if caps != nil {
		t.Error("Negotiate returned capabilities on failure")
	}
}

func TestNegotiateUnexpectedPacketMidEntries(t *testing.T) {
	server, client := net.Pipe()
	defer server.Close()
	defer client.Close()

	offer := Offer{AppName: "GemsCraft", Extensions: []Extension{{ClickDistance, 1}}}
	go func() {
		for range 2 {
			if _, err := protocol.ReadPacket(client); err != nil {
				return
			}
		}
		protocol.WritePacket(client, protocol.NewExtInfo("TestClient", 2))
		protocol.WritePacket(client, protocol.NewExtEntry(ClickDistance, 1))
		protocol.WritePacket(client, protocol.Ping())
	}()

	_, err := Negotiate(server, offer)
	if !errors.Is(err, ErrUnexpectedPacket) {
		t.Fatalf("Negotiate error = %v, want ErrUnexpectedPacket", err)
	}
}

func TestNegotiateClosedConnection(t *testing.T) {
	server, client := net.Pipe()
	defer server.Close()

	go func() {
		protocol.ReadPacket(client)
		client.Close()
	}()
	if _, err := Negotiate(server, Offer{AppName: "GemsCraft"}); err == nil {
		t.Fatal("Negotiate succeeded on a closed connection")
	}
}

func TestStateString(t *testing.T) {
	if got := StateReadingEntries.String(); got != "reading client ExtEntry" {
		t.Errorf("StateReadingEntries.String() = %q", got)
	}
	if got := State(42).String(); got != "State(42)" {
		t.Errorf("State(42).String() = %q", got)
	}
}
