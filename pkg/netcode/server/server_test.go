package server

import (
	"net"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/StoreStation/vnet/pkg/metrics"
	"github.com/StoreStation/vnet/pkg/physics"
	"github.com/StoreStation/vnet/pkg/protocol"
	"github.com/StoreStation/vnet/pkg/transport"
	"github.com/StoreStation/vnet/pkg/voxel"
)

// sharedMetrics is constructed once for the whole test binary: promauto
// panics if the same metric name is registered twice in one process.
var sharedMetrics = metrics.NewServer()

func newTestServer(t *testing.T) (*Server, *transport.Host) {
	t.Helper()
	reg := voxel.NewRegistry()
	reg.MarkSolid(voxel.Block(1))
	reg.MarkFluid(voxel.Block(2))
	world := voxel.NewWorld(reg)
	for x := int32(0); x < 16; x++ {
		for z := int32(0); z < 16; z++ {
			world.SetBlock(x, 0, z, voxel.Block(1))
		}
	}

	config := DefaultConfig()
	config.SpawnPoint = physics.Vec3{X: 8, Y: 5, Z: 8}

	srv := New(config, world, reg, zerolog.Nop(), sharedMetrics)

	host, err := transport.Listen("127.0.0.1:0", zerolog.Nop())
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv.host = host

	return srv, host
}

// fakeClientConn opens a raw UDP socket standing in for a connecting
// client, and registers it with the server's host the way the real read
// loop would on first datagram.
func fakeClientConn(t *testing.T, srv *Server, host *transport.Host) (*net.UDPConn, *Client) {
	t.Helper()
	conn, err := net.DialUDP("udp", nil, host.LocalAddr().(*net.UDPAddr))
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	peer := host.Connect(conn.LocalAddr().(*net.UDPAddr))
	c := &Client{Peer: peer, LoadedChunks: make(map[voxel.ChunkPos]bool), ConnectedAt: time.Now()}
	return conn, c
}

func readFrame(t *testing.T, conn *net.UDPConn) protocol.Frame {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(time.Second))
	buf := make([]byte, 65535)
	n, err := conn.Read(buf)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	frame, ok := protocol.DecodeFrame(buf[:n])
	if !ok {
		t.Fatalf("failed to decode frame")
	}
	return frame
}

func TestHandshakeAcceptsValidRequestAndSpawnsEntity(t *testing.T) {
	srv, host := newTestServer(t)
	defer host.Close()
	conn, c := fakeClientConn(t, srv, host)
	defer conn.Close()

	payload := protocol.HandshakeRequest{
		ProtocolVersion: protocol.ProtocolVersion,
		PlayerName:      "alice",
	}.Encode()
	srv.handleHandshake(c, payload)

	if !c.handshakeDone {
		t.Fatal("handshakeDone not set after valid handshake")
	}
	ent := srv.ents.Get(c.EntityID)
	if ent == nil {
		t.Fatal("entity not created for handshaken client")
	}
	if ent.Transform.Position != srv.config.SpawnPoint {
		t.Fatalf("spawn position = %+v, want %+v", ent.Transform.Position, srv.config.SpawnPoint)
	}

	frame := readFrame(t, conn)
	if frame.Header.Type != protocol.TypeHandshakeResponse {
		t.Fatalf("first sent frame type = %v, want HandshakeResponse", frame.Header.Type)
	}
	resp, ok := protocol.DecodeHandshakeResponse(frame.Payload)
	if !ok || !resp.Accepted {
		t.Fatalf("handshake response not accepted: %+v ok=%v", resp, ok)
	}
}

func TestHandshakeRejectsWrongProtocolVersion(t *testing.T) {
	srv, host := newTestServer(t)
	defer host.Close()
	conn, c := fakeClientConn(t, srv, host)
	defer conn.Close()

	payload := protocol.HandshakeRequest{
		ProtocolVersion: protocol.ProtocolVersion + 1,
		PlayerName:      "bob",
	}.Encode()
	srv.handleHandshake(c, payload)

	if c.handshakeDone {
		t.Fatal("handshakeDone set despite protocol mismatch")
	}

	frame := readFrame(t, conn)
	resp, ok := protocol.DecodeHandshakeResponse(frame.Payload)
	if !ok || resp.Accepted {
		t.Fatalf("expected rejected handshake response, got accepted=%v ok=%v", resp.Accepted, ok)
	}
}

func TestHandshakeIsIdempotentOnceDone(t *testing.T) {
	srv, host := newTestServer(t)
	defer host.Close()
	conn, c := fakeClientConn(t, srv, host)
	defer conn.Close()

	payload := protocol.HandshakeRequest{ProtocolVersion: protocol.ProtocolVersion, PlayerName: "alice"}.Encode()
	srv.handleHandshake(c, payload)
	readFrame(t, conn)
	firstEntity := c.EntityID

	srv.handleHandshake(c, payload)
	if c.EntityID != firstEntity {
		t.Fatal("second handshake created a new entity for an already-handshaken client")
	}
}

func TestPlayerInputMovesEntityAndTracksSequence(t *testing.T) {
	srv, host := newTestServer(t)
	defer host.Close()
	conn, c := fakeClientConn(t, srv, host)
	defer conn.Close()

	srv.handleHandshake(c, protocol.HandshakeRequest{ProtocolVersion: protocol.ProtocolVersion, PlayerName: "alice"}.Encode())
	readFrame(t, conn)

	ent := srv.ents.Get(c.EntityID)
	startY := ent.Transform.Position.Y

	input := protocol.PlayerInput{
		Sequence:  7,
		DeltaTime: 1.0 / 60.0,
	}
	srv.handlePlayerInput(c, input.Encode())

	if c.LastInputSeq != 7 {
		t.Fatalf("LastInputSeq = %d, want 7", c.LastInputSeq)
	}
	if ent.Controller.LastInputSeq != 7 {
		t.Fatalf("entity LastInputSeq = %d, want 7", ent.Controller.LastInputSeq)
	}
	if ent.Transform.Position.Y >= startY {
		t.Fatalf("airborne entity with no input did not fall: y %v -> %v", startY, ent.Transform.Position.Y)
	}
}

func TestChunkRequestSendsChunkData(t *testing.T) {
	srv, host := newTestServer(t)
	defer host.Close()
	conn, c := fakeClientConn(t, srv, host)
	defer conn.Close()

	srv.handleHandshake(c, protocol.HandshakeRequest{ProtocolVersion: protocol.ProtocolVersion, PlayerName: "alice"}.Encode())
	readFrame(t, conn)

	srv.handleChunkRequest(c, protocol.ChunkRequest{CX: 0, CZ: 0}.Encode())

	frame := readFrame(t, conn)
	if frame.Header.Type != protocol.TypeChunkData {
		t.Fatalf("frame type = %v, want ChunkData", frame.Header.Type)
	}
	data, ok := protocol.DecodeChunkData(frame.Payload)
	if !ok {
		t.Fatal("failed to decode ChunkData")
	}
	if !data.IsLast {
		t.Fatal("single small chunk should fit in one fragment")
	}
	if !c.LoadedChunks[voxel.ChunkPos{CX: 0, CZ: 0}] {
		t.Fatal("chunk not marked loaded after request")
	}
}

func TestPingRepliesWithPong(t *testing.T) {
	srv, host := newTestServer(t)
	defer host.Close()
	conn, c := fakeClientConn(t, srv, host)
	defer conn.Close()

	srv.handleHandshake(c, protocol.HandshakeRequest{ProtocolVersion: protocol.ProtocolVersion, PlayerName: "alice"}.Encode())
	readFrame(t, conn)

	srv.handlePing(c, protocol.Ping{ClientTimeMs: 12345}.Encode())

	frame := readFrame(t, conn)
	pong, ok := protocol.DecodePong(frame.Payload)
	if !ok {
		t.Fatal("failed to decode Pong")
	}
	if pong.ClientTimeMs != 12345 {
		t.Fatalf("ClientTimeMs = %d, want 12345", pong.ClientTimeMs)
	}
	if pong.ServerTimeMs <= 0 {
		t.Fatal("ServerTimeMs not populated")
	}
}

func TestChatMessageOverLimitIsTruncated(t *testing.T) {
	srv, host := newTestServer(t)
	defer host.Close()
	conn, c := fakeClientConn(t, srv, host)
	defer conn.Close()

	srv.handleHandshake(c, protocol.HandshakeRequest{ProtocolVersion: protocol.ProtocolVersion, PlayerName: "alice"}.Encode())
	readFrame(t, conn)

	long := strings.Repeat("x", 300)
	srv.handleChatMessage(c, protocol.ChatMessage{SenderName: "alice", Text: long}.Encode())

	frame := readFrame(t, conn)
	if frame.Header.Type != protocol.TypeChatMessage {
		t.Fatalf("frame type = %v, want ChatMessage", frame.Header.Type)
	}
	chat, ok := protocol.DecodeChatMessage(frame.Payload)
	if !ok {
		t.Fatal("failed to decode ChatMessage")
	}
	if len(chat.Text) != maxChatMessageBytes {
		t.Fatalf("broadcast text length = %d, want %d", len(chat.Text), maxChatMessageBytes)
	}
}

func TestChatMessageIsNeverRoutedAsCommand(t *testing.T) {
	srv, host := newTestServer(t)
	defer host.Close()
	conn, c := fakeClientConn(t, srv, host)
	defer conn.Close()

	srv.handleHandshake(c, protocol.HandshakeRequest{ProtocolVersion: protocol.ProtocolVersion, PlayerName: "alice"}.Encode())
	readFrame(t, conn)

	srv.handleChatMessage(c, protocol.ChatMessage{SenderName: "alice", Text: "/setblock 3 4 5 1"}.Encode())

	frame := readFrame(t, conn)
	if frame.Header.Type != protocol.TypeChatMessage {
		t.Fatalf("frame type = %v, want ChatMessage", frame.Header.Type)
	}
	chat, ok := protocol.DecodeChatMessage(frame.Payload)
	if !ok || chat.Text != "/setblock 3 4 5 1" {
		t.Fatalf("expected the command text broadcast verbatim as chat, got %+v ok=%v", chat, ok)
	}
	if srv.world.GetBlock(3, 4, 5) == voxel.Block(1) {
		t.Fatal("slash-prefixed chat must not edit the world")
	}
}
