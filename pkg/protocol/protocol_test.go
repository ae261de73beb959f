package protocol

import (
	"reflect"
	"testing"

	"github.com/StoreStation/vnet/pkg/codec"
)

func TestReliabilityTable(t *testing.T) {
	cases := []struct {
		t        Type
		channel  uint8
		reliable bool
	}{
		{TypeHandshakeRequest, 0, true},
		{TypeHandshakeResponse, 0, true},
		{TypePlayerInput, 1, false},
		{TypeEntitySnapshot, 1, false},
		{TypeChunkData, 0, true},
		{TypeChunkRequest, 1, false},
		{TypePlayerJoin, 0, true},
		{TypePlayerLeave, 0, true},
		{TypeChatMessage, 2, true},
		{TypeDisconnect, 0, true},
		{TypePing, 1, false},
		{TypePong, 1, false},
		{TypeBlockUpdate, 2, true},
		{TypePlayerSpawn, 0, true},
		{TypeAck, 1, false},
	}
	for _, c := range cases {
		if !Known(c.t) {
			t.Fatalf("type %d not known", c.t)
		}
		if got := Channel(c.t); got != c.channel {
			t.Errorf("type %d: channel = %d, want %d", c.t, got, c.channel)
		}
		if got := IsReliable(c.t); got != c.reliable {
			t.Errorf("type %d: reliable = %v, want %v", c.t, got, c.reliable)
		}
	}
}

func TestHeaderRoundTrip(t *testing.T) {
	h := Header{Type: TypePlayerInput, PayloadSize: 42, Sequence: 99, TimestampMs: 123456}
	w := codec.NewWriter(HeaderSize)
	EncodeHeader(w, h)
	if w.Len() != HeaderSize {
		t.Fatalf("header size = %d, want %d", w.Len(), HeaderSize)
	}
	r := codec.NewReader(w.Bytes())
	got := DecodeHeader(r)
	if got != h {
		t.Errorf("header round trip = %+v, want %+v", got, h)
	}
}

func TestDecodeFrameRejectsUndersized(t *testing.T) {
	if _, ok := DecodeFrame([]byte{1, 2, 3}); ok {
		t.Error("expected undersized datagram to be rejected")
	}
}

func TestDecodeFrameRejectsTruncatedPayload(t *testing.T) {
	h := Header{Type: TypePing, PayloadSize: 100}
	w := codec.NewWriter(HeaderSize)
	EncodeHeader(w, h)
	if _, ok := DecodeFrame(w.Bytes()); ok {
		t.Error("expected truncated payload to be rejected")
	}
}

func TestDecodeFrameAcceptsExact(t *testing.T) {
	payload := PlayerInput{Sequence: 7, WishDirection: codec.Vec3{X: 1}}.Encode()
	raw := EncodeFrame(Header{Type: TypePlayerInput, Sequence: 1}, payload)
	frame, ok := DecodeFrame(raw)
	if !ok {
		t.Fatal("expected well-formed frame to be accepted")
	}
	if frame.Header.Type != TypePlayerInput {
		t.Errorf("type = %v", frame.Header.Type)
	}
	if len(frame.Payload) != len(payload) {
		t.Errorf("payload length = %d, want %d", len(frame.Payload), len(payload))
	}
}

func TestMessageRoundTrips(t *testing.T) {
	hsq := HandshakeRequest{ProtocolVersion: 1, PlayerName: "Ada", ClientVersion: "0.1"}
	if got, ok := DecodeHandshakeRequest(hsq.Encode()); !ok || got != hsq {
		t.Errorf("HandshakeRequest round trip: %+v", got)
	}

	hsr := HandshakeResponse{Accepted: true, PlayerID: 42, Spawn: codec.Vec3{X: 1, Y: 2, Z: 3}, WorldSeed: -99, Message: "welcome"}
	if got, ok := DecodeHandshakeResponse(hsr.Encode()); !ok || got != hsr {
		t.Errorf("HandshakeResponse round trip: %+v", got)
	}

	join := PlayerJoin{PlayerID: 5, Name: "Bob"}
	if got, ok := DecodePlayerJoin(join.Encode()); !ok || got != join {
		t.Errorf("PlayerJoin round trip: %+v", got)
	}

	leave := PlayerLeave{PlayerID: 5}
	if got, ok := DecodePlayerLeave(leave.Encode()); !ok || got != leave {
		t.Errorf("PlayerLeave round trip: %+v", got)
	}

	chat := ChatMessage{SenderName: "Bob", Text: "hello"}
	if got, ok := DecodeChatMessage(chat.Encode()); !ok || got != chat {
		t.Errorf("ChatMessage round trip: %+v", got)
	}

	disc := Disconnect{Reason: "quit"}
	if got, ok := DecodeDisconnect(disc.Encode()); !ok || got != disc {
		t.Errorf("Disconnect round trip: %+v", got)
	}

	ping := Ping{ClientTimeMs: 123}
	if got, ok := DecodePing(ping.Encode()); !ok || got != ping {
		t.Errorf("Ping round trip: %+v", got)
	}

	pong := Pong{ClientTimeMs: 123, ServerTimeMs: 456}
	if got, ok := DecodePong(pong.Encode()); !ok || got != pong {
		t.Errorf("Pong round trip: %+v", got)
	}

	bu := BlockUpdate{X: 1, Y: 2, Z: 3, BlockID: 7}
	if got, ok := DecodeBlockUpdate(bu.Encode()); !ok || got != bu {
		t.Errorf("BlockUpdate round trip: %+v", got)
	}

	req := ChunkRequest{CX: 3, CZ: -5}
	if got, ok := DecodeChunkRequest(req.Encode()); !ok || got != req {
		t.Errorf("ChunkRequest round trip: %+v", got)
	}

	spawn := PlayerSpawn{PlayerID: 9, Name: "Carl", Position: codec.Vec3{X: 1, Y: 2, Z: 3}, Rotation: codec.Quat{W: 1}}
	if got, ok := DecodePlayerSpawn(spawn.Encode()); !ok || got != spawn {
		t.Errorf("PlayerSpawn round trip: %+v", got)
	}

	cd := ChunkData{CX: 1, CZ: -1, FragmentID: 2, IsLast: true, Bytes: []byte{1, 2, 3, 4}}
	if got, ok := DecodeChunkData(cd.Encode()); !ok || !reflect.DeepEqual(got, cd) {
		t.Errorf("ChunkData round trip: %+v", got)
	}

	ack := Ack{Channel: 0, Sequence: 77}
	if got, ok := DecodeAck(ack.Encode()); !ok || got != ack {
		t.Errorf("Ack round trip: %+v", got)
	}
}

func TestPlayerInputFlags(t *testing.T) {
	p := PlayerInput{Flags: InputFlagSprint | InputFlagJump}
	if !p.Sprint() || !p.Jump() || p.FlyToggle() || p.SwimToggle() {
		t.Errorf("flag decode mismatch: %+v", p)
	}
}

func TestPlayerInputRoundTrip(t *testing.T) {
	p := PlayerInput{
		Sequence:      12345,
		DeltaTime:     0.016,
		WishDirection: codec.Vec3{X: 0.7, Y: 0, Z: 0.7},
		Flags:         InputFlagSprint,
		Yaw:           90.5,
		Pitch:         -12.25,
		ActionFlags:   3,
	}
	got, ok := DecodePlayerInput(p.Encode())
	if !ok {
		t.Fatal("decode failed")
	}
	if got.Sequence != p.Sequence || got.Flags != p.Flags || got.ActionFlags != p.ActionFlags {
		t.Errorf("scalar fields mismatch: %+v", got)
	}
	if diff := got.Yaw - p.Yaw; diff > 0.01 || diff < -0.01 {
		t.Errorf("yaw mismatch: %v vs %v", got.Yaw, p.Yaw)
	}
}

func TestEntitySnapshotRoundTrip(t *testing.T) {
	snap := EntitySnapshot{
		ServerTick:           1000,
		LastConsumedInputSeq: 55,
		Entities: []EntityState{
			{ID: 1, Position: codec.Vec3{X: 1, Y: 2, Z: 3}, Velocity: codec.Vec3{X: 0.1}, Rotation: codec.Quat{W: 1}, AnimState: 2, StateFlags: 1},
			{ID: 2, Position: codec.Vec3{X: -1, Y: 0, Z: 5}, Rotation: codec.Quat{X: 0.7071, W: 0.7071}},
		},
	}
	got, ok := DecodeEntitySnapshot(snap.Encode())
	if !ok {
		t.Fatal("decode failed")
	}
	if got.ServerTick != snap.ServerTick || got.LastConsumedInputSeq != snap.LastConsumedInputSeq {
		t.Errorf("header mismatch: %+v", got)
	}
	if len(got.Entities) != len(snap.Entities) {
		t.Fatalf("entity count = %d, want %d", len(got.Entities), len(snap.Entities))
	}
	for i, e := range got.Entities {
		want := snap.Entities[i]
		if e.ID != want.ID || e.AnimState != want.AnimState || e.StateFlags != want.StateFlags {
			t.Errorf("entity %d mismatch: %+v want %+v", i, e, want)
		}
	}
}
