package protocol

import "github.com/StoreStation/vnet/pkg/codec"

// ProtocolVersion is the handshake version this server/client pair speaks.
// A HandshakeRequest carrying any other value is rejected.
const ProtocolVersion uint32 = 1

// HandshakeRequest is sent C->S to begin a session.
type HandshakeRequest struct {
	ProtocolVersion uint32
	PlayerName      string
	ClientVersion   string
}

func (p HandshakeRequest) Encode() []byte {
	w := codec.NewWriter(32)
	w.U32(p.ProtocolVersion)
	w.String(p.PlayerName)
	w.String(p.ClientVersion)
	return w.Bytes()
}

func DecodeHandshakeRequest(payload []byte) (HandshakeRequest, bool) {
	r := codec.NewReader(payload)
	p := HandshakeRequest{
		ProtocolVersion: r.U32(),
		PlayerName:      r.String(),
		ClientVersion:   r.String(),
	}
	return p, !r.Failed()
}

// HandshakeResponse is sent S->C to accept or reject a handshake.
type HandshakeResponse struct {
	Accepted  bool
	PlayerID  uint64
	Spawn     codec.Vec3
	WorldSeed int64
	Message   string
}

func (p HandshakeResponse) Encode() []byte {
	w := codec.NewWriter(48)
	w.Bool(p.Accepted)
	w.U64(p.PlayerID)
	w.Vec3(p.Spawn)
	w.I64(p.WorldSeed)
	w.String(p.Message)
	return w.Bytes()
}

func DecodeHandshakeResponse(payload []byte) (HandshakeResponse, bool) {
	r := codec.NewReader(payload)
	p := HandshakeResponse{
		Accepted:  r.Bool(),
		PlayerID:  r.U64(),
		Spawn:     r.Vec3(),
		WorldSeed: r.I64(),
		Message:   r.String(),
	}
	return p, !r.Failed()
}

// Input action flags (PlayerInput.Flags).
const (
	InputFlagSprint     uint8 = 1 << 0
	InputFlagJump       uint8 = 1 << 1
	InputFlagFlyToggle  uint8 = 1 << 2
	InputFlagSwimToggle uint8 = 1 << 3
)

// PlayerInput is sent C->S once per client simulation tick.
type PlayerInput struct {
	Sequence      uint32
	DeltaTime     float32
	WishDirection codec.Vec3
	Flags         uint8
	Yaw           float32 // degrees
	Pitch         float32 // degrees
	ActionFlags   uint8
}

// yawPitchPrecision quantizes yaw/pitch to 1/100th of a degree.
const yawPitchPrecision = 0.01

func (p PlayerInput) Encode() []byte {
	w := codec.NewWriter(24)
	w.U32(p.Sequence)
	w.F32(p.DeltaTime)
	w.QuantizedVec3(p.WishDirection, codec.DefaultPrecision)
	w.U8(p.Flags)
	w.QuantizedF32(p.Yaw, yawPitchPrecision)
	w.QuantizedF32(p.Pitch, yawPitchPrecision)
	w.U8(p.ActionFlags)
	return w.Bytes()
}

func DecodePlayerInput(payload []byte) (PlayerInput, bool) {
	r := codec.NewReader(payload)
	p := PlayerInput{
		Sequence:      r.U32(),
		DeltaTime:     r.F32(),
		WishDirection: r.QuantizedVec3(codec.DefaultPrecision),
		Flags:         r.U8(),
		Yaw:           r.QuantizedF32(yawPitchPrecision),
		Pitch:         r.QuantizedF32(yawPitchPrecision),
		ActionFlags:   r.U8(),
	}
	return p, !r.Failed()
}

func (p PlayerInput) Sprint() bool     { return p.Flags&InputFlagSprint != 0 }
func (p PlayerInput) Jump() bool       { return p.Flags&InputFlagJump != 0 }
func (p PlayerInput) FlyToggle() bool  { return p.Flags&InputFlagFlyToggle != 0 }
func (p PlayerInput) SwimToggle() bool { return p.Flags&InputFlagSwimToggle != 0 }

// EntityState is one entity's replicated transform inside an EntitySnapshot.
type EntityState struct {
	ID          uint64
	Position    codec.Vec3
	Velocity    codec.Vec3
	Rotation    codec.Quat
	AnimState   uint8
	StateFlags  uint8
}

// EntitySnapshot is sent S->C at the snapshot rate, carrying the
// authoritative state of replicated entities visible to the recipient.
type EntitySnapshot struct {
	ServerTick           uint32
	LastConsumedInputSeq uint32
	Entities             []EntityState
}

func (p EntitySnapshot) Encode() []byte {
	w := codec.NewWriter(10 + len(p.Entities)*31)
	w.U32(p.ServerTick)
	w.U32(p.LastConsumedInputSeq)
	w.U16(uint16(len(p.Entities)))
	for _, e := range p.Entities {
		w.U64(e.ID)
		w.QuantizedVec3(e.Position, codec.DefaultPrecision)
		w.QuantizedVec3(e.Velocity, codec.DefaultPrecision)
		w.CompressedQuat(e.Rotation)
		w.U8(e.AnimState)
		w.U8(e.StateFlags)
	}
	return w.Bytes()
}

func DecodeEntitySnapshot(payload []byte) (EntitySnapshot, bool) {
	r := codec.NewReader(payload)
	p := EntitySnapshot{
		ServerTick:           r.U32(),
		LastConsumedInputSeq: r.U32(),
	}
	count := r.U16()
	p.Entities = make([]EntityState, 0, count)
	for i := uint16(0); i < count; i++ {
		e := EntityState{
			ID:       r.U64(),
			Position: r.QuantizedVec3(codec.DefaultPrecision),
			Velocity: r.QuantizedVec3(codec.DefaultPrecision),
			Rotation: r.CompressedQuat(),
		}
		e.AnimState = r.U8()
		e.StateFlags = r.U8()
		p.Entities = append(p.Entities, e)
	}
	return p, !r.Failed()
}

// ChunkData is one fragment of an RLE-encoded chunk, sent S->C on the
// reliable channel.
type ChunkData struct {
	CX, CZ     int32
	FragmentID uint16
	IsLast     bool
	Bytes      []byte
}

func (p ChunkData) Encode() []byte {
	w := codec.NewWriter(13 + len(p.Bytes))
	w.I32(p.CX)
	w.I32(p.CZ)
	w.U16(p.FragmentID)
	w.Bool(p.IsLast)
	w.U32(uint32(len(p.Bytes)))
	return append(w.Bytes(), p.Bytes...)
}

func DecodeChunkData(payload []byte) (ChunkData, bool) {
	r := codec.NewReader(payload)
	p := ChunkData{
		CX:         r.I32(),
		CZ:         r.I32(),
		FragmentID: r.U16(),
		IsLast:     r.Bool(),
	}
	n := r.U32()
	if r.Failed() || int(n) > r.Remaining() {
		return ChunkData{}, false
	}
	p.Bytes = r.Bytes(int(n))
	return p, !r.Failed()
}

// ChunkRequest is sent C->S to request a chunk's block data.
type ChunkRequest struct {
	CX, CZ int32
}

func (p ChunkRequest) Encode() []byte {
	w := codec.NewWriter(8)
	w.I32(p.CX)
	w.I32(p.CZ)
	return w.Bytes()
}

func DecodeChunkRequest(payload []byte) (ChunkRequest, bool) {
	r := codec.NewReader(payload)
	p := ChunkRequest{CX: r.I32(), CZ: r.I32()}
	return p, !r.Failed()
}

// PlayerJoin is broadcast S->C when another player completes the handshake.
type PlayerJoin struct {
	PlayerID uint64
	Name     string
}

func (p PlayerJoin) Encode() []byte {
	w := codec.NewWriter(16)
	w.U64(p.PlayerID)
	w.String(p.Name)
	return w.Bytes()
}

func DecodePlayerJoin(payload []byte) (PlayerJoin, bool) {
	r := codec.NewReader(payload)
	p := PlayerJoin{PlayerID: r.U64(), Name: r.String()}
	return p, !r.Failed()
}

// PlayerLeave is broadcast S->C when a player disconnects.
type PlayerLeave struct {
	PlayerID uint64
}

func (p PlayerLeave) Encode() []byte {
	w := codec.NewWriter(8)
	w.U64(p.PlayerID)
	return w.Bytes()
}

func DecodePlayerLeave(payload []byte) (PlayerLeave, bool) {
	r := codec.NewReader(payload)
	p := PlayerLeave{PlayerID: r.U64()}
	return p, !r.Failed()
}

// ChatMessage travels both directions: C->S is an outgoing chat line from
// that client, S->C is the broadcast form carrying the sender's name.
type ChatMessage struct {
	SenderName string
	Text       string
}

func (p ChatMessage) Encode() []byte {
	w := codec.NewWriter(16 + len(p.Text))
	w.String(p.SenderName)
	w.String(p.Text)
	return w.Bytes()
}

func DecodeChatMessage(payload []byte) (ChatMessage, bool) {
	r := codec.NewReader(payload)
	p := ChatMessage{SenderName: r.String(), Text: r.String()}
	return p, !r.Failed()
}

// Disconnect travels both directions and carries a human-readable reason.
type Disconnect struct {
	Reason string
}

func (p Disconnect) Encode() []byte {
	w := codec.NewWriter(16)
	w.String(p.Reason)
	return w.Bytes()
}

func DecodeDisconnect(payload []byte) (Disconnect, bool) {
	r := codec.NewReader(payload)
	p := Disconnect{Reason: r.String()}
	return p, !r.Failed()
}

// Ping travels both directions, carrying the sender's local clock.
type Ping struct {
	ClientTimeMs int64
}

func (p Ping) Encode() []byte {
	w := codec.NewWriter(8)
	w.I64(p.ClientTimeMs)
	return w.Bytes()
}

func DecodePing(payload []byte) (Ping, bool) {
	r := codec.NewReader(payload)
	p := Ping{ClientTimeMs: r.I64()}
	return p, !r.Failed()
}

// Pong is the reply to a Ping, echoing the original client time and
// carrying the replier's wall clock.
type Pong struct {
	ClientTimeMs int64
	ServerTimeMs int64
}

func (p Pong) Encode() []byte {
	w := codec.NewWriter(16)
	w.I64(p.ClientTimeMs)
	w.I64(p.ServerTimeMs)
	return w.Bytes()
}

func DecodePong(payload []byte) (Pong, bool) {
	r := codec.NewReader(payload)
	p := Pong{ClientTimeMs: r.I64(), ServerTimeMs: r.I64()}
	return p, !r.Failed()
}

// BlockUpdate is sent S->C when a block changes. There is no client-facing
// request type: block edits are host-driven only.
type BlockUpdate struct {
	X, Y, Z int32
	BlockID uint16
}

func (p BlockUpdate) Encode() []byte {
	w := codec.NewWriter(14)
	w.I32(p.X)
	w.I32(p.Y)
	w.I32(p.Z)
	w.U16(p.BlockID)
	return w.Bytes()
}

func DecodeBlockUpdate(payload []byte) (BlockUpdate, bool) {
	r := codec.NewReader(payload)
	p := BlockUpdate{X: r.I32(), Y: r.I32(), Z: r.I32(), BlockID: r.U16()}
	return p, !r.Failed()
}

// Ack acknowledges receipt of one reliable-channel datagram, identified by
// the channel and sequence number from its header, so the sender can stop
// resending it.
type Ack struct {
	Channel  uint8
	Sequence uint32
}

func (p Ack) Encode() []byte {
	w := codec.NewWriter(5)
	w.U8(p.Channel)
	w.U32(p.Sequence)
	return w.Bytes()
}

func DecodeAck(payload []byte) (Ack, bool) {
	r := codec.NewReader(payload)
	p := Ack{Channel: r.U8(), Sequence: r.U32()}
	return p, !r.Failed()
}

// PlayerSpawn is sent S->C to a newly joined client once per already-connected
// player, so the late joiner can place those avatars before its first
// EntitySnapshot.
type PlayerSpawn struct {
	PlayerID uint64
	Name     string
	Position codec.Vec3
	Rotation codec.Quat
}

func (p PlayerSpawn) Encode() []byte {
	w := codec.NewWriter(48)
	w.U64(p.PlayerID)
	w.String(p.Name)
	w.Vec3(p.Position)
	w.Quat(p.Rotation)
	return w.Bytes()
}

func DecodePlayerSpawn(payload []byte) (PlayerSpawn, bool) {
	r := codec.NewReader(payload)
	p := PlayerSpawn{
		PlayerID: r.U64(),
		Name:     r.String(),
		Position: r.Vec3(),
		Rotation: r.Quat(),
	}
	return p, !r.Failed()
}
