// Package client is the predicting netcode client: input sequencing and
// local prediction through the same physics pipeline the server runs,
// reconciliation against authoritative snapshots, bounded-ring interpolation
// of remote entities, ping-driven time sync, and chunk fragment reassembly.
// Connection state lives in plain structs behind a single mutex; there are
// no channels on the packet-handling hot path.
package client

import (
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/StoreStation/vnet/pkg/codec"
	"github.com/StoreStation/vnet/pkg/metrics"
	"github.com/StoreStation/vnet/pkg/physics"
	"github.com/StoreStation/vnet/pkg/protocol"
	"github.com/StoreStation/vnet/pkg/transport"
	"github.com/StoreStation/vnet/pkg/voxel"
)

// State is the client connection's lifecycle stage:
// DISCONNECTED -> CONNECTING -> CONNECTED -> DISCONNECTING -> DISCONNECTED.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateDisconnecting
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateDisconnecting:
		return "disconnecting"
	default:
		return "unknown"
	}
}

const (
	inputBufferCap           = 256
	snapshotRingCap          = 10
	pingInterval             = time.Second
	interpolationDelayMs     = 100
	predictionErrorThreshold = 0.5
	reconciliationFactor     = 0.1
	fragmentExpiry           = 5 * time.Second
)

// Config configures a Client.
type Config struct {
	PlayerName               string
	InterpolationDelayMs     int64
	PredictionErrorThreshold float32
}

// DefaultConfig returns spec-default tunables.
func DefaultConfig(name string) Config {
	return Config{
		PlayerName:               name,
		InterpolationDelayMs:     interpolationDelayMs,
		PredictionErrorThreshold: predictionErrorThreshold,
	}
}

// bufferedInput is one not-yet-acknowledged PlayerInput, kept until a
// snapshot's LastConsumedInputSeq covers its sequence. Buffered inputs are
// not replayed after reconciliation.
type bufferedInput struct {
	seq   uint32
	input protocol.PlayerInput
}

// remoteSnapshot is one timestamped sample of a remote entity's replicated
// state, held in a bounded per-entity ring for interpolation. serverTimeMs
// is the server-wall clock derived from its tick number (tick * 1000/60);
// interpolation compares exclusively against it, never the raw tick number
// or local wall-clock time.
type remoteSnapshot struct {
	serverTimeMs int64
	tick         uint32
	position     physics.Vec3
	velocity     physics.Vec3
	rotation     codec.Quat
	animState    uint8
}

// remoteEntity is the client's view of every networked entity that is not
// the local player: a bounded ring of snapshots to interpolate between.
type remoteEntity struct {
	id        uint64
	snapshots []remoteSnapshot
}

func (r *remoteEntity) push(s remoteSnapshot) {
	r.snapshots = append(r.snapshots, s)
	if len(r.snapshots) > snapshotRingCap {
		r.snapshots = r.snapshots[len(r.snapshots)-snapshotRingCap:]
	}
}

// fragmentBuffer reassembles one in-flight chunk's ChunkData fragments.
type fragmentBuffer struct {
	parts        map[uint16][]byte
	totalBytes   int
	lastFragment uint16
	haveLast     bool
	lastUpdate   time.Time
}

// localPlayer is the client's predicted view of its own entity.
type localPlayer struct {
	entityID uint64
	position physics.Vec3
	velocity physics.Vec3
	mode     physics.Mode
	grounded bool
	inWater  bool
}

// Client is the predicting netcode client. One Client drives one server
// connection; create a new Client per connection attempt.
type Client struct {
	config Config
	world  *voxel.World
	log    zerolog.Logger
	mx     *metrics.Client

	mu    sync.Mutex
	state State

	host       *transport.Host
	serverPeer *transport.Peer

	player       localPlayer
	nextInputSeq uint32
	inputBuffer  []bufferedInput

	remotes map[uint64]*remoteEntity

	fragments map[voxel.ChunkPos]*fragmentBuffer

	serverTimeOffsetMs float64
	lastPingSentAt     time.Time
	pingAccum          time.Duration
	fragmentAccum      time.Duration

	events chan Event
}

// EventType enumerates the events a host application can observe from a
// Client: connection lifecycle transitions, peer join/leave, chunk and
// chat delivery.
type EventType int

const (
	EventConnectionEstablished EventType = iota
	EventConnectionLost
	EventPlayerJoined
	EventPlayerLeft
	EventChunkReceived
	EventChatReceived
)

// Event is one published client-side event.
type Event struct {
	Type        EventType
	PlayerID    uint64
	PlayerName  string
	ChunkPos    voxel.ChunkPos
	ChatSender  string
	ChatText    string
	WasTimeout  bool
}

// New creates a disconnected Client bound to world for installing received
// chunks and querying collision data during local prediction.
func New(config Config, world *voxel.World, log zerolog.Logger, mx *metrics.Client) *Client {
	return &Client{
		config:    config,
		world:     world,
		log:       log,
		mx:        mx,
		state:     StateDisconnected,
		remotes:   make(map[uint64]*remoteEntity),
		fragments: make(map[voxel.ChunkPos]*fragmentBuffer),
		events:    make(chan Event, 64),
	}
}

// Events returns the channel on which the client publishes lifecycle and
// data events to the host application.
func (c *Client) Events() <-chan Event { return c.events }

// State returns the current connection state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Connect opens a local UDP socket, marks the connection CONNECTING, and
// sends the handshake request. Legal only from DISCONNECTED.
func (c *Client) Connect(serverAddr string) error {
	c.mu.Lock()
	if c.state != StateDisconnected {
		c.mu.Unlock()
		return fmt.Errorf("connect: illegal from state %s", c.state)
	}
	c.state = StateConnecting
	c.mu.Unlock()

	host, err := transport.Listen(":0", c.log)
	if err != nil {
		return fmt.Errorf("open local socket: %w", err)
	}

	addr, err := net.ResolveUDPAddr("udp", serverAddr)
	if err != nil {
		host.Close()
		return fmt.Errorf("resolve %s: %w", serverAddr, err)
	}

	c.mu.Lock()
	c.host = host
	c.serverPeer = host.Connect(addr)
	c.mu.Unlock()

	go c.readLoop()

	c.sendReliable(protocol.TypeHandshakeRequest, protocol.HandshakeRequest{
		ProtocolVersion: protocol.ProtocolVersion,
		PlayerName:      c.config.PlayerName,
		ClientVersion:   "1.0",
	})
	return nil
}

// Disconnect transitions to DISCONNECTING, flushes a graceful Disconnect
// packet, then closes the transport. Idempotent.
func (c *Client) Disconnect(reason string) {
	c.mu.Lock()
	if c.state == StateDisconnected || c.state == StateDisconnecting {
		c.mu.Unlock()
		return
	}
	c.state = StateDisconnecting
	host := c.host
	peer := c.serverPeer
	c.mu.Unlock()

	if host != nil && peer != nil {
		channel := protocol.Channel(protocol.TypeDisconnect)
		seq := host.NextSequence(peer, channel)
		host.Send(peer, channel, seq, protocol.IsReliable(protocol.TypeDisconnect),
			protocol.EncodeFrame(protocol.Header{Type: protocol.TypeDisconnect, Sequence: seq}, protocol.Disconnect{Reason: reason}.Encode()))
	}
	if host != nil {
		host.Close()
	}

	c.mu.Lock()
	c.state = StateDisconnected
	c.mu.Unlock()

	c.publish(Event{Type: EventConnectionLost, WasTimeout: false})
}

func (c *Client) readLoop() {
	for e := range c.host.Events {
		c.handleTransportEvent(e)
	}
}

func (c *Client) handleTransportEvent(e transport.Event) {
	switch e.Type {
	case transport.EventData:
		frame, ok := protocol.DecodeFrame(e.Data)
		if !ok {
			return
		}
		c.mu.Lock()
		host, peer := c.host, c.serverPeer
		c.mu.Unlock()
		if host == nil || peer == nil {
			return
		}
		channel := protocol.Channel(frame.Header.Type)
		// Duplicates are acked too: a resend means the earlier ack was lost.
		if protocol.IsReliable(frame.Header.Type) && frame.Header.Type != protocol.TypeAck {
			c.sendAck(channel, frame.Header.Sequence)
		}
		if !host.Accept(peer, channel, frame.Header.Sequence) {
			return
		}
		c.dispatch(frame)
	case transport.EventDisconnected:
		c.mu.Lock()
		c.state = StateDisconnected
		c.mu.Unlock()
		c.publish(Event{Type: EventConnectionLost, WasTimeout: e.Reason == transport.ReasonTimeout})
	}
}

func (c *Client) publish(e Event) {
	select {
	case c.events <- e:
	default:
	}
}

// sendReliable frames and sends msg on its packet type's configured
// channel/reliability, under the next sequence number for that channel.
func (c *Client) sendReliable(t protocol.Type, msg interface{ Encode() []byte }) {
	c.mu.Lock()
	host, peer := c.host, c.serverPeer
	c.mu.Unlock()
	if host == nil || peer == nil {
		return
	}
	channel := protocol.Channel(t)
	seq := host.NextSequence(peer, channel)
	frame := protocol.EncodeFrame(protocol.Header{Type: t, Sequence: seq}, msg.Encode())
	if err := host.Send(peer, channel, seq, protocol.IsReliable(t), frame); err != nil {
		c.log.Warn().Err(err).Msg("send failed")
	}
}

// sendAck acknowledges a reliable-channel datagram from the server so its
// resend timer stops retransmitting it.
func (c *Client) sendAck(channel uint8, seq uint32) {
	c.sendReliable(protocol.TypeAck, protocol.Ack{Channel: channel, Sequence: seq})
}

// Update drives every per-tick responsibility: time-sync pinging and
// fragment-buffer expiration. Call once per client simulation tick,
// alongside SendInput.
func (c *Client) Update(dt time.Duration) {
	c.mu.Lock()
	connected := c.state == StateConnected || c.state == StateConnecting
	c.mu.Unlock()
	if !connected {
		return
	}

	c.pingAccum += dt
	if c.pingAccum >= pingInterval {
		c.pingAccum -= pingInterval
		c.sendPing()
	}

	c.fragmentAccum += dt
	if c.fragmentAccum >= time.Second {
		c.fragmentAccum = 0
		c.expireFragments()
	}
}

func (c *Client) sendPing() {
	c.mu.Lock()
	c.lastPingSentAt = time.Now()
	c.mu.Unlock()
	c.sendReliable(protocol.TypePing, protocol.Ping{ClientTimeMs: time.Now().UnixMilli()})
}

// SendInput predicts in locally via the shared physics pipeline, buffers it
// until the server acknowledges its sequence, and transmits it to the server.
func (c *Client) SendInput(in protocol.PlayerInput) {
	c.mu.Lock()
	if c.state != StateConnected {
		c.mu.Unlock()
		return
	}
	in.Sequence = c.nextInputSeq
	c.nextInputSeq++

	c.applyInputLocked(in)

	c.inputBuffer = append(c.inputBuffer, bufferedInput{seq: in.Sequence, input: in})
	if len(c.inputBuffer) > inputBufferCap {
		c.inputBuffer = c.inputBuffer[len(c.inputBuffer)-inputBufferCap:]
	}
	c.mu.Unlock()

	c.sendReliable(protocol.TypePlayerInput, in)
}

// applyInputLocked runs in the same pipeline used in
// pkg/netcode/server/packet_handler.go's handlePlayerInput, so client
// prediction and server authority converge on identical input.
func (c *Client) applyInputLocked(in protocol.PlayerInput) {
	bounds := physics.FromCenterExtents(
		c.player.position.Add(physics.Vec3{Y: 0.9}),
		physics.Vec3{X: 0.3, Y: 0.9, Z: 0.3},
	)
	c.player.inWater = c.world.IsFluid(int32(c.player.position.X), int32(c.player.position.Y), int32(c.player.position.Z))
	c.player.grounded = physics.Grounded(bounds, c.player.velocity, c.world)

	if in.FlyToggle() {
		if c.player.mode == physics.ModeFlying {
			c.player.mode = physics.ModeWalking
		} else {
			c.player.mode = physics.ModeFlying
		}
	}

	velocity := physics.Integrate(c.player.velocity, physics.Input{
		WishDirection: physics.Vec3(in.WishDirection),
		WishSprint:    in.Sprint(),
		WishJump:      in.Jump(),
		Grounded:      c.player.grounded,
		InWater:       c.player.inWater,
		Mode:          c.player.mode,
		DeltaTime:     in.DeltaTime,
	}, physics.DefaultParameters())

	result := physics.Resolve(bounds, velocity.Scale(in.DeltaTime), c.world)
	c.player.position = result.Position.Sub(physics.Vec3{Y: 0.9})
	c.player.velocity = result.Velocity.Scale(1 / maxf32(in.DeltaTime, 1e-6))
}

// LocalPosition returns the client's current predicted position.
func (c *Client) LocalPosition() physics.Vec3 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.player.position
}

// RequestChunk asks the server to stream the chunk at (cx, cz).
func (c *Client) RequestChunk(cx, cz int32) {
	c.sendReliable(protocol.TypeChunkRequest, protocol.ChunkRequest{CX: cx, CZ: cz})
}

// SendChat sends a chat line to the server for broadcast.
func (c *Client) SendChat(text string) {
	c.sendReliable(protocol.TypeChatMessage, protocol.ChatMessage{SenderName: c.config.PlayerName, Text: text})
}
