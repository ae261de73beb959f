// Package server is the authoritative netcode host: a fixed 60Hz simulation
// tick, a 20Hz entity-snapshot broadcast, per-client chunk streaming, and
// the packet handlers that drive handshake, input, chunk requests, chat,
// and time sync.
package server

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/StoreStation/vnet/internal/entity"
	"github.com/StoreStation/vnet/pkg/codec"
	"github.com/StoreStation/vnet/pkg/metrics"
	"github.com/StoreStation/vnet/pkg/physics"
	"github.com/StoreStation/vnet/pkg/protocol"
	"github.com/StoreStation/vnet/pkg/transport"
	"github.com/StoreStation/vnet/pkg/voxel"
	"github.com/rs/zerolog"
)

const (
	tickRate       = 60.0
	snapshotRate   = 20.0
	tickInterval   = time.Second / time.Duration(tickRate)
	defaultRenderDistance = 8
	playerHalfWidth  = 0.3
	playerHalfHeight = 0.9
)

// Config configures a Server.
type Config struct {
	Address        string
	WorldSeed      int64
	RenderDistance int
	SpawnPoint     physics.Vec3
}

// DefaultConfig returns reasonable defaults for a standalone server process.
func DefaultConfig() Config {
	return Config{
		Address:        ":28015",
		RenderDistance: defaultRenderDistance,
		SpawnPoint:     physics.Vec3{X: 0, Y: 64, Z: 0},
	}
}

// Client is the server's connection-table entry for one peer: its
// transport session, its entity, and the chunk-streaming/input bookkeeping
// the tick loop needs.
type Client struct {
	Peer             *transport.Peer
	EntityID         entity.ID
	Name             string
	LastInputSeq     uint32
	LastSnapshotTick uint32
	LoadedChunks     map[voxel.ChunkPos]bool
	ConnectedAt      time.Time
	handshakeDone    bool
}

// Server is the authoritative simulation and netcode host.
type Server struct {
	config Config
	host   *transport.Host
	world  *voxel.World
	reg    *voxel.Registry
	ents   *entity.Manager
	log    zerolog.Logger
	mx     *metrics.Server

	mu      sync.RWMutex
	clients map[uuid.UUID]*Client

	tick          uint32
	snapshotAccum time.Duration
	stopCh        chan struct{}
	wg            sync.WaitGroup
}

// New creates a Server bound to world, using reg to classify block
// solidity/fluidity during collision.
func New(config Config, world *voxel.World, reg *voxel.Registry, log zerolog.Logger, mx *metrics.Server) *Server {
	return &Server{
		config:  config,
		world:   world,
		reg:     reg,
		ents:    entity.NewManager(),
		log:     log,
		mx:      mx,
		clients: make(map[uuid.UUID]*Client),
		stopCh:  make(chan struct{}),
	}
}

// Run opens the UDP listener and blocks, processing transport events and
// driving the tick loop, until Stop is called.
func (s *Server) Run() error {
	host, err := transport.Listen(s.config.Address, s.log)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.config.Address, err)
	}
	s.host = host
	s.log.Info().Str("addr", s.config.Address).Msg("server listening")

	s.wg.Add(1)
	go s.tickLoop()

	stop := s.stopCh
	for {
		select {
		case e, ok := <-s.host.Events:
			if !ok {
				s.wg.Wait()
				return nil
			}
			s.handleEvent(e)
		case <-stop:
			s.host.Close()
			stop = nil
		}
	}
}

// Stop signals the tick loop and event loop to shut down and disconnects
// every client.
func (s *Server) Stop() {
	s.mu.RLock()
	peers := make([]*Client, 0, len(s.clients))
	for _, c := range s.clients {
		peers = append(peers, c)
	}
	s.mu.RUnlock()

	for _, c := range peers {
		s.send(c, protocol.TypeDisconnect, protocol.Disconnect{Reason: "server shutting down"})
	}

	close(s.stopCh)
}

func (s *Server) tickLoop() {
	defer s.wg.Done()
	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	last := time.Now()
	for {
		select {
		case <-s.stopCh:
			return
		case now := <-ticker.C:
			dt := now.Sub(last)
			last = now
			s.advanceTick(dt)
		}
	}
}

func (s *Server) advanceTick(dt time.Duration) {
	start := time.Now()
	s.tick++

	s.mu.RLock()
	clients := make([]*Client, 0, len(s.clients))
	for _, c := range s.clients {
		clients = append(clients, c)
	}
	s.mu.RUnlock()

	for _, c := range clients {
		s.streamChunks(c)
	}

	s.snapshotAccum += dt
	snapshotInterval := time.Duration(float64(time.Second) / snapshotRate)
	if s.snapshotAccum >= snapshotInterval {
		s.snapshotAccum -= snapshotInterval
		s.broadcastSnapshot()
	}

	if s.mx != nil {
		s.mx.RecordTick(time.Since(start).Seconds())
		s.mu.RLock()
		s.mx.ConnectedClients.Set(float64(len(s.clients)))
		s.mu.RUnlock()
	}
}

func (s *Server) handleEvent(e transport.Event) {
	switch e.Type {
	case transport.EventConnected:
		s.log.Info().Str("peer", e.PeerID.String()).Msg("peer connected")
	case transport.EventData:
		s.handleDatagram(e.PeerID, e.Data)
	case transport.EventDisconnected:
		s.handleDisconnect(e.PeerID, e.Reason)
	}
}

func (s *Server) handleDatagram(id uuid.UUID, raw []byte) {
	frame, ok := protocol.DecodeFrame(raw)
	if !ok {
		s.log.Warn().Str("peer", id.String()).Msg("dropped malformed datagram")
		return
	}

	if s.mx != nil {
		s.mx.RecordPacketIn(packetTypeName(frame.Header.Type), len(raw))
	}

	s.mu.Lock()
	client, known := s.clients[id]
	if !known {
		peer, ok := s.host.Peer(id)
		if !ok {
			s.mu.Unlock()
			return
		}
		client = &Client{Peer: peer, LoadedChunks: make(map[voxel.ChunkPos]bool), ConnectedAt: time.Now()}
		s.clients[id] = client
	}
	s.mu.Unlock()

	channel := protocol.Channel(frame.Header.Type)
	// Duplicates are acked too: a resend means the earlier ack was lost.
	if protocol.IsReliable(frame.Header.Type) && frame.Header.Type != protocol.TypeAck {
		s.sendAck(client, channel, frame.Header.Sequence)
	}
	if !s.host.Accept(client.Peer, channel, frame.Header.Sequence) {
		return
	}

	s.dispatch(client, frame)
}

// sendAck acknowledges a reliable-channel datagram so the sender's resend
// timer stops retransmitting it.
func (s *Server) sendAck(c *Client, channel uint8, seq uint32) {
	s.send(c, protocol.TypeAck, protocol.Ack{Channel: channel, Sequence: seq})
}

func (s *Server) handleDisconnect(id uuid.UUID, reason transport.DisconnectReason) {
	s.mu.Lock()
	client, ok := s.clients[id]
	if ok {
		delete(s.clients, id)
	}
	s.mu.Unlock()
	if !ok {
		return
	}

	s.log.Info().Str("peer", id.String()).Str("name", client.Name).Msg("peer disconnected")
	s.ents.Destroy(client.EntityID)
	s.broadcastExcept(id, protocol.TypePlayerLeave, protocol.PlayerLeave{PlayerID: uint64(client.EntityID)})
}

// send serializes and transmits msg to client on the packet type's
// configured channel/reliability, under the next sequence number for that
// peer/channel pair.
func (s *Server) send(c *Client, t protocol.Type, msg interface{ Encode() []byte }) {
	channel := protocol.Channel(t)
	seq := s.host.NextSequence(c.Peer, channel)
	payload := msg.Encode()
	frame := protocol.EncodeFrame(protocol.Header{Type: t, Sequence: seq, TimestampMs: uint32(time.Now().UnixMilli())}, payload)
	if err := s.host.Send(c.Peer, channel, seq, protocol.IsReliable(t), frame); err != nil {
		s.log.Warn().Err(err).Str("peer", c.Peer.ID.String()).Msg("send failed")
		return
	}
	if s.mx != nil {
		s.mx.RecordPacketOut(packetTypeName(t), len(frame))
	}
}

func (s *Server) broadcastExcept(except uuid.UUID, t protocol.Type, msg interface{ Encode() []byte }) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for id, c := range s.clients {
		if id == except {
			continue
		}
		s.send(c, t, msg)
	}
}

func (s *Server) broadcastAll(t protocol.Type, msg interface{ Encode() []byte }) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, c := range s.clients {
		s.send(c, t, msg)
	}
}

// broadcastSnapshot sends every connected client a snapshot of every
// networked entity's true position, velocity, and rotation.
func (s *Server) broadcastSnapshot() {
	s.mu.RLock()
	clients := make([]*Client, 0, len(s.clients))
	for _, c := range s.clients {
		clients = append(clients, c)
	}
	s.mu.RUnlock()
	if len(clients) == 0 {
		return
	}

	states := make([]protocol.EntityState, 0, len(clients))
	for _, ent := range s.ents.All() {
		states = append(states, protocol.EntityState{
			ID:       uint64(ent.ID),
			Position: codec.Vec3(ent.Transform.Position),
			Velocity: codec.Vec3(ent.Controller.Velocity),
			Rotation: yawPitchToQuat(ent.Transform.Rotation.Y, ent.Transform.Rotation.X),
		})
	}

	for _, c := range clients {
		snap := protocol.EntitySnapshot{
			ServerTick:           s.tick,
			LastConsumedInputSeq: c.LastInputSeq,
			Entities:             states,
		}
		s.send(c, protocol.TypeEntitySnapshot, snap)
		c.LastSnapshotTick = s.tick
	}
	if s.mx != nil {
		s.mx.SnapshotsSent.Inc()
	}
}

// streamChunks diffs the client's desired chunk set (a render-distance
// square around its entity) against its loaded set, sending newly-desired
// chunks and forgetting ones that fell out of range.
func (s *Server) streamChunks(c *Client) {
	ent := s.ents.Get(c.EntityID)
	if ent == nil {
		return
	}

	centerX := int32(ent.Transform.Position.X) / voxel.ChunkX
	centerZ := int32(ent.Transform.Position.Z) / voxel.ChunkZ
	radius := int32(s.config.RenderDistance)

	desired := make(map[voxel.ChunkPos]bool)
	for dx := -radius; dx <= radius; dx++ {
		for dz := -radius; dz <= radius; dz++ {
			desired[voxel.ChunkPos{CX: centerX + dx, CZ: centerZ + dz}] = true
		}
	}

	for pos := range desired {
		if !c.LoadedChunks[pos] {
			s.sendChunk(c, pos)
			c.LoadedChunks[pos] = true
		}
	}
	for pos := range c.LoadedChunks {
		if !desired[pos] {
			delete(c.LoadedChunks, pos)
		}
	}
}

// maxFragmentPayload bounds a single ChunkData fragment's block bytes,
// keeping the framed datagram under a conservative MTU.
const maxFragmentPayload = 1100

func (s *Server) sendChunk(c *Client, pos voxel.ChunkPos) {
	chunk, ok := s.world.GetChunk(pos)
	if !ok {
		return
	}

	data := voxel.EncodeRLE(chunk)
	fragmentID := uint16(0)
	for offset := 0; offset < len(data) || (offset == 0 && len(data) == 0); {
		end := offset + maxFragmentPayload
		if end > len(data) {
			end = len(data)
		}
		frag := protocol.ChunkData{
			CX:         pos.CX,
			CZ:         pos.CZ,
			FragmentID: fragmentID,
			IsLast:     end >= len(data),
			Bytes:      data[offset:end],
		}
		s.send(c, protocol.TypeChunkData, frag)
		if s.mx != nil {
			s.mx.ChunkFragmentsSent.Inc()
		}
		fragmentID++
		offset = end
		if len(data) == 0 {
			break
		}
	}
	if s.mx != nil {
		s.mx.ChunksSent.Inc()
	}
}

// SetBlock edits the world and broadcasts the change. Block edits in this
// module are host-driven only — there is no client-facing BlockUpdate
// request type.
func (s *Server) SetBlock(x, y, z int32, b voxel.Block) {
	s.world.SetBlock(x, y, z, b)
	s.broadcastAll(protocol.TypeBlockUpdate, protocol.BlockUpdate{X: x, Y: y, Z: z, BlockID: uint16(b)})
}

func packetTypeName(t protocol.Type) string {
	switch t {
	case protocol.TypeHandshakeRequest:
		return "handshake_request"
	case protocol.TypeHandshakeResponse:
		return "handshake_response"
	case protocol.TypePlayerInput:
		return "player_input"
	case protocol.TypeEntitySnapshot:
		return "entity_snapshot"
	case protocol.TypeChunkData:
		return "chunk_data"
	case protocol.TypeChunkRequest:
		return "chunk_request"
	case protocol.TypePlayerJoin:
		return "player_join"
	case protocol.TypePlayerLeave:
		return "player_leave"
	case protocol.TypeChatMessage:
		return "chat_message"
	case protocol.TypeDisconnect:
		return "disconnect"
	case protocol.TypePing:
		return "ping"
	case protocol.TypePong:
		return "pong"
	case protocol.TypeBlockUpdate:
		return "block_update"
	case protocol.TypePlayerSpawn:
		return "player_spawn"
	case protocol.TypeAck:
		return "ack"
	default:
		return "unknown"
	}
}

// yawPitchToQuat builds a wire quaternion from yaw/pitch radians. Roll is
// always zero; this module never networks roll.
func yawPitchToQuat(pitch, yaw float32) codec.Quat {
	sy, cy := math.Sincos(float64(yaw) * 0.5)
	sp, cp := math.Sincos(float64(pitch) * 0.5)

	return codec.Quat{
		X: float32(sp * cy),
		Y: float32(cp * sy),
		Z: float32(-sp * sy),
		W: float32(cp * cy),
	}
}
