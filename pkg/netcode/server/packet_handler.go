package server

import (
	"time"

	"github.com/StoreStation/vnet/pkg/codec"
	"github.com/StoreStation/vnet/pkg/physics"
	"github.com/StoreStation/vnet/pkg/protocol"
	"github.com/StoreStation/vnet/pkg/voxel"
)

// dispatch routes a decoded frame to its handler by packet type.
func (s *Server) dispatch(c *Client, frame protocol.Frame) {
	switch frame.Header.Type {
	case protocol.TypeHandshakeRequest:
		s.handleHandshake(c, frame.Payload)
	case protocol.TypePlayerInput:
		s.handlePlayerInput(c, frame.Payload)
	case protocol.TypeChunkRequest:
		s.handleChunkRequest(c, frame.Payload)
	case protocol.TypePing:
		s.handlePing(c, frame.Payload)
	case protocol.TypeChatMessage:
		s.handleChatMessage(c, frame.Payload)
	case protocol.TypeDisconnect:
		s.handleClientDisconnect(c)
	case protocol.TypeAck:
		s.handleAck(c, frame.Payload)
	default:
		s.log.Warn().Uint8("type", uint8(frame.Header.Type)).Msg("unhandled packet type")
	}
}

func (s *Server) handleHandshake(c *Client, payload []byte) {
	req, ok := protocol.DecodeHandshakeRequest(payload)
	if !ok {
		return
	}

	if c.handshakeDone {
		return
	}

	if req.ProtocolVersion != protocol.ProtocolVersion || req.PlayerName == "" {
		s.send(c, protocol.TypeHandshakeResponse, protocol.HandshakeResponse{
			Accepted: false,
			Message:  "protocol version mismatch or empty name",
		})
		return
	}

	ent := s.ents.Create(req.PlayerName)
	ent.Transform.Position = s.config.SpawnPoint
	ent.Controller.Mode = physics.ModeWalking

	c.EntityID = ent.ID
	c.Name = req.PlayerName
	c.handshakeDone = true

	s.mu.Lock()
	s.clients[c.Peer.ID] = c
	s.mu.Unlock()

	s.send(c, protocol.TypeHandshakeResponse, protocol.HandshakeResponse{
		Accepted:  true,
		PlayerID:  uint64(ent.ID),
		Spawn:     codec.Vec3(s.config.SpawnPoint),
		WorldSeed: s.config.WorldSeed,
		Message:   "welcome",
	})

	s.mu.RLock()
	for id, other := range s.clients {
		if id == c.Peer.ID || !other.handshakeDone {
			continue
		}
		otherEnt := s.ents.Get(other.EntityID)
		if otherEnt == nil {
			continue
		}
		s.send(c, protocol.TypePlayerSpawn, protocol.PlayerSpawn{
			PlayerID: uint64(other.EntityID),
			Name:     other.Name,
			Position: codec.Vec3(otherEnt.Transform.Position),
			Rotation: yawPitchToQuat(otherEnt.Transform.Rotation.Y, otherEnt.Transform.Rotation.X),
		})
	}
	s.mu.RUnlock()

	s.broadcastExcept(c.Peer.ID, protocol.TypePlayerJoin, protocol.PlayerJoin{
		PlayerID: uint64(ent.ID),
		Name:     req.PlayerName,
	})

	s.log.Info().Str("name", req.PlayerName).Uint64("entity", uint64(ent.ID)).Msg("player joined")
}

func (s *Server) handlePlayerInput(c *Client, payload []byte) {
	if !c.handshakeDone {
		return
	}
	in, ok := protocol.DecodePlayerInput(payload)
	if !ok {
		return
	}

	ent := s.ents.Get(c.EntityID)
	if ent == nil {
		return
	}

	c.LastInputSeq = in.Sequence

	wishDir := physics.Vec3(in.WishDirection)
	mode := ent.Controller.Mode
	if in.FlyToggle() {
		if mode == physics.ModeFlying {
			mode = physics.ModeWalking
		} else {
			mode = physics.ModeFlying
		}
	}

	bounds := physics.FromCenterExtents(
		ent.Transform.Position.Add(physics.Vec3{Y: playerHalfHeight}),
		physics.Vec3{X: playerHalfWidth, Y: playerHalfHeight, Z: playerHalfWidth},
	)
	ent.Controller.InWater = s.world.IsFluid(int32(ent.Transform.Position.X), int32(ent.Transform.Position.Y), int32(ent.Transform.Position.Z))
	ent.Controller.Grounded = physics.Grounded(bounds, ent.Controller.Velocity, s.world)
	ent.Controller.Mode = mode

	velocity := physics.Integrate(ent.Controller.Velocity, physics.Input{
		WishDirection: wishDir,
		WishSprint:    in.Sprint(),
		WishJump:      in.Jump(),
		Grounded:      ent.Controller.Grounded,
		InWater:       ent.Controller.InWater,
		Mode:          mode,
		DeltaTime:     in.DeltaTime,
	}, physics.DefaultParameters())

	displacement := velocity.Scale(in.DeltaTime)
	result := physics.Resolve(bounds, displacement, s.world)

	ent.Transform.Position = result.Position.Sub(physics.Vec3{Y: playerHalfHeight})
	ent.Controller.Velocity = result.Velocity.Scale(1 / maxf32(in.DeltaTime, 1e-6))
	ent.Transform.Rotation = physics.Vec3{X: degToRad(in.Yaw), Y: degToRad(in.Pitch)}
	ent.Controller.LastInputSeq = in.Sequence
}

func (s *Server) handleChunkRequest(c *Client, payload []byte) {
	req, ok := protocol.DecodeChunkRequest(payload)
	if !ok {
		return
	}
	pos := voxel.ChunkPos{CX: req.CX, CZ: req.CZ}
	s.world.GetOrCreateChunk(pos)
	s.sendChunk(c, pos)
	c.LoadedChunks[pos] = true
}

func (s *Server) handlePing(c *Client, payload []byte) {
	ping, ok := protocol.DecodePing(payload)
	if !ok {
		return
	}
	s.send(c, protocol.TypePong, protocol.Pong{
		ClientTimeMs: ping.ClientTimeMs,
		ServerTimeMs: time.Now().UnixMilli(),
	})
}

const maxChatMessageBytes = 256

// handleChatMessage truncates an oversized line to maxChatMessageBytes and
// broadcasts it to every handshaken client. Command routing is out of
// scope here: a chat line is always chat, never dispatched as an action.
func (s *Server) handleChatMessage(c *Client, payload []byte) {
	msg, ok := protocol.DecodeChatMessage(payload)
	if !ok {
		return
	}
	text := msg.Text
	if len(text) > maxChatMessageBytes {
		text = text[:maxChatMessageBytes]
	}
	s.broadcastAll(protocol.TypeChatMessage, protocol.ChatMessage{SenderName: c.Name, Text: text})
}

func (s *Server) handleClientDisconnect(c *Client) {
	s.host.Disconnect(c.Peer.ID, 0)
}

func (s *Server) handleAck(c *Client, payload []byte) {
	ack, ok := protocol.DecodeAck(payload)
	if !ok {
		return
	}
	s.host.Ack(c.Peer, ack.Channel, ack.Sequence)
}

func degToRad(deg float32) float32 { return deg * (3.14159265 / 180) }

func maxf32(a, b float32) float32 {
	if a > b {
		return a
	}
	return b
}
