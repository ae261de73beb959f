package client

import (
	"math"
	"time"

	"github.com/StoreStation/vnet/pkg/codec"
	"github.com/StoreStation/vnet/pkg/physics"
	"github.com/StoreStation/vnet/pkg/protocol"
	"github.com/StoreStation/vnet/pkg/voxel"
)

// dispatch routes one decoded frame from the server to its handler.
func (c *Client) dispatch(frame protocol.Frame) {
	switch frame.Header.Type {
	case protocol.TypeHandshakeResponse:
		c.handleHandshakeResponse(frame.Payload)
	case protocol.TypePlayerSpawn:
		c.handlePlayerSpawn(frame.Payload)
	case protocol.TypePlayerJoin:
		c.handlePlayerJoin(frame.Payload)
	case protocol.TypePlayerLeave:
		c.handlePlayerLeave(frame.Payload)
	case protocol.TypeEntitySnapshot:
		c.handleEntitySnapshot(frame.Payload)
	case protocol.TypeChunkData:
		c.handleChunkData(frame.Payload)
	case protocol.TypePong:
		c.handlePong(frame.Payload)
	case protocol.TypeChatMessage:
		c.handleChatMessage(frame.Payload)
	case protocol.TypeBlockUpdate:
		c.handleBlockUpdate(frame.Payload)
	case protocol.TypeDisconnect:
		c.handleServerDisconnect(frame.Payload)
	case protocol.TypeAck:
		c.handleAck(frame.Payload)
	default:
		c.log.Warn().Uint8("type", uint8(frame.Header.Type)).Msg("unhandled packet type")
	}
}

func (c *Client) handleHandshakeResponse(payload []byte) {
	resp, ok := protocol.DecodeHandshakeResponse(payload)
	if !ok {
		return
	}
	if !resp.Accepted {
		c.log.Warn().Str("message", resp.Message).Msg("handshake rejected")
		c.mu.Lock()
		c.state = StateDisconnected
		c.mu.Unlock()
		c.publish(Event{Type: EventConnectionLost, WasTimeout: false})
		return
	}

	c.mu.Lock()
	c.state = StateConnected
	c.player.entityID = resp.PlayerID
	c.player.position = physics.Vec3(resp.Spawn)
	c.mu.Unlock()

	c.publish(Event{Type: EventConnectionEstablished, PlayerID: resp.PlayerID})
}

func (c *Client) handlePlayerSpawn(payload []byte) {
	spawn, ok := protocol.DecodePlayerSpawn(payload)
	if !ok {
		return
	}
	c.mu.Lock()
	if _, exists := c.remotes[spawn.PlayerID]; !exists {
		c.remotes[spawn.PlayerID] = &remoteEntity{id: spawn.PlayerID}
	}
	c.remotes[spawn.PlayerID].push(remoteSnapshot{
		position: physics.Vec3(spawn.Position),
		rotation: spawn.Rotation,
	})
	c.mu.Unlock()
	c.publish(Event{Type: EventPlayerJoined, PlayerID: spawn.PlayerID, PlayerName: spawn.Name})
}

func (c *Client) handlePlayerJoin(payload []byte) {
	join, ok := protocol.DecodePlayerJoin(payload)
	if !ok {
		return
	}
	c.mu.Lock()
	if _, exists := c.remotes[join.PlayerID]; !exists {
		c.remotes[join.PlayerID] = &remoteEntity{id: join.PlayerID}
	}
	c.mu.Unlock()
	c.publish(Event{Type: EventPlayerJoined, PlayerID: join.PlayerID, PlayerName: join.Name})
}

func (c *Client) handlePlayerLeave(payload []byte) {
	leave, ok := protocol.DecodePlayerLeave(payload)
	if !ok {
		return
	}
	c.mu.Lock()
	delete(c.remotes, leave.PlayerID)
	c.mu.Unlock()
	c.publish(Event{Type: EventPlayerLeft, PlayerID: leave.PlayerID})
}

// handleEntitySnapshot is the per-entity reconcile/upsert step: the local
// player entity is reconciled against authoritative position (hard-snap
// beyond the error threshold, else a 10% soft correction), every other
// entity is appended to its interpolation ring.
func (c *Client) handleEntitySnapshot(payload []byte) {
	snap, ok := protocol.DecodeEntitySnapshot(payload)
	if !ok {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	for _, e := range snap.Entities {
		if e.ID == c.player.entityID {
			c.reconcileLocked(e)
			continue
		}
		r, exists := c.remotes[e.ID]
		if !exists {
			r = &remoteEntity{id: e.ID}
			c.remotes[e.ID] = r
		}
		r.push(remoteSnapshot{
			serverTimeMs: serverTickToMs(snap.ServerTick),
			tick:         snap.ServerTick,
			position:     physics.Vec3(e.Position),
			velocity:     physics.Vec3(e.Velocity),
			rotation:     e.Rotation,
			animState:    e.AnimState,
		})
	}

	c.ackInputsLocked(snap.LastConsumedInputSeq)
}

func (c *Client) reconcileLocked(e protocol.EntityState) {
	authoritative := physics.Vec3(e.Position)
	errVec := authoritative.Sub(c.player.position)
	if errVec.Length() > c.config.PredictionErrorThreshold {
		c.player.position = authoritative
		if c.mx != nil {
			c.mx.ReconciliationSnap.Inc()
		}
		return
	}
	c.player.position = c.player.position.Add(errVec.Scale(reconciliationFactor))
	if c.mx != nil {
		c.mx.ReconciliationSoft.Inc()
	}
}

// ackInputsLocked drops every buffered input whose sequence has been
// consumed by the server. The remaining buffered inputs are not replayed
// from the corrected state: reconciliation only adjusts the predicted
// position.
func (c *Client) ackInputsLocked(lastConsumedSeq uint32) {
	kept := c.inputBuffer[:0]
	for _, b := range c.inputBuffer {
		if b.seq > lastConsumedSeq {
			kept = append(kept, b)
		}
	}
	c.inputBuffer = kept
}

func (c *Client) handlePong(payload []byte) {
	pong, ok := protocol.DecodePong(payload)
	if !ok {
		return
	}
	now := time.Now().UnixMilli()
	rtt := now - pong.ClientTimeMs
	if rtt < 0 {
		rtt = 0
	}
	estServerNow := float64(pong.ServerTimeMs) - float64(rtt)/2

	c.mu.Lock()
	c.serverTimeOffsetMs = 0.9*c.serverTimeOffsetMs + 0.1*(estServerNow-float64(now))
	c.mu.Unlock()

	if c.mx != nil {
		c.mx.PingMillis.Set(float64(rtt))
	}
}

func (c *Client) handleChatMessage(payload []byte) {
	msg, ok := protocol.DecodeChatMessage(payload)
	if !ok {
		return
	}
	c.publish(Event{Type: EventChatReceived, ChatSender: msg.SenderName, ChatText: msg.Text})
}

func (c *Client) handleAck(payload []byte) {
	ack, ok := protocol.DecodeAck(payload)
	if !ok {
		return
	}
	c.mu.Lock()
	host, peer := c.host, c.serverPeer
	c.mu.Unlock()
	if host == nil || peer == nil {
		return
	}
	host.Ack(peer, ack.Channel, ack.Sequence)
}

func (c *Client) handleBlockUpdate(payload []byte) {
	upd, ok := protocol.DecodeBlockUpdate(payload)
	if !ok {
		return
	}
	c.world.SetBlock(upd.X, upd.Y, upd.Z, voxel.Block(upd.BlockID))
}

func (c *Client) handleServerDisconnect(payload []byte) {
	reason, ok := protocol.DecodeDisconnect(payload)
	if !ok {
		reason = protocol.Disconnect{Reason: "unknown"}
	}
	c.mu.Lock()
	c.state = StateDisconnected
	c.mu.Unlock()
	c.log.Info().Str("reason", reason.Reason).Msg("server closed connection")
	c.publish(Event{Type: EventConnectionLost, WasTimeout: false})
}

// handleChunkData runs the fragment reassembly state machine: accumulate
// fragments keyed by fragmentId, detect completion once every id in
// [0, lastFragmentId] has arrived, decode via block-RLE, and install the
// chunk.
func (c *Client) handleChunkData(payload []byte) {
	frag, ok := protocol.DecodeChunkData(payload)
	if !ok {
		return
	}
	pos := voxel.ChunkPos{CX: frag.CX, CZ: frag.CZ}

	c.mu.Lock()
	buf, exists := c.fragments[pos]
	if !exists {
		buf = &fragmentBuffer{parts: make(map[uint16][]byte)}
		c.fragments[pos] = buf
	}
	buf.lastUpdate = time.Now()
	if _, dup := buf.parts[frag.FragmentID]; !dup {
		buf.parts[frag.FragmentID] = frag.Bytes
		buf.totalBytes += len(frag.Bytes)
	}
	if frag.IsLast {
		buf.lastFragment = frag.FragmentID
		buf.haveLast = true
	}

	complete := buf.haveLast && len(buf.parts) == int(buf.lastFragment)+1
	var assembled []byte
	if complete {
		assembled = make([]byte, 0, buf.totalBytes)
		for i := uint16(0); i <= buf.lastFragment; i++ {
			assembled = append(assembled, buf.parts[i]...)
		}
		delete(c.fragments, pos)
	}
	c.mu.Unlock()

	if !complete {
		return
	}

	chunk, ok := voxel.DecodeRLE(assembled)
	if !ok {
		c.log.Warn().Str("chunk", pos.String()).Msg("dropping invalid chunk payload")
		return
	}
	c.world.SetChunk(pos, chunk)
	c.publish(Event{Type: EventChunkReceived, ChunkPos: pos})
}

// expireFragments drops fragment buffers that haven't seen a new fragment
// in fragmentExpiry. A client that still wants that chunk must re-request
// it.
func (c *Client) expireFragments() {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := time.Now()
	for pos, buf := range c.fragments {
		if now.Sub(buf.lastUpdate) > fragmentExpiry {
			delete(c.fragments, pos)
			if c.mx != nil {
				c.mx.FragmentsExpired.Inc()
			}
		}
	}
}

// serverTickRate must match pkg/netcode/server's 60Hz tick rate: it is how
// a ServerTick number is converted into the ServerTimeMs every snapshot is
// interpolated against.
const serverTickRate = 60.0

func serverTickToMs(tick uint32) int64 {
	return int64(float64(tick) * (1000.0 / serverTickRate))
}

// RemoteEntityState computes one remote entity's interpolated state at the
// given wall-clock time: render time is the local clock offset by the
// smoothed server-time delta minus Config.InterpolationDelayMs, compared
// against each snapshot's ServerTimeMs (never the raw tick number or local
// wall-clock time).
func (c *Client) RemoteEntityState(id uint64, nowMs int64) (pos physics.Vec3, rot codec.Quat, animState uint8, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	r, exists := c.remotes[id]
	if !exists || len(r.snapshots) == 0 {
		return physics.Vec3{}, codec.Quat{}, 0, false
	}

	renderTime := float64(nowMs) + c.serverTimeOffsetMs - float64(c.config.InterpolationDelayMs)

	snaps := r.snapshots
	if renderTime <= float64(snaps[0].serverTimeMs) {
		s := snaps[0]
		return s.position, s.rotation, s.animState, true
	}
	last := snaps[len(snaps)-1]
	if renderTime >= float64(last.serverTimeMs) {
		return last.position, last.rotation, last.animState, true
	}

	for i := 0; i < len(snaps)-1; i++ {
		a, b := snaps[i], snaps[i+1]
		if float64(a.serverTimeMs) <= renderTime && renderTime <= float64(b.serverTimeMs) {
			span := float64(b.serverTimeMs - a.serverTimeMs)
			alpha := float32(0)
			if span > 0 {
				alpha = float32((renderTime - float64(a.serverTimeMs)) / span)
			}
			animState = a.animState
			if alpha >= 0.5 {
				animState = b.animState
			}
			return lerpVec3(a.position, b.position, alpha), slerpQuat(a.rotation, b.rotation, alpha), animState, true
		}
	}
	return last.position, last.rotation, last.animState, true
}

func lerpVec3(a, b physics.Vec3, alpha float32) physics.Vec3 {
	return a.Add(b.Sub(a).Scale(alpha))
}

// slerpQuat spherically interpolates two unit quaternions, falling back to
// normalized lerp when they are nearly parallel to avoid division by a
// near-zero sine.
func slerpQuat(a, b codec.Quat, alpha float32) codec.Quat {
	dot := a.X*b.X + a.Y*b.Y + a.Z*b.Z + a.W*b.W
	if dot < 0 {
		b = codec.Quat{X: -b.X, Y: -b.Y, Z: -b.Z, W: -b.W}
		dot = -dot
	}
	if dot > 0.9995 {
		return normalizeQuat(codec.Quat{
			X: a.X + (b.X-a.X)*alpha,
			Y: a.Y + (b.Y-a.Y)*alpha,
			Z: a.Z + (b.Z-a.Z)*alpha,
			W: a.W + (b.W-a.W)*alpha,
		})
	}

	theta0 := math.Acos(float64(dot))
	theta := theta0 * float64(alpha)
	sinTheta0 := math.Sin(theta0)
	sinTheta := math.Sin(theta)

	s0 := float32(math.Cos(theta) - float64(dot)*sinTheta/sinTheta0)
	s1 := float32(sinTheta / sinTheta0)

	return codec.Quat{
		X: s0*a.X + s1*b.X,
		Y: s0*a.Y + s1*b.Y,
		Z: s0*a.Z + s1*b.Z,
		W: s0*a.W + s1*b.W,
	}
}

func normalizeQuat(q codec.Quat) codec.Quat {
	n := float32(math.Sqrt(float64(q.X*q.X + q.Y*q.Y + q.Z*q.Z + q.W*q.W)))
	if n == 0 {
		return codec.Quat{W: 1}
	}
	return codec.Quat{X: q.X / n, Y: q.Y / n, Z: q.Z / n, W: q.W / n}
}

func maxf32(a, b float32) float32 {
	if a > b {
		return a
	}
	return b
}
