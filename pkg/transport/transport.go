// Package transport implements the unreliable-datagram host this module's
// netcode runs on: a single UDP socket shared by every peer, three logical
// channels with per-datagram acknowledgement and timed resend for the
// channels protocol.IsReliable marks reliable, and one reader goroutine per
// socket feeding one bounded Events channel shared by all peers; the reader
// takes the host's peer-table lock briefly for each datagram. Grounded on the session bookkeeping of
// ventosilenzioso-go-raknet's pkg/raknet.Session (sequence counters, ACK/NACK
// queues, per-session RWMutex) and the reader-goroutine/channel shape of
// Ancillary-AGI-foundry's networking/client receiveLoop, adapted from a
// single-peer client socket to a multi-peer server host.
package transport

import (
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// ChannelCount is the number of logical channels multiplexed over one UDP
// socket: 0 and 2 are reliable-ordered, 1 is unreliable-sequenced.
const ChannelCount = 3

const (
	inboxCapacity     = 256
	resendInterval    = 150 * time.Millisecond
	maxResendAttempts = 10
	pruneCheckInterval = 5 * time.Second
	peerTimeout        = 30 * time.Second
)

// EventType distinguishes the kinds of events a Host delivers on its Events
// channel.
type EventType int

const (
	EventConnected EventType = iota
	EventData
	EventDisconnected
)

// DisconnectReason records why a peer left.
type DisconnectReason int

const (
	ReasonUnknown DisconnectReason = iota
	ReasonGraceful
	ReasonTimeout
	ReasonKicked
)

// Event is one inbound occurrence a Host consumer reacts to.
type Event struct {
	Type     EventType
	PeerID   uuid.UUID
	Data     []byte
	Reason   DisconnectReason
}

type channelState struct {
	nextOutgoingSeq  uint32
	nextExpectedSeq  uint32
	lastDeliveredSeq uint32
	haveDelivered    bool
}

type pendingAck struct {
	seq      uint32
	channel  uint8
	payload  []byte
	sentAt   time.Time
	attempts int
}

// Peer tracks one remote endpoint's session state: address, per-channel
// sequence counters, smoothed RTT, and outstanding reliable sends awaiting
// acknowledgement.
type Peer struct {
	ID      uuid.UUID
	Addr    *net.UDPAddr
	mu      sync.Mutex
	chans   [ChannelCount]channelState
	pending map[uint32]*pendingAck
	rttMs   float64
	lastSeen time.Time
}

func newPeer(id uuid.UUID, addr *net.UDPAddr) *Peer {
	return &Peer{
		ID:       id,
		Addr:     addr,
		pending:  make(map[uint32]*pendingAck),
		lastSeen: time.Now(),
	}
}

// RTTMillis returns the peer's exponentially smoothed round-trip estimate.
func (p *Peer) RTTMillis() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.rttMs
}

// updateRTT folds a fresh sample in with smoothing factor alpha=0.2; the
// first sample seeds the estimate directly.
func (p *Peer) updateRTT(sampleMs float64) {
	const alpha = 0.2
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.rttMs == 0 {
		p.rttMs = sampleMs
		return
	}
	p.rttMs = p.rttMs*(1-alpha) + sampleMs*alpha
}

func (p *Peer) touch() {
	p.mu.Lock()
	p.lastSeen = time.Now()
	p.mu.Unlock()
}

func (p *Peer) idle(timeout time.Duration) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return time.Since(p.lastSeen) > timeout
}

// Host is a single UDP socket shared by every connected Peer.
type Host struct {
	conn   *net.UDPConn
	log    zerolog.Logger
	Events chan Event

	mu       sync.RWMutex
	peers    map[uuid.UUID]*Peer
	byAddr   map[string]uuid.UUID

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// Listen opens a UDP socket at addr and starts the host's reader and
// resend-ticker goroutines.
func Listen(addr string, log zerolog.Logger) (*Host, error) {
	udpAddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, err
	}
	conn, err := net.ListenUDP("udp", udpAddr)
	if err != nil {
		return nil, err
	}

	h := &Host{
		conn:   conn,
		log:    log,
		Events: make(chan Event, inboxCapacity),
		peers:  make(map[uuid.UUID]*Peer),
		byAddr: make(map[string]uuid.UUID),
		stopCh: make(chan struct{}),
	}

	h.wg.Add(2)
	go h.readLoop()
	go h.maintenanceLoop()

	return h, nil
}

// LocalAddr returns the socket's bound local address.
func (h *Host) LocalAddr() net.Addr { return h.conn.LocalAddr() }

// Close shuts the host down: stops background goroutines and closes the
// socket. Connected peers are not notified — callers wanting a graceful
// shutdown broadcast a Disconnect packet first.
func (h *Host) Close() error {
	close(h.stopCh)
	err := h.conn.Close()
	h.wg.Wait()
	close(h.Events)
	return err
}

// Peer returns the peer with the given id, if connected.
func (h *Host) Peer(id uuid.UUID) (*Peer, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	p, ok := h.peers[id]
	return p, ok
}

// Peers returns a snapshot slice of every currently connected peer.
func (h *Host) Peers() []*Peer {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]*Peer, 0, len(h.peers))
	for _, p := range h.peers {
		out = append(out, p)
	}
	return out
}

// Connect registers addr as a new peer (used client-side when dialing out;
// the read loop registers unknown senders itself) and returns it, or the
// existing peer if addr is already registered.
func (h *Host) Connect(addr *net.UDPAddr) *Peer {
	h.mu.Lock()
	defer h.mu.Unlock()

	key := addr.String()
	if id, ok := h.byAddr[key]; ok {
		return h.peers[id]
	}

	id := uuid.New()
	p := newPeer(id, addr)
	h.peers[id] = p
	h.byAddr[key] = id
	return p
}

// Disconnect removes peer id from the host's table and emits an
// EventDisconnected.
func (h *Host) Disconnect(id uuid.UUID, reason DisconnectReason) {
	h.mu.Lock()
	p, ok := h.peers[id]
	if ok {
		delete(h.peers, id)
		delete(h.byAddr, p.Addr.String())
	}
	h.mu.Unlock()

	if ok {
		h.emit(Event{Type: EventDisconnected, PeerID: id, Reason: reason})
	}
}

// NextSequence allocates and returns the next outgoing sequence number for
// peer on channel. Callers needing the number in a packet's wire header
// (so the receiver can order/dedup on it) must call this before encoding,
// then pass the same value to Send.
func (h *Host) NextSequence(p *Peer, channel uint8) uint32 {
	p.mu.Lock()
	defer p.mu.Unlock()
	seq := p.chans[channel].nextOutgoingSeq
	p.chans[channel].nextOutgoingSeq++
	return seq
}

// Send transmits payload to peer on channel under sequence number seq
// (from NextSequence); when reliable is true it also queues the payload for
// timed resend until it is acknowledged.
func (h *Host) Send(p *Peer, channel uint8, seq uint32, reliable bool, payload []byte) error {
	if reliable {
		p.mu.Lock()
		p.pending[seq] = &pendingAck{seq: seq, channel: channel, payload: payload, sentAt: time.Now()}
		p.mu.Unlock()
	}

	_, err := h.conn.WriteToUDP(payload, p.Addr)
	return err
}

// Ack marks a reliable send as acknowledged, clearing it from the resend
// queue. Acks themselves travel as ordinary unreliable traffic; the caller
// wires them into its own packet schema.
func (h *Host) Ack(p *Peer, channel uint8, seq uint32) {
	p.mu.Lock()
	delete(p.pending, seq)
	p.mu.Unlock()
}

// Accept applies the receive-side ordering/dedup guarantee for channel:
// a sequence number at or below the highest one already delivered on that
// channel is stale (a reordered datagram) or a duplicate (a resent
// reliable datagram already processed once) and must not be delivered
// again. It reports whether seq is newer than anything delivered so far
// and, if so, records it as the new high-water mark.
func (h *Host) Accept(p *Peer, channel uint8, seq uint32) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	st := &p.chans[channel]
	if st.haveDelivered && seq <= st.lastDeliveredSeq {
		return false
	}
	st.lastDeliveredSeq = seq
	st.haveDelivered = true
	st.nextExpectedSeq = seq + 1
	return true
}

// NoteRoundTrip feeds a fresh RTT sample (in milliseconds) into peer's
// smoothed estimate, for callers that measure RTT via their own ping/pong
// packets rather than transport-level acks.
func (h *Host) NoteRoundTrip(p *Peer, sampleMs float64) {
	p.updateRTT(sampleMs)
}

func (h *Host) emit(e Event) {
	select {
	case h.Events <- e:
	case <-h.stopCh:
	}
}

func (h *Host) readLoop() {
	defer h.wg.Done()
	buf := make([]byte, 65535)

	for {
		h.conn.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
		n, addr, err := h.conn.ReadFromUDP(buf)
		if err != nil {
			select {
			case <-h.stopCh:
				return
			default:
			}
			if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
				continue
			}
			h.log.Warn().Err(err).Msg("transport read error")
			continue
		}

		data := make([]byte, n)
		copy(data, buf[:n])

		h.mu.Lock()
		id, known := h.byAddr[addr.String()]
		var p *Peer
		if !known {
			id = uuid.New()
			p = newPeer(id, addr)
			h.peers[id] = p
			h.byAddr[addr.String()] = id
		} else {
			p = h.peers[id]
		}
		h.mu.Unlock()

		p.touch()
		if !known {
			h.emit(Event{Type: EventConnected, PeerID: id})
		}
		h.emit(Event{Type: EventData, PeerID: id, Data: data})
	}
}

func (h *Host) maintenanceLoop() {
	defer h.wg.Done()
	ticker := time.NewTicker(resendInterval)
	pruneTicker := time.NewTicker(pruneCheckInterval)
	defer ticker.Stop()
	defer pruneTicker.Stop()

	for {
		select {
		case <-h.stopCh:
			return
		case <-ticker.C:
			h.resendPending()
		case <-pruneTicker.C:
			h.pruneIdlePeers()
		}
	}
}

func (h *Host) resendPending() {
	now := time.Now()
	for _, p := range h.Peers() {
		p.mu.Lock()
		var toSend []*pendingAck
		for seq, ack := range p.pending {
			if now.Sub(ack.sentAt) < resendInterval {
				continue
			}
			if ack.attempts >= maxResendAttempts {
				delete(p.pending, seq)
				continue
			}
			ack.attempts++
			ack.sentAt = now
			toSend = append(toSend, ack)
		}
		addr := p.Addr
		p.mu.Unlock()

		for _, ack := range toSend {
			h.conn.WriteToUDP(ack.payload, addr)
		}
	}
}

func (h *Host) pruneIdlePeers() {
	for _, p := range h.Peers() {
		if p.idle(peerTimeout) {
			h.Disconnect(p.ID, ReasonTimeout)
		}
	}
}
