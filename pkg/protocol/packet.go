// Package protocol defines the typed packets that travel between client and
// server: the fixed 11-byte header, the 15 packet types (ids 0-13 plus the
// Ack type, id 14), their field
// layouts, and the reliability/channel table every sender and the
// transport layer consult.
package protocol

import "github.com/StoreStation/vnet/pkg/codec"

// Type identifies a packet's payload shape. Ids are stable and must never
// be renumbered — they are part of the wire contract.
type Type uint8

const (
	TypeHandshakeRequest  Type = 0
	TypeHandshakeResponse Type = 1
	TypePlayerInput       Type = 2
	TypeEntitySnapshot    Type = 3
	TypeChunkData         Type = 4
	TypeChunkRequest      Type = 5
	TypePlayerJoin        Type = 6
	TypePlayerLeave       Type = 7
	TypeChatMessage       Type = 8
	TypeDisconnect        Type = 9
	TypePing              Type = 10
	TypePong              Type = 11
	TypeBlockUpdate       Type = 12
	TypePlayerSpawn       Type = 13
	TypeAck               Type = 14
)

// HeaderSize is the fixed size, in bytes, of every datagram's header.
const HeaderSize = 11

// channelInfo describes the channel and reliability a packet type travels
// with. Reliability is a property of the packet type, not a per-send
// choice, so the table is the single source of truth both the sender and
// the transport layer consult.
type channelInfo struct {
	channel   uint8
	reliable  bool
}

var table = map[Type]channelInfo{
	TypeHandshakeRequest:  {channel: 0, reliable: true},
	TypeHandshakeResponse: {channel: 0, reliable: true},
	TypePlayerInput:       {channel: 1, reliable: false},
	TypeEntitySnapshot:    {channel: 1, reliable: false},
	TypeChunkData:         {channel: 0, reliable: true},
	TypeChunkRequest:      {channel: 1, reliable: false},
	TypePlayerJoin:        {channel: 0, reliable: true},
	TypePlayerLeave:       {channel: 0, reliable: true},
	TypeChatMessage:       {channel: 2, reliable: true},
	TypeDisconnect:        {channel: 0, reliable: true},
	TypePing:              {channel: 1, reliable: false},
	TypePong:              {channel: 1, reliable: false},
	TypeBlockUpdate:       {channel: 2, reliable: true},
	TypePlayerSpawn:       {channel: 0, reliable: true},
	// Acks ride channel 1 and are never themselves reliable: an ack for a
	// reliable send that gets lost simply never arrives, and the sender's
	// ordinary resend timer retransmits the original, which earns another
	// ack attempt. Acking an ack would need to be reliable too, forever.
	TypeAck: {channel: 1, reliable: false},
}

// Channel returns the logical channel a packet type is sent on.
func Channel(t Type) uint8 { return table[t].channel }

// IsReliable reports whether a packet type requires reliable-ordered
// delivery.
func IsReliable(t Type) bool { return table[t].reliable }

// Known reports whether t is a recognized packet type.
func Known(t Type) bool {
	_, ok := table[t]
	return ok
}

// Header is the fixed-size prefix of every datagram.
type Header struct {
	Type        Type
	PayloadSize uint16
	Sequence    uint32
	TimestampMs uint32
}

// EncodeHeader writes the 11-byte header to w.
func EncodeHeader(w *codec.Writer, h Header) {
	w.U8(uint8(h.Type))
	w.U16(h.PayloadSize)
	w.U32(h.Sequence)
	w.U32(h.TimestampMs)
}

// DecodeHeader reads the 11-byte header from r.
func DecodeHeader(r *codec.Reader) Header {
	return Header{
		Type:        Type(r.U8()),
		PayloadSize: r.U16(),
		Sequence:    r.U32(),
		TimestampMs: r.U32(),
	}
}

// Frame is a fully decoded datagram: header plus its raw payload bytes.
type Frame struct {
	Header  Header
	Payload []byte
}

// EncodeFrame serializes a header followed by an already-encoded payload
// into one contiguous buffer ready to hand to the transport.
func EncodeFrame(h Header, payload []byte) []byte {
	h.PayloadSize = uint16(len(payload))
	w := codec.NewWriter(HeaderSize + len(payload))
	EncodeHeader(w, h)
	buf := append(w.Bytes(), payload...)
	return buf
}

// DecodeFrame parses a raw datagram into a Frame. It returns ok=false (and
// logs nothing itself — the caller decides how to report it) when the
// datagram is undersized or its declared payload size overruns the
// remaining bytes, per the framing rule in spec §4.3: truncated datagrams
// are dropped and never advance any state.
func DecodeFrame(raw []byte) (Frame, bool) {
	if len(raw) < HeaderSize {
		return Frame{}, false
	}
	r := codec.NewReader(raw)
	h := DecodeHeader(r)
	if int(h.PayloadSize) > len(raw)-HeaderSize {
		return Frame{}, false
	}
	payload := raw[HeaderSize : HeaderSize+int(h.PayloadSize)]
	return Frame{Header: h, Payload: payload}, true
}
