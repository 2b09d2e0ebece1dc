package models

import "time"

// MaxPayloadSize bounds the application data carried by a single Data message.
const MaxPayloadSize = 1024 * 1024

type DiscoveryKind uint8

const (
	DiscoveryAnnounce DiscoveryKind = iota + 1
	DiscoveryResponse
	DiscoveryHeartbeat
)

func (k DiscoveryKind) String() string {
	switch k {
	case DiscoveryAnnounce:
		return "announce"
	case DiscoveryResponse:
		return "response"
	case DiscoveryHeartbeat:
		return "heartbeat"
	default:
		return "unknown"
	}
}

// DiscoveryMessage is the UDP payload. Peer is set for Announce and Response,
// PeerID for Heartbeat.
type DiscoveryMessage struct {
	Kind   DiscoveryKind
	Peer   PeerInfo
	PeerID string
}

func Announce(info PeerInfo) DiscoveryMessage {
	return DiscoveryMessage{Kind: DiscoveryAnnounce, Peer: info}
}

func Response(info PeerInfo) DiscoveryMessage {
	return DiscoveryMessage{Kind: DiscoveryResponse, Peer: info}
}

func DiscoveryBeat(peerID string) DiscoveryMessage {
	return DiscoveryMessage{Kind: DiscoveryHeartbeat, PeerID: peerID}
}

type PeerMessageKind uint8

const (
	PeerMessageData PeerMessageKind = iota + 1
	PeerMessageHeartbeat
	PeerMessageDisconnect
)

func (k PeerMessageKind) String() string {
	switch k {
	case PeerMessageData:
		return "data"
	case PeerMessageHeartbeat:
		return "heartbeat"
	case PeerMessageDisconnect:
		return "disconnect"
	default:
		return "unknown"
	}
}

// PeerMessage is the framed TCP payload exchanged after the handshake.
type PeerMessage struct {
	Kind PeerMessageKind
	Data []byte
}

func Data(b []byte) PeerMessage {
	return PeerMessage{Kind: PeerMessageData, Data: b}
}

var (
	Heartbeat  = PeerMessage{Kind: PeerMessageHeartbeat}
	Disconnect = PeerMessage{Kind: PeerMessageDisconnect}
)

// Message is a Data payload delivered to the upper layer.
type Message struct {
	From       string
	Payload    []byte
	ReceivedAt time.Time
}
