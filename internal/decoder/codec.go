package decoder

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/WendelHime/peernet/internal/shared/models"
	"github.com/jackpal/bencode-go"
)

var (
	ErrMalformed   = errors.New("malformed message")
	ErrUnknownKind = errors.New("unknown message kind")
)

// Codec turns the discovery and peer tagged unions into bytes and back.
type Codec interface {
	EncodeDiscovery(models.DiscoveryMessage) ([]byte, error)
	DecodeDiscovery([]byte) (models.DiscoveryMessage, error)
	EncodePeerMessage(models.PeerMessage) ([]byte, error)
	DecodePeerMessage([]byte) (models.PeerMessage, error)
}

type codec struct{}

func NewCodec() Codec {
	return codec{}
}

// bencode dictionaries used on the wire; the kind travels as a short string
type discoveryWire struct {
	Kind     string `bencode:"kind"`
	ID       string `bencode:"id"`
	Addr     string `bencode:"addr"`
	LastSeen int64  `bencode:"last_seen"`
}

type peerWire struct {
	Kind string `bencode:"kind"`
	Data string `bencode:"data"`
}

var discoveryKinds = map[string]models.DiscoveryKind{
	"announce":  models.DiscoveryAnnounce,
	"response":  models.DiscoveryResponse,
	"heartbeat": models.DiscoveryHeartbeat,
}

var peerKinds = map[string]models.PeerMessageKind{
	"data":       models.PeerMessageData,
	"heartbeat":  models.PeerMessageHeartbeat,
	"disconnect": models.PeerMessageDisconnect,
}

func (codec) EncodeDiscovery(msg models.DiscoveryMessage) ([]byte, error) {
	wire := discoveryWire{Kind: msg.Kind.String()}
	switch msg.Kind {
	case models.DiscoveryAnnounce, models.DiscoveryResponse:
		wire.ID = msg.Peer.ID
		wire.Addr = msg.Peer.Addr
		wire.LastSeen = msg.Peer.LastSeen
	case models.DiscoveryHeartbeat:
		wire.ID = msg.PeerID
	default:
		return nil, fmt.Errorf("%w: discovery %d", ErrUnknownKind, msg.Kind)
	}

	return marshal(wire)
}

func (codec) DecodeDiscovery(b []byte) (models.DiscoveryMessage, error) {
	var wire discoveryWire
	if err := unmarshal(b, &wire); err != nil {
		return models.DiscoveryMessage{}, err
	}

	kind, ok := discoveryKinds[wire.Kind]
	if !ok {
		return models.DiscoveryMessage{}, fmt.Errorf("%w: discovery %q", ErrUnknownKind, wire.Kind)
	}
	if wire.ID == "" {
		return models.DiscoveryMessage{}, fmt.Errorf("%w: missing peer id", ErrMalformed)
	}

	if kind == models.DiscoveryHeartbeat {
		return models.DiscoveryBeat(wire.ID), nil
	}
	if wire.Addr == "" {
		return models.DiscoveryMessage{}, fmt.Errorf("%w: missing peer address", ErrMalformed)
	}

	return models.DiscoveryMessage{
		Kind: kind,
		Peer: models.PeerInfo{ID: wire.ID, Addr: wire.Addr, LastSeen: wire.LastSeen},
	}, nil
}

func (codec) EncodePeerMessage(msg models.PeerMessage) ([]byte, error) {
	wire := peerWire{Kind: msg.Kind.String()}
	switch msg.Kind {
	case models.PeerMessageData:
		wire.Data = string(msg.Data)
	case models.PeerMessageHeartbeat, models.PeerMessageDisconnect:
	default:
		return nil, fmt.Errorf("%w: peer %d", ErrUnknownKind, msg.Kind)
	}

	return marshal(wire)
}

func (codec) DecodePeerMessage(b []byte) (models.PeerMessage, error) {
	var wire peerWire
	if err := unmarshal(b, &wire); err != nil {
		return models.PeerMessage{}, err
	}

	kind, ok := peerKinds[wire.Kind]
	if !ok {
		return models.PeerMessage{}, fmt.Errorf("%w: peer %q", ErrUnknownKind, wire.Kind)
	}
	if kind != models.PeerMessageData {
		return models.PeerMessage{Kind: kind}, nil
	}

	return models.Data([]byte(wire.Data)), nil
}

func marshal(v interface{}) ([]byte, error) {
	buf := new(bytes.Buffer)
	if err := bencode.Marshal(buf, v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// unmarshal decodes untrusted bytes. The input is validated first and any
// panic left in the bencode library is reported as ErrMalformed.
func unmarshal(b []byte, v interface{}) (err error) {
	if len(b) == 0 {
		return fmt.Errorf("%w: empty payload", ErrMalformed)
	}
	if err := validate(b); err != nil {
		return err
	}

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrMalformed, r)
		}
	}()
	if err := bencode.Unmarshal(bytes.NewReader(b), v); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return nil
}
