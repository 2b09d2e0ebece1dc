package network

import (
	"io"
	"log/slog"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/WendelHime/peernet/internal/decoder"
	"github.com/WendelHime/peernet/internal/metrics"
	"github.com/WendelHime/peernet/internal/p2p"
	"github.com/WendelHime/peernet/internal/shared/models"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
)

func testConfig(id string) Config {
	return Config{
		PeerID:            id,
		ListenAddr:        "127.0.0.1:0",
		ConnectionTimeout: 2 * time.Second,
		HeartbeatInterval: time.Hour,
		PollInterval:      10 * time.Millisecond,
		DisableDiscovery:  true,
	}
}

func newTestNetwork(t *testing.T, id string) (*PeerNetwork, *metrics.Metrics) {
	t.Helper()
	m := metrics.NewMetrics("test", prometheus.NewRegistry())
	n, err := New(testConfig(id), decoder.NewCodec(), slog.New(slog.NewTextHandler(io.Discard, nil)), m)
	require.NoError(t, err)
	t.Cleanup(n.Shutdown)
	return n, m
}

// remotePeer is the far end of a connection placed directly in a network's
// table. It decodes every frame it receives.
type remotePeer struct {
	conn       net.Conn
	local      *p2p.Conn
	heartbeats atomic.Int32
	data       chan []byte
	disconnect chan struct{}
}

func attachPeer(t *testing.T, n *PeerNetwork, id string) *remotePeer {
	t.Helper()
	a, b := net.Pipe()
	r := &remotePeer{
		conn:       b,
		local:      p2p.NewConn(id, a, nil, time.Second),
		data:       make(chan []byte, 16),
		disconnect: make(chan struct{}, 1),
	}

	n.connsMu.Lock()
	n.conns[id] = r.local
	n.connsMu.Unlock()

	go r.drain()
	t.Cleanup(func() { b.Close() })
	return r
}

func (r *remotePeer) drain() {
	codec := decoder.NewCodec()
	for {
		frame, err := decoder.ReadFrame(r.conn)
		if err != nil {
			return
		}
		msg, err := codec.DecodePeerMessage(frame)
		if err != nil {
			return
		}
		switch msg.Kind {
		case models.PeerMessageHeartbeat:
			r.heartbeats.Add(1)
		case models.PeerMessageData:
			r.data <- msg.Data
		case models.PeerMessageDisconnect:
			r.disconnect <- struct{}{}
		}
	}
}
