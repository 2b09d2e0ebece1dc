package network

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/WendelHime/peernet/internal/decoder"
	"github.com/WendelHime/peernet/internal/discovery"
	"github.com/WendelHime/peernet/internal/metrics"
	"github.com/WendelHime/peernet/internal/p2p"
	"github.com/WendelHime/peernet/internal/shared/models"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
)

// PeerNetwork discovers peers on the LAN, keeps one TCP connection per peer
// and exposes send and broadcast over those connections.
//
// Lock order is peersMu before connsMu. Nothing takes them the other way.
type PeerNetwork struct {
	id      string
	cfg     Config
	codec   decoder.Codec
	log     *slog.Logger
	metrics *metrics.Metrics

	listener  *net.TCPListener
	addr      string
	discovery *discovery.Service

	peersMu sync.RWMutex
	peers   map[string]models.PeerInfo

	connsMu sync.Mutex
	conns   map[string]*p2p.Conn
	dialing map[string]struct{}
	closed  bool

	inbox chan models.Message

	ctx          context.Context
	cancel       context.CancelFunc
	wg           sync.WaitGroup
	startOnce    sync.Once
	shutdownOnce sync.Once
}

// New binds the data listener and, unless disabled, the discovery socket.
// Bind failures are returned; nothing runs until Start. A nil m registers
// metrics on a private registry.
func New(cfg Config, codec decoder.Codec, logger *slog.Logger, m *metrics.Metrics) (*PeerNetwork, error) {
	cfg = cfg.withDefaults()
	if cfg.PeerID == "" {
		cfg.PeerID = uuid.NewString()
	}
	if m == nil {
		m = metrics.NewMetrics("peernet", prometheus.NewRegistry())
	}

	ctx, cancel := context.WithCancel(context.Background())
	n := &PeerNetwork{
		id:      cfg.PeerID,
		cfg:     cfg,
		codec:   codec,
		log:     logger.With(slog.String("peer_id", cfg.PeerID)),
		metrics: m,
		peers:   make(map[string]models.PeerInfo),
		conns:   make(map[string]*p2p.Conn),
		dialing: make(map[string]struct{}),
		inbox:   make(chan models.Message, cfg.InboxSize),
		ctx:     ctx,
		cancel:  cancel,
	}

	ln, err := net.Listen("tcp", cfg.ListenAddr)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to bind data listener: %w", err)
	}
	n.listener = ln.(*net.TCPListener)
	n.addr = ln.Addr().String()

	if !cfg.DisableDiscovery {
		conn, err := discovery.Listen(ctx, cfg.MulticastAddr)
		if err != nil {
			ln.Close()
			cancel()
			return nil, fmt.Errorf("failed to bind discovery socket: %w", err)
		}

		self := models.PeerInfo{ID: n.id, Addr: n.addr}
		dcfg := discovery.Config{
			GroupAddr:   cfg.MulticastAddr,
			Interval:    cfg.DiscoveryInterval,
			ReadTimeout: cfg.ReadTimeout,
		}
		n.discovery, err = discovery.NewService(self, dcfg, conn, codec, n, n, logger, m)
		if err != nil {
			conn.Close()
			ln.Close()
			cancel()
			return nil, err
		}
	}

	return n, nil
}

// Start launches the accept, heartbeat and discovery loops. Calls after the
// first are no-ops.
func (n *PeerNetwork) Start() {
	n.startOnce.Do(func() {
		n.log.Info("starting peer network", slog.String("addr", n.addr))

		n.wg.Add(2)
		go func() {
			defer n.wg.Done()
			n.acceptLoop()
		}()
		go func() {
			defer n.wg.Done()
			n.heartbeatLoop()
		}()

		if n.discovery != nil {
			n.wg.Add(1)
			go func() {
				defer n.wg.Done()
				if err := n.discovery.Run(n.ctx); err != nil {
					n.log.Error("discovery stopped", slog.Any("error", err))
				}
			}()
		}
	})
}

// Shutdown sends Disconnect to every peer, closes all sockets and waits for
// every background goroutine. The Messages channel is closed afterwards.
func (n *PeerNetwork) Shutdown() {
	n.shutdownOnce.Do(func() {
		n.log.Info("shutting down peer network")
		n.cancel()

		n.connsMu.Lock()
		n.closed = true
		conns := n.conns
		n.conns = make(map[string]*p2p.Conn)
		n.connsMu.Unlock()

		for _, c := range conns {
			_ = n.writeMessage(c, models.Disconnect)
			c.Close()
			n.metrics.RecordEviction(metrics.ReasonLocal)
		}
		n.updatePeerGauges()

		n.listener.Close()
		if n.discovery != nil {
			n.discovery.Close()
		}

		n.wg.Wait()
		close(n.inbox)
		n.log.Info("peer network stopped")
	})
}

// PeerID returns this node's id.
func (n *PeerNetwork) PeerID() string {
	return n.id
}

// Addr returns the bound data listener address.
func (n *PeerNetwork) Addr() string {
	return n.addr
}

// Messages delivers inbound Data payloads. When the buffer is full new
// messages are dropped.
func (n *PeerNetwork) Messages() <-chan models.Message {
	return n.inbox
}

// UpsertPeer records a discovered peer.
func (n *PeerNetwork) UpsertPeer(info models.PeerInfo) {
	n.peersMu.Lock()
	_, known := n.peers[info.ID]
	n.peers[info.ID] = info
	n.peersMu.Unlock()

	n.updatePeerGauges()
	if !known {
		n.log.Info("discovered peer", slog.String("peer", info.ID), slog.String("addr", info.Addr))
	}
}

// TouchPeer refreshes last_seen of a known peer.
func (n *PeerNetwork) TouchPeer(peerID string) bool {
	n.peersMu.Lock()
	defer n.peersMu.Unlock()

	info, ok := n.peers[peerID]
	if !ok {
		return false
	}
	info.LastSeen = time.Now().Unix()
	n.peers[peerID] = info
	return true
}

// updatePeerGauges publishes both table sizes. Callers must not hold either lock.
func (n *PeerNetwork) updatePeerGauges() {
	stats := n.GetNetworkStats()
	n.metrics.UpdatePeers(stats.ConnectedPeers, stats.DiscoveredPeers)
}
