package discovery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/WendelHime/peernet/internal/decoder"
	"github.com/WendelHime/peernet/internal/metrics"
	"github.com/WendelHime/peernet/internal/shared/models"
	"golang.org/x/net/ipv4"
)

// maxDatagram is the largest UDP payload we will read.
const maxDatagram = 64 * 1024

// PeerStore is the peer table the service reports into.
type PeerStore interface {
	UpsertPeer(info models.PeerInfo)
	TouchPeer(peerID string) bool
}

// Connector is asked to open a connection to every peer heard from.
// Implementations decide whether to actually dial.
type Connector interface {
	ConnectTo(info models.PeerInfo)
}

type Config struct {
	// GroupAddr is the multicast group and port, e.g. 239.255.42.1:8888.
	GroupAddr   string
	Interval    time.Duration
	ReadTimeout time.Duration
}

// Service announces the local peer on the group and feeds what it hears into
// a PeerStore and a Connector.
type Service struct {
	self      models.PeerInfo
	cfg       Config
	group     net.Addr
	conn      net.PacketConn
	codec     decoder.Codec
	store     PeerStore
	connector Connector
	logger    *slog.Logger
	metrics   *metrics.Metrics

	closeOnce sync.Once
}

// Listen opens the discovery socket: bound to the group port on all
// interfaces with address reuse, joined to the group with TTL 1 and loopback
// enabled so several nodes on one host hear each other.
func Listen(ctx context.Context, groupAddr string) (net.PacketConn, error) {
	group, err := net.ResolveUDPAddr("udp4", groupAddr)
	if err != nil {
		return nil, err
	}
	if !group.IP.IsMulticast() {
		return nil, fmt.Errorf("%s is not a multicast address", groupAddr)
	}

	lc := net.ListenConfig{Control: reusePort}
	c, err := lc.ListenPacket(ctx, "udp4", net.JoinHostPort("0.0.0.0", strconv.Itoa(group.Port)))
	if err != nil {
		return nil, err
	}

	p := ipv4.NewPacketConn(c)
	if err := joinGroup(p, group); err != nil {
		c.Close()
		return nil, err
	}
	if err := p.SetMulticastTTL(1); err != nil {
		c.Close()
		return nil, err
	}
	if err := p.SetMulticastLoopback(true); err != nil {
		c.Close()
		return nil, err
	}

	return c, nil
}

// joinGroup joins on every multicast capable interface, falling back to the
// system default when none accepts.
func joinGroup(p *ipv4.PacketConn, group *net.UDPAddr) error {
	joined := 0
	ifaces, _ := net.Interfaces()
	for i := range ifaces {
		iface := ifaces[i]
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagMulticast == 0 {
			continue
		}
		if err := p.JoinGroup(&iface, &net.UDPAddr{IP: group.IP}); err == nil {
			joined++
		}
	}
	if joined > 0 {
		return nil
	}
	return p.JoinGroup(nil, &net.UDPAddr{IP: group.IP})
}

// NewService wraps conn. Announcements go to cfg.GroupAddr, which tests may
// point at a unicast socket.
func NewService(self models.PeerInfo, cfg Config, conn net.PacketConn, codec decoder.Codec, store PeerStore, connector Connector, logger *slog.Logger, m *metrics.Metrics) (*Service, error) {
	group, err := net.ResolveUDPAddr("udp", cfg.GroupAddr)
	if err != nil {
		return nil, err
	}
	return &Service{
		self:      self,
		cfg:       cfg,
		group:     group,
		conn:      conn,
		codec:     codec,
		store:     store,
		connector: connector,
		logger:    logger.With(slog.String("component", "discovery")),
		metrics:   m,
	}, nil
}

// Run announces immediately and then every Interval, handling datagrams in
// between. It returns when ctx is done or the socket is closed.
func (s *Service) Run(ctx context.Context) error {
	s.Announce()
	next := time.Now().Add(s.cfg.Interval)

	buf := make([]byte, maxDatagram)
	for {
		if ctx.Err() != nil {
			return nil
		}
		if !time.Now().Before(next) {
			s.Announce()
			next = time.Now().Add(s.cfg.Interval)
		}

		if err := s.conn.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout)); err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			return err
		}
		n, src, err := s.conn.ReadFrom(buf)
		if err != nil {
			if errors.Is(err, os.ErrDeadlineExceeded) {
				continue
			}
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			s.logger.Warn("failed to read datagram", slog.Any("error", err))
			continue
		}

		s.handleDatagram(buf[:n], src)
	}
}

// Announce multicasts our PeerInfo.
func (s *Service) Announce() {
	info := s.self
	info.LastSeen = time.Now().Unix()
	s.send(models.Announce(info), s.group)
}

// Heartbeat multicasts a discovery heartbeat carrying our id.
func (s *Service) Heartbeat() {
	s.send(models.DiscoveryBeat(s.self.ID), s.group)
}

func (s *Service) Close() error {
	var err error
	s.closeOnce.Do(func() {
		err = s.conn.Close()
	})
	return err
}

func (s *Service) send(msg models.DiscoveryMessage, to net.Addr) {
	payload, err := s.codec.EncodeDiscovery(msg)
	if err != nil {
		s.logger.Error("failed to encode discovery message", slog.String("kind", msg.Kind.String()), slog.Any("error", err))
		return
	}
	if _, err := s.conn.WriteTo(payload, to); err != nil {
		s.logger.Warn("failed to send discovery message",
			slog.String("kind", msg.Kind.String()),
			slog.String("to", to.String()),
			slog.Any("error", err))
	}
}

func (s *Service) handleDatagram(b []byte, src net.Addr) {
	msg, err := s.codec.DecodeDiscovery(b)
	if err != nil {
		s.metrics.MalformedDatagrams.Inc()
		s.logger.Debug("dropping malformed datagram", slog.String("from", src.String()), slog.Any("error", err))
		return
	}
	s.metrics.Datagrams.WithLabelValues(msg.Kind.String()).Inc()
	s.handle(msg, src)
}

func (s *Service) handle(msg models.DiscoveryMessage, src net.Addr) {
	switch msg.Kind {
	case models.DiscoveryAnnounce:
		info, ok := s.learn(msg.Peer, src)
		if !ok {
			return
		}
		reply := s.self
		reply.LastSeen = time.Now().Unix()
		// src is the announcer's group port. With several nodes on one host
		// sharing it, the kernel may hand the reply to any of them; the
		// announcer still learns about us from our own periodic announce.
		s.send(models.Response(reply), src)
		s.connector.ConnectTo(info)
	case models.DiscoveryResponse:
		info, ok := s.learn(msg.Peer, src)
		if !ok {
			return
		}
		s.connector.ConnectTo(info)
	case models.DiscoveryHeartbeat:
		if msg.PeerID == s.self.ID {
			return
		}
		s.store.TouchPeer(msg.PeerID)
	}
}

// learn records a remote PeerInfo. Our own announcements echoed back by
// multicast loopback are ignored.
func (s *Service) learn(info models.PeerInfo, src net.Addr) (models.PeerInfo, bool) {
	if info.ID == s.self.ID {
		return models.PeerInfo{}, false
	}
	if udp, ok := src.(*net.UDPAddr); ok {
		addr, err := models.WithHost(info.Addr, udp.IP)
		if err != nil {
			s.logger.Debug("dropping peer with bad address", slog.String("peer", info.ID), slog.String("addr", info.Addr))
			return models.PeerInfo{}, false
		}
		info.Addr = addr
	}
	info.LastSeen = time.Now().Unix()

	s.store.UpsertPeer(info)
	s.logger.Debug("discovered peer", slog.String("peer", info.ID), slog.String("addr", info.Addr))
	return info, true
}
