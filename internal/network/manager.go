package network

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"time"

	"github.com/WendelHime/peernet/internal/decoder"
	"github.com/WendelHime/peernet/internal/metrics"
	"github.com/WendelHime/peernet/internal/p2p"
	"github.com/WendelHime/peernet/internal/shared/models"
)

func (n *PeerNetwork) acceptLoop() {
	for {
		if n.ctx.Err() != nil {
			return
		}

		if err := n.listener.SetDeadline(time.Now().Add(n.cfg.PollInterval)); err != nil {
			return
		}
		c, err := n.listener.Accept()
		if err != nil {
			if errors.Is(err, os.ErrDeadlineExceeded) {
				continue
			}
			if errors.Is(err, net.ErrClosed) {
				return
			}
			n.log.Warn("failed to accept connection", slog.Any("error", err))
			continue
		}

		n.wg.Add(1)
		go func() {
			defer n.wg.Done()
			n.handleInbound(c)
		}()
	}
}

// handleInbound runs the acceptor handshake and then becomes the reader for
// the connection.
func (n *PeerNetwork) handleInbound(c net.Conn) {
	remoteID, r, err := p2p.AcceptHandshake(c, n.id, n.cfg.ConnectionTimeout)
	n.metrics.RecordHandshake(metrics.DirectionInbound, err)
	if err != nil {
		n.log.Debug("inbound handshake failed", slog.String("remote", c.RemoteAddr().String()), slog.Any("error", err))
		c.Close()
		return
	}

	conn := p2p.NewConn(remoteID, c, r, n.cfg.ConnectionTimeout)
	if !n.register(conn, false) {
		conn.Close()
		return
	}
	n.readLoop(conn)
}

// ConnectTo dials info in the background when this node is the side that
// initiates for the pair and no connection or dial for it exists yet.
func (n *PeerNetwork) ConnectTo(info models.PeerInfo) {
	if !p2p.ShouldInitiate(n.id, info.ID) {
		return
	}

	n.connsMu.Lock()
	if n.closed {
		n.connsMu.Unlock()
		return
	}
	if _, ok := n.conns[info.ID]; ok {
		n.connsMu.Unlock()
		return
	}
	if _, ok := n.dialing[info.ID]; ok {
		n.connsMu.Unlock()
		return
	}
	n.dialing[info.ID] = struct{}{}
	n.wg.Add(1)
	n.connsMu.Unlock()

	go func() {
		defer n.wg.Done()

		conn, err := n.dial(info)
		n.metrics.RecordHandshake(metrics.DirectionOutbound, err)
		if err != nil {
			n.connsMu.Lock()
			delete(n.dialing, info.ID)
			n.connsMu.Unlock()
			// retried on the next announce
			n.log.Debug("outbound connection failed", slog.String("peer", info.ID), slog.String("addr", info.Addr), slog.Any("error", err))
			return
		}

		if !n.register(conn, true) {
			conn.Close()
			return
		}
		n.readLoop(conn)
	}()
}

func (n *PeerNetwork) dial(info models.PeerInfo) (*p2p.Conn, error) {
	d := net.Dialer{Timeout: n.cfg.ConnectionTimeout}
	c, err := d.DialContext(n.ctx, "tcp", info.Addr)
	if err != nil {
		return nil, err
	}

	r, err := p2p.InitiateHandshake(c, n.id, info.ID, n.cfg.ConnectionTimeout)
	if err != nil {
		c.Close()
		return nil, err
	}
	return p2p.NewConn(info.ID, c, r, n.cfg.ConnectionTimeout), nil
}

// register adds conn to the table. A second connection for an id that is
// already connected is refused.
func (n *PeerNetwork) register(conn *p2p.Conn, outbound bool) bool {
	id := conn.PeerID()

	n.connsMu.Lock()
	if outbound {
		delete(n.dialing, id)
	}
	if n.closed {
		n.connsMu.Unlock()
		return false
	}
	if _, ok := n.conns[id]; ok {
		n.connsMu.Unlock()
		n.log.Debug("dropping duplicate connection", slog.String("peer", id))
		return false
	}
	n.conns[id] = conn
	n.connsMu.Unlock()

	n.updatePeerGauges()
	n.log.Info("peer connected",
		slog.String("peer", id),
		slog.String("remote", conn.RemoteAddr()),
		slog.Bool("outbound", outbound))
	return true
}

// readLoop reads frames until the connection ends, then removes it.
func (n *PeerNetwork) readLoop(conn *p2p.Conn) {
	reason := metrics.ReasonReadError
	defer func() {
		n.evict(conn, reason)
	}()

	for {
		if n.ctx.Err() != nil {
			reason = metrics.ReasonLocal
			return
		}

		ready, err := conn.Poll(n.cfg.PollInterval)
		if err != nil {
			n.log.Debug("connection closed", slog.String("peer", conn.PeerID()), slog.Any("error", err))
			return
		}
		if !ready {
			continue
		}

		frame, err := conn.ReadFrame()
		if err != nil {
			if errors.Is(err, decoder.ErrFrameTooLarge) {
				reason = metrics.ReasonProtocol
			}
			n.log.Warn("failed to read frame", slog.String("peer", conn.PeerID()), slog.Any("error", err))
			return
		}

		msg, err := n.codec.DecodePeerMessage(frame)
		if err != nil {
			reason = metrics.ReasonProtocol
			n.log.Warn("failed to decode message", slog.String("peer", conn.PeerID()), slog.Any("error", err))
			return
		}

		conn.Touch(time.Now())
		n.metrics.MessagesReceived.WithLabelValues(msg.Kind.String()).Inc()

		switch msg.Kind {
		case models.PeerMessageData:
			n.deliver(conn.PeerID(), msg.Data)
		case models.PeerMessageHeartbeat:
			n.log.Debug("heartbeat received", slog.String("peer", conn.PeerID()))
		case models.PeerMessageDisconnect:
			reason = metrics.ReasonDisconnect
			n.log.Info("peer sent disconnect", slog.String("peer", conn.PeerID()))
			return
		}
	}
}

func (n *PeerNetwork) deliver(from string, payload []byte) {
	n.log.Info("received message", slog.String("peer", from), slog.Int("bytes", len(payload)))

	msg := models.Message{From: from, Payload: payload, ReceivedAt: time.Now()}
	select {
	case n.inbox <- msg:
	default:
		n.metrics.MessagesDropped.Inc()
		n.log.Warn("inbox full, dropping message", slog.String("peer", from))
	}
}

// evict removes conn if it is still the table entry for its peer and closes
// it. Entries already replaced or removed are left alone.
func (n *PeerNetwork) evict(conn *p2p.Conn, reason string) {
	id := conn.PeerID()

	n.connsMu.Lock()
	current, ok := n.conns[id]
	removed := ok && current == conn
	if removed {
		delete(n.conns, id)
	}
	n.connsMu.Unlock()

	conn.Close()
	if !removed {
		return
	}

	n.updatePeerGauges()
	n.metrics.RecordEviction(reason)
	n.log.Info("peer disconnected", slog.String("peer", id), slog.String("reason", reason))
}

// writeMessage encodes and sends one message on c.
func (n *PeerNetwork) writeMessage(c *p2p.Conn, msg models.PeerMessage) error {
	frame, err := n.codec.EncodePeerMessage(msg)
	if err != nil {
		return err
	}
	return n.writeFrame(c, msg.Kind, frame)
}

func (n *PeerNetwork) writeFrame(c *p2p.Conn, kind models.PeerMessageKind, frame []byte) error {
	if err := c.WriteFrame(frame); err != nil {
		return fmt.Errorf("%w: %w", ErrTransport, err)
	}
	n.metrics.MessagesSent.WithLabelValues(kind.String()).Inc()
	return nil
}
