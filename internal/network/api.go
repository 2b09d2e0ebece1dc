package network

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/WendelHime/peernet/internal/metrics"
	"github.com/WendelHime/peernet/internal/p2p"
	"github.com/WendelHime/peernet/internal/shared/models"
)

func validatePayload(data []byte) error {
	if len(data) == 0 {
		return fmt.Errorf("%w: empty payload", ErrInvalidInput)
	}
	if len(data) > models.MaxPayloadSize {
		return fmt.Errorf("%w: payload of %d bytes exceeds %d", ErrInvalidInput, len(data), models.MaxPayloadSize)
	}
	return nil
}

// SendToPeer sends data to one connected peer. A failed write is returned as
// ErrTransport; the connection is left for the reader or heartbeat to prune.
func (n *PeerNetwork) SendToPeer(peerID string, data []byte) error {
	if err := validatePayload(data); err != nil {
		return err
	}

	n.connsMu.Lock()
	if n.closed {
		n.connsMu.Unlock()
		return ErrNetworkClosed
	}
	c, ok := n.conns[peerID]
	n.connsMu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotConnected, peerID)
	}

	if err := n.writeMessage(c, models.Data(data)); err != nil {
		n.metrics.SendFailures.Inc()
		return err
	}
	return nil
}

// Broadcast sends data to every connected peer and returns how many sends
// succeeded.
func (n *PeerNetwork) Broadcast(data []byte) (int, error) {
	result, err := n.BroadcastDetailed(data)
	if err != nil {
		return 0, err
	}
	return result.SuccessfulCount(), nil
}

// BroadcastDetailed sends data to every connected peer. Every peer is tried;
// those whose send failed are removed from the table before returning.
func (n *PeerNetwork) BroadcastDetailed(data []byte) (BroadcastResult, error) {
	if err := validatePayload(data); err != nil {
		return BroadcastResult{}, err
	}
	frame, err := n.codec.EncodePeerMessage(models.Data(data))
	if err != nil {
		return BroadcastResult{}, err
	}

	start := time.Now()
	result := newBroadcastResult()
	failed := make([]*p2p.Conn, 0)

	// writes happen under connsMu so no table change interleaves a broadcast
	n.connsMu.Lock()
	if n.closed {
		n.connsMu.Unlock()
		return BroadcastResult{}, ErrNetworkClosed
	}
	for id, c := range n.conns {
		err := n.writeFrame(c, models.PeerMessageData, frame)
		result.Results[id] = err
		if err != nil {
			delete(n.conns, id)
			failed = append(failed, c)
		}
	}
	n.connsMu.Unlock()

	for _, c := range failed {
		c.Close()
		n.metrics.RecordEviction(metrics.ReasonSendFailed)
		n.log.Info("evicting peer after failed send", slog.String("peer", c.PeerID()), slog.Any("error", result.Results[c.PeerID()]))
	}
	n.updatePeerGauges()
	n.metrics.RecordBroadcast(len(failed), time.Since(start))

	return result, nil
}

// GetConnectedPeers returns the connected peer ids, sorted.
func (n *PeerNetwork) GetConnectedPeers() []string {
	n.connsMu.Lock()
	ids := make([]string, 0, len(n.conns))
	for id := range n.conns {
		ids = append(ids, id)
	}
	n.connsMu.Unlock()

	sort.Strings(ids)
	return ids
}

func (n *PeerNetwork) GetPeerCount() int {
	n.connsMu.Lock()
	defer n.connsMu.Unlock()
	return len(n.conns)
}

func (n *PeerNetwork) IsConnectedTo(peerID string) bool {
	n.connsMu.Lock()
	defer n.connsMu.Unlock()
	_, ok := n.conns[peerID]
	return ok
}

// GetPeerInfo returns what discovery knows about a peer.
func (n *PeerNetwork) GetPeerInfo(peerID string) (models.PeerInfo, bool) {
	n.peersMu.RLock()
	defer n.peersMu.RUnlock()
	info, ok := n.peers[peerID]
	return info, ok
}

// GetAllDiscoveredPeers returns every discovered peer, sorted by id.
func (n *PeerNetwork) GetAllDiscoveredPeers() []models.PeerInfo {
	n.peersMu.RLock()
	peers := make([]models.PeerInfo, 0, len(n.peers))
	for _, info := range n.peers {
		peers = append(peers, info)
	}
	n.peersMu.RUnlock()

	sort.Slice(peers, func(i, j int) bool { return peers[i].ID < peers[j].ID })
	return peers
}

func (n *PeerNetwork) GetNetworkStats() models.NetworkStats {
	n.peersMu.RLock()
	defer n.peersMu.RUnlock()
	n.connsMu.Lock()
	defer n.connsMu.Unlock()

	return models.NetworkStats{
		PeerID:          n.id,
		ConnectedPeers:  len(n.conns),
		DiscoveredPeers: len(n.peers),
	}
}

// DisconnectPeer removes the connection to peerID after a best-effort
// Disconnect message.
func (n *PeerNetwork) DisconnectPeer(peerID string) error {
	n.connsMu.Lock()
	if n.closed {
		n.connsMu.Unlock()
		return ErrNetworkClosed
	}
	c, ok := n.conns[peerID]
	if !ok {
		n.connsMu.Unlock()
		return fmt.Errorf("%w: %s", ErrNotConnected, peerID)
	}
	delete(n.conns, peerID)
	n.connsMu.Unlock()

	if err := n.writeMessage(c, models.Disconnect); err != nil {
		n.log.Debug("failed to send disconnect", slog.String("peer", peerID), slog.Any("error", err))
	}
	c.Close()

	n.updatePeerGauges()
	n.metrics.RecordEviction(metrics.ReasonLocal)
	n.log.Info("disconnected peer", slog.String("peer", peerID))
	return nil
}

func (n *PeerNetwork) SendText(peerID, text string) error {
	return n.SendToPeer(peerID, []byte(text))
}

func (n *PeerNetwork) BroadcastText(text string) (int, error) {
	return n.Broadcast([]byte(text))
}

func (n *PeerNetwork) BroadcastTextDetailed(text string) (BroadcastResult, error) {
	return n.BroadcastDetailed([]byte(text))
}

func (n *PeerNetwork) HasPeers() bool {
	return n.GetPeerCount() > 0
}

// WaitForPeers blocks until at least count peers are connected or ctx ends.
func (n *PeerNetwork) WaitForPeers(ctx context.Context, count int) error {
	ticker := time.NewTicker(n.cfg.PollInterval)
	defer ticker.Stop()

	for {
		if n.GetPeerCount() >= count {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-n.ctx.Done():
			return ErrNetworkClosed
		case <-ticker.C:
		}
	}
}
