package network

import (
	"log/slog"
	"time"

	"github.com/WendelHime/peernet/internal/metrics"
	"github.com/WendelHime/peernet/internal/p2p"
	"github.com/WendelHime/peernet/internal/shared/models"
)

func (n *PeerNetwork) heartbeatLoop() {
	ticker := time.NewTicker(n.cfg.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-n.ctx.Done():
			return
		case now := <-ticker.C:
			n.checkLiveness(now)
			if n.discovery != nil {
				n.discovery.Heartbeat()
			}
		}
	}
}

// checkLiveness evicts connections silent for longer than StaleAfter and
// sends a Heartbeat to the rest. A failed heartbeat evicts too.
func (n *PeerNetwork) checkLiveness(now time.Time) {
	threshold := n.cfg.StaleAfter()
	stale := make([]*p2p.Conn, 0)
	failed := make([]*p2p.Conn, 0)

	n.connsMu.Lock()
	for id, c := range n.conns {
		if c.IsStale(now, threshold) {
			delete(n.conns, id)
			stale = append(stale, c)
			continue
		}
		if err := n.writeMessage(c, models.Heartbeat); err != nil {
			delete(n.conns, id)
			failed = append(failed, c)
		}
	}
	n.connsMu.Unlock()

	for _, c := range stale {
		c.Close()
		n.metrics.RecordEviction(metrics.ReasonStale)
		n.log.Info("evicting stale peer",
			slog.String("peer", c.PeerID()),
			slog.Duration("silent_for", now.Sub(c.LastActivity())))
	}
	for _, c := range failed {
		c.Close()
		n.metrics.RecordEviction(metrics.ReasonSendFailed)
		n.log.Info("evicting peer after failed heartbeat", slog.String("peer", c.PeerID()))
	}
	n.updatePeerGauges()
}
