package models

import "time"

// PeerInfo identifies a discovered node. Addr is its TCP listening endpoint.
type PeerInfo struct {
	ID       string
	Addr     string
	LastSeen int64 // unix seconds
}

func (p PeerInfo) LastSeenTime() time.Time {
	return time.Unix(p.LastSeen, 0)
}

type NetworkStats struct {
	PeerID          string `json:"peer_id"`
	ConnectedPeers  int    `json:"connected_peers"`
	DiscoveredPeers int    `json:"discovered_peers"`
}
