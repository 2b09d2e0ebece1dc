package network

import "time"

// Protocol constants shared by every node on the LAN.
const (
	DefaultMulticastAddr     = "239.255.42.1:8888"
	DefaultDiscoveryInterval = 5 * time.Second
	DefaultConnectionTimeout = 10 * time.Second
	DefaultHeartbeatInterval = 30 * time.Second
	DefaultReadTimeout       = time.Second
	DefaultPollInterval      = 100 * time.Millisecond
	DefaultInboxSize         = 256
)

type Config struct {
	// PeerID is generated when empty.
	PeerID string
	// ListenAddr is the TCP data listener. Port 0 picks a free port.
	ListenAddr    string
	MulticastAddr string

	DiscoveryInterval time.Duration
	ConnectionTimeout time.Duration
	// HeartbeatInterval also sets the staleness threshold, at twice its value.
	HeartbeatInterval time.Duration
	ReadTimeout       time.Duration
	PollInterval      time.Duration

	// InboxSize is the buffer of the Messages channel.
	InboxSize int

	// DisableDiscovery skips the multicast socket; peers are then only
	// reachable through ConnectTo.
	DisableDiscovery bool
}

func DefaultConfig() Config {
	return Config{
		ListenAddr:        "0.0.0.0:0",
		MulticastAddr:     DefaultMulticastAddr,
		DiscoveryInterval: DefaultDiscoveryInterval,
		ConnectionTimeout: DefaultConnectionTimeout,
		HeartbeatInterval: DefaultHeartbeatInterval,
		ReadTimeout:       DefaultReadTimeout,
		PollInterval:      DefaultPollInterval,
		InboxSize:         DefaultInboxSize,
	}
}

// withDefaults fills zero values from DefaultConfig.
func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.ListenAddr == "" {
		c.ListenAddr = d.ListenAddr
	}
	if c.MulticastAddr == "" {
		c.MulticastAddr = d.MulticastAddr
	}
	if c.DiscoveryInterval <= 0 {
		c.DiscoveryInterval = d.DiscoveryInterval
	}
	if c.ConnectionTimeout <= 0 {
		c.ConnectionTimeout = d.ConnectionTimeout
	}
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = d.HeartbeatInterval
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = d.ReadTimeout
	}
	if c.PollInterval <= 0 {
		c.PollInterval = d.PollInterval
	}
	if c.InboxSize <= 0 {
		c.InboxSize = d.InboxSize
	}
	return c
}

// StaleAfter is how long a connection may stay silent before it is evicted.
func (c Config) StaleAfter() time.Duration {
	return 2 * c.HeartbeatInterval
}
