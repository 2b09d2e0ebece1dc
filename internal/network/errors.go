package network

import "errors"

var (
	// ErrInvalidInput is returned for empty or oversized payloads.
	ErrInvalidInput = errors.New("invalid input")
	// ErrNotConnected is returned when no connection exists for the peer.
	ErrNotConnected = errors.New("peer not connected")
	// ErrNetworkClosed is returned by mutating calls after Shutdown.
	ErrNetworkClosed = errors.New("network closed")
	// ErrTransport wraps socket failures while sending.
	ErrTransport = errors.New("transport error")
)
