package models

import (
	"errors"
	"net"
	"strconv"
)

var ErrInvalidAddr = errors.New("invalid address")

// ParseAddr validates a host:port endpoint and returns its parts.
func ParseAddr(addr string) (net.IP, uint16, error) {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return nil, 0, ErrInvalidAddr
	}

	ip := net.ParseIP(host)
	if ip == nil {
		return nil, 0, ErrInvalidAddr
	}

	port, err := strconv.ParseUint(portStr, 10, 16)
	if err != nil || port == 0 {
		return nil, 0, ErrInvalidAddr
	}

	return ip, uint16(port), nil
}

// WithHost replaces an unspecified host (0.0.0.0, ::) in addr with ip.
func WithHost(addr string, ip net.IP) (string, error) {
	host, port, err := ParseAddr(addr)
	if err != nil {
		return "", err
	}
	if !host.IsUnspecified() || ip == nil {
		return addr, nil
	}
	return net.JoinHostPort(ip.String(), strconv.Itoa(int(port))), nil
}
