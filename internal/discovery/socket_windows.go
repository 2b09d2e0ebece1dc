//go:build windows

package discovery

import (
	"syscall"

	"golang.org/x/sys/windows"
)

// Windows has no SO_REUSEPORT; SO_REUSEADDR alone shares the port.
func reusePort(network, address string, c syscall.RawConn) error {
	var optErr error
	err := c.Control(func(fd uintptr) {
		optErr = windows.SetsockoptInt(windows.Handle(fd), windows.SOL_SOCKET, windows.SO_REUSEADDR, 1)
	})
	if err != nil {
		return err
	}
	return optErr
}
