//go:build windows

package cluster

import (
	"errors"
	"net"
)

// ListenTCP creates a TCP listener on Windows. Port sharing is not
// available here; clustered workers bind private ports behind the
// master's reverse proxy instead.
func ListenTCP(addr string, reusePort bool) (net.Listener, error) {
	if !reusePort {
		return net.Listen("tcp", addr)
	}
	return nil, errors.New("SO_REUSEPORT is not supported on windows")
}
