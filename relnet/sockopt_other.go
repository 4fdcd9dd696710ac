//go:build !linux

package relnet

import (
	"errors"
	"fmt"
	"net"
	"syscall"
)

// The don't fragment flag is only controlled on Linux. Elsewhere probes larger than the path MTU
// are lost instead of refused and fail after MTU_PROBE_ATTEMPTS.
func setDontFragment(conn *net.UDPConn, on bool) error {
	return nil
}

// Classifies a socket error. Errors the sender recovers from return false without an error:
// the remote is unreachable, the datagram exceeds the link MTU or the socket was closed.
func classifySendError(err error) (bool, error) {
	if errors.Is(err, net.ErrClosed) {
		return false, nil
	}

	switch {
	case errors.Is(err, syscall.ECONNREFUSED), errors.Is(err, syscall.ECONNRESET), errors.Is(err, syscall.EMSGSIZE):
		return false, nil
	case errors.Is(err, syscall.ENOBUFS):
		return false, fmt.Errorf("%w: %v", ErrSendBufferFull, err)
	default:
		return false, err
	}
}
