//go:build linux

package relnet

import (
	"errors"
	"fmt"
	"net"
	"syscall"

	"golang.org/x/sys/unix"
)

// Sets or clears the don't fragment flag of the socket. With the flag set the kernel refuses
// datagrams larger than the known path MTU instead of fragmenting them.
func setDontFragment(conn *net.UDPConn, on bool) error {
	raw, err := conn.SyscallConn()
	if err != nil {
		return err
	}

	v4, v6 := unix.IP_PMTUDISC_DONT, unix.IPV6_PMTUDISC_DONT
	if on {
		v4, v6 = unix.IP_PMTUDISC_DO, unix.IPV6_PMTUDISC_DO
	}

	var opErr error
	err = raw.Control(func(fd uintptr) {
		err4 := unix.SetsockoptInt(int(fd), unix.IPPROTO_IP, unix.IP_MTU_DISCOVER, v4)
		err6 := unix.SetsockoptInt(int(fd), unix.IPPROTO_IPV6, unix.IPV6_MTU_DISCOVER, v6)

		// A socket bound to one family rejects the option of the other.
		if err4 != nil && err6 != nil {
			opErr = err4
		}
	})
	if err != nil {
		return err
	}

	return opErr
}

// Classifies a socket error. Errors the sender recovers from return false without an error:
// the remote is unreachable, the datagram exceeds the link MTU or the socket was closed.
func classifySendError(err error) (bool, error) {
	if errors.Is(err, net.ErrClosed) {
		return false, nil
	}

	var errno syscall.Errno
	if !errors.As(err, &errno) {
		return false, err
	}

	switch errno {
	case unix.ECONNREFUSED, unix.ECONNRESET, unix.EMSGSIZE, unix.EHOSTUNREACH, unix.ENETUNREACH:
		return false, nil
	case unix.EAGAIN, unix.ENOBUFS:
		return false, fmt.Errorf("%w: %v", ErrSendBufferFull, err)
	default:
		return false, err
	}
}
