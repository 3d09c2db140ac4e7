//go:build unix

package host

import (
	"context"
	"net"
	"syscall"

	"golang.org/x/sys/unix"
)

// newListener opens a TCP listener on addr. When reusePort is set it
// sets SO_REUSEPORT on the socket via a net.ListenConfig.Control
// callback, the idiomatic Go equivalent of the accept-time socket tuning
// spec.md section 3's expansion attributes to the original C++
// HttpWorker/HttpConnection sources — several processes or goroutines
// can each own a listener bound to the same address, and the kernel load
// balances accepts between them.
func newListener(addr string, reusePort bool) (net.Listener, error) {
	lc := net.ListenConfig{}
	if reusePort {
		lc.Control = func(_, _ string, c syscall.RawConn) error {
			var sockErr error
			err := c.Control(func(fd uintptr) {
				sockErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEPORT, 1)
			})
			if err != nil {
				return err
			}
			return sockErr
		}
	}
	return lc.Listen(context.Background(), "tcp", addr)
}
