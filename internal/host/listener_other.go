//go:build !unix

package host

import (
	"context"
	"net"
)

// newListener is the non-unix fallback: reusePort is accepted but
// ignored, since SO_REUSEPORT has no portable equivalent outside the BSD
// socket family this build carves out via listener_unix.go's build tag.
func newListener(addr string, reusePort bool) (net.Listener, error) {
	var lc net.ListenConfig
	return lc.Listen(context.Background(), "tcp", addr)
}
