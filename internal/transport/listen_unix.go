//go:build !windows

package transport

import (
	"context"
	"fmt"
	"net"
	"os"
)

// Listen binds a unix domain socket at path, removing any stale socket
// file left behind by a previous crash.
func Listen(path string) (net.Listener, error) {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("remove stale socket %s: %w", path, err)
	}
	return net.Listen("unix", path)
}

func Dial(ctx context.Context, path string) (*BufferedConn, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "unix", path)
	if err != nil {
		return nil, err
	}
	return NewBufferedConn(conn), nil
}
