//go:build windows

package transport

import (
	"context"
	"net"

	"github.com/Microsoft/go-winio"
)

// Listen binds a named pipe; path is a pipe name such as
// `\\.\pipe\logic`. winio removes nothing, pipes have no stale files.
func Listen(path string) (net.Listener, error) {
	return winio.ListenPipe(path, nil)
}

func Dial(ctx context.Context, path string) (*BufferedConn, error) {
	conn, err := winio.DialPipeContext(ctx, path)
	if err != nil {
		return nil, err
	}
	return NewBufferedConn(conn), nil
}
