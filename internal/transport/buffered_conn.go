package transport

import (
	"bufio"
	"net"
	"sync"
)

const (
	defaultBufferSize = 32 * 1024
	defaultMaxPayload = 16 * 1024 * 1024
)

type ConnOptions struct {
	ReadBufferSize  int
	WriteBufferSize int
	MaxPayload      uint32
}

// BufferedConn frames a stream connection. Reads are single-consumer;
// writes from concurrently completing dispatches are serialized by
// writeMu so two responses can never interleave their bytes.
type BufferedConn struct {
	conn       net.Conn
	reader     *bufio.Reader
	writer     *bufio.Writer
	maxPayload uint32
	writeMu    sync.Mutex
}

func NewBufferedConn(conn net.Conn) *BufferedConn {
	return NewBufferedConnWithOptions(conn, ConnOptions{})
}

func NewBufferedConnWithOptions(conn net.Conn, opts ConnOptions) *BufferedConn {
	if opts.ReadBufferSize <= 0 {
		opts.ReadBufferSize = defaultBufferSize
	}
	if opts.WriteBufferSize <= 0 {
		opts.WriteBufferSize = defaultBufferSize
	}
	if opts.MaxPayload == 0 {
		opts.MaxPayload = defaultMaxPayload
	}
	return &BufferedConn{
		conn:       conn,
		reader:     bufio.NewReaderSize(conn, opts.ReadBufferSize),
		writer:     bufio.NewWriterSize(conn, opts.WriteBufferSize),
		maxPayload: opts.MaxPayload,
	}
}

func (c *BufferedConn) ReadFrame() (Frame, error) {
	return ReadFrame(c.reader, c.maxPayload)
}

func (c *BufferedConn) WriteFrame(requestID uint32, payload []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := WriteFrame(c.writer, requestID, payload); err != nil {
		return err
	}
	return c.writer.Flush()
}

func (c *BufferedConn) RemoteAddr() net.Addr {
	return c.conn.RemoteAddr()
}

func (c *BufferedConn) Close() error {
	return c.conn.Close()
}
