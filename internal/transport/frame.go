package transport

import (
	"encoding/binary"
	"fmt"
	"io"

	"logic-server/internal/protocol"
)

const frameHeaderSize = 8

// Frame is one wire unit: a caller-assigned correlation ID followed by a
// length-prefixed binary payload. Both header fields are big-endian.
type Frame struct {
	RequestID uint32
	Payload   []byte
}

// ReadFrame reads the next frame from r. A clean close at a frame
// boundary returns io.EOF; a close inside a frame returns
// protocol.ErrTruncatedFrame so the caller can tell the two apart.
func ReadFrame(r io.Reader, maxPayload uint32) (Frame, error) {
	var header [frameHeaderSize]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		if err == io.EOF {
			return Frame{}, io.EOF
		}
		return Frame{}, fmt.Errorf("%w: header: %v", protocol.ErrTruncatedFrame, err)
	}

	requestID := binary.BigEndian.Uint32(header[:4])
	size := binary.BigEndian.Uint32(header[4:])
	if size > maxPayload {
		return Frame{}, fmt.Errorf("%w: %d bytes (limit %d)", protocol.ErrFrameTooLarge, size, maxPayload)
	}

	payload := make([]byte, size)
	if _, err := io.ReadFull(r, payload); err != nil {
		return Frame{}, fmt.Errorf("%w: payload: %v", protocol.ErrTruncatedFrame, err)
	}
	return Frame{RequestID: requestID, Payload: payload}, nil
}

// WriteFrame writes header and payload as one frame. It does not
// serialize against other writers; BufferedConn does.
func WriteFrame(w io.Writer, requestID uint32, payload []byte) error {
	var header [frameHeaderSize]byte
	binary.BigEndian.PutUint32(header[:4], requestID)
	binary.BigEndian.PutUint32(header[4:], uint32(len(payload)))

	if _, err := w.Write(header[:]); err != nil {
		return err
	}
	_, err := w.Write(payload)
	return err
}
