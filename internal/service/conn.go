package service

import (
	"context"
	"errors"
	"io"

	"go.uber.org/zap"

	"logic-server/internal/protocol"
	"logic-server/internal/transport"
)

// handleConn owns one accepted connection. Frames are read in arrival
// order but each decoded request dispatches in its own goroutine, so
// responses complete and are written in whatever order handlers finish.
// The caller matches them up by request ID.
func (s *Server) handleConn(ctx context.Context, conn *transport.BufferedConn) {
	defer conn.Close()

	for {
		frame, err := conn.ReadFrame()
		if err != nil {
			if errors.Is(err, io.EOF) {
				s.logger.Debug("connection closed")
			} else {
				s.logger.Warn("connection read failed",
					zap.String("reason", err.Error()),
				)
			}
			return
		}

		req, err := protocol.DecodeCallRequest(frame.Payload)
		if err != nil {
			// Undecodable payload means the stream itself is suspect.
			s.logger.Warn("malformed request payload",
				zap.Uint32("request_id", frame.RequestID),
				zap.String("reason", err.Error()),
			)
			return
		}

		s.inflight.Add(1)
		go func(requestID uint32, req *protocol.CallRequest) {
			defer s.inflight.Done()
			s.respond(ctx, conn, requestID, req)
		}(frame.RequestID, req)
	}
}

func (s *Server) respond(ctx context.Context, conn *transport.BufferedConn, requestID uint32, req *protocol.CallRequest) {
	resp := s.dispatcher.Dispatch(ctx, req)

	payload, err := protocol.EncodeCallResponse(resp)
	if err != nil {
		s.logger.Error("encode response failed",
			zap.Uint32("request_id", requestID),
			zap.String("module", req.ModuleID),
			zap.String("method", req.Method),
			zap.String("reason", err.Error()),
		)
		return
	}

	// Best effort: the peer may already be gone.
	if err := conn.WriteFrame(requestID, payload); err != nil {
		s.logger.Warn("write response failed",
			zap.Uint32("request_id", requestID),
			zap.String("module", req.ModuleID),
			zap.String("method", req.Method),
			zap.String("reason", err.Error()),
		)
	}
}
