package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"logic-server/internal/transport"
)

const (
	DefaultSocketPath = "/run/logic/logic.sock"

	defaultRestartBackoff = time.Second
	defaultDrainTimeout   = 5 * time.Second
)

type Options struct {
	SocketPath string

	// RestartBackoff is the fixed sleep between listener crashes and the
	// next bind attempt. Retries are unbounded and the interval does not
	// grow; transient bind races are expected to clear quickly.
	RestartBackoff time.Duration

	// DrainTimeout bounds how long shutdown waits for in-flight
	// dispatches before running shutdown hooks anyway.
	DrainTimeout time.Duration

	// BlockingSlots caps concurrently running non-async handlers.
	BlockingSlots int64

	Conn transport.ConnOptions
}

// Server owns the socket, the accept loop and module lifecycles. One
// value is constructed at process start, modules register before Serve,
// and Serve runs until its context is cancelled.
type Server struct {
	opts       Options
	logger     *zap.Logger
	registry   *Registry
	dispatcher *Dispatcher

	inflight sync.WaitGroup
}

func NewServer(opts Options, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.SocketPath == "" {
		opts.SocketPath = DefaultSocketPath
	}
	if opts.RestartBackoff <= 0 {
		opts.RestartBackoff = defaultRestartBackoff
	}
	if opts.DrainTimeout <= 0 {
		opts.DrainTimeout = defaultDrainTimeout
	}
	reg := NewRegistry(logger)
	return &Server{
		opts:       opts,
		logger:     logger,
		registry:   reg,
		dispatcher: NewDispatcher(reg, logger, opts.BlockingSlots),
	}
}

func (s *Server) Registry() *Registry {
	return s.registry
}

// RegisterModule must be called before Serve.
func (s *Server) RegisterModule(m *Module) {
	s.registry.Register(m)
}

// Serve runs start hooks, then binds and accepts until ctx is
// cancelled. A listener crash re-enters the bind after a fixed backoff;
// only cancellation reaches the shutdown path, which drains in-flight
// dispatches for a bounded time and runs shutdown hooks.
func (s *Server) Serve(ctx context.Context) error {
	s.runHooks(ctx, "start", func(m *Module) []Hook { return m.startHooks })

	for {
		err := s.listenAndServe(ctx)
		if ctx.Err() != nil {
			break
		}
		s.logger.Error("listener failed, restarting",
			zap.String("socket", s.opts.SocketPath),
			zap.String("reason", err.Error()),
			zap.Duration("backoff", s.opts.RestartBackoff),
		)
		select {
		case <-time.After(s.opts.RestartBackoff):
		case <-ctx.Done():
		}
		if ctx.Err() != nil {
			break
		}
	}

	s.logger.Info("shutting down", zap.String("socket", s.opts.SocketPath))
	s.drain()
	s.runHooks(context.WithoutCancel(ctx), "shutdown", func(m *Module) []Hook { return m.shutdownHooks })
	return nil
}

func (s *Server) listenAndServe(ctx context.Context) error {
	ln, err := transport.Listen(s.opts.SocketPath)
	if err != nil {
		return fmt.Errorf("bind %s: %w", s.opts.SocketPath, err)
	}
	defer ln.Close()

	stopped := make(chan struct{})
	defer close(stopped)
	go func() {
		select {
		case <-ctx.Done():
		case <-stopped:
		}
		_ = ln.Close()
	}()

	s.logger.Info("serving", zap.String("socket", s.opts.SocketPath))

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("accept: %w", err)
		}
		go s.handleConn(ctx, transport.NewBufferedConnWithOptions(conn, s.opts.Conn))
	}
}

// drain waits for outstanding dispatch goroutines, but only up to the
// configured bound: shutdown hooks must not be blocked forever by a
// stuck handler.
func (s *Server) drain() {
	done := make(chan struct{})
	go func() {
		s.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(s.opts.DrainTimeout):
		s.logger.Warn("proceeding with dispatches still in flight",
			zap.Duration("waited", s.opts.DrainTimeout),
		)
	}
}

// runHooks executes every module's hooks in registration order, hook
// order within a module. Each failure is logged independently; the pass
// never stops early, one module's broken hook does not block the rest.
func (s *Server) runHooks(ctx context.Context, phase string, pick func(*Module) []Hook) {
	for _, m := range s.registry.Modules() {
		for i, hook := range pick(m) {
			if err := runHook(ctx, hook); err != nil {
				s.logger.Warn("lifecycle hook failed",
					zap.String("phase", phase),
					zap.String("module", m.ID),
					zap.Int("hook", i),
					zap.String("reason", err.Error()),
				)
			}
		}
	}
}

func runHook(ctx context.Context, hook Hook) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return hook(ctx)
}
