package service_test

import (
	"context"
	"errors"
	"io"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"logic-server/internal/protocol"
	"logic-server/internal/service"
	"logic-server/internal/service/modules/testmod"
	"logic-server/internal/transport"
)

func startServer(t *testing.T, opts service.Options, mods ...*service.Module) (string, func()) {
	t.Helper()
	if opts.SocketPath == "" {
		opts.SocketPath = filepath.Join(t.TempDir(), "logic.sock")
	}
	if opts.RestartBackoff == 0 {
		opts.RestartBackoff = 25 * time.Millisecond
	}
	if opts.DrainTimeout == 0 {
		opts.DrainTimeout = 2 * time.Second
	}

	// Connection goroutines can outlive the test body briefly, so the
	// server logger must not be bound to t.
	srv := service.NewServer(opts, zap.NewNop())
	for _, m := range mods {
		srv.RegisterModule(m)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = srv.Serve(ctx)
	}()

	stop := func() {
		cancel()
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Error("server did not stop")
		}
	}
	return opts.SocketPath, stop
}

func dialRetry(t *testing.T, path string) *transport.BufferedConn {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
		conn, err := transport.Dial(ctx, path)
		cancel()
		if err == nil {
			return conn
		}
		if time.Now().After(deadline) {
			t.Fatalf("dial %s: %v", path, err)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func sendCall(t *testing.T, conn *transport.BufferedConn, requestID uint32, module, method, origin string, params map[string]any) {
	t.Helper()
	payload, err := protocol.EncodeCallRequest(&protocol.CallRequest{
		ModuleID:         module,
		Method:           method,
		UnifiedMsgOrigin: origin,
		Params:           params,
	})
	if err != nil {
		t.Fatalf("encode request: %v", err)
	}
	if err := conn.WriteFrame(requestID, payload); err != nil {
		t.Fatalf("write request: %v", err)
	}
}

func readResponse(t *testing.T, conn *transport.BufferedConn) (uint32, *protocol.CallResponse) {
	t.Helper()
	frame, err := conn.ReadFrame()
	if err != nil {
		t.Fatalf("read response: %v", err)
	}
	resp, err := protocol.DecodeCallResponse(frame.Payload)
	if err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return frame.RequestID, resp
}

func TestEndToEndCall(t *testing.T) {
	tm, err := testmod.New(zaptest.NewLogger(t))
	if err != nil {
		t.Fatal(err)
	}
	path, stop := startServer(t, service.Options{}, tm)
	defer stop()

	conn := dialRetry(t, path)
	defer conn.Close()

	sendCall(t, conn, 1, "test_module", "test_function", "u1", map[string]any{"value": int64(5)})
	id, resp := readResponse(t, conn)

	if id != 1 {
		t.Fatalf("request id = %d", id)
	}
	if !resp.OK || resp.ErrorMessage != "" {
		t.Fatalf("resp = %+v", resp)
	}
	if resp.UnifiedMsgOrigin != "u1" {
		t.Fatalf("origin = %q", resp.UnifiedMsgOrigin)
	}
	if got := service.IntField(resp.Data, "result"); got != 10 {
		t.Fatalf("result = %d, want 10", got)
	}
}

func TestEndToEndHandlerFailure(t *testing.T) {
	tm, err := testmod.New(zaptest.NewLogger(t))
	if err != nil {
		t.Fatal(err)
	}
	path, stop := startServer(t, service.Options{}, tm)
	defer stop()

	conn := dialRetry(t, path)
	defer conn.Close()

	sendCall(t, conn, 7, "test_module", "test_function2", "u2", map[string]any{"value": int64(5)})
	id, resp := readResponse(t, conn)

	if id != 7 || resp.OK {
		t.Fatalf("id = %d, resp = %+v", id, resp)
	}
	if resp.ErrorMessage != "This is a test error." {
		t.Fatalf("error_message = %q", resp.ErrorMessage)
	}
	if resp.UnifiedMsgOrigin != "u2" {
		t.Fatalf("origin = %q", resp.UnifiedMsgOrigin)
	}
	if resp.Data != nil {
		t.Fatalf("data = %v, want absent", resp.Data)
	}
}

func TestEndToEndUnknownModule(t *testing.T) {
	tm, err := testmod.New(zaptest.NewLogger(t))
	if err != nil {
		t.Fatal(err)
	}
	path, stop := startServer(t, service.Options{}, tm)
	defer stop()

	conn := dialRetry(t, path)
	defer conn.Close()

	sendCall(t, conn, 3, "no_such_module", "test_function", "u3", nil)
	_, resp := readResponse(t, conn)

	if resp.OK {
		t.Fatal("ok = true for unknown module")
	}
	if want := "Unknown module"; !strings.Contains(resp.ErrorMessage, want) {
		t.Fatalf("error_message = %q, want substring %q", resp.ErrorMessage, want)
	}
}

// One slow request and several fast ones on the same connection: the
// fast responses come back first, each under its own request ID.
func TestResponsesOutOfOrder(t *testing.T) {
	const fastCount = 5

	m := service.NewModule("latency", "Latency", "")
	params := service.Params()
	response := service.Response(service.Field{Name: "kind", Kind: service.KindString})
	if err := m.API("slow", func(ctx context.Context, p map[string]any) (map[string]any, error) {
		time.Sleep(300 * time.Millisecond)
		return map[string]any{"kind": "slow"}, nil
	}, params, response, true); err != nil {
		t.Fatal(err)
	}
	if err := m.API("fast", func(ctx context.Context, p map[string]any) (map[string]any, error) {
		return map[string]any{"kind": "fast"}, nil
	}, params, response, true); err != nil {
		t.Fatal(err)
	}

	path, stop := startServer(t, service.Options{}, m)
	defer stop()

	conn := dialRetry(t, path)
	defer conn.Close()

	sendCall(t, conn, 1, "latency", "slow", "req-1", nil)
	for i := uint32(2); i <= fastCount+1; i++ {
		sendCall(t, conn, i, "latency", "fast", "req-fast", nil)
	}

	firstID := uint32(0)
	seen := make(map[uint32]string)
	for i := 0; i < fastCount+1; i++ {
		id, resp := readResponse(t, conn)
		if !resp.OK {
			t.Fatalf("request %d failed: %s", id, resp.ErrorMessage)
		}
		if firstID == 0 {
			firstID = id
		}
		seen[id] = service.StringField(resp.Data, "kind")
	}

	if firstID == 1 {
		t.Fatal("slow response arrived first; dispatches are not concurrent")
	}
	if seen[1] != "slow" {
		t.Fatalf("request 1 = %q, want slow", seen[1])
	}
	for i := uint32(2); i <= fastCount+1; i++ {
		if seen[i] != "fast" {
			t.Fatalf("request %d = %q, want fast", i, seen[i])
		}
	}
}

// A corrupt stream tears down only its own connection; the server keeps
// serving new ones.
func TestMalformedStreamTearsDownConnection(t *testing.T) {
	tm, err := testmod.New(zaptest.NewLogger(t))
	if err != nil {
		t.Fatal(err)
	}
	path, stop := startServer(t, service.Options{}, tm)
	defer stop()

	// Truncated header. Wait for the server goroutine to bind the
	// socket, as dialRetry does for framed connections.
	var raw net.Conn
	deadline := time.Now().Add(2 * time.Second)
	for {
		raw, err = net.Dial("unix", path)
		if err == nil {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("dial: %v", err)
		}
		time.Sleep(10 * time.Millisecond)
	}
	if _, err := raw.Write([]byte{0x01, 0x02}); err != nil {
		t.Fatalf("write: %v", err)
	}
	raw.Close()

	// Complete frame, garbage payload: server closes the connection.
	junk := dialRetry(t, path)
	if err := junk.WriteFrame(9, []byte{0xff, 0x13, 0x37}); err != nil {
		t.Fatalf("write junk: %v", err)
	}
	if _, err := junk.ReadFrame(); !errors.Is(err, io.EOF) && !errors.Is(err, protocol.ErrTruncatedFrame) {
		t.Fatalf("read after junk = %v, want closed stream", err)
	}
	junk.Close()

	// A fresh connection still works.
	conn := dialRetry(t, path)
	defer conn.Close()
	sendCall(t, conn, 1, "test_module", "test_function", "u1", map[string]any{"value": int64(2)})
	_, resp := readResponse(t, conn)
	if !resp.OK || service.IntField(resp.Data, "result") != 4 {
		t.Fatalf("resp = %+v", resp)
	}
}

// Bind fails while the socket directory is missing; the fixed-backoff
// restart loop picks it up once the directory appears, without a new
// process or server value.
func TestRebindAfterBindFailure(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "later")
	path := filepath.Join(dir, "logic.sock")

	tm, err := testmod.New(zaptest.NewLogger(t))
	if err != nil {
		t.Fatal(err)
	}
	sockPath, stop := startServer(t, service.Options{
		SocketPath:     path,
		RestartBackoff: 25 * time.Millisecond,
	}, tm)
	defer stop()

	time.Sleep(80 * time.Millisecond)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}

	conn := dialRetry(t, sockPath)
	defer conn.Close()
	sendCall(t, conn, 1, "test_module", "test_function", "u1", map[string]any{"value": int64(3)})
	_, resp := readResponse(t, conn)
	if !resp.OK || service.IntField(resp.Data, "result") != 6 {
		t.Fatalf("resp = %+v", resp)
	}
}

// Hook failures are isolated: every hook runs regardless of earlier
// failures or panics, and shutdown hooks run on cancellation.
func TestLifecycleHookIsolation(t *testing.T) {
	var started, stopped atomic.Int32

	m := service.NewModule("hooks", "Hooks", "")
	m.OnStart(func(ctx context.Context) error {
		started.Add(1)
		return nil
	})
	m.OnStart(func(ctx context.Context) error {
		return errors.New("broken start hook")
	})
	m.OnStart(func(ctx context.Context) error {
		panic("hook panic")
	})
	m.OnStart(func(ctx context.Context) error {
		started.Add(1)
		return nil
	})
	m.OnShutdown(func(ctx context.Context) error {
		stopped.Add(1)
		return nil
	})

	path, stop := startServer(t, service.Options{}, m)
	dialRetry(t, path).Close()

	if got := started.Load(); got != 2 {
		t.Fatalf("start hooks ran %d times, want 2", got)
	}
	if got := stopped.Load(); got != 0 {
		t.Fatal("shutdown hooks ran before cancellation")
	}

	stop()
	if got := stopped.Load(); got != 1 {
		t.Fatalf("shutdown hooks ran %d times, want 1", got)
	}
}

// An in-flight dispatch survives cancellation: shutdown waits for it
// and its response is still written before the server exits.
func TestShutdownDrainsInFlight(t *testing.T) {
	m := service.NewModule("drain", "Drain", "")
	if err := m.API("slow", func(ctx context.Context, p map[string]any) (map[string]any, error) {
		time.Sleep(150 * time.Millisecond)
		return map[string]any{"done": true}, nil
	}, service.Params(), service.Response(service.Field{Name: "done", Kind: service.KindBool}), true); err != nil {
		t.Fatal(err)
	}

	path, stop := startServer(t, service.Options{DrainTimeout: 2 * time.Second}, m)

	conn := dialRetry(t, path)
	defer conn.Close()

	sendCall(t, conn, 1, "drain", "slow", "u1", nil)
	time.Sleep(30 * time.Millisecond)

	stopDone := make(chan struct{})
	go func() {
		stop()
		close(stopDone)
	}()

	id, resp := readResponse(t, conn)
	if id != 1 || !resp.OK || !service.BoolField(resp.Data, "done") {
		t.Fatalf("id = %d, resp = %+v", id, resp)
	}
	<-stopDone
}
