package service

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"logic-server/internal/protocol"
)

const defaultBlockingSlots = 16

// Dispatcher resolves a call against the registry, validates both sides
// of the schema contract and invokes the handler. Every failure becomes
// an ok:false response; nothing escapes to the connection handler, so a
// bad request can never take the connection or the server down with it.
type Dispatcher struct {
	registry *Registry
	logger   *zap.Logger
	blocking *semaphore.Weighted
}

func NewDispatcher(reg *Registry, logger *zap.Logger, blockingSlots int64) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if blockingSlots <= 0 {
		blockingSlots = defaultBlockingSlots
	}
	return &Dispatcher{
		registry: reg,
		logger:   logger,
		blocking: semaphore.NewWeighted(blockingSlots),
	}
}

func (d *Dispatcher) Dispatch(ctx context.Context, req *protocol.CallRequest) *protocol.CallResponse {
	meta, err := d.registry.Resolve(req.ModuleID, req.Method)
	if err != nil {
		msg := "Unknown method: " + req.Method
		if errors.Is(err, ErrUnknownModule) {
			msg = "Unknown module: " + req.ModuleID
		}
		d.logger.Warn("resolve failed",
			zap.String("module", req.ModuleID),
			zap.String("method", req.Method),
			zap.String("reason", err.Error()),
		)
		return failure(req, msg)
	}

	if err := meta.Params.Validate(req.Params); err != nil {
		return failure(req, fmt.Sprintf("Invalid params for %s.%s: %v", req.ModuleID, req.Method, err))
	}

	result, err := d.invoke(ctx, meta, req.Params)
	if err != nil {
		d.logger.Warn("handler failed",
			zap.String("module", req.ModuleID),
			zap.String("method", req.Method),
			zap.String("reason", err.Error()),
		)
		return failure(req, err.Error())
	}

	if err := meta.Response.Validate(result); err != nil {
		d.logger.Warn("handler broke its response contract",
			zap.String("module", req.ModuleID),
			zap.String("method", req.Method),
			zap.String("reason", err.Error()),
		)
		return failure(req, fmt.Sprintf("Response type mismatch for %s.%s: %v", req.ModuleID, req.Method, err))
	}

	return &protocol.CallResponse{
		OK:               true,
		UnifiedMsgOrigin: req.UnifiedMsgOrigin,
		Data:             result,
		ErrorMessage:     "",
	}
}

// invoke runs the handler, converting panics to errors. Non-async
// handlers are assumed to block; they hold one of a bounded number of
// slots so slow synchronous work cannot starve unrelated requests of
// scheduler time without limit.
func (d *Dispatcher) invoke(ctx context.Context, meta *ApiMeta, params map[string]any) (result map[string]any, err error) {
	defer func() {
		if r := recover(); r != nil {
			result, err = nil, fmt.Errorf("%v", r)
		}
	}()

	if !meta.Async {
		if err := d.blocking.Acquire(ctx, 1); err != nil {
			return nil, err
		}
		defer d.blocking.Release(1)
	}
	return meta.Handler(ctx, params)
}

func failure(req *protocol.CallRequest, msg string) *protocol.CallResponse {
	return &protocol.CallResponse{
		OK:               false,
		UnifiedMsgOrigin: req.UnifiedMsgOrigin,
		ErrorMessage:     msg,
	}
}
