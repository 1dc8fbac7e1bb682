// Package testmod exercises the full call path: schema checks,
// lifecycle hooks, the module context map, and the failure conversion.
package testmod

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"logic-server/internal/service"
)

const ModuleID = "test_module"

type initializedKey struct{}

func New(logger *zap.Logger) (*service.Module, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	m := service.NewModule(ModuleID, "Test Module", "Doubles values and fails on demand.")

	m.OnStart(func(ctx context.Context) error {
		logger.Info("test module initializing")
		m.SetContext(initializedKey{}, true)
		return nil
	})
	m.OnShutdown(func(ctx context.Context) error {
		logger.Info("test module cleaning up")
		m.SetContext(initializedKey{}, false)
		return nil
	})

	params := service.Params(service.Field{Name: "value", Kind: service.KindInt})
	response := service.Response(service.Field{Name: "result", Kind: service.KindInt})

	if err := m.API("test_function", doubleValue, params, response, true); err != nil {
		return nil, err
	}
	if err := m.API("test_function2", alwaysFails, params, response, true); err != nil {
		return nil, err
	}
	return m, nil
}

// Initialized reports whether the start hook has run.
func Initialized(m *service.Module) bool {
	v, ok := m.Context(initializedKey{})
	return ok && v == true
}

func doubleValue(ctx context.Context, params map[string]any) (map[string]any, error) {
	return map[string]any{"result": service.IntField(params, "value") * 2}, nil
}

func alwaysFails(ctx context.Context, params map[string]any) (map[string]any, error) {
	return nil, errors.New("This is a test error.")
}
