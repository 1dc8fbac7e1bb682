package service

import (
	"context"
	"fmt"
	"sync"
)

// Handler executes one call. Params has already passed the method's
// parameter descriptor; the returned map must satisfy the response
// descriptor. Handlers may run concurrently with themselves and must
// guard any state they share.
type Handler func(ctx context.Context, params map[string]any) (map[string]any, error)

// Hook is a start or shutdown callback. Hook failures are logged and
// never abort the lifecycle phase they run in.
type Hook func(ctx context.Context) error

// ApiMeta binds one method name to its handler and schemas. Async marks
// handlers that cooperate with the scheduler on their own; handlers
// registered with Async false are assumed to block and are admitted
// through the dispatcher's bounded slot pool.
type ApiMeta struct {
	MethodName string
	Handler    Handler
	Params     Descriptor
	Response   Descriptor
	Async      bool
}

// Module is one plugin unit: a unique ID, its method table in
// registration order, lifecycle hooks, and a context map its own hooks
// and handlers use to pass state to each other.
type Module struct {
	ID          string
	Name        string
	Description string

	apis  map[string]*ApiMeta
	order []string

	startHooks    []Hook
	shutdownHooks []Hook

	ctxMu   sync.RWMutex
	context map[any]any
}

func NewModule(id, name, description string) *Module {
	return &Module{
		ID:          id,
		Name:        name,
		Description: description,
		apis:        make(map[string]*ApiMeta),
		context:     make(map[any]any),
	}
}

// API registers one method on the module. Descriptor root kinds are
// checked here so a mismatch fails at bootstrap, not per call.
func (m *Module) API(name string, h Handler, params, response Descriptor, async bool) error {
	return m.addAPI(ApiMeta{
		MethodName: name,
		Handler:    h,
		Params:     params,
		Response:   response,
		Async:      async,
	})
}

func (m *Module) addAPI(meta ApiMeta) error {
	if meta.MethodName == "" {
		return fmt.Errorf("module %s: empty method name", m.ID)
	}
	if meta.Handler == nil {
		return fmt.Errorf("module %s: method %s has no handler", m.ID, meta.MethodName)
	}
	if meta.Params.Root != RootParams {
		return fmt.Errorf("module %s: method %s: %s descriptor used for params", m.ID, meta.MethodName, meta.Params.Root)
	}
	if meta.Response.Root != RootResponse {
		return fmt.Errorf("module %s: method %s: %s descriptor used for response", m.ID, meta.MethodName, meta.Response.Root)
	}
	if _, exists := m.apis[meta.MethodName]; exists {
		return fmt.Errorf("module %s: method %s already registered", m.ID, meta.MethodName)
	}
	if m.apis == nil {
		m.apis = make(map[string]*ApiMeta)
	}
	m.apis[meta.MethodName] = &meta
	m.order = append(m.order, meta.MethodName)
	return nil
}

func (m *Module) OnStart(h Hook) {
	m.startHooks = append(m.startHooks, h)
}

func (m *Module) OnShutdown(h Hook) {
	m.shutdownHooks = append(m.shutdownHooks, h)
}

// SetContext stores a value under a key for the module's own hooks and
// handlers. Keys follow the context.Context convention: unexported
// per-module key types avoid collisions.
func (m *Module) SetContext(key, value any) {
	m.ctxMu.Lock()
	defer m.ctxMu.Unlock()
	if m.context == nil {
		m.context = make(map[any]any)
	}
	m.context[key] = value
}

func (m *Module) Context(key any) (any, bool) {
	m.ctxMu.RLock()
	defer m.ctxMu.RUnlock()
	v, ok := m.context[key]
	return v, ok
}

// Methods returns the module's method names in registration order.
func (m *Module) Methods() []string {
	out := make([]string, len(m.order))
	copy(out, m.order)
	return out
}
