package service

import (
	"errors"
	"fmt"

	"go.uber.org/zap"
)

var (
	ErrUnknownModule = errors.New("unknown module")
	ErrUnknownMethod = errors.New("unknown method")
)

// Registry holds every registered module. Registration happens during
// single-threaded bootstrap, before Serve; lookups afterwards are
// read-only, so the registry takes no lock.
type Registry struct {
	modules map[string]*Module
	order   []string
	logger  *zap.Logger
}

func NewRegistry(logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		modules: make(map[string]*Module),
		logger:  logger,
	}
}

// Register inserts a module. Registering an ID a second time is a no-op,
// the first registration stays authoritative.
func (r *Registry) Register(m *Module) {
	if _, exists := r.modules[m.ID]; exists {
		r.logger.Debug("module already registered", zap.String("module", m.ID))
		return
	}
	r.logger.Debug("registering module",
		zap.String("module", m.ID),
		zap.Int("methods", len(m.order)),
	)
	r.modules[m.ID] = m
	r.order = append(r.order, m.ID)
}

// RegisterAPI attaches a method to an already-registered module.
func (r *Registry) RegisterAPI(moduleID string, meta ApiMeta) error {
	m, ok := r.modules[moduleID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownModule, moduleID)
	}
	return m.addAPI(meta)
}

// Resolve looks up (module, method). The two miss cases stay
// distinguishable through errors.Is.
func (r *Registry) Resolve(moduleID, method string) (*ApiMeta, error) {
	m, ok := r.modules[moduleID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownModule, moduleID)
	}
	meta, ok := m.apis[method]
	if !ok {
		return nil, fmt.Errorf("%w: %s.%s", ErrUnknownMethod, moduleID, method)
	}
	return meta, nil
}

// Modules returns registered modules in registration order.
func (r *Registry) Modules() []*Module {
	out := make([]*Module, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.modules[id])
	}
	return out
}
