package service

// Read-only registry traversal for the offline stub generator. Order is
// registration order at both levels so generated code stays stable
// across runs.

type MethodDesc struct {
	Name     string
	Params   []Field
	Response []Field
}

type ModuleDesc struct {
	ID      string
	Name    string
	Methods []MethodDesc
}

func (r *Registry) Describe() []ModuleDesc {
	out := make([]ModuleDesc, 0, len(r.order))
	for _, m := range r.Modules() {
		desc := ModuleDesc{ID: m.ID, Name: m.Name}
		for _, method := range m.order {
			meta := m.apis[method]
			desc.Methods = append(desc.Methods, MethodDesc{
				Name:     meta.MethodName,
				Params:   append([]Field(nil), meta.Params.Fields...),
				Response: append([]Field(nil), meta.Response.Fields...),
			})
		}
		out = append(out, desc)
	}
	return out
}
