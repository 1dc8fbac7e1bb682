package service

import "fmt"

// Static field descriptors stand in for a full schema library: each
// method declares the shape of its parameter and response maps once, at
// registration, and decoded payloads are checked against that shape per
// call. Extra fields the descriptor does not name are ignored.

type FieldKind int

const (
	KindBool FieldKind = iota
	KindInt
	KindFloat
	KindString
	KindBytes
	KindMap
	KindList
)

func (k FieldKind) String() string {
	switch k {
	case KindBool:
		return "bool"
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindString:
		return "string"
	case KindBytes:
		return "bytes"
	case KindMap:
		return "map"
	case KindList:
		return "list"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

type Field struct {
	Name     string
	Kind     FieldKind
	Optional bool
}

// RootKind separates parameter descriptors from response descriptors.
// RegisterAPI refuses a descriptor used on the wrong side, once, at
// registration time.
type RootKind int

const (
	RootParams RootKind = iota
	RootResponse
)

func (r RootKind) String() string {
	if r == RootResponse {
		return "response"
	}
	return "params"
}

type Descriptor struct {
	Root   RootKind
	Fields []Field
}

func Params(fields ...Field) Descriptor {
	return Descriptor{Root: RootParams, Fields: fields}
}

func Response(fields ...Field) Descriptor {
	return Descriptor{Root: RootResponse, Fields: fields}
}

func (d Descriptor) Validate(values map[string]any) error {
	for _, f := range d.Fields {
		v, ok := values[f.Name]
		if !ok || v == nil {
			if f.Optional {
				continue
			}
			return fmt.Errorf("missing field %q", f.Name)
		}
		if !f.Kind.matches(v) {
			return fmt.Errorf("field %q: expected %s, got %T", f.Name, f.Kind, v)
		}
	}
	return nil
}

func (k FieldKind) matches(v any) bool {
	switch k {
	case KindBool:
		_, ok := v.(bool)
		return ok
	case KindInt:
		switch v.(type) {
		case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
			return true
		}
		return false
	case KindFloat:
		switch v.(type) {
		case float32, float64, int, int64, uint64:
			return true
		}
		return false
	case KindString:
		_, ok := v.(string)
		return ok
	case KindBytes:
		_, ok := v.([]byte)
		return ok
	case KindMap:
		_, ok := v.(map[string]any)
		return ok
	case KindList:
		_, ok := v.([]any)
		return ok
	default:
		return false
	}
}

// Field accessors for handlers. Validation has already run by the time a
// handler sees the map, so these are lenient about integer widths and
// return zero values for anything absent.

func IntField(values map[string]any, name string) int64 {
	switch v := values[name].(type) {
	case int:
		return int64(v)
	case int32:
		return int64(v)
	case int64:
		return v
	case uint32:
		return int64(v)
	case uint64:
		return int64(v)
	case float64:
		return int64(v)
	}
	return 0
}

func FloatField(values map[string]any, name string) float64 {
	switch v := values[name].(type) {
	case float32:
		return float64(v)
	case float64:
		return v
	case int64:
		return float64(v)
	case uint64:
		return float64(v)
	}
	return 0
}

func StringField(values map[string]any, name string) string {
	s, _ := values[name].(string)
	return s
}

func BoolField(values map[string]any, name string) bool {
	b, _ := values[name].(bool)
	return b
}
