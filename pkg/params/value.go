package params

import (
	"fmt"
	"strconv"
	"strings"
)

// Value is a tagged parameter value. The zero Value is unset.
type Value struct {
	kind  Kind
	set   bool
	i     int
	f     float64
	b     bool
	tuple []float64
}

// Int returns an integer value.
func Int(v int) Value { return Value{kind: KindInt, set: true, i: v} }

// Float returns a float value.
func Float(v float64) Value { return Value{kind: KindFloat, set: true, f: v} }

// Bool returns a boolean switch value.
func Bool(v bool) Value { return Value{kind: KindBool, set: true, b: v} }

// Tuple returns a fixed-size tuple value.
func Tuple(v ...float64) Value {
	t := make([]float64, len(v))
	copy(t, v)
	return Value{kind: KindTuple, set: true, tuple: t}
}

// Kind returns the value's tag.
func (v Value) Kind() Kind { return v.kind }

// IsSet reports whether the value holds anything.
func (v Value) IsSet() bool { return v.set }

// AsInt returns the integer payload.
func (v Value) AsInt() (int, bool) { return v.i, v.set && v.kind == KindInt }

// AsFloat returns the float payload.
func (v Value) AsFloat() (float64, bool) { return v.f, v.set && v.kind == KindFloat }

// AsBool returns the boolean payload.
func (v Value) AsBool() (bool, bool) { return v.b, v.set && v.kind == KindBool }

// AsTuple returns a copy of the tuple payload.
func (v Value) AsTuple() ([]float64, bool) {
	if !v.set || v.kind != KindTuple {
		return nil, false
	}
	t := make([]float64, len(v.tuple))
	copy(t, v.tuple)
	return t, true
}

// Equal reports whether two values carry the same tag and payload.
func (v Value) Equal(o Value) bool {
	if v.set != o.set || v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindInt:
		return v.i == o.i
	case KindFloat:
		return v.f == o.f
	case KindBool:
		return v.b == o.b
	case KindTuple:
		if len(v.tuple) != len(o.tuple) {
			return false
		}
		for i := range v.tuple {
			if v.tuple[i] != o.tuple[i] {
				return false
			}
		}
		return true
	}
	return true
}

// String renders the payload the way the toolchain reads it.
func (v Value) String() string {
	if !v.set {
		return ""
	}
	switch v.kind {
	case KindInt:
		return strconv.Itoa(v.i)
	case KindFloat:
		return formatFloat(v.f)
	case KindBool:
		if v.b {
			return "+"
		}
		return "-"
	case KindTuple:
		parts := make([]string, len(v.tuple))
		for i, f := range v.tuple {
			parts[i] = formatFloat(f)
		}
		return strings.Join(parts, " ")
	}
	return fmt.Sprint(v.i)
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'g', -1, 64)
}

// FromAny converts a decoded configuration value (YAML or JSON scalar or
// list) to a Value of the key's declared kind. Integral floats are accepted
// for int keys and integers for float keys.
func FromAny(k Key, raw interface{}) (Value, error) {
	def, ok := Lookup(k)
	if !ok {
		return Value{}, unknownKey(k)
	}
	switch def.Kind {
	case KindInt:
		switch n := raw.(type) {
		case int:
			return Int(n), nil
		case int64:
			return Int(int(n)), nil
		case float64:
			if n == float64(int(n)) {
				return Int(int(n)), nil
			}
		}
	case KindFloat:
		switch n := raw.(type) {
		case int:
			return Float(float64(n)), nil
		case int64:
			return Float(float64(n)), nil
		case float64:
			return Float(n), nil
		}
	case KindBool:
		if b, ok := raw.(bool); ok {
			return Bool(b), nil
		}
	case KindTuple:
		if list, ok := raw.([]interface{}); ok {
			t := make([]float64, 0, len(list))
			for _, item := range list {
				switch n := item.(type) {
				case int:
					t = append(t, float64(n))
				case int64:
					t = append(t, float64(n))
				case float64:
					t = append(t, n)
				default:
					return Value{}, typeMismatch(k, def.Kind, fmt.Sprintf("%T", item))
				}
			}
			return Tuple(t...), nil
		}
	}
	return Value{}, typeMismatch(k, def.Kind, fmt.Sprintf("%T", raw))
}
