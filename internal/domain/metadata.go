package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ValueKind enumerates the value types a metadata entry may hold.
type ValueKind uint8

const (
	KindString ValueKind = iota
	KindInt
	KindFloat
	KindBool
	KindStrings
)

func (k ValueKind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindBool:
		return "bool"
	case KindStrings:
		return "strings"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Value is a metadata value restricted to a small closed set of kinds.
// The zero Value is the empty string.
type Value struct {
	kind ValueKind
	s    string
	i    int64
	f    float64
	b    bool
	ss   []string
}

// Metadata is caller-supplied key/value data attached to chunks and records.
type Metadata map[string]Value

func String(s string) Value { return Value{kind: KindString, s: s} }
func Int(i int64) Value { return Value{kind: KindInt, i: i} }
func Float(f float64) Value { return Value{kind: KindFloat, f: f} }
func Bool(b bool) Value { return Value{kind: KindBool, b: b} }
func Strings(ss []string) Value {
	cp := make([]string, len(ss))
	copy(cp, ss)
	return Value{kind: KindStrings, ss: cp}
}

func (v Value) Kind() ValueKind { return v.kind }

func (v Value) Str() (string, bool) { return v.s, v.kind == KindString }
func (v Value) Int() (int64, bool) { return v.i, v.kind == KindInt }
func (v Value) Float() (float64, bool) { return v.f, v.kind == KindFloat }
func (v Value) Bool() (bool, bool) { return v.b, v.kind == KindBool }
func (v Value) Strings() ([]string, bool) { return v.ss, v.kind == KindStrings }

// Interface returns the value as a plain Go value.
func (v Value) Interface() any {
	switch v.kind {
	case KindInt:
		return v.i
	case KindFloat:
		return v.f
	case KindBool:
		return v.b
	case KindStrings:
		return v.ss
	default:
		return v.s
	}
}

// ValueOf converts a decoded Go value into a Value. It accepts the shapes
// produced by encoding/json and msgpack decoders.
func ValueOf(x any) (Value, error) {
	switch t := x.(type) {
	case nil:
		return String(""), nil
	case string:
		return String(t), nil
	case bool:
		return Bool(t), nil
	case int:
		return Int(int64(t)), nil
	case int8:
		return Int(int64(t)), nil
	case int16:
		return Int(int64(t)), nil
	case int32:
		return Int(int64(t)), nil
	case int64:
		return Int(t), nil
	case uint8:
		return Int(int64(t)), nil
	case uint16:
		return Int(int64(t)), nil
	case uint32:
		return Int(int64(t)), nil
	case uint64:
		if t > math.MaxInt64 {
			return Value{}, fmt.Errorf("metadata integer overflows int64: %d", t)
		}
		return Int(int64(t)), nil
	case float32:
		return Float(float64(t)), nil
	case float64:
		return Float(t), nil
	case json.Number:
		// floats are always written with a fraction or exponent
		if !strings.ContainsAny(string(t), ".eE") {
			if i, err := t.Int64(); err == nil {
				return Int(i), nil
			}
		}
		f, err := t.Float64()
		if err != nil {
			return Value{}, fmt.Errorf("invalid metadata number %q: %w", t, err)
		}
		return Float(f), nil
	case []string:
		return Strings(t), nil
	case []any:
		ss := make([]string, 0, len(t))
		for _, e := range t {
			s, ok := e.(string)
			if !ok {
				return Value{}, fmt.Errorf("metadata lists may only hold strings, got %T", e)
			}
			ss = append(ss, s)
		}
		return Strings(ss), nil
	default:
		return Value{}, fmt.Errorf("unsupported metadata value type %T", x)
	}
}

func (v Value) MarshalJSON() ([]byte, error) {
	switch {
	case v.kind == KindStrings && v.ss == nil:
		return []byte("[]"), nil
	case v.kind == KindFloat:
		if math.IsNaN(v.f) || math.IsInf(v.f, 0) {
			return nil, fmt.Errorf("unsupported metadata float %v", v.f)
		}
		b := strconv.AppendFloat(nil, v.f, 'g', -1, 64)
		if !bytes.ContainsAny(b, ".eE") {
			b = append(b, ".0"...)
		}
		return b, nil
	}
	return json.Marshal(v.Interface())
}

func (v *Value) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var x any
	if err := dec.Decode(&x); err != nil {
		return err
	}
	parsed, err := ValueOf(x)
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

// Clone returns a copy of m that shares no list storage with it.
func (m Metadata) Clone() Metadata {
	if m == nil {
		return nil
	}
	out := make(Metadata, len(m))
	for k, v := range m {
		if v.kind == KindStrings {
			v = Strings(v.ss)
		}
		out[k] = v
	}
	return out
}

// Plain converts m into a map of plain Go values.
func (m Metadata) Plain() map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v.Interface()
	}
	return out
}

// MetadataFromPlain is the inverse of Metadata.Plain.
func MetadataFromPlain(in map[string]any) (Metadata, error) {
	if in == nil {
		return nil, nil
	}
	out := make(Metadata, len(in))
	for k, x := range in {
		v, err := ValueOf(x)
		if err != nil {
			return nil, fmt.Errorf("metadata key %q: %w", k, err)
		}
		out[k] = v
	}
	return out, nil
}
