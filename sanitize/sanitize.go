// Package sanitize normalizes values before they cross the wallet boundary.
//
// The signer on the other side only understands a small set of shapes, so
// every value is first lifted into one of five variants and then lowered
// back into its canonical Go form:
//
//   - Primitive: nil, booleans, numbers, strings and any other scalar
//   - Bytes: every byte-like value, flattened to a plain []byte
//   - Sequence: ordered collections, element order preserved
//   - Mapping: string-keyed collections, keys preserved
//   - Native: opaque handles to compiled modules, passed through untouched
//
// Byte-like values are []byte and named byte slices (types.HexBytes, key
// material types...), byte arrays, and buffer objects of the form
// {"type": "Buffer", "data": [...]} produced by JSON encoders of other
// runtimes. The input is never mutated.
package sanitize

import (
	"fmt"
	"math"
	"reflect"
	"sort"
)

// NativeHandle marks values that wrap a compiled binary module object.
// Sanitizing such a value would corrupt it, so it is always passed through.
type NativeHandle interface {
	NativeHandle() uintptr
}

// Value is the closed set of shapes accepted at the boundary.
type Value interface {
	isValue()
}

// Primitive is a scalar value returned unchanged.
type Primitive struct {
	V any
}

// Bytes is a canonical flat byte sequence.
type Bytes []byte

// Sequence is an ordered list of values.
type Sequence []Value

// Mapping is a string-keyed collection of values.
type Mapping map[string]Value

// Native wraps an opaque handle that must not be touched.
type Native struct {
	Handle NativeHandle
}

func (Primitive) isValue() {}
func (Bytes) isValue()     {}
func (Sequence) isValue()  {}
func (Mapping) isValue()   {}
func (Native) isValue()    {}

var byteType = reflect.TypeOf(byte(0))

// Sanitize returns the canonical, boundary-safe form of v.
func Sanitize(v any) any {
	return Lower(Lift(v))
}

// Lift classifies v into its Value variant, copying every byte sequence it
// meets so the result never aliases the input.
func Lift(v any) Value {
	switch t := v.(type) {
	case nil:
		return Primitive{V: nil}
	case Value:
		return t
	case NativeHandle:
		return Native{Handle: t}
	case []byte:
		return Bytes(clone(t))
	case []any:
		seq := make(Sequence, len(t))
		for i, e := range t {
			seq[i] = Lift(e)
		}
		return seq
	case map[string]any:
		if b, ok := bufferObject(t); ok {
			return Bytes(b)
		}
		m := make(Mapping, len(t))
		for k, e := range t {
			m[k] = Lift(e)
		}
		return m
	}
	return liftReflect(reflect.ValueOf(v))
}

func liftReflect(rv reflect.Value) Value {
	switch rv.Kind() {
	case reflect.Pointer:
		if rv.IsNil() {
			return Primitive{V: nil}
		}
		// Pointers to containers are followed, anything else (*big.Int,
		// structs) is an opaque scalar.
		switch rv.Elem().Kind() {
		case reflect.Slice, reflect.Array, reflect.Map:
			return Lift(rv.Elem().Interface())
		}
		return Primitive{V: rv.Interface()}
	case reflect.Slice:
		if rv.Type().Elem() == byteType {
			return Bytes(clone(rv.Bytes()))
		}
		if rv.IsNil() {
			return Primitive{V: nil}
		}
		return liftList(rv)
	case reflect.Array:
		if rv.Type().Elem() == byteType {
			out := make([]byte, rv.Len())
			reflect.Copy(reflect.ValueOf(out), rv)
			return Bytes(out)
		}
		return liftList(rv)
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return Primitive{V: rv.Interface()}
		}
		m := make(Mapping, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			m[iter.Key().String()] = Lift(iter.Value().Interface())
		}
		if b, ok := bufferMapping(m); ok {
			return Bytes(b)
		}
		return m
	default:
		return Primitive{V: rv.Interface()}
	}
}

func liftList(rv reflect.Value) Sequence {
	seq := make(Sequence, rv.Len())
	for i := range rv.Len() {
		seq[i] = Lift(rv.Index(i).Interface())
	}
	return seq
}

// Lower converts a Value back into plain Go values: []byte, []any,
// map[string]any, native handles and scalars.
func Lower(v Value) any {
	switch t := v.(type) {
	case nil:
		return nil
	case Primitive:
		return t.V
	case Bytes:
		return []byte(t)
	case Sequence:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = Lower(e)
		}
		return out
	case Mapping:
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[k] = Lower(e)
		}
		return out
	case Native:
		return t.Handle
	default:
		panic(fmt.Sprintf("sanitize: unknown value variant %T", v))
	}
}

// IsBufferObject reports whether v is a tagged buffer object such as
// {"type": "Buffer", "data": [1, 2, 3]}.
func IsBufferObject(v map[string]any) bool {
	_, ok := bufferObject(v)
	return ok
}

func bufferObject(m map[string]any) ([]byte, bool) {
	if tag, ok := m["type"].(string); !ok || tag != "Buffer" {
		return nil, false
	}
	data, ok := m["data"]
	if !ok {
		return nil, false
	}
	switch d := Lift(data).(type) {
	case Bytes:
		return d, true
	case Sequence:
		return sequenceBytes(d)
	default:
		return nil, false
	}
}

func bufferMapping(m Mapping) ([]byte, bool) {
	tag, ok := m["type"].(Primitive)
	if !ok {
		return nil, false
	}
	if s, ok := tag.V.(string); !ok || s != "Buffer" {
		return nil, false
	}
	switch d := m["data"].(type) {
	case Bytes:
		return clone(d), true
	case Sequence:
		return sequenceBytes(d)
	default:
		return nil, false
	}
}

// sequenceBytes converts a sequence of small integers into bytes. Decoders
// hand numbers back as float64, int64 or uint64 depending on the codec.
func sequenceBytes(seq Sequence) ([]byte, bool) {
	out := make([]byte, len(seq))
	for i, e := range seq {
		p, ok := e.(Primitive)
		if !ok {
			return nil, false
		}
		b, ok := toByte(p.V)
		if !ok {
			return nil, false
		}
		out[i] = b
	}
	return out, true
}

func toByte(v any) (byte, bool) {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n := rv.Int()
		return byte(n), n >= 0 && n <= math.MaxUint8
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		n := rv.Uint()
		return byte(n), n <= math.MaxUint8
	case reflect.Float32, reflect.Float64:
		f := rv.Float()
		return byte(f), f >= 0 && f <= math.MaxUint8 && f == math.Trunc(f)
	default:
		return 0, false
	}
}

func clone(b []byte) []byte {
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

// Keys returns the keys of a mapping in lexical order, for callers that need
// a stable iteration order (logging, hashing).
func Keys(m Mapping) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
