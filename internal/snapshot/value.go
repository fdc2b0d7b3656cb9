// Package snapshot defines the reference model for simulator state snapshots.
//
// A snapshot arrives from the simulator as a json-io style document in which an
// object is inlined once, tagged with "@id", and every later occurrence is replaced by
// {"@ref": id}. Decode turns that document into a tree of tagged Values so that the
// rest of the module never inspects untyped JSON.
package snapshot

import (
	"strconv"
)

// ID names one logical simulator object within a single snapshot.
// IDs are not stable across ticks.
type ID int64

// String returns the decimal form used as a map key on the wire.
func (id ID) String() string {
	return strconv.FormatInt(int64(id), 10)
}

// ParseID parses the decimal form of an ID.
func ParseID(s string) (ID, error) {
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, err
	}
	return ID(n), nil
}

// Kind discriminates the Value variants.
type Kind int

const (
	KindNull Kind = iota
	KindBool
	KindNumber
	KindString
	KindArray
	KindObject
	KindRef
	KindCycle
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBool:
		return "bool"
	case KindNumber:
		return "number"
	case KindString:
		return "string"
	case KindArray:
		return "array"
	case KindObject:
		return "object"
	case KindRef:
		return "ref"
	case KindCycle:
		return "cycle"
	default:
		return "unknown"
	}
}

// Value is one node of a decoded snapshot. The concrete type is one of
// Null, Bool, Number, String, Array, *Object, Ref or Cycle.
type Value interface {
	Kind() Kind
}

// Null is the JSON null.
type Null struct{}

// Bool is a JSON boolean.
type Bool bool

// Number keeps the decimal literal exactly as received.
type Number string

// String is a JSON string.
type String string

// Array is an ordered list. Lists the backend identified with "@id" keep it.
type Array struct {
	ID    ID
	HasID bool
	Items []Value
}

// Ref points at the identified object with the given ID.
type Ref struct {
	Target ID
}

// Cycle is the back-reference marker the resolver substitutes when a reference
// leads back into the object currently being expanded.
type Cycle struct {
	Target ID
}

func (Null) Kind() Kind    { return KindNull }
func (Bool) Kind() Kind    { return KindBool }
func (Number) Kind() Kind  { return KindNumber }
func (String) Kind() Kind  { return KindString }
func (Array) Kind() Kind   { return KindArray }
func (*Object) Kind() Kind { return KindObject }
func (Ref) Kind() Kind     { return KindRef }
func (Cycle) Kind() Kind   { return KindCycle }

// Int64 parses the number as an integer.
func (n Number) Int64() (int64, error) {
	if i, err := strconv.ParseInt(string(n), 10, 64); err == nil {
		return i, nil
	}
	f, err := strconv.ParseFloat(string(n), 64)
	if err != nil {
		return 0, err
	}
	return int64(f), nil
}

// Float64 parses the number as a float.
func (n Number) Float64() (float64, error) {
	return strconv.ParseFloat(string(n), 64)
}

// Field is one key/value pair of an Object.
type Field struct {
	Key   string
	Value Value
}

// Object is a JSON object. Field order is preserved as received.
// Objects are immutable once built.
type Object struct {
	ID    ID
	HasID bool
	Type  string

	keys   []string
	fields map[string]Value
}

// NewObject builds an object from its header and fields. A repeated key keeps the
// last value at the position of its first occurrence.
func NewObject(id ID, hasID bool, typ string, fields []Field) *Object {
	o := &Object{
		ID:     id,
		HasID:  hasID,
		Type:   typ,
		keys:   make([]string, 0, len(fields)),
		fields: make(map[string]Value, len(fields)),
	}
	for _, f := range fields {
		if _, seen := o.fields[f.Key]; !seen {
			o.keys = append(o.keys, f.Key)
		}
		o.fields[f.Key] = f.Value
	}
	return o
}

// Len returns the number of fields.
func (o *Object) Len() int {
	return len(o.keys)
}

// Keys returns the field names in wire order.
func (o *Object) Keys() []string {
	out := make([]string, len(o.keys))
	copy(out, o.keys)
	return out
}

// Get returns the value of a field.
func (o *Object) Get(key string) (Value, bool) {
	v, ok := o.fields[key]
	return v, ok
}

// Range calls fn for every field in wire order until fn returns false.
func (o *Object) Range(fn func(key string, v Value) bool) {
	for _, k := range o.keys {
		if !fn(k, o.fields[k]) {
			return
		}
	}
}

// Fields returns a copy of the fields in wire order.
func (o *Object) Fields() []Field {
	out := make([]Field, 0, len(o.keys))
	for _, k := range o.keys {
		out = append(out, Field{Key: k, Value: o.fields[k]})
	}
	return out
}

// Object returns a nested object field.
func (o *Object) Object(key string) (*Object, bool) {
	v, ok := o.fields[key].(*Object)
	return v, ok
}

// Array returns a nested array field.
func (o *Object) Array(key string) (Array, bool) {
	v, ok := o.fields[key].(Array)
	return v, ok
}

// Int returns an integer field.
func (o *Object) Int(key string) (int64, bool) {
	n, ok := o.fields[key].(Number)
	if !ok {
		return 0, false
	}
	i, err := n.Int64()
	return i, err == nil
}

// Str returns a string field.
func (o *Object) Str(key string) (string, bool) {
	s, ok := o.fields[key].(String)
	return string(s), ok
}

// Bool returns a boolean field.
func (o *Object) Bool(key string) (bool, bool) {
	b, ok := o.fields[key].(Bool)
	return bool(b), ok
}

// Walk visits v and every value nested in it, depth first. It does not follow
// references. Returning false from fn skips the children of the visited value.
func Walk(v Value, fn func(Value) bool) {
	if !fn(v) {
		return
	}
	switch t := v.(type) {
	case Array:
		for _, item := range t.Items {
			Walk(item, fn)
		}
	case *Object:
		for _, k := range t.keys {
			Walk(t.fields[k], fn)
		}
	}
}

// CountRefs returns the number of Ref values reachable from v without following them.
func CountRefs(v Value) int {
	n := 0
	Walk(v, func(x Value) bool {
		if _, ok := x.(Ref); ok {
			n++
		}
		return true
	})
	return n
}
