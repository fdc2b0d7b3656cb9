package snapshot

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
)

// Wire markers written by the simulator's json-io serializer.
const (
	markerID    = "@id"
	markerRef   = "@ref"
	markerType  = "@type"
	markerItems = "@items"
	markerKeys  = "@keys"
	markerCycle = "@cycle"
)

// DecodeValue reads one JSON document and converts it into a Value tree.
// Reference markers become Ref values; nothing is resolved here.
func DecodeValue(r io.Reader) (Value, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()

	v, err := decodeValue(dec)
	if err != nil {
		return nil, err
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, fmt.Errorf("unexpected data after top-level value")
	}
	return v, nil
}

func decodeValue(dec *json.Decoder) (Value, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	return decodeToken(dec, tok)
}

func decodeToken(dec *json.Decoder, tok json.Token) (Value, error) {
	switch t := tok.(type) {
	case json.Delim:
		switch t {
		case '{':
			return decodeObject(dec)
		case '[':
			items, err := decodeItems(dec)
			if err != nil {
				return nil, err
			}
			return Array{Items: items}, nil
		}
		return nil, fmt.Errorf("unexpected delimiter %q", t)
	case string:
		return String(t), nil
	case json.Number:
		return Number(t), nil
	case bool:
		return Bool(t), nil
	case nil:
		return Null{}, nil
	}
	return nil, fmt.Errorf("unexpected token %v", tok)
}

// decodeItems reads array elements after the opening '[' up to and including ']'.
func decodeItems(dec *json.Decoder) ([]Value, error) {
	items := []Value{}
	for dec.More() {
		v, err := decodeValue(dec)
		if err != nil {
			return nil, err
		}
		items = append(items, v)
	}
	if _, err := dec.Token(); err != nil {
		return nil, err
	}
	return items, nil
}

// decodeList reads a value that must be an array or null.
func decodeList(dec *json.Decoder, key string) ([]Value, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	switch t := tok.(type) {
	case nil:
		return []Value{}, nil
	case json.Delim:
		if t == '[' {
			return decodeItems(dec)
		}
	}
	return nil, fmt.Errorf("%s must be an array", key)
}

func decodeObject(dec *json.Decoder) (Value, error) {
	var (
		fields   []Field
		id       ID
		hasID    bool
		typ      string
		ref      *ID
		cycle    *ID
		items    []Value
		hasItems bool
		keys     []Value
		hasKeys  bool
	)

	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		key, ok := tok.(string)
		if !ok {
			return nil, fmt.Errorf("object key must be a string, got %v", tok)
		}

		switch key {
		case markerID:
			if id, err = decodeID(dec, key); err != nil {
				return nil, err
			}
			hasID = true
		case markerRef:
			target, err := decodeID(dec, key)
			if err != nil {
				return nil, err
			}
			ref = &target
		case markerCycle:
			target, err := decodeID(dec, key)
			if err != nil {
				return nil, err
			}
			cycle = &target
		case markerType:
			v, err := decodeValue(dec)
			if err != nil {
				return nil, err
			}
			s, ok := v.(String)
			if !ok {
				return nil, fmt.Errorf("%s must be a string", markerType)
			}
			typ = string(s)
		case markerItems:
			if items, err = decodeList(dec, key); err != nil {
				return nil, err
			}
			hasItems = true
		case markerKeys:
			if keys, err = decodeList(dec, key); err != nil {
				return nil, err
			}
			hasKeys = true
		default:
			v, err := decodeValue(dec)
			if err != nil {
				return nil, err
			}
			fields = append(fields, Field{Key: key, Value: v})
		}
	}
	if _, err := dec.Token(); err != nil {
		return nil, err
	}

	switch {
	case ref != nil:
		return Ref{Target: *ref}, nil
	case cycle != nil:
		return Cycle{Target: *cycle}, nil
	case hasKeys:
		if len(keys) != len(items) {
			return nil, fmt.Errorf("%s has %d entries but %s has %d", markerKeys, len(keys), markerItems, len(items))
		}
		for i, k := range keys {
			name, err := keyString(k)
			if err != nil {
				return nil, err
			}
			fields = append(fields, Field{Key: name, Value: items[i]})
		}
		return NewObject(id, hasID, typ, fields), nil
	case hasItems:
		return Array{ID: id, HasID: hasID, Items: items}, nil
	}
	return NewObject(id, hasID, typ, fields), nil
}

func decodeID(dec *json.Decoder, key string) (ID, error) {
	tok, err := dec.Token()
	if err != nil {
		return 0, err
	}
	switch t := tok.(type) {
	case json.Number:
		n, err := strconv.ParseInt(string(t), 10, 64)
		if err != nil {
			return 0, fmt.Errorf("%s: %w", key, err)
		}
		return ID(n), nil
	case string:
		id, err := ParseID(t)
		if err != nil {
			return 0, fmt.Errorf("%s: %w", key, err)
		}
		return id, nil
	}
	return 0, fmt.Errorf("%s must be an integer", key)
}

func keyString(v Value) (string, error) {
	switch k := v.(type) {
	case String:
		return string(k), nil
	case Number:
		return string(k), nil
	case Bool:
		return strconv.FormatBool(bool(k)), nil
	}
	return "", fmt.Errorf("unsupported map key of kind %s", v.Kind())
}

// Marshal encodes a Value back into the wire format. Identified objects and lists
// keep their "@id", references are written as {"@ref": id} and cycle markers as
// {"@cycle": id}.
func Marshal(v Value) ([]byte, error) {
	var buf bytes.Buffer
	if err := encodeValue(&buf, v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func encodeValue(buf *bytes.Buffer, v Value) error {
	switch t := v.(type) {
	case nil, Null:
		buf.WriteString("null")
	case Bool:
		buf.WriteString(strconv.FormatBool(bool(t)))
	case Number:
		if t == "" {
			buf.WriteByte('0')
			return nil
		}
		if !json.Valid([]byte(t)) {
			return fmt.Errorf("invalid number literal %q", string(t))
		}
		buf.WriteString(string(t))
	case String:
		return encodeString(buf, string(t))
	case Array:
		if t.HasID {
			buf.WriteString(`{"` + markerID + `":`)
			buf.WriteString(t.ID.String())
			buf.WriteString(`,"` + markerItems + `":`)
		}
		buf.WriteByte('[')
		for i, item := range t.Items {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := encodeValue(buf, item); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
		if t.HasID {
			buf.WriteByte('}')
		}
	case *Object:
		if t == nil {
			buf.WriteString("null")
			return nil
		}
		return encodeObject(buf, t)
	case Ref:
		buf.WriteString(`{"` + markerRef + `":` + t.Target.String() + `}`)
	case Cycle:
		buf.WriteString(`{"` + markerCycle + `":` + t.Target.String() + `}`)
	default:
		return fmt.Errorf("unsupported value %T", v)
	}
	return nil
}

func encodeObject(buf *bytes.Buffer, o *Object) error {
	buf.WriteByte('{')
	first := true
	sep := func() {
		if !first {
			buf.WriteByte(',')
		}
		first = false
	}
	if o.HasID {
		sep()
		buf.WriteString(`"` + markerID + `":` + o.ID.String())
	}
	if o.Type != "" {
		sep()
		buf.WriteString(`"` + markerType + `":`)
		if err := encodeString(buf, o.Type); err != nil {
			return err
		}
	}
	for _, k := range o.keys {
		sep()
		if err := encodeString(buf, k); err != nil {
			return err
		}
		buf.WriteByte(':')
		if err := encodeValue(buf, o.fields[k]); err != nil {
			return err
		}
	}
	buf.WriteByte('}')
	return nil
}

func encodeString(buf *bytes.Buffer, s string) error {
	b, err := json.Marshal(s)
	if err != nil {
		return err
	}
	buf.Write(b)
	return nil
}

func (n Null) MarshalJSON() ([]byte, error)    { return Marshal(n) }
func (b Bool) MarshalJSON() ([]byte, error)    { return Marshal(b) }
func (n Number) MarshalJSON() ([]byte, error)  { return Marshal(n) }
func (s String) MarshalJSON() ([]byte, error)  { return Marshal(s) }
func (a Array) MarshalJSON() ([]byte, error)   { return Marshal(a) }
func (o *Object) MarshalJSON() ([]byte, error) { return Marshal(o) }
func (r Ref) MarshalJSON() ([]byte, error)     { return Marshal(r) }
func (c Cycle) MarshalJSON() ([]byte, error)   { return Marshal(c) }

// Plain converts v into the generic form encoding/json produces, dropping the
// "@id" and "@type" headers. Remaining Ref and Cycle values keep their marker
// objects. It is meant for responses that are decoded into typed structs.
func Plain(v Value) interface{} {
	switch t := v.(type) {
	case nil, Null:
		return nil
	case Bool:
		return bool(t)
	case Number:
		return json.Number(t)
	case String:
		return string(t)
	case Array:
		out := make([]interface{}, len(t.Items))
		for i, item := range t.Items {
			out[i] = Plain(item)
		}
		return out
	case *Object:
		if t == nil {
			return nil
		}
		out := make(map[string]interface{}, t.Len())
		t.Range(func(key string, fv Value) bool {
			out[key] = Plain(fv)
			return true
		})
		return out
	case Ref:
		return map[string]interface{}{markerRef: int64(t.Target)}
	case Cycle:
		return map[string]interface{}{markerCycle: int64(t.Target)}
	}
	return nil
}
