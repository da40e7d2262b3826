// Package plist provides the dynamic, schema-less dictionary type used
// throughout the restore session engine to represent property-list wire
// messages, together with typed accessors that report "absent" and
// "type mismatch" through the same uniform failure signal.
package plist

import (
	"bytes"
	"fmt"

	"howett.net/plist"
)

// Dict is a property-list dictionary: string keys mapping to values that
// are themselves strings, booleans, integers, []byte blobs, Dict, or
// []any. It is the wire shape for every message exchanged with the
// restore daemon.
type Dict map[string]any

// String returns d[key] as a string. ok is false if the key is absent or
// holds a value of another type.
func (d Dict) String(key string) (string, bool) {
	v, ok := d[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// Bool returns d[key] as a bool.
func (d Dict) Bool(key string) (bool, bool) {
	v, ok := d[key]
	if !ok {
		return false, false
	}
	b, ok := v.(bool)
	return b, ok
}

// Data returns d[key] as a []byte.
func (d Dict) Data(key string) ([]byte, bool) {
	v, ok := d[key]
	if !ok {
		return nil, false
	}
	b, ok := v.([]byte)
	return b, ok
}

// Int returns d[key] as an int64, accepting any of the integer types the
// plist decoder may have produced.
func (d Dict) Int(key string) (int64, bool) {
	v, ok := d[key]
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case int64:
		return n, true
	case int:
		return int64(n), true
	case uint64:
		return int64(n), true
	case uint32:
		return int64(n), true
	case uint:
		return int64(n), true
	default:
		return 0, false
	}
}

// Dict returns d[key] as a nested Dict.
func (d Dict) Dict(key string) (Dict, bool) {
	v, ok := d[key]
	if !ok {
		return nil, false
	}
	switch m := v.(type) {
	case Dict:
		return m, true
	case map[string]any:
		return Dict(m), true
	default:
		return nil, false
	}
}

// Array returns d[key] as a slice of values.
func (d Dict) Array(key string) ([]any, bool) {
	v, ok := d[key]
	if !ok {
		return nil, false
	}
	a, ok := v.([]any)
	return a, ok
}

// Has reports whether key is present, regardless of its type.
func (d Dict) Has(key string) bool {
	_, ok := d[key]
	return ok
}

// ToXML renders v as an XML-format property list.
func ToXML(v any) ([]byte, error) {
	buf := new(bytes.Buffer)
	enc := plist.NewEncoderForFormat(buf, plist.XMLFormat)
	if err := enc.Encode(v); err != nil {
		return nil, fmt.Errorf("plist: encode xml: %w", err)
	}
	return buf.Bytes(), nil
}

// ToBinary renders v as a binary-format property list.
func ToBinary(v any) ([]byte, error) {
	buf := new(bytes.Buffer)
	enc := plist.NewEncoderForFormat(buf, plist.BinaryFormat)
	if err := enc.Encode(v); err != nil {
		return nil, fmt.Errorf("plist: encode binary: %w", err)
	}
	return buf.Bytes(), nil
}

// Parse decodes a property list of any format into a Dict.
func Parse(data []byte) (Dict, error) {
	var raw map[string]any
	if _, err := plist.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("plist: unmarshal: %w", err)
	}
	return normalize(raw), nil
}

// normalize walks a freshly-decoded map and turns nested map[string]any
// into Dict so callers only ever deal with one dictionary type.
func normalize(m map[string]any) Dict {
	out := make(Dict, len(m))
	for k, v := range m {
		out[k] = normalizeValue(v)
	}
	return out
}

func normalizeValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return normalize(t)
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = normalizeValue(e)
		}
		return out
	default:
		return v
	}
}
