package proto

import "time"

// Map is a decoded msgpack map with string keys. Most sub-protocol bodies
// are maps; the accessors return false when a key is absent or holds a
// value of the wrong type.
type Map map[string]Value

// DecodeMap decodes a body that must be a msgpack map.
func DecodeMap(body []byte) (Map, error) {
	if len(body) == 0 {
		return nil, malformed("empty body", nil)
	}

	v, err := DecodeValue(body)
	if err != nil {
		return nil, err
	}
	if v.Kind != KindMap {
		return nil, malformed("body is not a map", nil)
	}
	return v.Map, nil
}

// Has reports whether key is present.
func (m Map) Has(key string) bool {
	_, ok := m[key]
	return ok
}

// String returns a string entry.
func (m Map) String(key string) (string, bool) {
	v, ok := m[key]
	if !ok {
		return "", false
	}
	return v.AsString()
}

// Bytes returns a binary entry.
func (m Map) Bytes(key string) ([]byte, bool) {
	v, ok := m[key]
	if !ok || v.Kind != KindBinary {
		return nil, false
	}
	return v.Bin, true
}

// Uint returns a non-negative integer entry.
func (m Map) Uint(key string) (uint64, bool) {
	v, ok := m[key]
	if !ok {
		return 0, false
	}
	return v.AsUint()
}

// Int returns an integer entry.
func (m Map) Int(key string) (int64, bool) {
	v, ok := m[key]
	if !ok {
		return 0, false
	}
	return v.AsInt()
}

// Time returns a timestamp entry.
func (m Map) Time(key string) (time.Time, bool) {
	v, ok := m[key]
	if !ok {
		return time.Time{}, false
	}
	return v.AsTime()
}

// Array returns an array entry.
func (m Map) Array(key string) ([]Value, bool) {
	v, ok := m[key]
	if !ok || v.Kind != KindArray {
		return nil, false
	}
	return v.Array, true
}
