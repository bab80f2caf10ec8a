package proto

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"time"

	"github.com/vmihailenco/msgpack/v5"
	"github.com/vmihailenco/msgpack/v5/msgpcode"
)

// maxDepth bounds the nesting of decoded containers.
const maxDepth = 16

// extTimestamp is the msgpack extension type of timestamps.
const extTimestamp int8 = -1

// Kind is the type of a decoded Value.
type Kind uint8

const (
	KindNil Kind = iota
	KindBool
	KindInt  // signed integer wire type
	KindUint // unsigned integer wire type
	KindFloat
	KindString
	KindBinary
	KindArray
	KindMap
	KindExt
)

// Value is an owned, fully decoded msgpack value. Strings and blobs are
// copied out of the frame so the frame buffer can be released right after
// decoding.
type Value struct {
	Kind Kind
	Code byte // first wire byte, identifies the exact encoding

	Bool    bool
	Int     int64
	Uint    uint64
	Float   float64
	Str     string
	Bin     []byte // KindBinary and KindExt payload
	ExtType int8
	Array   []Value
	Map     Map
	// MapLen is the number of map entries on the wire, including those
	// dropped from Map for their non-string keys.
	MapLen int
}

// AsUint returns the value as an unsigned integer.
func (v Value) AsUint() (uint64, bool) {
	switch v.Kind {
	case KindUint:
		return v.Uint, true
	case KindInt:
		if v.Int >= 0 {
			return uint64(v.Int), true
		}
	}
	return 0, false
}

// AsInt returns the value as a signed integer.
func (v Value) AsInt() (int64, bool) {
	switch v.Kind {
	case KindInt:
		return v.Int, true
	case KindUint:
		if v.Uint <= 1<<63-1 {
			return int64(v.Uint), true
		}
	}
	return 0, false
}

// AsString returns the value as a string.
func (v Value) AsString() (string, bool) {
	if v.Kind != KindString {
		return "", false
	}
	return v.Str, true
}

// AsTime returns a timestamp extension (4, 8 or 12 bytes) or an integer
// number of seconds as time.
func (v Value) AsTime() (time.Time, bool) {
	switch v.Kind {
	case KindExt:
		if v.ExtType != extTimestamp {
			return time.Time{}, false
		}
		switch len(v.Bin) {
		case 4:
			return time.Unix(int64(binary.BigEndian.Uint32(v.Bin)), 0), true
		case 8:
			n := binary.BigEndian.Uint64(v.Bin)
			return time.Unix(int64(n&0x3ffffffff), int64(n>>34)), true
		case 12:
			nsec := binary.BigEndian.Uint32(v.Bin[:4])
			sec := binary.BigEndian.Uint64(v.Bin[4:])
			return time.Unix(int64(sec), int64(nsec)), true
		}
	case KindInt, KindUint:
		if n, ok := v.AsInt(); ok {
			return time.Unix(n, 0), true
		}
	}
	return time.Time{}, false
}

// DecodeValue decodes exactly one msgpack value from b. Trailing bytes are
// rejected.
func DecodeValue(b []byte) (Value, error) {
	r := bytes.NewReader(b)
	dec := msgpack.NewDecoder(r)

	v, err := decodeValue(dec, r, 0)
	if err != nil {
		return Value{}, err
	}
	if r.Len() != 0 {
		return Value{}, malformed(fmt.Sprintf("%d trailing bytes", r.Len()), nil)
	}
	return v, nil
}

// decodeValue reads one value. The decoder reads straight from r (a
// *bytes.Reader is consumed without buffering), so r.Len() is the number of
// bytes left and extension payloads can be read from r directly.
func decodeValue(dec *msgpack.Decoder, r *bytes.Reader, depth int) (Value, error) {
	if depth > maxDepth {
		return Value{}, malformed("nesting too deep", nil)
	}

	c, err := dec.PeekCode()
	if err != nil {
		return Value{}, malformed("truncated", err)
	}
	v := Value{Code: c}

	switch {
	case c == msgpcode.Nil:
		v.Kind = KindNil
		err = dec.DecodeNil()

	case c == msgpcode.False || c == msgpcode.True:
		v.Kind = KindBool
		v.Bool, err = dec.DecodeBool()

	case c <= msgpcode.PosFixedNumHigh || (c >= msgpcode.Uint8 && c <= msgpcode.Uint64):
		v.Kind = KindUint
		v.Uint, err = dec.DecodeUint64()

	case c >= msgpcode.NegFixedNumLow || (c >= msgpcode.Int8 && c <= msgpcode.Int64):
		v.Kind = KindInt
		v.Int, err = dec.DecodeInt64()

	case c == msgpcode.Float || c == msgpcode.Double:
		v.Kind = KindFloat
		v.Float, err = dec.DecodeFloat64()

	case isString(c):
		v.Kind = KindString
		v.Str, err = dec.DecodeString()

	case c == msgpcode.Bin8 || c == msgpcode.Bin16 || c == msgpcode.Bin32:
		v.Kind = KindBinary
		v.Bin, err = dec.DecodeBytes()
		if err == nil && v.Bin == nil {
			v.Bin = []byte{}
		}

	case isArray(c):
		v.Kind = KindArray
		v.Array, err = decodeArray(dec, r, depth)

	case isMap(c):
		v.Kind = KindMap
		v.Map, v.MapLen, err = decodeMap(dec, r, depth)

	case isExt(c):
		v.Kind = KindExt
		v.ExtType, v.Bin, err = decodeExt(dec, r)

	default:
		return Value{}, malformed(fmt.Sprintf("unknown type code 0x%02x", c), nil)
	}

	if err != nil {
		if _, ok := err.(*DecodeError); ok {
			return Value{}, err
		}
		return Value{}, malformed("decoding value", err)
	}
	return v, nil
}

func decodeArray(dec *msgpack.Decoder, r *bytes.Reader, depth int) ([]Value, error) {
	n, err := dec.DecodeArrayLen()
	if err != nil {
		return nil, err
	}
	// every element takes at least one byte
	if n < 0 || n > r.Len() {
		return nil, malformed(fmt.Sprintf("array length %d exceeds frame", n), nil)
	}

	out := make([]Value, 0, n)
	for i := 0; i < n; i++ {
		elem, err := decodeValue(dec, r, depth+1)
		if err != nil {
			return nil, err
		}
		out = append(out, elem)
	}
	return out, nil
}

func decodeMap(dec *msgpack.Decoder, r *bytes.Reader, depth int) (Map, int, error) {
	n, err := dec.DecodeMapLen()
	if err != nil {
		return nil, 0, err
	}
	// every entry takes at least two bytes
	if n < 0 || 2*n > r.Len() {
		return nil, 0, malformed(fmt.Sprintf("map length %d exceeds frame", n), nil)
	}

	out := make(Map, n)
	for i := 0; i < n; i++ {
		key, err := decodeValue(dec, r, depth+1)
		if err != nil {
			return nil, 0, err
		}
		val, err := decodeValue(dec, r, depth+1)
		if err != nil {
			return nil, 0, err
		}
		// entries with non-string keys are not part of the protocol
		if key.Kind == KindString {
			out[key.Str] = val
		}
	}
	return out, n, nil
}

func decodeExt(dec *msgpack.Decoder, r *bytes.Reader) (int8, []byte, error) {
	typ, n, err := dec.DecodeExtHeader()
	if err != nil {
		return 0, nil, err
	}
	if n < 0 || n > r.Len() {
		return 0, nil, malformed(fmt.Sprintf("extension length %d exceeds frame", n), nil)
	}

	data := make([]byte, n)
	if _, err := io.ReadFull(r, data); err != nil {
		return 0, nil, malformed("reading extension", err)
	}
	return typ, data, nil
}

func isString(c byte) bool {
	return (c >= msgpcode.FixedStrLow && c <= msgpcode.FixedStrHigh) ||
		c == msgpcode.Str8 || c == msgpcode.Str16 || c == msgpcode.Str32
}

func isArray(c byte) bool {
	return (c >= msgpcode.FixedArrayLow && c <= msgpcode.FixedArrayHigh) ||
		c == msgpcode.Array16 || c == msgpcode.Array32
}

func isMap(c byte) bool {
	return (c >= msgpcode.FixedMapLow && c <= msgpcode.FixedMapHigh) ||
		c == msgpcode.Map16 || c == msgpcode.Map32
}

func isExt(c byte) bool {
	return (c >= msgpcode.FixExt1 && c <= msgpcode.FixExt16) ||
		c == msgpcode.Ext8 || c == msgpcode.Ext16 || c == msgpcode.Ext32
}
