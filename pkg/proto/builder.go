package proto

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"time"

	"github.com/vmihailenco/msgpack/v5"
)

// MapBuilder builds a msgpack map body. Entries keep their insertion order.
// Integers are written compactly unless added with Int64.
type MapBuilder struct {
	entries []mapEntry
}

type mapEntry struct {
	key   string
	write func(enc *msgpack.Encoder, buf *bytes.Buffer) error
}

// NewMapBuilder returns an empty builder.
func NewMapBuilder() *MapBuilder {
	return &MapBuilder{}
}

func (b *MapBuilder) add(key string, write func(enc *msgpack.Encoder, buf *bytes.Buffer) error) *MapBuilder {
	b.entries = append(b.entries, mapEntry{key: key, write: write})
	return b
}

// Len returns the number of entries.
func (b *MapBuilder) Len() int {
	return len(b.entries)
}

// String adds a string entry.
func (b *MapBuilder) String(key, v string) *MapBuilder {
	return b.add(key, func(enc *msgpack.Encoder, _ *bytes.Buffer) error {
		return enc.EncodeString(v)
	})
}

// Bytes adds a binary entry.
func (b *MapBuilder) Bytes(key string, v []byte) *MapBuilder {
	return b.add(key, func(enc *msgpack.Encoder, _ *bytes.Buffer) error {
		return encodeBin(enc, v)
	})
}

// Uint adds an unsigned integer in its most compact form.
func (b *MapBuilder) Uint(key string, v uint64) *MapBuilder {
	return b.add(key, func(enc *msgpack.Encoder, _ *bytes.Buffer) error {
		return enc.EncodeUint(v)
	})
}

// Int adds a signed integer in its most compact form.
func (b *MapBuilder) Int(key string, v int64) *MapBuilder {
	return b.add(key, func(enc *msgpack.Encoder, _ *bytes.Buffer) error {
		return enc.EncodeInt(v)
	})
}

// Int64 adds a signed integer that is always written as a fixed-width
// 64-bit msgpack int64, whatever its value.
func (b *MapBuilder) Int64(key string, v int64) *MapBuilder {
	return b.add(key, func(enc *msgpack.Encoder, _ *bytes.Buffer) error {
		return enc.EncodeInt64(v)
	})
}

// Uints adds an array of compact unsigned integers.
func (b *MapBuilder) Uints(key string, vs []uint64) *MapBuilder {
	return b.add(key, func(enc *msgpack.Encoder, _ *bytes.Buffer) error {
		if err := enc.EncodeArrayLen(len(vs)); err != nil {
			return err
		}
		for _, v := range vs {
			if err := enc.EncodeUint(v); err != nil {
				return err
			}
		}
		return nil
	})
}

// FitsTimestamp32 reports whether t can be encoded by Timestamp32.
func FitsTimestamp32(t time.Time) bool {
	sec := t.Unix()
	return sec >= 0 && sec <= 1<<32-1
}

// Timestamp32 adds t as a 4-byte timestamp extension holding the seconds
// since the epoch. Encode fails for t outside FitsTimestamp32.
func (b *MapBuilder) Timestamp32(key string, t time.Time) *MapBuilder {
	return b.add(key, func(enc *msgpack.Encoder, buf *bytes.Buffer) error {
		sec := t.Unix()
		if !FitsTimestamp32(t) {
			return fmt.Errorf("timestamp %d does not fit 32 bits", sec)
		}
		if err := enc.EncodeExtHeader(extTimestamp, 4); err != nil {
			return err
		}
		var data [4]byte
		binary.BigEndian.PutUint32(data[:], uint32(sec))
		// the encoder writes straight into buf, so the payload follows the
		// extension header
		_, err := buf.Write(data[:])
		return err
	})
}

// Encode returns the msgpack encoding of the map.
func (b *MapBuilder) Encode() ([]byte, error) {
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)

	if err := b.encodeTo(enc, &buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (b *MapBuilder) encodeTo(enc *msgpack.Encoder, buf *bytes.Buffer) error {
	if err := enc.EncodeMapLen(len(b.entries)); err != nil {
		return NewResourceError("encoding map", err)
	}
	for _, e := range b.entries {
		if err := enc.EncodeString(e.key); err != nil {
			return NewResourceError("encoding key "+e.key, err)
		}
		if err := e.write(enc, buf); err != nil {
			return NewResourceError("encoding "+e.key, err)
		}
	}
	return nil
}

// encodeBin writes v as msgpack bin even when it is nil.
func encodeBin(enc *msgpack.Encoder, v []byte) error {
	if v == nil {
		v = []byte{}
	}
	return enc.EncodeBytes(v)
}
