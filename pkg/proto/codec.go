package proto

import (
	"bytes"
	"math"

	"github.com/vmihailenco/msgpack/v5"
)

// Encode serializes m. Absent header fields, properties and an empty body
// are omitted from the wire map.
func Encode(m *Message) ([]byte, error) {
	if m == nil || (m.Header == nil && len(m.Body) == 0) {
		return nil, NewResourceError("encoding message", ErrEmptyMessage)
	}

	outer := NewMapBuilder()
	if m.Header != nil {
		hdr := headerBuilder(m.Header)
		outer.add(keyHeader, func(enc *msgpack.Encoder, buf *bytes.Buffer) error {
			return hdr.encodeTo(enc, buf)
		})
	}
	if len(m.Body) > 0 {
		outer.Bytes(keyBody, m.Body)
	}

	return outer.Encode()
}

func headerBuilder(h *Header) *MapBuilder {
	b := NewMapBuilder().Uint(keyProto, uint64(h.Proto))
	if h.MsgType != "" {
		b.String(keyMsgType, h.MsgType)
	}
	if h.SessionID != "" {
		b.String(keySessionID, h.SessionID)
	}
	if !h.Properties.Empty() {
		props := propertiesBuilder(h.Properties)
		b.add(keyProperties, func(enc *msgpack.Encoder, buf *bytes.Buffer) error {
			return props.encodeTo(enc, buf)
		})
	}
	return b
}

func propertiesBuilder(p *Properties) *MapBuilder {
	b := NewMapBuilder()
	if p.TerminalWidth != nil {
		b.Uint(keyTerminalWidth, uint64(*p.TerminalWidth))
	}
	if p.TerminalHeight != nil {
		b.Uint(keyTerminalHeight, uint64(*p.TerminalHeight))
	}
	if p.UserID != nil {
		b.String(keyUserID, *p.UserID)
	}
	if p.Timeout != nil {
		b.Uint(keyTimeout, uint64(*p.Timeout))
	}
	if p.Status != nil {
		b.Int(keyStatus, int64(*p.Status))
	}
	if p.Offset != nil {
		// the peer only accepts offsets typed as int64
		b.Int64(keyOffset, *p.Offset)
	}
	if p.ConnectionID != nil {
		b.String(keyConnectionID, *p.ConnectionID)
	}
	return b
}

// Decode parses one frame. The outer value and the header must be
// non-empty maps and the body must be binary; everything else that does not
// match the expected type is ignored. No partial message is returned on
// error.
func Decode(frame []byte) (*Message, error) {
	if len(frame) == 0 {
		return nil, malformed("empty frame", nil)
	}

	v, err := DecodeValue(frame)
	if err != nil {
		return nil, err
	}
	if v.Kind != KindMap || v.MapLen == 0 {
		return nil, malformed("outer value is not a non-empty map", nil)
	}

	m := &Message{}

	if hv, ok := v.Map[keyHeader]; ok {
		if hv.Kind != KindMap || hv.MapLen == 0 {
			return nil, malformed("header is not a non-empty map", nil)
		}
		m.Header = decodeHeader(hv.Map)
	}

	if bv, ok := v.Map[keyBody]; ok {
		if bv.Kind != KindBinary {
			return nil, malformed("body is not binary", nil)
		}
		if len(bv.Bin) > 0 {
			m.Body = bv.Bin
		}
	}

	if m.Header == nil && m.Body == nil {
		return nil, malformed("neither header nor body", nil)
	}
	return m, nil
}

func decodeHeader(hm Map) *Header {
	h := &Header{}

	if p, ok := hm.Uint(keyProto); ok && p <= math.MaxUint16 {
		h.Proto = ProtoType(p)
	}
	if s, ok := hm.String(keyMsgType); ok {
		h.MsgType = s
	}
	if s, ok := hm.String(keySessionID); ok {
		h.SessionID = s
	}
	if pv, ok := hm[keyProperties]; ok && pv.Kind == KindMap {
		props := decodeProperties(pv.Map)
		if !props.Empty() {
			h.Properties = props
		}
	}
	return h
}

func decodeProperties(pm Map) *Properties {
	p := &Properties{}

	if n, ok := pm.Uint(keyTerminalWidth); ok && n <= math.MaxUint16 {
		p.TerminalWidth = Uint16(uint16(n))
	}
	if n, ok := pm.Uint(keyTerminalHeight); ok && n <= math.MaxUint16 {
		p.TerminalHeight = Uint16(uint16(n))
	}
	if s, ok := pm.String(keyUserID); ok {
		p.UserID = String(s)
	}
	if n, ok := pm.Uint(keyTimeout); ok && n <= math.MaxUint32 {
		p.Timeout = Uint32(uint32(n))
	}
	if n, ok := pm.Int(keyStatus); ok && n >= math.MinInt32 && n <= math.MaxInt32 {
		p.Status = StatusPtr(Status(n))
	}
	if n, ok := pm.Int(keyOffset); ok {
		p.Offset = Int64(n)
	}
	if s, ok := pm.String(keyConnectionID); ok {
		p.ConnectionID = String(s)
	}
	return p
}
