package proto

import (
	"errors"
	"testing"
)

func TestErrorBody_RoundTrip(t *testing.T) {
	t.Parallel()

	tests := []ErrorBody{
		{Err: "boom"},
		{Err: "no such file", MsgType: "get_file"},
		{Err: "x", MsgType: "new", MsgID: "42"},
	}

	for _, tc := range tests {
		data, err := tc.Encode()
		if err != nil {
			t.Fatalf("Encode() error = %v", err)
		}
		got, err := DecodeErrorBody(data)
		if err != nil {
			t.Fatalf("DecodeErrorBody() error = %v", err)
		}
		if got != tc {
			t.Errorf("DecodeErrorBody() = %+v, want %+v", got, tc)
		}
	}
}

func TestErrorBody_OmitsEmptyFields(t *testing.T) {
	t.Parallel()

	data, err := ErrorBody{Err: "boom"}.Encode()
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	m, err := DecodeMap(data)
	if err != nil {
		t.Fatalf("DecodeMap() error = %v", err)
	}
	if len(m) != 1 || !m.Has("err") {
		t.Errorf("error body = %v, want only err", m)
	}
}

func TestNewErrorReply(t *testing.T) {
	t.Parallel()

	req := New(ProtoPortForward, "new", "sid")
	reply, err := NewErrorReply(req, errors.New("connection refused"), true)
	if err != nil {
		t.Fatalf("NewErrorReply() error = %v", err)
	}

	if reply.Proto() != ProtoPortForward || reply.MsgType() != MsgTypeError || reply.SessionID() != "sid" {
		t.Errorf("reply header = %+v", reply.Header)
	}

	body, err := DecodeErrorBody(reply.Body)
	if err != nil {
		t.Fatalf("DecodeErrorBody() error = %v", err)
	}
	if body.Err != "connection refused" || body.MsgType != "new" {
		t.Errorf("body = %+v", body)
	}
}

func TestErrorTaxonomy(t *testing.T) {
	t.Parallel()

	cause := errors.New("disk full")

	capErr := NewCapabilityError("write file", cause)
	if !errors.Is(capErr, cause) {
		t.Error("CapabilityError does not unwrap to its cause")
	}

	resErr := NewResourceError("encode", cause)
	if !errors.Is(resErr, cause) {
		t.Error("ResourceError does not unwrap to its cause")
	}

	protoErr := Unsupported(New(ProtoControl, "bogus", ""))
	var pe *ProtocolError
	if !errors.As(error(protoErr), &pe) || pe.MsgType != "bogus" || pe.Proto != ProtoControl {
		t.Errorf("Unsupported() = %+v", protoErr)
	}

	decErr := malformed("x", cause)
	if !errors.Is(decErr, ErrMalformed) || !errors.Is(decErr, cause) {
		t.Error("DecodeError should match ErrMalformed and its cause")
	}
}
