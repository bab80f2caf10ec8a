package pipeio

import (
	"bytes"
	"io"
	"strings"
	"testing"
)

func TestStdio_ReadWrite(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer
	s := NewStdio(strings.NewReader("input"), &out)

	got, err := io.ReadAll(s)
	if err != nil {
		t.Fatalf("ReadAll() error = %v", err)
	}
	if string(got) != "input" {
		t.Errorf("read %q, want input", got)
	}

	if _, err := s.Write([]byte("output")); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if out.String() != "output" {
		t.Errorf("wrote %q, want output", out.String())
	}

	if err := s.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
}

func TestStdio_Defaults(t *testing.T) {
	t.Parallel()

	s := NewStdio(nil, nil)
	if s.in == nil || s.out == nil {
		t.Errorf("NewStdio(nil, nil) = %+v, want default streams", s)
	}
}
