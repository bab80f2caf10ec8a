package pty

import (
	"bytes"
	"os"
	"sync"
	"testing"
	"time"
)

type sink struct {
	mu     sync.Mutex
	buf    bytes.Buffer
	closed chan struct{}
	once   sync.Once
}

func newSink() *sink {
	return &sink{closed: make(chan struct{})}
}

func (s *sink) Print(p []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.buf.Write(p)
	return nil
}

func (s *sink) Closed() {
	s.once.Do(func() { close(s.closed) })
}

func (s *sink) contains(sub string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return bytes.Contains(s.buf.Bytes(), []byte(sub))
}

func TestShell_RunsCommands(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping pty test in short mode")
	}
	if _, err := os.Stat(DefaultShell); err != nil {
		t.Skipf("%s not available", DefaultShell)
	}

	sh := New("", nil)
	out := newSink()
	if err := sh.Open(80, 24, out); err != nil {
		t.Skipf("cannot start shell under a pty: %v", err)
	}

	if err := sh.Open(80, 24, newSink()); err == nil {
		t.Error("second Open() error = nil")
	}
	if err := sh.Resize(100, 40); err != nil {
		t.Errorf("Resize() error = %v", err)
	}
	if err := sh.Write([]byte("echo hel''lo\n")); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for !out.contains("hello") {
		if time.Now().After(deadline) {
			t.Fatal("timeout waiting for shell output")
		}
		time.Sleep(20 * time.Millisecond)
	}

	if err := sh.Write([]byte("exit\n")); err != nil {
		t.Fatalf("Write(exit) error = %v", err)
	}
	select {
	case <-out.closed:
	case <-time.After(5 * time.Second):
		t.Fatal("Closed() not reported after shell exit")
	}

	if err := sh.Close(); err != nil {
		t.Errorf("Close() after exit error = %v", err)
	}
	if err := sh.Write([]byte("x")); err == nil {
		t.Error("Write() after exit error = nil")
	}
}

func TestShell_NotRunning(t *testing.T) {
	t.Parallel()

	sh := New("", nil)
	if err := sh.Resize(1, 1); err == nil {
		t.Error("Resize() without shell error = nil")
	}
	if err := sh.Write([]byte("x")); err == nil {
		t.Error("Write() without shell error = nil")
	}
	if err := sh.Close(); err != nil {
		t.Errorf("Close() without shell error = %v", err)
	}
}
