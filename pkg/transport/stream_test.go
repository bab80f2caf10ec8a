package transport

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"net"
	"strings"
	"testing"
	"time"
)

func TestStreamFrames_WireFormat(t *testing.T) {
	t.Parallel()

	a, b := net.Pipe()
	defer a.Close()
	defer b.Close()

	fc := NewStreamFrameConn(a)
	go func() {
		_ = fc.WriteFrame(context.Background(), []byte("hello"))
	}()

	buf := make([]byte, 9)
	_ = b.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, err := readFull(b, buf); err != nil {
		t.Fatalf("read: %v", err)
	}

	want := append([]byte{0, 0, 0, 5}, "hello"...)
	if !bytes.Equal(buf, want) {
		t.Errorf("wire bytes = % x, want % x", buf, want)
	}
}

func TestStreamFrames_EmptyFrame(t *testing.T) {
	t.Parallel()

	a, b := net.Pipe()
	defer a.Close()
	defer b.Close()

	w, r := NewStreamFrameConn(a), NewStreamFrameConn(b)
	go func() { _ = w.WriteFrame(context.Background(), nil) }()

	frame, err := r.ReadFrame(context.Background())
	if err != nil {
		t.Fatalf("ReadFrame() error = %v", err)
	}
	if len(frame) != 0 {
		t.Errorf("ReadFrame() = %q, want empty", frame)
	}
}

func TestStreamFrames_Oversize(t *testing.T) {
	t.Parallel()

	t.Run("write", func(t *testing.T) {
		t.Parallel()
		a, b := net.Pipe()
		defer a.Close()
		defer b.Close()

		err := NewStreamFrameConn(a).WriteFrame(context.Background(), make([]byte, MaxFrameSize+1))
		if err == nil || !strings.Contains(err.Error(), "exceeds") {
			t.Errorf("WriteFrame() error = %v, want size error", err)
		}
	})

	t.Run("read", func(t *testing.T) {
		t.Parallel()
		a, b := net.Pipe()
		defer a.Close()
		defer b.Close()

		go func() {
			var hdr [4]byte
			binary.BigEndian.PutUint32(hdr[:], MaxFrameSize+1)
			_, _ = b.Write(hdr[:])
		}()

		_, err := NewStreamFrameConn(a).ReadFrame(context.Background())
		if err == nil || !strings.Contains(err.Error(), "exceeds") {
			t.Errorf("ReadFrame() error = %v, want size error", err)
		}
	})
}

func TestStreamFrames_ReadCancel(t *testing.T) {
	t.Parallel()

	a, b := net.Pipe()
	defer a.Close()
	defer b.Close()

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		_, err := NewStreamFrameConn(a).ReadFrame(ctx)
		errCh <- err
	}()

	cancel()
	select {
	case err := <-errCh:
		if err == nil {
			t.Error("ReadFrame() after cancel error = nil")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("ReadFrame() did not return after cancel")
	}
}

func TestHandshake(t *testing.T) {
	t.Parallel()

	a, b := net.Pipe()
	defer a.Close()
	defer b.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	go func() {
		_ = ClientHandshake(ctx, NewStreamFrameConn(a), "secret")
	}()

	token, err := ServerHandshake(ctx, NewStreamFrameConn(b))
	if err != nil {
		t.Fatalf("ServerHandshake() error = %v", err)
	}
	if token != "secret" {
		t.Errorf("ServerHandshake() token = %q, want %q", token, "secret")
	}
}

func TestServerHandshake_Timeout(t *testing.T) {
	t.Parallel()

	a, b := net.Pipe()
	defer a.Close()
	defer b.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := ServerHandshake(ctx, NewStreamFrameConn(b))
	var ne net.Error
	if err == nil || !errors.As(err, &ne) || !ne.Timeout() {
		t.Errorf("ServerHandshake() error = %v, want timeout", err)
	}
}

func readFull(c net.Conn, buf []byte) (int, error) {
	n := 0
	for n < len(buf) {
		m, err := c.Read(buf[n:])
		n += m
		if err != nil {
			return n, err
		}
	}
	return n, nil
}
