package transport

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"sync"
	"time"
)

// streamFrames frames messages on a byte stream with a 4-byte big-endian
// length prefix.
type streamFrames struct {
	conn net.Conn

	rmu sync.Mutex
	wmu sync.Mutex
}

// NewStreamFrameConn wraps a stream connection (tcp, KCP) as a FrameConn.
func NewStreamFrameConn(conn net.Conn) FrameConn {
	return &streamFrames{conn: conn}
}

// ReadFrame reads one frame honoring the context's deadline and cancellation.
func (s *streamFrames) ReadFrame(ctx context.Context) ([]byte, error) {
	s.rmu.Lock()
	defer s.rmu.Unlock()

	stop := watchDeadline(ctx, s.conn.SetReadDeadline)
	defer stop()

	var hdr [4]byte
	if _, err := io.ReadFull(s.conn, hdr[:]); err != nil {
		return nil, err
	}

	n := binary.BigEndian.Uint32(hdr[:])
	if n > MaxFrameSize {
		return nil, fmt.Errorf("frame of %d bytes exceeds limit of %d", n, MaxFrameSize)
	}

	frame := make([]byte, n)
	if _, err := io.ReadFull(s.conn, frame); err != nil {
		return nil, fmt.Errorf("reading frame: %w", err)
	}
	return frame, nil
}

// WriteFrame writes one frame with a single write call.
func (s *streamFrames) WriteFrame(ctx context.Context, frame []byte) error {
	if len(frame) > MaxFrameSize {
		return fmt.Errorf("frame of %d bytes exceeds limit of %d", len(frame), MaxFrameSize)
	}

	s.wmu.Lock()
	defer s.wmu.Unlock()

	stop := watchDeadline(ctx, s.conn.SetWriteDeadline)
	defer stop()

	buf := make([]byte, 4+len(frame))
	binary.BigEndian.PutUint32(buf[:4], uint32(len(frame)))
	copy(buf[4:], frame)

	if _, err := s.conn.Write(buf); err != nil {
		return fmt.Errorf("writing frame: %w", err)
	}
	return nil
}

func (s *streamFrames) Close() error {
	return s.conn.Close()
}

// watchDeadline applies the context deadline with set and interrupts the
// blocking operation when ctx is cancelled. The returned func clears the
// deadline again so it does not linger on a healthy connection.
func watchDeadline(ctx context.Context, set func(time.Time) error) func() {
	if d, ok := ctx.Deadline(); ok {
		_ = set(d)
	}

	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			_ = set(time.Now())
		case <-done:
		}
	}()

	return func() {
		close(done)
		_ = set(time.Time{})
	}
}

// ClientHandshake presents token as the first frame of a stream transport.
func ClientHandshake(ctx context.Context, fc FrameConn, token string) error {
	if err := fc.WriteFrame(ctx, []byte(token)); err != nil {
		return fmt.Errorf("sending token: %w", err)
	}
	return nil
}

// ServerHandshake reads the token presented by the device.
func ServerHandshake(ctx context.Context, fc FrameConn) (string, error) {
	frame, err := fc.ReadFrame(ctx)
	if err != nil {
		return "", fmt.Errorf("reading token: %w", err)
	}
	return string(frame), nil
}
