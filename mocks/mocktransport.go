package mocks

import (
	"context"
	"errors"
	"net"
	"sync"

	"devremote/troubleshoot/pkg/transport"
)

// MockTransport connects device dialers to a console in memory. Each Dial
// creates a net.Pipe carrying length-prefixed frames; the server end is
// handed to Accept together with the presented token.
type MockTransport struct {
	conns chan acceptedConn

	mu      sync.Mutex
	dialErr error
	dials   int
}

type acceptedConn struct {
	fc    transport.FrameConn
	token string
}

// NewMockTransport creates an in-memory transport.
func NewMockTransport() *MockTransport {
	return &MockTransport{conns: make(chan acceptedConn)}
}

// FailDials makes subsequent dials fail with err; nil restores them.
func (m *MockTransport) FailDials(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dialErr = err
}

// Dials returns the number of dial attempts.
func (m *MockTransport) Dials() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.dials
}

// Dial implements transport.Dialer. It blocks until the connection is
// accepted or ctx is done.
func (m *MockTransport) Dial(ctx context.Context, req transport.DialRequest, cb transport.Callbacks) (transport.Conn, error) {
	m.mu.Lock()
	m.dials++
	err := m.dialErr
	m.mu.Unlock()
	if err != nil {
		return nil, err
	}

	device, server := net.Pipe()
	select {
	case m.conns <- acceptedConn{fc: transport.NewStreamFrameConn(server), token: req.Token}:
	case <-ctx.Done():
		_ = device.Close()
		_ = server.Close()
		return nil, ctx.Err()
	}
	return transport.NewConn(transport.NewStreamFrameConn(device), cb), nil
}

// Accept waits for the next device connection.
func (m *MockTransport) Accept(ctx context.Context) (transport.FrameConn, string, error) {
	select {
	case a := <-m.conns:
		return a.fc, a.token, nil
	case <-ctx.Done():
		return nil, "", ctx.Err()
	}
}

// ListenAndServe serves accepted connections with handler, one at a time,
// until ctx is done. Like the real listeners it keeps serving after a
// handler error.
func (m *MockTransport) ListenAndServe(ctx context.Context, handler transport.Handler) error {
	for {
		fc, token, err := m.Accept(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil
			}
			return err
		}
		_ = handler(ctx, fc, token)
		_ = fc.Close()
	}
}
