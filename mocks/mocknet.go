// Package mocks provides in-memory fakes of the transport, network, exec and
// terminal dependencies for tests.
package mocks

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"
)

// MockNetwork is an in-memory network. Listeners and dialers plug into
// config.Dependencies; every dial is connected to the matching listener
// through a net.Pipe. UDP is modelled like TCP, one pipe per dialed flow.
type MockNetwork struct {
	mu        sync.Mutex
	cond      *sync.Cond // signals listener changes
	listeners map[string]*mockListener
	dials     []string
}

// NewMockNetwork creates an empty network.
func NewMockNetwork() *MockNetwork {
	m := &MockNetwork{listeners: make(map[string]*mockListener)}
	m.cond = sync.NewCond(&m.mu)
	return m
}

func key(network, addr string) string {
	return network + " " + addr
}

// ListenTCP implements config.TCPListenerFunc.
func (m *MockNetwork) ListenTCP(network string, laddr *net.TCPAddr) (net.Listener, error) {
	if network != "tcp" {
		return nil, fmt.Errorf("unsupported network type: %s", network)
	}
	return m.listen("tcp", laddr)
}

// ListenUDP registers a UDP service. Each accepted conn is one dialed flow.
func (m *MockNetwork) ListenUDP(laddr *net.UDPAddr) (net.Listener, error) {
	return m.listen("udp", laddr)
}

func (m *MockNetwork) listen(network string, addr net.Addr) (net.Listener, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	k := key(network, addr.String())
	if _, exists := m.listeners[k]; exists {
		return nil, fmt.Errorf("address already in use: %s/%s", addr, network)
	}

	l := &mockListener{
		key:     k,
		addr:    addr,
		conns:   make(chan net.Conn, 8),
		closeCh: make(chan struct{}),
		network: m,
	}
	m.listeners[k] = l
	m.cond.Broadcast()
	return l, nil
}

// DialTCP implements config.TCPDialerFunc.
func (m *MockNetwork) DialTCP(ctx context.Context, network string, laddr, raddr *net.TCPAddr) (net.Conn, error) {
	if network != "tcp" {
		return nil, fmt.Errorf("unsupported network type: %s", network)
	}
	return m.dial(ctx, "tcp", raddr)
}

// DialUDP implements config.UDPDialerFunc.
func (m *MockNetwork) DialUDP(ctx context.Context, network string, laddr, raddr *net.UDPAddr) (net.Conn, error) {
	if network != "udp" {
		return nil, fmt.Errorf("unsupported network type: %s", network)
	}
	return m.dial(ctx, "udp", raddr)
}

func (m *MockNetwork) dial(ctx context.Context, network string, raddr net.Addr) (net.Conn, error) {
	k := key(network, raddr.String())

	m.mu.Lock()
	m.dials = append(m.dials, k)
	l, exists := m.listeners[k]
	m.mu.Unlock()

	if !exists {
		return nil, fmt.Errorf("connection refused: no listener on %s/%s", raddr, network)
	}

	client, server := net.Pipe()
	select {
	case l.conns <- &addrConn{Conn: server, local: raddr}:
		return &addrConn{Conn: client, remote: raddr}, nil
	case <-l.closeCh:
	case <-ctx.Done():
	}
	client.Close()
	server.Close()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return nil, fmt.Errorf("connection refused: listener on %s/%s closed", raddr, network)
}

// Dials returns "network addr" of every dial attempt in order.
func (m *MockNetwork) Dials() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.dials...)
}

// WaitForListener waits until something listens on addr.
func (m *MockNetwork) WaitForListener(network, addr string, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	timer := time.AfterFunc(timeout, func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		m.cond.Broadcast()
	})
	defer timer.Stop()

	m.mu.Lock()
	defer m.mu.Unlock()

	for {
		if _, exists := m.listeners[key(network, addr)]; exists {
			return nil
		}
		if !time.Now().Before(deadline) {
			return fmt.Errorf("timeout waiting for listener on %s/%s", addr, network)
		}
		m.cond.Wait()
	}
}

type mockListener struct {
	key     string
	addr    net.Addr
	conns   chan net.Conn
	closeCh chan struct{}
	once    sync.Once
	network *MockNetwork
}

func (l *mockListener) Accept() (net.Conn, error) {
	select {
	case c := <-l.conns:
		return c, nil
	case <-l.closeCh:
		return nil, net.ErrClosed
	}
}

// Close frees the address for a new listener.
func (l *mockListener) Close() error {
	l.once.Do(func() {
		close(l.closeCh)

		l.network.mu.Lock()
		defer l.network.mu.Unlock()
		if l.network.listeners[l.key] == l {
			delete(l.network.listeners, l.key)
		}
	})
	return nil
}

func (l *mockListener) Addr() net.Addr {
	return l.addr
}

// addrConn reports the dialed address on the side that knows it.
type addrConn struct {
	net.Conn
	local  net.Addr
	remote net.Addr
}

func (c *addrConn) LocalAddr() net.Addr {
	if c.local != nil {
		return c.local
	}
	return c.Conn.LocalAddr()
}

func (c *addrConn) RemoteAddr() net.Addr {
	if c.remote != nil {
		return c.remote
	}
	return c.Conn.RemoteAddr()
}

var _ net.Listener = (*mockListener)(nil)
