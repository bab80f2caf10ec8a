package netconn

import (
	"bytes"
	"context"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"devremote/troubleshoot/pkg/config"
)

type sink struct {
	mu     sync.Mutex
	data   bytes.Buffer
	closed chan struct{}
	once   sync.Once
}

func newSink() *sink {
	return &sink{closed: make(chan struct{})}
}

func (s *sink) Forward(p []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.Write(p)
	return nil
}

func (s *sink) Closed() {
	s.once.Do(func() { close(s.closed) })
}

func (s *sink) String() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.String()
}

func pipeDeps(t *testing.T) (*config.Dependencies, <-chan net.Conn, <-chan string) {
	t.Helper()

	remotes := make(chan net.Conn, 1)
	addrs := make(chan string, 1)
	deps := &config.Dependencies{
		TCPDialer: func(ctx context.Context, network string, laddr, raddr *net.TCPAddr) (net.Conn, error) {
			local, remote := net.Pipe()
			addrs <- raddr.String()
			remotes <- remote
			return local, nil
		},
	}
	return deps, remotes, addrs
}

func TestRemote_ConnectTCP(t *testing.T) {
	t.Parallel()

	deps, remotes, addrs := pipeDeps(t)
	out := newSink()

	c, err := New(0, nil, deps).Connect("127.0.0.1", 8080, "tcp", out)
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer c.Close()

	if got := <-addrs; got != "127.0.0.1:8080" {
		t.Errorf("dialed %q, want 127.0.0.1:8080", got)
	}
	remote := <-remotes

	go func() {
		_ = c.Send([]byte("ping"))
	}()
	buf := make([]byte, 4)
	if _, err := remote.Read(buf); err != nil {
		t.Fatalf("remote Read() error = %v", err)
	}
	if string(buf) != "ping" {
		t.Errorf("remote got %q, want ping", buf)
	}

	if _, err := remote.Write([]byte("pong")); err != nil {
		t.Fatalf("remote Write() error = %v", err)
	}
	_ = remote.Close()

	select {
	case <-out.closed:
	case <-time.After(2 * time.Second):
		t.Fatal("Closed() not reported after remote close")
	}
	if got := out.String(); got != "pong" {
		t.Errorf("forwarded %q, want pong", got)
	}
}

func TestRemote_CloseIsIdempotent(t *testing.T) {
	t.Parallel()

	deps, remotes, _ := pipeDeps(t)
	out := newSink()

	c, err := New(time.Second, nil, deps).Connect("localhost", 22, "tcp", out)
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	<-remotes

	if err := c.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
	if err := c.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
	select {
	case <-out.closed:
	case <-time.After(2 * time.Second):
		t.Fatal("Closed() not reported after local close")
	}
}

func TestRemote_ConnectErrors(t *testing.T) {
	t.Parallel()

	dialErr := errors.New("connection refused")
	deps := &config.Dependencies{
		TCPDialer: func(ctx context.Context, network string, laddr, raddr *net.TCPAddr) (net.Conn, error) {
			return nil, dialErr
		},
	}
	r := New(0, nil, deps)

	if _, err := r.Connect("127.0.0.1", 80, "tcp", newSink()); !errors.Is(err, dialErr) {
		t.Errorf("Connect(tcp) error = %v, want %v", err, dialErr)
	}
	if _, err := r.Connect("127.0.0.1", 80, "sctp", newSink()); err == nil {
		t.Error("Connect(sctp) error = nil, want error")
	}
}

func TestRemote_ConnectUDP(t *testing.T) {
	t.Parallel()

	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	if err != nil {
		t.Skipf("cannot listen on udp: %v", err)
	}
	defer pc.Close()
	port := uint16(pc.LocalAddr().(*net.UDPAddr).Port)

	out := newSink()
	c, err := New(0, nil, nil).Connect("127.0.0.1", port, "udp", out)
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer c.Close()

	if err := c.Send([]byte("hello")); err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	_ = pc.SetReadDeadline(time.Now().Add(2 * time.Second))
	buf := make([]byte, 64)
	n, from, err := pc.ReadFrom(buf)
	if err != nil {
		t.Fatalf("ReadFrom() error = %v", err)
	}
	if string(buf[:n]) != "hello" {
		t.Errorf("server got %q, want hello", buf[:n])
	}

	if _, err := pc.WriteTo([]byte("reply"), from); err != nil {
		t.Fatalf("WriteTo() error = %v", err)
	}
	deadline := time.Now().Add(2 * time.Second)
	for out.String() != "reply" {
		if time.Now().After(deadline) {
			t.Fatalf("forwarded %q, want reply", out.String())
		}
		time.Sleep(10 * time.Millisecond)
	}
}
