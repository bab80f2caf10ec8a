package tcp

import (
	"context"
	"testing"
	"time"

	"devremote/troubleshoot/mocks"
	"devremote/troubleshoot/pkg/config"
	"devremote/troubleshoot/pkg/transport"
)

func TestNewDialer(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		addr    string
		wantErr bool
	}{
		{name: "valid address", addr: "127.0.0.1:8080"},
		{name: "missing port", addr: "127.0.0.1", wantErr: true},
		{name: "bad port", addr: "127.0.0.1:abc", wantErr: true},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			_, err := NewDialer(tc.addr, nil)
			if (err != nil) != tc.wantErr {
				t.Errorf("NewDialer(%q) error = %v, wantErr %v", tc.addr, err, tc.wantErr)
			}
		})
	}
}

func TestDialAndServe(t *testing.T) {
	t.Parallel()

	const addr = "127.0.0.1:9100"
	mockNet := mocks.NewMockNetwork()
	deps := &config.Dependencies{
		TCPListener: mockNet.ListenTCP,
		TCPDialer:   mockNet.DialTCP,
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tokens := make(chan string, 1)
	handler := func(ctx context.Context, fc transport.FrameConn, token string) error {
		tokens <- token
		frame, err := fc.ReadFrame(ctx)
		if err != nil {
			return err
		}
		return fc.WriteFrame(ctx, append([]byte("echo:"), frame...))
	}

	serveErr := make(chan error, 1)
	go func() { serveErr <- ListenAndServe(ctx, addr, handler, nil, deps) }()
	if err := mockNet.WaitForListener("tcp", addr, 2*time.Second); err != nil {
		t.Fatalf("WaitForListener() error = %v", err)
	}

	d, err := NewDialer(addr, deps)
	if err != nil {
		t.Fatalf("NewDialer() error = %v", err)
	}

	got := make(chan []byte, 1)
	conn, err := d.Dial(ctx, transport.DialRequest{Token: "tok"}, transport.Callbacks{
		OnData: func(frame []byte) { got <- frame },
	})
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer conn.Close()

	if tok := <-tokens; tok != "tok" {
		t.Errorf("handler token = %q, want %q", tok, "tok")
	}
	if err := conn.Send(ctx, []byte("ping")); err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	select {
	case frame := <-got:
		if string(frame) != "echo:ping" {
			t.Errorf("OnData() = %q, want %q", frame, "echo:ping")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for echo")
	}

	cancel()
	select {
	case err := <-serveErr:
		if err != nil {
			t.Errorf("ListenAndServe() error = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("ListenAndServe did not exit after cancellation")
	}
}

func TestListenAndServe_InvalidAddress(t *testing.T) {
	t.Parallel()

	err := ListenAndServe(context.Background(), "invalid:abc", nil, nil, nil)
	if err == nil {
		t.Error("ListenAndServe(invalid:abc) error = nil")
	}
}
