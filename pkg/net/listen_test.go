package net

import (
	"context"
	"crypto/tls"
	"errors"
	"testing"

	"devremote/troubleshoot/pkg/config"
	"devremote/troubleshoot/pkg/log"
	"devremote/troubleshoot/pkg/transport"
	"devremote/troubleshoot/pkg/transport/ws"
)

func noopHandler(ctx context.Context, fc transport.FrameConn, token string) error {
	return nil
}

// recordingDeps reports which listener was selected and what it received.
func recordingDeps(selected *string, gotAddr *string, gotOpts *ws.Options) *listenDependencies {
	return &listenDependencies{
		listenAndServeTCP: func(ctx context.Context, addr string, handler transport.Handler, logger *log.Logger, deps *config.Dependencies) error {
			*selected, *gotAddr = "tcp", addr
			return nil
		},
		listenAndServeWS: func(ctx context.Context, addr string, opts ws.Options, handler transport.Handler, logger *log.Logger) error {
			*selected, *gotAddr, *gotOpts = "ws", addr, opts
			return nil
		},
		listenAndServeUDP: func(ctx context.Context, addr string, handler transport.Handler, logger *log.Logger, deps *config.Dependencies) error {
			*selected, *gotAddr = "udp", addr
			return nil
		},
	}
}

func TestListenAndServe_SelectsTransport(t *testing.T) {
	t.Parallel()

	tlsCfg := &tls.Config{MinVersion: tls.VersionTLS12}

	tests := []struct {
		name     string
		protocol config.Protocol
		host     string
		want     string
		wantAddr string
		wantTLS  bool
	}{
		{"tcp", config.ProtoTCP, "localhost", "tcp", "localhost:8080", false},
		{"ws", config.ProtoWS, "0.0.0.0", "ws", "0.0.0.0:8080", false},
		{"wss", config.ProtoWSS, "::", "ws", "[::]:8080", true},
		{"udp", config.ProtoUDP, "127.0.0.1", "udp", "127.0.0.1:8080", false},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			var selected, addr string
			var opts ws.Options
			cfg := &config.Shared{
				Protocol: tc.protocol,
				Host:     tc.host,
				Port:     8080,
				Path:     "/device",
				Logger:   log.NewLogger(false),
			}

			err := listenAndServe(context.Background(), cfg, tlsCfg, noopHandler, recordingDeps(&selected, &addr, &opts))
			if err != nil {
				t.Fatalf("listenAndServe() error = %v", err)
			}
			if selected != tc.want {
				t.Errorf("selected %q, want %q", selected, tc.want)
			}
			if addr != tc.wantAddr {
				t.Errorf("addr = %q, want %q", addr, tc.wantAddr)
			}
			if selected == "ws" {
				if opts.Path != "/device" {
					t.Errorf("opts.Path = %q, want /device", opts.Path)
				}
				if (opts.TLS != nil) != tc.wantTLS {
					t.Errorf("opts.TLS set = %v, want %v", opts.TLS != nil, tc.wantTLS)
				}
			}
		})
	}
}

func TestListenAndServe_WSSWithoutCertificate(t *testing.T) {
	t.Parallel()

	var selected, addr string
	var opts ws.Options
	cfg := &config.Shared{Protocol: config.ProtoWSS, Host: "localhost", Port: 8443}

	err := listenAndServe(context.Background(), cfg, nil, noopHandler, recordingDeps(&selected, &addr, &opts))
	if !errors.Is(err, ErrTLSRequired) {
		t.Fatalf("listenAndServe() error = %v, want %v", err, ErrTLSRequired)
	}
	if selected != "" {
		t.Errorf("listener %q started without certificate", selected)
	}
}

func TestListenAndServe_ListenerFails(t *testing.T) {
	t.Parallel()

	expectedErr := errors.New("listener failed")
	deps := &listenDependencies{
		listenAndServeTCP: func(ctx context.Context, addr string, handler transport.Handler, logger *log.Logger, deps *config.Dependencies) error {
			return expectedErr
		},
	}
	cfg := &config.Shared{Protocol: config.ProtoTCP, Host: "localhost", Port: 8080}

	if err := listenAndServe(context.Background(), cfg, nil, noopHandler, deps); !errors.Is(err, expectedErr) {
		t.Fatalf("listenAndServe() error = %v, want %v", err, expectedErr)
	}
}
