// Package helpers wires a complete agent to a console peer for end-to-end
// tests.
package helpers

import (
	"bytes"
	"context"
	"sync"
	"testing"
	"time"

	"devremote/troubleshoot/mocks"
	"devremote/troubleshoot/pkg/config"
	"devremote/troubleshoot/pkg/console"
	"devremote/troubleshoot/pkg/dispatcher"
	"devremote/troubleshoot/pkg/host/files"
	"devremote/troubleshoot/pkg/host/hooks"
	"devremote/troubleshoot/pkg/host/netconn"
	"devremote/troubleshoot/pkg/host/pty"
	"devremote/troubleshoot/pkg/log"
)

// AgentConfig returns an agent configuration with every feature enabled
// and small transfer sizes.
func AgentConfig() *config.Agent {
	return &config.Agent{
		Token:          "integration-token",
		HealthInterval: time.Minute,
		Features:       config.AllFeatures(),
		ChunkSize:      16,
		BatchSize:      4,
		Shell:          pty.DefaultShell,
	}
}

// Connect starts an agent over an in-memory transport, connects it from its
// health check and returns the console peer accepted on the other side.
// Both are torn down when the test ends.
func Connect(t testing.TB, aCfg *config.Agent, deps *config.Dependencies) *console.Peer {
	t.Helper()

	logs := &syncBuffer{}
	logger := log.NewLoggerTo(logs, true)
	t.Cleanup(func() {
		if t.Failed() {
			t.Logf("agent and console log:\n%s", logs.String())
		}
	})
	mt := mocks.NewMockTransport()

	d, err := dispatcher.New(dispatcher.Config{
		Features:       aCfg.Features,
		HealthInterval: aCfg.HealthInterval,
		ChunkSize:      aCfg.ChunkSize,
		BatchSize:      aCfg.BatchSize,
		SendTimeout:    5 * time.Second,
	}, dispatcher.Capabilities{
		Shell:  pty.New(aCfg.Shell, logger),
		Files:  files.New(logger),
		Remote: netconn.New(netconn.DefaultTimeout, logger, deps),
	}, hooks.New(aCfg, logger, deps), mt, logger)
	if err != nil {
		t.Fatalf("dispatcher.New(): %s", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	errc := make(chan error, 1)
	go func() { errc <- d.HealthCheck(ctx) }()

	fc, token, err := mt.Accept(ctx)
	if err != nil {
		t.Fatalf("Accept(): %s", err)
	}
	if token != aCfg.Token {
		t.Errorf("agent presented token %q, want %q", token, aCfg.Token)
	}
	if err := <-errc; err != nil {
		t.Fatalf("HealthCheck(): %s", err)
	}

	p := console.New(fc, logger)
	t.Cleanup(func() {
		_ = d.Deactivate(context.Background())
		_ = p.Close()
	})
	return p
}

// Context returns a context cancelled when the test ends or after timeout.
func Context(t testing.TB, timeout time.Duration) context.Context {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	t.Cleanup(cancel)
	return ctx
}

// syncBuffer collects log output written from several goroutines.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}
