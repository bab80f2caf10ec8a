package ws

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"devremote/troubleshoot/pkg/log"
	"devremote/troubleshoot/pkg/semaphore"
	"devremote/troubleshoot/pkg/transport"

	"github.com/coder/websocket"
)

// Options configure the websocket listener.
type Options struct {
	// Path the device connects to. Empty accepts any path.
	Path string
	// TLS enables wss when non-nil.
	TLS *tls.Config
}

// ListenAndServe creates a websocket listener and serves device connections
// until ctx is cancelled. A single device is served at a time; further
// upgrade requests receive HTTP 503.
func ListenAndServe(ctx context.Context, addr string, opts Options, handler transport.Handler, logger *log.Logger) error {
	listener, err := createNetListener(addr, opts.TLS)
	if err != nil {
		return err
	}
	defer listener.Close()

	server := &http.Server{
		Handler: NewHandler(ctx, opts.Path, handler, logger),

		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	return serveWithContext(ctx, server, listener)
}

func createNetListener(addr string, tlsCfg *tls.Config) (net.Listener, error) {
	tcpAddr, err := net.ResolveTCPAddr("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("net.ResolveTCPAddr(tcp, %s): %w", addr, err)
	}

	var nl net.Listener
	nl, err = net.ListenTCP("tcp", tcpAddr)
	if err != nil {
		return nil, fmt.Errorf("net.ListenTCP(tcp, %s): %w", tcpAddr.String(), err)
	}

	if tlsCfg != nil {
		nl = tls.NewListener(nl, tlsCfg)
	}
	return nl, nil
}

// NewHandler returns an http.Handler that upgrades device requests to
// websocket connections and passes them to handler.
func NewHandler(ctx context.Context, path string, handler transport.Handler, logger *log.Logger) http.Handler {
	slots := semaphore.New(1) // a single active device

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if path != "" && r.URL.Path != path {
			http.NotFound(w, r)
			return
		}

		token, ok := bearerToken(r)
		if !ok {
			http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
			return
		}

		if !slots.TryAcquire() {
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
			return
		}
		defer slots.Release()
		handleUpgrade(ctx, w, r, token, handler, logger)
	})
}

func bearerToken(r *http.Request) (string, bool) {
	auth := r.Header.Get("Authorization")
	token, ok := strings.CutPrefix(auth, "Bearer ")
	if !ok || token == "" {
		return "", false
	}
	return token, true
}

func handleUpgrade(ctx context.Context, w http.ResponseWriter, r *http.Request, token string, handler transport.Handler, logger *log.Logger) {
	c, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		Subprotocols: []string{Subprotocol},
	})
	if err != nil {
		logger.ErrorMsg("websocket.Accept(): %s\n", err)
		return
	}
	c.SetReadLimit(transport.MaxFrameSize)

	logger.InfoMsg("New WS connection from %s\n", r.RemoteAddr)

	fc := NewFrameConn(c)
	defer func() { _ = fc.Close() }()

	defer func() {
		if r := recover(); r != nil {
			logger.ErrorMsg("Handler panic: %v\n", r)
		}
	}()

	if err := handler(ctx, fc, token); err != nil {
		logger.ErrorMsg("Handling websocket connection: %s\n", err)
	}
}

func serveWithContext(ctx context.Context, server *http.Server, listener net.Listener) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Serve(listener)
	}()

	select {
	case <-ctx.Done():
		_ = listener.Close()
		err := <-errCh
		if err == nil || errors.Is(err, http.ErrServerClosed) || errors.Is(err, net.ErrClosed) {
			return nil
		}
		return fmt.Errorf("serving after cancellation: %w", err)

	case err := <-errCh:
		if err == nil || errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http.Server.Serve(): %w", err)
	}
}
