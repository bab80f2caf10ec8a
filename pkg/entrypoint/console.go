package entrypoint

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"devremote/troubleshoot/pkg/config"
	"devremote/troubleshoot/pkg/console"
	"devremote/troubleshoot/pkg/log"
	"devremote/troubleshoot/pkg/pipeio"
	"devremote/troubleshoot/pkg/terminal"
	"devremote/troubleshoot/pkg/transport"
)

// ErrUnauthorized is returned for a device presenting the wrong token.
var ErrUnauthorized = errors.New("device presented an invalid token")

// Console waits for one device, runs the configured action against it and
// returns.
func Console(ctx context.Context, cfg *config.Shared, cCfg *config.Console) error {
	term, cleanup, err := stdTerminal(cfg, cCfg)
	if err != nil {
		return err
	}
	defer cleanup()

	return runConsole(ctx, cfg, cCfg, term, realListen())
}

func runConsole(parent context.Context, cfg *config.Shared, cCfg *config.Console, term console.Terminal, listen listenFunc) error {
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	tlsCfg, err := loadTLS(cCfg)
	if err != nil {
		return err
	}

	var once sync.Once
	result := make(chan error, 1)
	handler := newConsoleHandler(cfg, cCfg, term, func(err error) {
		once.Do(func() {
			result <- err
			cancel()
		})
	})

	if err := listen(ctx, cfg, tlsCfg, handler); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("listening: %w", err)
	}

	select {
	case err := <-result:
		return err
	default:
		return nil
	}
}

// newConsoleHandler authenticates a device and runs the console action
// against it. done receives the result of the action.
func newConsoleHandler(cfg *config.Shared, cCfg *config.Console, term console.Terminal, done func(error)) transport.Handler {
	return func(ctx context.Context, fc transport.FrameConn, token string) error {
		if cCfg.Token != "" && subtle.ConstantTimeCompare([]byte(token), []byte(cCfg.Token)) != 1 {
			cfg.Logger.WarnMsg("Rejecting device: %s\n", ErrUnauthorized)
			return ErrUnauthorized
		}

		cfg.Logger.InfoMsg("Device connected\n")
		p := console.New(fc, cfg.Logger)
		err := console.Run(ctx, p, cCfg, term)
		_ = p.Close()

		done(err)
		return err
	}
}

// stdTerminal connects the console to the process' terminal. An
// interactive session puts a terminal stdin into raw mode.
func stdTerminal(cfg *config.Shared, cCfg *config.Console) (console.Terminal, func(), error) {
	stdio := pipeio.NewStdio(os.Stdin, os.Stdout)
	term := console.Terminal{IO: stdio}
	closers := []func(){}

	if cCfg.LogFile != "" {
		t, err := log.NewTranscript(cCfg.LogFile)
		if err != nil {
			return console.Terminal{}, nil, fmt.Errorf("opening transcript: %w", err)
		}
		term.Transcript = t
		closers = append(closers, func() { _ = t.Close() })
	}

	fd := int(os.Stdin.Fd())
	if cCfg.Interactive() && terminal.IsTerminal(fd) {
		term.Size = func() (terminal.Size, error) { return terminal.GetSize(int(os.Stdout.Fd())) }
		term.IO = &rawIO{ReadWriteCloser: stdio, fd: fd, logger: cfg.Logger}
	}

	cleanup := func() {
		if r, ok := term.IO.(*rawIO); ok {
			r.restore()
		}
		for _, c := range closers {
			c()
		}
	}
	return term, cleanup, nil
}

// rawIO switches the terminal to raw mode on first use, so the operator
// keeps a cooked terminal until a device is connected.
type rawIO struct {
	io.ReadWriteCloser
	fd     int
	logger *log.Logger

	once sync.Once
	mu   sync.Mutex
	undo func()
}

func (r *rawIO) enable() {
	r.once.Do(func() {
		undo, err := terminal.MakeRaw(r.fd)
		if err != nil {
			r.logger.ErrorMsg("%s\n", err)
			return
		}
		r.mu.Lock()
		r.undo = undo
		r.mu.Unlock()
	})
}

func (r *rawIO) restore() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.undo != nil {
		r.undo()
		r.undo = nil
	}
}

func (r *rawIO) Read(p []byte) (int, error) {
	r.enable()
	return r.ReadWriteCloser.Read(p)
}
