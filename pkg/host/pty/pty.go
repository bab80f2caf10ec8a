// Package pty provides the shell capability: a shell process attached to a
// pseudo-terminal, whose output is pumped to the session's output sink.
package pty

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"

	"devremote/troubleshoot/pkg/handler/shell"
	"devremote/troubleshoot/pkg/log"

	"github.com/creack/pty"
)

// DefaultShell is started when no program is configured.
const DefaultShell = "/bin/sh"

var ptyStart = pty.StartWithSize

// Shell starts one shell process per session.
type Shell struct {
	program string
	logger  *log.Logger

	mu   sync.Mutex
	sess *session
}

// New creates a shell capability running program.
func New(program string, logger *log.Logger) *Shell {
	if program == "" {
		program = DefaultShell
	}
	return &Shell{program: program, logger: logger}
}

type session struct {
	cmd       *exec.Cmd
	ptmx      *os.File
	closeOnce sync.Once
}

// Open starts the shell with the given terminal size; 0x0 keeps the
// default size of the pseudo-terminal.
func (s *Shell) Open(width, height uint16, out shell.Output) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.sess != nil {
		return errors.New("shell already running")
	}

	cmd := exec.Command(s.program)
	cmd.Env = append(os.Environ(), "TERM=xterm-256color")

	var ws *pty.Winsize
	if width > 0 && height > 0 {
		ws = &pty.Winsize{Cols: width, Rows: height}
	}

	ptmx, err := ptyStart(cmd, ws)
	if err != nil {
		return fmt.Errorf("starting %s: %w", s.program, err)
	}

	sess := &session{cmd: cmd, ptmx: ptmx}
	s.sess = sess

	go s.readLoop(sess, out)
	go func() {
		_ = cmd.Wait()
		s.logger.VerboseMsg("Shell process %d exited", cmd.Process.Pid)
	}()

	return nil
}

// readLoop pumps output until the pseudo-terminal fails, which happens when
// the process exits or the session is closed.
func (s *Shell) readLoop(sess *session, out shell.Output) {
	buf := make([]byte, 32*1024)
	for {
		n, err := sess.ptmx.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			if perr := out.Print(chunk); perr != nil {
				s.logger.VerboseMsg("Dropping shell output: %s", perr)
			}
		}
		if err != nil {
			if !errors.Is(err, io.EOF) {
				s.logger.VerboseMsg("Reading from pty: %s", err)
			}
			s.release(sess)
			out.Closed()
			return
		}
	}
}

// Resize changes the terminal size of the running shell.
func (s *Shell) Resize(width, height uint16) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.sess == nil {
		return errors.New("no shell running")
	}
	return pty.Setsize(s.sess.ptmx, &pty.Winsize{Cols: width, Rows: height})
}

// Write sends input to the shell.
func (s *Shell) Write(p []byte) error {
	s.mu.Lock()
	sess := s.sess
	s.mu.Unlock()

	if sess == nil {
		return errors.New("no shell running")
	}
	_, err := sess.ptmx.Write(p)
	return err
}

// Close kills the shell. It does not wait for the output pump to finish.
func (s *Shell) Close() error {
	s.mu.Lock()
	sess := s.sess
	s.sess = nil
	s.mu.Unlock()

	if sess == nil {
		return nil
	}
	return sess.close()
}

func (s *Shell) release(sess *session) {
	s.mu.Lock()
	if s.sess == sess {
		s.sess = nil
	}
	s.mu.Unlock()
	_ = sess.close()
}

func (sess *session) close() error {
	var err error
	sess.closeOnce.Do(func() {
		if sess.cmd.Process != nil {
			_ = sess.cmd.Process.Kill()
		}
		err = sess.ptmx.Close()
	})
	return err
}
