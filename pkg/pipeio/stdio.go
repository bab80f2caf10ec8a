// Package pipeio provides the console's standard streams.
package pipeio

import (
	"io"
	"os"

	"github.com/muesli/cancelreader"
)

// Stdio reads input and writes output for the console. Reads are
// cancellable where the platform supports it, so Close unblocks a pending
// Read.
type Stdio struct {
	in         io.Reader
	cancelable cancelreader.CancelReader
	out        io.Writer
}

// NewStdio wraps in and out. Nil streams default to os.Stdin and os.Stdout.
func NewStdio(in io.Reader, out io.Writer) *Stdio {
	if in == nil {
		in = os.Stdin
	}
	if out == nil {
		out = os.Stdout
	}

	s := &Stdio{in: in, out: out}
	if cr, err := cancelreader.NewReader(in); err == nil {
		s.cancelable = cr
	}
	return s
}

// Read reads input.
func (s *Stdio) Read(p []byte) (int, error) {
	if s.cancelable != nil {
		return s.cancelable.Read(p)
	}
	return s.in.Read(p)
}

// Write writes output.
func (s *Stdio) Write(p []byte) (int, error) {
	return s.out.Write(p)
}

// Close cancels a pending Read. Close on a stream that cannot be cancelled
// has no effect.
func (s *Stdio) Close() error {
	if s.cancelable != nil {
		s.cancelable.Cancel()
	}
	return nil
}
