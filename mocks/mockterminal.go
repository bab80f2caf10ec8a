package mocks

import (
	"bytes"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"
)

// MockTerminal is an operator terminal for console tests. Input written with
// WriteInput is read by the console, and everything the console writes is
// collected for inspection.
type MockTerminal struct {
	inR *io.PipeReader
	inW *io.PipeWriter

	mu     sync.Mutex
	cond   *sync.Cond // signals output updates
	output bytes.Buffer
}

// NewMockTerminal creates a terminal with an open input stream.
func NewMockTerminal() *MockTerminal {
	r, w := io.Pipe()
	m := &MockTerminal{inR: r, inW: w}
	m.cond = sync.NewCond(&m.mu)
	return m
}

// WriteInput simulates the operator typing data.
func (m *MockTerminal) WriteInput(data []byte) (int, error) {
	return m.inW.Write(data)
}

// CloseInput ends the input stream, as with Ctrl-D on a cooked terminal.
func (m *MockTerminal) CloseInput() error {
	return m.inW.Close()
}

// Read implements io.Reader over the input stream.
func (m *MockTerminal) Read(p []byte) (int, error) {
	return m.inR.Read(p)
}

// Write implements io.Writer, collecting output.
func (m *MockTerminal) Write(p []byte) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	n, err := m.output.Write(p)
	m.cond.Broadcast()
	return n, err
}

// Close stops pending and future reads.
func (m *MockTerminal) Close() error {
	return m.inR.Close()
}

// Output returns everything written so far.
func (m *MockTerminal) Output() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.output.String()
}

// WaitForOutput waits until the output contains expected.
func (m *MockTerminal) WaitForOutput(expected string, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	timer := time.AfterFunc(timeout, func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		m.cond.Broadcast()
	})
	defer timer.Stop()

	m.mu.Lock()
	defer m.mu.Unlock()

	for !strings.Contains(m.output.String(), expected) {
		if !time.Now().Before(deadline) {
			return fmt.Errorf("timeout waiting for output %q, got: %q", expected, m.output.String())
		}
		m.cond.Wait()
	}
	return nil
}
