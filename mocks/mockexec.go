package mocks

import (
	"fmt"
	"strings"
	"sync"

	"devremote/troubleshoot/pkg/config"
)

// MockExec records the commands it is asked to run and answers them from a
// script keyed by the full command line.
type MockExec struct {
	mu      sync.Mutex
	script  map[string]MockResult
	history []string
}

// MockResult is the outcome of one scripted command.
type MockResult struct {
	Output string
	Err    error
}

// NewMockExec creates a mock whose unscripted commands succeed silently.
func NewMockExec() *MockExec {
	return &MockExec{script: make(map[string]MockResult)}
}

// On scripts the result of the command line "program arg1 arg2 ...".
func (m *MockExec) On(cmdline string, res MockResult) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.script[cmdline] = res
}

// Command implements config.ExecCommandFunc.
func (m *MockExec) Command(program string, args ...string) config.Cmd {
	return &mockCmd{
		exec:    m,
		cmdline: strings.Join(append([]string{program}, args...), " "),
	}
}

// History returns the command lines run so far.
func (m *MockExec) History() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.history...)
}

type mockCmd struct {
	exec    *MockExec
	cmdline string
	ran     bool
}

func (c *mockCmd) CombinedOutput() ([]byte, error) {
	if c.ran {
		return nil, fmt.Errorf("exec: already started")
	}
	c.ran = true

	c.exec.mu.Lock()
	defer c.exec.mu.Unlock()

	c.exec.history = append(c.exec.history, c.cmdline)
	res := c.exec.script[c.cmdline]
	return []byte(res.Output), res.Err
}
