package log

import (
	"fmt"
	"os"
	"sync"
)

// Transcript appends everything written to it to a log file.
type Transcript struct {
	mu   sync.Mutex
	file *os.File
}

// NewTranscript creates or appends to the log file at path.
func NewTranscript(path string) (*Transcript, error) {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("os.OpenFile(%s): %w", path, err)
	}

	return &Transcript{file: f}, nil
}

func (t *Transcript) Write(b []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	n, err := t.file.Write(b)
	if err != nil {
		return n, fmt.Errorf("writing transcript: %w", err)
	}
	return n, nil
}

// Close closes the underlying log file.
func (t *Transcript) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.file.Close()
}
