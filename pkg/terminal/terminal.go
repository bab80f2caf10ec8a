// Package terminal controls the operator's terminal during a remote shell.
package terminal

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/term"
)

// Size is a terminal size in character cells.
type Size struct {
	Width  uint16
	Height uint16
}

// IsTerminal reports whether fd is a terminal.
func IsTerminal(fd int) bool {
	return term.IsTerminal(fd)
}

// MakeRaw puts fd into raw mode and returns the function restoring it.
func MakeRaw(fd int) (func(), error) {
	oldState, err := term.MakeRaw(fd)
	if err != nil {
		return nil, fmt.Errorf("setting terminal to raw mode: %w", err)
	}
	return func() {
		_ = term.Restore(fd, oldState)
		fmt.Printf("\033[2K\r") // clear line
	}, nil
}

// GetSize returns the size of the terminal fd.
func GetSize(fd int) (Size, error) {
	w, h, err := term.GetSize(fd)
	if err != nil {
		return Size{}, fmt.Errorf("getting terminal size: %w", err)
	}
	return Size{Width: uint16(w), Height: uint16(h)}, nil
}

// WatchSize polls size every interval and calls onChange whenever the
// result differs from last. It returns when ctx is done.
func WatchSize(ctx context.Context, interval time.Duration, last Size, size func() (Size, error), onChange func(Size)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s, err := size()
			if err != nil || s == last {
				continue
			}
			onChange(s)
			last = s
		case <-ctx.Done():
			return
		}
	}
}
