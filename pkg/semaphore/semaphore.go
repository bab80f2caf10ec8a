// Package semaphore limits how many devices a listener serves at once.
package semaphore

// Slots is a counting semaphore. A nil *Slots never limits.
type Slots struct {
	ch chan struct{}
}

// New creates a semaphore with n free slots.
func New(n int) *Slots {
	ch := make(chan struct{}, n)
	for i := 0; i < n; i++ {
		ch <- struct{}{}
	}
	return &Slots{ch: ch}
}

// TryAcquire takes a slot if one is free.
func (s *Slots) TryAcquire() bool {
	if s == nil {
		return true
	}

	select {
	case <-s.ch:
		return true
	default:
		return false
	}
}

// Release returns a slot taken by TryAcquire.
func (s *Slots) Release() {
	if s == nil {
		return
	}
	s.ch <- struct{}{}
}
