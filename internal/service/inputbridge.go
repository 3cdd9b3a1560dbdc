package service

import (
	"sync"
	"time"
)

// StopSentinel is the input value that stops a run. The bridge injects it
// when a wait times out so an abandoned session winds down on its own.
const StopSentinel = "n"

// DefaultInputTimeout bounds how long a run waits for user input.
const DefaultInputTimeout = 5 * time.Minute

// InputBridge hands user input from the connection goroutine to the run-loop
// goroutine. At most one waiter exists at a time; input delivered while
// nobody waits is dropped.
type InputBridge struct {
	mu      sync.Mutex
	waiting bool
	slot    chan string
}

// NewInputBridge returns an idle bridge.
func NewInputBridge() *InputBridge {
	return &InputBridge{}
}

// Await blocks until input arrives or the timeout elapses, whichever comes
// first. On timeout it returns StopSentinel. Only the run-loop goroutine
// calls Await.
func (b *InputBridge) Await(timeout time.Duration) string {
	b.mu.Lock()
	slot := make(chan string, 1)
	b.slot = slot
	b.waiting = true
	b.mu.Unlock()

	defer func() {
		b.mu.Lock()
		b.waiting = false
		b.slot = nil
		b.mu.Unlock()
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case v := <-slot:
		return v
	case <-timer.C:
		return StopSentinel
	}
}

// Deliver hands input to the current waiter. It reports false when no run is
// waiting, so the caller can tell the client the input went nowhere. A
// delivery landing between the wait timing out and the waiter clearing the
// slot reports true but is discarded; the run is already stopping on the
// sentinel at that point.
func (b *InputBridge) Deliver(input string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.waiting || b.slot == nil {
		return false
	}

	select {
	case b.slot <- input:
		return true
	default:
		return false
	}
}

// Waiting reports whether a run is currently blocked on input.
func (b *InputBridge) Waiting() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.waiting
}
