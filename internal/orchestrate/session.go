package orchestrate

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// DefaultDebounce is the input coalescing window: keystrokes arriving within
// it collapse into one search turn.
const DefaultDebounce = 100 * time.Millisecond

// Session coalesces rapid input changes into debounced search turns and
// enforces last-request-wins: a turn that resolves after a newer turn has
// started is discarded by identity, never applied out of order. Provider
// calls are not hard-canceled; staleness discard is the correctness
// mechanism.
type Session struct {
	orch    *Orchestrator
	window  time.Duration
	deliver func(TurnResult)

	turn atomic.Uint64

	// deliverMu serializes the staleness check with delivery so a turn that
	// resolved concurrently with a newer one can never deliver after it.
	deliverMu     sync.Mutex
	lastDelivered uint64

	mu     sync.Mutex
	timer  *time.Timer
	closed bool
}

// NewSession creates a session delivering turn results to deliver. The
// callback runs on an internal goroutine; window <= 0 selects
// DefaultDebounce.
func NewSession(orch *Orchestrator, window time.Duration, deliver func(TurnResult)) *Session {
	if window <= 0 {
		window = DefaultDebounce
	}
	return &Session{orch: orch, window: window, deliver: deliver}
}

// Input records a new input state. The previous pending turn, if its
// debounce window has not elapsed, is replaced.
func (s *Session) Input(raw string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	if s.timer != nil {
		s.timer.Stop()
	}
	s.timer = time.AfterFunc(s.window, func() { s.run(raw) })
}

// SearchNow bypasses the debounce window, running a turn immediately. Used
// when the palette opens with pre-filled input.
func (s *Session) SearchNow(raw string) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.mu.Unlock()
	s.run(raw)
}

func (s *Session) run(raw string) {
	id := s.turn.Add(1)
	res := s.orch.Search(context.Background(), raw)

	s.deliverMu.Lock()
	defer s.deliverMu.Unlock()

	// A newer turn started while this one was in flight, or has already
	// delivered: stale, discard.
	if s.turn.Load() != id || id <= s.lastDelivered {
		return
	}

	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return
	}
	s.lastDelivered = id
	s.deliver(res)
}

// Close stops pending turns. In-flight turns are invalidated so their
// results never reach deliver.
func (s *Session) Close() {
	s.mu.Lock()
	s.closed = true
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.mu.Unlock()

	s.turn.Add(1) // invalidate anything in flight
}
