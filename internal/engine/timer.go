package engine

import (
	"context"
	"sync"
	"time"

	"mindmeld/internal/domain"
	"mindmeld/internal/logger"
)

// Timer forces a no-winner finish when a round outlives its countdown. One
// instance runs per observer; the firing path goes through the same
// conditional update as every other finish, so countdowns firing on several
// observers at once, or after the session already finished, collapse to a
// single applied transition.
type Timer struct {
	machine  *Machine
	duration time.Duration

	mu      sync.Mutex
	code    string
	round   int
	pending *time.Timer
}

func NewTimer(m *Machine, duration time.Duration) *Timer {
	return &Timer{machine: m, duration: duration}
}

// Observe realigns the countdown with the session state just read: arm on a
// new active round, rearm on round advance, stop once the session leaves the
// active state. Cancellation is best-effort; the guard at fire time is what
// keeps a late countdown harmless.
func (t *Timer) Observe(s *domain.Session) {
	if !s.TimerEnabled {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if s.Status != domain.StatusActive {
		t.stopLocked()
		return
	}

	if t.pending != nil && t.code == s.Code && t.round == s.Round {
		return
	}

	t.stopLocked()
	code, round := s.Code, s.Round
	t.code, t.round = code, round
	t.pending = time.AfterFunc(t.duration, func() {
		t.fire(code, round)
	})
	logger.Debug("round countdown armed", "session", code, "round", round, "duration", t.duration)
}

// Stop cancels any armed countdown.
func (t *Timer) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopLocked()
}

func (t *Timer) stopLocked() {
	if t.pending != nil {
		t.pending.Stop()
		t.pending = nil
	}
}

func (t *Timer) fire(code string, round int) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// the machine re-checks status and round at fire time; a session that
	// finished or advanced since arming makes this a no-op
	applied, err := t.machine.FinishLost(ctx, code, round, "timeout")
	if err != nil {
		logger.Warn("round timeout finish failed", "session", code, "round", round, "error", err)
		return
	}
	if applied {
		logger.Info("session timed out", "session", code, "round", round)
	}
}
