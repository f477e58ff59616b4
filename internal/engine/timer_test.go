package engine

import (
	"context"
	"testing"
	"time"

	"mindmeld/internal/domain"
	"mindmeld/internal/store"
)

func waitForStatus(t *testing.T, st store.Store, code string, want domain.Status) *domain.Session {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		s := mustSession(t, st, code)
		if s.Status == want {
			return s
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("session %s never reached status %s", code, want)
	return nil
}

func TestTimerExpiryFinishesWithoutWinner(t *testing.T) {
	st := store.NewMemory()
	tm := NewTimer(NewMachine(st), 20*time.Millisecond)
	seedSession(t, st, "TIMEUP", domain.StatusActive, true, 0, "alice", "bob")

	tm.Observe(mustSession(t, st, "TIMEUP"))

	s := waitForStatus(t, st, "TIMEUP", domain.StatusFinished)
	if s.Won() {
		t.Fatalf("timed-out session recorded as won: %+v", s)
	}
	if s.WinnerName != "" || s.RoundsTaken != 0 {
		t.Fatalf("timeout set winner fields: %+v", s)
	}
}

func TestTimerLateFireIsNoOp(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	m := NewMachine(st)
	tm := NewTimer(m, 20*time.Millisecond)
	seedSession(t, st, "BEATEN", domain.StatusActive, true, 0, "alice", "bob")

	tm.Observe(mustSession(t, st, "BEATEN"))

	// the round resolves before the countdown elapses
	if applied, err := m.FinishWon(ctx, "BEATEN", 1, "alice & bob"); err != nil || !applied {
		t.Fatalf("finish: applied=%v err=%v", applied, err)
	}

	time.Sleep(60 * time.Millisecond)
	s := mustSession(t, st, "BEATEN")
	if !s.Won() || s.WinnerName != "alice & bob" || s.RoundsTaken != 1 {
		t.Fatalf("late countdown clobbered the win: %+v", s)
	}
}

func TestTimerRearmsOnRoundAdvance(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	m := NewMachine(st)
	tm := NewTimer(m, 40*time.Millisecond)
	seedSession(t, st, "REARMS", domain.StatusActive, true, 0, "alice", "bob")

	tm.Observe(mustSession(t, st, "REARMS"))

	// round advances just before the countdown elapses; the stale countdown
	// is guarded on the old round number and must not finish the session
	time.Sleep(20 * time.Millisecond)
	if applied, err := m.AdvanceRound(ctx, "REARMS", 1); err != nil || !applied {
		t.Fatalf("advance: applied=%v err=%v", applied, err)
	}
	tm.Observe(mustSession(t, st, "REARMS"))

	time.Sleep(25 * time.Millisecond)
	if got := mustSession(t, st, "REARMS").Status; got != domain.StatusActive {
		t.Fatalf("stale round countdown finished the session (status %s)", got)
	}

	// the fresh countdown for round 2 still runs its course
	waitForStatus(t, st, "REARMS", domain.StatusFinished)
}

func TestTimerDisabledNeverArms(t *testing.T) {
	st := store.NewMemory()
	tm := NewTimer(NewMachine(st), 10*time.Millisecond)
	seedSession(t, st, "NOTIMR", domain.StatusActive, false, 0, "alice", "bob")

	tm.Observe(mustSession(t, st, "NOTIMR"))

	time.Sleep(40 * time.Millisecond)
	if got := mustSession(t, st, "NOTIMR").Status; got != domain.StatusActive {
		t.Fatalf("countdown fired with the timer disabled (status %s)", got)
	}
}

func TestTimerStopCancelsCountdown(t *testing.T) {
	st := store.NewMemory()
	tm := NewTimer(NewMachine(st), 20*time.Millisecond)
	seedSession(t, st, "HALTED", domain.StatusActive, true, 0, "alice", "bob")

	tm.Observe(mustSession(t, st, "HALTED"))
	tm.Stop()

	time.Sleep(50 * time.Millisecond)
	if got := mustSession(t, st, "HALTED").Status; got != domain.StatusActive {
		t.Fatalf("stopped countdown still fired (status %s)", got)
	}
}
