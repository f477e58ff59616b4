package engine

import (
	"context"
	"errors"
	"time"

	"mindmeld/internal/domain"
	"mindmeld/internal/logger"
	"mindmeld/internal/store"
)

// Machine owns the session lifecycle: waiting → ready → active → finished.
// Every transition is a conditional update on the session row, so any number
// of observers can attempt the same transition and exactly one applies it.
// Methods report applied=false when another observer got there first; that
// is a normal outcome, not an error.
type Machine struct {
	store store.Store
}

func NewMachine(st store.Store) *Machine {
	return &Machine{store: st}
}

const createRetries = 3

// CreateSession mints a new session in waiting state at round 1, retrying on
// the rare session-code collision.
func (m *Machine) CreateSession(ctx context.Context, capacity int, timerEnabled bool, roundLimit int) (*domain.Session, error) {
	if !domain.ValidCapacity(capacity) {
		return nil, domain.ErrInvalidCapacity
	}

	var lastErr error
	for i := 0; i < createRetries; i++ {
		s := &domain.Session{
			Code:         domain.NewSessionCode(),
			Capacity:     capacity,
			Status:       domain.StatusWaiting,
			Round:        1,
			RoundLimit:   roundLimit,
			TimerEnabled: timerEnabled,
			CreatedAt:    time.Now().UTC(),
		}
		err := m.store.CreateSession(ctx, s)
		if err == nil {
			logger.Info("session created", "session", s.Code, "capacity", capacity)
			return s, nil
		}
		if !errors.Is(err, store.ErrDuplicate) {
			return nil, err
		}
		lastErr = err
	}
	return nil, lastErr
}

// MarkLobbyFull moves waiting → ready once the lobby holds a full roster
// that has not all confirmed yet.
func (m *Machine) MarkLobbyFull(ctx context.Context, code string) (bool, error) {
	return m.transition(ctx, code, "ready",
		func(s domain.Session) bool { return s.Status == domain.StatusWaiting },
		func(s *domain.Session) { s.Status = domain.StatusReady },
	)
}

// Start moves waiting/ready → active. Duplicate triggers from concurrent
// observers are absorbed: a session already active or finished is a no-op.
func (m *Machine) Start(ctx context.Context, code string) (bool, error) {
	return m.transition(ctx, code, "start",
		func(s domain.Session) bool {
			return s.Status == domain.StatusWaiting || s.Status == domain.StatusReady
		},
		func(s *domain.Session) { s.Status = domain.StatusActive },
	)
}

// AdvanceRound bumps the round counter, guarded on the round number observed
// at decision time, and clears every participant's submission flags for the
// new round. Only the observer that won the guard performs the clear.
func (m *Machine) AdvanceRound(ctx context.Context, code string, fromRound int) (bool, error) {
	applied, err := m.transition(ctx, code, "advance",
		func(s domain.Session) bool {
			return s.Status == domain.StatusActive && s.Round == fromRound
		},
		func(s *domain.Session) { s.Round = fromRound + 1 },
	)
	if err != nil || !applied {
		return applied, err
	}
	if err := m.store.ResetRoundFlags(ctx, code); err != nil {
		return true, err
	}
	return true, nil
}

// FinishWon ends an active session with a matched round.
func (m *Machine) FinishWon(ctx context.Context, code string, fromRound int, winnerName string) (bool, error) {
	applied, err := m.transition(ctx, code, "finish",
		func(s domain.Session) bool {
			return s.Status == domain.StatusActive && s.Round == fromRound
		},
		func(s *domain.Session) {
			s.Status = domain.StatusFinished
			s.WinnerName = winnerName
			s.RoundsTaken = fromRound
		},
	)
	if applied {
		SessionsFinished.WithLabelValues("won").Inc()
	}
	return applied, err
}

// FinishLost ends an active session with no winner, either because the round
// timer elapsed or the round limit was exhausted. Winner and rounds-taken
// stay unset.
func (m *Machine) FinishLost(ctx context.Context, code string, fromRound int, outcome string) (bool, error) {
	applied, err := m.transition(ctx, code, "finish",
		func(s domain.Session) bool {
			return s.Status == domain.StatusActive && s.Round == fromRound
		},
		func(s *domain.Session) { s.Status = domain.StatusFinished },
	)
	if applied {
		SessionsFinished.WithLabelValues(outcome).Inc()
	}
	return applied, err
}

func (m *Machine) transition(ctx context.Context, code, name string, pred func(domain.Session) bool, apply func(*domain.Session)) (bool, error) {
	_, err := m.store.UpdateSession(ctx, code, pred, apply)
	if err != nil {
		if errors.Is(err, store.ErrConflict) {
			// another observer already applied the transition; our job
			// is done
			TransitionConflicts.WithLabelValues(name).Inc()
			return false, nil
		}
		if errors.Is(err, store.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	TransitionsApplied.WithLabelValues(name).Inc()
	return true, nil
}
