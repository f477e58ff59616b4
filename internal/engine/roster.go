package engine

import (
	"context"
	"errors"
	"sync"

	"mindmeld/internal/domain"
	"mindmeld/internal/logger"
	"mindmeld/internal/store"
)

// Roster watches the participant set of one session from one observer's
// point of view. It drives lobby readiness and detects mid-game departures.
// The previous count is observer-local state, so "count decreased" means
// decreased relative to what this observer last saw.
type Roster struct {
	store   store.Store
	machine *Machine

	mu        sync.Mutex
	lastCount int
}

func NewRoster(st store.Store, m *Machine) *Roster {
	return &Roster{store: st, machine: m, lastCount: -1}
}

// HandleChange re-reads the roster and reacts to its current shape.
// Returns true when a mid-game departure abandoned the session.
func (w *Roster) HandleChange(ctx context.Context, sessionCode string) (bool, error) {
	s, err := w.store.Session(ctx, sessionCode)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return false, nil
		}
		return false, err
	}

	participants, err := w.store.Participants(ctx, sessionCode)
	if err != nil {
		return false, err
	}
	count := len(participants)

	w.mu.Lock()
	prev := w.lastCount
	w.lastCount = count
	w.mu.Unlock()

	switch s.Status {
	case domain.StatusWaiting, domain.StatusReady:
		// departures in the lobby are ordinary attrition
		if count == s.Capacity {
			if domain.AllReady(participants) {
				applied, err := w.machine.Start(ctx, sessionCode)
				if err != nil {
					return false, err
				}
				if applied {
					logger.Info("session started", "session", sessionCode)
				}
			} else if s.Status == domain.StatusWaiting {
				if _, err := w.machine.MarkLobbyFull(ctx, sessionCode); err != nil {
					return false, err
				}
			}
		}
		return false, nil

	default:
		// active or finished: a shrinking roster means someone departed
		// mid-session
		if prev >= 0 && count < prev {
			if s.Status == domain.StatusActive {
				SessionsAbandoned.Inc()
				logger.Info("session abandoned, participant departed", "session", sessionCode, "remaining", count)
			}
			if count == 0 {
				w.cascadeDelete(ctx, sessionCode)
			}
			return s.Status == domain.StatusActive, nil
		}
		return false, nil
	}
}

// cascadeDelete removes the session and its submissions once the last
// participant is gone. Participants are already gone by definition.
func (w *Roster) cascadeDelete(ctx context.Context, sessionCode string) {
	if err := w.store.DeleteSubmissions(ctx, sessionCode); err != nil {
		logger.Warn("cascade delete submissions failed", "session", sessionCode, "error", err)
	}
	if err := w.store.DeleteSession(ctx, sessionCode); err != nil && !errors.Is(err, store.ErrNotFound) {
		logger.Warn("cascade delete session failed", "session", sessionCode, "error", err)
	}
}
