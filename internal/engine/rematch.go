package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"mindmeld/internal/domain"
	"mindmeld/internal/logger"
	"mindmeld/internal/store"

	"github.com/google/uuid"
)

// DefaultClaimTTL bounds how long a rematch mint may sit half-done before
// another observer is allowed to take over the claim.
const DefaultClaimTTL = 30 * time.Second

// Rematch mints the successor session once every participant of a finished
// session has opted in. The predecessor's rematch-claim field is the
// exactly-once guard: it is taken with a conditional update before anything
// is created, so however many observers evaluate the condition concurrently,
// one mint happens. The successor code is published on the predecessor only
// after the new session and its participants are durably written.
type Rematch struct {
	store    store.Store
	claimTTL time.Duration
}

func NewRematch(st store.Store) *Rematch {
	return &Rematch{store: st, claimTTL: DefaultClaimTTL}
}

// Evaluate checks the rematch condition and, when this observer wins the
// claim, performs the mint. Returns the successor code when one was just
// published by this call, "" otherwise.
func (c *Rematch) Evaluate(ctx context.Context, sessionCode string) (string, error) {
	s, err := c.store.Session(ctx, sessionCode)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return "", nil
		}
		return "", err
	}
	if s.Status != domain.StatusFinished || s.SuccessorCode != "" {
		return "", nil
	}

	participants, err := c.store.Participants(ctx, sessionCode)
	if err != nil {
		return "", err
	}
	if len(participants) == 0 || !domain.AllWantRematch(participants) {
		return "", nil
	}

	claim := uuid.NewString()
	now := time.Now().UTC()
	_, err = c.store.UpdateSession(ctx, sessionCode,
		func(s domain.Session) bool {
			if s.Status != domain.StatusFinished || s.SuccessorCode != "" {
				return false
			}
			// a live claim blocks us; a stale one (claimant died mid-mint)
			// may be taken over
			return s.RematchClaim == "" || now.Sub(s.RematchClaimedAt) > c.claimTTL
		},
		func(s *domain.Session) {
			s.RematchClaim = claim
			s.RematchClaimedAt = now
		},
	)
	if err != nil {
		if errors.Is(err, store.ErrConflict) || errors.Is(err, store.ErrNotFound) {
			return "", nil
		}
		return "", err
	}

	successor, err := c.mint(ctx, s, participants)
	if err != nil {
		return "", fmt.Errorf("mint rematch for %s: %w", sessionCode, err)
	}

	// publication point: only now do other observers discover the successor
	_, err = c.store.UpdateSession(ctx, sessionCode,
		func(s domain.Session) bool {
			return s.RematchClaim == claim && s.SuccessorCode == ""
		},
		func(s *domain.Session) { s.SuccessorCode = successor },
	)
	if err != nil {
		if errors.Is(err, store.ErrConflict) {
			// our claim was taken over after the TTL; the successor we
			// created is unreachable and gets cleaned up
			c.abortMint(ctx, successor)
			return "", nil
		}
		return "", err
	}

	// old submissions go with the finished game
	if err := c.store.DeleteSubmissions(ctx, sessionCode); err != nil {
		logger.Warn("rematch: clearing old submissions failed", "session", sessionCode, "error", err)
	}

	RematchesMinted.Inc()
	logger.Info("rematch minted", "session", sessionCode, "successor", successor)
	return successor, nil
}

// mint creates the successor session and migrates every participant into it,
// preserving display names and the predecessor's configuration.
func (c *Rematch) mint(ctx context.Context, old *domain.Session, participants []domain.Participant) (string, error) {
	var successor *domain.Session
	for i := 0; i < createRetries; i++ {
		s := &domain.Session{
			Code:         domain.NewSessionCode(),
			Capacity:     old.Capacity,
			Status:       domain.StatusWaiting,
			Round:        1,
			RoundLimit:   old.RoundLimit,
			TimerEnabled: old.TimerEnabled,
			CreatedAt:    time.Now().UTC(),
		}
		err := c.store.CreateSession(ctx, s)
		if err == nil {
			successor = s
			break
		}
		if !errors.Is(err, store.ErrDuplicate) {
			return "", err
		}
	}
	if successor == nil {
		return "", store.ErrDuplicate
	}

	for _, p := range participants {
		np := &domain.Participant{
			ID:          uuid.NewString(),
			SessionCode: successor.Code,
			DisplayName: p.DisplayName,
			JoinedAt:    time.Now().UTC(),
		}
		if err := c.store.CreateParticipant(ctx, np); err != nil {
			return "", err
		}
	}
	return successor.Code, nil
}

func (c *Rematch) abortMint(ctx context.Context, successor string) {
	participants, err := c.store.Participants(ctx, successor)
	if err == nil {
		for _, p := range participants {
			_ = c.store.DeleteParticipant(ctx, p.ID)
		}
	}
	if err := c.store.DeleteSession(ctx, successor); err != nil && !errors.Is(err, store.ErrNotFound) {
		logger.Warn("rematch: orphan successor cleanup failed", "successor", successor, "error", err)
	}
}
