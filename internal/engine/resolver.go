package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"mindmeld/internal/domain"
	"mindmeld/internal/logger"
	"mindmeld/internal/store"
)

// Resolver decides round outcomes. It never trusts state captured earlier
// in the turn: every Resolve re-reads the session, roster and submissions,
// and the outcome it picks is applied through a conditional update guarded
// on the round number it just read.
type Resolver struct {
	store   store.Store
	machine *Machine
}

func NewResolver(st store.Store, m *Machine) *Resolver {
	return &Resolver{store: st, machine: m}
}

// AcceptSubmission validates and writes one participant's word for the
// active round. A word the participant already used in an earlier round of
// this session is rejected before anything is written.
func (r *Resolver) AcceptSubmission(ctx context.Context, participantID, rawWord string) error {
	word := domain.NormalizeWord(rawWord)
	if word == "" {
		return domain.ErrEmptyWord
	}

	p, err := r.store.Participant(ctx, participantID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.ErrParticipantNotFound
		}
		return err
	}

	s, err := r.store.Session(ctx, p.SessionCode)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.ErrSessionNotFound
		}
		return err
	}
	if s.Status != domain.StatusActive {
		return domain.ErrSessionNotActive
	}

	prior, err := r.store.Submissions(ctx, s.Code)
	if err != nil {
		return err
	}
	for _, sub := range prior {
		if sub.ParticipantID == participantID && sub.Round < s.Round && sub.Word == word {
			return domain.ErrDuplicateWord
		}
	}

	sub := &domain.Submission{
		SessionCode:   s.Code,
		ParticipantID: participantID,
		Round:         s.Round,
		Word:          word,
		CreatedAt:     time.Now().UTC(),
	}
	if err := r.store.CreateSubmission(ctx, sub); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return domain.ErrAlreadySubmitted
		}
		return err
	}

	// mirror onto the participant row for cheap roster rendering; the
	// submission row stays authoritative for resolution
	_, err = r.store.UpdateParticipant(ctx, participantID,
		func(p domain.Participant) bool { return true },
		func(p *domain.Participant) {
			p.Word = word
			p.Submitted = true
		},
	)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return err
	}

	return r.Resolve(ctx, s.Code)
}

// Resolve inspects the active round and, once every participant has a
// submission for it, either finishes the session (all words match), finishes
// it lost (round limit exhausted) or advances to the next round. Losing the
// guarded update to a concurrent observer is a silent success.
func (r *Resolver) Resolve(ctx context.Context, sessionCode string) error {
	s, err := r.store.Session(ctx, sessionCode)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil
		}
		return err
	}
	if s.Status != domain.StatusActive {
		return nil
	}

	participants, err := r.store.Participants(ctx, sessionCode)
	if err != nil {
		return err
	}
	if len(participants) < s.Capacity {
		// roster below capacity mid-game means the session is abandoned;
		// no further resolution
		return nil
	}

	subs, err := r.store.RoundSubmissions(ctx, sessionCode, s.Round)
	if err != nil {
		return err
	}
	if len(subs) < len(participants) {
		return nil
	}

	if domain.AllMatch(subs) {
		winner := winnerName(participants)
		applied, err := r.machine.FinishWon(ctx, sessionCode, s.Round, winner)
		if err != nil {
			return fmt.Errorf("finish session %s: %w", sessionCode, err)
		}
		if applied {
			logger.Info("session won", "session", sessionCode, "rounds", s.Round)
		}
		return nil
	}

	if s.RoundLimit > 0 && s.Round >= s.RoundLimit {
		applied, err := r.machine.FinishLost(ctx, sessionCode, s.Round, "exhausted")
		if err != nil {
			return fmt.Errorf("finish session %s: %w", sessionCode, err)
		}
		if applied {
			logger.Info("session lost, round limit reached", "session", sessionCode, "rounds", s.Round)
		}
		return nil
	}

	applied, err := r.machine.AdvanceRound(ctx, sessionCode, s.Round)
	if err != nil {
		return fmt.Errorf("advance session %s: %w", sessionCode, err)
	}
	if applied {
		logger.Debug("round advanced", "session", sessionCode, "round", s.Round+1)
	}
	return nil
}

// winnerName attributes a winner only for two-player sessions, where the
// matched pair is unambiguous. Larger sessions finish "won" with the winner
// field left unset.
func winnerName(participants []domain.Participant) string {
	if len(participants) != 2 {
		return ""
	}
	return participants[0].DisplayName + " & " + participants[1].DisplayName
}
