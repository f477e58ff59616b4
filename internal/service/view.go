package service

import (
	"context"
	"errors"
	"sort"

	"mindmeld/internal/domain"
	"mindmeld/internal/store"
)

// SessionView is the read-only snapshot the presentation layer renders.
// Words for the round in progress stay hidden; revealed submissions cover
// finished rounds, plus the final round once the session is over.
type SessionView struct {
	Session      *domain.Session      `json:"session"`
	Participants []domain.Participant `json:"participants"`
	Submissions  []domain.Submission  `json:"submissions"`
	// Abandoned is set when a participant departed mid-game; the session
	// record itself is never transitioned out of active in that case.
	Abandoned bool `json:"abandoned"`
}

// View assembles the live view for one session.
func (s *SessionService) View(ctx context.Context, sessionCode string) (*SessionView, error) {
	session, err := s.store.Session(ctx, sessionCode)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, domain.ErrSessionNotFound
		}
		return nil, err
	}

	participants, err := s.store.Participants(ctx, sessionCode)
	if err != nil {
		return nil, err
	}

	subs, err := s.store.Submissions(ctx, sessionCode)
	if err != nil {
		return nil, err
	}

	revealed := make([]domain.Submission, 0, len(subs))
	for _, sub := range subs {
		if sub.Round < session.Round || session.Status == domain.StatusFinished {
			revealed = append(revealed, sub)
		}
	}
	sort.Slice(revealed, func(i, j int) bool {
		if revealed[i].Round != revealed[j].Round {
			return revealed[i].Round < revealed[j].Round
		}
		return revealed[i].ParticipantID < revealed[j].ParticipantID
	})

	return &SessionView{
		Session:      session,
		Participants: participants,
		Submissions:  revealed,
		Abandoned:    session.Status == domain.StatusActive && len(participants) < session.Capacity,
	}, nil
}
