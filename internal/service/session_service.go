package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"mindmeld/internal/domain"
	"mindmeld/internal/engine"
	"mindmeld/internal/logger"
	"mindmeld/internal/store"

	"github.com/google/uuid"
)

// SessionService is the API the presentation layer talks to. Each call acts
// like any other observer: it writes through the store and runs the same
// engine evaluation the change-feed observers run, so the caller sees the
// effect of its own action without waiting for feed delivery.
type SessionService struct {
	store    store.Store
	machine  *engine.Machine
	resolver *engine.Resolver
	rematch  *engine.Rematch

	defaultRoundLimit int
}

func NewSessionService(st store.Store, defaultRoundLimit int) *SessionService {
	machine := engine.NewMachine(st)
	return &SessionService{
		store:             st,
		machine:           machine,
		resolver:          engine.NewResolver(st, machine),
		rematch:           engine.NewRematch(st),
		defaultRoundLimit: defaultRoundLimit,
	}
}

// Store exposes the underlying store for wiring (ws observers, health).
func (s *SessionService) Store() store.Store {
	return s.store
}

// CreateSession mints a session and joins the creator in one call.
func (s *SessionService) CreateSession(ctx context.Context, capacity int, timerEnabled bool, roundLimit int, displayName string) (string, string, error) {
	name := strings.TrimSpace(displayName)
	if name == "" {
		return "", "", domain.ErrEmptyDisplayName
	}
	if roundLimit <= 0 {
		roundLimit = s.defaultRoundLimit
	}

	session, err := s.machine.CreateSession(ctx, capacity, timerEnabled, roundLimit)
	if err != nil {
		return "", "", err
	}

	pid, err := s.addParticipant(ctx, session, name)
	if err != nil {
		return "", "", err
	}
	return session.Code, pid, nil
}

// JoinSession adds a participant to a waiting lobby.
func (s *SessionService) JoinSession(ctx context.Context, sessionCode, displayName string) (string, error) {
	name := strings.TrimSpace(displayName)
	if name == "" {
		return "", domain.ErrEmptyDisplayName
	}

	session, err := s.store.Session(ctx, sessionCode)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return "", domain.ErrSessionNotFound
		}
		return "", err
	}
	if session.Status != domain.StatusWaiting && session.Status != domain.StatusReady {
		return "", domain.ErrSessionNotJoinable
	}

	return s.addParticipant(ctx, session, name)
}

// addParticipant inserts the new participant, then re-checks capacity. Two
// racing joins can both pass the pre-check; the loser by join order backs
// out, so the roster never settles above capacity.
func (s *SessionService) addParticipant(ctx context.Context, session *domain.Session, name string) (string, error) {
	existing, err := s.store.Participants(ctx, session.Code)
	if err != nil {
		return "", err
	}
	if len(existing) >= session.Capacity {
		return "", domain.ErrSessionFull
	}

	p := &domain.Participant{
		ID:          uuid.NewString(),
		SessionCode: session.Code,
		DisplayName: name,
		JoinedAt:    time.Now().UTC(),
	}
	if err := s.store.CreateParticipant(ctx, p); err != nil {
		return "", err
	}

	after, err := s.store.Participants(ctx, session.Code)
	if err != nil {
		return "", err
	}
	if len(after) > session.Capacity && overCapacity(after, session.Capacity, p.ID) {
		_ = s.store.DeleteParticipant(ctx, p.ID)
		return "", domain.ErrSessionFull
	}

	logger.Info("participant joined", "session", session.Code, "participant", p.ID)
	return p.ID, nil
}

// overCapacity reports whether pid is one of the surplus participants past
// the first capacity slots in join order.
func overCapacity(participants []domain.Participant, capacity int, pid string) bool {
	for i, p := range participants {
		if p.ID == pid {
			return i >= capacity
		}
	}
	return false
}

// MarkReady flags the participant as ready to start and triggers the
// waiting→active transition when the roster is complete.
func (s *SessionService) MarkReady(ctx context.Context, participantID string) error {
	p, err := s.updateParticipant(ctx, participantID, func(p *domain.Participant) { p.Ready = true })
	if err != nil {
		return err
	}

	session, err := s.store.Session(ctx, p.SessionCode)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.ErrSessionNotFound
		}
		return err
	}
	if session.Status != domain.StatusWaiting && session.Status != domain.StatusReady {
		return nil
	}

	participants, err := s.store.Participants(ctx, p.SessionCode)
	if err != nil {
		return err
	}
	if len(participants) == session.Capacity && domain.AllReady(participants) {
		if _, err := s.machine.Start(ctx, p.SessionCode); err != nil {
			return err
		}
	}
	return nil
}

// SubmitWord accepts the participant's word for the active round. Returns
// domain.ErrDuplicateWord when the word was used in an earlier round and
// domain.ErrAlreadySubmitted on a repeat submit for the same round.
func (s *SessionService) SubmitWord(ctx context.Context, participantID, text string) error {
	return s.resolver.AcceptSubmission(ctx, participantID, text)
}

// RequestRematch opts the participant into a rematch and evaluates the mint
// condition.
func (s *SessionService) RequestRematch(ctx context.Context, participantID string) error {
	p, err := s.updateParticipant(ctx, participantID, func(p *domain.Participant) { p.WantsRematch = true })
	if err != nil {
		return err
	}
	_, err = s.rematch.Evaluate(ctx, p.SessionCode)
	return err
}

// Leave removes the participant immediately and unconditionally. When the
// last participant leaves, the session and its submissions are cascaded
// away.
func (s *SessionService) Leave(ctx context.Context, participantID string) error {
	p, err := s.store.Participant(ctx, participantID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.ErrParticipantNotFound
		}
		return err
	}

	if err := s.store.DeleteParticipant(ctx, participantID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.ErrParticipantNotFound
		}
		return err
	}
	logger.Info("participant left", "session", p.SessionCode, "participant", participantID)

	remaining, err := s.store.Participants(ctx, p.SessionCode)
	if err != nil {
		return err
	}
	if len(remaining) == 0 {
		if err := s.store.DeleteSubmissions(ctx, p.SessionCode); err != nil {
			logger.Warn("cascade delete submissions failed", "session", p.SessionCode, "error", err)
		}
		if err := s.store.DeleteSession(ctx, p.SessionCode); err != nil && !errors.Is(err, store.ErrNotFound) {
			logger.Warn("cascade delete session failed", "session", p.SessionCode, "error", err)
		}
	}
	return nil
}

func (s *SessionService) updateParticipant(ctx context.Context, id string, apply func(*domain.Participant)) (*domain.Participant, error) {
	p, err := s.store.UpdateParticipant(ctx, id,
		func(p domain.Participant) bool { return true },
		apply,
	)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, domain.ErrParticipantNotFound
		}
		return nil, err
	}
	return p, nil
}
