// Package store is the shared persistence boundary for sessions,
// participants and submissions. All cross-client coordination goes through
// it: plain reads, conditional updates, and a per-session change feed with
// at-least-once, unordered delivery.
package store

import (
	"context"
	"errors"
	"strconv"

	"mindmeld/internal/domain"
)

type Kind string

const (
	KindSession     Kind = "session"
	KindParticipant Kind = "participant"
	KindSubmission  Kind = "submission"
)

type Op string

const (
	OpInsert Op = "insert"
	OpUpdate Op = "update"
	OpDelete Op = "delete"
)

// ChangeEvent describes one row-level change. Key is the record's own key
// (session code, participant id, or "participantID:round" for submissions).
type ChangeEvent struct {
	Kind        Kind   `json:"kind"`
	Op          Op     `json:"op"`
	Key         string `json:"key"`
	SessionCode string `json:"sessionCode"`
}

var (
	// ErrNotFound is returned when the keyed record does not exist.
	ErrNotFound = errors.New("record not found")

	// ErrConflict means a conditional update's predicate no longer held:
	// another observer already applied the transition. Callers treat this
	// as "my job is done", never as a failure.
	ErrConflict = errors.New("conditional update conflict")

	// ErrDuplicate is returned on unique key violation at insert.
	ErrDuplicate = errors.New("record already exists")

	// ErrUnavailable wraps transient backend failures. Callers may retry
	// the whole operation but must not assume partial effects.
	ErrUnavailable = errors.New("store unavailable")
)

// Store holds the three record kinds of one or more sessions.
//
// The Update* methods are the conditional-update primitive: the predicate is
// evaluated against the current value under the store's own isolation, and
// the mutation is applied only if it holds. A false predicate yields
// ErrConflict and leaves the record untouched. Every state transition that
// multiple observers race on (waiting→active, round advance, finish, rematch
// claim) must go through them.
type Store interface {
	CreateSession(ctx context.Context, s *domain.Session) error
	Session(ctx context.Context, code string) (*domain.Session, error)
	UpdateSession(ctx context.Context, code string, pred func(domain.Session) bool, apply func(*domain.Session)) (*domain.Session, error)
	DeleteSession(ctx context.Context, code string) error

	CreateParticipant(ctx context.Context, p *domain.Participant) error
	Participant(ctx context.Context, id string) (*domain.Participant, error)
	Participants(ctx context.Context, sessionCode string) ([]domain.Participant, error)
	UpdateParticipant(ctx context.Context, id string, pred func(domain.Participant) bool, apply func(*domain.Participant)) (*domain.Participant, error)
	DeleteParticipant(ctx context.Context, id string) error

	CreateSubmission(ctx context.Context, s *domain.Submission) error
	Submissions(ctx context.Context, sessionCode string) ([]domain.Submission, error)
	RoundSubmissions(ctx context.Context, sessionCode string, round int) ([]domain.Submission, error)
	DeleteSubmissions(ctx context.Context, sessionCode string) error

	// ResetRoundFlags clears every participant's word and submitted flag.
	// Called by whichever observer won the round-advance update.
	ResetRoundFlags(ctx context.Context, sessionCode string) error

	// Subscribe returns a feed of change events for one session code.
	// Delivery is at-least-once with no ordering guarantee; consumers
	// re-read authoritative state before acting.
	Subscribe(ctx context.Context, sessionCode string) (<-chan ChangeEvent, func(), error)
}

// SubmissionKey builds the change-event key for a submission row.
func SubmissionKey(participantID string, round int) string {
	return participantID + ":" + strconv.Itoa(round)
}
