package domain

import "time"

// Status is the lifecycle state of a session.
type Status string

const (
	StatusWaiting  Status = "waiting"
	StatusReady    Status = "ready"
	StatusActive   Status = "active"
	StatusFinished Status = "finished"
)

const (
	MinCapacity = 2
	MaxCapacity = 4
)

// Session is one shared game. Participants win by all submitting the same
// word in the same round.
type Session struct {
	Code         string    `json:"code"`
	Capacity     int       `json:"capacity"`
	Status       Status    `json:"status"`
	Round        int       `json:"round"`
	RoundLimit   int       `json:"roundLimit,omitempty"` // 0 = unlimited
	TimerEnabled bool      `json:"timerEnabled"`
	WinnerName   string    `json:"winnerName,omitempty"`
	RoundsTaken  int       `json:"roundsTaken,omitempty"` // 0 until won
	// SuccessorCode points at the rematch session. Write-once.
	SuccessorCode string `json:"successorCode,omitempty"`
	// RematchClaim marks an in-flight rematch mint. The claim is taken with
	// a conditional update before the successor session exists, so at most
	// one observer ever creates it.
	RematchClaim     string    `json:"-"`
	RematchClaimedAt time.Time `json:"-"`
	CreatedAt        time.Time `json:"createdAt"`
}

// Won reports whether the session finished with a matched round. A session
// that timed out or ran out of rounds finishes with RoundsTaken left at 0.
func (s *Session) Won() bool {
	return s.Status == StatusFinished && s.RoundsTaken > 0
}

// ValidCapacity reports whether n is an allowed session size.
func ValidCapacity(n int) bool {
	return n >= MinCapacity && n <= MaxCapacity
}
