package domain

import "time"

// Participant is one player inside a single session. A player who leaves and
// rejoins gets a fresh id, so prior submissions never count against them.
type Participant struct {
	ID          string    `json:"id"`
	SessionCode string    `json:"sessionCode"`
	DisplayName string    `json:"displayName"`
	// Word is the submission for the active round, cleared on every round
	// advance.
	Word         string    `json:"-"`
	Submitted    bool      `json:"submitted"`
	Ready        bool      `json:"ready"`
	WantsRematch bool      `json:"wantsRematch"`
	JoinedAt     time.Time `json:"joinedAt"`
}

// AllReady reports whether every participant has set the ready flag.
func AllReady(participants []Participant) bool {
	for _, p := range participants {
		if !p.Ready {
			return false
		}
	}
	return len(participants) > 0
}

// AllWantRematch reports whether every participant opted into a rematch.
func AllWantRematch(participants []Participant) bool {
	for _, p := range participants {
		if !p.WantsRematch {
			return false
		}
	}
	return len(participants) > 0
}
