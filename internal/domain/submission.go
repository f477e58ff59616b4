package domain

import (
	"strings"
	"time"
)

// Submission is one participant's word for one round. At most one exists per
// (session, participant, round) and it is never mutated after creation.
type Submission struct {
	SessionCode   string    `json:"sessionCode"`
	ParticipantID string    `json:"participantId"`
	Round         int       `json:"round"`
	Word          string    `json:"word"` // normalized
	CreatedAt     time.Time `json:"createdAt"`
}

// NormalizeWord trims surrounding whitespace and case-folds the word.
// Matching and duplicate detection always operate on the normalized form.
func NormalizeWord(word string) string {
	return strings.ToLower(strings.TrimSpace(word))
}

// AllMatch reports whether every submission carries the same normalized word.
// False for an empty set.
func AllMatch(subs []Submission) bool {
	if len(subs) == 0 {
		return false
	}
	first := subs[0].Word
	for _, s := range subs[1:] {
		if s.Word != first {
			return false
		}
	}
	return true
}
