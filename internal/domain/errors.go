package domain

import "errors"

var (
	ErrSessionNotFound     = errors.New("session not found")
	ErrParticipantNotFound = errors.New("participant not found")
	ErrSessionFull         = errors.New("session is full")
	ErrSessionNotJoinable  = errors.New("session already started")
	ErrSessionNotActive    = errors.New("session is not active")
	ErrEmptyWord           = errors.New("word is empty")
	ErrInvalidCapacity     = errors.New("capacity must be between 2 and 4")
	ErrEmptyDisplayName    = errors.New("display name is empty")
	ErrAlreadySubmitted    = errors.New("already submitted this round")

	// ErrDuplicateWord means the participant already used this word in an
	// earlier round of the same session.
	ErrDuplicateWord = errors.New("word already used")
)
