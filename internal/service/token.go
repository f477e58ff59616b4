package service

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var tokenSecret []byte

// InitTokens sets the signing secret for participant tokens.
func InitTokens(secret string) {
	if secret == "" {
		panic("participant token secret is empty")
	}
	tokenSecret = []byte(secret)
}

// GenerateParticipantToken binds a participant id and session code into a
// signed token. It carries no identity beyond the self-chosen display name
// already stored on the participant; it only stops callers from acting as a
// participant id they were never handed.
func GenerateParticipantToken(participantID, sessionCode string) (string, error) {
	now := time.Now().Unix()
	claims := jwt.MapClaims{
		"participant_id": participantID,
		"session_code":   sessionCode,
		"exp":            time.Now().Add(24 * time.Hour).Unix(),
		"iat":            now,
		"nbf":            now,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(tokenSecret)
}

// ParseParticipantToken validates the token and returns the participant id
// and session code it binds.
func ParseParticipantToken(tokenString string) (string, string, error) {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return tokenSecret, nil
	})

	if err != nil || !token.Valid {
		return "", "", errors.New("invalid token")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", "", errors.New("invalid claims")
	}

	pid, ok := claims["participant_id"].(string)
	if !ok || pid == "" {
		return "", "", errors.New("participant_id not found")
	}
	code, _ := claims["session_code"].(string)

	return pid, code, nil
}
