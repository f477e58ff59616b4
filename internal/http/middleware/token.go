package middleware

import (
	"net/http"
	"strings"

	"mindmeld/internal/service"

	"github.com/gin-gonic/gin"
)

// ParticipantToken requires a Bearer token minted at create/join time and
// stores the bound participant id and session code on the context.
func ParticipantToken() gin.HandlerFunc {
	return func(c *gin.Context) {
		auth := c.GetHeader("Authorization")
		if !strings.HasPrefix(auth, "Bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing token"})
			return
		}

		pid, code, err := service.ParseParticipantToken(strings.TrimPrefix(auth, "Bearer "))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		c.Set("participant_id", pid)
		c.Set("session_code", code)
		c.Next()
	}
}
