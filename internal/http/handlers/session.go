package handlers

import (
	"errors"
	"net/http"

	"mindmeld/internal/domain"
	"mindmeld/internal/service"
	"mindmeld/internal/store"

	"github.com/gin-gonic/gin"
)

// SessionHandler exposes the session API to the presentation layer.
type SessionHandler struct {
	Sessions *service.SessionService
}

func NewSessionHandler(sessions *service.SessionService) *SessionHandler {
	return &SessionHandler{Sessions: sessions}
}

type createSessionRequest struct {
	Capacity     int    `json:"capacity" binding:"required"`
	TimerEnabled bool   `json:"timerEnabled"`
	RoundLimit   int    `json:"roundLimit"`
	DisplayName  string `json:"displayName" binding:"required"`
}

type joinSessionRequest struct {
	DisplayName string `json:"displayName" binding:"required"`
}

type submitWordRequest struct {
	Word string `json:"word"`
}

// Create handles POST /sessions
func (h *SessionHandler) Create(c *gin.Context) {
	var req createSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	code, pid, err := h.Sessions.CreateSession(c.Request.Context(), req.Capacity, req.TimerEnabled, req.RoundLimit, req.DisplayName)
	if err != nil {
		respondError(c, err)
		return
	}

	token, err := service.GenerateParticipantToken(pid, code)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "token generation failed"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"sessionCode":   code,
		"participantId": pid,
		"token":         token,
	})
}

// Join handles POST /sessions/:code/join
func (h *SessionHandler) Join(c *gin.Context) {
	var req joinSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	code := c.Param("code")
	pid, err := h.Sessions.JoinSession(c.Request.Context(), code, req.DisplayName)
	if err != nil {
		respondError(c, err)
		return
	}

	token, err := service.GenerateParticipantToken(pid, code)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "token generation failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"participantId": pid,
		"token":         token,
	})
}

// Ready handles POST /participant/ready
func (h *SessionHandler) Ready(c *gin.Context) {
	pid, ok := participantID(c)
	if !ok {
		return
	}
	if err := h.Sessions.MarkReady(c.Request.Context(), pid); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Submit handles POST /participant/word
func (h *SessionHandler) Submit(c *gin.Context) {
	pid, ok := participantID(c)
	if !ok {
		return
	}

	var req submitWordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	if err := h.Sessions.SubmitWord(c.Request.Context(), pid, req.Word); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "accepted"})
}

// Rematch handles POST /participant/rematch
func (h *SessionHandler) Rematch(c *gin.Context) {
	pid, ok := participantID(c)
	if !ok {
		return
	}
	if err := h.Sessions.RequestRematch(c.Request.Context(), pid); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Leave handles POST /participant/leave
func (h *SessionHandler) Leave(c *gin.Context) {
	pid, ok := participantID(c)
	if !ok {
		return
	}
	if err := h.Sessions.Leave(c.Request.Context(), pid); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// View handles GET /sessions/:code
func (h *SessionHandler) View(c *gin.Context) {
	view, err := h.Sessions.View(c.Request.Context(), c.Param("code"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func participantID(c *gin.Context) (string, bool) {
	v, ok := c.Get("participant_id")
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing participant"})
		return "", false
	}
	pid, ok := v.(string)
	if !ok || pid == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing participant"})
		return "", false
	}
	return pid, true
}

// respondError maps domain errors onto HTTP statuses. Transition conflicts
// never reach here: losing a race to another observer is a success.
func respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, domain.ErrSessionNotFound), errors.Is(err, domain.ErrParticipantNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, domain.ErrSessionFull),
		errors.Is(err, domain.ErrSessionNotJoinable),
		errors.Is(err, domain.ErrSessionNotActive),
		errors.Is(err, domain.ErrAlreadySubmitted):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, domain.ErrDuplicateWord):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error(), "code": "duplicate_word"})
	case errors.Is(err, domain.ErrEmptyWord),
		errors.Is(err, domain.ErrEmptyDisplayName),
		errors.Is(err, domain.ErrInvalidCapacity):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, store.ErrUnavailable):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "store unavailable"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
