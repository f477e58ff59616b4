package http

import (
	"mindmeld/internal/config"
	"mindmeld/internal/http/handlers"
	"mindmeld/internal/http/middleware"
	"mindmeld/internal/service"
	"mindmeld/internal/ws"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	redis "github.com/redis/go-redis/v9"
)

// RegisterRoutes wires the session API, the live-view websocket and the
// health endpoints.
func RegisterRoutes(r *gin.Engine, sessions *service.SessionService, hub *ws.Hub, db *pgxpool.Pool, rdb *redis.Client, version string, cfg *config.Config) {
	h := handlers.NewSessionHandler(sessions)
	healthHandler := handlers.NewHealthHandler(db, rdb, version)

	// Health checks (no rate limiting)
	r.GET("/health", healthHandler.Health)
	r.GET("/healthz", healthHandler.Liveness)
	r.GET("/readyz", healthHandler.Readiness)

	// API v1 routes
	v1 := r.Group("/api/v1")
	v1.Use(middleware.RedisRateLimit(cfg.APIRateLimit, cfg.APIRateWindow))
	registerAPIRoutes(v1, h)

	// Legacy /api routes kept as an alias
	api := r.Group("/api")
	api.Use(middleware.RedisRateLimit(cfg.APIRateLimit, cfg.APIRateWindow))
	registerAPIRoutes(api, h)

	// Live session view
	r.GET("/ws/:code", h.WS(hub))
}

func registerAPIRoutes(api *gin.RouterGroup, h *handlers.SessionHandler) {
	api.POST("/sessions", h.Create)
	api.GET("/sessions/:code", h.View)
	api.POST("/sessions/:code/join", h.Join)

	participant := api.Group("/participant")
	participant.Use(middleware.ParticipantToken())
	{
		participant.POST("/ready", h.Ready)
		participant.POST("/word", h.Submit)
		participant.POST("/rematch", h.Rematch)
		participant.POST("/leave", h.Leave)
	}
}
