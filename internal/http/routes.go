package http

import (
	"os"
	"strconv"
	"time"

	"ctm_arena/internal/config"
	"ctm_arena/internal/http/handlers"
	"ctm_arena/internal/http/middleware"
	"ctm_arena/internal/ledger"
	"ctm_arena/internal/proof"
	"ctm_arena/internal/ws"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
)

func RegisterRoutes(r *gin.Engine, db *pgxpool.Pool, arena *ledger.Arena, hub *ws.Hub, verifier proof.Verifier, version string, cfg *config.Config) {
	h := handlers.NewHandler(db, arena, verifier, handlers.HandlerConfig{
		MinStake:     cfg.MinStake,
		MaxStake:     cfg.MaxStake,
		AuthProofTTL: cfg.AuthProofTTL,
	})
	healthHandler := handlers.NewHealthHandler(db, arena, version)

	// read limits from env, with safe defaults
	apiRateLimit := 60
	if v := os.Getenv("API_RATE_LIMIT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			apiRateLimit = n
		}
	}
	apiRateWindow := time.Minute
	if v := os.Getenv("API_RATE_WINDOW_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			apiRateWindow = time.Duration(n) * time.Second
		}
	}

	authRateLimit := 5
	if v := os.Getenv("AUTH_RATE_LIMIT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			authRateLimit = n
		}
	}
	authRateWindow := time.Minute
	if v := os.Getenv("AUTH_RATE_WINDOW_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			authRateWindow = time.Duration(n) * time.Second
		}
	}

	// Health checks (no rate limiting)
	r.GET("/health", healthHandler.Health)
	r.GET("/healthz", healthHandler.Liveness)
	r.GET("/readyz", healthHandler.Readiness)

	moveRL := middleware.MoveRateLimit(cfg.MoveRateLimit, time.Duration(cfg.MoveRateWindow)*time.Second)

	v1 := r.Group("/api/v1")
	v1.Use(middleware.RedisRateLimit(apiRateLimit, apiRateWindow))
	{
		// Auth: Redis limiter first, in-process limiter as a backstop when
		// Redis is absent.
		v1.POST("/auth",
			middleware.RedisRateLimit(authRateLimit, authRateWindow),
			middleware.SimpleRateLimit(authRateLimit, authRateWindow),
			h.Auth)

		v1.GET("/me", middleware.JWT(), h.Me)
		v1.GET("/me/escrow", middleware.JWT(), h.MyEscrow)

		v1.GET("/height", h.Height)
		v1.GET("/limits", h.StakeLimits)

		// Bootstrap surface
		v1.POST("/sessions/simulate", middleware.JWT(), h.Simulate)
		v1.POST("/sessions", middleware.JWT(), h.Finalize)

		// Phase moves
		v1.POST("/sessions/:id/commit-hands", middleware.JWT(), moveRL, h.CommitHands)
		v1.POST("/sessions/:id/reveal-hands", middleware.JWT(), moveRL, h.RevealHands)
		v1.POST("/sessions/:id/commit-choice", middleware.JWT(), moveRL, h.CommitChoice)
		v1.POST("/sessions/:id/reveal-choice", middleware.JWT(), moveRL, h.RevealChoice)

		// Reads
		v1.GET("/sessions/:id", h.GetSession)
		v1.GET("/sessions/:id/events", h.SessionEvents)

		// Off-ledger proof attachments
		v1.POST("/sessions/:id/proof", middleware.JWT(), h.AttachProof)
		v1.GET("/sessions/:id/proofs", h.SessionProofs)
	}

	// WebSocket event stream
	r.GET("/ws", ws.HandleWS(hub))
}
