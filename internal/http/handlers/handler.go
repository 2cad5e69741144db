package handlers

import (
	"time"

	"ctm_arena/internal/domain"
	"ctm_arena/internal/ledger"
	"ctm_arena/internal/proof"
	"ctm_arena/internal/repository"
	"ctm_arena/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
)

// HandlerConfig holds configuration for handler
type HandlerConfig struct {
	MinStake     int64
	MaxStake     int64
	AuthProofTTL time.Duration
}

type Handler struct {
	DB             *pgxpool.Pool
	Arena          *ledger.Arena
	SessionService *service.SessionService
	AccountRepo    *repository.AccountRepository
	EscrowRepo     *repository.EscrowRepository
	SessionRepo    *repository.SessionRepository
	ProofRepo      *repository.ProofRepository
	Verifier       proof.Verifier
	AuthProofTTL   time.Duration
}

func NewHandler(db *pgxpool.Pool, arena *ledger.Arena, verifier proof.Verifier, cfg HandlerConfig) *Handler {
	sessionRepo := repository.NewSessionRepository(db)
	if verifier == nil {
		verifier = proof.Nop{}
	}
	ttl := cfg.AuthProofTTL
	if ttl == 0 {
		ttl = 5 * time.Minute
	}
	return &Handler{
		DB:             db,
		Arena:          arena,
		SessionService: service.NewSessionService(arena, sessionRepo, cfg.MinStake, cfg.MaxStake),
		AccountRepo:    repository.NewAccountRepository(db),
		EscrowRepo:     repository.NewEscrowRepository(db),
		SessionRepo:    sessionRepo,
		ProofRepo:      repository.NewProofRepository(db),
		Verifier:       verifier,
		AuthProofTTL:   ttl,
	}
}

// getAddress extracts the authenticated address from the Gin context.
func getAddress(c *gin.Context) (domain.Address, bool) {
	val, ok := c.Get("address")
	if !ok {
		return "", false
	}
	raw, ok := val.(string)
	if !ok {
		return "", false
	}
	addr, err := domain.ParseAddress(raw)
	if err != nil {
		return "", false
	}
	return addr, true
}
