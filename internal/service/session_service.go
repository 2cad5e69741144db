package service

import (
	"context"
	"errors"

	"ctm_arena/internal/bootstrap"
	"ctm_arena/internal/domain"
	"ctm_arena/internal/ledger"
	"ctm_arena/internal/repository"
)

var (
	ErrStakeTooLow  = errors.New("stake below minimum")
	ErrStakeTooHigh = errors.New("stake exceeds maximum")
	ErrInvalidStake = errors.New("invalid stake amount")
)

// StakeLimits holds stake limits configuration
type StakeLimits struct {
	MinStake int64
	MaxStake int64
}

// SessionService fronts the arena for the HTTP surface: it enforces the
// service-level stake limits (the protocol itself only requires positive
// stakes) and falls back to storage for sessions the arena already evicted.
type SessionService struct {
	arena    *ledger.Arena
	sessions *repository.SessionRepository
	limits   StakeLimits
}

func NewSessionService(arena *ledger.Arena, sessions *repository.SessionRepository, minStake, maxStake int64) *SessionService {
	return &SessionService{
		arena:    arena,
		sessions: sessions,
		limits:   StakeLimits{MinStake: minStake, MaxStake: maxStake},
	}
}

// ValidateStake checks if a stake is within allowed limits
func (s *SessionService) ValidateStake(stake int64) error {
	if stake <= 0 {
		return ErrInvalidStake
	}
	if stake < s.limits.MinStake {
		return ErrStakeTooLow
	}
	if stake > s.limits.MaxStake {
		return ErrStakeTooHigh
	}
	return nil
}

// GetLimits returns current stake limits
func (s *SessionService) GetLimits() StakeLimits {
	return s.limits
}

// Finalize executes a dual-authorized creation envelope.
func (s *SessionService) Finalize(ctx context.Context, env *bootstrap.Envelope) (*domain.Session, error) {
	if err := s.ValidateStake(env.StakeA); err != nil {
		return nil, err
	}
	if err := s.ValidateStake(env.StakeB); err != nil {
		return nil, err
	}
	return s.arena.CreateSession(ctx, env)
}

// GetSession prefers the live arena copy; completed sessions past their
// retention window are served from storage.
func (s *SessionService) GetSession(ctx context.Context, id uint32) (*domain.Session, error) {
	sess, err := s.arena.GetSession(ctx, id)
	if err == nil {
		return sess, nil
	}
	if !errors.Is(err, domain.ErrGameNotFound) {
		return nil, err
	}
	return s.sessions.GetByID(ctx, id)
}

// History returns the audit trail of a session.
func (s *SessionService) History(ctx context.Context, id uint32, limit int) ([]*domain.LedgerOp, error) {
	return s.sessions.ListOps(ctx, id, limit)
}
