package ledger

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"ctm_arena/internal/bootstrap"
	"ctm_arena/internal/ctm"
	"ctm_arena/internal/domain"
	"ctm_arena/internal/logger"
)

var (
	ErrSessionExists = errors.New("session id already denotes an active session")
)

// Movement is one escrow-account transfer applied alongside a mutation.
// Negative amounts debit the account into escrow, positive amounts pay out.
type Movement struct {
	Address domain.Address
	Amount  int64
	Kind    string
}

// Mutation bundles everything one accepted ledger call must persist
// atomically: the migrated session, the audit log row, and any escrow
// movements. The store commits it in a single transaction and returns the
// new ledger height.
type Mutation struct {
	Session   *domain.Session
	Op        string
	Player    *domain.Address
	Meta      map[string]interface{}
	Movements []Movement
}

// Store persists accepted mutations. Apply must be atomic: either the
// session write, the audit row, and every movement land together, or none
// do. The returned height is the audit log sequence of the committed row.
type Store interface {
	Apply(ctx context.Context, m *Mutation) (uint64, error)
	ActiveSessions(ctx context.Context) ([]*domain.Session, error)
	CurrentHeight(ctx context.Context) (uint64, error)
}

// Emitter receives an event for every accepted mutation, after commit.
type Emitter interface {
	Emit(ev domain.Event)
}

// NopEmitter drops events; used when no subscriber surface is wired.
type NopEmitter struct{}

func (NopEmitter) Emit(domain.Event) {}

type slot struct {
	mu      sync.Mutex
	session *domain.Session
}

// Arena is the single writer over all live sessions. Transitions are pure
// functions applied to a deep copy; the copy is persisted, then swapped in
// under the per-session lock, so no reader ever sees a half-migrated
// session and a failed call leaves state exactly as it was.
type Arena struct {
	mu       sync.RWMutex
	sessions map[uint32]*slot

	height  atomic.Uint64
	store   Store
	emitter Emitter
}

// NewArena loads the live sessions and current height from the store.
func NewArena(ctx context.Context, store Store, emitter Emitter) (*Arena, error) {
	if emitter == nil {
		emitter = NopEmitter{}
	}
	a := &Arena{
		sessions: make(map[uint32]*slot),
		store:    store,
		emitter:  emitter,
	}
	h, err := store.CurrentHeight(ctx)
	if err != nil {
		return nil, err
	}
	a.height.Store(h)

	live, err := store.ActiveSessions(ctx)
	if err != nil {
		return nil, err
	}
	for _, s := range live {
		a.sessions[s.ID] = &slot{session: s}
	}
	logger.Info("arena loaded", "sessions", len(live), "height", h)
	return a, nil
}

// Height returns the last committed ledger height.
func (a *Arena) Height(context.Context) (uint64, error) {
	return a.height.Load(), nil
}

// LiveSessions reports how many sessions the arena currently holds,
// reservations included.
func (a *Arena) LiveSessions() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.sessions)
}

// SimulateCreate validates a create_session call without executing it and
// returns the per-signer authorizations the real call will demand. The
// placeholder identity is accepted here so a draft can be simulated before
// the counterparty is known.
func (a *Arena) SimulateCreate(_ context.Context, id uint32, pa, pb domain.Address, stakeA, stakeB int64) ([]bootstrap.RequiredAuth, error) {
	if !pa.Valid() || !pb.Valid() {
		return nil, ctm.ErrInvalidAddress
	}
	if pa == pb {
		return nil, ctm.ErrSamePlayer
	}
	if stakeA <= 0 || stakeB <= 0 {
		return nil, ctm.ErrInvalidStake
	}

	a.mu.RLock()
	_, taken := a.sessions[id]
	a.mu.RUnlock()
	if taken {
		return nil, ErrSessionExists
	}

	return []bootstrap.RequiredAuth{
		{Signer: pa, Stake: stakeA},
		{Signer: pb, Stake: stakeB},
	}, nil
}

// CreateSession executes a finalized, dual-authorized creation envelope:
// verifies both authorizations against the current height, locks both
// stakes into escrow, and registers the session in phase Created.
func (a *Arena) CreateSession(ctx context.Context, env *bootstrap.Envelope) (*domain.Session, error) {
	if err := bootstrap.VerifyEnvelope(env, a.height.Load()); err != nil {
		return nil, err
	}

	s, err := ctm.Create(env.SessionID, env.PlayerA, env.PlayerB, env.StakeA, env.StakeB)
	if err != nil {
		return nil, err
	}

	// Reserve the id under the map lock, then commit outside it so a slow
	// create never stalls moves on other sessions. The reserved slot stays
	// locked until the store answers; concurrent calls for the same id queue
	// on the slot and find it either populated or gone.
	sl := &slot{}
	sl.mu.Lock()
	a.mu.Lock()
	if _, taken := a.sessions[s.ID]; taken {
		a.mu.Unlock()
		return nil, ErrSessionExists
	}
	a.sessions[s.ID] = sl
	a.mu.Unlock()

	h, err := a.store.Apply(ctx, &Mutation{
		Session: s,
		Op:      domain.OpCreateSession,
		Meta: map[string]interface{}{
			"player_a": s.PlayerA.String(),
			"player_b": s.PlayerB.String(),
			"stake_a":  s.StakeA,
			"stake_b":  s.StakeB,
		},
		Movements: []Movement{
			{Address: s.PlayerA, Amount: -s.StakeA, Kind: "escrow_lock"},
			{Address: s.PlayerB, Amount: -s.StakeB, Kind: "escrow_lock"},
		},
	})
	if err != nil {
		// Release the slot before taking the map lock; Sweep acquires them in
		// map-then-slot order. Waiters queued on the slot see a nil session
		// and report not-found.
		sl.mu.Unlock()
		a.mu.Lock()
		delete(a.sessions, s.ID)
		a.mu.Unlock()
		return nil, err
	}
	a.height.Store(h)
	sl.session = s
	sl.mu.Unlock()

	a.emitter.Emit(domain.Event{
		SessionID: s.ID,
		Type:      domain.EventSessionCreated,
		Phase:     s.Phase,
		Height:    h,
		Meta: map[string]interface{}{
			"player_a": s.PlayerA.String(),
			"player_b": s.PlayerB.String(),
		},
		CreatedAt: time.Now().UTC(),
	})
	logger.Info("session created", "session_id", s.ID, "height", h)
	return s.Clone(), nil
}

func (a *Arena) lookup(id uint32) (*slot, error) {
	a.mu.RLock()
	sl, ok := a.sessions[id]
	a.mu.RUnlock()
	if !ok {
		return nil, domain.ErrGameNotFound
	}
	return sl, nil
}

// apply runs one phase transition under the session lock, persists the
// result, swaps it in, and emits. The transition function sees a clone, so
// when it or the store fails the live session is untouched.
func (a *Arena) apply(ctx context.Context, id uint32, op string, player domain.Address,
	transition func(*domain.Session) (*domain.Session, error),
	event func(*domain.Session) (domain.EventType, map[string]interface{}),
	movements func(*domain.Session) []Movement,
) (*domain.Session, error) {
	sl, err := a.lookup(id)
	if err != nil {
		return nil, err
	}

	sl.mu.Lock()
	defer sl.mu.Unlock()
	if sl.session == nil {
		// Reserved slot whose create rolled back after we looked it up.
		return nil, domain.ErrGameNotFound
	}

	next, err := transition(sl.session)
	if err != nil {
		return nil, err
	}

	m := &Mutation{
		Session: next,
		Op:      op,
		Player:  &player,
		Meta:    map[string]interface{}{"phase": uint8(next.Phase)},
	}
	if movements != nil {
		m.Movements = movements(next)
	}
	h, err := a.store.Apply(ctx, m)
	if err != nil {
		return nil, err
	}
	a.height.Store(h)
	sl.session = next

	if event != nil {
		typ, meta := event(next)
		if typ != "" {
			a.emitter.Emit(domain.Event{
				SessionID: next.ID,
				Type:      typ,
				Phase:     next.Phase,
				Height:    h,
				Meta:      meta,
				CreatedAt: time.Now().UTC(),
			})
		}
	}
	return next.Clone(), nil
}

// CommitHands records one player's hand commitment.
func (a *Arena) CommitHands(ctx context.Context, id uint32, player domain.Address, hash domain.Commitment) (*domain.Session, error) {
	return a.apply(ctx, id, domain.OpCommitHands, player,
		func(s *domain.Session) (*domain.Session, error) {
			return ctm.CommitHands(s, player, hash)
		},
		func(s *domain.Session) (domain.EventType, map[string]interface{}) {
			if s.Phase == domain.PhaseHandsCommitted {
				return domain.EventHandsCommitted, nil
			}
			return "", nil
		},
		nil,
	)
}

// RevealHands verifies and records one player's revealed hands.
func (a *Arena) RevealHands(ctx context.Context, id uint32, player domain.Address, left, right uint32, salt ctm.HandsSalt) (*domain.Session, error) {
	return a.apply(ctx, id, domain.OpRevealHands, player,
		func(s *domain.Session) (*domain.Session, error) {
			return ctm.RevealHands(s, player, left, right, salt)
		},
		func(s *domain.Session) (domain.EventType, map[string]interface{}) {
			if s.Phase == domain.PhaseHandsRevealed {
				return domain.EventHandsRevealed, map[string]interface{}{
					"hands_a": []uint8{uint8(*s.LeftA), uint8(*s.RightA)},
					"hands_b": []uint8{uint8(*s.LeftB), uint8(*s.RightB)},
				}
			}
			return "", nil
		},
		nil,
	)
}

// CommitChoice records one player's choice commitment.
func (a *Arena) CommitChoice(ctx context.Context, id uint32, player domain.Address, hash domain.Commitment) (*domain.Session, error) {
	return a.apply(ctx, id, domain.OpCommitChoice, player,
		func(s *domain.Session) (*domain.Session, error) {
			return ctm.CommitChoice(s, player, hash)
		},
		func(s *domain.Session) (domain.EventType, map[string]interface{}) {
			if s.Phase == domain.PhaseChoiceCommitted {
				return domain.EventChoiceCommitted, nil
			}
			return "", nil
		},
		nil,
	)
}

// RevealChoice verifies one player's choice reveal. When it is the second
// reveal the session completes and the whole pot pays out to the winner in
// the same transaction.
func (a *Arena) RevealChoice(ctx context.Context, id uint32, player domain.Address, index uint32, salt ctm.ChoiceSalt) (*domain.Session, error) {
	s, err := a.apply(ctx, id, domain.OpRevealChoice, player,
		func(s *domain.Session) (*domain.Session, error) {
			return ctm.RevealChoice(s, player, index, salt)
		},
		func(s *domain.Session) (domain.EventType, map[string]interface{}) {
			if s.Phase == domain.PhaseComplete {
				return domain.EventSessionCompleted, map[string]interface{}{
					"winner": s.Winner.String(),
					"kept_a": uint8(*s.KeptA),
					"kept_b": uint8(*s.KeptB),
					"pot":    s.StakeA + s.StakeB,
				}
			}
			return domain.EventChoiceRevealed, nil
		},
		func(s *domain.Session) []Movement {
			if s.Phase != domain.PhaseComplete {
				return nil
			}
			return []Movement{
				{Address: *s.Winner, Amount: s.StakeA + s.StakeB, Kind: "payout"},
			}
		},
	)
	if err != nil {
		return nil, err
	}
	if s.Phase == domain.PhaseComplete {
		logger.Info("session completed", "session_id", s.ID, "winner", s.Winner.String())
	}
	return s, nil
}

// GetSession returns a copy of the session, if live.
func (a *Arena) GetSession(_ context.Context, id uint32) (*domain.Session, error) {
	sl, err := a.lookup(id)
	if err != nil {
		return nil, err
	}
	sl.mu.Lock()
	defer sl.mu.Unlock()
	if sl.session == nil {
		return nil, domain.ErrGameNotFound
	}
	return sl.session.Clone(), nil
}

// Sweep evicts completed sessions settled longer than retention ago. The
// rows stay in storage; eviction only frees the id for reuse. Returns the
// number evicted.
func (a *Arena) Sweep(retention time.Duration) int {
	cutoff := time.Now().UTC().Add(-retention)

	a.mu.Lock()
	defer a.mu.Unlock()
	evicted := 0
	for id, sl := range a.sessions {
		sl.mu.Lock()
		done := sl.session != nil && sl.session.Phase == domain.PhaseComplete &&
			sl.session.SettledAt != nil && sl.session.SettledAt.Before(cutoff)
		sl.mu.Unlock()
		if done {
			delete(a.sessions, id)
			evicted++
		}
	}
	if evicted > 0 {
		logger.Debug("swept completed sessions", "count", evicted)
	}
	return evicted
}
