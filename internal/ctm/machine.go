package ctm

import (
	"errors"
	"time"

	"ctm_arena/internal/domain"
)

// Creation failures are caller bugs, not part of the numbered protocol
// taxonomy (a creation request that trips these never reaches the ledger).
var (
	ErrSamePlayer     = errors.New("player addresses must be distinct")
	ErrInvalidStake   = errors.New("stake must be positive")
	ErrInvalidAddress = errors.New("invalid player address")
)

// The transition functions below are pure: each takes the current session,
// validates the call, and returns a migrated deep copy or a ProtocolError.
// They never touch storage, escrow, or clocks beyond CreatedAt stamping on
// Create. The arena applies them under a per-session lock and swaps the
// result in atomically, which is what keeps "half migrated" states
// unobservable.

// Create builds a fresh session in phase Created. Joint authorization and
// id uniqueness are the ledger boundary's concern; this validates only the
// arguments themselves.
func Create(id uint32, a, b domain.Address, stakeA, stakeB int64) (*domain.Session, error) {
	if !a.Valid() || !b.Valid() {
		return nil, ErrInvalidAddress
	}
	if a == b {
		return nil, ErrSamePlayer
	}
	if stakeA <= 0 || stakeB <= 0 {
		return nil, ErrInvalidStake
	}
	return &domain.Session{
		ID:        id,
		PlayerA:   a,
		PlayerB:   b,
		StakeA:    stakeA,
		StakeB:    stakeB,
		Phase:     domain.PhaseCreated,
		CreatedAt: time.Now().UTC(),
	}, nil
}

func checkPhase(s *domain.Session, want domain.Phase) error {
	if s.Phase == domain.PhaseComplete {
		return domain.ErrGameAlreadyEnded
	}
	if s.Phase != want {
		return domain.ErrWrongPhase
	}
	return nil
}

// CommitHands stores a player's hand commitment. Each player commits exactly
// once; the phase advances only when both commitments are present.
func CommitHands(s *domain.Session, player domain.Address, hash domain.Commitment) (*domain.Session, error) {
	if err := checkPhase(s, domain.PhaseCreated); err != nil {
		return nil, err
	}

	next := s.Clone()
	switch player {
	case s.PlayerA:
		if next.CommitA != nil {
			return nil, domain.ErrAlreadyCommitted
		}
		next.CommitA = &hash
	case s.PlayerB:
		if next.CommitB != nil {
			return nil, domain.ErrAlreadyCommitted
		}
		next.CommitB = &hash
	default:
		return nil, domain.ErrNotPlayer
	}

	if next.CommitA != nil && next.CommitB != nil {
		next.Phase = domain.PhaseHandsCommitted
	}
	return next, nil
}

// RevealHands verifies a player's revealed hands against the stored
// commitment and records them. A HashMismatch leaves the session untouched
// so the player can retry with the correct values.
func RevealHands(s *domain.Session, player domain.Address, left, right uint32, salt HandsSalt) (*domain.Session, error) {
	if err := checkPhase(s, domain.PhaseHandsCommitted); err != nil {
		return nil, err
	}
	if left > uint32(domain.HandScissors) || right > uint32(domain.HandScissors) {
		return nil, domain.ErrInvalidHand
	}
	if left == right {
		return nil, domain.ErrHandsMustDiffer
	}

	lh, rh := domain.Hand(left), domain.Hand(right)
	computed := HandsCommitment(lh, rh, salt)

	next := s.Clone()
	switch player {
	case s.PlayerA:
		if next.LeftA != nil {
			return nil, domain.ErrAlreadyCommitted
		}
		if computed != *next.CommitA {
			return nil, domain.ErrHashMismatch
		}
		next.LeftA, next.RightA = &lh, &rh
	case s.PlayerB:
		if next.LeftB != nil {
			return nil, domain.ErrAlreadyCommitted
		}
		if computed != *next.CommitB {
			return nil, domain.ErrHashMismatch
		}
		next.LeftB, next.RightB = &lh, &rh
	default:
		return nil, domain.ErrNotPlayer
	}

	if next.LeftA != nil && next.LeftB != nil {
		next.Phase = domain.PhaseHandsRevealed
	}
	return next, nil
}

// CommitChoice stores a player's commitment to which revealed hand they
// keep for the final duel.
func CommitChoice(s *domain.Session, player domain.Address, hash domain.Commitment) (*domain.Session, error) {
	if err := checkPhase(s, domain.PhaseHandsRevealed); err != nil {
		return nil, err
	}

	next := s.Clone()
	switch player {
	case s.PlayerA:
		if next.ChoiceCommitA != nil {
			return nil, domain.ErrAlreadyCommitted
		}
		next.ChoiceCommitA = &hash
	case s.PlayerB:
		if next.ChoiceCommitB != nil {
			return nil, domain.ErrAlreadyCommitted
		}
		next.ChoiceCommitB = &hash
	default:
		return nil, domain.ErrNotPlayer
	}

	if next.ChoiceCommitA != nil && next.ChoiceCommitB != nil {
		next.Phase = domain.PhaseChoiceCommitted
	}
	return next, nil
}

// RevealChoice verifies the choice commitment, resolves the kept hand, and
// once both players revealed, decides the winner and completes the session.
func RevealChoice(s *domain.Session, player domain.Address, index uint32, salt ChoiceSalt) (*domain.Session, error) {
	if err := checkPhase(s, domain.PhaseChoiceCommitted); err != nil {
		return nil, err
	}
	if index > 1 {
		return nil, domain.ErrInvalidChoice
	}

	computed := ChoiceCommitment(uint8(index), salt)

	next := s.Clone()
	switch player {
	case s.PlayerA:
		if next.KeptA != nil {
			return nil, domain.ErrAlreadyCommitted
		}
		if computed != *next.ChoiceCommitA {
			return nil, domain.ErrHashMismatch
		}
		kept := *next.LeftA
		if index == 1 {
			kept = *next.RightA
		}
		next.KeptA = &kept
	case s.PlayerB:
		if next.KeptB != nil {
			return nil, domain.ErrAlreadyCommitted
		}
		if computed != *next.ChoiceCommitB {
			return nil, domain.ErrHashMismatch
		}
		kept := *next.LeftB
		if index == 1 {
			kept = *next.RightB
		}
		next.KeptB = &kept
	default:
		return nil, domain.ErrNotPlayer
	}

	if next.KeptA != nil && next.KeptB != nil {
		winner := next.PlayerB
		if Resolve(*next.KeptA, *next.KeptB) == SeatA {
			winner = next.PlayerA
		}
		next.Winner = &winner
		next.Phase = domain.PhaseComplete
		now := time.Now().UTC()
		next.SettledAt = &now
	}
	return next, nil
}
