package domain

import (
	"encoding/hex"
	"time"
)

// Phase is the lifecycle state of a session. The wire encoding is the
// integer 1-5; internal code always works with the named constants.
type Phase uint8

const (
	PhaseCreated         Phase = 1 // waiting for both hand commitments
	PhaseHandsCommitted  Phase = 2 // waiting for both hand reveals
	PhaseHandsRevealed   Phase = 3 // waiting for both choice commitments
	PhaseChoiceCommitted Phase = 4 // waiting for both choice reveals
	PhaseComplete        Phase = 5 // winner recorded, stakes paid out
)

func (p Phase) String() string {
	switch p {
	case PhaseCreated:
		return "created"
	case PhaseHandsCommitted:
		return "hands_committed"
	case PhaseHandsRevealed:
		return "hands_revealed"
	case PhaseChoiceCommitted:
		return "choice_committed"
	case PhaseComplete:
		return "complete"
	}
	return "unknown"
}

// Hand is one of the three throwable values.
type Hand uint8

const (
	HandRock     Hand = 0
	HandPaper    Hand = 1
	HandScissors Hand = 2
)

func (h Hand) Valid() bool {
	return h <= HandScissors
}

func (h Hand) String() string {
	switch h {
	case HandRock:
		return "rock"
	case HandPaper:
		return "paper"
	case HandScissors:
		return "scissors"
	}
	return "invalid"
}

// Commitment is a 32-byte hash binding a player to secret values.
type Commitment [32]byte

func (c Commitment) Hex() string {
	return hex.EncodeToString(c[:])
}

// Session is one game instance. Fields for a later phase stay nil until the
// earlier phase has both players' fields populated; the arena swaps a fully
// migrated copy in under the per-session lock, so readers never observe a
// session between phases.
type Session struct {
	ID      uint32
	PlayerA Address
	PlayerB Address
	StakeA  int64
	StakeB  int64
	Phase   Phase

	CommitA *Commitment
	CommitB *Commitment

	LeftA  *Hand
	RightA *Hand
	LeftB  *Hand
	RightB *Hand

	ChoiceCommitA *Commitment
	ChoiceCommitB *Commitment

	KeptA *Hand
	KeptB *Hand

	Winner *Address

	CreatedAt time.Time
	SettledAt *time.Time
}

// IsPlayer reports whether addr is one of the two named players.
func (s *Session) IsPlayer(addr Address) bool {
	return addr == s.PlayerA || addr == s.PlayerB
}

// Clone returns a deep copy. Transition functions mutate the copy and the
// arena swaps it in atomically, so a rejected call leaves the session in
// exactly its pre-call state.
func (s *Session) Clone() *Session {
	c := *s
	c.CommitA = cloneCommitment(s.CommitA)
	c.CommitB = cloneCommitment(s.CommitB)
	c.LeftA = cloneHand(s.LeftA)
	c.RightA = cloneHand(s.RightA)
	c.LeftB = cloneHand(s.LeftB)
	c.RightB = cloneHand(s.RightB)
	c.ChoiceCommitA = cloneCommitment(s.ChoiceCommitA)
	c.ChoiceCommitB = cloneCommitment(s.ChoiceCommitB)
	c.KeptA = cloneHand(s.KeptA)
	c.KeptB = cloneHand(s.KeptB)
	if s.Winner != nil {
		w := *s.Winner
		c.Winner = &w
	}
	if s.SettledAt != nil {
		t := *s.SettledAt
		c.SettledAt = &t
	}
	return &c
}

func cloneCommitment(c *Commitment) *Commitment {
	if c == nil {
		return nil
	}
	v := *c
	return &v
}

func cloneHand(h *Hand) *Hand {
	if h == nil {
		return nil
	}
	v := *h
	return &v
}
