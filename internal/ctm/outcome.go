package ctm

import "ctm_arena/internal/domain"

// Seat names one of the two sides of a session.
type Seat uint8

const (
	SeatA Seat = iota
	SeatB
)

// Beats reports whether hand a beats hand b under cyclic dominance:
// rock beats scissors, paper beats rock, scissors beats paper.
func Beats(a, b domain.Hand) bool {
	return (a == domain.HandRock && b == domain.HandScissors) ||
		(a == domain.HandPaper && b == domain.HandRock) ||
		(a == domain.HandScissors && b == domain.HandPaper)
}

// Resolve maps both kept hands to the winning seat. Equal hands resolve to
// seat A: a designated-winner tie-break, not a draw. Every session ends with
// exactly one recordable winner, and observable outcomes depend on that.
func Resolve(keptA, keptB domain.Hand) Seat {
	if Beats(keptA, keptB) || keptA == keptB {
		return SeatA
	}
	return SeatB
}
