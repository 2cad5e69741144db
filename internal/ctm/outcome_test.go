package ctm

import (
	"testing"

	"ctm_arena/internal/domain"
)

// All nine (keptA, keptB) pairs map deterministically: three ties and three
// dominant pairs go to A, three dominant pairs go to B.
func TestResolveExhaustive(t *testing.T) {
	cases := []struct {
		a, b domain.Hand
		want Seat
	}{
		{domain.HandRock, domain.HandRock, SeatA},         // tie-break
		{domain.HandRock, domain.HandPaper, SeatB},        // paper beats rock
		{domain.HandRock, domain.HandScissors, SeatA},     // rock beats scissors
		{domain.HandPaper, domain.HandRock, SeatA},        // paper beats rock
		{domain.HandPaper, domain.HandPaper, SeatA},       // tie-break
		{domain.HandPaper, domain.HandScissors, SeatB},    // scissors beats paper
		{domain.HandScissors, domain.HandRock, SeatB},     // rock beats scissors
		{domain.HandScissors, domain.HandPaper, SeatA},    // scissors beats paper
		{domain.HandScissors, domain.HandScissors, SeatA}, // tie-break
	}

	for _, tc := range cases {
		if got := Resolve(tc.a, tc.b); got != tc.want {
			t.Fatalf("Resolve(%s,%s) = %v; want %v", tc.a, tc.b, got, tc.want)
		}
	}
}

func TestBeatsIsAsymmetric(t *testing.T) {
	hands := []domain.Hand{domain.HandRock, domain.HandPaper, domain.HandScissors}
	for _, a := range hands {
		for _, b := range hands {
			if a == b {
				if Beats(a, b) {
					t.Fatalf("Beats(%s,%s) = true for equal hands", a, b)
				}
				continue
			}
			if Beats(a, b) == Beats(b, a) {
				t.Fatalf("Beats(%s,%s) and Beats(%s,%s) agree; dominance must be asymmetric", a, b, b, a)
			}
		}
	}
}
