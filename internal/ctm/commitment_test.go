package ctm

import (
	"testing"

	"golang.org/x/crypto/sha3"

	"ctm_arena/internal/domain"
)

func TestHandsCommitmentLayout(t *testing.T) {
	var salt HandsSalt
	for i := range salt {
		salt[i] = byte(i)
	}

	// Recompute from the documented 34-byte layout by hand.
	pre := append([]byte{0, 1}, salt[:]...)
	if len(pre) != 34 {
		t.Fatalf("preimage length = %d; want 34", len(pre))
	}
	h := sha3.NewLegacyKeccak256()
	h.Write(pre)
	var want domain.Commitment
	copy(want[:], h.Sum(nil))

	got := HandsCommitment(domain.HandRock, domain.HandPaper, salt)
	if got != want {
		t.Fatalf("HandsCommitment does not match keccak256(left||right||salt)")
	}
}

func TestChoiceCommitmentLayout(t *testing.T) {
	var salt ChoiceSalt
	for i := range salt {
		salt[i] = byte(0xff - i)
	}

	pre := append([]byte{1}, salt[:]...)
	if len(pre) != 33 {
		t.Fatalf("preimage length = %d; want 33", len(pre))
	}
	h := sha3.NewLegacyKeccak256()
	h.Write(pre)
	var want domain.Commitment
	copy(want[:], h.Sum(nil))

	if got := ChoiceCommitment(1, salt); got != want {
		t.Fatalf("ChoiceCommitment does not match keccak256(index||salt)")
	}
}

func TestHandsCommitmentBitFlip(t *testing.T) {
	salt, err := NewHandsSalt()
	if err != nil {
		t.Fatalf("NewHandsSalt: %v", err)
	}
	base := HandsCommitment(domain.HandRock, domain.HandPaper, salt)

	// Any single-bit change of salt, left, or right must change the hash.
	for byteIdx := 0; byteIdx < len(salt); byteIdx++ {
		for bit := 0; bit < 8; bit++ {
			mutated := salt
			mutated[byteIdx] ^= 1 << bit
			if HandsCommitment(domain.HandRock, domain.HandPaper, mutated) == base {
				t.Fatalf("flipping salt byte %d bit %d did not change commitment", byteIdx, bit)
			}
		}
	}
	if HandsCommitment(domain.HandPaper, domain.HandRock, salt) == base {
		t.Fatalf("swapping hands did not change commitment")
	}
	if HandsCommitment(domain.HandRock, domain.HandScissors, salt) == base {
		t.Fatalf("changing right hand did not change commitment")
	}
}

func TestSaltsAreFresh(t *testing.T) {
	a, err := NewHandsSalt()
	if err != nil {
		t.Fatalf("NewHandsSalt: %v", err)
	}
	b, err := NewHandsSalt()
	if err != nil {
		t.Fatalf("NewHandsSalt: %v", err)
	}
	if a == b {
		t.Fatalf("two fresh salts are identical")
	}
}
