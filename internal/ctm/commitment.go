package ctm

import (
	"crypto/rand"
	"fmt"

	"golang.org/x/crypto/sha3"

	"ctm_arena/internal/domain"
)

// Preimage layouts are part of the external contract. Two independent
// implementations must produce identical bytes for the same inputs or every
// reveal between them fails with HashMismatch:
//
//	hands:  left(1) || right(1) || salt(32)   = 34 bytes
//	choice: index(1) || salt(32)              = 33 bytes
//
// No length prefixes, no padding. The hash is keccak-256 and is not
// configurable per call.

// HandsSalt and ChoiceSalt are distinct types on purpose: each commitment
// phase needs a fresh 32-byte salt, and a shared type would make reusing the
// hands salt for the choice commitment too easy to do by accident.
type HandsSalt [32]byte

type ChoiceSalt [32]byte

// NewHandsSalt draws a fresh salt from the system CSPRNG.
func NewHandsSalt() (HandsSalt, error) {
	var s HandsSalt
	if _, err := rand.Read(s[:]); err != nil {
		return HandsSalt{}, fmt.Errorf("read random salt: %w", err)
	}
	return s, nil
}

// NewChoiceSalt draws a fresh salt from the system CSPRNG.
func NewChoiceSalt() (ChoiceSalt, error) {
	var s ChoiceSalt
	if _, err := rand.Read(s[:]); err != nil {
		return ChoiceSalt{}, fmt.Errorf("read random salt: %w", err)
	}
	return s, nil
}

// HandsCommitment computes keccak256(left || right || salt).
func HandsCommitment(left, right domain.Hand, salt HandsSalt) domain.Commitment {
	h := sha3.NewLegacyKeccak256()
	h.Write([]byte{byte(left), byte(right)})
	h.Write(salt[:])
	var out domain.Commitment
	copy(out[:], h.Sum(nil))
	return out
}

// ChoiceCommitment computes keccak256(index || salt) where index is 0 for
// the left hand and 1 for the right.
func ChoiceCommitment(index uint8, salt ChoiceSalt) domain.Commitment {
	h := sha3.NewLegacyKeccak256()
	h.Write([]byte{index})
	h.Write(salt[:])
	var out domain.Commitment
	copy(out[:], h.Sum(nil))
	return out
}
