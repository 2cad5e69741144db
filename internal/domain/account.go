package domain

import (
	"crypto/ed25519"
	"encoding/hex"
	"errors"
	"time"
)

// Address identifies an account: the lowercase hex encoding of a 32-byte
// ed25519 public key.
type Address string

const addressHexLen = 2 * ed25519.PublicKeySize

// PlaceholderAddress is a syntactically valid but non-authoritative identity
// used when drafting a creation request before the counterparty is known.
// No private key for it exists (it is not a valid curve point encoding that
// anyone controls), so it can never authorize anything.
const PlaceholderAddress Address = "0000000000000000000000000000000000000000000000000000000000000000"

// AddressFromPubKey derives the account address for an ed25519 public key.
func AddressFromPubKey(pub ed25519.PublicKey) Address {
	return Address(hex.EncodeToString(pub))
}

// ParseAddress validates the textual form of an address.
func ParseAddress(s string) (Address, error) {
	if len(s) != addressHexLen {
		return "", errors.New("address must be 64 hex characters")
	}
	if _, err := hex.DecodeString(s); err != nil {
		return "", errors.New("address is not valid hex")
	}
	return Address(s), nil
}

func (a Address) Valid() bool {
	_, err := ParseAddress(string(a))
	return err == nil
}

func (a Address) String() string { return string(a) }

// Account holds the points balance backing stakes.
type Account struct {
	Address   Address   `db:"address" json:"address"`
	Points    int64     `db:"points" json:"points"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}
