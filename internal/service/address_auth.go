package service

import (
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/base64"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"time"

	"ctm_arena/internal/domain"
)

// Account ownership proof: the client signs a timestamped message with the
// key behind its address. Stateless on the server side; replay is bounded
// by the freshness window.

const proofPrefix = "ctm-auth/"

// AddressProof is the payload a client submits to obtain a JWT.
type AddressProof struct {
	Address   string `json:"address"`
	Timestamp int64  `json:"timestamp"`
	PublicKey string `json:"public_key"`
	Signature string `json:"signature"`
}

var (
	ErrProofExpired   = errors.New("proof expired")
	ErrProofInvalid   = errors.New("invalid proof signature")
	ErrProofMalformed = errors.New("malformed proof")
)

// ValidateAddressProof checks freshness, key ownership of the address, and
// the signature. Returns the proven address.
func ValidateAddressProof(p AddressProof, ttl time.Duration) (domain.Address, error) {
	addr, err := domain.ParseAddress(p.Address)
	if err != nil {
		return "", ErrProofMalformed
	}

	proofTime := time.Unix(p.Timestamp, 0)
	if time.Since(proofTime) > ttl || time.Until(proofTime) > 5*time.Minute {
		return "", ErrProofExpired
	}

	pubKey, err := hex.DecodeString(p.PublicKey)
	if err != nil || len(pubKey) != ed25519.PublicKeySize {
		return "", ErrProofMalformed
	}
	if domain.AddressFromPubKey(pubKey) != addr {
		return "", ErrProofInvalid
	}

	sig, err := base64.StdEncoding.DecodeString(p.Signature)
	if err != nil {
		return "", ErrProofMalformed
	}

	digest := proofDigest(addr, p.Timestamp)
	if !ed25519.Verify(ed25519.PublicKey(pubKey), digest[:], sig) {
		return "", ErrProofInvalid
	}
	return addr, nil
}

// SignAddressProof builds a proof for the given key. Used by client tooling
// and tests.
func SignAddressProof(priv ed25519.PrivateKey, at time.Time) AddressProof {
	pub := priv.Public().(ed25519.PublicKey)
	addr := domain.AddressFromPubKey(pub)
	digest := proofDigest(addr, at.Unix())
	return AddressProof{
		Address:   addr.String(),
		Timestamp: at.Unix(),
		PublicKey: hex.EncodeToString(pub),
		Signature: base64.StdEncoding.EncodeToString(ed25519.Sign(priv, digest[:])),
	}
}

func proofDigest(addr domain.Address, timestamp int64) [32]byte {
	msg := make([]byte, 0, len(proofPrefix)+len(addr)+8)
	msg = append(msg, proofPrefix...)
	msg = append(msg, addr...)
	msg = binary.LittleEndian.AppendUint64(msg, uint64(timestamp))
	return sha256.Sum256(msg)
}
