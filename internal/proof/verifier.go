package proof

import (
	"crypto/ed25519"
	"crypto/sha256"
)

// Verifier checks an off-ledger proof attached to a session by an external
// auditor. Attached proofs are strictly informational: the ledger boundary
// never consults them when validating moves, and a rejected proof never
// blocks a session.
type Verifier interface {
	Verify(proof []byte, publicInputs [][]byte) bool
}

// Nop accepts nothing; wired when no auditor is configured.
type Nop struct{}

func (Nop) Verify([]byte, [][]byte) bool { return false }

// Attested accepts proofs that are ed25519 signatures by a known auditor
// key over the sha256 of the concatenated public inputs, each prefixed
// with its little-endian length so adjacent inputs cannot be resliced into
// a colliding transcript.
type Attested struct {
	AuditorKey ed25519.PublicKey
}

func NewAttested(key ed25519.PublicKey) *Attested {
	return &Attested{AuditorKey: key}
}

func (a *Attested) Verify(proof []byte, publicInputs [][]byte) bool {
	if len(a.AuditorKey) != ed25519.PublicKeySize || len(proof) != ed25519.SignatureSize {
		return false
	}
	digest := transcript(publicInputs)
	return ed25519.Verify(a.AuditorKey, digest[:], proof)
}

func transcript(inputs [][]byte) [32]byte {
	h := sha256.New()
	for _, in := range inputs {
		var lenPrefix [4]byte
		lenPrefix[0] = byte(len(in))
		lenPrefix[1] = byte(len(in) >> 8)
		lenPrefix[2] = byte(len(in) >> 16)
		lenPrefix[3] = byte(len(in) >> 24)
		h.Write(lenPrefix[:])
		h.Write(in)
	}
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

// Sign produces an attestation the matching Attested verifier accepts.
// Exists for auditors and tests; the service itself never signs proofs.
func Sign(priv ed25519.PrivateKey, publicInputs [][]byte) []byte {
	digest := transcript(publicInputs)
	return ed25519.Sign(priv, digest[:])
}
