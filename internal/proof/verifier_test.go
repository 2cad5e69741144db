package proof

import (
	"crypto/ed25519"
	"crypto/rand"
	"testing"
)

func TestAttestedRoundTrip(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	v := NewAttested(pub)

	inputs := [][]byte{[]byte("session:42"), {0x01, 0x02}}
	sig := Sign(priv, inputs)

	if !v.Verify(sig, inputs) {
		t.Fatalf("valid attestation rejected")
	}
	if v.Verify(sig, [][]byte{[]byte("session:43"), {0x01, 0x02}}) {
		t.Fatalf("attestation accepted for different inputs")
	}
	if v.Verify(sig[:len(sig)-1], inputs) {
		t.Fatalf("truncated signature accepted")
	}
}

func TestTranscriptBoundaries(t *testing.T) {
	pub, priv, _ := ed25519.GenerateKey(rand.Reader)
	v := NewAttested(pub)

	// "ab","c" and "a","bc" must not share a transcript.
	sig := Sign(priv, [][]byte{[]byte("ab"), []byte("c")})
	if v.Verify(sig, [][]byte{[]byte("a"), []byte("bc")}) {
		t.Fatalf("resliced inputs accepted")
	}
}

func TestNopRejectsEverything(t *testing.T) {
	if (Nop{}).Verify([]byte("anything"), nil) {
		t.Fatalf("Nop accepted a proof")
	}
}
