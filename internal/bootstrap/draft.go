package bootstrap

import (
	"context"
	"crypto/ed25519"
	"encoding/base64"
	"encoding/json"

	"ctm_arena/internal/domain"
)

// RequiredAuth is one authorization the ledger demands before it will
// execute a create_session call. Entries are per-signer and are matched by
// signer identity, never by position.
type RequiredAuth struct {
	Signer domain.Address `json:"signer"`
	Stake  int64          `json:"stake"`
}

// Simulator answers "what would this create_session call require" without
// executing it. The arena implements it against live state; tests use a
// local double.
type Simulator interface {
	SimulateCreate(ctx context.Context, id uint32, a, b domain.Address, stakeA, stakeB int64) ([]RequiredAuth, error)
	Height(ctx context.Context) (uint64, error)
}

const (
	artifactVersion = 1
	envelopeVersion = 1
)

// Artifact is what player A exports after drafting: enough for B to
// rebuild the identical request, plus A's signed authorization. It is an
// immutable value passed out-of-band (pasted text, a link); neither party
// ever shares a live channel during bootstrap.
type Artifact struct {
	Version   int            `json:"v"`
	SessionID uint32         `json:"session_id"`
	Initiator domain.Address `json:"initiator"`
	Stake     int64          `json:"stake"`
	Auth      AuthEntry      `json:"auth"`
}

// Encode serializes the artifact for out-of-band transfer.
func (a *Artifact) Encode() (string, error) {
	raw, err := json.Marshal(a)
	if err != nil {
		return "", err
	}
	return base64.URLEncoding.EncodeToString(raw), nil
}

// DecodeArtifact parses an exported artifact. A payload that does not parse
// is rejected here, before any key material is touched.
func DecodeArtifact(s string) (*Artifact, error) {
	raw, err := base64.URLEncoding.DecodeString(s)
	if err != nil {
		return nil, ErrMalformedArtifact
	}
	var a Artifact
	if err := json.Unmarshal(raw, &a); err != nil {
		return nil, ErrMalformedArtifact
	}
	if a.Version != artifactVersion {
		return nil, ErrUnsupportedArtifactV
	}
	if !a.Initiator.Valid() || a.Initiator == domain.PlaceholderAddress {
		return nil, ErrMalformedArtifact
	}
	return &a, nil
}

// Envelope is the merged, dual-authorized creation request that Finalize
// submits to the ledger.
type Envelope struct {
	Version   int            `json:"v"`
	SessionID uint32         `json:"session_id"`
	PlayerA   domain.Address `json:"player_a"`
	PlayerB   domain.Address `json:"player_b"`
	StakeA    int64          `json:"stake_a"`
	StakeB    int64          `json:"stake_b"`
	Auths     []AuthEntry    `json:"auths"`
}

func (e *Envelope) Encode() (string, error) {
	raw, err := json.Marshal(e)
	if err != nil {
		return "", err
	}
	return base64.URLEncoding.EncodeToString(raw), nil
}

func DecodeEnvelope(s string) (*Envelope, error) {
	raw, err := base64.URLEncoding.DecodeString(s)
	if err != nil {
		return nil, ErrMalformedEnvelope
	}
	var e Envelope
	if err := json.Unmarshal(raw, &e); err != nil {
		return nil, ErrMalformedEnvelope
	}
	if e.Version != envelopeVersion {
		return nil, ErrUnsupportedEnvelopeV
	}
	return &e, nil
}

func findRequired(auths []RequiredAuth, signer domain.Address) (RequiredAuth, bool) {
	for _, r := range auths {
		if r.Signer == signer {
			return r, true
		}
	}
	return RequiredAuth{}, false
}

// Draft builds A's side of the handshake. B's identity is not yet known, so
// the request is simulated with the placeholder identity; each required
// authorization binds only its own signer's arguments, which is why A's
// signature stays valid once the real counterparty is substituted in.
func Draft(ctx context.Context, sim Simulator, priv ed25519.PrivateKey, sessionID uint32, stakeA, stakeB int64, expiry uint64) (*Artifact, error) {
	if stakeA <= 0 || stakeB <= 0 {
		return nil, ErrStakeOutOfRange
	}
	initiator := domain.AddressFromPubKey(priv.Public().(ed25519.PublicKey))

	required, err := sim.SimulateCreate(ctx, sessionID, initiator, domain.PlaceholderAddress, stakeA, stakeB)
	if err != nil {
		return nil, err
	}
	req, ok := findRequired(required, initiator)
	if !ok {
		return nil, ErrUnknownSigner
	}
	entry, err := SignAuthEntry(priv, sessionID, req, expiry)
	if err != nil {
		return nil, err
	}
	return &Artifact{
		Version:   artifactVersion,
		SessionID: sessionID,
		Initiator: initiator,
		Stake:     req.Stake,
		Auth:      entry,
	}, nil
}

// Import consumes A's artifact and produces the merged envelope. The
// self-play check and A's authorization are verified before B's key signs
// anything, so a hostile artifact never extracts a signature from B.
func Import(ctx context.Context, sim Simulator, priv ed25519.PrivateKey, encoded string, stakeB int64, expiry uint64) (*Envelope, error) {
	art, err := DecodeArtifact(encoded)
	if err != nil {
		return nil, err
	}
	if stakeB <= 0 {
		return nil, ErrStakeOutOfRange
	}

	importer := domain.AddressFromPubKey(priv.Public().(ed25519.PublicKey))
	if importer == art.Initiator {
		return nil, ErrSelfPlay
	}

	height, err := sim.Height(ctx)
	if err != nil {
		return nil, err
	}
	if err := art.Auth.Verify(art.SessionID, art.Initiator, art.Stake, height); err != nil {
		return nil, err
	}

	required, err := sim.SimulateCreate(ctx, art.SessionID, art.Initiator, importer, art.Stake, stakeB)
	if err != nil {
		return nil, err
	}
	req, ok := findRequired(required, importer)
	if !ok {
		return nil, ErrUnknownSigner
	}
	entry, err := SignAuthEntry(priv, art.SessionID, req, expiry)
	if err != nil {
		return nil, err
	}

	return &Envelope{
		Version:   envelopeVersion,
		SessionID: art.SessionID,
		PlayerA:   art.Initiator,
		PlayerB:   importer,
		StakeA:    art.Stake,
		StakeB:    stakeB,
		Auths:     []AuthEntry{art.Auth, entry},
	}, nil
}

// VerifyEnvelope re-checks the merged request at finalize time: exactly one
// valid, unexpired authorization per player, each matching the envelope's
// own arguments. The ledger boundary calls this before executing the
// create, so an envelope assembled by anyone other than the two players
// still cannot commit them.
func VerifyEnvelope(env *Envelope, height uint64) error {
	if env.PlayerA == env.PlayerB {
		return ErrSelfPlay
	}
	seen := map[domain.Address]bool{}
	for _, e := range env.Auths {
		if seen[e.Signer] {
			return ErrDuplicateAuthorization
		}
		seen[e.Signer] = true
	}

	for _, want := range []RequiredAuth{
		{Signer: env.PlayerA, Stake: env.StakeA},
		{Signer: env.PlayerB, Stake: env.StakeB},
	} {
		var found *AuthEntry
		for i := range env.Auths {
			if env.Auths[i].Signer == want.Signer {
				found = &env.Auths[i]
				break
			}
		}
		if found == nil {
			return ErrMissingAuthorization
		}
		if err := found.Verify(env.SessionID, want.Signer, want.Stake, height); err != nil {
			return err
		}
	}
	return nil
}
