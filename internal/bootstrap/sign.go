package bootstrap

import (
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/binary"
	"errors"

	"ctm_arena/internal/domain"
)

// MethodCreateSession is the only ledger method reachable through the
// bootstrap handshake. The method name is part of every signed preimage, so
// an authorization for one method can never be replayed against another.
const MethodCreateSession = "create_session"

var (
	ErrUnknownSigner            = errors.New("no required authorization addressed to this signer")
	ErrAuthorizationMismatch    = errors.New("authorization does not match the rebuilt request")
	ErrAuthorizationExpired     = errors.New("authorization expired, draft a fresh one")
	ErrSignerKeyMismatch        = errors.New("signing key does not belong to the signer identity")
	ErrMissingAuthorization     = errors.New("envelope is missing a player authorization")
	ErrDuplicateAuthorization   = errors.New("envelope carries two authorizations for one signer")
	ErrMalformedArtifact        = errors.New("malformed authorization artifact")
	ErrMalformedEnvelope        = errors.New("malformed transaction envelope")
	ErrSelfPlay                 = errors.New("cannot play against yourself")
	ErrStakeOutOfRange          = errors.New("stake must be positive")
	ErrUnsupportedArtifactV     = errors.New("unsupported artifact version")
	ErrUnsupportedEnvelopeV     = errors.New("unsupported envelope version")
	errUnexpectedMethod         = errors.New("authorization names an unexpected method")
	errUnexpectedSessionMention = errors.New("authorization names a different session")
)

// AuthEntry is one signer's approval of one specific create_session call.
// The signature covers the method name, the session id, the signer's own
// identity, the signer's own stake, and the expiry height. It deliberately
// does NOT cover the counterparty's identity or stake: that is what lets A
// sign before B is known, while the ledger still checks each entry only
// against the arguments belonging to its signer.
type AuthEntry struct {
	Method       string         `json:"method"`
	SessionID    uint32         `json:"session_id"`
	Signer       domain.Address `json:"signer"`
	Stake        int64          `json:"stake"`
	ExpiryHeight uint64         `json:"expiry_height"`
	PublicKey    []byte         `json:"public_key"`
	Signature    []byte         `json:"signature"`
}

// authPreimage is the exact byte layout each signer commits to:
// method ++ u32le(session_id) ++ signer ++ i64le(stake) ++ u64le(expiry).
func authPreimage(method string, sessionID uint32, signer domain.Address, stake int64, expiry uint64) []byte {
	buf := make([]byte, 0, len(method)+4+len(signer)+8+8)
	buf = append(buf, method...)
	buf = binary.LittleEndian.AppendUint32(buf, sessionID)
	buf = append(buf, signer...)
	buf = binary.LittleEndian.AppendUint64(buf, uint64(stake))
	buf = binary.LittleEndian.AppendUint64(buf, expiry)
	return buf
}

func authDigest(method string, sessionID uint32, signer domain.Address, stake int64, expiry uint64) [32]byte {
	return sha256.Sum256(authPreimage(method, sessionID, signer, stake, expiry))
}

// SignAuthEntry produces the signer's authorization entry for one required
// authorization. The private key must belong to req.Signer.
func SignAuthEntry(priv ed25519.PrivateKey, sessionID uint32, req RequiredAuth, expiry uint64) (AuthEntry, error) {
	pub := priv.Public().(ed25519.PublicKey)
	if domain.AddressFromPubKey(pub) != req.Signer {
		return AuthEntry{}, ErrSignerKeyMismatch
	}
	digest := authDigest(MethodCreateSession, sessionID, req.Signer, req.Stake, expiry)
	return AuthEntry{
		Method:       MethodCreateSession,
		SessionID:    sessionID,
		Signer:       req.Signer,
		Stake:        req.Stake,
		ExpiryHeight: expiry,
		PublicKey:    append([]byte(nil), pub...),
		Signature:    ed25519.Sign(priv, digest[:]),
	}, nil
}

// Verify checks the entry against the request it claims to authorize:
// the method and session id must match the rebuilt call, the embedded
// public key must derive the signer identity, the expiry must still be in
// the future at the given height, and the signature must cover exactly the
// documented preimage. Any argument drift fails as tampering, never as a
// coercion.
func (e AuthEntry) Verify(sessionID uint32, signer domain.Address, stake int64, height uint64) error {
	if e.Method != MethodCreateSession {
		return errUnexpectedMethod
	}
	if e.SessionID != sessionID {
		return errUnexpectedSessionMention
	}
	if e.Signer != signer || e.Stake != stake {
		return ErrAuthorizationMismatch
	}
	if len(e.PublicKey) != ed25519.PublicKeySize {
		return ErrAuthorizationMismatch
	}
	if domain.AddressFromPubKey(e.PublicKey) != e.Signer {
		return ErrSignerKeyMismatch
	}
	if e.ExpiryHeight <= height {
		return ErrAuthorizationExpired
	}
	digest := authDigest(e.Method, e.SessionID, e.Signer, e.Stake, e.ExpiryHeight)
	if !ed25519.Verify(ed25519.PublicKey(e.PublicKey), digest[:], e.Signature) {
		return ErrAuthorizationMismatch
	}
	return nil
}
