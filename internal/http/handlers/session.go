package handlers

import (
	"encoding/base64"
	"encoding/hex"
	"errors"
	"net/http"
	"strconv"

	"ctm_arena/internal/bootstrap"
	"ctm_arena/internal/ctm"
	"ctm_arena/internal/domain"
	"ctm_arena/internal/http/middleware"
	"ctm_arena/internal/ledger"
	"ctm_arena/internal/repository"
	"ctm_arena/internal/service"

	"github.com/gin-gonic/gin"
)

// Height reports the current ledger height, used by clients to pick an
// authorization expiry at draft time.
func (h *Handler) Height(c *gin.Context) {
	height, err := h.Arena.Height(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "height unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"height": height})
}

// StakeLimits reports the service stake limits.
func (h *Handler) StakeLimits(c *gin.Context) {
	limits := h.SessionService.GetLimits()
	c.JSON(http.StatusOK, gin.H{
		"min_stake": limits.MinStake,
		"max_stake": limits.MaxStake,
	})
}

type simulateRequest struct {
	SessionID uint32 `json:"session_id"`
	PlayerA   string `json:"player_a"`
	PlayerB   string `json:"player_b"`
	StakeA    int64  `json:"stake_a"`
	StakeB    int64  `json:"stake_b"`
}

// Simulate returns the per-signer authorizations a create_session call
// would require. Drafting clients call it with the placeholder identity
// standing in for the unknown counterparty.
func (h *Handler) Simulate(c *gin.Context) {
	var req simulateRequest
	if err := c.BindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad request"})
		return
	}

	required, err := h.Arena.SimulateCreate(c.Request.Context(), req.SessionID,
		domain.Address(req.PlayerA), domain.Address(req.PlayerB), req.StakeA, req.StakeB)
	if err != nil {
		respondLedgerError(c, "simulate", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"required_auths": required})
}

type finalizeRequest struct {
	Envelope string `json:"envelope"`
}

// Finalize submits a merged, dual-authorized creation envelope.
func (h *Handler) Finalize(c *gin.Context) {
	var req finalizeRequest
	if err := c.BindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad request"})
		return
	}

	env, err := bootstrap.DecodeEnvelope(req.Envelope)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	s, err := h.SessionService.Finalize(c.Request.Context(), env)
	if err != nil {
		respondLedgerError(c, domain.OpCreateSession, err)
		return
	}

	middleware.SessionOps.WithLabelValues(domain.OpCreateSession, "ok").Inc()
	c.JSON(http.StatusCreated, sessionView(s))
}

type commitRequest struct {
	Hash string `json:"hash"`
}

// CommitHands records the caller's hand commitment.
func (h *Handler) CommitHands(c *gin.Context) {
	id, player, ok := h.moveContext(c)
	if !ok {
		return
	}
	var req commitRequest
	if err := c.BindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad request"})
		return
	}
	hash, err := parseCommitment(req.Hash)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "hash must be 32 bytes of hex"})
		return
	}

	s, err := h.Arena.CommitHands(c.Request.Context(), id, player, hash)
	if err != nil {
		respondLedgerError(c, domain.OpCommitHands, err)
		return
	}
	middleware.SessionOps.WithLabelValues(domain.OpCommitHands, "ok").Inc()
	c.JSON(http.StatusOK, sessionView(s))
}

type revealHandsRequest struct {
	Left  uint32 `json:"left"`
	Right uint32 `json:"right"`
	Salt  string `json:"salt"`
}

// RevealHands opens the caller's hand commitment.
func (h *Handler) RevealHands(c *gin.Context) {
	id, player, ok := h.moveContext(c)
	if !ok {
		return
	}
	var req revealHandsRequest
	if err := c.BindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad request"})
		return
	}
	var salt ctm.HandsSalt
	if err := parseSalt(req.Salt, salt[:]); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "salt must be 32 bytes of hex"})
		return
	}

	s, err := h.Arena.RevealHands(c.Request.Context(), id, player, req.Left, req.Right, salt)
	if err != nil {
		respondLedgerError(c, domain.OpRevealHands, err)
		return
	}
	middleware.SessionOps.WithLabelValues(domain.OpRevealHands, "ok").Inc()
	c.JSON(http.StatusOK, sessionView(s))
}

// CommitChoice records the caller's choice commitment.
func (h *Handler) CommitChoice(c *gin.Context) {
	id, player, ok := h.moveContext(c)
	if !ok {
		return
	}
	var req commitRequest
	if err := c.BindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad request"})
		return
	}
	hash, err := parseCommitment(req.Hash)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "hash must be 32 bytes of hex"})
		return
	}

	s, err := h.Arena.CommitChoice(c.Request.Context(), id, player, hash)
	if err != nil {
		respondLedgerError(c, domain.OpCommitChoice, err)
		return
	}
	middleware.SessionOps.WithLabelValues(domain.OpCommitChoice, "ok").Inc()
	c.JSON(http.StatusOK, sessionView(s))
}

type revealChoiceRequest struct {
	Index uint32 `json:"index"`
	Salt  string `json:"salt"`
}

// RevealChoice opens the caller's choice commitment, completing the
// session when it is the second reveal.
func (h *Handler) RevealChoice(c *gin.Context) {
	id, player, ok := h.moveContext(c)
	if !ok {
		return
	}
	var req revealChoiceRequest
	if err := c.BindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad request"})
		return
	}
	var salt ctm.ChoiceSalt
	if err := parseSalt(req.Salt, salt[:]); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "salt must be 32 bytes of hex"})
		return
	}

	s, err := h.Arena.RevealChoice(c.Request.Context(), id, player, req.Index, salt)
	if err != nil {
		respondLedgerError(c, domain.OpRevealChoice, err)
		return
	}
	middleware.SessionOps.WithLabelValues(domain.OpRevealChoice, "ok").Inc()
	if s.Phase == domain.PhaseComplete {
		middleware.SessionsCompleted.Inc()
	}
	c.JSON(http.StatusOK, sessionView(s))
}

// GetSession returns the session state. Completed sessions remain readable
// from storage after arena eviction.
func (h *Handler) GetSession(c *gin.Context) {
	id, ok := sessionIDParam(c)
	if !ok {
		return
	}
	s, err := h.SessionService.GetSession(c.Request.Context(), id)
	if err != nil {
		respondLedgerError(c, "get_session", err)
		return
	}
	c.JSON(http.StatusOK, sessionView(s))
}

// SessionEvents returns the audit trail of a session in ledger order.
func (h *Handler) SessionEvents(c *gin.Context) {
	id, ok := sessionIDParam(c)
	if !ok {
		return
	}
	limit := 100
	if v := c.Query("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	ops, err := h.SessionService.History(c.Request.Context(), id, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "history unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"events": ops})
}

type attachProofRequest struct {
	Proof        string   `json:"proof"`
	PublicInputs []string `json:"public_inputs"`
}

// AttachProof stores an off-ledger proof against a session. The attachment
// never affects move validation; verification status is recorded as-is.
func (h *Handler) AttachProof(c *gin.Context) {
	id, ok := sessionIDParam(c)
	if !ok {
		return
	}
	submitter, ok := getAddress(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	var req attachProofRequest
	if err := c.BindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad request"})
		return
	}

	raw, err := base64.StdEncoding.DecodeString(req.Proof)
	if err != nil || len(raw) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "proof must be base64"})
		return
	}
	inputs := make([][]byte, 0, len(req.PublicInputs))
	for _, in := range req.PublicInputs {
		b, err := base64.StdEncoding.DecodeString(in)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "public inputs must be base64"})
			return
		}
		inputs = append(inputs, b)
	}

	// The session must at least exist.
	if _, err := h.SessionService.GetSession(c.Request.Context(), id); err != nil {
		respondLedgerError(c, "attach_proof", err)
		return
	}

	record := &repository.SessionProof{
		SessionID: id,
		Submitter: submitter,
		Proof:     raw,
		Verified:  h.Verifier.Verify(raw, inputs),
	}
	if err := h.ProofRepo.Create(c.Request.Context(), record); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to store proof"})
		return
	}
	c.JSON(http.StatusCreated, record)
}

// SessionProofs lists proofs attached to a session.
func (h *Handler) SessionProofs(c *gin.Context) {
	id, ok := sessionIDParam(c)
	if !ok {
		return
	}
	proofs, err := h.ProofRepo.GetBySession(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "proofs unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"proofs": proofs})
}

func (h *Handler) moveContext(c *gin.Context) (uint32, domain.Address, bool) {
	id, ok := sessionIDParam(c)
	if !ok {
		return 0, "", false
	}
	player, ok := getAddress(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return 0, "", false
	}
	return id, player, true
}

func sessionIDParam(c *gin.Context) (uint32, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid session id"})
		return 0, false
	}
	return uint32(id), true
}

func parseCommitment(s string) (domain.Commitment, error) {
	var commit domain.Commitment
	raw, err := hex.DecodeString(s)
	if err != nil {
		return commit, err
	}
	if len(raw) != len(commit) {
		return commit, errors.New("bad length")
	}
	copy(commit[:], raw)
	return commit, nil
}

func parseSalt(s string, dst []byte) error {
	raw, err := hex.DecodeString(s)
	if err != nil {
		return err
	}
	if len(raw) != len(dst) {
		return errors.New("bad length")
	}
	copy(dst, raw)
	return nil
}

// respondLedgerError maps rejections to HTTP statuses. Protocol errors
// keep their stable numeric codes in the body; HashMismatch is flagged
// retryable so clients know the session state was preserved.
func respondLedgerError(c *gin.Context, op string, err error) {
	middleware.SessionOps.WithLabelValues(op, "rejected").Inc()

	var perr *domain.ProtocolError
	if errors.As(err, &perr) {
		status := http.StatusConflict
		switch perr.Code {
		case domain.ErrGameNotFound.Code:
			status = http.StatusNotFound
		case domain.ErrNotPlayer.Code:
			status = http.StatusForbidden
		case domain.ErrInvalidHand.Code, domain.ErrInvalidChoice.Code, domain.ErrHandsMustDiffer.Code:
			status = http.StatusBadRequest
		}
		c.JSON(status, gin.H{
			"error":     perr.Name,
			"code":      perr.Code,
			"retryable": perr.Retryable(),
		})
		return
	}

	switch {
	case errors.Is(err, ledger.ErrSessionExists):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, ctm.ErrSamePlayer),
		errors.Is(err, ctm.ErrInvalidStake),
		errors.Is(err, ctm.ErrInvalidAddress),
		errors.Is(err, service.ErrInvalidStake),
		errors.Is(err, service.ErrStakeTooLow),
		errors.Is(err, service.ErrStakeTooHigh):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, bootstrap.ErrAuthorizationExpired):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
	case errors.Is(err, bootstrap.ErrSelfPlay),
		errors.Is(err, bootstrap.ErrAuthorizationMismatch),
		errors.Is(err, bootstrap.ErrMissingAuthorization),
		errors.Is(err, bootstrap.ErrDuplicateAuthorization),
		errors.Is(err, bootstrap.ErrSignerKeyMismatch):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
	case errors.Is(err, repository.ErrInsufficientPoints),
		errors.Is(err, repository.ErrAccountNotFound):
		c.JSON(http.StatusPaymentRequired, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

// sessionView is the wire form of a session. Commitments are public by
// construction; secrets only ever travel in reveal requests.
func sessionView(s *domain.Session) gin.H {
	view := gin.H{
		"id":         s.ID,
		"player_a":   s.PlayerA,
		"player_b":   s.PlayerB,
		"stake_a":    s.StakeA,
		"stake_b":    s.StakeB,
		"phase":      uint8(s.Phase),
		"phase_name": s.Phase.String(),
		"created_at": s.CreatedAt,
	}
	if s.CommitA != nil {
		view["commit_a"] = hex.EncodeToString(s.CommitA[:])
	}
	if s.CommitB != nil {
		view["commit_b"] = hex.EncodeToString(s.CommitB[:])
	}
	if s.LeftA != nil {
		view["hands_a"] = []uint8{uint8(*s.LeftA), uint8(*s.RightA)}
	}
	if s.LeftB != nil {
		view["hands_b"] = []uint8{uint8(*s.LeftB), uint8(*s.RightB)}
	}
	if s.ChoiceCommitA != nil {
		view["choice_commit_a"] = hex.EncodeToString(s.ChoiceCommitA[:])
	}
	if s.ChoiceCommitB != nil {
		view["choice_commit_b"] = hex.EncodeToString(s.ChoiceCommitB[:])
	}
	if s.KeptA != nil {
		view["kept_a"] = uint8(*s.KeptA)
	}
	if s.KeptB != nil {
		view["kept_b"] = uint8(*s.KeptB)
	}
	if s.Winner != nil {
		view["winner"] = *s.Winner
	}
	if s.SettledAt != nil {
		view["settled_at"] = *s.SettledAt
	}
	return view
}
