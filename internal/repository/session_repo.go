package repository

import (
	"context"
	"encoding/json"
	"time"

	"ctm_arena/internal/domain"
	"ctm_arena/internal/ledger"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// SessionRepository persists sessions, the audit log, and escrow movements.
// It is the ledger.Store used by the arena: Apply commits one accepted
// mutation per database transaction, and the audit log's bigserial id is
// the ledger height.
type SessionRepository struct {
	db      *pgxpool.Pool
	account *AccountRepository
	escrow  *EscrowRepository
}

func NewSessionRepository(db *pgxpool.Pool) *SessionRepository {
	return &SessionRepository{
		db:      db,
		account: NewAccountRepository(db),
		escrow:  NewEscrowRepository(db),
	}
}

// Apply lands the session write, the audit row, and every points movement
// together or not at all.
func (r *SessionRepository) Apply(ctx context.Context, m *ledger.Mutation) (uint64, error) {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	for _, mv := range m.Movements {
		if _, err := r.account.UpdatePointsWithTx(ctx, tx, mv.Address, mv.Amount); err != nil {
			return 0, err
		}
		entry := &domain.EscrowEntry{
			SessionID: m.Session.ID,
			Address:   mv.Address,
			Amount:    mv.Amount,
			Kind:      mv.Kind,
		}
		if err := r.escrow.CreateWithTx(ctx, tx, entry); err != nil {
			return 0, err
		}
	}

	if err := upsertSession(ctx, tx, m.Session); err != nil {
		return 0, err
	}

	metaJSON, err := json.Marshal(m.Meta)
	if err != nil {
		metaJSON = []byte("{}")
	}
	var player *string
	if m.Player != nil {
		p := m.Player.String()
		player = &p
	}

	var height uint64
	if err := tx.QueryRow(ctx,
		`INSERT INTO ledger_ops (session_id, op, player, meta)
		 VALUES ($1, $2, $3, $4)
		 RETURNING id`,
		m.Session.ID, m.Op, player, metaJSON,
	).Scan(&height); err != nil {
		return 0, err
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, err
	}
	return height, nil
}

// ActiveSessions returns every session that has not completed. Called once
// at startup to rebuild the arena.
func (r *SessionRepository) ActiveSessions(ctx context.Context) ([]*domain.Session, error) {
	rows, err := r.db.Query(ctx,
		sessionColumns+` FROM sessions WHERE phase < $1`,
		uint8(domain.PhaseComplete),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []*domain.Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, s)
	}
	return result, rows.Err()
}

// CurrentHeight returns the id of the last audit row, zero on an empty log.
func (r *SessionRepository) CurrentHeight(ctx context.Context) (uint64, error) {
	var height uint64
	err := r.db.QueryRow(ctx, `SELECT COALESCE(MAX(id), 0) FROM ledger_ops`).Scan(&height)
	return height, err
}

// GetByID loads one session row, completed ones included.
func (r *SessionRepository) GetByID(ctx context.Context, id uint32) (*domain.Session, error) {
	row := r.db.QueryRow(ctx, sessionColumns+` FROM sessions WHERE id = $1`, id)
	s, err := scanSession(row)
	if err == pgx.ErrNoRows {
		return nil, domain.ErrGameNotFound
	}
	return s, err
}

// ListOps returns the audit trail of one session in ledger order.
func (r *SessionRepository) ListOps(ctx context.Context, sessionID uint32, limit int) ([]*domain.LedgerOp, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := r.db.Query(ctx,
		`SELECT id, session_id, op, player, meta, created_at
		 FROM ledger_ops
		 WHERE session_id = $1
		 ORDER BY id ASC
		 LIMIT $2`,
		sessionID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []*domain.LedgerOp
	for rows.Next() {
		var (
			op       domain.LedgerOp
			player   *string
			metaJSON []byte
		)
		if err := rows.Scan(&op.ID, &op.SessionID, &op.Op, &player, &metaJSON, &op.CreatedAt); err != nil {
			return nil, err
		}
		if player != nil {
			addr := domain.Address(*player)
			op.Player = &addr
		}
		if len(metaJSON) > 0 {
			_ = json.Unmarshal(metaJSON, &op.Meta)
		}
		result = append(result, &op)
	}
	return result, rows.Err()
}

const sessionColumns = `SELECT id, player_a, player_b, stake_a, stake_b, phase,
	commit_a, commit_b, left_a, right_a, left_b, right_b,
	choice_commit_a, choice_commit_b, kept_a, kept_b,
	winner, created_at, settled_at`

// upsertSession writes the full session row. A create over an evicted id
// replaces the stale completed row; its history stays in ledger_ops.
func upsertSession(ctx context.Context, tx pgx.Tx, s *domain.Session) error {
	_, err := tx.Exec(ctx,
		`INSERT INTO sessions (id, player_a, player_b, stake_a, stake_b, phase,
			commit_a, commit_b, left_a, right_a, left_b, right_b,
			choice_commit_a, choice_commit_b, kept_a, kept_b,
			winner, created_at, settled_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19)
		 ON CONFLICT (id) DO UPDATE SET
			player_a = EXCLUDED.player_a,
			player_b = EXCLUDED.player_b,
			stake_a = EXCLUDED.stake_a,
			stake_b = EXCLUDED.stake_b,
			phase = EXCLUDED.phase,
			commit_a = EXCLUDED.commit_a,
			commit_b = EXCLUDED.commit_b,
			left_a = EXCLUDED.left_a,
			right_a = EXCLUDED.right_a,
			left_b = EXCLUDED.left_b,
			right_b = EXCLUDED.right_b,
			choice_commit_a = EXCLUDED.choice_commit_a,
			choice_commit_b = EXCLUDED.choice_commit_b,
			kept_a = EXCLUDED.kept_a,
			kept_b = EXCLUDED.kept_b,
			winner = EXCLUDED.winner,
			created_at = EXCLUDED.created_at,
			settled_at = EXCLUDED.settled_at`,
		s.ID, s.PlayerA.String(), s.PlayerB.String(), s.StakeA, s.StakeB, uint8(s.Phase),
		commitmentBytes(s.CommitA), commitmentBytes(s.CommitB),
		handSmallint(s.LeftA), handSmallint(s.RightA), handSmallint(s.LeftB), handSmallint(s.RightB),
		commitmentBytes(s.ChoiceCommitA), commitmentBytes(s.ChoiceCommitB),
		handSmallint(s.KeptA), handSmallint(s.KeptB),
		addressString(s.Winner), s.CreatedAt, s.SettledAt,
	)
	return err
}

func scanSession(row pgx.Row) (*domain.Session, error) {
	var (
		s                                  domain.Session
		playerA, playerB                   string
		phase                              uint8
		commitA, commitB, chCommA, chCommB []byte
		leftA, rightA, leftB, rightB       *int16
		keptA, keptB                       *int16
		winner                             *string
		createdAt                          time.Time
		settledAt                          *time.Time
	)

	if err := row.Scan(&s.ID, &playerA, &playerB, &s.StakeA, &s.StakeB, &phase,
		&commitA, &commitB, &leftA, &rightA, &leftB, &rightB,
		&chCommA, &chCommB, &keptA, &keptB,
		&winner, &createdAt, &settledAt); err != nil {
		return nil, err
	}

	s.PlayerA = domain.Address(playerA)
	s.PlayerB = domain.Address(playerB)
	s.Phase = domain.Phase(phase)
	s.CommitA = bytesCommitment(commitA)
	s.CommitB = bytesCommitment(commitB)
	s.LeftA = smallintHand(leftA)
	s.RightA = smallintHand(rightA)
	s.LeftB = smallintHand(leftB)
	s.RightB = smallintHand(rightB)
	s.ChoiceCommitA = bytesCommitment(chCommA)
	s.ChoiceCommitB = bytesCommitment(chCommB)
	s.KeptA = smallintHand(keptA)
	s.KeptB = smallintHand(keptB)
	if winner != nil {
		addr := domain.Address(*winner)
		s.Winner = &addr
	}
	s.CreatedAt = createdAt
	s.SettledAt = settledAt
	return &s, nil
}

func commitmentBytes(c *domain.Commitment) []byte {
	if c == nil {
		return nil
	}
	return c[:]
}

func bytesCommitment(b []byte) *domain.Commitment {
	if len(b) != len(domain.Commitment{}) {
		return nil
	}
	var c domain.Commitment
	copy(c[:], b)
	return &c
}

func handSmallint(h *domain.Hand) *int16 {
	if h == nil {
		return nil
	}
	v := int16(*h)
	return &v
}

func smallintHand(v *int16) *domain.Hand {
	if v == nil {
		return nil
	}
	h := domain.Hand(*v)
	return &h
}

func addressString(a *domain.Address) *string {
	if a == nil {
		return nil
	}
	s := a.String()
	return &s
}
