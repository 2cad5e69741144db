package repository

import (
	"context"
	"time"

	"ctm_arena/internal/domain"

	"github.com/jackc/pgx/v5/pgxpool"
)

// ProofRepository stores off-ledger proof attachments. These are purely
// informational records; nothing in move validation reads them.
type ProofRepository struct {
	db *pgxpool.Pool
}

func NewProofRepository(db *pgxpool.Pool) *ProofRepository {
	return &ProofRepository{db: db}
}

type SessionProof struct {
	ID        int64          `json:"id"`
	SessionID uint32         `json:"session_id"`
	Submitter domain.Address `json:"submitter"`
	Proof     []byte         `json:"proof"`
	Verified  bool           `json:"verified"`
	CreatedAt time.Time      `json:"created_at"`
}

func (r *ProofRepository) Create(ctx context.Context, p *SessionProof) error {
	return r.db.QueryRow(ctx,
		`INSERT INTO session_proofs (session_id, submitter, proof, verified)
		 VALUES ($1, $2, $3, $4)
		 RETURNING id, created_at`,
		p.SessionID, p.Submitter.String(), p.Proof, p.Verified,
	).Scan(&p.ID, &p.CreatedAt)
}

func (r *ProofRepository) GetBySession(ctx context.Context, sessionID uint32) ([]*SessionProof, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, session_id, submitter, proof, verified, created_at
		 FROM session_proofs
		 WHERE session_id = $1
		 ORDER BY id ASC`,
		sessionID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []*SessionProof
	for rows.Next() {
		var p SessionProof
		if err := rows.Scan(&p.ID, &p.SessionID, &p.Submitter, &p.Proof, &p.Verified, &p.CreatedAt); err != nil {
			return nil, err
		}
		result = append(result, &p)
	}
	return result, rows.Err()
}
