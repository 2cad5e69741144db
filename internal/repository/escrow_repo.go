package repository

import (
	"context"
	"encoding/json"
	"time"

	"ctm_arena/internal/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type EscrowRepository struct {
	db *pgxpool.Pool
}

func NewEscrowRepository(db *pgxpool.Pool) *EscrowRepository {
	return &EscrowRepository{db: db}
}

// CreateWithTx records one escrow movement inside an existing transaction.
func (r *EscrowRepository) CreateWithTx(ctx context.Context, tx pgx.Tx, e *domain.EscrowEntry) error {
	metaJSON, err := json.Marshal(e.Meta)
	if err != nil {
		metaJSON = []byte("{}")
	}

	return tx.QueryRow(ctx,
		`INSERT INTO escrow_entries (session_id, address, amount, kind, meta)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING id, created_at`,
		e.SessionID, e.Address.String(), e.Amount, e.Kind, metaJSON,
	).Scan(&e.ID, &e.CreatedAt)
}

// GetByAddress returns recent escrow movements for an account.
func (r *EscrowRepository) GetByAddress(ctx context.Context, addr domain.Address, limit int) ([]*domain.EscrowEntry, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := r.db.Query(ctx,
		`SELECT id, session_id, address, amount, kind, meta, created_at
		 FROM escrow_entries
		 WHERE address = $1
		 ORDER BY created_at DESC
		 LIMIT $2`,
		addr.String(), limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanEscrowEntries(rows)
}

// GetBySession returns all escrow movements of one session in order.
func (r *EscrowRepository) GetBySession(ctx context.Context, sessionID uint32) ([]*domain.EscrowEntry, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, session_id, address, amount, kind, meta, created_at
		 FROM escrow_entries
		 WHERE session_id = $1
		 ORDER BY id ASC`,
		sessionID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanEscrowEntries(rows)
}

func scanEscrowEntries(rows pgx.Rows) ([]*domain.EscrowEntry, error) {
	var result []*domain.EscrowEntry
	for rows.Next() {
		var (
			e         domain.EscrowEntry
			metaJSON  []byte
			createdAt time.Time
		)
		if err := rows.Scan(&e.ID, &e.SessionID, &e.Address, &e.Amount, &e.Kind, &metaJSON, &createdAt); err != nil {
			return nil, err
		}
		e.CreatedAt = createdAt
		if len(metaJSON) > 0 {
			_ = json.Unmarshal(metaJSON, &e.Meta)
		}
		result = append(result, &e)
	}
	return result, rows.Err()
}
