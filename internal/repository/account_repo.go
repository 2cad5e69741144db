package repository

import (
	"context"
	"errors"

	"ctm_arena/internal/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	ErrInsufficientPoints = errors.New("insufficient points")
	ErrAccountNotFound    = errors.New("account not found")
)

type AccountRepository struct {
	db *pgxpool.Pool
}

func NewAccountRepository(db *pgxpool.Pool) *AccountRepository {
	return &AccountRepository{db: db}
}

func (r *AccountRepository) GetByAddress(ctx context.Context, addr domain.Address) (*domain.Account, error) {
	row := r.db.QueryRow(ctx,
		`SELECT address, points, created_at
		 FROM accounts
		 WHERE address = $1`,
		addr.String(),
	)

	var a domain.Account
	if err := row.Scan(&a.Address, &a.Points, &a.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}
	return &a, nil
}

// Create registers an account with the starting balance. Registering an
// already known address is a no-op and returns the existing row.
func (r *AccountRepository) Create(ctx context.Context, addr domain.Address) (*domain.Account, error) {
	const initialPoints = 10000

	var a domain.Account
	err := r.db.QueryRow(ctx,
		`INSERT INTO accounts (address, points)
		 VALUES ($1, $2)
		 ON CONFLICT (address) DO UPDATE SET address = EXCLUDED.address
		 RETURNING address, points, created_at`,
		addr.String(), initialPoints,
	).Scan(&a.Address, &a.Points, &a.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// UpdatePointsWithTx applies a delta inside an existing transaction,
// failing without a write when the balance would go negative.
func (r *AccountRepository) UpdatePointsWithTx(ctx context.Context, tx pgx.Tx, addr domain.Address, delta int64) (int64, error) {
	var newBalance int64
	err := tx.QueryRow(ctx,
		`UPDATE accounts SET points = points + $1 WHERE address = $2 AND points + $1 >= 0 RETURNING points`,
		delta, addr.String(),
	).Scan(&newBalance)
	if errors.Is(err, pgx.ErrNoRows) {
		// Either the account is unknown or the balance is short; tell them
		// apart so create-time failures are actionable.
		var exists bool
		if err2 := tx.QueryRow(ctx,
			`SELECT EXISTS(SELECT 1 FROM accounts WHERE address = $1)`, addr.String(),
		).Scan(&exists); err2 != nil {
			return 0, err2
		}
		if !exists {
			return 0, ErrAccountNotFound
		}
		return 0, ErrInsufficientPoints
	}
	return newBalance, err
}

func (r *AccountRepository) GetPoints(ctx context.Context, addr domain.Address) (int64, error) {
	var points int64
	err := r.db.QueryRow(ctx, `SELECT points FROM accounts WHERE address = $1`, addr.String()).Scan(&points)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, ErrAccountNotFound
	}
	return points, err
}
