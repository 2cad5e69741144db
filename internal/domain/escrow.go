package domain

import "time"

// EscrowEntry is one points movement between an account and the escrow
// pool. Negative amounts lock a stake in, positive amounts pay out.
type EscrowEntry struct {
	ID        int64                  `db:"id" json:"id"`
	SessionID uint32                 `db:"session_id" json:"session_id"`
	Address   Address                `db:"address" json:"address"`
	Amount    int64                  `db:"amount" json:"amount"`
	Kind      string                 `db:"kind" json:"kind"`
	Meta      map[string]interface{} `db:"meta" json:"meta,omitempty"`
	CreatedAt time.Time              `db:"created_at" json:"created_at"`
}
