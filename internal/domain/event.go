package domain

import "time"

// EventType names the observability events emitted by the ledger boundary.
type EventType string

const (
	EventSessionCreated   EventType = "session_created"
	EventHandsCommitted   EventType = "hands_committed"
	EventHandsRevealed    EventType = "hands_revealed"
	EventChoiceCommitted  EventType = "choice_committed"
	EventChoiceRevealed   EventType = "choice_revealed"
	EventSessionCompleted EventType = "session_completed"
)

// Event is broadcast to subscribers when a session is created or its phase
// advances. SessionCompleted carries the winner and both kept hands in Meta.
type Event struct {
	SessionID uint32                 `json:"session_id"`
	Type      EventType              `json:"type"`
	Phase     Phase                  `json:"phase"`
	Height    uint64                 `json:"height"`
	Meta      map[string]interface{} `json:"meta,omitempty"`
	CreatedAt time.Time              `json:"created_at"`
}

// LedgerOp is one accepted mutation recorded in the audit log. The log's
// sequence doubles as the ledger height: every accepted call advances it
// by exactly one.
type LedgerOp struct {
	ID        uint64                 `db:"id" json:"height"`
	SessionID uint32                 `db:"session_id" json:"session_id"`
	Op        string                 `db:"op" json:"op"`
	Player    *Address               `db:"player" json:"player,omitempty"`
	Meta      map[string]interface{} `db:"meta" json:"meta,omitempty"`
	CreatedAt time.Time              `db:"created_at" json:"created_at"`
}

// Operation names as recorded in the audit log.
const (
	OpCreateSession = "create_session"
	OpCommitHands   = "commit_hands"
	OpRevealHands   = "reveal_hands"
	OpCommitChoice  = "commit_choice"
	OpRevealChoice  = "reveal_choice"
)
