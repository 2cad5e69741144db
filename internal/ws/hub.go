package ws

import (
	"encoding/json"
	"sync"

	"ctm_arena/internal/domain"
	"ctm_arena/internal/logger"
)

// Hub fans ledger events out to websocket subscribers. Subscriptions are
// per session id; id 0 subscribes to every session. The hub is the arena's
// Emitter, so every event a client sees corresponds to a committed
// mutation.
type Hub struct {
	mu   sync.RWMutex
	subs map[uint32]map[*Client]bool
}

func NewHub() *Hub {
	return &Hub{
		subs: make(map[uint32]map[*Client]bool),
	}
}

// Subscribe registers a client for one session's events.
func (h *Hub) Subscribe(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.subs[c.SessionID]
	if !ok {
		set = make(map[*Client]bool)
		h.subs[c.SessionID] = set
	}
	set[c] = true
}

// Unsubscribe removes the client; the Send channel stays open, the write
// pump owns closing the connection.
func (h *Hub) Unsubscribe(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if set, ok := h.subs[c.SessionID]; ok {
		delete(set, c)
		if len(set) == 0 {
			delete(h.subs, c.SessionID)
		}
	}
}

// Emit broadcasts one committed ledger event. A subscriber that cannot
// keep up is dropped rather than allowed to stall the ledger path.
func (h *Hub) Emit(ev domain.Event) {
	payload, err := json.Marshal(envelope{Type: MsgEvent, Event: &ev})
	if err != nil {
		logger.Error("marshal event", "error", err)
		return
	}

	h.mu.RLock()
	var stalled []*Client
	for _, c := range h.clientsFor(ev.SessionID) {
		select {
		case c.Send <- payload:
		default:
			stalled = append(stalled, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range stalled {
		logger.Warn("dropping slow subscriber", "session_id", c.SessionID)
		h.Unsubscribe(c)
		c.Close()
	}
}

// clientsFor returns session subscribers plus firehose subscribers.
// Callers hold at least a read lock.
func (h *Hub) clientsFor(sessionID uint32) []*Client {
	var out []*Client
	for c := range h.subs[sessionID] {
		out = append(out, c)
	}
	if sessionID != 0 {
		for c := range h.subs[0] {
			out = append(out, c)
		}
	}
	return out
}

type envelope struct {
	Type  string        `json:"type"`
	Event *domain.Event `json:"event,omitempty"`
	Error string        `json:"error,omitempty"`
}
