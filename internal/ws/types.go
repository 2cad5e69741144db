package ws

const (
	// server - client
	MsgEvent = "event"
	MsgError = "error"
)
