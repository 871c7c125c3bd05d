package core

import "github.com/msgin/msgin-server/internal/store"

// EventKind is a notification the core emits to connected clients.
type EventKind int

const (
	// EventOnlineUsers carries a snapshot of the online user set. Sent to
	// every connection whenever presence changes.
	EventOnlineUsers EventKind = iota
	// EventNewMessage delivers a freshly persisted message to its receiver.
	EventNewMessage
)

// Event is sent to clients to describe what happened in the system.
type Event struct {
	Kind    EventKind
	Online  []int64
	Message *store.Message
}
