package core

import (
	"sort"
	"sync"

	"github.com/rs/zerolog"
)

// Registry tracks which users currently hold a live realtime connection.
// It is the only shared mutable state in the core: a lock-guarded map from
// user ID to the authoritative connection handle. State is in-memory only;
// it does not survive restarts and is not shared across instances (see the
// fanout package for the cross-instance message path).
type Registry struct {
	mu      sync.RWMutex
	clients map[int64]*Client
	log     *zerolog.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(logger *zerolog.Logger) *Registry {
	return &Registry{
		clients: make(map[int64]*Client),
		log:     logger,
	}
}

// Register records the client as the authoritative connection for its user.
// Last connect wins: an existing entry for the same user is displaced and
// signalled closed. The updated online set is broadcast to every registered
// connection and returned.
func (r *Registry) Register(c *Client) []int64 {
	r.mu.Lock()
	prev := r.clients[c.UserID]
	r.clients[c.UserID] = c
	online := r.onlineLocked()
	r.broadcastLocked(&Event{Kind: EventOnlineUsers, Online: online})
	r.mu.Unlock()

	if prev != nil {
		prev.Close()
		r.log.Debug().Int64("user_id", c.UserID).Msg("displaced previous connection")
	}
	r.log.Info().Int64("user_id", c.UserID).Int("online", len(online)).Msg("user connected")

	return online
}

// Unregister removes the entry only if it still points at this exact
// handle, so a disconnect racing a reconnect cannot evict the newer
// connection. The updated online set is broadcast and returned.
func (r *Registry) Unregister(c *Client) []int64 {
	r.mu.Lock()
	cur, ok := r.clients[c.UserID]
	removed := ok && cur.HandleID == c.HandleID
	if removed {
		delete(r.clients, c.UserID)
	}
	online := r.onlineLocked()
	if removed {
		r.broadcastLocked(&Event{Kind: EventOnlineUsers, Online: online})
	}
	r.mu.Unlock()

	c.Close()
	if removed {
		r.log.Info().Int64("user_id", c.UserID).Int("online", len(online)).Msg("user disconnected")
	} else {
		r.log.Debug().Int64("user_id", c.UserID).Msg("stale disconnect ignored")
	}

	return online
}

// Lookup returns the authoritative connection for a user, if any.
func (r *Registry) Lookup(userID int64) (*Client, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.clients[userID]
	return c, ok
}

// OnlineSet returns a sorted snapshot of currently connected user IDs.
func (r *Registry) OnlineSet() []int64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.onlineLocked()
}

// Push delivers an event to a single user's connection if one exists.
// Returns false when the user is offline or the connection cannot accept
// the event.
func (r *Registry) Push(userID int64, event *Event) bool {
	r.mu.RLock()
	c, ok := r.clients[userID]
	r.mu.RUnlock()
	if !ok {
		return false
	}
	return c.send(event)
}

func (r *Registry) onlineLocked() []int64 {
	online := make([]int64, 0, len(r.clients))
	for id := range r.clients {
		online = append(online, id)
	}
	sort.Slice(online, func(i, j int) bool { return online[i] < online[j] })
	return online
}

// broadcastLocked sends an event to every registered connection. Called
// with the lock held so each broadcast reflects one consistent snapshot.
func (r *Registry) broadcastLocked(event *Event) {
	for _, c := range r.clients {
		if !c.send(event) {
			r.log.Debug().Int64("user_id", c.UserID).Msg("dropped event for slow consumer")
		}
	}
}
