package core

import (
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func newTestRegistry() *Registry {
	logger := zerolog.Nop()
	return NewRegistry(&logger)
}

func mustEvent(t *testing.T, c *Client, kind EventKind) *Event {
	t.Helper()

	deadline := time.After(2 * time.Second)
	for {
		select {
		case ev := <-c.events:
			if ev.Kind == kind {
				return ev
			}
		case <-deadline:
			t.Fatalf("expected event kind %v not received", kind)
			return nil
		}
	}
}

func TestRegisterBroadcastsOnlineSet(t *testing.T) {
	r := newTestRegistry()

	alice := NewClient(1)
	online := r.Register(alice)
	if len(online) != 1 || online[0] != 1 {
		t.Fatalf("unexpected online set: %v", online)
	}

	bob := NewClient(2)
	online = r.Register(bob)
	if len(online) != 2 {
		t.Fatalf("unexpected online set: %v", online)
	}

	// Every connection observes presence changes, not just the new one.
	ev := mustEvent(t, alice, EventOnlineUsers)
	if len(ev.Online) != 1 {
		t.Fatalf("first broadcast should hold one user: %v", ev.Online)
	}
	ev = mustEvent(t, alice, EventOnlineUsers)
	if len(ev.Online) != 2 || ev.Online[0] != 1 || ev.Online[1] != 2 {
		t.Fatalf("second broadcast should hold both users: %v", ev.Online)
	}
}

func TestRegisterLastConnectWins(t *testing.T) {
	r := newTestRegistry()

	first := NewClient(1)
	r.Register(first)

	second := NewClient(1)
	online := r.Register(second)
	if len(online) != 1 {
		t.Fatalf("replacement must not grow the online set: %v", online)
	}

	// The displaced connection is signalled closed for the transport.
	select {
	case <-first.Done():
	case <-time.After(time.Second):
		t.Fatal("displaced client not closed")
	}

	got, ok := r.Lookup(1)
	if !ok || got.HandleID != second.HandleID {
		t.Fatalf("registry does not point at the newest connection")
	}
}

func TestUnregisterIgnoresStaleHandle(t *testing.T) {
	r := newTestRegistry()

	first := NewClient(1)
	r.Register(first)
	second := NewClient(1)
	r.Register(second)

	// The old connection's disconnect arrives after the reconnect; it must
	// not evict the newer handle.
	online := r.Unregister(first)
	if len(online) != 1 {
		t.Fatalf("stale unregister changed the online set: %v", online)
	}
	if _, ok := r.Lookup(1); !ok {
		t.Fatal("newer connection was evicted by a stale disconnect")
	}

	online = r.Unregister(second)
	if len(online) != 0 {
		t.Fatalf("unexpected online set after final disconnect: %v", online)
	}
	if _, ok := r.Lookup(1); ok {
		t.Fatal("user still registered after disconnect")
	}
}

func TestUnregisterBroadcasts(t *testing.T) {
	r := newTestRegistry()

	alice := NewClient(1)
	bob := NewClient(2)
	r.Register(alice)
	r.Register(bob)

	// Drain alice's two presence events.
	mustEvent(t, alice, EventOnlineUsers)
	mustEvent(t, alice, EventOnlineUsers)

	r.Unregister(bob)

	ev := mustEvent(t, alice, EventOnlineUsers)
	if len(ev.Online) != 1 || ev.Online[0] != 1 {
		t.Fatalf("unexpected online set after disconnect: %v", ev.Online)
	}
}

func TestPushToOfflineUser(t *testing.T) {
	r := newTestRegistry()

	if r.Push(42, &Event{Kind: EventNewMessage}) {
		t.Fatal("push to offline user must report failure")
	}
}

func TestConcurrentDistinctUsers(t *testing.T) {
	r := newTestRegistry()

	const users = 32
	var wg sync.WaitGroup
	for i := 1; i <= users; i++ {
		wg.Add(1)
		go func(id int64) {
			defer wg.Done()
			c := NewClient(id)
			r.Register(c)
			if id%2 == 0 {
				r.Unregister(c)
			}
		}(int64(i))
	}
	wg.Wait()

	online := r.OnlineSet()
	if len(online) != users/2 {
		t.Fatalf("expected %d online users, got %d", users/2, len(online))
	}
	for _, id := range online {
		if id%2 == 0 {
			t.Fatalf("user %d should have disconnected", id)
		}
	}
}

func TestConcurrentSameUserConverges(t *testing.T) {
	r := newTestRegistry()

	const rounds = 64
	var wg sync.WaitGroup
	clients := make([]*Client, rounds)
	for i := range clients {
		clients[i] = NewClient(7)
	}
	for _, c := range clients {
		wg.Add(1)
		go func(c *Client) {
			defer wg.Done()
			r.Register(c)
		}(c)
	}
	wg.Wait()

	// Whatever the interleaving, exactly one handle is authoritative and it
	// is one of the registered ones.
	cur, ok := r.Lookup(7)
	if !ok {
		t.Fatal("user not registered")
	}
	found := false
	for _, c := range clients {
		if c.HandleID == cur.HandleID {
			found = true
			break
		}
	}
	if !found {
		t.Fatal("authoritative handle is not one of the registered clients")
	}

	// Unregistering the authoritative handle empties the registry; all
	// other (stale) unregisters are no-ops.
	for _, c := range clients {
		if c.HandleID != cur.HandleID {
			r.Unregister(c)
		}
	}
	if _, ok := r.Lookup(7); !ok {
		t.Fatal("stale unregisters evicted the live handle")
	}
	r.Unregister(cur)
	if _, ok := r.Lookup(7); ok {
		t.Fatal("live handle still registered")
	}
}
