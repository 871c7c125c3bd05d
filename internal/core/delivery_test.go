package core

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"

	"github.com/msgin/msgin-server/internal/store"
	"github.com/msgin/msgin-server/internal/store/sqlite"
)

type deliveryFixture struct {
	delivery *Delivery
	registry *Registry
	store    store.Store
	alice    *store.User
	bob      *store.User
}

func newDeliveryFixture(t *testing.T) *deliveryFixture {
	t.Helper()

	st, err := sqlite.New(":memory:")
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	ctx := context.Background()
	alice, err := st.CreateUser(ctx, "alice@example.com", "Alice", "hash")
	if err != nil {
		t.Fatalf("create alice: %v", err)
	}
	bob, err := st.CreateUser(ctx, "bob@example.com", "Bob", "hash")
	if err != nil {
		t.Fatalf("create bob: %v", err)
	}

	logger := zerolog.Nop()
	registry := NewRegistry(&logger)
	delivery := NewDelivery(st, registry, nil, nil, &logger)

	return &deliveryFixture{
		delivery: delivery,
		registry: registry,
		store:    st,
		alice:    alice,
		bob:      bob,
	}
}

func TestSendRejectsEmptyMessage(t *testing.T) {
	f := newDeliveryFixture(t)

	_, err := f.delivery.Send(context.Background(), f.bob.ID, f.alice.ID, "", "")
	if !errors.Is(err, ErrEmptyMessage) {
		t.Fatalf("expected ErrEmptyMessage, got %v", err)
	}

	// Nothing persisted.
	msgs, err := f.store.ListConversation(context.Background(), f.alice.ID, f.bob.ID)
	if err != nil {
		t.Fatalf("ListConversation failed: %v", err)
	}
	if len(msgs) != 0 {
		t.Fatalf("empty send persisted %d messages", len(msgs))
	}
}

func TestSendPushesToOnlineReceiver(t *testing.T) {
	f := newDeliveryFixture(t)
	ctx := context.Background()

	aliceConn := NewClient(f.alice.ID)
	f.registry.Register(aliceConn)
	mustEvent(t, aliceConn, EventOnlineUsers)

	msg, err := f.delivery.Send(ctx, f.bob.ID, f.alice.ID, "hi", "")
	if err != nil {
		t.Fatalf("send failed: %v", err)
	}
	if msg.Seen {
		t.Fatal("pushed message must carry seen=false")
	}

	ev := mustEvent(t, aliceConn, EventNewMessage)
	if ev.Message == nil || ev.Message.ID != msg.ID || ev.Message.Text != "hi" {
		t.Fatalf("unexpected push payload: %+v", ev.Message)
	}
	if ev.Message.Seen {
		t.Fatal("pushed record must carry seen=false")
	}
}

func TestSendToOfflineReceiverPersistsOnly(t *testing.T) {
	f := newDeliveryFixture(t)
	ctx := context.Background()

	msg, err := f.delivery.Send(ctx, f.bob.ID, f.alice.ID, "hi", "")
	if err != nil {
		t.Fatalf("send failed: %v", err)
	}
	if msg.ID == 0 {
		t.Fatal("message not persisted")
	}

	// Persistence success is the only success criterion: the next sidebar
	// refresh shows one unseen message from bob.
	_, counts, err := f.delivery.Sidebar(ctx, f.alice.ID)
	if err != nil {
		t.Fatalf("sidebar failed: %v", err)
	}
	if counts[f.bob.ID] != 1 {
		t.Fatalf("expected 1 unseen from bob, got %v", counts)
	}
}

func TestConversationMarksSeenBeforeReturning(t *testing.T) {
	f := newDeliveryFixture(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := f.delivery.Send(ctx, f.bob.ID, f.alice.ID, "hi", ""); err != nil {
			t.Fatalf("send failed: %v", err)
		}
	}

	// Before opening the conversation, messages are unseen.
	_, counts, err := f.delivery.Sidebar(ctx, f.alice.ID)
	if err != nil {
		t.Fatalf("sidebar failed: %v", err)
	}
	if counts[f.bob.ID] != 3 {
		t.Fatalf("expected 3 unseen, got %v", counts)
	}

	msgs, err := f.delivery.Conversation(ctx, f.alice.ID, f.bob.ID)
	if err != nil {
		t.Fatalf("conversation failed: %v", err)
	}
	if len(msgs) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(msgs))
	}
	for _, msg := range msgs {
		if !msg.Seen {
			t.Fatalf("returned message %d does not carry the seen transition", msg.ID)
		}
	}

	_, counts, err = f.delivery.Sidebar(ctx, f.alice.ID)
	if err != nil {
		t.Fatalf("sidebar failed: %v", err)
	}
	if _, ok := counts[f.bob.ID]; ok {
		t.Fatalf("unseen count not cleared: %v", counts)
	}
}

func TestConversationWithUnknownUserIsEmpty(t *testing.T) {
	f := newDeliveryFixture(t)

	msgs, err := f.delivery.Conversation(context.Background(), f.alice.ID, 9999)
	if err != nil {
		t.Fatalf("conversation with unknown user errored: %v", err)
	}
	if len(msgs) != 0 {
		t.Fatalf("expected empty conversation, got %d messages", len(msgs))
	}
}

func TestMarkMessageSeenIdempotent(t *testing.T) {
	f := newDeliveryFixture(t)
	ctx := context.Background()

	msg, err := f.delivery.Send(ctx, f.bob.ID, f.alice.ID, "hi", "")
	if err != nil {
		t.Fatalf("send failed: %v", err)
	}

	// The active-view report may arrive right after the push; marking
	// twice, or marking an unknown id, is always a no-op success.
	for i := 0; i < 2; i++ {
		if err := f.delivery.MarkMessageSeen(ctx, msg.ID); err != nil {
			t.Fatalf("mark attempt %d failed: %v", i+1, err)
		}
	}
	if err := f.delivery.MarkMessageSeen(ctx, 9999); err != nil {
		t.Fatalf("mark of unknown id failed: %v", err)
	}

	msgs, err := f.store.ListConversation(ctx, f.alice.ID, f.bob.ID)
	if err != nil {
		t.Fatalf("ListConversation failed: %v", err)
	}
	if len(msgs) != 1 || !msgs[0].Seen {
		t.Fatalf("unexpected final state: %+v", msgs)
	}
}

func TestSidebarExcludesSelfAndCountsPerSender(t *testing.T) {
	f := newDeliveryFixture(t)
	ctx := context.Background()

	if _, err := f.delivery.Send(ctx, f.bob.ID, f.alice.ID, "hi", ""); err != nil {
		t.Fatalf("send failed: %v", err)
	}

	peers, counts, err := f.delivery.Sidebar(ctx, f.alice.ID)
	if err != nil {
		t.Fatalf("sidebar failed: %v", err)
	}
	if len(peers) != 1 || peers[0].ID != f.bob.ID {
		t.Fatalf("unexpected peers: %+v", peers)
	}
	if counts[f.bob.ID] != 1 {
		t.Fatalf("unexpected counts: %v", counts)
	}
}
