package core

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/msgin/msgin-server/internal/store"
)

// Uploader turns an inline image payload (a base64 data URL) into a hosted
// content URL.
type Uploader interface {
	SaveDataURL(ctx context.Context, dataURL string) (string, error)
}

// Publisher forwards a message event to other service instances when the
// receiver holds no local connection.
type Publisher interface {
	PublishMessage(ctx context.Context, msg *store.Message) error
}

// Delivery coordinates message creation, persistence and the best-effort
// realtime push to the receiver. Persistence success is the only success
// criterion for a send; push outcome is never part of the caller-visible
// result.
type Delivery struct {
	store    store.Store
	registry *Registry
	media    Uploader  // nil disables image payloads
	fanout   Publisher // nil disables cross-instance forwarding
	log      *zerolog.Logger
}

// NewDelivery constructs the coordinator.
func NewDelivery(st store.Store, registry *Registry, media Uploader, fanout Publisher, logger *zerolog.Logger) *Delivery {
	return &Delivery{
		store:    st,
		registry: registry,
		media:    media,
		fanout:   fanout,
		log:      logger,
	}
}

// Send validates, persists and then pushes a message to the receiver if a
// connection is registered for them. The push is detached: its failure is
// logged and swallowed, and the persisted message is returned regardless.
func (d *Delivery) Send(ctx context.Context, senderID, receiverID int64, text, imageData string) (*store.Message, error) {
	if text == "" && imageData == "" {
		return nil, ErrEmptyMessage
	}

	imageURL := ""
	if imageData != "" {
		if d.media == nil {
			return nil, fmt.Errorf("image payloads are not enabled")
		}
		url, err := d.media.SaveDataURL(ctx, imageData)
		if err != nil {
			return nil, fmt.Errorf("store image: %w", err)
		}
		imageURL = url
	}

	msg, err := d.store.CreateMessage(ctx, senderID, receiverID, text, imageURL)
	if err != nil {
		return nil, fmt.Errorf("persist message: %w", err)
	}

	d.push(ctx, msg)

	return msg, nil
}

// push attempts local realtime delivery, falling back to the fanout bridge
// for receivers connected to another instance. Best effort only.
func (d *Delivery) push(ctx context.Context, msg *store.Message) {
	if d.registry.Push(msg.ReceiverID, &Event{Kind: EventNewMessage, Message: msg}) {
		d.log.Debug().Int64("message_id", msg.ID).Int64("receiver_id", msg.ReceiverID).Msg("message pushed")
		return
	}

	if d.fanout != nil {
		if err := d.fanout.PublishMessage(ctx, msg); err != nil {
			d.log.Warn().Err(err).Int64("message_id", msg.ID).Msg("fanout publish failed")
		}
		return
	}

	d.log.Debug().Int64("message_id", msg.ID).Int64("receiver_id", msg.ReceiverID).Msg("receiver offline, no push")
}

// Conversation returns all messages between self and other in creation
// order. Opening a conversation is the bulk seen trigger: unseen messages
// from the other user are marked first so the returned records carry
// up-to-date seen flags. An unknown other user yields an empty slice, not
// an error.
func (d *Delivery) Conversation(ctx context.Context, selfID, otherID int64) ([]*store.Message, error) {
	if err := d.store.MarkAllSeenFrom(ctx, otherID, selfID); err != nil {
		return nil, fmt.Errorf("mark conversation seen: %w", err)
	}

	messages, err := d.store.ListConversation(ctx, selfID, otherID)
	if err != nil {
		return nil, fmt.Errorf("list conversation: %w", err)
	}

	return messages, nil
}

// MarkMessageSeen records the single-message seen transition reported by an
// active conversation view. Idempotent: re-marking or marking an unknown ID
// succeeds without effect.
func (d *Delivery) MarkMessageSeen(ctx context.Context, messageID int64) error {
	if err := d.store.MarkSeen(ctx, messageID); err != nil {
		return fmt.Errorf("mark message seen: %w", err)
	}
	return nil
}

// Sidebar returns every peer of the given user together with per-sender
// unseen counts. Counts are always recomputed from the store; this refresh
// is authoritative and overwrites any transient client-side counter.
func (d *Delivery) Sidebar(ctx context.Context, selfID int64) ([]*store.User, map[int64]int64, error) {
	peers, err := d.store.ListPeers(ctx, selfID)
	if err != nil {
		return nil, nil, fmt.Errorf("list peers: %w", err)
	}

	counts, err := d.store.CountUnseenBySender(ctx, selfID)
	if err != nil {
		return nil, nil, fmt.Errorf("count unseen: %w", err)
	}

	return peers, counts, nil
}
