package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// User represents a registered account.
type User struct {
	ID           int64
	Email        string
	FullName     string
	PasswordHash string
	Bio          string
	AvatarURL    string
	CreatedAt    time.Time
}

// Message represents a persisted direct message. At least one of Text and
// ImageURL is set; both may be set. Seen is monotonic: once true it never
// reverts. CreatedAt is assigned once on insert.
type Message struct {
	ID         int64
	SenderID   int64
	ReceiverID int64
	Text       string
	ImageURL   string
	Seen       bool
	CreatedAt  time.Time
}

// UserStore handles user persistence.
type UserStore interface {
	// CreateUser creates a new user with hashed password.
	CreateUser(ctx context.Context, email, fullName, passwordHash string) (*User, error)

	// GetUserByID retrieves a user by ID.
	GetUserByID(ctx context.Context, id int64) (*User, error)

	// GetUserByEmail retrieves a user by email.
	GetUserByEmail(ctx context.Context, email string) (*User, error)

	// UpdateProfile updates mutable profile fields. Empty values leave the
	// current field untouched.
	UpdateProfile(ctx context.Context, id int64, fullName, bio, avatarURL string) (*User, error)

	// ListPeers lists every user except the given one.
	ListPeers(ctx context.Context, excludingID int64) ([]*User, error)
}

// MessageStore handles message persistence.
type MessageStore interface {
	// CreateMessage persists a new message with seen=false.
	CreateMessage(ctx context.Context, senderID, receiverID int64, text, imageURL string) (*Message, error)

	// ListConversation returns all messages exchanged between two users in
	// creation order.
	ListConversation(ctx context.Context, userA, userB int64) ([]*Message, error)

	// MarkSeen flips a single message to seen. Unknown IDs and already-seen
	// messages are a no-op, never an error.
	MarkSeen(ctx context.Context, messageID int64) error

	// MarkAllSeenFrom flips every unseen message from senderID to receiverID.
	MarkAllSeenFrom(ctx context.Context, senderID, receiverID int64) error

	// CountUnseenBySender returns, for the given receiver, the number of
	// unseen messages grouped by sender. Senders with no unseen messages are
	// absent from the map.
	CountUnseenBySender(ctx context.Context, receiverID int64) (map[int64]int64, error)
}

// Store aggregates all storage interfaces.
type Store interface {
	UserStore
	MessageStore

	// Close closes the underlying database connection.
	Close() error
}
