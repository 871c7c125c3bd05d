package http

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/msgin/msgin-server/internal/core"
	"github.com/msgin/msgin-server/internal/proto"
)

// MessageHandlers provides HTTP handlers for messaging endpoints.
type MessageHandlers struct {
	delivery *core.Delivery
	log      *zerolog.Logger
}

// NewMessageHandlers creates a new message handlers instance.
func NewMessageHandlers(delivery *core.Delivery, logger *zerolog.Logger) *MessageHandlers {
	return &MessageHandlers{
		delivery: delivery,
		log:      logger,
	}
}

// SendRequest represents the send request body. Image is a base64 data URL.
type SendRequest struct {
	Text  string `json:"text"`
	Image string `json:"image"`
}

// SidebarResponse carries peer summaries plus per-sender unseen counts.
type SidebarResponse struct {
	Users          []UserResponse  `json:"users"`
	UnseenMessages map[int64]int64 `json:"unseenMessages"`
}

// ConversationResponse carries the ordered messages of one conversation.
type ConversationResponse struct {
	Messages []proto.MessagePayload `json:"messages"`
}

// SendResponse carries the persisted message.
type SendResponse struct {
	Message proto.MessagePayload `json:"newMessage"`
}

// AckResponse acknowledges a state transition.
type AckResponse struct {
	Success bool `json:"success"`
}

func pathID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid id"})
		return 0, false
	}
	return id, true
}

// Sidebar lists all peers with unseen counts for the caller.
// GET /api/messages/users
func (h *MessageHandlers) Sidebar(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "not authorized"})
		return
	}

	peers, counts, err := h.delivery.Sidebar(c.Request.Context(), user.ID)
	if err != nil {
		h.log.Error().Err(err).Int64("user_id", user.ID).Msg("failed to load sidebar")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	users := make([]UserResponse, 0, len(peers))
	for _, p := range peers {
		users = append(users, userResponse(p))
	}

	c.JSON(http.StatusOK, SidebarResponse{Users: users, UnseenMessages: counts})
}

// Conversation returns all messages with the selected user and marks their
// unseen ones as seen. An unknown peer yields an empty conversation.
// GET /api/messages/:id
func (h *MessageHandlers) Conversation(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "not authorized"})
		return
	}

	otherID, ok := pathID(c)
	if !ok {
		return
	}

	messages, err := h.delivery.Conversation(c.Request.Context(), user.ID, otherID)
	if err != nil {
		h.log.Error().Err(err).Int64("user_id", user.ID).Msg("failed to fetch conversation")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	payloads := make([]proto.MessagePayload, 0, len(messages))
	for _, msg := range messages {
		payloads = append(payloads, messageToPayload(msg))
	}

	c.JSON(http.StatusOK, ConversationResponse{Messages: payloads})
}

// Send persists a message to the selected user and best-effort pushes it.
// POST /api/messages/send/:id
func (h *MessageHandlers) Send(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "not authorized"})
		return
	}

	receiverID, ok := pathID(c)
	if !ok {
		return
	}

	var req SendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	msg, err := h.delivery.Send(c.Request.Context(), user.ID, receiverID, req.Text, req.Image)
	if err != nil {
		if errors.Is(err, core.ErrEmptyMessage) {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "message must contain text or an image"})
			return
		}
		h.log.Error().Err(err).Int64("sender_id", user.ID).Int64("receiver_id", receiverID).Msg("failed to send message")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	c.JSON(http.StatusOK, SendResponse{Message: messageToPayload(msg)})
}

// MarkSeen records a single-message seen transition. Idempotent: unknown
// or already-seen IDs still acknowledge.
// PUT /api/messages/mark/:id
func (h *MessageHandlers) MarkSeen(c *gin.Context) {
	messageID, ok := pathID(c)
	if !ok {
		return
	}

	if err := h.delivery.MarkMessageSeen(c.Request.Context(), messageID); err != nil {
		h.log.Error().Err(err).Int64("message_id", messageID).Msg("failed to mark message seen")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	c.JSON(http.StatusOK, AckResponse{Success: true})
}
