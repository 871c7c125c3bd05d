package http

import (
	"github.com/msgin/msgin-server/internal/core"
	"github.com/msgin/msgin-server/internal/proto"
	"github.com/msgin/msgin-server/internal/store"
)

func messageToPayload(msg *store.Message) proto.MessagePayload {
	return proto.MessagePayload{
		ID:         msg.ID,
		SenderID:   msg.SenderID,
		ReceiverID: msg.ReceiverID,
		Text:       msg.Text,
		Image:      msg.ImageURL,
		Seen:       msg.Seen,
		CreatedAt:  msg.CreatedAt.Unix(),
	}
}

func outboundFromEvent(event *core.Event) proto.Outbound {
	switch event.Kind {
	case core.EventOnlineUsers:
		return proto.Outbound{
			Type:  proto.OutboundTypeEvent,
			Event: proto.EventGetOnlineUsers,
			Data:  event.Online,
		}
	case core.EventNewMessage:
		return proto.Outbound{
			Type:  proto.OutboundTypeEvent,
			Event: proto.EventNewMessage,
			Data:  messageToPayload(event.Message),
		}
	default:
		return proto.Outbound{
			Type:  proto.OutboundTypeError,
			Error: &proto.Error{Code: "unknown_event", Msg: "unknown event kind"},
		}
	}
}
