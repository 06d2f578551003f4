package http

import (
	"github.com/vovakirdan/strangerchat-server/internal/core"
	"github.com/vovakirdan/strangerchat-server/internal/proto"
)

func chatOutboundFromEvent(event *core.Event) (proto.ChatOutbound, bool) {
	switch event.Kind {
	case core.EventWaiting:
		return proto.ChatOutbound{Status: proto.OutboundStatusWaiting, Room: event.Room}, true
	case core.EventNotice:
		return proto.ChatOutbound{Message: event.Text}, true
	case core.EventChat:
		return proto.ChatOutbound{Message: event.Text, SenderName: event.Sender}, true
	default:
		return proto.ChatOutbound{}, false
	}
}

func adminOutboundFromEvent(event *core.Event) (any, bool) {
	switch event.Kind {
	case core.EventStatus:
		out := proto.AdminOutbound{Status: event.Status, RoomID: event.Room, Action: event.Action}
		if event.Status == core.StatusAllDeleted {
			count := event.Count
			out.Count = &count
		}
		return out, true
	case core.EventHistory:
		messages := make([]proto.HistoryMessage, 0, len(event.Messages))
		for _, m := range event.Messages {
			messages = append(messages, proto.HistoryMessage{Sender: m.Sender, Content: m.Content, Timestamp: m.Timestamp})
		}
		return proto.AdminHistory{Type: proto.OutboundTypeHistory, RoomID: event.Room, Messages: messages}, true
	case core.EventNotice:
		return proto.AdminOutbound{Message: event.Text}, true
	case core.EventChat:
		return proto.AdminOutbound{Message: event.Text, SenderName: event.Sender}, true
	default:
		return nil, false
	}
}

func adminCommandFromInbound(in proto.AdminInbound) core.AdminCommand {
	return core.AdminCommand{
		Action:  core.AdminAction(in.Action),
		RoomID:  in.RoomID,
		Message: in.Message,
	}
}
