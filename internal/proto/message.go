package proto

import (
	"encoding/json"
	"time"
)

const (
	// InboundTypeLocation marks a location update on the chat socket.
	InboundTypeLocation = "location"

	// OutboundStatusWaiting tells a participant it is waiting for a partner.
	OutboundStatusWaiting = "waiting"

	// OutboundTypeHistory marks a transcript frame on the admin socket.
	OutboundTypeHistory = "history"
)

// ChatInbound is a frame sent by an ordinary participant. Frames with
// type "location" carry a location; any other frame is a chat message.
type ChatInbound struct {
	Type       string          `json:"type,omitempty"`
	Location   json.RawMessage `json:"location,omitempty"`
	IsLoggedIn bool            `json:"isLoggedIn,omitempty"`
	Message    string          `json:"message,omitempty"`
}

// ChatOutbound is a frame sent to an ordinary participant.
type ChatOutbound struct {
	Status     string `json:"status,omitempty"`
	Room       string `json:"room,omitempty"`
	Message    string `json:"message,omitempty"`
	SenderName string `json:"sender_name,omitempty"`
}

// AdminInbound is a command sent by an operator.
type AdminInbound struct {
	Action  string `json:"action"`
	RoomID  string `json:"room_id,omitempty"`
	Message string `json:"message,omitempty"`
}

// AdminOutbound is a frame sent to an operator.
type AdminOutbound struct {
	Status     string `json:"status,omitempty"`
	Action     string `json:"action,omitempty"`
	RoomID     string `json:"room_id,omitempty"`
	Count      *int64 `json:"count,omitempty"`
	Message    string `json:"message,omitempty"`
	SenderName string `json:"sender_name,omitempty"`
}

// AdminHistory carries a room's full transcript to an operator.
type AdminHistory struct {
	Type     string           `json:"type"`
	RoomID   string           `json:"room_id"`
	Messages []HistoryMessage `json:"messages"`
}

// HistoryMessage is one transcript line.
type HistoryMessage struct {
	Sender    string    `json:"sender"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}
