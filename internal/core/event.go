package core

import "time"

// EventKind is a notification the core emits to clients.
type EventKind string

const (
	// EventWaiting tells a participant it is waiting for a partner.
	EventWaiting EventKind = "waiting"
	// EventChat carries a message written by a participant or an operator.
	EventChat EventKind = "chat"
	// EventNotice carries a system notice such as "You are now connected!".
	EventNotice EventKind = "notice"
	// EventStatus answers an admin command.
	EventStatus EventKind = "status"
	// EventHistory delivers a room transcript to an operator.
	EventHistory EventKind = "history"
)

// Notice texts.
const (
	NoticeConnected    = "You are now connected!"
	NoticeDisconnected = "Stranger has disconnected."
	NoticeKilled       = "This chat has been ended by an administrator."
	NoticeDeleted      = "This chat has been deleted by an administrator."
)

// Admin reply statuses.
const (
	StatusSubscribed = "subscribed"
	StatusKilled     = "killed"
	StatusFailed     = "failed"
	StatusDeleted    = "deleted"
	StatusAllDeleted = "all_deleted"
	StatusInvalid    = "invalid"
)

// Display names used on outbound chat events.
const (
	AnonymousName = "Stranger"
	AdminName     = "Admin"
)

// Event is sent to clients to describe what happened in the system.
// It crosses process boundaries on a distributed bus, hence the JSON tags.
type Event struct {
	Kind     EventKind      `json:"kind"`
	Room     string         `json:"room,omitempty"`
	Text     string         `json:"text,omitempty"`
	Sender   string         `json:"sender,omitempty"`
	Status   string         `json:"status,omitempty"`
	Action   string         `json:"action,omitempty"`
	Count    int64          `json:"count,omitempty"`
	Messages []HistoryEntry `json:"messages,omitempty"`
}

// HistoryEntry is one transcript line sent to operators.
type HistoryEntry struct {
	Sender    string    `json:"sender"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

func noticeEvent(room, text string) *Event {
	return &Event{Kind: EventNotice, Room: room, Text: text}
}

func statusEvent(status, room string) *Event {
	return &Event{Kind: EventStatus, Status: status, Room: room}
}
