package core

// AdminAction names an operator command.
type AdminAction string

const (
	// ActionSubscribeRoom observes a room and fetches its transcript.
	ActionSubscribeRoom AdminAction = "subscribe_room"
	// ActionMessage injects a message into the subscribed room.
	ActionMessage AdminAction = "message"
	// ActionKillRoom ends a room and closes its members.
	ActionKillRoom AdminAction = "kill_room"
	// ActionConnectToWaiting takes the empty seat of a waiting room.
	ActionConnectToWaiting AdminAction = "connect_to_waiting"
	// ActionDeleteRoom removes a room and its transcript.
	ActionDeleteRoom AdminAction = "delete_room"
	// ActionDeleteAll removes every room.
	ActionDeleteAll AdminAction = "delete_all"
)

// AdminCommand represents an action requested by an operator.
type AdminCommand struct {
	Action  AdminAction
	RoomID  string
	Message string
}
