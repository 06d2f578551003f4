package core

import "errors"

var (
	// ErrClientClosed is returned when sending to a client that was force-closed.
	ErrClientClosed = errors.New("client closed")
	// ErrSlowConsumer is returned when a client's outbound queue is full.
	ErrSlowConsumer = errors.New("slow consumer")
	// ErrRoomLost is returned when a freshly created waiting room was closed
	// before matchmaking could settle on it.
	ErrRoomLost = errors.New("waiting room lost")
)
