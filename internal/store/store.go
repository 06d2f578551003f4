package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrRoomNotFound is returned when no room matches the lookup.
	ErrRoomNotFound = errors.New("room not found")
	// ErrClaimConflict is returned when a room left the Waiting state before it could be claimed.
	ErrClaimConflict = errors.New("claim conflict")
	// ErrRoomClosed is returned when mutating a room that is no longer active.
	ErrRoomClosed = errors.New("room closed")
	// ErrNotParticipant is returned when a location update names neither participant.
	ErrNotParticipant = errors.New("not a room participant")
	// ErrEmptyMessage is returned when appending a message without content.
	ErrEmptyMessage = errors.New("empty message")
)

// AdminPrefix tags identifiers that belong to staff operators.
const AdminPrefix = "admin:"

// AdminIdentifier returns the participant/sender label for an operator.
func AdminIdentifier(operator string) string {
	return AdminPrefix + operator
}

// NewToken returns a fresh, unguessable room token.
func NewToken() string {
	return uuid.NewString()
}

// Room is a two-party chat session.
type Room struct {
	Token        string
	ParticipantA string
	ParticipantB *string // nil while waiting for a second participant
	IsActive     bool
	LocationA    json.RawMessage
	LocationB    json.RawMessage
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Waiting reports whether the room is still looking for its second participant.
func (r *Room) Waiting() bool {
	return r.IsActive && r.ParticipantB == nil
}

// Status returns the lifecycle state of the room.
func (r *Room) Status() RoomStatus {
	switch {
	case !r.IsActive:
		return RoomStatusClosed
	case r.ParticipantB == nil:
		return RoomStatusWaiting
	default:
		return RoomStatusActive
	}
}

// RoomStatus is the derived lifecycle state of a room.
type RoomStatus string

const (
	RoomStatusAny     RoomStatus = ""
	RoomStatusWaiting RoomStatus = "waiting"
	RoomStatusActive  RoomStatus = "active"
	RoomStatusClosed  RoomStatus = "closed"
)

// Message is a persisted transcript line.
type Message struct {
	ID        int64
	RoomToken string
	Sender    string
	Content   string
	Timestamp time.Time
}

// Order controls transcript ordering.
type Order int

const (
	OrderAsc Order = iota
	OrderDesc
)

// RoomFilter narrows ListRooms.
type RoomFilter struct {
	Status RoomStatus
	// CreatedBefore, when non-zero, keeps only rooms created strictly earlier.
	CreatedBefore time.Time
	// Limit caps the result size; zero means no limit.
	Limit int
}

// RoomCounts summarizes rooms by status.
type RoomCounts struct {
	Waiting int
	Active  int
	Closed  int
}

// RoomStore handles room persistence.
type RoomStore interface {
	// CreateWaiting creates a new room with participantA and no second participant.
	// An empty token asks the store to mint one with NewToken.
	CreateWaiting(ctx context.Context, token, participantA string) (*Room, error)

	// FindOldestWaiting returns the oldest waiting room or ErrRoomNotFound.
	FindOldestWaiting(ctx context.Context) (*Room, error)

	// Claim atomically sets participantB on a waiting room.
	// Returns ErrClaimConflict if the room is no longer waiting.
	Claim(ctx context.Context, token, participantB string) (*Room, error)

	// Deactivate marks the room closed. The boolean reports whether this call
	// performed the transition.
	Deactivate(ctx context.Context, token string) (bool, error)

	// AbandonWaiting closes the room only if it is still waiting.
	AbandonWaiting(ctx context.Context, token string) (bool, error)

	// UpdateLocation stores the location of the participant identified by participantID.
	UpdateLocation(ctx context.Context, token, participantID string, location json.RawMessage) error

	// GetRoom retrieves a room by token.
	GetRoom(ctx context.Context, token string) (*Room, error)

	// ListRooms lists rooms matching the filter, oldest first.
	ListRooms(ctx context.Context, filter RoomFilter) ([]*Room, error)

	// CountRooms counts rooms by status.
	CountRooms(ctx context.Context) (RoomCounts, error)

	// ListAllTokens returns the tokens of every stored room.
	ListAllTokens(ctx context.Context) ([]string, error)

	// Delete removes a room and its messages.
	Delete(ctx context.Context, token string) error

	// DeleteAll removes every room and message, returning the tokens of the removed rooms.
	DeleteAll(ctx context.Context) ([]string, error)
}

// MessageStore handles transcript persistence.
type MessageStore interface {
	// AppendMessage persists a message to an active room. Timestamps never
	// decrease within a room.
	AppendMessage(ctx context.Context, token, sender, content string) (*Message, error)

	// ListMessages returns up to limit messages (all when limit <= 0) in the given order.
	ListMessages(ctx context.Context, token string, limit int, order Order) ([]*Message, error)

	// PageMessages returns a chronological page of the transcript and the total message count.
	PageMessages(ctx context.Context, token string, offset, limit int) ([]*Message, int, error)
}

// Store aggregates all storage interfaces.
type Store interface {
	RoomStore
	MessageStore

	// Close closes the underlying database connection.
	Close() error
}
