package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/vovakirdan/strangerchat-server/internal/store"
)

//go:embed schema.sql
var schema string

const roomColumns = `token, participant_a, participant_b, is_active, location_a, location_b, created_at, updated_at`

// SQLiteStore implements store.Store for SQLite.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

// New opens (or creates) the SQLite database at dbPath and applies the schema.
func New(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// A single connection serializes every write, which is what keeps
	// claims and per-room message timestamps consistent.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return &SQLiteStore{db: db, now: time.Now}, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// ==== RoomStore implementation ====

// CreateWaiting creates a new room with participantA and no second participant.
func (s *SQLiteStore) CreateWaiting(ctx context.Context, token, participantA string) (*store.Room, error) {
	if token == "" {
		token = store.NewToken()
	}
	now := s.now().UnixNano()

	query := `
		INSERT INTO rooms (token, participant_a, is_active, created_at, updated_at)
		VALUES (?, ?, 1, ?, ?)
	`
	if _, err := s.db.ExecContext(ctx, query, token, participantA, now, now); err != nil {
		return nil, fmt.Errorf("insert room: %w", err)
	}

	return s.GetRoom(ctx, token)
}

// FindOldestWaiting returns the oldest waiting room.
func (s *SQLiteStore) FindOldestWaiting(ctx context.Context) (*store.Room, error) {
	query := `
		SELECT ` + roomColumns + `
		FROM rooms
		WHERE is_active = 1 AND participant_b IS NULL
		ORDER BY created_at ASC, id ASC
		LIMIT 1
	`
	room, err := scanRoom(s.db.QueryRowContext(ctx, query))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrRoomNotFound
		}
		return nil, fmt.Errorf("query oldest waiting room: %w", err)
	}
	return room, nil
}

// Claim atomically assigns participantB to a waiting room.
func (s *SQLiteStore) Claim(ctx context.Context, token, participantB string) (*store.Room, error) {
	query := `
		UPDATE rooms
		SET participant_b = ?, updated_at = ?
		WHERE token = ? AND participant_b IS NULL AND is_active = 1
	`
	result, err := s.db.ExecContext(ctx, query, participantB, s.now().UnixNano(), token)
	if err != nil {
		return nil, fmt.Errorf("claim room: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("get rows affected: %w", err)
	}
	if rows == 0 {
		if _, err := s.GetRoom(ctx, token); err != nil {
			return nil, err
		}
		return nil, store.ErrClaimConflict
	}

	return s.GetRoom(ctx, token)
}

// Deactivate marks the room closed.
func (s *SQLiteStore) Deactivate(ctx context.Context, token string) (bool, error) {
	query := `UPDATE rooms SET is_active = 0, updated_at = ? WHERE token = ? AND is_active = 1`
	return s.conditionalUpdate(ctx, token, query, s.now().UnixNano(), token)
}

// AbandonWaiting closes the room only while it is still waiting.
func (s *SQLiteStore) AbandonWaiting(ctx context.Context, token string) (bool, error) {
	query := `
		UPDATE rooms
		SET is_active = 0, updated_at = ?
		WHERE token = ? AND is_active = 1 AND participant_b IS NULL
	`
	return s.conditionalUpdate(ctx, token, query, s.now().UnixNano(), token)
}

func (s *SQLiteStore) conditionalUpdate(ctx context.Context, token, query string, args ...any) (bool, error) {
	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("update room: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("get rows affected: %w", err)
	}
	if rows == 0 {
		if _, err := s.GetRoom(ctx, token); err != nil {
			return false, err
		}
		return false, nil
	}
	return true, nil
}

// UpdateLocation stores the location of whichever participant matches participantID.
func (s *SQLiteStore) UpdateLocation(ctx context.Context, token, participantID string, location json.RawMessage) error {
	var loc any
	if len(location) > 0 {
		loc = string(location)
	}

	query := `
		UPDATE rooms
		SET location_a = CASE WHEN participant_a = ? THEN ? ELSE location_a END,
		    location_b = CASE WHEN participant_b = ? THEN ? ELSE location_b END,
		    updated_at = ?
		WHERE token = ? AND is_active = 1 AND (participant_a = ? OR participant_b = ?)
	`
	result, err := s.db.ExecContext(ctx, query,
		participantID, loc,
		participantID, loc,
		s.now().UnixNano(),
		token, participantID, participantID,
	)
	if err != nil {
		return fmt.Errorf("update location: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rows > 0 {
		return nil
	}

	room, err := s.GetRoom(ctx, token)
	if err != nil {
		return err
	}
	if !room.IsActive {
		return store.ErrRoomClosed
	}
	return store.ErrNotParticipant
}

// GetRoom retrieves a room by token.
func (s *SQLiteStore) GetRoom(ctx context.Context, token string) (*store.Room, error) {
	query := `SELECT ` + roomColumns + ` FROM rooms WHERE token = ?`
	room, err := scanRoom(s.db.QueryRowContext(ctx, query, token))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("room %s: %w", token, store.ErrRoomNotFound)
		}
		return nil, fmt.Errorf("query room: %w", err)
	}
	return room, nil
}

// ListRooms lists rooms matching the filter, oldest first.
func (s *SQLiteStore) ListRooms(ctx context.Context, filter store.RoomFilter) ([]*store.Room, error) {
	var (
		conds []string
		args  []any
	)

	switch filter.Status {
	case store.RoomStatusWaiting:
		conds = append(conds, "is_active = 1 AND participant_b IS NULL")
	case store.RoomStatusActive:
		conds = append(conds, "is_active = 1 AND participant_b IS NOT NULL")
	case store.RoomStatusClosed:
		conds = append(conds, "is_active = 0")
	}
	if !filter.CreatedBefore.IsZero() {
		conds = append(conds, "created_at < ?")
		args = append(args, filter.CreatedBefore.UnixNano())
	}

	query := `SELECT ` + roomColumns + ` FROM rooms`
	if len(conds) > 0 {
		query += ` WHERE ` + strings.Join(conds, " AND ")
	}
	query += ` ORDER BY created_at ASC, id ASC`
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query rooms: %w", err)
	}
	defer rows.Close()

	var rooms []*store.Room
	for rows.Next() {
		room, err := scanRoom(rows)
		if err != nil {
			return nil, fmt.Errorf("scan room: %w", err)
		}
		rooms = append(rooms, room)
	}
	return rooms, rows.Err()
}

// CountRooms counts rooms by status.
func (s *SQLiteStore) CountRooms(ctx context.Context) (store.RoomCounts, error) {
	query := `
		SELECT
			COALESCE(SUM(CASE WHEN is_active = 1 AND participant_b IS NULL THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN is_active = 1 AND participant_b IS NOT NULL THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN is_active = 0 THEN 1 ELSE 0 END), 0)
		FROM rooms
	`
	var counts store.RoomCounts
	if err := s.db.QueryRowContext(ctx, query).Scan(&counts.Waiting, &counts.Active, &counts.Closed); err != nil {
		return store.RoomCounts{}, fmt.Errorf("count rooms: %w", err)
	}
	return counts, nil
}

// ListAllTokens returns every room token, oldest first.
func (s *SQLiteStore) ListAllTokens(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT token FROM rooms ORDER BY created_at ASC, id ASC`)
	if err != nil {
		return nil, fmt.Errorf("query tokens: %w", err)
	}
	defer rows.Close()

	var tokens []string
	for rows.Next() {
		var token string
		if err := rows.Scan(&token); err != nil {
			return nil, fmt.Errorf("scan token: %w", err)
		}
		tokens = append(tokens, token)
	}
	return tokens, rows.Err()
}

// Delete removes a room and its messages.
func (s *SQLiteStore) Delete(ctx context.Context, token string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM messages WHERE room_token = ?`, token); err != nil {
		return fmt.Errorf("delete messages: %w", err)
	}
	result, err := tx.ExecContext(ctx, `DELETE FROM rooms WHERE token = ?`, token)
	if err != nil {
		return fmt.Errorf("delete room: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("room %s: %w", token, store.ErrRoomNotFound)
	}

	return tx.Commit()
}

// DeleteAll removes every room and message and reports which rooms went.
func (s *SQLiteStore) DeleteAll(ctx context.Context) ([]string, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	rows, err := tx.QueryContext(ctx, `SELECT token FROM rooms ORDER BY created_at ASC, id ASC`)
	if err != nil {
		return nil, fmt.Errorf("query tokens: %w", err)
	}
	var tokens []string
	for rows.Next() {
		var token string
		if err := rows.Scan(&token); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan token: %w", err)
		}
		tokens = append(tokens, token)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tokens: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM messages`); err != nil {
		return nil, fmt.Errorf("delete messages: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM rooms`); err != nil {
		return nil, fmt.Errorf("delete rooms: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return tokens, nil
}

// ==== MessageStore implementation ====

// AppendMessage persists a message to an active room.
func (s *SQLiteStore) AppendMessage(ctx context.Context, token, sender, content string) (*store.Message, error) {
	if strings.TrimSpace(content) == "" {
		return nil, store.ErrEmptyMessage
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var active bool
	if err := tx.QueryRowContext(ctx, `SELECT is_active FROM rooms WHERE token = ?`, token).Scan(&active); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("room %s: %w", token, store.ErrRoomNotFound)
		}
		return nil, fmt.Errorf("query room: %w", err)
	}
	if !active {
		return nil, store.ErrRoomClosed
	}

	var last sql.NullInt64
	if err := tx.QueryRowContext(ctx, `SELECT MAX(timestamp) FROM messages WHERE room_token = ?`, token).Scan(&last); err != nil {
		return nil, fmt.Errorf("query last timestamp: %w", err)
	}
	ts := s.now().UnixNano()
	if last.Valid && last.Int64 > ts {
		ts = last.Int64
	}

	result, err := tx.ExecContext(ctx,
		`INSERT INTO messages (room_token, sender, content, timestamp) VALUES (?, ?, ?, ?)`,
		token, sender, content, ts,
	)
	if err != nil {
		return nil, fmt.Errorf("insert message: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("get last insert id: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}

	return &store.Message{
		ID:        id,
		RoomToken: token,
		Sender:    sender,
		Content:   content,
		Timestamp: time.Unix(0, ts).UTC(),
	}, nil
}

// ListMessages returns up to limit messages of a room in the requested order.
func (s *SQLiteStore) ListMessages(ctx context.Context, token string, limit int, order store.Order) ([]*store.Message, error) {
	direction := "ASC"
	if order == store.OrderDesc {
		direction = "DESC"
	}
	if limit <= 0 {
		limit = -1 // no limit in SQLite
	}

	query := `
		SELECT id, room_token, sender, content, timestamp
		FROM messages
		WHERE room_token = ?
		ORDER BY timestamp ` + direction + `, id ` + direction + `
		LIMIT ?
	`
	return s.queryMessages(ctx, query, token, limit)
}

// PageMessages returns a chronological page of a room's transcript.
func (s *SQLiteStore) PageMessages(ctx context.Context, token string, offset, limit int) ([]*store.Message, int, error) {
	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM messages WHERE room_token = ?`, token).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count messages: %w", err)
	}

	query := `
		SELECT id, room_token, sender, content, timestamp
		FROM messages
		WHERE room_token = ?
		ORDER BY timestamp ASC, id ASC
		LIMIT ? OFFSET ?
	`
	messages, err := s.queryMessages(ctx, query, token, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	return messages, total, nil
}

func (s *SQLiteStore) queryMessages(ctx context.Context, query string, args ...any) ([]*store.Message, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	var messages []*store.Message
	for rows.Next() {
		var (
			msg store.Message
			ts  int64
		)
		if err := rows.Scan(&msg.ID, &msg.RoomToken, &msg.Sender, &msg.Content, &ts); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		msg.Timestamp = time.Unix(0, ts).UTC()
		messages = append(messages, &msg)
	}
	return messages, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRoom(row rowScanner) (*store.Room, error) {
	var (
		room                 store.Room
		participantB         sql.NullString
		locationA, locationB sql.NullString
		createdAt, updatedAt int64
	)
	err := row.Scan(
		&room.Token,
		&room.ParticipantA,
		&participantB,
		&room.IsActive,
		&locationA,
		&locationB,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	if participantB.Valid {
		room.ParticipantB = &participantB.String
	}
	if locationA.Valid {
		room.LocationA = json.RawMessage(locationA.String)
	}
	if locationB.Valid {
		room.LocationB = json.RawMessage(locationB.String)
	}
	room.CreatedAt = time.Unix(0, createdAt).UTC()
	room.UpdatedAt = time.Unix(0, updatedAt).UTC()

	return &room, nil
}
