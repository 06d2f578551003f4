package postgres

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vovakirdan/strangerchat-server/internal/store"
)

//go:embed schema.sql
var schema string

const roomColumns = `token, participant_a, participant_b, is_active, location_a, location_b, created_at, updated_at`

// PostgresStore implements store.Store on a pgx connection pool.
type PostgresStore struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

// New connects to postgres and applies the schema.
func New(ctx context.Context, url string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &PostgresStore{pool: pool, now: time.Now}, nil
}

// Close releases the pool.
func (p *PostgresStore) Close() error {
	p.pool.Close()
	return nil
}

func (p *PostgresStore) CreateWaiting(ctx context.Context, token, participantA string) (*store.Room, error) {
	if token == "" {
		token = store.NewToken()
	}
	now := p.now().UnixNano()
	row := p.pool.QueryRow(ctx, `
		INSERT INTO rooms (token, participant_a, is_active, created_at, updated_at)
		VALUES ($1, $2, TRUE, $3, $3)
		RETURNING `+roomColumns,
		token, participantA, now,
	)
	room, err := scanRoom(row)
	if err != nil {
		return nil, fmt.Errorf("insert room: %w", err)
	}
	return room, nil
}

func (p *PostgresStore) FindOldestWaiting(ctx context.Context) (*store.Room, error) {
	row := p.pool.QueryRow(ctx, `
		SELECT `+roomColumns+`
		FROM rooms
		WHERE is_active AND participant_b IS NULL
		ORDER BY created_at ASC, id ASC
		LIMIT 1
	`)
	room, err := scanRoom(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrRoomNotFound
		}
		return nil, fmt.Errorf("query oldest waiting room: %w", err)
	}
	return room, nil
}

// Claim sets participant_b in one conditional UPDATE, so concurrent
// claimants of the same room see exactly one winner.
func (p *PostgresStore) Claim(ctx context.Context, token, participantB string) (*store.Room, error) {
	row := p.pool.QueryRow(ctx, `
		UPDATE rooms
		SET participant_b = $1, updated_at = $2
		WHERE token = $3 AND participant_b IS NULL AND is_active
		RETURNING `+roomColumns,
		participantB, p.now().UnixNano(), token,
	)
	room, err := scanRoom(row)
	if err == nil {
		return room, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("claim room: %w", err)
	}
	if _, err := p.GetRoom(ctx, token); err != nil {
		return nil, err
	}
	return nil, store.ErrClaimConflict
}

func (p *PostgresStore) Deactivate(ctx context.Context, token string) (bool, error) {
	return p.conditionalUpdate(ctx, token,
		`UPDATE rooms SET is_active = FALSE, updated_at = $1 WHERE token = $2 AND is_active`,
		p.now().UnixNano(), token,
	)
}

func (p *PostgresStore) AbandonWaiting(ctx context.Context, token string) (bool, error) {
	return p.conditionalUpdate(ctx, token,
		`UPDATE rooms SET is_active = FALSE, updated_at = $1 WHERE token = $2 AND is_active AND participant_b IS NULL`,
		p.now().UnixNano(), token,
	)
}

func (p *PostgresStore) conditionalUpdate(ctx context.Context, token, query string, args ...any) (bool, error) {
	tag, err := p.pool.Exec(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("update room: %w", err)
	}
	if tag.RowsAffected() == 0 {
		if _, err := p.GetRoom(ctx, token); err != nil {
			return false, err
		}
		return false, nil
	}
	return true, nil
}

func (p *PostgresStore) UpdateLocation(ctx context.Context, token, participantID string, location json.RawMessage) error {
	var loc any
	if len(location) > 0 {
		loc = string(location)
	}

	tag, err := p.pool.Exec(ctx, `
		UPDATE rooms
		SET location_a = CASE WHEN participant_a = $1 THEN $2::jsonb ELSE location_a END,
		    location_b = CASE WHEN participant_b = $1 THEN $2::jsonb ELSE location_b END,
		    updated_at = $3
		WHERE token = $4 AND is_active AND (participant_a = $1 OR participant_b = $1)
	`, participantID, loc, p.now().UnixNano(), token)
	if err != nil {
		return fmt.Errorf("update location: %w", err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	room, err := p.GetRoom(ctx, token)
	if err != nil {
		return err
	}
	if !room.IsActive {
		return store.ErrRoomClosed
	}
	return store.ErrNotParticipant
}

func (p *PostgresStore) GetRoom(ctx context.Context, token string) (*store.Room, error) {
	room, err := scanRoom(p.pool.QueryRow(ctx, `SELECT `+roomColumns+` FROM rooms WHERE token = $1`, token))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("room %s: %w", token, store.ErrRoomNotFound)
		}
		return nil, fmt.Errorf("query room: %w", err)
	}
	return room, nil
}

func (p *PostgresStore) ListRooms(ctx context.Context, filter store.RoomFilter) ([]*store.Room, error) {
	var (
		conds []string
		args  []any
	)
	switch filter.Status {
	case store.RoomStatusWaiting:
		conds = append(conds, "is_active AND participant_b IS NULL")
	case store.RoomStatusActive:
		conds = append(conds, "is_active AND participant_b IS NOT NULL")
	case store.RoomStatusClosed:
		conds = append(conds, "NOT is_active")
	}
	if !filter.CreatedBefore.IsZero() {
		args = append(args, filter.CreatedBefore.UnixNano())
		conds = append(conds, fmt.Sprintf("created_at < $%d", len(args)))
	}

	query := `SELECT ` + roomColumns + ` FROM rooms`
	if len(conds) > 0 {
		query += ` WHERE ` + strings.Join(conds, " AND ")
	}
	query += ` ORDER BY created_at ASC, id ASC`
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(` LIMIT $%d`, len(args))
	}

	rows, err := p.pool.Query(ctx, query, args...)
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

func (p *PostgresStore) CountRooms(ctx context.Context) (store.RoomCounts, error) {
	var counts store.RoomCounts
	err := p.pool.QueryRow(ctx, `
		SELECT
			COUNT(*) FILTER (WHERE is_active AND participant_b IS NULL),
			COUNT(*) FILTER (WHERE is_active AND participant_b IS NOT NULL),
			COUNT(*) FILTER (WHERE NOT is_active)
		FROM rooms
	`).Scan(&counts.Waiting, &counts.Active, &counts.Closed)
	if err != nil {
		return store.RoomCounts{}, fmt.Errorf("count rooms: %w", err)
	}
	return counts, nil
}

func (p *PostgresStore) ListAllTokens(ctx context.Context) ([]string, error) {
	rows, err := p.pool.Query(ctx, `SELECT token FROM rooms ORDER BY created_at ASC, id ASC`)
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

// Delete removes a room; messages go with it through the cascading foreign key.
func (p *PostgresStore) Delete(ctx context.Context, token string) error {
	tag, err := p.pool.Exec(ctx, `DELETE FROM rooms WHERE token = $1`, token)
	if err != nil {
		return fmt.Errorf("delete room: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("room %s: %w", token, store.ErrRoomNotFound)
	}
	return nil
}

func (p *PostgresStore) DeleteAll(ctx context.Context) ([]string, error) {
	rows, err := p.pool.Query(ctx, `DELETE FROM rooms RETURNING token`)
	if err != nil {
		return nil, fmt.Errorf("delete rooms: %w", err)
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
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("delete rooms: %w", err)
	}
	return tokens, nil
}

// AppendMessage locks the room row so appends to one room are serialized
// and timestamps never go backwards.
func (p *PostgresStore) AppendMessage(ctx context.Context, token, sender, content string) (*store.Message, error) {
	if strings.TrimSpace(content) == "" {
		return nil, store.ErrEmptyMessage
	}

	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var active bool
	if err := tx.QueryRow(ctx, `SELECT is_active FROM rooms WHERE token = $1 FOR UPDATE`, token).Scan(&active); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("room %s: %w", token, store.ErrRoomNotFound)
		}
		return nil, fmt.Errorf("lock room: %w", err)
	}
	if !active {
		return nil, store.ErrRoomClosed
	}

	ts := p.now().UnixNano()
	msg := &store.Message{RoomToken: token, Sender: sender, Content: content}
	err = tx.QueryRow(ctx, `
		INSERT INTO messages (room_token, sender, content, timestamp)
		SELECT $1, $2, $3, GREATEST($4::bigint, COALESCE(MAX(timestamp), 0))
		FROM messages WHERE room_token = $1
		RETURNING id, timestamp
	`, token, sender, content, ts).Scan(&msg.ID, &ts)
	if err != nil {
		return nil, fmt.Errorf("insert message: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	msg.Timestamp = time.Unix(0, ts).UTC()
	return msg, nil
}

func (p *PostgresStore) ListMessages(ctx context.Context, token string, limit int, order store.Order) ([]*store.Message, error) {
	direction := "ASC"
	if order == store.OrderDesc {
		direction = "DESC"
	}
	query := `
		SELECT id, room_token, sender, content, timestamp
		FROM messages
		WHERE room_token = $1
		ORDER BY timestamp ` + direction + `, id ` + direction
	args := []any{token}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}
	return p.queryMessages(ctx, query, args...)
}

func (p *PostgresStore) PageMessages(ctx context.Context, token string, offset, limit int) ([]*store.Message, int, error) {
	var total int
	if err := p.pool.QueryRow(ctx, `SELECT COUNT(*) FROM messages WHERE room_token = $1`, token).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count messages: %w", err)
	}

	messages, err := p.queryMessages(ctx, `
		SELECT id, room_token, sender, content, timestamp
		FROM messages
		WHERE room_token = $1
		ORDER BY timestamp ASC, id ASC
		LIMIT $2 OFFSET $3
	`, token, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	return messages, total, nil
}

func (p *PostgresStore) queryMessages(ctx context.Context, query string, args ...any) ([]*store.Message, error) {
	rows, err := p.pool.Query(ctx, query, args...)
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

func scanRoom(row pgx.Row) (*store.Room, error) {
	var (
		room                 store.Room
		locationA, locationB []byte
		createdAt, updatedAt int64
	)
	if err := row.Scan(
		&room.Token,
		&room.ParticipantA,
		&room.ParticipantB,
		&room.IsActive,
		&locationA,
		&locationB,
		&createdAt,
		&updatedAt,
	); err != nil {
		return nil, err
	}

	if len(locationA) > 0 {
		room.LocationA = json.RawMessage(locationA)
	}
	if len(locationB) > 0 {
		room.LocationB = json.RawMessage(locationB)
	}
	room.CreatedAt = time.Unix(0, createdAt).UTC()
	room.UpdatedAt = time.Unix(0, updatedAt).UTC()
	return &room, nil
}
