// ABOUTME: Ledger event operations for the SQLite store
// ABOUTME: Saves turn events and lists them by conversation or turn with cursor pagination

package store

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"
)

// timestampLayout is fixed width so stored timestamps sort as text.
const timestampLayout = "2006-01-02T15:04:05.000000000Z07:00"

const eventColumns = `rowid, event_id, conversation_key, turn_id, direction, author, timestamp, type, name, text, payload`

func formatTimestamp(t time.Time) string {
	return t.UTC().Format(timestampLayout)
}

// SaveEvent persists a ledger event to the database
func (s *SQLiteStore) SaveEvent(ctx context.Context, event *LedgerEvent) error {
	query := `
		INSERT INTO ledger_events (
			event_id, conversation_key, turn_id, direction, author, timestamp, type, name, text, payload
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		event.ID,
		event.ConversationKey,
		event.TurnID,
		string(event.Direction),
		event.Author,
		formatTimestamp(event.Timestamp),
		string(event.Type),
		event.Name,
		event.Text,
		event.Payload,
	)
	if err != nil {
		return fmt.Errorf("inserting event: %w", err)
	}

	s.logger.Debug("saved ledger event",
		"event_id", event.ID,
		"conversation_key", event.ConversationKey,
		"turn_id", event.TurnID,
		"type", event.Type,
		"name", event.Name,
	)
	return nil
}

// ListEventsByConversation retrieves the latest events of a conversation,
// optionally of one type, oldest first
func (s *SQLiteStore) ListEventsByConversation(ctx context.Context, conversationKey string, eventType EventType, limit int) ([]*LedgerEvent, error) {
	query := `
		SELECT ` + eventColumns + `
		FROM ledger_events
		WHERE conversation_key = ? AND (? = '' OR type = ?)
		ORDER BY timestamp DESC, rowid DESC
		LIMIT ?
	`
	events, err := s.queryEvents(ctx, query, conversationKey, string(eventType), string(eventType), clampLimit(limit, 100))
	if err != nil {
		return nil, err
	}
	slices.Reverse(events)
	return events, nil
}

// ListEventsByTurn retrieves every event of one turn in the order it was saved
func (s *SQLiteStore) ListEventsByTurn(ctx context.Context, turnID string) ([]*LedgerEvent, error) {
	query := `
		SELECT ` + eventColumns + `
		FROM ledger_events
		WHERE turn_id = ?
		ORDER BY rowid ASC
	`
	return s.queryEvents(ctx, query, turnID)
}

// GetEvents retrieves events for a conversation with pagination support.
// Events are returned in chronological order (oldest first).
func (s *SQLiteStore) GetEvents(ctx context.Context, p GetEventsParams) (*GetEventsResult, error) {
	if p.ConversationKey == "" {
		return nil, errors.New("conversation_key required")
	}
	p.Limit = clampLimit(p.Limit, 50)

	var cursorTS string
	var cursorRow int64
	if p.Cursor != "" {
		var err error
		cursorTS, cursorRow, err = decodeCursor(p.Cursor)
		if err != nil {
			return nil, fmt.Errorf("invalid cursor: %w", err)
		}
	}

	var args []any
	query := `SELECT ` + eventColumns + ` FROM ledger_events WHERE conversation_key = ?`
	args = append(args, p.ConversationKey)

	if p.Cursor != "" {
		query += ` AND (timestamp > ? OR (timestamp = ? AND rowid > ?))`
		args = append(args, cursorTS, cursorTS, cursorRow)
	}

	// Fetch limit+1 to detect if there are more results
	query += ` ORDER BY timestamp ASC, rowid ASC LIMIT ?`
	args = append(args, p.Limit+1)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying events: %w", err)
	}
	defer rows.Close()

	var events []LedgerEvent
	var rowIDs []int64
	for rows.Next() {
		event, rowID, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning event row: %w", err)
		}
		events = append(events, *event)
		rowIDs = append(rowIDs, rowID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating event rows: %w", err)
	}

	hasMore := len(events) > p.Limit
	if hasMore {
		events = events[:p.Limit]
	}

	result := &GetEventsResult{
		Events:  events,
		HasMore: hasMore,
	}
	if hasMore && len(events) > 0 {
		last := len(events) - 1
		result.NextCursor = encodeCursor(formatTimestamp(events[last].Timestamp), rowIDs[last])
	}
	return result, nil
}

// queryEvents is a helper that executes a query and returns events
func (s *SQLiteStore) queryEvents(ctx context.Context, query string, args ...any) ([]*LedgerEvent, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying events: %w", err)
	}
	defer rows.Close()

	var events []*LedgerEvent
	for rows.Next() {
		event, _, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning event row: %w", err)
		}
		events = append(events, event)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating event rows: %w", err)
	}

	return events, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEvent(row rowScanner) (*LedgerEvent, int64, error) {
	event := &LedgerEvent{}
	var rowID int64
	var timestampStr, direction, eventType string

	if err := row.Scan(
		&rowID,
		&event.ID,
		&event.ConversationKey,
		&event.TurnID,
		&direction,
		&event.Author,
		&timestampStr,
		&eventType,
		&event.Name,
		&event.Text,
		&event.Payload,
	); err != nil {
		return nil, 0, err
	}

	event.Direction = EventDirection(direction)
	event.Type = EventType(eventType)
	ts, err := time.Parse(timestampLayout, timestampStr)
	if err != nil {
		return nil, 0, fmt.Errorf("parsing timestamp: %w", err)
	}
	event.Timestamp = ts
	return event, rowID, nil
}

// encodeCursor creates an opaque cursor string from a timestamp and row position.
// Format is base64(timestamp|rowid)
func encodeCursor(ts string, rowID int64) string {
	data := fmt.Sprintf("%s|%d", ts, rowID)
	return base64.StdEncoding.EncodeToString([]byte(data))
}

// decodeCursor parses an opaque cursor string.
func decodeCursor(cursor string) (string, int64, error) {
	decoded, err := base64.StdEncoding.DecodeString(cursor)
	if err != nil {
		return "", 0, fmt.Errorf("invalid cursor encoding: %w", err)
	}

	ts, row, ok := strings.Cut(string(decoded), "|")
	if !ok {
		return "", 0, fmt.Errorf("invalid cursor format: expected timestamp|rowid")
	}
	if _, err := time.Parse(timestampLayout, ts); err != nil {
		return "", 0, fmt.Errorf("invalid cursor timestamp: %w", err)
	}
	rowID, err := strconv.ParseInt(row, 10, 64)
	if err != nil {
		return "", 0, fmt.Errorf("invalid cursor position: %w", err)
	}
	return ts, rowID, nil
}
