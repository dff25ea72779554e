// ABOUTME: Ledger interface and event types for council-chat persistence
// ABOUTME: Defines LedgerEvent and the Ledger interface implemented by SQLite and the mock

package store

import (
	"context"
	"time"
)

// EventDirection indicates whether an event went to the backend or came from it
type EventDirection string

const (
	EventDirectionOutbound EventDirection = "outbound_to_backend"
	EventDirectionInbound  EventDirection = "inbound_from_backend"
)

// EventType categorizes ledger rows
type EventType string

const (
	EventTypeTurnStarted  EventType = "turn_started"  // user message sent
	EventTypeStage        EventType = "stage"         // a stage event was applied
	EventTypeTitle        EventType = "title"         // the backend announced a title
	EventTypeTurnFinished EventType = "turn_finished" // outcome of the turn
	EventTypeError        EventType = "error"         // turn failed and was rolled back
)

// LedgerEvent is one row of the turn ledger. Every turn writes a start row,
// one row per applied event and a finish row.
type LedgerEvent struct {
	ID              string
	ConversationKey string // backend conversation ID
	TurnID          string
	Direction       EventDirection
	Author          string // "user" or the backend
	Timestamp       time.Time
	Type            EventType
	Name            string  // wire event name, or the turn state for finish rows
	Text            *string // optional: user content, title or error message
	Payload         *string // optional: raw JSON stage payload
}

// GetEventsParams specifies the parameters for retrieving events from the ledger.
type GetEventsParams struct {
	ConversationKey string // Required: the conversation to fetch events from
	Limit           int    // 1-500, defaults to 50
	Cursor          string // Opaque cursor from a previous response for pagination
}

// GetEventsResult contains the results of a GetEvents query.
type GetEventsResult struct {
	Events     []LedgerEvent
	NextCursor string // empty if no more
	HasMore    bool
}

// Ledger is the persistence interface for turn history.
type Ledger interface {
	SaveEvent(ctx context.Context, event *LedgerEvent) error
	// ListEventsByConversation returns the latest limit events of a
	// conversation, oldest first. An empty eventType matches every type.
	ListEventsByConversation(ctx context.Context, conversationKey string, eventType EventType, limit int) ([]*LedgerEvent, error)
	ListEventsByTurn(ctx context.Context, turnID string) ([]*LedgerEvent, error)
	GetEvents(ctx context.Context, p GetEventsParams) (*GetEventsResult, error)
	Close() error
}

var (
	_ Ledger = (*SQLiteStore)(nil)
	_ Ledger = (*MockStore)(nil)
)

// clampLimit applies the default and maximum page sizes.
func clampLimit(limit, def int) int {
	if limit <= 0 {
		return def
	}
	if limit > 500 {
		return 500
	}
	return limit
}
