// ABOUTME: Mock Ledger implementation for testing
// ABOUTME: Allows tests to run without SQLite

package store

import (
	"context"
	"errors"
	"sort"
	"sync"
)

// MockStore is an in-memory Ledger implementation for testing.
type MockStore struct {
	mu     sync.RWMutex
	events []*LedgerEvent // in save order
	err    error
}

// NewMockStore creates a new MockStore.
func NewMockStore() *MockStore {
	return &MockStore{}
}

// FailWith makes every later SaveEvent return err.
func (m *MockStore) FailWith(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// SaveEvent stores a ledger event.
func (m *MockStore) SaveEvent(ctx context.Context, event *LedgerEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.err != nil {
		return m.err
	}

	// Make a copy to avoid external modification
	e := *event
	m.events = append(m.events, &e)
	return nil
}

// ListEventsByConversation retrieves the latest events for a conversation,
// ordered by timestamp ASC to match SQLiteStore behavior.
func (m *MockStore) ListEventsByConversation(ctx context.Context, conversationKey string, eventType EventType, limit int) ([]*LedgerEvent, error) {
	result := m.filter(func(e *LedgerEvent) bool {
		return e.ConversationKey == conversationKey && (eventType == "" || e.Type == eventType)
	})
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].Timestamp.Before(result[j].Timestamp)
	})

	limit = clampLimit(limit, 100)
	if len(result) > limit {
		result = result[len(result)-limit:]
	}
	return result, nil
}

// ListEventsByTurn retrieves every event of one turn in save order.
func (m *MockStore) ListEventsByTurn(ctx context.Context, turnID string) ([]*LedgerEvent, error) {
	return m.filter(func(e *LedgerEvent) bool { return e.TurnID == turnID }), nil
}

// GetEvents returns a single page holding every matching event. Cursors are not supported.
func (m *MockStore) GetEvents(ctx context.Context, p GetEventsParams) (*GetEventsResult, error) {
	if p.ConversationKey == "" {
		return nil, errors.New("conversation_key required")
	}
	matched := m.filter(func(e *LedgerEvent) bool {
		return e.ConversationKey == p.ConversationKey
	})
	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].Timestamp.Before(matched[j].Timestamp)
	})

	events := make([]LedgerEvent, 0, len(matched))
	for _, e := range matched {
		events = append(events, *e)
	}
	return &GetEventsResult{Events: events}, nil
}

// Close is a no-op.
func (m *MockStore) Close() error {
	return nil
}

// Events returns a copy of every saved event in save order.
func (m *MockStore) Events() []LedgerEvent {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]LedgerEvent, 0, len(m.events))
	for _, e := range m.events {
		out = append(out, *e)
	}
	return out
}

func (m *MockStore) filter(keep func(*LedgerEvent) bool) []*LedgerEvent {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []*LedgerEvent
	for _, e := range m.events {
		if keep(e) {
			eventCopy := *e
			result = append(result, &eventCopy)
		}
	}
	return result
}
