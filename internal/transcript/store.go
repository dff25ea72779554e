// ABOUTME: Copy-on-write transcript store for the open conversation
// ABOUTME: Each mutation swaps in a new Snapshot; readers never see partial updates

package transcript

import (
	"errors"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"time"
)

// ErrEmptyTranscript is returned by MutateLast when there is no message to mutate.
var ErrEmptyTranscript = errors.New("transcript is empty")

// ErrUnderflow is returned by RemoveLast when fewer messages exist than requested.
var ErrUnderflow = errors.New("transcript underflow")

// Snapshot is an immutable view of a conversation at one point in time.
// Callers must not modify the Messages slice or the messages in it.
type Snapshot struct {
	ConversationID string
	CreatedAt      time.Time
	Title          string
	Messages       []Message
	Version        uint64
}

// Len returns the number of messages in the snapshot.
func (s *Snapshot) Len() int {
	return len(s.Messages)
}

// Last returns the final message, if any.
func (s *Snapshot) Last() (Message, bool) {
	if len(s.Messages) == 0 {
		return Message{}, false
	}
	return s.Messages[len(s.Messages)-1], true
}

// Observer is called with every snapshot a Store swaps in.
type Observer func(*Snapshot)

// Store holds the current Snapshot of one conversation.
type Store struct {
	mu       sync.Mutex // serializes writers
	current  atomic.Pointer[Snapshot]
	observer Observer
}

// NewStore creates a store seeded with conv. The observer may be nil.
func NewStore(conv Conversation, observer Observer) *Store {
	s := &Store{observer: observer}
	s.current.Store(&Snapshot{
		ConversationID: conv.ID,
		CreatedAt:      conv.CreatedAt,
		Title:          conv.Title,
		Messages:       slices.Clip(append([]Message{}, conv.Messages...)),
	})
	return s
}

// Snapshot returns the current snapshot without blocking.
func (s *Store) Snapshot() *Snapshot {
	return s.current.Load()
}

// Append adds messages to the end of the transcript.
func (s *Store) Append(msgs ...Message) (*Snapshot, error) {
	return s.update(func(prev *Snapshot) (*Snapshot, error) {
		next := *prev
		next.Messages = make([]Message, 0, len(prev.Messages)+len(msgs))
		next.Messages = append(next.Messages, prev.Messages...)
		next.Messages = append(next.Messages, msgs...)
		return &next, nil
	})
}

// MutateLast replaces the final message with transform(final).
func (s *Store) MutateLast(transform func(Message) Message) (*Snapshot, error) {
	return s.update(func(prev *Snapshot) (*Snapshot, error) {
		n := len(prev.Messages)
		if n == 0 {
			return nil, ErrEmptyTranscript
		}
		next := *prev
		next.Messages = slices.Clone(prev.Messages)
		next.Messages[n-1] = transform(prev.Messages[n-1])
		return &next, nil
	})
}

// RemoveLast drops the final n messages.
func (s *Store) RemoveLast(n int) (*Snapshot, error) {
	return s.update(func(prev *Snapshot) (*Snapshot, error) {
		if n < 0 || n > len(prev.Messages) {
			return nil, fmt.Errorf("%w: remove %d of %d", ErrUnderflow, n, len(prev.Messages))
		}
		next := *prev
		next.Messages = slices.Clip(prev.Messages[:len(prev.Messages)-n])
		return &next, nil
	})
}

// Remove drops every message whose ID is in ids and reports how many were removed.
func (s *Store) Remove(ids ...string) (*Snapshot, int, error) {
	removed := 0
	snap, err := s.update(func(prev *Snapshot) (*Snapshot, error) {
		next := *prev
		next.Messages = make([]Message, 0, len(prev.Messages))
		for _, m := range prev.Messages {
			if slices.Contains(ids, m.ID) {
				removed++
				continue
			}
			next.Messages = append(next.Messages, m)
		}
		return &next, nil
	})
	return snap, removed, err
}

// SetTitle records a new conversation title.
func (s *Store) SetTitle(title string) (*Snapshot, error) {
	return s.update(func(prev *Snapshot) (*Snapshot, error) {
		next := *prev
		next.Title = title
		return &next, nil
	})
}

// update derives and publishes the next snapshot.
func (s *Store) update(derive func(*Snapshot) (*Snapshot, error)) (*Snapshot, error) {
	s.mu.Lock()
	prev := s.current.Load()
	next, err := derive(prev)
	if err != nil {
		s.mu.Unlock()
		return prev, err
	}
	next.Version = prev.Version + 1
	s.current.Store(next)
	s.mu.Unlock()

	if s.observer != nil {
		s.observer(next)
	}
	return next, nil
}
