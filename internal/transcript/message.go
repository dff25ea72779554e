// ABOUTME: Conversation and Message types for the client-side transcript
// ABOUTME: User messages are fixed at creation; assistant messages fill in stage by stage

package transcript

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Role identifies who authored a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Loading tracks which stages of an assistant message are in flight.
type Loading struct {
	Stage1 bool `json:"stage1"`
	Stage2 bool `json:"stage2"`
	Stage3 bool `json:"stage3"`
}

// Any reports whether at least one stage is still loading.
func (l Loading) Any() bool {
	return l.Stage1 || l.Stage2 || l.Stage3
}

// Message is a single transcript entry.
//
// Content is only meaningful for user messages. The stage fields, Metadata and
// Loading are only meaningful for assistant messages. A nil stage field means
// the stage is unset.
type Message struct {
	ID      string `json:"id"`
	Role    Role   `json:"role"`
	Content string `json:"content,omitempty"`

	Stage1   json.RawMessage `json:"stage1,omitempty"`
	Stage2   json.RawMessage `json:"stage2,omitempty"`
	Stage3   json.RawMessage `json:"stage3,omitempty"`
	Metadata json.RawMessage `json:"metadata,omitempty"`
	Loading  Loading         `json:"loading"`
}

// NewUserMessage creates a user message with a fresh ID.
func NewUserMessage(content string) Message {
	return Message{
		ID:      uuid.New().String(),
		Role:    RoleUser,
		Content: content,
	}
}

// NewAssistantPlaceholder creates an assistant message with every stage unset
// and every loading flag false.
func NewAssistantPlaceholder() Message {
	return Message{
		ID:   uuid.New().String(),
		Role: RoleAssistant,
	}
}

// IsAssistant reports whether the message was authored by the assistant.
func (m Message) IsAssistant() bool {
	return m.Role == RoleAssistant
}

// HasStage reports whether stage n (1-3) has a payload.
func (m Message) HasStage(n int) bool {
	switch n {
	case 1:
		return m.Stage1 != nil
	case 2:
		return m.Stage2 != nil
	case 3:
		return m.Stage3 != nil
	default:
		return false
	}
}

// Conversation is a conversation as fetched from the backend.
type Conversation struct {
	ID        string
	CreatedAt time.Time
	Title     string
	Messages  []Message
}
