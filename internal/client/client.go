// ABOUTME: HTTP client for the council backend's conversation and streaming endpoints
// ABOUTME: Converts wire JSON into transcript, summary and turn event types

package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"

	"github.com/2389/council-chat/internal/summaries"
	"github.com/2389/council-chat/internal/transcript"
	"github.com/2389/council-chat/internal/turn"
)

const (
	defaultRequestTimeout = 30 * time.Second
	userAgent             = "council-tui/1.0"
	maxErrorBody          = 64 * 1024
)

// ErrNotFound is returned when the backend has no such conversation.
var ErrNotFound = errors.New("conversation not found")

// ErrStreamTruncated is returned when a turn's stream ends before a terminal event.
var ErrStreamTruncated = errors.New("stream ended before complete or error event")

// errStop ends frame reading after a terminal event.
var errStop = errors.New("stop reading")

// StatusError reports a non-success HTTP status from the backend.
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("server returned status %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("server returned status %d", e.StatusCode)
}

// Options configures a Client.
type Options struct {
	Token          string        // bearer token, optional
	RequestTimeout time.Duration // bound for non-streaming calls
	HTTPClient     *http.Client  // optional; streaming requires no client-wide timeout
	Logger         *slog.Logger
}

// Client calls the council backend.
type Client struct {
	http    *resty.Client
	timeout time.Duration
	logger  *slog.Logger
}

// New creates a client for the backend at baseURL.
func New(baseURL string, opts Options) *Client {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	timeout := opts.RequestTimeout
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}

	var rc *resty.Client
	if opts.HTTPClient != nil {
		rc = resty.NewWithClient(opts.HTTPClient)
	} else {
		rc = resty.New()
	}
	rc.SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetHeader("User-Agent", userAgent)
	if opts.Token != "" {
		rc.SetAuthToken(opts.Token)
	}

	return &Client{
		http:    rc,
		timeout: timeout,
		logger:  logger.With("component", "client"),
	}
}

// summaryJSON is one entry of GET /api/conversations.
type summaryJSON struct {
	ID           string `json:"id"`
	CreatedAt    string `json:"created_at"`
	Title        string `json:"title"`
	MessageCount int    `json:"message_count"`
}

// messageJSON is a stored message as the backend returns it.
type messageJSON struct {
	Role     string          `json:"role"`
	Content  string          `json:"content"`
	Stage1   json.RawMessage `json:"stage1"`
	Stage2   json.RawMessage `json:"stage2"`
	Stage3   json.RawMessage `json:"stage3"`
	Metadata json.RawMessage `json:"metadata"`
}

// conversationJSON is a full conversation as the backend returns it.
type conversationJSON struct {
	ID        string        `json:"id"`
	CreatedAt string        `json:"created_at"`
	Title     string        `json:"title"`
	Messages  []messageJSON `json:"messages"`
}

// errorJSON covers the error bodies the backend produces.
type errorJSON struct {
	Detail string `json:"detail"`
	Error  string `json:"error"`
}

// ListConversations returns the summaries of all conversations.
func (c *Client) ListConversations(ctx context.Context) ([]summaries.Summary, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var body []summaryJSON
	resp, err := c.http.R().
		SetContext(ctx).
		SetResult(&body).
		Get("/api/conversations")
	if err != nil {
		return nil, fmt.Errorf("listing conversations: %w", err)
	}
	if resp.IsError() {
		return nil, statusError(resp.StatusCode(), resp.Body())
	}

	out := make([]summaries.Summary, 0, len(body))
	for _, s := range body {
		out = append(out, summaries.Summary{
			ID:           s.ID,
			CreatedAt:    parseTimestamp(s.CreatedAt),
			Title:        s.Title,
			MessageCount: s.MessageCount,
		})
	}
	return out, nil
}

// GetConversation fetches one conversation with its messages.
func (c *Client) GetConversation(ctx context.Context, id string) (transcript.Conversation, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var body conversationJSON
	resp, err := c.http.R().
		SetContext(ctx).
		SetPathParam("id", id).
		SetResult(&body).
		Get("/api/conversations/{id}")
	if err != nil {
		return transcript.Conversation{}, fmt.Errorf("fetching conversation: %w", err)
	}
	if resp.StatusCode() == http.StatusNotFound {
		return transcript.Conversation{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if resp.IsError() {
		return transcript.Conversation{}, statusError(resp.StatusCode(), resp.Body())
	}
	return body.toConversation(), nil
}

// CreateConversation creates an empty conversation.
func (c *Client) CreateConversation(ctx context.Context) (transcript.Conversation, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var body conversationJSON
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(map[string]any{}).
		SetResult(&body).
		Post("/api/conversations")
	if err != nil {
		return transcript.Conversation{}, fmt.Errorf("creating conversation: %w", err)
	}
	if resp.IsError() {
		return transcript.Conversation{}, statusError(resp.StatusCode(), resp.Body())
	}
	return body.toConversation(), nil
}

// StreamMessage sends content to a conversation and calls sink for every
// event of the resulting turn, in delivery order. It returns nil once a
// terminal event has been delivered. Any earlier failure, including the
// stream closing early, is returned as an error.
func (c *Client) StreamMessage(ctx context.Context, conversationID, content string, sink func(turn.Event)) error {
	resp, err := c.http.R().
		SetContext(ctx).
		SetPathParam("id", conversationID).
		SetHeader("Accept", "text/event-stream").
		SetBody(map[string]string{"content": content}).
		SetDoNotParseResponse(true).
		Post("/api/conversations/{id}/message/stream")
	if err != nil {
		return fmt.Errorf("sending message: %w", err)
	}
	body := resp.RawBody()
	defer body.Close()

	if resp.IsError() {
		msg, _ := io.ReadAll(io.LimitReader(body, maxErrorBody))
		return statusError(resp.StatusCode(), msg)
	}

	delivered := 0
	terminal := false
	err = readFrames(ctx, body, func(f frame) error {
		ev, err := turn.Decode(f.event, []byte(f.data))
		if err != nil {
			return err
		}
		delivered++
		sink(ev)
		if turn.IsTerminal(ev) {
			terminal = true
			return errStop
		}
		return nil
	})
	if errors.Is(err, errStop) {
		err = nil
	}
	if err != nil {
		return fmt.Errorf("reading stream: %w", err)
	}
	if !terminal {
		c.logger.Warn("stream closed without terminal event",
			"conversation_id", conversationID,
			"events", delivered)
		return ErrStreamTruncated
	}

	c.logger.Debug("stream finished",
		"conversation_id", conversationID,
		"events", delivered)
	return nil
}

func (cj conversationJSON) toConversation() transcript.Conversation {
	conv := transcript.Conversation{
		ID:        cj.ID,
		CreatedAt: parseTimestamp(cj.CreatedAt),
		Title:     cj.Title,
		Messages:  make([]transcript.Message, 0, len(cj.Messages)),
	}
	for _, m := range cj.Messages {
		conv.Messages = append(conv.Messages, transcript.Message{
			ID:       uuid.New().String(),
			Role:     transcript.Role(m.Role),
			Content:  m.Content,
			Stage1:   nullToUnset(m.Stage1),
			Stage2:   nullToUnset(m.Stage2),
			Stage3:   nullToUnset(m.Stage3),
			Metadata: nullToUnset(m.Metadata),
		})
	}
	return conv
}

// nullToUnset maps an explicit JSON null to an unset stage.
func nullToUnset(raw json.RawMessage) json.RawMessage {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	return raw
}

// timestampLayouts covers RFC 3339 and the zone-less ISO form Python emits.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
}

// parseTimestamp returns the zero time for values it cannot parse.
func parseTimestamp(s string) time.Time {
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}

func statusError(code int, body []byte) error {
	var ej errorJSON
	msg := ""
	if err := json.Unmarshal(body, &ej); err == nil {
		msg = ej.Detail
		if msg == "" {
			msg = ej.Error
		}
	}
	return &StatusError{StatusCode: code, Message: msg}
}
