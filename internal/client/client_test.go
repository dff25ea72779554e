// ABOUTME: Tests for the backend HTTP client against an httptest server
// ABOUTME: Covers list/get/create, error bodies, auth header, and full, failed and truncated turn streams

package client

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/council-chat/internal/transcript"
	"github.com/2389/council-chat/internal/turn"
)

// newTestServer serves mux and returns a client pointed at it.
func newTestServer(t *testing.T, mux *http.ServeMux, opts Options) *Client {
	t.Helper()

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	return New(srv.URL, opts)
}

// writeFrames writes each payload as a data-only SSE frame.
func writeFrames(w http.ResponseWriter, payloads ...string) {
	w.Header().Set("Content-Type", "text/event-stream")
	flusher, _ := w.(http.Flusher)
	for _, p := range payloads {
		fmt.Fprintf(w, "data: %s\n\n", p)
		if flusher != nil {
			flusher.Flush()
		}
	}
}

func TestListConversations(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/conversations", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[
			{"id":"c1","created_at":"2025-11-02T10:15:30.123456","title":"Tea","message_count":2},
			{"id":"c2","created_at":"2025-11-03T08:00:00Z","title":"New Conversation","message_count":0}
		]`))
	})
	c := newTestServer(t, mux, Options{})

	got, err := c.ListConversations(t.Context())
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, "c1", got[0].ID)
	assert.Equal(t, "Tea", got[0].Title)
	assert.Equal(t, 2, got[0].MessageCount)
	assert.Equal(t, time.Date(2025, 11, 2, 10, 15, 30, 123456000, time.UTC), got[0].CreatedAt)
	assert.Equal(t, 2025, got[1].CreatedAt.Year())
}

func TestGetConversation(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/conversations/{id}", func(w http.ResponseWriter, r *http.Request) {
		if r.PathValue("id") != "c1" {
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"detail":"Conversation not found"}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id":"c1","created_at":"2025-11-02T10:15:30","title":"Tea",
			"messages":[
				{"role":"user","content":"Tea or coffee?"},
				{"role":"assistant","stage1":[{"model":"a","response":"Tea"}],"stage2":null,"stage3":{"model":"chair","response":"Tea."}}
			]
		}`))
	})
	c := newTestServer(t, mux, Options{})

	conv, err := c.GetConversation(t.Context(), "c1")
	require.NoError(t, err)
	assert.Equal(t, "Tea", conv.Title)
	require.Len(t, conv.Messages, 2)

	user := conv.Messages[0]
	assert.Equal(t, transcript.RoleUser, user.Role)
	assert.Equal(t, "Tea or coffee?", user.Content)
	assert.NotEmpty(t, user.ID)

	asst := conv.Messages[1]
	assert.True(t, asst.IsAssistant())
	assert.True(t, asst.HasStage(1))
	assert.False(t, asst.HasStage(2))
	assert.True(t, asst.HasStage(3))
	assert.NotEqual(t, user.ID, asst.ID)
	assert.False(t, asst.Loading.Any())

	_, err = c.GetConversation(t.Context(), "missing")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestCreateConversation(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/conversations", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"new-1","created_at":"2025-11-04T09:00:00","title":"New Conversation","messages":[]}`))
	})
	c := newTestServer(t, mux, Options{})

	conv, err := c.CreateConversation(t.Context())
	require.NoError(t, err)
	assert.Equal(t, "new-1", conv.ID)
	assert.Equal(t, "New Conversation", conv.Title)
	assert.Empty(t, conv.Messages)
}

func TestStatusErrorCarriesDetail(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/conversations", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"detail":"storage offline"}`))
	})
	c := newTestServer(t, mux, Options{})

	_, err := c.ListConversations(t.Context())
	require.Error(t, err)

	var se *StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusInternalServerError, se.StatusCode)
	assert.Equal(t, "storage offline", se.Message)
	assert.Contains(t, err.Error(), "storage offline")
}

func TestBearerToken(t *testing.T) {
	var gotAuth string
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/conversations", func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[]`))
	})
	c := newTestServer(t, mux, Options{Token: "secret-token"})

	got, err := c.ListConversations(t.Context())
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.Equal(t, "Bearer secret-token", gotAuth)
}

func TestStreamMessage_FullTurn(t *testing.T) {
	var gotBody map[string]string
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/conversations/{id}/message/stream", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		writeFrames(w,
			`{"type":"stage1_start"}`,
			`{"type":"stage1_complete","data":[{"model":"a","response":"Tea"}]}`,
			`{"type":"stage2_start"}`,
			`{"type":"stage2_complete","data":[],"metadata":{"label_to_model":{}}}`,
			`{"type":"stage3_start"}`,
			`{"type":"stage3_complete","data":{"model":"chair","response":"Tea."}}`,
			`{"type":"title_complete","data":{"title":"Tea vs coffee"}}`,
			`{"type":"complete"}`,
		)
	})
	c := newTestServer(t, mux, Options{})

	var names []string
	err := c.StreamMessage(t.Context(), "c1", "Tea or coffee?", func(ev turn.Event) {
		names = append(names, ev.Name())
	})
	require.NoError(t, err)
	assert.Equal(t, "Tea or coffee?", gotBody["content"])
	assert.Equal(t, []string{
		turn.NameStage1Start, turn.NameStage1Complete,
		turn.NameStage2Start, turn.NameStage2Complete,
		turn.NameStage3Start, turn.NameStage3Complete,
		turn.NameTitleComplete, turn.NameComplete,
	}, names)
}

func TestStreamMessage_StopsAtTerminalEvent(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/conversations/{id}/message/stream", func(w http.ResponseWriter, r *http.Request) {
		writeFrames(w,
			`{"type":"stage1_start"}`,
			`{"type":"error","message":"all models failed"}`,
			`{"type":"stage2_start"}`,
		)
	})
	c := newTestServer(t, mux, Options{})

	var events []turn.Event
	err := c.StreamMessage(t.Context(), "c1", "hi", func(ev turn.Event) {
		events = append(events, ev)
	})
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, turn.Error{Message: "all models failed"}, events[1])
}

func TestStreamMessage_Truncated(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/conversations/{id}/message/stream", func(w http.ResponseWriter, r *http.Request) {
		writeFrames(w, `{"type":"stage1_start"}`)
	})
	c := newTestServer(t, mux, Options{})

	delivered := 0
	err := c.StreamMessage(t.Context(), "c1", "hi", func(turn.Event) { delivered++ })
	assert.ErrorIs(t, err, ErrStreamTruncated)
	assert.Equal(t, 1, delivered)
}

func TestStreamMessage_MalformedFrame(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/conversations/{id}/message/stream", func(w http.ResponseWriter, r *http.Request) {
		writeFrames(w, `{"type":"stage1_start"}`, `{not json`)
	})
	c := newTestServer(t, mux, Options{})

	err := c.StreamMessage(t.Context(), "c1", "hi", func(turn.Event) {})
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrStreamTruncated)
	assert.Contains(t, err.Error(), "reading stream")
}

func TestStreamMessage_UnknownNonJSONEventIgnored(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/conversations/{id}/message/stream", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: {\"type\":\"stage1_start\"}\n\n")
		fmt.Fprint(w, "event: ping\ndata: keepalive\n\n")
		fmt.Fprint(w, "data: {\"type\":\"complete\"}\n\n")
	})
	c := newTestServer(t, mux, Options{})

	var names []string
	err := c.StreamMessage(t.Context(), "c1", "hi", func(ev turn.Event) {
		names = append(names, ev.Name())
	})
	require.NoError(t, err)
	assert.Equal(t, []string{turn.NameStage1Start, "ping", turn.NameComplete}, names)
}

func TestStreamMessage_HTTPError(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/conversations/{id}/message/stream", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"detail":"Conversation not found"}`))
	})
	c := newTestServer(t, mux, Options{})

	called := false
	err := c.StreamMessage(t.Context(), "gone", "hi", func(turn.Event) { called = true })
	require.Error(t, err)
	assert.False(t, called)

	var se *StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, "Conversation not found", se.Message)
}
