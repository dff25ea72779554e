// ABOUTME: Conversation service owning the open conversation and starting assistant turns
// ABOUTME: Switches sessions atomically, enforces one turn per session, and wires cache, ledger and views

package conversation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/2389/council-chat/internal/store"
	"github.com/2389/council-chat/internal/summaries"
	"github.com/2389/council-chat/internal/transcript"
	"github.com/2389/council-chat/internal/turn"
)

var (
	// ErrNoConversation is returned when no conversation is open.
	ErrNoConversation = errors.New("no conversation selected")
	// ErrTurnInFlight is returned when a turn is already open on the session.
	ErrTurnInFlight = errors.New("a turn is already in progress")
	// ErrEmptyContent is returned for blank messages.
	ErrEmptyContent = errors.New("message content is empty")
	// ErrStreamEnded is used when the backend returns without a terminal event.
	ErrStreamEnded = errors.New("stream ended without a terminal event")
	// ErrNoLedger is returned by History when no ledger is configured.
	ErrNoLedger = errors.New("no ledger configured")
)

// Backend defines what the service needs from the council backend
type Backend interface {
	GetConversation(ctx context.Context, id string) (transcript.Conversation, error)
	CreateConversation(ctx context.Context) (transcript.Conversation, error)
	StreamMessage(ctx context.Context, conversationID, content string, sink func(turn.Event)) error
}

// Session is one opened conversation: its transcript store and turn slot.
type Session struct {
	store *transcript.Store

	mu     sync.Mutex
	busy   bool
	active *turn.Machine
}

// ID returns the conversation ID.
func (s *Session) ID() string {
	return s.store.Snapshot().ConversationID
}

// Snapshot returns the current transcript.
func (s *Session) Snapshot() *transcript.Snapshot {
	return s.store.Snapshot()
}

// ActiveTurn returns the open turn's machine, or nil.
func (s *Session) ActiveTurn() *turn.Machine {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// claim reserves the turn slot.
func (s *Session) claim() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.busy {
		return false
	}
	s.busy = true
	return true
}

func (s *Session) setActive(m *turn.Machine) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.active = m
}

func (s *Session) release() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.busy = false
	s.active = nil
}

// Options configures a Service. All fields are optional.
type Options struct {
	Cache       *summaries.Cache
	Ledger      store.Ledger
	Broadcaster *Broadcaster
	Logger      *slog.Logger
}

// Service is the conversation layer: it holds the current session and runs
// turns against the backend.
type Service struct {
	backend     Backend
	cache       *summaries.Cache
	ledger      store.Ledger
	broadcaster *Broadcaster
	logger      *slog.Logger

	current atomic.Pointer[Session]
}

// New creates a new conversation Service
func New(backend Backend, opts Options) *Service {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		backend:     backend,
		cache:       opts.Cache,
		ledger:      opts.Ledger,
		broadcaster: opts.Broadcaster,
		logger:      logger.With("component", "conversation"),
	}
}

// Current returns the open session, or nil.
func (s *Service) Current() *Session {
	return s.current.Load()
}

// Select loads a conversation and makes it current. A turn still streaming
// on the previous session keeps applying to that session only.
func (s *Service) Select(ctx context.Context, id string) (*Session, error) {
	conv, err := s.backend.GetConversation(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("loading conversation: %w", err)
	}
	return s.open(conv), nil
}

// Create makes a new conversation, puts it at the top of the list and makes it current.
func (s *Service) Create(ctx context.Context) (*Session, error) {
	conv, err := s.backend.CreateConversation(ctx)
	if err != nil {
		return nil, fmt.Errorf("creating conversation: %w", err)
	}
	if s.cache != nil {
		s.cache.Prepend(summaries.Summary{
			ID:           conv.ID,
			CreatedAt:    conv.CreatedAt,
			Title:        conv.Title,
			MessageCount: len(conv.Messages),
		})
	}
	return s.open(conv), nil
}

func (s *Service) open(conv transcript.Conversation) *Session {
	sess := &Session{}
	// Views only follow the current session; an abandoned turn stays invisible.
	sess.store = transcript.NewStore(conv, func(snap *transcript.Snapshot) {
		if s.broadcaster != nil && s.current.Load() == sess {
			s.broadcaster.Publish(snap)
		}
	})

	prev := s.current.Swap(sess)
	if prev != nil && prev.ActiveTurn() != nil {
		s.logger.Info("switched away from conversation with a turn in progress",
			"conversation_id", prev.ID())
	}
	s.logger.Debug("conversation opened",
		"conversation_id", conv.ID,
		"messages", len(conv.Messages))

	if s.broadcaster != nil {
		s.broadcaster.Publish(sess.Snapshot())
	}
	return sess
}

// Send runs one assistant turn for content on the current session and
// returns its outcome. The user message and assistant placeholder appear in
// the transcript before the backend is contacted. A backend error event is
// reported through the result; a transport failure is also returned as an
// error. Both roll the two entries back.
func (s *Service) Send(ctx context.Context, content string) (turn.Result, error) {
	sess := s.current.Load()
	if sess == nil {
		return turn.Result{}, ErrNoConversation
	}
	if strings.TrimSpace(content) == "" {
		return turn.Result{}, ErrEmptyContent
	}
	if !sess.claim() {
		return turn.Result{}, ErrTurnInFlight
	}
	defer sess.release()

	convID := sess.ID()
	opts := turn.Options{Logger: s.logger}
	if s.cache != nil {
		s.cache.MarkStale()
		opts.Refresher = s.cache
	}
	if s.ledger != nil {
		rec := newLedgerRecorder(s.ledger, convID, s.logger)
		defer rec.close()
		opts.Recorder = rec
	}

	m, err := turn.Start(sess.store, content, opts)
	if err != nil {
		return turn.Result{}, fmt.Errorf("starting turn: %w", err)
	}
	sess.setActive(m)

	streamErr := s.backend.StreamMessage(ctx, convID, content, m.Handle)
	if streamErr != nil {
		m.Fail(streamErr)
	} else if !m.State().Terminal() {
		m.Fail(ErrStreamEnded)
	}

	res := m.Result()
	s.logger.Info("turn finished",
		"conversation_id", convID,
		"turn_id", res.TurnID,
		"state", res.State)

	if streamErr != nil {
		return res, fmt.Errorf("streaming turn: %w", streamErr)
	}
	return res, nil
}

// History returns a page of the ledger for the current conversation.
func (s *Service) History(ctx context.Context, limit int, cursor string) (*store.GetEventsResult, error) {
	if s.ledger == nil {
		return nil, ErrNoLedger
	}
	sess := s.current.Load()
	if sess == nil {
		return nil, ErrNoConversation
	}
	res, err := s.ledger.GetEvents(ctx, store.GetEventsParams{
		ConversationKey: sess.ID(),
		Limit:           limit,
		Cursor:          cursor,
	})
	if err != nil {
		return nil, fmt.Errorf("reading history: %w", err)
	}
	return res, nil
}

// Turns returns the start rows of the latest limit turns recorded for the
// current conversation, oldest first.
func (s *Service) Turns(ctx context.Context, limit int) ([]*store.LedgerEvent, error) {
	if s.ledger == nil {
		return nil, ErrNoLedger
	}
	sess := s.current.Load()
	if sess == nil {
		return nil, ErrNoConversation
	}
	starts, err := s.ledger.ListEventsByConversation(ctx, sess.ID(), store.EventTypeTurnStarted, limit)
	if err != nil {
		return nil, fmt.Errorf("listing turns: %w", err)
	}
	return starts, nil
}

// TurnEvents returns every recorded row of one turn in the order it was saved.
func (s *Service) TurnEvents(ctx context.Context, turnID string) ([]*store.LedgerEvent, error) {
	if s.ledger == nil {
		return nil, ErrNoLedger
	}
	events, err := s.ledger.ListEventsByTurn(ctx, turnID)
	if err != nil {
		return nil, fmt.Errorf("reading turn %s: %w", turnID, err)
	}
	return events, nil
}
