// ABOUTME: Turn recorder that writes every turn's lifecycle into the ledger
// ABOUTME: Saves run on a writer goroutine with their own timeout; failures never affect the turn

package conversation

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/2389/council-chat/internal/store"
	"github.com/2389/council-chat/internal/turn"
)

const (
	ledgerSaveTimeout = 5 * time.Second
	authorUser        = "user"
	authorCouncil     = "council"
)

// ledgerRecorder implements turn.Recorder for one turn. The hooks only queue
// events; a single writer goroutine saves them in order, so a slow ledger
// never holds up the event stream.
type ledgerRecorder struct {
	ledger         store.Ledger
	conversationID string
	logger         *slog.Logger
	now            func() time.Time

	mu      sync.Mutex
	pending []*store.LedgerEvent
	closed  bool
	wake    chan struct{}
	done    chan struct{}
}

func newLedgerRecorder(ledger store.Ledger, conversationID string, logger *slog.Logger) *ledgerRecorder {
	r := &ledgerRecorder{
		ledger:         ledger,
		conversationID: conversationID,
		logger:         logger,
		now:            time.Now,
		wake:           make(chan struct{}, 1),
		done:           make(chan struct{}),
	}
	go r.run()
	return r
}

// close stops accepting events and waits until every queued event is saved.
func (r *ledgerRecorder) close() {
	r.mu.Lock()
	if !r.closed {
		r.closed = true
		r.signal()
	}
	r.mu.Unlock()
	<-r.done
}

func (r *ledgerRecorder) signal() {
	select {
	case r.wake <- struct{}{}:
	default:
	}
}

func (r *ledgerRecorder) run() {
	defer close(r.done)
	for range r.wake {
		r.mu.Lock()
		batch := r.pending
		r.pending = nil
		closed := r.closed
		r.mu.Unlock()

		for _, event := range batch {
			r.write(event)
		}
		if closed {
			return
		}
	}
}

func (r *ledgerRecorder) TurnStarted(info turn.Info) {
	content := info.Content
	r.save(&store.LedgerEvent{
		TurnID:    info.TurnID,
		Direction: store.EventDirectionOutbound,
		Author:    authorUser,
		Type:      store.EventTypeTurnStarted,
		Name:      "send",
		Text:      &content,
	})
}

func (r *ledgerRecorder) EventApplied(turnID string, ev turn.Event) {
	event := &store.LedgerEvent{
		TurnID:    turnID,
		Direction: store.EventDirectionInbound,
		Author:    authorCouncil,
		Type:      store.EventTypeStage,
		Name:      ev.Name(),
	}

	switch e := ev.(type) {
	case turn.Stage1Complete:
		event.Payload = rawPayload(e.Data)
	case turn.Stage2Complete:
		event.Payload = marshalPayload(r.logger, map[string]json.RawMessage{
			"data":     e.Data,
			"metadata": e.Metadata,
		})
	case turn.Stage3Complete:
		event.Payload = rawPayload(e.Data)
	case turn.TitleComplete:
		title := e.Title
		event.Type = store.EventTypeTitle
		event.Text = &title
	case turn.Error:
		msg := e.Message
		event.Type = store.EventTypeError
		event.Text = &msg
	}

	r.save(event)
}

func (r *ledgerRecorder) TurnFinished(res turn.Result) {
	event := &store.LedgerEvent{
		TurnID:    res.TurnID,
		Direction: store.EventDirectionInbound,
		Author:    authorCouncil,
		Type:      store.EventTypeTurnFinished,
		Name:      res.State.String(),
	}
	if res.Err != "" {
		msg := res.Err
		event.Text = &msg
	}
	r.save(event)
}

// save stamps the event and queues it for the writer.
func (r *ledgerRecorder) save(event *store.LedgerEvent) {
	event.ID = uuid.New().String()
	event.ConversationKey = r.conversationID
	event.Timestamp = r.now()

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		r.logger.Warn("turn event after ledger close dropped", "turn_id", event.TurnID, "name", event.Name)
		return
	}
	r.pending = append(r.pending, event)
	r.signal()
}

func (r *ledgerRecorder) write(event *store.LedgerEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), ledgerSaveTimeout)
	defer cancel()

	if err := r.ledger.SaveEvent(ctx, event); err != nil {
		r.logger.Error("failed to record turn event",
			"error", err,
			"turn_id", event.TurnID,
			"name", event.Name)
	}
}

func rawPayload(raw json.RawMessage) *string {
	if len(raw) == 0 {
		return nil
	}
	s := string(raw)
	return &s
}

func marshalPayload(logger *slog.Logger, v any) *string {
	b, err := json.Marshal(v)
	if err != nil {
		logger.Warn("failed to encode ledger payload", "error", err)
		return nil
	}
	s := string(b)
	return &s
}
