// ABOUTME: State machine applying one assistant turn's event stream to the transcript
// ABOUTME: Appends optimistic entries, fills stages in delivery order, rolls back on failure

package turn

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/2389/council-chat/internal/transcript"
)

// ErrTargetMoved is reported when the turn's assistant entry is no longer the
// last message of the transcript.
var ErrTargetMoved = errors.New("assistant entry is no longer last")

// State is the progress of a turn. It records the last applied event; stage
// order is whatever the transport delivered.
type State int

const (
	StateIdle State = iota
	StateStarted
	StateStage1Active
	StateStage1Done
	StateStage2Active
	StateStage2Done
	StateStage3Active
	StateStage3Done
	StateCompleted
	StateErrored
)

var stateNames = [...]string{
	StateIdle:         "idle",
	StateStarted:      "started",
	StateStage1Active: "stage1_active",
	StateStage1Done:   "stage1_done",
	StateStage2Active: "stage2_active",
	StateStage2Done:   "stage2_done",
	StateStage3Active: "stage3_active",
	StateStage3Done:   "stage3_done",
	StateCompleted:    "completed",
	StateErrored:      "errored",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("state(%d)", int(s))
	}
	return stateNames[s]
}

// Terminal reports whether no further event can change the turn.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateErrored
}

// Refresher is signalled when the conversation list should be reloaded.
type Refresher interface {
	RequestRefresh(reason string)
}

// Info describes a turn at the moment it started.
type Info struct {
	TurnID         string
	ConversationID string
	Content        string
	UserID         string
	AssistantID    string
}

// Result is the outcome of a turn.
type Result struct {
	TurnID    string
	State     State
	Err       string             // backend or transport failure reason, Errored only
	Assistant transcript.Message // final assistant entry, Completed only
}

// Recorder observes a turn's lifecycle, e.g. to keep an audit ledger.
type Recorder interface {
	TurnStarted(info Info)
	EventApplied(turnID string, ev Event)
	TurnFinished(res Result)
}

// Options configures a Machine. All fields are optional.
type Options struct {
	Refresher Refresher
	Recorder  Recorder
	Logger    *slog.Logger
}

// Machine drives one turn. Handle is the event sink given to the transport.
type Machine struct {
	info      Info
	store     *transcript.Store
	refresher Refresher
	recorder  Recorder
	logger    *slog.Logger

	mu     sync.Mutex
	state  State
	result Result
	done   chan struct{}
}

// Start opens a turn on st: it appends the user message and the assistant
// placeholder as the final two entries and returns the machine that will
// apply the turn's events.
func Start(st *transcript.Store, content string, opts Options) (*Machine, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	user := transcript.NewUserMessage(content)
	placeholder := transcript.NewAssistantPlaceholder()
	snap, err := st.Append(user, placeholder)
	if err != nil {
		return nil, fmt.Errorf("appending turn entries: %w", err)
	}

	info := Info{
		TurnID:         uuid.New().String(),
		ConversationID: snap.ConversationID,
		Content:        content,
		UserID:         user.ID,
		AssistantID:    placeholder.ID,
	}
	m := &Machine{
		info:      info,
		store:     st,
		refresher: opts.Refresher,
		recorder:  opts.Recorder,
		logger:    logger.With("component", "turn", "turn_id", info.TurnID, "conversation_id", info.ConversationID),
		state:     StateStarted,
		done:      make(chan struct{}),
	}

	m.logger.Debug("turn started", "messages", snap.Len())
	if m.recorder != nil {
		m.recorder.TurnStarted(info)
	}
	return m, nil
}

// Info returns the identifiers captured when the turn started.
func (m *Machine) Info() Info {
	return m.info
}

// State returns the current state.
func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Done is closed once the turn reaches a terminal state.
func (m *Machine) Done() <-chan struct{} {
	return m.done
}

// Result returns the turn outcome. It is only complete after Done is closed.
func (m *Machine) Result() Result {
	m.mu.Lock()
	defer m.mu.Unlock()
	r := m.result
	r.TurnID = m.info.TurnID
	r.State = m.state
	return r
}

// Handle applies one event. Events are applied strictly in the order Handle
// is called; events arriving after a terminal state are ignored.
func (m *Machine) Handle(ev Event) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state.Terminal() {
		m.logger.Warn("event after terminal state ignored", "event", ev.Name(), "state", m.state)
		return
	}

	switch e := ev.(type) {
	case Stage1Start:
		m.mutate(ev, StateStage1Active, func(msg *transcript.Message) {
			msg.Loading.Stage1 = true
		})
	case Stage1Complete:
		m.mutate(ev, StateStage1Done, func(msg *transcript.Message) {
			if present(e.Data) {
				msg.Stage1 = e.Data
			}
			msg.Loading.Stage1 = false
		})
	case Stage2Start:
		m.mutate(ev, StateStage2Active, func(msg *transcript.Message) {
			msg.Loading.Stage2 = true
		})
	case Stage2Complete:
		m.mutate(ev, StateStage2Done, func(msg *transcript.Message) {
			if present(e.Data) {
				msg.Stage2 = e.Data
			}
			if present(e.Metadata) {
				msg.Metadata = e.Metadata
			}
			msg.Loading.Stage2 = false
		})
	case Stage3Start:
		m.mutate(ev, StateStage3Active, func(msg *transcript.Message) {
			msg.Loading.Stage3 = true
		})
	case Stage3Complete:
		m.mutate(ev, StateStage3Done, func(msg *transcript.Message) {
			if present(e.Data) {
				msg.Stage3 = e.Data
			}
			msg.Loading.Stage3 = false
		})
	case TitleComplete:
		if e.Title != "" {
			if _, err := m.store.SetTitle(e.Title); err != nil {
				m.logger.Error("failed to record title", "error", err)
			}
		}
		m.requestRefresh(NameTitleComplete)
	case Complete:
		m.mutate(ev, StateCompleted, func(msg *transcript.Message) {
			msg.Loading = transcript.Loading{}
		})
		// The turn ends even if the assistant entry could not be finalized.
		m.state = StateCompleted
		if last, ok := m.store.Snapshot().Last(); ok && last.ID == m.info.AssistantID {
			m.result.Assistant = last
		}
		m.requestRefresh(NameComplete)
		m.record(ev)
		m.finish()
		return
	case Error:
		m.logger.Error("turn failed", "reason", e.Message)
		m.rollback()
		m.state = StateErrored
		m.result.Err = e.Message
		m.record(ev)
		m.finish()
		return
	default:
		m.logger.Debug("unknown event ignored", "event", ev.Name())
		return
	}

	m.record(ev)
}

// Fail ends the turn because initiating it or reading its stream failed. It
// rolls back exactly like an error event. Fail on a terminal turn is a no-op.
func (m *Machine) Fail(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state.Terminal() {
		return
	}
	m.logger.Error("turn aborted", "error", err)
	m.rollback()
	m.state = StateErrored
	m.result.Err = err.Error()
	m.finish()
}

// mutate applies fn to the turn's assistant entry and advances the state.
// Must be called with mu held.
func (m *Machine) mutate(ev Event, next State, fn func(*transcript.Message)) {
	last, ok := m.store.Snapshot().Last()
	if !ok || last.ID != m.info.AssistantID {
		m.logger.Error("event dropped", "event", ev.Name(), "error", ErrTargetMoved)
		return
	}

	_, err := m.store.MutateLast(func(msg transcript.Message) transcript.Message {
		if msg.ID != m.info.AssistantID {
			return msg
		}
		fn(&msg)
		return msg
	})
	if err != nil {
		m.logger.Error("event dropped", "event", ev.Name(), "error", err)
		return
	}
	m.state = next
}

// rollback removes the two entries this turn appended. Must be called with mu held.
func (m *Machine) rollback() {
	snap := m.store.Snapshot()
	n := snap.Len()
	if n >= 2 && snap.Messages[n-2].ID == m.info.UserID && snap.Messages[n-1].ID == m.info.AssistantID {
		if _, err := m.store.RemoveLast(2); err != nil {
			m.logger.Error("rollback failed", "error", err)
		}
		return
	}

	// The tail moved; remove this turn's entries wherever they are.
	_, removed, err := m.store.Remove(m.info.UserID, m.info.AssistantID)
	if err != nil {
		m.logger.Error("rollback failed", "error", err)
		return
	}
	m.logger.Warn("rolled back turn entries away from the tail", "removed", removed)
}

// present reports whether raw carries a payload. Absent and null payloads
// never overwrite a stage that is already set.
func present(raw []byte) bool {
	raw = bytes.TrimSpace(raw)
	return len(raw) > 0 && !bytes.Equal(raw, []byte("null"))
}

func (m *Machine) record(ev Event) {
	if m.recorder != nil {
		m.recorder.EventApplied(m.info.TurnID, ev)
	}
}

func (m *Machine) requestRefresh(reason string) {
	if m.refresher != nil {
		m.refresher.RequestRefresh(reason)
	}
}

// finish closes Done and notifies the recorder. Must be called with mu held.
func (m *Machine) finish() {
	m.logger.Debug("turn finished", "state", m.state)
	close(m.done)
	if m.recorder != nil {
		res := m.result
		res.TurnID = m.info.TurnID
		res.State = m.state
		m.recorder.TurnFinished(res)
	}
}
