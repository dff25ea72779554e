// Package conversation manages the open conversation and its assistant turns.
//
// # Overview
//
// The conversation package sits between the terminal client and the backend
// client. It owns the current Session, starts turns on it, and fans the
// resulting transcript snapshots out to views.
//
// # Service
//
//	svc := conversation.New(backend, conversation.Options{
//		Cache:       cache,
//		Ledger:      ledger,
//		Broadcaster: broadcaster,
//	})
//
// Key operations:
//
//   - Select(ctx, id): load a conversation and make it current
//   - Create(ctx): create a conversation, prepend it to the list, make it current
//   - Send(ctx, content): run one assistant turn on the current session
//   - History(ctx, limit, cursor): page through the ledger of the current conversation
//   - Turns(ctx, limit): the latest recorded turns of the current conversation
//   - TurnEvents(ctx, turnID): every recorded row of one turn
//
// # Sessions
//
// A Session pairs one conversation's transcript store with a turn slot.
// Only one turn may be open per session; a second Send fails with
// ErrTurnInFlight. Switching conversations swaps the current session
// atomically. A turn still streaming on the old session keeps mutating the
// old session's store, which nothing displays anymore, and never touches
// the new one.
//
// # Turn Lifecycle
//
//  1. Mark the conversation list stale
//  2. Append the user message and assistant placeholder
//  3. Stream the backend's events into the turn machine
//  4. On complete or title_complete, reload the conversation list
//  5. On error or transport failure, remove the two entries
//
// # Broadcasting
//
// Every snapshot the current session's store swaps in is published to
// subscribers of that conversation ID. Snapshots of an abandoned session are
// not published. Slow subscribers lose intermediate snapshots but always
// receive the latest.
//
// # Ledger
//
// When a ledger is configured, each turn's start, applied events and
// outcome are queued to a writer goroutine, so a slow ledger never delays the
// event stream. Send returns once the turn's rows are written. Save failures
// are logged and never fail the turn.
package conversation
