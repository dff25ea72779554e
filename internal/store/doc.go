// Package store provides the turn ledger for council-chat using SQLite.
//
// # Architecture
//
// The Ledger interface records the history of every assistant turn:
//
//   - SQLiteStore: persistent implementation on modernc.org/sqlite
//   - MockStore: in-memory implementation for tests
//
// # Data Model
//
// A LedgerEvent is one row. A turn writes a turn_started row carrying the
// user's content, one row per applied backend event (stage payloads are
// kept as raw JSON), and a turn_finished or error row with the outcome.
// Rows are keyed by conversation and by turn.
//
// # SQLite Configuration
//
// The store uses SQLite with WAL mode for concurrent reads:
//
//	PRAGMA journal_mode=WAL;
//	PRAGMA busy_timeout=5000;
//
// Timestamps are stored as fixed-width UTC text so they order correctly.
//
// # Queries
//
//   - ListEventsByConversation: latest rows of a conversation, e.g. its turn starts
//   - ListEventsByTurn: every row of one turn in save order
//   - GetEvents: cursor-paginated walk over a conversation, oldest first
//
// All methods accept context.Context for cancellation support.
//
// # Testing
//
// Use NewMockStore() for unit tests, or NewSQLiteStore with a path under
// t.TempDir() for integration tests with real SQLite.
package store
