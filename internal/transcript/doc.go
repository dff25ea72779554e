// Package transcript holds the in-memory transcript of the currently open
// conversation.
//
// # Data Model
//
//   - Conversation: identifier, creation time, title and ordered messages
//   - Message: a user message (immutable) or an assistant message whose three
//     stage payloads, metadata and loading flags fill in while its turn runs
//
// Stage payloads are kept as raw JSON. The transcript never interprets them;
// see package council for typed views.
//
// # Store
//
// Store is the single source of truth for one conversation. Every mutation
// derives a new Snapshot from the previous one and swaps it in atomically, so
// a reader holding a Snapshot never sees a half-applied change:
//
//	st := transcript.NewStore(conv, nil)
//	snap, err := st.Append(user, placeholder)
//	snap, err = st.MutateLast(func(m Message) Message { ... })
//	snap, err = st.RemoveLast(2)
//
// Writers are serialized. Readers call Snapshot() and never block.
package transcript
