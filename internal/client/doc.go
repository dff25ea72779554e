// Package client talks to the council backend over HTTP.
//
// # Overview
//
// Client is the transport collaborator of the chat core. It performs the
// conversation request/response calls and delivers the event stream of one
// assistant turn to a sink, in delivery order.
//
// # Endpoints
//
//   - GET  /api/conversations: conversation summaries
//   - POST /api/conversations: create a conversation
//   - GET  /api/conversations/{id}: one conversation with its messages
//   - POST /api/conversations/{id}/message/stream: send a message, stream the turn
//
// # Event Stream
//
// The stream endpoint answers with Server-Sent Events. Each frame's JSON body
// carries a "type" field naming the event; an "event:" line, when present,
// takes precedence:
//
//	data: {"type": "stage1_start"}
//
//	data: {"type": "stage1_complete", "data": [...]}
//
// Frames are decoded into turn events (see package turn). The stream ends at
// the first complete or error event. A stream that closes before either is
// reported as ErrStreamTruncated.
//
// # Authentication
//
// When a token is configured it is sent as a bearer token on every request.
//
// # Usage
//
//	c := client.New("http://localhost:8001", client.Options{Token: token})
//	err := c.StreamMessage(ctx, convID, "hello", machine.Handle)
package client
