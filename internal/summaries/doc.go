// Package summaries caches the conversation list shown next to the open
// conversation.
//
// The cache is a projection of the backend's list, never the source of truth.
// It goes stale as soon as a turn starts and is reloaded in full when a turn
// announces a title or completes:
//
//	list := summaries.New(backend, 10*time.Second, logger)
//	list.RequestRefresh("complete")
//
// Overlapping reloads share one backend request.
package summaries
