// ABOUTME: Conversation list cache holding lightweight summaries for the sidebar
// ABOUTME: Reloads fully from the backend at turn boundaries; refresh failures are only logged

package summaries

import (
	"context"
	"log/slog"
	"slices"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"
)

// defaultRefreshTimeout bounds a background reload.
const defaultRefreshTimeout = 10 * time.Second

// Summary is the list-view projection of a conversation.
type Summary struct {
	ID           string
	CreatedAt    time.Time
	Title        string
	MessageCount int
}

// Lister is the authoritative source of summaries.
type Lister interface {
	ListConversations(ctx context.Context) ([]Summary, error)
}

// Cache holds the last loaded list of summaries.
type Cache struct {
	lister  Lister
	timeout time.Duration
	logger  *slog.Logger

	items   atomic.Pointer[[]Summary]
	stale   atomic.Bool
	staleAt atomic.Uint64 // loads started at or before this number predate MarkStale
	group   singleflight.Group
	wg      sync.WaitGroup

	loading  chan struct{}  // one backend load at a time
	launched atomic.Uint64 // number of loads started

	mu sync.Mutex // serializes writes to items
}

// New creates an empty cache. A zero timeout uses the default; a nil logger uses slog.Default().
func New(lister Lister, timeout time.Duration, logger *slog.Logger) *Cache {
	if logger == nil {
		logger = slog.Default()
	}
	if timeout <= 0 {
		timeout = defaultRefreshTimeout
	}
	c := &Cache{
		lister:  lister,
		timeout: timeout,
		logger:  logger.With("component", "summaries"),
		loading: make(chan struct{}, 1),
	}
	empty := []Summary{}
	c.items.Store(&empty)
	return c
}

// List returns the cached summaries. The slice must not be modified.
func (c *Cache) List() []Summary {
	return *c.items.Load()
}

// Stale reports whether a turn has started since the last successful reload.
func (c *Cache) Stale() bool {
	return c.stale.Load()
}

// MarkStale flags the cached counts as out of date. Only a reload started
// after this call clears the flag.
func (c *Cache) MarkStale() {
	c.staleAt.Store(c.launched.Load())
	c.stale.Store(true)
}

// Refresh reloads the list and waits for the result. The reload it waits for
// always starts after Refresh is called: callers arriving while a load is in
// flight share the next load instead of joining the current one. On failure
// the previous list is kept.
func (c *Cache) Refresh(ctx context.Context) error {
	next := c.launched.Load() + 1
	ch := c.group.DoChan(strconv.FormatUint(next, 10), func() (any, error) {
		return nil, c.load(ctx)
	})

	select {
	case res := <-ch:
		return res.Err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RequestRefresh reloads the list in the background. Failures are logged
// and never reported to the caller.
func (c *Cache) RequestRefresh(reason string) {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()

		ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
		defer cancel()

		if err := c.Refresh(ctx); err != nil {
			c.logger.Error("failed to refresh conversation list",
				"error", err,
				"reason", reason)
			return
		}
		c.logger.Debug("conversation list refreshed",
			"reason", reason,
			"count", len(c.List()))
	}()
}

// Prepend puts a newly created conversation at the top of the list.
func (c *Cache) Prepend(s Summary) {
	c.mu.Lock()
	defer c.mu.Unlock()

	cur := *c.items.Load()
	next := make([]Summary, 0, len(cur)+1)
	next = append(next, s)
	for _, existing := range cur {
		if existing.ID != s.ID {
			next = append(next, existing)
		}
	}
	c.items.Store(&next)
}

// Wait blocks until every background refresh has finished.
func (c *Cache) Wait() {
	c.wg.Wait()
}

// load runs one backend request once the previous one has finished, so
// results are applied in the order the requests started.
func (c *Cache) load(ctx context.Context) error {
	select {
	case c.loading <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-c.loading }()

	n := c.launched.Add(1)
	list, err := c.lister.ListConversations(ctx)
	if err != nil {
		return err
	}
	c.replace(n, list)
	return nil
}

func (c *Cache) replace(n uint64, list []Summary) {
	c.mu.Lock()
	defer c.mu.Unlock()

	next := slices.Clone(list)
	if next == nil {
		next = []Summary{}
	}
	c.items.Store(&next)
	if n > c.staleAt.Load() {
		c.stale.Store(false)
	}
}
