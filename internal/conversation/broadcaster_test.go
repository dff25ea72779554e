// ABOUTME: Tests for the snapshot Broadcaster fan-out
// ABOUTME: Covers subscribe, publish, isolation, slow subscribers, unsubscribe and context cancellation

package conversation

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/council-chat/internal/transcript"
)

func makeSnapshot(convID string, version uint64) *transcript.Snapshot {
	return &transcript.Snapshot{ConversationID: convID, Version: version}
}

func TestBroadcaster_SubscribersReceiveSnapshot(t *testing.T) {
	b := NewBroadcaster(nil)
	defer b.Close()

	ch1, _ := b.Subscribe(t.Context(), "conv-1")
	ch2, _ := b.Subscribe(t.Context(), "conv-1")

	b.Publish(makeSnapshot("conv-1", 7))

	for i, ch := range []<-chan *transcript.Snapshot{ch1, ch2} {
		select {
		case got := <-ch:
			assert.Equal(t, uint64(7), got.Version, "subscriber %d", i)
		case <-time.After(time.Second):
			t.Fatalf("subscriber %d timed out", i)
		}
	}
}

func TestBroadcaster_ConversationsAreIsolated(t *testing.T) {
	b := NewBroadcaster(nil)
	defer b.Close()

	ch1, _ := b.Subscribe(t.Context(), "conv-1")
	ch2, _ := b.Subscribe(t.Context(), "conv-2")

	b.Publish(makeSnapshot("conv-1", 1))

	select {
	case got := <-ch1:
		assert.Equal(t, "conv-1", got.ConversationID)
	case <-time.After(time.Second):
		t.Fatal("timed out")
	}

	select {
	case got := <-ch2:
		t.Fatalf("conv-2 subscriber got %v", got)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestBroadcaster_SlowSubscriberKeepsLatest(t *testing.T) {
	b := NewBroadcaster(nil)
	defer b.Close()

	ch, _ := b.Subscribe(t.Context(), "conv-1")

	total := subscriberBufferSize * 3
	for i := 1; i <= total; i++ {
		b.Publish(makeSnapshot("conv-1", uint64(i)))
	}

	var last uint64
	for {
		select {
		case got := <-ch:
			assert.Greater(t, got.Version, last)
			last = got.Version
			continue
		default:
		}
		break
	}
	assert.Equal(t, uint64(total), last)
}

func TestBroadcaster_Unsubscribe(t *testing.T) {
	b := NewBroadcaster(nil)
	defer b.Close()

	ch, subID := b.Subscribe(t.Context(), "conv-1")
	b.Unsubscribe("conv-1", subID)

	_, ok := <-ch
	assert.False(t, ok, "channel should be closed")

	// Publishing with no subscribers and unsubscribing twice are both safe
	b.Publish(makeSnapshot("conv-1", 1))
	b.Unsubscribe("conv-1", subID)
}

func TestBroadcaster_ContextCancelUnsubscribes(t *testing.T) {
	b := NewBroadcaster(nil)
	defer b.Close()

	ctx, cancel := context.WithCancel(t.Context())
	ch, _ := b.Subscribe(ctx, "conv-1")
	cancel()

	select {
	case _, ok := <-ch:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("subscription not cleaned up")
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	assert.Empty(t, b.subscribers)
}

func TestBroadcaster_ConcurrentPublishAndUnsubscribe(t *testing.T) {
	b := NewBroadcaster(nil)
	defer b.Close()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		ctx, cancel := context.WithCancel(t.Context())
		ch, _ := b.Subscribe(ctx, "conv-1")
		wg.Add(2)
		go func() {
			defer wg.Done()
			for range ch {
			}
		}()
		go func() {
			defer wg.Done()
			for v := uint64(1); v <= 50; v++ {
				b.Publish(makeSnapshot("conv-1", v))
			}
			cancel()
		}()
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		require.FailNow(t, "concurrent publish/unsubscribe did not finish")
	}
}
