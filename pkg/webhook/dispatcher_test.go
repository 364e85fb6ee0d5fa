package webhook

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edgelink-io/edgelink-go/pkg/retry"
)

func fastConfig() Config {
	return Config{
		Workers:      2,
		MaxAttempts:  5,
		PollInterval: 2 * time.Millisecond,
		SendTimeout:  time.Second,
		RetryPolicy: retry.NewPolicyWithConfig(retry.PolicyConfig{
			Initial:    time.Millisecond,
			Max:        5 * time.Millisecond,
			Multiplier: 2,
		}),
	}
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestDispatcherDeliversEvent(t *testing.T) {
	var sent atomic.Int32
	sender := SenderFunc(func(ctx context.Context, eventID string, payload []byte) Result {
		sent.Add(1)
		return ResultSuccess
	})

	delivered := make(chan *Event, 1)
	d := NewDispatcher(fastConfig(), sender)
	d.OnDelivered(func(event *Event) { delivered <- event })
	d.Start()
	defer d.Stop()

	event := NewEvent([]byte(`{"reading":42}`))
	require.True(t, d.Enqueue(event))

	select {
	case got := <-delivered:
		assert.Equal(t, event.ID, got.ID)
		assert.Equal(t, StateDelivered, got.State)
	case <-time.After(2 * time.Second):
		t.Fatal("event was never delivered")
	}

	assert.Equal(t, int32(1), sent.Load())
	assert.Equal(t, 0, d.Pending())
}

func TestDispatcherDeduplicatesByIdempotencyKey(t *testing.T) {
	block := make(chan struct{})
	sender := SenderFunc(func(ctx context.Context, eventID string, payload []byte) Result {
		<-block
		return ResultSuccess
	})

	d := NewDispatcher(fastConfig(), sender)
	d.Start()
	defer d.Stop()

	event := NewEvent([]byte("original"))
	require.True(t, d.Enqueue(event))

	// Same key while the original is Pending or InFlight is a no-op.
	dup := &Event{ID: event.ID, Payload: []byte("duplicate")}
	assert.False(t, d.Enqueue(dup))
	assert.Equal(t, 1, d.Pending())

	close(block)
	waitFor(t, 2*time.Second, func() bool { return d.Stats().Delivered == 1 })

	stats := d.Stats()
	assert.Equal(t, uint64(1), stats.Enqueued)
	assert.Equal(t, uint64(1), stats.Deduplicated)

	// After the original is terminal the key is free again.
	assert.True(t, d.Enqueue(&Event{ID: event.ID, Payload: []byte("later")}))
}

func TestDispatcherRetriesTransientFailures(t *testing.T) {
	var sent atomic.Int32
	sender := SenderFunc(func(ctx context.Context, eventID string, payload []byte) Result {
		if sent.Add(1) < 3 {
			return ResultTransient
		}
		return ResultSuccess
	})

	d := NewDispatcher(fastConfig(), sender)
	d.Start()
	defer d.Stop()

	require.True(t, d.Enqueue(NewEvent([]byte("flaky"))))

	waitFor(t, 2*time.Second, func() bool { return d.Stats().Delivered == 1 })
	assert.Equal(t, int32(3), sent.Load())
}

func TestDispatcherTimeoutIsRetried(t *testing.T) {
	var sent atomic.Int32
	sender := SenderFunc(func(ctx context.Context, eventID string, payload []byte) Result {
		if sent.Add(1) == 1 {
			return ResultTimeout
		}
		return ResultSuccess
	})

	d := NewDispatcher(fastConfig(), sender)
	d.Start()
	defer d.Stop()

	require.True(t, d.Enqueue(NewEvent([]byte("slow"))))

	// A timeout is an unknown outcome, never a success.
	waitFor(t, 2*time.Second, func() bool { return d.Stats().Delivered == 1 })
	assert.Equal(t, int32(2), sent.Load())
}

func TestDispatcherDeadLettersAfterMaxAttempts(t *testing.T) {
	var sent atomic.Int32
	sender := SenderFunc(func(ctx context.Context, eventID string, payload []byte) Result {
		sent.Add(1)
		return ResultTransient
	})

	deadLettered := make(chan *Event, 1)
	d := NewDispatcher(fastConfig(), sender)
	d.OnDeadLetter(func(event *Event) { deadLettered <- event })
	d.Start()
	defer d.Stop()

	event := NewEvent([]byte("doomed"))
	require.True(t, d.Enqueue(event))

	select {
	case got := <-deadLettered:
		assert.Equal(t, event.ID, got.ID)
		assert.Equal(t, StateDeadLettered, got.State)
		assert.Equal(t, 5, got.Attempts)
	case <-time.After(2 * time.Second):
		t.Fatal("event was never dead-lettered")
	}

	// No further retries after dead-lettering.
	final := sent.Load()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, final, sent.Load())
	assert.Equal(t, int32(5), final)
}

func TestDispatcherPermanentFailureDeadLettersImmediately(t *testing.T) {
	var sent atomic.Int32
	sender := SenderFunc(func(ctx context.Context, eventID string, payload []byte) Result {
		sent.Add(1)
		return ResultPermanent
	})

	deadLettered := make(chan *Event, 1)
	d := NewDispatcher(fastConfig(), sender)
	d.OnDeadLetter(func(event *Event) { deadLettered <- event })
	d.Start()
	defer d.Stop()

	require.True(t, d.Enqueue(NewEvent([]byte("malformed"))))

	select {
	case <-deadLettered:
	case <-time.After(2 * time.Second):
		t.Fatal("permanent failure was not dead-lettered")
	}
	assert.Equal(t, int32(1), sent.Load())
}

func TestDispatcherPreservesEnqueueOrder(t *testing.T) {
	var mu sync.Mutex
	var got []string
	sender := SenderFunc(func(ctx context.Context, eventID string, payload []byte) Result {
		mu.Lock()
		got = append(got, string(payload))
		mu.Unlock()
		return ResultSuccess
	})

	cfg := fastConfig()
	cfg.Workers = 1
	d := NewDispatcher(cfg, sender)

	for _, name := range []string{"a", "b", "c", "d"} {
		require.True(t, d.Enqueue(NewEvent([]byte(name))))
	}

	d.Start()
	defer d.Stop()

	waitFor(t, 2*time.Second, func() bool { return d.Stats().Delivered == 4 })

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"a", "b", "c", "d"}, got)
}

func TestDispatcherBoundsConcurrency(t *testing.T) {
	var current, peak atomic.Int32
	release := make(chan struct{})
	sender := SenderFunc(func(ctx context.Context, eventID string, payload []byte) Result {
		n := current.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		<-release
		current.Add(-1)
		return ResultSuccess
	})

	cfg := fastConfig()
	cfg.Workers = 2
	d := NewDispatcher(cfg, sender)
	d.Start()
	defer d.Stop()

	for i := 0; i < 8; i++ {
		require.True(t, d.Enqueue(NewEvent([]byte{byte(i)})))
	}

	waitFor(t, 2*time.Second, func() bool { return current.Load() == 2 })
	close(release)
	waitFor(t, 2*time.Second, func() bool { return d.Stats().Delivered == 8 })

	assert.LessOrEqual(t, peak.Load(), int32(2))
}

func TestDispatcherStopDrainsInFlight(t *testing.T) {
	started := make(chan struct{})
	sender := SenderFunc(func(ctx context.Context, eventID string, payload []byte) Result {
		close(started)
		time.Sleep(30 * time.Millisecond)
		return ResultSuccess
	})

	d := NewDispatcher(fastConfig(), sender)
	d.Start()

	require.True(t, d.Enqueue(NewEvent([]byte("in-flight"))))

	select {
	case <-started:
	case <-time.After(2 * time.Second):
		t.Fatal("delivery never started")
	}

	// Stop must let the in-flight delivery finish.
	d.Stop()
	assert.Equal(t, uint64(1), d.Stats().Delivered)
}

func TestDispatcherStopLeavesQueuedEventsPending(t *testing.T) {
	sender := SenderFunc(func(ctx context.Context, eventID string, payload []byte) Result {
		return ResultSuccess
	})

	d := NewDispatcher(fastConfig(), sender)

	// Never started: events stay queued.
	require.True(t, d.Enqueue(NewEvent([]byte("queued"))))
	assert.Equal(t, 1, d.Pending())

	d.Stop() // no-op on a dispatcher that never started
	assert.Equal(t, 1, d.Pending())
}
