package webhook

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/edgelink-io/edgelink-go/pkg/retry"
)

// Dispatcher defaults.
const (
	// DefaultWorkers is the default delivery concurrency.
	DefaultWorkers = 4

	// DefaultMaxAttempts is the default attempt budget per event.
	DefaultMaxAttempts = 5

	// DefaultPollInterval is how often the queue is scanned for due
	// events.
	DefaultPollInterval = 100 * time.Millisecond

	// DefaultSendTimeout bounds a single delivery attempt.
	DefaultSendTimeout = 30 * time.Second
)

// Result classifies the outcome of one delivery attempt.
type Result uint8

const (
	// ResultSuccess means the remote side positively acknowledged.
	ResultSuccess Result = iota

	// ResultTransient means a retryable failure (network, 5xx).
	ResultTransient

	// ResultPermanent means a non-retryable failure (malformed, 4xx).
	ResultPermanent

	// ResultTimeout means the attempt timed out. The outcome is
	// unknown, so the event is retried; the receiver dedups on ID.
	ResultTimeout
)

// Sender delivers event payloads to the remote endpoint.
type Sender interface {
	Send(ctx context.Context, eventID string, payload []byte) Result
}

// SenderFunc adapts a function to the Sender interface.
type SenderFunc func(ctx context.Context, eventID string, payload []byte) Result

// Send implements Sender.
func (f SenderFunc) Send(ctx context.Context, eventID string, payload []byte) Result {
	return f(ctx, eventID, payload)
}

// Config configures a Dispatcher.
type Config struct {
	// Workers bounds delivery concurrency (default: 4).
	Workers int

	// MaxAttempts is the attempt budget before dead-lettering
	// (default: 5).
	MaxAttempts int

	// PollInterval is the queue scan interval (default: 100ms).
	PollInterval time.Duration

	// SendTimeout bounds a single delivery attempt (default: 30s).
	SendTimeout time.Duration

	// RetryPolicy computes retry delays. Nil uses the defaults.
	RetryPolicy *retry.Policy
}

// Stats are cumulative dispatcher counters.
type Stats struct {
	Enqueued     uint64
	Deduplicated uint64
	Delivered    uint64
	DeadLettered uint64
}

// Dispatcher drains a queue of outbound events through a bounded
// worker pool with retry and dead-letter semantics.
type Dispatcher struct {
	config Config
	sender Sender
	logger *slog.Logger

	mu     sync.Mutex
	events map[string]*Event
	order  []*Event

	running atomic.Bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	workCh  chan *Event

	enqueued     atomic.Uint64
	deduplicated atomic.Uint64
	delivered    atomic.Uint64
	deadLettered atomic.Uint64

	onDelivered  func(event *Event)
	onDeadLetter func(event *Event)
}

// NewDispatcher creates a dispatcher delivering through sender.
func NewDispatcher(config Config, sender Sender) *Dispatcher {
	if config.Workers <= 0 {
		config.Workers = DefaultWorkers
	}
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = DefaultMaxAttempts
	}
	if config.PollInterval <= 0 {
		config.PollInterval = DefaultPollInterval
	}
	if config.SendTimeout <= 0 {
		config.SendTimeout = DefaultSendTimeout
	}
	if config.RetryPolicy == nil {
		config.RetryPolicy = retry.NewPolicy()
	}

	return &Dispatcher{
		config: config,
		sender: sender,
		events: make(map[string]*Event),
	}
}

// SetLogger sets the dispatcher's logger.
func (d *Dispatcher) SetLogger(logger *slog.Logger) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.logger = logger
}

// OnDelivered sets a callback for successful deliveries.
// Must be set before Start.
func (d *Dispatcher) OnDelivered(fn func(event *Event)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.onDelivered = fn
}

// OnDeadLetter sets the callback for dead-lettered events.
// Must be set before Start.
func (d *Dispatcher) OnDeadLetter(fn func(event *Event)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.onDeadLetter = fn
}

// Start begins background delivery.
func (d *Dispatcher) Start() {
	if d.running.Swap(true) {
		return // Already running
	}

	ctx, cancel := context.WithCancel(context.Background())
	d.cancel = cancel
	d.workCh = make(chan *Event, d.config.Workers)

	for i := 0; i < d.config.Workers; i++ {
		d.wg.Add(1)
		go d.worker()
	}

	d.wg.Add(1)
	go d.scanLoop(ctx)
}

// Stop stops background delivery. In-flight deliveries finish or time
// out before Stop returns; still-queued events stay Pending.
func (d *Dispatcher) Stop() {
	if !d.running.Swap(false) {
		return // Not running
	}

	d.cancel()
	d.wg.Wait()
}

// Enqueue adds an event to the queue. If a Pending or InFlight event
// with the same idempotency key already exists, the call is a no-op
// and returns false.
func (d *Dispatcher) Enqueue(event *Event) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, exists := d.events[event.ID]; exists {
		d.deduplicated.Add(1)
		if d.logger != nil {
			d.logger.Debug("duplicate event ignored", "eventID", event.ID)
		}
		return false
	}

	event.State = StatePending
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}
	d.events[event.ID] = event
	d.order = append(d.order, event)
	d.enqueued.Add(1)
	return true
}

// Pending returns the number of queued, not yet terminal events.
func (d *Dispatcher) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.events)
}

// Stats returns cumulative delivery counters.
func (d *Dispatcher) Stats() Stats {
	return Stats{
		Enqueued:     d.enqueued.Load(),
		Deduplicated: d.deduplicated.Load(),
		Delivered:    d.delivered.Load(),
		DeadLettered: d.deadLettered.Load(),
	}
}

// scanLoop periodically hands due events to the workers.
func (d *Dispatcher) scanLoop(ctx context.Context) {
	defer d.wg.Done()
	defer close(d.workCh)

	ticker := time.NewTicker(d.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.dispatchDue()
		}
	}
}

// dispatchDue marks due pending events in-flight and hands them to
// the workers, oldest first.
func (d *Dispatcher) dispatchDue() {
	now := time.Now()

	d.mu.Lock()
	var due []*Event
	for _, event := range d.order {
		if event.State == StatePending && !event.NextRetryAt.After(now) {
			due = append(due, event)
		}
	}
	d.mu.Unlock()

	for _, event := range due {
		d.mu.Lock()
		if event.State != StatePending {
			d.mu.Unlock()
			continue
		}
		event.State = StateInFlight
		d.mu.Unlock()

		select {
		case d.workCh <- event:
		default:
			// Workers saturated. Put it back; the next scan retries.
			d.mu.Lock()
			event.State = StatePending
			d.mu.Unlock()
			return
		}
	}
}

// worker delivers events until the work channel closes. Deliveries in
// progress run to completion or timeout even during Stop.
func (d *Dispatcher) worker() {
	defer d.wg.Done()

	for event := range d.workCh {
		ctx, cancel := context.WithTimeout(context.Background(), d.config.SendTimeout)
		result := d.sender.Send(ctx, event.ID, event.Payload)
		cancel()

		d.handleResult(event, result)
	}
}

// handleResult applies one delivery outcome to the event lifecycle.
func (d *Dispatcher) handleResult(event *Event, result Result) {
	switch result {
	case ResultSuccess:
		d.complete(event, StateDelivered)

	case ResultPermanent:
		if d.logger != nil {
			d.logger.Warn("event failed permanently",
				"eventID", event.ID,
				"attempts", event.Attempts+1)
		}
		d.complete(event, StateDeadLettered)

	case ResultTransient, ResultTimeout:
		d.mu.Lock()
		event.Attempts++
		if event.Attempts >= d.config.MaxAttempts {
			d.mu.Unlock()
			if d.logger != nil {
				d.logger.Warn("event exhausted retry budget",
					"eventID", event.ID,
					"attempts", event.Attempts)
			}
			d.complete(event, StateDeadLettered)
			return
		}
		delay := d.config.RetryPolicy.Delay(event.Attempts - 1)
		event.NextRetryAt = time.Now().Add(delay)
		event.State = StatePending
		d.mu.Unlock()

		if d.logger != nil {
			d.logger.Debug("delivery failed, retrying",
				"eventID", event.ID,
				"attempts", event.Attempts,
				"delay", delay)
		}
	}
}

// complete removes an event from the queue in a terminal state.
func (d *Dispatcher) complete(event *Event, state EventState) {
	d.mu.Lock()
	event.State = state
	delete(d.events, event.ID)
	for i, e := range d.order {
		if e == event {
			d.order = append(d.order[:i], d.order[i+1:]...)
			break
		}
	}
	delivered := d.onDelivered
	deadLetter := d.onDeadLetter
	d.mu.Unlock()

	switch state {
	case StateDelivered:
		d.delivered.Add(1)
		if delivered != nil {
			delivered(event)
		}
	case StateDeadLettered:
		d.deadLettered.Add(1)
		if deadLetter != nil {
			deadLetter(event)
		}
	}
}
