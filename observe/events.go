package observe

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Event topics published by the resilience and resource-management components.
const (
	TopicBreakerOpened     = "breaker.opened"
	TopicBreakerClosed     = "breaker.closed"
	TopicBreakerHalfOpen   = "breaker.half_open"
	TopicMemoryHigh        = "memory.high"
	TopicLifecycleDisposed = "lifecycle.disposed"

	// TopicAll subscribes a handler to every topic.
	TopicAll = "*"
)

// Event is one published notification.
type Event struct {
	ID        string         `json:"id"`
	Topic     string         `json:"topic"`
	Timestamp time.Time      `json:"timestamp"`
	Payload   map[string]any `json:"payload,omitempty"`
}

// Handler receives published events.
type Handler func(ctx context.Context, e Event)

// Publisher is the publishing half of an EventBus.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload map[string]any) error
}

type subscription struct {
	id      uint64
	topic   string
	handler Handler
}

// EventBus is an in-process topic bus with a bounded history.
//
// Contract:
// - Concurrency: safe for concurrent use.
// - Handlers run synchronously on the publishing goroutine, outside any lock.
// - A panicking handler is recovered and logged; remaining handlers still run.
type EventBus struct {
	logger     Logger
	maxHistory int
	now        func() time.Time

	mu      sync.RWMutex
	nextID  uint64
	subs    []subscription
	history []Event
}

// EventBusOption configures an EventBus.
type EventBusOption func(*EventBus)

// WithEventLogger sets the logger used to report handler panics.
func WithEventLogger(l Logger) EventBusOption {
	return func(b *EventBus) {
		b.logger = OrNop(l)
	}
}

// WithHistory bounds the number of retained events. Zero disables history.
func WithHistory(size int) EventBusOption {
	return func(b *EventBus) {
		if size >= 0 {
			b.maxHistory = size
		}
	}
}

// WithEventClock overrides the clock used for event timestamps.
func WithEventClock(now func() time.Time) EventBusOption {
	return func(b *EventBus) {
		if now != nil {
			b.now = now
		}
	}
}

// NewEventBus creates an EventBus. The default history holds 100 events.
func NewEventBus(opts ...EventBusOption) *EventBus {
	b := &EventBus{
		logger:     NopLogger(),
		maxHistory: 100,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Subscribe registers handler for topic and returns a function that removes it.
func (b *EventBus) Subscribe(topic string, handler Handler) (func(), error) {
	if topic == "" {
		return nil, ErrEmptyTopic
	}
	if handler == nil {
		return func() {}, nil
	}

	b.mu.Lock()
	b.nextID++
	id := b.nextID
	b.subs = append(b.subs, subscription{id: id, topic: topic, handler: handler})
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { b.unsubscribe(id) })
	}, nil
}

func (b *EventBus) unsubscribe(id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, s := range b.subs {
		if s.id == id {
			b.subs = append(b.subs[:i:i], b.subs[i+1:]...)
			return
		}
	}
}

// Publish records an event and delivers it to matching subscribers in
// subscription order.
func (b *EventBus) Publish(ctx context.Context, topic string, payload map[string]any) error {
	if topic == "" {
		return ErrEmptyTopic
	}

	e := Event{
		ID:        uuid.NewString(),
		Topic:     topic,
		Timestamp: b.now(),
		Payload:   payload,
	}

	b.mu.Lock()
	if b.maxHistory > 0 {
		b.history = append(b.history, e)
		if over := len(b.history) - b.maxHistory; over > 0 {
			b.history = append(b.history[:0:0], b.history[over:]...)
		}
	}
	var targets []Handler
	for _, s := range b.subs {
		if s.topic == topic || s.topic == TopicAll {
			targets = append(targets, s.handler)
		}
	}
	b.mu.Unlock()

	for _, h := range targets {
		b.deliver(ctx, h, e)
	}
	return nil
}

func (b *EventBus) deliver(ctx context.Context, h Handler, e Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error(ctx, "event handler panicked",
				F("topic", e.Topic),
				F("event_id", e.ID),
				F("panic", fmt.Sprint(r)),
			)
		}
	}()
	h(ctx, e)
}

// Recent returns up to n of the most recent events, oldest first.
// n <= 0 returns the whole retained history.
func (b *EventBus) Recent(n int) []Event {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if n <= 0 || n > len(b.history) {
		n = len(b.history)
	}
	out := make([]Event, n)
	copy(out, b.history[len(b.history)-n:])
	return out
}

// ClearHistory drops the retained events.
func (b *EventBus) ClearHistory() {
	b.mu.Lock()
	b.history = nil
	b.mu.Unlock()
}

// Subscribers returns the number of registered handlers.
func (b *EventBus) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
