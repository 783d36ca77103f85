// Package event is an in-process bus for reconciliation outcomes.
package event

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// Type identifies a category of event.
type Type string

// Known event types.
const (
	BatchReconciled Type = "batch.reconciled"
	BatchFailed     Type = "batch.failed"
	ReviewNeeded    Type = "review.needed"
)

// Types lists every known event type.
var Types = []Type{BatchReconciled, BatchFailed, ReviewNeeded}

// Event represents something that happened to a batch.
type Event struct {
	Type      Type           `json:"type"`
	BatchID   string         `json:"batch_id,omitempty"`
	File      string         `json:"file,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
	Data      map[string]any `json:"data,omitempty"`
}

// Handler processes an event.
type Handler func(Event)

// Bus queues events on a buffered channel and dispatches them from Run.
type Bus struct {
	ch      chan Event
	mu      sync.RWMutex
	subs    map[Type][]Handler
	logger  *slog.Logger
	dropped atomic.Uint64
}

// NewBus creates a bus with the given buffer size.
func NewBus(logger *slog.Logger, bufSize int) *Bus {
	if bufSize <= 0 {
		bufSize = 256
	}
	return &Bus{
		ch:     make(chan Event, bufSize),
		subs:   make(map[Type][]Handler),
		logger: logger.With("component", "event"),
	}
}

// Subscribe registers h for events of type t.
func (b *Bus) Subscribe(t Type, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs[t] = append(b.subs[t], h)
}

// SubscribeAll registers h for every known type.
func (b *Bus) SubscribeAll(h Handler) {
	for _, t := range Types {
		b.Subscribe(t, h)
	}
}

// Publish queues e without blocking. Events are dropped, and counted, when
// the buffer is full.
func (b *Bus) Publish(e Event) {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}
	select {
	case b.ch <- e:
	default:
		b.dropped.Add(1)
		b.logger.Warn("event bus full, dropping event", "type", string(e.Type), "batch_id", e.BatchID)
	}
}

// Dropped returns the number of events lost to a full buffer.
func (b *Bus) Dropped() uint64 {
	return b.dropped.Load()
}

// Run dispatches events until ctx is done, then delivers whatever is still
// queued and returns.
func (b *Bus) Run(ctx context.Context) error {
	for {
		select {
		case e := <-b.ch:
			b.dispatch(e)
		case <-ctx.Done():
			for {
				select {
				case e := <-b.ch:
					b.dispatch(e)
				default:
					return nil
				}
			}
		}
	}
}

func (b *Bus) dispatch(e Event) {
	b.mu.RLock()
	handlers := b.subs[e.Type]
	b.mu.RUnlock()

	for _, h := range handlers {
		func() {
			defer func() {
				if r := recover(); r != nil {
					b.logger.Error("event handler panicked", "type", string(e.Type), "panic", r)
				}
			}()
			h(e)
		}()
	}
}
