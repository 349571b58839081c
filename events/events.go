package events

import (
	"context"
	"sync"

	"spinwheel/models"

	log "github.com/sirupsen/logrus"
)

// EventType represents different types of events in the system
type EventType string

const (
	EventTypeBalanceChange EventType = "balance:changed"
	EventTypeWheelCreated  EventType = "wheel:created"
	EventTypePlayerJoined  EventType = "wheel:player_joined"
	EventTypeWheelStarted  EventType = "wheel:started"
	EventTypeEliminated    EventType = "wheel:eliminated"
	EventTypeWheelFinished EventType = "wheel:finished"
	EventTypeWheelAborted  EventType = "wheel:aborted"
)

// WheelEventTypes lists every lifecycle event delivered to wheel rooms
var WheelEventTypes = []EventType{
	EventTypeWheelCreated,
	EventTypePlayerJoined,
	EventTypeWheelStarted,
	EventTypeEliminated,
	EventTypeWheelFinished,
	EventTypeWheelAborted,
}

// Event is the base interface for all events
type Event interface {
	Type() EventType
}

// WheelEvent is an event scoped to a single wheel room
type WheelEvent interface {
	Event
	Room() int64
}

// BalanceChangeEvent represents a ledger transfer that was committed
type BalanceChangeEvent struct {
	UserID     int64                  `json:"user_id"`
	OldBalance int64                  `json:"old_balance"`
	NewBalance int64                  `json:"new_balance"`
	Kind       models.TransactionKind `json:"kind"`
	Amount     int64                  `json:"amount"`
	Meta       string                 `json:"meta"`
}

func (e BalanceChangeEvent) Type() EventType {
	return EventTypeBalanceChange
}

// WheelCreatedEvent is emitted when a new wheel opens for joins
type WheelCreatedEvent struct {
	Wheel *models.Wheel `json:"wheel"`
}

func (e WheelCreatedEvent) Type() EventType { return EventTypeWheelCreated }
func (e WheelCreatedEvent) Room() int64 { return e.Wheel.ID }

// PlayerJoinedEvent is emitted after a paid join commits
type PlayerJoinedEvent struct {
	WheelID     int64 `json:"wheel_id"`
	UserID      int64 `json:"user_id"`
	PlayerCount int   `json:"player_count"`
}

func (e PlayerJoinedEvent) Type() EventType { return EventTypePlayerJoined }
func (e PlayerJoinedEvent) Room() int64 { return e.WheelID }

// WheelStartedEvent is emitted when a wheel enters its elimination phase
type WheelStartedEvent struct {
	WheelID     int64 `json:"wheel_id"`
	PlayerCount int   `json:"player_count"`
	Manual      bool  `json:"manual"`
}

func (e WheelStartedEvent) Type() EventType { return EventTypeWheelStarted }
func (e WheelStartedEvent) Room() int64 { return e.WheelID }

// PlayerEliminatedEvent is emitted once per elimination round
type PlayerEliminatedEvent struct {
	WheelID   int64 `json:"wheel_id"`
	UserID    int64 `json:"eliminated"`
	Remaining int   `json:"remaining"`
}

func (e PlayerEliminatedEvent) Type() EventType { return EventTypeEliminated }
func (e PlayerEliminatedEvent) Room() int64 { return e.WheelID }

// WheelFinishedEvent is emitted when the last active player wins
type WheelFinishedEvent struct {
	WheelID    int64             `json:"wheel_id"`
	WinnerID   int64             `json:"winner"`
	Settlement models.Settlement `json:"settlement"`
}

func (e WheelFinishedEvent) Type() EventType { return EventTypeWheelFinished }
func (e WheelFinishedEvent) Room() int64 { return e.WheelID }

// WheelAbortedEvent is emitted when a wheel is cancelled and its players refunded
type WheelAbortedEvent struct {
	WheelID       int64  `json:"wheel_id"`
	RefundedCount int    `json:"refunded_count"`
	Reason        string `json:"reason"`
}

func (e WheelAbortedEvent) Type() EventType { return EventTypeWheelAborted }
func (e WheelAbortedEvent) Room() int64 { return e.WheelID }

// Handler is a function that handles events
type Handler func(ctx context.Context, event Event)

// orderedBuffer bounds the events waiting on one ordered subscriber
const orderedBuffer = 1024

type subscription struct {
	handler Handler
	inline  bool
}

// Bus manages event subscriptions and dispatching
type Bus struct {
	mu       sync.RWMutex
	handlers map[EventType][]subscription
	queues   []*orderedQueue
	inline   bool
}

// NewBus creates a new event bus that calls handlers asynchronously
func NewBus() *Bus {
	return &Bus{
		handlers: make(map[EventType][]subscription),
	}
}

// NewSyncBus creates an event bus that calls handlers inline, in subscription order
func NewSyncBus() *Bus {
	bus := NewBus()
	bus.inline = true
	return bus
}

// Subscribe adds a handler for a specific event type
func (b *Bus) Subscribe(eventType EventType, handler Handler) {
	b.subscribe(eventType, subscription{handler: handler})
}

func (b *Bus) subscribe(eventType EventType, sub subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.handlers[eventType] = append(b.handlers[eventType], sub)

	log.WithFields(log.Fields{
		"eventType":    eventType,
		"handlerCount": len(b.handlers[eventType]),
		"ordered":      sub.inline,
	}).Debug("Subscribed handler to event type on main event bus")
}

// SubscribeAll adds the same handler for several event types
func (b *Bus) SubscribeAll(eventTypes []EventType, handler Handler) {
	for _, eventType := range eventTypes {
		b.Subscribe(eventType, handler)
	}
}

// SubscribeOrdered adds a handler that sees the given event types in emit order.
// On an async bus the handler runs on its own goroutine fed by a bounded queue;
// events that arrive while the queue is full are dropped. Close stops the goroutine.
func (b *Bus) SubscribeOrdered(eventTypes []EventType, handler Handler) {
	if b.inline {
		b.SubscribeAll(eventTypes, handler)
		return
	}

	q := newOrderedQueue(b, handler)
	b.mu.Lock()
	b.queues = append(b.queues, q)
	b.mu.Unlock()

	go q.run()
	for _, eventType := range eventTypes {
		b.subscribe(eventType, subscription{handler: q.enqueue, inline: true})
	}
}

// Close stops every ordered subscriber and waits for its goroutine to exit.
// Events still queued are discarded.
func (b *Bus) Close() {
	b.mu.Lock()
	queues := b.queues
	b.queues = nil
	b.mu.Unlock()

	for _, q := range queues {
		q.close()
	}
}

// Emit publishes an event to all registered handlers
func (b *Bus) Emit(ctx context.Context, event Event) {
	b.mu.RLock()
	subs := make([]subscription, len(b.handlers[event.Type()]))
	copy(subs, b.handlers[event.Type()])
	b.mu.RUnlock()

	log.WithFields(log.Fields{
		"eventType":    event.Type(),
		"handlerCount": len(subs),
	}).Debug("Emitting event to handlers on main event bus")

	for i, sub := range subs {
		if b.inline || sub.inline {
			b.call(ctx, sub.handler, i, event)
			continue
		}
		go b.call(ctx, sub.handler, i, event)
	}
}

func (b *Bus) call(ctx context.Context, h Handler, handlerIndex int, event Event) {
	defer func() {
		if r := recover(); r != nil {
			log.WithFields(log.Fields{
				"eventType":    event.Type(),
				"handlerIndex": handlerIndex,
				"panic":        r,
			}).Error("Event handler panicked")
		}
	}()
	h(ctx, event)
}

type queuedEvent struct {
	ctx   context.Context
	event Event
}

type orderedQueue struct {
	bus     *Bus
	handler Handler
	items   chan queuedEvent
	stop    chan struct{}
	done    chan struct{}
	once    sync.Once
}

func newOrderedQueue(bus *Bus, handler Handler) *orderedQueue {
	return &orderedQueue{
		bus:     bus,
		handler: handler,
		items:   make(chan queuedEvent, orderedBuffer),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
}

func (q *orderedQueue) enqueue(ctx context.Context, event Event) {
	select {
	case <-q.stop:
		return
	default:
	}

	select {
	case q.items <- queuedEvent{ctx: ctx, event: event}:
	default:
		log.WithFields(log.Fields{
			"eventType": event.Type(),
			"buffer":    orderedBuffer,
		}).Warn("Ordered subscriber is full, dropping event")
	}
}

func (q *orderedQueue) run() {
	defer close(q.done)
	for {
		select {
		case <-q.stop:
			return
		case item := <-q.items:
			q.bus.call(item.ctx, q.handler, 0, item.event)
		}
	}
}

func (q *orderedQueue) close() {
	q.once.Do(func() { close(q.stop) })
	<-q.done
}

// TransactionalBus holds events raised inside a unit of work.
// Flushes to the underlying event bus only after commit.
type TransactionalBus struct {
	real    *Bus
	pending []Event
}

func NewTransactionalBus(real *Bus) *TransactionalBus {
	return &TransactionalBus{real: real}
}

func (b *TransactionalBus) Publish(e Event) {
	log.WithFields(log.Fields{
		"eventType":    e.Type(),
		"pendingCount": len(b.pending),
	}).Debug("Adding event to transactional bus pending queue")
	b.pending = append(b.pending, e)
}

// Pending returns the events queued so far
func (b *TransactionalBus) Pending() []Event {
	return b.pending
}

// called after successful commit
func (b *TransactionalBus) Flush(ctx context.Context) error {
	log.WithFields(log.Fields{
		"pendingEventCount": len(b.pending),
	}).Debug("Flushing pending events from transactional bus to main event bus")

	// events outlive the transaction context
	eventCtx := context.WithoutCancel(ctx)
	for _, ev := range b.pending {
		b.real.Emit(eventCtx, ev)
	}
	b.pending = nil
	return nil
}

// called after rollback or to clear state.
func (b *TransactionalBus) Discard() {
	b.pending = nil
}
