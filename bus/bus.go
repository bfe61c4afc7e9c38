// Package bus provides the typed publish/subscribe bus connecting the
// engine to its observers (UI, logging, cost ledger) and control inputs.
// Topics form a closed, enumerated set; free-form topic strings do not
// exist. Subscriptions return explicit handles so teardown releases all
// listeners deterministically.
package bus

import (
	"sync"
	"sync/atomic"
)

// Topic identifies one publish/subscribe channel. The constant set below is
// the complete topic vocabulary of the engine.
type Topic string

// Outbound topics consumed by observers.
const (
	TopicSessionStarted  Topic = "session:started"
	TopicSessionProgress Topic = "session:progress"
	TopicSessionError    Topic = "session:error"
	TopicSessionComplete Topic = "session:complete"
	TopicApprovalNeeded  Topic = "session:approval-needed"
	TopicStateChange     Topic = "session:state-change"
	TopicMetricsUpdate   Topic = "session:metrics-update"
)

// Control topics consumed by the engine.
const (
	TopicPauseRequest  Topic = "pause-request"
	TopicResumeRequest Topic = "resume-request"
	TopicCancelRequest Topic = "cancel-request"
	TopicMessage       Topic = "message"
)

// Handler receives published payloads for a topic.
type Handler func(payload any)

// Subscription is the handle returned by Subscribe. Calling Unsubscribe
// removes the handler; it is idempotent.
type Subscription struct {
	bus   *Bus
	topic Topic
	id    uint64
}

// Unsubscribe removes the subscription from the bus. Safe to call more
// than once.
func (s *Subscription) Unsubscribe() {
	if s == nil || s.bus == nil {
		return
	}
	s.bus.remove(s.topic, s.id)
	s.bus = nil
}

type registration struct {
	id      uint64
	handler Handler
}

// Bus is a synchronous in-process pub/sub dispatcher. Handlers run on the
// publisher's goroutine in registration order; a panicking handler is
// recovered so it cannot block delivery to the rest.
type Bus struct {
	mu     sync.RWMutex
	subs   map[Topic][]registration
	nextID atomic.Uint64

	logger Logger
}

// Logger is the minimal logging surface the bus needs for recovered panics.
type Logger interface {
	Error(msg string, args ...any)
}

type nopLogger struct{}

func (nopLogger) Error(string, ...any) {}

// Options configures a Bus.
type Options struct {
	// Logger receives handler panic reports. Defaults to a no-op logger.
	Logger Logger
}

// New creates an empty bus.
func New(optFns ...func(o *Options)) *Bus {
	opts := Options{Logger: nopLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Bus{subs: make(map[Topic][]registration), logger: opts.Logger}
}

// Subscribe registers a handler for a topic and returns its unsubscribe
// handle.
func (b *Bus) Subscribe(topic Topic, handler Handler) *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.nextID.Add(1)
	b.subs[topic] = append(b.subs[topic], registration{id: id, handler: handler})
	return &Subscription{bus: b, topic: topic, id: id}
}

// Publish dispatches payload to every handler registered for topic, in
// registration order.
func (b *Bus) Publish(topic Topic, payload any) {
	b.mu.RLock()
	regs := make([]registration, len(b.subs[topic]))
	copy(regs, b.subs[topic])
	b.mu.RUnlock()

	for _, reg := range regs {
		b.safeCall(topic, reg.handler, payload)
	}
}

func (b *Bus) safeCall(topic Topic, handler Handler, payload any) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("event handler panicked", "topic", string(topic), "panic", r)
		}
	}()
	handler(payload)
}

func (b *Bus) remove(topic Topic, id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	regs := b.subs[topic]
	for i, reg := range regs {
		if reg.id == id {
			b.subs[topic] = append(regs[:i], regs[i+1:]...)
			return
		}
	}
}
