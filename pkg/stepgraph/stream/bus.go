package stream

import (
	"errors"
	"sync"
)

// ErrBusClosed indicates a publish against a closed bus.
var ErrBusClosed = errors.New("stream bus closed")

// DefaultBufferSize is the per-subscription channel buffer.
const DefaultBufferSize = 256

// Bus fans step events out to subscribers. Publishing blocks when a
// subscriber's buffer is full, so a slow consumer applies backpressure to
// the scheduler rather than losing events.
type Bus struct {
	mu         sync.RWMutex
	subs       map[int]*Subscription
	nextID     int
	bufferSize int
	closed     bool
}

// BusOption configures a Bus.
type BusOption func(*Bus)

// WithBufferSize sets the per-subscription buffer size.
// Default: DefaultBufferSize.
func WithBufferSize(n int) BusOption {
	return func(b *Bus) {
		if n > 0 {
			b.bufferSize = n
		}
	}
}

// NewBus creates an event bus.
func NewBus(opts ...BusOption) *Bus {
	b := &Bus{
		subs:       make(map[int]*Subscription),
		bufferSize: DefaultBufferSize,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Subscription is one consumer's view of the bus.
type Subscription struct {
	// C delivers matching events. It is closed when the subscription is
	// unsubscribed or the bus closes.
	C <-chan Event

	ch     chan Event
	types  map[Type]bool // nil matches every type
	bus    *Bus
	id     int
	mu     sync.Mutex
	closed bool
}

// Unsubscribe removes the subscription and closes its channel.
// It waits for any in-flight delivery to this subscription, so drain C
// before calling it from the consuming goroutine.
func (s *Subscription) Unsubscribe() {
	s.bus.mu.Lock()
	delete(s.bus.subs, s.id)
	s.bus.mu.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.ch)
	}
}

func (s *Subscription) matches(t Type) bool {
	return s.types == nil || s.types[t]
}

// send delivers one event, blocking while the buffer is full.
func (s *Subscription) send(evt Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.ch <- evt
}

// Subscribe creates a subscription for the given event types.
// With no types, the subscription receives every event.
func (b *Bus) Subscribe(types ...Type) *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan Event, b.bufferSize)
	sub := &Subscription{C: ch, ch: ch, bus: b, id: b.nextID}
	if len(types) > 0 {
		sub.types = make(map[Type]bool, len(types))
		for _, t := range types {
			sub.types[t] = true
		}
	}
	b.subs[b.nextID] = sub
	b.nextID++
	return sub
}

// Publish delivers an event to every matching subscription.
func (b *Bus) Publish(evt Event) error {
	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return ErrBusClosed
	}
	matched := make([]*Subscription, 0, len(b.subs))
	for _, sub := range b.subs {
		if sub.matches(evt.Type) {
			matched = append(matched, sub)
		}
	}
	b.mu.RUnlock()

	for _, sub := range matched {
		sub.send(evt)
	}
	return nil
}

// Close shuts the bus down and closes every subscription channel.
func (b *Bus) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	subs := make([]*Subscription, 0, len(b.subs))
	for id, sub := range b.subs {
		delete(b.subs, id)
		subs = append(subs, sub)
	}
	b.mu.Unlock()

	for _, sub := range subs {
		sub.mu.Lock()
		if !sub.closed {
			sub.closed = true
			close(sub.ch)
		}
		sub.mu.Unlock()
	}
}
