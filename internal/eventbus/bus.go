package eventbus

import (
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Handler receives events. Handlers run on the emitting goroutine and must
// not block; long work belongs on a goroutine of the handler's own.
type Handler func(Event)

type subscription struct {
	id uint64
	fn Handler
}

// Bus is a synchronous publish/subscribe dispatcher. Every subscriber present
// when Emit is called sees the event before Emit returns. There is no
// queueing and no backpressure.
type Bus struct {
	mu     sync.RWMutex
	subs   []subscription
	nextID uint64
	logger zerolog.Logger
	onEmit func(Event)
}

// New creates an empty Bus.
func New(logger zerolog.Logger) *Bus {
	return &Bus{logger: logger.With().Str("component", "eventbus").Logger()}
}

// Subscribe registers h and returns a function that removes it.
// Calling the returned function more than once is harmless.
func (b *Bus) Subscribe(h Handler) func() {
	b.mu.Lock()
	b.nextID++
	id := b.nextID
	b.subs = append(b.subs, subscription{id: id, fn: h})
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			for i, s := range b.subs {
				if s.id == id {
					b.subs = append(b.subs[:i:i], b.subs[i+1:]...)
					return
				}
			}
		})
	}
}

// Emit delivers ev to every current subscriber in subscription order. A
// panicking handler is logged and skipped; it never stops the others.
func (b *Bus) Emit(ev Event) {
	if ev.ID == "" {
		ev.ID = NewEvent(ev.Type, nil).ID
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}

	b.mu.RLock()
	subs := make([]subscription, len(b.subs))
	copy(subs, b.subs)
	onEmit := b.onEmit
	b.mu.RUnlock()

	if onEmit != nil {
		onEmit(ev)
	}
	for _, s := range subs {
		b.dispatch(s, ev)
	}
}

// EmitType builds an event from type and payload, emits it and returns it.
func (b *Bus) EmitType(t Type, payload any) Event {
	ev := NewEvent(t, payload)
	b.Emit(ev)
	return ev
}

func (b *Bus) dispatch(s subscription, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error().
				Str("event_type", string(ev.Type)).
				Str("event_id", ev.ID).
				Uint64("subscriber", s.id).
				Str("panic", fmt.Sprint(r)).
				Msg("event handler panicked")
		}
	}()
	s.fn(ev)
}

// Observe installs fn to see every event before fan-out. Observers are not
// subscribers: Clear leaves them in place.
func (b *Bus) Observe(fn func(Event)) {
	b.mu.Lock()
	b.onEmit = fn
	b.mu.Unlock()
}

// Clear removes every subscriber.
func (b *Bus) Clear() {
	b.mu.Lock()
	b.subs = nil
	b.mu.Unlock()
}

// Len returns the number of current subscribers.
func (b *Bus) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
