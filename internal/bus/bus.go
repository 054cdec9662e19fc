// Package bus carries cross-component notifications that have no single owner.
//
// A Bus is created at app start and closed at app end. Handlers for a topic
// run synchronously in registration order on the publishing goroutine.
package bus

import "sync"

// Topic names a notification.
type Topic string

const (
	// FirstFrame fires when a sequence has its first frame ready to show.
	FirstFrame Topic = "sequence.first_frame"
	// LoadingComplete fires once every asset of a sequence has resolved,
	// loaded or failed.
	LoadingComplete Topic = "sequence.loading_complete"
	// BookOpen fires when the flip-book opens (Open=true) or closes.
	BookOpen Topic = "book.open"
)

// Event is one notification.
type Event struct {
	Topic  Topic  `json:"topic"`
	Source string `json:"source,omitempty"`
	Open   bool   `json:"open,omitempty"`
	Loaded int    `json:"loaded,omitempty"`
	Failed int    `json:"failed,omitempty"`
}

// Handler receives events.
type Handler func(Event)

type entry struct {
	id uint64
	h  Handler
}

type Bus struct {
	mu       sync.RWMutex
	handlers map[Topic][]entry
	last     map[Topic]Event
	nextID   uint64
	closed   bool
}

func New() *Bus {
	return &Bus{
		handlers: map[Topic][]entry{},
		last:     map[Topic]Event{},
	}
}

// Subscribe registers h for topic and returns a func that removes it.
// Subscribing to a closed bus is a no-op.
func (b *Bus) Subscribe(topic Topic, h Handler) (unsubscribe func()) {
	if b == nil || h == nil {
		return func() {}
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return func() {}
	}
	b.nextID++
	id := b.nextID
	b.handlers[topic] = append(b.handlers[topic], entry{id: id, h: h})
	return func() { b.remove(topic, id) }
}

func (b *Bus) remove(topic Topic, id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	hs := b.handlers[topic]
	for i, e := range hs {
		if e.id == id {
			b.handlers[topic] = append(hs[:i:i], hs[i+1:]...)
			return
		}
	}
}

// Publish delivers ev to every handler of ev.Topic. A nil or closed bus
// drops the event.
func (b *Bus) Publish(ev Event) {
	if b == nil {
		return
	}
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.last[ev.Topic] = ev
	hs := append([]entry(nil), b.handlers[ev.Topic]...)
	b.mu.Unlock()

	for _, e := range hs {
		e.h(ev)
	}
}

// Last returns the most recent event published on topic. It replaces the
// read side of a shared flag, e.g. "is the book open right now".
func (b *Bus) Last(topic Topic) (Event, bool) {
	if b == nil {
		return Event{}, false
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	ev, ok := b.last[topic]
	return ev, ok
}

// Close drops all handlers. Later publishes are ignored.
func (b *Bus) Close() {
	if b == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	b.handlers = map[Topic][]entry{}
}
