package bus

import (
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Publisher is the write side of the bus.
type Publisher interface {
	Publish(evt Event)
}

// Bus is an in-process publish/subscribe event bus with namespace filtering.
// It is the only path from the core to UI adapters.
type Bus struct {
	mu   sync.RWMutex
	subs map[int]*subscription
	next int
	now  func() time.Time
}

type subscription struct {
	namespace string
	ch        chan Envelope
}

// New creates a new event bus.
func New() *Bus {
	return &Bus{
		subs: make(map[int]*subscription),
		now:  time.Now,
	}
}

// Publish sends an event to all subscribers whose namespace is a prefix of its kind.
func (b *Bus) Publish(evt Event) {
	env := Envelope{ID: uuid.NewString(), OccurredAt: b.now(), Event: evt}
	kind := string(evt.Kind())

	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, sub := range b.subs {
		if strings.HasPrefix(kind, sub.namespace) {
			select {
			case sub.ch <- env:
			default:
				// Slow subscriber: drop rather than stall the core.
			}
		}
	}
}

// Subscribe returns a channel that receives events matching the given namespace prefix
// ("" matches everything). bufSize controls the channel buffer. Returns the channel
// and an unsubscribe function.
func (b *Bus) Subscribe(namespace string, bufSize int) (<-chan Envelope, func()) {
	ch := make(chan Envelope, bufSize)
	b.mu.Lock()
	id := b.next
	b.next++
	b.subs[id] = &subscription{namespace: namespace, ch: ch}
	b.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
		})
	}
}
