// Package events carries the "builds changed" signal from the mutating
// operations to whoever renders the data.
package events

import "sync"

type Kind string

const (
	BuildsChanged    Kind = "builds_changed"
	WishlistsChanged Kind = "wishlists_changed"
	VaultRefreshed   Kind = "vault_refreshed"
)

// Event only names what changed. Subscribers reload whatever they display.
type Event struct {
	Kind       Kind  `json:"kind"`
	WishlistID int64 `json:"wishlist_id,omitempty"`
}

// Bus is an in-process fan-out. Every subscriber gets a small buffered
// channel; Publish never blocks and drops the event for a subscriber whose
// buffer is full, since a pending event already tells it to reload.
type Bus struct {
	mu     sync.Mutex
	subs   map[int]chan Event
	nextID int
	buffer int
	closed bool
}

func NewBus(buffer int) *Bus {
	if buffer < 1 {
		buffer = 1
	}
	return &Bus{subs: make(map[int]chan Event), buffer: buffer}
}

// Subscribe registers a listener. The returned cancel func unregisters it and
// closes the channel. After Close the channel comes back already closed.
func (b *Bus) Subscribe() (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan Event, b.buffer)
	if b.closed {
		close(ch)
		return ch, func() {}
	}

	id := b.nextID
	b.nextID++
	b.subs[id] = ch

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if _, ok := b.subs[id]; ok {
				delete(b.subs, id)
				close(ch)
			}
		})
	}
	return ch, cancel
}

// Close ends every subscription so long-lived listeners such as event
// streams return. Publishing after Close is a no-op.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for id, ch := range b.subs {
		delete(b.subs, id)
		close(ch)
	}
}

// Publish delivers evt to every subscriber and reports how many received it.
func (b *Bus) Publish(evt Event) int {
	if b == nil {
		return 0
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	delivered := 0
	for _, ch := range b.subs {
		select {
		case ch <- evt:
			delivered++
		default:
		}
	}
	return delivered
}

func (b *Bus) Subscribers() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}
