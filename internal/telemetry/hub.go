package telemetry

import (
	"sync"
	"time"
)

// Kind classifies a log entry.
type Kind string

const (
	KindTx    Kind = "tx"
	KindRx    Kind = "rx"
	KindInfo  Kind = "info"
	KindError Kind = "error"
)

// Entry is a single append-only log record. Entries are never mutated after
// publication.
type Entry struct {
	Timestamp time.Time `json:"ts"`
	Kind      Kind      `json:"kind"`
	Message   string    `json:"message"`
}

// Handler receives published entries. Delivery is synchronous with the
// publisher; handlers must not block.
type Handler func(Entry)

// Hub distributes log entries to registered handlers and retains a bounded
// window of recent entries.
type Hub struct {
	mu       sync.Mutex
	nextID   int
	order    []int
	handlers map[int]Handler

	recent   []Entry
	capacity int
}

// DefaultRecentCapacity bounds the ring of retained entries.
const DefaultRecentCapacity = 200

// NewHub creates a hub retaining up to capacity recent entries. A capacity
// of zero or less falls back to DefaultRecentCapacity.
func NewHub(capacity int) *Hub {
	if capacity <= 0 {
		capacity = DefaultRecentCapacity
	}
	return &Hub{
		handlers: make(map[int]Handler),
		capacity: capacity,
	}
}

// Subscribe registers a handler and returns its id for Unsubscribe.
// Handlers are invoked in registration order.
func (h *Hub) Subscribe(handler Handler) int {
	h.mu.Lock()
	defer h.mu.Unlock()

	id := h.nextID
	h.nextID++
	h.handlers[id] = handler
	h.order = append(h.order, id)
	return id
}

// Unsubscribe removes a handler. Unknown ids are ignored.
func (h *Hub) Unsubscribe(id int) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.handlers[id]; !ok {
		return
	}
	delete(h.handlers, id)
	for i, v := range h.order {
		if v == id {
			h.order = append(h.order[:i], h.order[i+1:]...)
			break
		}
	}
}

// Publish appends an entry to the recent window and delivers it to every
// handler in registration order.
func (h *Hub) Publish(kind Kind, message string) {
	entry := Entry{Timestamp: time.Now(), Kind: kind, Message: message}

	h.mu.Lock()
	h.recent = append(h.recent, entry)
	if len(h.recent) > h.capacity {
		h.recent = h.recent[len(h.recent)-h.capacity:]
	}
	handlers := make([]Handler, 0, len(h.order))
	for _, id := range h.order {
		handlers = append(handlers, h.handlers[id])
	}
	h.mu.Unlock()

	for _, handler := range handlers {
		handler(entry)
	}
}

// Tx publishes a transmitted-bytes entry.
func (h *Hub) Tx(message string) { h.Publish(KindTx, message) }

// Rx publishes a received-line entry.
func (h *Hub) Rx(message string) { h.Publish(KindRx, message) }

// Info publishes an informational entry.
func (h *Hub) Info(message string) { h.Publish(KindInfo, message) }

// Error publishes an error entry.
func (h *Hub) Error(message string) { h.Publish(KindError, message) }

// Recent returns a copy of the retained entry window, oldest first.
func (h *Hub) Recent() []Entry {
	h.mu.Lock()
	defer h.mu.Unlock()

	out := make([]Entry, len(h.recent))
	copy(out, h.recent)
	return out
}
