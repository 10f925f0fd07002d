// Package events fans dispatcher activity out to live observers (SSE
// clients, the monitor) with a short replay buffer for late joiners.
package events

import (
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"
)

// Event types published by the dispatcher.
const (
	TypeUtterancePartial = "utterance.partial"
	TypeDispatch         = "dispatch.decision"
	TypeExecutorState    = "executor.state"
	TypeExecutorOutput   = "executor.output"
)

type Event struct {
	ID   int64           `json:"id"`
	Type string          `json:"type"`
	At   time.Time       `json:"at"`
	Data json.RawMessage `json:"data"`
}

// Hub is an in-memory pub/sub. Publishing never blocks on slow subscribers;
// their events are dropped instead.
type Hub struct {
	lastID atomic.Int64

	mu     sync.Mutex
	buf    []Event
	head   int
	count  int
	subs   map[int]chan Event
	nextID int
}

func NewHub(capacity int) *Hub {
	if capacity <= 0 {
		capacity = 256
	}
	return &Hub{
		buf:  make([]Event, capacity),
		subs: make(map[int]chan Event),
	}
}

// Publish stamps data as the next event and delivers it.
func (h *Hub) Publish(eventType string, data any) Event {
	payload := json.RawMessage("{}")
	if data != nil {
		if b, err := json.Marshal(data); err == nil {
			payload = b
		}
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	ev := Event{
		ID:   h.lastID.Add(1),
		Type: eventType,
		At:   time.Now().UTC(),
		Data: payload,
	}
	h.appendLocked(ev)
	for _, ch := range h.subs {
		select {
		case ch <- ev:
		default:
		}
	}
	return ev
}

// Subscribe returns a channel of future events and a cancel func that
// closes it.
func (h *Hub) Subscribe() (<-chan Event, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	id := h.nextID
	h.nextID++
	ch := make(chan Event, 128)
	h.subs[id] = ch

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, id)
			close(ch)
			h.mu.Unlock()
		})
	}
	return ch, cancel
}

// Since returns buffered events with ID > lastID, oldest first.
func (h *Hub) Since(lastID int64) []Event {
	h.mu.Lock()
	defer h.mu.Unlock()

	out := make([]Event, 0, h.count)
	for i := 0; i < h.count; i++ {
		ev := h.buf[(h.head+i)%len(h.buf)]
		if ev.ID > lastID {
			out = append(out, ev)
		}
	}
	return out
}

// LastID is the ID of the most recent event, 0 if none.
func (h *Hub) LastID() int64 {
	return h.lastID.Load()
}

func (h *Hub) appendLocked(ev Event) {
	n := len(h.buf)
	if h.count < n {
		h.buf[(h.head+h.count)%n] = ev
		h.count++
		return
	}
	h.buf[h.head] = ev
	h.head = (h.head + 1) % n
}
