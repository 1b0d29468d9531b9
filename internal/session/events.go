package session

import (
	"sync"
	"time"

	"github.com/hyperjump/findify/internal/models"
)

// EventState is the type of the event published at every transition boundary.
const EventState = "state"

// Event carries a session state snapshot to subscribers.
type Event struct {
	Seq       uint64              `json:"seq"`
	Type      string              `json:"type"`
	Timestamp time.Time           `json:"timestamp"`
	State     models.SessionState `json:"state"`
}

const subscriberBuffer = 32

// eventBus fans events out to subscribers without blocking the publisher.
// A subscriber whose buffer is full misses events.
type eventBus struct {
	mu          sync.Mutex
	subscribers map[uint64]chan Event
	nextSub     uint64
	seq         uint64
	closed      bool
}

func newEventBus() *eventBus {
	return &eventBus{subscribers: make(map[uint64]chan Event)}
}

// subscribe registers a subscriber and queues initial as its first event.
func (b *eventBus) subscribe(initial models.SessionState) (uint64, <-chan Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	ch := make(chan Event, subscriberBuffer)
	if b.closed {
		close(ch)
		return 0, ch
	}
	b.nextSub++
	b.subscribers[b.nextSub] = ch
	b.seq++
	ch <- Event{Seq: b.seq, Type: EventState, Timestamp: time.Now(), State: initial}
	return b.nextSub, ch
}

func (b *eventBus) unsubscribe(id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if ch, ok := b.subscribers[id]; ok {
		delete(b.subscribers, id)
		close(ch)
	}
}

func (b *eventBus) publish(eventType string, state models.SessionState) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.seq++
	ev := Event{Seq: b.seq, Type: eventType, Timestamp: time.Now(), State: state}
	for _, ch := range b.subscribers {
		select {
		case ch <- ev:
		default:
		}
	}
}

func (b *eventBus) close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for id, ch := range b.subscribers {
		delete(b.subscribers, id)
		close(ch)
	}
}
