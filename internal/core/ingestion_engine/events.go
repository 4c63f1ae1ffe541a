package ingestion_engine

import (
	"sync"
	"time"
)

// EventType enumerates the lifecycle notifications the ingestor emits.
type EventType string

const (
	EventJobStarted   EventType = "job_started"
	EventJobCompleted EventType = "job_completed"
	EventJobRequeued  EventType = "job_requeued"
	EventJobFailed    EventType = "job_failed"
)

// Event is a best-effort progress notification. Delivery is not required
// for correctness; the queue's state machine remains the source of truth.
type Event struct {
	Type       EventType
	CourseID   string
	DocumentID string
	Filename   string
	Error      string
	At         time.Time
}

const eventBuffer = 32

// Broadcaster fans events out to subscribers without ever blocking the
// producer: a full subscriber drops its oldest event to make room.
type Broadcaster struct {
	mu   sync.RWMutex
	subs []chan Event
}

func NewBroadcaster() *Broadcaster { return &Broadcaster{} }

// Subscribe returns a buffered channel of lifecycle events. The channel is
// never closed; slow consumers lose the oldest events, not the newest.
func (b *Broadcaster) Subscribe() <-chan Event {
	ch := make(chan Event, eventBuffer)
	b.mu.Lock()
	b.subs = append(b.subs, ch)
	b.mu.Unlock()
	return ch
}

func (b *Broadcaster) Publish(ev Event) {
	if ev.At.IsZero() {
		ev.At = time.Now()
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subs {
		select {
		case ch <- ev:
		default:
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- ev:
			default:
			}
		}
	}
}
