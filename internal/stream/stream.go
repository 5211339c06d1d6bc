package stream

import (
	"context"
	"sync"
	"time"
)

// LogEvent notifies subscribers that a new audit log row exists for a tenant.
// Consumers re-fetch their current page rather than patching state from the
// event payload.
type LogEvent struct {
	ID        string    `json:"id"`
	OrgID     string    `json:"org_id,omitempty"`
	UserID    string    `json:"user_id"`
	Action    string    `json:"action"`
	CreatedAt time.Time `json:"created_at"`
}

// Stream fan-outs log events to all active subscribers (SSE clients and log
// viewers).
type Stream struct {
	mu   sync.RWMutex
	subs map[int]chan LogEvent
	next int
}

// New initialises an empty stream.
func New() *Stream {
	return &Stream{subs: make(map[int]chan LogEvent)}
}

// Subscribe registers a subscriber and returns a channel which will receive
// events. The channel is closed when the provided context ends.
func (s *Stream) Subscribe(ctx context.Context) <-chan LogEvent {
	ch := make(chan LogEvent, 16)

	s.mu.Lock()
	id := s.next
	s.next++
	s.subs[id] = ch
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		s.mu.Lock()
		delete(s.subs, id)
		close(ch)
		s.mu.Unlock()
	}()

	return ch
}

// Publish fan-outs the event to all subscribers.
func (s *Stream) Publish(evt LogEvent) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, ch := range s.subs {
		select {
		case ch <- evt:
		default:
			// Drop when subscriber is slow to avoid blocking.
		}
	}
}
