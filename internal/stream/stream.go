package stream

import (
	"context"
	"sync"
	"time"
)

// Change describes one workspace transition. It carries identifiers only;
// subscribers re-read the record they care about.
type Change struct {
	Kind      string    `json:"kind"`
	Entity    string    `json:"entity"`
	ID        string    `json:"id"`
	PrevID    string    `json:"prevId,omitempty"`
	Phase     string    `json:"phase"`
	Timestamp time.Time `json:"timestamp"`
}

// Stream fan-outs changes to all active subscribers (SSE clients).
type Stream struct {
	mu   sync.RWMutex
	subs map[int]chan Change
	next int
	now  func() time.Time
}

// New initialises an empty stream.
func New() *Stream {
	return &Stream{
		subs: make(map[int]chan Change),
		now:  time.Now,
	}
}

// Subscribe registers a subscriber and returns a channel which will receive changes.
// The channel is closed when the provided context ends.
func (s *Stream) Subscribe(ctx context.Context) <-chan Change {
	ch := make(chan Change, 16)

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

// Subscribers returns the number of live subscriptions.
func (s *Stream) Subscribers() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.subs)
}

// Publish fan-outs the change to all subscribers.
func (s *Stream) Publish(c Change) {
	if c.Timestamp.IsZero() {
		c.Timestamp = s.now().UTC()
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, ch := range s.subs {
		select {
		case ch <- c:
		default:
			// Drop when subscriber is slow to avoid blocking.
		}
	}
}
