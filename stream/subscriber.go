package stream

import (
	"sync"
	"sync/atomic"
)

// Subscriber is one consumer of broker events. Delivery is credit
// metered: each delivered event costs one credit, and a subscriber at
// zero credits is skipped until it calls AddCredits. Slow consumers
// therefore drop events instead of stalling publishers.
type Subscriber struct {
	id string
	ch chan *Event

	credits atomic.Int64
	closed  atomic.Bool

	// filter, when set, must return true for an event to be delivered.
	filter func(*Event) bool

	mu     sync.RWMutex
	topics map[string]struct{}
}

// NewSubscriber creates a subscriber with a buffered delivery channel
// and an initial credit balance.
func NewSubscriber(id string, bufferSize int, initialCredits int64) *Subscriber {
	s := &Subscriber{
		id:     id,
		ch:     make(chan *Event, bufferSize),
		topics: make(map[string]struct{}),
	}
	s.credits.Store(initialCredits)
	return s
}

// ID returns the subscriber identifier.
func (s *Subscriber) ID() string { return s.id }

// C is the channel events arrive on. It is closed by Close.
func (s *Subscriber) C() <-chan *Event { return s.ch }

// AddCredits grants the subscriber n more deliveries.
func (s *Subscriber) AddCredits(n int64) { s.credits.Add(n) }

// Credits reports the remaining credit balance.
func (s *Subscriber) Credits() int64 { return s.credits.Load() }

// SetFilter installs a delivery predicate. Set before subscribing;
// it is read without synchronization on the publish path.
func (s *Subscriber) SetFilter(fn func(*Event) bool) { s.filter = fn }

// Topics returns the names of all topics the subscriber is on.
func (s *Subscriber) Topics() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.topics))
	for t := range s.topics {
		out = append(out, t)
	}
	return out
}

func (s *Subscriber) addTopic(topic string) {
	s.mu.Lock()
	s.topics[topic] = struct{}{}
	s.mu.Unlock()
}

func (s *Subscriber) removeTopic(topic string) {
	s.mu.Lock()
	delete(s.topics, topic)
	s.mu.Unlock()
}

// takeCredit atomically spends one credit. Returns false at zero.
func (s *Subscriber) takeCredit() bool {
	for {
		current := s.credits.Load()
		if current <= 0 {
			return false
		}
		if s.credits.CompareAndSwap(current, current-1) {
			return true
		}
	}
}

// send delivers an event without blocking. It returns false when the
// event is dropped: subscriber closed, filter mismatch, no credits, or
// a full buffer (in which case the spent credit is refunded).
func (s *Subscriber) send(evt *Event) bool {
	if s.closed.Load() {
		return false
	}
	if s.filter != nil && !s.filter(evt) {
		return false
	}
	if !s.takeCredit() {
		return false
	}

	select {
	case s.ch <- evt:
		return true
	default:
		s.credits.Add(1)
		return false
	}
}

// Close closes the delivery channel. Idempotent.
func (s *Subscriber) Close() {
	if s.closed.CompareAndSwap(false, true) {
		close(s.ch)
	}
}
