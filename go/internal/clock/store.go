package clock

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// Store holds the process-wide "now" value shared by every consumer that needs
// the current time (kitchen displays, order age timers, clock broadcasts).
type Store struct {
	source clockwork.Clock

	mu   sync.RWMutex
	now  time.Time
	subs map[int]chan time.Time
	next int
}

// NewStore creates a new Store initialized to source.Now()
func NewStore(source clockwork.Clock) *Store {
	if source == nil {
		source = clockwork.NewRealClock()
	}
	return &Store{
		source: source,
		now:    source.Now(),
		subs:   make(map[int]chan time.Time),
	}
}

// Now returns the value written by the most recent Tick
func (s *Store) Now() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.now
}

// Tick overwrites the stored time with the current wall-clock time and hands
// the new value to subscribers. It never blocks and never fails.
func (s *Store) Tick() {
	now := s.source.Now()

	s.mu.Lock()
	s.now = now
	for _, ch := range s.subs {
		// Latest value wins for slow subscribers
		select {
		case ch <- now:
		default:
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- now:
			default:
			}
		}
	}
	s.mu.Unlock()
}

// Subscribe returns a channel receiving the value of every tick and a cancel
// func. The channel is closed by cancel.
func (s *Store) Subscribe() (<-chan time.Time, func()) {
	ch := make(chan time.Time, 1)

	s.mu.Lock()
	id := s.next
	s.next++
	s.subs[id] = ch
	s.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subs, id)
			s.mu.Unlock()
			close(ch)
		})
	}
}

// Subscribers returns the number of live subscriptions
func (s *Store) Subscribers() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.subs)
}
