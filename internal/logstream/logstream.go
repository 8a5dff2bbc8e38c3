// Package logstream implements the per-project log fan-out from spec.md
// §4.5 and §4.8: a bounded ring buffer (kept oldest first) plus a set of
// subscribers. Delivery is non-blocking for the publishing simulator — a
// slow or dead subscriber is dropped on the next fan-out attempt rather
// than stalling the project, the same "observer pattern, non-owning
// reference" re-architecture SPEC_FULL.md/spec.md §9 calls for.
package logstream

import (
	"sync"

	"github.com/joluben/sigsim/internal/model"
)

// DefaultCapacity is the ring buffer's default bound (spec.md §4.5).
const DefaultCapacity = 100

// ReplayCount is how many buffered entries a new subscriber replays,
// oldest-first among the replayed set (spec.md §4.5, §6).
const ReplayCount = 20

// Subscriber is a channel endpoint a project fans log entries out to. It
// is buffered so a brief stall in the consumer doesn't immediately drop
// it; a full channel on delivery is treated as a dead subscriber.
type Subscriber struct {
	ch chan model.LogEntry
}

// C returns the receive side of the subscriber's channel.
func (s *Subscriber) C() <-chan model.LogEntry { return s.ch }

// Stream is a bounded ring buffer plus a fan-out subscriber set, one per
// running project.
type Stream struct {
	mu          sync.Mutex
	capacity    int
	replayCount int
	buf         []model.LogEntry // chronological order, oldest first
	subscribers map[*Subscriber]struct{}
}

// New builds a Stream with the given ring-buffer capacity and replay
// count. Either argument <= 0 falls back to its default.
func New(capacity, replayCount int) *Stream {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	if replayCount <= 0 {
		replayCount = ReplayCount
	}
	return &Stream{
		capacity:    capacity,
		replayCount: replayCount,
		buf:         make([]model.LogEntry, 0, capacity),
		subscribers: make(map[*Subscriber]struct{}),
	}
}

// Publish appends entry to the ring buffer, evicting the oldest entry if
// at capacity, then attempts non-blocking delivery to every subscriber.
// A subscriber whose channel is full is removed — it is presumed dead,
// matching the SubscriberDead error kind from spec.md §7.
func (s *Stream) Publish(entry model.LogEntry) {
	s.mu.Lock()
	s.buf = append(s.buf, entry)
	if len(s.buf) > s.capacity {
		s.buf = s.buf[len(s.buf)-s.capacity:]
	}
	dead := make([]*Subscriber, 0)
	for sub := range s.subscribers {
		select {
		case sub.ch <- entry:
		default:
			dead = append(dead, sub)
		}
	}
	for _, sub := range dead {
		delete(s.subscribers, sub)
		close(sub.ch)
	}
	s.mu.Unlock()
}

// Subscribe registers a new subscriber and returns it along with the
// chronological replay of up to ReplayCount most recent buffered entries.
// The caller is responsible for delivering the replay before reading
// further live entries from Subscriber.C().
func (s *Stream) Subscribe() (*Subscriber, []model.LogEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sub := &Subscriber{ch: make(chan model.LogEntry, 64)}
	s.subscribers[sub] = struct{}{}

	n := len(s.buf)
	if n > s.replayCount {
		n = s.replayCount
	}
	replay := make([]model.LogEntry, n)
	copy(replay, s.buf[len(s.buf)-n:])
	return sub, replay
}

// Unsubscribe removes sub from the fan-out set and closes its channel.
// Safe to call more than once.
func (s *Stream) Unsubscribe(sub *Subscriber) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.subscribers[sub]; ok {
		delete(s.subscribers, sub)
		close(sub.ch)
	}
}

// Snapshot returns every buffered entry, oldest first. Used by status
// endpoints and tests; does not affect the live stream.
func (s *Stream) Snapshot() []model.LogEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.LogEntry, len(s.buf))
	copy(out, s.buf)
	return out
}

// SubscriberCount returns the number of currently connected subscribers.
func (s *Stream) SubscriberCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subscribers)
}
