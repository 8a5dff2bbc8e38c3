package simulator

import (
	"sync"
	"time"
)

// Stats is the DeviceStats entity from spec.md §3. It is mutated only by
// its owning Device; readers (status endpoints) call Snapshot for a
// consistent copy.
type Stats struct {
	mu sync.RWMutex

	messagesSent           int64
	totalErrors            int64
	connectionErrors       int64
	sendErrors             int64
	consecutiveErrors      int64
	totalRetries           int64
	lastMessageAt          time.Time
	lastSuccessAt          time.Time
	lastError              string
	lastConnectionAttempt  time.Time
}

// StatsSnapshot is the read-only view returned by Stats.Snapshot.
type StatsSnapshot struct {
	MessagesSent          int64
	TotalErrors           int64
	ConnectionErrors      int64
	SendErrors            int64
	ConsecutiveErrors     int64
	TotalRetries          int64
	LastMessageAt         time.Time
	LastSuccessAt         time.Time
	LastError             string
	LastConnectionAttempt time.Time
}

func (s *Stats) Snapshot() StatsSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return StatsSnapshot{
		MessagesSent:          s.messagesSent,
		TotalErrors:           s.totalErrors,
		ConnectionErrors:      s.connectionErrors,
		SendErrors:            s.sendErrors,
		ConsecutiveErrors:     s.consecutiveErrors,
		TotalRetries:          s.totalRetries,
		LastMessageAt:         s.lastMessageAt,
		LastSuccessAt:         s.lastSuccessAt,
		LastError:             s.lastError,
		LastConnectionAttempt: s.lastConnectionAttempt,
	}
}

// recordSuccess resets consecutive_errors to 0 and bumps messages_sent,
// per spec.md §3's invariant: "consecutive_errors is reset to 0 on any
// successful send."
func (s *Stats) recordSuccess(at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messagesSent++
	s.consecutiveErrors = 0
	s.lastMessageAt = at
	s.lastSuccessAt = at
}

// recordConnectionError counts a tick whose connection could not be
// established after all connect retries.
func (s *Stats) recordConnectionError(at time.Time, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connectionErrors++
	s.totalErrors++
	s.consecutiveErrors++
	s.lastConnectionAttempt = at
	if err != nil {
		s.lastError = err.Error()
	}
}

// recordSendError counts a tick whose send still failed after all send
// retries (post-connection).
func (s *Stats) recordSendError(at time.Time, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sendErrors++
	s.totalErrors++
	s.consecutiveErrors++
	s.lastMessageAt = at
	if err != nil {
		s.lastError = err.Error()
	}
}

// recordRetry counts one retry attempt, independent of whether it is a
// connection or send retry.
func (s *Stats) recordRetry() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.totalRetries++
}

func (s *Stats) recordConnectionAttempt(at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastConnectionAttempt = at
}

func (s *Stats) consecutiveErrorCount() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.consecutiveErrors
}
