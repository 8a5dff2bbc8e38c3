package simulator

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestStats_RecordSuccess_ResetsConsecutiveErrors(t *testing.T) {
	var s Stats
	now := time.Now()
	s.recordSendError(now, errors.New("boom"))
	s.recordSendError(now, errors.New("boom again"))
	assert.EqualValues(t, 2, s.consecutiveErrorCount())

	s.recordSuccess(now)
	assert.EqualValues(t, 0, s.consecutiveErrorCount())

	snap := s.Snapshot()
	assert.EqualValues(t, 1, snap.MessagesSent)
	assert.Equal(t, now, snap.LastSuccessAt)
}

func TestStats_RecordConnectionError_IncrementsCountersAndLastError(t *testing.T) {
	var s Stats
	now := time.Now()
	s.recordConnectionError(now, errors.New("dial tcp: refused"))

	snap := s.Snapshot()
	assert.EqualValues(t, 1, snap.ConnectionErrors)
	assert.EqualValues(t, 1, snap.TotalErrors)
	assert.EqualValues(t, 1, snap.ConsecutiveErrors)
	assert.Equal(t, "dial tcp: refused", snap.LastError)
	assert.Equal(t, now, snap.LastConnectionAttempt)
}

func TestStats_RecordRetry_DoesNotAffectErrorCounters(t *testing.T) {
	var s Stats
	s.recordRetry()
	s.recordRetry()

	snap := s.Snapshot()
	assert.EqualValues(t, 2, snap.TotalRetries)
	assert.EqualValues(t, 0, snap.TotalErrors)
}
