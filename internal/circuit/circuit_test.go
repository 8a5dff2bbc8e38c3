package circuit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBreaker_StartsClosed(t *testing.T) {
	b := New(Config{Name: "test"})
	assert.Equal(t, StateClosed, b.State())
}

func TestBreaker_ClosedStateSurvivesSuccess(t *testing.T) {
	b := New(Config{Name: "test", FailureThreshold: 3})

	err := b.Call(context.Background(), func() error { return nil })
	require.NoError(t, err)
	assert.Equal(t, StateClosed, b.State())
}

func TestBreaker_OpensAfterConsecutiveFailureThreshold(t *testing.T) {
	b := New(Config{Name: "test", FailureThreshold: 3})
	failing := func() error { return errors.New("downstream unavailable") }

	for i := 0; i < 2; i++ {
		err := b.Call(context.Background(), failing)
		require.Error(t, err)
		assert.Equal(t, StateClosed, b.State(), "breaker opens only at the threshold, not before")
	}

	err := b.Call(context.Background(), failing)
	require.Error(t, err)
	assert.Equal(t, StateOpen, b.State())
}

func TestBreaker_OpenShortCircuitsWithoutCallingFn(t *testing.T) {
	b := New(Config{Name: "test", FailureThreshold: 1})

	err := b.Call(context.Background(), func() error { return errors.New("boom") })
	require.Error(t, err)
	require.Equal(t, StateOpen, b.State())

	called := false
	err = b.Call(context.Background(), func() error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.False(t, called, "fn must not run while the breaker is open")
}

func TestBreaker_SingleSuccessInHalfOpenCloses(t *testing.T) {
	b := New(Config{Name: "test", FailureThreshold: 1, RecoveryTimeout: 20 * time.Millisecond})

	err := b.Call(context.Background(), func() error { return errors.New("boom") })
	require.Error(t, err)
	require.Equal(t, StateOpen, b.State())

	time.Sleep(30 * time.Millisecond)

	err = b.Call(context.Background(), func() error { return nil })
	require.NoError(t, err)
	assert.Equal(t, StateClosed, b.State(), "one success in HALF_OPEN resets to CLOSED")

	stats := b.Stats()
	assert.EqualValues(t, 0, stats.ConsecutiveFailures, "closing resets the consecutive failure count")
}

func TestBreaker_FailureInHalfOpenReopens(t *testing.T) {
	b := New(Config{Name: "test", FailureThreshold: 1, RecoveryTimeout: 20 * time.Millisecond})

	_ = b.Call(context.Background(), func() error { return errors.New("boom") })
	require.Equal(t, StateOpen, b.State())

	time.Sleep(30 * time.Millisecond)

	err := b.Call(context.Background(), func() error { return errors.New("still down") })
	require.Error(t, err)
	assert.Equal(t, StateOpen, b.State())
}

func TestBreaker_DefaultsApplyWhenZero(t *testing.T) {
	b := New(Config{Name: "defaults"})
	for i := 0; i < 4; i++ {
		err := b.Call(context.Background(), func() error { return errors.New("fail") })
		require.Error(t, err)
	}
	assert.Equal(t, StateClosed, b.State(), "default threshold is 5, four failures should not open it")

	err := b.Call(context.Background(), func() error { return errors.New("fail") })
	require.Error(t, err)
	assert.Equal(t, StateOpen, b.State(), "the fifth consecutive failure trips the default threshold")
}

func TestBreaker_StatsTracksLastFailure(t *testing.T) {
	b := New(Config{Name: "test", FailureThreshold: 1})
	assert.True(t, b.LastFailure().IsZero())

	before := time.Now()
	_ = b.Call(context.Background(), func() error { return errors.New("boom") })
	assert.False(t, b.LastFailure().Before(before))
}

func TestBreaker_ConsecutiveFailuresResetBySuccess(t *testing.T) {
	b := New(Config{Name: "test", FailureThreshold: 3})

	_ = b.Call(context.Background(), func() error { return errors.New("fail") })
	_ = b.Call(context.Background(), func() error { return errors.New("fail") })
	require.NoError(t, b.Call(context.Background(), func() error { return nil }))

	err := b.Call(context.Background(), func() error { return errors.New("fail") })
	require.Error(t, err)
	assert.Equal(t, StateClosed, b.State(), "a success in between resets the consecutive count")
}
