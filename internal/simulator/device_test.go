package simulator

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joluben/sigsim/internal/config"
	"github.com/joluben/sigsim/internal/logstream"
	"github.com/joluben/sigsim/internal/metrics"
	"github.com/joluben/sigsim/internal/model"
)

func newTestDevice(gen *fakeGenerator, conn *fakeConnector, cfg config.RetryConfig) *Device {
	mc := metrics.New()
	logs := logstream.New(10, 5)
	desc := model.DeviceDescriptor{ID: "d1", Name: "Device 1", SendInterval: 1}
	return New("proj1", desc, gen, conn, mc, logs, cfg)
}

func TestDevice_BuildPayload_FallsBackOnGeneratorError(t *testing.T) {
	gen := &fakeGenerator{err: errors.New("schema broken")}
	conn := &fakeConnector{kind: model.TargetHTTP}
	d := newTestDevice(gen, conn, config.Default().Retry)

	payload := d.buildPayload()
	assert.Equal(t, "payload_generation_failed", payload["error"])
	assert.Equal(t, "d1", payload["device_id"])
	assert.Equal(t, "Device 1", payload["device_name"])
	assert.NotEmpty(t, payload["timestamp"])
}

func TestDevice_BuildPayload_FillsMissingIdentityFields(t *testing.T) {
	gen := &fakeGenerator{payload: model.Payload{"temperature": 21.5}}
	conn := &fakeConnector{kind: model.TargetHTTP}
	d := newTestDevice(gen, conn, config.Default().Retry)

	payload := d.buildPayload()
	assert.Equal(t, 21.5, payload["temperature"])
	assert.Equal(t, "d1", payload["device_id"])
	assert.Equal(t, "Device 1", payload["device_name"])
}

func TestDevice_SendWithRetry_SucceedsAfterTransientFailures(t *testing.T) {
	gen := &fakeGenerator{payload: model.Payload{"x": 1}}
	conn := &fakeConnector{kind: model.TargetHTTP, failUntil: 2} // first 2 sends fail, 3rd succeeds
	cfg := config.RetryConfig{MaxRetries: 3, BaseDelay: time.Millisecond, MaxConsecutiveErrors: 10}
	d := newTestDevice(gen, conn, cfg)

	ok := d.sendWithRetry(context.Background(), model.Payload{"x": 1})
	assert.True(t, ok)
	assert.EqualValues(t, 3, conn.sendCalls.Load())
}

func TestDevice_SendWithRetry_FailsAfterExhaustingRetries(t *testing.T) {
	gen := &fakeGenerator{payload: model.Payload{"x": 1}}
	conn := &fakeConnector{kind: model.TargetHTTP, sendErr: errors.New("target unreachable")}
	cfg := config.RetryConfig{MaxRetries: 2, BaseDelay: time.Millisecond, MaxConsecutiveErrors: 10}
	d := newTestDevice(gen, conn, cfg)

	ok := d.sendWithRetry(context.Background(), model.Payload{"x": 1})
	assert.False(t, ok)
	assert.EqualValues(t, 3, conn.sendCalls.Load(), "initial attempt plus MaxRetries retries")

	snap := d.Stats()
	assert.EqualValues(t, 1, snap.SendErrors)
}

func TestDevice_EnsureConnection_WebSocketSkipsOuterRetryLoop(t *testing.T) {
	gen := &fakeGenerator{payload: model.Payload{}}
	conn := &fakeConnector{kind: model.TargetWebSocket, connectErr: errors.New("dial failed")}
	cfg := config.RetryConfig{MaxRetries: 3, BaseDelay: time.Millisecond, MaxConsecutiveErrors: 10}
	d := newTestDevice(gen, conn, cfg)

	err := d.ensureConnection(context.Background())
	require.Error(t, err)
	assert.EqualValues(t, 1, conn.connectCalls.Load(), "websocket connectors rely on their own reconnect loop, not the outer retry")
}

func TestDevice_EnsureConnection_NonWebSocketRetriesUpToMaxRetries(t *testing.T) {
	gen := &fakeGenerator{payload: model.Payload{}}
	conn := &fakeConnector{kind: model.TargetHTTP, connectErr: errors.New("refused")}
	cfg := config.RetryConfig{MaxRetries: 2, BaseDelay: time.Millisecond, MaxConsecutiveErrors: 10}
	d := newTestDevice(gen, conn, cfg)

	err := d.ensureConnection(context.Background())
	require.Error(t, err)
	assert.EqualValues(t, 3, conn.connectCalls.Load())
}

func TestDevice_Run_SelfStopsAfterConsecutiveErrorCap(t *testing.T) {
	gen := &fakeGenerator{payload: model.Payload{"x": 1}}
	conn := &fakeConnector{kind: model.TargetHTTP, sendErr: errors.New("boom")}
	cfg := config.RetryConfig{MaxRetries: 0, BaseDelay: time.Millisecond, MaxConsecutiveErrors: 2}
	d := newTestDevice(gen, conn, cfg)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	d.Run(ctx) // self-stops once two consecutive send failures accrue

	assert.False(t, d.IsRunning())
	snap := d.Stats()
	assert.GreaterOrEqual(t, snap.ConsecutiveErrors, int64(2))
	assert.True(t, conn.disconnected.Load(), "shutdown disconnects the connector")
}
