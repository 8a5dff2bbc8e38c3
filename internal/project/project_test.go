package project

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joluben/sigsim/internal/config"
	"github.com/joluben/sigsim/internal/logstream"
	"github.com/joluben/sigsim/internal/metrics"
	"github.com/joluben/sigsim/internal/model"
	"github.com/joluben/sigsim/internal/simulator"
)

type fakeGenerator struct{}

func (fakeGenerator) Generate(deviceMetadata model.Payload) (model.Payload, error) {
	return model.Payload{"ok": true}, nil
}

type fakeConnector struct{ kind model.TargetKind }

func (c fakeConnector) Connect(ctx context.Context) error                  { return nil }
func (c fakeConnector) Send(ctx context.Context, payload model.Payload) error { return nil }
func (c fakeConnector) Disconnect(ctx context.Context) error               { return nil }
func (c fakeConnector) Kind() model.TargetKind                             { return c.kind }

// newTestDevice builds a Device against its own private log stream — the
// project's own p.Logs is what these tests assert against, this is only
// plumbing simulator.New requires.
func newTestDevice(id string) *simulator.Device {
	mc := metrics.New()
	logs := logstream.New(10, 5)
	return simulator.New("proj1", model.DeviceDescriptor{ID: id, Name: id, SendInterval: 1}, fakeGenerator{}, fakeConnector{kind: model.TargetHTTP}, mc, logs, config.Default().Retry)
}

func TestProject_New_StartsNotRunning(t *testing.T) {
	p := New("proj1", 10, 5)
	assert.False(t, p.IsRunning())
	assert.True(t, p.StartedAt().IsZero())
	assert.Empty(t, p.Devices())
}

func TestProject_Start_LaunchesEveryDeviceAndMarksRunning(t *testing.T) {
	p := New("proj1", 10, 5)
	devices := []*simulator.Device{newTestDevice("d1"), newTestDevice("d2")}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	launched := p.Start(ctx, devices)
	assert.Equal(t, 2, launched)
	assert.True(t, p.IsRunning())
	assert.False(t, p.StartedAt().IsZero())
	assert.Len(t, p.Devices(), 2)

	p.Stop()
	assert.False(t, p.IsRunning())
}

func TestProject_Stop_WaitsForAllSimulatorsToExit(t *testing.T) {
	p := New("proj1", 10, 5)
	devices := []*simulator.Device{newTestDevice("d1")}

	p.Start(context.Background(), devices)
	p.Stop() // must return only once the device goroutine has exited

	assert.False(t, devices[0].IsRunning())
}

func TestProject_LogDeviceSkipped_PublishesWarning(t *testing.T) {
	p := New("proj1", 10, 5)
	sub, _ := p.Logs.Subscribe()
	defer p.Logs.Unsubscribe(sub)

	p.LogDeviceSkipped("d1", "Device 1", "missing payload or target reference")

	select {
	case entry := <-sub.C():
		assert.Equal(t, model.EventWarning, entry.EventType)
		assert.Contains(t, entry.Message, "missing payload or target reference")
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for skip log entry")
	}
}

func TestProject_Stop_WithoutStart_IsSafe(t *testing.T) {
	p := New("proj1", 10, 5)
	require.NotPanics(t, func() { p.Stop() })
}
