package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joluben/sigsim/internal/config"
	"github.com/joluben/sigsim/internal/metrics"
	"github.com/joluben/sigsim/internal/model"
	"github.com/joluben/sigsim/internal/simerrors"
	"github.com/joluben/sigsim/internal/store"
)

func seededStore(t *testing.T) *store.Memory {
	t.Helper()
	s := store.NewMemory()
	s.PutPayload(model.PayloadDescriptor{
		ID:   "payload-1",
		Kind: model.PayloadKindSchema,
		Schema: []model.FieldSpec{
			{Name: "v", Type: model.FieldTypeNumber, Generator: model.GeneratorSpec{Variant: model.GeneratorFixed, Value: 1}},
		},
	})
	s.PutTarget(model.TargetDescriptor{ID: "target-1", Kind: model.TargetHTTP, Config: map[string]any{"url": "http://example.invalid/ingest"}})
	s.PutDevice(model.DeviceDescriptor{ID: "d1", Name: "Device 1", ProjectID: "p1", PayloadRef: "payload-1", TargetRef: "target-1", SendInterval: 1, Enabled: true})
	s.PutDevice(model.DeviceDescriptor{ID: "d2", Name: "Device 2", ProjectID: "p1", SendInterval: 1, Enabled: true}) // missing payload/target, must be skipped
	s.PutProject(model.ProjectDescriptor{ID: "p1", EnabledDevice: []string{"d1", "d2"}})
	return s
}

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	return New(seededStore(t), metrics.New(), config.Default())
}

func TestEngine_StartProject_LaunchesEnabledDevicesAndSkipsInvalidOnes(t *testing.T) {
	e := newTestEngine(t)
	defer e.EmergencyStopAll()

	err := e.StartProject(context.Background(), "p1")
	require.NoError(t, err)

	status := e.Status("p1")
	assert.True(t, status.IsRunning)
	assert.Equal(t, 1, status.TotalDevices, "d2 lacks a payload/target and must be skipped, not launched")
	require.Len(t, status.Devices, 1)
	assert.Equal(t, "d1", status.Devices[0].DeviceID)
}

func TestEngine_StartProject_AlreadyRunning(t *testing.T) {
	e := newTestEngine(t)
	defer e.EmergencyStopAll()

	require.NoError(t, e.StartProject(context.Background(), "p1"))
	err := e.StartProject(context.Background(), "p1")
	assert.ErrorIs(t, err, simerrors.ErrAlreadyRunning)
}

func TestEngine_StopProject_NotRunning(t *testing.T) {
	e := newTestEngine(t)
	err := e.StopProject("never-started")
	assert.ErrorIs(t, err, simerrors.ErrNotRunning)
}

func TestEngine_Status_UnknownProject_ReturnsNotRunning(t *testing.T) {
	e := newTestEngine(t)
	status := e.Status("missing")
	assert.False(t, status.IsRunning)
	assert.Empty(t, status.Devices)
}

func TestEngine_StartProject_NoDevicesAtAll_Errors(t *testing.T) {
	s := store.NewMemory()
	s.PutProject(model.ProjectDescriptor{ID: "empty", EnabledDevice: nil})
	e := New(s, metrics.New(), config.Default())

	err := e.StartProject(context.Background(), "empty")
	assert.Error(t, err)
}

func TestEngine_ValidateProject_RequiresPayloadTargetAndInterval(t *testing.T) {
	e := newTestEngine(t)

	result, err := e.ValidateProject(context.Background(), "p1")
	require.NoError(t, err)
	assert.Equal(t, 2, result.TotalDevices)
	assert.Equal(t, 1, result.ValidDevices)
	assert.True(t, result.Valid)
	assert.NotEmpty(t, result.Errors)
}

func TestEngine_ValidateProject_WarnsOnFastInterval(t *testing.T) {
	s := store.NewMemory()
	s.PutPayload(model.PayloadDescriptor{ID: "payload-1", Kind: model.PayloadKindSchema})
	s.PutTarget(model.TargetDescriptor{ID: "target-1", Kind: model.TargetHTTP})
	s.PutDevice(model.DeviceDescriptor{ID: "d1", Name: "D1", PayloadRef: "payload-1", TargetRef: "target-1", SendInterval: 1, Enabled: true})
	s.PutProject(model.ProjectDescriptor{ID: "p1", EnabledDevice: []string{"d1"}})
	e := New(s, metrics.New(), config.Default())

	result, err := e.ValidateProject(context.Background(), "p1")
	require.NoError(t, err)
	assert.True(t, result.Valid)
	assert.NotEmpty(t, result.Warnings, "send_interval below 5s should warn, not fail")
}

func TestEngine_EmergencyStopAll_StopsEveryRunningProject(t *testing.T) {
	e := newTestEngine(t)
	require.NoError(t, e.StartProject(context.Background(), "p1"))

	stopped := e.EmergencyStopAll()
	assert.Equal(t, []string{"p1"}, stopped)
	assert.False(t, e.Status("p1").IsRunning)
}

func TestEngine_SubscribeLogs_UnknownProject(t *testing.T) {
	e := newTestEngine(t)
	_, ok := e.SubscribeLogs("missing")
	assert.False(t, ok)
}
