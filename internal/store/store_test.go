package store

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joluben/sigsim/internal/model"
)

func TestMemory_Project_NotFound(t *testing.T) {
	m := NewMemory()
	_, err := m.Project(context.Background(), "missing")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestMemory_DevicesForProject_OnlyReturnsEnabledDeviceList(t *testing.T) {
	m := NewMemory()
	m.PutProject(model.ProjectDescriptor{ID: "p1", EnabledDevice: []string{"d1", "d2"}})
	m.PutDevice(model.DeviceDescriptor{ID: "d1", Name: "Device 1", ProjectID: "p1"})
	m.PutDevice(model.DeviceDescriptor{ID: "d2", Name: "Device 2", ProjectID: "p1"})
	m.PutDevice(model.DeviceDescriptor{ID: "d3", Name: "Device 3", ProjectID: "other"})

	devices, err := m.DevicesForProject(context.Background(), "p1")
	require.NoError(t, err)
	require.Len(t, devices, 2)
	assert.Equal(t, "d1", devices[0].ID)
	assert.Equal(t, "d2", devices[1].ID)
}

func TestMemory_DevicesForProject_UnknownProject(t *testing.T) {
	m := NewMemory()
	_, err := m.DevicesForProject(context.Background(), "missing")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestMemory_DevicesForProject_SkipsDanglingDeviceIDs(t *testing.T) {
	m := NewMemory()
	m.PutProject(model.ProjectDescriptor{ID: "p1", EnabledDevice: []string{"d1", "ghost"}})
	m.PutDevice(model.DeviceDescriptor{ID: "d1", Name: "Device 1", ProjectID: "p1"})

	devices, err := m.DevicesForProject(context.Background(), "p1")
	require.NoError(t, err)
	require.Len(t, devices, 1)
	assert.Equal(t, "d1", devices[0].ID)
}

func TestMemory_Payload_And_Target_RoundTrip(t *testing.T) {
	m := NewMemory()
	m.PutPayload(model.PayloadDescriptor{ID: "payload-1", Kind: model.PayloadKindSchema})
	m.PutTarget(model.TargetDescriptor{ID: "target-1", Kind: model.TargetHTTP})

	payload, err := m.Payload(context.Background(), "payload-1")
	require.NoError(t, err)
	assert.Equal(t, model.PayloadKindSchema, payload.Kind)

	target, err := m.Target(context.Background(), "target-1")
	require.NoError(t, err)
	assert.Equal(t, model.TargetHTTP, target.Kind)

	_, err = m.Payload(context.Background(), "missing")
	assert.True(t, errors.Is(err, ErrNotFound))
	_, err = m.Target(context.Background(), "missing")
	assert.True(t, errors.Is(err, ErrNotFound))
}
