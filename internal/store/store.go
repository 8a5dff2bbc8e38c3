// Package store is the read-only descriptor snapshot seam spec.md §2
// assumes exists: "engine loads persisted device/payload/target
// descriptors". The CRUD layer that owns these entities is out of
// scope; this package is the thin interface the runtime calls through,
// plus an in-memory implementation for tests and the CLI demo and a
// Postgres-backed one for a real deployment.
package store

import (
	"context"
	"fmt"
	"sync"

	"github.com/joluben/sigsim/internal/model"
)

// ErrNotFound is returned when a descriptor id has no matching row.
var ErrNotFound = fmt.Errorf("descriptor not found")

// SnapshotStore is the read-only seam the simulation engine loads
// descriptors through. Implementations must not mutate the returned
// values' backing storage after returning them.
type SnapshotStore interface {
	Project(ctx context.Context, id string) (model.ProjectDescriptor, error)
	DevicesForProject(ctx context.Context, projectID string) ([]model.DeviceDescriptor, error)
	Payload(ctx context.Context, id string) (model.PayloadDescriptor, error)
	Target(ctx context.Context, id string) (model.TargetDescriptor, error)
}

// Memory is an in-memory SnapshotStore, used by tests and the `fleetsim
// demo` CLI command in place of a real CRUD-backed database.
type Memory struct {
	mu       sync.RWMutex
	projects map[string]model.ProjectDescriptor
	devices  map[string]model.DeviceDescriptor
	payloads map[string]model.PayloadDescriptor
	targets  map[string]model.TargetDescriptor
}

// NewMemory builds an empty in-memory store ready for Put* calls.
func NewMemory() *Memory {
	return &Memory{
		projects: make(map[string]model.ProjectDescriptor),
		devices:  make(map[string]model.DeviceDescriptor),
		payloads: make(map[string]model.PayloadDescriptor),
		targets:  make(map[string]model.TargetDescriptor),
	}
}

func (m *Memory) PutProject(p model.ProjectDescriptor) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.projects[p.ID] = p
}

func (m *Memory) PutDevice(d model.DeviceDescriptor) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.devices[d.ID] = d
}

func (m *Memory) PutPayload(p model.PayloadDescriptor) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.payloads[p.ID] = p
}

func (m *Memory) PutTarget(t model.TargetDescriptor) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.targets[t.ID] = t
}

func (m *Memory) Project(_ context.Context, id string) (model.ProjectDescriptor, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.projects[id]
	if !ok {
		return model.ProjectDescriptor{}, ErrNotFound
	}
	return p, nil
}

func (m *Memory) DevicesForProject(_ context.Context, projectID string) ([]model.DeviceDescriptor, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.projects[projectID]
	if !ok {
		return nil, ErrNotFound
	}
	out := make([]model.DeviceDescriptor, 0, len(p.EnabledDevice))
	for _, id := range p.EnabledDevice {
		if d, ok := m.devices[id]; ok {
			out = append(out, d)
		}
	}
	return out, nil
}

func (m *Memory) Payload(_ context.Context, id string) (model.PayloadDescriptor, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.payloads[id]
	if !ok {
		return model.PayloadDescriptor{}, ErrNotFound
	}
	return p, nil
}

func (m *Memory) Target(_ context.Context, id string) (model.TargetDescriptor, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.targets[id]
	if !ok {
		return model.TargetDescriptor{}, ErrNotFound
	}
	return t, nil
}
