// Package project implements the SimulationProject container from
// spec.md §4.5 and §3: a set of device simulators launched and stopped
// together, plus the log ring buffer/fan-out they all publish into.
package project

import (
	"context"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/joluben/sigsim/internal/logstream"
	"github.com/joluben/sigsim/internal/model"
	"github.com/joluben/sigsim/internal/simulator"
)

// Project owns every running simulator for one project id, plus its log
// stream. It exclusively owns its simulators; nothing outside Stop/Start
// mutates the device slice.
type Project struct {
	ID string

	Logs *logstream.Stream

	mu        sync.RWMutex
	devices   []*simulator.Device
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	startedAt time.Time
	running   atomic.Bool
	sink      io.Closer
}

// SetSink attaches an optional external log mirror (internal/logsink) that
// Stop closes alongside the project's own simulators. A nil sink is a no-op,
// so callers needn't branch on whether the mirror is enabled.
func (p *Project) SetSink(sink io.Closer) {
	p.mu.Lock()
	p.sink = sink
	p.mu.Unlock()
}

// New builds an empty, not-yet-started project container.
func New(id string, logBufferCapacity, logReplayCount int) *Project {
	return &Project{
		ID:   id,
		Logs: logstream.New(logBufferCapacity, logReplayCount),
	}
}

// Start launches one goroutine per device in devices and records
// started_at. Returns the number of simulators actually launched; the
// engine treats zero as a start failure.
func (p *Project) Start(ctx context.Context, devices []*simulator.Device) int {
	p.mu.Lock()
	defer p.mu.Unlock()

	runCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.devices = devices
	p.startedAt = time.Now()
	p.running.Store(true)

	for _, d := range devices {
		p.wg.Add(1)
		dev := d
		go func() {
			defer p.wg.Done()
			dev.Run(runCtx)
		}()
	}
	return len(devices)
}

// Stop signals cancellation to every simulator and blocks until all have
// exited. Safe to call even if Start was never called.
func (p *Project) Stop() {
	p.mu.Lock()
	cancel := p.cancel
	p.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	p.wg.Wait()
	p.running.Store(false)

	p.mu.Lock()
	sink := p.sink
	p.mu.Unlock()
	if sink != nil {
		if err := sink.Close(); err != nil {
			log.Warn().Str("project_id", p.ID).Err(err).Msg("error closing log sink")
		}
	}
}

// IsRunning reports whether the project has an active (not yet stopped)
// set of simulators.
func (p *Project) IsRunning() bool { return p.running.Load() }

// StartedAt returns the time Start was called, or the zero time if the
// project has never started.
func (p *Project) StartedAt() time.Time {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.startedAt
}

// Devices returns the current device simulator set. Callers must treat
// the returned slice as read-only.
func (p *Project) Devices() []*simulator.Device {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]*simulator.Device, len(p.devices))
	copy(out, p.devices)
	return out
}

// Publish is a convenience wrapper so callers needn't reach into Logs
// directly for project-level events such as the device-skipped notices
// LogDeviceSkipped emits.
func (p *Project) Publish(entry model.LogEntry) {
	p.Logs.Publish(entry)
}

// LogDeviceSkipped emits a warning event noting an enabled device was
// skipped at start time, e.g. for lacking a payload or target (§4.6).
func (p *Project) LogDeviceSkipped(deviceID, deviceName, reason string) {
	log.Warn().Str("project_id", p.ID).Str("device_id", deviceID).Str("reason", reason).Msg("skipping device at project start")
	p.Publish(model.LogEntry{
		Timestamp:  time.Now().UTC(),
		DeviceID:   deviceID,
		DeviceName: deviceName,
		EventType:  model.EventWarning,
		Message:    "device skipped: " + reason,
	})
}
