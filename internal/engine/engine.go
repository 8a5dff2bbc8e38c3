// Package engine implements the process-wide SimulationEngine registry
// from spec.md §4.6: start/stop/status/validate/emergency-stop for every
// running project, backed by a single shared metrics.Collector and a
// read-only store.SnapshotStore the engine loads descriptors through.
package engine

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/joluben/sigsim/internal/config"
	"github.com/joluben/sigsim/internal/connector"
	"github.com/joluben/sigsim/internal/generator"
	"github.com/joluben/sigsim/internal/logsink"
	"github.com/joluben/sigsim/internal/metrics"
	"github.com/joluben/sigsim/internal/model"
	"github.com/joluben/sigsim/internal/project"
	"github.com/joluben/sigsim/internal/simerrors"
	"github.com/joluben/sigsim/internal/simulator"
	"github.com/joluben/sigsim/internal/store"
)

// DeviceStatus mirrors spec.md §6's DeviceStatus wire shape.
type DeviceStatus struct {
	DeviceID              string     `json:"device_id"`
	DeviceName            string     `json:"device_name"`
	IsRunning             bool       `json:"is_running"`
	IsConnected           bool       `json:"is_connected"`
	MessagesSent          int64      `json:"messages_sent"`
	Errors                int64      `json:"errors"`
	ConnectionErrors      int64      `json:"connection_errors"`
	SendErrors            int64      `json:"send_errors"`
	ConsecutiveErrors     int64      `json:"consecutive_errors"`
	TotalRetries          int64      `json:"total_retries"`
	LastMessageAt         *time.Time `json:"last_message_at,omitempty"`
	LastSuccessAt         *time.Time `json:"last_success_at,omitempty"`
	LastError             string     `json:"last_error,omitempty"`
	LastConnectionAttempt *time.Time `json:"last_connection_attempt,omitempty"`
	WebSocketStats        *connector.ConnectionStats `json:"websocket_stats,omitempty"`
}

// StatusError is one entry of SimulationStatus.Errors.
type StatusError struct {
	DeviceID     string    `json:"device_id"`
	ErrorMessage string    `json:"error_message"`
	Timestamp    time.Time `json:"timestamp"`
}

// SimulationStatus mirrors spec.md §6's SimulationStatus wire shape.
type SimulationStatus struct {
	ProjectID     string         `json:"project_id"`
	IsRunning     bool           `json:"is_running"`
	ActiveDevices int            `json:"active_devices"`
	TotalDevices  int            `json:"total_devices"`
	MessagesSent  int64          `json:"messages_sent"`
	StartedAt     *time.Time     `json:"started_at,omitempty"`
	LastActivity  *time.Time     `json:"last_activity,omitempty"`
	Devices       []DeviceStatus `json:"devices"`
	Errors        []StatusError  `json:"errors"`
}

// ValidationResult mirrors spec.md §4.6/§6's validate_project response.
type ValidationResult struct {
	Valid        bool     `json:"valid"`
	Errors       []string `json:"errors"`
	Warnings     []string `json:"warnings"`
	ValidDevices int      `json:"valid_devices"`
	TotalDevices int      `json:"total_devices"`
}

// Engine is the process-wide registry of running projects. A single
// instance is constructed at process start (internal/engine.New) and
// shared by the HTTP control surface.
type Engine struct {
	store   store.SnapshotStore
	metrics *metrics.Collector
	cfg     config.RuntimeConfig

	mu       sync.Mutex
	projects map[string]*project.Project
}

// New builds an Engine over snapshotStore, sharing mc for metrics and
// cfg for retry/backoff/log-buffer defaults.
func New(snapshotStore store.SnapshotStore, mc *metrics.Collector, cfg config.RuntimeConfig) *Engine {
	return &Engine{
		store:    snapshotStore,
		metrics:  mc,
		cfg:      cfg,
		projects: make(map[string]*project.Project),
	}
}

// Metrics exposes the shared collector, e.g. for the HTTP metrics routes.
func (e *Engine) Metrics() *metrics.Collector { return e.metrics }

// StartProject loads the project's enabled devices, their payload and
// target descriptors, builds a simulator per device that has both (other
// devices are skipped and logged), and launches the whole set
// concurrently. ctx bounds descriptor loading only: the simulators keep
// running after ctx is done, until StopProject cancels them. Returns
// simerrors.ErrAlreadyRunning if id is already in the registry, or an
// error if zero simulators could be launched.
func (e *Engine) StartProject(ctx context.Context, id string) error {
	e.mu.Lock()
	if _, ok := e.projects[id]; ok {
		e.mu.Unlock()
		return simerrors.ErrAlreadyRunning
	}
	e.mu.Unlock()

	desc, err := e.store.Project(ctx, id)
	if err != nil {
		return fmt.Errorf("load project %s: %w", id, err)
	}

	devDescs, err := e.store.DevicesForProject(ctx, id)
	if err != nil {
		return fmt.Errorf("load devices for project %s: %w", id, err)
	}

	proj := project.New(id, e.cfg.Log.BufferCapacity, e.cfg.Log.ReplayCount)
	if sink, ok := logsink.NewFromEnv(id); ok {
		sink.Attach(proj.Logs)
		proj.SetSink(sink)
		log.Info().Str("project_id", id).Msg("attached redis log sink")
	}

	devices := make([]*simulator.Device, 0, len(devDescs))
	for _, dd := range devDescs {
		if !dd.Enabled {
			continue
		}
		dev, skipReason := e.buildDevice(ctx, proj, dd)
		if dev == nil {
			proj.LogDeviceSkipped(dd.ID, dd.Name, skipReason)
			continue
		}
		devices = append(devices, dev)
	}

	if len(devices) == 0 {
		return fmt.Errorf("project %s: no devices could be launched (%d declared)", id, len(devDescs))
	}

	launched := proj.Start(context.WithoutCancel(ctx), devices)
	if launched == 0 {
		return fmt.Errorf("project %s: failed to launch any simulator", id)
	}

	e.mu.Lock()
	e.projects[id] = proj
	e.mu.Unlock()

	log.Info().Str("project_id", id).Int("devices", launched).Str("descriptor_id", desc.ID).Msg("project started")
	return nil
}

// StopProject signals cancellation to every simulator in id, waits for
// all to exit, disconnects their connectors (handled inside each
// simulator's shutdown path), and removes the project from the registry.
func (e *Engine) StopProject(id string) error {
	e.mu.Lock()
	proj, ok := e.projects[id]
	if !ok {
		e.mu.Unlock()
		return simerrors.ErrNotRunning
	}
	delete(e.projects, id)
	e.mu.Unlock()

	proj.Stop()
	log.Info().Str("project_id", id).Msg("project stopped")
	return nil
}

// Status returns a default "not running" snapshot if id is absent from
// the registry, otherwise an aggregated SimulationStatus.
func (e *Engine) Status(id string) SimulationStatus {
	e.mu.Lock()
	proj, ok := e.projects[id]
	e.mu.Unlock()

	if !ok {
		return SimulationStatus{ProjectID: id, IsRunning: false, Devices: []DeviceStatus{}, Errors: []StatusError{}}
	}
	return e.buildStatus(proj)
}

func (e *Engine) buildStatus(proj *project.Project) SimulationStatus {
	devices := proj.Devices()
	status := SimulationStatus{
		ProjectID:     proj.ID,
		IsRunning:     proj.IsRunning(),
		TotalDevices:  len(devices),
		Devices:       make([]DeviceStatus, 0, len(devices)),
		Errors:        make([]StatusError, 0),
	}
	if started := proj.StartedAt(); !started.IsZero() {
		status.StartedAt = &started
	}

	var lastActivity time.Time
	for _, d := range devices {
		snap := d.Stats()
		if d.IsRunning() {
			status.ActiveDevices++
		}
		status.MessagesSent += snap.MessagesSent

		ds := DeviceStatus{
			DeviceID:          d.DeviceID(),
			DeviceName:        d.DeviceName(),
			IsRunning:         d.IsRunning(),
			IsConnected:       d.IsConnected(),
			MessagesSent:      snap.MessagesSent,
			Errors:            snap.TotalErrors,
			ConnectionErrors:  snap.ConnectionErrors,
			SendErrors:        snap.SendErrors,
			ConsecutiveErrors: snap.ConsecutiveErrors,
			TotalRetries:      snap.TotalRetries,
			LastError:         snap.LastError,
		}
		if !snap.LastMessageAt.IsZero() {
			t := snap.LastMessageAt
			ds.LastMessageAt = &t
			if t.After(lastActivity) {
				lastActivity = t
			}
		}
		if !snap.LastSuccessAt.IsZero() {
			t := snap.LastSuccessAt
			ds.LastSuccessAt = &t
		}
		if !snap.LastConnectionAttempt.IsZero() {
			t := snap.LastConnectionAttempt
			ds.LastConnectionAttempt = &t
		}
		if wsStats, ok := d.ConnectionStats(); ok {
			ds.WebSocketStats = &wsStats
		}
		status.Devices = append(status.Devices, ds)

		if snap.LastError != "" && snap.ConsecutiveErrors > 0 {
			status.Errors = append(status.Errors, StatusError{
				DeviceID:     d.DeviceID(),
				ErrorMessage: snap.LastError,
				Timestamp:    snap.LastMessageAt,
			})
		}
	}
	if !lastActivity.IsZero() {
		status.LastActivity = &lastActivity
	}
	return status
}

// AllStatuses returns the status of every currently running project,
// sorted by project id for stable output.
func (e *Engine) AllStatuses() []SimulationStatus {
	e.mu.Lock()
	ids := make([]string, 0, len(e.projects))
	projs := make(map[string]*project.Project, len(e.projects))
	for id, p := range e.projects {
		ids = append(ids, id)
		projs[id] = p
	}
	e.mu.Unlock()

	sort.Strings(ids)
	out := make([]SimulationStatus, 0, len(ids))
	for _, id := range ids {
		out = append(out, e.buildStatus(projs[id]))
	}
	return out
}

// EmergencyStopAll stops every running project, continuing past
// individual failures, and returns the ids that were stopped.
func (e *Engine) EmergencyStopAll() []string {
	e.mu.Lock()
	ids := make([]string, 0, len(e.projects))
	for id := range e.projects {
		ids = append(ids, id)
	}
	e.mu.Unlock()

	stopped := make([]string, 0, len(ids))
	for _, id := range ids {
		if err := e.StopProject(id); err != nil {
			log.Error().Str("project_id", id).Err(err).Msg("emergency stop failed for project")
			continue
		}
		stopped = append(stopped, id)
	}
	sort.Strings(stopped)
	return stopped
}

// SubscribeLogs looks up the running project for id so the caller can
// subscribe to its Logs stream. It registers no subscriber itself; when
// the project is not running it returns (nil, false) and the caller
// informs its client and completes.
func (e *Engine) SubscribeLogs(id string) (*project.Project, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	proj, ok := e.projects[id]
	return proj, ok
}

// ValidateProject inspects a project's devices without starting it,
// matching spec.md §4.6's validate_project rules: every enabled device
// needs a payload and target; send_interval must be >= 1 (a warning
// below 5s); the project validates only if at least one device passes.
func (e *Engine) ValidateProject(ctx context.Context, id string) (ValidationResult, error) {
	devDescs, err := e.store.DevicesForProject(ctx, id)
	if err != nil {
		return ValidationResult{}, fmt.Errorf("load devices for project %s: %w", id, err)
	}

	result := ValidationResult{Errors: []string{}, Warnings: []string{}}
	for _, dd := range devDescs {
		if !dd.Enabled {
			continue
		}
		result.TotalDevices++

		valid := true
		if dd.PayloadRef == "" {
			result.Errors = append(result.Errors, fmt.Sprintf("device %s: missing payload", dd.ID))
			valid = false
		}
		if dd.TargetRef == "" {
			result.Errors = append(result.Errors, fmt.Sprintf("device %s: missing target", dd.ID))
			valid = false
		}
		if dd.SendInterval < 1 {
			result.Errors = append(result.Errors, fmt.Sprintf("device %s: send_interval must be >= 1", dd.ID))
			valid = false
		} else if dd.SendInterval < 5 {
			result.Warnings = append(result.Warnings, fmt.Sprintf("device %s: send_interval < 5s may overload the target", dd.ID))
		}

		if valid {
			result.ValidDevices++
		}
	}
	result.Valid = result.ValidDevices > 0
	return result, nil
}

// buildDevice resolves a device's payload and target descriptors and
// constructs generator + connector + simulator. A missing payload or
// target, or a ConfigInvalid failure building either, is reported as a
// skip reason rather than an error — spec.md §4.6's "skipping devices
// with missing payload or target, logging the skip".
func (e *Engine) buildDevice(ctx context.Context, proj *project.Project, dd model.DeviceDescriptor) (*simulator.Device, string) {
	if dd.PayloadRef == "" || dd.TargetRef == "" {
		return nil, "missing payload or target reference"
	}

	payloadDesc, err := e.store.Payload(ctx, dd.PayloadRef)
	if err != nil {
		return nil, fmt.Sprintf("payload %s not found: %v", dd.PayloadRef, err)
	}
	targetDesc, err := e.store.Target(ctx, dd.TargetRef)
	if err != nil {
		return nil, fmt.Sprintf("target %s not found: %v", dd.TargetRef, err)
	}

	gen, err := generator.New(payloadDesc)
	if err != nil {
		return nil, fmt.Sprintf("invalid payload config: %v", err)
	}
	conn, err := connector.New(targetDesc)
	if err != nil {
		return nil, fmt.Sprintf("invalid target config: %v", err)
	}

	return simulator.New(proj.ID, dd, gen, conn, e.metrics, proj.Logs, e.cfg.Retry), ""
}
