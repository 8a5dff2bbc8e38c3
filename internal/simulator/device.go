// Package simulator implements the per-device control loop from spec.md
// §4.4: generate a payload, ensure the connector is live, send with
// retry, record metrics, emit a log event, sleep to the next tick. One
// Device instance exists per enabled device descriptor; it owns its
// generator, connector, and stats exclusively — nothing else mutates
// them.
package simulator

import (
	"context"
	"fmt"
	"math"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/joluben/sigsim/internal/config"
	"github.com/joluben/sigsim/internal/connector"
	"github.com/joluben/sigsim/internal/generator"
	"github.com/joluben/sigsim/internal/logstream"
	"github.com/joluben/sigsim/internal/metrics"
	"github.com/joluben/sigsim/internal/model"
	"github.com/joluben/sigsim/internal/simerrors"
)

// state mirrors the STARTED/RUNNING/STOPPING/STOPPED machine from
// spec.md §4.4. It is observational only — Run's control flow does not
// branch on it beyond the running flag tests below.
type state int32

const (
	stateStarted state = iota
	stateRunning
	stateStopping
	stateStopped
)

// Device is one running device simulator.
type Device struct {
	desc  model.DeviceDescriptor
	gen   generator.Generator
	conn  connector.Connector
	proj  string
	cfg   config.RetryConfig
	mc    *metrics.Collector
	logs  *logstream.Stream

	connectorID string

	connMu    chan struct{} // 1-buffered mutex substitute allowing select-based cancellation-aware locking
	connected bool

	stats Stats
	st    atomic.Int32
}

// New builds a Device bound to projectID, wired to mc for metrics and
// logs for fan-out. gen and conn are already validated/constructed by
// the caller (internal/engine), matching §4.1/§4.3's "fail fast at
// construction" contract.
func New(projectID string, desc model.DeviceDescriptor, gen generator.Generator, conn connector.Connector, mc *metrics.Collector, logs *logstream.Stream, cfg config.RetryConfig) *Device {
	return &Device{
		desc:        desc,
		gen:         gen,
		conn:        conn,
		proj:        projectID,
		cfg:         cfg,
		mc:          mc,
		logs:        logs,
		connectorID: metrics.ConnectorID(desc.ID, string(conn.Kind())),
		connMu:      make(chan struct{}, 1),
	}
}

// DeviceID returns the simulated device's id.
func (d *Device) DeviceID() string { return d.desc.ID }

// DeviceName returns the simulated device's display name.
func (d *Device) DeviceName() string { return d.desc.Name }

// IsRunning reports whether the simulator is between its first tick and
// the completion of its shutdown path.
func (d *Device) IsRunning() bool {
	s := state(d.st.Load())
	return s == stateRunning || s == stateStopping
}

// IsConnected reports the simulator's view of its connector's liveness.
func (d *Device) IsConnected() bool {
	d.lock()
	defer d.unlock()
	return d.connected
}

// Stats returns a read-only snapshot of the device's counters.
func (d *Device) Stats() StatsSnapshot { return d.stats.Snapshot() }

// ConnectionStats exposes the richer websocket-only diagnostics when the
// underlying connector implements connector.ConnectionStatser (§4.1
// SUPPLEMENTED FEATURES #2).
func (d *Device) ConnectionStats() (connector.ConnectionStats, bool) {
	if cs, ok := d.conn.(connector.ConnectionStatser); ok {
		return cs.ConnectionStats(), true
	}
	return connector.ConnectionStats{}, false
}

func (d *Device) lock()   { d.connMu <- struct{}{} }
func (d *Device) unlock() { <-d.connMu }

// Run is the simulator's control loop. It returns once ctx is cancelled
// or the simulator self-stops after hitting the consecutive-error cap.
// The caller (internal/project) launches Run as an independent
// goroutine per device and waits on a sync.WaitGroup for shutdown.
func (d *Device) Run(ctx context.Context) {
	d.st.Store(int32(stateRunning))
	d.emit(model.EventStarted, "device simulator started", nil)

	interval := time.Duration(d.desc.SendInterval) * time.Second
	if interval <= 0 {
		interval = time.Second
	}

	defer d.shutdown(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		d.tick(ctx)

		if d.stats.consecutiveErrorCount() >= int64(d.cfg.MaxConsecutiveErrors) {
			d.emit(model.EventError, fmt.Sprintf("self-stopping after %d consecutive errors", d.cfg.MaxConsecutiveErrors), nil)
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(interval):
		}
	}
}

// tick runs exactly one generate -> ensure-connection -> send-with-retry
// -> record cycle.
func (d *Device) tick(ctx context.Context) {
	payload := d.buildPayload()

	ok := d.sendWithRetry(ctx, payload)
	if ok {
		d.stats.recordSuccess(time.Now())
		d.emit(model.EventMessageSent, "payload sent", payload)
	}
}

// buildPayload invokes the generator and falls back to a minimal error
// payload on failure, matching §4.4's payload-construction contract.
// device_id and device_name are guaranteed present either way.
func (d *Device) buildPayload() model.Payload {
	d.mc.RecordGenerated(d.proj, d.desc.ID)

	metadata := model.Payload{}
	for k, v := range d.desc.Metadata {
		metadata[k] = v
	}

	payload, err := d.gen.Generate(metadata)
	if err != nil {
		d.mc.RecordPayloadFailure(d.proj, d.desc.ID)
		d.emit(model.EventWarning, "payload generation failed, using fallback payload", nil)
		payload = model.Payload{
			"error":   "payload_generation_failed",
			"message": err.Error(),
		}
	}
	if payload == nil {
		payload = model.Payload{}
	}
	if _, ok := payload["device_id"]; !ok {
		payload["device_id"] = d.desc.ID
	}
	if _, ok := payload["device_name"]; !ok {
		payload["device_name"] = d.desc.Name
	}
	if _, ok := payload["timestamp"]; !ok {
		payload["timestamp"] = time.Now().UTC().Format(time.RFC3339Nano)
	}
	return payload
}

// sendWithRetry implements §4.4's send-with-retry state machine.
func (d *Device) sendWithRetry(ctx context.Context, payload model.Payload) bool {
	if !d.IsConnected() {
		if err := d.ensureConnection(ctx); err != nil {
			d.stats.recordConnectionError(time.Now(), err)
			d.mc.RecordConnectionFailure(d.connectorID, err)
			d.mc.RecordSendFailure(d.proj, d.desc.ID)
			d.emit(model.EventError, "connection failed, dropping tick", payload)
			return false
		}
	}

	approxSize := payloadSize(payload)

	for attempt := 0; attempt <= d.cfg.MaxRetries; attempt++ {
		d.mc.RecordAttempt(d.connectorID)
		start := time.Now()
		err := d.conn.Send(ctx, payload)
		elapsed := time.Since(start)

		if err == nil {
			d.mc.RecordSuccess(d.connectorID, elapsed, approxSize)
			d.mc.RecordMessageSent(d.proj, d.desc.ID)
			return true
		}

		d.markStale()
		if attempt < d.cfg.MaxRetries {
			d.stats.recordRetry()
			d.mc.RecordRetry(d.proj, d.desc.ID)
			delay := backoffDelay(d.cfg.BaseDelay, attempt)
			log.Warn().Str("device_id", d.desc.ID).Err(err).Dur("retry_in", delay).Msg("send failed, retrying")
			select {
			case <-ctx.Done():
				return false
			case <-time.After(delay):
			}
			continue
		}

		d.stats.recordSendError(time.Now(), err)
		d.mc.RecordFailure(d.connectorID, err)
		d.mc.RecordSendFailure(d.proj, d.desc.ID)
		d.emit(model.EventError, fmt.Sprintf("send failed after %d retries: %v", d.cfg.MaxRetries, err), payload)
		return false
	}
	return false
}

// ensureConnection connects with exponential backoff, up to
// MaxRetries+1 attempts. WebSocket connectors are exempted from this
// outer loop: a single Connect call is enough because the adapter's own
// background reconnection logic takes over from there (§4.4).
func (d *Device) ensureConnection(ctx context.Context) error {
	d.stats.recordConnectionAttempt(time.Now())

	if d.conn.Kind() == model.TargetWebSocket {
		if err := d.conn.Connect(ctx); err != nil {
			return simerrors.Wrap(simerrors.ConnectionFailed, "websocket connect failed", err)
		}
		d.setConnected(true)
		d.emit(model.EventConnected, "connected", nil)
		return nil
	}

	var lastErr error
	for attempt := 0; attempt <= d.cfg.MaxRetries; attempt++ {
		err := d.conn.Connect(ctx)
		if err == nil {
			d.setConnected(true)
			d.emit(model.EventConnected, "connected", nil)
			return nil
		}
		lastErr = err
		if attempt < d.cfg.MaxRetries {
			d.stats.recordRetry()
			d.mc.RecordRetry(d.proj, d.desc.ID)
			delay := backoffDelay(d.cfg.BaseDelay, attempt)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}
	}
	return simerrors.Wrap(simerrors.ConnectionFailed, "connect exhausted retries", lastErr)
}

func (d *Device) setConnected(v bool) {
	d.lock()
	d.connected = v
	d.unlock()
}

// markStale forces the next tick's sendWithRetry to reconnect.
func (d *Device) markStale() { d.setConnected(false) }

// shutdown best-effort disconnects the connector and emits a final
// stopped event. Errors during disconnect are logged, never reraised
// (§5 cancellation contract).
func (d *Device) shutdown(ctx context.Context) {
	d.st.Store(int32(stateStopping))
	disconnectCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := d.conn.Disconnect(disconnectCtx); err != nil {
		log.Warn().Str("device_id", d.desc.ID).Err(err).Msg("error during connector disconnect")
	}
	d.setConnected(false)
	d.st.Store(int32(stateStopped))
	d.emit(model.EventStopped, "device simulator stopped", nil)
}

func (d *Device) emit(eventType model.LogEventType, message string, payload model.Payload) {
	d.logs.Publish(model.LogEntry{
		Timestamp:  time.Now().UTC(),
		DeviceID:   d.desc.ID,
		DeviceName: d.desc.Name,
		EventType:  eventType,
		Message:    message,
		Payload:    payload,
	})
}

// backoffDelay implements base * 2^attempt, uncapped per spec.md §4.4
// (only the WebSocket adapter's internal backoff is capped at 60s).
func backoffDelay(base time.Duration, attempt int) time.Duration {
	return time.Duration(float64(base) * math.Pow(2, float64(attempt)))
}

func payloadSize(p model.Payload) int {
	n := 0
	for k, v := range p {
		n += len(k) + len(fmt.Sprintf("%v", v)) + 4
	}
	return n
}
