// Package metrics is the process-wide, thread-safe aggregator described in
// spec.md §4.7: per-connector counters with a sliding response-time window,
// and per-device counters keyed by (project_id, device_id). The original
// Python collector filtered project summaries by a string-prefix match on
// device id; that bug is not reproduced here (see SPEC_FULL.md Open
// Question Resolutions) — device metrics are indexed by the project id
// they actually belong to from the start.
package metrics

import (
	"sync"
	"time"
)

// ConnectorMetrics is the read-only snapshot returned for a single
// logical connector id (device id + connector kind composed, see
// internal/simulator).
type ConnectorMetrics struct {
	ConnectorID         string
	TotalAttempts       uint64
	SuccessfulSends     uint64
	FailedSends         uint64
	ConnectionFailures  uint64
	TotalBytesSent      uint64
	RecentSuccessRate   float64
	OverallSuccessRate  float64
	AvgResponseTime     time.Duration
	LastSuccessTime     time.Time
	LastFailureTime     time.Time
	LastError           string
}

// DeviceMetrics is the read-only snapshot for a single device.
type DeviceMetrics struct {
	DeviceID                  string
	ProjectID                 string
	MessagesGenerated         uint64
	MessagesSent              uint64
	PayloadGenerationFailures uint64
	SendFailures              uint64
	TotalRetries              uint64
	UptimeStart               time.Time
	LastActivity              time.Time
	SendSuccessRate           float64
}

// SystemView is the process-wide summary.
type SystemView struct {
	UptimeSeconds   float64
	TotalConnectors int
	TotalDevices    int
}

// ProjectSummary aggregates every device belonging to one project.
type ProjectSummary struct {
	ProjectID           string
	TotalDevices        int
	MessagesSent        uint64
	SendFailures        uint64
	TotalRetries         uint64
	AverageSuccessRate  float64
}

const defaultWindowSize = 100

type connectorEntry struct {
	mu                 sync.Mutex
	totalAttempts      uint64
	successfulSends    uint64
	failedSends        uint64
	connectionFailures uint64
	totalBytesSent     uint64
	window             []bool          // true = success, bounded ring, newest at end
	responseTimes      []time.Duration // bounded ring of recent successful send latencies
	lastSuccessTime    time.Time
	lastFailureTime    time.Time
	lastError          string
}

func (c *connectorEntry) snapshot(id string) ConnectorMetrics {
	c.mu.Lock()
	defer c.mu.Unlock()

	var recentSuccess int
	for _, ok := range c.window {
		if ok {
			recentSuccess++
		}
	}
	recentRate := 0.0
	if len(c.window) > 0 {
		recentRate = float64(recentSuccess) / float64(len(c.window))
	}
	overallRate := 0.0
	if c.totalAttempts > 0 {
		overallRate = float64(c.successfulSends) / float64(c.totalAttempts)
	}

	var avgResponse time.Duration
	if n := len(c.responseTimes); n > 0 {
		var sum time.Duration
		for _, d := range c.responseTimes {
			sum += d
		}
		avgResponse = sum / time.Duration(n)
	}

	return ConnectorMetrics{
		ConnectorID:        id,
		TotalAttempts:      c.totalAttempts,
		SuccessfulSends:    c.successfulSends,
		FailedSends:        c.failedSends,
		ConnectionFailures: c.connectionFailures,
		TotalBytesSent:     c.totalBytesSent,
		RecentSuccessRate:  recentRate,
		OverallSuccessRate: overallRate,
		AvgResponseTime:    avgResponse,
		LastSuccessTime:    c.lastSuccessTime,
		LastFailureTime:    c.lastFailureTime,
		LastError:          c.lastError,
	}
}

type deviceEntry struct {
	mu                        sync.Mutex
	projectID                 string
	messagesGenerated         uint64
	messagesSent              uint64
	payloadGenerationFailures uint64
	sendFailures              uint64
	totalRetries              uint64
	uptimeStart               time.Time
	lastActivity              time.Time
}

func (d *deviceEntry) snapshot(deviceID string) DeviceMetrics {
	d.mu.Lock()
	defer d.mu.Unlock()

	rate := 0.0
	if denom := d.messagesSent + d.sendFailures; denom > 0 {
		rate = float64(d.messagesSent) / float64(denom)
	}
	return DeviceMetrics{
		DeviceID:                  deviceID,
		ProjectID:                 d.projectID,
		MessagesGenerated:         d.messagesGenerated,
		MessagesSent:              d.messagesSent,
		PayloadGenerationFailures: d.payloadGenerationFailures,
		SendFailures:              d.sendFailures,
		TotalRetries:              d.totalRetries,
		UptimeStart:               d.uptimeStart,
		LastActivity:              d.lastActivity,
		SendSuccessRate:           rate,
	}
}

// deviceKey is the Open-Question-resolved index: (project_id, device_id),
// not a string-prefix match on device id.
type deviceKey struct {
	projectID string
	deviceID  string
}

// Collector is the process-wide metrics aggregator. A single instance is
// shared across every running simulator.
type Collector struct {
	mu          sync.RWMutex
	windowSize  int
	start       time.Time
	connectors  map[string]*connectorEntry
	devices     map[deviceKey]*deviceEntry
}

// New builds a Collector with the default sliding-window size (100).
func New() *Collector {
	return NewWithWindow(defaultWindowSize)
}

// NewWithWindow builds a Collector with a caller-chosen response-time
// window size, for tests that want to observe eviction quickly.
func NewWithWindow(windowSize int) *Collector {
	if windowSize <= 0 {
		windowSize = defaultWindowSize
	}
	return &Collector{
		windowSize: windowSize,
		start:      time.Now(),
		connectors: make(map[string]*connectorEntry),
		devices:    make(map[deviceKey]*deviceEntry),
	}
}

func (c *Collector) connectorFor(id string) *connectorEntry {
	c.mu.RLock()
	e, ok := c.connectors[id]
	c.mu.RUnlock()
	if ok {
		return e
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok = c.connectors[id]; ok {
		return e
	}
	e = &connectorEntry{}
	c.connectors[id] = e
	return e
}

func (c *Collector) deviceFor(projectID, deviceID string) *deviceEntry {
	key := deviceKey{projectID: projectID, deviceID: deviceID}
	c.mu.RLock()
	e, ok := c.devices[key]
	c.mu.RUnlock()
	if ok {
		return e
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok = c.devices[key]; ok {
		return e
	}
	e = &deviceEntry{projectID: projectID, uptimeStart: time.Now()}
	c.devices[key] = e
	return e
}

// RecordAttempt increments total_attempts for a connector. Call before
// the underlying send so total_attempts reflects every try, including
// ones that ultimately fail.
func (c *Collector) RecordAttempt(connectorID string) {
	e := c.connectorFor(connectorID)
	e.mu.Lock()
	e.totalAttempts++
	e.mu.Unlock()
}

// RecordSuccess records a successful send: response time and payload
// byte size feed the sliding window and byte counter.
func (c *Collector) RecordSuccess(connectorID string, responseTime time.Duration, bytesSent int) {
	e := c.connectorFor(connectorID)
	e.mu.Lock()
	e.successfulSends++
	e.totalBytesSent += uint64(bytesSent)
	e.lastSuccessTime = time.Now()
	e.window = pushWindow(e.window, true, c.windowSize)
	e.responseTimes = append(e.responseTimes, responseTime)
	if len(e.responseTimes) > c.windowSize {
		e.responseTimes = e.responseTimes[len(e.responseTimes)-c.windowSize:]
	}
	e.mu.Unlock()
}

// RecordFailure records a failed send attempt.
func (c *Collector) RecordFailure(connectorID string, err error) {
	e := c.connectorFor(connectorID)
	e.mu.Lock()
	e.failedSends++
	e.lastFailureTime = time.Now()
	if err != nil {
		e.lastError = err.Error()
	}
	e.window = pushWindow(e.window, false, c.windowSize)
	e.mu.Unlock()
}

// RecordConnectionFailure records a connect() failure distinctly from a
// send() failure.
func (c *Collector) RecordConnectionFailure(connectorID string, err error) {
	e := c.connectorFor(connectorID)
	e.mu.Lock()
	e.connectionFailures++
	e.lastFailureTime = time.Now()
	if err != nil {
		e.lastError = err.Error()
	}
	e.mu.Unlock()
}

func pushWindow(w []bool, ok bool, limit int) []bool {
	w = append(w, ok)
	if len(w) > limit {
		w = w[len(w)-limit:]
	}
	return w
}

// RecordGenerated increments the per-device messages-generated counter.
func (c *Collector) RecordGenerated(projectID, deviceID string) {
	e := c.deviceFor(projectID, deviceID)
	e.mu.Lock()
	e.messagesGenerated++
	e.lastActivity = time.Now()
	e.mu.Unlock()
}

// RecordMessageSent increments the per-device messages-sent counter.
func (c *Collector) RecordMessageSent(projectID, deviceID string) {
	e := c.deviceFor(projectID, deviceID)
	e.mu.Lock()
	e.messagesSent++
	e.lastActivity = time.Now()
	e.mu.Unlock()
}

// RecordPayloadFailure increments the per-device payload-generation
// failure counter.
func (c *Collector) RecordPayloadFailure(projectID, deviceID string) {
	e := c.deviceFor(projectID, deviceID)
	e.mu.Lock()
	e.payloadGenerationFailures++
	e.lastActivity = time.Now()
	e.mu.Unlock()
}

// RecordSendFailure increments the per-device send-failure counter.
func (c *Collector) RecordSendFailure(projectID, deviceID string) {
	e := c.deviceFor(projectID, deviceID)
	e.mu.Lock()
	e.sendFailures++
	e.lastActivity = time.Now()
	e.mu.Unlock()
}

// RecordRetry increments the per-device retry counter.
func (c *Collector) RecordRetry(projectID, deviceID string) {
	e := c.deviceFor(projectID, deviceID)
	e.mu.Lock()
	e.totalRetries++
	e.mu.Unlock()
}

// Connector returns a snapshot of one connector's metrics, or false if
// nothing has been recorded for that id yet.
func (c *Collector) Connector(connectorID string) (ConnectorMetrics, bool) {
	c.mu.RLock()
	e, ok := c.connectors[connectorID]
	c.mu.RUnlock()
	if !ok {
		return ConnectorMetrics{}, false
	}
	return e.snapshot(connectorID), true
}

// Device returns a snapshot of one device's metrics, or false if nothing
// has been recorded yet.
func (c *Collector) Device(projectID, deviceID string) (DeviceMetrics, bool) {
	c.mu.RLock()
	e, ok := c.devices[deviceKey{projectID: projectID, deviceID: deviceID}]
	c.mu.RUnlock()
	if !ok {
		return DeviceMetrics{}, false
	}
	return e.snapshot(deviceID), true
}

// AllConnectors returns every tracked connector's snapshot.
func (c *Collector) AllConnectors() []ConnectorMetrics {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]ConnectorMetrics, 0, len(c.connectors))
	for id, e := range c.connectors {
		out = append(out, e.snapshot(id))
	}
	return out
}

// AllDevices returns every tracked device's snapshot.
func (c *Collector) AllDevices() []DeviceMetrics {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]DeviceMetrics, 0, len(c.devices))
	for key, e := range c.devices {
		out = append(out, e.snapshot(key.deviceID))
	}
	return out
}

// System returns the process-wide summary.
func (c *Collector) System() SystemView {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return SystemView{
		UptimeSeconds:   time.Since(c.start).Seconds(),
		TotalConnectors: len(c.connectors),
		TotalDevices:    len(c.devices),
	}
}

// ProjectSummary aggregates every device indexed under projectID. Unlike
// the original Python collector, this filters on the actual project id
// field rather than a device-id string prefix.
func (c *Collector) ProjectSummary(projectID string) ProjectSummary {
	c.mu.RLock()
	defer c.mu.RUnlock()

	summary := ProjectSummary{ProjectID: projectID}
	var rateSum float64
	for key, e := range c.devices {
		if key.projectID != projectID {
			continue
		}
		snap := e.snapshot(key.deviceID)
		summary.TotalDevices++
		summary.MessagesSent += snap.MessagesSent
		summary.SendFailures += snap.SendFailures
		summary.TotalRetries += snap.TotalRetries
		rateSum += snap.SendSuccessRate
	}
	if summary.TotalDevices > 0 {
		summary.AverageSuccessRate = rateSum / float64(summary.TotalDevices)
	}
	return summary
}

// ResetProject drops every device metrics entry belonging to projectID.
// Connector metrics are not scoped by project and are left intact.
func (c *Collector) ResetProject(projectID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for key := range c.devices {
		if key.projectID == projectID {
			delete(c.devices, key)
		}
	}
}

// ResetAll drops every counter and rewinds the uptime clock, matching the
// "historical data is not preserved across restarts" non-goal.
func (c *Collector) ResetAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connectors = make(map[string]*connectorEntry)
	c.devices = make(map[deviceKey]*deviceEntry)
	c.start = time.Now()
}

// ConnectorID composes the logical connector id from a device id and
// connector kind, matching device_simulator.py's
// f"{device_id}_{ConnectorClassName}" composition (SPEC_FULL.md
// SUPPLEMENTED FEATURES #7).
func ConnectorID(deviceID string, kind string) string {
	return deviceID + "_" + kind
}
