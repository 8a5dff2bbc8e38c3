package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollector_RecordSuccess_UpdatesConnectorSnapshot(t *testing.T) {
	c := New()
	c.RecordAttempt("dev1_http")
	c.RecordSuccess("dev1_http", 20*time.Millisecond, 128)

	snap, ok := c.Connector("dev1_http")
	require.True(t, ok)
	assert.EqualValues(t, 1, snap.TotalAttempts)
	assert.EqualValues(t, 1, snap.SuccessfulSends)
	assert.EqualValues(t, 128, snap.TotalBytesSent)
	assert.Equal(t, 1.0, snap.OverallSuccessRate)
	assert.Equal(t, 20*time.Millisecond, snap.AvgResponseTime)
}

func TestCollector_UnknownConnector_ReturnsFalse(t *testing.T) {
	c := New()
	_, ok := c.Connector("missing")
	assert.False(t, ok)
}

func TestCollector_RecordFailure_TracksLastError(t *testing.T) {
	c := New()
	c.RecordAttempt("dev1_http")
	c.RecordFailure("dev1_http", errors.New("connection reset"))

	snap, ok := c.Connector("dev1_http")
	require.True(t, ok)
	assert.EqualValues(t, 1, snap.FailedSends)
	assert.Equal(t, "connection reset", snap.LastError)
	assert.Equal(t, 0.0, snap.OverallSuccessRate)
}

func TestCollector_ResponseTimeWindow_EvictsOldest(t *testing.T) {
	c := NewWithWindow(2)
	c.RecordSuccess("dev1_http", 10*time.Millisecond, 1)
	c.RecordSuccess("dev1_http", 20*time.Millisecond, 1)
	c.RecordSuccess("dev1_http", 30*time.Millisecond, 1)

	snap, ok := c.Connector("dev1_http")
	require.True(t, ok)
	// only the two most recent (20ms, 30ms) survive the window
	assert.Equal(t, 25*time.Millisecond, snap.AvgResponseTime)
}

func TestCollector_DeviceMetrics_KeyedByProjectAndDevice(t *testing.T) {
	c := New()
	c.RecordGenerated("project-a", "device-1")
	c.RecordMessageSent("project-a", "device-1")
	c.RecordGenerated("project-b", "device-1")

	a, ok := c.Device("project-a", "device-1")
	require.True(t, ok)
	assert.EqualValues(t, 1, a.MessagesGenerated)
	assert.EqualValues(t, 1, a.MessagesSent)

	b, ok := c.Device("project-b", "device-1")
	require.True(t, ok)
	assert.EqualValues(t, 1, b.MessagesGenerated)
	assert.EqualValues(t, 0, b.MessagesSent, "same device id under a different project must not share counters")
}

func TestCollector_ProjectSummary_DoesNotLeakAcrossProjects(t *testing.T) {
	c := New()
	c.RecordMessageSent("project-a", "device-1")
	c.RecordMessageSent("project-a", "device-2")
	c.RecordMessageSent("project-ab", "device-3") // prefix-shares "project-a" as a string, must not count

	summary := c.ProjectSummary("project-a")
	assert.Equal(t, 2, summary.TotalDevices)
	assert.EqualValues(t, 2, summary.MessagesSent)
}

func TestCollector_ResetProject_OnlyDropsThatProjectsDevices(t *testing.T) {
	c := New()
	c.RecordMessageSent("project-a", "device-1")
	c.RecordMessageSent("project-b", "device-1")

	c.ResetProject("project-a")

	_, ok := c.Device("project-a", "device-1")
	assert.False(t, ok)
	_, ok = c.Device("project-b", "device-1")
	assert.True(t, ok)
}

func TestCollector_ResetAll_ClearsEverythingAndRewindsUptime(t *testing.T) {
	c := New()
	c.RecordAttempt("dev1_http")
	c.RecordMessageSent("project-a", "device-1")
	time.Sleep(20 * time.Millisecond)
	uptimeBefore := c.System().UptimeSeconds

	c.ResetAll()

	assert.Empty(t, c.AllConnectors())
	assert.Empty(t, c.AllDevices())
	assert.Less(t, c.System().UptimeSeconds, uptimeBefore)
}

func TestConnectorID_ComposesDeviceAndKind(t *testing.T) {
	assert.Equal(t, "device-1_http", ConnectorID("device-1", "http"))
}
