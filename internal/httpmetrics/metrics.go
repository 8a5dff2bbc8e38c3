// Package httpmetrics is a Prometheus registry mirroring
// metrics.Collector's counters and gauges for /metrics scraping,
// following the teacher's interfaces/http.MetricsRegistry pattern: one
// struct of pre-registered collectors, updated from snapshots rather
// than wrapping every call site in Prometheus instrumentation directly.
package httpmetrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/joluben/sigsim/internal/metrics"
)

// Registry holds every fleetsim Prometheus metric. Every collector here
// is a gauge, not a counter: values are Set from a metrics.Collector
// snapshot on each Sync rather than accumulated in-process, so a
// project's metrics.ResetProject is reflected immediately instead of
// violating Prometheus counters' monotonicity contract.
type Registry struct {
	ConnectorAttempts     *prometheus.GaugeVec
	ConnectorSuccesses    *prometheus.GaugeVec
	ConnectorFailures     *prometheus.GaugeVec
	ConnectorConnFailures *prometheus.GaugeVec
	ConnectorBytesSent    *prometheus.GaugeVec
	ConnectorSuccessRate  *prometheus.GaugeVec

	DeviceMessagesSent     *prometheus.GaugeVec
	DeviceSendFailures     *prometheus.GaugeVec
	DeviceRetries          *prometheus.GaugeVec
	DeviceSuccessRate      *prometheus.GaugeVec

	ActiveProjects prometheus.Gauge
	ActiveDevices  prometheus.Gauge
}

// NewRegistry builds and registers every fleetsim metric against reg.
// Pass prometheus.NewRegistry() for an isolated registry (tests) or
// prometheus.DefaultRegisterer-backed reg for the process's /metrics
// endpoint.
func NewRegistry(reg prometheus.Registerer) *Registry {
	r := &Registry{
		ConnectorAttempts: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "fleetsim_connector_attempts_total",
				Help: "Total send attempts per logical connector",
			},
			[]string{"connector_id"},
		),
		ConnectorSuccesses: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "fleetsim_connector_successes_total",
				Help: "Total successful sends per logical connector",
			},
			[]string{"connector_id"},
		),
		ConnectorFailures: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "fleetsim_connector_failures_total",
				Help: "Total failed sends per logical connector",
			},
			[]string{"connector_id"},
		),
		ConnectorConnFailures: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "fleetsim_connector_connection_failures_total",
				Help: "Total connection failures per logical connector",
			},
			[]string{"connector_id"},
		),
		ConnectorBytesSent: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "fleetsim_connector_bytes_sent_total",
				Help: "Total payload bytes sent per logical connector",
			},
			[]string{"connector_id"},
		),
		ConnectorSuccessRate: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "fleetsim_connector_success_rate",
				Help: "Overall success rate (successes / attempts) per logical connector",
			},
			[]string{"connector_id"},
		),
		DeviceMessagesSent: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "fleetsim_device_messages_sent",
				Help: "Messages sent per device",
			},
			[]string{"project_id", "device_id"},
		),
		DeviceSendFailures: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "fleetsim_device_send_failures",
				Help: "Send failures per device",
			},
			[]string{"project_id", "device_id"},
		),
		DeviceRetries: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "fleetsim_device_retries",
				Help: "Total retries per device",
			},
			[]string{"project_id", "device_id"},
		),
		DeviceSuccessRate: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "fleetsim_device_send_success_rate",
				Help: "messages_sent / (messages_sent + send_failures) per device",
			},
			[]string{"project_id", "device_id"},
		),
		ActiveProjects: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "fleetsim_active_projects",
			Help: "Number of currently running projects",
		}),
		ActiveDevices: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "fleetsim_active_devices",
			Help: "Number of currently running device simulators",
		}),
	}

	reg.MustRegister(
		r.ConnectorAttempts, r.ConnectorSuccesses, r.ConnectorFailures,
		r.ConnectorConnFailures, r.ConnectorBytesSent, r.ConnectorSuccessRate,
		r.DeviceMessagesSent, r.DeviceSendFailures, r.DeviceRetries, r.DeviceSuccessRate,
		r.ActiveProjects, r.ActiveDevices,
	)
	return r
}

// Sync overwrites every gauge/counter from a fresh metrics.Collector
// snapshot. Counters are implemented as gauges-in-disguise here (Set,
// not Add) because the collector is already the source of truth for
// cumulative totals; Prometheus counters must be monotonic per process,
// and a project reset would otherwise violate that.
func (r *Registry) Sync(mc *metrics.Collector, activeProjects, activeDevices int) {
	// Drop every label set first so connectors/devices the collector no
	// longer tracks (after a reset) disappear instead of keeping old values.
	for _, v := range []*prometheus.GaugeVec{
		r.ConnectorAttempts, r.ConnectorSuccesses, r.ConnectorFailures,
		r.ConnectorConnFailures, r.ConnectorBytesSent, r.ConnectorSuccessRate,
		r.DeviceMessagesSent, r.DeviceSendFailures, r.DeviceRetries, r.DeviceSuccessRate,
	} {
		v.Reset()
	}
	for _, c := range mc.AllConnectors() {
		r.ConnectorAttempts.WithLabelValues(c.ConnectorID).Set(float64(c.TotalAttempts))
		r.ConnectorSuccesses.WithLabelValues(c.ConnectorID).Set(float64(c.SuccessfulSends))
		r.ConnectorFailures.WithLabelValues(c.ConnectorID).Set(float64(c.FailedSends))
		r.ConnectorConnFailures.WithLabelValues(c.ConnectorID).Set(float64(c.ConnectionFailures))
		r.ConnectorBytesSent.WithLabelValues(c.ConnectorID).Set(float64(c.TotalBytesSent))
		r.ConnectorSuccessRate.WithLabelValues(c.ConnectorID).Set(c.OverallSuccessRate)
	}
	for _, d := range mc.AllDevices() {
		r.DeviceMessagesSent.WithLabelValues(d.ProjectID, d.DeviceID).Set(float64(d.MessagesSent))
		r.DeviceSendFailures.WithLabelValues(d.ProjectID, d.DeviceID).Set(float64(d.SendFailures))
		r.DeviceRetries.WithLabelValues(d.ProjectID, d.DeviceID).Set(float64(d.TotalRetries))
		r.DeviceSuccessRate.WithLabelValues(d.ProjectID, d.DeviceID).Set(d.SendSuccessRate)
	}
	r.ActiveProjects.Set(float64(activeProjects))
	r.ActiveDevices.Set(float64(activeDevices))
}
