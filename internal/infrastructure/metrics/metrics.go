package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nerrad567/gray-logic-rf/internal/rf/channel"
)

const namespace = "graylogic_rf"

// Command outcomes for CommandHandled.
const (
	StatusAccepted = "accepted"
	StatusFailed   = "failed"
)

// Metrics holds every collector of the bridge.
type Metrics struct {
	registry *prometheus.Registry

	payloadsReceived *prometheus.CounterVec // By signal
	payloadsEmitted  *prometheus.CounterVec // By signal and window
	payloadsAbsorbed *prometheus.CounterVec // By signal and window
	payloadsSent     *prometheus.CounterVec // By signal
	radioErrors      *prometheus.CounterVec // By signal and op
	registrants      *prometheus.GaugeVec   // By signal
	eventsDropped    *prometheus.CounterVec // By signal

	commands      *prometheus.CounterVec // By source and status
	framesStored  prometheus.Counter
	pairingActive prometheus.Gauge
	wsClients     prometheus.Gauge
}

var _ channel.Observer = (*Metrics)(nil)

// New creates the metrics on a fresh registry, including the Go runtime and
// process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,

		payloadsReceived: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "channel",
			Name:      "payloads_received_total",
			Help:      "Payloads delivered by the radio",
		}, []string{"signal"}),

		payloadsEmitted: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "channel",
			Name:      "payloads_emitted_total",
			Help:      "Payloads emitted to listeners after debouncing",
		}, []string{"signal", "window"}),

		payloadsAbsorbed: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "channel",
			Name:      "payloads_absorbed_total",
			Help:      "Repeated payloads absorbed by a debounce window",
		}, []string{"signal", "window"}),

		payloadsSent: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "channel",
			Name:      "payloads_sent_total",
			Help:      "Payloads transmitted",
		}, []string{"signal"}),

		radioErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "channel",
			Name:      "radio_errors_total",
			Help:      "Radio operations that failed",
		}, []string{"signal", "op"}), // op: start, stop, transmit

		registrants: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "channel",
			Name:      "registrants",
			Help:      "Holders of the receive registration per signal",
		}, []string{"signal"}),

		eventsDropped: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "channel",
			Name:      "events_dropped_total",
			Help:      "Channel events dropped because the event queue was full",
		}, []string{"signal"}),

		commands: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "bridge",
			Name:      "commands_total",
			Help:      "Send commands handled",
		}, []string{"source", "status"}), // source: mqtt, api

		framesStored: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "bridge",
			Name:      "frames_recorded_total",
			Help:      "Frames written to the frame recorder",
		}),

		pairingActive: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "api",
			Name:      "pairing_sessions",
			Help:      "Open pairing sessions",
		}),

		wsClients: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "api",
			Name:      "websocket_clients",
			Help:      "Connected WebSocket clients",
		}),
	}
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// PayloadReceived implements channel.Observer.
func (m *Metrics) PayloadReceived(signal string) {
	m.payloadsReceived.WithLabelValues(signal).Inc()
}

// PayloadEmitted implements channel.Observer.
func (m *Metrics) PayloadEmitted(signal string, window time.Duration) {
	m.payloadsEmitted.WithLabelValues(signal, windowLabel(window)).Inc()
}

// PayloadAbsorbed implements channel.Observer.
func (m *Metrics) PayloadAbsorbed(signal string, window time.Duration) {
	m.payloadsAbsorbed.WithLabelValues(signal, windowLabel(window)).Inc()
}

// PayloadSent implements channel.Observer.
func (m *Metrics) PayloadSent(signal string) {
	m.payloadsSent.WithLabelValues(signal).Inc()
}

// RadioError implements channel.Observer.
func (m *Metrics) RadioError(signal, op string) {
	m.radioErrors.WithLabelValues(signal, op).Inc()
}

// Registrants implements channel.Observer.
func (m *Metrics) Registrants(signal string, count int) {
	m.registrants.WithLabelValues(signal).Set(float64(count))
}

// EventDropped implements channel.Observer.
func (m *Metrics) EventDropped(signal string) {
	m.eventsDropped.WithLabelValues(signal).Inc()
}

// CommandHandled counts a send command from source ("mqtt" or "api").
func (m *Metrics) CommandHandled(source, status string) {
	m.commands.WithLabelValues(source, status).Inc()
}

// FrameRecorded counts a frame persisted by the frame recorder.
func (m *Metrics) FrameRecorded() {
	m.framesStored.Inc()
}

// PairingSessions sets the number of open pairing sessions.
func (m *Metrics) PairingSessions(n int) {
	m.pairingActive.Set(float64(n))
}

// WebSocketClients sets the number of connected WebSocket clients.
func (m *Metrics) WebSocketClients(n int) {
	m.wsClients.Set(float64(n))
}

// windowLabel renders a debounce window. A negative window is passthrough.
func windowLabel(window time.Duration) string {
	if window < 0 {
		return "passthrough"
	}
	return window.String()
}
