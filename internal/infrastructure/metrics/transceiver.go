package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/nerrad567/gray-logic-rf/internal/transceiver"
)

// StatsSource provides transceiver statistics. *transceiver.Client satisfies it.
type StatsSource interface {
	Stats() transceiver.Stats
}

// transceiverCollector reads Stats once per scrape.
type transceiverCollector struct {
	source StatsSource

	framesTx   *prometheus.Desc
	framesRx   *prometheus.Desc
	dropped    *prometheus.Desc
	errors     *prometheus.Desc
	reconnects *prometheus.Desc
	connected  *prometheus.Desc
	lastActive *prometheus.Desc
}

// WatchTransceiver registers a collector reporting the source's statistics.
func (m *Metrics) WatchTransceiver(source StatsSource) error {
	desc := func(name, help string) *prometheus.Desc {
		return prometheus.NewDesc(prometheus.BuildFQName(namespace, "transceiver", name), help, nil, nil)
	}
	return m.registry.Register(&transceiverCollector{
		source:     source,
		framesTx:   desc("frames_tx_total", "Frames transmitted by the daemon"),
		framesRx:   desc("frames_rx_total", "Frames received from the daemon"),
		dropped:    desc("frames_dropped_total", "Received frames dropped on a full queue"),
		errors:     desc("errors_total", "Transceiver errors"),
		reconnects: desc("reconnects_total", "Reconnections to the daemon"),
		connected:  desc("connected", "1 when connected to the daemon"),
		lastActive: desc("last_activity_timestamp_seconds", "Unix time of the last daemon traffic"),
	})
}

func (c *transceiverCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.framesTx
	ch <- c.framesRx
	ch <- c.dropped
	ch <- c.errors
	ch <- c.reconnects
	ch <- c.connected
	ch <- c.lastActive
}

func (c *transceiverCollector) Collect(ch chan<- prometheus.Metric) {
	s := c.source.Stats()

	connected := 0.0
	if s.Connected {
		connected = 1
	}

	ch <- prometheus.MustNewConstMetric(c.framesTx, prometheus.CounterValue, float64(s.FramesTx))
	ch <- prometheus.MustNewConstMetric(c.framesRx, prometheus.CounterValue, float64(s.FramesRx))
	ch <- prometheus.MustNewConstMetric(c.dropped, prometheus.CounterValue, float64(s.FramesDropped))
	ch <- prometheus.MustNewConstMetric(c.errors, prometheus.CounterValue, float64(s.ErrorsTotal))
	ch <- prometheus.MustNewConstMetric(c.reconnects, prometheus.CounterValue, float64(s.ReconnectsTotal))
	ch <- prometheus.MustNewConstMetric(c.connected, prometheus.GaugeValue, connected)
	ch <- prometheus.MustNewConstMetric(c.lastActive, prometheus.GaugeValue, float64(s.LastActivity.Unix()))
}
