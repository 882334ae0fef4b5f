// Package metrics exposes Prometheus metrics for the RF bridge.
//
// Metrics implements channel.Observer, so the multiplexer reports received,
// emitted, absorbed and sent payloads straight into counters. Transceiver
// statistics are collected at scrape time. Everything is registered on a
// private registry served by Handler on /metrics.
//
// All metric names are prefixed graylogic_rf_.
package metrics
