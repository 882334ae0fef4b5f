package api

import (
	"net/http"
	"runtime"
	"time"
)

// SystemMetrics represents the complete system metrics response.
type SystemMetrics struct {
	Timestamp     string         `json:"timestamp"`
	Version       string         `json:"version"`
	UptimeSeconds int64          `json:"uptime_seconds"`
	Runtime       RuntimeMetrics `json:"runtime"`
	WebSocket     WSMetrics      `json:"websocket"`
	Devices       DeviceMetrics  `json:"devices"`
	Bridge        *BridgeMetrics `json:"bridge,omitempty"`
}

// RuntimeMetrics contains Go runtime statistics.
type RuntimeMetrics struct {
	Goroutines    int     `json:"goroutines"`
	MemoryAllocMB float64 `json:"memory_alloc_mb"`
	MemoryTotalMB float64 `json:"memory_total_mb"`
	NumGC         uint32  `json:"num_gc"`
}

// WSMetrics contains WebSocket statistics.
type WSMetrics struct {
	ConnectedClients int `json:"connected_clients"`
	PairingSessions  int `json:"pairing_sessions"`
}

// DeviceMetrics contains device registry statistics.
type DeviceMetrics struct {
	Total    int            `json:"total"`
	ByDriver map[string]int `json:"by_driver"`
}

// BridgeMetrics contains transceiver counters from the bridge health.
type BridgeMetrics struct {
	Status         string `json:"status"`
	FramesReceived uint64 `json:"frames_received"`
	FramesSent     uint64 `json:"frames_sent"`
	FramesDropped  uint64 `json:"frames_dropped"`
	Errors         uint64 `json:"errors"`
}

// handleSystemMetrics returns a JSON summary of runtime and bridge state.
// Prometheus scrapes /metrics instead.
func (s *Server) handleSystemMetrics(w http.ResponseWriter, _ *http.Request) {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	s.pairingMu.Lock()
	sessions := len(s.pairing)
	s.pairingMu.Unlock()

	regStats := s.registry.GetStats()
	metrics := SystemMetrics{
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		Version:       s.version,
		UptimeSeconds: int64(time.Since(s.startTime).Seconds()),
		Runtime: RuntimeMetrics{
			Goroutines:    runtime.NumGoroutine(),
			MemoryAllocMB: float64(memStats.Alloc) / 1024 / 1024,
			MemoryTotalMB: float64(memStats.TotalAlloc) / 1024 / 1024,
			NumGC:         memStats.NumGC,
		},
		WebSocket: WSMetrics{
			ConnectedClients: s.hub.ClientCount(),
			PairingSessions:  sessions,
		},
		Devices: DeviceMetrics{
			Total:    regStats.Total,
			ByDriver: regStats.ByDriver,
		},
	}

	if s.health != nil {
		h := s.health.Health()
		bm := &BridgeMetrics{Status: string(h.Status)}
		if h.Statistics != nil {
			bm.FramesReceived = h.Statistics.FramesReceived
			bm.FramesSent = h.Statistics.FramesSent
			bm.FramesDropped = h.Statistics.FramesDropped
			bm.Errors = h.Statistics.Errors
		}
		metrics.Bridge = bm
	}

	writeJSON(w, http.StatusOK, metrics)
}
