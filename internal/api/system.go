package api

import (
	"net/http"
	"strconv"

	"github.com/nerrad567/gray-logic-rf/internal/bridge"
	"github.com/nerrad567/gray-logic-rf/internal/rf/channel"
	"github.com/nerrad567/gray-logic-rf/internal/rf/driver"
)

// maxFrameLimit caps the limit query parameter of /frames.
const maxFrameLimit = 1000

// DriverInfo describes one loaded protocol driver.
type DriverInfo struct {
	ID      string        `json:"id"`
	Signal  string        `json:"signal"`
	Layout  driver.Layout `json:"layout"`
	Devices int           `json:"devices"`
	Pairing bool          `json:"pairing"`
}

// handleListDrivers returns the loaded drivers in configuration order.
func (s *Server) handleListDrivers(w http.ResponseWriter, _ *http.Request) {
	drivers := make([]DriverInfo, 0, len(s.order))
	for _, id := range s.order {
		drv := s.drivers[id]
		drivers = append(drivers, DriverInfo{
			ID:      id,
			Signal:  drv.Signal(),
			Layout:  drv.Layout(),
			Devices: len(drv.Devices()),
			Pairing: s.pairingOpen(id),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"drivers": drivers, "count": len(drivers)})
}

// handleListChannels returns a snapshot of the multiplexer.
func (s *Server) handleListChannels(w http.ResponseWriter, _ *http.Request) {
	if s.channels == nil {
		writeUnavailable(w, "channel registry not available")
		return
	}
	channels := s.channels.Snapshot()
	if channels == nil {
		channels = []channel.ChannelStatus{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"channels": channels, "count": len(channels)})
}

// handleListFrames returns recorded frames, most recently seen first.
//
// Query parameters:
//   - driver: filter by driver id
//   - limit: maximum number of rows (default 100, max 1000)
func (s *Server) handleListFrames(w http.ResponseWriter, r *http.Request) {
	if s.frames == nil {
		writeUnavailable(w, "frame recorder not enabled")
		return
	}

	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeBadRequest(w, "limit must be a positive integer")
			return
		}
		limit = min(n, maxFrameLimit)
	}

	frames, err := s.frames.Frames(r.Context(), r.URL.Query().Get("driver"), limit)
	if err != nil {
		s.logger.Error("listing frames failed", "error", err)
		writeInternalError(w, "failed to list frames")
		return
	}
	if frames == nil {
		frames = []bridge.FrameRecord{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"frames": frames, "count": len(frames)})
}

func (s *Server) pairingOpen(driverID string) bool {
	s.pairingMu.Lock()
	defer s.pairingMu.Unlock()
	_, open := s.pairing[driverID]
	return open
}
