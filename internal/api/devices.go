package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/gray-logic-rf/internal/device"
	"github.com/nerrad567/gray-logic-rf/internal/infrastructure/metrics"
	"github.com/nerrad567/gray-logic-rf/internal/rf/driver"
	"github.com/nerrad567/gray-logic-rf/internal/rf/frame"
)

// sendTimeout bounds a send issued through the API.
const sendTimeout = 5 * time.Second

// UpdateDeviceRequest is the body of PATCH /devices/{key}.
type UpdateDeviceRequest struct {
	Name string `json:"name"`
}

// SendRequest is the body of POST /devices/{key}/send.
type SendRequest struct {
	// State is "on" or "off".
	State string `json:"state"`

	// Unit overrides the device's unit for per-unit layouts.
	Unit string `json:"unit,omitempty"`
}

// DeviceState is the response of GET /devices/{key}/state.
type DeviceState struct {
	Key       string       `json:"key"`
	State     string       `json:"state"`
	LastFrame *frame.Frame `json:"last_frame,omitempty"`
}

// handleListDevices returns all devices.
//
// Query parameters:
//   - driver: filter by driver id
func (s *Server) handleListDevices(w http.ResponseWriter, r *http.Request) {
	var devices []device.Device
	if driverID := r.URL.Query().Get("driver"); driverID != "" {
		devices = s.registry.ListByDriver(driverID)
	} else {
		devices = s.registry.ListDevices()
	}
	if devices == nil {
		devices = []device.Device{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"devices": devices, "count": len(devices)})
}

// handleDeviceStats returns device counts per driver.
func (s *Server) handleDeviceStats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.registry.GetStats())
}

// handleGetDevice returns a single device by key.
func (s *Server) handleGetDevice(w http.ResponseWriter, r *http.Request) {
	d, err := s.registry.GetDevice(r.Context(), chi.URLParam(r, "key"))
	if err != nil {
		writeDeviceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

// handleUpdateDevice renames a device.
func (s *Server) handleUpdateDevice(w http.ResponseWriter, r *http.Request) {
	var req UpdateDeviceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	d, err := s.registry.RenameDevice(r.Context(), chi.URLParam(r, "key"), req.Name)
	if err != nil {
		writeDeviceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

// handleDeleteDevice removes a device from the repository and its driver.
func (s *Server) handleDeleteDevice(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	if _, err := s.registry.GetDevice(r.Context(), key); err != nil {
		writeDeviceError(w, err)
		return
	}
	if err := s.registry.DeleteDevice(r.Context(), key); err != nil {
		s.logger.Error("deleting device failed", "device", key, "error", err)
		writeDeviceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleGetDeviceState returns the last known state and frame of a device.
// RF receivers cannot be polled, so this reflects the last frame seen on air
// or sent.
func (s *Server) handleGetDeviceState(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	drv, id, ok := s.resolveDevice(w, r.Context(), key)
	if !ok {
		return
	}

	resp := DeviceState{Key: key, State: frame.StateUnknown.String()}
	if state, known := drv.State(id); known {
		resp.State = state.String()
	}
	if f, seen := drv.LastFrame(id); seen {
		resp.LastFrame = &f
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleSendDevice transmits an on or off frame for a device.
func (s *Server) handleSendDevice(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")

	var req SendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.countCommand(metrics.StatusFailed)
		writeBadRequest(w, "invalid JSON body")
		return
	}
	state, ok := frame.ParseState(req.State)
	if !ok {
		s.countCommand(metrics.StatusFailed)
		writeError(w, http.StatusBadRequest, ErrCodeValidation, `state must be "on" or "off"`)
		return
	}

	drv, id, found := s.resolveDevice(w, r.Context(), key)
	if !found {
		s.countCommand(metrics.StatusFailed)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), sendTimeout)
	defer cancel()

	if err := drv.Send(ctx, id, driver.SendRequest{State: state, Unit: req.Unit}); err != nil {
		s.countCommand(metrics.StatusFailed)
		s.logger.Warn("send failed", "device", key, "state", state.String(), "error", err)
		writeSendError(w, err)
		return
	}

	s.countCommand(metrics.StatusAccepted)
	writeJSON(w, http.StatusAccepted, map[string]any{
		"key":    key,
		"state":  state.String(),
		"status": "sent",
	})
}

// resolveDevice looks up a device and its driver, writing the error
// response itself when either is missing.
func (s *Server) resolveDevice(w http.ResponseWriter, ctx context.Context, key string) (*driver.Driver, string, bool) { //nolint:revive // ResponseWriter first matches the handlers
	d, err := s.registry.GetDevice(ctx, key)
	if err != nil {
		writeDeviceError(w, err)
		return nil, "", false
	}
	drv, ok := s.driver(d.DriverID)
	if !ok {
		writeNotFound(w, "driver not loaded: "+d.DriverID)
		return nil, "", false
	}
	return drv, d.ID, true
}

// writeSendError maps a driver send error onto a response.
func writeSendError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, driver.ErrDeviceNotFound):
		writeNotFound(w, err.Error())
	case errors.Is(err, driver.ErrInvalidData):
		writeError(w, http.StatusBadRequest, ErrCodeValidation, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusGatewayTimeout, ErrCodeSendFailed, "transceiver did not answer in time")
	default:
		writeError(w, http.StatusBadGateway, ErrCodeSendFailed, err.Error())
	}
}

func (s *Server) countCommand(status string) {
	if s.metrics != nil {
		s.metrics.CommandHandled("api", status)
	}
}
