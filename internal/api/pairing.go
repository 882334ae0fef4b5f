package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/nerrad567/gray-logic-rf/internal/device"
	"github.com/nerrad567/gray-logic-rf/internal/rf/address"
	"github.com/nerrad567/gray-logic-rf/internal/rf/driver"
	"github.com/nerrad567/gray-logic-rf/internal/rf/frame"
	"github.com/nerrad567/gray-logic-rf/internal/rf/pairing"
)

// Pairing socket message types.
const (
	PairTypeSetListenState   = "set_listen_state"
	PairTypeClearRepetitions = "clear_repetitions"
	PairTypeGenerate         = "generate"
	PairTypeSave             = "save"

	PairTypeDeviceUpdate = "device_data_update"
	PairTypeFrame        = "frame"
	PairTypeListenState  = "listen_state"
	PairTypeSaved        = "saved"
)

// ListenStatePayload is the payload of set_listen_state and listen_state.
// State is "on", "off" or "none".
type ListenStatePayload struct {
	State string `json:"state"`
}

// ClearPayload is the payload of clear_repetitions. KeepState names the list
// that survives: "on", "off" or "none" to empty both.
type ClearPayload struct {
	KeepState string `json:"keep_state"`
}

// SavePayload is the payload of save.
type SavePayload struct {
	Name string `json:"name"`
	// Unit selects the unit for per-unit layouts. Empty means all zeros.
	Unit string `json:"unit,omitempty"`
}

// pairClient is the server side of one pairing socket.
type pairClient struct {
	srv     *Server
	drv     *driver.Driver
	client  *WSClient
	session *pairing.Session
}

// handlePairing opens a learn session on a driver and upgrades to a
// WebSocket that drives it.
func (s *Server) handlePairing(w http.ResponseWriter, r *http.Request) {
	driverID := chi.URLParam(r, "driver")
	drv, ok := s.driver(driverID)
	if !ok {
		writeNotFound(w, "driver not found: "+driverID)
		return
	}
	if !s.claimPairing(driverID) {
		writeConflict(w, "a pairing session is already open for "+driverID)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.releasePairing(driverID)
		s.logger.Error("pairing websocket upgrade failed", "driver", driverID, "error", err)
		return
	}

	p := &pairClient{srv: s, drv: drv, client: newWSClient(s.hub, conn)}
	p.client.handler = p.handleMessage

	p.session = drv.StartPairing(func(d address.Device) {
		p.client.sendResponse("", PairTypeDeviceUpdate, d)
	})
	unsubscribe := drv.Subscribe(driver.EventFrame, func(ev driver.Event) {
		p.client.sendResponse("", PairTypeFrame, ev.Frame)
	})
	p.client.onClose = func() {
		unsubscribe()
		p.session.End()
		s.releasePairing(driverID)
	}

	seed := address.Device{ID: uuid.NewString(), On: []string{}, Off: []string{}}
	if err := p.session.SetDevice(seed); err != nil {
		s.logger.Warn("seeding pending device failed", "driver", driverID, "error", err)
	}

	s.hub.Register(p.client)
	go p.client.writePump(s.wsCfg)
	go p.client.readPump(s.wsCfg)

	p.pushPending("")
	s.logger.Info("pairing socket opened", "driver", driverID)
}

// handleMessage processes one inbound pairing message.
func (p *pairClient) handleMessage(data []byte) {
	var msg WSMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		p.client.sendError("", "invalid JSON message")
		return
	}

	switch msg.Type {
	case PairTypeSetListenState:
		p.setListenState(msg)
	case PairTypeClearRepetitions:
		p.clearRepetitions(msg)
	case PairTypeGenerate:
		p.generate(msg)
	case PairTypeSave:
		p.save(msg)
	case WSTypePing:
		p.client.sendResponse(msg.ID, WSTypePong, nil)
	default:
		p.client.sendError(msg.ID, "unknown message type: "+msg.Type)
	}
}

func (p *pairClient) setListenState(msg WSMessage) {
	var req ListenStatePayload
	if err := decodePayload(msg.Payload, &req); err != nil {
		p.client.sendError(msg.ID, "invalid set_listen_state payload")
		return
	}
	state, err := parseListenState(req.State)
	if err != nil {
		p.client.sendError(msg.ID, err.Error())
		return
	}

	p.session.SetListenState(state)
	p.client.sendResponse(msg.ID, PairTypeListenState, ListenStatePayload{State: listenStateName(state)})
}

func (p *pairClient) clearRepetitions(msg WSMessage) {
	var req ClearPayload
	if err := decodePayload(msg.Payload, &req); err != nil {
		p.client.sendError(msg.ID, "invalid clear_repetitions payload")
		return
	}
	keep, err := parseListenState(req.KeepState)
	if err != nil {
		p.client.sendError(msg.ID, err.Error())
		return
	}

	d, ok := p.session.ClearLearned(keep)
	if !ok {
		p.client.sendError(msg.ID, "no pending device")
		return
	}
	p.client.sendResponse(msg.ID, PairTypeDeviceUpdate, d)
}

// generate replaces the pending device with random addresses, for
// receivers that learn from this transmitter.
func (p *pairClient) generate(msg WSMessage) {
	if err := p.session.SetDevice(p.drv.Generate()); err != nil {
		p.client.sendError(msg.ID, err.Error())
		return
	}
	p.pushPending(msg.ID)
}

// save commits the pending device and persists it. The socket closes
// afterwards whether or not persisting succeeded, since the session has
// ended.
func (p *pairClient) save(msg WSMessage) {
	var req SavePayload
	if err := decodePayload(msg.Payload, &req); err != nil {
		p.client.sendError(msg.ID, "invalid save payload")
		return
	}
	name := strings.TrimSpace(req.Name)
	if err := device.ValidateName(name); err != nil {
		p.client.sendError(msg.ID, err.Error())
		return
	}

	dev, err := p.drv.CommitPairing(p.session, name, req.Unit)
	if err != nil {
		p.client.sendError(msg.ID, err.Error())
		if !p.session.Active() {
			p.close()
		}
		return
	}

	rec := device.FromDriver(p.drv.ID(), dev)
	if err := p.srv.registry.CreateDevice(context.Background(), rec); err != nil {
		if derr := p.drv.Delete(dev.ID); derr != nil && !errors.Is(derr, driver.ErrDeviceNotFound) {
			p.srv.logger.Warn("removing unsaved device failed", "device", rec.Key(), "error", derr)
		}
		p.srv.logger.Error("saving paired device failed", "device", rec.Key(), "error", err)
		p.client.sendError(msg.ID, fmt.Sprintf("saving device: %v", err))
		p.close()
		return
	}

	p.srv.logger.Info("device paired", "device", rec.Key(), "name", rec.Name)
	p.client.sendResponse(msg.ID, PairTypeSaved, rec)
	p.close()
}

func (p *pairClient) pushPending(id string) {
	if d, ok := p.session.Pending(); ok {
		p.client.sendResponse(id, PairTypeDeviceUpdate, d)
	}
}

// close ends the socket after queued messages are written.
func (p *pairClient) close() {
	p.client.hub.Unregister(p.client)
}

// parseListenState accepts "on", "off", "none" and their numeric forms.
func parseListenState(s string) (frame.State, error) {
	switch s {
	case "none", "", "-1":
		return frame.StateUnknown, nil
	}
	state, ok := frame.ParseState(s)
	if !ok {
		return frame.StateUnknown, fmt.Errorf(`state must be "on", "off" or "none", got %q`, s)
	}
	return state, nil
}

func listenStateName(s frame.State) string {
	if s == frame.StateUnknown {
		return "none"
	}
	return s.String()
}
