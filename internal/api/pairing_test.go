package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/websocket"

	"github.com/nerrad567/gray-logic-rf/internal/device"
	"github.com/nerrad567/gray-logic-rf/internal/rf/address"
	"github.com/nerrad567/gray-logic-rf/internal/rf/frame"
)

func pendingFrom(t *testing.T, msg WSMessage) address.Device {
	t.Helper()
	var d address.Device
	if err := decodePayload(msg.Payload, &d); err != nil {
		t.Fatalf("decoding pending device: %v", err)
	}
	return d
}

// waitPending reads device updates until cond holds for the pending device.
func waitPending(t *testing.T, conn *websocket.Conn, cond func(address.Device) bool) address.Device {
	t.Helper()
	for {
		d := pendingFrom(t, readUntil(t, conn, PairTypeDeviceUpdate))
		if cond(d) {
			return d
		}
	}
}

func TestPairingLearnAndSave(t *testing.T) {
	env := testServer(t)
	ts := httptest.NewServer(env.srv.buildRouter())
	t.Cleanup(ts.Close)
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/v1/pair/cotech"

	conn, _, err := dialURL(t, url)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}

	seed := pendingFrom(t, readUntil(t, conn, PairTypeDeviceUpdate))
	if seed.ID == "" || len(seed.On) != 0 || len(seed.Off) != 0 {
		t.Fatalf("seed device = %+v", seed)
	}
	if !env.srv.pairingOpen("cotech") {
		t.Error("pairing slot not claimed")
	}

	// A second session on the same driver is refused before the upgrade.
	_, resp, err := dialURL(t, url)
	if err == nil {
		t.Fatal("second pairing session was accepted")
	}
	if resp == nil || resp.StatusCode != http.StatusConflict {
		t.Errorf("second session response = %v, want 409", resp)
	}

	writeMsg(t, conn, PairTypeSetListenState, ListenStatePayload{State: "on"})
	readUntil(t, conn, PairTypeListenState)
	env.radio.receive(onB + "0000")
	waitPending(t, conn, func(d address.Device) bool { return len(d.On) == 1 && d.On[0] == onB })

	writeMsg(t, conn, PairTypeSetListenState, ListenStatePayload{State: "off"})
	readUntil(t, conn, PairTypeListenState)
	env.radio.receive(offB + "0000")
	pending := waitPending(t, conn, func(d address.Device) bool { return len(d.Off) == 1 })
	if pending.ID != seed.ID || pending.Off[0] != offB {
		t.Fatalf("pending = %+v", pending)
	}

	writeMsg(t, conn, PairTypeSave, SavePayload{Name: "Lounge lamp"})
	saved := readUntil(t, conn, PairTypeSaved)
	var rec device.Device
	if err := decodePayload(saved.Payload, &rec); err != nil {
		t.Fatal(err)
	}
	key := device.Key("cotech", seed.ID+":0000")
	if rec.Key() != key || rec.Name != "Lounge lamp" {
		t.Errorf("saved = %+v, want key %s", rec, key)
	}

	d, err := env.registry.GetDevice(context.Background(), key)
	if err != nil {
		t.Fatalf("GetDevice(%s): %v", key, err)
	}
	if len(d.On) != 1 || d.On[0] != onB || len(d.Off) != 1 || d.Off[0] != offB {
		t.Errorf("persisted = %+v", d)
	}
	if _, ok := env.driver.Device(seed.ID + ":0000"); !ok {
		t.Error("paired device not bound in the driver")
	}

	// The server closes the socket after saving and frees the slot.
	waitFor(t, func() bool { return !env.srv.pairingOpen("cotech") })
}

func TestPairingMessages(t *testing.T) {
	env := testServer(t)
	conn, _, err := dialWS(t, env, "/api/v1/pair/cotech")
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	readUntil(t, conn, PairTypeDeviceUpdate)

	writeMsg(t, conn, PairTypeSetListenState, ListenStatePayload{State: "sideways"})
	if msg := readUntil(t, conn, WSTypeError); msg.ID != PairTypeSetListenState {
		t.Errorf("error id = %q", msg.ID)
	}

	writeMsg(t, conn, PairTypeSave, SavePayload{Name: "Nothing learned"})
	readUntil(t, conn, WSTypeError)

	writeMsg(t, conn, PairTypeSave, SavePayload{Name: " "})
	readUntil(t, conn, WSTypeError)

	writeMsg(t, conn, PairTypeGenerate, nil)
	gen := pendingFrom(t, readUntil(t, conn, PairTypeDeviceUpdate))
	if len(gen.On) != 1 || len(gen.Off) != 1 || gen.On[0] == gen.Off[0] {
		t.Fatalf("generated = %+v", gen)
	}

	writeMsg(t, conn, PairTypeClearRepetitions, ClearPayload{KeepState: "on"})
	cleared := pendingFrom(t, readUntil(t, conn, PairTypeDeviceUpdate))
	if len(cleared.On) != 1 || len(cleared.Off) != 0 {
		t.Errorf("cleared = %+v", cleared)
	}

	writeMsg(t, conn, "dance", nil)
	readUntil(t, conn, WSTypeError)

	writeMsg(t, conn, WSTypePing, nil)
	readUntil(t, conn, WSTypePong)

	conn.Close()
	waitFor(t, func() bool { return !env.srv.pairingOpen("cotech") })
}

func TestPairingUnknownDriver(t *testing.T) {
	env := testServer(t)
	w := env.do(t, http.MethodGet, "/api/v1/pair/nope", "")
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}

func TestParseListenState(t *testing.T) {
	tests := []struct {
		in      string
		want    frame.State
		wantErr bool
	}{
		{"on", frame.StateOn, false},
		{"1", frame.StateOn, false},
		{"off", frame.StateOff, false},
		{"0", frame.StateOff, false},
		{"none", frame.StateUnknown, false},
		{"", frame.StateUnknown, false},
		{"-1", frame.StateUnknown, false},
		{"maybe", frame.StateUnknown, true},
	}
	for _, tt := range tests {
		got, err := parseListenState(tt.in)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("parseListenState(%q) = %v, %v", tt.in, got, err)
		}
	}
	if listenStateName(frame.StateUnknown) != "none" || listenStateName(frame.StateOn) != "on" {
		t.Error("listenStateName mismatch")
	}
}
