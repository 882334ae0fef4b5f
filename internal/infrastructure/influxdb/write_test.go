package influxdb

import (
	"testing"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

func tags(p *write.Point) map[string]string {
	m := make(map[string]string)
	for _, t := range p.TagList() {
		m[t.Key] = t.Value
	}
	return m
}

func fields(p *write.Point) map[string]interface{} {
	m := make(map[string]interface{})
	for _, f := range p.FieldList() {
		m[f.Key] = f.Value
	}
	return m
}

func TestNewFramePoint(t *testing.T) {
	at := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	on := false

	p := newFramePoint(FramePoint{
		DriverID: "cotech",
		Signal:   "433",
		DeviceID: "cotech:abc:0002",
		Payload:  "0011",
		Unit:     2,
		State:    &on,
		Time:     at,
	})

	if p.Name() != MeasurementFrames {
		t.Errorf("Name() = %q", p.Name())
	}
	if !p.Time().Equal(at) {
		t.Errorf("Time() = %v, want %v", p.Time(), at)
	}

	gotTags := tags(p)
	wantTags := map[string]string{"driver": "cotech", "signal": "433", "direction": DirectionRX, "device": "cotech:abc:0002"}
	for k, v := range wantTags {
		if gotTags[k] != v {
			t.Errorf("tag %s = %q, want %q", k, gotTags[k], v)
		}
	}

	f := fields(p)
	if f["payload"] != "0011" || f["unit"] != int64(2) || f["state"] != false {
		t.Errorf("fields = %v", f)
	}
}

func TestNewFramePointUnknownDevice(t *testing.T) {
	p := newFramePoint(FramePoint{DriverID: "cotech", Signal: "433", Direction: DirectionTX, Payload: "1"})

	if _, ok := tags(p)["device"]; ok {
		t.Error("device tag set for an unknown device")
	}
	if tags(p)["direction"] != DirectionTX {
		t.Errorf("direction = %q", tags(p)["direction"])
	}
	if _, ok := fields(p)["state"]; ok {
		t.Error("state field set without a state")
	}
	if p.Time().IsZero() {
		t.Error("zero time not replaced")
	}
}

func TestNewStatePoint(t *testing.T) {
	p := newStatePoint("cotech", "cotech:abc:0001", true, time.Time{})

	if p.Name() != MeasurementState {
		t.Errorf("Name() = %q", p.Name())
	}
	if tags(p)["device"] != "cotech:abc:0001" || tags(p)["driver"] != "cotech" {
		t.Errorf("tags = %v", tags(p))
	}
	if fields(p)["on"] != true {
		t.Errorf("fields = %v", fields(p))
	}
}
