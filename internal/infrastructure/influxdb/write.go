package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurement names.
const (
	MeasurementFrames = "rf_frames"
	MeasurementState  = "rf_state"
)

// Frame directions.
const (
	DirectionRX = "rx"
	DirectionTX = "tx"
)

// FramePoint describes one frame seen on, or sent to, the air.
type FramePoint struct {
	DriverID  string
	Signal    string
	Direction string

	// DeviceID is empty when the frame matched no paired device.
	DeviceID string

	Payload string
	Unit    int

	// State is nil when the frame carried no on/off state.
	State *bool

	Time time.Time
}

// WriteFrame records a frame. It is a no-op when the client is not connected.
func (c *Client) WriteFrame(fp FramePoint) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(newFramePoint(fp))
}

// WriteState records a device state change.
func (c *Client) WriteState(driverID, deviceID string, on bool, at time.Time) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(newStatePoint(driverID, deviceID, on, at))
}

func newFramePoint(fp FramePoint) *write.Point {
	direction := fp.Direction
	if direction == "" {
		direction = DirectionRX
	}
	tags := map[string]string{
		"driver":    fp.DriverID,
		"signal":    fp.Signal,
		"direction": direction,
	}
	if fp.DeviceID != "" {
		tags["device"] = fp.DeviceID
	}

	fields := map[string]interface{}{
		"payload": fp.Payload,
		"unit":    fp.Unit,
	}
	if fp.State != nil {
		fields["state"] = *fp.State
	}

	return write.NewPoint(MeasurementFrames, tags, fields, orNow(fp.Time))
}

func newStatePoint(driverID, deviceID string, on bool, at time.Time) *write.Point {
	return write.NewPoint(
		MeasurementState,
		map[string]string{
			"driver": driverID,
			"device": deviceID,
		},
		map[string]interface{}{
			"on": on,
		},
		orNow(at),
	)
}

func orNow(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now()
	}
	return t
}
