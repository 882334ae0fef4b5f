package bridge

import (
	"time"

	"github.com/nerrad567/gray-logic-rf/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-rf/internal/rf/frame"
	"github.com/nerrad567/gray-logic-rf/internal/transceiver"
)

// MQTT message types exchanged between Gray Logic Core and the RF bridge.

// CommandMessage is sent from Core to the bridge to drive a device.
// Topic: graylogic/command/rf/{device}
type CommandMessage struct {
	// ID correlates the command with its acknowledgement.
	ID string `json:"id"`

	Timestamp time.Time `json:"timestamp"`

	// DeviceID is the device key. The topic's key wins when both are set.
	DeviceID string `json:"device_id"`

	// Command is "send", or the shorthands "on" and "off".
	Command string `json:"command"`

	// State is "on" or "off" for a send command.
	State string `json:"state,omitempty"`

	// Unit overrides the device's unit, as a bit string.
	Unit string `json:"unit,omitempty"`

	// Source indicates where the command originated ("api", "automation", "scene").
	Source string `json:"source,omitempty"`
}

// AckStatus represents the acknowledgement status of a command.
type AckStatus string

const (
	// AckAccepted indicates the frame was handed to the transceiver.
	AckAccepted AckStatus = "accepted"
	// AckFailed indicates the command could not be executed.
	AckFailed AckStatus = "failed"
	// AckTimeout indicates the transceiver did not confirm in time.
	AckTimeout AckStatus = "timeout"
)

// AckMessage is sent from the bridge to Core to acknowledge a command.
// Topic: graylogic/ack/rf/{device}
type AckMessage struct {
	CommandID string    `json:"command_id"`
	Timestamp time.Time `json:"timestamp"`
	DeviceID  string    `json:"device_id"`
	Status    AckStatus `json:"status"`
	Protocol  string    `json:"protocol"`
	Error     *AckError `json:"error,omitempty"`
}

// AckError contains error details for failed commands.
type AckError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error codes for command and request failures.
const (
	ErrCodeDeviceUnreachable = "DEVICE_UNREACHABLE"
	ErrCodeInvalidCommand    = "INVALID_COMMAND"
	ErrCodeInvalidParameters = "INVALID_PARAMETERS"
	ErrCodeProtocolError     = "PROTOCOL_ERROR"
	ErrCodeTimeout           = "TIMEOUT"
	ErrCodeNotConfigured     = "NOT_CONFIGURED"
)

// StateMessage is published when a paired device is heard on air.
// Topic: graylogic/state/rf/{device}
// QoS: 1, Retained: Yes
type StateMessage struct {
	DeviceID  string    `json:"device_id"`
	Timestamp time.Time `json:"timestamp"`
	Name      string    `json:"name,omitempty"`

	// State is "on", "off" or "unknown".
	State    string `json:"state"`
	Protocol string `json:"protocol"`

	// Address is the rolling address the frame was sent with.
	Address string `json:"address"`
	Unit    string `json:"unit,omitempty"`
}

// EventMessage carries every decoded frame of a driver, paired or not.
// Topic: graylogic/event/rf/{driver}
type EventMessage struct {
	Driver    string      `json:"driver"`
	Timestamp time.Time   `json:"timestamp"`
	Direction string      `json:"direction"`
	Frame     frame.Frame `json:"frame"`
}

// HealthStatus represents the operational status of the bridge.
type HealthStatus string

const (
	HealthHealthy  HealthStatus = "healthy"
	HealthDegraded HealthStatus = "degraded"
	// HealthOffline is what the broker publishes from the Last Will.
	HealthOffline  HealthStatus = "offline"
	HealthStarting HealthStatus = "starting"
	HealthStopping HealthStatus = "stopping"
)

// HealthMessage reports the bridge's operational status.
// Topic: graylogic/health/rf
// QoS: 1, Retained: Yes
type HealthMessage struct {
	Bridge         string            `json:"bridge"`
	Timestamp      time.Time         `json:"timestamp"`
	Status         HealthStatus      `json:"status"`
	Version        string            `json:"version"`
	UptimeSeconds  int64             `json:"uptime_seconds"`
	Connection     *ConnectionStatus `json:"connection,omitempty"`
	Statistics     *BridgeStatistics `json:"statistics,omitempty"`
	DevicesManaged int               `json:"devices_managed"`
	Reason         string            `json:"reason,omitempty"`
}

// ConnectionStatus describes the transceiver connection.
type ConnectionStatus struct {
	// Status is "connected", "reconnecting" or "disconnected".
	Status       string     `json:"status"`
	Address      string     `json:"address,omitempty"`
	LastActivity *time.Time `json:"last_activity,omitempty"`
}

// BridgeStatistics contains transceiver counters.
type BridgeStatistics struct {
	FramesReceived uint64 `json:"frames_received"`
	FramesSent     uint64 `json:"frames_sent"`
	FramesDropped  uint64 `json:"frames_dropped"`
	Errors         uint64 `json:"errors"`
	Reconnects     uint64 `json:"reconnects"`
}

// RequestMessage is sent from Core for request/response operations.
// Topic: graylogic/request/rf/{request_id}
type RequestMessage struct {
	RequestID string    `json:"request_id"`
	Timestamp time.Time `json:"timestamp"`

	// Action is "read_state" or "list_devices".
	Action string `json:"action"`

	// DeviceID is the target device key for read_state.
	DeviceID string `json:"device_id,omitempty"`

	// Driver narrows list_devices to one driver.
	Driver string `json:"driver,omitempty"`
}

// ResponseMessage answers a request.
// Topic: graylogic/response/rf/{request_id}
type ResponseMessage struct {
	RequestID string         `json:"request_id"`
	Timestamp time.Time      `json:"timestamp"`
	Success   bool           `json:"success"`
	Data      map[string]any `json:"data,omitempty"`
	Error     *ResponseError `json:"error,omitempty"`
}

// ResponseError contains error details for failed requests.
type ResponseError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// NewAckMessage creates an acknowledgement for a command.
func NewAckMessage(cmd CommandMessage, status AckStatus) AckMessage {
	return AckMessage{
		CommandID: cmd.ID,
		Timestamp: time.Now().UTC(),
		DeviceID:  cmd.DeviceID,
		Status:    status,
		Protocol:  mqtt.Protocol,
	}
}

// NewAckError creates a failed acknowledgement. A TIMEOUT code yields the
// timeout status.
func NewAckError(cmd CommandMessage, code, message string) AckMessage {
	status := AckFailed
	if code == ErrCodeTimeout {
		status = AckTimeout
	}
	ack := NewAckMessage(cmd, status)
	ack.Error = &AckError{Code: code, Message: message}
	return ack
}

// NewStateMessage creates a state message from a device frame.
func NewStateMessage(deviceID, name string, f frame.Frame) StateMessage {
	return StateMessage{
		DeviceID:  deviceID,
		Timestamp: time.Now().UTC(),
		Name:      name,
		State:     f.State.String(),
		Protocol:  mqtt.Protocol,
		Address:   f.Address,
		Unit:      f.Unit,
	}
}

// NewResponseError creates a failed response.
func NewResponseError(requestID, code, message string) ResponseMessage {
	return ResponseMessage{
		RequestID: requestID,
		Timestamp: time.Now().UTC(),
		Error:     &ResponseError{Code: code, Message: message},
	}
}

// NewHealthMessage creates a health status message.
func NewHealthMessage(bridgeID, version string, status HealthStatus, stats transceiver.Stats, deviceCount int, startTime time.Time) HealthMessage {
	msg := HealthMessage{
		Bridge:         bridgeID,
		Timestamp:      time.Now().UTC(),
		Status:         status,
		Version:        version,
		UptimeSeconds:  int64(time.Since(startTime).Seconds()),
		DevicesManaged: deviceCount,
	}

	conn := &ConnectionStatus{Status: "disconnected"}
	switch {
	case stats.Connected:
		conn.Status = "connected"
	case stats.Reconnecting:
		conn.Status = "reconnecting"
	}
	if !stats.LastActivity.IsZero() {
		last := stats.LastActivity.UTC()
		conn.LastActivity = &last
	}
	msg.Connection = conn

	msg.Statistics = &BridgeStatistics{
		FramesReceived: stats.FramesRx,
		FramesSent:     stats.FramesTx,
		FramesDropped:  stats.FramesDropped,
		Errors:         stats.ErrorsTotal,
		Reconnects:     stats.ReconnectsTotal,
	}
	return msg
}
