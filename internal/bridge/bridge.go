package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/nerrad567/gray-logic-rf/internal/device"
	"github.com/nerrad567/gray-logic-rf/internal/infrastructure/influxdb"
	"github.com/nerrad567/gray-logic-rf/internal/infrastructure/metrics"
	"github.com/nerrad567/gray-logic-rf/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-rf/internal/rf/driver"
	"github.com/nerrad567/gray-logic-rf/internal/rf/frame"
)

const (
	// topicParts is the number of parts in a command or request topic:
	// graylogic/{category}/rf/{id}.
	topicParts = 4

	// defaultCommandTimeout bounds one send command.
	defaultCommandTimeout = 5 * time.Second

	// DefaultBridgeID identifies the bridge in health messages.
	DefaultBridgeID = "rf"

	commandSource = "mqtt"
)

// Logger is the logging interface used by the bridge.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// MQTTClient is the part of *mqtt.Client the bridge uses.
type MQTTClient interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	Unsubscribe(topic string) error
	IsConnected() bool
}

// Driver is the part of *driver.Driver the bridge uses.
type Driver interface {
	ID() string
	Signal() string
	Device(id string) (driver.Device, bool)
	Send(ctx context.Context, id string, req driver.SendRequest) error
	Subscribe(t driver.EventType, fn func(driver.Event)) func()
	State(id string) (frame.State, bool)
	LastFrame(id string) (frame.Frame, bool)
}

// DeviceLister provides the paired devices. *device.Registry satisfies it.
type DeviceLister interface {
	ListDevices() []device.Device
	GetDeviceCount() int
}

// Recorder persists frames seen on air. *FrameRecorder satisfies it.
type Recorder interface {
	RecordFrame(driverID, direction, deviceID string, f frame.Frame) bool
}

// TimeSeries receives frame and state points. *influxdb.Client satisfies it.
type TimeSeries interface {
	WriteFrame(fp influxdb.FramePoint)
	WriteState(driverID, deviceID string, on bool, at time.Time)
}

// Metrics counts handled commands and recorded frames. *metrics.Metrics
// satisfies it.
type Metrics interface {
	CommandHandled(source, status string)
	FrameRecorded()
}

// Options holds the dependencies of a Bridge.
type Options struct {
	MQTTClient MQTTClient
	Devices    DeviceLister
	Drivers    []Driver

	// Radio reports the transceiver connection for health messages.
	Radio Connector

	// RadioAddress is the transceiver URL shown in health messages.
	RadioAddress string

	// Recorder, TimeSeries and Metrics are optional.
	Recorder   Recorder
	TimeSeries TimeSeries
	Metrics    Metrics

	BridgeID       string
	Version        string
	HealthInterval time.Duration
	CommandTimeout time.Duration

	Logger Logger
}

// Bridge connects the RF drivers to the MQTT bus. It handles:
//   - send commands from Core, acknowledged per device
//   - retained state for every frame of a paired device
//   - raw frame events, frame recording and time series
//   - read_state and list_devices requests
//   - health reporting
//
// Thread Safety: All methods are safe for concurrent use.
type Bridge struct {
	mqtt       MQTTClient
	devices    DeviceLister
	drivers    map[string]Driver
	recorder   Recorder
	timeseries TimeSeries
	metrics    Metrics
	health     *HealthReporter
	timeout    time.Duration
	topics     mqtt.Topics

	unsubscribe []func()

	stopOnce  sync.Once
	ctx       context.Context
	ctxCancel context.CancelFunc

	logger Logger
}

// New creates a bridge. Call Start to begin operation.
func New(opts Options) (*Bridge, error) {
	if opts.MQTTClient == nil {
		return nil, fmt.Errorf("MQTT client is required")
	}
	if opts.Devices == nil {
		return nil, fmt.Errorf("device lister is required")
	}

	drivers := make(map[string]Driver, len(opts.Drivers))
	for _, d := range opts.Drivers {
		if _, dup := drivers[d.ID()]; dup {
			return nil, fmt.Errorf("duplicate driver %s", d.ID())
		}
		drivers[d.ID()] = d
	}

	bridgeID := opts.BridgeID
	if bridgeID == "" {
		bridgeID = DefaultBridgeID
	}
	timeout := opts.CommandTimeout
	if timeout <= 0 {
		timeout = defaultCommandTimeout
	}

	ctx, ctxCancel := context.WithCancel(context.Background())

	b := &Bridge{
		mqtt:       opts.MQTTClient,
		devices:    opts.Devices,
		drivers:    drivers,
		recorder:   opts.Recorder,
		timeseries: opts.TimeSeries,
		metrics:    opts.Metrics,
		timeout:    timeout,
		ctx:        ctx,
		ctxCancel:  ctxCancel,
		logger:     opts.Logger,
	}

	b.health = NewHealthReporter(HealthReporterConfig{
		BridgeID:    bridgeID,
		Version:     opts.Version,
		Address:     opts.RadioAddress,
		Interval:    opts.HealthInterval,
		Publisher:   opts.MQTTClient,
		Radio:       opts.Radio,
		DeviceCount: opts.Devices.GetDeviceCount,
	})
	if opts.Logger != nil {
		b.health.SetLogger(opts.Logger)
	}

	return b, nil
}

// Start subscribes to driver events and to the command and request topics,
// then starts health reporting.
func (b *Bridge) Start(ctx context.Context) error {
	if err := b.health.PublishStarting(); err != nil {
		b.logError("failed to publish starting status", err)
	}

	for _, d := range b.drivers {
		drv := d
		b.unsubscribe = append(b.unsubscribe,
			drv.Subscribe(driver.EventFrameReceived, func(ev driver.Event) { b.handleFrame(drv, influxdb.DirectionRX, ev) }),
			drv.Subscribe(driver.EventFrameSend, func(ev driver.Event) { b.handleFrame(drv, influxdb.DirectionTX, ev) }),
			drv.Subscribe(driver.EventDeviceFrameReceived, func(ev driver.Event) { b.handleDeviceFrame(drv, ev) }),
		)
	}

	commandTopic := b.topics.AllCommands(mqtt.Protocol)
	if err := b.mqtt.Subscribe(commandTopic, 1, b.handleMQTTMessage); err != nil {
		return fmt.Errorf("subscribe to commands: %w", err)
	}
	b.logInfo("subscribed to commands", "topic", commandTopic)

	requestTopic := b.topics.AllRequests(mqtt.Protocol)
	if err := b.mqtt.Subscribe(requestTopic, 1, b.handleMQTTMessage); err != nil {
		return fmt.Errorf("subscribe to requests: %w", err)
	}
	b.logInfo("subscribed to requests", "topic", requestTopic)

	b.health.Start(ctx)

	b.logInfo("bridge started",
		"drivers", len(b.drivers),
		"devices", b.devices.GetDeviceCount())
	return nil
}

// Stop detaches from the drivers and the command and request topics, cancels
// in-flight commands and publishes a final "stopping" health status.
func (b *Bridge) Stop() {
	b.stopOnce.Do(func() {
		b.ctxCancel()
		for _, unsub := range b.unsubscribe {
			unsub()
		}
		for _, topic := range []string{b.topics.AllCommands(mqtt.Protocol), b.topics.AllRequests(mqtt.Protocol)} {
			if err := b.mqtt.Unsubscribe(topic); err != nil {
				if errors.Is(err, mqtt.ErrNotConnected) {
					b.logDebug("broker offline, skipping unsubscribe", "topic", topic)
					continue
				}
				b.logError("failed to unsubscribe", fmt.Errorf("topic=%s: %w", topic, err))
			}
		}
		b.health.Stop()
		b.logInfo("bridge stopped")
	})
}

// Health returns the current health message.
func (b *Bridge) Health() HealthMessage {
	return b.health.Current()
}

// handleMQTTMessage routes incoming MQTT messages by topic category.
func (b *Bridge) handleMQTTMessage(topic string, payload []byte) error {
	parts := strings.SplitN(topic, "/", topicParts)
	if len(parts) < topicParts || parts[3] == "" {
		return fmt.Errorf("invalid topic format: %s", topic)
	}

	switch parts[1] {
	case "command":
		b.handleCommand(parts[3], payload)
	case "request":
		b.handleRequest(payload)
	default:
		return fmt.Errorf("unknown message type: %s", parts[1])
	}
	return nil
}

// handleCommand executes a send command for the device key in the topic.
func (b *Bridge) handleCommand(key string, payload []byte) {
	var cmd CommandMessage
	if err := json.Unmarshal(payload, &cmd); err != nil {
		b.logError("failed to parse command", err)
		b.publishAckError(CommandMessage{DeviceID: key}, ErrCodeInvalidCommand, "malformed command")
		return
	}
	cmd.DeviceID = key

	b.logInfo("received command",
		"command_id", cmd.ID,
		"device_id", cmd.DeviceID,
		"command", cmd.Command)

	state, err := commandState(cmd)
	if err != nil {
		b.publishAckError(cmd, ErrCodeInvalidCommand, err.Error())
		return
	}

	driverID, id, err := device.SplitKey(key)
	if err != nil {
		b.publishAckError(cmd, ErrCodeNotConfigured, err.Error())
		return
	}
	drv, ok := b.drivers[driverID]
	if !ok {
		b.publishAckError(cmd, ErrCodeNotConfigured, fmt.Sprintf("driver %s not configured", driverID))
		return
	}

	ctx, cancel := context.WithTimeout(b.ctx, b.timeout)
	defer cancel()

	if err := drv.Send(ctx, id, driver.SendRequest{State: state, Unit: cmd.Unit}); err != nil {
		b.publishAckError(cmd, sendErrorCode(err), err.Error())
		return
	}
	b.publishAck(cmd)
}

// commandState extracts the on/off state of a command.
func commandState(cmd CommandMessage) (frame.State, error) {
	switch cmd.Command {
	case "on":
		return frame.StateOn, nil
	case "off":
		return frame.StateOff, nil
	case "send":
		state, ok := frame.ParseState(cmd.State)
		if !ok {
			return frame.StateUnknown, fmt.Errorf("invalid state %q", cmd.State)
		}
		return state, nil
	default:
		return frame.StateUnknown, fmt.Errorf("unknown command: %s", cmd.Command)
	}
}

// sendErrorCode maps a driver send error to an ack error code.
func sendErrorCode(err error) string {
	switch {
	case errors.Is(err, driver.ErrDeviceNotFound):
		return ErrCodeNotConfigured
	case errors.Is(err, driver.ErrInvalidData):
		return ErrCodeInvalidParameters
	case errors.Is(err, driver.ErrCannotEncode), errors.Is(err, driver.ErrRoundTrip):
		return ErrCodeProtocolError
	case errors.Is(err, context.DeadlineExceeded):
		return ErrCodeTimeout
	default:
		return ErrCodeDeviceUnreachable
	}
}

func (b *Bridge) publishAck(cmd CommandMessage) {
	b.countCommand(metrics.StatusAccepted)
	b.publishJSON(b.topics.BridgeAck(mqtt.Protocol, cmd.DeviceID), NewAckMessage(cmd, AckAccepted), false)
}

func (b *Bridge) publishAckError(cmd CommandMessage, code, message string) {
	b.countCommand(metrics.StatusFailed)
	b.publishJSON(b.topics.BridgeAck(mqtt.Protocol, cmd.DeviceID), NewAckError(cmd, code, message), false)
	b.logWarn("command failed",
		"command_id", cmd.ID,
		"device_id", cmd.DeviceID,
		"code", code,
		"message", message)
}

func (b *Bridge) countCommand(status string) {
	if b.metrics != nil {
		b.metrics.CommandHandled(commandSource, status)
	}
}

// handleRequest answers a request on its response topic.
func (b *Bridge) handleRequest(payload []byte) {
	var req RequestMessage
	if err := json.Unmarshal(payload, &req); err != nil {
		b.logError("failed to parse request", err)
		return
	}
	if req.RequestID == "" {
		b.logWarn("request without request_id dropped", "action", req.Action)
		return
	}

	b.logDebug("received request",
		"request_id", req.RequestID,
		"action", req.Action)

	var resp ResponseMessage
	switch req.Action {
	case "read_state":
		resp = b.handleReadState(req)
	case "list_devices":
		resp = b.handleListDevices(req)
	default:
		resp = NewResponseError(req.RequestID, ErrCodeInvalidCommand,
			fmt.Sprintf("unknown action: %s", req.Action))
	}

	b.publishJSON(b.topics.BridgeResponse(mqtt.Protocol, req.RequestID), resp, false)
}

// handleReadState returns the last known state of one device. RF devices
// cannot be polled, so this is whatever was last heard or sent.
func (b *Bridge) handleReadState(req RequestMessage) ResponseMessage {
	if req.DeviceID == "" {
		return NewResponseError(req.RequestID, ErrCodeInvalidParameters, "device_id is required")
	}

	driverID, id, err := device.SplitKey(req.DeviceID)
	if err != nil {
		return NewResponseError(req.RequestID, ErrCodeInvalidParameters, err.Error())
	}
	drv, ok := b.drivers[driverID]
	if !ok {
		return NewResponseError(req.RequestID, ErrCodeNotConfigured,
			fmt.Sprintf("driver %s not configured", driverID))
	}
	if _, ok := drv.Device(id); !ok {
		return NewResponseError(req.RequestID, ErrCodeNotConfigured,
			fmt.Sprintf("device %s not configured", req.DeviceID))
	}

	state, known := drv.State(id)
	if !known {
		state = frame.StateUnknown
	}
	data := map[string]any{
		"device_id": req.DeviceID,
		"state":     state.String(),
	}
	if last, ok := drv.LastFrame(id); ok {
		data["last_frame"] = last
	}

	return ResponseMessage{
		RequestID: req.RequestID,
		Timestamp: time.Now().UTC(),
		Success:   true,
		Data:      data,
	}
}

// handleListDevices returns the paired devices, optionally of one driver.
func (b *Bridge) handleListDevices(req RequestMessage) ResponseMessage {
	all := b.devices.ListDevices()
	devices := make([]device.Device, 0, len(all))
	for _, d := range all {
		if req.Driver == "" || d.DriverID == req.Driver {
			devices = append(devices, d)
		}
	}

	return ResponseMessage{
		RequestID: req.RequestID,
		Timestamp: time.Now().UTC(),
		Success:   true,
		Data: map[string]any{
			"devices": devices,
			"count":   len(devices),
		},
	}
}

// handleFrame publishes, records and stores every decoded frame of a
// driver.
func (b *Bridge) handleFrame(drv Driver, direction string, ev driver.Event) {
	f := ev.Frame
	deviceID := ""
	if _, ok := drv.Device(f.ID); ok {
		deviceID = f.ID
	}

	b.publishJSON(b.topics.BridgeEvent(mqtt.Protocol, drv.ID()), EventMessage{
		Driver:    drv.ID(),
		Timestamp: time.Now().UTC(),
		Direction: direction,
		Frame:     f,
	}, false)

	if b.recorder != nil && b.recorder.RecordFrame(drv.ID(), direction, deviceID, f) && b.metrics != nil {
		b.metrics.FrameRecorded()
	}

	if b.timeseries != nil {
		fp := influxdb.FramePoint{
			DriverID:  drv.ID(),
			Signal:    drv.Signal(),
			Direction: direction,
			DeviceID:  deviceID,
			Payload:   f.Payload,
			Unit:      unitNumber(f.Unit),
		}
		if f.State != frame.StateUnknown {
			on := f.State == frame.StateOn
			fp.State = &on
		}
		b.timeseries.WriteFrame(fp)
	}
}

// handleDeviceFrame publishes the retained state of a paired device.
func (b *Bridge) handleDeviceFrame(drv Driver, ev driver.Event) {
	if ev.Device == nil {
		return
	}
	key := device.Key(drv.ID(), ev.Device.ID)

	if b.timeseries != nil && ev.Frame.State != frame.StateUnknown {
		b.timeseries.WriteState(drv.ID(), ev.Device.ID, ev.Frame.State == frame.StateOn, time.Now())
	}

	b.publishJSON(b.topics.BridgeState(mqtt.Protocol, key),
		NewStateMessage(key, ev.Device.Name, ev.Frame), true)
}

// unitNumber converts a unit bit string, returning 0 for an empty or
// malformed one.
func unitNumber(unit string) int {
	n, err := strconv.ParseInt(unit, 2, 64)
	if err != nil {
		return 0
	}
	return int(n)
}

func (b *Bridge) publishJSON(topic string, v any, retained bool) {
	payload, err := json.Marshal(v)
	if err != nil {
		b.logError("failed to marshal message", err)
		return
	}
	if err := b.mqtt.Publish(topic, payload, 1, retained); err != nil {
		b.logError("failed to publish", fmt.Errorf("topic=%s: %w", topic, err))
	}
}

func (b *Bridge) logInfo(msg string, keysAndValues ...any) {
	if b.logger != nil {
		b.logger.Info(msg, keysAndValues...)
	}
}

func (b *Bridge) logWarn(msg string, keysAndValues ...any) {
	if b.logger != nil {
		b.logger.Warn(msg, keysAndValues...)
	}
}

func (b *Bridge) logDebug(msg string, keysAndValues ...any) {
	if b.logger != nil {
		b.logger.Debug(msg, keysAndValues...)
	}
}

func (b *Bridge) logError(msg string, err error) {
	if b.logger != nil {
		b.logger.Error(msg, "error", err)
	}
}
