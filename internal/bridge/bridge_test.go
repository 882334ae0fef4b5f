package bridge

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/gray-logic-rf/internal/device"
	"github.com/nerrad567/gray-logic-rf/internal/infrastructure/influxdb"
	"github.com/nerrad567/gray-logic-rf/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-rf/internal/rf/bitcodec"
	"github.com/nerrad567/gray-logic-rf/internal/rf/channel"
	"github.com/nerrad567/gray-logic-rf/internal/rf/driver"
	"github.com/nerrad567/gray-logic-rf/internal/rf/frame"
	"github.com/nerrad567/gray-logic-rf/internal/transceiver"
)

type published struct {
	topic    string
	payload  []byte
	retained bool
}

// mockMQTT records publishes and keeps subscription handlers so tests can
// inject messages.
type mockMQTT struct {
	mu        sync.Mutex
	published []published
	handlers  map[string]mqtt.MessageHandler
	unsubbed  []string
	connected bool
	notify    chan struct{}
}

func newMockMQTT() *mockMQTT {
	return &mockMQTT{
		handlers:  make(map[string]mqtt.MessageHandler),
		connected: true,
		notify:    make(chan struct{}, 64),
	}
}

func (m *mockMQTT) Publish(topic string, payload []byte, _ byte, retained bool) error {
	m.mu.Lock()
	m.published = append(m.published, published{topic: topic, payload: payload, retained: retained})
	m.mu.Unlock()
	select {
	case m.notify <- struct{}{}:
	default:
	}
	return nil
}

func (m *mockMQTT) Subscribe(topic string, _ byte, handler mqtt.MessageHandler) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[topic] = handler
	return nil
}

func (m *mockMQTT) Unsubscribe(topic string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.connected {
		return mqtt.ErrNotConnected
	}
	delete(m.handlers, topic)
	m.unsubbed = append(m.unsubbed, topic)
	return nil
}

func (m *mockMQTT) IsConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connected
}

func (m *mockMQTT) deliver(t *testing.T, pattern, topic string, payload any) {
	t.Helper()
	m.mu.Lock()
	h := m.handlers[pattern]
	m.mu.Unlock()
	if h == nil {
		t.Fatalf("no handler for %s", pattern)
	}
	data, err := json.Marshal(payload)
	if err != nil {
		t.Fatal(err)
	}
	if err := h(topic, data); err != nil {
		t.Fatalf("handler(%s) error = %v", topic, err)
	}
}

func (m *mockMQTT) find(topic string) (published, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.published) - 1; i >= 0; i-- {
		if m.published[i].topic == topic {
			return m.published[i], true
		}
	}
	return published{}, false
}

// waitFor polls until a message on topic was published.
func (m *mockMQTT) waitFor(t *testing.T, topic string) published {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		if p, ok := m.find(topic); ok {
			return p
		}
		select {
		case <-m.notify:
		case <-time.After(10 * time.Millisecond):
		case <-deadline:
			t.Fatalf("timed out waiting for publish on %s", topic)
		}
	}
}

type mockRadio struct {
	mu        sync.Mutex
	onPayload func(bitcodec.Bits)
	sent      []bitcodec.Bits
}

func (m *mockRadio) SetOnPayload(fn func(bitcodec.Bits)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onPayload = fn
}

func (m *mockRadio) StartReceiving(context.Context) error { return nil }
func (m *mockRadio) StopReceiving(context.Context) error  { return nil }

func (m *mockRadio) Transmit(_ context.Context, bits bitcodec.Bits) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, bits)
	return nil
}

func (m *mockRadio) receive(s string) {
	bits, _ := bitcodec.Parse(s)
	m.mu.Lock()
	fn := m.onPayload
	m.mu.Unlock()
	fn(bits)
}

func (m *mockRadio) sentCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sent)
}

type mockConnector struct {
	connected bool
	stats     transceiver.Stats
}

func (m mockConnector) IsConnected() bool        { return m.connected }
func (m mockConnector) Stats() transceiver.Stats { return m.stats }

type mockDevices struct {
	devices []device.Device
}

func (m *mockDevices) ListDevices() []device.Device { return m.devices }
func (m *mockDevices) GetDeviceCount() int          { return len(m.devices) }

type mockTimeSeries struct {
	mu     sync.Mutex
	frames []influxdb.FramePoint
	states int
}

func (m *mockTimeSeries) WriteFrame(fp influxdb.FramePoint) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.frames = append(m.frames, fp)
}

func (m *mockTimeSeries) WriteState(string, string, bool, time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.states++
}

type mockMetrics struct {
	mu       sync.Mutex
	commands map[string]int
	recorded int
}

func (m *mockMetrics) CommandHandled(source, status string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.commands[source+"/"+status]++
}

func (m *mockMetrics) FrameRecorded() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.recorded++
}

func (m *mockMetrics) count(key string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.commands[key]
}

func addr(prefix string) string {
	return prefix + strings.Repeat("0", 28-len(prefix))
}

var (
	onA  = addr("0101")
	offA = addr("0011")
)

type fixture struct {
	bridge  *Bridge
	mqtt    *mockMQTT
	radio   *mockRadio
	driver  *driver.Driver
	series  *mockTimeSeries
	metrics *mockMetrics
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	radio := &mockRadio{}
	reg, err := channel.NewRegistry(channel.RegistryOptions{
		Factory: func(string) (channel.Radio, error) { return radio, nil },
	})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(reg.Close)

	layout, err := driver.LayoutFor(driver.VariantCotech)
	if err != nil {
		t.Fatal(err)
	}
	drv, err := driver.New(driver.Options{ID: "cotech", Signal: "433", Layout: layout, Debounce: -1, Registry: reg})
	if err != nil {
		t.Fatal(err)
	}
	if err := drv.Add(driver.Device{UUID: "D1", Unit: "0001", Name: "Porch", On: []string{onA}, Off: []string{offA}}); err != nil {
		t.Fatal(err)
	}

	devices := &mockDevices{devices: []device.Device{
		{DriverID: "cotech", ID: "D1:0001", UUID: "D1", Unit: "0001", Name: "Porch"},
		{DriverID: "remote", ID: "R1", UUID: "R1", Name: "Remote"},
	}}
	mq := newMockMQTT()
	series := &mockTimeSeries{}
	m := &mockMetrics{commands: make(map[string]int)}

	b, err := New(Options{
		MQTTClient:     mq,
		Devices:        devices,
		Drivers:        []Driver{drv},
		Radio:          mockConnector{connected: true},
		TimeSeries:     series,
		Metrics:        m,
		Version:        "test",
		HealthInterval: time.Hour,
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if err := b.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	t.Cleanup(b.Stop)

	return &fixture{bridge: b, mqtt: mq, radio: radio, driver: drv, series: series, metrics: m}
}

func commandsPattern() string { return mqtt.Topics{}.AllCommands(mqtt.Protocol) }
func requestsPattern() string { return mqtt.Topics{}.AllRequests(mqtt.Protocol) }

func TestNewValidation(t *testing.T) {
	if _, err := New(Options{Devices: &mockDevices{}}); err == nil {
		t.Error("New() without MQTT client should fail")
	}
	if _, err := New(Options{MQTTClient: newMockMQTT()}); err == nil {
		t.Error("New() without device lister should fail")
	}
}

func TestStartSubscribesAndPublishesHealth(t *testing.T) {
	f := newFixture(t)

	f.mqtt.mu.Lock()
	_, cmd := f.mqtt.handlers[commandsPattern()]
	_, req := f.mqtt.handlers[requestsPattern()]
	f.mqtt.mu.Unlock()
	if !cmd || !req {
		t.Fatalf("handlers = %v", f.mqtt.handlers)
	}

	p := f.mqtt.waitFor(t, "graylogic/health/rf")
	if !p.retained {
		t.Error("health message not retained")
	}
	var msg HealthMessage
	if err := json.Unmarshal(p.payload, &msg); err != nil {
		t.Fatal(err)
	}
	if msg.Bridge != DefaultBridgeID || msg.DevicesManaged != 2 {
		t.Errorf("health = %+v", msg)
	}
}

func TestCommandSendsAndAcks(t *testing.T) {
	f := newFixture(t)
	key := "cotech:D1:0001"

	f.mqtt.deliver(t, commandsPattern(), "graylogic/command/rf/"+key,
		CommandMessage{ID: "cmd-1", Command: "send", State: "on"})

	p := f.mqtt.waitFor(t, "graylogic/ack/rf/"+key)
	var ack AckMessage
	if err := json.Unmarshal(p.payload, &ack); err != nil {
		t.Fatal(err)
	}
	if ack.Status != AckAccepted || ack.CommandID != "cmd-1" || ack.DeviceID != key {
		t.Errorf("ack = %+v", ack)
	}
	if f.radio.sentCount() != 1 {
		t.Errorf("transmitted %d frames, want 1", f.radio.sentCount())
	}
	if f.metrics.count("mqtt/accepted") != 1 {
		t.Errorf("metrics = %v", f.metrics.commands)
	}

	// The transmitted frame is published as a tx event.
	ev := f.mqtt.waitFor(t, "graylogic/event/rf/cotech")
	var event EventMessage
	if err := json.Unmarshal(ev.payload, &event); err != nil {
		t.Fatal(err)
	}
	if event.Direction != influxdb.DirectionTX || event.Frame.ID != "D1:0001" {
		t.Errorf("event = %+v", event)
	}
}

func TestCommandErrors(t *testing.T) {
	tests := []struct {
		name     string
		key      string
		cmd      CommandMessage
		wantCode string
	}{
		{"unknown command", "cotech:D1:0001", CommandMessage{ID: "1", Command: "dim"}, ErrCodeInvalidCommand},
		{"bad state", "cotech:D1:0001", CommandMessage{ID: "2", Command: "send", State: "half"}, ErrCodeInvalidCommand},
		{"unknown driver", "x10:D1", CommandMessage{ID: "3", Command: "on"}, ErrCodeNotConfigured},
		{"unknown device", "cotech:D9:0001", CommandMessage{ID: "4", Command: "on"}, ErrCodeNotConfigured},
		{"bad unit", "cotech:D1:0001", CommandMessage{ID: "5", Command: "off", Unit: "01"}, ErrCodeInvalidParameters},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.mqtt.deliver(t, commandsPattern(), "graylogic/command/rf/"+tt.key, tt.cmd)

			p := f.mqtt.waitFor(t, "graylogic/ack/rf/"+tt.key)
			var ack AckMessage
			if err := json.Unmarshal(p.payload, &ack); err != nil {
				t.Fatal(err)
			}
			if ack.Status != AckFailed || ack.Error == nil || ack.Error.Code != tt.wantCode {
				t.Errorf("ack = %+v, want code %s", ack, tt.wantCode)
			}
			if f.radio.sentCount() != 0 {
				t.Error("failed command transmitted a frame")
			}
			if f.metrics.count("mqtt/failed") != 1 {
				t.Errorf("metrics = %v", f.metrics.commands)
			}
		})
	}
}

func TestInvalidTopic(t *testing.T) {
	f := newFixture(t)
	f.mqtt.mu.Lock()
	h := f.mqtt.handlers[commandsPattern()]
	f.mqtt.mu.Unlock()

	if err := h("graylogic/command/rf", []byte("{}")); err == nil {
		t.Error("handler accepted a topic without device key")
	}
	if err := h("graylogic/other/rf/x", []byte("{}")); err == nil {
		t.Error("handler accepted an unknown category")
	}
}

func TestReceivedDeviceFramePublishesState(t *testing.T) {
	f := newFixture(t)

	f.radio.receive(onA + "0001")

	p := f.mqtt.waitFor(t, "graylogic/state/rf/cotech:D1:0001")
	if !p.retained {
		t.Error("state message not retained")
	}
	var msg StateMessage
	if err := json.Unmarshal(p.payload, &msg); err != nil {
		t.Fatal(err)
	}
	if msg.State != "on" || msg.Name != "Porch" || msg.Address != onA || msg.Protocol != "rf" {
		t.Errorf("state = %+v", msg)
	}

	ev := f.mqtt.waitFor(t, "graylogic/event/rf/cotech")
	var event EventMessage
	if err := json.Unmarshal(ev.payload, &event); err != nil {
		t.Fatal(err)
	}
	if event.Direction != influxdb.DirectionRX || event.Frame.State != frame.StateOn {
		t.Errorf("event = %+v", event)
	}

	f.series.mu.Lock()
	defer f.series.mu.Unlock()
	if len(f.series.frames) != 1 || f.series.states != 1 {
		t.Fatalf("time series frames = %d states = %d", len(f.series.frames), f.series.states)
	}
	fp := f.series.frames[0]
	if fp.DeviceID != "D1:0001" || fp.Unit != 1 || fp.State == nil || !*fp.State || fp.Signal != "433" {
		t.Errorf("frame point = %+v", fp)
	}
}

func TestReadStateRequest(t *testing.T) {
	f := newFixture(t)

	f.mqtt.deliver(t, requestsPattern(), "graylogic/request/rf/r1",
		RequestMessage{RequestID: "r1", Action: "read_state", DeviceID: "cotech:D1:0001"})
	var resp ResponseMessage
	if err := json.Unmarshal(f.mqtt.waitFor(t, "graylogic/response/rf/r1").payload, &resp); err != nil {
		t.Fatal(err)
	}
	if !resp.Success || resp.Data["state"] != "unknown" {
		t.Errorf("response before any frame = %+v", resp)
	}

	f.radio.receive(offA + "0001")
	f.mqtt.waitFor(t, "graylogic/state/rf/cotech:D1:0001")

	f.mqtt.deliver(t, requestsPattern(), "graylogic/request/rf/r2",
		RequestMessage{RequestID: "r2", Action: "read_state", DeviceID: "cotech:D1:0001"})
	if err := json.Unmarshal(f.mqtt.waitFor(t, "graylogic/response/rf/r2").payload, &resp); err != nil {
		t.Fatal(err)
	}
	if !resp.Success || resp.Data["state"] != "off" || resp.Data["last_frame"] == nil {
		t.Errorf("response = %+v", resp)
	}
}

func TestRequestErrors(t *testing.T) {
	tests := []struct {
		name     string
		req      RequestMessage
		wantCode string
	}{
		{"missing device", RequestMessage{RequestID: "e1", Action: "read_state"}, ErrCodeInvalidParameters},
		{"bad key", RequestMessage{RequestID: "e2", Action: "read_state", DeviceID: "nokey"}, ErrCodeInvalidParameters},
		{"unknown device", RequestMessage{RequestID: "e3", Action: "read_state", DeviceID: "cotech:D7:0001"}, ErrCodeNotConfigured},
		{"unknown action", RequestMessage{RequestID: "e4", Action: "reboot"}, ErrCodeInvalidCommand},
	}

	f := newFixture(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f.mqtt.deliver(t, requestsPattern(), "graylogic/request/rf/"+tt.req.RequestID, tt.req)
			var resp ResponseMessage
			if err := json.Unmarshal(f.mqtt.waitFor(t, "graylogic/response/rf/"+tt.req.RequestID).payload, &resp); err != nil {
				t.Fatal(err)
			}
			if resp.Success || resp.Error == nil || resp.Error.Code != tt.wantCode {
				t.Errorf("response = %+v, want code %s", resp, tt.wantCode)
			}
		})
	}
}

func TestListDevicesRequest(t *testing.T) {
	f := newFixture(t)

	f.mqtt.deliver(t, requestsPattern(), "graylogic/request/rf/l1",
		RequestMessage{RequestID: "l1", Action: "list_devices", Driver: "remote"})
	var resp ResponseMessage
	if err := json.Unmarshal(f.mqtt.waitFor(t, "graylogic/response/rf/l1").payload, &resp); err != nil {
		t.Fatal(err)
	}
	// JSON numbers decode as float64.
	if !resp.Success || resp.Data["count"] != float64(1) {
		t.Errorf("response = %+v", resp)
	}
}

func TestStopPublishesStopping(t *testing.T) {
	f := newFixture(t)
	f.bridge.Stop()
	f.bridge.Stop()

	var msg HealthMessage
	if err := json.Unmarshal(f.mqtt.waitFor(t, "graylogic/health/rf").payload, &msg); err != nil {
		t.Fatal(err)
	}
	if msg.Status != HealthStopping {
		t.Errorf("last health status = %s, want stopping", msg.Status)
	}
}

func TestStopUnsubscribesTopics(t *testing.T) {
	f := newFixture(t)
	f.bridge.Stop()

	f.mqtt.mu.Lock()
	defer f.mqtt.mu.Unlock()
	want := []string{commandsPattern(), requestsPattern()}
	if len(f.mqtt.unsubbed) != len(want) {
		t.Fatalf("unsubscribed = %v, want %v", f.mqtt.unsubbed, want)
	}
	for i, topic := range want {
		if f.mqtt.unsubbed[i] != topic {
			t.Errorf("unsubscribed[%d] = %q, want %q", i, f.mqtt.unsubbed[i], topic)
		}
		if _, ok := f.mqtt.handlers[topic]; ok {
			t.Errorf("handler for %q still registered", topic)
		}
	}
}

func TestStopWithBrokerOffline(t *testing.T) {
	f := newFixture(t)
	f.mqtt.mu.Lock()
	f.mqtt.connected = false
	f.mqtt.mu.Unlock()

	f.bridge.Stop()

	f.mqtt.mu.Lock()
	defer f.mqtt.mu.Unlock()
	if len(f.mqtt.unsubbed) != 0 {
		t.Errorf("unsubscribed = %v, want none while offline", f.mqtt.unsubbed)
	}
}

func TestSendErrorCode(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{driver.ErrDeviceNotFound, ErrCodeNotConfigured},
		{driver.ErrInvalidData, ErrCodeInvalidParameters},
		{driver.ErrRoundTrip, ErrCodeProtocolError},
		{driver.ErrCannotEncode, ErrCodeProtocolError},
		{context.DeadlineExceeded, ErrCodeTimeout},
		{channel.ErrTransmit, ErrCodeDeviceUnreachable},
	}
	for _, tt := range tests {
		if got := sendErrorCode(tt.err); got != tt.want {
			t.Errorf("sendErrorCode(%v) = %s, want %s", tt.err, got, tt.want)
		}
	}
}
