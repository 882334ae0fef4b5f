package bridge

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/gray-logic-rf/internal/transceiver"
)

// mockPublisher implements HealthPublisher for testing.
type mockPublisher struct {
	mu        sync.Mutex
	connected bool
	messages  []published
}

func (m *mockPublisher) Publish(topic string, payload []byte, _ byte, retained bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = append(m.messages, published{topic: topic, payload: payload, retained: retained})
	return nil
}

func (m *mockPublisher) IsConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connected
}

func (m *mockPublisher) last(t *testing.T) HealthMessage {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.messages) == 0 {
		t.Fatal("nothing published")
	}
	var msg HealthMessage
	if err := json.Unmarshal(m.messages[len(m.messages)-1].payload, &msg); err != nil {
		t.Fatal(err)
	}
	return msg
}

func TestHealthReporterDefaults(t *testing.T) {
	hr := NewHealthReporter(HealthReporterConfig{BridgeID: "rf"})
	if hr.interval != defaultHealthInterval {
		t.Errorf("interval = %v, want %v", hr.interval, defaultHealthInterval)
	}
	if hr.devices() != 0 {
		t.Errorf("device count = %d, want 0", hr.devices())
	}
	// No publisher: publishing is a no-op.
	if err := hr.PublishNow(); err != nil {
		t.Errorf("PublishNow() error = %v", err)
	}
}

func TestHealthReporterStatus(t *testing.T) {
	tests := []struct {
		name       string
		mqtt       bool
		radio      bool
		want       HealthStatus
		wantReason string
	}{
		{"healthy", true, true, HealthHealthy, ""},
		{"mqtt down", false, true, HealthDegraded, "MQTT disconnected"},
		{"radio down", true, false, HealthDegraded, "transceiver disconnected"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pub := &mockPublisher{connected: tt.mqtt}
			hr := NewHealthReporter(HealthReporterConfig{
				BridgeID:  "rf",
				Address:   "tcp://radio:7070",
				Publisher: pub,
				Radio: mockConnector{connected: tt.radio, stats: transceiver.Stats{
					Connected:       tt.radio,
					FramesRx:        12,
					FramesTx:        3,
					ReconnectsTotal: 1,
					LastActivity:    time.Now(),
				}},
				DeviceCount: func() int { return 4 },
			})

			if err := hr.PublishNow(); err != nil {
				t.Fatal(err)
			}
			msg := pub.last(t)
			if msg.Status != tt.want || msg.Reason != tt.wantReason {
				t.Errorf("status = (%s, %q), want (%s, %q)", msg.Status, msg.Reason, tt.want, tt.wantReason)
			}
			if msg.DevicesManaged != 4 || msg.Statistics.FramesReceived != 12 || msg.Statistics.Reconnects != 1 {
				t.Errorf("message = %+v", msg)
			}
			if msg.Connection.Address != "tcp://radio:7070" || msg.Connection.LastActivity == nil {
				t.Errorf("connection = %+v", msg.Connection)
			}
		})
	}
}

func TestHealthReporterLoop(t *testing.T) {
	pub := &mockPublisher{connected: true}
	hr := NewHealthReporter(HealthReporterConfig{
		BridgeID:  "rf",
		Interval:  10 * time.Millisecond,
		Publisher: pub,
		Radio:     mockConnector{connected: true},
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	hr.Start(ctx)

	deadline := time.Now().Add(2 * time.Second)
	for {
		pub.mu.Lock()
		n := len(pub.messages)
		pub.mu.Unlock()
		if n >= 3 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("only %d health messages published", n)
		}
		time.Sleep(5 * time.Millisecond)
	}

	hr.Stop()
	hr.Stop()
	if msg := pub.last(t); msg.Status != HealthStopping {
		t.Errorf("final status = %s, want stopping", msg.Status)
	}
	pub.mu.Lock()
	defer pub.mu.Unlock()
	for _, m := range pub.messages {
		if m.topic != "graylogic/health/rf" || !m.retained {
			t.Errorf("published %s retained=%v", m.topic, m.retained)
		}
	}
}

func TestNewHealthMessageConnectionStatus(t *testing.T) {
	tests := []struct {
		stats transceiver.Stats
		want  string
	}{
		{transceiver.Stats{Connected: true}, "connected"},
		{transceiver.Stats{Reconnecting: true}, "reconnecting"},
		{transceiver.Stats{}, "disconnected"},
	}
	for _, tt := range tests {
		msg := NewHealthMessage("rf", "1.0.0", HealthHealthy, tt.stats, 0, time.Now())
		if msg.Connection.Status != tt.want {
			t.Errorf("connection status = %s, want %s", msg.Connection.Status, tt.want)
		}
		if msg.Connection.LastActivity != nil {
			t.Error("LastActivity set for zero time")
		}
	}
}

func TestNewAckError(t *testing.T) {
	cmd := CommandMessage{ID: "c1", DeviceID: "cotech:D1"}

	ack := NewAckError(cmd, ErrCodeTimeout, "no reply")
	if ack.Status != AckTimeout || ack.Error.Code != ErrCodeTimeout {
		t.Errorf("timeout ack = %+v", ack)
	}
	ack = NewAckError(cmd, ErrCodeProtocolError, "bad frame")
	if ack.Status != AckFailed || ack.Protocol != "rf" || ack.CommandID != "c1" {
		t.Errorf("failed ack = %+v", ack)
	}
}
