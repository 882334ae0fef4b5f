package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/gray-logic-rf/internal/bridge"
	"github.com/nerrad567/gray-logic-rf/internal/device"
	"github.com/nerrad567/gray-logic-rf/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-rf/internal/infrastructure/database"
	"github.com/nerrad567/gray-logic-rf/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-rf/internal/infrastructure/metrics"
	"github.com/nerrad567/gray-logic-rf/internal/rf/bitcodec"
	"github.com/nerrad567/gray-logic-rf/internal/rf/channel"
	"github.com/nerrad567/gray-logic-rf/internal/rf/driver"
	_ "github.com/nerrad567/gray-logic-rf/migrations"
)

// mockRadio records transmissions and lets tests inject received payloads.
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

type mockHealth struct {
	msg bridge.HealthMessage
}

func (m mockHealth) Health() bridge.HealthMessage { return m.msg }

type mockFrames struct {
	records   []bridge.FrameRecord
	err       error
	gotDriver string
	gotLimit  int
}

func (m *mockFrames) Frames(_ context.Context, driverID string, limit int) ([]bridge.FrameRecord, error) {
	m.gotDriver, m.gotLimit = driverID, limit
	return m.records, m.err
}

func addr(prefix string) string {
	return prefix + strings.Repeat("0", 28-len(prefix))
}

var (
	onA  = addr("0101")
	offA = addr("0011")
	onB  = addr("1110")
	offB = addr("1001")
)

const porchKey = "cotech:D1:0001"

type testEnv struct {
	srv      *Server
	registry *device.Registry
	driver   *driver.Driver
	radio    *mockRadio
	channels *channel.Registry
	metrics  *metrics.Metrics
}

// testServer creates a Server with a real device registry on in-memory
// SQLite and a real cotech driver on a mock radio. The registry holds one
// device, porchKey.
func testServer(t *testing.T, mutate ...func(*Deps)) *testEnv {
	t.Helper()

	db, err := database.Open(database.Config{Path: database.MemoryPath, BusyTimeout: 1})
	if err != nil {
		t.Fatalf("opening test database: %v", err)
	}
	t.Cleanup(func() { db.Close() }) //nolint:errcheck // Test cleanup
	if err := db.Migrate(context.Background()); err != nil {
		t.Fatalf("migrating test database: %v", err)
	}

	registry := device.NewRegistry(device.NewSQLiteRepository(db.DB))
	if err := registry.RefreshCache(context.Background()); err != nil {
		t.Fatalf("RefreshCache: %v", err)
	}

	radio := &mockRadio{}
	channels, err := channel.NewRegistry(channel.RegistryOptions{
		Factory: func(string) (channel.Radio, error) { return radio, nil },
	})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(channels.Close)

	layout, err := driver.LayoutFor(driver.VariantCotech)
	if err != nil {
		t.Fatal(err)
	}
	drv, err := driver.New(driver.Options{ID: "cotech", Signal: "433", Layout: layout, Debounce: -1, Registry: channels})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(drv.Close)

	if err := registry.AttachDriver(context.Background(), drv); err != nil {
		t.Fatal(err)
	}
	porch := &device.Device{
		DriverID: "cotech", ID: "D1:0001", UUID: "D1", Unit: "0001", Name: "Porch",
		On: []string{onA}, Off: []string{offA},
	}
	if err := registry.CreateDevice(context.Background(), porch); err != nil {
		t.Fatalf("CreateDevice: %v", err)
	}

	m := metrics.New()
	deps := Deps{
		Config: config.APIConfig{
			Host: "127.0.0.1",
			Port: 0,
			Timeouts: config.APITimeoutConfig{
				Read:  5,
				Write: 5,
				Idle:  5,
			},
		},
		WS: config.WebSocketConfig{
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
		},
		Logger:   logging.New(config.LoggingConfig{Level: "error", Format: "text", Output: "stdout"}, "test"),
		Registry: registry,
		Drivers:  []*driver.Driver{drv},
		Channels: channels,
		Metrics:  m,
		Version:  "test",
	}
	for _, fn := range mutate {
		fn(&deps)
	}

	srv, err := New(deps)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go srv.hub.Run(ctx)

	return &testEnv{srv: srv, registry: registry, driver: drv, radio: radio, channels: channels, metrics: m}
}

func (e *testEnv) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	w := httptest.NewRecorder()
	e.srv.buildRouter().ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.NewDecoder(w.Body).Decode(v); err != nil {
		t.Fatalf("decoding response: %v (body %q)", err, w.Body.String())
	}
}

// ─── Construction ──────────────────────────────────────────────────

func TestNewValidation(t *testing.T) {
	log := logging.Default()
	if _, err := New(Deps{Registry: &device.Registry{}}); err == nil {
		t.Error("New() without logger should fail")
	}
	if _, err := New(Deps{Logger: log}); err == nil {
		t.Error("New() without registry should fail")
	}
}

func TestNewRejectsDuplicateDrivers(t *testing.T) {
	env := testServer(t)
	_, err := New(Deps{
		Logger:   logging.Default(),
		Registry: env.registry,
		Drivers:  []*driver.Driver{env.driver, env.driver},
	})
	if err == nil {
		t.Error("New() with a repeated driver id should fail")
	}
}

// ─── Health Endpoint Tests ─────────────────────────────────────────

func TestHealth(t *testing.T) {
	env := testServer(t)

	w := env.do(t, http.MethodGet, "/api/v1/health", "")
	if w.Code != http.StatusOK {
		t.Fatalf("health status = %d, want %d", w.Code, http.StatusOK)
	}
	var resp map[string]any
	decodeBody(t, w, &resp)
	if resp["status"] != "ok" || resp["version"] != "test" {
		t.Errorf("health = %v", resp)
	}
	if w.Header().Get("X-Request-ID") == "" {
		t.Error("missing X-Request-ID header")
	}
}

func TestHealthWithBridge(t *testing.T) {
	env := testServer(t, func(d *Deps) {
		d.Health = mockHealth{msg: bridge.HealthMessage{Bridge: "rf", Status: bridge.HealthDegraded}}
	})

	w := env.do(t, http.MethodGet, "/api/v1/health", "")
	var resp map[string]any
	decodeBody(t, w, &resp)
	if resp["status"] != string(bridge.HealthDegraded) {
		t.Errorf("status = %v, want degraded", resp["status"])
	}
	if _, ok := resp["bridge"].(map[string]any); !ok {
		t.Errorf("bridge health missing: %v", resp)
	}
}

func TestRequestIDIsEchoed(t *testing.T) {
	env := testServer(t)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	req.Header.Set("X-Request-ID", "abc-123")
	w := httptest.NewRecorder()
	env.srv.buildRouter().ServeHTTP(w, req)
	if got := w.Header().Get("X-Request-ID"); got != "abc-123" {
		t.Errorf("X-Request-ID = %q, want abc-123", got)
	}
}

// ─── Drivers, Channels, Frames ─────────────────────────────────────

func TestListDrivers(t *testing.T) {
	env := testServer(t)

	w := env.do(t, http.MethodGet, "/api/v1/drivers", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var resp struct {
		Drivers []DriverInfo `json:"drivers"`
		Count   int          `json:"count"`
	}
	decodeBody(t, w, &resp)
	if resp.Count != 1 || len(resp.Drivers) != 1 {
		t.Fatalf("drivers = %+v", resp)
	}
	d := resp.Drivers[0]
	if d.ID != "cotech" || d.Signal != "433" || d.Devices != 1 || d.Pairing {
		t.Errorf("driver = %+v", d)
	}
	if d.Layout.Variant != driver.VariantCotech {
		t.Errorf("variant = %q", d.Layout.Variant)
	}
}

func TestListChannels(t *testing.T) {
	env := testServer(t)

	w := env.do(t, http.MethodGet, "/api/v1/channels", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var resp struct {
		Channels []channel.ChannelStatus `json:"channels"`
	}
	decodeBody(t, w, &resp)
	if len(resp.Channels) != 1 || resp.Channels[0].Signal != "433" {
		t.Fatalf("channels = %+v", resp.Channels)
	}
}

func TestUnavailableSources(t *testing.T) {
	env := testServer(t, func(d *Deps) { d.Channels = nil })

	for _, path := range []string{"/api/v1/channels", "/api/v1/frames"} {
		if w := env.do(t, http.MethodGet, path, ""); w.Code != http.StatusServiceUnavailable {
			t.Errorf("%s status = %d, want 503", path, w.Code)
		}
	}
}

func TestListFrames(t *testing.T) {
	frames := &mockFrames{records: []bridge.FrameRecord{{DriverID: "cotech", Address: onA, Count: 3}}}
	env := testServer(t, func(d *Deps) { d.Frames = frames })

	w := env.do(t, http.MethodGet, "/api/v1/frames?driver=cotech&limit=5000", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var resp struct {
		Frames []bridge.FrameRecord `json:"frames"`
		Count  int                  `json:"count"`
	}
	decodeBody(t, w, &resp)
	if resp.Count != 1 || resp.Frames[0].Count != 3 {
		t.Errorf("frames = %+v", resp)
	}
	if frames.gotDriver != "cotech" || frames.gotLimit != maxFrameLimit {
		t.Errorf("Frames(%q, %d), want (cotech, %d)", frames.gotDriver, frames.gotLimit, maxFrameLimit)
	}

	if w := env.do(t, http.MethodGet, "/api/v1/frames?limit=zero", ""); w.Code != http.StatusBadRequest {
		t.Errorf("bad limit status = %d, want 400", w.Code)
	}

	frames.err = errors.New("disk gone")
	if w := env.do(t, http.MethodGet, "/api/v1/frames", ""); w.Code != http.StatusInternalServerError {
		t.Errorf("failing source status = %d, want 500", w.Code)
	}
}

func TestSystemMetrics(t *testing.T) {
	env := testServer(t)

	w := env.do(t, http.MethodGet, "/api/v1/system", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var resp SystemMetrics
	decodeBody(t, w, &resp)
	if resp.Version != "test" || resp.Devices.Total != 1 || resp.Devices.ByDriver["cotech"] != 1 {
		t.Errorf("metrics = %+v", resp)
	}
	if resp.Bridge != nil {
		t.Error("bridge metrics without a health source")
	}
}

// ─── Device Endpoint Tests ─────────────────────────────────────────

func TestListDevices(t *testing.T) {
	env := testServer(t)

	for _, path := range []string{"/api/v1/devices", "/api/v1/devices?driver=cotech"} {
		w := env.do(t, http.MethodGet, path, "")
		var resp struct {
			Devices []device.Device `json:"devices"`
			Count   int             `json:"count"`
		}
		decodeBody(t, w, &resp)
		if resp.Count != 1 || resp.Devices[0].Key() != porchKey {
			t.Errorf("%s = %+v", path, resp)
		}
	}

	w := env.do(t, http.MethodGet, "/api/v1/devices?driver=other", "")
	var resp struct {
		Devices []device.Device `json:"devices"`
	}
	decodeBody(t, w, &resp)
	if resp.Devices == nil || len(resp.Devices) != 0 {
		t.Errorf("filtered devices = %v, want empty list", resp.Devices)
	}
}

func TestGetDevice(t *testing.T) {
	env := testServer(t)

	tests := []struct {
		name string
		key  string
		want int
	}{
		{"found", porchKey, http.StatusOK},
		{"unknown", "cotech:nope", http.StatusNotFound},
		{"bad key", "nokey", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(t, http.MethodGet, "/api/v1/devices/"+tt.key, "")
			if w.Code != tt.want {
				t.Errorf("status = %d, want %d (body %s)", w.Code, tt.want, w.Body.String())
			}
		})
	}
}

func TestDeviceStats(t *testing.T) {
	env := testServer(t)
	w := env.do(t, http.MethodGet, "/api/v1/devices/stats", "")
	var stats device.Stats
	decodeBody(t, w, &stats)
	if stats.Total != 1 || stats.ByDriver["cotech"] != 1 {
		t.Errorf("stats = %+v", stats)
	}
}

func TestRenameDevice(t *testing.T) {
	env := testServer(t)

	w := env.do(t, http.MethodPatch, "/api/v1/devices/"+porchKey, `{"name":"Front porch"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d (body %s)", w.Code, w.Body.String())
	}
	d, err := env.registry.GetDevice(context.Background(), porchKey)
	if err != nil || d.Name != "Front porch" {
		t.Errorf("device = %+v, %v", d, err)
	}

	if w := env.do(t, http.MethodPatch, "/api/v1/devices/"+porchKey, `{"name":"  "}`); w.Code != http.StatusBadRequest {
		t.Errorf("blank name status = %d, want 400", w.Code)
	}
	if w := env.do(t, http.MethodPatch, "/api/v1/devices/"+porchKey, `{`); w.Code != http.StatusBadRequest {
		t.Errorf("bad JSON status = %d, want 400", w.Code)
	}
}

func TestDeleteDevice(t *testing.T) {
	env := testServer(t)

	if w := env.do(t, http.MethodDelete, "/api/v1/devices/"+porchKey, ""); w.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", w.Code)
	}
	if _, ok := env.driver.Device("D1:0001"); ok {
		t.Error("device still bound in the driver")
	}
	if w := env.do(t, http.MethodDelete, "/api/v1/devices/"+porchKey, ""); w.Code != http.StatusNotFound {
		t.Errorf("second delete status = %d, want 404", w.Code)
	}
}

func TestSendDevice(t *testing.T) {
	env := testServer(t)

	w := env.do(t, http.MethodPost, "/api/v1/devices/"+porchKey+"/send", `{"state":"on"}`)
	if w.Code != http.StatusAccepted {
		t.Fatalf("status = %d (body %s)", w.Code, w.Body.String())
	}
	if env.radio.sentCount() != 1 {
		t.Errorf("sent = %d, want 1", env.radio.sentCount())
	}

	tests := []struct {
		name string
		key  string
		body string
		want int
	}{
		{"bad state", porchKey, `{"state":"dim"}`, http.StatusBadRequest},
		{"bad JSON", porchKey, `{`, http.StatusBadRequest},
		{"bad unit", porchKey, `{"state":"off","unit":"1"}`, http.StatusBadRequest},
		{"unknown device", "cotech:nope", `{"state":"on"}`, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(t, http.MethodPost, "/api/v1/devices/"+tt.key+"/send", tt.body)
			if w.Code != tt.want {
				t.Errorf("status = %d, want %d (body %s)", w.Code, tt.want, w.Body.String())
			}
		})
	}

	scrape := env.do(t, http.MethodGet, "/metrics", "")
	body := scrape.Body.String()
	if !strings.Contains(body, `graylogic_rf_bridge_commands_total{source="api",status="accepted"} 1`) {
		t.Error("accepted API command not counted")
	}
	if !strings.Contains(body, `graylogic_rf_bridge_commands_total{source="api",status="failed"} 4`) {
		t.Error("failed API commands not counted")
	}
}

func TestDeviceState(t *testing.T) {
	env := testServer(t)

	w := env.do(t, http.MethodGet, "/api/v1/devices/"+porchKey+"/state", "")
	var before DeviceState
	decodeBody(t, w, &before)
	if before.State != "unknown" || before.LastFrame != nil {
		t.Errorf("state before any frame = %+v", before)
	}

	env.radio.receive(offA + "0001")

	deadline := time.Now().Add(2 * time.Second)
	for {
		w := env.do(t, http.MethodGet, "/api/v1/devices/"+porchKey+"/state", "")
		var st DeviceState
		decodeBody(t, w, &st)
		if st.State == "off" {
			if st.LastFrame == nil || st.LastFrame.Address != offA {
				t.Errorf("last frame = %+v", st.LastFrame)
			}
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("state = %+v, want off", st)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

// ─── Middleware ────────────────────────────────────────────────────

func TestCORS(t *testing.T) {
	env := testServer(t, func(d *Deps) {
		d.Config.CORS.AllowedOrigins = []string{"http://panel.local"}
	})

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/devices", nil)
	req.Header.Set("Origin", "http://panel.local")
	w := httptest.NewRecorder()
	env.srv.buildRouter().ServeHTTP(w, req)
	if w.Code != http.StatusNoContent {
		t.Errorf("preflight status = %d, want 204", w.Code)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "http://panel.local" {
		t.Errorf("allow origin = %q", got)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	req.Header.Set("Origin", "http://evil.example")
	w = httptest.NewRecorder()
	env.srv.buildRouter().ServeHTTP(w, req)
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Errorf("disallowed origin got %q", got)
	}
}

func TestJoinOrDefault(t *testing.T) {
	if got := joinOrDefault(nil, "x"); got != "x" {
		t.Errorf("joinOrDefault(nil) = %q", got)
	}
	if got := joinOrDefault([]string{"GET", "POST"}, "x"); got != "GET, POST" {
		t.Errorf("joinOrDefault = %q", got)
	}
}
