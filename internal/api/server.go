package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/nerrad567/gray-logic-rf/internal/bridge"
	"github.com/nerrad567/gray-logic-rf/internal/device"
	"github.com/nerrad567/gray-logic-rf/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-rf/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-rf/internal/infrastructure/metrics"
	"github.com/nerrad567/gray-logic-rf/internal/rf/channel"
	"github.com/nerrad567/gray-logic-rf/internal/rf/driver"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// ChannelSource reports the multiplexer state. *channel.Registry satisfies it.
type ChannelSource interface {
	Snapshot() []channel.ChannelStatus
}

// HealthSource reports bridge health. *bridge.Bridge satisfies it.
type HealthSource interface {
	Health() bridge.HealthMessage
}

// FrameSource lists recorded frames. *bridge.FrameRecorder satisfies it.
type FrameSource interface {
	Frames(ctx context.Context, driverID string, limit int) ([]bridge.FrameRecord, error)
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config   config.APIConfig
	WS       config.WebSocketConfig
	Logger   *logging.Logger
	Registry *device.Registry
	Drivers  []*driver.Driver
	Channels ChannelSource    // optional
	Health   HealthSource     // optional
	Frames   FrameSource      // optional
	Metrics  *metrics.Metrics // optional; enables /metrics
	Version  string
}

// Server is the HTTP API server.
//
// It manages the HTTP listener, routes, middleware, the live WebSocket hub
// and the pairing sessions. The server is created with New() and started
// with Start().
type Server struct {
	cfg       config.APIConfig
	wsCfg     config.WebSocketConfig
	logger    *logging.Logger
	registry  *device.Registry
	drivers   map[string]*driver.Driver
	order     []string
	channels  ChannelSource
	health    HealthSource
	frames    FrameSource
	metrics   *metrics.Metrics
	version   string
	startTime time.Time

	server *http.Server
	hub    *Hub
	cancel context.CancelFunc // cancels background goroutines on Close()

	// Driver event subscriptions feeding the hub
	unsubscribe []func()

	// Open pairing sessions by driver id
	pairing   map[string]struct{}
	pairingMu sync.Mutex
}

// New creates a new API server with the given dependencies.
//
// The server is not started until Start() is called.
//
// Parameters:
//   - deps: Required dependencies (logger, registry); the rest are optional
//
// Returns:
//   - *Server: Configured server ready to start
//   - error: If required dependencies are missing or a driver id repeats
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Registry == nil {
		return nil, fmt.Errorf("device registry is required")
	}

	s := &Server{
		cfg:       deps.Config,
		wsCfg:     deps.WS,
		logger:    deps.Logger,
		registry:  deps.Registry,
		drivers:   make(map[string]*driver.Driver, len(deps.Drivers)),
		channels:  deps.Channels,
		health:    deps.Health,
		frames:    deps.Frames,
		metrics:   deps.Metrics,
		version:   deps.Version,
		startTime: time.Now(),
		pairing:   make(map[string]struct{}),
	}
	for _, drv := range deps.Drivers {
		if _, dup := s.drivers[drv.ID()]; dup {
			return nil, fmt.Errorf("duplicate driver id %q", drv.ID())
		}
		s.drivers[drv.ID()] = drv
		s.order = append(s.order, drv.ID())
	}

	s.hub = NewHub(s.wsCfg, s.logger)
	if s.metrics != nil {
		s.hub.OnClientCount(s.metrics.WebSocketClients)
	}

	return s, nil
}

// Start begins listening for HTTP connections.
//
// It starts the WebSocket hub, subscribes to driver events for the live
// feed, and launches the HTTP listener in a background goroutine. The server
// can be stopped with Close().
//
// Parameters:
//   - ctx: Context for the hub and other background goroutines
//
// Returns:
//   - error: Always nil; listener failures are logged
func (s *Server) Start(ctx context.Context) error {
	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)

	go s.hub.Run(srvCtx)
	s.subscribeDriverEvents()

	router := s.buildRouter()

	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           router,
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	go func() {
		var err error
		if s.cfg.TLS.Enabled {
			s.logger.Info("API server starting with TLS",
				"address", s.server.Addr,
				"cert", s.cfg.TLS.CertFile,
			)
			err = s.server.ListenAndServeTLS(s.cfg.TLS.CertFile, s.cfg.TLS.KeyFile)
		} else {
			s.logger.Info("API server starting", "address", s.server.Addr)
			err = s.server.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	return nil
}

// Close gracefully shuts down the API server.
//
// It waits up to 10 seconds for in-flight requests to complete,
// then forcefully closes remaining connections.
func (s *Server) Close() error {
	for _, unsub := range s.unsubscribe {
		unsub()
	}
	s.unsubscribe = nil

	if s.cancel != nil {
		s.cancel()
	}
	if s.server == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("API server shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}

// HealthCheck verifies the API server is running and responsive.
func (s *Server) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("api health check: %w", ctx.Err())
	default:
	}

	if s.server == nil {
		return fmt.Errorf("api server not started")
	}

	return nil
}

// driver returns the driver with the given id.
func (s *Server) driver(id string) (*driver.Driver, bool) {
	drv, ok := s.drivers[id]
	return drv, ok
}

// claimPairing reserves the pairing slot for a driver. It reports false when
// a session is already open.
func (s *Server) claimPairing(driverID string) bool {
	s.pairingMu.Lock()
	defer s.pairingMu.Unlock()
	if _, busy := s.pairing[driverID]; busy {
		return false
	}
	s.pairing[driverID] = struct{}{}
	s.reportPairingLocked()
	return true
}

// releasePairing frees the pairing slot for a driver.
func (s *Server) releasePairing(driverID string) {
	s.pairingMu.Lock()
	defer s.pairingMu.Unlock()
	delete(s.pairing, driverID)
	s.reportPairingLocked()
}

func (s *Server) reportPairingLocked() {
	if s.metrics != nil {
		s.metrics.PairingSessions(len(s.pairing))
	}
}
