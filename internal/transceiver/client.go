package transceiver

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nerrad567/gray-logic-rf/internal/rf/bitcodec"
)

// closeOnce wraps a channel with sync.Once to prevent double-close panics.
type closeOnce struct {
	ch   chan struct{}
	once sync.Once
}

func newCloseOnce() *closeOnce {
	return &closeOnce{ch: make(chan struct{})}
}

func (c *closeOnce) Close() {
	c.once.Do(func() { close(c.ch) })
}

func (c *closeOnce) Done() <-chan struct{} {
	return c.ch
}

// Default timeouts and intervals for daemon communication.
const (
	// defaultConnectTimeout is the maximum time to wait for the initial connection.
	defaultConnectTimeout = 10 * time.Second

	// defaultCommandTimeout bounds the wait for a command reply.
	defaultCommandTimeout = 5 * time.Second

	// defaultWriteTimeout is the timeout for write operations.
	defaultWriteTimeout = 5 * time.Second

	// defaultReconnectInterval is the initial delay between reconnection attempts.
	defaultReconnectInterval = 2 * time.Second

	// defaultMaxReconnectInterval caps the reconnection backoff.
	defaultMaxReconnectInterval = time.Minute

	// defaultTCPAddress is used for "tcp://" without a host.
	defaultTCPAddress = "localhost:7070"

	// maxLineLength bounds an inbound line.
	maxLineLength = 4096

	// receiveQueueSize is the buffer size for the received-frame queue.
	receiveQueueSize = 256
)

// Config holds daemon connection configuration.
type Config struct {
	// Connection is the daemon URL.
	// Supported formats:
	//   - "unix:///run/rfd.sock" (Unix socket)
	//   - "tcp://localhost:7070" (TCP)
	Connection string

	// ConnectTimeout is the maximum time to wait for connection.
	// Default: 10 seconds.
	ConnectTimeout time.Duration

	// CommandTimeout is the maximum time to wait for a reply.
	// Default: 5 seconds.
	CommandTimeout time.Duration

	// ReconnectInterval is the initial delay between reconnection attempts.
	// Default: 2 seconds.
	ReconnectInterval time.Duration

	// MaxReconnectInterval caps the backoff. Default: 1 minute.
	MaxReconnectInterval time.Duration
}

// Stats holds operational statistics.
type Stats struct {
	FramesTx        uint64
	FramesRx        uint64
	FramesDropped   uint64 // Frames dropped due to a full receive queue
	ErrorsTotal     uint64
	ReconnectsTotal uint64
	LastActivity    time.Time
	Connected       bool
	Reconnecting    bool
}

// Logger interface for optional logging.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

type received struct {
	signal string
	bits   bitcodec.Bits
}

// Client is a connection to the transceiver daemon.
//
// Thread Safety:
//   - All methods are safe for concurrent use.
//   - Received frames are delivered on a single worker goroutine, in
//     arrival order.
//
// Auto-Reconnection:
//   - When the connection is lost, pending commands fail with ErrNotConnected
//     and the client redials with exponential backoff (x1.5, capped).
//   - Signals that were receiving are started again after reconnecting.
//   - Reconnection stops only when Close() is called.
type Client struct {
	cfg Config

	connMu    sync.RWMutex
	conn      net.Conn
	connected bool
	writeMu   sync.Mutex

	reconnecting atomic.Bool
	seq          atomic.Uint64

	pendingMu sync.Mutex
	pending   map[uint64]chan error

	handlersMu sync.RWMutex
	handlers   map[string]func(bitcodec.Bits)
	receiving  map[string]bool

	receiveQueue chan received

	done *closeOnce
	wg   sync.WaitGroup

	logger   Logger
	loggerMu sync.RWMutex

	framesTx        atomic.Uint64
	framesRx        atomic.Uint64
	framesDropped   atomic.Uint64
	errorsTotal     atomic.Uint64
	reconnectsTotal atomic.Uint64
	lastActivity    atomic.Int64
}

// Connect dials the daemon and verifies it answers a PING.
//
// Parameters:
//   - ctx: Context for cancellation (used for the initial connection)
//   - cfg: Connection configuration
//   - logger: Optional logger, may be nil
//
// Returns:
//   - *Client: Connected client ready for use
//   - error: If connection or the PING fails
func Connect(ctx context.Context, cfg Config, logger Logger) (*Client, error) {
	if cfg.ConnectTimeout == 0 {
		cfg.ConnectTimeout = defaultConnectTimeout
	}
	if cfg.CommandTimeout == 0 {
		cfg.CommandTimeout = defaultCommandTimeout
	}
	if cfg.ReconnectInterval == 0 {
		cfg.ReconnectInterval = defaultReconnectInterval
	}
	if cfg.MaxReconnectInterval == 0 {
		cfg.MaxReconnectInterval = defaultMaxReconnectInterval
	}

	network, address, err := parseConnectionURL(cfg.Connection)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	connectCtx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
	defer cancel()

	var dialer net.Dialer
	conn, err := dialer.DialContext(connectCtx, network, address)
	if err != nil {
		return nil, fmt.Errorf("%w: dial failed: %w", ErrConnectionFailed, err)
	}

	c := &Client{
		cfg:          cfg,
		conn:         conn,
		connected:    true,
		pending:      make(map[uint64]chan error),
		handlers:     make(map[string]func(bitcodec.Bits)),
		receiving:    make(map[string]bool),
		receiveQueue: make(chan received, receiveQueueSize),
		done:         newCloseOnce(),
		logger:       logger,
	}
	c.lastActivity.Store(time.Now().Unix())

	c.wg.Add(2)
	go c.receiveWorker()
	go c.receiveLoop(conn)

	if err := c.Ping(connectCtx); err != nil {
		c.Close()
		return nil, fmt.Errorf("%w: handshake failed: %w", ErrConnectionFailed, err)
	}
	return c, nil
}

// parseConnectionURL parses a daemon connection URL into network and address.
func parseConnectionURL(connURL string) (network, address string, err error) {
	u, err := url.Parse(connURL)
	if err != nil {
		return "", "", fmt.Errorf("invalid URL: %w", err)
	}

	switch u.Scheme {
	case "unix":
		return "unix", u.Path, nil
	case "tcp":
		host := u.Host
		if host == "" {
			host = defaultTCPAddress
		}
		return "tcp", host, nil
	default:
		return "", "", fmt.Errorf("unsupported scheme %q (use unix or tcp)", u.Scheme)
	}
}

// receiveLoop reads lines until the connection fails, then reconnects and
// continues on the new connection.
func (c *Client) receiveLoop(conn net.Conn) {
	defer c.wg.Done()

	for {
		c.readLines(conn)
		if c.isClosed() {
			return
		}
		c.handleDisconnect()

		next, ok := c.reconnect()
		if !ok {
			return
		}
		conn = next
		c.restoreReceiving()
	}
}

func (c *Client) readLines(conn net.Conn) {
	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, 256), maxLineLength)

	for scanner.Scan() {
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		c.lastActivity.Store(time.Now().Unix())

		line, err := ParseLine(text)
		if err != nil {
			c.errorsTotal.Add(1)
			c.logWarn("ignoring unparseable line", "line", text, "error", err)
			continue
		}
		c.handleLine(line)
	}

	if err := scanner.Err(); err != nil && !c.isClosed() {
		c.errorsTotal.Add(1)
		c.logError("read failed", err)
	}
}

func (c *Client) handleLine(line Line) {
	switch line.Kind {
	case LineReceive:
		c.framesRx.Add(1)
		select {
		case c.receiveQueue <- received{signal: line.Signal, bits: line.Bits}:
		default:
			c.framesDropped.Add(1)
			c.errorsTotal.Add(1)
			c.logWarn("receive queue full, dropping frame", "signal", line.Signal)
		}
	case LineReply:
		c.complete(line.Seq, nil)
	case LineError:
		c.complete(line.Seq, fmt.Errorf("%w: %s", ErrCommandFailed, line.Text))
	}
}

func (c *Client) complete(seq uint64, err error) {
	c.pendingMu.Lock()
	ch, ok := c.pending[seq]
	delete(c.pending, seq)
	c.pendingMu.Unlock()

	if !ok {
		c.logDebug("reply for unknown command", "seq", seq)
		return
	}
	ch <- err
}

// receiveWorker hands received frames to the per-signal handlers.
func (c *Client) receiveWorker() {
	defer c.wg.Done()

	for {
		select {
		case <-c.done.Done():
			c.drainReceiveQueue()
			return
		case r := <-c.receiveQueue:
			c.handlersMu.RLock()
			fn := c.handlers[r.signal]
			c.handlersMu.RUnlock()

			if fn == nil {
				continue
			}
			func() {
				defer func() {
					if rec := recover(); rec != nil {
						c.logError("frame callback panic", fmt.Errorf("%v", rec))
					}
				}()
				fn(r.bits)
			}()
		}
	}
}

// handleDisconnect marks the client disconnected and fails every pending
// command.
func (c *Client) handleDisconnect() {
	c.connMu.Lock()
	wasConnected := c.connected
	c.connected = false
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	c.connMu.Unlock()

	c.pendingMu.Lock()
	pending := c.pending
	c.pending = make(map[uint64]chan error)
	c.pendingMu.Unlock()
	for _, ch := range pending {
		ch <- ErrNotConnected
	}

	if wasConnected {
		c.logInfo("connection lost, will attempt reconnection")
	}
}

// reconnect redials with exponential backoff. It returns false once Close
// has been called.
func (c *Client) reconnect() (net.Conn, bool) {
	c.reconnecting.Store(true)
	defer c.reconnecting.Store(false)

	network, address, err := parseConnectionURL(c.cfg.Connection)
	if err != nil {
		c.logError("reconnect: invalid connection URL", err)
		return nil, false
	}

	backoff := c.cfg.ReconnectInterval
	for attempt := 1; ; attempt++ {
		select {
		case <-c.done.Done():
			return nil, false
		case <-time.After(backoff):
		}

		c.logInfo("attempting reconnection", "attempt", attempt, "backoff", backoff.String())
		conn, err := c.dialWithTimeout(network, address)
		if err != nil {
			c.errorsTotal.Add(1)
			c.logError("reconnect: dial failed", err)
			backoff = nextBackoff(backoff, c.cfg.MaxReconnectInterval)
			continue
		}

		c.connMu.Lock()
		if c.isClosed() {
			c.connMu.Unlock()
			conn.Close()
			return nil, false
		}
		c.conn = conn
		c.connected = true
		c.connMu.Unlock()

		c.reconnectsTotal.Add(1)
		c.lastActivity.Store(time.Now().Unix())
		c.logInfo("reconnection successful", "total_reconnects", c.reconnectsTotal.Load())
		return conn, true
	}
}

// nextBackoff grows d by half, capped at limit.
func nextBackoff(d, limit time.Duration) time.Duration {
	next := time.Duration(float64(d) * 1.5)
	if next > limit {
		next = limit
	}
	return next
}

func (c *Client) dialWithTimeout(network, address string) (net.Conn, error) {
	ctx, cancel := context.WithTimeout(context.Background(), c.cfg.ConnectTimeout)
	defer cancel()

	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, network, address)
	if err != nil {
		return nil, fmt.Errorf("dial %s://%s: %w", network, address, err)
	}
	return conn, nil
}

// restoreReceiving re-issues START for every receiving signal. It runs on
// its own goroutine because replies are read by the receive loop.
func (c *Client) restoreReceiving() {
	c.handlersMu.RLock()
	signals := make([]string, 0, len(c.receiving))
	for s := range c.receiving {
		signals = append(signals, s)
	}
	c.handlersMu.RUnlock()
	if len(signals) == 0 {
		return
	}
	sort.Strings(signals)

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		for _, s := range signals {
			ctx, cancel := context.WithTimeout(context.Background(), c.cfg.CommandTimeout)
			err := c.command(ctx, VerbStart, s, nil)
			cancel()
			if err != nil {
				c.logError("restoring receive failed", err)
				continue
			}
			c.logInfo("receive restored", "signal", s)
		}
	}()
}

// command sends one command and waits for its reply.
func (c *Client) command(ctx context.Context, verb, signal string, bits bitcodec.Bits) error {
	if c.isClosed() {
		return ErrClosed
	}

	c.connMu.RLock()
	conn, connected := c.conn, c.connected
	c.connMu.RUnlock()
	if !connected || conn == nil {
		return ErrNotConnected
	}

	seq := c.seq.Add(1)
	reply := make(chan error, 1)
	c.pendingMu.Lock()
	c.pending[seq] = reply
	c.pendingMu.Unlock()

	if err := c.write(ctx, conn, EncodeCommand(seq, verb, signal, bits)); err != nil {
		c.forget(seq)
		c.errorsTotal.Add(1)
		return err
	}

	timer := time.NewTimer(c.cfg.CommandTimeout)
	defer timer.Stop()

	select {
	case err := <-reply:
		return err
	case <-ctx.Done():
		c.forget(seq)
		return fmt.Errorf("%s %s: %w", verb, signal, ctx.Err())
	case <-timer.C:
		c.forget(seq)
		c.errorsTotal.Add(1)
		return fmt.Errorf("%w: %s %s", ErrTimeout, verb, signal)
	case <-c.done.Done():
		c.forget(seq)
		return ErrClosed
	}
}

func (c *Client) write(ctx context.Context, conn net.Conn, line string) error {
	deadline := time.Now().Add(defaultWriteTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if err := conn.SetWriteDeadline(deadline); err != nil {
		return fmt.Errorf("set deadline: %w", err)
	}
	if _, err := conn.Write([]byte(line)); err != nil {
		return fmt.Errorf("write: %w", err)
	}
	return nil
}

func (c *Client) forget(seq uint64) {
	c.pendingMu.Lock()
	delete(c.pending, seq)
	c.pendingMu.Unlock()
}

// Ping checks that the daemon answers.
func (c *Client) Ping(ctx context.Context) error {
	return c.command(ctx, VerbPing, "", nil)
}

// HealthCheck reports whether the daemon is reachable.
func (c *Client) HealthCheck(ctx context.Context) error {
	if !c.IsConnected() {
		return ErrNotConnected
	}
	return c.Ping(ctx)
}

// StartReceiving asks the daemon to forward frames for signal.
//
// The signal is marked as receiving before the command is sent, so a start
// that fails because the connection is down is re-issued by the reconnect
// loop. Only an explicit ERR from the daemon clears the mark.
func (c *Client) StartReceiving(ctx context.Context, signal string) error {
	c.handlersMu.Lock()
	c.receiving[signal] = true
	c.handlersMu.Unlock()

	err := c.command(ctx, VerbStart, signal, nil)
	if errors.Is(err, ErrCommandFailed) {
		c.handlersMu.Lock()
		delete(c.receiving, signal)
		c.handlersMu.Unlock()
	}
	return err
}

// isReceiving reports whether frames for signal should be forwarded.
func (c *Client) isReceiving(signal string) bool {
	c.handlersMu.RLock()
	defer c.handlersMu.RUnlock()
	return c.receiving[signal]
}

// StopReceiving stops forwarding frames for signal.
func (c *Client) StopReceiving(ctx context.Context, signal string) error {
	c.handlersMu.Lock()
	delete(c.receiving, signal)
	c.handlersMu.Unlock()
	return c.command(ctx, VerbStop, signal, nil)
}

// Transmit sends one frame on signal.
func (c *Client) Transmit(ctx context.Context, signal string, bits bitcodec.Bits) error {
	if err := c.command(ctx, VerbTx, signal, bits); err != nil {
		return err
	}
	c.framesTx.Add(1)
	c.lastActivity.Store(time.Now().Unix())
	return nil
}

// SetOnFrame sets the callback for frames received on signal. A nil
// callback removes it.
func (c *Client) SetOnFrame(signal string, fn func(bitcodec.Bits)) {
	c.handlersMu.Lock()
	defer c.handlersMu.Unlock()
	if fn == nil {
		delete(c.handlers, signal)
		return
	}
	c.handlers[signal] = fn
}

// IsConnected returns true if connected to the daemon.
func (c *Client) IsConnected() bool {
	c.connMu.RLock()
	defer c.connMu.RUnlock()
	return c.connected
}

// Stats returns current operational statistics.
func (c *Client) Stats() Stats {
	return Stats{
		FramesTx:        c.framesTx.Load(),
		FramesRx:        c.framesRx.Load(),
		FramesDropped:   c.framesDropped.Load(),
		ErrorsTotal:     c.errorsTotal.Load(),
		ReconnectsTotal: c.reconnectsTotal.Load(),
		LastActivity:    time.Unix(c.lastActivity.Load(), 0),
		Connected:       c.IsConnected(),
		Reconnecting:    c.reconnecting.Load(),
	}
}

// Close shuts the client down. Safe to call multiple times.
func (c *Client) Close() error {
	c.done.Close()

	c.connMu.Lock()
	c.connected = false
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	c.connMu.Unlock()

	c.wg.Wait()
	c.logInfo("connection closed")
	return nil
}

func (c *Client) drainReceiveQueue() {
	for {
		select {
		case <-c.receiveQueue:
		default:
			return
		}
	}
}

func (c *Client) isClosed() bool {
	select {
	case <-c.done.Done():
		return true
	default:
		return false
	}
}

func (c *Client) log() Logger {
	c.loggerMu.RLock()
	defer c.loggerMu.RUnlock()
	return c.logger
}

// SetLogger sets the logger for this client.
func (c *Client) SetLogger(logger Logger) {
	c.loggerMu.Lock()
	c.logger = logger
	c.loggerMu.Unlock()
}

func (c *Client) logDebug(msg string, keysAndValues ...any) {
	if l := c.log(); l != nil {
		l.Debug(msg, keysAndValues...)
	}
}

func (c *Client) logInfo(msg string, keysAndValues ...any) {
	if l := c.log(); l != nil {
		l.Info(msg, keysAndValues...)
	}
}

func (c *Client) logWarn(msg string, keysAndValues ...any) {
	if l := c.log(); l != nil {
		l.Warn(msg, keysAndValues...)
	}
}

func (c *Client) logError(msg string, err error) {
	if l := c.log(); l != nil {
		if errors.Is(err, ErrClosed) {
			l.Debug(msg, "error", err)
			return
		}
		l.Error(msg, "error", err)
	}
}
