package process

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"
)

// Status is the lifecycle state of the supervised daemon.
type Status string

const (
	StatusStopped Status = "stopped"
	StatusRunning Status = "running"
	StatusBackoff Status = "backoff"
	StatusFailed  Status = "failed"
)

// Defaults applied by NewSupervisor for zero values.
const (
	defaultRestartDelay    = 5 * time.Second
	defaultMaxRestartDelay = 5 * time.Minute
	defaultStableAfter     = 2 * time.Minute
	defaultGracefulTimeout = 10 * time.Second
)

// ErrAlreadyRunning is returned by Start on a running supervisor.
var ErrAlreadyRunning = errors.New("process already running")

// Config holds the settings of one supervised daemon.
type Config struct {
	// Name identifies the daemon in logs.
	Name string

	Binary string
	Args   []string

	// Env is appended to the parent environment.
	Env []string

	// RestartDelay is the first backoff step. It doubles after each
	// consecutive failure up to MaxRestartDelay.
	RestartDelay    time.Duration
	MaxRestartDelay time.Duration

	// StableAfter is how long a run must last to reset the backoff.
	StableAfter time.Duration

	// MaxRestartAttempts limits consecutive restarts. 0 means unlimited.
	MaxRestartAttempts int

	// GracefulTimeout is how long Stop waits after SIGTERM before SIGKILL.
	GracefulTimeout time.Duration
}

// Logger is the logging interface used by the supervisor.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Supervisor runs a daemon and restarts it when it exits.
type Supervisor struct {
	cfg    Config
	logger Logger

	mu        sync.RWMutex
	cmd       *exec.Cmd
	status    Status
	failures  int
	restarts  int
	lastError error
	startedAt time.Time
	stopping  bool
	cancel    context.CancelFunc
	done      chan struct{}
}

// NewSupervisor creates a supervisor. Call Start to launch the daemon.
func NewSupervisor(cfg Config) *Supervisor {
	if cfg.RestartDelay <= 0 {
		cfg.RestartDelay = defaultRestartDelay
	}
	if cfg.MaxRestartDelay < cfg.RestartDelay {
		cfg.MaxRestartDelay = defaultMaxRestartDelay
		if cfg.MaxRestartDelay < cfg.RestartDelay {
			cfg.MaxRestartDelay = cfg.RestartDelay
		}
	}
	if cfg.StableAfter <= 0 {
		cfg.StableAfter = defaultStableAfter
	}
	if cfg.GracefulTimeout <= 0 {
		cfg.GracefulTimeout = defaultGracefulTimeout
	}
	if cfg.Name == "" {
		cfg.Name = cfg.Binary
	}
	return &Supervisor{cfg: cfg, logger: noopLogger{}, status: StatusStopped}
}

// SetLogger sets the logger for the supervisor.
func (s *Supervisor) SetLogger(logger Logger) {
	if logger != nil {
		s.logger = logger
	}
}

// Start launches the daemon and the restart loop. It fails if the first
// launch fails, so a missing binary surfaces at startup.
func (s *Supervisor) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.done != nil {
		s.mu.Unlock()
		return fmt.Errorf("%s: %w", s.cfg.Name, ErrAlreadyRunning)
	}
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.stopping = false
	s.failures = 0
	s.restarts = 0
	s.mu.Unlock()

	cmd, err := s.launch(runCtx)
	if err != nil {
		cancel()
		s.setFailed(err)
		return err
	}

	done := make(chan struct{})
	s.mu.Lock()
	s.done = done
	s.mu.Unlock()

	go s.supervise(runCtx, cmd, done)
	return nil
}

// launch starts one run of the daemon in its own process group.
func (s *Supervisor) launch(ctx context.Context) (*exec.Cmd, error) {
	cmd := exec.CommandContext(ctx, s.cfg.Binary, s.cfg.Args...) //nolint:gosec // Binary comes from operator config
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		return signalGroup(cmd, syscall.SIGKILL)
	}
	if len(s.cfg.Env) > 0 {
		cmd.Env = append(os.Environ(), s.cfg.Env...)
	}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("creating stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("creating stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("starting %s: %w", s.cfg.Name, err)
	}

	s.mu.Lock()
	s.cmd = cmd
	s.status = StatusRunning
	s.startedAt = time.Now()
	s.mu.Unlock()

	go s.capture("stdout", stdout)
	go s.capture("stderr", stderr)

	s.logger.Info("daemon started", "name", s.cfg.Name, "pid", cmd.Process.Pid)
	return cmd, nil
}

// capture logs the daemon's output line by line.
func (s *Supervisor) capture(stream string, r io.Reader) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		s.logger.Debug("daemon output", "name", s.cfg.Name, "stream", stream, "line", scanner.Text())
	}
}

// supervise waits for each run to exit and restarts it until stopped.
func (s *Supervisor) supervise(ctx context.Context, cmd *exec.Cmd, done chan struct{}) {
	defer close(done)

	for {
		err := cmd.Wait()

		s.mu.Lock()
		ranFor := time.Since(s.startedAt)
		if s.stopping || ctx.Err() != nil {
			s.status = StatusStopped
			s.cmd = nil
			s.mu.Unlock()
			s.logger.Info("daemon stopped", "name", s.cfg.Name)
			return
		}
		if ranFor >= s.cfg.StableAfter {
			s.failures = 0
		}
		s.failures++
		attempt := s.failures
		if err == nil {
			err = errors.New("exited")
		}
		s.lastError = err
		s.cmd = nil
		s.mu.Unlock()

		s.logger.Warn("daemon exited", "name", s.cfg.Name, "error", err, "ran_for", ranFor)

		if s.cfg.MaxRestartAttempts > 0 && attempt > s.cfg.MaxRestartAttempts {
			s.setFailed(err)
			s.logger.Error("daemon restart limit reached", "name", s.cfg.Name, "attempts", attempt-1)
			return
		}

		delay := Backoff(s.cfg.RestartDelay, s.cfg.MaxRestartDelay, attempt)
		s.setStatus(StatusBackoff)
		s.logger.Info("restarting daemon", "name", s.cfg.Name, "attempt", attempt, "delay", delay)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			s.setStatus(StatusStopped)
			return
		case <-timer.C:
		}

		next, launchErr := s.launch(ctx)
		for launchErr != nil {
			s.logger.Error("restarting daemon failed", "name", s.cfg.Name, "error", launchErr)
			s.mu.Lock()
			s.lastError = launchErr
			s.failures++
			attempt = s.failures
			s.mu.Unlock()
			if s.cfg.MaxRestartAttempts > 0 && attempt > s.cfg.MaxRestartAttempts {
				s.setFailed(launchErr)
				return
			}
			select {
			case <-ctx.Done():
				s.setStatus(StatusStopped)
				return
			case <-time.After(Backoff(s.cfg.RestartDelay, s.cfg.MaxRestartDelay, attempt)):
			}
			next, launchErr = s.launch(ctx)
		}

		s.mu.Lock()
		s.restarts++
		s.mu.Unlock()
		cmd = next
	}
}

// Stop terminates the daemon. It sends SIGTERM to the process group and
// SIGKILL after GracefulTimeout. Stop on a stopped supervisor is a no-op.
func (s *Supervisor) Stop() error {
	s.mu.Lock()
	done := s.done
	if done == nil {
		s.mu.Unlock()
		return nil
	}
	s.stopping = true
	cmd := s.cmd
	cancel := s.cancel
	s.mu.Unlock()

	if cmd == nil {
		// Between runs: cancelling ends the backoff wait.
		cancel()
	} else {
		s.logger.Info("stopping daemon", "name", s.cfg.Name, "pid", cmd.Process.Pid)
		if err := signalGroup(cmd, syscall.SIGTERM); err != nil {
			s.logger.Warn("sending SIGTERM failed", "name", s.cfg.Name, "error", err)
		}
	}

	var err error
	select {
	case <-done:
	case <-time.After(s.cfg.GracefulTimeout):
		s.logger.Warn("daemon ignored SIGTERM, killing", "name", s.cfg.Name, "timeout", s.cfg.GracefulTimeout)
		if cmd != nil {
			err = signalGroup(cmd, syscall.SIGKILL)
		}
	}
	cancel()
	<-done

	s.mu.Lock()
	s.done = nil
	s.status = StatusStopped
	s.mu.Unlock()
	return err
}

// signalGroup signals the daemon's whole process group.
func signalGroup(cmd *exec.Cmd, sig syscall.Signal) error {
	if cmd.Process == nil {
		return nil
	}
	if err := syscall.Kill(-cmd.Process.Pid, sig); err != nil && !errors.Is(err, syscall.ESRCH) {
		return fmt.Errorf("signalling process group: %w", err)
	}
	return nil
}

func (s *Supervisor) setStatus(st Status) {
	s.mu.Lock()
	s.status = st
	s.mu.Unlock()
}

func (s *Supervisor) setFailed(err error) {
	s.mu.Lock()
	s.status = StatusFailed
	s.lastError = err
	s.cmd = nil
	s.mu.Unlock()
}

// Backoff returns the delay before restart attempt n (1-based): base
// doubled n-1 times and capped at maxDelay.
func Backoff(base, maxDelay time.Duration, n int) time.Duration {
	d := base
	for i := 1; i < n; i++ {
		d *= 2
		if d >= maxDelay {
			return maxDelay
		}
	}
	if d > maxDelay {
		return maxDelay
	}
	return d
}

// Stats is a snapshot of the supervisor.
type Stats struct {
	Name      string        `json:"name"`
	Status    Status        `json:"status"`
	PID       int           `json:"pid,omitempty"`
	Uptime    time.Duration `json:"uptime,omitempty"`
	Restarts  int           `json:"restarts"`
	LastError string        `json:"last_error,omitempty"`
}

// Stats returns the current state of the daemon.
func (s *Supervisor) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st := Stats{Name: s.cfg.Name, Status: s.status, Restarts: s.restarts}
	if s.cmd != nil && s.cmd.Process != nil && s.status == StatusRunning {
		st.PID = s.cmd.Process.Pid
		st.Uptime = time.Since(s.startedAt)
	}
	if s.lastError != nil {
		st.LastError = s.lastError.Error()
	}
	return st
}

// Status returns the lifecycle state.
func (s *Supervisor) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

// IsRunning reports whether the daemon is up.
func (s *Supervisor) IsRunning() bool {
	return s.Status() == StatusRunning
}
