package process

import (
	"context"
	"errors"
	"testing"
	"time"
)

func waitStatus(t *testing.T, s *Supervisor, want Status) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for s.Status() != want {
		if time.Now().After(deadline) {
			t.Fatalf("status = %s, want %s", s.Status(), want)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestNewSupervisor_Defaults(t *testing.T) {
	s := NewSupervisor(Config{Binary: "/usr/local/bin/rfd"})

	if s.cfg.Name != "/usr/local/bin/rfd" {
		t.Errorf("Name = %q, want binary path", s.cfg.Name)
	}
	if s.cfg.RestartDelay != defaultRestartDelay {
		t.Errorf("RestartDelay = %v", s.cfg.RestartDelay)
	}
	if s.cfg.MaxRestartDelay != defaultMaxRestartDelay {
		t.Errorf("MaxRestartDelay = %v", s.cfg.MaxRestartDelay)
	}
	if s.cfg.StableAfter != defaultStableAfter || s.cfg.GracefulTimeout != defaultGracefulTimeout {
		t.Errorf("StableAfter = %v, GracefulTimeout = %v", s.cfg.StableAfter, s.cfg.GracefulTimeout)
	}
	if s.Status() != StatusStopped {
		t.Errorf("Status = %s, want stopped", s.Status())
	}

	long := NewSupervisor(Config{Binary: "x", RestartDelay: time.Hour})
	if long.cfg.MaxRestartDelay != time.Hour {
		t.Errorf("MaxRestartDelay = %v, want raised to RestartDelay", long.cfg.MaxRestartDelay)
	}
}

func TestBackoff(t *testing.T) {
	tests := []struct {
		n    int
		want time.Duration
	}{
		{1, time.Second},
		{2, 2 * time.Second},
		{3, 4 * time.Second},
		{4, 8 * time.Second},
		{5, 10 * time.Second},
		{50, 10 * time.Second},
	}
	for _, tt := range tests {
		if got := Backoff(time.Second, 10*time.Second, tt.n); got != tt.want {
			t.Errorf("Backoff(n=%d) = %v, want %v", tt.n, got, tt.want)
		}
	}
}

func TestSupervisor_StartStop(t *testing.T) {
	s := NewSupervisor(Config{Name: "sleeper", Binary: "sleep", Args: []string{"30"}, GracefulTimeout: 2 * time.Second})

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if !s.IsRunning() {
		t.Fatal("IsRunning() = false after Start")
	}
	if st := s.Stats(); st.PID == 0 || st.Name != "sleeper" {
		t.Errorf("Stats() = %+v", st)
	}

	if err := s.Start(context.Background()); !errors.Is(err, ErrAlreadyRunning) {
		t.Errorf("second Start() error = %v, want ErrAlreadyRunning", err)
	}

	if err := s.Stop(); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if s.Status() != StatusStopped {
		t.Errorf("Status = %s after Stop", s.Status())
	}
	if st := s.Stats(); st.PID != 0 {
		t.Errorf("PID = %d after Stop", st.PID)
	}

	if err := s.Stop(); err != nil {
		t.Errorf("second Stop() error = %v", err)
	}
}

func TestSupervisor_MissingBinary(t *testing.T) {
	s := NewSupervisor(Config{Name: "ghost", Binary: "/nonexistent/rfd"})

	if err := s.Start(context.Background()); err == nil {
		t.Fatal("Start() should fail for a missing binary")
	}
	if s.Status() != StatusFailed {
		t.Errorf("Status = %s, want failed", s.Status())
	}
	if s.Stats().LastError == "" {
		t.Error("LastError is empty")
	}
}

func TestSupervisor_RestartLimit(t *testing.T) {
	s := NewSupervisor(Config{
		Name:               "crasher",
		Binary:             "sh",
		Args:               []string{"-c", "exit 3"},
		RestartDelay:       10 * time.Millisecond,
		MaxRestartDelay:    20 * time.Millisecond,
		MaxRestartAttempts: 2,
	})

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	waitStatus(t, s, StatusFailed)

	st := s.Stats()
	if st.Restarts != 2 {
		t.Errorf("Restarts = %d, want 2", st.Restarts)
	}
	if st.LastError == "" {
		t.Error("LastError is empty")
	}

	if err := s.Stop(); err != nil {
		t.Errorf("Stop() error = %v", err)
	}
}

func TestSupervisor_StopDuringBackoff(t *testing.T) {
	s := NewSupervisor(Config{
		Name:         "crasher",
		Binary:       "sh",
		Args:         []string{"-c", "exit 1"},
		RestartDelay: time.Hour,
	})

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	waitStatus(t, s, StatusBackoff)

	stopped := make(chan error, 1)
	go func() { stopped <- s.Stop() }()

	select {
	case err := <-stopped:
		if err != nil {
			t.Errorf("Stop() error = %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("Stop() blocked during backoff")
	}
	if s.Status() != StatusStopped {
		t.Errorf("Status = %s, want stopped", s.Status())
	}
}

func TestSupervisor_ContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	s := NewSupervisor(Config{Name: "sleeper", Binary: "sleep", Args: []string{"30"}})

	if err := s.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	cancel()
	waitStatus(t, s, StatusStopped)
}
