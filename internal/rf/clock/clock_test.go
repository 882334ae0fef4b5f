package clock

import (
	"testing"
	"time"
)

func TestManualFiresInOrder(t *testing.T) {
	start := time.Unix(1000, 0)
	m := NewManual(start)

	var order []string
	m.AfterFunc(30*time.Millisecond, func() { order = append(order, "c") })
	m.AfterFunc(10*time.Millisecond, func() { order = append(order, "a") })
	m.AfterFunc(20*time.Millisecond, func() { order = append(order, "b") })

	m.Advance(25 * time.Millisecond)
	if len(order) != 2 || order[0] != "a" || order[1] != "b" {
		t.Fatalf("after 25ms order = %v, want [a b]", order)
	}
	if got := m.Now().Sub(start); got != 25*time.Millisecond {
		t.Errorf("Now() offset = %v, want 25ms", got)
	}

	m.Advance(5 * time.Millisecond)
	if len(order) != 3 || order[2] != "c" {
		t.Fatalf("order = %v, want [a b c]", order)
	}
}

func TestManualStop(t *testing.T) {
	m := NewManual(time.Unix(0, 0))
	fired := false
	timer := m.AfterFunc(time.Second, func() { fired = true })

	if !timer.Stop() {
		t.Fatal("Stop() = false on a pending timer")
	}
	if timer.Stop() {
		t.Error("second Stop() = true")
	}
	m.Advance(2 * time.Second)
	if fired {
		t.Error("stopped timer fired")
	}
	if m.Pending() != 0 {
		t.Errorf("Pending() = %d, want 0", m.Pending())
	}
}

func TestManualNowDuringCallback(t *testing.T) {
	start := time.Unix(0, 0)
	m := NewManual(start)

	var seen time.Duration
	m.AfterFunc(40*time.Millisecond, func() { seen = m.Now().Sub(start) })
	m.Advance(100 * time.Millisecond)

	if seen != 40*time.Millisecond {
		t.Errorf("Now() inside callback = %v, want 40ms", seen)
	}
}

func TestManualChainedTimers(t *testing.T) {
	m := NewManual(time.Unix(0, 0))
	count := 0
	var tick func()
	tick = func() {
		count++
		m.AfterFunc(10*time.Millisecond, tick)
	}
	m.AfterFunc(10*time.Millisecond, tick)

	m.Advance(35 * time.Millisecond)
	if count != 3 {
		t.Errorf("count = %d, want 3", count)
	}
}
