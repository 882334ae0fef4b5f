package debounce

import (
	"time"

	"github.com/nerrad567/gray-logic-rf/internal/rf/clock"
)

// State is the lifecycle state of a Debouncer.
type State int

// Debouncer states. Values match the wire-visible numbering used in logs.
const (
	StateInited   State = -1
	StateStarted  State = 0
	StatePaused   State = 1
	StateFinished State = 2
	StateRefresh  State = 3
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateInited:
		return "inited"
	case StateStarted:
		return "started"
	case StatePaused:
		return "paused"
	case StateFinished:
		return "finished"
	case StateRefresh:
		return "refresh"
	default:
		return "unknown"
	}
}

const (
	// DefaultWindow is the debounce window used when a driver does not
	// configure one.
	DefaultWindow = 500 * time.Millisecond

	// DefaultIdleTime is how long a finished debouncer stays buffered.
	DefaultIdleTime = 10 * time.Second

	// Tolerance absorbs timer jitter: a countdown that fires within this
	// margin of its deadline counts as elapsed.
	Tolerance = 10 * time.Millisecond
)

// Dispatcher runs fn on the goroutine that owns the debouncer.
type Dispatcher func(fn func())

func inline(fn func()) { fn() }

// Debouncer is the timer state machine for one payload.
type Debouncer struct {
	clock    clock.Clock
	dispatch Dispatcher

	window    time.Duration
	remaining time.Duration
	startedAt time.Time
	state     State

	timer    clock.Timer
	timerGen uint64

	idle      bool
	idleTime  time.Duration
	idleTimer clock.Timer
	idleGen   uint64
	onIdle    func()
}

// New returns a started Debouncer. onIdle runs (through dispatch) once the
// debouncer has been finished for idleTime without further activity.
//
// Parameters:
//   - window: Quiet period that finishes the debouncer
//   - idleTime: Delay after finishing before onIdle runs
//   - clk: Time source for both timers
//   - dispatch: Runs timer callbacks on the owning goroutine
//   - onIdle: Eviction callback, may be nil
//
// Returns:
//   - *Debouncer: Debouncer in the started state
func New(window, idleTime time.Duration, clk clock.Clock, dispatch Dispatcher, onIdle func()) *Debouncer {
	if clk == nil {
		clk = clock.Real()
	}
	if dispatch == nil {
		dispatch = inline
	}
	if idleTime <= 0 {
		idleTime = DefaultIdleTime
	}
	d := &Debouncer{
		clock:    clk,
		dispatch: dispatch,
		window:   window,
		idleTime: idleTime,
		onIdle:   onIdle,
	}
	d.init()
	d.start()
	return d
}

// State returns the current state.
func (d *Debouncer) State() State { return d.state }

// Remaining returns the countdown left when the debouncer was last started
// or paused.
func (d *Debouncer) Remaining() time.Duration { return d.remaining }

// Idle reports whether the idle eviction timer is armed.
func (d *Debouncer) Idle() bool { return d.idle }

// Pause freezes a running countdown.
func (d *Debouncer) Pause() {
	if d.state != StateStarted {
		return
	}
	d.clearTimer()
	d.setState(StatePaused)
	d.remaining -= d.clock.Now().Sub(d.startedAt)
}

// Resume restarts a paused countdown with its remaining time.
func (d *Debouncer) Resume() {
	if d.state == StatePaused {
		d.start()
	}
}

// Stop finishes a debouncer that is not counting down.
func (d *Debouncer) Stop() {
	if d.state != StateInited && d.state != StatePaused {
		return
	}
	d.clearTimer()
	d.setState(StateFinished)
}

// Reset restores the full window.
//
// From finished it starts a new countdown. From started it moves the start
// to now without rearming the timer; the pending fire notices the shortfall
// and refreshes. From paused it resumes with the full window.
func (d *Debouncer) Reset() {
	switch d.state {
	case StateFinished:
		d.init()
		d.start()
	case StateStarted:
		d.remaining = d.window
		d.startedAt = d.clock.Now()
	case StatePaused:
		d.remaining = d.window
		d.start()
	}
}

func (d *Debouncer) init() {
	d.remaining = d.window
	d.setState(StateInited)
}

func (d *Debouncer) start() {
	switch d.state {
	case StateInited, StatePaused, StateRefresh:
	default:
		return
	}
	d.startedAt = d.clock.Now()
	d.setState(StateStarted)
	d.armTimer(d.remaining)
}

func (d *Debouncer) armTimer(after time.Duration) {
	d.clearTimer()
	gen := d.timerGen
	d.timer = d.clock.AfterFunc(after, func() {
		d.dispatch(func() { d.fire(gen) })
	})
}

func (d *Debouncer) clearTimer() {
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.timerGen++
}

func (d *Debouncer) fire(gen uint64) {
	if gen != d.timerGen || d.state != StateStarted {
		return
	}
	d.timer = nil
	elapsed := d.clock.Now().Sub(d.startedAt)
	if elapsed < d.remaining-Tolerance {
		d.setState(StateRefresh)
		d.remaining -= elapsed
		d.start()
		return
	}
	d.setState(StateFinished)
}

func (d *Debouncer) setState(s State) {
	d.state = s
	if s == StateFinished {
		if !d.idle {
			d.idle = true
			d.armIdle()
		}
		return
	}
	if d.idle {
		d.clearIdle()
		d.idle = false
	}
}

func (d *Debouncer) armIdle() {
	d.clearIdle()
	gen := d.idleGen
	d.idleTimer = d.clock.AfterFunc(d.idleTime, func() {
		d.dispatch(func() { d.expire(gen) })
	})
}

func (d *Debouncer) clearIdle() {
	if d.idleTimer != nil {
		d.idleTimer.Stop()
		d.idleTimer = nil
	}
	d.idleGen++
}

func (d *Debouncer) expire(gen uint64) {
	if gen != d.idleGen || !d.idle {
		return
	}
	d.idleTimer = nil
	if d.onIdle != nil {
		d.onIdle()
	}
}
