package debounce

import (
	"time"

	"github.com/nerrad567/gray-logic-rf/internal/rf/clock"
)

// Buffer maps serialized payloads to their debouncers for one window.
type Buffer struct {
	window   time.Duration
	idleTime time.Duration
	clock    clock.Clock
	dispatch Dispatcher
	entries  map[string]*Debouncer
}

// Option configures a Buffer.
type Option func(*Buffer)

// WithClock sets the time source. Defaults to clock.Real.
func WithClock(c clock.Clock) Option {
	return func(b *Buffer) { b.clock = c }
}

// WithIdleTime sets how long finished entries are kept.
func WithIdleTime(d time.Duration) Option {
	return func(b *Buffer) {
		if d > 0 {
			b.idleTime = d
		}
	}
}

// WithDispatcher sets how timer callbacks reach the owning goroutine.
// Without one, callbacks run on the timer's goroutine, which is only safe
// with a clock that fires synchronously such as clock.Manual.
func WithDispatcher(fn Dispatcher) Option {
	return func(b *Buffer) { b.dispatch = fn }
}

// NewBuffer creates a buffer for the given window. A window of zero or less
// disables debouncing.
//
// Parameters:
//   - window: Debounce window applied to every payload
//   - opts: Optional clock, idle time and dispatcher
//
// Returns:
//   - *Buffer: Empty buffer
func NewBuffer(window time.Duration, opts ...Option) *Buffer {
	b := &Buffer{
		window:   window,
		idleTime: DefaultIdleTime,
		clock:    clock.Real(),
		dispatch: inline,
		entries:  make(map[string]*Debouncer),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Window returns the debounce window.
func (b *Buffer) Window() time.Duration { return b.window }

// Passthrough reports whether debouncing is disabled.
func (b *Buffer) Passthrough() bool { return b.window <= 0 }

// Admit decides whether payload starts a new logical event.
//
// It returns emit=true when the caller should emit the payload. The
// returned debouncer is paused; the caller resets it once emission is done.
// A passthrough buffer returns (nil, true). Repeats inside a running burst
// extend the burst and return (nil, false).
func (b *Buffer) Admit(payload string) (*Debouncer, bool) {
	if b.Passthrough() {
		return nil, true
	}

	d, ok := b.entries[payload]
	if !ok {
		d = New(b.window, b.idleTime, b.clock, b.dispatch, nil)
		d.onIdle = func() {
			if b.entries[payload] == d {
				delete(b.entries, payload)
			}
		}
		b.entries[payload] = d
		d.Pause()
		return d, true
	}

	switch d.State() {
	case StateFinished:
		d.Reset()
		d.Pause()
		return d, true
	case StatePaused:
		return nil, false
	default:
		d.Reset()
		return nil, false
	}
}

// Len returns the number of buffered payloads.
func (b *Buffer) Len() int { return len(b.entries) }

// Get returns the debouncer for payload, if buffered.
func (b *Buffer) Get(payload string) (*Debouncer, bool) {
	d, ok := b.entries[payload]
	return d, ok
}

// PauseAll pauses every running debouncer.
func (b *Buffer) PauseAll() {
	for _, d := range b.entries {
		d.Pause()
	}
}

// ResumeAll resumes every paused debouncer.
func (b *Buffer) ResumeAll() {
	for _, d := range b.entries {
		d.Resume()
	}
}
