package channel

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nerrad567/gray-logic-rf/internal/rf/clock"
	"github.com/nerrad567/gray-logic-rf/internal/rf/debounce"
)

// Default sizing for handle queues.
const (
	defaultInboxSize = 64
	defaultEventSize = 256
)

// RegistryOptions configures a Registry.
type RegistryOptions struct {
	// Factory creates the radio for each signal key. Required.
	Factory RadioFactory

	// Clock drives debounce timers. Defaults to clock.Real.
	Clock clock.Clock

	// IdleTime is how long finished debouncers stay buffered.
	// Defaults to debounce.DefaultIdleTime.
	IdleTime time.Duration

	// EventQueueSize bounds undelivered events per handle.
	EventQueueSize int

	Logger   Logger
	Observer Observer
}

// Registry holds the shared handle for every signal key in use.
type Registry struct {
	factory   RadioFactory
	clock     clock.Clock
	idleTime  time.Duration
	eventSize int
	logger    Logger
	observer  Observer

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	handles map[string]*handle
	closed  bool

	sendSeq atomic.Uint64
}

// NewRegistry creates an empty registry. Actors are spawned lazily, one per
// signal key, the first time Open is called for that key.
//
// Parameters:
//   - opts: Radio factory plus optional clock, idle time, logger and observer
//
// Returns:
//   - *Registry: Registry ready for Open
//   - error: ErrNoRadio if opts.Factory is nil
func NewRegistry(opts RegistryOptions) (*Registry, error) {
	if opts.Factory == nil {
		return nil, ErrNoRadio
	}
	if opts.Clock == nil {
		opts.Clock = clock.Real()
	}
	if opts.IdleTime <= 0 {
		opts.IdleTime = debounce.DefaultIdleTime
	}
	if opts.EventQueueSize <= 0 {
		opts.EventQueueSize = defaultEventSize
	}
	if opts.Logger == nil {
		opts.Logger = noopLogger{}
	}
	if opts.Observer == nil {
		opts.Observer = NopObserver{}
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Registry{
		factory:   opts.Factory,
		clock:     opts.Clock,
		idleTime:  opts.IdleTime,
		eventSize: opts.EventQueueSize,
		logger:    opts.Logger,
		observer:  opts.Observer,
		ctx:       ctx,
		cancel:    cancel,
		handles:   make(map[string]*handle),
	}, nil
}

// Open returns a new listener on the signal's shared handle. Listeners with
// the same window share one debounce buffer; a window of zero disables
// debouncing. parser may be nil, in which case no data events are emitted.
func (r *Registry) Open(signal string, window time.Duration, parser Parser) (*Listener, error) {
	h, err := r.handle(signal)
	if err != nil {
		return nil, err
	}

	l := &Listener{h: h, window: window, parser: parser}
	if err := h.call(func() { h.attach(l) }); err != nil {
		return nil, err
	}
	return l, nil
}

func (r *Registry) handle(signal string) (*handle, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil, ErrClosed
	}
	if h, ok := r.handles[signal]; ok {
		return h, nil
	}

	radio, err := r.factory(signal)
	if err != nil {
		return nil, fmt.Errorf("creating radio for %q: %w", signal, err)
	}
	h := newHandle(r, signal, radio)
	r.handles[signal] = h
	h.startLoops()
	r.logger.Debug("channel handle created", "signal", signal)
	return h, nil
}

// ChannelStatus is a point-in-time view of one handle.
type ChannelStatus struct {
	Signal      string         `json:"signal"`
	Registrants int            `json:"registrants"`
	Listening   bool           `json:"listening"`
	Listeners   int            `json:"listeners"`
	Buffers     map[string]int `json:"buffers"`
	ManualAll   bool           `json:"manual_debounce"`
}

// Snapshot returns the status of every handle, sorted by signal key.
func (r *Registry) Snapshot() []ChannelStatus {
	r.mu.Lock()
	handles := make([]*handle, 0, len(r.handles))
	for _, h := range r.handles {
		handles = append(handles, h)
	}
	r.mu.Unlock()

	out := make([]ChannelStatus, 0, len(handles))
	for _, h := range handles {
		var st ChannelStatus
		if err := h.call(func() { st = h.status() }); err != nil {
			continue
		}
		out = append(out, st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Signal < out[j].Signal })
	return out
}

// Close stops every handle. In-flight radio calls see a cancelled context.
// Futures still pending complete with whatever the radio returns.
func (r *Registry) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	handles := make([]*handle, 0, len(r.handles))
	for _, h := range r.handles {
		handles = append(handles, h)
	}
	r.mu.Unlock()

	r.cancel()
	for _, h := range handles {
		h.stop()
	}
	r.wg.Wait()
}
