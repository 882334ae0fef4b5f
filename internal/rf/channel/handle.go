package channel

import (
	"errors"
	"fmt"
	"runtime/debug"
	"sort"
	"sync"
	"time"

	"github.com/nerrad567/gray-logic-rf/internal/rf/bitcodec"
	"github.com/nerrad567/gray-logic-rf/internal/rf/clock"
	"github.com/nerrad567/gray-logic-rf/internal/rf/debounce"
)

// handle is the actor for one signal key. Fields below the inbox are owned
// by the loop goroutine and must only be touched from inside it.
type handle struct {
	reg    *Registry
	signal string
	radio  Radio

	inbox    chan func()
	events   chan func()
	done     chan struct{}
	stopOnce sync.Once

	registrants   map[any]struct{}
	radioOn       bool
	startFut      *Future
	stopFut       *Future
	stopScheduled bool

	buffers   map[time.Duration]*debounce.Buffer
	windows   []time.Duration
	listeners []*Listener

	manualAll      bool
	manualAllTimer clock.Timer
	manualAllGen   uint64
}

func newHandle(r *Registry, signal string, radio Radio) *handle {
	return &handle{
		reg:         r,
		signal:      signal,
		radio:       radio,
		inbox:       make(chan func(), defaultInboxSize),
		events:      make(chan func(), r.eventSize),
		done:        make(chan struct{}),
		registrants: make(map[any]struct{}),
		buffers:     make(map[time.Duration]*debounce.Buffer),
	}
}

func (h *handle) startLoops() {
	h.radio.SetOnPayload(func(bits bitcodec.Bits) {
		raw := bits.Clone()
		h.post(func() { h.onPayload(raw) })
	})

	h.reg.wg.Add(2)
	go h.loop()
	go h.deliver()
}

func (h *handle) stop() {
	h.stopOnce.Do(func() { close(h.done) })
}

func (h *handle) loop() {
	defer h.reg.wg.Done()
	for {
		select {
		case fn := <-h.inbox:
			h.safeCall("actor", fn)
		case <-h.done:
			return
		}
	}
}

func (h *handle) deliver() {
	defer h.reg.wg.Done()
	for {
		select {
		case fn := <-h.events:
			h.safeCall("event", fn)
		case <-h.done:
			return
		}
	}
}

func (h *handle) safeCall(where string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			h.reg.logger.Error("panic in channel "+where,
				"signal", h.signal,
				"panic", r,
				"stack", string(debug.Stack()),
			)
		}
	}()
	fn()
}

// post queues fn for the actor. It returns false once the handle is closed.
// It must not be called from the actor goroutine while the inbox is full.
func (h *handle) post(fn func()) bool {
	select {
	case <-h.done:
		return false
	default:
	}
	select {
	case h.inbox <- fn:
		return true
	case <-h.done:
		return false
	}
}

// call runs fn on the actor and waits for it to finish.
func (h *handle) call(fn func()) error {
	finished := make(chan struct{})
	if !h.post(func() {
		defer close(finished)
		fn()
	}) {
		return ErrClosed
	}
	select {
	case <-finished:
		return nil
	case <-h.done:
		return ErrClosed
	}
}

// emit queues an event for the delivery goroutine. Events are dropped when
// the queue is full so a slow consumer cannot stall the actor.
func (h *handle) emit(fn func()) {
	select {
	case h.events <- fn:
	case <-h.done:
	default:
		h.reg.observer.EventDropped(h.signal)
		h.reg.logger.Warn("channel event queue full, dropping event", "signal", h.signal)
	}
}

func (h *handle) attach(l *Listener) {
	if _, ok := h.buffers[l.window]; !ok {
		h.buffers[l.window] = debounce.NewBuffer(l.window,
			debounce.WithClock(h.reg.clock),
			debounce.WithIdleTime(h.reg.idleTime),
			debounce.WithDispatcher(func(fn func()) { h.post(fn) }),
		)
		h.windows = append(h.windows, l.window)
		sort.Slice(h.windows, func(i, j int) bool { return h.windows[i] < h.windows[j] })
	}
	h.listeners = append(h.listeners, l)
}

func (h *handle) detach(l *Listener) {
	for i, other := range h.listeners {
		if other == l {
			h.listeners = append(h.listeners[:i], h.listeners[i+1:]...)
			break
		}
	}
	if l.manualTimer != nil {
		l.manualTimer.Stop()
	}
}

// register adds token and returns the future of the radio start that covers
// it. A start is only issued when the radio is off, and it waits for any
// stop that is still in flight.
func (h *handle) register(token any) *Future {
	h.registrants[token] = struct{}{}
	h.reg.observer.Registrants(h.signal, len(h.registrants))

	if h.radioOn {
		return h.startFut
	}

	h.radioOn = true
	fut := newFuture()
	h.startFut = fut
	pendingStop := h.stopFut

	h.reg.logger.Debug("starting radio receiver", "signal", h.signal)
	go func() {
		if pendingStop != nil {
			<-pendingStop.Done()
		}
		err := h.radio.StartReceiving(h.reg.ctx)
		if err != nil {
			err = fmt.Errorf("%w: %s: %w", ErrRadioRegister, h.signal, err)
			h.reg.observer.RadioError(h.signal, "register")
			h.reg.logger.Error("radio register failed", "signal", h.signal, "error", err)
			h.post(func() {
				if h.startFut == fut {
					h.radioOn = false
					h.startFut = nil
				}
			})
		} else {
			h.reg.logger.Info("radio receiver started", "signal", h.signal)
		}
		fut.complete(err)
	}()
	return fut
}

// unregister removes token. When the set empties the stop is scheduled
// behind the current start, and re-checked on the actor before it is issued.
func (h *handle) unregister(token any) {
	if _, ok := h.registrants[token]; !ok {
		return
	}
	delete(h.registrants, token)
	h.reg.observer.Registrants(h.signal, len(h.registrants))

	if len(h.registrants) > 0 || h.stopScheduled {
		return
	}
	h.stopScheduled = true

	start := h.startFut
	if start == nil {
		h.maybeStop()
		return
	}
	go func() {
		<-start.Done()
		h.post(h.maybeStop)
	}()
}

func (h *handle) maybeStop() {
	h.stopScheduled = false
	if len(h.registrants) > 0 || !h.radioOn {
		return
	}

	h.radioOn = false
	h.startFut = nil
	fut := newFuture()
	h.stopFut = fut

	h.reg.logger.Debug("stopping radio receiver", "signal", h.signal)
	go func() {
		err := h.radio.StopReceiving(h.reg.ctx)
		if err != nil {
			err = fmt.Errorf("%w: %s: %w", ErrRadioUnregister, h.signal, err)
			h.reg.observer.RadioError(h.signal, "unregister")
			h.reg.logger.Error("radio unregister failed", "signal", h.signal, "error", err)
		} else {
			h.reg.logger.Info("radio receiver stopped", "signal", h.signal)
		}
		fut.complete(err)
		h.post(func() {
			if h.stopFut == fut {
				h.stopFut = nil
			}
		})
	}()
}

func (h *handle) registerToken(token any) *Future {
	var fut *Future
	if err := h.call(func() { fut = h.register(token) }); err != nil {
		return completedFuture(err)
	}
	return fut
}

func (h *handle) unregisterToken(token any) {
	if err := h.call(func() { h.unregister(token) }); err != nil {
		h.reg.logger.Debug("unregister after close ignored", "signal", h.signal)
	}
}

func (h *handle) send(bits bitcodec.Bits) *Future {
	result := newFuture()
	token := sendToken(h.reg.sendSeq.Add(1))
	payload := bits.Clone()

	go func() {
		reg := h.registerToken(token)
		<-reg.Done()
		if errors.Is(reg.Err(), ErrClosed) {
			result.complete(ErrClosed)
			return
		}

		err := h.radio.Transmit(h.reg.ctx, payload)
		if err != nil {
			err = fmt.Errorf("%w: %s: %w", ErrTransmit, h.signal, err)
			h.reg.observer.RadioError(h.signal, "transmit")
			h.reg.logger.Warn("radio transmit failed", "signal", h.signal, "error", err)
		} else {
			h.reg.observer.PayloadSent(h.signal)
			h.reg.logger.Debug("payload sent", "signal", h.signal, "payload", payload.String())
			h.post(func() { h.emitSent(payload) })
		}

		h.post(func() { h.unregister(token) })
		result.complete(err)
	}()
	return result
}

func (h *handle) onPayload(raw bitcodec.Bits) {
	h.reg.observer.PayloadReceived(h.signal)
	payload := raw.String()

	for _, window := range h.windows {
		d, ok := h.buffers[window].Admit(payload)
		if !ok {
			h.reg.observer.PayloadAbsorbed(h.signal, window)
			continue
		}
		h.emitPayload(window, raw)
		if d != nil {
			d.Reset()
		}
	}
}

func (h *handle) emitPayload(window time.Duration, raw bitcodec.Bits) {
	h.reg.observer.PayloadEmitted(h.signal, window)
	for _, l := range h.listeners {
		if l.window != window {
			continue
		}
		if h.manualAll || l.manual {
			h.reg.logger.Debug("manual debounce active, skipping payload", "signal", h.signal)
			continue
		}
		listener := l
		h.emit(func() { listener.deliverPayload(raw) })
	}
}

func (h *handle) emitSent(payload bitcodec.Bits) {
	for _, l := range h.listeners {
		listener := l
		h.emit(func() { listener.deliverSent(payload) })
	}
}

func (h *handle) manualDebounce(l *Listener, d time.Duration, all bool) {
	if all {
		h.manualAll = true
		h.manualAllGen++
		gen := h.manualAllGen
		if h.manualAllTimer != nil {
			h.manualAllTimer.Stop()
		}
		h.manualAllTimer = h.reg.clock.AfterFunc(d, func() {
			h.post(func() {
				if h.manualAllGen == gen {
					h.manualAll = false
				}
			})
		})
		return
	}

	l.manual = true
	l.manualGen++
	gen := l.manualGen
	if l.manualTimer != nil {
		l.manualTimer.Stop()
	}
	l.manualTimer = h.reg.clock.AfterFunc(d, func() {
		h.post(func() {
			if l.manualGen == gen {
				l.manual = false
			}
		})
	})
}

func (h *handle) pauseDebouncers() {
	for _, b := range h.buffers {
		b.PauseAll()
	}
}

func (h *handle) resumeDebouncers() {
	for _, b := range h.buffers {
		b.ResumeAll()
	}
}

func (h *handle) status() ChannelStatus {
	st := ChannelStatus{
		Signal:      h.signal,
		Registrants: len(h.registrants),
		Listening:   h.radioOn,
		Listeners:   len(h.listeners),
		Buffers:     make(map[string]int, len(h.buffers)),
		ManualAll:   h.manualAll,
	}
	for window, b := range h.buffers {
		st.Buffers[window.String()] = b.Len()
	}
	return st
}
