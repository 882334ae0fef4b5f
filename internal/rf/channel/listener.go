package channel

import (
	"sync"
	"time"

	"github.com/nerrad567/gray-logic-rf/internal/rf/bitcodec"
	"github.com/nerrad567/gray-logic-rf/internal/rf/clock"
	"github.com/nerrad567/gray-logic-rf/internal/rf/frame"
)

// Listener is a driver's view of a shared channel: one debounce window, one
// parser, and its own event subscriptions.
type Listener struct {
	h      *handle
	window time.Duration
	parser Parser

	mu        sync.RWMutex
	onPayload []func(bitcodec.Bits)
	onData    []func(frame.Frame)
	onSent    []func(bitcodec.Bits)

	// Owned by the handle actor.
	manual      bool
	manualTimer clock.Timer
	manualGen   uint64
}

// Signal returns the signal key of the underlying channel.
func (l *Listener) Signal() string { return l.h.signal }

// Window returns the debounce window.
func (l *Listener) Window() time.Duration { return l.window }

// Register claims the channel for token. The future completes when the
// radio start that covers the token completes. A failure has already been
// logged; the channel remains usable.
func (l *Listener) Register(token Token) *Future {
	return l.h.registerToken(token)
}

// Unregister releases token. Unknown tokens are ignored.
func (l *Listener) Unregister(token Token) {
	l.h.unregisterToken(token)
}

// Send transmits bits under a private registration that is released on
// every path. The future fails with ErrTransmit if the radio rejects it.
func (l *Listener) Send(bits bitcodec.Bits) *Future {
	return l.h.send(bits)
}

// OnPayload subscribes to debounced raw payloads.
func (l *Listener) OnPayload(fn func(bitcodec.Bits)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.onPayload = append(l.onPayload, fn)
}

// OnData subscribes to parsed frames.
func (l *Listener) OnData(fn func(frame.Frame)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.onData = append(l.onData, fn)
}

// OnPayloadSend subscribes to successful transmits on the channel, including
// those made through other listeners.
func (l *Listener) OnPayloadSend(fn func(bitcodec.Bits)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.onSent = append(l.onSent, fn)
}

// ManualDebounce suppresses payload and data events for d. With
// allListeners set it applies to every listener on the channel.
// Payloads keep flowing through the debounce buffers meanwhile.
func (l *Listener) ManualDebounce(d time.Duration, allListeners bool) {
	_ = l.h.call(func() { l.h.manualDebounce(l, d, allListeners) })
}

// PauseDebouncers freezes every debouncer on the channel.
func (l *Listener) PauseDebouncers() {
	_ = l.h.call(l.h.pauseDebouncers)
}

// ResumeDebouncers restarts every paused debouncer on the channel.
func (l *Listener) ResumeDebouncers() {
	_ = l.h.call(l.h.resumeDebouncers)
}

// Close detaches the listener. Registrations it made are not released.
func (l *Listener) Close() {
	_ = l.h.call(func() { l.h.detach(l) })
}

func (l *Listener) deliverPayload(raw bitcodec.Bits) {
	l.mu.RLock()
	payloadFns := l.onPayload
	dataFns := l.onData
	l.mu.RUnlock()

	for _, fn := range payloadFns {
		fn(raw)
	}

	if l.parser == nil || len(dataFns) == 0 {
		return
	}
	f, err := l.parser(raw)
	if err != nil {
		l.h.reg.logger.Debug("dropping unparseable payload",
			"signal", l.h.signal,
			"payload", raw.String(),
			"error", err,
		)
		return
	}
	if f == nil || f.ID == "" {
		return
	}
	for _, fn := range dataFns {
		fn(*f)
	}
}

func (l *Listener) deliverSent(payload bitcodec.Bits) {
	l.mu.RLock()
	fns := l.onSent
	l.mu.RUnlock()

	for _, fn := range fns {
		fn(payload)
	}
}
