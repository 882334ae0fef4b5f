package pairing

import (
	"sync"

	"github.com/nerrad567/gray-logic-rf/internal/rf/address"
	"github.com/nerrad567/gray-logic-rf/internal/rf/frame"
)

// Options configures a Session.
type Options struct {
	// OnUpdate receives the pending device after every learned address.
	OnUpdate func(address.Device)

	// OnEnd runs once when the session ends. Drivers use it to release the
	// session's channel registration and frame subscription.
	OnEnd func()
}

// Session is one active pairing. It is safe for concurrent use.
type Session struct {
	resolver *address.Resolver
	onUpdate func(address.Device)
	onEnd    func()

	mu     sync.Mutex
	listen frame.State
	ended  bool
}

// Start puts the resolver into pairing mode and returns the session.
//
// Parameters:
//   - resolver: Resolver whose pending device the session fills
//   - opts: Update and end callbacks, both optional
//
// Returns:
//   - *Session: Session that is not yet listening (listen state unknown)
func Start(resolver *address.Resolver, opts Options) *Session {
	resolver.StartPairing()
	return &Session{
		resolver: resolver,
		onUpdate: opts.OnUpdate,
		onEnd:    opts.OnEnd,
		listen:   frame.StateUnknown,
	}
}

// SetDevice makes d the pending device, for example a device proposed from
// a received frame or one generated for a transmitter-only receiver.
func (s *Session) SetDevice(d address.Device) error {
	return s.resolver.SetPending(d)
}

// Pending returns the device being paired.
func (s *Session) Pending() (address.Device, bool) {
	return s.resolver.Pending()
}

// SetListenState selects which list observed addresses are learned into.
// StateUnknown stops learning.
func (s *Session) SetListenState(state frame.State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if state != frame.StateOn && state != frame.StateOff {
		state = frame.StateUnknown
	}
	s.listen = state
}

// ListenState returns the current learn polarity.
func (s *Session) ListenState() frame.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listen
}

// ClearLearned empties the pending list that is not keep.
func (s *Session) ClearLearned(keep frame.State) (address.Device, bool) {
	return s.resolver.ClearLearned(keep)
}

// Observe is the frame listener. It is a no-op once the session has ended
// or while no listen state is selected.
func (s *Session) Observe(f frame.Frame) {
	s.mu.Lock()
	listen, ended := s.listen, s.ended
	s.mu.Unlock()

	if ended || listen == frame.StateUnknown || f.Address == "" {
		return
	}
	d, changed := s.resolver.Learn(f.Address, listen)
	if changed && s.onUpdate != nil {
		s.onUpdate(d)
	}
}

// Active reports whether End has not been called yet.
func (s *Session) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.ended
}

// End clears the listen state, discards the pending device and runs OnEnd.
// It is safe to call more than once.
func (s *Session) End() {
	s.mu.Lock()
	if s.ended {
		s.mu.Unlock()
		return
	}
	s.ended = true
	s.listen = frame.StateUnknown
	s.mu.Unlock()

	s.resolver.EndPairing()
	if s.onEnd != nil {
		s.onEnd()
	}
}
