package address

import (
	"slices"

	"github.com/nerrad567/gray-logic-rf/internal/rf/frame"
)

// StartPairing enables the pairing fallbacks. Any previous pending device is
// discarded.
func (r *Resolver) StartPairing() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pairing = true
	r.pending = nil
}

// EndPairing disables the fallbacks and discards the pending device.
func (r *Resolver) EndPairing() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pairing = false
	r.pending = nil
}

// Pairing reports whether a pairing session is active.
func (r *Resolver) Pairing() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.pairing
}

// SetPending replaces the pending device.
func (r *Resolver) SetPending(d Device) error {
	if d.ID == "" {
		return ErrInvalidDevice
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.pairing {
		return ErrNotPairing
	}
	pending := d.Clone()
	r.pending = &pending
	return nil
}

// Pending returns a copy of the pending device.
func (r *Resolver) Pending() (Device, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.pending == nil {
		return Device{}, false
	}
	return r.pending.Clone(), true
}

// Learn appends addr to the pending device's list for state. It only does so
// when addr is new to the pending device and its known polarity is unknown
// or equal to state. It returns the updated device and whether it changed.
func (r *Resolver) Learn(addr string, state frame.State) (Device, bool) {
	if state != frame.StateOn && state != frame.StateOff {
		return Device{}, false
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.pairing || r.pending == nil || r.pending.Has(addr) {
		return Device{}, false
	}
	if known := r.parseStateLocked(addr); known != frame.StateUnknown && known != state {
		return Device{}, false
	}

	if state == frame.StateOn {
		r.pending.On = append(r.pending.On, addr)
	} else {
		r.pending.Off = append(r.pending.Off, addr)
	}
	return r.pending.Clone(), true
}

// ClearLearned keeps only the pending list for keep and empties the other.
// With StateUnknown both lists are emptied.
func (r *Resolver) ClearLearned(keep frame.State) (Device, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.pending == nil {
		return Device{}, false
	}
	on, off := []string{}, []string{}
	if keep == frame.StateOn {
		on = slices.Clone(r.pending.On)
	}
	if keep == frame.StateOff {
		off = slices.Clone(r.pending.Off)
	}
	r.pending.On, r.pending.Off = on, off
	return r.pending.Clone(), true
}
