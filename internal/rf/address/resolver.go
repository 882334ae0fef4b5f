package address

import (
	"fmt"
	"slices"
	"sync"

	"github.com/google/uuid"

	"github.com/nerrad567/gray-logic-rf/internal/rf/frame"
)

// cursorCycle is the number of rolling-code positions a remote advances
// through before wrapping.
const cursorCycle = 4

// Device is an identity with its address lists.
type Device struct {
	ID  string   `json:"uuid"`
	On  []string `json:"on"`
	Off []string `json:"off"`
}

// Clone returns a deep copy.
func (d Device) Clone() Device {
	return Device{ID: d.ID, On: slices.Clone(d.On), Off: slices.Clone(d.Off)}
}

// Addresses returns the list for state, or nil for StateUnknown.
func (d Device) Addresses(state frame.State) []string {
	switch state {
	case frame.StateOn:
		return d.On
	case frame.StateOff:
		return d.Off
	default:
		return nil
	}
}

// Has reports whether addr appears in either list.
func (d Device) Has(addr string) bool {
	return slices.Contains(d.On, addr) || slices.Contains(d.Off, addr)
}

type entry struct {
	device Device
	cursor int
	used   bool
}

type stateRef struct {
	state frame.State
	count int
}

// Resolver is the address table. It is safe for concurrent use.
type Resolver struct {
	mu        sync.Mutex
	byAddress map[string]string
	byID      map[string]*entry
	states    map[string]*stateRef

	pairing bool
	pending *Device

	newID func() string
}

// NewResolver returns an empty resolver.
func NewResolver() *Resolver {
	return &Resolver{
		byAddress: make(map[string]string),
		byID:      make(map[string]*entry),
		states:    make(map[string]*stateRef),
		newID:     uuid.NewString,
	}
}

// Bind adds or replaces a device. Both address lists must be non-empty.
func (r *Resolver) Bind(d Device) error {
	if d.ID == "" {
		return fmt.Errorf("%w: missing id", ErrInvalidDevice)
	}
	if len(d.On) == 0 || len(d.Off) == 0 {
		return fmt.Errorf("%w: %s needs on and off addresses", ErrInvalidDevice, d.ID)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byID[d.ID]; ok {
		r.unbindLocked(d.ID)
	}

	d = d.Clone()
	for _, addr := range d.On {
		r.retainState(addr, frame.StateOn)
		r.byAddress[addr] = d.ID
	}
	for _, addr := range d.Off {
		r.retainState(addr, frame.StateOff)
		r.byAddress[addr] = d.ID
	}
	r.byID[d.ID] = &entry{device: d}
	return nil
}

// Unbind removes a device and every address it owns. It reports whether the
// device was bound.
func (r *Resolver) Unbind(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.unbindLocked(id)
}

func (r *Resolver) unbindLocked(id string) bool {
	e, ok := r.byID[id]
	if !ok {
		return false
	}
	delete(r.byID, id)

	for _, addr := range append(slices.Clone(e.device.On), e.device.Off...) {
		r.releaseState(addr)
		if r.byAddress[addr] != id {
			continue
		}
		delete(r.byAddress, addr)
		for otherID, other := range r.byID {
			if other.device.Has(addr) {
				r.byAddress[addr] = otherID
				break
			}
		}
	}
	return true
}

func (r *Resolver) retainState(addr string, state frame.State) {
	if ref, ok := r.states[addr]; ok {
		ref.count++
		return
	}
	r.states[addr] = &stateRef{state: state, count: 1}
}

func (r *Resolver) releaseState(addr string) {
	ref, ok := r.states[addr]
	if !ok {
		return
	}
	if ref.count <= 1 {
		delete(r.states, addr)
		return
	}
	ref.count--
}

// Device returns a copy of a bound device.
func (r *Resolver) Device(id string) (Device, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.byID[id]
	if !ok {
		return Device{}, false
	}
	return e.device.Clone(), true
}

// Len returns the number of bound devices.
func (r *Resolver) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.byID)
}

// Resolve returns the identity that owns addr.
//
// Outside pairing an unknown address is not found. While pairing it belongs
// to the pending device if that device has learned it, and to a newly
// generated identity otherwise.
func (r *Resolver) Resolve(addr string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if id, ok := r.byAddress[addr]; ok {
		return id, true
	}
	if !r.pairing {
		return "", false
	}
	if r.pending != nil && r.pending.Has(addr) {
		return r.pending.ID, true
	}
	return r.newID(), true
}

// ParseState returns the polarity learned for addr.
func (r *Resolver) ParseState(addr string) frame.State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.parseStateLocked(addr)
}

func (r *Resolver) parseStateLocked(addr string) frame.State {
	if ref, ok := r.states[addr]; ok {
		return ref.state
	}
	if r.pairing && r.pending != nil {
		if slices.Contains(r.pending.On, addr) {
			return frame.StateOn
		}
		if slices.Contains(r.pending.Off, addr) {
			return frame.StateOff
		}
	}
	return frame.StateUnknown
}

// AddressFor returns the address to transmit for id in state.
//
// Each call advances the device's rolling cursor (0,1,2,3,0,...), whichever
// state is requested, and the cursor is taken modulo each list's length.
// Repeated calls are therefore not idempotent. A device being paired falls
// back to the first learned address for state. ok is false when no address
// is known.
func (r *Resolver) AddressFor(id string, state frame.State) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if e, ok := r.byID[id]; ok {
		if e.used {
			e.cursor = (e.cursor + 1) % cursorCycle
		} else {
			e.used = true
			e.cursor = 0
		}
		if list := e.device.Addresses(state); len(list) > 0 {
			return list[e.cursor%len(list)], true
		}
	}

	if r.pairing && r.pending != nil && r.pending.ID == id {
		if list := r.pending.Addresses(state); len(list) > 0 {
			return list[0], true
		}
	}
	return "", false
}
