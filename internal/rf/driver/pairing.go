package driver

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/nerrad567/gray-logic-rf/internal/rf/address"
	"github.com/nerrad567/gray-logic-rf/internal/rf/bitcodec"
	"github.com/nerrad567/gray-logic-rf/internal/rf/channel"
	"github.com/nerrad567/gray-logic-rf/internal/rf/pairing"
)

// StartPairing opens a learn session. The session holds its own channel
// registration and frame subscription until it ends. Callers must make sure
// only one session per driver is active; a previous session is ended.
func (d *Driver) StartPairing(onUpdate func(address.Device)) *pairing.Session {
	d.mu.Lock()
	prev := d.session
	d.session = nil
	d.mu.Unlock()
	if prev != nil {
		prev.End()
	}

	token := channel.Token("pair:" + d.id)
	d.listener.Register(token)

	var unsubscribe func()
	var s *pairing.Session
	s = pairing.Start(d.resolver, pairing.Options{
		OnUpdate: onUpdate,
		OnEnd: func() {
			if unsubscribe != nil {
				unsubscribe()
			}
			d.listener.Unregister(token)
			d.mu.Lock()
			if d.session == s {
				d.session = nil
			}
			d.mu.Unlock()
			d.logger.Info("pairing ended", "driver", d.id)
		},
	})
	unsubscribe = d.Subscribe(EventFrame, func(ev Event) { s.Observe(ev.Frame) })

	d.mu.Lock()
	d.session = s
	d.mu.Unlock()

	d.logger.Info("pairing started", "driver", d.id)
	return s
}

// Generate proposes a device with random on and off addresses, for
// receivers that learn from the transmitter instead of a physical remote.
func (d *Driver) Generate() address.Device {
	width := d.layout.Address.Len()
	on := bitcodec.Random(width).String()
	off := bitcodec.Random(width).String()
	for off == on {
		off = bitcodec.Random(width).String()
	}
	return address.Device{ID: uuid.NewString(), On: []string{on}, Off: []string{off}}
}

// CommitPairing adds the session's pending device under name and ends the
// session. unit selects the unit for per-unit layouts and defaults to all
// zeros.
func (d *Driver) CommitPairing(s *pairing.Session, name, unit string) (Device, error) {
	pending, ok := s.Pending()
	if !ok || len(pending.On) == 0 || len(pending.Off) == 0 {
		return Device{}, ErrNoPendingDevice
	}
	if unit == "" {
		unit = bitcodec.Bits(make([]uint8, d.layout.Unit.Len())).String()
	}
	if len(unit) != d.layout.Unit.Len() {
		return Device{}, fmt.Errorf("%w: unit %q must be %d bits", ErrInvalidData, unit, d.layout.Unit.Len())
	}

	dev := Device{
		ID:   d.layout.DeviceID(pending.ID, unit),
		UUID: pending.ID,
		Unit: unit,
		Name: name,
		On:   pending.On,
		Off:  pending.Off,
	}
	s.End()
	if err := d.Add(dev); err != nil {
		return Device{}, err
	}
	return dev, nil
}
