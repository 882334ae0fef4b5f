package address

import "errors"

var (
	// ErrInvalidDevice is returned when a device has no id or is missing
	// on or off addresses.
	ErrInvalidDevice = errors.New("address: invalid device")

	// ErrNotPairing is returned when a pending-device operation is attempted
	// outside a pairing session.
	ErrNotPairing = errors.New("address: not pairing")
)
