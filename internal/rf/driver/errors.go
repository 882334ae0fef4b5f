package driver

import "errors"

var (
	// ErrUnknownVariant is returned for a frame layout name that is not
	// registered.
	ErrUnknownVariant = errors.New("driver: unknown variant")

	// ErrInvalidLayout is returned when layout slices fall outside the frame.
	ErrInvalidLayout = errors.New("driver: invalid frame layout")

	// ErrFrameLength is returned when a payload does not match the layout.
	ErrFrameLength = errors.New("driver: unexpected frame length")

	// ErrInvalidData is returned when send data lacks an identity, a unit of
	// the right width, or an on/off state.
	ErrInvalidData = errors.New("driver: invalid data")

	// ErrCannotEncode is returned when no address is known for the identity
	// and state being sent.
	ErrCannotEncode = errors.New("driver: cannot encode frame")

	// ErrRoundTrip is returned when an encoded frame does not decode back to
	// the device it was built for.
	ErrRoundTrip = errors.New("driver: frame does not round-trip")

	// ErrDeviceNotFound is returned when a device id is unknown.
	ErrDeviceNotFound = errors.New("driver: device not found")

	// ErrDeviceExists is returned when adding a device whose id is taken.
	ErrDeviceExists = errors.New("driver: device already exists")

	// ErrNoPendingDevice is returned when committing a pairing session that
	// has no complete pending device.
	ErrNoPendingDevice = errors.New("driver: no pending device")
)
