package device

import "errors"

// Domain errors for the device package. Check with errors.Is.
var (
	// ErrDeviceNotFound is returned when a device key does not exist.
	ErrDeviceNotFound = errors.New("device: not found")

	// ErrDeviceExists is returned when creating a device whose key is taken.
	ErrDeviceExists = errors.New("device: already exists")

	// ErrInvalidDevice is returned when device validation fails.
	ErrInvalidDevice = errors.New("device: invalid")

	// ErrInvalidName is returned when a device name is empty or too long.
	ErrInvalidName = errors.New("device: invalid name")

	// ErrInvalidAddress is returned when an on/off address is not a bit string.
	ErrInvalidAddress = errors.New("device: invalid address")

	// ErrInvalidKey is returned for a key that is not "{driver}:{id}".
	ErrInvalidKey = errors.New("device: invalid key")

	// ErrDriverNotFound is returned when no driver with the device's
	// driver id is attached.
	ErrDriverNotFound = errors.New("device: driver not attached")
)
