package transceiver

import "errors"

// Domain errors for the transceiver package.
var (
	// ErrNotConnected is returned when a command is issued while the daemon
	// connection is down.
	ErrNotConnected = errors.New("transceiver: not connected")

	// ErrConnectionFailed is returned when the connection cannot be
	// established.
	ErrConnectionFailed = errors.New("transceiver: connection failed")

	// ErrCommandFailed is returned when the daemon answers ERR.
	ErrCommandFailed = errors.New("transceiver: command failed")

	// ErrTimeout is returned when the daemon does not answer in time.
	ErrTimeout = errors.New("transceiver: command timed out")

	// ErrInvalidLine is returned for a line that does not parse.
	ErrInvalidLine = errors.New("transceiver: invalid line")

	// ErrClosed is returned after Close.
	ErrClosed = errors.New("transceiver: client closed")
)
