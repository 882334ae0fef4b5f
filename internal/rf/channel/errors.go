package channel

import "errors"

// Multiplexer errors. Radio failures are wrapped so callers can match the
// sentinel while the message keeps the signal key and the radio's cause.
var (
	// ErrRadioRegister is returned when the radio fails to start receiving.
	ErrRadioRegister = errors.New("channel: radio register failed")

	// ErrRadioUnregister is returned when the radio fails to stop receiving.
	ErrRadioUnregister = errors.New("channel: radio unregister failed")

	// ErrTransmit is returned when the radio fails to transmit a payload.
	ErrTransmit = errors.New("channel: transmit failed")

	// ErrClosed is returned once the registry has been closed.
	ErrClosed = errors.New("channel: registry closed")

	// ErrNoRadio is returned when a registry is built without a radio factory.
	ErrNoRadio = errors.New("channel: no radio factory")
)
