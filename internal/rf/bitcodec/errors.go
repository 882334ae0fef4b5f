package bitcodec

import "errors"

// Codec errors.
var (
	// ErrInvalidBit is returned when a bit value is not 0 or 1.
	ErrInvalidBit = errors.New("bitcodec: invalid bit")

	// ErrInvalidNumber is returned when an integer cannot be encoded.
	ErrInvalidNumber = errors.New("bitcodec: invalid number")

	// ErrLengthMismatch is returned when two operands differ in length.
	ErrLengthMismatch = errors.New("bitcodec: length mismatch")
)
