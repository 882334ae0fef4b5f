package channel

import (
	"context"
	"time"

	"github.com/nerrad567/gray-logic-rf/internal/rf/bitcodec"
	"github.com/nerrad567/gray-logic-rf/internal/rf/frame"
)

// Radio is the physical transceiver for one signal key.
//
// The multiplexer calls StartReceiving, StopReceiving and Transmit from
// dedicated goroutines, so implementations may block until the hardware
// acknowledges. At most one of StartReceiving/StopReceiving is outstanding
// at a time; Transmit may overlap with either.
type Radio interface {
	SetOnPayload(fn func(bitcodec.Bits))
	StartReceiving(ctx context.Context) error
	StopReceiving(ctx context.Context) error
	Transmit(ctx context.Context, bits bitcodec.Bits) error
}

// RadioFactory returns the radio for a signal key. It is called once per key.
type RadioFactory func(signal string) (Radio, error)

// Parser converts a raw payload into a frame. Returning a nil frame with a
// nil error means the payload is not addressed to the listener.
type Parser func(bits bitcodec.Bits) (*frame.Frame, error)

// Token identifies a caller's registration.
type Token string

// sendToken is the private registration held for the duration of one
// transmit. Its type keeps it distinct from every caller Token.
type sendToken uint64

// Logger is the logging interface used by the multiplexer.
// *logging.Logger satisfies it.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Observer receives multiplexer events for metrics.
type Observer interface {
	PayloadReceived(signal string)
	PayloadEmitted(signal string, window time.Duration)
	PayloadAbsorbed(signal string, window time.Duration)
	PayloadSent(signal string)
	RadioError(signal, op string)
	Registrants(signal string, count int)
	EventDropped(signal string)
}

// NopObserver discards every event. Embed it to implement part of Observer.
type NopObserver struct{}

func (NopObserver) PayloadReceived(string)                {}
func (NopObserver) PayloadEmitted(string, time.Duration)  {}
func (NopObserver) PayloadAbsorbed(string, time.Duration) {}
func (NopObserver) PayloadSent(string)                    {}
func (NopObserver) RadioError(string, string)             {}
func (NopObserver) Registrants(string, int)               {}
func (NopObserver) EventDropped(string)                   {}
