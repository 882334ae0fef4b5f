package transceiver

import (
	"context"

	"github.com/nerrad567/gray-logic-rf/internal/rf/bitcodec"
	"github.com/nerrad567/gray-logic-rf/internal/rf/channel"
)

// Radio binds the client to one signal.
type Radio struct {
	client *Client
	signal string
}

// Ensure Radio implements channel.Radio.
var _ channel.Radio = (*Radio)(nil)

// Radio returns the radio for signal.
func (c *Client) Radio(signal string) *Radio {
	return &Radio{client: c, signal: signal}
}

// Factory adapts the client to a channel.RadioFactory.
func (c *Client) Factory() channel.RadioFactory {
	return func(signal string) (channel.Radio, error) {
		return c.Radio(signal), nil
	}
}

// Signal returns the bound signal key.
func (r *Radio) Signal() string { return r.signal }

// SetOnPayload sets the callback for received frames.
func (r *Radio) SetOnPayload(fn func(bitcodec.Bits)) {
	r.client.SetOnFrame(r.signal, fn)
}

// StartReceiving asks the daemon to forward frames for the signal.
func (r *Radio) StartReceiving(ctx context.Context) error {
	return r.client.StartReceiving(ctx, r.signal)
}

// StopReceiving stops forwarding frames for the signal.
func (r *Radio) StopReceiving(ctx context.Context) error {
	return r.client.StopReceiving(ctx, r.signal)
}

// Transmit sends one frame.
func (r *Radio) Transmit(ctx context.Context, bits bitcodec.Bits) error {
	return r.client.Transmit(ctx, r.signal, bits)
}
