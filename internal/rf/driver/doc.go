// Package driver implements a radio protocol variant on top of the shared
// channel: it decodes debounced payloads into device frames, encodes send
// requests back into payloads, and tracks per-device state.
//
// # Receive path
//
//	channel.Listener ──payload──▶ PayloadToData ──frame──▶ events
//	                                   │
//	                           address.Resolver
//
// # Send path
//
//	Send(id, state) ─▶ DataToPayload ─▶ round-trip check ─▶ Listener.Send
//
// A frame is only transmitted when decoding it again yields the device it
// was built for, so a misconfigured address list can never drive a
// different device.
package driver
