// Package pairing implements the learn-mode workflow used while a new
// device is registered.
//
// A Session wraps the resolver's pending device. While its listen state is
// on or off, every observed frame whose address is new to the pending
// device, and whose known polarity is unknown or matches, is appended to
// that list and reported through OnUpdate. Nothing reaches the permanent
// address table until the caller binds the finished device.
package pairing
