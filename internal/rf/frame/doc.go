// Package frame defines the logical view of a decoded radio frame shared by
// the multiplexer, address resolver, pairing and driver packages.
package frame
