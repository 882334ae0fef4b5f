// Package clock abstracts wall time and one-shot timers so timer-driven state
// machines can be tested deterministically.
package clock
