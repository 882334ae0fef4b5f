// Package debounce collapses bursts of identical radio payloads into a single
// logical event.
//
// Remotes repeat a frame 10-20 times per button press. A Buffer keeps one
// Debouncer per distinct payload; the first occurrence is admitted and every
// repeat inside the window only extends it. Once the window passes quietly
// the debouncer finishes, so the next press is admitted again, and after
// IdleTime of inactivity the entry is evicted.
//
// Debouncers and Buffers are not safe for concurrent use. Timer callbacks are
// handed to a Dispatcher, which must run them on the goroutine that owns the
// buffer (the channel multiplexer posts them into its actor inbox).
package debounce
