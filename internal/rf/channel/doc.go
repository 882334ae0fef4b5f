// Package channel multiplexes one physical radio channel across many logical
// drivers.
//
// A Registry owns one handle per signal key. Each handle is an actor: a
// single goroutine owns the registrant set, the in-flight start and stop
// futures, and the debounce buffers, and everything that touches them
// (radio payloads, debounce timers, register, unregister) arrives as a
// message in its inbox. Radio calls run on their own goroutines and report
// back through a Future, so the actor never blocks on radio I/O.
//
// Drivers obtain a Listener from Registry.Open:
//
//	l, err := reg.Open("433_cotech", 500*time.Millisecond, driver.Parse)
//	l.OnData(func(f frame.Frame) { ... })
//	if err := l.Register("cotech").Wait(ctx); err != nil {
//	    // logged already; the channel is usable in degraded mode
//	}
//
// The radio is started when the first token registers and stopped when the
// last one unregisters. A stop that is still in flight always completes
// before the next start is issued.
//
// Events (payload, data, payload_send) are delivered in order on one event
// goroutine per handle, never on the actor.
package channel
