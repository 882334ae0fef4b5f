// Package transceiver connects Gray Logic RF to the radio transceiver daemon.
//
// The daemon owns the radio hardware and speaks a small line protocol over a
// Unix socket or TCP:
//
//	┌──────────────────┐  lines   ┌──────────────────┐
//	│  channel.Handle  │◄────────►│    daemon        │◄──── 433 MHz
//	│  (per signal)    │          │  (transceiver)   │
//	└──────────────────┘          └──────────────────┘
//
// # Wire format
//
// Every command carries a sequence number that the daemon echoes:
//
//	42 START 433
//	42 OK
//	43 TX 433 01010101010101010101010101000101
//	43 ERR radio busy
//
// Received frames arrive unsolicited:
//
//	RX 433 01010101010101010101010101000101
//
// # Reconnection
//
// When the connection drops the client redials with exponential backoff and
// re-issues START for every signal that was receiving, so channel handles
// never have to notice the outage.
//
// # Thread Safety
//
// All exported types are safe for concurrent use from multiple goroutines.
package transceiver
