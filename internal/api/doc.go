// Package api implements the HTTP REST API and WebSocket server for the RF
// bridge.
//
// This package provides:
//   - REST endpoints for paired devices, drivers, channels and recorded frames
//   - A WebSocket hub relaying decoded frames and device state in real time
//   - A per-driver pairing WebSocket that drives the learn-mode workflow
//   - Middleware stack (request ID, logging, recovery, CORS)
//   - The Prometheus scrape endpoint
//
// # Architecture
//
// The API sits beside the MQTT bridge. Both talk to the same drivers and the
// same device registry, so a device paired here is controllable over MQTT
// immediately. Commands posted to /devices/{key}/send go straight to the
// driver; there is no MQTT hop.
//
// # Pairing
//
// GET /api/v1/pair/{driver} upgrades to a WebSocket and opens a learn session
// on that driver. Only one session per driver may be open; a second request
// is refused with 409 before the upgrade. The session ends when the socket
// closes or the device is saved.
//
// # Graceful Degradation
//
// Channels, frames and health are optional. Endpoints whose source was not
// supplied answer 503.
package api
