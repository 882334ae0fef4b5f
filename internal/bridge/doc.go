// Package bridge connects the RF protocol drivers to the Gray Logic MQTT bus.
//
// # Topics
//
//	graylogic/command/rf/{device}   ← send commands from Core
//	graylogic/ack/rf/{device}       → command acknowledgements
//	graylogic/state/rf/{device}     → retained state per paired device
//	graylogic/event/rf/{driver}     → every decoded frame, paired or not
//	graylogic/request/rf/{id}       ← read_state, list_devices
//	graylogic/response/rf/{id}      → request responses
//	graylogic/health/rf             → retained health, also the Last Will
//
// {device} is the device key "{driver}:{id}".
//
// # Commands
//
//	{"id": "cmd-1", "command": "send", "state": "on"}
//	{"id": "cmd-2", "command": "off", "unit": "0010"}
//
// Frames are also written to the SQLite frame recorder and, when
// configured, to InfluxDB.
package bridge
