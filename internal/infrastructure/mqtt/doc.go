// Package mqtt connects the RF bridge to the platform's MQTT bus.
//
// This package manages:
//   - Connection to the broker with auto-reconnect
//   - Publishing with QoS guarantees
//   - Subscriptions, restored after every reconnect
//   - Last Will and Testament on graylogic/health/rf
//
// # Topics
//
// All topics follow graylogic/{category}/rf/{id}:
//
//	graylogic/command/rf/{device}    commands from the platform
//	graylogic/ack/rf/{device}        command acknowledgements
//	graylogic/state/rf/{device}      retained device state
//	graylogic/event/rf/{driver}      raw received frames
//	graylogic/request/rf/{id}        read_state / list_devices requests
//	graylogic/response/rf/{id}       request responses
//	graylogic/health/rf              retained bridge health and LWT
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	err = client.Subscribe(mqtt.Topics{}.AllCommands(mqtt.Protocol), 1, handler)
//
// TLS should be enabled for any broker outside the local host.
package mqtt
