package mqtt

import "fmt"

// Topic prefixes.
//
// Every bridge topic uses the flat scheme graylogic/{category}/{protocol}/{id}.
const (
	// TopicPrefixBridge is the base for all bridge topics.
	TopicPrefixBridge = "graylogic"

	// Protocol is the protocol segment the RF bridge publishes under.
	Protocol = "rf"
)

// Topics provides builders for the bridge's MQTT topics.
//
//	topics := mqtt.Topics{}
//	stateTopic := topics.BridgeState(mqtt.Protocol, "cotech:d1b2:0001")
//	// Returns: "graylogic/state/rf/cotech:d1b2:0001"
type Topics struct{}

// BridgeState returns the retained state topic for a device.
//
// Example: graylogic/state/rf/cotech:d1b2:0001
func (Topics) BridgeState(protocol, deviceID string) string {
	return fmt.Sprintf("%s/state/%s/%s", TopicPrefixBridge, protocol, deviceID)
}

// BridgeCommand returns the topic commands for a device arrive on.
//
// Example: graylogic/command/rf/cotech:d1b2:0001
func (Topics) BridgeCommand(protocol, deviceID string) string {
	return fmt.Sprintf("%s/command/%s/%s", TopicPrefixBridge, protocol, deviceID)
}

// BridgeAck returns the topic for command acknowledgements.
//
// Example: graylogic/ack/rf/cotech:d1b2:0001
func (Topics) BridgeAck(protocol, deviceID string) string {
	return fmt.Sprintf("%s/ack/%s/%s", TopicPrefixBridge, protocol, deviceID)
}

// BridgeEvent returns the topic raw frames of a driver are published on.
//
// Example: graylogic/event/rf/cotech
func (Topics) BridgeEvent(protocol, driverID string) string {
	return fmt.Sprintf("%s/event/%s/%s", TopicPrefixBridge, protocol, driverID)
}

// BridgeRequest returns the topic for requests to a bridge.
//
// Example: graylogic/request/rf/req-abc123
func (Topics) BridgeRequest(protocol, requestID string) string {
	return fmt.Sprintf("%s/request/%s/%s", TopicPrefixBridge, protocol, requestID)
}

// BridgeResponse returns the topic for request responses.
//
// Example: graylogic/response/rf/req-abc123
func (Topics) BridgeResponse(protocol, requestID string) string {
	return fmt.Sprintf("%s/response/%s/%s", TopicPrefixBridge, protocol, requestID)
}

// BridgeHealth returns the retained health topic of a bridge. The client's
// Last Will is published here too.
//
// Example: graylogic/health/rf
func (Topics) BridgeHealth(protocol string) string {
	return fmt.Sprintf("%s/health/%s", TopicPrefixBridge, protocol)
}

// AllCommands returns a pattern matching every device command for a protocol.
//
// Pattern: graylogic/command/rf/+
func (Topics) AllCommands(protocol string) string {
	return fmt.Sprintf("%s/command/%s/+", TopicPrefixBridge, protocol)
}

// AllRequests returns a pattern matching every request for a protocol.
//
// Pattern: graylogic/request/rf/+
func (Topics) AllRequests(protocol string) string {
	return fmt.Sprintf("%s/request/%s/+", TopicPrefixBridge, protocol)
}
