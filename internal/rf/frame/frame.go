package frame

import "strconv"

// State is the on/off polarity carried by an address.
type State int

// Known polarities.
const (
	StateUnknown State = -1
	StateOff     State = 0
	StateOn      State = 1
)

// String returns "on", "off" or "unknown".
func (s State) String() string {
	switch s {
	case StateOn:
		return "on"
	case StateOff:
		return "off"
	default:
		return "unknown"
	}
}

// ParseState converts "on"/"off"/"1"/"0"/"true"/"false" into a State.
func ParseState(s string) (State, bool) {
	switch s {
	case "on", "1", "true":
		return StateOn, true
	case "off", "0", "false":
		return StateOff, true
	default:
		return StateUnknown, false
	}
}

// Frame is a resolved radio frame.
type Frame struct {
	// ID identifies the logical device (for example "uuid:unit").
	ID      string `json:"id"`
	UUID    string `json:"uuid"`
	Address string `json:"address"`
	Unit    string `json:"unit,omitempty"`
	State   State  `json:"state"`
	// Payload is the raw frame in string form.
	Payload string `json:"payload"`
}

// Field returns the string form of a frame field by name. It is used for
// trigger matching, where arguments are compared as strings.
func (f Frame) Field(name string) (string, bool) {
	switch name {
	case "id":
		return f.ID, true
	case "uuid":
		return f.UUID, true
	case "address":
		return f.Address, true
	case "unit":
		return f.Unit, true
	case "state":
		return strconv.Itoa(int(f.State)), true
	case "payload":
		return f.Payload, true
	default:
		return "", false
	}
}
