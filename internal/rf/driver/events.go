package driver

import (
	"sync"

	"github.com/nerrad567/gray-logic-rf/internal/rf/bitcodec"
	"github.com/nerrad567/gray-logic-rf/internal/rf/frame"
)

// EventType names a driver event.
type EventType string

// Driver events.
const (
	// EventFrame fires for every decoded frame, received or sent.
	EventFrame EventType = "frame"
	// EventFrameReceived fires for every decoded received frame.
	EventFrameReceived EventType = "frame_received"
	// EventDeviceFrameReceived fires when a received frame belongs to a
	// known device.
	EventDeviceFrameReceived EventType = "device_frame_received"
	// EventFrameSend fires after a transmitted payload has been decoded.
	EventFrameSend EventType = "frame_send"
	// EventNewState fires when a device's state replaces a previous one.
	EventNewState EventType = "new_state"
	// EventNewFrame fires when a device's last frame replaces a previous one.
	EventNewFrame EventType = "new_frame"
	// EventBeforeSend fires before encoding.
	EventBeforeSend EventType = "before_send"
	// EventSend fires once a frame passed the round-trip check.
	EventSend EventType = "send"
	// EventAfterSend fires when the radio accepted the frame.
	EventAfterSend EventType = "after_send"
	// EventSendError fires when encoding or transmitting failed.
	EventSendError EventType = "send_error"
	// EventAdded and EventDeleted track the device lifecycle.
	EventAdded   EventType = "added"
	EventDeleted EventType = "deleted"
)

// Event carries the payload of a driver event. Fields are set according to
// the event type.
type Event struct {
	Type     EventType
	DriverID string
	Device   *Device
	Frame    frame.Frame
	Previous *frame.Frame
	Data     Data
	Payload  bitcodec.Bits
	Err      error
}

type subscriber struct {
	id int
	fn func(Event)
}

type emitter struct {
	mu     sync.RWMutex
	nextID int
	subs   map[EventType][]subscriber
}

func newEmitter() *emitter {
	return &emitter{subs: make(map[EventType][]subscriber)}
}

func (e *emitter) subscribe(t EventType, fn func(Event)) func() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.nextID++
	id := e.nextID
	e.subs[t] = append(e.subs[t], subscriber{id: id, fn: fn})

	return func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		list := e.subs[t]
		for i, s := range list {
			if s.id == id {
				e.subs[t] = append(list[:i:i], list[i+1:]...)
				return
			}
		}
	}
}

func (e *emitter) emit(ev Event) {
	e.mu.RLock()
	list := e.subs[ev.Type]
	e.mu.RUnlock()
	for _, s := range list {
		s.fn(ev)
	}
}
