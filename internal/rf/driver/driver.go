package driver

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/nerrad567/gray-logic-rf/internal/rf/address"
	"github.com/nerrad567/gray-logic-rf/internal/rf/bitcodec"
	"github.com/nerrad567/gray-logic-rf/internal/rf/channel"
	"github.com/nerrad567/gray-logic-rf/internal/rf/debounce"
	"github.com/nerrad567/gray-logic-rf/internal/rf/frame"
	"github.com/nerrad567/gray-logic-rf/internal/rf/pairing"
)

// Logger is the logging interface used by drivers.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Device is a driver-level device record.
type Device struct {
	ID   string   `json:"id"`
	UUID string   `json:"uuid"`
	Unit string   `json:"unit"`
	Name string   `json:"name"`
	On   []string `json:"on"`
	Off  []string `json:"off"`
}

// Data is the input to DataToPayload.
type Data struct {
	UUID  string      `json:"uuid"`
	Unit  string      `json:"unit"`
	State frame.State `json:"state"`
}

// SendRequest is a command for one device. An empty Unit uses the device's.
type SendRequest struct {
	State frame.State `json:"state"`
	Unit  string      `json:"unit,omitempty"`
}

// Options configures a Driver.
type Options struct {
	ID       string
	Signal   string
	Layout   Layout
	Debounce time.Duration
	Registry *channel.Registry
	Logger   Logger
}

// Driver is one protocol variant bound to a signal.
type Driver struct {
	id       string
	signal   string
	layout   Layout
	listener *channel.Listener
	resolver *address.Resolver
	codec    *bitcodec.Codec
	logger   Logger
	events   *emitter
	token    channel.Token

	mu         sync.RWMutex
	devices    map[string]Device
	uuidRefs   map[string]int
	states     map[string]frame.State
	lastFrames map[string]frame.Frame
	session    *pairing.Session
}

// New opens the driver's listener on the registry.
//
// A zero Debounce uses debounce.DefaultWindow; a negative one disables
// debouncing.
//
// Parameters:
//   - opts: Driver id, signal key, frame layout and the channel registry
//
// Returns:
//   - *Driver: Driver with an open listener and no devices
//   - error: If a required option is missing, the layout is invalid, or the
//     signal cannot be opened
func New(opts Options) (*Driver, error) {
	if opts.ID == "" || opts.Signal == "" {
		return nil, fmt.Errorf("driver: id and signal are required")
	}
	if opts.Registry == nil {
		return nil, fmt.Errorf("driver %s: registry is required", opts.ID)
	}
	if err := opts.Layout.Validate(); err != nil {
		return nil, err
	}
	if opts.Logger == nil {
		opts.Logger = noopLogger{}
	}
	window := opts.Debounce
	if window == 0 {
		window = debounce.DefaultWindow
	}
	if window < 0 {
		window = 0
	}

	d := &Driver{
		id:         opts.ID,
		signal:     opts.Signal,
		layout:     opts.Layout,
		resolver:   address.NewResolver(),
		codec:      bitcodec.NewCodec(opts.Logger),
		logger:     opts.Logger,
		events:     newEmitter(),
		token:      channel.Token("driver:" + opts.ID),
		devices:    make(map[string]Device),
		uuidRefs:   make(map[string]int),
		states:     make(map[string]frame.State),
		lastFrames: make(map[string]frame.Frame),
	}

	l, err := opts.Registry.Open(opts.Signal, window, d.PayloadToData)
	if err != nil {
		return nil, fmt.Errorf("driver %s: opening signal %s: %w", opts.ID, opts.Signal, err)
	}
	d.listener = l
	l.OnData(d.handleData)
	l.OnPayloadSend(d.handlePayloadSend)
	return d, nil
}

// ID returns the driver id.
func (d *Driver) ID() string { return d.id }

// Signal returns the signal key.
func (d *Driver) Signal() string { return d.signal }

// Layout returns the frame layout.
func (d *Driver) Layout() Layout { return d.layout }

// Listener exposes the underlying channel listener, for manual debounce and
// pausing debouncers.
func (d *Driver) Listener() *channel.Listener { return d.listener }

// Subscribe registers fn for events of type t and returns a function that
// removes it. Callbacks run on the channel's event goroutine or on the
// goroutine calling the driver method that raised them.
func (d *Driver) Subscribe(t EventType, fn func(Event)) func() {
	return d.events.subscribe(t, fn)
}

func (d *Driver) emit(ev Event) {
	ev.DriverID = d.id
	d.events.emit(ev)
}

// Add binds a device's addresses and claims the channel.
func (d *Driver) Add(dev Device) error {
	if dev.UUID == "" {
		return fmt.Errorf("%w: missing uuid", ErrInvalidData)
	}
	if dev.ID == "" {
		dev.ID = d.layout.DeviceID(dev.UUID, dev.Unit)
	}

	d.mu.Lock()
	if _, ok := d.devices[dev.ID]; ok {
		d.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrDeviceExists, dev.ID)
	}
	if err := d.resolver.Bind(address.Device{ID: dev.UUID, On: dev.On, Off: dev.Off}); err != nil {
		d.mu.Unlock()
		return fmt.Errorf("%w: %w", ErrInvalidData, err)
	}
	d.devices[dev.ID] = dev
	d.uuidRefs[dev.UUID]++
	d.mu.Unlock()

	d.logger.Info("device added", "driver", d.id, "device", dev.ID)
	d.listener.Register(d.token)
	d.emit(Event{Type: EventAdded, Device: &dev})
	return nil
}

// Delete removes a device. The addresses are unbound once no other device
// shares the same uuid, and the channel is released with the last device.
func (d *Driver) Delete(id string) error {
	d.mu.Lock()
	dev, ok := d.devices[id]
	if !ok {
		d.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrDeviceNotFound, id)
	}
	delete(d.devices, id)
	delete(d.states, id)
	delete(d.lastFrames, id)
	d.uuidRefs[dev.UUID]--
	if d.uuidRefs[dev.UUID] <= 0 {
		delete(d.uuidRefs, dev.UUID)
		d.resolver.Unbind(dev.UUID)
	}
	empty := len(d.devices) == 0
	d.mu.Unlock()

	d.logger.Info("device deleted", "driver", d.id, "device", id)
	if empty {
		d.listener.Unregister(d.token)
	}
	d.emit(Event{Type: EventDeleted, Device: &dev})
	return nil
}

// Device returns a device by id.
func (d *Driver) Device(id string) (Device, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	dev, ok := d.devices[id]
	return dev, ok
}

// Devices returns every device sorted by id.
func (d *Driver) Devices() []Device {
	d.mu.RLock()
	out := make([]Device, 0, len(d.devices))
	for _, dev := range d.devices {
		out = append(out, dev)
	}
	d.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// PayloadToData decodes a payload. It returns (nil, nil) for a frame whose
// address is not known and not being paired.
func (d *Driver) PayloadToData(bits bitcodec.Bits) (*frame.Frame, error) {
	if len(bits) != d.layout.FrameLength {
		return nil, fmt.Errorf("%w: got %d bits, want %d", ErrFrameLength, len(bits), d.layout.FrameLength)
	}

	addr := d.codec.Format(bits.Slice(d.layout.Address.From, d.layout.Address.To))
	uuid, ok := d.resolver.Resolve(addr)
	if !ok {
		return nil, nil
	}
	unit := d.codec.Format(bits.Slice(d.layout.Unit.From, d.layout.Unit.To))

	return &frame.Frame{
		ID:      d.layout.DeviceID(uuid, unit),
		UUID:    uuid,
		Address: addr,
		Unit:    unit,
		State:   d.resolver.ParseState(addr),
		Payload: d.codec.Format(bits),
	}, nil
}

// DataToPayload encodes data. Each call advances the device's rolling
// address cursor.
func (d *Driver) DataToPayload(data Data) (bitcodec.Bits, error) {
	if data.UUID == "" {
		return nil, fmt.Errorf("%w: missing uuid", ErrInvalidData)
	}
	if len(data.Unit) != d.layout.Unit.Len() {
		return nil, fmt.Errorf("%w: unit %q must be %d bits", ErrInvalidData, data.Unit, d.layout.Unit.Len())
	}
	if data.State != frame.StateOn && data.State != frame.StateOff {
		return nil, fmt.Errorf("%w: state must be on or off", ErrInvalidData)
	}

	addr, ok := d.resolver.AddressFor(data.UUID, data.State)
	if !ok {
		return nil, fmt.Errorf("%w: no %s address for %s", ErrCannotEncode, data.State, data.UUID)
	}

	payload := append(d.codec.Parse(addr), d.codec.Parse(data.Unit)...)
	return payload, nil
}

// Send encodes req for the device and transmits it. The pending pairing
// device can be addressed too, which lets a pairing wizard test a device
// before it is saved.
func (d *Driver) Send(ctx context.Context, id string, req SendRequest) error {
	data, err := d.sendData(id, req)
	if err != nil {
		return err
	}
	d.emit(Event{Type: EventBeforeSend, Data: data})

	payload, err := d.DataToPayload(data)
	if err != nil {
		d.logger.Error("encoding frame failed", "driver", d.id, "device", id, "error", err)
		d.emit(Event{Type: EventSendError, Data: data, Err: err})
		return err
	}

	check, err := d.PayloadToData(payload)
	if err != nil || check == nil || check.ID != id {
		got := ""
		if check != nil {
			got = check.ID
		}
		err = fmt.Errorf("%w: %s decoded as %q", ErrRoundTrip, payload.String(), got)
		d.logger.Error("frame failed round-trip check", "driver", d.id, "device", id, "error", err)
		d.emit(Event{Type: EventSendError, Data: data, Err: err})
		return err
	}

	d.emit(Event{Type: EventSend, Data: data, Payload: payload})
	if err := d.listener.Send(payload).Wait(ctx); err != nil {
		d.logger.Error("send failed", "driver", d.id, "device", id, "error", err)
		d.emit(Event{Type: EventSendError, Data: data, Payload: payload, Err: err})
		return err
	}
	d.emit(Event{Type: EventAfterSend, Data: data, Payload: payload})
	return nil
}

func (d *Driver) sendData(id string, req SendRequest) (Data, error) {
	data := Data{State: req.State}

	if dev, ok := d.Device(id); ok {
		data.UUID, data.Unit = dev.UUID, dev.Unit
	} else {
		uuid, unit := d.layout.SplitID(id)
		pending, ok := d.resolver.Pending()
		if !ok || pending.ID != uuid {
			return Data{}, fmt.Errorf("%w: %s", ErrDeviceNotFound, id)
		}
		data.UUID, data.Unit = uuid, unit
	}
	if req.Unit != "" {
		data.Unit = req.Unit
	}
	return data, nil
}

func (d *Driver) handleData(f frame.Frame) {
	d.logger.Debug("frame received", "driver", d.id, "id", f.ID, "state", f.State)
	d.received(f)
	d.emit(Event{Type: EventFrame, Frame: f})
}

func (d *Driver) received(f frame.Frame) {
	d.emit(Event{Type: EventFrameReceived, Frame: f})

	dev, ok := d.Device(f.ID)
	if !ok {
		return
	}
	d.SetLastFrame(f.ID, f)
	if f.State != frame.StateUnknown {
		d.SetState(f.ID, f.State)
	}
	d.emit(Event{Type: EventDeviceFrameReceived, Device: &dev, Frame: f})
}

func (d *Driver) handlePayloadSend(payload bitcodec.Bits) {
	f, err := d.PayloadToData(payload)
	if err != nil || f == nil {
		return
	}
	d.emit(Event{Type: EventFrame, Frame: *f, Payload: payload})
	d.emit(Event{Type: EventFrameSend, Frame: *f, Payload: payload})
}

// State returns the last known state of a device.
func (d *Driver) State(id string) (frame.State, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	s, ok := d.states[id]
	return s, ok
}

// SetState records a device's state, emitting EventNewState when it
// replaces an earlier one.
func (d *Driver) SetState(id string, s frame.State) {
	d.mu.Lock()
	dev, known := d.devices[id]
	prev, had := d.states[id]
	if known {
		d.states[id] = s
	}
	d.mu.Unlock()

	if known && had {
		prevFrame := frame.Frame{ID: id, State: prev}
		d.emit(Event{Type: EventNewState, Device: &dev, Frame: frame.Frame{ID: id, State: s}, Previous: &prevFrame})
	}
}

// LastFrame returns the most recent frame seen for a device.
func (d *Driver) LastFrame(id string) (frame.Frame, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	f, ok := d.lastFrames[id]
	return f, ok
}

// SetLastFrame records a device's last frame, emitting EventNewFrame with
// the frame it replaces.
func (d *Driver) SetLastFrame(id string, f frame.Frame) {
	d.mu.Lock()
	dev, known := d.devices[id]
	prev, had := d.lastFrames[id]
	if known {
		d.lastFrames[id] = f
	}
	d.mu.Unlock()

	if known && had {
		d.emit(Event{Type: EventNewFrame, Device: &dev, Frame: f, Previous: &prev})
	}
}

// MatchTrigger reports whether every argument equals the string form of the
// frame's field of the same name.
func MatchTrigger(args map[string]string, f frame.Frame) bool {
	for k, want := range args {
		got, ok := f.Field(k)
		if !ok || got != want {
			return false
		}
	}
	return true
}

// Close releases the driver's channel claims and detaches its listener.
func (d *Driver) Close() {
	d.mu.Lock()
	s := d.session
	d.session = nil
	d.mu.Unlock()
	if s != nil {
		s.End()
	}
	d.listener.Unregister(d.token)
	d.listener.Close()
}
