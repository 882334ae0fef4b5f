package device

import (
	"strings"
	"time"

	"github.com/nerrad567/gray-logic-rf/internal/rf/driver"
)

// keySeparator joins the driver id and the driver-level device id.
const keySeparator = ":"

// Device is a paired RF device as stored in rf_devices.
type Device struct {
	DriverID string `json:"driver_id"`

	// ID is the driver-level id, "uuid" or "uuid:unit".
	ID   string `json:"id"`
	UUID string `json:"uuid"`
	Unit string `json:"unit"`
	Name string `json:"name"`

	// On and Off list the rolling addresses for each polarity.
	On  []string `json:"on"`
	Off []string `json:"off"`

	// Data holds free-form settings saved with the device.
	Data map[string]any `json:"data,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Key returns the device's key, "{driver}:{id}".
func (d *Device) Key() string {
	return Key(d.DriverID, d.ID)
}

// Key joins a driver id and a driver-level device id.
func Key(driverID, id string) string {
	return driverID + keySeparator + id
}

// SplitKey splits a key at its first separator. Driver ids never contain
// one, device ids may.
func SplitKey(key string) (driverID, id string, err error) {
	driverID, id, ok := strings.Cut(key, keySeparator)
	if !ok || driverID == "" || id == "" {
		return "", "", ErrInvalidKey
	}
	return driverID, id, nil
}

// FromDriver converts a driver-level device.
func FromDriver(driverID string, d driver.Device) *Device {
	return &Device{
		DriverID: driverID,
		ID:       d.ID,
		UUID:     d.UUID,
		Unit:     d.Unit,
		Name:     d.Name,
		On:       append([]string(nil), d.On...),
		Off:      append([]string(nil), d.Off...),
	}
}

// DriverDevice converts to the driver-level record.
func (d *Device) DriverDevice() driver.Device {
	return driver.Device{
		ID:   d.ID,
		UUID: d.UUID,
		Unit: d.Unit,
		Name: d.Name,
		On:   append([]string(nil), d.On...),
		Off:  append([]string(nil), d.Off...),
	}
}

// DeepCopy returns a copy sharing no slices or maps with d.
func (d *Device) DeepCopy() *Device {
	if d == nil {
		return nil
	}
	cpy := *d
	cpy.On = append([]string(nil), d.On...)
	cpy.Off = append([]string(nil), d.Off...)
	cpy.Data = deepCopyMap(d.Data)
	return &cpy
}

func deepCopyMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	cpy := make(map[string]any, len(m))
	for k, v := range m {
		cpy[k] = deepCopyValue(v)
	}
	return cpy
}

func deepCopyValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return deepCopyMap(val)
	case []any:
		cpy := make([]any, len(val))
		for i, item := range val {
			cpy[i] = deepCopyValue(item)
		}
		return cpy
	default:
		return val
	}
}

// Stats summarises the registry.
type Stats struct {
	Total    int            `json:"total"`
	ByDriver map[string]int `json:"by_driver"`
}
