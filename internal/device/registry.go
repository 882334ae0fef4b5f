package device

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/nerrad567/gray-logic-rf/internal/rf/driver"
)

// Logger defines the logging interface used by the Registry.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Driver is the part of *driver.Driver the registry manages devices through.
type Driver interface {
	ID() string
	Add(dev driver.Device) error
	Delete(id string) error
	Device(id string) (driver.Device, bool)
}

// Registry caches devices and keeps the attached drivers in step with the
// repository.
type Registry struct {
	repo Repository

	cache   map[string]*Device // By key
	cacheMu sync.RWMutex

	drivers   map[string]Driver
	driversMu sync.RWMutex

	logger Logger
}

// NewRegistry creates a registry on repo.
func NewRegistry(repo Repository) *Registry {
	return &Registry{
		repo:    repo,
		cache:   make(map[string]*Device),
		drivers: make(map[string]Driver),
		logger:  noopLogger{},
	}
}

// SetLogger sets the logger for the registry.
func (r *Registry) SetLogger(logger Logger) {
	r.logger = logger
}

// RefreshCache reloads every device from the repository. Call it once at
// startup, before attaching drivers.
func (r *Registry) RefreshCache(ctx context.Context) error {
	devices, err := r.repo.List(ctx)
	if err != nil {
		return fmt.Errorf("loading devices: %w", err)
	}

	r.cacheMu.Lock()
	r.cache = make(map[string]*Device, len(devices))
	for i := range devices {
		d := devices[i]
		r.cache[d.Key()] = d.DeepCopy()
	}
	r.cacheMu.Unlock()

	r.logger.Info("device cache refreshed", "count", len(devices))
	return nil
}

// AttachDriver registers drv and adds its cached devices to it. A device
// the driver rejects is logged and skipped; it stays in the repository.
func (r *Registry) AttachDriver(_ context.Context, drv Driver) error {
	id := drv.ID()
	r.driversMu.Lock()
	if _, ok := r.drivers[id]; ok {
		r.driversMu.Unlock()
		return fmt.Errorf("device: driver %s already attached", id)
	}
	r.drivers[id] = drv
	r.driversMu.Unlock()

	loaded := 0
	for _, d := range r.ListByDriver(id) {
		if _, ok := drv.Device(d.ID); ok {
			continue
		}
		if err := drv.Add(d.DriverDevice()); err != nil {
			r.logger.Warn("skipping device", "driver", id, "device", d.ID, "error", err)
			continue
		}
		loaded++
	}

	r.logger.Info("driver attached", "driver", id, "devices", loaded)
	return nil
}

// DetachDriver forgets a driver. Its devices stay cached and persisted.
func (r *Registry) DetachDriver(id string) {
	r.driversMu.Lock()
	delete(r.drivers, id)
	r.driversMu.Unlock()
}

// Driver returns an attached driver.
func (r *Registry) Driver(id string) (Driver, bool) {
	r.driversMu.RLock()
	defer r.driversMu.RUnlock()
	drv, ok := r.drivers[id]
	return drv, ok
}

// GetDevice returns a copy of the device with the given key.
func (r *Registry) GetDevice(ctx context.Context, key string) (*Device, error) {
	driverID, id, err := SplitKey(key)
	if err != nil {
		return nil, err
	}

	r.cacheMu.RLock()
	cached, ok := r.cache[key]
	r.cacheMu.RUnlock()
	if ok {
		return cached.DeepCopy(), nil
	}

	d, err := r.repo.Get(ctx, driverID, id)
	if err != nil {
		return nil, err
	}
	r.cacheMu.Lock()
	r.cache[key] = d.DeepCopy()
	r.cacheMu.Unlock()
	return d, nil
}

// ListDevices returns copies of every cached device sorted by key.
func (r *Registry) ListDevices() []Device {
	r.cacheMu.RLock()
	devices := make([]Device, 0, len(r.cache))
	for _, d := range r.cache {
		devices = append(devices, *d.DeepCopy())
	}
	r.cacheMu.RUnlock()

	sortDevices(devices)
	return devices
}

// ListByDriver returns copies of one driver's cached devices sorted by id.
func (r *Registry) ListByDriver(driverID string) []Device {
	r.cacheMu.RLock()
	var devices []Device
	for _, d := range r.cache {
		if d.DriverID == driverID {
			devices = append(devices, *d.DeepCopy())
		}
	}
	r.cacheMu.RUnlock()

	sortDevices(devices)
	return devices
}

func sortDevices(devices []Device) {
	sort.Slice(devices, func(i, j int) bool { return devices[i].Key() < devices[j].Key() })
}

// CreateDevice validates and persists a device and binds it in its driver.
// A device the driver already holds, as after CommitPairing, is only
// persisted. If persisting fails the driver binding is undone.
func (r *Registry) CreateDevice(ctx context.Context, d *Device) error {
	if err := ValidateDevice(d); err != nil {
		return err
	}
	key := d.Key()

	r.cacheMu.RLock()
	_, exists := r.cache[key]
	r.cacheMu.RUnlock()
	if exists {
		return ErrDeviceExists
	}

	drv, ok := r.Driver(d.DriverID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrDriverNotFound, d.DriverID)
	}
	if _, bound := drv.Device(d.ID); !bound {
		if err := drv.Add(d.DriverDevice()); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidDevice, err)
		}
	}

	if err := r.repo.Create(ctx, d); err != nil {
		if derr := drv.Delete(d.ID); derr != nil && !errors.Is(derr, driver.ErrDeviceNotFound) {
			r.logger.Warn("rolling back driver device failed", "device", key, "error", derr)
		}
		return err
	}

	r.cacheMu.Lock()
	r.cache[key] = d.DeepCopy()
	r.cacheMu.Unlock()

	r.logger.Info("device created", "device", key, "name", d.Name)
	return nil
}

// RenameDevice changes a device's name.
func (r *Registry) RenameDevice(ctx context.Context, key, name string) (*Device, error) {
	if err := ValidateName(name); err != nil {
		return nil, err
	}
	d, err := r.GetDevice(ctx, key)
	if err != nil {
		return nil, err
	}
	d.Name = name
	if err := r.repo.Update(ctx, d); err != nil {
		return nil, err
	}

	r.cacheMu.Lock()
	r.cache[key] = d.DeepCopy()
	r.cacheMu.Unlock()

	r.logger.Info("device renamed", "device", key, "name", name)
	return d, nil
}

// DeleteDevice removes a device from the repository, the cache and its
// driver.
func (r *Registry) DeleteDevice(ctx context.Context, key string) error {
	driverID, id, err := SplitKey(key)
	if err != nil {
		return err
	}
	if err := r.repo.Delete(ctx, driverID, id); err != nil {
		return err
	}

	r.cacheMu.Lock()
	delete(r.cache, key)
	r.cacheMu.Unlock()

	if drv, ok := r.Driver(driverID); ok {
		if err := drv.Delete(id); err != nil && !errors.Is(err, driver.ErrDeviceNotFound) {
			r.logger.Warn("removing device from driver failed", "device", key, "error", err)
		}
	}

	r.logger.Info("device deleted", "device", key)
	return nil
}

// GetDeviceCount returns the number of cached devices.
func (r *Registry) GetDeviceCount() int {
	r.cacheMu.RLock()
	defer r.cacheMu.RUnlock()
	return len(r.cache)
}

// GetStats returns device counts.
func (r *Registry) GetStats() Stats {
	r.cacheMu.RLock()
	defer r.cacheMu.RUnlock()

	stats := Stats{Total: len(r.cache), ByDriver: make(map[string]int)}
	for _, d := range r.cache {
		stats.ByDriver[d.DriverID]++
	}
	return stats
}
