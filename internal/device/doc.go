// Package device persists paired RF devices and loads them into drivers.
//
// A device is identified by the driver that owns it and the driver-level id
// ("uuid" or "uuid:unit" depending on the frame layout). Outside the driver
// it is referred to by its key, "{driver}:{id}", which is what MQTT topics
// and API paths carry.
//
// # Layers
//
//	Registry ──▶ Repository (SQLite, rf_devices)
//	   │
//	   └──▶ attached drivers (Add / Delete)
//
// The Registry caches every device in memory. RefreshCache loads the table
// at startup, and AttachDriver binds the cached devices of one driver so
// they can be sent to and recognised on receive. Creating or deleting a
// device through the Registry updates the table, the cache and the driver
// together.
//
// # Usage
//
//	repo := device.NewSQLiteRepository(db.DB)
//	registry := device.NewRegistry(repo)
//	registry.SetLogger(log)
//	if err := registry.RefreshCache(ctx); err != nil {
//	    return err
//	}
//	if err := registry.AttachDriver(ctx, drv); err != nil {
//	    return err
//	}
//
// The Registry is safe for concurrent use.
package device
