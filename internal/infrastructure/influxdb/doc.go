// Package influxdb records RF traffic as InfluxDB time series.
//
// It wraps the official influxdb-client-go v2 library with connection
// management, batched non-blocking writes and health monitoring.
//
// # Measurements
//
//	rf_frames  one point per received or transmitted frame
//	           tags: driver, signal, direction, device (when known)
//	           fields: payload, unit, state
//	rf_state   one point per device state change
//	           tags: driver, device
//	           fields: on
//
// # Usage
//
//	client, err := influxdb.Connect(cfg.InfluxDB)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	client.WriteFrame(influxdb.FramePoint{DriverID: "cotech", Signal: "433", ...})
//
// Writes are batched per the batch_size and flush_interval settings. Async
// write failures are delivered through SetOnError.
package influxdb
