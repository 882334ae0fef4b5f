package device

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Repository defines device persistence. Implementations must be safe for
// concurrent use.
type Repository interface {
	// Get returns ErrDeviceNotFound if the device does not exist.
	Get(ctx context.Context, driverID, id string) (*Device, error)

	List(ctx context.Context) ([]Device, error)
	ListByDriver(ctx context.Context, driverID string) ([]Device, error)

	// Create returns ErrDeviceExists when the key is taken.
	Create(ctx context.Context, device *Device) error

	// Update returns ErrDeviceNotFound if the device does not exist.
	Update(ctx context.Context, device *Device) error

	// Delete returns ErrDeviceNotFound if the device does not exist.
	Delete(ctx context.Context, driverID, id string) error
}

// SQLiteRepository implements Repository on the rf_devices table.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a repository on an open SQLite connection.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

const selectColumns = `
	SELECT driver_id, id, uuid, unit, name, on_addresses, off_addresses, data,
		created_at, updated_at
	FROM rf_devices`

// Get retrieves one device.
func (r *SQLiteRepository) Get(ctx context.Context, driverID, id string) (*Device, error) {
	row := r.db.QueryRowContext(ctx, selectColumns+` WHERE driver_id = ? AND id = ?`, driverID, id)
	d, err := scanDevice(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrDeviceNotFound
		}
		return nil, fmt.Errorf("querying device: %w", err)
	}
	return d, nil
}

// List retrieves every device ordered by driver and id.
func (r *SQLiteRepository) List(ctx context.Context) ([]Device, error) {
	return r.queryDevices(ctx, selectColumns+` ORDER BY driver_id, id`)
}

// ListByDriver retrieves the devices of one driver.
func (r *SQLiteRepository) ListByDriver(ctx context.Context, driverID string) ([]Device, error) {
	return r.queryDevices(ctx, selectColumns+` WHERE driver_id = ? ORDER BY id`, driverID)
}

// Create inserts a device, stamping CreatedAt and UpdatedAt.
func (r *SQLiteRepository) Create(ctx context.Context, device *Device) error {
	onJSON, offJSON, dataJSON, err := marshalColumns(device)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	if device.CreatedAt.IsZero() {
		device.CreatedAt = now
	}
	device.UpdatedAt = now

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO rf_devices (
			driver_id, id, uuid, unit, name, on_addresses, off_addresses, data,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		device.DriverID,
		device.ID,
		device.UUID,
		device.Unit,
		device.Name,
		onJSON,
		offJSON,
		dataJSON,
		device.CreatedAt.Format(time.RFC3339),
		device.UpdatedAt.Format(time.RFC3339),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return ErrDeviceExists
		}
		return fmt.Errorf("inserting device: %w", err)
	}
	return nil
}

// Update rewrites a device's mutable columns.
func (r *SQLiteRepository) Update(ctx context.Context, device *Device) error {
	onJSON, offJSON, dataJSON, err := marshalColumns(device)
	if err != nil {
		return err
	}
	device.UpdatedAt = time.Now().UTC()

	result, err := r.db.ExecContext(ctx, `
		UPDATE rf_devices
		SET uuid = ?, unit = ?, name = ?, on_addresses = ?, off_addresses = ?,
			data = ?, updated_at = ?
		WHERE driver_id = ? AND id = ?`,
		device.UUID,
		device.Unit,
		device.Name,
		onJSON,
		offJSON,
		dataJSON,
		device.UpdatedAt.Format(time.RFC3339),
		device.DriverID,
		device.ID,
	)
	if err != nil {
		return fmt.Errorf("updating device: %w", err)
	}
	return requireRow(result)
}

// Delete removes a device.
func (r *SQLiteRepository) Delete(ctx context.Context, driverID, id string) error {
	result, err := r.db.ExecContext(ctx, "DELETE FROM rf_devices WHERE driver_id = ? AND id = ?", driverID, id)
	if err != nil {
		return fmt.Errorf("deleting device: %w", err)
	}
	return requireRow(result)
}

func requireRow(result sql.Result) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if n == 0 {
		return ErrDeviceNotFound
	}
	return nil
}

func marshalColumns(d *Device) (onJSON, offJSON, dataJSON string, err error) {
	on, err := json.Marshal(nonNil(d.On))
	if err != nil {
		return "", "", "", fmt.Errorf("marshalling on addresses: %w", err)
	}
	off, err := json.Marshal(nonNil(d.Off))
	if err != nil {
		return "", "", "", fmt.Errorf("marshalling off addresses: %w", err)
	}
	data := d.Data
	if data == nil {
		data = map[string]any{}
	}
	dataBytes, err := json.Marshal(data)
	if err != nil {
		return "", "", "", fmt.Errorf("marshalling data: %w", err)
	}
	return string(on), string(off), string(dataBytes), nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func (r *SQLiteRepository) queryDevices(ctx context.Context, query string, args ...any) ([]Device, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying devices: %w", err)
	}
	defer rows.Close()

	var devices []Device
	for rows.Next() {
		d, err := scanDevice(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning device: %w", err)
		}
		devices = append(devices, *d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating devices: %w", err)
	}
	return devices, nil
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanDevice(scanner rowScanner) (*Device, error) {
	var d Device
	var onJSON, offJSON, dataJSON string
	var createdAt, updatedAt string

	if err := scanner.Scan(
		&d.DriverID,
		&d.ID,
		&d.UUID,
		&d.Unit,
		&d.Name,
		&onJSON,
		&offJSON,
		&dataJSON,
		&createdAt,
		&updatedAt,
	); err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(onJSON), &d.On); err != nil {
		return nil, fmt.Errorf("unmarshalling on addresses: %w", err)
	}
	if err := json.Unmarshal([]byte(offJSON), &d.Off); err != nil {
		return nil, fmt.Errorf("unmarshalling off addresses: %w", err)
	}
	if err := json.Unmarshal([]byte(dataJSON), &d.Data); err != nil {
		return nil, fmt.Errorf("unmarshalling data: %w", err)
	}
	if len(d.Data) == 0 {
		d.Data = nil
	}

	d.CreatedAt, _ = time.Parse(time.RFC3339, createdAt) //nolint:errcheck // Written by Create
	d.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt) //nolint:errcheck // Written by Create/Update
	return &d, nil
}

// isUniqueConstraintError reports a SQLite primary key or unique violation.
func isUniqueConstraintError(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "PRIMARY KEY constraint failed")
}
