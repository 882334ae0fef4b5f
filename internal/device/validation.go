package device

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// Validation limits.
const (
	maxNameLength    = 100
	maxAddresses     = 64 // Per polarity
	maxAddressLength = 256
	maxDataKeys      = 50
)

// ValidateDevice checks a device before it is persisted.
func ValidateDevice(d *Device) error {
	if d == nil {
		return fmt.Errorf("%w: nil device", ErrInvalidDevice)
	}
	if d.DriverID == "" || strings.Contains(d.DriverID, keySeparator) {
		return fmt.Errorf("%w: driver id %q", ErrInvalidDevice, d.DriverID)
	}
	if d.ID == "" || d.UUID == "" {
		return fmt.Errorf("%w: id and uuid are required", ErrInvalidDevice)
	}
	if strings.ContainsAny(d.ID, "/+#") {
		return fmt.Errorf("%w: id %q contains a topic separator", ErrInvalidDevice, d.ID)
	}
	if err := ValidateName(d.Name); err != nil {
		return err
	}
	if len(d.On) == 0 || len(d.Off) == 0 {
		return fmt.Errorf("%w: on and off addresses are required", ErrInvalidAddress)
	}
	for _, list := range [][]string{d.On, d.Off} {
		if len(list) > maxAddresses {
			return fmt.Errorf("%w: more than %d addresses", ErrInvalidAddress, maxAddresses)
		}
		for _, addr := range list {
			if !isBitString(addr) {
				return fmt.Errorf("%w: %q", ErrInvalidAddress, addr)
			}
		}
	}
	if d.Unit != "" && !isBitString(d.Unit) {
		return fmt.Errorf("%w: unit %q", ErrInvalidDevice, d.Unit)
	}
	if len(d.Data) > maxDataKeys {
		return fmt.Errorf("%w: data has more than %d keys", ErrInvalidDevice, maxDataKeys)
	}
	return nil
}

// ValidateName checks a device name.
func ValidateName(name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidName)
	}
	if utf8.RuneCountInString(name) > maxNameLength {
		return fmt.Errorf("%w: name exceeds %d characters", ErrInvalidName, maxNameLength)
	}
	return nil
}

func isBitString(s string) bool {
	if s == "" || len(s) > maxAddressLength {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] != '0' && s[i] != '1' {
			return false
		}
	}
	return true
}
