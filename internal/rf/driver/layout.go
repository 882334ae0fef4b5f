package driver

import (
	"fmt"
	"strings"
)

// Range is a half-open bit slice [From, To).
type Range struct {
	From int `json:"from"`
	To   int `json:"to"`
}

// Len returns the width of the range.
func (r Range) Len() int { return r.To - r.From }

// Layout describes where the sub-fields sit in a frame for one protocol
// variant.
type Layout struct {
	Variant     string `json:"variant"`
	FrameLength int    `json:"frame_length"`
	Address     Range  `json:"address"`
	Unit        Range  `json:"unit"`

	// PerUnit gives each unit of a remote its own device id ("uuid:unit").
	// When false the whole remote is one device identified by its uuid.
	PerUnit bool `json:"per_unit"`
}

// Registered variants.
const (
	VariantCotech       = "cotech"
	VariantCotechRemote = "cotech_remote"
)

var layouts = map[string]Layout{
	VariantCotech: {
		Variant:     VariantCotech,
		FrameLength: 32,
		Address:     Range{From: 0, To: 28},
		Unit:        Range{From: 28, To: 32},
		PerUnit:     true,
	},
	VariantCotechRemote: {
		Variant:     VariantCotechRemote,
		FrameLength: 32,
		Address:     Range{From: 0, To: 28},
		Unit:        Range{From: 28, To: 32},
		PerUnit:     false,
	},
}

// LayoutFor returns the layout registered for variant.
func LayoutFor(variant string) (Layout, error) {
	l, ok := layouts[variant]
	if !ok {
		return Layout{}, fmt.Errorf("%w: %q", ErrUnknownVariant, variant)
	}
	return l, nil
}

// Variants lists the registered variant names.
func Variants() []string {
	return []string{VariantCotech, VariantCotechRemote}
}

// WithWidths returns a copy of l with the address at [0, addressBits) and
// the unit immediately after it. Zero widths keep the current value.
func (l Layout) WithWidths(addressBits, unitBits int) Layout {
	if addressBits <= 0 {
		addressBits = l.Address.Len()
	}
	if unitBits <= 0 {
		unitBits = l.Unit.Len()
	}
	l.Address = Range{From: 0, To: addressBits}
	l.Unit = Range{From: addressBits, To: addressBits + unitBits}
	l.FrameLength = addressBits + unitBits
	return l
}

// Validate checks that both slices are non-empty and inside the frame.
func (l Layout) Validate() error {
	for name, r := range map[string]Range{"address": l.Address, "unit": l.Unit} {
		if r.From < 0 || r.Len() <= 0 || r.To > l.FrameLength {
			return fmt.Errorf("%w: %s range [%d,%d) in %d-bit frame",
				ErrInvalidLayout, name, r.From, r.To, l.FrameLength)
		}
	}
	return nil
}

// DeviceID returns the logical device id for a resolved frame.
func (l Layout) DeviceID(uuid, unit string) string {
	if l.PerUnit {
		return uuid + ":" + unit
	}
	return uuid
}

// SplitID is the inverse of DeviceID. For per-unit layouts unit is empty
// when id has no unit suffix.
func (l Layout) SplitID(id string) (uuid, unit string) {
	if !l.PerUnit {
		return id, ""
	}
	i := strings.LastIndex(id, ":")
	if i < 0 {
		return id, ""
	}
	return id[:i], id[i+1:]
}
