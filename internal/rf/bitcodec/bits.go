package bitcodec

import (
	"crypto/rand"
	"fmt"
	"strings"
)

// maxIntegerBits is the widest slice ToInteger can represent.
const maxIntegerBits = 64

// Bits is a frame or frame slice. Each element must be 0 or 1.
type Bits []uint8

// String returns the textual form, mapping any non-zero element to '1'.
// Use Format when invalid elements must be reported.
func (b Bits) String() string {
	var sb strings.Builder
	sb.Grow(len(b))
	for _, v := range b {
		if v == 0 {
			sb.WriteByte('0')
		} else {
			sb.WriteByte('1')
		}
	}
	return sb.String()
}

// Slice returns a copy of b[from:to]. Out-of-range bounds are clamped.
func (b Bits) Slice(from, to int) Bits {
	if from < 0 {
		from = 0
	}
	if to > len(b) {
		to = len(b)
	}
	if from >= to {
		return Bits{}
	}
	out := make(Bits, to-from)
	copy(out, b[from:to])
	return out
}

// Clone returns an independent copy of b.
func (b Bits) Clone() Bits {
	if b == nil {
		return nil
	}
	out := make(Bits, len(b))
	copy(out, b)
	return out
}

// Equal reports whether a and b hold the same values.
func (b Bits) Equal(other Bits) bool {
	if len(b) != len(other) {
		return false
	}
	for i := range b {
		if b[i] != other[i] {
			return false
		}
	}
	return true
}

// Format joins bits into an address string.
//
// Returns:
//   - string: best-effort text (invalid elements rendered as '1')
//   - error: ErrInvalidBit naming the first offending index
func Format(bits Bits) (string, error) {
	for i, v := range bits {
		if v > 1 {
			return bits.String(), fmt.Errorf("%w: element %d is %d", ErrInvalidBit, i, v)
		}
	}
	return bits.String(), nil
}

// Parse converts an address string back into bits.
//
// Returns:
//   - Bits: best-effort bits (any other digit becomes 1, other characters 0)
//   - error: ErrInvalidBit naming the first offending character
func Parse(s string) (Bits, error) {
	out := make(Bits, len(s))
	var firstErr error
	for i := 0; i < len(s); i++ {
		switch c := s[i]; {
		case c == '0':
			out[i] = 0
		case c == '1':
			out[i] = 1
		default:
			if c >= '2' && c <= '9' {
				out[i] = 1
			}
			if firstErr == nil {
				firstErr = fmt.Errorf("%w: character %q at %d", ErrInvalidBit, c, i)
			}
		}
	}
	return out, firstErr
}

// ToInteger interprets bits as a big-endian unsigned integer.
// Slices wider than 64 bits keep only the low-order 64.
func ToInteger(bits Bits) (uint64, error) {
	var n uint64
	var firstErr error
	for i, v := range bits {
		if v > 1 && firstErr == nil {
			firstErr = fmt.Errorf("%w: element %d is %d", ErrInvalidBit, i, v)
		}
		n <<= 1
		if v != 0 {
			n |= 1
		}
	}
	if len(bits) > maxIntegerBits && firstErr == nil {
		firstErr = fmt.Errorf("%w: %d bits overflow uint64", ErrInvalidNumber, len(bits))
	}
	return n, firstErr
}

// FromInteger encodes n into exactly length bits, keeping the low-order
// bits and zero-padding on the left.
func FromInteger(n int64, length int) (Bits, error) {
	if length < 0 {
		return Bits{}, fmt.Errorf("%w: negative length %d", ErrInvalidNumber, length)
	}
	out := make(Bits, length)
	if n < 0 {
		return out, fmt.Errorf("%w: %d is negative", ErrInvalidNumber, n)
	}
	u := uint64(n)
	for i := length - 1; i >= 0 && u > 0; i-- {
		out[i] = uint8(u & 1)
		u >>= 1
	}
	return out, nil
}

// XOR returns the element-wise exclusive or of a and b. On a length
// mismatch the result covers the shorter operand.
func XOR(a, b Bits) (Bits, error) {
	n := min(len(a), len(b))
	out := make(Bits, n)
	var firstErr error
	if len(a) != len(b) {
		firstErr = fmt.Errorf("%w: %d != %d", ErrLengthMismatch, len(a), len(b))
	}
	for i := 0; i < n; i++ {
		if (a[i] > 1 || b[i] > 1) && firstErr == nil {
			firstErr = fmt.Errorf("%w: element %d", ErrInvalidBit, i)
		}
		out[i] = normalise(a[i]) ^ normalise(b[i])
	}
	return out, firstErr
}

// Random returns length uniformly random bits. It is used to generate
// addresses for devices created without a physical remote.
func Random(length int) Bits {
	if length <= 0 {
		return Bits{}
	}
	buf := make([]byte, length)
	_, _ = rand.Read(buf)
	out := make(Bits, length)
	for i, v := range buf {
		out[i] = v & 1
	}
	return out
}

func normalise(v uint8) uint8 {
	if v != 0 {
		return 1
	}
	return 0
}
