package bitcodec

// Logger receives codec failures. *logging.Logger satisfies it.
type Logger interface {
	Warn(msg string, keysAndValues ...any)
}

type noopLogger struct{}

func (noopLogger) Warn(string, ...any) {}

// Codec applies the log-and-continue policy on top of the strict functions.
// Every method returns best-effort output and never an error, so a corrupt
// frame degrades one decode rather than the whole receive path.
//
// A Codec is stateless apart from its logger and safe for concurrent use.
type Codec struct {
	logger Logger
}

// NewCodec returns a Codec that reports failures to logger. A nil logger
// discards them.
func NewCodec(logger Logger) *Codec {
	if logger == nil {
		logger = noopLogger{}
	}
	return &Codec{logger: logger}
}

// Format returns the address string for bits.
func (c *Codec) Format(bits Bits) string {
	s, err := Format(bits)
	c.report("format", err)
	return s
}

// Parse returns the bits for an address string.
func (c *Codec) Parse(s string) Bits {
	bits, err := Parse(s)
	c.report("parse", err)
	return bits
}

// ToInteger returns the big-endian value of bits.
func (c *Codec) ToInteger(bits Bits) uint64 {
	n, err := ToInteger(bits)
	c.report("to_integer", err)
	return n
}

// FromInteger returns n as length bits.
func (c *Codec) FromInteger(n int64, length int) Bits {
	bits, err := FromInteger(n, length)
	c.report("from_integer", err)
	return bits
}

// XOR returns the element-wise exclusive or of a and b.
func (c *Codec) XOR(a, b Bits) Bits {
	out, err := XOR(a, b)
	c.report("xor", err)
	return out
}

func (c *Codec) report(op string, err error) {
	if err != nil {
		c.logger.Warn("bit codec error, continuing with best-effort output", "op", op, "error", err)
	}
}
