package transceiver

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/nerrad567/gray-logic-rf/internal/rf/bitcodec"
)

// Command verbs understood by the daemon.
const (
	VerbStart = "START"
	VerbStop  = "STOP"
	VerbTx    = "TX"
	VerbPing  = "PING"
)

// Reply keywords sent by the daemon.
const (
	replyOK      = "OK"
	replyErr     = "ERR"
	replyReceive = "RX"
)

// LineKind classifies an inbound line.
type LineKind int

const (
	// LineReply is a successful command reply.
	LineReply LineKind = iota
	// LineError is a failed command reply.
	LineError
	// LineReceive is an unsolicited received frame.
	LineReceive
)

// Line is a parsed inbound line.
type Line struct {
	Kind   LineKind
	Seq    uint64
	Signal string
	Bits   bitcodec.Bits
	Text   string
}

// EncodeCommand formats one command line, including the trailing newline.
// bits is only used by TX.
func EncodeCommand(seq uint64, verb, signal string, bits bitcodec.Bits) string {
	var b strings.Builder
	b.WriteString(strconv.FormatUint(seq, 10))
	b.WriteByte(' ')
	b.WriteString(verb)
	if signal != "" {
		b.WriteByte(' ')
		b.WriteString(signal)
	}
	if verb == VerbTx {
		b.WriteByte(' ')
		b.WriteString(bits.String())
	}
	b.WriteByte('\n')
	return b.String()
}

// ParseLine parses one inbound line without its newline.
func ParseLine(s string) (Line, error) {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return Line{}, fmt.Errorf("%w: empty", ErrInvalidLine)
	}

	if fields[0] == replyReceive {
		if len(fields) != 3 {
			return Line{}, fmt.Errorf("%w: %q", ErrInvalidLine, s)
		}
		bits, err := bitcodec.Parse(fields[2])
		if err != nil {
			return Line{}, fmt.Errorf("%w: %w", ErrInvalidLine, err)
		}
		return Line{Kind: LineReceive, Signal: fields[1], Bits: bits}, nil
	}

	if len(fields) < 2 {
		return Line{}, fmt.Errorf("%w: %q", ErrInvalidLine, s)
	}
	seq, err := strconv.ParseUint(fields[0], 10, 64)
	if err != nil {
		return Line{}, fmt.Errorf("%w: bad sequence %q", ErrInvalidLine, fields[0])
	}

	switch fields[1] {
	case replyOK:
		return Line{Kind: LineReply, Seq: seq}, nil
	case replyErr:
		return Line{Kind: LineError, Seq: seq, Text: strings.Join(fields[2:], " ")}, nil
	default:
		return Line{}, fmt.Errorf("%w: unknown reply %q", ErrInvalidLine, fields[1])
	}
}
