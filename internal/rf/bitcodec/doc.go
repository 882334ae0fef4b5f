// Package bitcodec converts between radio frames and their textual,
// integer and sliced representations.
//
// A frame is a fixed-length sequence of single-bit values. Addresses are
// stored and compared in their string form ("0101..."), so the codec is the
// only place that knows how a bit slice maps to text.
//
// Two flavours are provided:
//
//   - Strict package functions (Format, Parse, ToInteger, FromInteger, XOR)
//     that return ErrInvalidBit, ErrInvalidNumber or ErrLengthMismatch.
//   - A Codec value that wraps them with a logger. Radio input is noisy, so
//     the Codec logs the failure and returns best-effort output instead of
//     aborting frame processing.
package bitcodec
