// Package par1 recognizes legacy PAR1 volumes well enough to tell a
// user what they're looking at. PAR1 predates the packet-based PAR2
// format this tool implements: no PAR1 material exists in this
// implementation's grounding corpus, so rather than guess at the wire
// layout, this package limits itself to magic-byte detection and a
// clear refusal to attempt repair — full PAR1 reconstruction would use
// internal/gf16's GF8 field, kept there for exactly this purpose if
// someone later adds a real PAR1 parser.
package par1

import (
	"bytes"
	"errors"
	"io"
)

// Magic is the 4-byte signature ("PAR\x00") that opens every PAR1 file.
var Magic = [4]byte{'P', 'A', 'R', 0}

// ErrLegacyFormat is the refusal error for a PAR1 volume. No verify or
// repair path in this tool calls IsPAR1 or Sniff or returns this error;
// a PAR1 volume given to them simply yields no PAR2 packets.
var ErrLegacyFormat = errors.New("par1: legacy PAR1 volume detected; recreate the recovery set in PAR2 format before verifying or repairing")

// IsPAR1 reports whether data begins with the PAR1 signature.
func IsPAR1(data []byte) bool {
	return len(data) >= len(Magic) && bytes.Equal(data[:len(Magic)], Magic[:])
}

// Sniff reads the first len(Magic) bytes of r to tell PAR1 from
// PAR2/garbage. It reads r directly, so those bytes are consumed from r.
func Sniff(r io.Reader) (isPAR1 bool, err error) {
	buf := make([]byte, len(Magic))
	n, err := io.ReadFull(r, buf)
	if err != nil && err != io.ErrUnexpectedEOF {
		return false, err
	}
	return IsPAR1(buf[:n]), nil
}
