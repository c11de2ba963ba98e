// Package digest implements C4: streaming MD5, and a CRC-32 (PKZIP/IEEE
// polynomial) that supports both whole-buffer checksums and an O(1)
// sliding-window update, which the scanner (internal/scanner) uses to walk
// a block-sized window one byte at a time without re-hashing it.
package digest

import (
	"crypto/md5"
	"hash"

	"github.com/klauspost/crc32"
)

// MD5Size is the length in bytes of an MD5 digest.
const MD5Size = md5.Size

// NewMD5 returns a fresh streaming MD5 hasher (RFC 1321), the same one used
// for full-file, 16KiB-prefix, and per-block hashes (spec §4.4).
func NewMD5() hash.Hash { return md5.New() }

// SumMD5 hashes buf in one call.
func SumMD5(buf []byte) [16]byte { return md5.Sum(buf) }

// IEEETable is the standard PKZIP/IEEE 802.3 CRC-32 table
// (polynomial 0xEDB88320 reflected), built once via klauspost/crc32's
// hardware-accelerated table constructor.
var IEEETable = crc32.MakeTable(crc32.IEEE)

// ChecksumIEEE returns the CRC-32 of buf.
func ChecksumIEEE(buf []byte) uint32 { return crc32.Checksum(buf, IEEETable) }

// SlidingCRC maintains a rolling CRC-32 over a fixed-width window,
// advancing one byte at a time in O(1) rather than re-hashing the window
// (spec §4.4 "Sliding window of length W").
//
// The reflected CRC-32 byte-update `table[(s^b)&0xff] ^ (s>>8)` is an
// F2-linear function of the pair (s, b): since table[0] = 0 and the
// table itself is built by a purely XOR/shift process, it satisfies
// table[x^y] = table[x] ^ table[y]. Writing A(s) = table[s&0xff] ^
// (s>>8) (the effect of folding in a zero byte) and B(b) = table[b],
// the update is T(s, b) = A(s) ^ B(b). Unrolling W steps from register
// 0 gives the window's raw digest as a sum of A^{W-1-t}(B(b_t)) terms;
// shifting the window by one byte (dropping b_out, appending b_in) is
// then exactly:
//
//	raw' = A(raw) ^ A^W(B(b_out)) ^ B(b_in)
//
// which only needs the one-step operator A, a precomputed cancel table
// holding A^W(B(b)) per possible outgoing byte, and the ordinary
// per-byte table for the incoming byte. Reset/Value translate between
// this raw (register-starts-at-zero) digest and the public, klauspost/
// crc32-compatible checksum, which differ by a fixed per-width constant
// contributed by CRC-32's 0xFFFFFFFF init/final XOR.
type SlidingCRC struct {
	width  int
	raw    uint32
	offset uint32 // public_checksum(window) ^ raw(window), constant for a fixed width
	cancel *[256]uint32
	table  *[256]uint32
}

// NewSlidingCRC builds a sliding-window CRC machine for windows of the
// given width (the PAR2 block size).
func NewSlidingCRC(width int) *SlidingCRC {
	s := &SlidingCRC{width: width, table: &[256]uint32{}}
	copy(s.table[:], IEEETable[:])
	s.cancel = buildCancelTable(width, s.table)
	s.offset = applyZeroBytes(0xFFFFFFFF, width, s.table) ^ 0xFFFFFFFF
	return s
}

// Reset sets the current window's CRC to crc, e.g. the checksum of the
// initial window computed via ChecksumIEEE.
func (s *SlidingCRC) Reset(crc uint32) { s.raw = crc ^ s.offset }

// Value returns the current rolling CRC, directly comparable to
// ChecksumIEEE's output for the same bytes.
func (s *SlidingCRC) Value() uint32 { return s.raw ^ s.offset }

// Roll advances the window by one byte: byteOut leaves the front, byteIn
// enters at the back.
func (s *SlidingCRC) Roll(byteOut, byteIn byte) {
	s.raw = zeroByteStep(s.raw, s.table) ^ s.cancel[byteOut] ^ s.table[byteIn]
}

// zeroByteStep applies the per-byte CRC update as if folding in a zero
// byte: table[s&0xff] ^ (s>>8). This is the "A" operator the sliding
// window recurrence is built from.
func zeroByteStep(s uint32, table *[256]uint32) uint32 {
	return table[byte(s)] ^ (s >> 8)
}

func applyZeroBytes(s uint32, n int, table *[256]uint32) uint32 {
	for i := 0; i < n; i++ {
		s = zeroByteStep(s, table)
	}
	return s
}

// buildCancelTable constructs the 256-entry table holding, for every
// possible outgoing byte b, A^width(table[b]): the contribution that
// byte would still carry after `width` more zero-byte steps, which
// Roll XORs away when that byte leaves the window.
func buildCancelTable(width int, table *[256]uint32) *[256]uint32 {
	var t [256]uint32
	for b := 0; b < 256; b++ {
		t[b] = applyZeroBytes(table[b], width, table)
	}
	return &t
}
