// Package par2fmt implements C5: parsing and emitting the PAR2 packet
// wire format (spec §3 "Packet header", §4.5). It is grounded on
// let4be-gonzbee's par2.go packet reader (same magic-scan-and-verify
// technique) generalized to also emit packets, and on the on-disk layout
// documented in original_source/datablock.cpp / par2cmdline.h.
package par2fmt

import (
	"bytes"
	"crypto/md5"
	"encoding/binary"
)

// Magic is the 8-byte marker every packet starts with.
var Magic = [8]byte{'P', 'A', 'R', '2', 0, 'P', 'K', 'T'}

// HeaderSize is the fixed length of a packet header, in bytes (spec §3
// table: 8 + 8 + 16 + 16 + 16 = 64).
const HeaderSize = 64

// Type is a 16-byte, NUL-padded ASCII packet-type tag.
type Type [16]byte

// Packet-kind tags (spec §4.5 table), ASCII NUL-padded to 16 bytes.
var (
	TypeMain             = mustType("PAR 2.0\x00Main\x00\x00\x00\x00")
	TypeCreator          = mustType("PAR 2.0\x00Creator\x00")
	TypeFileDescription  = mustType("PAR 2.0\x00FileDesc")
	TypeFileVerification = mustType("PAR 2.0\x00IFSC\x00\x00\x00\x00")
	TypeRecovery         = mustType("PAR 2.0\x00RecvSlic")
)

func mustType(s string) Type {
	if len(s) != 16 {
		panic("par2fmt: type tag must be 16 bytes: " + s)
	}
	var t Type
	copy(t[:], s)
	return t
}

// Header is the fixed portion of every packet, as read from or about to be
// written to disk (spec §3 table; all integers little-endian).
type Header struct {
	Length int64    // total packet length including the header, multiple of 4
	MD5    [16]byte // MD5 of everything after this field, up to packet end
	SetID  [16]byte
	Type   Type
}

// BodyLength returns the length of the packet body (total length minus the
// fixed header).
func (h Header) BodyLength() int64 { return h.Length - HeaderSize }

// encodeHeader writes a fully-formed header (with hash already computed)
// into buf, which must be at least HeaderSize bytes.
func encodeHeader(h Header, buf []byte) {
	copy(buf[0:8], Magic[:])
	binary.LittleEndian.PutUint64(buf[8:16], uint64(h.Length))
	copy(buf[16:32], h.MD5[:])
	copy(buf[32:48], h.SetID[:])
	copy(buf[48:64], h.Type[:])
}

// decodeHeader reads a Header from a HeaderSize-byte buffer already known
// to start with Magic.
func decodeHeader(buf []byte) Header {
	var h Header
	h.Length = int64(binary.LittleEndian.Uint64(buf[8:16]))
	copy(h.MD5[:], buf[16:32])
	copy(h.SetID[:], buf[32:48])
	copy(h.Type[:], buf[48:64])
	return h
}

// packetMD5 computes the header's MD5 field: the hash of setID ∥ type ∥
// body (spec §4.5 "Emit").
func packetMD5(setID [16]byte, typ Type, body []byte) [16]byte {
	h := md5.New()
	h.Write(setID[:])
	h.Write(typ[:])
	h.Write(body)
	var sum [16]byte
	copy(sum[:], h.Sum(nil))
	return sum
}

// padBody pads body with zero bytes so its length, plus HeaderSize, is a
// multiple of 4.
func padBody(body []byte) []byte {
	total := HeaderSize + len(body)
	if rem := total % 4; rem != 0 {
		body = append(body, make([]byte, 4-rem)...)
	}
	return body
}

func trimNulString(b []byte) string {
	return string(bytes.TrimRight(b, "\x00"))
}

func padString(s string, width int) []byte {
	b := make([]byte, width)
	copy(b, s)
	return b
}
