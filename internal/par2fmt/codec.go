package par2fmt

import (
	"bufio"
	"crypto/md5"
	"encoding/binary"
	"io"
)

// Packet is one decoded PAR2 packet: the header plus exactly one typed
// payload.
type Packet struct {
	Header           Header
	Main             *MainPacket
	Creator          *CreatorPacket
	FileDescription  *FileDescriptionPacket
	FileVerification *FileVerificationPacket
	Recovery         *RecoveryPacket
}

// Diagnostic reports a non-fatal condition encountered while scanning:
// a FormatError (spec §7) that causes the scanner to reject one candidate
// and resume searching, never aborting the whole load.
type Diagnostic func(offset int64, reason string)

// ReadAll scans r for every valid PAR2 packet, silently skipping anything
// that doesn't validate (spec §4.5 "Load": "reject silently on failure,
// advance one byte and keep scanning" — "silently" to the caller's data,
// but diag is still invoked so the logger can count FormatErrors, per
// spec §8 scenario e).
func ReadAll(r io.Reader, diag Diagnostic) []Packet {
	br := bufio.NewReaderSize(r, 1<<20)
	var out []Packet
	var offset int64

	for {
		skipped, err := findMagic(br)
		offset += skipped
		if err != nil {
			return out
		}
		start := offset
		offset += 8 // consumed magic

		pkt, consumed, ok := readPacketBody(br)
		offset += consumed
		if !ok {
			if diag != nil {
				diag(start, "packet failed header/body validation")
			}
			continue
		}
		out = append(out, pkt)
	}
}

// findMagic advances br past bytes until Magic is found at the current
// position (consuming it), returning the number of bytes skipped before
// the match. It returns io.EOF if Magic never appears.
func findMagic(br *bufio.Reader) (skipped int64, err error) {
	matched := 0
	for {
		b, err := br.ReadByte()
		if err != nil {
			return skipped, err
		}
		if b == Magic[matched] {
			matched++
			if matched == len(Magic) {
				return skipped, nil
			}
			continue
		}
		skipped += int64(matched) + 1
		// Allow overlap: the byte that broke the match might itself be
		// the start of a new match.
		matched = 0
		if b == Magic[0] {
			matched = 1
			skipped--
		}
	}
}

// readPacketBody reads the remainder of the header and the body for a
// packet whose magic has already been consumed, validating length and
// MD5. It returns how many bytes were consumed from br regardless of
// success, so the caller's offset tracking stays accurate.
func readPacketBody(br *bufio.Reader) (pkt Packet, consumed int64, ok bool) {
	rest := make([]byte, HeaderSize-8)
	n, err := io.ReadFull(br, rest)
	consumed += int64(n)
	if err != nil {
		return pkt, consumed, false
	}

	var full [HeaderSize]byte
	copy(full[0:8], Magic[:])
	copy(full[8:], rest)
	h := decodeHeader(full[:])

	if h.Length < HeaderSize || h.Length%4 != 0 {
		return pkt, consumed, false
	}
	bodyLen := h.BodyLength()
	if bodyLen > (1 << 34) { // sanity bound, real volumes never approach this
		return pkt, consumed, false
	}
	body := make([]byte, bodyLen)
	n2, err := io.ReadFull(br, body)
	consumed += int64(n2)
	if err != nil {
		return pkt, consumed, false
	}

	if packetMD5(h.SetID, h.Type, body) != h.MD5 {
		return pkt, consumed, false
	}

	pkt.Header = h
	switch h.Type {
	case TypeMain:
		m := decodeMainPacket(body)
		pkt.Main = &m
	case TypeCreator:
		c := decodeCreatorPacket(body)
		pkt.Creator = &c
	case TypeFileDescription:
		f := decodeFileDescriptionPacket(body)
		pkt.FileDescription = &f
	case TypeFileVerification:
		v := decodeFileVerificationPacket(body)
		pkt.FileVerification = &v
	case TypeRecovery:
		rp, valid := decodeRecoveryPacket(body)
		if !valid {
			return pkt, consumed, false
		}
		pkt.Recovery = &rp
	default:
		// Unknown packet kind: structurally valid (MD5 checks out) but
		// nothing this implementation understands; drop it quietly.
		return pkt, consumed, false
	}
	return pkt, consumed, true
}

// Emit writes one packet to w: the header's MD5 is computed over
// setID ∥ type ∥ padded body first, then the header is written,
// followed by the body.
func Emit(w io.Writer, setID [16]byte, typ Type, body []byte) error {
	body = padBody(body)
	h := Header{
		Length: int64(HeaderSize + len(body)),
		MD5:    packetMD5(setID, typ, body),
		SetID:  setID,
		Type:   typ,
	}
	var hdr [HeaderSize]byte
	encodeHeader(h, hdr[:])
	if _, err := w.Write(hdr[:]); err != nil {
		return err
	}
	_, err := w.Write(body)
	return err
}

// SetIDFromMain computes the Set ID: MD5 of the Main packet's body (spec
// §3 "Set ID" and §4.5 "Set ID is derived from the Main packet body before
// any packet is hashed").
func SetIDFromMain(m MainPacket) [16]byte {
	return md5.Sum(m.body())
}

// EmitMain, EmitCreator, etc. are thin wrappers fixing the type tag for
// each packet kind so callers (internal/creator) don't duplicate the
// Type constants.
func EmitMain(w io.Writer, setID [16]byte, p MainPacket) error {
	return Emit(w, setID, TypeMain, p.body())
}

func EmitCreator(w io.Writer, setID [16]byte, p CreatorPacket) error {
	return Emit(w, setID, TypeCreator, p.body())
}

func EmitFileDescription(w io.Writer, setID [16]byte, p FileDescriptionPacket) error {
	return Emit(w, setID, TypeFileDescription, p.body())
}

func EmitFileVerification(w io.Writer, setID [16]byte, p FileVerificationPacket) error {
	return Emit(w, setID, TypeFileVerification, p.body())
}

func EmitRecovery(w io.Writer, setID [16]byte, p RecoveryPacket) error {
	return Emit(w, setID, TypeRecovery, p.body())
}

// FileID computes spec §3's file_id = MD5(16KiB-MD5 ∥ length ∥ name).
func FileID(md5_16k [16]byte, length uint64, name string) [16]byte {
	buf := make([]byte, 16+8+len(name))
	copy(buf[0:16], md5_16k[:])
	binary.LittleEndian.PutUint64(buf[16:24], length)
	copy(buf[24:], name)
	return md5.Sum(buf)
}
