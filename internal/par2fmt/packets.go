package par2fmt

import "encoding/binary"

// MainPacket lists the slice size and the ordered file IDs of a recovery
// set, split into recoverable and non-recoverable (spec §3 "Main").
type MainPacket struct {
	SliceSize           uint64
	RecoverableFileIDs  [][16]byte
	NonRecoverableIDs   [][16]byte
}

func (p MainPacket) body() []byte {
	n := len(p.RecoverableFileIDs)
	m := len(p.NonRecoverableIDs)
	buf := make([]byte, 8+4+16*n+16*m)
	binary.LittleEndian.PutUint64(buf[0:8], p.SliceSize)
	binary.LittleEndian.PutUint32(buf[8:12], uint32(n))
	off := 12
	for _, id := range p.RecoverableFileIDs {
		copy(buf[off:off+16], id[:])
		off += 16
	}
	for _, id := range p.NonRecoverableIDs {
		copy(buf[off:off+16], id[:])
		off += 16
	}
	return buf
}

func decodeMainPacket(body []byte) MainPacket {
	var p MainPacket
	p.SliceSize = binary.LittleEndian.Uint64(body[0:8])
	n := binary.LittleEndian.Uint32(body[8:12])
	off := 12
	for i := uint32(0); i < n && off+16 <= len(body); i++ {
		var id [16]byte
		copy(id[:], body[off:off+16])
		p.RecoverableFileIDs = append(p.RecoverableFileIDs, id)
		off += 16
	}
	for off+16 <= len(body) {
		var id [16]byte
		copy(id[:], body[off:off+16])
		p.NonRecoverableIDs = append(p.NonRecoverableIDs, id)
		off += 16
	}
	return p
}

// CreatorPacket carries a UTF-8 client identifier string (spec §3
// "Creator").
type CreatorPacket struct {
	ClientID string
}

func (p CreatorPacket) body() []byte { return []byte(p.ClientID) }

func decodeCreatorPacket(body []byte) CreatorPacket {
	return CreatorPacket{ClientID: trimNulString(body)}
}

// FileDescriptionPacket identifies one source file (spec §3
// "FileDescription").
type FileDescriptionPacket struct {
	FileID   [16]byte
	FullMD5  [16]byte
	MD5_16k  [16]byte
	Length   uint64
	Name     string
}

func (p FileDescriptionPacket) body() []byte {
	nameWidth := len(p.Name)
	if rem := nameWidth % 4; rem != 0 {
		nameWidth += 4 - rem
	}
	buf := make([]byte, 16+16+16+8+nameWidth)
	copy(buf[0:16], p.FileID[:])
	copy(buf[16:32], p.FullMD5[:])
	copy(buf[32:48], p.MD5_16k[:])
	binary.LittleEndian.PutUint64(buf[48:56], p.Length)
	copy(buf[56:], padString(p.Name, nameWidth))
	return buf
}

func decodeFileDescriptionPacket(body []byte) FileDescriptionPacket {
	var p FileDescriptionPacket
	copy(p.FileID[:], body[0:16])
	copy(p.FullMD5[:], body[16:32])
	copy(p.MD5_16k[:], body[32:48])
	p.Length = binary.LittleEndian.Uint64(body[48:56])
	p.Name = trimNulString(body[56:])
	return p
}

// BlockVerification is one source block's expected hashes.
type BlockVerification struct {
	MD5   [16]byte
	CRC32 uint32
}

// FileVerificationPacket carries per-block (MD5, CRC-32) expectations for
// one source file (spec §3 "FileVerification").
type FileVerificationPacket struct {
	FileID [16]byte
	Blocks []BlockVerification
}

func (p FileVerificationPacket) body() []byte {
	buf := make([]byte, 16+20*len(p.Blocks))
	copy(buf[0:16], p.FileID[:])
	off := 16
	for _, b := range p.Blocks {
		copy(buf[off:off+16], b.MD5[:])
		binary.LittleEndian.PutUint32(buf[off+16:off+20], b.CRC32)
		off += 20
	}
	return buf
}

func decodeFileVerificationPacket(body []byte) FileVerificationPacket {
	var p FileVerificationPacket
	copy(p.FileID[:], body[0:16])
	off := 16
	for off+20 <= len(body) {
		var b BlockVerification
		copy(b.MD5[:], body[off:off+16])
		b.CRC32 = binary.LittleEndian.Uint32(body[off+16 : off+20])
		p.Blocks = append(p.Blocks, b)
		off += 20
	}
	return p
}

// RecoveryPacket carries one computed recovery block (spec §3
// "Recovery"). Exponent is stored on the wire as 4 bytes but is always in
// [0, 65535] per the data model (§3 "exponent u16").
type RecoveryPacket struct {
	Exponent uint16
	Payload  []byte // exactly block_size bytes
}

func (p RecoveryPacket) body() []byte {
	buf := make([]byte, 4+len(p.Payload))
	binary.LittleEndian.PutUint32(buf[0:4], uint32(p.Exponent))
	copy(buf[4:], p.Payload)
	return buf
}

func decodeRecoveryPacket(body []byte) (RecoveryPacket, bool) {
	if len(body) < 4 {
		return RecoveryPacket{}, false
	}
	exp := binary.LittleEndian.Uint32(body[0:4])
	if exp > 0xFFFF {
		return RecoveryPacket{}, false
	}
	return RecoveryPacket{Exponent: uint16(exp), Payload: body[4:]}, true
}
