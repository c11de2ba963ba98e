package par2fmt

import (
	"bytes"
	"testing"
)

func sampleSetID() [16]byte {
	return MainPacket{SliceSize: 65536, RecoverableFileIDs: [][16]byte{{1}, {2}}}.setIDForTest()
}

func (p MainPacket) setIDForTest() [16]byte { return SetIDFromMain(p) }

func TestEmitReadAllRoundTrip(t *testing.T) {
	setID := sampleSetID()
	var buf bytes.Buffer

	main := MainPacket{SliceSize: 65536, RecoverableFileIDs: [][16]byte{{1}, {2}}}
	if err := EmitMain(&buf, setID, main); err != nil {
		t.Fatal(err)
	}
	creator := CreatorPacket{ClientID: "par2 test/1.0"}
	if err := EmitCreator(&buf, setID, creator); err != nil {
		t.Fatal(err)
	}
	fd := FileDescriptionPacket{FileID: [16]byte{1}, Name: "example.bin", Length: 123456}
	if err := EmitFileDescription(&buf, setID, fd); err != nil {
		t.Fatal(err)
	}
	fv := FileVerificationPacket{FileID: [16]byte{1}, Blocks: []BlockVerification{{MD5: [16]byte{9}, CRC32: 0xdeadbeef}}}
	if err := EmitFileVerification(&buf, setID, fv); err != nil {
		t.Fatal(err)
	}
	rec := RecoveryPacket{Exponent: 3, Payload: bytes.Repeat([]byte{0x42}, 64)}
	if err := EmitRecovery(&buf, setID, rec); err != nil {
		t.Fatal(err)
	}

	var diagCount int
	pkts := ReadAll(&buf, func(offset int64, reason string) { diagCount++ })
	if diagCount != 0 {
		t.Fatalf("unexpected diagnostics: %d", diagCount)
	}
	if len(pkts) != 5 {
		t.Fatalf("got %d packets, want 5", len(pkts))
	}
	if pkts[0].Main == nil || pkts[0].Main.SliceSize != 65536 {
		t.Errorf("main packet mismatch: %+v", pkts[0].Main)
	}
	if pkts[1].Creator == nil || pkts[1].Creator.ClientID != "par2 test/1.0" {
		t.Errorf("creator packet mismatch: %+v", pkts[1].Creator)
	}
	if pkts[2].FileDescription == nil || pkts[2].FileDescription.Name != "example.bin" {
		t.Errorf("file description mismatch: %+v", pkts[2].FileDescription)
	}
	if pkts[3].FileVerification == nil || len(pkts[3].FileVerification.Blocks) != 1 {
		t.Errorf("file verification mismatch: %+v", pkts[3].FileVerification)
	}
	if pkts[4].Recovery == nil || pkts[4].Recovery.Exponent != 3 || len(pkts[4].Recovery.Payload) != 64 {
		t.Errorf("recovery packet mismatch: %+v", pkts[4].Recovery)
	}
}

// TestReadAllSkipsJunkPrefix mirrors spec.md scenario e: 37 junk bytes
// before the first valid packet must not prevent recovery of everything
// after it.
func TestReadAllSkipsJunkPrefix(t *testing.T) {
	setID := sampleSetID()
	var buf bytes.Buffer
	buf.Write(bytes.Repeat([]byte{0xAA}, 37))

	main := MainPacket{SliceSize: 4096, RecoverableFileIDs: [][16]byte{{7}}}
	if err := EmitMain(&buf, setID, main); err != nil {
		t.Fatal(err)
	}

	var diagCount int
	pkts := ReadAll(&buf, func(offset int64, reason string) { diagCount++ })
	if len(pkts) != 1 || pkts[0].Main == nil {
		t.Fatalf("expected to recover the main packet after junk prefix, got %d packets", len(pkts))
	}
	if pkts[0].Main.SliceSize != 4096 {
		t.Errorf("slice size = %d, want 4096", pkts[0].Main.SliceSize)
	}
}

func TestReadAllRejectsCorruptedMD5(t *testing.T) {
	setID := sampleSetID()
	var buf bytes.Buffer
	main := MainPacket{SliceSize: 4096, RecoverableFileIDs: [][16]byte{{7}}}
	if err := EmitMain(&buf, setID, main); err != nil {
		t.Fatal(err)
	}
	b := buf.Bytes()
	b[len(b)-1] ^= 0xFF // corrupt last byte of the body

	var diagCount int
	pkts := ReadAll(bytes.NewReader(b), func(offset int64, reason string) { diagCount++ })
	if len(pkts) != 0 {
		t.Fatalf("expected corrupted packet to be rejected, got %d packets", len(pkts))
	}
	if diagCount == 0 {
		t.Fatalf("expected at least one diagnostic")
	}
}
