package verify

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/zebware/par2/internal/digest"
	"github.com/zebware/par2/internal/par2fmt"
	"github.com/zebware/par2/internal/par2store"
)

const sliceSize = 8

func block(b byte) []byte {
	out := make([]byte, sliceSize)
	for i := range out {
		out[i] = b
	}
	return out
}

func buildStoreAndDir(t *testing.T, files map[string][]byte, recoveryCount int) (*par2store.Store, string) {
	t.Helper()
	dir := t.TempDir()
	store := par2store.New(nil)

	main := par2fmt.MainPacket{SliceSize: sliceSize}
	for name := range files {
		main.RecoverableFileIDs = append(main.RecoverableFileIDs, fileIDFor(name, files[name]))
	}
	setID := par2fmt.SetIDFromMain(main)
	store.Insert(par2fmt.Packet{Header: par2fmt.Header{SetID: setID}, Main: &main})

	for name, content := range files {
		id := fileIDFor(name, content)
		store.Insert(par2fmt.Packet{Header: par2fmt.Header{SetID: setID}, FileDescription: &par2fmt.FileDescriptionPacket{
			FileID: id, Name: name, Length: uint64(len(content)), FullMD5: digest.SumMD5(content),
		}})
		var blocks []par2fmt.BlockVerification
		for i := 0; i < len(content); i += sliceSize {
			end := i + sliceSize
			if end > len(content) {
				end = len(content)
			}
			chunk := content[i:end]
			blocks = append(blocks, par2fmt.BlockVerification{MD5: digest.SumMD5(chunk), CRC32: digest.ChecksumIEEE(chunk)})
		}
		store.Insert(par2fmt.Packet{Header: par2fmt.Header{SetID: setID}, FileVerification: &par2fmt.FileVerificationPacket{FileID: id, Blocks: blocks}})
	}
	for i := 0; i < recoveryCount; i++ {
		store.Insert(par2fmt.Packet{Header: par2fmt.Header{SetID: setID}, Recovery: &par2fmt.RecoveryPacket{
			Exponent: uint16(i), Payload: make([]byte, sliceSize),
		}})
	}
	return store, dir
}

func fileIDFor(name string, content []byte) [16]byte {
	var md5_16k [16]byte
	if len(content) >= 16384 {
		md5_16k = digest.SumMD5(content[:16384])
	} else {
		md5_16k = digest.SumMD5(content)
	}
	return par2fmt.FileID(md5_16k, uint64(len(content)), name)
}

func TestRunAllCompleteNoRepairNeeded(t *testing.T) {
	content := append(append([]byte{}, block(1)...), block(2)...)
	store, dir := buildStoreAndDir(t, map[string][]byte{"a.bin": content}, 1)
	if err := os.WriteFile(filepath.Join(dir, "a.bin"), content, 0644); err != nil {
		t.Fatal(err)
	}

	summary, err := New(store, dir).Run()
	if err != nil {
		t.Fatal(err)
	}
	if summary.Decision != RepairNotRequired {
		t.Fatalf("decision = %v, want repair not required", summary.Decision)
	}
	if summary.CompleteCount != 1 {
		t.Fatalf("complete count = %d, want 1", summary.CompleteCount)
	}
}

func TestRunMissingFileRepairPossible(t *testing.T) {
	content := append(append([]byte{}, block(1)...), block(2)...)
	store, dir := buildStoreAndDir(t, map[string][]byte{"a.bin": content}, 2)
	// a.bin is never written to dir: entirely missing.

	summary, err := New(store, dir).Run()
	if err != nil {
		t.Fatal(err)
	}
	if summary.MissingCount != 1 {
		t.Fatalf("missing count = %d, want 1", summary.MissingCount)
	}
	if summary.Decision != RepairPossible {
		t.Fatalf("decision = %v, want repair possible (2 recovery blocks for 2 missing)", summary.Decision)
	}
}

func TestRunMissingFileRepairImpossible(t *testing.T) {
	content := append(append([]byte{}, block(1)...), block(2)...)
	store, dir := buildStoreAndDir(t, map[string][]byte{"a.bin": content}, 1)

	summary, err := New(store, dir).Run()
	if err != nil {
		t.Fatal(err)
	}
	if summary.Decision != RepairImpossible {
		t.Fatalf("decision = %v, want repair impossible (1 recovery block for 2 missing)", summary.Decision)
	}
}

func TestRunRenamedFileDetected(t *testing.T) {
	content := append(append([]byte{}, block(1)...), block(2)...)
	store, dir := buildStoreAndDir(t, map[string][]byte{"a.bin": content}, 1)
	if err := os.WriteFile(filepath.Join(dir, "renamed.bin"), content, 0644); err != nil {
		t.Fatal(err)
	}

	summary, err := New(store, dir).Run()
	if err != nil {
		t.Fatal(err)
	}
	if summary.RenamedCompleteCount != 1 {
		t.Fatalf("renamed-complete count = %d, want 1 (report: %+v)", summary.RenamedCompleteCount, summary.Reports)
	}
	if summary.Decision != RepairNotRequired {
		t.Fatalf("decision = %v, want repair not required", summary.Decision)
	}
}
