package creator

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/zebware/par2/internal/logger"
	"github.com/zebware/par2/internal/par2store"
	"github.com/zebware/par2/internal/verify"
)

func TestPlanBlockSizeRespectsCount(t *testing.T) {
	size := PlanBlockSize(100000, 100)
	if size%4 != 0 {
		t.Fatalf("block size %d is not a multiple of 4", size)
	}
	count := blockCount(100000, size)
	if count > 100 {
		t.Fatalf("block count %d exceeds requested 100 with size %d", count, size)
	}
}

func TestSplitVolumesSchemes(t *testing.T) {
	uni := SplitVolumes(Uniform, 10, 1024, 0)
	if len(uni) != 1 || uni[0].Count != 10 {
		t.Fatalf("uniform split = %+v", uni)
	}

	vari := SplitVolumes(Variable, 10, 1024, 0)
	var total int
	for _, p := range vari {
		total += p.Count
	}
	if total != 10 {
		t.Fatalf("variable split totals %d, want 10", total)
	}
	if vari[0].Count != 1 || vari[1].Count != 2 {
		t.Fatalf("variable split = %+v, want doubling starting at 1", vari)
	}

	lim := SplitVolumes(Limited, 10, 1024, 3*1024)
	for _, p := range lim {
		if p.Count > 3 {
			t.Fatalf("limited split volume exceeds byte cap: %+v", p)
		}
	}
}

// TestCreateThenVerifyIsComplete runs the creator end to end against a
// temp directory and checks that loading the resulting volumes back
// through the packet store and verification engine reports the set as
// needing no repair.
func TestCreateThenVerifyIsComplete(t *testing.T) {
	dir := t.TempDir()
	content := make([]byte, 5000)
	for i := range content {
		content[i] = byte(i * 7)
	}
	srcPath := filepath.Join(dir, "data.bin")
	if err := os.WriteFile(srcPath, content, 0644); err != nil {
		t.Fatal(err)
	}

	log := logger.New(logger.Silent)
	cfg := Config{
		SourceFiles:    []string{srcPath},
		OutputBase:     filepath.Join(dir, "data"),
		SliceSize:      512,
		RecoveryBlocks: 3,
		Scheme:         Uniform,
	}
	if _, err := Create(cfg, log); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	volumes, err := par2store.DiscoverVolumes(filepath.Join(dir, "data.par2"))
	if err != nil {
		t.Fatal(err)
	}
	if len(volumes) < 2 {
		t.Fatalf("expected at least an index volume and a recovery volume, got %v", volumes)
	}

	store := par2store.New(nil)
	par2store.LoadVolumes(volumes, store, nil)
	if !store.HasMain() {
		t.Fatal("expected main packet to load")
	}

	summary, err := verify.New(store, dir).Run()
	if err != nil {
		t.Fatal(err)
	}
	if summary.Decision != verify.RepairNotRequired {
		t.Fatalf("decision = %v, want repair not required (reports: %+v)", summary.Decision, summary.Reports)
	}
	if summary.CompleteCount != 1 {
		t.Fatalf("complete count = %d, want 1", summary.CompleteCount)
	}
}
