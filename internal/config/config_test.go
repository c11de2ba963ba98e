package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadExplicitMissingFileIsError(t *testing.T) {
	f, err := Load(filepath.Join(t.TempDir(), "nonexistent.toml"))
	if err == nil {
		t.Fatal("expected error for an explicitly named missing file")
	}
	_ = f
}

func TestLoadParsesFields(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "par2.toml")
	content := "block_size = 65536\nrecovery_blocks = 20\nvolume_scheme = \"variable\"\n"
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	f, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if f.BlockSize != 65536 || f.RecoveryBlocks != 20 || f.VolumeScheme != "variable" {
		t.Fatalf("parsed = %+v", f)
	}
}

func TestMergeOverridesOnlyNonZero(t *testing.T) {
	base := File{BlockSize: 1024, RecoveryBlocks: 10, Workers: 4}
	override := File{RecoveryBlocks: 20}
	merged := Merge(base, override)
	if merged.BlockSize != 1024 {
		t.Errorf("block size should be kept from base, got %d", merged.BlockSize)
	}
	if merged.RecoveryBlocks != 20 {
		t.Errorf("recovery blocks should be overridden, got %d", merged.RecoveryBlocks)
	}
	if merged.Workers != 4 {
		t.Errorf("workers should be kept from base, got %d", merged.Workers)
	}
}
