// Package verify implements C8: running the scanner over a recovery
// set's source files, aggregating the result into per-set statistics,
// and deciding whether repair is unnecessary, possible, or impossible
// given the recovery blocks on hand.
package verify

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/zebware/par2/internal/par2store"
	"github.com/zebware/par2/internal/scanner"
)

// Decision is the set-level outcome of a verification pass (spec §4.8).
type Decision int

const (
	RepairNotRequired Decision = iota
	RepairPossible
	RepairImpossible
)

func (d Decision) String() string {
	switch d {
	case RepairNotRequired:
		return "repair not required"
	case RepairPossible:
		return "repair possible"
	case RepairImpossible:
		return "repair impossible"
	default:
		return "unknown"
	}
}

// FileReport is one source file's verification result.
type FileReport struct {
	File          *par2store.SourceFile
	CanonicalPath string
	State         scanner.State
	FoundBlocks   int
	TotalBlocks   int
}

// Summary aggregates every file's report plus the repair decision.
type Summary struct {
	Reports  []FileReport
	Decision Decision

	CompleteCount        int
	RenamedCompleteCount int
	DamagedCount         int
	MissingCount         int

	AvailableBlocks uint64
	MissingBlocks   uint64
	RecoveryBlocks  uint64
}

// Engine runs verification against a loaded packet store.
type Engine struct {
	Store   *par2store.Store
	BaseDir string
}

// New builds an Engine for the given base directory (where source
// files are expected to live) and loaded store.
func New(store *par2store.Store, baseDir string) *Engine {
	return &Engine{Store: store, BaseDir: baseDir}
}

// Run scans every known source file (plus any extra files sitting in
// BaseDir that might be renamed or donor copies) and produces a
// Summary with the set's overall repair decision.
func (e *Engine) Run() (*Summary, error) {
	files := e.Store.Files()
	sliceSize := e.Store.SliceSize()
	idx := scanner.BuildIndex(files, sliceSize)
	sc := scanner.New(idx)

	canonical := make(map[string]bool, len(files))
	paths := make(map[[16]byte]string, len(files))
	for _, f := range files {
		p := filepath.Join(e.BaseDir, f.Name)
		paths[f.FileID] = p
		canonical[p] = true
	}

	for _, f := range files {
		p := paths[f.FileID]
		if _, err := os.Stat(p); err != nil {
			continue
		}
		if _, _, _, err := sc.ScanPath(p, f.FileID, true); err != nil {
			return nil, fmt.Errorf("scanning %s: %w", p, err)
		}
	}

	// Extra files in the base directory that don't correspond to any
	// expected name may still hold renamed or duplicated source data;
	// scan them too so their blocks can back a RenamedComplete verdict
	// or contribute spare blocks toward repair of another entry.
	if entries, err := os.ReadDir(e.BaseDir); err == nil {
		for _, ent := range entries {
			if ent.IsDir() {
				continue
			}
			p := filepath.Join(e.BaseDir, ent.Name())
			if canonical[p] {
				continue
			}
			if filepath.Ext(p) == ".par2" {
				continue
			}
			if _, _, _, err := sc.ScanPath(p, [16]byte{}, false); err != nil {
				continue
			}
		}
	}

	summary := &Summary{RecoveryBlocks: uint64(len(e.Store.RecoveryBlocks()))}
	for _, f := range files {
		p := paths[f.FileID]
		state := sc.Classify(f, p)
		found := sc.FoundBlocks(f.FileID)

		total := len(f.Blocks)
		report := FileReport{File: f, CanonicalPath: p, State: state, FoundBlocks: len(found), TotalBlocks: total}
		summary.Reports = append(summary.Reports, report)

		switch state {
		case scanner.Complete:
			summary.CompleteCount++
		case scanner.RenamedComplete:
			summary.RenamedCompleteCount++
		case scanner.Damaged:
			summary.DamagedCount++
		case scanner.Missing:
			summary.MissingCount++
		}
		summary.AvailableBlocks += uint64(len(found))
		summary.MissingBlocks += uint64(total - len(found))
	}

	sort.Slice(summary.Reports, func(i, j int) bool {
		return summary.Reports[i].File.Name < summary.Reports[j].File.Name
	})

	switch {
	case summary.DamagedCount == 0 && summary.MissingCount == 0:
		summary.Decision = RepairNotRequired
	case summary.MissingBlocks <= summary.RecoveryBlocks:
		summary.Decision = RepairPossible
	default:
		summary.Decision = RepairImpossible
	}
	return summary, nil
}

// RenameAside returns the path a damaged file's original bytes should
// be moved to before repair output is written in its place, so a
// reconstruction failure midway never destroys the partially-correct
// original (spec §4.8 "damaged files are preserved, never overwritten
// in place").
func RenameAside(path string) string {
	for i := 1; ; i++ {
		candidate := fmt.Sprintf("%s.1", path)
		if i > 1 {
			candidate = fmt.Sprintf("%s.%d", path, i)
		}
		if _, err := os.Stat(candidate); os.IsNotExist(err) {
			return candidate
		}
	}
}

// NeedsRepair reports whether a file's state requires repair driver
// involvement at all (Complete and RenamedComplete files are never
// reconstructed; the repair driver also does not rename or copy a
// RenamedComplete file back to its canonical name).
func (r FileReport) NeedsRepair() bool {
	return r.State == scanner.Damaged || r.State == scanner.Missing
}
