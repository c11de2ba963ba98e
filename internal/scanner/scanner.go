// Package scanner implements C7: matching on-disk files against the
// block expectations recorded in a packet store, first by the cheap
// aligned comparison for a file sitting at its expected name and length,
// falling back to a byte-granular sliding CRC search for anything
// renamed, truncated, padded or otherwise out of alignment.
package scanner

import (
	"crypto/md5"
	"os"
	"sync"

	"github.com/zebware/par2/internal/digest"
	"github.com/zebware/par2/internal/par2store"
)

// State is a source file's classification after scanning (spec §4.7).
type State int

const (
	Missing State = iota
	Damaged
	RenamedComplete
	Complete
)

func (s State) String() string {
	switch s {
	case Missing:
		return "missing"
	case Damaged:
		return "damaged"
	case RenamedComplete:
		return "renamed-complete"
	case Complete:
		return "complete"
	default:
		return "unknown"
	}
}

// FoundLocation records where a block's bytes were located on disk.
type FoundLocation struct {
	DiskPath string
	Offset   int64
	Length   int
}

type blockRef struct {
	fileID [16]byte
	index  int
}

// Index is the immutable, set-wide lookup table built once from a
// store's file records: every expected block's CRC32 maps to the list
// of (file, index) pairs it could belong to, so a single disk file can
// be checked against the whole set in one pass (donor/extra files).
type Index struct {
	sliceSize uint64
	byCRC     map[uint32][]blockRef
	files     map[[16]byte]*par2store.SourceFile
}

// BuildIndex indexes every block of every file the store knows about.
func BuildIndex(files []*par2store.SourceFile, sliceSize uint64) *Index {
	idx := &Index{
		sliceSize: sliceSize,
		byCRC:     make(map[uint32][]blockRef),
		files:     make(map[[16]byte]*par2store.SourceFile, len(files)),
	}
	for _, f := range files {
		idx.files[f.FileID] = f
		for i, b := range f.Blocks {
			idx.byCRC[b.CRC32] = append(idx.byCRC[b.CRC32], blockRef{f.FileID, i})
		}
	}
	return idx
}

// Scanner accumulates found-block locations across however many disk
// files get fed to it via ScanPath, so that blocks belonging to one
// source file can be recovered from a different (renamed, extra, or
// donor) file on disk.
type Scanner struct {
	idx *Index

	mu         sync.Mutex
	found      map[[16]byte]map[int]FoundLocation
	fullMD5    map[string][16]byte // disk path -> whole-file MD5, filled by ScanPath
	duplicates int
}

// New creates a scanner over idx.
func New(idx *Index) *Scanner {
	return &Scanner{
		idx:     idx,
		found:   make(map[[16]byte]map[int]FoundLocation),
		fullMD5: make(map[string][16]byte),
	}
}

// Duplicates returns the number of block matches discarded because that
// (file, index) slot was already filled by an earlier, preferred match
// (spec §4.7 "duplicate detection").
func (s *Scanner) Duplicates() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.duplicates
}

func (s *Scanner) recordFound(fileID [16]byte, index int, loc FoundLocation) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	m := s.found[fileID]
	if m == nil {
		m = make(map[int]FoundLocation)
		s.found[fileID] = m
	}
	if _, ok := m[index]; ok {
		s.duplicates++
		return false
	}
	m[index] = loc
	return true
}

// FoundBlocks returns a snapshot of every located block for fileID.
func (s *Scanner) FoundBlocks(fileID [16]byte) map[int]FoundLocation {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[int]FoundLocation, len(s.found[fileID]))
	for k, v := range s.found[fileID] {
		out[k] = v
	}
	return out
}

func (s *Scanner) fullMD5For(path string) ([16]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.fullMD5[path]
	return v, ok
}

// ScanPath checks one on-disk file against the index, recording every
// block match it can find. expectedID/hasExpected name the source file
// this path is nominally supposed to be (by filename); pass
// hasExpected=false for extra files the Main packet never mentioned —
// they can still donate blocks to other entries. The returned digests
// are always computed, even for extra files, and the whole-file MD5 is
// also kept per path for Classify's RenamedComplete test.
func (s *Scanner) ScanPath(path string, expectedID [16]byte, hasExpected bool) (fullMD5, md5_16k [16]byte, length int64, err error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return fullMD5, md5_16k, 0, err
	}
	length = int64(len(data))
	fullMD5 = md5.Sum(data)
	if len(data) >= 16384 {
		md5_16k = md5.Sum(data[:16384])
	} else {
		md5_16k = md5.Sum(data)
	}
	s.mu.Lock()
	s.fullMD5[path] = fullMD5
	s.mu.Unlock()

	if hasExpected {
		if fe, ok := s.idx.files[expectedID]; ok && uint64(len(data)) == fe.Length {
			if s.fastPath(path, data, fe) {
				return fullMD5, md5_16k, length, nil
			}
		}
	}

	s.slidingScan(path, data, expectedID, hasExpected)
	return fullMD5, md5_16k, length, nil
}

// fastPath does the cheap aligned comparison: read the file in
// slice-sized chunks at their expected offsets and compare block hashes
// directly, without consulting the CRC index at all. It returns true
// only when the file turned out to be fully, contiguously correct,
// letting the caller skip the sliding scan entirely for the common case
// of an untouched file; any mismatch sends the file on to the sliding scan.
func (s *Scanner) fastPath(path string, data []byte, fe *par2store.SourceFile) bool {
	w := int(s.idx.sliceSize)
	allMatched := true
	for i, exp := range fe.Blocks {
		start := i * w
		end := start + w
		if end > len(data) {
			end = len(data)
		}
		block := data[start:end]
		hashed := block
		if len(block) < w {
			// A short last block is hashed zero-padded to a full slice.
			hashed = make([]byte, w)
			copy(hashed, block)
		}
		if digest.ChecksumIEEE(hashed) != exp.CRC32 || digest.SumMD5(hashed) != exp.MD5 {
			allMatched = false
			continue
		}
		s.recordFound(fe.FileID, i, FoundLocation{DiskPath: path, Offset: int64(start), Length: len(block)})
	}
	return allMatched && md5.Sum(data) == fe.FullMD5
}

// slidingScan performs the byte-granular CRC search over the whole
// file (spec §4.7 "sliding window path"), used for renamed, truncated,
// padded, or otherwise misaligned content.
func (s *Scanner) slidingScan(path string, data []byte, expectedID [16]byte, hasExpected bool) {
	w := int(s.idx.sliceSize)
	n := len(data)
	if w <= 0 || n < w {
		return
	}

	roller := digest.NewSlidingCRC(w)
	roller.Reset(digest.ChecksumIEEE(data[0:w]))
	lastIndex := make(map[[16]byte]int)

	pos := 0
	for {
		if cands, ok := s.idx.byCRC[roller.Value()]; ok {
			if ref, okc := s.resolveCandidate(cands, data[pos:pos+w], expectedID, hasExpected, lastIndex); okc {
				loc := FoundLocation{DiskPath: path, Offset: int64(pos), Length: w}
				if s.recordFound(ref.fileID, ref.index, loc) {
					lastIndex[ref.fileID] = ref.index
				}
				pos += w
				if pos+w > n {
					break
				}
				roller.Reset(digest.ChecksumIEEE(data[pos : pos+w]))
				continue
			}
		}
		if pos+w >= n {
			break
		}
		roller.Roll(data[pos], data[pos+w])
		pos++
	}
}

// resolveCandidate picks among the blocks sharing a CRC hit, verifying
// each by its full MD5 and breaking ties per spec §4.7: prefer the
// candidate belonging to the file this path is nominally named for,
// then prefer whichever continues the previous match's run of indices.
func (s *Scanner) resolveCandidate(cands []blockRef, window []byte, expectedID [16]byte, hasExpected bool, lastIndex map[[16]byte]int) (blockRef, bool) {
	sum := md5.Sum(window)
	var matches []blockRef
	for _, c := range cands {
		fe, ok := s.idx.files[c.fileID]
		if !ok || c.index >= len(fe.Blocks) {
			continue
		}
		if fe.Blocks[c.index].MD5 == sum {
			matches = append(matches, c)
		}
	}
	if len(matches) == 0 {
		return blockRef{}, false
	}
	if len(matches) == 1 {
		return matches[0], true
	}

	pool := matches
	if hasExpected {
		var preferred []blockRef
		for _, m := range matches {
			if m.fileID == expectedID {
				preferred = append(preferred, m)
			}
		}
		if len(preferred) > 0 {
			pool = preferred
		}
	}
	for _, m := range pool {
		if last, ok := lastIndex[m.fileID]; ok && m.index == last+1 {
			return m, true
		}
	}
	return pool[0], true
}

// Classify determines a source file's final state from the blocks
// found for it so far (spec §4.7). canonicalPath is the path this file
// would live at under its own name. Completeness (every block found,
// contiguous from offset 0, full-file MD5 match) is decided first;
// only once that fails does disk existence of canonicalPath distinguish
// Missing (the named file isn't there at all) from Damaged (it's there,
// but doesn't check out) — this mirrors spec §4.7's stated precedence
// and lets a fully scattered donor-reconstruction still read Missing
// rather than Damaged when the canonical file was never present.
func (s *Scanner) Classify(fe *par2store.SourceFile, canonicalPath string) State {
	total := int(blockTotal(fe.Length, s.idx.sliceSize))
	found := s.FoundBlocks(fe.FileID)

	if complete, renamed := s.checkComplete(fe, canonicalPath, found, total); complete {
		if renamed {
			return RenamedComplete
		}
		return Complete
	}

	if _, err := os.Stat(canonicalPath); err != nil {
		return Missing
	}
	return Damaged
}

func (s *Scanner) checkComplete(fe *par2store.SourceFile, canonicalPath string, found map[int]FoundLocation, total int) (complete, renamed bool) {
	if len(found) != total || total == 0 {
		return false, false
	}
	path := ""
	for i := 0; i < total; i++ {
		loc, ok := found[i]
		if !ok {
			return false, false
		}
		if i == 0 {
			path = loc.DiskPath
		}
		if loc.DiskPath != path || loc.Offset != int64(i)*int64(s.idx.sliceSize) {
			return false, false
		}
	}
	sum, ok := s.fullMD5For(path)
	if !ok || sum != fe.FullMD5 {
		return false, false
	}
	return true, path != canonicalPath
}

func blockTotal(length, sliceSize uint64) uint64 {
	if sliceSize == 0 {
		return 0
	}
	n := length / sliceSize
	if length%sliceSize != 0 {
		n++
	}
	if n == 0 {
		n = 1
	}
	return n
}
