// Package par2store implements C6: the packet store that indexes, dedupes
// and validates packets loaded from any number of volumes, regardless of
// load order (spec §8 invariant 5 "Packet store idempotence").
package par2store

import (
	"bytes"
	"sort"
	"sync"

	"github.com/zebware/par2/internal/par2fmt"
)

// BlockExpectation is one source block's expected hashes, taken from a
// FileVerification packet.
type BlockExpectation struct {
	MD5   [16]byte
	CRC32 uint32
}

// SourceFile is the packet-derived half of spec §3's source-file record:
// identity and expectations, before the scanner fills in found_location.
type SourceFile struct {
	FileID     [16]byte
	Name       string
	Length     uint64
	FullMD5    [16]byte
	MD5_16k    [16]byte
	HasDesc    bool
	HasVerify  bool
	Blocks     []BlockExpectation
	Recoverable bool // appears in the Main packet's recoverable list
}

// RecoveryBlock is one recovery payload indexed by exponent.
type RecoveryBlock struct {
	Exponent uint16
	Payload  []byte
}

// Store indexes packets by (set_id, type, discriminator); the discriminator
// is FileID for description/verification packets and Exponent for
// recovery packets (spec §4.6). A single mutex serializes insertion, which
// is sufficient for concurrent inserts in a local CLI tool (LoadVolumes
// itself reads the volumes one after another) — see DESIGN.md for why this is not
// the distributed dsync/lsync locking the teacher uses for its multi-node
// server.
type Store struct {
	mu sync.Mutex

	haveSetID bool
	setID     [16]byte

	main        *par2fmt.MainPacket
	creatorID   string
	sliceSize   uint64
	files       map[[16]byte]*SourceFile
	recovery    map[uint16]*RecoveryBlock
	diagnostics func(reason string)
}

// New creates an empty store. diag, if non-nil, is called for every
// rejected/duplicate packet with a short reason (used for -v diagnostics,
// not for correctness).
func New(diag func(reason string)) *Store {
	return &Store{
		files:       make(map[[16]byte]*SourceFile),
		recovery:    make(map[uint16]*RecoveryBlock),
		diagnostics: diag,
	}
}

func (s *Store) note(reason string) {
	if s.diagnostics != nil {
		s.diagnostics(reason)
	}
}

// Insert adds one decoded packet to the store, applying the Set ID gate
// and per-kind dedupe rules of spec §4.6. It is safe to call concurrently
// from multiple loader goroutines.
func (s *Store) Insert(pkt par2fmt.Packet) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.haveSetID {
		s.haveSetID = true
		s.setID = pkt.Header.SetID
	} else if pkt.Header.SetID != s.setID {
		s.note("packet set_id does not match active set")
		return
	}

	switch {
	case pkt.Main != nil:
		s.insertMain(*pkt.Main, pkt.Header.SetID)
	case pkt.Creator != nil:
		if s.creatorID == "" {
			s.creatorID = pkt.Creator.ClientID
		}
	case pkt.FileDescription != nil:
		s.insertDescription(*pkt.FileDescription)
	case pkt.FileVerification != nil:
		s.insertVerification(*pkt.FileVerification)
	case pkt.Recovery != nil:
		s.insertRecovery(*pkt.Recovery)
	}
}

func (s *Store) insertMain(m par2fmt.MainPacket, declaredSetID [16]byte) {
	if par2fmt.SetIDFromMain(m) != declaredSetID {
		s.note("main packet set_id does not match hash of its own body")
		return
	}
	if s.main != nil {
		// Multiple copies must be bit-identical; divergence discards the
		// new copy (spec §3 "Set").
		if len(s.main.RecoverableFileIDs) != len(m.RecoverableFileIDs) || s.sliceSize != m.SliceSize {
			s.note("divergent copy of main packet discarded")
		}
		return
	}
	s.main = &m
	s.sliceSize = m.SliceSize
	for _, id := range m.RecoverableFileIDs {
		f := s.fileOrNew(id)
		f.Recoverable = true
	}
	for _, id := range m.NonRecoverableIDs {
		s.fileOrNew(id)
	}
}

func (s *Store) fileOrNew(id [16]byte) *SourceFile {
	f, ok := s.files[id]
	if !ok {
		f = &SourceFile{FileID: id}
		s.files[id] = f
	}
	return f
}

func (s *Store) insertDescription(d par2fmt.FileDescriptionPacket) {
	f := s.fileOrNew(d.FileID)
	if f.HasDesc {
		s.note("duplicate file description discarded")
		return
	}
	f.HasDesc = true
	f.Name = d.Name
	f.Length = d.Length
	f.FullMD5 = d.FullMD5
	f.MD5_16k = d.MD5_16k
}

func (s *Store) insertVerification(v par2fmt.FileVerificationPacket) {
	f := s.fileOrNew(v.FileID)
	if f.HasVerify {
		s.note("duplicate file verification discarded")
		return
	}
	if s.sliceSize != 0 && f.Length != 0 {
		expected := blockCount(f.Length, s.sliceSize)
		if uint64(len(v.Blocks)) != expected {
			// spec §4.6: block-count mismatch discards the whole file's
			// record (both description and verification).
			s.note("file verification block count disagrees with file length; discarding file record")
			delete(s.files, v.FileID)
			return
		}
	}
	f.HasVerify = true
	for _, b := range v.Blocks {
		f.Blocks = append(f.Blocks, BlockExpectation{MD5: b.MD5, CRC32: b.CRC32})
	}
}

func (s *Store) insertRecovery(r par2fmt.RecoveryPacket) {
	if s.sliceSize != 0 && uint64(len(r.Payload)) != s.sliceSize {
		s.note("recovery packet size does not match slice size; discarded")
		return
	}
	if _, dup := s.recovery[r.Exponent]; dup {
		s.note("duplicate recovery exponent discarded")
		return
	}
	s.recovery[r.Exponent] = &RecoveryBlock{Exponent: r.Exponent, Payload: r.Payload}
}

func blockCount(length, sliceSize uint64) uint64 {
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

// SetID returns the active Set ID and whether one has been established.
func (s *Store) SetID() ([16]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.setID, s.haveSetID
}

// HasMain reports whether a Main packet has been accepted.
func (s *Store) HasMain() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.main != nil
}

// SliceSize returns the recovery set's block size.
func (s *Store) SliceSize() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sliceSize
}

// CreatorID returns the Creator packet's client identifier, if any.
func (s *Store) CreatorID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.creatorID
}

// Files returns a stable-ordered snapshot of all known source-file
// records (order is by FileID bytes, so it is deterministic across
// processes for the same input set).
func (s *Store) Files() []*SourceFile {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*SourceFile, 0, len(s.files))
	for _, f := range s.files {
		out = append(out, f)
	}
	sortFilesByID(out)
	return out
}

// RecoveryBlocks returns a snapshot of all retained recovery blocks.
func (s *Store) RecoveryBlocks() []*RecoveryBlock {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*RecoveryBlock, 0, len(s.recovery))
	for _, r := range s.recovery {
		out = append(out, r)
	}
	sortRecoveryByExponent(out)
	return out
}

func sortFilesByID(files []*SourceFile) {
	sort.Slice(files, func(i, j int) bool {
		return bytes.Compare(files[i].FileID[:], files[j].FileID[:]) < 0
	})
}

func sortRecoveryByExponent(blocks []*RecoveryBlock) {
	sort.Slice(blocks, func(i, j int) bool { return blocks[i].Exponent < blocks[j].Exponent })
}
