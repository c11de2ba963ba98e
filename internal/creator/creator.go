// Package creator implements C9: planning block size, generating
// recovery data for a set of source files, and emitting the packets
// across one or more PAR2 volumes.
package creator

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"

	"github.com/zebware/par2/internal/blockproc"
	"github.com/zebware/par2/internal/digest"
	"github.com/zebware/par2/internal/gf16"
	"github.com/zebware/par2/internal/logger"
	"github.com/zebware/par2/internal/par2fmt"
	"github.com/zebware/par2/internal/pipeline"
	"github.com/zebware/par2/internal/rsmatrix"
)

// VolumeScheme controls how recovery blocks are distributed across
// volume files (spec §4.9 "Volume allocation schemes").
type VolumeScheme int

const (
	// Uniform puts every recovery block into a single volume; no volume
	// count is taken, so the blocks are not split over several volumes.
	Uniform VolumeScheme = iota
	// Variable doubles the block count of each successive volume,
	// matching par2cmdline's classic "1, 2, 4, 8, ..." progression.
	Variable
	// Limited packs as many recovery blocks as fit under a byte ceiling
	// per volume, producing as many volumes as needed.
	Limited
)

// Plan describes one volume's slice of the recovery block range.
type Plan struct {
	StartExponent int
	Count         int
}

// SplitVolumes partitions totalBlocks recovery blocks into per-volume
// plans according to scheme. limitBytes is only consulted by Limited,
// as the maximum recovery-payload bytes (not counting packet headers)
// a single volume may carry.
func SplitVolumes(scheme VolumeScheme, totalBlocks int, sliceSize uint64, limitBytes uint64) []Plan {
	if totalBlocks == 0 {
		return nil
	}
	switch scheme {
	case Variable:
		var plans []Plan
		next := 0
		size := 1
		for next < totalBlocks {
			if next+size > totalBlocks {
				size = totalBlocks - next
			}
			plans = append(plans, Plan{StartExponent: next, Count: size})
			next += size
			size *= 2
		}
		return plans
	case Limited:
		perVolume := 1
		if sliceSize > 0 && limitBytes >= sliceSize {
			perVolume = int(limitBytes / sliceSize)
		}
		if perVolume < 1 {
			perVolume = 1
		}
		var plans []Plan
		for next := 0; next < totalBlocks; next += perVolume {
			count := perVolume
			if next+count > totalBlocks {
				count = totalBlocks - next
			}
			plans = append(plans, Plan{StartExponent: next, Count: count})
		}
		return plans
	default: // Uniform: one volume holds everything, starting at
		// exponent 0.
		return []Plan{{StartExponent: 0, Count: totalBlocks}}
	}
}

// PlanBlockSize chooses a block size so that totalSize splits into at
// most desiredBlockCount blocks, rounded up to a multiple of 4 (PAR2
// packet bodies must be a multiple of 4 bytes, and block payloads are
// no exception). This mirrors the binary-search sizing par2cmdline
// performs when the user gives a block *count* instead of a block
// *size* directly.
func PlanBlockSize(totalSize uint64, desiredBlockCount int) uint64 {
	if desiredBlockCount <= 0 {
		desiredBlockCount = 1
	}
	if totalSize == 0 {
		return 4
	}
	lo, hi := uint64(4), totalSize
	for lo < hi {
		mid := lo + (hi-lo)/2
		mid -= mid % 4
		if mid < 4 {
			mid = 4
		}
		count := blockCount(totalSize, mid)
		if count <= uint64(desiredBlockCount) {
			hi = mid
		} else {
			lo = mid + 4
		}
	}
	if lo%4 != 0 {
		lo += 4 - lo%4
	}
	return lo
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

// Config describes one creation run.
type Config struct {
	SourceFiles     []string
	OutputBase      string // e.g. "/data/archive" -> archive.par2, archive.vol0+N.par2, ...
	SliceSize       uint64 // 0 selects the default block-count target below
	RecoveryBlocks  int    // 0 selects 10% of the total source block count
	Scheme          VolumeScheme
	VolumeLimitSize uint64 // bytes, only used by Limited
	ClientID        string
}

const defaultBlockCountTarget = 2000

func workerCount() int {
	n := runtime.GOMAXPROCS(0)
	if n < 1 {
		n = 1
	}
	return n
}

// sourceBlocks is the intermediate per-file record built while reading
// source files, before any recovery data exists.
type sourceBlocks struct {
	desc   par2fmt.FileDescriptionPacket
	verify par2fmt.FileVerificationPacket
	blocks [][]byte // exactly as read from disk, each exactly SliceSize (last one zero-padded)
}

// Create reads every source file, computes its descriptive and
// verification packets, derives the requested number of recovery
// blocks, and writes the whole recovery set to cfg.OutputBase's
// volumes. It returns the Set ID of the recovery set it created.
func Create(cfg Config, log *logger.Logger) ([16]byte, error) {
	var totalSize uint64
	sizes := make([]uint64, len(cfg.SourceFiles))
	for i, p := range cfg.SourceFiles {
		fi, err := os.Stat(p)
		if err != nil {
			return [16]byte{}, fmt.Errorf("creator: %w", err)
		}
		sizes[i] = uint64(fi.Size())
		totalSize += sizes[i]
	}

	sliceSize := cfg.SliceSize
	if sliceSize == 0 {
		sliceSize = PlanBlockSize(totalSize, defaultBlockCountTarget)
	}
	log.Infof("block size: %d bytes", sliceSize)

	files := make([]sourceBlocks, len(cfg.SourceFiles))
	for i, p := range cfg.SourceFiles {
		sb, err := readSourceFile(p, sliceSize)
		if err != nil {
			return [16]byte{}, err
		}
		files[i] = sb
		log.Verbosef("%s: %d block(s)", filepath.Base(p), len(sb.blocks))
	}
	// Source blocks are ordered by FileID, the same order as the Main
	// packet's file list and par2store.Store.Files() used by repair.
	sort.Slice(files, func(i, j int) bool { return lessID(files[i].desc.FileID, files[j].desc.FileID) })
	var allBlocks [][]byte
	for i := range files {
		allBlocks = append(allBlocks, files[i].blocks...)
	}

	recoveryCount := cfg.RecoveryBlocks
	if recoveryCount == 0 {
		recoveryCount = (len(allBlocks) + 9) / 10
		if recoveryCount == 0 {
			recoveryCount = 1
		}
	}

	bases, err := rsmatrix.ColumnBases(len(allBlocks))
	if err != nil {
		return [16]byte{}, fmt.Errorf("creator: %w", err)
	}

	proc := blockproc.New()
	recovery := make([]par2fmt.RecoveryPacket, recoveryCount)
	log.Infof("computing %d recovery block(s) over %d source block(s)", recoveryCount, len(allBlocks))

	// Every recovery block's computation touches only read-only inputs
	// (allBlocks, bases) and its own output slot, so the whole set fans
	// out across a worker pool with no locking beyond what Processor
	// already guarantees for concurrent callers.
	pool := pipeline.NewPool(workerCount())
	for j := 0; j < recoveryCount; j++ {
		j := j
		pool.Submit(func() error {
			exponent := uint16(j)
			payload := make([]byte, sliceSize)
			for i, block := range allBlocks {
				factor := gf16.Pow(bases[i], uint32(exponent))
				if factor == 0 {
					continue
				}
				proc.Process(factor, block, payload)
			}
			recovery[j] = par2fmt.RecoveryPacket{Exponent: exponent, Payload: payload}
			return nil
		})
	}
	if err := pool.Wait(); err != nil {
		return [16]byte{}, fmt.Errorf("creator: %w", err)
	}

	main := par2fmt.MainPacket{SliceSize: sliceSize}
	for i := range files {
		main.RecoverableFileIDs = append(main.RecoverableFileIDs, files[i].desc.FileID)
	}
	sort.Slice(main.RecoverableFileIDs, func(i, j int) bool {
		return lessID(main.RecoverableFileIDs[i], main.RecoverableFileIDs[j])
	})
	setID := par2fmt.SetIDFromMain(main)

	clientID := cfg.ClientID
	if clientID == "" {
		clientID = "par2 creator"
	}

	if err := writeVolumes(cfg, setID, main, clientID, files, recovery, log); err != nil {
		return [16]byte{}, err
	}
	return setID, nil
}

func lessID(a, b [16]byte) bool {
	for i := range a {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return false
}

func readSourceFile(path string, sliceSize uint64) (sourceBlocks, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return sourceBlocks{}, fmt.Errorf("creator: reading %s: %w", path, err)
	}
	fullMD5 := digest.SumMD5(data)
	var md5_16k [16]byte
	if len(data) >= 16384 {
		md5_16k = digest.SumMD5(data[:16384])
	} else {
		md5_16k = digest.SumMD5(data)
	}
	name := filepath.Base(path)
	id := par2fmt.FileID(md5_16k, uint64(len(data)), name)

	var blocks [][]byte
	var verBlocks []par2fmt.BlockVerification
	for off := uint64(0); off < uint64(len(data)); off += sliceSize {
		end := off + sliceSize
		if end > uint64(len(data)) {
			end = uint64(len(data))
		}
		chunk := data[off:end]
		padded := chunk
		if uint64(len(chunk)) < sliceSize {
			padded = make([]byte, sliceSize)
			copy(padded, chunk)
		}
		blocks = append(blocks, padded)
		verBlocks = append(verBlocks, par2fmt.BlockVerification{MD5: digest.SumMD5(padded), CRC32: digest.ChecksumIEEE(padded)})
	}
	if len(blocks) == 0 {
		// A zero-length file still occupies one (empty, zero-padded)
		// block slot so it participates in the recovery matrix.
		padded := make([]byte, sliceSize)
		blocks = append(blocks, padded)
		verBlocks = append(verBlocks, par2fmt.BlockVerification{MD5: digest.SumMD5(padded), CRC32: digest.ChecksumIEEE(padded)})
	}

	return sourceBlocks{
		desc: par2fmt.FileDescriptionPacket{
			FileID: id, FullMD5: fullMD5, MD5_16k: md5_16k, Length: uint64(len(data)), Name: name,
		},
		verify: par2fmt.FileVerificationPacket{FileID: id, Blocks: verBlocks},
		blocks: blocks,
	}, nil
}

func writeVolumes(cfg Config, setID [16]byte, main par2fmt.MainPacket, clientID string, files []sourceBlocks, recovery []par2fmt.RecoveryPacket, log *logger.Logger) error {
	indexPath := cfg.OutputBase + ".par2"
	idx, err := os.Create(indexPath)
	if err != nil {
		return fmt.Errorf("creator: %w", err)
	}
	defer idx.Close()

	if err := par2fmt.EmitMain(idx, setID, main); err != nil {
		return err
	}
	if err := par2fmt.EmitCreator(idx, setID, par2fmt.CreatorPacket{ClientID: clientID}); err != nil {
		return err
	}
	for _, f := range files {
		if err := par2fmt.EmitFileDescription(idx, setID, f.desc); err != nil {
			return err
		}
		if err := par2fmt.EmitFileVerification(idx, setID, f.verify); err != nil {
			return err
		}
	}
	log.Successf("wrote index volume %s", indexPath)

	plans := SplitVolumes(cfg.Scheme, len(recovery), main.SliceSize, cfg.VolumeLimitSize)
	width := volumeFieldWidth(plans)
	criticalVolumes := criticalReplicationSet(len(plans))

	for vi, p := range plans {
		volPath := fmt.Sprintf("%s.vol%0*d+%0*d.par2", cfg.OutputBase, width, p.StartExponent, width, p.Count)
		vf, err := os.Create(volPath)
		if err != nil {
			return fmt.Errorf("creator: %w", err)
		}
		// Critical packets (Main, every FileDescription/FileVerification)
		// are only interleaved into the subset of volumes chosen by
		// criticalReplicationSet, not every volume: spec §4.9 calls for
		// ⌈log₂(count+1)⌉ copies spread across the set, not one per
		// volume, so a surviving volume from that subset plus the index
		// volume always suffices without bloating every single volume.
		if criticalVolumes[vi] {
			if err := par2fmt.EmitMain(vf, setID, main); err != nil {
				vf.Close()
				return err
			}
			for _, f := range files {
				if err := par2fmt.EmitFileDescription(vf, setID, f.desc); err != nil {
					vf.Close()
					return err
				}
				if err := par2fmt.EmitFileVerification(vf, setID, f.verify); err != nil {
					vf.Close()
					return err
				}
			}
		}
		for _, r := range recovery[p.StartExponent : p.StartExponent+p.Count] {
			if err := par2fmt.EmitRecovery(vf, setID, r); err != nil {
				vf.Close()
				return err
			}
		}
		if err := vf.Close(); err != nil {
			return err
		}
		log.Successf("wrote volume %d/%d: %s (%d recovery blocks)", vi+1, len(plans), volPath, p.Count)
	}
	return nil
}

// volumeFieldWidth returns the decimal digit width of the largest
// exponent/count value appearing across plans, used to zero-pad the
// "XXX"/"YYY" fields of every volume's filename to a common width
// (spec §4.9).
func volumeFieldWidth(plans []Plan) int {
	max := 0
	for _, p := range plans {
		if p.StartExponent > max {
			max = p.StartExponent
		}
		if p.Count > max {
			max = p.Count
		}
	}
	width := len(fmt.Sprintf("%d", max))
	if width < 1 {
		width = 1
	}
	return width
}

// criticalReplicationSet picks ⌈log₂(count+1)⌉ of the count volumes,
// evenly spaced, to carry a full copy of the critical packets (spec
// §4.9). With count==0 there is nothing to pick.
func criticalReplicationSet(count int) map[int]bool {
	out := make(map[int]bool)
	if count == 0 {
		return out
	}
	reps := ceilLog2(count + 1)
	if reps < 1 {
		reps = 1
	}
	if reps > count {
		reps = count
	}
	step := float64(count) / float64(reps)
	for i := 0; i < reps; i++ {
		idx := int(float64(i) * step)
		if idx >= count {
			idx = count - 1
		}
		out[idx] = true
	}
	return out
}

func ceilLog2(n int) int {
	if n <= 1 {
		return 0
	}
	bits := 0
	v := n - 1
	for v > 0 {
		bits++
		v >>= 1
	}
	return bits
}
