// Package blockproc implements C3, the block processor: applying one GF16
// matrix coefficient to one input block, accumulating (XOR) into one output
// block. It exposes three interchangeable back-ends (scalar, word-parallel,
// GPU) behind a single dispatch function, mirroring how the teacher picks a
// storage/crypto code path at runtime via github.com/klauspost/cpuid rather
// than at compile time (spec §9 "Polymorphism (scalar vs SIMD vs GPU)").
package blockproc

import (
	"github.com/klauspost/cpuid"

	"github.com/zebware/par2/internal/gf16"
)

// Backend identifies which inner loop Process used.
type Backend int

const (
	// Scalar processes two bytes (one GF16 element) at a time via the
	// long-multiply L/H tables.
	Scalar Backend = iota
	// WordParallel processes 8 bytes (four GF16 elements) per iteration,
	// unrolled over two 32-bit halves with the same L/H table lookups as
	// Scalar, standing in for the teacher's MMX/SSE2 "SIMD (64-bit lane)"
	// back-end — the algebra is identical, only the width of the unit of
	// work changes (spec §4.3).
	WordParallel
	// GPU marks work dispatched to an external accelerator (see gpu.go).
	// A pure-CPU build never selects it; Capabilities().GPU is always
	// false unless a GPU engine has been registered.
	GPU
)

// Capabilities describes what back-ends this process can use, detected
// once at startup.
type Capabilities struct {
	WordParallel bool
	GPU          bool
}

var caps = detectCapabilities()

func detectCapabilities() Capabilities {
	// The word-parallel path uses only byte loads and table lookups, so
	// it needs no particular instruction set; a non-empty brand name
	// after cpuid.Detect is the signal that detection succeeded, and the
	// wide path is enabled on that signal alone.
	cpuid.Detect()
	return Capabilities{
		WordParallel: cpuid.CPU.BrandName != "",
		GPU:          false,
	}
}

// DetectedCapabilities returns the process-wide capability set.
func DetectedCapabilities() Capabilities { return caps }

// Processor applies one matrix coefficient across many (input, output)
// block pairs. It is safe for concurrent use: per the ordering guarantee in
// spec §4.3, XOR accumulation is commutative and associative, so calls may
// interleave across outputs and across inputs, the caller's only duty is to
// serialize concurrent writers of the *same* output buffer (the creator
// gives each recovery output buffer to a single pool task).
type Processor struct {
	tables *gf16.ByteMulTables
	gpu    GPUEngine // nil unless a GPU backend was registered
}

// New constructs a Processor. tables is shared process-wide.
func New() *Processor {
	return &Processor{tables: gf16.LongMulTables()}
}

// UseGPU installs a GPU engine. A pure-CPU Processor (UseGPU never called)
// is fully conforming, per spec §1.
func (p *Processor) UseGPU(e GPUEngine) { p.gpu = e }

// Process computes output[k] ^= factor * input[k] for all 16-bit little
// endian elements in the buffers. len(input) must equal len(output) and be
// a multiple of 2; for the GPU and word-parallel fast paths callers should
// further align to 4/8 bytes, but Process handles any even length
// correctly by falling back to the scalar path for buffers shorter than
// 8 bytes and for the tail left after the last whole 8-byte unit.
func (p *Processor) Process(factor uint16, input, output []byte) Backend {
	if len(input) != len(output) {
		panic("blockproc: input/output length mismatch")
	}
	if len(input)%2 != 0 {
		panic("blockproc: buffer length must be a multiple of 2")
	}
	if factor == 0 {
		return Scalar
	}

	if p.gpu != nil && len(input) >= 4 && len(input)%4 == 0 && p.gpu.Available(len(input)) {
		if p.gpu.Process(factor, input, output) {
			return GPU
		}
		// transparent fall-through to CPU on GPU failure.
	}

	L, H := p.tables.Tables(factor)

	n := len(input)
	used := Scalar
	// Buffers shorter than one 8-byte unit go through the scalar path a
	// pair at a time.
	i := 0
	for ; i+8 > n && i+2 <= n; i += 2 {
		scalarStep(input[i:i+2], output[i:i+2], L, H)
	}
	if caps.WordParallel {
		for ; i+8 <= n; i += 8 {
			wordStep(input[i:i+8], output[i:i+8], L, H)
			used = WordParallel
		}
	}
	// Tail.
	for ; i+2 <= n; i += 2 {
		scalarStep(input[i:i+2], output[i:i+2], L, H)
	}
	return used
}

func scalarStep(in, out []byte, L, H *[256]uint16) {
	v := L[in[0]] ^ H[in[1]]
	out[0] ^= byte(v)
	out[1] ^= byte(v >> 8)
}

// wordStep processes one 8-byte work unit (four GF16 elements), unrolled
// over two 32-bit halves as spec §4.3 describes for the SIMD back-end.
func wordStep(in, out []byte, L, H *[256]uint16) {
	for half := 0; half < 8; half += 4 {
		v0 := L[in[half+0]] ^ H[in[half+1]]
		out[half+0] ^= byte(v0)
		out[half+1] ^= byte(v0 >> 8)
		v1 := L[in[half+2]] ^ H[in[half+3]]
		out[half+2] ^= byte(v1)
		out[half+3] ^= byte(v1 >> 8)
	}
}
