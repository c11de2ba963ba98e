package blockproc

// GPUEngine is the capability interface spec §4.3/§9 describes: "a
// persistent worker thread owns device memory for N output blocks and S
// concurrent task slots." No CUDA/OpenCL binding is implemented here (the
// original's cuda.cpp/cuda.h are carried only as this interface, per
// SPEC_FULL.md's "GPU/CUDA backend" note) — a pure-CPU Processor never
// registers one, and remains fully conforming.
type GPUEngine interface {
	// Available reports whether the engine can currently accept a buffer
	// of the given length (a positive multiple of 4) without blocking
	// past what the caller is willing to wait.
	Available(length int) bool

	// Process multiplies input by factor into output on the device,
	// returning false (with no side effects) if the engine could not
	// complete the operation and the caller should fall back to CPU.
	Process(factor uint16, input, output []byte) bool
}
