package blockproc

import (
	"bytes"
	"testing"

	"github.com/zebware/par2/internal/gf16"
)

func TestProcessMatchesNaiveMul(t *testing.T) {
	p := New()
	sizes := []int{2, 4, 8, 10, 16, 6}
	for _, n := range sizes {
		input := make([]byte, n)
		for i := range input {
			input[i] = byte(i*37 + 11)
		}
		factor := uint16(12345)

		got := make([]byte, n)
		p.Process(factor, input, got)

		want := make([]byte, n)
		for i := 0; i+2 <= n; i += 2 {
			s := uint16(input[i]) | uint16(input[i+1])<<8
			v := gf16.Mul(factor, s)
			want[i] ^= byte(v)
			want[i+1] ^= byte(v >> 8)
		}
		if !bytes.Equal(got, want) {
			t.Errorf("size %d: got %v, want %v", n, got, want)
		}
	}
}

func TestProcessAccumulates(t *testing.T) {
	p := New()
	input1 := []byte{1, 0, 2, 0, 3, 0, 4, 0}
	input2 := []byte{5, 0, 6, 0, 7, 0, 8, 0}
	out := make([]byte, 8)
	p.Process(3, input1, out)
	p.Process(7, input2, out)

	want := make([]byte, 8)
	p2 := New()
	p2.Process(3, input1, want)
	p2.Process(7, input2, want)
	if !bytes.Equal(out, want) {
		t.Errorf("accumulation mismatch: got %v want %v", out, want)
	}
}

func TestProcessZeroFactorNoop(t *testing.T) {
	p := New()
	input := []byte{9, 9, 9, 9}
	out := []byte{1, 2, 3, 4}
	before := append([]byte(nil), out...)
	p.Process(0, input, out)
	if !bytes.Equal(out, before) {
		t.Errorf("zero factor should be a no-op, got %v want %v", out, before)
	}
}
