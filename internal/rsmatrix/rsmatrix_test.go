package rsmatrix

import (
	"testing"

	"github.com/zebware/par2/internal/gf16"
)

func TestColumnBasesDistinctAndCoprime(t *testing.T) {
	bases, err := ColumnBases(100)
	if err != nil {
		t.Fatal(err)
	}
	seen := map[uint16]bool{}
	for _, b := range bases {
		if seen[b] {
			t.Fatalf("duplicate base %d", b)
		}
		seen[b] = true
		if gcd(uint32(gf16.Log(b)), gf16.Limit) != 1 {
			t.Fatalf("base %d has log %d not coprime to %d", b, gf16.Log(b), gf16.Limit)
		}
	}
}

func TestColumnBasesTooMany(t *testing.T) {
	if _, err := ColumnBases(MaxInputColumns + 1); err == nil {
		t.Fatal("expected ErrTooManyInputs")
	}
}

// TestReconstructRoundTrip builds n data values, computes recovery values
// for a set of exponents via the encoding matrix (present-identity rows +
// recovery rows), removes some data values, and checks Solve's coefficient
// matrix reconstructs them exactly — spec §8 invariant 2/3 at the matrix
// layer.
func TestReconstructRoundTrip(t *testing.T) {
	n := 20
	bases, err := ColumnBases(n)
	if err != nil {
		t.Fatal(err)
	}

	data := make([]uint16, n)
	for i := range data {
		data[i] = uint16(1000 + i*137)
	}

	missingIdx := []int{2, 5, 13}
	exponents := []uint16{0, 1, 2}

	recovery := make([]uint16, len(exponents))
	for k, e := range exponents {
		var acc uint16
		for i, base := range bases {
			acc ^= gf16.Mul(gf16.Pow(base, uint32(e)), data[i])
		}
		recovery[k] = acc
	}

	missingSet := map[int]bool{}
	for _, m := range missingIdx {
		missingSet[m] = true
	}
	var present []int
	for i := 0; i < n; i++ {
		if !missingSet[i] {
			present = append(present, i)
		}
	}

	plan := Plan{Bases: bases, Present: present, Missing: missingIdx, Exponents: exponents}
	coef, err := Solve(plan)
	if err != nil {
		t.Fatal(err)
	}

	for j, mi := range missingIdx {
		var acc uint16
		for ci, pi := range present {
			acc ^= gf16.Mul(coef.At(j, ci), data[pi])
		}
		for k := range exponents {
			acc ^= gf16.Mul(coef.At(j, len(present)+k), recovery[k])
		}
		if acc != data[mi] {
			t.Errorf("missing[%d]=%d: reconstructed %d, want %d", j, mi, acc, data[mi])
		}
	}
}

func TestSolveNoMissing(t *testing.T) {
	coef, err := Solve(Plan{Present: []int{0, 1, 2}})
	if err != nil {
		t.Fatal(err)
	}
	if coef.Rows != 0 {
		t.Errorf("expected 0 rows, got %d", coef.Rows)
	}
}
