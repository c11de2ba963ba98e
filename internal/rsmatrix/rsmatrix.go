// Package rsmatrix implements C2: building the Vandermonde-style PAR2
// generator matrix and inverting the sub-matrix needed to reconstruct
// missing source blocks from present ones plus a set of recovery blocks.
package rsmatrix

import (
	"fmt"

	"github.com/zebware/par2/internal/gf16"
)

// MaxInputColumns is the largest number of distinct source-block columns
// the column-base generator can support: gcd(k, 65535) == 1 admits at most
// half the range in practice, and bases must stay invertible, so the
// generator is capped at 32768 distinct columns (spec §4.2 TooManyInputs).
const MaxInputColumns = 32768

// ErrTooManyInputs is returned when more distinct input columns are
// requested than the column-base generator can produce.
type ErrTooManyInputs struct{ Requested int }

func (e ErrTooManyInputs) Error() string {
	return fmt.Sprintf("rsmatrix: %d input columns exceeds the %d-column limit", e.Requested, MaxInputColumns)
}

// ErrSingular is returned when Gaussian elimination finds an all-zero
// pivot column — indicative of a corrupt or inconsistent recovery set
// rather than a solvable-but-slow case.
type ErrSingular struct{ Column int }

func (e ErrSingular) Error() string {
	return fmt.Sprintf("rsmatrix: singular matrix at column %d", e.Column)
}

func gcd(a, b uint32) uint32 {
	for b != 0 {
		a, b = b, a%b
	}
	return a
}

// ColumnBases returns n distinct GF(2^16) column bases, one per input
// column, chosen as the first antilog values whose discrete logarithm is
// relatively prime to 65535 — advancing a running counter across columns,
// exactly as spec §4.2 describes ("advancing a running counter across
// columns to keep the matrix well-conditioned").
func ColumnBases(n int) ([]uint16, error) {
	if n > MaxInputColumns {
		return nil, ErrTooManyInputs{Requested: n}
	}
	bases := make([]uint16, 0, n)
	for k := uint32(1); k <= gf16.Limit && len(bases) < n; k++ {
		if gcd(k, gf16.Limit) != 1 {
			continue
		}
		bases = append(bases, gf16.Antilog(uint16(k)))
	}
	if len(bases) < n {
		return nil, ErrTooManyInputs{Requested: n}
	}
	return bases, nil
}

// Plan describes the inputs to a reconstruction: which original source
// columns are present vs. missing, and which recovery exponents are used
// to fill exactly len(Missing) equations.
type Plan struct {
	// Bases holds one column base per original source-block column (both
	// present and missing), in source-block order.
	Bases []uint16
	// Present lists indices into Bases that are available data blocks.
	Present []int
	// Missing lists indices into Bases that must be reconstructed.
	Missing []int
	// Exponents lists exactly len(Missing) recovery-block exponents, used
	// in ascending order to build a square, hopefully-invertible system.
	Exponents []uint16
}

// Coefficients is the |Missing| x (|Present|+|Exponents|) matrix C from
// spec §4.2: row j gives, for each present source block (in Plan.Present
// order) followed by each used recovery block (in Plan.Exponents order),
// the GF16 coefficient to multiply that input by when accumulating output
// j = the j-th missing source block.
type Coefficients struct {
	Rows    int // len(Missing)
	Cols    int // len(Present) + len(Exponents)
	entries [][]uint16
}

// At returns the coefficient for output row and input column.
func (c *Coefficients) At(row, col int) uint16 { return c.entries[row][col] }

// Solve builds the reconstruction coefficient matrix for plan.
func Solve(plan Plan) (*Coefficients, error) {
	m := len(plan.Missing)
	if m == 0 {
		return &Coefficients{Rows: 0, Cols: len(plan.Present), entries: nil}, nil
	}
	if len(plan.Exponents) != m {
		return nil, fmt.Errorf("rsmatrix: need exactly %d recovery exponents, got %d", m, len(plan.Exponents))
	}

	// LeftMatrix[j][k] = base(missing_j) ^ exponent_k
	left := make([][]uint16, m)
	for j, mi := range plan.Missing {
		left[j] = make([]uint16, m)
		base := plan.Bases[mi]
		for k, e := range plan.Exponents {
			left[j][k] = gf16.Pow(base, uint32(e))
		}
	}

	inv, err := invert(left)
	if err != nil {
		return nil, err
	}

	cols := len(plan.Present) + len(plan.Exponents)
	entries := make([][]uint16, m)
	for j := 0; j < m; j++ {
		row := make([]uint16, cols)
		// Present-input coefficients: sum_k inv[k][j] * base(present_i)^exponent_k
		// (left[j][k] = base(missing_j)^exponent_k defines A with rows indexed
		// by missing block and columns by exponent; the physical system is
		// A^T * x = c, so x_j draws from column j of A^-1, i.e. inv[k][j],
		// not row j of it).
		for ci, pi := range plan.Present {
			base := plan.Bases[pi]
			var acc uint16
			for k, e := range plan.Exponents {
				acc ^= gf16.Mul(inv[k][j], gf16.Pow(base, uint32(e)))
			}
			row[ci] = acc
		}
		// Recovery-input coefficients: inv[k][j] directly.
		for k := range plan.Exponents {
			row[len(plan.Present)+k] = inv[k][j]
		}
		entries[j] = row
	}

	return &Coefficients{Rows: m, Cols: cols, entries: entries}, nil
}

// invert computes the inverse of a square GF(2^16) matrix via Gaussian
// elimination with partial pivoting (any nonzero entry qualifies as a
// pivot in a finite field — there is no notion of numerical stability to
// optimize for, only avoiding an all-zero column).
func invert(a [][]uint16) ([][]uint16, error) {
	n := len(a)
	// Work on a copy augmented with the identity matrix.
	work := make([][]uint16, n)
	for i := range a {
		row := make([]uint16, 2*n)
		copy(row, a[i])
		row[n+i] = 1
		work[i] = row
	}

	for col := 0; col < n; col++ {
		pivot := -1
		for r := col; r < n; r++ {
			if work[r][col] != 0 {
				pivot = r
				break
			}
		}
		if pivot == -1 {
			return nil, ErrSingular{Column: col}
		}
		work[col], work[pivot] = work[pivot], work[col]

		inv := gf16.Inv(work[col][col])
		if inv != 1 {
			r := work[col]
			for c := col; c < 2*n; c++ {
				r[c] = gf16.Mul(r[c], inv)
			}
		}

		for r := 0; r < n; r++ {
			if r == col {
				continue
			}
			factor := work[r][col]
			if factor == 0 {
				continue
			}
			pr, pc := work[r], work[col]
			for c := col; c < 2*n; c++ {
				pr[c] ^= gf16.Mul(factor, pc[c])
			}
		}
	}

	result := make([][]uint16, n)
	for i := range work {
		result[i] = append([]uint16(nil), work[i][n:]...)
	}
	return result, nil
}
