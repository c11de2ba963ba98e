package gf16

import "testing"

func TestAddIsXor(t *testing.T) {
	for _, a := range []uint16{0, 1, 2, 300, 65535} {
		if Add(a, a) != 0 {
			t.Errorf("Add(%d,%d) = %d, want 0", a, a, Add(a, a))
		}
	}
}

func TestMulByZero(t *testing.T) {
	for _, a := range []uint16{0, 1, 42, 65535} {
		if got := Mul(a, 0); got != 0 {
			t.Errorf("Mul(%d,0) = %d, want 0", a, got)
		}
	}
}

func TestMulInverse(t *testing.T) {
	for a := uint32(1); a <= Limit; a *= 7 {
		inv := Inv(uint16(a))
		if got := Mul(uint16(a), inv); got != 1 {
			t.Errorf("Mul(%d, Inv(%d)=%d) = %d, want 1", a, a, inv, got)
		}
	}
}

func TestMulCommutative(t *testing.T) {
	cases := []uint16{3, 17, 256, 12345, 65534}
	for _, a := range cases {
		for _, b := range cases {
			if Mul(a, b) != Mul(b, a) {
				t.Errorf("Mul(%d,%d) != Mul(%d,%d)", a, b, b, a)
			}
		}
	}
}

func TestByteMulTablesMatchesMul(t *testing.T) {
	tbl := LongMulTables()
	for _, factor := range []uint16{1, 2, 300, 40000, 65535} {
		L, H := tbl.Tables(factor)
		for _, s := range []uint16{0, 1, 255, 256, 4096, 65535} {
			lo, hi := byte(s), byte(s>>8)
			want := Mul(factor, s)
			got := L[lo] ^ H[hi]
			if got != want {
				t.Errorf("factor=%d s=%d: L^H = %d, want %d", factor, s, got, want)
			}
		}
	}
}

func TestPow(t *testing.T) {
	if Pow(2, 0) != 1 {
		t.Errorf("2^0 = %d, want 1", Pow(2, 0))
	}
	a := uint16(12345)
	got := Pow(a, 5)
	want := Mul(Mul(Mul(Mul(a, a), a), a), a)
	if got != want {
		t.Errorf("Pow(%d,5) = %d, want %d", a, got, want)
	}
}
