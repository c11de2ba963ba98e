package digest

import (
	"math/rand"
	"testing"
)

func TestSlidingCRCMatchesBruteForce(t *testing.T) {
	r := rand.New(rand.NewSource(1))
	data := make([]byte, 4096)
	r.Read(data)

	const width = 64
	sc := NewSlidingCRC(width)
	sc.Reset(ChecksumIEEE(data[0:width]))

	for i := 0; i+width+1 <= len(data); i++ {
		want := ChecksumIEEE(data[i+1 : i+1+width])
		sc.Roll(data[i], data[i+width])
		if got := sc.Value(); got != want {
			t.Fatalf("offset %d: rolling crc = %#x, want %#x", i, got, want)
		}
	}
}

func TestSumMD5(t *testing.T) {
	got := SumMD5([]byte("abc"))
	want := [16]byte{0x90, 0x01, 0x50, 0x98, 0x3c, 0xd2, 0x4f, 0xb0, 0xd6, 0x96, 0x3f, 0x7d, 0x28, 0xe1, 0x7f, 0x72}
	if got != want {
		t.Errorf("SumMD5(abc) = %x, want %x", got, want)
	}
}
