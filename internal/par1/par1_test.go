package par1

import (
	"bytes"
	"testing"
)

func TestIsPAR1(t *testing.T) {
	if !IsPAR1([]byte{'P', 'A', 'R', 0, 1, 2, 3}) {
		t.Fatal("expected PAR1 signature to be recognized")
	}
	if IsPAR1([]byte("PAR2\x00PKT")) {
		t.Fatal("PAR2 magic must not be mistaken for PAR1")
	}
	if IsPAR1([]byte{'P', 'A'}) {
		t.Fatal("short buffer must not match")
	}
}

func TestSniff(t *testing.T) {
	ok, err := Sniff(bytes.NewReader([]byte{'P', 'A', 'R', 0, 9, 9}))
	if err != nil || !ok {
		t.Fatalf("ok=%v err=%v, want true, nil", ok, err)
	}
	ok, err = Sniff(bytes.NewReader([]byte("PAR2\x00PKT")))
	if err != nil || ok {
		t.Fatalf("ok=%v err=%v, want false, nil", ok, err)
	}
}
