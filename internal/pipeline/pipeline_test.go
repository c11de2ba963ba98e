package pipeline

import (
	"errors"
	"sync"
	"testing"
)

func TestPoolRunsAllTasks(t *testing.T) {
	p := NewPool(4)
	var mu sync.Mutex
	sum := 0
	for i := 1; i <= 100; i++ {
		i := i
		p.Submit(func() error {
			mu.Lock()
			sum += i
			mu.Unlock()
			return nil
		})
	}
	if err := p.Wait(); err != nil {
		t.Fatal(err)
	}
	if sum != 5050 {
		t.Fatalf("sum = %d, want 5050", sum)
	}
}

func TestPoolCancelsOnError(t *testing.T) {
	p := NewPool(2)
	boom := errors.New("boom")
	var ran int32
	for i := 0; i < 50; i++ {
		p.Submit(func() error {
			if p.Cancelled() {
				return nil
			}
			return boom
		})
	}
	err := p.Wait()
	if err != boom {
		t.Fatalf("err = %v, want boom", err)
	}
	_ = ran
}

func TestBufferPoolReusesFixedSize(t *testing.T) {
	bp := NewBufferPool(2, 16)
	a := bp.Get()
	b := bp.Get()
	if len(a) != 16 || len(b) != 16 {
		t.Fatalf("buffers not sized correctly: %d, %d", len(a), len(b))
	}
	bp.Put(a)
	bp.Put(b[:4]) // wrong size on return must be replaced, not corrupt the pool
	c := bp.Get()
	d := bp.Get()
	if len(c) != 16 || len(d) != 16 {
		t.Fatalf("pool yielded wrong-size buffer after mismatched Put: %d, %d", len(c), len(d))
	}
}

func TestOrderedAssemblerDrainsInOrder(t *testing.T) {
	var got []int
	asm := NewOrderedAssembler(func(index int, data []byte) error {
		got = append(got, index)
		return nil
	})
	// Submit out of order: 2, 0, 3, 1 — nothing should flush until 0
	// arrives, then everything contiguous drains at once.
	if err := asm.Submit(2, nil); err != nil {
		t.Fatal(err)
	}
	if asm.Pending() != 1 {
		t.Fatalf("pending = %d, want 1", asm.Pending())
	}
	if err := asm.Submit(0, nil); err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0] != 0 {
		t.Fatalf("got = %v, want [0]", got)
	}
	if err := asm.Submit(3, nil); err != nil {
		t.Fatal(err)
	}
	if err := asm.Submit(1, nil); err != nil {
		t.Fatal(err)
	}
	if len(got) != 4 {
		t.Fatalf("got = %v, want all 4 drained in order", got)
	}
	for i, v := range got {
		if v != i {
			t.Fatalf("got[%d] = %d, want %d", i, v, i)
		}
	}
}
