// Package pipeline implements C11: bounded-concurrency scaffolding — a
// worker pool with a single cancellation flag (used by the creator to
// compute recovery blocks), a bounded buffer pool, and an ordered
// assembler that lets out-of-order parallel block results be emitted
// strictly in order. Neither the creator nor the repair driver uses the
// buffer pool or the ordered assembler. The ordered assembler is
// grounded directly on the teacher's backgroundAppend/appendFileMap
// pattern (cmd/fs-v1-multipart.go): buffer whatever arrives early in a
// map, drain in sequence only once the next expected index shows up.
package pipeline

import (
	"sync"
	"sync/atomic"

	"github.com/gammazero/workerpool"
)

// Pool runs submitted work concurrently, bounded to a fixed worker
// count, and carries a single "not-ok" cancellation flag: once any
// submitted task fails, later tasks become no-ops and Wait returns the
// first error seen (spec §4.11 "cancellation").
type Pool struct {
	wp        *workerpool.WorkerPool
	cancelled int32

	mu      sync.Mutex
	firstErr error
}

// NewPool starts a pool with the given worker count.
func NewPool(workers int) *Pool {
	if workers < 1 {
		workers = 1
	}
	return &Pool{wp: workerpool.New(workers)}
}

// Cancelled reports whether some earlier task has already failed.
func (p *Pool) Cancelled() bool { return atomic.LoadInt32(&p.cancelled) != 0 }

// Cancel records err (if it's the first) and flips the not-ok flag so
// pending and future Submit calls skip their work.
func (p *Pool) Cancel(err error) {
	if err == nil {
		return
	}
	p.mu.Lock()
	if p.firstErr == nil {
		p.firstErr = err
	}
	p.mu.Unlock()
	atomic.StoreInt32(&p.cancelled, 1)
}

// Submit queues fn to run on a worker goroutine. If the pool is already
// cancelled, fn never runs.
func (p *Pool) Submit(fn func() error) {
	p.wp.Submit(func() {
		if p.Cancelled() {
			return
		}
		if err := fn(); err != nil {
			p.Cancel(err)
		}
	})
}

// Wait blocks until every submitted task has completed (or been
// skipped) and returns the first error recorded, if any.
func (p *Pool) Wait() error {
	p.wp.StopWait()
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.firstErr
}

// BufferPool hands out fixed-size byte buffers from a bounded pool, so
// a producer that runs ahead of its consumers blocks on Get instead of
// growing memory use without limit (spec §4.11 "bounded buffers").
type BufferPool struct {
	size int
	ch   chan []byte
}

// NewBufferPool preallocates n buffers of size bytes each.
func NewBufferPool(n, size int) *BufferPool {
	if n < 1 {
		n = 1
	}
	bp := &BufferPool{size: size, ch: make(chan []byte, n)}
	for i := 0; i < n; i++ {
		bp.ch <- make([]byte, size)
	}
	return bp
}

// Get blocks until a buffer is available.
func (b *BufferPool) Get() []byte { return <-b.ch }

// Put returns a buffer to the pool, replacing it if its length was
// changed by the caller (a buffer pool member must always be exactly
// the configured size so a later Get never hands out a short slice).
func (b *BufferPool) Put(buf []byte) {
	if len(buf) != b.size {
		buf = make([]byte, b.size)
	}
	b.ch <- buf
}

// OrderedAssembler re-serializes results produced out of order by
// parallel workers. Submit may be called with indices in any order
// from any number of goroutines; onReady fires for index 0, 1, 2, ...
// strictly in sequence, exactly once the run becomes contiguous, the
// same discipline the teacher's multipart append loop uses to decide
// which part can be appended next.
type OrderedAssembler struct {
	mu      sync.Mutex
	next    int
	pending map[int][]byte
	onReady func(index int, data []byte) error
}

// NewOrderedAssembler builds an assembler starting at index 0.
func NewOrderedAssembler(onReady func(index int, data []byte) error) *OrderedAssembler {
	return &OrderedAssembler{pending: make(map[int][]byte), onReady: onReady}
}

// Submit records data for index, then drains every now-contiguous
// pending index through onReady.
func (a *OrderedAssembler) Submit(index int, data []byte) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.pending[index] = data
	for {
		d, ok := a.pending[a.next]
		if !ok {
			break
		}
		delete(a.pending, a.next)
		if err := a.onReady(a.next, d); err != nil {
			return err
		}
		a.next++
	}
	return nil
}

// Pending reports how many out-of-order results are buffered waiting
// for the gap at a.next to close.
func (a *OrderedAssembler) Pending() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.pending)
}
