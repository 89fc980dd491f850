// Package parallel provides the fork-join primitives used by the BVH
// builder. Every call blocks until all the work it spawned has completed.
package parallel

import (
	"runtime"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
)

var workerLimit atomic.Int32

func init() {
	workerLimit.Store(int32(runtime.GOMAXPROCS(0)))
}

// SetWorkers caps the number of goroutines a single call may run
// concurrently. Values < 1 are clamped to 1.
func SetWorkers(n int) {
	if n < 1 {
		n = 1
	}
	workerLimit.Store(int32(n))
}

// Workers returns the current per-call concurrency limit.
func Workers() int {
	return int(workerLimit.Load())
}

// workerPanic holds the first panic raised by a worker goroutine so that it
// can be raised again on the calling goroutine once all workers are done.
type workerPanic struct {
	mu    sync.Mutex
	value any
	set   bool
}

func (p *workerPanic) capture() {
	if v := recover(); v != nil {
		p.mu.Lock()
		if !p.set {
			p.value, p.set = v, true
		}
		p.mu.Unlock()
	}
}

func (p *workerPanic) rethrow() {
	if p.set {
		panic(p.value)
	}
}

// For splits [begin, end) into chunks of at most blockSize items and invokes
// body for each chunk. Chunks run concurrently. If body panics the panic is
// raised again by For after all chunks have completed.
func For(begin, end, blockSize int, body func(b, e int)) {
	if end <= begin {
		return
	}
	if blockSize < 1 {
		blockSize = 1
	}
	if end-begin <= blockSize {
		body(begin, end)
		return
	}

	var (
		g      errgroup.Group
		failed workerPanic
	)
	g.SetLimit(Workers())
	for b := begin; b < end; b += blockSize {
		b := b
		e := min(b+blockSize, end)
		g.Go(func() error {
			defer failed.capture()
			body(b, e)
			return nil
		})
	}
	_ = g.Wait()
	failed.rethrow()
}

// Reduce evaluates body over chunks of [begin, end) and folds the partial
// results with combine. Ranges smaller than threshold are processed by the
// calling goroutine in one chunk.
//
// Partial results are always combined in chunk order starting from identity
// so the result does not depend on goroutine scheduling.
func Reduce[T any](begin, end, blockSize, threshold int, identity T, body func(b, e int) T, combine func(a, b T) T) T {
	if end <= begin {
		return identity
	}
	if end-begin < threshold || end-begin <= blockSize {
		return combine(identity, body(begin, end))
	}

	numBlocks := (end - begin + blockSize - 1) / blockSize
	partials := make([]T, numBlocks)
	For(0, numBlocks, 1, func(bb, be int) {
		for i := bb; i < be; i++ {
			b := begin + i*blockSize
			partials[i] = body(b, min(b+blockSize, end))
		}
	})

	acc := identity
	for _, p := range partials {
		acc = combine(acc, p)
	}
	return acc
}

// Invoke runs all fns concurrently and waits for them to return. Panics are
// propagated like in For.
func Invoke(fns ...func()) {
	var (
		g      errgroup.Group
		failed workerPanic
	)
	for _, fn := range fns {
		fn := fn
		g.Go(func() error {
			defer failed.capture()
			fn()
			return nil
		})
	}
	_ = g.Wait()
	failed.rethrow()
}
