package parallel

import (
	"math/rand"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestForVisitsEveryIndexOnce(t *testing.T) {
	const n = 10_000
	var hits [n]atomic.Int32

	For(0, n, 64, func(b, e int) {
		for i := b; i < e; i++ {
			hits[i].Add(1)
		}
	})

	for i := range hits {
		require.EqualValues(t, 1, hits[i].Load(), "index %d", i)
	}
}

func TestReduceMatchesSequentialSum(t *testing.T) {
	items := make([]int, 5000)
	for i := range items {
		items[i] = i
	}

	sum := func(b, e int) int {
		s := 0
		for i := b; i < e; i++ {
			s += items[i]
		}
		return s
	}
	add := func(a, b int) int { return a + b }

	exp := sum(0, len(items))
	require.Equal(t, exp, Reduce(0, len(items), 128, 1024, 0, sum, add))
	require.Equal(t, exp, Reduce(0, len(items), 128, len(items)+1, 0, sum, add))
	require.Equal(t, 0, Reduce(10, 10, 128, 0, 0, sum, add))
}

func TestReduceCombinesInOrder(t *testing.T) {
	// String concatenation is not commutative; the result must follow block order.
	digits := []byte("0123456789")
	got := Reduce(0, len(digits), 1, 0, "", func(b, e int) string {
		return string(digits[b:e])
	}, func(a, b string) string { return a + b })

	require.Equal(t, "0123456789", got)
}

type counts struct {
	n   int
	sum int
}

func TestPartition(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	isLeft := func(v int) bool { return v%3 == 0 }
	add := func(c *counts, v int) { c.n++; c.sum += v }
	merge := func(c *counts, o counts) { c.n += o.n; c.sum += o.sum }
	empty := func() counts { return counts{} }

	for _, size := range []int{0, 1, 7, 128, 129, 1000, 4321} {
		items := make([]int, size+10)
		for i := range items {
			items[i] = rng.Intn(1000)
		}
		serial := append([]int(nil), items...)

		begin, end := 5, 5+size
		center, left, right := Partition(items, begin, end, 128, empty, isLeft, add, merge)

		var sl, sr counts
		serialCenter := SerialPartition(serial, begin, end, &sl, &sr, isLeft, add)

		require.Equal(t, serialCenter, center, "size %d", size)
		require.Equal(t, sl, left, "size %d", size)
		require.Equal(t, sr, right, "size %d", size)
		require.Equal(t, left.n+right.n, size)

		for i := begin; i < center; i++ {
			require.True(t, isLeft(items[i]), "size %d: item %d should be left", size, i)
		}
		for i := center; i < end; i++ {
			require.False(t, isLeft(items[i]), "size %d: item %d should be right", size, i)
		}
		require.Equal(t, serial[:begin], items[:begin])
		require.Equal(t, serial[end:], items[end:])
		require.ElementsMatch(t, serial[begin:end], items[begin:end])
	}
}

func TestSetWorkersClamps(t *testing.T) {
	prev := Workers()
	defer SetWorkers(prev)

	SetWorkers(0)
	require.Equal(t, 1, Workers())

	// A single worker still covers every block.
	var total atomic.Int64
	For(0, 1000, 10, func(b, e int) { total.Add(int64(e - b)) })
	require.EqualValues(t, 1000, total.Load())
}

func TestWorkerPanicsReachCaller(t *testing.T) {
	require.PanicsWithValue(t, "block 3", func() {
		For(0, 10, 1, func(b, e int) {
			if b == 3 {
				panic("block 3")
			}
		})
	})

	var done atomic.Int32
	require.PanicsWithValue(t, "second", func() {
		Invoke(
			func() { done.Add(1) },
			func() { panic("second") },
			func() { done.Add(1) },
		)
	})
	require.EqualValues(t, 2, done.Load(), "every function must run to completion")

	require.Panics(t, func() {
		Reduce(0, 4096, 64, 0, 0,
			func(b, e int) int {
				if b >= 2048 {
					panic("reduce")
				}
				return e - b
			},
			func(a, b int) int { return a + b },
		)
	})
}
