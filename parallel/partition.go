package parallel

import (
	"fmt"
	"sort"
)

// SerialPartition reorders items[begin:end) so that all items for which
// isLeft returns true precede the rest and returns the index of the first
// right item. Every item is passed to add exactly once together with the
// accumulator of the side it ends up on.
func SerialPartition[T, A any](items []T, begin, end int, left, right *A, isLeft func(T) bool, add func(*A, T)) int {
	l, r := begin, end-1
	for {
		for l <= r && isLeft(items[l]) {
			add(left, items[l])
			l++
		}
		for l <= r && !isLeft(items[r]) {
			add(right, items[r])
			r--
		}
		if l > r {
			break
		}

		items[l], items[r] = items[r], items[l]
		add(left, items[l])
		add(right, items[r])
		l++
		r--
	}
	return l
}

// Partition is the concurrent version of SerialPartition. Each block of
// blockSize items is partitioned independently; items that ended up on the
// wrong side of the global split point are then swapped pairwise in
// parallel. Accumulators are produced per block and merged in block order.
//
// The relative order of items is not preserved.
func Partition[T, A any](items []T, begin, end, blockSize int, empty func() A, isLeft func(T) bool, add func(*A, T), merge func(*A, A)) (center int, left, right A) {
	left, right = empty(), empty()
	if end-begin <= blockSize {
		center = SerialPartition(items, begin, end, &left, &right, isLeft, add)
		return center, left, right
	}

	type blockResult struct {
		begin, mid, end int
		left, right     A
	}

	numBlocks := (end - begin + blockSize - 1) / blockSize
	blocks := make([]blockResult, numBlocks)
	For(0, numBlocks, 1, func(bb, be int) {
		for i := bb; i < be; i++ {
			res := &blocks[i]
			res.begin = begin + i*blockSize
			res.end = min(res.begin+blockSize, end)
			res.left, res.right = empty(), empty()
			res.mid = SerialPartition(items, res.begin, res.end, &res.left, &res.right, isLeft, add)
		}
	})

	center = begin
	for i := range blocks {
		center += blocks[i].mid - blocks[i].begin
		merge(&left, blocks[i].left)
		merge(&right, blocks[i].right)
	}

	// Right items below center and left items at or above center.
	var misplacedRight, misplacedLeft spanList
	for _, blk := range blocks {
		if blk.mid < center {
			misplacedRight.add(blk.mid, min(blk.end, center))
		}
		if lb := max(blk.begin, center); lb < blk.mid {
			misplacedLeft.add(lb, blk.mid)
		}
	}
	if misplacedRight.total != misplacedLeft.total {
		panic(fmt.Sprintf("parallel: partition mismatch: %d misplaced right items vs %d misplaced left items", misplacedRight.total, misplacedLeft.total))
	}

	For(0, misplacedRight.total, blockSize, func(kb, ke int) {
		ri, rp := misplacedRight.locate(kb)
		li, lp := misplacedLeft.locate(kb)
		for k := kb; k < ke; k++ {
			items[rp], items[lp] = items[lp], items[rp]
			ri, rp = misplacedRight.next(ri, rp)
			li, lp = misplacedLeft.next(li, lp)
		}
	})

	return center, left, right
}

// spanList is an ordered list of half-open index spans addressed by the
// rank of an index across all spans.
type spanList struct {
	spans  [][2]int
	starts []int
	total  int
}

func (l *spanList) add(begin, end int) {
	if end <= begin {
		return
	}
	l.spans = append(l.spans, [2]int{begin, end})
	l.starts = append(l.starts, l.total)
	l.total += end - begin
}

// locate returns the span index and array index of the k-th position.
func (l *spanList) locate(k int) (int, int) {
	i := sort.Search(len(l.starts), func(i int) bool { return l.starts[i] > k }) - 1
	if i < 0 {
		return 0, 0
	}
	return i, l.spans[i][0] + k - l.starts[i]
}

func (l *spanList) next(i, pos int) (int, int) {
	pos++
	if pos == l.spans[i][1] {
		i++
		if i < len(l.spans) {
			pos = l.spans[i][0]
		}
	}
	return i, pos
}
