package bvh

import (
	"sync"
	"time"

	"github.com/achilleasa/openmerge/log"
	"github.com/achilleasa/openmerge/parallel"
	"github.com/achilleasa/openmerge/types"
)

// Options control the BVH builder and the split heuristic.
type Options struct {
	// Ranges with this many references or fewer become leafs.
	MinLeafItems int

	// Ranges at this depth become leafs regardless of their size.
	MaxDepth int

	// References are costed in blocks of 1<<LogBlockSize by the SAH.
	LogBlockSize uint

	// Node opening strategy.
	Policy OpeningPolicy

	// Verify the window invariants of every split. Violations panic.
	Validate bool

	// Optional build metrics.
	Metrics *Metrics

	// Optional callback invoked for every created leaf. It must be safe for
	// concurrent use.
	LeafCallback LeafCallback
}

// Get the default builder options.
func DefaultOptions() Options {
	return Options{
		MinLeafItems: 4,
		MaxDepth:     64,
	}
}

// A callback that is called whenever the BVH builder creates a new leaf.
// Subtrees of large ranges are built concurrently so the callback may be
// invoked from several goroutines at once and must be safe for concurrent
// use.
type LeafCallback func(leaf *Node, refs []PrimRef)

// Node is an entry of the flat node list produced by Build.
type Node struct {
	Bounds types.BBox

	// Child node indices; both are -1 for leafs.
	Left, Right int32

	// Leafs only: the references [First, First+Count) of Tree.Prims.
	First, Count int32
}

// Returns true if this node is a leaf.
func (n Node) IsLeaf() bool {
	return n.Left < 0
}

// Stats collected while building a tree.
type Stats struct {
	Nodes            int
	Leafs            int
	MaxDepth         int
	PartitionedItems int
	ExtraElements    int
	FallbackSplits   int
	BuildTime        time.Duration
}

// Tree is the result of a BVH build. The root node, if any, is Nodes[0].
type Tree struct {
	Nodes []Node
	Prims []PrimRef
	Stats Stats
}

// Get the references stored in a leaf node.
func (t *Tree) LeafRefs(n Node) []PrimRef {
	return t.Prims[n.First : n.First+n.Count]
}

type builder struct {
	logger    log.Logger
	heuristic *Heuristic
	opts      Options

	mu    sync.Mutex
	nodes []Node
	stats Stats
}

// Build constructs a BVH over the first numPrims references of prims. The
// remaining len(prims)-numPrims slots are the spare capacity available to
// node opening for the whole build; opener is only invoked on node
// references and may be nil if there is no spare capacity.
func Build(prims []PrimRef, numPrims int, opener NodeOpener, opts Options) *Tree {
	invariant(numPrims >= 0 && numPrims <= len(prims), "%d references do not fit an array of %d slots", numPrims, len(prims))
	if opts.MinLeafItems < 1 {
		opts.MinLeafItems = 1
	}
	if opts.MaxDepth < 1 {
		opts.MaxDepth = DefaultOptions().MaxDepth
	}

	b := &builder{
		logger:    log.New("bvh"),
		heuristic: NewHeuristic(prims, opener, opts),
		opts:      opts,
		nodes:     make([]Node, 0, 2*numPrims/opts.MinLeafItems+1),
	}

	start := time.Now()
	if numPrims > 0 {
		b.partition(rootRange(prims, numPrims), 0)
	}
	b.stats.BuildTime = time.Since(start)
	b.opts.Metrics.observeBuild(b.stats.BuildTime.Seconds())

	b.logger.Debugf(
		"BVH tree build time: %d ms, maxDepth: %d, nodes: %d, leafs: %d, opened slots: %d, fallback splits: %d",
		b.stats.BuildTime.Nanoseconds()/1e6,
		b.stats.MaxDepth, b.stats.Nodes, b.stats.Leafs,
		b.stats.ExtraElements, b.stats.FallbackSplits,
	)

	return &Tree{
		Nodes: b.nodes,
		Prims: prims,
		Stats: b.stats,
	}
}

func rootRange(prims []PrimRef, numPrims int) ExtRange {
	info := parallel.Reduce(0, numPrims, parallelFindBlockSize, ParallelThreshold, EmptyPrimInfo(),
		func(b, e int) PrimInfo {
			info := EmptyPrimInfo()
			for i := b; i < e; i++ {
				info.Add(prims[i])
			}
			return info
		},
		func(a, b PrimInfo) PrimInfo {
			a.Merge(b)
			return a
		},
	)
	return NewExtRange(0, numPrims, len(prims), info)
}

// Partition range and return node index.
func (b *builder) partition(r ExtRange, depth int) int32 {
	if r.Size() <= b.opts.MinLeafItems || depth >= b.opts.MaxDepth {
		return b.createLeaf(r, depth)
	}

	end := r.End
	split := b.heuristic.Find(&r, b.opts.LogBlockSize)
	extra := r.End - end

	left, right := b.heuristic.Split(split, r)
	if b.opts.Validate {
		if err := CheckSplit(r, left, right); err != nil {
			panic(err)
		}
		invariant(left.Size() > 0 && right.Size() > 0, "split of %d references produced children of size %d and %d", r.Size(), left.Size(), right.Size())
	}

	b.mu.Lock()
	nodeIndex := int32(len(b.nodes))
	b.nodes = append(b.nodes, Node{Bounds: r.GeomBounds})
	b.stats.Nodes++
	b.stats.ExtraElements += extra
	if !split.Valid() {
		b.stats.FallbackSplits++
	}
	b.mu.Unlock()

	// Sibling windows are disjoint so both children can be built at once.
	var leftIndex, rightIndex int32
	if r.Size() >= ParallelThreshold {
		parallel.Invoke(
			func() { leftIndex = b.partition(left, depth+1) },
			func() { rightIndex = b.partition(right, depth+1) },
		)
	} else {
		leftIndex = b.partition(left, depth+1)
		rightIndex = b.partition(right, depth+1)
	}

	b.mu.Lock()
	b.nodes[nodeIndex].Left = leftIndex
	b.nodes[nodeIndex].Right = rightIndex
	b.mu.Unlock()

	return nodeIndex
}

// Setup a leaf node containing all references in r. Returns the index to
// the node in the node list.
func (b *builder) createLeaf(r ExtRange, depth int) int32 {
	node := Node{
		Bounds: r.GeomBounds,
		Left:   -1,
		Right:  -1,
		First:  int32(r.Begin),
		Count:  int32(r.Size()),
	}
	if b.opts.LeafCallback != nil {
		b.opts.LeafCallback(&node, b.heuristic.prims[r.Begin:r.End])
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	nodeIndex := int32(len(b.nodes))
	b.nodes = append(b.nodes, node)
	b.stats.Leafs++
	b.stats.PartitionedItems += r.Size()
	if depth > b.stats.MaxDepth {
		b.stats.MaxDepth = depth
	}
	return nodeIndex
}
