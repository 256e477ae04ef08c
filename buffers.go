package medusa

import (
	"sync"

	"golang.org/x/sync/singleflight"
)

// NoToken is the sentinel marking padded positions in retrieve-index paths
// and truncated candidate slots.
const NoToken = -1

// TreeBuffers is the fixed topology derived from a BranchSpec: everything
// tree verification needs that does not depend on the model or the current
// step. Buffers are pure functions of the spec, built once and shared
// read-only across steps, calls and engines.
type TreeBuffers struct {
	// Spec is the branch spec the buffers were built from.
	Spec BranchSpec

	// Parents maps each node to its parent node id. The root (node 0) is
	// excluded; Parents[i] is the parent of node i+1.
	Parents []int

	// RetrieveIndex lists every root-to-leaf path as node ids, padded to
	// Depth()+1 with NoToken, sorted by path length descending with ties
	// broken by declaration order.
	RetrieveIndex [][]int

	// PositionOffset gives each node's depth below the root. Added to the
	// committed sequence length it yields the node's absolute position id.
	PositionOffset []int

	// StructuralMask[a][b] is true iff node b is an ancestor of node a,
	// inclusive of a itself. During verification it replaces the causal
	// mask within the speculative region; committed tokens stay visible
	// through ordinary causal attention.
	StructuralMask [][]bool

	// Ranks gives each node's branch rank within the head distribution at
	// its depth; Ranks[0] is unused (the root carries the committed token).
	Ranks []int
}

// NumNodes returns the node count including the root.
func (b *TreeBuffers) NumNodes() int { return len(b.Parents) + 1 }

// Depth of node id n below the root.
func (b *TreeBuffers) depth(n int) int { return b.PositionOffset[n] }

// BuildTreeBuffers derives TreeBuffers from a validated BranchSpec. The
// build is deterministic: the tree is laid out breadth-first, root first,
// each depth's children consuming node ids in declared entry order.
func BuildTreeBuffers(spec BranchSpec) (*TreeBuffers, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	spec = spec.Clone()

	numNodes := spec.NumNodes(spec.Depth())
	buf := &TreeBuffers{
		Spec:           spec,
		Parents:        make([]int, 0, numNodes-1),
		PositionOffset: make([]int, 1, numNodes),
		Ranks:          make([]int, 1, numNodes),
	}

	// Breadth-first layout: frontier holds the node ids of the previous
	// depth, each of which spawns one child per declared rank.
	frontier := []int{0}
	next := 0
	for d, entry := range spec {
		var level []int
		for _, parent := range frontier {
			for _, rank := range entry {
				next++
				buf.Parents = append(buf.Parents, parent)
				buf.PositionOffset = append(buf.PositionOffset, d+1)
				buf.Ranks = append(buf.Ranks, rank)
				level = append(level, next)
			}
		}
		frontier = level
	}

	buf.StructuralMask = make([][]bool, numNodes)
	for n := 0; n < numNodes; n++ {
		row := make([]bool, numNodes)
		for a := n; ; a = buf.Parents[a-1] {
			row[a] = true
			if a == 0 {
				break
			}
		}
		buf.StructuralMask[n] = row
	}

	// Every leaf yields one candidate path of Depth()+1 nodes. The product
	// tree makes all paths the same length, so the length-descending sort
	// reduces to declaration order; the padding slot convention is kept for
	// truncated submissions.
	pathLen := spec.Depth() + 1
	buf.RetrieveIndex = make([][]int, 0, len(frontier))
	for _, leaf := range frontier {
		path := make([]int, pathLen)
		for i := range path {
			path[i] = NoToken
		}
		for n, i := leaf, pathLen-1; ; i-- {
			path[i] = n
			if n == 0 {
				break
			}
			n = buf.Parents[n-1]
		}
		buf.RetrieveIndex = append(buf.RetrieveIndex, path)
	}

	return buf, nil
}

// Process-wide buffer cache. Buffers are immutable, so engines building the
// same spec share one copy; singleflight collapses concurrent builds.
var (
	bufferCache sync.Map // spec key -> *TreeBuffers
	bufferGroup singleflight.Group
)

// treeBuffersFor returns cached buffers for the spec, building them on
// first use.
func treeBuffersFor(spec BranchSpec) (*TreeBuffers, error) {
	key := spec.Key()
	if cached, ok := bufferCache.Load(key); ok {
		return cached.(*TreeBuffers), nil
	}
	v, err, _ := bufferGroup.Do(key, func() (interface{}, error) {
		buf, err := BuildTreeBuffers(spec)
		if err != nil {
			return nil, err
		}
		bufferCache.Store(key, buf)
		return buf, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*TreeBuffers), nil
}
