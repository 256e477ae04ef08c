package medusa

import (
	"fmt"
	"strings"
)

// BranchSpec declares the shape of the speculative draft tree, one entry per
// draft head. Entry i lists the head ranks expanded at tree depth i+1: its
// length is the branching factor at that depth, and each value selects the
// rank (0 = most likely) taken from head i's distribution. Every surviving
// node at depth d spawns the full entry for depth d+1, so a spec of widths
// 4, 3, 2 produces 4*3*2 = 24 candidate paths.
//
// Entries must not widen after narrowing: once a depth uses fewer branches
// than the depth above it, no later depth may use more. A BranchSpec is
// immutable once handed to the engine; buffers derived from it are cached
// and shared.
//
// Most callers want NewBranchSpec, which expands plain widths into rank
// lists:
//
//	spec := medusa.NewBranchSpec(4, 3, 2) // top-4, then top-3, then top-2
type BranchSpec [][]int

// NewBranchSpec builds a BranchSpec from per-depth widths. Width w at depth
// d expands the top-w tokens of head d's distribution.
func NewBranchSpec(widths ...int) BranchSpec {
	spec := make(BranchSpec, len(widths))
	for i, w := range widths {
		ranks := make([]int, 0, max(w, 0))
		for r := 0; r < w; r++ {
			ranks = append(ranks, r)
		}
		spec[i] = ranks
	}
	return spec
}

// Validate checks the spec against the structural rules. It returns a
// *SpecError (wrapping ErrInvalidSpec) on the first violation found:
// no entries, an empty entry, a negative rank, or an entry wider than the
// one before it.
func (s BranchSpec) Validate() error {
	if len(s) == 0 {
		return &SpecError{Depth: -1, Reason: "no entries"}
	}
	prevWidth := -1
	for i, entry := range s {
		if len(entry) == 0 {
			return &SpecError{Depth: i, Reason: "empty entry (branching factor must be positive)"}
		}
		for _, rank := range entry {
			if rank < 0 {
				return &SpecError{Depth: i, Reason: fmt.Sprintf("negative rank %d", rank)}
			}
		}
		if prevWidth >= 0 && len(entry) > prevWidth {
			return &SpecError{Depth: i, Reason: fmt.Sprintf(
				"width %d exceeds width %d of the previous depth (a path cannot widen after narrowing)",
				len(entry), prevWidth)}
		}
		prevWidth = len(entry)
	}
	return nil
}

// Depth returns the number of draft-head depths the spec covers.
func (s BranchSpec) Depth() int { return len(s) }

// Width returns the branching factor at the given zero-based depth.
func (s BranchSpec) Width(depth int) int { return len(s[depth]) }

// NumPaths returns the number of root-to-leaf candidate paths, i.e. the
// product of the branching factors.
func (s BranchSpec) NumPaths() int {
	n := 1
	for _, entry := range s {
		n *= len(entry)
	}
	return n
}

// NumNodes returns the total node count of the draft tree including the
// root, optionally truncated to the first activeHeads depths. Pass Depth()
// (or any larger value) for the full tree.
func (s BranchSpec) NumNodes(activeHeads int) int {
	n, level := 1, 1
	for d, entry := range s {
		if d >= activeHeads {
			break
		}
		level *= len(entry)
		n += level
	}
	return n
}

// Key returns a canonical string encoding of the spec, used as the cache
// key for derived tree buffers. Identical specs always produce identical
// keys.
func (s BranchSpec) Key() string {
	var b strings.Builder
	for i, entry := range s {
		if i > 0 {
			b.WriteByte(';')
		}
		for j, rank := range entry {
			if j > 0 {
				b.WriteByte(',')
			}
			fmt.Fprintf(&b, "%d", rank)
		}
	}
	return b.String()
}

// Clone returns a deep copy. The engine clones caller-supplied specs so
// later mutation by the caller cannot corrupt cached buffers.
func (s BranchSpec) Clone() BranchSpec {
	out := make(BranchSpec, len(s))
	for i, entry := range s {
		out[i] = append([]int(nil), entry...)
	}
	return out
}
