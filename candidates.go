package medusa

import (
	"fmt"
	"math/rand"
)

// SamplingMode selects the non-greedy acceptance and candidate-selection
// rule. Greedy decoding (temperature zero) ignores the mode entirely.
type SamplingMode int

const (
	// SamplingTypical accepts tokens within an entropy-relative likelihood
	// band, the default.
	SamplingTypical SamplingMode = iota

	// SamplingNucleus accepts tokens inside the smallest set whose
	// cumulative probability reaches TopP.
	SamplingNucleus
)

func (m SamplingMode) String() string {
	switch m {
	case SamplingTypical:
		return "typical"
	case SamplingNucleus:
		return "nucleus"
	default:
		return fmt.Sprintf("SamplingMode(%d)", int(m))
	}
}

// SamplingConfig carries the tunables shared by candidate expansion and
// posterior evaluation. The zero value is not useful; start from
// defaultGenerateConfig via the With* options instead.
type SamplingConfig struct {
	Temperature        float32
	PosteriorThreshold float32
	PosteriorAlpha     float32
	TopP               float32
	Mode               SamplingMode
	Fast               bool
}

// CandidateSet holds one step's concrete token sequences, ready for
// verification.
type CandidateSet struct {
	// Paths mirrors TreeBuffers.RetrieveIndex: one token sequence per
	// candidate path, position 0 carrying the previously accepted token.
	// Slots beyond the active window hold NoToken.
	Paths [][]int32

	// Tree is the flattened node-space token tensor submitted for
	// verification, covering the root and every depth within the active
	// window. Tree[n] is the token at node n.
	Tree []int32

	// ActiveHeads is the number of draft depths actually expanded.
	ActiveHeads int
}

// GenerateCandidates expands draft-head predictions into the candidate set
// for one step. draft holds one logit slice per head, in head order;
// prevToken is the token committed at the tree root. activeHeads limits how
// many depths are expanded: trailing depths collapse out of the submission
// without rebuilding the buffers. Pass the spec depth (or more) to use every
// head.
//
// At temperature zero selection is deterministic top-k per head. Otherwise
// tokens are ordered by seeded sampling without replacement inside the
// configured nucleus or typical set, so runs with equal seeds expand
// identical candidates.
func GenerateCandidates(draft [][]float32, prevToken int32, buf *TreeBuffers, activeHeads int, cfg SamplingConfig, rng *rand.Rand) (*CandidateSet, error) {
	depth := buf.Spec.Depth()
	if len(draft) < min(activeHeads, depth) {
		return nil, fmt.Errorf("have %d draft distributions, need %d", len(draft), min(activeHeads, depth))
	}
	if activeHeads < 1 {
		activeHeads = 1
	}
	if activeHeads > depth {
		activeHeads = depth
	}

	// One ranked token list per active depth; rank r of the spec entry
	// indexes this list.
	ranked := make([][]int32, activeHeads)
	for d := 0; d < activeHeads; d++ {
		need := 0
		for _, r := range buf.Spec[d] {
			if r+1 > need {
				need = r + 1
			}
		}
		ranked[d] = rankTokens(draft[d], need, cfg, rng)
	}

	numNodes := buf.Spec.NumNodes(activeHeads)
	tree := make([]int32, numNodes)
	tree[0] = prevToken
	for n := 1; n < numNodes; n++ {
		order := ranked[buf.depth(n)-1]
		rank := buf.Ranks[n]
		if rank >= len(order) {
			rank = len(order) - 1
		}
		tree[n] = order[rank]
	}

	paths := make([][]int32, len(buf.RetrieveIndex))
	for p, nodes := range buf.RetrieveIndex {
		row := make([]int32, len(nodes))
		for i, node := range nodes {
			if i > activeHeads || node == NoToken {
				row[i] = NoToken
				continue
			}
			row[i] = tree[node]
		}
		paths[p] = row
	}

	return &CandidateSet{Paths: paths, Tree: tree, ActiveHeads: activeHeads}, nil
}

// rankTokens produces the head's token selection order, at least need
// entries long.
func rankTokens(logits []float32, need int, cfg SamplingConfig, rng *rand.Rand) []int32 {
	if cfg.Temperature <= 0 {
		return topIndices(logits, need)
	}
	probs := softmaxTemp(logits, cfg.Temperature)
	var allowed []int32
	switch cfg.Mode {
	case SamplingNucleus:
		allowed = nucleusSet(probs, cfg.TopP)
	default:
		allowed = typicalSet(probs, cfg.PosteriorThreshold, cfg.PosteriorAlpha)
	}
	order := gumbelRank(probs, allowed, rng)
	if len(order) >= need {
		return order
	}
	// The allowed set came up short of the spec's widest rank; backfill
	// with the remaining tokens in plain probability order.
	seen := make(map[int32]bool, len(order))
	for _, id := range order {
		seen[id] = true
	}
	for _, id := range topIndices(logits, need+len(order)) {
		if !seen[id] {
			order = append(order, id)
			if len(order) >= need {
				break
			}
		}
	}
	return order
}
