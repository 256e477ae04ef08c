package medusa

import (
	"context"
	"fmt"
)

// VerifiedLogits holds the base model's output for every candidate path,
// reordered from node space into path space. Paths[p][i] is the logit slice
// the model produced at position i of path p; entries beyond the active
// window are nil.
type VerifiedLogits struct {
	Paths [][][]float32
}

// VerifyTree submits the candidate tree to the sequence model in a single
// batched forward pass and reorders the per-node output into path space.
//
// Node n is placed at absolute position cache.Len() + depth(n), and the
// buffers' structural mask restricts attention within the submission to
// ancestor pairs; the committed prefix stays visible causally. The call is
// pure with respect to shared state: scratch key/value rows are written
// beyond the committed frontier and only a later CacheState.Commit makes
// any of them permanent.
func VerifyTree(ctx context.Context, model SequenceModel, cache CacheState, buf *TreeBuffers, cands *CandidateSet) (*VerifiedLogits, *Evaluation, error) {
	numNodes := len(cands.Tree)
	base := cache.Len()

	positions := make([]int32, numNodes)
	mask := make([][]bool, numNodes)
	for n := 0; n < numNodes; n++ {
		positions[n] = int32(base + buf.depth(n))
		mask[n] = buf.StructuralMask[n][:numNodes]
	}

	eval, err := model.Evaluate(ctx, cands.Tree, positions, mask, cache)
	if err != nil {
		return nil, nil, err
	}
	if len(eval.Logits) != numNodes {
		return nil, nil, fmt.Errorf("model returned %d distributions for %d nodes", len(eval.Logits), numNodes)
	}

	verified := &VerifiedLogits{Paths: make([][][]float32, len(buf.RetrieveIndex))}
	for p, nodes := range buf.RetrieveIndex {
		row := make([][]float32, len(nodes))
		for i, node := range nodes {
			if i > cands.ActiveHeads || node == NoToken {
				break
			}
			row[i] = eval.Logits[node]
		}
		verified.Paths[p] = row
	}
	return verified, eval, nil
}
