package medusa

import (
	"fmt"
	"math/rand"
)

// runningState is the per-call mutable state of one generation stream. The
// decoding loop owns the sequence; the cache length counter is advanced
// only through commitStep. Nothing here is shared between streams.
type runningState struct {
	seq       []int32 // prompt + committed tokens + the pending tree root
	promptLen int
	generated int   // committed tokens past the prompt, pending root included
	history   []int // accept length per step, read by the adaptive policies
}

// commitOutcome is what one accepted step hands back to the loop.
type commitOutcome struct {
	newTokens  []int32   // tokens committed this step, the tree root first
	nextRoot   int32     // freshly drawn token, pending as the next tree root
	nextHidden []float32 // hidden state at the last accepted node
}

// commitStep makes the selected path permanent. It gathers exactly the
// key/value scratch rows of the accepted nodes onto the linear cache region
// (advancing the committed length by acceptLength and discarding every
// rejected branch), then draws the bonus token from the verified
// distribution at the last accepted position. After the commit the cache is
// indistinguishable from one produced by ordinary sequential decoding of
// the accepted tokens.
func commitStep(cache CacheState, buf *TreeBuffers, cands *CandidateSet, verified *VerifiedLogits, eval *Evaluation, bestPath, acceptLength int, cfg SamplingConfig, rng *rand.Rand) (*commitOutcome, error) {
	nodes := buf.RetrieveIndex[bestPath][:acceptLength]
	base := cache.Len()

	// Submission order is breadth-first from the root, so a node's id is
	// also its scratch-row offset.
	rows := make([]int, acceptLength)
	for i, node := range nodes {
		rows[i] = base + node
	}
	if err := cache.Commit(rows); err != nil {
		return nil, fmt.Errorf("cache commit: %w", err)
	}

	lastDist := verified.Paths[bestPath][acceptLength-1]
	var nextRoot int32
	if cfg.Temperature <= 0 {
		nextRoot = int32(argmax(lastDist))
	} else {
		probs := softmaxTemp(lastDist, cfg.Temperature)
		nextRoot = int32(sampleMult(probs, rng.Float32()))
	}

	// The root only becomes part of the committed sequence now; the bonus
	// token stays pending until the next step's commit, mirroring the
	// cache, which holds key/value rows for the root but not the bonus.
	newTokens := append([]int32(nil), cands.Paths[bestPath][:acceptLength]...)

	return &commitOutcome{
		newTokens:  newTokens,
		nextRoot:   nextRoot,
		nextHidden: eval.Hidden[nodes[acceptLength-1]],
	}, nil
}
