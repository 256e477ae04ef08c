package medusa

import (
	"fmt"
	"math"
	"math/rand"
)

// EvaluatePosterior scores every candidate path against the verified
// distributions and selects the winner. It returns the path index into the
// candidate set and the accepted length: the number of committed-quality
// tokens at the head of that path, counting the already-committed root, so
// the result is always at least 1 and the loop makes forward progress every
// step.
//
// At temperature zero a position is accepted iff the candidate token is the
// verified distribution's argmax (exact greedy match). Above zero the
// typical-acceptance rule applies: the candidate's posterior probability
// must clear min(PosteriorThreshold, PosteriorAlpha * exp(-H)) where H is
// the entropy of the temperature-scaled distribution. Nucleus mode instead
// requires membership of the top-TopP cumulative set. Fast keeps the test
// deterministic; otherwise each position draws an auxiliary uniform value
// and the bound is scaled by it, giving Bernoulli-style acceptance.
//
// Ties between paths break towards the earliest entry of the retrieve
// index, which orders the longest, earliest-declared candidates first.
func EvaluatePosterior(verified *VerifiedLogits, cands *CandidateSet, cfg SamplingConfig, rng *rand.Rand) (bestPath, acceptLength int, err error) {
	if len(cands.Paths) == 0 || len(verified.Paths) != len(cands.Paths) {
		return 0, 0, fmt.Errorf("candidate and verified path counts disagree: %d vs %d", len(cands.Paths), len(verified.Paths))
	}

	bestPath, acceptLength = 0, 1
	for p, tokens := range cands.Paths {
		length := 1
		for i := 1; i < len(tokens); i++ {
			if tokens[i] == NoToken || verified.Paths[p][i-1] == nil {
				break
			}
			if !acceptToken(verified.Paths[p][i-1], tokens[i], cfg, rng) {
				break
			}
			length++
		}
		if length > acceptLength {
			bestPath, acceptLength = p, length
		}
	}

	if acceptLength < 1 {
		return 0, 0, ErrEmptyAcceptance
	}
	return bestPath, acceptLength, nil
}

// acceptToken applies the per-position acceptance test for one candidate
// token against the distribution that predicted it.
func acceptToken(logits []float32, token int32, cfg SamplingConfig, rng *rand.Rand) bool {
	if cfg.Temperature <= 0 {
		return int(token) == argmax(logits)
	}

	probs := softmaxTemp(logits, cfg.Temperature)
	if cfg.Mode == SamplingNucleus {
		for _, id := range nucleusSet(probs, cfg.TopP) {
			if id == token {
				return true
			}
		}
		return false
	}

	bound := cfg.PosteriorAlpha * float32(math.Exp(-float64(entropy(probs))))
	if cfg.PosteriorThreshold < bound {
		bound = cfg.PosteriorThreshold
	}
	if !cfg.Fast {
		// Bernoulli-style test: always accepts above the bound, accepts
		// below it with probability proportional to the posterior mass.
		bound *= rng.Float32()
	}
	return probs[token] > bound
}
