package medusa

import (
	"math"
	"math/rand"
	"sort"
)

// Numeric helpers over raw logit slices. Distributions stay float32
// throughout; the vocabulary sizes involved keep the summation error well
// below the acceptance thresholds in play.

// softmaxTemp returns softmax(logits / temperature) as a fresh slice.
// A temperature at or below zero falls back to 1.0; callers handle the
// greedy path before normalising.
func softmaxTemp(logits []float32, temperature float32) []float32 {
	if temperature <= 0 {
		temperature = 1.0
	}
	probs := make([]float32, len(logits))
	maxVal := logits[0]
	for _, v := range logits[1:] {
		if v > maxVal {
			maxVal = v
		}
	}
	var sum float32
	for i, v := range logits {
		p := float32(math.Exp(float64((v - maxVal) / temperature)))
		probs[i] = p
		sum += p
	}
	for i := range probs {
		probs[i] /= sum
	}
	return probs
}

// argmax returns the index of the largest value, lowest index winning ties.
func argmax(x []float32) int {
	best := 0
	for i, v := range x[1:] {
		if v > x[best] {
			best = i + 1
		}
	}
	return best
}

// entropy returns the Shannon entropy (nats) of a probability distribution.
func entropy(probs []float32) float32 {
	var h float64
	for _, p := range probs {
		if p > 0 {
			h -= float64(p) * math.Log(float64(p)+1e-5)
		}
	}
	return float32(h)
}

// probIndex pairs a probability with its token id for partial sorts, in the
// manner of a top-p sampler's scratch buffer.
type probIndex struct {
	prob  float32
	index int
}

// topIndices returns the token ids of the k largest logits in descending
// score order, lower token id winning ties. k is clamped to the vocabulary.
func topIndices(logits []float32, k int) []int32 {
	if k > len(logits) {
		k = len(logits)
	}
	scratch := make([]probIndex, len(logits))
	for i, v := range logits {
		scratch[i] = probIndex{prob: v, index: i}
	}
	sort.SliceStable(scratch, func(i, j int) bool { return scratch[i].prob > scratch[j].prob })
	out := make([]int32, k)
	for i := 0; i < k; i++ {
		out[i] = int32(scratch[i].index)
	}
	return out
}

// nucleusSet returns the token ids of the smallest set whose cumulative
// probability reaches topP, most probable first. The set always contains at
// least one token.
func nucleusSet(probs []float32, topP float32) []int32 {
	scratch := make([]probIndex, len(probs))
	for i, p := range probs {
		scratch[i] = probIndex{prob: p, index: i}
	}
	sort.SliceStable(scratch, func(i, j int) bool { return scratch[i].prob > scratch[j].prob })
	var cum float32
	out := make([]int32, 0, 16)
	for _, pi := range scratch {
		out = append(out, int32(pi.index))
		cum += pi.prob
		if cum >= topP {
			break
		}
	}
	return out
}

// typicalSet returns the token ids whose probability clears the
// entropy-relative band min(threshold, alpha*exp(-H)), most probable first.
// The band never excludes the modal token.
func typicalSet(probs []float32, threshold, alpha float32) []int32 {
	bound := alpha * float32(math.Exp(-float64(entropy(probs))))
	if threshold < bound {
		bound = threshold
	}
	scratch := make([]probIndex, 0, 16)
	for i, p := range probs {
		if p > bound {
			scratch = append(scratch, probIndex{prob: p, index: i})
		}
	}
	if len(scratch) == 0 {
		return []int32{int32(argmax(probs))}
	}
	sort.SliceStable(scratch, func(i, j int) bool { return scratch[i].prob > scratch[j].prob })
	out := make([]int32, len(scratch))
	for i, pi := range scratch {
		out[i] = int32(pi.index)
	}
	return out
}

// sampleMult draws one token from a probability distribution using a
// pre-drawn uniform coin, so selection stays reproducible under a seed.
func sampleMult(probs []float32, coin float32) int {
	var cdf float32
	for i, p := range probs {
		cdf += p
		if coin < cdf {
			return i
		}
	}
	return len(probs) - 1
}

// gumbelRank orders the allowed token ids by perturbed log-probability
// (sampling without replacement): equivalent to drawing tokens one at a
// time, but deterministic given the rng state.
func gumbelRank(probs []float32, allowed []int32, rng *rand.Rand) []int32 {
	type scored struct {
		id    int32
		score float64
	}
	scratch := make([]scored, len(allowed))
	for i, id := range allowed {
		p := float64(probs[id])
		if p < 1e-30 {
			p = 1e-30
		}
		u := rng.Float64()
		if u < 1e-30 {
			u = 1e-30
		}
		scratch[i] = scored{id: id, score: math.Log(p) - math.Log(-math.Log(u))}
	}
	sort.SliceStable(scratch, func(i, j int) bool { return scratch[i].score > scratch[j].score })
	out := make([]int32, len(scratch))
	for i, s := range scratch {
		out[i] = s.id
	}
	return out
}
