package medusa

import "fmt"

// AdaptiveMode selects how the engine narrows the active tree width per
// step. The two policies are mutually exclusive.
type AdaptiveMode int

const (
	// AdaptiveOff keeps every draft head active on every step.
	AdaptiveOff AdaptiveMode = iota

	// AdaptivePrevious sizes the tree from the previous step's accept
	// length: a good step widens the next one, a poor step narrows it,
	// never below two heads.
	AdaptivePrevious

	// AdaptiveCurrent trims the tree within the current step: candidates
	// are expanded at full width, the leading high-confidence run of the
	// draft distributions picks the active depth, and only the trimmed
	// tree is submitted for verification before committing.
	AdaptiveCurrent
)

func (m AdaptiveMode) String() string {
	switch m {
	case AdaptiveOff:
		return "off"
	case AdaptivePrevious:
		return "previous"
	case AdaptiveCurrent:
		return "current"
	default:
		return fmt.Sprintf("AdaptiveMode(%d)", int(m))
	}
}

// AdaptivePreviousStep returns the head count for the next step under the
// previous-step policy: the prior accept length clamped to [2, maxHeads].
// The floor of two keeps the engine from collapsing to single-token
// speculation permanently after one bad step.
func AdaptivePreviousStep(prevAcceptLength, maxHeads int) int {
	heads := prevAcceptLength
	if heads < 2 {
		heads = 2
	}
	if heads > maxHeads {
		heads = maxHeads
	}
	return heads
}

// AdaptiveCurrentStep returns the head count under the current-step policy:
// the length of the longest run of consecutive positions whose probability
// exceeds entropyThreshold, at least 1 and at most maxHeads. probs holds
// the per-depth probability of each chosen candidate token under the draft
// distribution that proposed it.
func AdaptiveCurrentStep(probs []float32, entropyThreshold float32, maxHeads int) int {
	longest, run := 0, 0
	for _, p := range probs {
		if p > entropyThreshold {
			run++
			if run > longest {
				longest = run
			}
		} else {
			run = 0
		}
	}
	if longest < 1 {
		longest = 1
	}
	if longest > maxHeads {
		longest = maxHeads
	}
	return longest
}
