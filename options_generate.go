package medusa

// generateConfig holds configuration for one generation call.
type generateConfig struct {
	maxSteps         int
	temperature      float32
	posteriorThresh  float32
	posteriorAlpha   float32
	topP             float32
	sampling         SamplingMode
	fast             bool
	seed             int64
	adaptive         AdaptiveMode
	entropyThreshold float32
	branchSpec       BranchSpec // nil = engine default
}

// Defaults follow the tuned values shipped with the published head
// checkpoints: greedy decoding, typical acceptance with threshold 0.09 and
// alpha 0.3 (about the square root of the threshold), nucleus cut-off 0.8.
var defaultGenerateConfig = generateConfig{
	maxSteps:         512,
	temperature:      0.0,
	posteriorThresh:  0.09,
	posteriorAlpha:   0.3,
	topP:             0.8,
	sampling:         SamplingTypical,
	fast:             true,
	seed:             -1,
	adaptive:         AdaptiveOff,
	entropyThreshold: 0.5,
}

// GenerateOption configures one generation call.
//
// Options are applied using the functional options pattern. Available
// options include WithMaxSteps, WithTemperature, WithPosteriorThreshold,
// WithPosteriorAlpha, WithTopP, WithSampling, WithFast, WithSeed,
// WithAdaptiveMode, WithEntropyThreshold, and the per-call
// WithBranchSpecOverride. See individual With* functions for details.
//
// Example:
//
//	result, err := engine.Generate("Write a story",
//	    medusa.WithMaxSteps(256),
//	    medusa.WithTemperature(0.7),
//	)
type GenerateOption func(*generateConfig)

// WithMaxSteps caps the number of decoding steps. Each step commits at
// least one token, so the cap also bounds the generated length from below.
// Generation stops at the cap even if no end token appeared.
//
// Default: 512
func WithMaxSteps(n int) GenerateOption {
	return func(c *generateConfig) {
		c.maxSteps = n
	}
}

// WithTemperature sets the sampling temperature. Zero selects fully
// deterministic decoding: greedy candidate expansion, exact-match
// acceptance and argmax bonus tokens, byte-identical across runs.
//
// Default: 0.0
func WithTemperature(t float32) GenerateOption {
	return func(c *generateConfig) {
		c.temperature = t
	}
}

// WithPosteriorThreshold sets the absolute probability floor of the
// typical-acceptance test. A candidate token passing either this floor or
// the entropy-relative bound is accepted.
//
// Default: 0.09
func WithPosteriorThreshold(t float32) GenerateOption {
	return func(c *generateConfig) {
		c.posteriorThresh = t
	}
}

// WithPosteriorAlpha sets the scale of the entropy-relative bound in the
// typical-acceptance test. The recommended value is about the square root
// of the posterior threshold.
//
// Default: 0.3
func WithPosteriorAlpha(a float32) GenerateOption {
	return func(c *generateConfig) {
		c.posteriorAlpha = a
	}
}

// WithTopP sets the cumulative-probability cut-off used by nucleus
// sampling and nucleus acceptance.
//
// Default: 0.8
func WithTopP(p float32) GenerateOption {
	return func(c *generateConfig) {
		c.topP = p
	}
}

// WithSampling selects the non-greedy sampling and acceptance rule,
// SamplingTypical or SamplingNucleus. Ignored at temperature zero.
//
// Default: SamplingTypical
func WithSampling(mode SamplingMode) GenerateOption {
	return func(c *generateConfig) {
		c.sampling = mode
	}
}

// WithFast toggles the deterministic approximation of the typical
// acceptance test. When false, each position draws an auxiliary uniform
// value for Bernoulli-style accept/reject: stochastic, but
// distributionally correct.
//
// Default: true
func WithFast(fast bool) GenerateOption {
	return func(c *generateConfig) {
		c.fast = fast
	}
}

// WithSeed fixes the random source for candidate sampling, stochastic
// acceptance and bonus-token draws, making non-greedy runs reproducible.
// A negative seed draws a fresh one per call.
//
// Default: -1 (non-deterministic)
func WithSeed(seed int64) GenerateOption {
	return func(c *generateConfig) {
		c.seed = seed
	}
}

// WithAdaptiveMode selects the adaptive tree-width policy:
// AdaptivePrevious sizes the next tree from the last accept length,
// AdaptiveCurrent trims within the step from draft confidence.
//
// Default: AdaptiveOff
//
// Example:
//
//	result, err := engine.Generate(prompt,
//	    medusa.WithAdaptiveMode(medusa.AdaptivePrevious),
//	)
func WithAdaptiveMode(mode AdaptiveMode) GenerateOption {
	return func(c *generateConfig) {
		c.adaptive = mode
	}
}

// WithEntropyThreshold sets the per-position confidence threshold the
// current-step adaptive policy compares draft probabilities against.
// Ignored unless AdaptiveCurrent is selected.
//
// Default: 0.5
func WithEntropyThreshold(t float32) GenerateOption {
	return func(c *generateConfig) {
		c.entropyThreshold = t
	}
}

// WithBranchSpecOverride substitutes a draft-tree shape for this call only.
// Buffers for the shape are built (or fetched from the shared cache) at
// call entry; a malformed spec fails the call before any stepping begins.
func WithBranchSpecOverride(spec BranchSpec) GenerateOption {
	return func(c *generateConfig) {
		c.branchSpec = spec.Clone()
	}
}
