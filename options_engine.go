package medusa

import "log/slog"

// engineConfig holds construction-time configuration.
type engineConfig struct {
	branchSpec    BranchSpec
	modelName     string
	cacheCapacity int
	logger        *slog.Logger
	metrics       *Metrics
}

var defaultEngineConfig = engineConfig{
	cacheCapacity: 4096,
}

// EngineOption configures engine construction.
//
// Options are applied using the functional options pattern. Available
// options include WithBranchSpec, WithModelName, WithCacheCapacity,
// WithLogger, and WithMetrics. See individual With* functions for details.
//
// Example:
//
//	engine, err := medusa.New(model, heads, tok,
//	    medusa.WithBranchSpec(medusa.NewBranchSpec(4, 3, 2)),
//	    medusa.WithCacheCapacity(8192),
//	)
type EngineOption func(*engineConfig)

// WithBranchSpec sets the default draft-tree shape for the engine. The spec
// is validated during New; a malformed spec fails construction with an
// error wrapping ErrInvalidSpec. Individual calls may override the shape
// with the generate-time WithBranchSpecOverride option.
//
// Default: the preset selected by WithModelName, or the general-purpose
// preset when no model name is given.
//
// Example:
//
//	engine, err := medusa.New(model, heads, tok,
//	    medusa.WithBranchSpec(medusa.NewBranchSpec(7, 6, 2, 1, 1)),
//	)
func WithBranchSpec(spec BranchSpec) EngineOption {
	return func(c *engineConfig) {
		c.branchSpec = spec.Clone()
	}
}

// WithModelName records the base model's identity so the engine can select
// the tuned branch-spec preset for it ("lmsys/vicuna-7b-v1.3" picks the
// vicuna-7b tree). Ignored when WithBranchSpec is also given.
//
// Default: "" (general-purpose preset)
//
// Example:
//
//	engine, err := medusa.New(model, heads, tok,
//	    medusa.WithModelName("lmsys/vicuna-7b-v1.3"),
//	)
func WithModelName(name string) EngineOption {
	return func(c *engineConfig) {
		c.modelName = name
	}
}

// WithCacheCapacity sets the key/value cache capacity in tokens. The
// capacity must cover the prompt, every committed token and the widest
// speculative tree in flight; a verification that would overflow it fails
// the generation call with a VerificationError.
//
// Default: 4096
//
// Example:
//
//	engine, err := medusa.New(model, heads, tok,
//	    medusa.WithCacheCapacity(16384),
//	)
func WithCacheCapacity(tokens int) EngineOption {
	return func(c *engineConfig) {
		c.cacheCapacity = tokens
	}
}

// WithLogger sets the structured logger for step-level events. Each
// generation call logs under a unique stream id.
//
// Default: discard (no output)
//
// Example:
//
//	engine, err := medusa.New(model, heads, tok,
//	    medusa.WithLogger(slog.Default()),
//	)
func WithLogger(logger *slog.Logger) EngineOption {
	return func(c *engineConfig) {
		c.logger = logger
	}
}

// WithMetrics attaches Prometheus metrics to the engine. The same Metrics
// value may be shared across engines.
//
// Default: nil (no metrics)
//
// Example:
//
//	metrics := medusa.NewMetrics(prometheus.DefaultRegisterer)
//	engine, err := medusa.New(model, heads, tok,
//	    medusa.WithMetrics(metrics),
//	)
func WithMetrics(m *Metrics) EngineOption {
	return func(c *engineConfig) {
		c.metrics = m
	}
}
