package medusa

import (
	"fmt"
	"io"
	"log/slog"
	"sync"
)

// Engine drives speculative tree decoding over one base model and its
// trained draft heads.
//
// An engine owns a single key/value cache region and therefore runs one
// generation at a time; concurrent calls queue on an internal lock. For
// parallel streams, create one engine per stream — tree buffers for a given
// BranchSpec are shared process-wide, so extra engines are cheap.
//
// Engines are safe for concurrent use apart from Close, which blocks until
// any in-flight generation completes. After Close all methods return
// ErrEngineClosed.
type Engine struct {
	model  SequenceModel
	heads  DraftHeads
	tok    Tokenizer
	config engineConfig
	logger *slog.Logger

	mu     sync.RWMutex
	closed bool

	// genMu serialises generation calls: the cache and running state admit
	// exactly one writer.
	genMu   sync.Mutex
	cache   CacheState
	buffers *TreeBuffers
}

// New creates an engine over the given collaborators. The branch spec
// (explicit, or the preset selected by WithModelName) is validated here:
// a malformed spec fails construction with an error wrapping
// ErrInvalidSpec, before any stepping can begin.
//
// Example:
//
//	engine, err := medusa.New(model, heads, tok,
//	    medusa.WithModelName("lmsys/vicuna-7b-v1.3"),
//	    medusa.WithLogger(slog.Default()),
//	)
//	if err != nil {
//	    return err
//	}
//	defer engine.Close()
func New(model SequenceModel, heads DraftHeads, tok Tokenizer, opts ...EngineOption) (*Engine, error) {
	if model == nil {
		return nil, fmt.Errorf("sequence model cannot be nil")
	}
	if heads == nil {
		return nil, fmt.Errorf("draft heads cannot be nil")
	}
	if tok == nil {
		return nil, fmt.Errorf("tokenizer cannot be nil")
	}

	config := defaultEngineConfig
	for _, opt := range opts {
		opt(&config)
	}
	if config.branchSpec == nil {
		config.branchSpec = DefaultBranchSpec(config.modelName)
	}
	if config.logger == nil {
		config.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if config.cacheCapacity < 1 {
		return nil, fmt.Errorf("cache capacity must be positive, got %d", config.cacheCapacity)
	}

	spec, err := clampSpec(config.branchSpec, heads.Count())
	if err != nil {
		return nil, err
	}
	config.branchSpec = spec

	buffers, err := treeBuffersFor(spec)
	if err != nil {
		return nil, err
	}

	return &Engine{
		model:   model,
		heads:   heads,
		tok:     tok,
		config:  config,
		logger:  config.logger,
		cache:   model.NewCache(config.cacheCapacity),
		buffers: buffers,
	}, nil
}

// clampSpec validates a spec against the available head count.
func clampSpec(spec BranchSpec, headCount int) (BranchSpec, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	if spec.Depth() > headCount {
		return nil, fmt.Errorf("branch spec needs %d draft heads, model provides %d: %w",
			spec.Depth(), headCount, ErrInvalidSpec)
	}
	return spec, nil
}

// BranchSpec returns the engine's default tree shape.
func (e *Engine) BranchSpec() BranchSpec {
	return e.config.branchSpec.Clone()
}

// Close releases the engine. It blocks until any in-flight generation
// finishes, and is idempotent: repeated calls return nil immediately.
// Subsequent method calls return ErrEngineClosed.
func (e *Engine) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	e.mu.Unlock()

	// Wait out any active generation before declaring the cache free.
	e.genMu.Lock()
	defer e.genMu.Unlock()
	e.cache = nil
	return nil
}

// guard returns ErrEngineClosed once Close has begun.
func (e *Engine) guard() error {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed {
		return ErrEngineClosed
	}
	return nil
}
