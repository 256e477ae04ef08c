// Package medusa implements speculative tree decoding for causal language
// models using trained per-position draft heads.
//
// Each decoding step proposes a small tree of future tokens from the draft
// heads, verifies every tree node against the base model in a single batched
// forward pass, and commits the longest verifiably-correct path. The base
// model's forward computation, tokenisation and weight handling live behind
// small capability interfaces; the engine never touches model internals.
//
// Basic usage:
//
//	engine, err := medusa.New(model, heads, tokenizer,
//	    medusa.WithBranchSpec(medusa.NewBranchSpec(4, 3, 2)),
//	)
//	if err != nil {
//	    return err
//	}
//	defer engine.Close()
//
//	result, err := engine.Generate("Once upon a time",
//	    medusa.WithMaxSteps(256),
//	)
//
// Streaming and channel-based variants are available via GenerateStream and
// GenerateChannel. A single engine runs one generation at a time; run
// independent engines for concurrent streams.
package medusa

import "context"

// Evaluation is the output of one batched sequence-model forward pass. Both
// slices are indexed by submitted node, in submission order.
type Evaluation struct {
	// Logits holds the unnormalised next-token scores per node, one slice
	// of vocabulary size per submitted node.
	Logits [][]float32

	// Hidden holds the final hidden state per node, consumed by the draft
	// heads. The engine treats the contents as opaque.
	Hidden [][]float32
}

// SequenceModel is the base-model capability the engine verifies against.
//
// Evaluate runs one forward pass over the submitted tokens. positions gives
// each token's absolute position id. mask, when non-nil, restricts attention
// within the submitted region: mask[a][b] permits token a to attend to token
// b. Previously committed tokens remain fully visible through ordinary
// causal attention regardless of the mask. A nil mask means plain causal
// attention (used during prefill).
//
// Key/value pairs for the submitted tokens are written to the scratch region
// beyond cache.Len() but are not committed; the engine commits the accepted
// slices afterwards via CacheState.Commit. Evaluate must not mutate
// committed cache contents.
type SequenceModel interface {
	Evaluate(ctx context.Context, tokens []int32, positions []int32, mask [][]bool, cache CacheState) (*Evaluation, error)
	NewCache(capacity int) CacheState
}

// DraftHeads is the trained per-position predictor capability. Predict maps
// one hidden state to per-head next-token logits: entry i predicts the token
// i+1 positions ahead. Count reports how many heads are available.
//
// Training and fine-tuning of the heads are out of scope; the engine only
// consumes already-trained predictors.
type DraftHeads interface {
	Predict(hidden []float32) ([][]float32, error)
	Count() int
}

// Tokenizer converts between text and token ids. Decode is called once per
// committed step on the newly accepted tokens only, so implementations
// should handle fragments that split multi-token runes conservatively.
type Tokenizer interface {
	Encode(text string) ([]int32, error)
	Decode(tokens []int32) (string, error)
	EOS() int32
}

// CacheState is the opaque handle to one stream's key/value cache. The
// layout of the cached tensors belongs to the sequence model; the engine
// only directs which scratch rows survive.
//
// Len reports the committed length. Commit gathers the given absolute row
// indices (in order) onto the committed frontier and advances Len by the
// number of rows; rows not listed are discarded, so rejected branches never
// pollute the cache. Reset clears the committed length without releasing
// storage, allowing warm reuse across generation calls.
type CacheState interface {
	Len() int
	Commit(rows []int) error
	Reset()
}
