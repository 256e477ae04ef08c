// Package toymodel provides a deterministic in-memory implementation of the
// engine's capability interfaces, for tests, examples and benchmarks.
//
// The model is a seeded bigram chain: the continuation of a sequence is a
// pure function of its last two tokens. That is simple enough to predict
// exactly — the draft heads can be made perfect or made to disagree from a
// chosen depth — yet stateful enough that any mistake in cache commits,
// position ids or the structural attention mask changes the output and
// fails the round-trip tests.
package toymodel

import (
	"context"
	"fmt"
	"math/rand"
	"strings"

	medusa "github.com/JackCharlesZhang/Medusa"
)

// Model is a deterministic bigram-chain sequence model.
type Model struct {
	vocab     int
	perm      []int32 // successor table over (prev+cur) mod vocab
	lastCache *Cache
}

// ModelOption configures NewModel.
type ModelOption func(*Model)

// WithVocab sets the vocabulary size.
//
// Default: 512
func WithVocab(n int) ModelOption {
	return func(m *Model) {
		m.vocab = n
	}
}

// NewModel builds a model whose successor table is derived from the seed.
// Equal seeds produce identical models.
func NewModel(seed int64, opts ...ModelOption) *Model {
	m := &Model{vocab: 512}
	for _, opt := range opts {
		opt(m)
	}
	//nolint:gosec // the permutation only needs to be reproducible
	rng := rand.New(rand.NewSource(seed))
	m.perm = make([]int32, m.vocab)
	for i, v := range rng.Perm(m.vocab) {
		m.perm[i] = int32(v)
	}
	return m
}

// Vocab returns the vocabulary size.
func (m *Model) Vocab() int { return m.vocab }

// Successor returns the true continuation after the bigram (prev, cur).
func (m *Model) Successor(prev, cur int32) int32 {
	return m.perm[(int(prev)+int(cur))%m.vocab]
}

// Chain returns the greedy continuation of length n after the bigram
// (prev, cur): exactly what sequential argmax decoding would produce.
// Tests use it to compute expected outputs.
func (m *Model) Chain(prev, cur int32, n int) []int32 {
	out := make([]int32, n)
	for i := range out {
		next := m.Successor(prev, cur)
		out[i] = next
		prev, cur = cur, next
	}
	return out
}

// logits returns a peaked distribution whose argmax is the given token.
// A second token carries some mass so nucleus and typical acceptance have
// something to reason about.
func (m *Model) logits(next int32) []float32 {
	out := make([]float32, m.vocab)
	out[next] = 8
	out[(int(next)+3)%m.vocab] = 4
	return out
}

// NewCache returns a token-row cache of the given capacity.
func (m *Model) NewCache(capacity int) medusa.CacheState {
	m.lastCache = &Cache{rows: make([]int32, capacity)}
	return m.lastCache
}

// LastCache returns the cache most recently created for this model, so
// tests can assert on the committed rows.
func (m *Model) LastCache() *Cache { return m.lastCache }

// Evaluate implements the sequence-model capability. Submitted tokens are
// written to the scratch region past the committed frontier; logits and
// hidden states are computed from each token's bigram context, which is
// read from the structural mask (parent node) for tree submissions and
// from the committed rows otherwise.
func (m *Model) Evaluate(_ context.Context, tokens []int32, positions []int32, mask [][]bool, cache medusa.CacheState) (*medusa.Evaluation, error) {
	c, ok := cache.(*Cache)
	if !ok {
		return nil, fmt.Errorf("cache was not created by this model")
	}
	if len(tokens) != len(positions) {
		return nil, fmt.Errorf("got %d tokens but %d positions", len(tokens), len(positions))
	}
	if mask != nil && len(mask) != len(tokens) {
		return nil, fmt.Errorf("got %d tokens but %d mask rows", len(tokens), len(mask))
	}
	if c.n+len(tokens) > len(c.rows) {
		return nil, fmt.Errorf("capacity exceeded: %d committed + %d submitted > %d", c.n, len(tokens), len(c.rows))
	}

	eval := &medusa.Evaluation{
		Logits: make([][]float32, len(tokens)),
		Hidden: make([][]float32, len(tokens)),
	}
	for i, cur := range tokens {
		prev, depth := m.contextOf(c, tokens, mask, i)
		if want := int32(c.n + depth); positions[i] != want {
			return nil, fmt.Errorf("token %d: position %d does not match committed length %d plus depth %d", i, positions[i], c.n, depth)
		}
		c.rows[c.n+i] = cur

		next := m.Successor(prev, cur)
		eval.Logits[i] = m.logits(next)
		eval.Hidden[i] = []float32{float32(prev), float32(cur)}
	}
	return eval, nil
}

// contextOf resolves the token preceding submission index i and i's depth
// within the submission. With a structural mask the predecessor is the
// parent node (the deepest other ancestor); without one the submission is
// sequential. The committed frontier supplies the predecessor at depth
// zero, with token 0 standing in at the very start of a stream.
func (m *Model) contextOf(c *Cache, tokens []int32, mask [][]bool, i int) (prev int32, depth int) {
	if mask == nil {
		if i > 0 {
			return tokens[i-1], i
		}
		if c.n > 0 {
			return c.rows[c.n-1], 0
		}
		return 0, 0
	}
	parent := -1
	for j := range mask[i] {
		if j != i && mask[i][j] {
			if j > parent {
				parent = j
			}
			depth++
		}
	}
	if parent < 0 {
		if c.n > 0 {
			return c.rows[c.n-1], 0
		}
		return 0, 0
	}
	return tokens[parent], depth
}

// Cache is the model's key/value store: one token row per position. Rows
// past the committed length are scratch, overwritten freely by Evaluate.
type Cache struct {
	rows []int32
	n    int
}

// Len returns the committed length.
func (c *Cache) Len() int { return c.n }

// Commit gathers the given absolute rows onto the committed frontier and
// advances the length, exactly like slicing accepted key/value tensors out
// of the speculative scratch region.
func (c *Cache) Commit(rows []int) error {
	gathered := make([]int32, len(rows))
	for i, r := range rows {
		if r < 0 || r >= len(c.rows) {
			return fmt.Errorf("row %d out of range [0,%d)", r, len(c.rows))
		}
		gathered[i] = c.rows[r]
	}
	if c.n+len(gathered) > len(c.rows) {
		return fmt.Errorf("commit of %d rows exceeds capacity %d", len(gathered), len(c.rows))
	}
	copy(c.rows[c.n:], gathered)
	c.n += len(gathered)
	return nil
}

// Reset clears the committed length, keeping the storage warm.
func (c *Cache) Reset() { c.n = 0 }

// Committed returns a copy of the committed token rows, for assertions.
func (c *Cache) Committed() []int32 {
	return append([]int32(nil), c.rows[:c.n]...)
}

// Heads implements the draft-head capability over a Model. Head k predicts
// the token k+2 positions past the hidden state's own position (the base
// model itself predicts position +1), matching the offsets trained
// per-position predictors use.
type Heads struct {
	model       *Model
	count       int
	corruptFrom int
}

// HeadsOption configures NewHeads.
type HeadsOption func(*Heads)

// WithCorruptFrom makes every head at index d or deeper predict a wrong
// token, so acceptance stops after d correct speculative depths. Pass a
// negative value (the default) for perfect heads.
func WithCorruptFrom(d int) HeadsOption {
	return func(h *Heads) {
		h.corruptFrom = d
	}
}

// NewHeads builds count draft heads over the model.
func NewHeads(model *Model, count int, opts ...HeadsOption) *Heads {
	h := &Heads{model: model, count: count, corruptFrom: -1}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Count returns the number of heads.
func (h *Heads) Count() int { return h.count }

// Predict implements the draft-head capability.
func (h *Heads) Predict(hidden []float32) ([][]float32, error) {
	if len(hidden) != 2 {
		return nil, fmt.Errorf("hidden state has %d elements, want 2", len(hidden))
	}
	prev, cur := int32(hidden[0]), int32(hidden[1])

	// Walk past the base model's own next-token prediction first; head 0
	// starts one beyond it.
	next := h.model.Successor(prev, cur)
	prev, cur = cur, next

	out := make([][]float32, h.count)
	for k := 0; k < h.count; k++ {
		next = h.model.Successor(prev, cur)
		if h.corruptFrom >= 0 && k >= h.corruptFrom {
			next = (next + 1) % int32(h.model.vocab)
		}
		out[k] = h.model.logits(next)
		prev, cur = cur, next
	}
	return out, nil
}

// Tokenizer is a trivial byte-level tokenizer: each prompt byte is one
// token, and ids outside the byte range render as bracketed numbers. The
// highest vocabulary id is the end token.
type Tokenizer struct {
	vocab int
}

// NewTokenizer builds a tokenizer for the model's vocabulary.
func NewTokenizer(model *Model) *Tokenizer {
	return &Tokenizer{vocab: model.vocab}
}

// Encode maps each byte of the text to its id.
func (t *Tokenizer) Encode(text string) ([]int32, error) {
	out := make([]int32, len(text))
	for i := 0; i < len(text); i++ {
		out[i] = int32(text[i])
	}
	return out, nil
}

// Decode renders tokens back to text. Byte-range ids become their byte;
// anything else becomes "<id>", so decoding distributes over
// concatenation and per-step fragments join up losslessly.
func (t *Tokenizer) Decode(tokens []int32) (string, error) {
	var b strings.Builder
	for _, tok := range tokens {
		switch {
		case tok == t.EOS():
			b.WriteString("<eos>")
		case tok >= 0x20 && tok < 0x7f:
			b.WriteByte(byte(tok))
		default:
			fmt.Fprintf(&b, "<%d>", tok)
		}
	}
	return b.String(), nil
}

// EOS returns the end-of-sequence token id.
func (t *Tokenizer) EOS() int32 { return int32(t.vocab - 1) }
