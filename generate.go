package medusa

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Fragment is one committed step's worth of output.
type Fragment struct {
	// Text is the decoded form of Tokens.
	Text string

	// Tokens are the tokens committed this step, the tree root first.
	Tokens []int32

	// Step is the zero-based decoding step that produced the fragment.
	Step int

	// AcceptLength is the accepted path length of the step, root included.
	AcceptLength int
}

// Result summarises one completed generation call.
type Result struct {
	// StreamID uniquely identifies the call in logs and metrics.
	StreamID string

	// Text is the full decoded output past the prompt.
	Text string

	// Tokens are the committed tokens past the prompt.
	Tokens []int32

	// Steps is the number of committed decoding steps.
	Steps int

	// AcceptLengths records the accepted path length of every step.
	AcceptLengths []int

	// EOS reports whether generation stopped on the model's end token
	// rather than the step cap or a caller stop.
	EOS bool
}

// MeanAcceptLength reports the average accepted path length per step, the
// headline speed-up indicator (1.0 means speculation never helped).
func (r *Result) MeanAcceptLength() float64 {
	if len(r.AcceptLengths) == 0 {
		return 0
	}
	var sum int
	for _, n := range r.AcceptLengths {
		sum += n
	}
	return float64(sum) / float64(len(r.AcceptLengths))
}

// Generate runs speculative decoding on the prompt and returns the
// completed result. Generation stops on the model's end token or after the
// configured step cap.
//
// Example:
//
//	result, err := engine.Generate("Once upon a time",
//	    medusa.WithMaxSteps(256),
//	)
//	fmt.Println(result.Text)
func (e *Engine) Generate(prompt string, opts ...GenerateOption) (*Result, error) {
	return e.GenerateContext(context.Background(), prompt, opts...)
}

// GenerateContext is Generate with caller-supplied cancellation. The
// context is consulted between steps only, never mid-verification; each
// step's commit is atomic, so cancellation needs no rollback.
func (e *Engine) GenerateContext(ctx context.Context, prompt string, opts ...GenerateOption) (*Result, error) {
	tokens, err := e.encodePrompt(prompt)
	if err != nil {
		return nil, err
	}
	return e.GenerateTokens(ctx, [][]int32{tokens}, opts...)
}

// GenerateStream runs speculative decoding and invokes the callback once
// per committed step with that step's fragment. Returning false from the
// callback stops generation early without error.
//
// Example:
//
//	result, err := engine.GenerateStream("Once upon a time",
//	    func(frag medusa.Fragment) bool {
//	        fmt.Print(frag.Text)
//	        return true
//	    },
//	)
func (e *Engine) GenerateStream(prompt string, callback func(Fragment) bool, opts ...GenerateOption) (*Result, error) {
	tokens, err := e.encodePrompt(prompt)
	if err != nil {
		return nil, err
	}
	cfg := defaultGenerateConfig
	for _, opt := range opts {
		opt(&cfg)
	}
	return e.run(context.Background(), tokens, cfg, callback)
}

// GenerateChannel runs speculative decoding in a goroutine, streaming one
// Fragment per committed step. The fragment channel closes when generation
// finishes; a failure is delivered on the error channel (capacity one)
// before the close. Cancelling the context stops the stream between steps.
//
// Example:
//
//	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
//	defer cancel()
//
//	frags, errs := engine.GenerateChannel(ctx, "Once upon a time")
//	for frag := range frags {
//	    fmt.Print(frag.Text)
//	}
//	if err := <-errs; err != nil {
//	    log.Fatal(err)
//	}
func (e *Engine) GenerateChannel(ctx context.Context, prompt string, opts ...GenerateOption) (<-chan Fragment, <-chan error) {
	frags := make(chan Fragment)
	errs := make(chan error, 1)

	tokens, err := e.encodePrompt(prompt)
	if err != nil {
		errs <- err
		close(frags)
		close(errs)
		return frags, errs
	}

	cfg := defaultGenerateConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	go func() {
		defer close(frags)
		defer close(errs)
		_, err := e.run(ctx, tokens, cfg, func(frag Fragment) bool {
			select {
			case frags <- frag:
				return true
			case <-ctx.Done():
				return false
			}
		})
		if err == nil {
			// A cancellation that landed inside emit reads as a caller
			// stop; report it as the context error it is.
			err = ctx.Err()
		}
		if err != nil {
			errs <- err
		}
	}()

	return frags, errs
}

// GenerateTokens is the low-level entry point over raw token ids. The batch
// dimension exists for interface compatibility only: all buffers assume a
// single active sequence, and any other batch size is rejected immediately
// with ErrBatchSize.
func (e *Engine) GenerateTokens(ctx context.Context, batch [][]int32, opts ...GenerateOption) (*Result, error) {
	if len(batch) != 1 {
		return nil, fmt.Errorf("got batch of %d sequences: %w", len(batch), ErrBatchSize)
	}
	cfg := defaultGenerateConfig
	for _, opt := range opts {
		opt(&cfg)
	}
	return e.run(ctx, batch[0], cfg, nil)
}

func (e *Engine) encodePrompt(prompt string) ([]int32, error) {
	if err := e.guard(); err != nil {
		return nil, err
	}
	tokens, err := e.tok.Encode(prompt)
	if err != nil {
		return nil, fmt.Errorf("encode prompt: %w", err)
	}
	return tokens, nil
}

// run is the decoding loop: Prefill, then Draft -> Verify -> Accept ->
// Commit until the end token or the step cap. Every failure aborts the
// call; nothing is retried, because a failed verification may leave the
// scratch cache region in an unknown state.
func (e *Engine) run(ctx context.Context, promptTokens []int32, cfg generateConfig, emit func(Fragment) bool) (*Result, error) {
	if err := e.guard(); err != nil {
		return nil, err
	}
	e.genMu.Lock()
	defer e.genMu.Unlock()
	if e.cache == nil {
		return nil, ErrEngineClosed
	}

	buffers := e.buffers
	if cfg.branchSpec != nil {
		spec, err := clampSpec(cfg.branchSpec, e.heads.Count())
		if err != nil {
			return nil, err
		}
		if buffers, err = treeBuffersFor(spec); err != nil {
			return nil, err
		}
	}
	maxHeads := buffers.Spec.Depth()

	if len(promptTokens) == 0 {
		return nil, fmt.Errorf("prompt produced no tokens")
	}
	if len(promptTokens)+buffers.NumNodes() > e.config.cacheCapacity {
		return nil, &VerificationError{Step: -1, Err: fmt.Errorf(
			"prompt of %d tokens plus a %d-node tree exceeds cache capacity %d",
			len(promptTokens), buffers.NumNodes(), e.config.cacheCapacity)}
	}

	seed := cfg.seed
	if seed < 0 {
		seed = time.Now().UnixNano()
	}
	//nolint:gosec // sampling needs reproducibility under a seed, not secrecy
	rng := rand.New(rand.NewSource(seed))

	scfg := SamplingConfig{
		Temperature:        cfg.temperature,
		PosteriorThreshold: cfg.posteriorThresh,
		PosteriorAlpha:     cfg.posteriorAlpha,
		TopP:               cfg.topP,
		Mode:               cfg.sampling,
		Fast:               cfg.fast,
	}

	streamID := uuid.NewString()
	e.logger.Info("generation started",
		"stream", streamID,
		"prompt_tokens", len(promptTokens),
		"branch_spec", buffers.Spec.Key(),
		"adaptive", cfg.adaptive.String(),
		"temperature", cfg.temperature,
	)

	// Fresh running state; the cache storage itself is reused warm.
	e.cache.Reset()
	state := &runningState{
		seq:       append([]int32(nil), promptTokens...),
		promptLen: len(promptTokens),
	}

	draft, root, err := e.prefill(ctx, promptTokens, scfg, rng)
	if err != nil {
		e.config.metrics.observeGeneration(err)
		return nil, err
	}

	result := &Result{StreamID: streamID}
	var text strings.Builder
	eosID := e.tok.EOS()

	// The previous-step policy reads the accept-length history; seed it
	// optimistically so the first step runs wide.
	state.history = append(state.history, 5)

	fail := func(err error) (*Result, error) {
		e.config.metrics.observeGeneration(err)
		e.logger.Error("generation aborted", "stream", streamID, "error", err)
		return nil, err
	}

	for step := 0; step < cfg.maxSteps; step++ {
		// Cancellation is cooperative and checked between steps only.
		if err := ctx.Err(); err != nil {
			return fail(err)
		}

		activeHeads := maxHeads
		if cfg.adaptive == AdaptivePrevious {
			activeHeads = AdaptivePreviousStep(state.history[len(state.history)-1], maxHeads)
		}

		cands, err := GenerateCandidates(draft, root, buffers, activeHeads, scfg, rng)
		if err != nil {
			return fail(err)
		}

		if cfg.adaptive == AdaptiveCurrent {
			trimmed := AdaptiveCurrentStep(
				candidateConfidence(draft, cands, scfg),
				cfg.entropyThreshold, maxHeads)
			if trimmed < activeHeads {
				activeHeads = trimmed
				if cands, err = GenerateCandidates(draft, root, buffers, activeHeads, scfg, rng); err != nil {
					return fail(err)
				}
			}
		}

		if e.cache.Len()+len(cands.Tree) > e.config.cacheCapacity {
			return fail(&VerificationError{Step: step, Err: fmt.Errorf(
				"cache capacity %d exceeded: %d committed plus %d tree nodes",
				e.config.cacheCapacity, e.cache.Len(), len(cands.Tree))})
		}

		verifyStart := time.Now()
		verified, eval, err := VerifyTree(ctx, e.model, e.cache, buffers, cands)
		if err != nil {
			return fail(&VerificationError{Step: step, Err: err})
		}
		verifyDur := time.Since(verifyStart)

		best, acceptLength, err := EvaluatePosterior(verified, cands, scfg, rng)
		if err != nil {
			return fail(err)
		}

		outcome, err := commitStep(e.cache, buffers, cands, verified, eval, best, acceptLength, scfg, rng)
		if err != nil {
			return fail(err)
		}

		if draft, err = e.heads.Predict(outcome.nextHidden); err != nil {
			return fail(fmt.Errorf("draft heads: %w", err))
		}
		root = outcome.nextRoot

		state.seq = append(state.seq, outcome.newTokens...)
		state.generated += len(outcome.newTokens)
		state.history = append(state.history, acceptLength)

		fragText, err := e.tok.Decode(outcome.newTokens)
		if err != nil {
			return fail(fmt.Errorf("decode fragment: %w", err))
		}
		text.WriteString(fragText)

		result.Tokens = append(result.Tokens, outcome.newTokens...)
		result.AcceptLengths = append(result.AcceptLengths, acceptLength)
		result.Steps++
		e.config.metrics.observeStep(acceptLength, verifyDur)
		e.logger.Debug("step committed",
			"stream", streamID,
			"step", step,
			"accept_length", acceptLength,
			"active_heads", activeHeads,
		)

		if emit != nil && !emit(Fragment{
			Text:         fragText,
			Tokens:       outcome.newTokens,
			Step:         step,
			AcceptLength: acceptLength,
		}) {
			break
		}

		if containsToken(outcome.newTokens, eosID) {
			result.EOS = true
			break
		}
	}

	result.Text = text.String()
	e.config.metrics.observeGeneration(nil)
	e.logger.Info("generation finished",
		"stream", streamID,
		"steps", result.Steps,
		"tokens", len(result.Tokens),
		"mean_accept_length", result.MeanAcceptLength(),
		"eos", result.EOS,
	)
	return result, nil
}

// prefill evaluates the prompt causally, commits its key/value rows, and
// draws the first tree root from the model's next-token distribution.
func (e *Engine) prefill(ctx context.Context, promptTokens []int32, scfg SamplingConfig, rng *rand.Rand) (draft [][]float32, root int32, err error) {
	positions := make([]int32, len(promptTokens))
	rows := make([]int, len(promptTokens))
	for i := range promptTokens {
		positions[i] = int32(i)
		rows[i] = i
	}

	eval, err := e.model.Evaluate(ctx, promptTokens, positions, nil, e.cache)
	if err != nil {
		return nil, 0, &VerificationError{Step: -1, Err: err}
	}
	if len(eval.Logits) != len(promptTokens) {
		return nil, 0, &VerificationError{Step: -1, Err: fmt.Errorf(
			"model returned %d distributions for %d prompt tokens", len(eval.Logits), len(promptTokens))}
	}
	if err := e.cache.Commit(rows); err != nil {
		return nil, 0, &VerificationError{Step: -1, Err: fmt.Errorf("prefill commit: %w", err)}
	}

	last := len(promptTokens) - 1
	if draft, err = e.heads.Predict(eval.Hidden[last]); err != nil {
		return nil, 0, fmt.Errorf("draft heads: %w", err)
	}
	return draft, drawToken(eval.Logits[last], scfg, rng), nil
}

// candidateConfidence reports, per active depth, the draft heads' own
// probability for the token they ranked first: the pre-verification signal
// the current-step adaptive policy trims on.
func candidateConfidence(draft [][]float32, cands *CandidateSet, scfg SamplingConfig) []float32 {
	top := cands.Paths[0] // first retrieve entry is the all-top-ranks path
	probs := make([]float32, cands.ActiveHeads)
	for d := 0; d < cands.ActiveHeads; d++ {
		probs[d] = softmaxTemp(draft[d], scfg.Temperature)[top[d+1]]
	}
	return probs
}

func drawToken(logits []float32, scfg SamplingConfig, rng *rand.Rand) int32 {
	if scfg.Temperature <= 0 {
		return int32(argmax(logits))
	}
	return int32(sampleMult(softmaxTemp(logits, scfg.Temperature), rng.Float32()))
}

func containsToken(tokens []int32, id int32) bool {
	for _, t := range tokens {
		if t == id {
			return true
		}
	}
	return false
}
