package medusa_test

import (
	"math/rand"

	medusa "github.com/JackCharlesZhang/Medusa"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

// Posterior Acceptance Test Suite
//
// Tests path selection against hand-built verified distributions: exact
// greedy matching at temperature zero, the typical and nucleus acceptance
// rules above it, the guaranteed one-token floor, and tie-breaking towards
// the earliest candidate.

var _ = Describe("EvaluatePosterior", func() {
	// peak builds a four-token distribution whose argmax is the given id,
	// with a visible runner-up so the sampled rules have mass to reason
	// about: softmax assigns roughly 0.98 to the peak and 0.02 to the next.
	peak := func(id int32) []float32 {
		out := make([]float32, 4)
		out[id] = 8
		out[(id+1)%4] = 4
		return out
	}

	greedy := medusa.SamplingConfig{Temperature: 0}

	Context("at temperature zero", func() {
		It("should accept the full path when every token matches the argmax", func() {
			cands := &medusa.CandidateSet{
				Paths:       [][]int32{{0, 1, 2}, {0, 1, 3}},
				ActiveHeads: 2,
			}
			verified := &medusa.VerifiedLogits{Paths: [][][]float32{
				{peak(1), peak(2), nil},
				{peak(1), peak(2), nil},
			}}

			best, length, err := medusa.EvaluatePosterior(verified, cands, greedy, nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(best).To(Equal(0))
			Expect(length).To(Equal(3))
		})

		It("should stop at the first disagreement", func() {
			cands := &medusa.CandidateSet{
				Paths:       [][]int32{{0, 1, 2}, {0, 1, 3}},
				ActiveHeads: 2,
			}
			verified := &medusa.VerifiedLogits{Paths: [][][]float32{
				{peak(1), peak(3), nil},
				{peak(1), peak(3), nil},
			}}

			best, length, err := medusa.EvaluatePosterior(verified, cands, greedy, nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(best).To(Equal(1))
			Expect(length).To(Equal(3))
		})

		It("should always accept at least the committed root", func() {
			cands := &medusa.CandidateSet{
				Paths:       [][]int32{{0, 1, 2}},
				ActiveHeads: 2,
			}
			verified := &medusa.VerifiedLogits{Paths: [][][]float32{
				{peak(3), peak(3), nil},
			}}

			best, length, err := medusa.EvaluatePosterior(verified, cands, greedy, nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(best).To(Equal(0))
			Expect(length).To(Equal(1))
		})

		It("should break ties towards the earliest candidate", func() {
			cands := &medusa.CandidateSet{
				Paths:       [][]int32{{0, 1, 2}, {0, 1, 2}},
				ActiveHeads: 2,
			}
			verified := &medusa.VerifiedLogits{Paths: [][][]float32{
				{peak(1), peak(2), nil},
				{peak(1), peak(2), nil},
			}}

			best, length, err := medusa.EvaluatePosterior(verified, cands, greedy, nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(best).To(Equal(0))
			Expect(length).To(Equal(3))
		})

		It("should stop at truncated slots", func() {
			cands := &medusa.CandidateSet{
				Paths:       [][]int32{{0, 1, medusa.NoToken}},
				ActiveHeads: 1,
			}
			verified := &medusa.VerifiedLogits{Paths: [][][]float32{
				{peak(1), nil, nil},
			}}

			_, length, err := medusa.EvaluatePosterior(verified, cands, greedy, nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(length).To(Equal(2))
		})
	})

	Context("typical acceptance", func() {
		cfg := medusa.SamplingConfig{
			Temperature:        1.0,
			PosteriorThreshold: 0.09,
			PosteriorAlpha:     0.3,
			Mode:               medusa.SamplingTypical,
			Fast:               true,
		}

		It("should accept confident tokens and reject improbable ones", func() {
			// Token 0 carries ~0.98 posterior mass and clears the bound,
			// token 2 carries a fraction of a percent and cannot.
			cands := &medusa.CandidateSet{
				Paths:       [][]int32{{3, 0, 2}},
				ActiveHeads: 2,
			}
			verified := &medusa.VerifiedLogits{Paths: [][][]float32{
				{peak(0), peak(0), nil},
			}}

			_, length, err := medusa.EvaluatePosterior(verified, cands, cfg, nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(length).To(Equal(2))
		})

		It("should never weaken acceptance of confident tokens in stochastic mode", func() {
			// The auxiliary draw only scales the bound downwards, so a token
			// above the deterministic bound stays accepted at any seed.
			stochastic := cfg
			stochastic.Fast = false

			cands := &medusa.CandidateSet{
				Paths:       [][]int32{{3, 0, 0}},
				ActiveHeads: 2,
			}
			verified := &medusa.VerifiedLogits{Paths: [][][]float32{
				{peak(0), peak(0), nil},
			}}

			for seed := int64(0); seed < 5; seed++ {
				_, length, err := medusa.EvaluatePosterior(verified, cands, stochastic, rand.New(rand.NewSource(seed)))
				Expect(err).NotTo(HaveOccurred())
				Expect(length).To(Equal(3))
			}
		})
	})

	Context("nucleus acceptance", func() {
		cfg := medusa.SamplingConfig{
			Temperature: 1.0,
			TopP:        0.8,
			Mode:        medusa.SamplingNucleus,
			Fast:        true,
		}

		It("should accept only tokens inside the top-p set", func() {
			// With ~0.98 mass on the peak the 0.8 nucleus holds exactly one
			// token: the runner-up is rejected despite its visible mass.
			cands := &medusa.CandidateSet{
				Paths:       [][]int32{{3, 0, 1}},
				ActiveHeads: 2,
			}
			verified := &medusa.VerifiedLogits{Paths: [][][]float32{
				{peak(0), peak(0), nil},
			}}

			_, length, err := medusa.EvaluatePosterior(verified, cands, cfg, nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(length).To(Equal(2))
		})
	})

	It("should reject mismatched candidate and verified shapes", func() {
		cands := &medusa.CandidateSet{
			Paths:       [][]int32{{0, 1}, {0, 2}},
			ActiveHeads: 1,
		}
		verified := &medusa.VerifiedLogits{Paths: [][][]float32{
			{peak(1), nil},
		}}

		_, _, err := medusa.EvaluatePosterior(verified, cands, greedy, nil)
		Expect(err).To(HaveOccurred())
	})
})
