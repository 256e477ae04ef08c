package medusa_test

import (
	medusa "github.com/JackCharlesZhang/Medusa"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

// Adaptive Policy Test Suite
//
// Tests the two tree-width controllers in isolation: the previous-step
// policy sized from accept-length history, and the current-step policy
// trimmed from draft confidence.

var _ = Describe("AdaptivePreviousStep", func() {
	It("should reuse a mid-range accept length directly", func() {
		Expect(medusa.AdaptivePreviousStep(3, 5)).To(Equal(3))
	})

	It("should never drop below two heads", func() {
		Expect(medusa.AdaptivePreviousStep(1, 5)).To(Equal(2))
		Expect(medusa.AdaptivePreviousStep(0, 5)).To(Equal(2))
	})

	It("should cap at the spec depth", func() {
		Expect(medusa.AdaptivePreviousStep(9, 5)).To(Equal(5))
		Expect(medusa.AdaptivePreviousStep(9, 1)).To(Equal(1))
	})
})

var _ = Describe("AdaptiveCurrentStep", func() {
	It("should size the window from the longest confident run", func() {
		probs := []float32{0.9, 0.8, 0.3, 0.95}
		Expect(medusa.AdaptiveCurrentStep(probs, 0.5, 4)).To(Equal(2))
	})

	It("should keep every head when confidence never dips", func() {
		probs := []float32{0.9, 0.9, 0.9}
		Expect(medusa.AdaptiveCurrentStep(probs, 0.5, 3)).To(Equal(3))
	})

	It("should keep at least one head under total uncertainty", func() {
		probs := []float32{0.1, 0.2, 0.1}
		Expect(medusa.AdaptiveCurrentStep(probs, 0.5, 3)).To(Equal(1))
	})

	It("should cap the run at the spec depth", func() {
		probs := []float32{0.9, 0.9, 0.9, 0.9, 0.9}
		Expect(medusa.AdaptiveCurrentStep(probs, 0.5, 3)).To(Equal(3))
	})

	It("should treat the threshold as exclusive", func() {
		probs := []float32{0.5, 0.5}
		Expect(medusa.AdaptiveCurrentStep(probs, 0.5, 2)).To(Equal(1))
	})
})
