package medusa_test

import (
	"errors"

	medusa "github.com/JackCharlesZhang/Medusa"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

// Branch Spec and Tree Buffer Test Suite
//
// Tests the draft-tree topology layer: spec validation, node counting, and
// the derived buffers (parents, position offsets, structural mask, retrieve
// index) that verification depends on. These are pure functions of the spec,
// so every property here is checked structurally without a model.

var _ = Describe("BranchSpec", func() {
	Context("construction", func() {
		It("should expand widths into rank lists", func() {
			spec := medusa.NewBranchSpec(4, 3, 2)
			Expect(spec).To(Equal(medusa.BranchSpec{
				{0, 1, 2, 3},
				{0, 1, 2},
				{0, 1},
			}))
		})

		It("should report depth and per-depth width", func() {
			spec := medusa.NewBranchSpec(4, 3, 2)
			Expect(spec.Depth()).To(Equal(3))
			Expect(spec.Width(0)).To(Equal(4))
			Expect(spec.Width(2)).To(Equal(2))
		})

		It("should count paths as the product of widths", func() {
			Expect(medusa.NewBranchSpec(4, 3, 2).NumPaths()).To(Equal(24))
			Expect(medusa.NewBranchSpec(1, 1, 1).NumPaths()).To(Equal(1))
		})

		It("should count nodes including the root", func() {
			spec := medusa.NewBranchSpec(4, 3, 2)
			// 1 + 4 + 12 + 24
			Expect(spec.NumNodes(spec.Depth())).To(Equal(41))
			Expect(spec.NumNodes(1)).To(Equal(5))
			Expect(spec.NumNodes(100)).To(Equal(41))
		})
	})

	Context("validation", func() {
		It("should accept a well-formed spec", func() {
			Expect(medusa.NewBranchSpec(7, 6, 2, 1, 1).Validate()).To(Succeed())
		})

		It("should reject an empty spec", func() {
			err := medusa.BranchSpec{}.Validate()
			Expect(err).To(HaveOccurred())
			Expect(errors.Is(err, medusa.ErrInvalidSpec)).To(BeTrue())

			var specErr *medusa.SpecError
			Expect(errors.As(err, &specErr)).To(BeTrue())
			Expect(specErr.Depth).To(Equal(-1))
		})

		It("should reject an empty entry", func() {
			err := medusa.NewBranchSpec(2, 0, 1).Validate()
			Expect(errors.Is(err, medusa.ErrInvalidSpec)).To(BeTrue())

			var specErr *medusa.SpecError
			Expect(errors.As(err, &specErr)).To(BeTrue())
			Expect(specErr.Depth).To(Equal(1))
		})

		It("should reject a negative rank", func() {
			err := medusa.BranchSpec{{0, -1}}.Validate()
			Expect(errors.Is(err, medusa.ErrInvalidSpec)).To(BeTrue())
		})

		It("should reject widening after narrowing", func() {
			err := medusa.NewBranchSpec(3, 1, 2).Validate()
			Expect(errors.Is(err, medusa.ErrInvalidSpec)).To(BeTrue())

			var specErr *medusa.SpecError
			Expect(errors.As(err, &specErr)).To(BeTrue())
			Expect(specErr.Depth).To(Equal(2))
		})
	})

	Context("identity", func() {
		It("should produce equal keys for equal specs", func() {
			Expect(medusa.NewBranchSpec(4, 3, 2).Key()).To(Equal(medusa.NewBranchSpec(4, 3, 2).Key()))
			Expect(medusa.NewBranchSpec(4, 3, 2).Key()).NotTo(Equal(medusa.NewBranchSpec(4, 3).Key()))
		})

		It("should clone deeply", func() {
			original := medusa.NewBranchSpec(2, 2)
			clone := original.Clone()
			clone[0][0] = 99
			Expect(original[0][0]).To(Equal(0))
		})
	})
})

var _ = Describe("TreeBuffers", func() {
	var buf *medusa.TreeBuffers

	BeforeEach(func() {
		var err error
		buf, err = medusa.BuildTreeBuffers(medusa.NewBranchSpec(4, 3, 2))
		Expect(err).NotTo(HaveOccurred())
	})

	It("should refuse a malformed spec", func() {
		_, err := medusa.BuildTreeBuffers(medusa.NewBranchSpec(1, 2))
		Expect(errors.Is(err, medusa.ErrInvalidSpec)).To(BeTrue())
	})

	It("should lay out every node breadth-first under its parent", func() {
		Expect(buf.NumNodes()).To(Equal(41))
		Expect(buf.PositionOffset[0]).To(Equal(0))

		for n := 1; n < buf.NumNodes(); n++ {
			parent := buf.Parents[n-1]
			Expect(parent).To(BeNumerically("<", n), "parents precede children in the layout")
			Expect(buf.PositionOffset[n]).To(Equal(buf.PositionOffset[parent] + 1))
		}
	})

	It("should mask each node to exactly its ancestor chain", func() {
		for n := 0; n < buf.NumNodes(); n++ {
			row := buf.StructuralMask[n]
			Expect(row[n]).To(BeTrue(), "a node attends to itself")

			visible := 0
			for _, v := range row {
				if v {
					visible++
				}
			}
			Expect(visible).To(Equal(buf.PositionOffset[n]+1),
				"visible set is the inclusive ancestor chain")

			// Every visible node other than n itself must be on the walk
			// from n to the root.
			onChain := make(map[int]bool)
			for a := n; ; a = buf.Parents[a-1] {
				onChain[a] = true
				if a == 0 {
					break
				}
			}
			for b, v := range row {
				Expect(v).To(Equal(onChain[b]))
			}
		}
	})

	It("should list one root-to-leaf path per candidate", func() {
		Expect(buf.RetrieveIndex).To(HaveLen(24))
		seen := make(map[int]bool)
		for _, path := range buf.RetrieveIndex {
			Expect(path).To(HaveLen(4))
			Expect(path[0]).To(Equal(0), "every path starts at the root")
			for i := 1; i < len(path); i++ {
				Expect(buf.Parents[path[i]-1]).To(Equal(path[i-1]),
					"consecutive path entries are parent and child")
			}
			leaf := path[len(path)-1]
			Expect(seen[leaf]).To(BeFalse(), "each leaf appears in exactly one path")
			seen[leaf] = true
		}
	})

	It("should build deterministically", func() {
		again, err := medusa.BuildTreeBuffers(medusa.NewBranchSpec(4, 3, 2))
		Expect(err).NotTo(HaveOccurred())
		Expect(again.Parents).To(Equal(buf.Parents))
		Expect(again.RetrieveIndex).To(Equal(buf.RetrieveIndex))
		Expect(again.PositionOffset).To(Equal(buf.PositionOffset))
		Expect(again.StructuralMask).To(Equal(buf.StructuralMask))
	})
})
