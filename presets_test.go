package medusa_test

import (
	"errors"
	"os"
	"path/filepath"

	medusa "github.com/JackCharlesZhang/Medusa"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

// Branch Spec Preset Test Suite
//
// Tests preset selection by model identity and the YAML load/save round
// trip for user-supplied spec files.

var _ = Describe("DefaultBranchSpec", func() {
	It("should match checkpoint names by substring", func() {
		Expect(medusa.DefaultBranchSpec("lmsys/vicuna-7b-v1.3")).To(Equal(medusa.NewBranchSpec(7, 6, 2, 1, 1)))
		Expect(medusa.DefaultBranchSpec("lmsys/vicuna-13b-v1.3")).To(Equal(medusa.NewBranchSpec(7, 6, 3, 2, 1)))
	})

	It("should match case-insensitively", func() {
		Expect(medusa.DefaultBranchSpec("HuggingFaceH4/Zephyr-7B-beta")).To(Equal(medusa.NewBranchSpec(5, 4, 2, 1, 1)))
	})

	It("should fall back to the general preset for unknown models", func() {
		fallback := medusa.NewBranchSpec(4, 3, 2, 2, 1)
		Expect(medusa.DefaultBranchSpec("some/unknown-model")).To(Equal(fallback))
		Expect(medusa.DefaultBranchSpec("")).To(Equal(fallback))
	})

	It("should hand out independent copies", func() {
		spec := medusa.DefaultBranchSpec("")
		spec[0][0] = 99
		Expect(medusa.DefaultBranchSpec("")[0][0]).To(Equal(0))
	})
})

var _ = Describe("BranchSpecNames", func() {
	It("should list every preset", func() {
		names := medusa.BranchSpecNames()
		Expect(names).To(ContainElements("default", "vicuna-7b", "vicuna-13b", "vicuna-33b", "zephyr-7b"))
	})
})

var _ = Describe("Branch spec files", func() {
	var dir string

	BeforeEach(func() {
		dir = GinkgoT().TempDir()
	})

	It("should round-trip through YAML", func() {
		path := filepath.Join(dir, "specs.yaml")
		specs := map[string]medusa.BranchSpec{
			"tuned":  medusa.NewBranchSpec(7, 6, 2, 1, 1),
			"narrow": medusa.NewBranchSpec(2, 1),
		}

		Expect(medusa.SaveBranchSpecs(path, specs)).To(Succeed())

		loaded, err := medusa.LoadBranchSpecs(path)
		Expect(err).NotTo(HaveOccurred())
		Expect(loaded).To(Equal(specs))
	})

	It("should fail on a missing file", func() {
		_, err := medusa.LoadBranchSpecs(filepath.Join(dir, "missing.yaml"))
		Expect(err).To(HaveOccurred())
	})

	It("should fail on unparseable YAML", func() {
		path := filepath.Join(dir, "broken.yaml")
		Expect(os.WriteFile(path, []byte("{:::"), 0o644)).To(Succeed())

		_, err := medusa.LoadBranchSpecs(path)
		Expect(err).To(HaveOccurred())
	})

	It("should reject files containing an invalid spec", func() {
		path := filepath.Join(dir, "widening.yaml")
		Expect(os.WriteFile(path, []byte("bad: [1, 2]\n"), 0o644)).To(Succeed())

		_, err := medusa.LoadBranchSpecs(path)
		Expect(errors.Is(err, medusa.ErrInvalidSpec)).To(BeTrue())
	})
})
