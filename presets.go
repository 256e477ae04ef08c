package medusa

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Named branch-spec presets keyed by model identity. These are the tuned
// tree shapes for the published head checkpoints; DefaultBranchSpec falls
// back to a conservative general-purpose tree when the model is unknown.
var presets = map[string]BranchSpec{
	"default":    NewBranchSpec(4, 3, 2, 2, 1),
	"vicuna-7b":  NewBranchSpec(7, 6, 2, 1, 1),
	"vicuna-13b": NewBranchSpec(7, 6, 3, 2, 1),
	"vicuna-33b": NewBranchSpec(7, 5, 3, 2, 1),
	"zephyr-7b":  NewBranchSpec(5, 4, 2, 1, 1),
}

// DefaultBranchSpec returns the preset tree for the given model name,
// matching on a case-insensitive substring basis the way checkpoint names
// are usually written ("lmsys/vicuna-7b-v1.3" selects "vicuna-7b"). Unknown
// names get the general default.
func DefaultBranchSpec(modelName string) BranchSpec {
	name := strings.ToLower(modelName)
	for key, spec := range presets {
		if key != "default" && strings.Contains(name, key) {
			return spec.Clone()
		}
	}
	return presets["default"].Clone()
}

// BranchSpecNames lists the available preset keys, for CLI help output.
func BranchSpecNames() []string {
	names := make([]string, 0, len(presets))
	for key := range presets {
		names = append(names, key)
	}
	return names
}

// specFile is the YAML document shape for preset files: a flat map from
// model identity to per-depth widths.
//
//	vicuna-7b: [7, 6, 2, 1, 1]
//	my-model:  [4, 3, 2]
type specFile map[string][]int

// LoadBranchSpecs reads named branch specs from a YAML file. Every loaded
// spec is validated before any is returned, so a bad file never yields a
// partial set.
func LoadBranchSpecs(path string) (map[string]BranchSpec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read branch specs: %w", err)
	}
	var file specFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse branch specs %s: %w", path, err)
	}
	out := make(map[string]BranchSpec, len(file))
	for name, widths := range file {
		spec := NewBranchSpec(widths...)
		if err := spec.Validate(); err != nil {
			return nil, fmt.Errorf("branch spec %q: %w", name, err)
		}
		out[name] = spec
	}
	return out, nil
}

// SaveBranchSpecs writes named branch specs to a YAML file in the format
// LoadBranchSpecs reads.
func SaveBranchSpecs(path string, specs map[string]BranchSpec) error {
	file := make(specFile, len(specs))
	for name, spec := range specs {
		widths := make([]int, spec.Depth())
		for d := range widths {
			widths[d] = spec.Width(d)
		}
		file[name] = widths
	}
	data, err := yaml.Marshal(file)
	if err != nil {
		return fmt.Errorf("encode branch specs: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write branch specs: %w", err)
	}
	return nil
}
