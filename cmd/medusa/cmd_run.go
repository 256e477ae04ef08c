package main

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	medusa "github.com/JackCharlesZhang/Medusa"
	"github.com/JackCharlesZhang/Medusa/toymodel"
)

var (
	runPrompt      string
	runMaxSteps    int
	runTemperature float32
	runSpec        string
	runSpecsFile   string
	runSpecName    string
	runAdaptive    string
	runSeed        int64
	runHeads       int
	runModelSeed   int64
	runVerbose     bool

	runCmd = &cobra.Command{
		Use:   "run",
		Short: "Generate from the toy model with speculative decoding",
		RunE:  runRun,
	}
)

func init() {
	runCmd.Flags().StringVarP(&runPrompt, "prompt", "p", "Once upon a time", "prompt text")
	runCmd.Flags().IntVarP(&runMaxSteps, "max-steps", "n", 32, "maximum decoding steps")
	runCmd.Flags().Float32VarP(&runTemperature, "temperature", "t", 0, "sampling temperature (0 = greedy)")
	runCmd.Flags().StringVar(&runSpec, "spec", "", "branch spec widths, e.g. 4,3,2 (default: preset)")
	runCmd.Flags().StringVar(&runSpecsFile, "specs-file", "", "YAML file of named branch specs")
	runCmd.Flags().StringVar(&runSpecName, "spec-name", "default", "named spec to select from --specs-file")
	runCmd.Flags().StringVar(&runAdaptive, "adaptive", "off", "adaptive policy: off, previous or current")
	runCmd.Flags().Int64Var(&runSeed, "seed", -1, "sampling seed (-1 = random)")
	runCmd.Flags().IntVar(&runHeads, "heads", 5, "number of toy draft heads")
	runCmd.Flags().Int64Var(&runModelSeed, "model-seed", 42, "toy model seed")
	runCmd.Flags().BoolVarP(&runVerbose, "verbose", "v", false, "log step events to stderr")
}

func runRun(cmd *cobra.Command, args []string) error {
	engine, err := buildEngine()
	if err != nil {
		return err
	}
	defer engine.Close()

	opts := []medusa.GenerateOption{
		medusa.WithMaxSteps(runMaxSteps),
		medusa.WithTemperature(runTemperature),
		medusa.WithSeed(runSeed),
	}
	adaptive, err := parseAdaptive(runAdaptive)
	if err != nil {
		return err
	}
	opts = append(opts, medusa.WithAdaptiveMode(adaptive))

	result, err := engine.GenerateStream(runPrompt, func(frag medusa.Fragment) bool {
		fmt.Print(frag.Text)
		return true
	}, opts...)
	if err != nil {
		return err
	}

	fmt.Printf("\n\n%d tokens in %d steps (mean accept length %.2f)\n",
		len(result.Tokens), result.Steps, result.MeanAcceptLength())
	return nil
}

// buildEngine assembles the toy collaborators and the engine from the run
// flags; bench reuses it.
func buildEngine(extra ...medusa.EngineOption) (*medusa.Engine, error) {
	model := toymodel.NewModel(runModelSeed)
	heads := toymodel.NewHeads(model, runHeads)
	tok := toymodel.NewTokenizer(model)

	opts := extra
	if runVerbose {
		opts = append(opts, medusa.WithLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelDebug,
		}))))
	}

	spec, err := resolveSpec()
	if err != nil {
		return nil, err
	}
	if spec != nil {
		opts = append(opts, medusa.WithBranchSpec(spec))
	}

	return medusa.New(model, heads, tok, opts...)
}

// resolveSpec picks the branch spec from --spec, then --specs-file, then
// the built-in presets (nil lets the engine choose).
func resolveSpec() (medusa.BranchSpec, error) {
	if runSpec != "" {
		return parseWidths(runSpec)
	}
	if runSpecsFile != "" {
		specs, err := medusa.LoadBranchSpecs(runSpecsFile)
		if err != nil {
			return nil, err
		}
		spec, ok := specs[runSpecName]
		if !ok {
			return nil, fmt.Errorf("spec %q not in %s", runSpecName, runSpecsFile)
		}
		return spec, nil
	}
	return nil, nil
}

func parseWidths(s string) (medusa.BranchSpec, error) {
	parts := strings.Split(s, ",")
	widths := make([]int, len(parts))
	for i, p := range parts {
		w, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return nil, fmt.Errorf("bad width %q: %w", p, err)
		}
		widths[i] = w
	}
	spec := medusa.NewBranchSpec(widths...)
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	return spec, nil
}

func parseAdaptive(s string) (medusa.AdaptiveMode, error) {
	switch s {
	case "off":
		return medusa.AdaptiveOff, nil
	case "previous":
		return medusa.AdaptivePrevious, nil
	case "current":
		return medusa.AdaptiveCurrent, nil
	default:
		return medusa.AdaptiveOff, fmt.Errorf("unknown adaptive policy %q (want off, previous or current)", s)
	}
}
