package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	medusa "github.com/JackCharlesZhang/Medusa"
)

var (
	benchSteps int

	benchCmd = &cobra.Command{
		Use:   "bench",
		Short: "Compare speculative decoding against one-token-per-step decoding",
		Long: `Runs the same greedy generation twice: once with the configured
draft tree and once with a single-token tree (no useful speculation), and
reports the step counts and accept lengths side by side. Outputs must be
identical; only the number of verification passes differs.`,
		RunE: runBench,
	}
)

func init() {
	benchCmd.Flags().StringVarP(&runPrompt, "prompt", "p", "Once upon a time", "prompt text")
	benchCmd.Flags().IntVarP(&benchSteps, "max-steps", "n", 64, "maximum decoding steps")
	benchCmd.Flags().StringVar(&runSpec, "spec", "", "branch spec widths, e.g. 4,3,2 (default: preset)")
	benchCmd.Flags().IntVar(&runHeads, "heads", 5, "number of toy draft heads")
	benchCmd.Flags().Int64Var(&runModelSeed, "model-seed", 42, "toy model seed")
}

func runBench(cmd *cobra.Command, args []string) error {
	engine, err := buildEngine()
	if err != nil {
		return err
	}
	defer engine.Close()

	speculative, specDur, err := timedRun(engine)
	if err != nil {
		return err
	}

	naive, naiveDur, err := timedRun(engine,
		medusa.WithBranchSpecOverride(medusa.NewBranchSpec(1)))
	if err != nil {
		return err
	}

	// Step caps cut the two runs at different lengths; the shared prefix
	// must still be identical token for token.
	common := min(len(speculative.Tokens), len(naive.Tokens))
	for i := 0; i < common; i++ {
		if speculative.Tokens[i] != naive.Tokens[i] {
			return fmt.Errorf("outputs diverged at token %d", i)
		}
	}

	fmt.Printf("output: identical for the common %d tokens\n\n", common)
	fmt.Printf("%-12s %8s %8s %14s %10s\n", "mode", "steps", "tokens", "accept/step", "wall")
	fmt.Printf("%-12s %8d %8d %14.2f %10s\n", "speculative",
		speculative.Steps, len(speculative.Tokens), speculative.MeanAcceptLength(), specDur.Round(time.Microsecond))
	fmt.Printf("%-12s %8d %8d %14.2f %10s\n", "sequential",
		naive.Steps, len(naive.Tokens), naive.MeanAcceptLength(), naiveDur.Round(time.Microsecond))
	return nil
}

func timedRun(engine *medusa.Engine, extra ...medusa.GenerateOption) (*medusa.Result, time.Duration, error) {
	opts := append([]medusa.GenerateOption{
		medusa.WithMaxSteps(benchSteps),
		medusa.WithTemperature(0),
	}, extra...)

	start := time.Now()
	result, err := engine.Generate(runPrompt, opts...)
	return result, time.Since(start), err
}
