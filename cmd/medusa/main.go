// Command medusa exercises the speculative tree-decoding engine against
// the built-in deterministic toy model: generate text, benchmark
// speculative against sequential decoding, or inspect a draft tree's
// topology without touching a real model.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "medusa",
	Short: "Speculative tree decoding playground",
	Long: `Exercises the Medusa speculative decoding engine against a
deterministic in-memory model, so tree shapes, adaptive policies and
acceptance behaviour can be explored without loading model weights.`,
}

func main() {
	rootCmd.AddCommand(runCmd, benchCmd, treeCmd)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
