package main

import (
	"fmt"

	"github.com/spf13/cobra"

	medusa "github.com/JackCharlesZhang/Medusa"
)

var (
	treeSpec string

	treeCmd = &cobra.Command{
		Use:   "tree",
		Short: "Inspect the topology a branch spec produces",
		RunE:  runTree,
	}
)

func init() {
	treeCmd.Flags().StringVar(&treeSpec, "spec", "4,3,2", "branch spec widths, e.g. 4,3,2")
}

func runTree(cmd *cobra.Command, args []string) error {
	spec, err := parseWidths(treeSpec)
	if err != nil {
		return err
	}
	buf, err := medusa.BuildTreeBuffers(spec)
	if err != nil {
		return err
	}

	fmt.Printf("spec:  %s\n", spec.Key())
	fmt.Printf("nodes: %d (root included)\n", buf.NumNodes())
	fmt.Printf("paths: %d, depth %d\n\n", len(buf.RetrieveIndex), spec.Depth())

	for d := 0; d <= spec.Depth(); d++ {
		count := 0
		for _, off := range buf.PositionOffset {
			if off == d {
				count++
			}
		}
		fmt.Printf("depth %d: %4d nodes\n", d, count)
	}
	return nil
}
