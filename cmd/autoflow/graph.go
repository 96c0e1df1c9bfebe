package main

import (
	"fmt"

	"github.com/aretw0/autoflow/internal/presentation/graph"
	"github.com/aretw0/autoflow/pkg/adapters/file"
	"github.com/spf13/cobra"
)

var graphCmd = &cobra.Command{
	Use:   "graph <file>",
	Short: "Export the workflow graph visualization",
	Long:  `Reads a workflow definition and outputs a Mermaid diagram (graph LR) of its nodes and edges.`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		wf, err := file.Load(args[0])
		if err != nil {
			return err
		}
		fmt.Fprint(cmd.OutOrStdout(), graph.GenerateMermaid(wf, nil))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(graphCmd)
}
