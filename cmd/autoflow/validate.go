package main

import (
	"fmt"
	"io"

	"github.com/aretw0/autoflow/internal/validator"
	"github.com/aretw0/autoflow/pkg/adapters/file"
	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate <file|dir>",
	Short: "Check workflow definitions for consistency",
	Long: `Reports structural errors (duplicate node ids, dangling edges) and warnings
(unknown capabilities, unreachable nodes, deliveries with nothing to deliver).`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		strict, _ := cmd.Flags().GetBool("strict")
		return runValidate(cmd.OutOrStdout(), args[0], strict)
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
	validateCmd.Flags().Bool("strict", false, "Treat warnings as errors")
}

func runValidate(out io.Writer, path string, strict bool) error {
	defs, err := file.LoadAll(path)
	if err != nil {
		return err
	}

	failed := 0
	for _, wf := range defs {
		warnings, err := validator.ValidateWorkflow(wf)
		if err != nil {
			fmt.Fprintf(out, "✗ %s: %v\n", wf.ID, err)
			failed++
			continue
		}
		for _, w := range warnings {
			fmt.Fprintf(out, "! %s: %s\n", wf.ID, w)
		}
		if strict && len(warnings) > 0 {
			failed++
			continue
		}
		fmt.Fprintf(out, "✓ %s is valid\n", wf.ID)
	}

	if failed > 0 {
		return fmt.Errorf("validation failed for %d of %d workflows", failed, len(defs))
	}
	return nil
}
