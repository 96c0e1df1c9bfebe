package main

import (
	"fmt"
	"strings"

	"github.com/aretw0/autoflow"
	"github.com/spf13/cobra"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number of autoflow",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "autoflow version %s\n", strings.TrimSpace(autoflow.Version))
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
