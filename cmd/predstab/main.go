// Package main provides the CLI entry point for predstab.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var version = "0.1.0"

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "predstab",
	Short: "Predstab - training-run reproducibility harness",
	Long: `Predstab trains a classifier alongside a weight-averaged shadow copy,
records per-sample prediction correctness every epoch, and analyzes the
stability, mismatch, misclassification and persistence of the two
prediction streams across a training run.`,
	Version: version,
}

func init() {
	rootCmd.AddCommand(trainCmd)
	rootCmd.AddCommand(plotsCmd)
}
