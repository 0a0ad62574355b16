package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "sharptsc",
	Short: "SharpTS compiler core",
	Long:  `sharptsc lowers a pre-built AST into a managed-bytecode module image.`,
}

// Execute runs the command tree, exiting non-zero on any command error.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddGroup(&cobra.Group{
		ID:    "pipeline",
		Title: "Pipeline commands",
	})

	rootCmd.AddCommand(emitCmd)
	rootCmd.AddCommand(rewriteCmd)
	rootCmd.AddCommand(disasmCmd)

	rootCmd.PersistentFlags().StringP("config", "c", "", "path to sharptsc.yaml (searched upward from cwd if omitted)")
}
