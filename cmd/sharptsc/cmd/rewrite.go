package cmd

import (
	"github.com/spf13/cobra"

	"github.com/sharpts/compiler/internal/driver"
	"github.com/sharpts/compiler/internal/module"
	"github.com/sharpts/compiler/internal/rewriter"
)

var rewriteTargets []string

var rewriteCmd = &cobra.Command{
	Use:     "rewrite <ast.json>",
	GroupID: "pipeline",
	Short:   "Compile then retarget a module onto a narrower assembly set",
	Long: `rewrite compiles an AST JSON file the same way emit does, then runs
the assembly reference rewriter against the --target assemblies given
(repeatable). With no --target flags, the rewriter infers its target set
from the compiled module's own assembly references.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		if err := runRewrite(cmd, args); err != nil {
			cmd.PrintErrln("Error:", err)
		}
	},
}

func init() {
	rewriteCmd.Flags().StringArrayVar(&rewriteTargets, "target", nil, "target runtime assembly name (repeatable)")
}

func runRewrite(cmd *cobra.Command, args []string) error {
	prog, err := loadProgram(args[0])
	if err != nil {
		return err
	}
	opts, err := loadOptionsFlag(cmd)
	if err != nil {
		return err
	}

	res, err := driver.Compile(prog, opts)
	if err != nil {
		return err
	}
	reportCompileErrors(cmd, res.Errors, res.ValidationErrors)

	var targets []module.AssemblyRef
	for _, name := range rewriteTargets {
		targets = append(targets, module.AssemblyRef{Name: name})
	}

	rw, err := rewriter.Rewrite(res.Module, targets)
	if err != nil {
		return err
	}
	cmd.Println(rw.Summary)
	return nil
}
