package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sharpts/compiler/internal/driver"
)

var emitCmd = &cobra.Command{
	Use:     "emit <ast.json>",
	GroupID: "pipeline",
	Short:   "Compile an AST JSON file into a module image",
	Long: `emit reads a program previously serialised with the astjson wire
format and runs it through the two-pass driver, reporting the resulting
class/method counts and any per-method compile or validation errors.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		if err := runEmit(cmd, args); err != nil {
			cmd.PrintErrln("Error:", err)
		}
	},
}

func runEmit(cmd *cobra.Command, args []string) error {
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

	methods := 0
	for _, c := range res.Module.Classes {
		methods += len(c.Methods)
	}
	cmd.Printf("compiled %q: %d classes, %d methods, %d assembly refs\n",
		res.Module.Name, len(res.Module.Classes), methods, len(res.Module.AssemblyRefs))
	if len(res.Errors) > 0 || len(res.ValidationErrors) > 0 {
		return fmt.Errorf("compile finished with %d error(s), %d validation failure(s)",
			len(res.Errors), len(res.ValidationErrors))
	}
	return nil
}
