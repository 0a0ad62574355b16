package cmd

import (
	"fmt"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/sharpts/compiler/internal/ast"
	"github.com/sharpts/compiler/internal/astjson"
	"github.com/sharpts/compiler/internal/compileroptions"
)

// isRealTerminal reports whether fd is a genuine (or Cygwin) terminal and
// NO_COLOR isn't set, the same gate builtins_term.go applies before
// emitting any ANSI escape.
func isRealTerminal(fd uintptr) bool {
	if _, noColor := os.LookupEnv("NO_COLOR"); noColor {
		return false
	}
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// colorizeDiagnostic wraps a diagnostic label in bold red when stderr is a
// terminal, and leaves it bare otherwise (piped output, CI logs, NO_COLOR).
func colorizeDiagnostic(label string) string {
	if !isRealTerminal(os.Stderr.Fd()) {
		return label
	}
	return "\x1b[1;31m" + label + "\x1b[0m"
}

// loadProgram reads and decodes the AST JSON file named by path.
func loadProgram(path string) (*ast.Program, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	prog, err := astjson.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("decoding %s: %w", path, err)
	}
	return prog, nil
}

// loadOptionsFlag resolves sharptsc.yaml per the --config flag, falling
// back to an upward search from the current directory, and finally to
// compileroptions' own defaults when nothing is found.
func loadOptionsFlag(cmd *cobra.Command) (*compileroptions.CompilerOptions, error) {
	path, _ := cmd.Flags().GetString("config")
	if path == "" {
		found, err := compileroptions.FindOptions(".")
		if err != nil {
			return nil, err
		}
		path = found
	}
	if path == "" {
		return compileroptions.ParseOptions(nil, "<defaults>")
	}
	return compileroptions.LoadOptions(path)
}

// reportCompileErrors prints per-method compile and validation failures to
// the command's error stream without treating them as fatal — mirroring
// the driver's own "keep compiling every other method" policy.
func reportCompileErrors(cmd *cobra.Command, errs, validationErrs []error) {
	for _, err := range errs {
		cmd.PrintErrln(colorizeDiagnostic("compile error:"), err)
	}
	for _, err := range validationErrs {
		cmd.PrintErrln(colorizeDiagnostic("validation error:"), err)
	}
}
