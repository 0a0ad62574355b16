// Command sharptsc is the command-line front end for the compiler core:
// it reads a pre-built AST (see internal/astjson) and runs it through
// internal/driver, internal/rewriter, or a disassembly listing.
package main

import "github.com/sharpts/compiler/cmd/sharptsc/cmd"

func main() {
	cmd.Execute()
}
