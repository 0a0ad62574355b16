package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/sharpts/compiler/internal/bytecode"
	"github.com/sharpts/compiler/internal/driver"
)

var disasmCmd = &cobra.Command{
	Use:     "disasm <ast.json>",
	GroupID: "pipeline",
	Short:   "Compile an AST JSON file and print its method bodies",
	Long: `disasm compiles an AST JSON file and prints every class's methods
as an opcode listing, one instruction per line, with 4-byte token
operands resolved to their table tag and row.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		if err := runDisasm(cmd, args); err != nil {
			cmd.PrintErrln("Error:", err)
		}
	},
}

// headingColor bolds class/method headers only when stdout is a real
// terminal.
func headingColor(s string) string {
	if !isRealTerminal(os.Stdout.Fd()) {
		return s
	}
	return "\x1b[1m" + s + "\x1b[0m"
}

func runDisasm(cmd *cobra.Command, args []string) error {
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

	for _, c := range res.Module.Classes {
		cmd.Println(headingColor(fmt.Sprintf("class %s", c.Name)))
		for _, m := range c.Methods {
			cmd.Println(headingColor(fmt.Sprintf("  method %s", m.Name)))
			disasmBody(cmd, m.Body)
		}
	}
	return nil
}

func disasmBody(cmd *cobra.Command, body *bytecode.MethodBody) {
	if body == nil {
		cmd.Println("    <no body>")
		return
	}
	code := body.Code
	for i := 0; i < len(code); {
		op := bytecode.Opcode(code[i])
		size := bytecode.OperandSize(op)
		if size < 0 {
			cmd.Printf("    %04x: %s <switch table, unsupported in this listing>\n", i, op)
			break
		}

		line := fmt.Sprintf("    %04x: %s", i, op)
		if bytecode.HasTokenOperand(op) && size == 4 {
			tok := bytecode.ReadToken(code, i+1)
			line += fmt.Sprintf(" %s", formatToken(tok))
		} else if size > 0 && i+1+size <= len(code) {
			line += fmt.Sprintf(" % x", code[i+1:i+1+size])
		}
		cmd.Println(line)
		i += 1 + size
	}
	for _, ex := range body.Clauses {
		cmd.Printf("    .try %04x-%04x handler %04x-%04x kind=%v\n",
			ex.TryOffset, ex.TryLength, ex.HandlerOffset, ex.HandlerLength, ex.Kind)
	}
}

func formatToken(tok bytecode.Token) string {
	name := "?"
	switch tok.Table() {
	case bytecode.TableTypeRef:
		name = "TypeRef"
	case bytecode.TableTypeDef:
		name = "TypeDef"
	case bytecode.TableFieldDef:
		name = "FieldDef"
	case bytecode.TableMethodDef:
		name = "MethodDef"
	case bytecode.TableMemberRef:
		name = "MemberRef"
	case bytecode.TableStandAloneSig:
		name = "StandAloneSig"
	case bytecode.TableTypeSpec:
		name = "TypeSpec"
	case bytecode.TableMethodSpec:
		name = "MethodSpec"
	case bytecode.TableUserString:
		name = "UserString"
	}
	return fmt.Sprintf("%s[%d]", name, tok.Row())
}
