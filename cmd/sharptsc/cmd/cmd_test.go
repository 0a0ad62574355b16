package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/sharpts/compiler/internal/ast"
	"github.com/sharpts/compiler/internal/astjson"
)

// writeFixture encodes a tiny program to an AST JSON file under t.TempDir()
// and returns its path.
func writeFixture(t *testing.T) string {
	t.Helper()
	prog := &ast.Program{Statements: []ast.Statement{
		&ast.FunctionStatement{
			Name: "greet",
			Body: []ast.Statement{
				&ast.ReturnStatement{Value: &ast.Literal{Kind: ast.LitString, Value: "hi"}},
			},
		},
	}}
	data, err := astjson.Encode(prog)
	if err != nil {
		t.Fatalf("astjson.Encode: %v", err)
	}
	path := filepath.Join(t.TempDir(), "program.json")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("writing fixture: %v", err)
	}
	return path
}

// runRoot executes rootCmd with args, returning combined stdout/stderr.
func runRoot(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func TestEmitCommand_ReportsClassAndMethodCounts(t *testing.T) {
	path := writeFixture(t)
	out, err := runRoot(t, "emit", path)
	if err != nil {
		t.Fatalf("emit: %v\noutput:\n%s", err, out)
	}
	if !bytes.Contains([]byte(out), []byte("classes")) {
		t.Errorf("expected a class/method summary line, got:\n%s", out)
	}
}

func TestDisasmCommand_PrintsMethodHeaders(t *testing.T) {
	path := writeFixture(t)
	out, err := runRoot(t, "disasm", path)
	if err != nil {
		t.Fatalf("disasm: %v\noutput:\n%s", err, out)
	}
	if !bytes.Contains([]byte(out), []byte("method greet")) {
		t.Errorf("expected a 'method greet' header in disasm output, got:\n%s", out)
	}
}

func TestRewriteCommand_PrintsSummary(t *testing.T) {
	path := writeFixture(t)
	out, err := runRoot(t, "rewrite", path)
	if err != nil {
		t.Fatalf("rewrite: %v\noutput:\n%s", err, out)
	}
	if !bytes.Contains([]byte(out), []byte("rewrote")) {
		t.Errorf("expected the rewriter's summary line, got:\n%s", out)
	}
}

func TestEmitCommand_MissingFileReportsError(t *testing.T) {
	out, err := runRoot(t, "emit", filepath.Join(t.TempDir(), "does-not-exist.json"))
	// Run reports the error through cmd.PrintErrln (matching the teacher's
	// pattern) rather than propagating it through Execute, so the error
	// shows up in the captured output, not in Execute's return value.
	if err != nil {
		t.Fatalf("unexpected error from Execute itself: %v", err)
	}
	if !bytes.Contains([]byte(out), []byte("Error:")) {
		t.Errorf("expected an 'Error:' line for the missing file, got:\n%s", out)
	}
}
