package driver

import (
	"testing"

	"github.com/sharpts/compiler/internal/ast"
	"github.com/sharpts/compiler/internal/bytecode"
	"github.com/sharpts/compiler/internal/module"
)

func findMethod(t *testing.T, m *module.Module, className, methodName string) *module.Method {
	t.Helper()
	for _, c := range m.Classes {
		if c.Name != className {
			continue
		}
		for _, meth := range c.Methods {
			if meth.Name == methodName {
				return meth
			}
		}
	}
	t.Fatalf("method %s.%s not found", className, methodName)
	return nil
}

func findClassByKind(t *testing.T, m *module.Module, kind module.ClassKind) *module.Class {
	t.Helper()
	for _, c := range m.Classes {
		if c.Kind == kind {
			return c
		}
	}
	t.Fatalf("no class of kind %v found", kind)
	return nil
}

// addFn builds `function add(a, b) { return a + b; }`.
func addFn() *ast.FunctionStatement {
	return &ast.FunctionStatement{
		Name:   "add",
		Params: []*ast.Param{{Name: "a"}, {Name: "b"}},
		Body: []ast.Statement{
			&ast.ReturnStatement{Value: &ast.Binary{Operator: "+", Left: &ast.Variable{Name: "a"}, Right: &ast.Variable{Name: "b"}}},
		},
	}
}

func TestCompile_TopLevelFunctionGetsProgramMethod(t *testing.T) {
	prog := &ast.Program{Statements: []ast.Statement{addFn()}}

	res, err := Compile(prog, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Errors) != 0 {
		t.Fatalf("unexpected compile errors: %v", res.Errors)
	}

	meth := findMethod(t, res.Module, "$Program", "add")
	if !meth.Static {
		t.Error("expected top-level function to compile to a static method")
	}
	if meth.Body == nil || len(meth.Body.Code) == 0 {
		t.Fatal("expected a non-empty emitted body")
	}
	if len(res.ValidationErrors) != 0 {
		t.Fatalf("unexpected IL validation errors: %v", res.ValidationErrors)
	}
}

func TestCompile_TopLevelStatementsBecomeMain(t *testing.T) {
	prog := &ast.Program{Statements: []ast.Statement{
		&ast.ConstStatement{Name: "x", Value: &ast.Literal{Kind: ast.LitNumber, Value: 1.0}},
		&ast.ExpressionStatement{Expr: &ast.Variable{Name: "x"}},
	}}

	res, err := Compile(prog, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Errors) != 0 {
		t.Fatalf("unexpected compile errors: %v", res.Errors)
	}

	meth := findMethod(t, res.Module, "$Program", "Main")
	if meth.Body == nil || len(meth.Body.Code) == 0 {
		t.Fatal("expected Main to carry a non-empty body")
	}
}

func TestCompile_AsyncFunctionProducesStateMachineAndKickoff(t *testing.T) {
	// async function f(n) { let x = await n; return x; }
	fn := &ast.FunctionStatement{
		Name:   "f",
		Async:  true,
		Params: []*ast.Param{{Name: "n"}},
		Body: []ast.Statement{
			&ast.VarStatement{Name: "x", Value: &ast.Await{Value: &ast.Variable{Name: "n"}}},
			&ast.ReturnStatement{Value: &ast.Variable{Name: "x"}},
		},
	}
	prog := &ast.Program{Statements: []ast.Statement{fn}}

	res, err := Compile(prog, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Errors) != 0 {
		t.Fatalf("unexpected compile errors: %v", res.Errors)
	}

	kickoff := findMethod(t, res.Module, "$Program", "f")
	if kickoff.Body == nil || len(kickoff.Body.Code) == 0 {
		t.Fatal("expected a non-empty kickoff body")
	}

	sm := findClassByKind(t, res.Module, module.KindStateMachine)
	resumeMeth := findMethod(t, res.Module, sm.Name, "Resume")
	if resumeMeth.Body == nil || len(resumeMeth.Body.Code) == 0 {
		t.Fatal("expected a non-empty Resume body")
	}

	foundNewobj, foundCallvirt := false, false
	for i := 0; i < len(kickoff.Body.Code); i++ {
		switch bytecode.Opcode(kickoff.Body.Code[i]) {
		case bytecode.Newobj:
			foundNewobj = true
		case bytecode.Callvirt:
			foundCallvirt = true
		}
	}
	if !foundNewobj {
		t.Error("expected kickoff body to allocate the state machine via Newobj")
	}
	if !foundCallvirt {
		t.Error("expected an async kickoff to eagerly call Resume via Callvirt")
	}
}

func TestCompile_GeneratorKickoffDoesNotCallResumeEagerly(t *testing.T) {
	// function* gen() { yield 1; }
	fn := &ast.FunctionStatement{
		Name:      "gen",
		Generator: true,
		Body: []ast.Statement{
			&ast.ExpressionStatement{Expr: &ast.Yield{Value: &ast.Literal{Kind: ast.LitNumber, Value: 1.0}}},
		},
	}
	prog := &ast.Program{Statements: []ast.Statement{fn}}

	res, err := Compile(prog, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Errors) != 0 {
		t.Fatalf("unexpected compile errors: %v", res.Errors)
	}

	kickoff := findMethod(t, res.Module, "$Program", "gen")
	for i := 0; i < len(kickoff.Body.Code); i++ {
		if bytecode.Opcode(kickoff.Body.Code[i]) == bytecode.Callvirt {
			t.Error("did not expect a generator kickoff to call Resume eagerly")
		}
	}
}

func TestCompile_NestedArrowGetsItsOwnMethod(t *testing.T) {
	// function make() { return (x) => x; }
	arrow := &ast.ArrowFunction{
		Params: []*ast.Param{{Name: "x"}},
		Body:   []ast.Statement{&ast.ReturnStatement{Value: &ast.Variable{Name: "x"}}},
	}
	fn := &ast.FunctionStatement{
		Name: "make",
		Body: []ast.Statement{&ast.ReturnStatement{Value: arrow}},
	}
	prog := &ast.Program{Statements: []ast.Statement{fn}}

	res, err := Compile(prog, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Errors) != 0 {
		t.Fatalf("unexpected compile errors: %v", res.Errors)
	}

	found := false
	for _, c := range res.Module.Classes {
		if c.Name != "$Program" {
			continue
		}
		for _, meth := range c.Methods {
			if meth.Name == arrowHandleKeyFor(arrow) {
				found = true
			}
		}
	}
	if !found {
		t.Fatalf("expected a declared method for the nested arrow keyed %s", arrowHandleKeyFor(arrow))
	}
}

func TestCompile_ClassConstructorAndMethodDeclared(t *testing.T) {
	cls := &ast.ClassStatement{
		Name: "Counter",
		Members: []*ast.ClassMember{
			{Kind: ast.MemberField, Name: "n"},
			{Kind: ast.MemberConstructor, Name: "ctor", Body: []ast.Statement{}},
			{
				Kind: ast.MemberMethod, Name: "get",
				Body: []ast.Statement{&ast.ReturnStatement{Value: &ast.Literal{Kind: ast.LitNumber, Value: 0.0}}},
			},
		},
	}
	prog := &ast.Program{Statements: []ast.Statement{cls}}

	res, err := Compile(prog, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Errors) != 0 {
		t.Fatalf("unexpected compile errors: %v", res.Errors)
	}

	ctor := findMethod(t, res.Module, "Counter", "ctor")
	if ctor.Static {
		t.Error("expected a constructor to be an instance method")
	}
	getMeth := findMethod(t, res.Module, "Counter", "get")
	if getMeth.Static {
		t.Error("expected an ordinary instance method to stay an instance method")
	}
}

func TestCompile_UnresolvedOuterCaptureSurfacesAsError(t *testing.T) {
	// function make() { let n = 0; return () => n; }
	// The arrow references an outer local; display-class capture
	// storage is not wired (see DESIGN.md), so this must surface as a
	// structural compile error rather than miscompiling.
	arrow := &ast.ArrowFunction{
		Body: []ast.Statement{&ast.ReturnStatement{Value: &ast.Variable{Name: "n"}}},
	}
	fn := &ast.FunctionStatement{
		Name: "make",
		Body: []ast.Statement{
			&ast.VarStatement{Name: "n", Value: &ast.Literal{Kind: ast.LitNumber, Value: 0.0}},
			&ast.ReturnStatement{Value: arrow},
		},
	}
	prog := &ast.Program{Statements: []ast.Statement{fn}}

	res, err := Compile(prog, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Errors) == 0 {
		t.Fatal("expected an unresolved-identifier error for the captured outer variable")
	}
}

func TestCompile_NilProgramRejected(t *testing.T) {
	if _, err := Compile(nil, nil); err == nil {
		t.Fatal("expected an error for a nil program")
	}
}
