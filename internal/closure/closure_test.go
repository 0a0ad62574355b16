package closure

import (
	"testing"

	"github.com/sharpts/compiler/internal/ast"
)

func TestSimpleCapture(t *testing.T) {
	// function outer() { let x = 1; function inner() { return x; } }
	a := ast.NewArena()
	inner := &ast.FunctionStatement{
		Name: "inner",
		Body: []ast.Statement{
			&ast.ReturnStatement{Value: &ast.Variable{Name: "x"}},
		},
	}
	outer := &ast.FunctionStatement{
		Name: "outer",
		Body: []ast.Statement{
			&ast.VarStatement{Name: "x", Value: &ast.Literal{Kind: ast.LitNumber, Value: 1.0}},
			inner,
		},
	}
	prog := ast.NewProgram(a, 1, []ast.Statement{outer})

	analysis := Analyze(prog)

	innerRec := analysis.RecordFor(inner.ID())
	if !innerRec.Captures["x"] {
		t.Fatalf("expected inner to capture x, got %+v", innerRec.Captures)
	}

	outerRec := analysis.RecordFor(outer.ID())
	if !outerRec.CapturedLocals["x"] {
		t.Fatalf("expected outer to record x as a captured local, got %+v", outerRec.CapturedLocals)
	}

	if !analysis.IsEverCaptured("x") {
		t.Fatalf("expected x to appear in the any-captured index")
	}
}

func TestOwnLocalIsNotCaptured(t *testing.T) {
	// function f(x) { return x; } -- x is f's own param, not a capture.
	a := ast.NewArena()
	f := &ast.FunctionStatement{
		Name:   "f",
		Params: []*ast.Param{{Name: "x"}},
		Body: []ast.Statement{
			&ast.ReturnStatement{Value: &ast.Variable{Name: "x"}},
		},
	}
	prog := ast.NewProgram(a, 1, []ast.Statement{f})

	analysis := Analyze(prog)
	rec := analysis.RecordFor(f.ID())
	if rec.Captures["x"] {
		t.Fatalf("own parameter must not be recorded as a capture")
	}
}

func TestArrowCapturesThis(t *testing.T) {
	// const fn = () => this;
	a := ast.NewArena()
	arrow := &ast.ArrowFunction{
		Body: []ast.Statement{
			&ast.ExpressionStatement{Expr: &ast.This{}},
		},
	}
	prog := ast.NewProgram(a, 1, []ast.Statement{
		&ast.ConstStatement{Name: "fn", Value: arrow},
	})

	analysis := Analyze(prog)
	rec := analysis.RecordFor(arrow.ID())
	if !rec.Captures[ThisName] {
		t.Fatalf("expected arrow function to capture this, got %+v", rec.Captures)
	}
}

func TestFunctionExpressionDoesNotCaptureThis(t *testing.T) {
	fnExpr := &ast.ArrowFunction{
		IsFunctionExpr: true,
		Body: []ast.Statement{
			&ast.ExpressionStatement{Expr: &ast.This{}},
		},
	}
	a := ast.NewArena()
	prog := ast.NewProgram(a, 1, []ast.Statement{
		&ast.ConstStatement{Name: "fn", Value: fnExpr},
	})

	analysis := Analyze(prog)
	rec := analysis.RecordFor(fnExpr.ID())
	if rec.Captures[ThisName] {
		t.Fatalf("function expressions get their own this, must not capture it")
	}
}

func TestNamedFunctionExpressionSelfReference(t *testing.T) {
	// const fact = function fact(n) { return n <= 1 ? 1 : n * fact(n - 1); }
	a := ast.NewArena()
	selfCall := &ast.Call{
		Callee: &ast.Variable{Name: "fact"},
		Args:   []ast.Expression{&ast.Literal{Kind: ast.LitNumber, Value: 1.0}},
	}
	fnExpr := &ast.ArrowFunction{
		IsFunctionExpr: true,
		Name:           "fact",
		Params:         []*ast.Param{{Name: "n"}},
		Body: []ast.Statement{
			&ast.ReturnStatement{Value: selfCall},
		},
	}
	prog := ast.NewProgram(a, 1, []ast.Statement{
		&ast.ConstStatement{Name: "fact", Value: fnExpr},
	})

	analysis := Analyze(prog)
	rec := analysis.RecordFor(fnExpr.ID())
	if !rec.Captures["fact"] {
		t.Fatalf("expected named function expression to self-capture its own name")
	}
}

func TestClassMethodCapturesEnclosingLocal(t *testing.T) {
	// function make(seed) { class C { method() { return seed; } } }
	method := &ast.ClassMember{
		Name: "method",
		Kind: ast.MemberMethod,
		Body: []ast.Statement{
			&ast.ReturnStatement{Value: &ast.Variable{Name: "seed"}},
		},
	}
	class := &ast.ClassStatement{Name: "C", Members: []*ast.ClassMember{method}}
	outer := &ast.FunctionStatement{
		Name:   "make",
		Params: []*ast.Param{{Name: "seed"}},
		Body:   []ast.Statement{class},
	}
	a := ast.NewArena()
	prog := ast.NewProgram(a, 1, []ast.Statement{outer})

	analysis := Analyze(prog)
	outerRec := analysis.RecordFor(outer.ID())
	if !outerRec.CapturedLocals["seed"] {
		t.Fatalf("expected seed to be recorded as captured local of make, got %+v", outerRec.CapturedLocals)
	}
}
