package statemachine

import (
	"testing"

	"github.com/sharpts/compiler/internal/ast"
	"github.com/sharpts/compiler/internal/closure"
	"github.com/sharpts/compiler/internal/suspend"
)

func TestBuildHoistsParamsAndLiveLocals(t *testing.T) {
	fn := &ast.FunctionStatement{
		Name:   "f",
		Async:  true,
		Params: []*ast.Param{{Name: "n"}},
		Body: []ast.Statement{
			&ast.VarStatement{Name: "x", Value: &ast.Literal{Kind: ast.LitNumber, Value: 1.0}},
			&ast.ExpressionStatement{Expr: &ast.Await{Value: &ast.Variable{Name: "n"}}},
			&ast.ReturnStatement{Value: &ast.Variable{Name: "x"}},
		},
	}
	suspendRec := suspend.Analyze(fn)

	m := Build(fn, nil, suspendRec, Options{})

	if m.Kind != KindAsync {
		t.Fatalf("expected KindAsync")
	}
	pf, ok := m.Lookup("n")
	if !ok || pf.Source != SourceParameter {
		t.Fatalf("expected n to be a hoisted parameter, got %+v ok=%v", pf, ok)
	}
	lf, ok := m.Lookup("x")
	if !ok || lf.Source != SourceLocal {
		t.Fatalf("expected x to be a hoisted local (live across await), got %+v ok=%v", lf, ok)
	}
	if lf.FieldName() != "<>5__x" {
		t.Fatalf("unexpected field name %q", lf.FieldName())
	}
	if len(m.Awaiters) != 1 || m.Awaiters[0] != "<>u__0" {
		t.Fatalf("expected one awaiter field <>u__0, got %+v", m.Awaiters)
	}
}

func TestBuildForwardsCapturedOuterAndThis(t *testing.T) {
	arrow := &ast.ArrowFunction{
		Async: true,
		Body: []ast.Statement{
			&ast.ExpressionStatement{Expr: &ast.Await{Value: &ast.Variable{Name: "seed"}}},
		},
	}
	capRec := &closure.Record{
		Captures:       map[string]bool{"seed": true, closure.ThisName: true},
		CapturedLocals: map[string]bool{},
	}
	suspendRec := suspend.Analyze(arrow)

	m := Build(arrow, capRec, suspendRec, Options{})

	if !m.HasThis {
		t.Fatalf("expected HasThis to be set from captured this")
	}
	f, ok := m.Lookup("seed")
	if !ok || f.Source != SourceCapturedOuter {
		t.Fatalf("expected seed to be a captured-outer hoisted field, got %+v ok=%v", f, ok)
	}
}

func TestAsyncGeneratorKind(t *testing.T) {
	fn := &ast.FunctionStatement{Name: "g", Async: true, Generator: true, Body: nil}
	suspendRec := suspend.Analyze(fn)
	m := Build(fn, nil, suspendRec, Options{})
	if m.Kind != KindAsyncGenerator {
		t.Fatalf("expected KindAsyncGenerator")
	}
}
