package suspend

import (
	"testing"

	"github.com/sharpts/compiler/internal/ast"
)

func TestDenseSuspensionIndices(t *testing.T) {
	// async function f() { await a; await b; await c; }
	fn := &ast.FunctionStatement{
		Name:  "f",
		Async: true,
		Body: []ast.Statement{
			&ast.ExpressionStatement{Expr: &ast.Await{Value: &ast.Variable{Name: "a"}}},
			&ast.ExpressionStatement{Expr: &ast.Await{Value: &ast.Variable{Name: "b"}}},
			&ast.ExpressionStatement{Expr: &ast.Await{Value: &ast.Variable{Name: "c"}}},
		},
	}
	rec := Analyze(fn)
	if len(rec.Points) != 3 {
		t.Fatalf("expected 3 suspension points, got %d", len(rec.Points))
	}
	for i, p := range rec.Points {
		if p.Index != i {
			t.Fatalf("suspension indices must be dense 0..N-1, got index %d at position %d", p.Index, i)
		}
	}
}

func TestLiveAcrossSuspension(t *testing.T) {
	// async function f() { let x = 1; await g(); return x; }
	awaitExpr := &ast.Await{Value: &ast.Call{Callee: &ast.Variable{Name: "g"}}}
	fn := &ast.FunctionStatement{
		Name:  "f",
		Async: true,
		Body: []ast.Statement{
			&ast.VarStatement{Name: "x", Value: &ast.Literal{Kind: ast.LitNumber, Value: 1.0}},
			&ast.ExpressionStatement{Expr: awaitExpr},
			&ast.ReturnStatement{Value: &ast.Variable{Name: "x"}},
		},
	}
	rec := Analyze(fn)
	if len(rec.Points) != 1 {
		t.Fatalf("expected 1 suspension point, got %d", len(rec.Points))
	}
	if !rec.Points[0].Live["x"] {
		t.Fatalf("expected x to be live across the suspension point, got %+v", rec.Points[0].Live)
	}
}

func TestNotLiveWhenOnlyUsedBeforeSuspension(t *testing.T) {
	// async function f() { let x = 1; x = x + 1; await g(); }
	fn := &ast.FunctionStatement{
		Name:  "f",
		Async: true,
		Body: []ast.Statement{
			&ast.VarStatement{Name: "x", Value: &ast.Literal{Kind: ast.LitNumber, Value: 1.0}},
			&ast.ExpressionStatement{Expr: &ast.Assign{
				Target: &ast.Variable{Name: "x"},
				Value:  &ast.Binary{Operator: "+", Left: &ast.Variable{Name: "x"}, Right: &ast.Literal{Kind: ast.LitNumber, Value: 1.0}},
			}},
			&ast.ExpressionStatement{Expr: &ast.Await{Value: &ast.Variable{Name: "g"}}},
		},
	}
	rec := Analyze(fn)
	if rec.Points[0].Live["x"] {
		t.Fatalf("x is never read after the suspension point, must not be live")
	}
}

func TestTryRegionClassification(t *testing.T) {
	// async function f() {
	//   try { await a; } catch (e) { b; } finally { await c; }
	// }
	fn := &ast.FunctionStatement{
		Name:  "f",
		Async: true,
		Body: []ast.Statement{
			&ast.TryCatchStatement{
				Try: []ast.Statement{
					&ast.ExpressionStatement{Expr: &ast.Await{Value: &ast.Variable{Name: "a"}}},
				},
				Catch: &ast.CatchClause{
					Param: "e",
					Body:  []ast.Statement{&ast.ExpressionStatement{Expr: &ast.Variable{Name: "b"}}},
				},
				Finally: []ast.Statement{
					&ast.ExpressionStatement{Expr: &ast.Await{Value: &ast.Variable{Name: "c"}}},
				},
			},
		},
	}
	rec := Analyze(fn)
	if len(rec.TryBlocks) != 1 {
		t.Fatalf("expected 1 try block, got %d", len(rec.TryBlocks))
	}
	tb := rec.TryBlocks[0]
	if !tb.AwaitInTry {
		t.Fatalf("expected AwaitInTry")
	}
	if tb.AwaitInCatch {
		t.Fatalf("did not expect AwaitInCatch")
	}
	if !tb.AwaitInFinally {
		t.Fatalf("expected AwaitInFinally")
	}
	if len(rec.Points) != 2 {
		t.Fatalf("expected 2 suspension points, got %d", len(rec.Points))
	}
	if rec.Points[0].TryID != tb.ID || rec.Points[0].TryDepth != 1 {
		t.Fatalf("expected point 0 inside the try block at depth 1, got id=%d depth=%d", rec.Points[0].TryID, rec.Points[0].TryDepth)
	}
	if rec.Points[1].TryID != 0 {
		t.Fatalf("expected point in finally to be outside the try stack once it unwinds, got %d", rec.Points[1].TryID)
	}
}

func TestNestedAsyncArrowTracked(t *testing.T) {
	// async function f() {
	//   const g = async () => { await inner; };
	// }
	inner := &ast.ArrowFunction{
		Async: true,
		Body: []ast.Statement{
			&ast.ExpressionStatement{Expr: &ast.Await{Value: &ast.Variable{Name: "inner"}}},
		},
	}
	fn := &ast.FunctionStatement{
		Name:  "f",
		Async: true,
		Body: []ast.Statement{
			&ast.ConstStatement{Name: "g", Value: inner},
		},
	}
	rec := Analyze(fn)
	if len(rec.Points) != 0 {
		t.Fatalf("the outer function itself has no suspension points, got %d", len(rec.Points))
	}
	if len(rec.AsyncArrows) != 1 {
		t.Fatalf("expected 1 nested async arrow, got %d", len(rec.AsyncArrows))
	}
	info := rec.AsyncArrows[0]
	if info.NestingLevel != 1 {
		t.Fatalf("expected nesting level 1, got %d", info.NestingLevel)
	}
	if info.Parent != nil {
		t.Fatalf("expected nil parent for a direct child arrow")
	}
	if len(info.Record.Points) != 1 {
		t.Fatalf("expected the nested arrow's own suspension record to have 1 point, got %d", len(info.Record.Points))
	}
}
