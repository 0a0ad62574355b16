package asyncgen

import (
	"bytes"
	"testing"

	"github.com/sharpts/compiler/internal/ast"
	"github.com/sharpts/compiler/internal/bytecode"
	"github.com/sharpts/compiler/internal/emit"
	"github.com/sharpts/compiler/internal/module"
	"github.com/sharpts/compiler/internal/resolver"
	"github.com/sharpts/compiler/internal/runtimestub"
	"github.com/sharpts/compiler/internal/statemachine"
	"github.com/sharpts/compiler/internal/suspend"
	"github.com/sharpts/compiler/internal/types"
)

func newTestCtx() *emit.Context {
	m := module.New("test")
	assemblyIdx := len(m.AssemblyRefs)
	m.AssemblyRefs = append(m.AssemblyRefs, module.AssemblyRef{Name: "System.Private.CoreLib"})
	rt := runtimestub.Emit(m)
	return emit.NewContext(m, rt, resolver.New(), assemblyIdx)
}

// asyncFn builds `async function f(n) { let x = 1; await n; return x; }`.
func asyncFn() *ast.FunctionStatement {
	return &ast.FunctionStatement{
		Name:   "f",
		Async:  true,
		Params: []*ast.Param{{Name: "n"}},
		Body: []ast.Statement{
			&ast.VarStatement{Name: "x", Value: &ast.Literal{Kind: ast.LitNumber, Value: 1.0}},
			&ast.ExpressionStatement{Expr: &ast.Await{Value: &ast.Variable{Name: "n"}}},
			&ast.ReturnStatement{Value: &ast.Variable{Name: "x"}},
		},
	}
}

func TestBuildAsyncInstallsSuspendHandlerAndEmitsDispatch(t *testing.T) {
	fn := asyncFn()
	rec := suspend.Analyze(fn)
	m := statemachine.Build(fn, nil, rec, statemachine.Options{})

	ctx := newTestCtx()
	ctx.Res = resolver.NewStateMachineBodyResolver(resolver.StateMachineBodyInputs{
		HoistedParameters: map[string]*types.RuntimeType{"n": types.Unknown},
		HoistedParamSlots: map[string]int{"n": 1},
		HoistedLocals:     map[string]*types.RuntimeType{"x": types.Unknown},
		HoistedLocalSlots: map[string]int{"x": 2},
	})

	b := New(ctx, m, rec)
	if ctx.Suspend == nil {
		t.Fatalf("expected New to install itself as the context's suspension handler")
	}

	body, err := b.Build()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(body.Code) == 0 {
		t.Fatalf("expected a non-empty method body")
	}

	foundCall := false
	for i := 0; i < len(body.Code); i++ {
		if bytecode.Opcode(body.Code[i]) == bytecode.Call {
			foundCall = true
			break
		}
	}
	if !foundCall {
		t.Fatalf("expected at least one call instruction (GetAwaiter/IsCompleted/GetResult)")
	}
}

func TestBuildGeneratorReturnsBoolFromYield(t *testing.T) {
	fn := &ast.FunctionStatement{
		Name:      "g",
		Generator: true,
		Body: []ast.Statement{
			&ast.ExpressionStatement{Expr: &ast.Yield{Value: &ast.Literal{Kind: ast.LitNumber, Value: 1.0}}},
		},
	}
	rec := suspend.Analyze(fn)
	m := statemachine.Build(fn, nil, rec, statemachine.Options{})
	if m.Kind != statemachine.KindGenerator {
		t.Fatalf("expected KindGenerator")
	}

	ctx := newTestCtx()
	ctx.Res = resolver.NewStateMachineBodyResolver(resolver.StateMachineBodyInputs{})

	b := New(ctx, m, rec)
	body, err := b.Build()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	foundRet := false
	for i := 0; i < len(body.Code); i++ {
		if bytecode.Opcode(body.Code[i]) == bytecode.Ret {
			foundRet = true
			break
		}
	}
	if !foundRet {
		t.Fatalf("expected a ret instruction")
	}
	// a yield returns true from MoveNext: ldc.i4 1 immediately followed by ret
	yieldTrue := []byte{byte(bytecode.LdcI4), 1, 0, 0, 0, byte(bytecode.Ret)}
	if !bytes.Contains(body.Code, yieldTrue) {
		t.Fatalf("expected the yield to return true (ldc.i4 1; ret)")
	}
}

func TestPointIndexMatchesBySuspendAnalysis(t *testing.T) {
	fn := asyncFn()
	rec := suspend.Analyze(fn)
	if len(rec.Points) != 1 {
		t.Fatalf("expected exactly one suspension point, got %d", len(rec.Points))
	}

	b := &Builder{rec: rec}
	awaitExpr := fn.Body[1].(*ast.ExpressionStatement).Expr.(*ast.Await)
	idx, ok := b.pointIndex(awaitExpr)
	if !ok || idx != 0 {
		t.Fatalf("expected the await node to resolve to suspension index 0, got idx=%d ok=%v", idx, ok)
	}

	other := &ast.Await{Value: &ast.Literal{Kind: ast.LitNumber, Value: 0}}
	if _, ok := b.pointIndex(other); ok {
		t.Fatalf("expected an unrelated await node to not match any suspension point")
	}
}
