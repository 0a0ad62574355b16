package emit

import (
	"encoding/binary"
	"testing"

	"github.com/sharpts/compiler/internal/ast"
	"github.com/sharpts/compiler/internal/bytecode"
	"github.com/sharpts/compiler/internal/module"
	"github.com/sharpts/compiler/internal/resolver"
	"github.com/sharpts/compiler/internal/runtimestub"
	"github.com/sharpts/compiler/internal/types"
)

func newTestCtx() *Context {
	m := module.New("test")
	assemblyIdx := len(m.AssemblyRefs)
	m.AssemblyRefs = append(m.AssemblyRefs, module.AssemblyRef{Name: "System.Private.CoreLib"})
	rt := runtimestub.Emit(m)
	return NewContext(m, rt, resolver.New(), assemblyIdx)
}

func TestEmitNumberLiteral(t *testing.T) {
	e := New(newTestCtx())
	st, err := e.EmitExpression(&ast.Literal{Kind: ast.LitNumber, Value: 42.0})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if st != TDouble {
		t.Fatalf("expected TDouble, got %v", st)
	}
	if bytecode.Opcode(e.Stream.Code[0]) != bytecode.LdcR8 {
		t.Fatalf("expected ldc.r8 as first instruction")
	}
}

func TestEmitStringLiteral(t *testing.T) {
	e := New(newTestCtx())
	st, err := e.EmitExpression(&ast.Literal{Kind: ast.LitString, Value: "hi"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if st != TString {
		t.Fatalf("expected TString, got %v", st)
	}
	if bytecode.Opcode(e.Stream.Code[0]) != bytecode.LdStr {
		t.Fatalf("expected ldstr as first instruction")
	}
}

func TestEmitVariableResolvesParameter(t *testing.T) {
	ctx := newTestCtx()
	ctx.Res = resolver.NewNormalBodyResolver(resolver.NormalBodyInputs{
		Parameters: map[string]*types.RuntimeType{"x": types.Double},
		ParamSlots: map[string]int{"x": 2},
	})
	e := New(ctx)
	st, err := e.EmitExpression(&ast.Variable{Name: "x"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if st != TDouble {
		t.Fatalf("expected TDouble, got %v", st)
	}
	if bytecode.Opcode(e.Stream.Code[0]) != bytecode.Ldarg {
		t.Fatalf("expected ldarg for a resolved parameter")
	}
}

func TestEmitVariableUnresolvedErrors(t *testing.T) {
	e := New(newTestCtx())
	if _, err := e.EmitExpression(&ast.Variable{Name: "nope"}); err == nil {
		t.Fatalf("expected an error for an unresolved identifier")
	}
}

func TestEmitAdditionUsesRuntimeAddHelper(t *testing.T) {
	e := New(newTestCtx())
	st, err := e.EmitExpression(&ast.Binary{
		Operator: "+",
		Left:     &ast.Literal{Kind: ast.LitNumber, Value: 1.0},
		Right:    &ast.Literal{Kind: ast.LitNumber, Value: 2.0},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if st != Unknown {
		t.Fatalf("expected Unknown (boxed) stack type for `+`, got %v", st)
	}
	found := false
	for i := 0; i < len(e.Stream.Code); i++ {
		if bytecode.Opcode(e.Stream.Code[i]) == bytecode.Call {
			found = true
			break
		}
	}
	if !found {
		t.Fatalf("expected a call instruction to the runtime Add helper")
	}
}

func TestEmitSubtractionUnboxesToDouble(t *testing.T) {
	e := New(newTestCtx())
	st, err := e.EmitExpression(&ast.Binary{
		Operator: "-",
		Left:     &ast.Literal{Kind: ast.LitNumber, Value: 5.0},
		Right:    &ast.Literal{Kind: ast.LitNumber, Value: 3.0},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if st != TDouble {
		t.Fatalf("expected TDouble, got %v", st)
	}
	if last := bytecode.Opcode(e.Stream.Code[len(e.Stream.Code)-1]); last != bytecode.Sub {
		t.Fatalf("expected the stream to end with sub, got %v", last)
	}
}

func TestEmitLessOrEqualSynthesisedAsGreaterThenNegate(t *testing.T) {
	e := New(newTestCtx())
	st, err := e.EmitExpression(&ast.Binary{
		Operator: "<=",
		Left:     &ast.Literal{Kind: ast.LitNumber, Value: 1.0},
		Right:    &ast.Literal{Kind: ast.LitNumber, Value: 2.0},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if st != TBoolean {
		t.Fatalf("expected TBoolean, got %v", st)
	}
	code := e.Stream.Code
	// tail must be: cgt, ldc.i4 0 (5 bytes: opcode + int32 operand), ceq
	if bytecode.Opcode(code[len(code)-7]) != bytecode.Cgt {
		t.Fatalf("expected cgt before the zero-compare in <= lowering")
	}
	if bytecode.Opcode(code[len(code)-1]) != bytecode.Ceq {
		t.Fatalf("expected the <= lowering to end in ceq")
	}
}

func TestEmitIfStatementPatchesBothBranches(t *testing.T) {
	ctx := newTestCtx()
	ctx.Res = resolver.NewNormalBodyResolver(resolver.NormalBodyInputs{})
	e := New(ctx)
	err := e.EmitStatement(&ast.IfStatement{
		Cond: &ast.Literal{Kind: ast.LitBoolean, Value: true},
		Then: []ast.Statement{&ast.ReturnStatement{Value: &ast.Literal{Kind: ast.LitNumber, Value: 1.0}}},
		Else: []ast.Statement{&ast.ReturnStatement{Value: &ast.Literal{Kind: ast.LitNumber, Value: 2.0}}},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	retCount := 0
	for _, b := range e.Stream.Code {
		if bytecode.Opcode(b) == bytecode.Ret {
			retCount++
		}
	}
	if retCount != 2 {
		t.Fatalf("expected both branches to emit a ret, got %d", retCount)
	}
}

func TestEmitWhileLoopBranchesBackward(t *testing.T) {
	ctx := newTestCtx()
	ctx.Res = resolver.NewNormalBodyResolver(resolver.NormalBodyInputs{})
	e := New(ctx)
	err := e.EmitStatement(&ast.WhileStatement{
		Cond: &ast.Literal{Kind: ast.LitBoolean, Value: true},
		Body: []ast.Statement{&ast.BreakStatement{}},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(e.loops) != 0 {
		t.Fatalf("expected the loop frame to be popped after emission")
	}
	code := e.Stream.Code
	// the loop ends with br back to the condition: opcode + negative int32 offset
	if bytecode.Opcode(code[len(code)-5]) != bytecode.Br {
		t.Fatalf("expected the while loop to end with br")
	}
	if rel := int32(binary.LittleEndian.Uint32(code[len(code)-4:])); rel >= 0 {
		t.Fatalf("expected a backward branch offset, got %d", rel)
	}
}

func TestEmitTryFinallyProducesFinallyClause(t *testing.T) {
	ctx := newTestCtx()
	ctx.Res = resolver.NewNormalBodyResolver(resolver.NormalBodyInputs{})
	e := New(ctx)
	err := e.EmitStatement(&ast.TryCatchStatement{
		Try:     []ast.Statement{&ast.ExpressionStatement{Expr: &ast.Literal{Kind: ast.LitNumber, Value: 1.0}}},
		Finally: []ast.Statement{&ast.ExpressionStatement{Expr: &ast.Literal{Kind: ast.LitNumber, Value: 2.0}}},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(e.pendingClauses) != 1 {
		t.Fatalf("expected exactly one exception clause, got %d", len(e.pendingClauses))
	}
	if e.pendingClauses[0].Kind != bytecode.ClauseFinally {
		t.Fatalf("expected a finally clause")
	}
}

func TestEmitTryCatchProducesCatchClauseAndBindsParam(t *testing.T) {
	ctx := newTestCtx()
	ctx.Res = resolver.NewStateMachineBodyResolver(resolver.StateMachineBodyInputs{
		OrdinaryLocals:     map[string]*types.RuntimeType{"err": types.Unknown},
		OrdinaryLocalSlots: map[string]int{"err": 0},
	})
	e := New(ctx)
	err := e.EmitStatement(&ast.TryCatchStatement{
		Try:   []ast.Statement{&ast.ThrowStatement{Value: &ast.Literal{Kind: ast.LitString, Value: "boom"}}},
		Catch: &ast.CatchClause{Param: "err", Body: []ast.Statement{&ast.ReturnStatement{Value: &ast.Variable{Name: "err"}}}},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(e.pendingClauses) != 1 || e.pendingClauses[0].Kind != bytecode.ClauseCatch {
		t.Fatalf("expected exactly one catch clause, got %+v", e.pendingClauses)
	}
	if op := bytecode.Opcode(e.Stream.Code[e.pendingClauses[0].HandlerOffset]); op != bytecode.Stloc {
		t.Fatalf("expected the catch handler to start by storing the exception into err, got %v", op)
	}
}

func TestEmitUnresolvedAwaitWithoutSuspendHandlerErrors(t *testing.T) {
	e := New(newTestCtx())
	if _, err := e.EmitExpression(&ast.Await{Value: &ast.Literal{Kind: ast.LitNumber, Value: 1.0}}); err == nil {
		t.Fatalf("expected an error for await with no suspension handler installed")
	}
}

func TestEmitArrayLiteralCallsArrayNewHelper(t *testing.T) {
	e := New(newTestCtx())
	st, err := e.EmitExpression(&ast.ArrayLiteral{Elements: []ast.Expression{
		&ast.Literal{Kind: ast.LitNumber, Value: 1.0},
		&ast.Literal{Kind: ast.LitNumber, Value: 2.0},
	}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if st != Unknown {
		t.Fatalf("expected Unknown, got %v", st)
	}
	if last := bytecode.Opcode(e.Stream.Code[len(e.Stream.Code)-5]); last != bytecode.Call {
		t.Fatalf("expected a call to ArrayNew near the end of the stream")
	}
}

