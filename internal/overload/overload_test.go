package overload

import (
	"testing"

	"github.com/sharpts/compiler/internal/ast"
	"github.com/sharpts/compiler/internal/bytecode"
)

func TestPlanSkipsArititesBelowFirstDefault(t *testing.T) {
	params := []*ast.Param{
		{Name: "a"},
		{Name: "b", Default: &ast.Literal{Kind: ast.LitNumber, Value: 1.0}},
		{Name: "c", Default: &ast.Literal{Kind: ast.LitNumber, Value: 2.0}},
	}
	forwarders := Plan(params)
	if len(forwarders) != 2 {
		t.Fatalf("expected 2 forwarders (arity 1 and 2), got %d", len(forwarders))
	}
	if forwarders[0].Arity != 1 || forwarders[1].Arity != 2 {
		t.Fatalf("expected arities [1, 2], got [%d, %d]", forwarders[0].Arity, forwarders[1].Arity)
	}
}

func TestPlanNoDefaultsYieldsNothing(t *testing.T) {
	params := []*ast.Param{{Name: "a"}, {Name: "b"}}
	if fw := Plan(params); fw != nil {
		t.Fatalf("expected no forwarders when no parameter has a default, got %+v", fw)
	}
}

func TestEmitForwarderLoadsArgsAndCallsFullImpl(t *testing.T) {
	params := []*ast.Param{
		{Name: "a"},
		{Name: "b", Default: &ast.Literal{Kind: ast.LitNumber, Value: 1.0}},
		{Name: "c", Default: &ast.Literal{Kind: ast.LitNumber, Value: 2.0}},
	}
	full := bytecode.MakeToken(bytecode.TableMethodDef, 7)

	var emittedDefaults int
	body := Emit(Forwarder{Arity: 1, Params: params[:1]}, params, full, func(s *bytecode.Stream, expr ast.Expression) {
		emittedDefaults++
		lit := expr.(*ast.Literal)
		s.EmitR8(bytecode.LdcR8, lit.Value.(float64), 0)
	})

	if emittedDefaults != 2 {
		t.Fatalf("expected both missing defaults (b and c) to be evaluated, got %d", emittedDefaults)
	}
	if body.Code[0] != byte(bytecode.Ldarg) {
		t.Fatalf("expected the forwarder to start by loading its own argument")
	}
	if last := body.Code[len(body.Code)-1]; last != byte(bytecode.Ret) {
		t.Fatalf("expected the forwarder body to end in ret")
	}

	// Find the call instruction and check its token decodes back to full.
	found := false
	for i := 0; i < len(body.Code); i++ {
		if bytecode.Opcode(body.Code[i]) == bytecode.Call {
			tok := bytecode.ReadToken(body.Code, i+1)
			if tok != full {
				t.Fatalf("call token mismatch: got %v want %v", tok, full)
			}
			found = true
			break
		}
	}
	if !found {
		t.Fatalf("expected a call instruction in the forwarder body")
	}
}

func TestEmitForwarderZeroDefaultWhenNoEmitterGiven(t *testing.T) {
	params := []*ast.Param{
		{Name: "a"},
		{Name: "b", Type: &ast.NamedType{Name: &ast.Identifier{Value: "number"}}, Default: &ast.Literal{Kind: ast.LitNumber, Value: 1.0}},
	}
	full := bytecode.MakeToken(bytecode.TableMethodDef, 3)
	body := Emit(Forwarder{Arity: 1, Params: params[:1]}, params, full, nil)
	// ldarg(a) + ldc.r8(zero) + call(token) + ret
	if bytecode.Opcode(body.Code[3]) != bytecode.LdcR8 {
		t.Fatalf("expected a zero-valued double default to be emitted with ldc.r8")
	}
}
