// Package overload synthesises, for a function with default parameters,
// one forwarder method per arity below the full parameter count instead
// of evaluating defaults at call time inside a single body.
//
// A per-parameter default-value expression evaluated when the argument
// is missing is the usual single-body approach; this package instead
// synthesizes one forwarder per arity, each tail-calling the full
// implementation, so every caller gets a direct, type-preserving call.
package overload

import (
	"github.com/sharpts/compiler/internal/ast"
	"github.com/sharpts/compiler/internal/bytecode"
	"github.com/sharpts/compiler/internal/types"
)

// Forwarder describes one synthesised per-arity method: it accepts the
// leading Arity parameters and fills in the rest from their default
// expressions before tail-calling the full implementation.
type Forwarder struct {
	Arity  int
	Params []*ast.Param // params[:Arity], the forwarder's own signature
}

// Plan returns the forwarders to synthesise for a parameter list;
// arities below the first default are not emitted. Returns nil if no
// parameter has a default.
func Plan(params []*ast.Param) []Forwarder {
	firstDefault := -1
	for i, p := range params {
		if p.Default != nil {
			firstDefault = i
			break
		}
	}
	if firstDefault < 0 {
		return nil
	}
	var out []Forwarder
	for arity := firstDefault; arity < len(params); arity++ {
		out = append(out, Forwarder{Arity: arity, Params: params[:arity]})
	}
	return out
}

// DefaultEmitter pushes the value of a default-parameter initializer
// expression onto stream's evaluation stack. The overload package does
// not itself know how to compile arbitrary expressions (that is the
// expression emitter's job); callers supply this hook so the forwarder
// body can still evaluate arbitrary default expressions such as `e1`/`e2`.
type DefaultEmitter func(stream *bytecode.Stream, expr ast.Expression)

// Emit builds the method body for one forwarder: load the arity's
// arguments, evaluate (or zero/null-default) the remaining parameters in
// order, call the full implementation, and return its result.
func Emit(fw Forwarder, allParams []*ast.Param, fullImpl bytecode.Token, emitDefault DefaultEmitter) *bytecode.MethodBody {
	s := bytecode.NewStream()

	for i := 0; i < fw.Arity; i++ {
		s.EmitU2(bytecode.Ldarg, uint16(i), 0)
	}

	for i := fw.Arity; i < len(allParams); i++ {
		p := allParams[i]
		switch {
		case p.Default != nil && emitDefault != nil:
			emitDefault(s, p.Default)
		default:
			emitZeroOrNull(s, types.Map(p.Type))
		}
	}

	s.EmitToken(bytecode.Call, fullImpl, 0)
	s.Emit(bytecode.Ret, 0)

	return &bytecode.MethodBody{Code: s.Code, MaxStack: len(allParams) + 1}
}

// emitZeroOrNull pushes a type's default value: ldc.r8 0 for a double,
// an empty string for a string, ldc.i4 0 for any other value type, and
// null for reference defaults. No initobj is emitted.
func emitZeroOrNull(s *bytecode.Stream, t *types.RuntimeType) {
	if !t.IsReferenceDefault() {
		switch t.Kind {
		case types.KindDouble:
			s.EmitR8(bytecode.LdcR8, 0, 0)
		case types.KindString:
			tok := s.AddUserString("")
			s.EmitToken(bytecode.LdStr, tok, 0)
		default: // KindBoolean and any other value type: zero pattern
			s.EmitI4(bytecode.LdcI4, 0, 0)
		}
		return
	}
	s.Emit(bytecode.LdNull, 0)
}
