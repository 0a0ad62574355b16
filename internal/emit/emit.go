// Package emit implements the expression/statement emitter. A single
// dispatch entry point branches on AST node kind to one handler per kind,
// tracking a compile-time "stack type" tag so arithmetic/comparison/call
// sites can pick unboxed fast paths instead of boxing everything through
// a generic object-valued helper.
//
// One big type switch per AST node kind, each arm delegating to an
// emitXxx method returning error, generalised to the CIL-shaped
// instruction set internal/bytecode defines. internal/asyncgen embeds
// an Emitter and overrides only the await/yield handlers, so a state
// machine body reuses this dispatcher for every non-suspension
// expression and statement.
package emit

import (
	"fmt"

	"github.com/sharpts/compiler/internal/ast"
	"github.com/sharpts/compiler/internal/bytecode"
	"github.com/sharpts/compiler/internal/module"
	"github.com/sharpts/compiler/internal/resolver"
	"github.com/sharpts/compiler/internal/runtimestub"
	"github.com/sharpts/compiler/internal/types"
)

// StackType is the compile-time tag for what kind of value currently sits
// on top of the evaluation stack.
type StackType int

const (
	Unknown StackType = iota // a boxed reference to `object`
	TDouble
	TBoolean
	TString
	TNull
)

// Error is raised for malformed AST: an unhandled expression/statement
// kind, or a reference to a function/class symbol the driver never
// declared. Fatal for the method currently being emitted.
type Error struct {
	Node ast.Node
	Msg  string
}

func (e *Error) Error() string {
	if e.Node != nil {
		return fmt.Sprintf("emit: line %d: %s", e.Node.Line(), e.Msg)
	}
	return "emit: " + e.Msg
}

func errf(n ast.Node, format string, args ...interface{}) error {
	return &Error{Node: n, Msg: fmt.Sprintf(format, args...)}
}

// SuspensionHandler lets a state-machine body emitter override the
// suspension operators while reusing every other expression handler from
// this package's base dispatcher.
type SuspensionHandler interface {
	EmitAwait(e *Emitter, n *ast.Await) (StackType, error)
	EmitYield(e *Emitter, n *ast.Yield) (StackType, error)
}

// KnownFunction is a direct, statically resolvable call target: a
// top-level function or a known constructor, letting the call/new
// handlers emit a direct `call`/`newobj` instead of packing arguments
// through the generic InvokeValue runtime path.
type KnownFunction struct {
	Token      bytecode.Token
	ParamCount int // full-arity parameter count, for optional-arg padding
	Forwarders map[int]bytecode.Token // arity -> forwarder token, for optional-parameter calls
}

// Context is the shared, per-method compilation environment: symbol
// tables the emitter consults but does not itself build.
type Context struct {
	Module  *module.Module
	Runtime *runtimestub.Descriptor
	Res     *resolver.Resolver
	ThisOpt resolver.ThisOptions

	KnownFunctions map[string]*KnownFunction
	KnownClasses   map[string]*module.Class

	// Suspend is nil in a plain (non-coroutine) body; set by the
	// state-machine body emitter while emitting a MoveNext/Resume method.
	Suspend SuspensionHandler

	corlibAssembly int
	typeRefCache   map[string]bytecode.Token
}

// NewContext builds a Context; corlibAssembly is the index into
// Module.AssemblyRefs for the runtime's core library, used to mint
// TypeRef tokens for box/unbox operands on primitive value types.
func NewContext(m *module.Module, rt *runtimestub.Descriptor, res *resolver.Resolver, corlibAssembly int) *Context {
	return &Context{
		Module:         m,
		Runtime:        rt,
		Res:            res,
		KnownFunctions: map[string]*KnownFunction{},
		KnownClasses:   map[string]*module.Class{},
		corlibAssembly: corlibAssembly,
		typeRefCache:   map[string]bytecode.Token{},
	}
}

// corelibType interns (and caches) a TypeRef row for a core-library type,
// e.g. ("System", "Double") for the box/unbox operand of a double.
func (c *Context) corelibType(namespace, name string) bytecode.Token {
	key := namespace + "." + name
	if tok, ok := c.typeRefCache[key]; ok {
		return tok
	}
	tok := c.Module.AddTypeRef(module.TypeRefRow{ResolutionScope: c.corlibAssembly, Namespace: namespace, Name: name})
	c.typeRefCache[key] = tok
	return tok
}

// loopFrame tracks the break/continue targets of one enclosing
// loop/switch, so break/continue statements (possibly labelled) can patch
// forward jumps without the caller threading jump lists by hand.
type loopFrame struct {
	label          string
	continueTarget int
	breakJumps     []int
}

// Emitter emits one method body's worth of bytecode: a single instruction
// stream plus the loop-label stack statements need for break/continue.
type Emitter struct {
	Stream *bytecode.Stream
	ctx    *Context
	loops  []*loopFrame

	// pendingClauses accumulates exception regions from emitTryCatch, in
	// the order their try blocks were emitted, for Finish to attach to
	// the completed MethodBody.
	pendingClauses []bytecode.ExceptionClause
}

// New creates an emitter writing into a fresh stream under ctx.
func New(ctx *Context) *Emitter {
	return &Emitter{Stream: bytecode.NewStream(), ctx: ctx}
}

// Finish packages the emitted stream and any exception regions into a
// completed MethodBody.
func (e *Emitter) Finish(maxStack int) *bytecode.MethodBody {
	return &bytecode.MethodBody{
		Code:     e.Stream.Code,
		MaxStack: maxStack,
		Clauses:  e.pendingClauses,
	}
}

// line is a small helper: most nodes carry their own source line, which
// every Emit* call threads through for the method body's line table.
func line(n ast.Node) int { return n.Line() }

// --- stack-type conversions ---

// ensureBoxed makes sure the top of stack is a boxed `object` reference,
// boxing value types that are still unboxed on the stack.
func (e *Emitter) ensureBoxed(t StackType, n ast.Node) StackType {
	switch t {
	case TDouble:
		e.Stream.EmitToken(bytecode.Box, e.ctx.corelibType("System", "Double"), line(n))
	case TBoolean:
		e.Stream.EmitToken(bytecode.Box, e.ctx.corelibType("System", "Boolean"), line(n))
	}
	return Unknown
}

// ensureDouble coerces the top of stack to an unboxed double, via the
// runtime's JS-style ToNumber coercion when the source isn't already one.
func (e *Emitter) ensureDouble(t StackType, n ast.Node) StackType {
	if t == TDouble {
		return TDouble
	}
	e.ensureBoxed(t, n)
	e.callRuntime1(runtimestub.NumberCoerce, n)
	return TDouble
}

// ensureString coerces the top of stack to a string, via the runtime's
// stringify coercion when the source isn't already one.
func (e *Emitter) ensureString(t StackType, n ast.Node) StackType {
	if t == TString {
		return TString
	}
	e.ensureBoxed(t, n)
	e.callRuntime1(runtimestub.StringCoerce, n)
	return TString
}

// ensureBoolean coerces the top of stack to an unboxed boolean via the
// runtime's truthiness helper (JS truthiness, not `== true`).
func (e *Emitter) ensureBoolean(t StackType, n ast.Node) StackType {
	if t == TBoolean {
		return TBoolean
	}
	e.ensureBoxed(t, n)
	e.callRuntime1(runtimestub.Truthy, n)
	return TBoolean
}

// callRuntime1 emits `call $Runtime::name` for a unary runtime helper
// (one boxed `object` argument already on the stack).
func (e *Emitter) callRuntime1(name string, n ast.Node) {
	e.Stream.EmitToken(bytecode.Call, e.ctx.Runtime.MustHandle(name), line(n))
}

// EmitExpression is the single dispatch entry point. It returns the
// stack-type tag describing what was left on top of the stack: on
// return, the tag always matches the actual top-of-stack type.
func (e *Emitter) EmitExpression(expr ast.Expression) (StackType, error) {
	switch n := expr.(type) {
	case *ast.Literal:
		return e.emitLiteral(n)
	case *ast.Variable:
		return e.emitVariable(n)
	case *ast.Identifier:
		return e.emitIdentifierAsString(n)
	case *ast.This:
		return e.emitThis(n)
	case *ast.Super:
		return Unknown, nil // a bare `super` only appears as a call target, handled in emitCall
	case *ast.Assign:
		return e.emitAssign(n)
	case *ast.CompoundAssign:
		return e.emitCompoundAssign(n)
	case *ast.LogicalAssign:
		return e.emitLogicalAssign(n)
	case *ast.Binary:
		return e.emitBinary(n)
	case *ast.Logical:
		return e.emitLogical(n)
	case *ast.Unary:
		return e.emitUnary(n)
	case *ast.Ternary:
		return e.emitTernary(n)
	case *ast.NullishCoalescing:
		return e.emitNullishCoalescing(n)
	case *ast.Call:
		return e.emitCall(n)
	case *ast.New:
		return e.emitNew(n)
	case *ast.MemberExpression:
		return e.emitMember(n)
	case *ast.IndexExpression:
		return e.emitIndex(n)
	case *ast.GetPrivate:
		return e.emitGetPrivate(n)
	case *ast.SetPrivate:
		return e.emitSetPrivate(n)
	case *ast.CallPrivate:
		return e.emitCallPrivate(n)
	case *ast.ArrayLiteral:
		return e.emitArrayLiteral(n)
	case *ast.ObjectLiteral:
		return e.emitObjectLiteral(n)
	case *ast.TemplateLiteral:
		return e.emitTemplateLiteral(n)
	case *ast.TaggedTemplateLiteral:
		return e.emitTaggedTemplateLiteral(n)
	case *ast.ArrowFunction:
		return e.emitArrowFunction(n)
	case *ast.ClassExpr:
		return e.emitClassExpr(n)
	case *ast.Await:
		if e.ctx.Suspend == nil {
			return Unknown, errf(n, "await outside a coroutine body")
		}
		return e.ctx.Suspend.EmitAwait(e, n)
	case *ast.Yield:
		if e.ctx.Suspend == nil {
			return Unknown, errf(n, "yield outside a generator body")
		}
		return e.ctx.Suspend.EmitYield(e, n)
	case *ast.Spread:
		return e.EmitExpression(n.Value)
	case *ast.Delete:
		return e.emitDelete(n)
	case *ast.TypeAssertion:
		return e.EmitExpression(n.Value) // erased at emit time, no runtime check
	case *ast.NonNullAssertion:
		return e.EmitExpression(n.Value) // erased, same rationale
	case *ast.Satisfies:
		return e.EmitExpression(n.Value) // type-checking-only, erased
	case *ast.DynamicImport:
		return e.emitDynamicImport(n)
	case *ast.ImportMeta:
		e.Stream.Emit(bytecode.LdNull, line(n))
		return Unknown, nil
	case *ast.PrefixIncrement:
		return e.emitPrefixIncrement(n)
	case *ast.PostfixIncrement:
		return e.emitPostfixIncrement(n)
	case *ast.RegexLiteral:
		return e.emitRegexLiteral(n)
	default:
		return Unknown, errf(expr, "unhandled expression kind %T", expr)
	}
}

func (e *Emitter) emitLiteral(n *ast.Literal) (StackType, error) {
	switch n.Kind {
	case ast.LitNumber:
		e.Stream.EmitR8(bytecode.LdcR8, n.Value.(float64), line(n))
		return TDouble, nil
	case ast.LitString:
		tok := e.Stream.AddUserString(n.Value.(string))
		e.Stream.EmitToken(bytecode.LdStr, tok, line(n))
		return TString, nil
	case ast.LitBoolean:
		if n.Value.(bool) {
			e.Stream.EmitI4(bytecode.LdcI4, 1, line(n))
		} else {
			e.Stream.EmitI4(bytecode.LdcI4, 0, line(n))
		}
		return TBoolean, nil
	case ast.LitNull, ast.LitUndefined:
		e.Stream.Emit(bytecode.LdNull, line(n))
		return TNull, nil
	default:
		return Unknown, errf(n, "unhandled literal kind %d", n.Kind)
	}
}

func (e *Emitter) emitThis(n *ast.This) (StackType, error) {
	loc := resolver.ResolveThis(e.ctx.ThisOpt)
	e.emitLoadLocation(loc, n)
	return Unknown, nil
}

// emitIdentifierAsString handles an Identifier used as a plain value
// (e.g. a computed object key evaluated eagerly); bare names in real
// expression position parse as *ast.Variable.
func (e *Emitter) emitIdentifierAsString(n *ast.Identifier) (StackType, error) {
	tok := e.Stream.AddUserString(n.Value)
	e.Stream.EmitToken(bytecode.LdStr, tok, line(n))
	return TString, nil
}

func (e *Emitter) emitVariable(n *ast.Variable) (StackType, error) {
	loc, ok := e.ctx.Res.Resolve(n.Name)
	if !ok {
		return Unknown, errf(n, "unresolved identifier %q", n.Name)
	}
	e.emitLoadLocation(loc, n)
	return e.stackTypeOf(loc), nil
}

// stackTypeOf maps a resolved location's static type to the emitter's
// stack-type tag.
func (e *Emitter) stackTypeOf(loc *resolver.Location) StackType {
	if loc.Type == nil {
		return Unknown
	}
	switch loc.Type.Kind {
	case types.KindDouble:
		return TDouble
	case types.KindBoolean:
		return TBoolean
	case types.KindString:
		return TString
	case types.KindNull:
		return TNull
	default:
		return Unknown
	}
}

// emitLoadLocation pushes the value a resolved Location names, following
// its field chain (if any) before the final load.
func (e *Emitter) emitLoadLocation(loc *resolver.Location, n ast.Node) {
	switch loc.Kind {
	case resolver.LocParameter, resolver.LocHoistedParameter:
		e.Stream.EmitU2(bytecode.Ldarg, uint16(loc.Slot), line(n))
	case resolver.LocLocal, resolver.LocHoistedLocal:
		e.Stream.EmitU2(bytecode.Ldloc, uint16(loc.Slot), line(n))
	case resolver.LocThisReceiver:
		e.Stream.EmitU2(bytecode.Ldarg, 0, line(n))
	case resolver.LocThisParameter:
		e.Stream.EmitU2(bytecode.Ldarg, uint16(loc.Slot), line(n))
	case resolver.LocThisStaticToken, resolver.LocThisNull:
		e.Stream.Emit(bytecode.LdNull, line(n))
	default:
		// Every other rung resolves through a chain of display-class /
		// state-machine / closure fields: load the chain root (arg 0,
		// i.e. `this`), then walk the field chain.
		e.Stream.EmitU2(bytecode.Ldarg, 0, line(n))
		for _, fieldName := range loc.Chain {
			tok := e.ctx.Module.AddMemberRef(module.MemberRefRow{Name: fieldName})
			e.Stream.EmitToken(bytecode.Ldfld, tok, line(n))
		}
	}
}

// emitStoreLocation is emitLoadLocation's dual: pops the top of stack
// into a resolved Location. Field-chain locations must first load every
// chain element up to (but not including) the final field.
func (e *Emitter) emitStoreLocation(loc *resolver.Location, n ast.Node) {
	switch loc.Kind {
	case resolver.LocParameter, resolver.LocHoistedParameter:
		e.Stream.EmitU2(bytecode.Starg, uint16(loc.Slot), line(n))
	case resolver.LocLocal, resolver.LocHoistedLocal:
		e.Stream.EmitU2(bytecode.Stloc, uint16(loc.Slot), line(n))
	default:
		// Reorder: value is already on top; need `this`.field* then swap.
		// Since the instruction set has no generic stack-swap, the caller
		// (emitAssign) is responsible for emitting the chain-root load
		// *before* the value when storing into a field chain; see
		// emitStoreField below, used instead of this branch for those
		// kinds.
	}
}

// emitStoreField stores value (already emitted on top of stack as the
// single operand of an assignment whose evaluation order is chain-root,
// then value, then stfld) into a field-chain location.
func (e *Emitter) emitStoreField(loc *resolver.Location, n ast.Node) {
	tok := e.fieldToken(loc.Chain[len(loc.Chain)-1])
	e.Stream.EmitToken(bytecode.Stfld, tok, line(n))
}

func (e *Emitter) fieldToken(name string) bytecode.Token {
	return e.ctx.Module.AddMemberRef(module.MemberRefRow{Name: name})
}

// EnsureBoxed exposes ensureBoxed to internal/asyncgen, which embeds an
// Emitter to reuse every non-suspension handler unmodified but still needs
// to box an awaited/yielded value before it crosses a state-machine field.
func (e *Emitter) EnsureBoxed(t StackType, n ast.Node) StackType { return e.ensureBoxed(t, n) }

// RuntimeHandle exposes the runtime descriptor's well-known method lookup,
// for callers (internal/asyncgen) that build a call with an arity other
// than callRuntime1's fixed one-argument shape.
func (e *Emitter) RuntimeHandle(name string) bytecode.Token { return e.ctx.Runtime.MustHandle(name) }

func (e *Emitter) isFieldChainLocation(kind resolver.LocationKind) bool {
	switch kind {
	case resolver.LocCapturedLocalChain, resolver.LocClosureField, resolver.LocEntryPointField,
		resolver.LocStaticField, resolver.LocCapturedOuterChain, resolver.LocThisCapturedField:
		return true
	}
	return false
}
