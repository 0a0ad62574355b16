package emit

import (
	"fmt"

	"github.com/sharpts/compiler/internal/ast"
	"github.com/sharpts/compiler/internal/bytecode"
	"github.com/sharpts/compiler/internal/module"
	"github.com/sharpts/compiler/internal/resolver"
	"github.com/sharpts/compiler/internal/runtimestub"
)

// --- assignment targets ---

// emitAssign evaluates target = value and leaves the assigned value on
// the stack (assignment is itself an expression).
func (e *Emitter) emitAssign(n *ast.Assign) (StackType, error) {
	return e.assignInto(n.Target, func() (StackType, error) { return e.EmitExpression(n.Value) })
}

// assignInto stores the value produced by emitValue into target,
// re-used by plain, compound, and logical assignment.
func (e *Emitter) assignInto(target ast.Expression, emitValue func() (StackType, error)) (StackType, error) {
	switch t := target.(type) {
	case *ast.Variable:
		loc, ok := e.ctx.Res.Resolve(t.Name)
		if !ok {
			return Unknown, errf(t, "unresolved assignment target %q", t.Name)
		}
		if e.isFieldChainLocation(loc.Kind) {
			e.emitChainPrefix(loc, t)
			vt, err := emitValue()
			if err != nil {
				return Unknown, err
			}
			e.ensureBoxed(vt, t)
			e.emitStoreField(loc, t)
			e.emitLoadLocation(loc, t)
			return Unknown, nil
		}
		vt, err := emitValue()
		if err != nil {
			return Unknown, err
		}
		e.emitStoreLocation(loc, t)
		e.emitLoadLocation(loc, t)
		return e.stackTypeOf(loc), nil

	case *ast.MemberExpression:
		_, err := e.EmitExpression(t.Left)
		if err != nil {
			return Unknown, err
		}
		e.ensureBoxed(Unknown, t)
		tok := e.Stream.AddUserString(t.Member.Value)
		e.Stream.EmitToken(bytecode.LdStr, tok, line(t))
		vt, err := emitValue()
		if err != nil {
			return Unknown, err
		}
		e.ensureBoxed(vt, t)
		e.Stream.EmitToken(bytecode.Call, e.ctx.Runtime.MustHandle(runtimestub.SetProperty), line(t))
		return Unknown, nil

	case *ast.IndexExpression:
		if _, err := e.EmitExpression(t.Left); err != nil {
			return Unknown, err
		}
		e.ensureBoxed(Unknown, t)
		it, err := e.EmitExpression(t.Index)
		if err != nil {
			return Unknown, err
		}
		e.ensureBoxed(it, t)
		vt, err := emitValue()
		if err != nil {
			return Unknown, err
		}
		e.ensureBoxed(vt, t)
		e.Stream.EmitToken(bytecode.Call, e.ctx.Runtime.MustHandle(runtimestub.SetIndex), line(t))
		return Unknown, nil

	case *ast.GetPrivate:
		return Unknown, errf(t, "private field target must be *ast.SetPrivate, not *ast.GetPrivate")

	default:
		return Unknown, errf(target, "unassignable target kind %T", target)
	}
}

// emitChainPrefix pushes the receiver for a field-chain location: `this`
// followed by every field in the chain except the last.
func (e *Emitter) emitChainPrefix(loc *resolver.Location, n ast.Node) {
	e.Stream.EmitU2(bytecode.Ldarg, 0, line(n))
	for _, f := range loc.Chain[:len(loc.Chain)-1] {
		e.Stream.EmitToken(bytecode.Ldfld, e.fieldToken(f), line(n))
	}
}

func (e *Emitter) emitCompoundAssign(n *ast.CompoundAssign) (StackType, error) {
	op := n.Operator[:len(n.Operator)-1] // "+=" -> "+"
	return e.assignInto(n.Target, func() (StackType, error) {
		if _, err := e.EmitExpression(n.Target); err != nil {
			return Unknown, err
		}
		return e.emitBinaryOp(op, func() (StackType, error) { return e.EmitExpression(n.Value) }, n)
	})
}

func (e *Emitter) emitLogicalAssign(n *ast.LogicalAssign) (StackType, error) {
	// `target &&= value` / `||=` / `??=`: only assign when the existing
	// value satisfies the guard; otherwise leave it untouched.
	cur, err := e.EmitExpression(n.Target)
	if err != nil {
		return Unknown, err
	}
	e.ensureBoxed(cur, n)
	e.Stream.Emit(bytecode.Dup, line(n))

	var jump int
	switch n.Operator {
	case "&&=":
		e.callRuntime1(runtimestub.Truthy, n)
		jump = e.Stream.EmitJump(bytecode.Brfalse, line(n))
	case "||=":
		e.callRuntime1(runtimestub.Truthy, n)
		jump = e.Stream.EmitJump(bytecode.Brtrue, line(n))
	case "??=":
		e.Stream.Emit(bytecode.LdNull, line(n))
		e.Stream.Emit(bytecode.Ceq, line(n))
		jump = e.Stream.EmitJump(bytecode.Brfalse, line(n))
	default:
		return Unknown, errf(n, "unhandled logical-assign operator %q", n.Operator)
	}
	e.Stream.Emit(bytecode.Pop, line(n)) // discard the guard-test's duplicated value
	if _, err := e.assignInto(n.Target, func() (StackType, error) { return e.EmitExpression(n.Value) }); err != nil {
		return Unknown, err
	}
	e.Stream.PatchJump(jump)
	return Unknown, nil
}

// --- arithmetic / comparison / logical ---

func (e *Emitter) emitBinary(n *ast.Binary) (StackType, error) {
	return e.emitBinaryOp(n.Operator, func() (StackType, error) { return e.EmitExpression(n.Right) }, n, emitLeft(e, n.Left))
}

// emitLeft is a thunk producing n.Left's stack type, passed so
// emitBinaryOp can be shared between *ast.Binary and compound-assign
// desugaring (whose "left" is the already-emitted current value).
func emitLeft(e *Emitter, left ast.Expression) func() (StackType, error) {
	return func() (StackType, error) { return e.EmitExpression(left) }
}

// emitBinaryOp emits operator: it pushes the left operand itself via
// leftThunks[0] if supplied (see emitLeft), else assumes it is already
// on the stack (compound-assign reuse).
func (e *Emitter) emitBinaryOp(op string, emitRight func() (StackType, error), n ast.Node, leftThunks ...func() (StackType, error)) (StackType, error) {
	var lt StackType
	if len(leftThunks) > 0 {
		var err error
		lt, err = leftThunks[0]()
		if err != nil {
			return Unknown, err
		}
	} else {
		lt = Unknown // already on stack from caller (compound assign's re-read of target)
	}

	switch op {
	case "+":
		e.ensureBoxed(lt, n)
		rt, err := emitRight()
		if err != nil {
			return Unknown, err
		}
		e.ensureBoxed(rt, n)
		e.Stream.EmitToken(bytecode.Call, e.ctx.Runtime.MustHandle(runtimestub.Add), line(n))
		return Unknown, nil

	case "-", "*", "/", "%":
		e.ensureDouble(lt, n)
		rt, err := emitRight()
		if err != nil {
			return Unknown, err
		}
		e.ensureDouble(rt, n)
		switch op {
		case "-":
			e.Stream.Emit(bytecode.Sub, line(n))
		case "*":
			e.Stream.Emit(bytecode.Mul, line(n))
		case "/":
			e.Stream.Emit(bytecode.Div, line(n))
		case "%":
			e.Stream.Emit(bytecode.Rem, line(n))
		}
		return TDouble, nil

	case "&", "|", "^", "<<", ">>":
		e.ensureDouble(lt, n)
		rt, err := emitRight()
		if err != nil {
			return Unknown, err
		}
		e.ensureDouble(rt, n)
		switch op {
		case "&":
			e.Stream.Emit(bytecode.And, line(n))
		case "|":
			e.Stream.Emit(bytecode.Or, line(n))
		case "^":
			e.Stream.Emit(bytecode.Xor, line(n))
		case "<<":
			e.Stream.Emit(bytecode.Shl, line(n))
		case ">>":
			e.Stream.Emit(bytecode.Shr, line(n))
		}
		return TDouble, nil

	case "<", ">":
		e.ensureDouble(lt, n)
		rt, err := emitRight()
		if err != nil {
			return Unknown, err
		}
		e.ensureDouble(rt, n)
		if op == "<" {
			e.Stream.Emit(bytecode.Clt, line(n))
		} else {
			e.Stream.Emit(bytecode.Cgt, line(n))
		}
		return TBoolean, nil

	case "<=", ">=":
		e.ensureDouble(lt, n)
		rt, err := emitRight()
		if err != nil {
			return Unknown, err
		}
		e.ensureDouble(rt, n)
		// `a <= b` == `!(a > b)`, synthesised as cgt; ldc.i4.0; ceq
		// (and the mirror image for `>=`).
		if op == "<=" {
			e.Stream.Emit(bytecode.Cgt, line(n))
		} else {
			e.Stream.Emit(bytecode.Clt, line(n))
		}
		e.Stream.EmitI4(bytecode.LdcI4, 0, line(n))
		e.Stream.Emit(bytecode.Ceq, line(n))
		return TBoolean, nil

	case "==", "!=", "===", "!==":
		e.ensureBoxed(lt, n)
		rt, err := emitRight()
		if err != nil {
			return Unknown, err
		}
		e.ensureBoxed(rt, n)
		e.Stream.EmitToken(bytecode.Call, e.ctx.Runtime.MustHandle(runtimestub.JSEquals), line(n))
		if op == "!=" || op == "!==" {
			e.Stream.EmitI4(bytecode.LdcI4, 0, line(n))
			e.Stream.Emit(bytecode.Ceq, line(n))
		}
		return TBoolean, nil

	default:
		return Unknown, errf(n, "unhandled binary operator %q", op)
	}
}

func (e *Emitter) emitLogical(n *ast.Logical) (StackType, error) {
	lt, err := e.EmitExpression(n.Left)
	if err != nil {
		return Unknown, err
	}
	e.ensureBoxed(lt, n)
	e.Stream.Emit(bytecode.Dup, line(n))
	e.callRuntime1(runtimestub.Truthy, n)

	var shortCircuit int
	if n.Operator == "&&" {
		shortCircuit = e.Stream.EmitJump(bytecode.Brfalse, line(n))
	} else {
		shortCircuit = e.Stream.EmitJump(bytecode.Brtrue, line(n))
	}
	e.Stream.Emit(bytecode.Pop, line(n))
	rt, err := e.EmitExpression(n.Right)
	if err != nil {
		return Unknown, err
	}
	e.ensureBoxed(rt, n)
	end := e.Stream.EmitJump(bytecode.Br, line(n))
	e.Stream.PatchJump(shortCircuit)
	e.Stream.PatchJump(end)
	return Unknown, nil
}

func (e *Emitter) emitNullishCoalescing(n *ast.NullishCoalescing) (StackType, error) {
	lt, err := e.EmitExpression(n.Left)
	if err != nil {
		return Unknown, err
	}
	e.ensureBoxed(lt, n)
	e.Stream.Emit(bytecode.Dup, line(n))
	e.Stream.Emit(bytecode.LdNull, line(n))
	e.Stream.Emit(bytecode.Ceq, line(n))
	takeRight := e.Stream.EmitJump(bytecode.Brtrue, line(n))
	end := e.Stream.EmitJump(bytecode.Br, line(n))
	e.Stream.PatchJump(takeRight)
	e.Stream.Emit(bytecode.Pop, line(n))
	rt, err := e.EmitExpression(n.Right)
	if err != nil {
		return Unknown, err
	}
	e.ensureBoxed(rt, n)
	e.Stream.PatchJump(end)
	return Unknown, nil
}

func (e *Emitter) emitUnary(n *ast.Unary) (StackType, error) {
	switch n.Operator {
	case "-":
		t, err := e.EmitExpression(n.Operand)
		if err != nil {
			return Unknown, err
		}
		e.ensureDouble(t, n)
		e.Stream.Emit(bytecode.Neg, line(n))
		return TDouble, nil
	case "+":
		t, err := e.EmitExpression(n.Operand)
		if err != nil {
			return Unknown, err
		}
		e.ensureDouble(t, n)
		return TDouble, nil
	case "!":
		t, err := e.EmitExpression(n.Operand)
		if err != nil {
			return Unknown, err
		}
		e.ensureBoolean(t, n)
		e.Stream.EmitI4(bytecode.LdcI4, 0, line(n))
		e.Stream.Emit(bytecode.Ceq, line(n))
		return TBoolean, nil
	case "~":
		t, err := e.EmitExpression(n.Operand)
		if err != nil {
			return Unknown, err
		}
		e.ensureDouble(t, n)
		e.Stream.Emit(bytecode.Not, line(n))
		return TDouble, nil
	case "void":
		if _, err := e.EmitExpression(n.Operand); err != nil {
			return Unknown, err
		}
		e.Stream.Emit(bytecode.Pop, line(n))
		e.Stream.Emit(bytecode.LdNull, line(n))
		return TNull, nil
	case "typeof":
		t, err := e.EmitExpression(n.Operand)
		if err != nil {
			return Unknown, err
		}
		e.ensureBoxed(t, n)
		e.callRuntime1(runtimestub.Stringify, n)
		return TString, nil
	default:
		return Unknown, errf(n, "unhandled unary operator %q", n.Operator)
	}
}

func (e *Emitter) emitTernary(n *ast.Ternary) (StackType, error) {
	ct, err := e.EmitExpression(n.Cond)
	if err != nil {
		return Unknown, err
	}
	e.ensureBoolean(ct, n)
	elseJump := e.Stream.EmitJump(bytecode.Brfalse, line(n))
	tt, err := e.EmitExpression(n.Then)
	if err != nil {
		return Unknown, err
	}
	e.ensureBoxed(tt, n)
	end := e.Stream.EmitJump(bytecode.Br, line(n))
	e.Stream.PatchJump(elseJump)
	et, err := e.EmitExpression(n.Else)
	if err != nil {
		return Unknown, err
	}
	e.ensureBoxed(et, n)
	e.Stream.PatchJump(end)
	return Unknown, nil
}

// --- calls / construction ---

func (e *Emitter) emitCall(n *ast.Call) (StackType, error) {
	if member, ok := n.Callee.(*ast.MemberExpression); ok {
		if recv, ok := member.Left.(*ast.Variable); ok && recv.Name == "console" && member.Member.Value == "log" {
			return e.emitConsoleLog(n)
		}
	}

	if callee, ok := n.Callee.(*ast.Variable); ok {
		if kf, ok := e.ctx.KnownFunctions[callee.Name]; ok {
			return e.emitDirectCall(kf, n)
		}
	}

	return e.emitGenericCall(n)
}

func (e *Emitter) emitConsoleLog(n *ast.Call) (StackType, error) {
	for _, arg := range n.Args {
		t, err := e.EmitExpression(arg)
		if err != nil {
			return Unknown, err
		}
		e.ensureBoxed(t, n)
		e.Stream.EmitToken(bytecode.Call, e.ctx.Runtime.MustHandle(runtimestub.ConsoleLog), line(n))
	}
	e.Stream.Emit(bytecode.LdNull, line(n))
	return TNull, nil
}

// emitDirectCall calls a statically known function directly, padding
// missing optional arguments by tail-calling the appropriate forwarder
// when the call site supplies fewer arguments than the full arity.
func (e *Emitter) emitDirectCall(kf *KnownFunction, n *ast.Call) (StackType, error) {
	target := kf.Token
	if len(n.Args) < kf.ParamCount {
		if fw, ok := kf.Forwarders[len(n.Args)]; ok {
			target = fw
		}
	}
	for _, arg := range n.Args {
		t, err := e.EmitExpression(arg)
		if err != nil {
			return Unknown, err
		}
		e.ensureBoxed(t, n)
	}
	e.Stream.EmitToken(bytecode.Call, target, line(n))
	return Unknown, nil
}

func (e *Emitter) emitGenericCall(n *ast.Call) (StackType, error) {
	ct, err := e.EmitExpression(n.Callee)
	if err != nil {
		return Unknown, err
	}
	e.ensureBoxed(ct, n)
	if err := e.emitObjectArray(n.Args); err != nil {
		return Unknown, err
	}
	e.Stream.EmitToken(bytecode.Call, e.ctx.Runtime.MustHandle(runtimestub.InvokeValue), line(n))
	return Unknown, nil
}

// emitObjectArray packs args into a freshly allocated object[] array,
// left on top of stack.
func (e *Emitter) emitObjectArray(args []ast.Expression) error {
	objTok := e.ctx.corelibType("System", "Object")
	e.Stream.EmitI4(bytecode.LdcI4, int32(len(args)), 0)
	e.Stream.EmitToken(bytecode.Newarr, objTok, 0)
	for i, arg := range args {
		e.Stream.Emit(bytecode.Dup, line(arg))
		e.Stream.EmitI4(bytecode.LdcI4, int32(i), line(arg))
		t, err := e.EmitExpression(arg)
		if err != nil {
			return err
		}
		e.ensureBoxed(t, arg)
		e.Stream.Emit(bytecode.Stelem, line(arg))
	}
	return nil
}

var builtinConstructors = map[string]string{
	"Date":    runtimestub.DateNew,
	"Map":     runtimestub.MapNew,
	"Set":     runtimestub.SetNew,
	"WeakMap": runtimestub.WeakMapNew,
	"WeakSet": runtimestub.WeakSetNew,
	"RegExp":  runtimestub.RegExpNew,
}

func (e *Emitter) emitNew(n *ast.New) (StackType, error) {
	if callee, ok := n.Callee.(*ast.Variable); ok {
		if helper, ok := builtinConstructors[callee.Name]; ok {
			if err := e.emitObjectArray(n.Args); err != nil {
				return Unknown, err
			}
			e.Stream.EmitToken(bytecode.Call, e.ctx.Runtime.MustHandle(helper), line(n))
			return Unknown, nil
		}
		if cls, ok := e.ctx.KnownClasses[callee.Name]; ok {
			for _, arg := range n.Args {
				t, err := e.EmitExpression(arg)
				if err != nil {
					return Unknown, err
				}
				e.ensureBoxed(t, n)
			}
			e.Stream.EmitToken(bytecode.Newobj, e.newobjToken(cls), line(n))
			return Unknown, nil
		}
		return Unknown, errf(n, "unknown constructor %q", callee.Name)
	}
	return Unknown, errf(n, "unsupported dynamic `new` callee")
}

// newobjToken resolves the constructor MethodDef token of cls, by
// convention the method named "ctor".
func (e *Emitter) newobjToken(cls *module.Class) bytecode.Token {
	for _, m := range cls.Methods {
		if m.Name == "ctor" {
			return m.Token()
		}
	}
	return bytecode.Token(0)
}

// --- member / index / private access ---

func (e *Emitter) emitMember(n *ast.MemberExpression) (StackType, error) {
	lt, err := e.EmitExpression(n.Left)
	if err != nil {
		return Unknown, err
	}
	e.ensureBoxed(lt, n)
	tok := e.Stream.AddUserString(n.Member.Value)
	e.Stream.EmitToken(bytecode.LdStr, tok, line(n))
	e.Stream.EmitToken(bytecode.Call, e.ctx.Runtime.MustHandle(runtimestub.GetProperty), line(n))
	return Unknown, nil
}

func (e *Emitter) emitIndex(n *ast.IndexExpression) (StackType, error) {
	lt, err := e.EmitExpression(n.Left)
	if err != nil {
		return Unknown, err
	}
	e.ensureBoxed(lt, n)
	it, err := e.EmitExpression(n.Index)
	if err != nil {
		return Unknown, err
	}
	e.ensureBoxed(it, n)
	e.Stream.EmitToken(bytecode.Call, e.ctx.Runtime.MustHandle(runtimestub.GetIndex), line(n))
	return Unknown, nil
}

func (e *Emitter) emitGetPrivate(n *ast.GetPrivate) (StackType, error) {
	lt, err := e.EmitExpression(n.Left)
	if err != nil {
		return Unknown, err
	}
	e.ensureBoxed(lt, n)
	e.Stream.EmitToken(bytecode.Ldfld, e.fieldToken(privateFieldName(n.Name)), line(n))
	return Unknown, nil
}

func (e *Emitter) emitSetPrivate(n *ast.SetPrivate) (StackType, error) {
	lt, err := e.EmitExpression(n.Left)
	if err != nil {
		return Unknown, err
	}
	e.ensureBoxed(lt, n)
	vt, err := e.EmitExpression(n.Value)
	if err != nil {
		return Unknown, err
	}
	e.ensureBoxed(vt, n)
	e.Stream.EmitToken(bytecode.Stfld, e.fieldToken(privateFieldName(n.Name)), line(n))
	return Unknown, nil
}

func (e *Emitter) emitCallPrivate(n *ast.CallPrivate) (StackType, error) {
	lt, err := e.EmitExpression(n.Left)
	if err != nil {
		return Unknown, err
	}
	e.ensureBoxed(lt, n)
	for _, arg := range n.Args {
		t, err := e.EmitExpression(arg)
		if err != nil {
			return Unknown, err
		}
		e.ensureBoxed(t, n)
	}
	e.Stream.EmitToken(bytecode.Callvirt, e.fieldToken(privateFieldName(n.Name)), line(n))
	return Unknown, nil
}

// privateFieldName mangles a `#name` private member into its backing
// field name; private members are resolved via a separate table keyed by
// this mangled name.
func privateFieldName(name string) string { return "<private>" + name }

// --- literals / composite values ---

func (e *Emitter) emitArrayLiteral(n *ast.ArrayLiteral) (StackType, error) {
	if err := e.emitObjectArray(n.Elements); err != nil {
		return Unknown, err
	}
	e.Stream.EmitToken(bytecode.Call, e.ctx.Runtime.MustHandle(runtimestub.ArrayNew), line(n))
	return Unknown, nil
}

func (e *Emitter) emitObjectLiteral(n *ast.ObjectLiteral) (StackType, error) {
	e.Stream.EmitI4(bytecode.LdcI4, 0, line(n))
	e.Stream.EmitToken(bytecode.Newarr, e.ctx.corelibType("System", "Object"), line(n))
	e.Stream.EmitToken(bytecode.Call, e.ctx.Runtime.MustHandle(runtimestub.ArrayNew), line(n))
	for _, p := range n.Properties {
		e.Stream.Emit(bytecode.Dup, line(n))
		tok := e.Stream.AddUserString(p.Key)
		e.Stream.EmitToken(bytecode.LdStr, tok, line(n))
		vt, err := e.EmitExpression(p.Value)
		if err != nil {
			return Unknown, err
		}
		e.ensureBoxed(vt, n)
		e.Stream.EmitToken(bytecode.Call, e.ctx.Runtime.MustHandle(runtimestub.SetProperty), line(n))
		e.Stream.Emit(bytecode.Pop, line(n))
	}
	return Unknown, nil
}

func (e *Emitter) emitTemplateLiteral(n *ast.TemplateLiteral) (StackType, error) {
	tok := e.Stream.AddUserString(n.Quasis[0])
	e.Stream.EmitToken(bytecode.LdStr, tok, line(n))
	for i, expr := range n.Exprs {
		t, err := e.EmitExpression(expr)
		if err != nil {
			return Unknown, err
		}
		e.ensureString(t, n)
		e.Stream.EmitToken(bytecode.Call, e.ctx.Runtime.MustHandle(runtimestub.Add), line(n))
		chunkTok := e.Stream.AddUserString(n.Quasis[i+1])
		e.Stream.EmitToken(bytecode.LdStr, chunkTok, line(n))
		e.Stream.EmitToken(bytecode.Call, e.ctx.Runtime.MustHandle(runtimestub.Add), line(n))
	}
	return TString, nil
}

func (e *Emitter) emitTaggedTemplateLiteral(n *ast.TaggedTemplateLiteral) (StackType, error) {
	tt, err := e.EmitExpression(n.Tag)
	if err != nil {
		return Unknown, err
	}
	e.ensureBoxed(tt, n)
	rawStrings := make([]ast.Expression, len(n.Template.Quasis))
	for i, q := range n.Template.Quasis {
		rawStrings[i] = &ast.Literal{Kind: ast.LitString, Value: q}
	}
	args := make([]ast.Expression, 0, 1+len(n.Template.Exprs))
	args = append(args, &ast.ArrayLiteral{Elements: rawStrings})
	args = append(args, n.Template.Exprs...)
	if err := e.emitObjectArray(args); err != nil {
		return Unknown, err
	}
	e.Stream.EmitToken(bytecode.Call, e.ctx.Runtime.MustHandle(runtimestub.InvokeValue), line(n))
	return Unknown, nil
}

func (e *Emitter) emitDelete(n *ast.Delete) (StackType, error) {
	switch t := n.Target.(type) {
	case *ast.MemberExpression:
		if _, err := e.EmitExpression(t.Left); err != nil {
			return Unknown, err
		}
		e.ensureBoxed(Unknown, n)
		tok := e.Stream.AddUserString(t.Member.Value)
		e.Stream.EmitToken(bytecode.LdStr, tok, line(n))
		e.Stream.Emit(bytecode.LdNull, line(n))
		e.Stream.EmitToken(bytecode.Call, e.ctx.Runtime.MustHandle(runtimestub.SetProperty), line(n))
	case *ast.IndexExpression:
		if _, err := e.EmitExpression(t.Left); err != nil {
			return Unknown, err
		}
		e.ensureBoxed(Unknown, n)
		it, err := e.EmitExpression(t.Index)
		if err != nil {
			return Unknown, err
		}
		e.ensureBoxed(it, n)
		e.Stream.Emit(bytecode.LdNull, line(n))
		e.Stream.EmitToken(bytecode.Call, e.ctx.Runtime.MustHandle(runtimestub.SetIndex), line(n))
	default:
		return Unknown, errf(n, "unsupported delete target kind %T", n.Target)
	}
	e.Stream.EmitI4(bytecode.LdcI4, 1, line(n))
	return TBoolean, nil
}

func (e *Emitter) emitDynamicImport(n *ast.DynamicImport) (StackType, error) {
	st, err := e.EmitExpression(n.Specifier)
	if err != nil {
		return Unknown, err
	}
	e.ensureString(st, n)
	e.Stream.EmitToken(bytecode.Call, e.ctx.Runtime.MustHandle(runtimestub.DynamicImport), line(n))
	return Unknown, nil
}

func (e *Emitter) emitPrefixIncrement(n *ast.PrefixIncrement) (StackType, error) {
	delta := float64(1)
	if n.Decrement {
		delta = -1
	}
	return e.assignInto(n.Operand, func() (StackType, error) {
		t, err := e.EmitExpression(n.Operand)
		if err != nil {
			return Unknown, err
		}
		e.ensureDouble(t, n)
		e.Stream.EmitR8(bytecode.LdcR8, delta, line(n))
		e.Stream.Emit(bytecode.Add, line(n))
		return TDouble, nil
	})
}

func (e *Emitter) emitPostfixIncrement(n *ast.PostfixIncrement) (StackType, error) {
	// Evaluate the original numeric value first so it can be left on the
	// stack as this expression's result, then perform the prefix-style
	// increment against the same target for its side effect.
	orig, err := e.EmitExpression(n.Operand)
	if err != nil {
		return Unknown, err
	}
	e.ensureDouble(orig, n)
	delta := float64(1)
	if n.Decrement {
		delta = -1
	}
	if _, err := e.assignInto(n.Operand, func() (StackType, error) {
		t, err := e.EmitExpression(n.Operand)
		if err != nil {
			return Unknown, err
		}
		e.ensureDouble(t, n)
		e.Stream.EmitR8(bytecode.LdcR8, delta, line(n))
		e.Stream.Emit(bytecode.Add, line(n))
		return TDouble, nil
	}); err != nil {
		return Unknown, err
	}
	e.Stream.Emit(bytecode.Pop, line(n)) // discard assignInto's own result; orig is already on stack
	return TDouble, nil
}

func (e *Emitter) emitRegexLiteral(n *ast.RegexLiteral) (StackType, error) {
	patTok := e.Stream.AddUserString(n.Pattern)
	e.Stream.EmitToken(bytecode.LdStr, patTok, line(n))
	flagsTok := e.Stream.AddUserString(n.Flags)
	e.Stream.EmitToken(bytecode.LdStr, flagsTok, line(n))
	e.Stream.EmitToken(bytecode.Call, e.ctx.Runtime.MustHandle(runtimestub.RegExpNew), line(n))
	return Unknown, nil
}

// --- closures / classes-as-expressions ---

// emitArrowFunction creates a handle to a pre-declared display-class
// method or static method: the driver's pre-pass (the symbol-declaration
// walk plus the arrow-collection sweep) must already have registered the
// arrow's method token before any body referencing it is emitted.
func (e *Emitter) emitArrowFunction(n *ast.ArrowFunction) (StackType, error) {
	kf, ok := e.ctx.KnownFunctions[arrowHandleKey(n)]
	if !ok {
		return Unknown, errf(n, "arrow function handle not pre-declared")
	}
	e.Stream.EmitToken(bytecode.Ldftn, kf.Token, line(n))
	return Unknown, nil
}

// arrowHandleKey gives every arrow a unique KnownFunctions entry name
// distinct from ordinary named functions, keyed by its identity-bearing
// NodeId.
func arrowHandleKey(n *ast.ArrowFunction) string {
	return fmt.Sprintf("$arrow%d", n.ID())
}

func (e *Emitter) emitClassExpr(n *ast.ClassExpr) (StackType, error) {
	cls, ok := e.ctx.KnownClasses[classExprKey(n)]
	if !ok {
		return Unknown, errf(n, "class expression not pre-registered")
	}
	e.Stream.EmitToken(bytecode.Ldtoken, cls.Token(), line(n))
	return Unknown, nil
}

func classExprKey(n *ast.ClassExpr) string {
	return fmt.Sprintf("$classexpr%d", n.ID())
}
