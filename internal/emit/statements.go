package emit

import (
	"github.com/sharpts/compiler/internal/ast"
	"github.com/sharpts/compiler/internal/bytecode"
	"github.com/sharpts/compiler/internal/runtimestub"
)

// EmitStatement is the statement-side dispatcher, a parallel visitor to
// EmitExpression that delegates expressions back into it.
func (e *Emitter) EmitStatement(stmt ast.Statement) error {
	switch n := stmt.(type) {
	case *ast.VarStatement:
		return e.emitVarStatement(n.Name, n.Value, n)
	case *ast.ConstStatement:
		return e.emitVarStatement(n.Name, n.Value, n)
	case *ast.ExpressionStatement:
		t, err := e.EmitExpression(n.Expr)
		if err != nil {
			return err
		}
		_ = t
		e.Stream.Emit(bytecode.Pop, line(n))
		return nil
	case *ast.SequenceStatement:
		for _, expr := range n.Expressions {
			if _, err := e.EmitExpression(expr); err != nil {
				return err
			}
			e.Stream.Emit(bytecode.Pop, line(n))
		}
		return nil
	case *ast.BlockStatement:
		return e.emitBlock(n.Body)
	case *ast.IfStatement:
		return e.emitIf(n)
	case *ast.WhileStatement:
		return e.emitWhile(n)
	case *ast.ForStatement:
		return e.emitFor(n)
	case *ast.ForOfStatement:
		return e.emitForOf(n)
	case *ast.ForInStatement:
		return e.emitForIn(n)
	case *ast.TryCatchStatement:
		return e.emitTryCatch(n)
	case *ast.SwitchStatement:
		return e.emitSwitch(n)
	case *ast.ReturnStatement:
		return e.emitReturn(n)
	case *ast.ThrowStatement:
		return e.emitThrow(n)
	case *ast.BreakStatement:
		return e.emitBreak(n)
	case *ast.ContinueStatement:
		return e.emitContinue(n)
	case *ast.FunctionStatement, *ast.ClassStatement:
		// Nested function/class declarations compile as independent
		// methods/types registered up-front by the driver's pre-pass;
		// their declaration site emits nothing.
		return nil
	default:
		return errf(stmt, "unhandled statement kind %T", stmt)
	}
}

func (e *Emitter) emitBlock(body []ast.Statement) error {
	for _, s := range body {
		if err := e.EmitStatement(s); err != nil {
			return err
		}
	}
	return nil
}

func (e *Emitter) emitVarStatement(name string, value ast.Expression, n ast.Node) error {
	loc, ok := e.ctx.Res.Resolve(name)
	if !ok {
		return errf(n, "unresolved variable declaration %q", name)
	}
	if value == nil {
		e.Stream.Emit(bytecode.LdNull, line(n))
		e.emitStoreLocation(loc, n)
		return nil
	}
	if e.isFieldChainLocation(loc.Kind) {
		e.emitChainPrefix(loc, n)
		vt, err := e.EmitExpression(value)
		if err != nil {
			return err
		}
		e.ensureBoxed(vt, n)
		e.emitStoreField(loc, n)
		return nil
	}
	vt, err := e.EmitExpression(value)
	if err != nil {
		return err
	}
	_ = vt
	e.emitStoreLocation(loc, n)
	return nil
}

func (e *Emitter) emitIf(n *ast.IfStatement) error {
	ct, err := e.EmitExpression(n.Cond)
	if err != nil {
		return err
	}
	e.ensureBoolean(ct, n)
	elseJump := e.Stream.EmitJump(bytecode.Brfalse, line(n))
	if err := e.emitBlock(n.Then); err != nil {
		return err
	}
	if n.Else == nil {
		e.Stream.PatchJump(elseJump)
		return nil
	}
	end := e.Stream.EmitJump(bytecode.Br, line(n))
	e.Stream.PatchJump(elseJump)
	if err := e.emitBlock(n.Else); err != nil {
		return err
	}
	e.Stream.PatchJump(end)
	return nil
}

func (e *Emitter) pushLoop(label string) *loopFrame {
	lf := &loopFrame{label: label}
	e.loops = append(e.loops, lf)
	return lf
}

func (e *Emitter) popLoop() {
	lf := e.loops[len(e.loops)-1]
	e.loops = e.loops[:len(e.loops)-1]
	for _, j := range lf.breakJumps {
		e.Stream.PatchJump(j)
	}
}

func (e *Emitter) emitWhile(n *ast.WhileStatement) error {
	lf := e.pushLoop("")
	top := e.Stream.Label()
	lf.continueTarget = top
	ct, err := e.EmitExpression(n.Cond)
	if err != nil {
		return err
	}
	e.ensureBoolean(ct, n)
	exit := e.Stream.EmitJump(bytecode.Brfalse, line(n))
	if err := e.emitBlock(n.Body); err != nil {
		return err
	}
	e.Stream.EmitLoop(bytecode.Br, top, line(n))
	e.Stream.PatchJump(exit)
	e.popLoop()
	return nil
}

func (e *Emitter) emitFor(n *ast.ForStatement) error {
	if n.Init != nil {
		if err := e.EmitStatement(n.Init); err != nil {
			return err
		}
	}
	lf := e.pushLoop("")
	top := e.Stream.Label()
	var exit int
	hasCond := n.Cond != nil
	if hasCond {
		ct, err := e.EmitExpression(n.Cond)
		if err != nil {
			return err
		}
		e.ensureBoolean(ct, n)
		exit = e.Stream.EmitJump(bytecode.Brfalse, line(n))
	}
	if err := e.emitBlock(n.Body); err != nil {
		return err
	}
	postTarget := e.Stream.Label()
	lf.continueTarget = postTarget
	if n.Post != nil {
		if err := e.EmitStatement(n.Post); err != nil {
			return err
		}
	}
	e.Stream.EmitLoop(bytecode.Br, top, line(n))
	if hasCond {
		e.Stream.PatchJump(exit)
	}
	e.popLoop()
	return nil
}

// emitForOf lowers `for (const x of iterable)` via the iterator protocol:
// GetIteratorFunction, then a next()/done/value loop, wrapping a foreign
// iterator object through $IteratorWrapper when iterable isn't already a
// native collection.
func (e *Emitter) emitForOf(n *ast.ForOfStatement) error {
	it, err := e.EmitExpression(n.Iterable)
	if err != nil {
		return err
	}
	e.ensureBoxed(it, n)
	e.Stream.EmitToken(bytecode.Call, e.ctx.Runtime.MustHandle(runtimestub.GetIteratorFunction), line(n))

	lf := e.pushLoop("")
	top := e.Stream.Label()
	lf.continueTarget = top
	e.Stream.Emit(bytecode.Dup, line(n))
	e.Stream.EmitToken(bytecode.Call, e.ctx.Runtime.MustHandle(runtimestub.InvokeIteratorNext), line(n))
	e.Stream.Emit(bytecode.Dup, line(n))
	e.Stream.EmitToken(bytecode.Call, e.ctx.Runtime.MustHandle(runtimestub.GetIteratorDone), line(n))
	exit := e.Stream.EmitJump(bytecode.Brtrue, line(n))

	e.Stream.EmitToken(bytecode.Call, e.ctx.Runtime.MustHandle(runtimestub.GetIteratorValue), line(n))
	loc, ok := e.ctx.Res.Resolve(n.VarName)
	if !ok {
		return errf(n, "unresolved for-of binding %q", n.VarName)
	}
	e.emitStoreLocation(loc, n)

	if err := e.emitBlock(n.Body); err != nil {
		return err
	}
	e.Stream.EmitLoop(bytecode.Br, top, line(n))
	e.Stream.PatchJump(exit)
	e.Stream.Emit(bytecode.Pop, line(n)) // discard the done-result object left by GetIteratorDone's dup chain
	e.Stream.Emit(bytecode.Pop, line(n)) // discard the iterator itself
	e.popLoop()
	return nil
}

// emitForIn lowers `for (const k in obj)` via the runtime's property-key
// enumeration, reusing the same iterator-protocol shape as for-of over
// the object's own enumerable keys.
func (e *Emitter) emitForIn(n *ast.ForInStatement) error {
	ot, err := e.EmitExpression(n.Object)
	if err != nil {
		return err
	}
	e.ensureBoxed(ot, n)
	e.Stream.EmitToken(bytecode.Call, e.ctx.Runtime.MustHandle(runtimestub.GetProperty), line(n))
	e.Stream.EmitToken(bytecode.Call, e.ctx.Runtime.MustHandle(runtimestub.GetIteratorFunction), line(n))

	lf := e.pushLoop("")
	top := e.Stream.Label()
	lf.continueTarget = top
	e.Stream.Emit(bytecode.Dup, line(n))
	e.Stream.EmitToken(bytecode.Call, e.ctx.Runtime.MustHandle(runtimestub.InvokeIteratorNext), line(n))
	e.Stream.Emit(bytecode.Dup, line(n))
	e.Stream.EmitToken(bytecode.Call, e.ctx.Runtime.MustHandle(runtimestub.GetIteratorDone), line(n))
	exit := e.Stream.EmitJump(bytecode.Brtrue, line(n))

	e.Stream.EmitToken(bytecode.Call, e.ctx.Runtime.MustHandle(runtimestub.GetIteratorValue), line(n))
	loc, ok := e.ctx.Res.Resolve(n.VarName)
	if !ok {
		return errf(n, "unresolved for-in binding %q", n.VarName)
	}
	e.emitStoreLocation(loc, n)

	if err := e.emitBlock(n.Body); err != nil {
		return err
	}
	e.Stream.EmitLoop(bytecode.Br, top, line(n))
	e.Stream.PatchJump(exit)
	e.Stream.Emit(bytecode.Pop, line(n))
	e.Stream.Emit(bytecode.Pop, line(n))
	e.popLoop()
	return nil
}

// emitTryCatch lowers a try/catch/finally into an ExceptionClause-backed
// region: Try runs between TryOffset/TryLength; Catch (if present)
// becomes a ClauseCatch handler; Finally (if present) a
// ClauseFinally handler. `leave` exits a protected region; `endfinally`
// ends a finally handler.
func (e *Emitter) emitTryCatch(n *ast.TryCatchStatement) error {
	tryStart := e.Stream.Label()
	if err := e.emitBlock(n.Try); err != nil {
		return err
	}
	leaveTry := e.Stream.EmitJump(bytecode.Leave, line(n))
	tryEnd := e.Stream.Label()

	var clauses []bytecode.ExceptionClause

	if n.Catch != nil {
		handlerStart := e.Stream.Label()
		if n.Catch.Param != "" {
			loc, ok := e.ctx.Res.Resolve(n.Catch.Param)
			if ok {
				e.emitStoreLocation(loc, n)
			} else {
				e.Stream.Emit(bytecode.Pop, line(n))
			}
		} else {
			e.Stream.Emit(bytecode.Pop, line(n))
		}
		if err := e.emitBlock(n.Catch.Body); err != nil {
			return err
		}
		leaveCatch := e.Stream.EmitJump(bytecode.Leave, line(n))
		handlerEnd := e.Stream.Label()
		clauses = append(clauses, bytecode.ExceptionClause{
			Kind:          bytecode.ClauseCatch,
			TryOffset:     uint32(tryStart),
			TryLength:     uint32(tryEnd - tryStart),
			HandlerOffset: uint32(handlerStart),
			HandlerLength: uint32(handlerEnd - handlerStart),
		})
		e.Stream.PatchJump(leaveTry)
		e.Stream.PatchJump(leaveCatch)
	} else {
		e.Stream.PatchJump(leaveTry)
	}

	if n.Finally != nil {
		finallyStart := e.Stream.Label()
		if err := e.emitBlock(n.Finally); err != nil {
			return err
		}
		e.Stream.Emit(bytecode.Endfinally, line(n))
		finallyEnd := e.Stream.Label()
		clauses = append(clauses, bytecode.ExceptionClause{
			Kind:          bytecode.ClauseFinally,
			TryOffset:     uint32(tryStart),
			TryLength:     uint32(tryEnd - tryStart),
			HandlerOffset: uint32(finallyStart),
			HandlerLength: uint32(finallyEnd - finallyStart),
		})
	}

	e.pendingClauses = append(e.pendingClauses, clauses...)
	return nil
}

// emitSwitch lowers `switch` as a chain of equality tests against the
// discriminant (the instruction set's `switch` opcode is a dense jump
// table and TypeScript switches aren't guaranteed dense/integral, so the
// chain form is the general-purpose lowering; a dense-integer
// discriminant is an optimisation left to a later pass).
func (e *Emitter) emitSwitch(n *ast.SwitchStatement) error {
	lf := e.pushLoop("") // switch shares break's jump-patch machinery with loops
	dt, err := e.EmitExpression(n.Discriminant)
	if err != nil {
		return err
	}
	e.ensureBoxed(dt, n)

	var caseJumps []int
	defaultIndex := -1
	for i, c := range n.Cases {
		if c.Test == nil {
			defaultIndex = i
			caseJumps = append(caseJumps, -1)
			continue
		}
		e.Stream.Emit(bytecode.Dup, line(n))
		ct, err := e.EmitExpression(c.Test)
		if err != nil {
			return err
		}
		e.ensureBoxed(ct, n)
		e.Stream.EmitToken(bytecode.Call, e.ctx.Runtime.MustHandle(runtimestub.JSEquals), line(n))
		caseJumps = append(caseJumps, e.Stream.EmitJump(bytecode.Brtrue, line(n)))
	}
	var fallthroughToDefault int
	if defaultIndex >= 0 {
		fallthroughToDefault = e.Stream.EmitJump(bytecode.Br, line(n))
	} else {
		fallthroughToDefault = e.Stream.EmitJump(bytecode.Br, line(n))
	}

	for i, c := range n.Cases {
		if c.Test == nil {
			e.Stream.PatchJump(fallthroughToDefault)
		} else {
			e.Stream.PatchJump(caseJumps[i])
		}
		e.Stream.Emit(bytecode.Pop, line(n)) // discard the duplicated discriminant on this case's entry
		if err := e.emitBlock(c.Body); err != nil {
			return err
		}
	}
	if defaultIndex < 0 {
		e.Stream.PatchJump(fallthroughToDefault)
		e.Stream.Emit(bytecode.Pop, line(n))
	}
	e.popLoop()
	for _, j := range lf.breakJumps {
		e.Stream.PatchJump(j)
	}
	return nil
}

func (e *Emitter) emitReturn(n *ast.ReturnStatement) error {
	if n.Value == nil {
		e.Stream.Emit(bytecode.LdNull, line(n))
		e.Stream.Emit(bytecode.Ret, line(n))
		return nil
	}
	vt, err := e.EmitExpression(n.Value)
	if err != nil {
		return err
	}
	e.ensureBoxed(vt, n)
	e.Stream.Emit(bytecode.Ret, line(n))
	return nil
}

func (e *Emitter) emitThrow(n *ast.ThrowStatement) error {
	vt, err := e.EmitExpression(n.Value)
	if err != nil {
		return err
	}
	e.ensureBoxed(vt, n)
	e.Stream.Emit(bytecode.ThrowOp, line(n))
	return nil
}

func (e *Emitter) emitBreak(n *ast.BreakStatement) error {
	if len(e.loops) == 0 {
		return errf(n, "break outside a loop or switch")
	}
	lf := e.findLoop(n.Label)
	if lf == nil {
		return errf(n, "break to undeclared label %q", n.Label)
	}
	// leave is reserved for exiting a protected region; ordinary
	// loop/switch control flow uses a plain branch. A break that
	// crosses a try/finally boundary still runs the finally, since
	// the try/catch lowering already emits its own leave at the
	// region's exit.
	j := e.Stream.EmitJump(bytecode.Br, line(n))
	lf.breakJumps = append(lf.breakJumps, j)
	return nil
}

func (e *Emitter) emitContinue(n *ast.ContinueStatement) error {
	if len(e.loops) == 0 {
		return errf(n, "continue outside a loop")
	}
	lf := e.findLoop(n.Label)
	if lf == nil {
		return errf(n, "continue to undeclared label %q", n.Label)
	}
	e.Stream.EmitLoop(bytecode.Br, lf.continueTarget, line(n))
	return nil
}

func (e *Emitter) findLoop(label string) *loopFrame {
	if label == "" {
		return e.loops[len(e.loops)-1]
	}
	for i := len(e.loops) - 1; i >= 0; i-- {
		if e.loops[i].label == label {
			return e.loops[i]
		}
	}
	return nil
}
