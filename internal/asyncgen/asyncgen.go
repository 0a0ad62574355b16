// Package asyncgen implements the async/generator/async-generator body
// emitter: given a built state machine and its suspension record, emit the
// Resume method's bytecode, dispatching back into the already-resumed
// point via a forward-jump table and delegating every non-suspension
// expression/statement to internal/emit.
//
// internal/emit's dispatcher keeps one big type switch per AST node kind,
// each arm delegating to a compile helper; this package reuses that switch
// wholesale by embedding an Emitter and installing itself as the
// SuspensionHandler Context.Suspend consults for *ast.Await/*ast.Yield,
// the same "shared dispatcher, override specific arms" shape rather than
// subclassing the whole emitter.
package asyncgen

import (
	"fmt"

	"github.com/sharpts/compiler/internal/ast"
	"github.com/sharpts/compiler/internal/bytecode"
	"github.com/sharpts/compiler/internal/emit"
	"github.com/sharpts/compiler/internal/module"
	"github.com/sharpts/compiler/internal/resolver"
	"github.com/sharpts/compiler/internal/runtimestub"
	"github.com/sharpts/compiler/internal/statemachine"
	"github.com/sharpts/compiler/internal/suspend"
)

func line(n ast.Node) int { return n.Line() }

// Builder emits one Resume method body for a single state machine. It
// embeds an *emit.Emitter so every expression/statement handler other than
// await/yield is inherited unmodified, and installs itself on ctx.Suspend
// so the base dispatcher routes *ast.Await/*ast.Yield back here.
type Builder struct {
	*emit.Emitter

	ctx *emit.Context
	m   *statemachine.Machine
	rec *suspend.Record

	// dispatch[i] is the patch offset of the forward jump the prologue
	// dispatch table emits for suspension point i; EmitAwait/EmitYield
	// patch it to land exactly where that point's resume code begins.
	dispatch []int
}

// New builds a Resume-body emitter for m, installing it as ctx's
// suspension handler. ctx.Res must already be built from m via
// resolver.NewStateMachineBodyResolver so hoisted parameters/locals
// resolve to the same slot numbers this package copies field contents
// into and out of.
func New(ctx *emit.Context, m *statemachine.Machine, rec *suspend.Record) *Builder {
	b := &Builder{Emitter: emit.New(ctx), ctx: ctx, m: m, rec: rec}
	ctx.Suspend = b
	return b
}

func (b *Builder) fieldTok(name string) bytecode.Token {
	return b.ctx.Module.AddMemberRef(module.MemberRefRow{Name: name})
}

func (b *Builder) loadThisFieldI4(tok bytecode.Token) {
	b.Stream.EmitU2(bytecode.Ldarg, 0, 0)
	b.Stream.EmitToken(bytecode.Ldfld, tok, 0)
}

func (b *Builder) storeThisFieldI4(tok bytecode.Token, val int32) {
	b.Stream.EmitU2(bytecode.Ldarg, 0, 0)
	b.Stream.EmitI4(bytecode.LdcI4, val, 0)
	b.Stream.EmitToken(bytecode.Stfld, tok, 0)
}

// Build emits the full Resume method body: the already-done guard, the
// resume dispatch table, the defaults-once gate, the function body itself
// (with await/yield routed to this builder), and fall-off-the-end
// completion.
func (b *Builder) Build() (*bytecode.MethodBody, error) {
	stateTok := b.fieldTok(statemachine.StateField)

	b.loadThisFieldI4(stateTok)
	b.Stream.EmitI4(bytecode.LdcI4, statemachine.StateDone, 0)
	b.Stream.Emit(bytecode.Ceq, 0)
	notDone := b.Stream.EmitJump(bytecode.Brfalse, 0)
	b.emitDoneReturn()
	b.Stream.PatchJump(notDone)

	b.dispatch = make([]int, len(b.rec.Points))
	for i := range b.rec.Points {
		b.loadThisFieldI4(stateTok)
		b.Stream.EmitI4(bytecode.LdcI4, int32(i), 0)
		b.Stream.Emit(bytecode.Ceq, 0)
		b.dispatch[i] = b.Stream.EmitJump(bytecode.Brtrue, 0)
	}

	// Falling through every comparison above means state == -1: the
	// initial call. Hoisted parameters already sit in their Ldarg slots
	// from this actual call, so no field copy is needed on this path —
	// only a resumed call needs to repopulate slots from fields, which
	// EmitAwait/EmitYield do right at their own resume label.
	if err := b.emitDefaultsOnce(); err != nil {
		return nil, err
	}
	for _, stmt := range b.m.Func.FuncBody() {
		if err := b.Emitter.EmitStatement(stmt); err != nil {
			return nil, err
		}
	}

	b.storeThisFieldI4(stateTok, statemachine.StateDone)
	b.emitCurrentClear()
	b.emitDoneReturn()

	return b.Finish(8), nil
}

// emitDefaultsOnce applies default-parameter expressions exactly once
// (invariant: defaults-once), gated on the <>__defaultsApplied field so a
// resumed call never re-evaluates them.
func (b *Builder) emitDefaultsOnce() error {
	tok := b.fieldTok(statemachine.DefaultsAppliedField)
	b.loadThisFieldI4(tok)
	skip := b.Stream.EmitJump(bytecode.Brtrue, 0)
	b.storeThisFieldI4(tok, 1)

	for _, p := range b.m.Func.FuncParams() {
		if p.Default == nil {
			continue
		}
		loc, ok := b.ctx.Res.Resolve(p.Name)
		if !ok {
			continue
		}
		b.Stream.EmitU2(bytecode.Ldarg, uint16(loc.Slot), line(p.Default))
		b.Stream.Emit(bytecode.LdNull, line(p.Default))
		b.Stream.Emit(bytecode.Ceq, line(p.Default))
		notUndef := b.Stream.EmitJump(bytecode.Brfalse, line(p.Default))
		dt, err := b.Emitter.EmitExpression(p.Default)
		if err != nil {
			return err
		}
		b.EnsureBoxed(dt, p.Default)
		b.Stream.EmitU2(bytecode.Starg, uint16(loc.Slot), line(p.Default))
		b.Stream.PatchJump(notUndef)
	}

	b.Stream.PatchJump(skip)
	return nil
}

// pointIndex finds n's dense suspension index by identity against the
// points suspend.Analyze recorded for this same function body.
func (b *Builder) pointIndex(n ast.Expression) (int, bool) {
	for i, p := range b.rec.Points {
		if p.Node == ast.Expression(n) {
			return i, true
		}
	}
	return -1, false
}

// copyFieldsIntoLocals reloads every hoisted parameter/local from its
// state-machine field into the slot the resolver assigned it, restoring
// the values a resumed call needs (captured-outer fields are read directly
// through their chain on every access and need no copy).
func (b *Builder) copyFieldsIntoLocals() {
	for _, f := range b.m.Fields() {
		if f.Source != statemachine.SourceParameter && f.Source != statemachine.SourceLocal {
			continue
		}
		loc, ok := b.ctx.Res.Resolve(f.Name)
		if !ok {
			continue
		}
		tok := b.fieldTok(f.FieldName())
		b.Stream.EmitU2(bytecode.Ldarg, 0, 0)
		b.Stream.EmitToken(bytecode.Ldfld, tok, 0)
		if loc.Kind == resolver.LocHoistedParameter {
			b.Stream.EmitU2(bytecode.Starg, uint16(loc.Slot), 0)
		} else {
			b.Stream.EmitU2(bytecode.Stloc, uint16(loc.Slot), 0)
		}
	}
}

// copyLocalsIntoFields is copyFieldsIntoLocals's dual, run before every
// point where the Resume method returns to its caller (suspend or
// completion) so the next call can pick the values back up.
func (b *Builder) copyLocalsIntoFields() {
	for _, f := range b.m.Fields() {
		if f.Source != statemachine.SourceParameter && f.Source != statemachine.SourceLocal {
			continue
		}
		loc, ok := b.ctx.Res.Resolve(f.Name)
		if !ok {
			continue
		}
		tok := b.fieldTok(f.FieldName())
		b.Stream.EmitU2(bytecode.Ldarg, 0, 0)
		if loc.Kind == resolver.LocHoistedParameter {
			b.Stream.EmitU2(bytecode.Ldarg, uint16(loc.Slot), 0)
		} else {
			b.Stream.EmitU2(bytecode.Ldloc, uint16(loc.Slot), 0)
		}
		b.Stream.EmitToken(bytecode.Stfld, tok, 0)
	}
}

// EmitAwait implements emit.SuspensionHandler: evaluate the awaited
// expression, fetch its awaiter, and either fall through synchronously (if
// already complete) or persist state and return to the caller, resuming
// later at the dispatch table's matching label.
func (b *Builder) EmitAwait(e *emit.Emitter, n *ast.Await) (emit.StackType, error) {
	idx, ok := b.pointIndex(n)
	if !ok {
		return emit.Unknown, fmt.Errorf("asyncgen: await at line %d has no suspension record", n.Line())
	}
	stateTok := b.fieldTok(statemachine.StateField)
	awaiterTok := b.fieldTok(b.m.Awaiters[idx])

	e.Stream.EmitU2(bytecode.Ldarg, 0, line(n))
	vt, err := e.EmitExpression(n.Value)
	if err != nil {
		return emit.Unknown, err
	}
	e.EnsureBoxed(vt, n)
	e.Stream.EmitToken(bytecode.Call, e.RuntimeHandle(runtimestub.GetAwaiter), line(n))
	e.Stream.EmitToken(bytecode.Stfld, awaiterTok, line(n))

	e.Stream.EmitU2(bytecode.Ldarg, 0, line(n))
	e.Stream.EmitToken(bytecode.Ldfld, awaiterTok, line(n))
	e.Stream.EmitToken(bytecode.Call, e.RuntimeHandle(runtimestub.AwaiterIsCompleted), line(n))
	alreadyDone := e.Stream.EmitJump(bytecode.Brtrue, line(n))

	b.copyLocalsIntoFields()
	b.storeThisFieldI4(stateTok, int32(idx))
	e.Stream.EmitU2(bytecode.Ldarg, 0, line(n))
	e.Stream.EmitToken(bytecode.Ldfld, awaiterTok, line(n))
	e.Stream.EmitU2(bytecode.Ldarg, 0, line(n))
	e.Stream.EmitToken(bytecode.Call, e.RuntimeHandle(runtimestub.AwaitUnsafeOnCompleted), line(n))
	b.emitSuspendReturn()

	e.Stream.PatchJump(alreadyDone)
	b.Stream.PatchJump(b.dispatch[idx])
	b.copyFieldsIntoLocals()

	e.Stream.EmitU2(bytecode.Ldarg, 0, line(n))
	e.Stream.EmitToken(bytecode.Ldfld, awaiterTok, line(n))
	e.Stream.EmitToken(bytecode.Call, e.RuntimeHandle(runtimestub.AwaiterGetResult), line(n))
	return emit.Unknown, nil
}

// EmitYield implements emit.SuspensionHandler: store the yielded value
// into the Current field, persist state, and return "has a value" to the
// caller; resuming continues right after, with the yield expression's own
// value simplified to undefined (two-way .next(value) communication is
// not modelled).
func (b *Builder) EmitYield(e *emit.Emitter, n *ast.Yield) (emit.StackType, error) {
	idx, ok := b.pointIndex(n)
	if !ok {
		return emit.Unknown, fmt.Errorf("asyncgen: yield at line %d has no suspension record", n.Line())
	}
	stateTok := b.fieldTok(statemachine.StateField)
	currentTok := b.fieldTok(statemachine.CurrentField)

	e.Stream.EmitU2(bytecode.Ldarg, 0, line(n))
	var vt emit.StackType
	var err error
	if n.Value != nil {
		vt, err = e.EmitExpression(n.Value)
		if err != nil {
			return emit.Unknown, err
		}
	} else {
		e.Stream.Emit(bytecode.LdNull, line(n))
		vt = emit.TNull
	}
	e.EnsureBoxed(vt, n)
	e.Stream.EmitToken(bytecode.Stfld, currentTok, line(n))

	b.copyLocalsIntoFields()
	b.storeThisFieldI4(stateTok, int32(idx))
	b.emitYieldReturn()

	b.Stream.PatchJump(b.dispatch[idx])
	b.copyFieldsIntoLocals()

	e.Stream.Emit(bytecode.LdNull, line(n))
	return emit.TNull, nil
}

func (b *Builder) emitDoneReturn() {
	switch b.m.Kind {
	case statemachine.KindGenerator:
		b.Stream.EmitI4(bytecode.LdcI4, 0, 0)
		b.Stream.Emit(bytecode.Ret, 0)
	case statemachine.KindAsyncGenerator:
		b.Stream.EmitI4(bytecode.LdcI4, 0, 0)
		b.Stream.EmitToken(bytecode.Call, b.ctx.Runtime.MustHandle(runtimestub.ValueTaskFromBool), 0)
		b.Stream.Emit(bytecode.Ret, 0)
	default: // KindAsync
		b.Stream.Emit(bytecode.Ret, 0)
	}
}

func (b *Builder) emitYieldReturn() {
	switch b.m.Kind {
	case statemachine.KindAsyncGenerator:
		b.Stream.EmitI4(bytecode.LdcI4, 1, 0)
		b.Stream.EmitToken(bytecode.Call, b.ctx.Runtime.MustHandle(runtimestub.ValueTaskFromBool), 0)
		b.Stream.Emit(bytecode.Ret, 0)
	default: // KindGenerator
		b.Stream.EmitI4(bytecode.LdcI4, 1, 0)
		b.Stream.Emit(bytecode.Ret, 0)
	}
}

func (b *Builder) emitSuspendReturn() {
	if b.m.Kind == statemachine.KindAsyncGenerator {
		b.Stream.EmitI4(bytecode.LdcI4, 0, 0)
		b.Stream.EmitToken(bytecode.Call, b.ctx.Runtime.MustHandle(runtimestub.ValueTaskFromBool), 0)
	}
	b.Stream.Emit(bytecode.Ret, 0)
}

func (b *Builder) emitCurrentClear() {
	if b.m.Kind == statemachine.KindAsync {
		return
	}
	tok := b.fieldTok(statemachine.CurrentField)
	b.Stream.EmitU2(bytecode.Ldarg, 0, 0)
	b.Stream.Emit(bytecode.LdNull, 0)
	b.Stream.EmitToken(bytecode.Stfld, tok, 0)
}
