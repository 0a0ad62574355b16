// Package closure decides which variables a nested function captures,
// so the emitter can decide which locals need a display-class field
// instead of a stack slot.
//
// Generalises the *resolution-time* version of the same idea (an
// upvalue resolver walking the enclosing-scope chain and flagging a
// variable as captured) into an explicit two-pass analysis: captures
// and captured-locals must be known facts before any emission happens
// (a first AST pass), not resolved lazily per variable reference the
// way a single-pass compiler would do it.
package closure

import "github.com/sharpts/compiler/internal/ast"

// ThisName is the distinguished capture-set entry representing `this`.
const ThisName = "this"

// Record is the capture record for one function-like node.
type Record struct {
	// Captures is the set of outer names (including possibly ThisName)
	// this function reads that it did not itself declare.
	Captures map[string]bool
	// CapturedLocals is the subset of this function's own locals that
	// some inner closure captures. Any local in this set must be stored
	// in a display-class field, never a stack slot, for the duration of
	// its lifetime.
	CapturedLocals map[string]bool
}

func newRecord() *Record {
	return &Record{Captures: map[string]bool{}, CapturedLocals: map[string]bool{}}
}

// Analysis is the result of analysing one program: a capture record per
// function-like node, keyed by ast.NodeId (the same node is used as the
// lookup key across analyses).
type Analysis struct {
	records map[ast.NodeId]*Record
	// anyCaptured is the inverse index: a name that is captured by
	// *some* function anywhere in the program. Supports O(1) queries by
	// the emitter without rescanning every function's capture set.
	anyCaptured map[string]bool
}

// RecordFor returns the capture record for a function-like node, or an
// empty record if the node was never visited (e.g. dead code, or a
// top-level program that captures nothing).
func (a *Analysis) RecordFor(id ast.NodeId) *Record {
	if r, ok := a.records[id]; ok {
		return r
	}
	return newRecord()
}

// IsEverCaptured reports whether name is captured by any closure anywhere
// in the analysed program.
func (a *Analysis) IsEverCaptured(name string) bool {
	return a.anyCaptured[name]
}

// scope is one lexical block's set of declared names, used by the scope
// stack to decide "is this name a local of the current function, or an
// outer name".
type scope struct {
	names map[string]bool
}

// analyzer holds the two bookkeeping stacks the capture walk needs: a
// scope stack for declared names and a function stack for the
// enclosing function-like nodes currently being descended into.
type analyzer struct {
	scopes      []*scope       // scope stack: names declared at each nested block
	functions   []ast.FuncLike // function stack: function-like nodes currently being descended into
	result      *Analysis
	memberArena *ast.Arena // private arena for class-member FuncLike identities
}

// Analyze walks prog top-down and returns the capture analysis for every
// function-like node it contains.
func Analyze(prog *ast.Program) *Analysis {
	a := &analyzer{
		result: &Analysis{
			records:     map[ast.NodeId]*Record{},
			anyCaptured: map[string]bool{},
		},
	}
	a.pushScope()
	a.walkStatements(prog.Statements, nil)
	a.popScope()
	return a.result
}

func (a *analyzer) pushScope()         { a.scopes = append(a.scopes, &scope{names: map[string]bool{}}) }
func (a *analyzer) popScope()          { a.scopes = a.scopes[:len(a.scopes)-1] }
func (a *analyzer) declare(name string) {
	if len(a.scopes) == 0 || name == "" {
		return
	}
	a.scopes[len(a.scopes)-1].names[name] = true
}

func (a *analyzer) currentFunction() ast.FuncLike {
	if len(a.functions) == 0 {
		return nil
	}
	return a.functions[len(a.functions)-1]
}

func (a *analyzer) recordOf(f ast.FuncLike) *Record {
	r, ok := a.result.records[f.ID()]
	if !ok {
		r = newRecord()
		a.result.records[f.ID()] = r
	}
	return r
}

// declaredSomewhere reports whether name is declared in any scope
// visible from here (the current function's own scopes, or an outer
// function's scopes) excluding no scope.
func (a *analyzer) declaredSomewhere(name string) bool {
	for i := len(a.scopes) - 1; i >= 0; i-- {
		if a.scopes[i].names[name] {
			return true
		}
	}
	return false
}

// declaredInCurrentFunction reports whether name is a local of the
// function currently being walked (i.e. declared in a scope pushed since
// that function's own scope began). funcScopeDepth is the scopes-stack
// length at function entry.
func (a *analyzer) declaredInCurrentFunction(name string, funcScopeDepth int) bool {
	for i := len(a.scopes) - 1; i >= funcScopeDepth; i-- {
		if a.scopes[i].names[name] {
			return true
		}
	}
	return false
}

// markCapturedLocal finds the innermost function on
// the function stack (searching outward, skipping the current one) whose
// scope declares name, and records it as a captured_local on that
// function. funcScopeDepths maps each function-stack index to the
// scopes-stack length at that function's entry.
func (a *analyzer) markCapturedLocal(name string, funcScopeDepths []int) {
	for i := len(a.functions) - 2; i >= 0; i-- {
		if a.declaredInRange(name, funcScopeDepths[i], funcScopeDepths[i+1]) {
			a.recordOf(a.functions[i]).CapturedLocals[name] = true
			a.result.anyCaptured[name] = true
			return
		}
	}
	// Declared at top level (outside any function): still tracked in the
	// inverse index so the emitter can decide between a local-scope
	// display-class field and the entry-point static field path.
	a.result.anyCaptured[name] = true
}

func (a *analyzer) declaredInRange(name string, lo, hi int) bool {
	limit := hi
	if limit > len(a.scopes) {
		limit = len(a.scopes)
	}
	for i := limit - 1; i >= lo; i-- {
		if a.scopes[i].names[name] {
			return true
		}
	}
	return false
}

// reference processes one variable reference (read or write) by name,
// applying three rules: own local, named-function self-reference, or
// free variable captured from an enclosing scope.
func (a *analyzer) reference(name string, funcScopeDepths []int) {
	cur := a.currentFunction()
	if cur == nil {
		return // top-level reference, nothing to capture into
	}
	depth := funcScopeDepths[len(funcScopeDepths)-1]

	// Rule 1: local of the current function.
	if a.declaredInCurrentFunction(name, depth) {
		return
	}
	// Rule 2: named function expression self-reference.
	if name == cur.FuncName() && cur.FuncName() != "" {
		a.recordOf(cur).Captures[name] = true
		return
	}
	// Rule 3: free variable captured from an enclosing scope.
	if a.declaredSomewhere(name) {
		a.recordOf(cur).Captures[name] = true
		a.markCapturedLocal(name, funcScopeDepths)
	}
}

func (a *analyzer) referenceThis(funcScopeDepths []int) {
	cur := a.currentFunction()
	if cur == nil {
		return
	}
	// An arrow function captures `this` when it is not a function
	// expression (which receives its own `this`).
	if cur.IsArrow() {
		a.recordOf(cur).Captures[ThisName] = true
		a.result.anyCaptured[ThisName] = true
	}
}

// funcScopeDepths tracks, per entry on the function stack, the scopes
// stack length at the moment that function was entered. It is threaded
// through the recursive walk rather than stored on analyzer directly so
// that each recursive call sees a consistent snapshot.
func (a *analyzer) withFunction(f ast.FuncLike, funcScopeDepths []int, body func([]int)) {
	a.functions = append(a.functions, f)
	a.pushScope()
	for _, p := range f.FuncParams() {
		a.declare(p.Name)
	}
	next := append(append([]int{}, funcScopeDepths...), len(a.scopes)-1)
	body(next)
	a.popScope()
	a.functions = a.functions[:len(a.functions)-1]
}
