// Package suspend implements suspension analysis: given one
// async/generator function body, enumerate its await/yield suspension
// points, compute which locals must be hoisted (live across a
// suspension), classify try-block nesting so that dispatch can later be
// made exception-region aware, and track nested async arrows for the
// state-machine builder's shared-instance decision.
//
// A statement-kind switch walk, the same shape a statement compiler
// uses for emission, applied here to an analysis pass instead.
package suspend

import "github.com/sharpts/compiler/internal/ast"

// Point is one await/yield suspension point.
type Point struct {
	Index    int
	Node     ast.Expression // the *ast.Await or *ast.Yield
	Delegate bool           // true for `yield*`
	Live     map[string]bool
	TryDepth int
	TryID    int // 0 if not inside any try block

	declaredBefore map[string]bool
}

// TryBlock classifies one try statement by which of its regions contains
// an await, so the state machine can build exception-region-aware
// dispatch tables.
type TryBlock struct {
	ID               int
	AwaitInTry       bool
	AwaitInCatch     bool
	AwaitInFinally   bool
}

// ArrowInfo records one async arrow nested inside the analysed function
// (or inside another nested async arrow), along with enough structure
// for the state-machine builder to decide whether it shares the
// enclosing state machine's boxed instance.
type ArrowInfo struct {
	Node         ast.FuncLike
	NestingLevel int       // 1 for a direct child of the analysed function
	Parent       ast.FuncLike // nil if NestingLevel == 1
	Record       *Record   // the nested arrow's own suspension analysis
}

// Record is the suspension analysis of one async/generator function.
type Record struct {
	Points      []*Point
	TryBlocks   []*TryBlock
	AsyncArrows []*ArrowInfo
}

// event is one position in the linear walk order: either a suspension
// point or a name access, used by the backward live-set sweep.
type event struct {
	point   *Point
	refName string
}

type analyzer struct {
	scopes []map[string]bool

	tryStack        []*TryBlock
	curRegion       string    // "", "try", "catch", "finally"
	curTryForRegion *TryBlock // the try block whose region is currently being classified
	nextTryID       int

	nextPointIndex int
	events         []event
	record         *Record

	selfNode     ast.FuncLike // the function-like node this analyzer is walking
	parentArrow  ast.FuncLike
	nestingLevel int
}

// Analyze walks fn's body and returns its suspension record. fn must be
// async and/or a generator; callers are expected to only invoke this for
// function-like nodes the closure/driver pass has already identified as
// such — parsing and type-checking are out-of-scope collaborators this
// package trusts its caller to have already run.
func Analyze(fn ast.FuncLike) *Record {
	a := &analyzer{record: &Record{}, selfNode: fn}
	a.pushScope()
	for _, p := range fn.FuncParams() {
		// Parameters are always hoisted, tracked separately from locals
		// by the hoisting manager, but for live-set purposes they are
		// declared-before every point.
		a.declare(p.Name)
	}
	a.walkStatements(fn.FuncBody())
	a.popScope()
	a.computeLiveSets()
	return a.record
}

// analyzeNestedArrow runs a fresh, independent analysis for a nested
// async arrow and records its nesting metadata on the parent's record.
func analyzeNestedArrow(arrow ast.FuncLike, parent ast.FuncLike, nestingLevel int) *ArrowInfo {
	a := &analyzer{record: &Record{}, selfNode: arrow, parentArrow: parent, nestingLevel: nestingLevel}
	a.pushScope()
	for _, p := range arrow.FuncParams() {
		a.declare(p.Name)
	}
	a.walkStatements(arrow.FuncBody())
	a.popScope()
	a.computeLiveSets()
	return &ArrowInfo{Node: arrow, NestingLevel: nestingLevel, Parent: parent, Record: a.record}
}

func (a *analyzer) pushScope() { a.scopes = append(a.scopes, map[string]bool{}) }
func (a *analyzer) popScope()  { a.scopes = a.scopes[:len(a.scopes)-1] }
func (a *analyzer) declare(name string) {
	if name == "" || len(a.scopes) == 0 {
		return
	}
	a.scopes[len(a.scopes)-1][name] = true
}

func (a *analyzer) snapshotDeclared() map[string]bool {
	out := map[string]bool{}
	for _, sc := range a.scopes {
		for n := range sc {
			out[n] = true
		}
	}
	return out
}

func (a *analyzer) reference(name string) {
	if name == "" {
		return
	}
	a.events = append(a.events, event{refName: name})
}

func (a *analyzer) currentTryDepth() int { return len(a.tryStack) }
func (a *analyzer) currentTryID() int {
	if len(a.tryStack) == 0 {
		return 0
	}
	return a.tryStack[len(a.tryStack)-1].ID
}

func (a *analyzer) markSuspension(node ast.Expression, delegate bool) {
	pt := &Point{
		Index:          a.nextPointIndex,
		Node:           node,
		Delegate:       delegate,
		declaredBefore: a.snapshotDeclared(),
		TryDepth:       a.currentTryDepth(),
		TryID:          a.currentTryID(),
	}
	a.nextPointIndex++
	a.record.Points = append(a.record.Points, pt)
	a.events = append(a.events, event{point: pt})

	if tb := a.curTryForRegion; tb != nil {
		switch a.curRegion {
		case "try":
			tb.AwaitInTry = true
		case "catch":
			tb.AwaitInCatch = true
		case "finally":
			tb.AwaitInFinally = true
		}
	}
}

func (a *analyzer) computeLiveSets() {
	seen := map[string]bool{}
	for i := len(a.events) - 1; i >= 0; i-- {
		ev := a.events[i]
		if ev.point != nil {
			live := map[string]bool{}
			for name := range ev.point.declaredBefore {
				if seen[name] {
					live[name] = true
				}
			}
			ev.point.Live = live
			continue
		}
		seen[ev.refName] = true
	}
}
