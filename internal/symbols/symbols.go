// Package symbols is a minimal stand-in for the external symbol/type
// environment supplied as input alongside the AST. The real
// type-checker that populates it is out of scope for this module; this
// package only models the shape the compiler core needs to query.
package symbols

import (
	"github.com/sharpts/compiler/internal/ast"
	"github.com/sharpts/compiler/internal/types"
)

// Kind distinguishes what a resolved symbol names.
type Kind int

const (
	KindFunction Kind = iota
	KindClass
	KindVariable
)

// Symbol is a resolved name: a function, a class, or a variable, together
// with its target runtime type.
type Symbol struct {
	Name string
	Kind Kind
	Type *types.RuntimeType
}

// Table is a read-only view over the symbols the (external) type checker
// resolved for one program. The compiler never mutates it.
type Table struct {
	byName map[string]*Symbol
	byNode map[ast.NodeId]*Symbol
}

// NewTable builds an empty table; callers populate it via Declare before
// handing it to the driver.
func NewTable() *Table {
	return &Table{
		byName: make(map[string]*Symbol),
		byNode: make(map[ast.NodeId]*Symbol),
	}
}

// Declare registers a symbol, optionally associated with the AST node that
// introduced it (for `new Foo()` / call-site resolution by node identity).
func (t *Table) Declare(sym *Symbol, node ast.Node) {
	t.byName[sym.Name] = sym
	if node != nil {
		t.byNode[node.ID()] = sym
	}
}

// Lookup resolves a symbol by name.
func (t *Table) Lookup(name string) (*Symbol, bool) {
	s, ok := t.byName[name]
	return s, ok
}

// LookupNode resolves the symbol associated with a specific AST node.
func (t *Table) LookupNode(id ast.NodeId) (*Symbol, bool) {
	s, ok := t.byNode[id]
	return s, ok
}

// IsKnownClass reports whether name resolves to a compiled class, which
// would let the emitter take a direct-field/getter fast path for member
// access instead of routing through the runtime's GetProperty helper;
// the current emitter does not yet exercise this (it always takes the
// generic path).
func (t *Table) IsKnownClass(name string) bool {
	s, ok := t.byName[name]
	return ok && s.Kind == KindClass
}

// IsKnownFunction reports whether name resolves to a statically known
// function. The emitter's direct-call path does not consult this table;
// it uses emit.Context.KnownFunctions.
func (t *Table) IsKnownFunction(name string) bool {
	s, ok := t.byName[name]
	return ok && s.Kind == KindFunction
}
